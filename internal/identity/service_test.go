package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hee-tis/credential-broker/internal/cache"
	"github.com/hee-tis/credential-broker/internal/gateway"
	"github.com/hee-tis/credential-broker/internal/identity"
	"github.com/hee-tis/credential-broker/internal/jwtdecoder"
	"github.com/hee-tis/credential-broker/internal/models"
)

const testKID = "test-key"

// testHarness wires a Service against a miniredis Store and a fake gateway
// serving JWKS + a scripted token exchange response.
type testHarness struct {
	t          *testing.T
	priv       *rsa.PrivateKey
	mr         *miniredis.Miniredis
	store      *cache.Store
	decoder    *jwtdecoder.Decoder
	gw         *gateway.Client
	server     *httptest.Server
	tokenReply func(code, verifier string) (string, int)
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	h := &testHarness{t: t, priv: priv}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration/jwks", func(w http.ResponseWriter, r *http.Request) {
		jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
			{Key: &priv.PublicKey, KeyID: testKID, Algorithm: "RS256", Use: "sig"},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	})
	mux.HandleFunc("/oidc/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		idToken, status := h.tokenReply(r.FormValue("code"), r.FormValue("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if idToken != "" {
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "access-token", "id_token": idToken})
		}
	})
	h.server = httptest.NewServer(mux)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	h.mr = mr

	store, err := cache.NewStore(cache.Config{Host: mr.Host(), Port: mr.Port()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	h.store = store

	h.decoder = jwtdecoder.New(context.Background(), h.server.URL+"/.well-known/openid-configuration/jwks")
	h.gw = gateway.New(gateway.Config{Host: h.server.URL, ClientID: "broker", ClientSecret: "secret"})

	t.Cleanup(func() {
		h.server.Close()
		h.mr.Close()
		_ = h.store.Close()
	})

	return h
}

func (h *testHarness) signToken(claims jwt.MapClaims) string {
	h.t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(h.priv)
	if err != nil {
		h.t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newService(h *testHarness) *identity.Service {
	return identity.New(h.store, h.decoder, h.gw, 5*time.Minute, 10*time.Minute, "https://broker.example/callback")
}

func TestService_Start_ReturnsAuthorizeURLWithExpectedParams(t *testing.T) {
	h := newTestHarness(t)
	svc := newService(h)

	authToken := h.signToken(jwt.MapClaims{
		"origin_jti": "origin-123",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	uri, err := svc.Start(context.Background(), authToken, models.IdentityData{
		Forenames:   "Jane",
		Surname:     "Smith",
		DateOfBirth: "1990-01-01",
	}, "client-state-value")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("parse authorize uri: %v", err)
	}
	q := parsed.Query()
	for _, field := range []string{"nonce", "state", "code_challenge"} {
		if q.Get(field) == "" {
			t.Errorf("authorize uri missing %q", field)
		}
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}
	if q.Get("scope") != "openid Identity" {
		t.Errorf("scope = %q, want %q", q.Get("scope"), "openid Identity")
	}
}

func TestService_Complete_SuccessEstablishesVerifiedSession(t *testing.T) {
	h := newTestHarness(t)
	svc := newService(h)

	authToken := h.signToken(jwt.MapClaims{
		"origin_jti": "origin-abc",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	uri, err := svc.Start(context.Background(), authToken, models.IdentityData{
		Forenames:   "Jane",
		Surname:     "Smith",
		DateOfBirth: "1990-01-01",
	}, "client-state-value")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	q, _ := url.Parse(uri)
	nonce := q.Query().Get("nonce")
	state := q.Query().Get("state")

	h.tokenReply = func(code, verifier string) (string, int) {
		callbackToken := h.signToken(jwt.MapClaims{
			"forenames":        "Jane",
			"surname":          "Smith",
			"dateOfBirth":      "1990-01-01",
			"uniqueIdentifier": "uid-789",
			"scope":            "openid Identity",
			"nonce":            nonce,
			"exp":              time.Now().Add(time.Hour).Unix(),
		})
		return callbackToken, http.StatusOK
	}

	result := svc.Complete(context.Background(), "auth-code", state, "", "")
	if result != "/credential-verified?state=client-state-value" {
		t.Fatalf("Complete() = %q, want success redirect", result)
	}

	var record models.VerifiedSessionRecord
	if err := h.store.Peek(context.Background(), cache.CacheVerifiedSession, "origin-abc", &record); err != nil {
		t.Fatalf("expected verified session to be recorded: %v", err)
	}
	if record.UniqueIdentifier != "uid-789" {
		t.Errorf("UniqueIdentifier = %q, want uid-789", record.UniqueIdentifier)
	}
}

func TestService_Complete_NameMismatchFails(t *testing.T) {
	h := newTestHarness(t)
	svc := newService(h)

	authToken := h.signToken(jwt.MapClaims{
		"origin_jti": "origin-xyz",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	uri, err := svc.Start(context.Background(), authToken, models.IdentityData{
		Forenames:   "Jane",
		Surname:     "Smith",
		DateOfBirth: "1990-01-01",
	}, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	q, _ := url.Parse(uri)
	nonce := q.Query().Get("nonce")
	state := q.Query().Get("state")

	h.tokenReply = func(code, verifier string) (string, int) {
		callbackToken := h.signToken(jwt.MapClaims{
			"forenames":        "Robert",
			"surname":          "Jones",
			"dateOfBirth":      "1990-01-01",
			"uniqueIdentifier": "uid-000",
			"scope":            "openid Identity",
			"nonce":            nonce,
			"exp":              time.Now().Add(time.Hour).Unix(),
		})
		return callbackToken, http.StatusOK
	}

	result := svc.Complete(context.Background(), "auth-code", state, "", "")
	if result != "/invalid-credential?reason=identity_verification_failed" {
		t.Fatalf("Complete() = %q, want identity_verification_failed redirect", result)
	}
}

func TestService_Complete_GatewayErrorParamShortCircuits(t *testing.T) {
	h := newTestHarness(t)
	svc := newService(h)

	_ = h.store.PutWithTTL(context.Background(), cache.CacheClientState, "some-state", "client-state-value", time.Minute)

	result := svc.Complete(context.Background(), "", "some-state", "access_denied", "user declined")
	if result != "/invalid-credential?reason=user+declined&state=client-state-value" {
		t.Fatalf("Complete() = %q, want access_denied redirect", result)
	}
}

func TestService_Complete_MissingCodeVerifierFails(t *testing.T) {
	h := newTestHarness(t)
	svc := newService(h)

	result := svc.Complete(context.Background(), "auth-code", "unknown-state", "", "")
	if result != "/invalid-credential?reason=no_code_verifier" {
		t.Fatalf("Complete() = %q, want no_code_verifier redirect", result)
	}
}
