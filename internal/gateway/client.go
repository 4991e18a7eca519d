// Package gateway is the HTTP client for the external credential gateway:
// PAR, authorize, token, JWKS, and revoke endpoints (§6). PAR and revoke
// calls carry a correlation id and are logged with zerolog, following the
// request-tracing pattern of erauner12-toolbridge-api's HTTPClient; the token
// exchange goes through oauth2 and is logged without a correlation id; deadlines
// are enforced per the concurrency model (§5): 5s to connect, 10s to read.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/hee-tis/credential-broker/internal/logger"
)

// Config is the subset of process configuration the gateway client needs.
type Config struct {
	Host         string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client is the credential gateway's HTTP client.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	oauth2Config oauth2.Config
}

// New builds a Client with the concurrency model's connect/read deadlines.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
	}
	httpClient := &http.Client{Transport: transport, Timeout: cfg.Timeout}
	return &Client{
		baseURL:      cfg.Host,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
		oauth2Config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.Host + "/oidc/authorize",
				TokenURL:  cfg.Host + "/oidc/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// JWKSURL returns the gateway's JWKS endpoint, consumed by internal/jwtdecoder.
func (c *Client) JWKSURL() string {
	return c.baseURL + "/.well-known/openid-configuration/jwks"
}

// AuthorizeURL builds the gateway's direct (non-PAR) authorize URI used by
// the verification flow (§4.5), via oauth2.Config.AuthCodeURL — the nonce and
// PKCE challenge (already generated by the caller) ride along as extra
// auth-URL params since oauth2.Config has no first-class field for either.
func (c *Client) AuthorizeURL(params url.Values) string {
	cfg := c.oauth2Config
	cfg.RedirectURL = params.Get("redirect_uri")
	cfg.Scopes = strings.Fields(params.Get("scope"))

	return cfg.AuthCodeURL(params.Get("state"),
		oauth2.SetAuthURLParam("nonce", params.Get("nonce")),
		oauth2.SetAuthURLParam("code_challenge", params.Get("code_challenge")),
		oauth2.SetAuthURLParam("code_challenge_method", params.Get("code_challenge_method")),
	)
}

// AuthorizeV1URL builds the PAR-backed authorize URI used by the issuance
// flow, referencing a previously pushed request_uri (§4.6).
func (c *Client) AuthorizeV1URL(requestURI, state string) string {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("request_uri", requestURI)
	params.Set("state", state)
	return c.baseURL + "/oidc/authorizev1?" + params.Encode()
}

// parResponse is the gateway's Pushed Authorization Request response shape.
type parResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}

// PushAuthorizationRequest POSTs a signed authorization request JWT to the
// gateway's PAR endpoint and returns the resulting request_uri (§4.6 step 5).
func (c *Client) PushAuthorizationRequest(ctx context.Context, signedRequestJWT string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("request", signedRequestJWT)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oidc/par", bytesReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build par request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out parResponse
	if err := c.doJSON(ctx, req, &out); err != nil {
		return "", fmt.Errorf("push authorization request: %w", err)
	}
	return out.RequestURI, nil
}

// ExchangeToken exchanges an authorization code (plus its PKCE verifier) at
// the gateway's token endpoint via oauth2.Config.Exchange, returning the raw
// token to be JWT-decoded by the caller (§4.5 step 2, §4.6 completeIssuance).
func (c *Client) ExchangeToken(ctx context.Context, code, codeVerifier, redirectURI string) (string, error) {
	cfg := c.oauth2Config
	cfg.RedirectURL = redirectURI

	start := time.Now()
	token, err := cfg.Exchange(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient),
		code, oauth2.VerifierOption(codeVerifier))
	log := logger.Gateway().With().Str("url", cfg.Endpoint.TokenURL).Dur("duration", time.Since(start)).Logger()
	if err != nil {
		log.Error().Err(err).Msg("gateway token exchange failed")
		return "", fmt.Errorf("exchange token: %w", err)
	}
	log.Debug().Msg("gateway token exchange completed")

	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		return idToken, nil
	}
	return token.AccessToken, nil
}

// Revoke calls the gateway's revocation endpoint for credentialID (§4.7 step 2).
func (c *Client) Revoke(ctx context.Context, credentialID string) error {
	payload, err := json.Marshal(map[string]string{"credentialId": credentialID})
	if err != nil {
		return fmt.Errorf("marshal revoke payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Revocation/revokecredential", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doJSON(ctx, req, nil)
}

// doJSON executes req with correlation-id injection and structured logging,
// decoding a JSON response into out (skipped if out is nil).
func (c *Client) doJSON(ctx context.Context, req *http.Request, out interface{}) error {
	correlationID := uuid.NewString()
	req.Header.Set("X-Correlation-Id", correlationID)

	log := logger.Gateway().With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("correlationId", correlationID).
		Logger()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("gateway request failed")
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	log.Debug().Int("status", resp.StatusCode).Dur("duration", duration).Msg("gateway request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func bytesReader(s string) io.Reader {
	return bytes.NewReader([]byte(s))
}
