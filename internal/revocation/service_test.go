package revocation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hee-tis/credential-broker/internal/gateway"
	"github.com/hee-tis/credential-broker/internal/models"
	"github.com/hee-tis/credential-broker/internal/revocation"
)

type fakeMetadataStore struct {
	mu      sync.Mutex
	byTisID map[string][]models.CredentialMetadata
	revoked map[string]time.Time
	pending map[string]bool
}

func newFakeMetadataStore(credentials ...models.CredentialMetadata) *fakeMetadataStore {
	store := &fakeMetadataStore{
		byTisID: make(map[string][]models.CredentialMetadata),
		revoked: make(map[string]time.Time),
		pending: make(map[string]bool),
	}
	for _, c := range credentials {
		key := c.TisID + "/" + string(c.CredentialType)
		store.byTisID[key] = append(store.byTisID[key], c)
	}
	return store
}

func (f *fakeMetadataStore) ListNonRevoked(ctx context.Context, tisID string, credentialType models.CredentialType) ([]models.CredentialMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tisID + "/" + string(credentialType)
	var out []models.CredentialMetadata
	for _, c := range f.byTisID[key] {
		if _, revoked := f.revoked[c.CredentialID]; !revoked {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeMetadataStore) MarkRevoked(ctx context.Context, credentialID string, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[credentialID] = revokedAt
	return nil
}

func (f *fakeMetadataStore) MarkRevocationPending(ctx context.Context, credentialID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[credentialID] = true
	return nil
}

type fakeFingerprintStore struct {
	mu     sync.Mutex
	hashes map[string]string
}

func newFakeFingerprintStore() *fakeFingerprintStore {
	return &fakeFingerprintStore{hashes: make(map[string]string)}
}

func (f *fakeFingerprintStore) GetLastModifiedDate(ctx context.Context, tisID string, credentialType models.CredentialType) (*time.Time, error) {
	return nil, nil
}

func (f *fakeFingerprintStore) UpsertIfChanged(ctx context.Context, tisID string, credentialType models.CredentialType, hash *string, modifiedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tisID + "/" + string(credentialType)
	if hash == nil {
		return true, nil
	}
	if f.hashes[key] == *hash {
		return false, nil
	}
	f.hashes[key] = *hash
	return true, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.RevocationEvent
}

func (f *fakePublisher) PublishRevocation(ctx context.Context, event models.RevocationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func newGatewayClient(t *testing.T, handler http.HandlerFunc) (*gateway.Client, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := gateway.New(gateway.Config{Host: server.URL, ClientID: "broker", ClientSecret: "secret"})
	return client, server.Close
}

func TestService_Revoke_RevokesAllNonRevokedCredentials(t *testing.T) {
	metadata := newFakeMetadataStore(models.CredentialMetadata{
		CredentialID:   "cred-1",
		CredentialType: models.CredentialTypePlacement,
		TisID:          "tis-001",
		TraineeID:      "trainee-001",
		IssuedAt:       time.Now().Add(-time.Hour),
	})
	fingerprints := newFakeFingerprintStore()
	publisher := &fakePublisher{}

	var revokeCalls int
	gw, closeServer := newGatewayClient(t, func(w http.ResponseWriter, r *http.Request) {
		revokeCalls++
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	defer closeServer()

	svc := revocation.New(metadata, fingerprints, gw, publisher)

	if err := svc.Revoke(context.Background(), "tis-001", models.CredentialTypePlacement, nil); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	if revokeCalls != 1 {
		t.Fatalf("expected exactly one gateway revoke call, got %d", revokeCalls)
	}
	if _, revoked := metadata.revoked["cred-1"]; !revoked {
		t.Fatal("expected cred-1 to be marked revoked")
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected exactly one published event, got %d", len(publisher.events))
	}
	if publisher.events[0].CredentialID != "cred-1" {
		t.Errorf("CredentialID = %q, want cred-1", publisher.events[0].CredentialID)
	}
}

func TestService_Revoke_SecondCallWithSameHashIsNoOp(t *testing.T) {
	metadata := newFakeMetadataStore(models.CredentialMetadata{
		CredentialID:   "cred-1",
		CredentialType: models.CredentialTypePlacement,
		TisID:          "tis-001",
		TraineeID:      "trainee-001",
	})
	fingerprints := newFakeFingerprintStore()
	publisher := &fakePublisher{}

	var revokeCalls int
	gw, closeServer := newGatewayClient(t, func(w http.ResponseWriter, r *http.Request) {
		revokeCalls++
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	defer closeServer()

	svc := revocation.New(metadata, fingerprints, gw, publisher)

	hash := "abc123"
	if err := svc.Revoke(context.Background(), "tis-001", models.CredentialTypePlacement, &hash); err != nil {
		t.Fatalf("first Revoke() error = %v", err)
	}
	if err := svc.Revoke(context.Background(), "tis-001", models.CredentialTypePlacement, &hash); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}

	if revokeCalls != 1 {
		t.Fatalf("expected exactly one gateway revoke call across both Revoke() calls, got %d", revokeCalls)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected exactly one published event, got %d", len(publisher.events))
	}
}

func TestService_Revoke_NoNonRevokedCredentialsIsNoOp(t *testing.T) {
	metadata := newFakeMetadataStore()
	fingerprints := newFakeFingerprintStore()
	publisher := &fakePublisher{}

	var revokeCalls int
	gw, closeServer := newGatewayClient(t, func(w http.ResponseWriter, r *http.Request) {
		revokeCalls++
	})
	defer closeServer()

	svc := revocation.New(metadata, fingerprints, gw, publisher)

	if err := svc.Revoke(context.Background(), "tis-404", models.CredentialTypePlacement, nil); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if revokeCalls != 0 {
		t.Fatalf("expected no gateway revoke calls, got %d", revokeCalls)
	}
}
