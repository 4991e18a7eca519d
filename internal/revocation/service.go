// Package revocation implements the Revocation Service (C7): idempotently
// marks issued credentials revoked in response to domain record changes, and
// answers the freshness cross-check C3 needs.
package revocation

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/hee-tis/credential-broker/internal/errors"
	"github.com/hee-tis/credential-broker/internal/gateway"
	"github.com/hee-tis/credential-broker/internal/logger"
	"github.com/hee-tis/credential-broker/internal/models"
)

// MetadataStore is the subset of C10 the revocation service needs.
type MetadataStore interface {
	ListNonRevoked(ctx context.Context, tisID string, credentialType models.CredentialType) ([]models.CredentialMetadata, error)
	MarkRevoked(ctx context.Context, credentialID string, revokedAt time.Time) error
	MarkRevocationPending(ctx context.Context, credentialID string) error
}

// FingerprintStore is the subset of C10 the revocation service needs. It also
// implements signing.FreshnessChecker for C3's cross-check.
type FingerprintStore interface {
	GetLastModifiedDate(ctx context.Context, tisID string, credentialType models.CredentialType) (*time.Time, error)
	// UpsertIfChanged records (tisID, credentialType, hash, modifiedAt) and
	// reports whether the hash differs from what was previously stored; a
	// nil hash (delete events carry none) is always treated as changed.
	UpsertIfChanged(ctx context.Context, tisID string, credentialType models.CredentialType, hash *string, modifiedAt time.Time) (changed bool, err error)
}

// Publisher is the subset of C9 the revocation service needs.
type Publisher interface {
	PublishRevocation(ctx context.Context, event models.RevocationEvent) error
}

// Service implements revoke/getLastModifiedDate (§4.7).
type Service struct {
	metadata      MetadataStore
	fingerprints  FingerprintStore
	gatewayClient *gateway.Client
	publisher     Publisher
	now           func() time.Time
}

// New builds a Service.
func New(metadata MetadataStore, fingerprints FingerprintStore, gatewayClient *gateway.Client, publisher Publisher) *Service {
	return &Service{
		metadata:      metadata,
		fingerprints:  fingerprints,
		gatewayClient: gatewayClient,
		publisher:     publisher,
		now:           time.Now,
	}
}

// GetLastModifiedDate answers C3's freshness cross-check (§4.3 rule 4).
func (s *Service) GetLastModifiedDate(ctx context.Context, tisID string, credentialType models.CredentialType) (*time.Time, error) {
	return s.fingerprints.GetLastModifiedDate(ctx, tisID, credentialType)
}

// Revoke idempotently marks every non-revoked credential for (tisID,
// credentialType) as revoked, fanning out one event per credential (§4.7).
// modifiedHashOrTimestamp is nil for delete events and the update fingerprint
// hash for update events.
func (s *Service) Revoke(ctx context.Context, tisID string, credentialType models.CredentialType, modifiedHashOrTimestamp *string) error {
	now := s.now()

	changed, err := s.fingerprints.UpsertIfChanged(ctx, tisID, credentialType, modifiedHashOrTimestamp, now)
	if err != nil {
		return apperrors.Internal("record fingerprint", err)
	}
	if !changed {
		return nil
	}

	credentials, err := s.metadata.ListNonRevoked(ctx, tisID, credentialType)
	if err != nil {
		return apperrors.Internal("list non-revoked credentials", err)
	}

	for _, credential := range credentials {
		if err := s.revokeOne(ctx, credential, now); err != nil {
			return err
		}
	}
	return nil
}

// revokeOne calls the gateway revoke endpoint, retrying up to three times
// after the first call on a fixed 1s/3s/9s schedule; on exhaustion the metadata is left
// "revocation-pending" and the error surfaces as retryable (§4.7 step 4).
func (s *Service) revokeOne(ctx context.Context, credential models.CredentialMetadata, revokedAt time.Time) error {
	operation := func() error {
		return s.gatewayClient.Revoke(ctx, credential.CredentialID)
	}

	err := backoff.Retry(operation, backoff.WithContext(newFixedSchedule(), ctx))
	if err != nil {
		logger.Revocation().Warn().Err(err).Str("credentialId", credential.CredentialID).Msg("gateway revoke exhausted retries")
		if markErr := s.metadata.MarkRevocationPending(ctx, credential.CredentialID); markErr != nil {
			logger.Revocation().Error().Err(markErr).Msg("failed to mark credential revocation-pending")
		}
		return apperrors.RevocationPending(err)
	}

	if err := s.metadata.MarkRevoked(ctx, credential.CredentialID, revokedAt); err != nil {
		return apperrors.Internal("mark credential revoked", err)
	}

	event := models.RevocationEvent{
		CredentialID:   credential.CredentialID,
		CredentialType: credential.CredentialType,
		IssuedAt:       credential.IssuedAt,
		RevokedAt:      &revokedAt,
		TraineeID:      credential.TraineeID,
	}
	if err := s.publisher.PublishRevocation(ctx, event); err != nil {
		logger.Revocation().Error().Err(err).Str("credentialId", credential.CredentialID).Msg("failed to publish revocation event")
	}
	logger.Revocation().Info().Str("credentialId", credential.CredentialID).Str("tisId", credential.TisID).Msg("credential revoked")

	return nil
}
