package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hee-tis/credential-broker/internal/models"
)

const recordFingerprintCollection = "RecordFingerprint"

// RecordFingerprintStore implements signing.FreshnessChecker,
// revocation.FingerprintStore and issuance.FingerprintStore over the
// RecordFingerprint collection, keyed by (tisId, credentialType) (§6).
type RecordFingerprintStore struct {
	collection *mongo.Collection
}

// NewRecordFingerprintStore builds a store over db's RecordFingerprint
// collection.
func NewRecordFingerprintStore(db *mongo.Database) *RecordFingerprintStore {
	return &RecordFingerprintStore{collection: db.Collection(recordFingerprintCollection)}
}

// GetLastModifiedDate answers C3's freshness cross-check (§4.3 rule 4): a nil
// result means no record is on file yet for the pair.
func (s *RecordFingerprintStore) GetLastModifiedDate(ctx context.Context, tisID string, credentialType models.CredentialType) (*time.Time, error) {
	var record models.RecordFingerprint
	err := s.collection.FindOne(ctx, bson.M{"tisId": tisID, "credentialType": credentialType}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("find record fingerprint: %w", err)
	}
	return &record.LastModifiedAt, nil
}

// UpsertIfChanged records the incoming hash and reports whether it differs
// from what was already stored (§4.7 step 3 idempotency gate). A nil hash
// (delete events carry none) is always treated as changed.
func (s *RecordFingerprintStore) UpsertIfChanged(ctx context.Context, tisID string, credentialType models.CredentialType, hash *string, modifiedAt time.Time) (bool, error) {
	if hash == nil {
		_, err := s.collection.UpdateOne(ctx,
			bson.M{"tisId": tisID, "credentialType": credentialType},
			bson.M{"$set": bson.M{"lastModifiedAt": modifiedAt}},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return false, fmt.Errorf("record delete fingerprint: %w", err)
		}
		return true, nil
	}

	var existing models.RecordFingerprint
	err := s.collection.FindOne(ctx, bson.M{"tisId": tisID, "credentialType": credentialType}).Decode(&existing)
	if err != nil && err != mongo.ErrNoDocuments {
		return false, fmt.Errorf("find record fingerprint: %w", err)
	}
	if err == nil && existing.LastModifiedContentHash == *hash {
		return false, nil
	}

	_, err = s.collection.UpdateOne(ctx,
		bson.M{"tisId": tisID, "credentialType": credentialType},
		bson.M{"$set": bson.M{"lastModifiedContentHash": *hash, "lastModifiedAt": modifiedAt}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("upsert record fingerprint: %w", err)
	}
	return true, nil
}

// MarkFresh records issuedAt as the last-known-good modification time for
// (tisID, credentialType) without touching the content hash (C6, §4.6 step
// 5 — best-effort, failures are logged but not fatal to issuance).
func (s *RecordFingerprintStore) MarkFresh(ctx context.Context, tisID string, credentialType models.CredentialType, at time.Time) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"tisId": tisID, "credentialType": credentialType},
		bson.M{"$set": bson.M{"lastModifiedAt": at}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mark record fingerprint fresh: %w", err)
	}
	return nil
}
