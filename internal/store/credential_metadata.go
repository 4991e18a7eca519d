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

const credentialMetadataCollection = "CredentialMetadata"

// CredentialMetadataStore implements issuance.MetadataStore and
// revocation.MetadataStore over the CredentialMetadata collection (§3, §6).
type CredentialMetadataStore struct {
	collection *mongo.Collection
}

// NewCredentialMetadataStore builds a store over db's CredentialMetadata
// collection.
func NewCredentialMetadataStore(db *mongo.Database) *CredentialMetadataStore {
	return &CredentialMetadataStore{collection: db.Collection(credentialMetadataCollection)}
}

// Save persists a newly issued credential's metadata (C6, §4.6 step 5).
func (s *CredentialMetadataStore) Save(ctx context.Context, metadata models.CredentialMetadata) error {
	_, err := s.collection.InsertOne(ctx, metadata)
	if err != nil {
		return fmt.Errorf("insert credential metadata: %w", err)
	}
	return nil
}

// ListNonRevoked returns every credential of credentialType for tisID whose
// revokedAt is still unset (C7, §4.7 step 2).
func (s *CredentialMetadataStore) ListNonRevoked(ctx context.Context, tisID string, credentialType models.CredentialType) ([]models.CredentialMetadata, error) {
	cursor, err := s.collection.Find(ctx, bson.M{
		"tisId":          tisID,
		"credentialType": credentialType,
		"revokedAt":      nil,
	})
	if err != nil {
		return nil, fmt.Errorf("find non-revoked credentials: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.CredentialMetadata
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode non-revoked credentials: %w", err)
	}
	return out, nil
}

// MarkRevoked sets revokedAt, compare-and-set on revokedAt == null (§5) so a
// concurrent second revoke for the same credential is a no-op rather than a
// clobbering write.
func (s *CredentialMetadataStore) MarkRevoked(ctx context.Context, credentialID string, revokedAt time.Time) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"credentialId": credentialID, "revokedAt": nil},
		bson.M{"$set": bson.M{"revokedAt": revokedAt}},
	)
	if err != nil {
		return fmt.Errorf("mark credential revoked: %w", err)
	}
	return nil
}

// MarkRevocationPending flags a credential whose gateway revoke call
// exhausted its retries, for out-of-band reconciliation (§4.7 step 4).
func (s *CredentialMetadataStore) MarkRevocationPending(ctx context.Context, credentialID string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"credentialId": credentialID},
		bson.M{"$set": bson.M{"revocationPending": true}},
		options.UpdateOne().SetUpsert(false),
	)
	if err != nil {
		return fmt.Errorf("mark credential revocation-pending: %w", err)
	}
	return nil
}
