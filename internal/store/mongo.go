// Package store implements the Credential Metadata Store (C10): the durable
// CredentialMetadata ledger and RecordFingerprint tracker behind Mongo.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/hee-tis/credential-broker/internal/logger"
)

// Config holds Mongo connection settings (§6).
type Config struct {
	Host           string
	Port           string
	User           string
	Password       string
	Database       string
	ConnectTimeout time.Duration
	RetryAttempts  int
	RetryInterval  time.Duration
}

func (c Config) uri() string {
	if c.User == "" {
		return fmt.Sprintf("mongodb://%s:%s", c.Host, c.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%s", c.User, c.Password, c.Host, c.Port)
}

// New connects to Mongo with retry, tolerating the cold starts a managed
// Mongo deployment can take a few seconds to recover from.
func New(ctx context.Context, cfg Config) (*mongo.Client, error) {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.uri()))
		if err == nil {
			err = client.Ping(connectCtx, readpref.Primary())
		}
		cancel()

		if err == nil {
			return client, nil
		}

		lastErr = err
		logger.Database().Warn().Err(err).Int("attempt", attempt).Int("of", attempts).Msg("mongo connect failed, retrying")
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}
	}
	return nil, fmt.Errorf("connect to mongo after %d attempts: %w", attempts, lastErr)
}

// NewWithDatabase connects and returns the named database handle directly.
func NewWithDatabase(ctx context.Context, cfg Config) (*mongo.Database, error) {
	client, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.Database(cfg.Database), nil
}

// Healthcheck returns a liveness probe closure for /actuator/health.
func Healthcheck(client *mongo.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
}

// EnsureIndexes creates the indexes §6's persisted state layout requires.
// Safe to call on every startup: Mongo no-ops creating an index that already
// exists with the same keys.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	credentials := db.Collection(credentialMetadataCollection)
	if _, err := credentials.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "credentialId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create credentialId index: %w", err)
	}
	if _, err := credentials.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tisId", Value: 1}, {Key: "credentialType", Value: 1}, {Key: "revokedAt", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create tisId/credentialType/revokedAt index: %w", err)
	}

	fingerprints := db.Collection(recordFingerprintCollection)
	if _, err := fingerprints.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tisId", Value: 1}, {Key: "credentialType", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create tisId/credentialType index: %w", err)
	}
	return nil
}
