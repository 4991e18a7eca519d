// Package config loads the broker's configuration from the environment once
// at process start, following the loader shape documented by
// dmitrymomot/foundation's core/config package (env-tag struct, optional
// .env file loaded first, panic-on-failure variant for startup).
package config

import (
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the broker's full process configuration, loaded once from the
// environment (§6).
type Config struct {
	// HTTP server
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool  `env:"LOG_PRETTY" envDefault:"false"`

	// Mongo (credential metadata + record fingerprint store, C10)
	MongoHost            string `env:"MONGO_HOST,required"`
	MongoPort            string `env:"MONGO_PORT" envDefault:"27017"`
	MongoUser            string `env:"MONGO_USER"`
	MongoPassword        string `env:"MONGO_PASSWORD"`
	MongoDatabase        string `env:"MONGO_DATABASE" envDefault:"credential_broker"`
	MongoConnectTimeout  int    `env:"MONGO_CONNECT_TIMEOUT_SECONDS" envDefault:"10"`
	MongoRetryAttempts   int    `env:"MONGO_RETRY_ATTEMPTS" envDefault:"3"`
	MongoRetryIntervalMS int    `env:"MONGO_RETRY_INTERVAL_MS" envDefault:"5000"`

	// Redis (caching delegate, C1)
	RedisHost     string `env:"REDIS_HOST,required"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisUsername string `env:"REDIS_USERNAME"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisSSL      bool   `env:"REDIS_SSL" envDefault:"false"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Credential gateway (external collaborator)
	GatewayHost                 string `env:"GATEWAY_HOST,required"`
	GatewayClientID             string `env:"GATEWAY_CLIENT_ID,required"`
	GatewayClientSecret         string `env:"GATEWAY_CLIENT_SECRET,required"`
	GatewayTokenSigningKey      string `env:"GATEWAY_TOKEN_SIGNING_KEY,required"`
	GatewayIssuingRedirectURI   string `env:"GATEWAY_ISSUING_REDIRECT_URI,required"`
	GatewayVerifyRedirectURI    string `env:"GATEWAY_VERIFICATION_REDIRECT_URI,required"`
	GatewayRequestTimeoutSeconds int   `env:"GATEWAY_REQUEST_TIMEOUT_SECONDS" envDefault:"10"`

	// HMAC request signing (C3)
	SignatureSecretKey string `env:"SIGNATURE_SECRET_KEY,required"`

	// Event transport (C8/C9)
	AWSRegion                       string `env:"AWS_REGION,required"`
	RevocationTopicARN              string `env:"REVOCATION_TOPIC_ARN,required"`
	DeletePlacementQueueURL         string `env:"DELETE_PLACEMENT_QUEUE_URL,required"`
	DeleteProgrammeMembershipQueueURL string `env:"DELETE_PROGRAMME_MEMBERSHIP_QUEUE_URL,required"`
	UpdatePlacementQueueURL         string `env:"UPDATE_PLACEMENT_QUEUE_URL,required"`
	UpdateProgrammeMembershipQueueURL string `env:"UPDATE_PROGRAMME_MEMBERSHIP_QUEUE_URL,required"`

	// Cache TTLs, seconds (C1). cmd/broker passes UnverifiedSessionTTLSeconds
	// for every verification-flow entry, CodeVerifierTTLSeconds for every
	// issuance-flow entry and VerifiedSessionTTLSeconds for verified sessions;
	// ClientStateTTLSeconds and JWKSTTLSeconds are not read.
	ClientStateTTLSeconds       int `env:"CLIENT_STATE_TTL_SECONDS" envDefault:"300"`
	CodeVerifierTTLSeconds      int `env:"CODE_VERIFIER_TTL_SECONDS" envDefault:"300"`
	UnverifiedSessionTTLSeconds int `env:"UNVERIFIED_SESSION_TTL_SECONDS" envDefault:"300"`
	VerifiedSessionTTLSeconds   int `env:"VERIFIED_SESSION_TTL_SECONDS" envDefault:"600"`
	JWKSTTLSeconds              int `env:"JWKS_TTL_SECONDS" envDefault:"600"`

	// Key prefix. Not applied: cache keys are namespaced by logical cache
	// name only ({cache}:{identifier}).
	CacheKeyPrefix string `env:"CACHE_KEY_PREFIX" envDefault:"credential-broker"`

	// Identity match thresholds. Not read: internal/identity uses fixed
	// text-accuracy thresholds of 0.5 (exact phonetic match) and 0.8 (otherwise).
	PhoneticAccuracyThreshold float64 `env:"PHONETIC_ACCURACY_THRESHOLD" envDefault:"0.8"`
	TextAccuracyThreshold     float64 `env:"TEXT_ACCURACY_THRESHOLD" envDefault:"0.7"`
}

var (
	once     sync.Once
	loaded   Config
	loadErr  error
)

// Load parses the process environment into a Config, loading a local .env
// file first if one is present. The result is cached: subsequent calls
// return the same value without re-parsing the environment.
func Load() (Config, error) {
	once.Do(func() {
		_ = godotenv.Load() // optional; absence is not an error

		var cfg Config
		if err := env.Parse(&cfg); err != nil {
			loadErr = fmt.Errorf("parse config: %w", err)
			return
		}
		loaded = cfg
	})
	return loaded, loadErr
}

// MustLoad loads the configuration and panics on failure. Intended for use
// at process startup in cmd/broker/main.go, where there is no sensible
// degraded mode to fall back to.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
