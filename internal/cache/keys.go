// Package cache: logical cache names and key helpers.
//
// Key Naming Convention:
//   - Format: {cache}:{identifier}
//   - Example: verified-session:3f9a...  (origin_jti)
package cache

// Names of the logical caches partitioned within the Store. TTL is supplied
// per-call by the caller (§6: verification-request / verified-session /
// credential-metadata), not looked up by cache name — the same entity cache
// (e.g. client-state) is written under different TTLs depending on whether
// it belongs to the verification or the issuance flow.
const (
	CacheIdentityData      = "identity-data"
	CacheClientState       = "client-state"
	CacheCodeVerifier      = "code-verifier"
	CacheUnverifiedSession = "unverified-session"
	CacheVerifiedSession   = "verified-session"
	CacheJWKS              = "jwks"
	CacheCredentialPayload = "credential-payload"
	CacheTraineeID         = "trainee-id"
)

// JWKSSingletonKey is a fixed key name in the jwks cache. Nothing is written
// under it: the JWT decoder keeps JWKS keys in memory, and the jwks cache is
// only ever flushed (on SIGHUP).
const JWKSSingletonKey = "gateway"
