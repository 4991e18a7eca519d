package identity

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hee-tis/credential-broker/internal/cache"
	apperrors "github.com/hee-tis/credential-broker/internal/errors"
	"github.com/hee-tis/credential-broker/internal/gateway"
	"github.com/hee-tis/credential-broker/internal/jwtdecoder"
	"github.com/hee-tis/credential-broker/internal/logger"
	"github.com/hee-tis/credential-broker/internal/models"
	"github.com/hee-tis/credential-broker/internal/pkce"
)

// Service drives the identity verification flow (C5).
type Service struct {
	store         *cache.Store
	decoder       *jwtdecoder.Decoder
	gatewayClient *gateway.Client
	verifyTTL     time.Duration
	sessionTTL    time.Duration
	redirectURI   string
}

// New builds a verification Service.
func New(store *cache.Store, decoder *jwtdecoder.Decoder, gatewayClient *gateway.Client, verifyTTL, sessionTTL time.Duration, redirectURI string) *Service {
	return &Service{
		store:         store,
		decoder:       decoder,
		gatewayClient: gatewayClient,
		verifyTTL:     verifyTTL,
		sessionTTL:    sessionTTL,
		redirectURI:   redirectURI,
	}
}

// Start mints a fresh nonce/state pair, caches the identity data submitted
// by the caller, and returns the gateway authorize URI (§4.5 start).
func (s *Service) Start(ctx context.Context, authToken string, data models.IdentityData, clientState string) (string, error) {
	var claims jwt.MapClaims
	if err := s.decoder.Decode(ctx, authToken, &claims); err != nil {
		return "", err
	}
	originJTI, err := jwtdecoder.ExtractOriginJTI(claims)
	if err != nil {
		return "", err
	}

	nonce := uuid.NewString()
	state := uuid.NewString()

	codeVerifier, err := pkce.GenerateVerifier()
	if err != nil {
		return "", apperrors.Internal("generate code verifier", err)
	}
	codeChallenge := pkce.ChallengeFor(codeVerifier)

	if err := s.store.PutWithTTL(ctx, cache.CacheIdentityData, nonce, data, s.verifyTTL); err != nil {
		return "", apperrors.Internal("cache identity data", err)
	}
	if err := s.store.PutWithTTL(ctx, cache.CacheUnverifiedSession, nonce, originJTI, s.verifyTTL); err != nil {
		return "", apperrors.Internal("cache unverified session", err)
	}
	if clientState != "" {
		if err := s.store.PutWithTTL(ctx, cache.CacheClientState, state, clientState, s.verifyTTL); err != nil {
			return "", apperrors.Internal("cache client state", err)
		}
	}
	if err := s.store.PutWithTTL(ctx, cache.CacheCodeVerifier, state, codeVerifier, s.verifyTTL); err != nil {
		return "", apperrors.Internal("cache code verifier", err)
	}

	params := url.Values{}
	params.Set("nonce", nonce)
	params.Set("state", state)
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "S256")
	params.Set("scope", "openid Identity")
	params.Set("redirect_uri", s.redirectURI)

	return s.gatewayClient.AuthorizeURL(params), nil
}

// Complete handles the verification callback (§4.5 complete).
func (s *Service) Complete(ctx context.Context, code, state, gatewayErr, gatewayErrDescription string) string {
	if gatewayErr != "" {
		var clientState string
		_ = s.store.TakeOnce(ctx, cache.CacheClientState, state, &clientState)
		return invalidCredentialURI(gatewayErrDescription, clientState)
	}

	reason, ok := s.completeExchange(ctx, code, state)

	var clientState string
	_ = s.store.TakeOnce(ctx, cache.CacheClientState, state, &clientState)

	if ok {
		return successURI(clientState)
	}
	return invalidCredentialURI(reason, clientState)
}

// completeExchange runs the token exchange, claim validation, and identity
// match that determine Complete's outcome, independent of client-state
// bookkeeping (which must run on every path regardless of outcome).
func (s *Service) completeExchange(ctx context.Context, code, state string) (reason string, ok bool) {
	var codeVerifier string
	if err := s.store.TakeOnce(ctx, cache.CacheCodeVerifier, state, &codeVerifier); err != nil {
		return "no_code_verifier", false
	}

	rawToken, err := s.gatewayClient.ExchangeToken(ctx, code, codeVerifier, s.redirectURI)
	if err != nil {
		logger.Security().Warn().Err(err).Msg("identity token exchange failed")
		return "gateway_unavailable", false
	}

	var claims models.GatewayIdentityClaims
	if err := s.decoder.Decode(ctx, rawToken, &claims); err != nil {
		return "invalid_token", false
	}

	if !hasOpenIDIdentityScope(claims.Scope) {
		return "unsupported_scope", false
	}

	if !s.runIdentityMatch(ctx, claims.Nonce, claims) {
		return "identity_verification_failed", false
	}
	return "", true
}

// runIdentityMatch looks up the cached IdentityData for the nonce carried in
// the gateway's claims (the nonce minted at Start, which also keys the
// unverified-session entry), runs the fuzzy match, and on success establishes the verified
// session. It returns true iff the match succeeded and the verified session
// was durably recorded.
func (s *Service) runIdentityMatch(ctx context.Context, nonce string, claims models.GatewayIdentityClaims) bool {
	var data models.IdentityData
	if err := s.store.TakeOnce(ctx, cache.CacheIdentityData, nonce, &data); err != nil {
		return false
	}

	if !MatchIdentity(data.Forenames, data.Surname, data.DateOfBirth,
		claims.Forenames, claims.Surname, claims.DateOfBirth, claims.UniqueIdentifier) {
		return false
	}

	var originJTI string
	tookOK := s.store.TakeOnce(ctx, cache.CacheUnverifiedSession, nonce, &originJTI) == nil
	if !tookOK {
		// Open Question (a): the unverified-session entry already expired.
		// Fail closed rather than silently succeeding without ever
		// establishing a verified session.
		return false
	}

	record := models.VerifiedSessionRecord{UniqueIdentifier: claims.UniqueIdentifier, VerifiedAt: time.Now()}
	if err := s.store.PutWithTTL(ctx, cache.CacheVerifiedSession, originJTI, record, s.sessionTTL); err != nil {
		logger.Security().Error().Err(err).Msg("failed to persist verified session")
		return false
	}
	return true
}

func hasOpenIDIdentityScope(scope string) bool {
	const prefix = "openid "
	const suffix = "Identity"
	if len(scope) < len(prefix) || scope[:len(prefix)] != prefix {
		return false
	}
	return scope[len(scope)-len(suffix):] == suffix
}

func invalidCredentialURI(reason, clientState string) string {
	uri := fmt.Sprintf("/invalid-credential?reason=%s", url.QueryEscape(reason))
	if clientState != "" {
		uri += "&state=" + url.QueryEscape(clientState)
	}
	return uri
}

func successURI(clientState string) string {
	if clientState == "" {
		return "/credential-verified"
	}
	return "/credential-verified?state=" + url.QueryEscape(clientState)
}
