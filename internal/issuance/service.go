// Package issuance implements the Issuance Service (C6): drives the
// credential issuance flow and persists metadata on a successful callback.
package issuance

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

// MetadataStore is the durable persistence contract C6 needs from C10.
type MetadataStore interface {
	Save(ctx context.Context, metadata models.CredentialMetadata) error
}

// FingerprintStore is the durable persistence contract C6 needs from C10 for
// RecordFingerprint maintenance on a freshly issued credential.
type FingerprintStore interface {
	MarkFresh(ctx context.Context, tisID string, credentialType models.CredentialType, at time.Time) error
}

// Service drives the issuance flow (§4.6).
type Service struct {
	store         *cache.Store
	decoder       *jwtdecoder.Decoder
	gatewayClient *gateway.Client
	metadata      MetadataStore
	fingerprints  FingerprintStore
	metadataTTL   time.Duration
	tokenSignKey  []byte
	redirectURI   string
}

// New builds an issuance Service.
func New(store *cache.Store, decoder *jwtdecoder.Decoder, gatewayClient *gateway.Client, metadata MetadataStore, fingerprints FingerprintStore, metadataTTL time.Duration, tokenSignKey []byte, redirectURI string) *Service {
	return &Service{
		store:         store,
		decoder:       decoder,
		gatewayClient: gatewayClient,
		metadata:      metadata,
		fingerprints:  fingerprints,
		metadataTTL:   metadataTTL,
		tokenSignKey:  tokenSignKey,
		redirectURI:   redirectURI,
	}
}

// StartIssuance extracts the trainee id from authToken, caches the pending
// issuance under a fresh state, builds and pushes a signed PAR request, and
// returns the gateway's PAR-backed authorize URI (§4.6 startIssuance).
func (s *Service) StartIssuance(ctx context.Context, authToken string, credential models.CredentialPayload, clientState string) (string, error) {
	var claims jwt.MapClaims
	if err := s.decoder.Decode(ctx, authToken, &claims); err != nil {
		return "", err
	}
	traineeID, err := jwtdecoder.ExtractTisID(claims)
	if err != nil {
		return "", err
	}

	state := uuid.NewString()
	nonce := uuid.NewString()

	codeVerifier, err := pkce.GenerateVerifier()
	if err != nil {
		return "", apperrors.Internal("generate code verifier", err)
	}
	codeChallenge := pkce.ChallengeFor(codeVerifier)

	cached := models.NewCachedCredentialPayload(credential)
	if err := s.store.PutWithTTL(ctx, cache.CacheCredentialPayload, state, cached, s.metadataTTL); err != nil {
		return "", apperrors.Internal("cache credential payload", err)
	}
	if err := s.store.PutWithTTL(ctx, cache.CacheTraineeID, state, traineeID, s.metadataTTL); err != nil {
		return "", apperrors.Internal("cache trainee id", err)
	}
	if clientState != "" {
		if err := s.store.PutWithTTL(ctx, cache.CacheClientState, state, clientState, s.metadataTTL); err != nil {
			return "", apperrors.Internal("cache client state", err)
		}
	}
	if err := s.store.PutWithTTL(ctx, cache.CacheCodeVerifier, state, codeVerifier, s.metadataTTL); err != nil {
		return "", apperrors.Internal("cache code verifier", err)
	}

	requestJWT, err := s.buildParRequest(credential, nonce, codeChallenge)
	if err != nil {
		return "", apperrors.Internal("build par request", err)
	}

	requestURI, err := s.gatewayClient.PushAuthorizationRequest(ctx, requestJWT)
	if err != nil {
		logger.Gateway().Warn().Err(err).Msg("par push failed")
		return "", apperrors.GatewayUnavailable(err)
	}

	return s.gatewayClient.AuthorizeV1URL(requestURI, state), nil
}

// buildParRequest signs the PAR request JWT per §4.6 step 4: scope, nonce,
// response_type, PKCE challenge, redirect_uri, credential content fields,
// and an expiry derived from the credential's own domain end date.
func (s *Service) buildParRequest(credential models.CredentialPayload, nonce, codeChallenge string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"scope":                 credential.IssuanceScope(),
		"nonce":                 nonce,
		"response_type":         "code",
		"code_challenge":        codeChallenge,
		"code_challenge_method": "S256",
		"redirect_uri":          s.redirectURI,
		"iat":                   now.Unix(),
		"exp":                   credential.ExpiresAt(now).Unix(),
	}
	for k, v := range credential.ContentClaims() {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.tokenSignKey)
}

// CompleteIssuance handles the issuance callback (§4.6 completeIssuance).
func (s *Service) CompleteIssuance(ctx context.Context, code, state string) string {
	var cached models.CachedCredentialPayload
	if err := s.store.TakeOnce(ctx, cache.CacheCredentialPayload, state, &cached); err != nil {
		return s.errorRedirect("unknown_state", "")
	}
	credential := cached.Payload()
	if credential == nil {
		return s.errorRedirect("unknown_state", "")
	}

	var traineeID string
	if err := s.store.TakeOnce(ctx, cache.CacheTraineeID, state, &traineeID); err != nil {
		return s.errorRedirect("unknown_state", "")
	}

	var clientState string
	_ = s.store.TakeOnce(ctx, cache.CacheClientState, state, &clientState)

	var codeVerifier string
	if err := s.store.TakeOnce(ctx, cache.CacheCodeVerifier, state, &codeVerifier); err != nil {
		return s.errorRedirect("no_code_verifier", clientState)
	}

	rawToken, err := s.gatewayClient.ExchangeToken(ctx, code, codeVerifier, s.redirectURI)
	if err != nil {
		logger.Gateway().Warn().Err(err).Msg("issuance token exchange failed")
		return s.errorRedirect("gateway_unavailable", clientState)
	}

	var tokenClaims jwt.MapClaims
	if err := s.decoder.Decode(ctx, rawToken, &tokenClaims); err != nil {
		return s.errorRedirect("invalid_token", clientState)
	}

	credentialID, issuedAt, err := extractIssuanceClaims(tokenClaims)
	if err != nil {
		return s.errorRedirect("invalid_token", clientState)
	}

	metadata := models.CredentialMetadata{
		CredentialID:   credentialID,
		CredentialType: credential.Type(),
		TisID:          credential.TisID(),
		TraineeID:      traineeID,
		IssuedAt:       issuedAt,
		ExpiresAt:      credential.ExpiresAt(issuedAt),
	}
	if err := s.metadata.Save(ctx, metadata); err != nil {
		logger.Gateway().Error().Err(err).Msg("persist credential metadata failed")
		return s.errorRedirect("persistence_error", clientState)
	}
	if err := s.fingerprints.MarkFresh(ctx, credential.TisID(), credential.Type(), issuedAt); err != nil {
		logger.Gateway().Error().Err(err).Msg("mark record fingerprint fresh failed")
	}
	logger.Gateway().Info().Str("credentialId", credentialID).Str("tisId", credential.TisID()).Msg("credential issued")

	return s.successRedirect(code, clientState)
}

// extractIssuanceClaims reads the gateway's serial-number claim (§4.6:
// "credentialId = claim.SerialNumber or gateway equivalent") and issued-at.
func extractIssuanceClaims(claims jwt.MapClaims) (credentialID string, issuedAt time.Time, err error) {
	for _, name := range []string{"SerialNumber", "serialNumber", "credentialId"} {
		if v, ok := claims[name]; ok {
			if s, ok := v.(string); ok && s != "" {
				credentialID = s
				break
			}
		}
	}
	if credentialID == "" {
		return "", time.Time{}, fmt.Errorf("missing SerialNumber claim")
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read iat claim: %w", err)
	}
	if iat == nil {
		return credentialID, time.Now(), nil
	}
	return credentialID, iat.Time, nil
}

func (s *Service) errorRedirect(reason, clientState string) string {
	uri := fmt.Sprintf("%s?error=%s", s.redirectURI, url.QueryEscape(reason))
	if clientState != "" {
		uri += "&state=" + url.QueryEscape(clientState)
	}
	return uri
}

func (s *Service) successRedirect(code, clientState string) string {
	params := url.Values{}
	params.Set("code", code)
	if clientState != "" {
		params.Set("state", clientState)
	}
	return s.redirectURI + "?" + params.Encode()
}
