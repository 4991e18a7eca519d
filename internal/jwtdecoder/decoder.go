// Package jwtdecoder implements the JWT Decoder (C2): validate and parse
// gateway-issued JWTs against the gateway's JWKS endpoint, with key material
// memoised by certificate thumbprint (kid).
//
// Key fetch-and-cache is delegated to coreos/go-oidc/v3's oidc.RemoteKeySet,
// which already refreshes on an unknown kid and caches by kid internally;
// golang-jwt/jwt/v5 is used only to inspect the header (algorithm family
// gate) and to unmarshal the verified claim set into typed structs.
package jwtdecoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/hee-tis/credential-broker/internal/errors"
)

// Decoder validates JWTs issued by the credential gateway against its JWKS.
type Decoder struct {
	keySet *oidc.RemoteKeySet
}

// New creates a Decoder backed by the gateway's JWKS endpoint.
func New(ctx context.Context, jwksURL string) *Decoder {
	return &Decoder{keySet: oidc.NewRemoteKeySet(ctx, jwksURL)}
}

// Flush drops the RemoteKeySet's in-memory key cache by reconstructing it,
// used to implement the SIGHUP/TTL JWKS flush (§9).
func (d *Decoder) Flush(ctx context.Context, jwksURL string) {
	d.keySet = oidc.NewRemoteKeySet(ctx, jwksURL)
}

// allowedAlgs restricts verification to asymmetric families (§4.2); HS* is
// never accepted since the gateway signs with its own private key.
var allowedAlgs = map[string]bool{
	"RS256": true, "RS384": true, "RS512": true,
	"ES256": true, "ES384": true, "ES512": true,
}

// Decode verifies rawToken's signature against the JWKS and unmarshals its
// claims into claims (typically a *jwt.MapClaims or a typed claims struct).
// Any failure — malformed token, unknown kid after refresh, invalid
// signature, expiry, or a disallowed algorithm — surfaces uniformly as
// InvalidToken.
func (d *Decoder) Decode(ctx context.Context, rawToken string, claims interface{}) error {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	unverified, _, err := parser.ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return apperrors.InvalidToken(fmt.Errorf("parse header: %w", err))
	}

	alg, _ := unverified.Header["alg"].(string)
	if !allowedAlgs[alg] {
		return apperrors.InvalidToken(fmt.Errorf("unsupported algorithm %q", alg))
	}

	payload, err := d.keySet.VerifySignature(ctx, rawToken)
	if err != nil {
		return apperrors.InvalidToken(fmt.Errorf("verify signature: %w", err))
	}

	var rawClaims jwt.MapClaims
	if err := json.Unmarshal(payload, &rawClaims); err != nil {
		return apperrors.InvalidToken(fmt.Errorf("unmarshal claims: %w", err))
	}
	if err := checkExpiry(rawClaims); err != nil {
		return apperrors.InvalidToken(err)
	}

	if err := json.Unmarshal(payload, claims); err != nil {
		return apperrors.InvalidToken(fmt.Errorf("unmarshal claims: %w", err))
	}

	return nil
}

// checkExpiry rejects a token whose exp claim has passed.
func checkExpiry(claims jwt.MapClaims) error {
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return fmt.Errorf("token expired at %s", exp.Time)
	}
	return nil
}

// ExtractOriginJTI reads the origin_jti claim used throughout the broker as
// the stable session key (§3, §4.4).
func ExtractOriginJTI(claims jwt.MapClaims) (string, error) {
	v, ok := claims["origin_jti"]
	if !ok {
		return "", apperrors.InvalidToken(fmt.Errorf("missing origin_jti claim"))
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", apperrors.InvalidToken(fmt.Errorf("origin_jti claim is not a non-empty string"))
	}
	return s, nil
}

// ExtractTisID reads the custom:tisId claim (or its equivalent), used by the
// issuance service to identify the trainee (§4.6).
func ExtractTisID(claims jwt.MapClaims) (string, error) {
	for _, name := range []string{"custom:tisId", "tisId"} {
		if v, ok := claims[name]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s, nil
			}
		}
	}
	return "", apperrors.InvalidToken(fmt.Errorf("missing tisId claim"))
}
