package jwtdecoder

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestExtractOriginJTI_Success(t *testing.T) {
	claims := jwt.MapClaims{"origin_jti": "abc-123"}

	jti, err := ExtractOriginJTI(claims)
	assert.NoError(t, err)
	assert.Equal(t, "abc-123", jti)
}

func TestExtractOriginJTI_Missing(t *testing.T) {
	claims := jwt.MapClaims{}

	_, err := ExtractOriginJTI(claims)
	assert.Error(t, err)
}

func TestExtractOriginJTI_EmptyString(t *testing.T) {
	claims := jwt.MapClaims{"origin_jti": "   "}

	_, err := ExtractOriginJTI(claims)
	assert.Error(t, err)
}

func TestExtractTisID_CustomClaim(t *testing.T) {
	claims := jwt.MapClaims{"custom:tisId": "trainee-1"}

	id, err := ExtractTisID(claims)
	assert.NoError(t, err)
	assert.Equal(t, "trainee-1", id)
}

func TestExtractTisID_PlainClaim(t *testing.T) {
	claims := jwt.MapClaims{"tisId": "trainee-2"}

	id, err := ExtractTisID(claims)
	assert.NoError(t, err)
	assert.Equal(t, "trainee-2", id)
}

func TestExtractTisID_Missing(t *testing.T) {
	claims := jwt.MapClaims{}

	_, err := ExtractTisID(claims)
	assert.Error(t, err)
}

func TestAllowedAlgs(t *testing.T) {
	assert.True(t, allowedAlgs["RS256"])
	assert.True(t, allowedAlgs["ES384"])
	assert.False(t, allowedAlgs["HS256"])
	assert.False(t, allowedAlgs["none"])
}

func TestCheckExpiry_RejectsExpiredToken(t *testing.T) {
	claims := jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}

	err := checkExpiry(claims)
	assert.Error(t, err)
}

func TestCheckExpiry_AcceptsFutureExpiry(t *testing.T) {
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}

	err := checkExpiry(claims)
	assert.NoError(t, err)
}

// Decode applies this same check regardless of the destination type passed
// in: it reads exp from the verified payload itself before unmarshalling
// into the caller's claims, rather than type-switching on *jwt.MapClaims.
// GatewayIdentityClaims (the destination identity.Service decodes the
// verification callback's ID token into) carries no exp field of its own,
// so that check must not be skipped just because the destination is typed.
func TestCheckExpiry_MissingExpIsAccepted(t *testing.T) {
	claims := jwt.MapClaims{}

	err := checkExpiry(claims)
	assert.NoError(t, err)
}
