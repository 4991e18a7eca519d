package signing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_SortsKeys(t *testing.T) {
	body := map[string]interface{}{"b": 1, "a": 2, "c": 3}

	out, err := Canonicalize(body)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(out))
}

func TestSignThenVerify_RoundTrips(t *testing.T) {
	secret := []byte("shared-secret")
	now := time.Now().UTC().Truncate(time.Second)

	body := map[string]interface{}{"tisId": "T-1", "forenames": "Anne"}
	hmacVal, err := Sign(secret, body)
	require.NoError(t, err)

	body["signature"] = map[string]interface{}{
		"hmac":       hmacVal,
		"signedAt":   now.Add(-time.Minute),
		"validUntil": now.Add(time.Hour),
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	parsed, env, err := Verify(secret, raw, now)
	require.NoError(t, err)
	assert.Equal(t, "T-1", parsed["tisId"])
	assert.Equal(t, hmacVal, env.HMAC)
}

func TestVerify_RejectsTamperedBody(t *testing.T) {
	secret := []byte("shared-secret")
	now := time.Now().UTC()

	body := map[string]interface{}{"tisId": "T-1"}
	hmacVal, err := Sign(secret, body)
	require.NoError(t, err)

	body["tisId"] = "T-2" // tamper after signing
	body["signature"] = map[string]interface{}{
		"hmac":       hmacVal,
		"signedAt":   now.Add(-time.Minute),
		"validUntil": now.Add(time.Hour),
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	_, _, err = Verify(secret, raw, now)
	assert.Error(t, err)
}

func TestVerify_RejectsOutsideValidityWindow(t *testing.T) {
	secret := []byte("shared-secret")
	now := time.Now().UTC()

	body := map[string]interface{}{"tisId": "T-1"}
	hmacVal, err := Sign(secret, body)
	require.NoError(t, err)

	body["signature"] = map[string]interface{}{
		"hmac":       hmacVal,
		"signedAt":   now.Add(-time.Hour),
		"validUntil": now.Add(-time.Minute), // already expired
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	_, _, err = Verify(secret, raw, now)
	assert.Error(t, err)
}

func TestVerify_AcceptsSignedAtEqualToNow(t *testing.T) {
	secret := []byte("shared-secret")
	now := time.Now().UTC()

	body := map[string]interface{}{"tisId": "T-1"}
	hmacVal, err := Sign(secret, body)
	require.NoError(t, err)

	body["signature"] = map[string]interface{}{
		"hmac":       hmacVal,
		"signedAt":   now,
		"validUntil": now.Add(time.Minute),
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	_, _, err = Verify(secret, raw, now)
	assert.NoError(t, err)
}

func TestVerify_RejectsMissingSignature(t *testing.T) {
	raw, err := json.Marshal(map[string]interface{}{"tisId": "T-1"})
	require.NoError(t, err)

	_, _, err = Verify([]byte("secret"), raw, time.Now())
	assert.Error(t, err)
}

func TestVerify_WrongSecretFails(t *testing.T) {
	now := time.Now().UTC()
	body := map[string]interface{}{"tisId": "T-1"}
	hmacVal, err := Sign([]byte("correct-secret"), body)
	require.NoError(t, err)

	body["signature"] = map[string]interface{}{
		"hmac":       hmacVal,
		"signedAt":   now.Add(-time.Minute),
		"validUntil": now.Add(time.Hour),
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	_, _, err = Verify([]byte("wrong-secret"), raw, now)
	assert.Error(t, err)
}
