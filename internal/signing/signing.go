package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/hee-tis/credential-broker/internal/errors"
)

// Envelope is the {hmac, signedAt, validUntil} object carried under the
// request body's "signature" field (§4.3).
type Envelope struct {
	HMAC       string    `json:"hmac"`
	SignedAt   time.Time `json:"signedAt"`
	ValidUntil time.Time `json:"validUntil"`
}

// Sign computes the HMAC-SHA256 over body's canonical serialisation (with
// "signature" absent), keyed by secret. It is the inverse of Verify and is
// used by tests and by any internal caller that needs to produce a signed
// envelope.
func Sign(secret []byte, body map[string]interface{}) (string, error) {
	stripped := stripSignature(body)
	canonical, err := Canonicalize(stripped)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks that rawBody parses as JSON with a signature envelope, that
// the envelope's validity window covers now, and that the HMAC matches (§4.3
// rules 1-3). It returns the parsed body (signature field intact) on success.
func Verify(secret []byte, rawBody []byte, now time.Time) (map[string]interface{}, *Envelope, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, nil, apperrors.SignatureInvalid("request body is not valid JSON")
	}

	sigRaw, ok := body["signature"]
	if !ok {
		return nil, nil, apperrors.SignatureInvalid("missing signature object")
	}
	sigBytes, err := json.Marshal(sigRaw)
	if err != nil {
		return nil, nil, apperrors.SignatureInvalid("malformed signature object")
	}
	var env Envelope
	if err := json.Unmarshal(sigBytes, &env); err != nil {
		return nil, nil, apperrors.SignatureInvalid("malformed signature object")
	}

	if !(!now.Before(env.SignedAt) && now.Before(env.ValidUntil)) {
		return nil, nil, apperrors.SignatureInvalid("signature outside its validity window")
	}

	stripped := stripSignature(body)
	canonical, err := Canonicalize(stripped)
	if err != nil {
		return nil, nil, apperrors.SignatureInvalid("unable to canonicalize request body")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(canonical)
	expected := mac.Sum(nil)

	given, err := hex.DecodeString(env.HMAC)
	if err != nil || !hmac.Equal(expected, given) {
		return nil, nil, apperrors.SignatureInvalid("hmac does not match")
	}

	return body, &env, nil
}

func stripSignature(body map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		if k == "signature" {
			continue
		}
		out[k] = v
	}
	return out
}
