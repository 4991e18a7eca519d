// Package signing implements the Signed-Data Filter (C3): HMAC-SHA256
// verification of inbound write-endpoint payloads, with a cross-check
// against revocation history for issuance requests.
//
// Canonicalisation is deliberately stdlib-only: encoding/json already
// serialises a map[string]any with its keys in sorted order and no
// insignificant whitespace, which is exactly the deterministic form the
// signer and verifier must agree on (§9). No pack library does canonical
// JSON, and reaching for one here to replace a guarantee the standard
// library already provides would be the wrong trade.
package signing

import "encoding/json"

// Canonicalize returns the deterministic JSON serialisation of body: sorted
// keys, no insignificant whitespace. body must not contain the "signature"
// field — callers strip it before calling this.
func Canonicalize(body map[string]interface{}) ([]byte, error) {
	return json.Marshal(body)
}
