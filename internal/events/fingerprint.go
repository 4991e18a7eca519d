package events

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/hee-tis/credential-broker/internal/models"
)

// fieldSeparator joins salient fields before hashing. \x1f (unit separator)
// can't appear in any of the source values, so it can't introduce a
// collision the way a printable delimiter could.
const fieldSeparator = "\x1f"

// placementSalientFields is the field order §6 defines for update-placement
// messages.
var placementSalientFields = []string{"specialty", "grade", "nationalPostNumber", "employingBody", "site", "startDate", "endDate"}

// programmeSalientFields is the field order §6 defines for
// update-programme-membership messages.
var programmeSalientFields = []string{"programmeName", "programmeStartDate", "programmeEndDate"}

// contentFingerprint computes MD5(concat(orderedSalientFields)) (§4.8) from a
// raw {field: value} map, using fieldOrder to pick and order the values.
// Missing fields contribute an empty string, keeping the hash stable even if
// a producer omits an optional field.
func contentFingerprint(fieldOrder []string, data map[string]string) string {
	ordered := make([]string, len(fieldOrder))
	for i, field := range fieldOrder {
		ordered[i] = data[field]
	}
	sum := md5.Sum([]byte(strings.Join(ordered, fieldSeparator)))
	return hex.EncodeToString(sum[:])
}

// salientFieldOrder returns the §6 field order for a credential type.
func salientFieldOrder(credentialType models.CredentialType) []string {
	if credentialType == models.CredentialTypeProgrammeMembership {
		return programmeSalientFields
	}
	return placementSalientFields
}
