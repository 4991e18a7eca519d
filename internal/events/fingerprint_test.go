package events

import (
	"testing"

	"github.com/hee-tis/credential-broker/internal/models"
)

func TestContentFingerprint_StableForIdenticalInput(t *testing.T) {
	data := map[string]string{
		"specialty":          "Cardiology",
		"grade":              "ST3",
		"nationalPostNumber": "NPN1",
		"employingBody":      "NHS Trust",
		"site":               "Main Hospital",
		"startDate":          "2025-08-01",
		"endDate":            "2026-07-31",
	}

	a := contentFingerprint(salientFieldOrder(models.CredentialTypePlacement), data)
	b := contentFingerprint(salientFieldOrder(models.CredentialTypePlacement), data)

	if a != b {
		t.Fatalf("fingerprint not stable: %q != %q", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char hex MD5 digest, got %d chars: %q", len(a), a)
	}
}

func TestContentFingerprint_ChangesWhenSalientFieldChanges(t *testing.T) {
	base := map[string]string{
		"specialty":          "Cardiology",
		"grade":              "ST3",
		"nationalPostNumber": "NPN1",
		"employingBody":      "NHS Trust",
		"site":               "Main Hospital",
		"startDate":          "2025-08-01",
		"endDate":            "2026-07-31",
	}
	changed := map[string]string{}
	for k, v := range base {
		changed[k] = v
	}
	changed["grade"] = "ST4"

	order := salientFieldOrder(models.CredentialTypePlacement)
	if contentFingerprint(order, base) == contentFingerprint(order, changed) {
		t.Fatal("expected fingerprint to change when a salient field changes")
	}
}

func TestContentFingerprint_IgnoresNonSalientFields(t *testing.T) {
	order := salientFieldOrder(models.CredentialTypeProgrammeMembership)
	data := map[string]string{
		"programmeName":      "Internal Medicine",
		"programmeStartDate": "2025-08-01",
		"programmeEndDate":   "2027-07-31",
		"tisId":              "irrelevant-for-the-hash",
	}
	withoutExtra := map[string]string{
		"programmeName":      "Internal Medicine",
		"programmeStartDate": "2025-08-01",
		"programmeEndDate":   "2027-07-31",
	}

	if contentFingerprint(order, data) != contentFingerprint(order, withoutExtra) {
		t.Fatal("expected fingerprint to ignore fields outside the salient order")
	}
}

func TestSalientFieldOrder_PicksOrderByCredentialType(t *testing.T) {
	if len(salientFieldOrder(models.CredentialTypePlacement)) != 7 {
		t.Fatal("expected 7 placement salient fields")
	}
	if len(salientFieldOrder(models.CredentialTypeProgrammeMembership)) != 3 {
		t.Fatal("expected 3 programme membership salient fields")
	}
}
