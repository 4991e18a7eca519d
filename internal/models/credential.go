package models

import "time"

// CredentialType names the two issuable credential kinds (§3).
type CredentialType string

const (
	CredentialTypePlacement           CredentialType = "Placement"
	CredentialTypeProgrammeMembership CredentialType = "ProgrammeMembership"
)

// CredentialPayload is the tagged-variant interface credential payloads
// implement, per §9: no inheritance, no runtime reflection — just a common
// contract over the two concrete request shapes.
type CredentialPayload interface {
	TisID() string
	Type() CredentialType
	IssuanceScope() string
	ExpiresAt(issuedAt time.Time) time.Time

	// ContentClaims returns the credential's domain fields as PAR request
	// claims (§4.6 step 4: "credential content fields").
	ContentClaims() map[string]interface{}
}

// PlacementPayload is the credential payload for a Training Placement.
type PlacementPayload struct {
	TisId              string `json:"tisId" validate:"required"`
	Specialty          string `json:"specialty" validate:"required"`
	Grade              string `json:"grade" validate:"required"`
	NationalPostNumber string `json:"nationalPostNumber"`
	EmployingBody      string `json:"employingBody" validate:"required"`
	Site               string `json:"site" validate:"required"`
	StartDate          string `json:"startDate" validate:"required,isodate"`
	EndDate            string `json:"endDate" validate:"required,isodate"`
}

func (p PlacementPayload) TisID() string             { return p.TisId }
func (p PlacementPayload) Type() CredentialType       { return CredentialTypePlacement }
func (p PlacementPayload) IssuanceScope() string      { return "issue.Placement" }
func (p PlacementPayload) ExpiresAt(issuedAt time.Time) time.Time {
	return endOfDayUTC(p.EndDate, issuedAt)
}

// SalientFields is the ordered field list whose concatenation the
// revocation event fingerprint (§6) is computed over.
func (p PlacementPayload) SalientFields() []string {
	return []string{p.Specialty, p.Grade, p.NationalPostNumber, p.EmployingBody, p.Site, p.StartDate, p.EndDate}
}

func (p PlacementPayload) ContentClaims() map[string]interface{} {
	return map[string]interface{}{
		"tisId":              p.TisId,
		"specialty":          p.Specialty,
		"grade":              p.Grade,
		"nationalPostNumber": p.NationalPostNumber,
		"employingBody":      p.EmployingBody,
		"site":               p.Site,
		"startDate":          p.StartDate,
		"endDate":            p.EndDate,
	}
}

// ProgrammeMembershipPayload is the credential payload for a Training
// Programme Membership.
type ProgrammeMembershipPayload struct {
	TisId              string `json:"tisId" validate:"required"`
	ProgrammeName      string `json:"programmeName" validate:"required"`
	ProgrammeStartDate string `json:"programmeStartDate" validate:"required,isodate"`
	ProgrammeEndDate   string `json:"programmeEndDate" validate:"required,isodate"`
}

func (p ProgrammeMembershipPayload) TisID() string        { return p.TisId }
func (p ProgrammeMembershipPayload) Type() CredentialType { return CredentialTypeProgrammeMembership }
func (p ProgrammeMembershipPayload) IssuanceScope() string {
	return "issue.ProgrammeMembership"
}
func (p ProgrammeMembershipPayload) ExpiresAt(issuedAt time.Time) time.Time {
	return endOfDayUTC(p.ProgrammeEndDate, issuedAt)
}

// SalientFields is the ordered field list for the revocation fingerprint.
func (p ProgrammeMembershipPayload) SalientFields() []string {
	return []string{p.ProgrammeName, p.ProgrammeStartDate, p.ProgrammeEndDate}
}

func (p ProgrammeMembershipPayload) ContentClaims() map[string]interface{} {
	return map[string]interface{}{
		"tisId":              p.TisId,
		"programmeName":      p.ProgrammeName,
		"programmeStartDate": p.ProgrammeStartDate,
		"programmeEndDate":   p.ProgrammeEndDate,
	}
}

func endOfDayUTC(isoDate string, fallback time.Time) time.Time {
	d, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return fallback
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC)
}

// CredentialMetadata is the durable ledger entry for an issued credential (§3, C10).
type CredentialMetadata struct {
	CredentialID   string         `bson:"credentialId" json:"credentialId"`
	CredentialType CredentialType `bson:"credentialType" json:"credentialType"`
	TisID          string         `bson:"tisId" json:"tisId"`
	TraineeID      string         `bson:"traineeId" json:"traineeId"`
	IssuedAt       time.Time      `bson:"issuedAt" json:"issuedAt"`
	ExpiresAt      time.Time      `bson:"expiresAt" json:"expiresAt"`
	RevokedAt      *time.Time     `bson:"revokedAt,omitempty" json:"revokedAt,omitempty"`

	// RevocationPending marks a credential whose gateway revoke call
	// exhausted its retries (§4.7 step 4); left for out-of-band reconciliation.
	RevocationPending bool `bson:"revocationPending,omitempty" json:"revocationPending,omitempty"`
}

// CachedCredentialPayload is CredentialPayload's wire form for the cache
// (§9: tagged variant, not inheritance/reflection) — interfaces can't be
// JSON-unmarshalled directly, so the concrete variant is carried alongside
// its type tag and recovered by Payload().
type CachedCredentialPayload struct {
	Type      CredentialType              `json:"type"`
	Placement *PlacementPayload           `json:"placement,omitempty"`
	Programme *ProgrammeMembershipPayload `json:"programme,omitempty"`
}

// NewCachedCredentialPayload wraps a concrete payload for storage.
func NewCachedCredentialPayload(payload CredentialPayload) CachedCredentialPayload {
	switch p := payload.(type) {
	case PlacementPayload:
		return CachedCredentialPayload{Type: CredentialTypePlacement, Placement: &p}
	case ProgrammeMembershipPayload:
		return CachedCredentialPayload{Type: CredentialTypeProgrammeMembership, Programme: &p}
	default:
		return CachedCredentialPayload{}
	}
}

// Payload recovers the concrete CredentialPayload, or nil if empty/corrupt.
func (c CachedCredentialPayload) Payload() CredentialPayload {
	switch c.Type {
	case CredentialTypePlacement:
		if c.Placement == nil {
			return nil
		}
		return *c.Placement
	case CredentialTypeProgrammeMembership:
		if c.Programme == nil {
			return nil
		}
		return *c.Programme
	default:
		return nil
	}
}

// RevocationEvent is the payload C9 publishes to the SNS revocation topic
// (§4.9), one per revoked credential, FIFO-ordered by CredentialID.
type RevocationEvent struct {
	CredentialID   string         `json:"credentialId"`
	CredentialType CredentialType `json:"credentialType"`
	IssuedAt       time.Time      `json:"issuedAt"`
	RevokedAt      *time.Time     `json:"revokedAt,omitempty"`
	TraineeID      string         `json:"traineeId"`
}

// RecordFingerprint tracks the last known content hash for a (tisId,
// credentialType) pair, read by C3 to reject stale-signed requests (§3, §4.3).
type RecordFingerprint struct {
	TisID                   string         `bson:"tisId" json:"tisId"`
	CredentialType          CredentialType `bson:"credentialType" json:"credentialType"`
	LastModifiedContentHash string         `bson:"lastModifiedContentHash" json:"lastModifiedContentHash"`
	LastModifiedAt          time.Time      `bson:"lastModifiedAt" json:"lastModifiedAt"`
}
