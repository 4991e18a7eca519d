// Package identity implements the Verification Service (C5): the identity
// verification flow and its fuzzy name-matching algorithm.
//
// Name matching uses Double Metaphone (phonetic encoding) plus Levenshtein
// distance, both from antzucaro/matchr. This library is named, not grounded:
// no repo in the retrieval pack does phonetic string matching, so there is
// nothing to imitate the shape of — matchr is a focused, widely used Go
// library for exactly this algorithm pair. Case-folding uses
// golang.org/x/text/cases.
package identity

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/cases"
)

var splitPattern = regexp.MustCompile(`[- ]`)

// candidateSet builds {claimValue} ∪ split(claimValue, "[- ]"), preserving
// first-seen order and de-duplicating (§4.5).
func candidateSet(claimValue string) []string {
	seen := make(map[string]bool)
	var candidates []string

	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		candidates = append(candidates, s)
	}

	add(claimValue)
	for _, part := range splitPattern.Split(claimValue, -1) {
		add(part)
	}
	return candidates
}

// nameMatchResult is the per-field verdict §4.5 asks for.
type nameMatchResult struct {
	Valid            bool
	PhoneticAccuracy float64
	TextAccuracy     float64
	BestCandidate    string
}

var fold = cases.Fold()

// verifyName implements §4.5's per-field comparison between the server-held
// name and the claim returned by the gateway.
func verifyName(serverValue, claimValue string) nameMatchResult {
	candidates := candidateSet(claimValue)

	serverDM, _ := matchr.DoubleMetaphone(serverValue)
	serverFolded := fold.String(serverValue)

	var best nameMatchResult
	bestSet := false

	for _, candidate := range candidates {
		candidateDM, _ := matchr.DoubleMetaphone(candidate)
		phoneticAccuracy := similarity(serverDM, candidateDM)

		candidateFolded := fold.String(candidate)
		textAccuracy := similarity(serverFolded, candidateFolded)

		threshold := 0.8
		if phoneticAccuracy == 1.0 {
			threshold = 0.5
		}
		valid := textAccuracy >= threshold

		if !bestSet || better(phoneticAccuracy, textAccuracy, best.PhoneticAccuracy, best.TextAccuracy) {
			best = nameMatchResult{
				Valid:            valid,
				PhoneticAccuracy: phoneticAccuracy,
				TextAccuracy:     textAccuracy,
				BestCandidate:    candidate,
			}
			bestSet = true
		}
	}

	return best
}

// better reports whether (phoneticA, textA) outranks (phoneticB, textB),
// comparing phoneticAccuracy first, then textAccuracy as the tiebreaker.
func better(phoneticA, textA, phoneticB, textB float64) bool {
	if phoneticA != phoneticB {
		return phoneticA > phoneticB
	}
	return textA > textB
}

// similarity computes 1 − L(a, b) / max(|a|, |b|); two empty strings are
// considered identical.
func similarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	distance := matchr.Levenshtein(a, b)
	return 1.0 - float64(distance)/float64(maxLen)
}

// MatchIdentity implements the overall "identity match" predicate (§4.5):
// both name fields valid, exact date-of-birth equality, and a non-empty
// UniqueIdentifier.
func MatchIdentity(serverForenames, serverSurname, serverDOB string, claimForenames, claimSurname, claimDOB, uniqueIdentifier string) bool {
	if strings.TrimSpace(uniqueIdentifier) == "" {
		return false
	}
	if serverDOB != claimDOB {
		return false
	}
	forenameMatch := verifyName(serverForenames, claimForenames)
	surnameMatch := verifyName(serverSurname, claimSurname)
	return forenameMatch.Valid && surnameMatch.Valid
}
