package identity

import "testing"

func TestCandidateSet_SplitsOnHyphenAndSpace(t *testing.T) {
	got := candidateSet("Anne-Marie")
	want := []string{"Anne-Marie", "Anne", "Marie"}
	if len(got) != len(want) {
		t.Fatalf("candidateSet() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidateSet()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCandidateSet_DedupesPreservingOrder(t *testing.T) {
	got := candidateSet("Jo Jo")
	want := []string{"Jo Jo", "Jo"}
	if len(got) != len(want) {
		t.Fatalf("candidateSet() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidateSet()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestVerifyName_PhoneticMatchLowersTextThreshold(t *testing.T) {
	// "Smyth" and "Smith" share a Double Metaphone code but differ textually;
	// the 0.5 threshold (applied when phoneticAccuracy == 1.0) should admit it.
	result := verifyName("Smyth", "Smith")
	if !result.Valid {
		t.Fatalf("verifyName(Smyth, Smith) = %+v, want Valid", result)
	}
	if result.PhoneticAccuracy != 1.0 {
		t.Fatalf("PhoneticAccuracy = %v, want 1.0", result.PhoneticAccuracy)
	}
}

func TestVerifyName_HyphenatedCandidatePicksBestMatch(t *testing.T) {
	result := verifyName("Anne", "Anne-Marie")
	if !result.Valid {
		t.Fatalf("verifyName(Anne, Anne-Marie) = %+v, want Valid", result)
	}
	if result.BestCandidate != "Anne" {
		t.Fatalf("BestCandidate = %q, want %q", result.BestCandidate, "Anne")
	}
}

func TestVerifyName_UnrelatedNamesInvalid(t *testing.T) {
	result := verifyName("Jennifer", "Robert")
	if result.Valid {
		t.Fatalf("verifyName(Jennifer, Robert) = %+v, want invalid", result)
	}
}

func TestSimilarity_BothEmptyIsIdentical(t *testing.T) {
	if got := similarity("", ""); got != 1.0 {
		t.Fatalf("similarity(\"\", \"\") = %v, want 1.0", got)
	}
}

func TestMatchIdentity_RequiresUniqueIdentifier(t *testing.T) {
	ok := MatchIdentity("Jane", "Smith", "1990-01-01", "Jane", "Smith", "1990-01-01", "")
	if ok {
		t.Fatal("MatchIdentity with empty uniqueIdentifier should fail")
	}
}

func TestMatchIdentity_RequiresExactDOB(t *testing.T) {
	ok := MatchIdentity("Jane", "Smith", "1990-01-01", "Jane", "Smith", "1990-01-02", "abc123")
	if ok {
		t.Fatal("MatchIdentity with mismatched dateOfBirth should fail")
	}
}

func TestMatchIdentity_SucceedsOnFuzzyNameMatch(t *testing.T) {
	ok := MatchIdentity("Jon", "Smyth", "1990-01-01", "John", "Smith", "1990-01-01", "abc123")
	if !ok {
		t.Fatal("MatchIdentity with close phonetic names should succeed")
	}
}
