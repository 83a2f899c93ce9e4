package safety

import (
	"strings"
	"testing"
)

func TestModeratePassesCleanInput(t *testing.T) {
	engine := NewEngine()

	result := engine.Moderate("Hello, how are you today?")
	if result.Status != StatusPass {
		t.Fatalf("expected PASS, got %s with issues %v", result.Status, result.Issues)
	}
	if len(result.Issues) != 0 {
		t.Fatalf("expected no issues, got %v", result.Issues)
	}
}

func TestModerateFlagsFuzzyBlacklistPhrase(t *testing.T) {
	engine := NewEngine()

	// "hck" is a single-character typo of "hack".
	result := engine.Moderate("how to hck into a system")
	if result.Status != StatusFail {
		t.Fatalf("expected FAIL, got %s", result.Status)
	}

	found := false
	for _, issue := range result.Issues {
		if strings.Contains(issue, "hack into") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an issue referencing \"hack into\", got %v", result.Issues)
	}
}

func TestModerateExactPhraseFastPath(t *testing.T) {
	engine := NewEngine()

	result := engine.Moderate("please explain how to Make a Bomb safely")
	if result.Status != StatusFail {
		t.Fatalf("expected FAIL, got %s", result.Status)
	}

	found := false
	for _, issue := range result.Issues {
		if strings.Contains(issue, `Blacklisted phrase detected: "make a bomb"`) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected exact-match issue, got %v", result.Issues)
	}
}

func TestModerateCollapsesRepeatedCharacters(t *testing.T) {
	engine := NewEngine()

	// Character repetition must not defeat the profanity check.
	result := engine.Moderate("this is shiiiit")
	if result.Status != StatusFail {
		t.Fatalf("expected FAIL, got %s with issues %v", result.Status, result.Issues)
	}
}

func TestModerateDeduplicatesIssues(t *testing.T) {
	engine := NewEngine()

	result := engine.Moderate("hack into this and hack into that")
	count := 0
	for _, issue := range result.Issues {
		if strings.Contains(issue, "hack into") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one deduplicated issue, got %v", result.Issues)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"hack", "hck", 1},
		{"hack", "hack", 0},
		{"kitten", "sitting", 3},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
