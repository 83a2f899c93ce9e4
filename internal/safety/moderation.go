package safety

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Check outcomes shared by moderation and validation reports.
const (
	StatusPass = "PASS"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
)

// ModerationResult is the outcome of a pre-flight prompt screen.
type ModerationResult struct {
	Status    string    `json:"status"`
	Issues    []string  `json:"issues"`
	Timestamp time.Time `json:"timestamp"`
}

// Engine screens prompts and scores responses. The word and phrase lists are
// fixed; per-agent phrase weights for response validation come from the
// resolved configuration.
type Engine struct {
	profanity []string
	blacklist []string
}

// NewEngine creates an Engine with the gateway's standard lists.
func NewEngine() *Engine {
	return &Engine{
		profanity: []string{
			"fuck", "shit", "damn", "bitch", "asshole", "crap", "dick",
		},
		blacklist: []string{
			"how to build a virus",
			"take down systems",
			"hack into",
			"steal passwords",
			"make a bomb",
			"explosives instructions",
			"terrorist attack",
		},
	}
}

// Moderate screens input text for disallowed content. Matching is fuzzy: an
// edit distance of one tolerates single-character typos, and repeated
// characters are collapsed first to defeat simple obfuscation ("haaack").
func (e *Engine) Moderate(text string) ModerationResult {
	var issues []string
	normalized := normalizeInput(text)
	words := strings.Fields(normalized)

	// Fuzzy check against single-word profanity.
	for _, word := range words {
		for _, profane := range e.profanity {
			if levenshtein(word, profane) <= 1 {
				issues = append(issues, fmt.Sprintf("Potential profanity detected near: %q", word))
				break
			}
		}
	}

	// Blacklisted phrases: exact substring first, then a per-word fuzzy pass
	// that requires every word of the phrase to match some input token.
	for _, phrase := range e.blacklist {
		if strings.Contains(normalized, phrase) {
			issues = append(issues, fmt.Sprintf("Blacklisted phrase detected: %q", phrase))
			continue
		}

		if phraseMatchesFuzzily(phrase, words) {
			issues = append(issues, fmt.Sprintf("Potential blacklisted phrase detected: %q", phrase))
		}
	}

	issues = dedupe(issues)

	status := StatusPass
	if len(issues) > 0 {
		status = StatusFail
	}
	return ModerationResult{
		Status:    status,
		Issues:    issues,
		Timestamp: time.Now().UTC(),
	}
}

func phraseMatchesFuzzily(phrase string, words []string) bool {
	for _, phraseWord := range strings.Split(phrase, " ") {
		found := false
		for _, word := range words {
			if levenshtein(word, phraseWord) <= 1 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// normalizeInput lowercases the text and collapses runs of repeated
// characters into one.
func normalizeInput(text string) string {
	lower := strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(lower))
	var prev rune = -1
	for _, r := range lower {
		if r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[i] = min3(curr[i-1]+1, prev[i]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(ra)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func dedupe(issues []string) []string {
	seen := make(map[string]struct{}, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		if _, ok := seen[issue]; ok {
			continue
		}
		seen[issue] = struct{}{}
		out = append(out, issue)
	}
	return out
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}
