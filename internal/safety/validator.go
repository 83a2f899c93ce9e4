package safety

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Validation score thresholds and penalties.
const (
	failThreshold = 7
	warnThreshold = 3

	emptyInputPenalty = 5
	echoPenalty       = 2
	driftPenalty      = 3
	unattributedClaim = 4
	minTokensForDrift = 5
	echoSimilarity    = 0.9
	driftSimilarity   = 0.2
)

// ValidationResult is the outcome of scoring a model response against the
// prompt that produced it.
type ValidationResult struct {
	Status     string    `json:"status"`
	Score      float64   `json:"score"`
	Similarity float64   `json:"similarity"`
	Issues     []string  `json:"issues"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate scores a response for quality and trust signals: weighted phrase
// hits, prompt/response cosine similarity (echoing and topic drift), and a
// fixed heuristic for unattributed claims. Higher scores are worse.
func (e *Engine) Validate(prompt, response string, weights map[string]float64) ValidationResult {
	var issues []string
	score := 0.0
	similarity := 0.0

	if strings.TrimSpace(prompt) == "" {
		issues = append(issues, "Empty prompt detected.")
		score += emptyInputPenalty
	}

	if strings.TrimSpace(response) == "" {
		issues = append(issues, "Empty response detected.")
		score += emptyInputPenalty
	} else {
		normalized := strings.ToLower(response)

		for phrase, weight := range weights {
			if strings.Contains(normalized, strings.ToLower(phrase)) {
				issues = append(issues, fmt.Sprintf("Detected phrase: %q (weight: %g)", phrase, weight))
				score += weight
			}
		}

		promptTokens := tokenize(prompt)
		responseTokens := tokenize(response)
		similarity = cosineSimilarity(frequencyVector(promptTokens), frequencyVector(responseTokens))

		if similarity > echoSimilarity && len(promptTokens) > minTokensForDrift {
			issues = append(issues, fmt.Sprintf("High prompt similarity detected (score: %.2f), may be parroting.", similarity))
			score += echoPenalty
		} else if similarity < driftSimilarity && len(promptTokens) > minTokensForDrift {
			issues = append(issues, fmt.Sprintf("Low prompt similarity detected (score: %.2f), may be topic drift.", similarity))
			score += driftPenalty
		}

		if strings.Contains(normalized, "according to some sources") && !strings.Contains(normalized, "reliable source") {
			issues = append(issues, "Unsubstantiated claim without reliable attribution.")
			score += unattributedClaim
		}
	}

	status := StatusPass
	switch {
	case score >= failThreshold:
		status = StatusFail
	case score >= warnThreshold:
		status = StatusWarn
	}

	return ValidationResult{
		Status:     status,
		Score:      score,
		Similarity: math.Round(similarity*10000) / 10000,
		Issues:     issues,
		Timestamp:  time.Now().UTC(),
	}
}

// frequencyVector builds a token-frequency vector.
func frequencyVector(tokens []string) map[string]int {
	vec := make(map[string]int, len(tokens))
	for _, token := range tokens {
		vec[token]++
	}
	return vec
}

// cosineSimilarity computes the cosine of two frequency vectors, defined as
// 0 when either magnitude is 0.
func cosineSimilarity(a, b map[string]int) float64 {
	dot := 0
	for token, count := range a {
		if other, ok := b[token]; ok {
			dot += count * other
		}
	}

	magA := magnitude(a)
	magB := magnitude(b)
	if magA == 0 || magB == 0 {
		return 0
	}
	return float64(dot) / (magA * magB)
}

func magnitude(vec map[string]int) float64 {
	sum := 0
	for _, count := range vec {
		sum += count * count
	}
	return math.Sqrt(float64(sum))
}
