package safety

import (
	"math"
	"strings"
	"testing"
)

func TestValidateWeightedPhrases(t *testing.T) {
	engine := NewEngine()
	weights := map[string]float64{"as an ai": 5, "i speculate": 3}

	result := engine.Validate("Tell me about the weather", "As an AI, I speculate...", weights)
	if result.Score < 8 {
		t.Fatalf("expected score >= 8, got %g", result.Score)
	}
	if result.Status != StatusFail {
		t.Fatalf("expected FAIL, got %s", result.Status)
	}
	if len(result.Issues) < 2 {
		t.Fatalf("expected an issue per matched phrase, got %v", result.Issues)
	}
}

func TestValidateEmptyPromptAndResponse(t *testing.T) {
	engine := NewEngine()

	result := engine.Validate("", "", nil)
	if result.Score != 10 {
		t.Fatalf("expected both empty penalties to apply, got score %g", result.Score)
	}
	if result.Status != StatusFail {
		t.Fatalf("expected FAIL, got %s", result.Status)
	}
	if result.Similarity != 0 {
		t.Fatalf("expected zero similarity, got %g", result.Similarity)
	}
}

func TestValidateCleanResponsePasses(t *testing.T) {
	engine := NewEngine()

	result := engine.Validate(
		"Summarize the plot of the novel in a short paragraph",
		"The novel follows a short plot about a family over one summer.",
		map[string]float64{"as an ai": 5},
	)
	if result.Status != StatusPass {
		t.Fatalf("expected PASS, got %s with issues %v", result.Status, result.Issues)
	}
}

func TestValidateFlagsParroting(t *testing.T) {
	engine := NewEngine()

	prompt := "please repeat this exact sentence back to me now"
	result := engine.Validate(prompt, prompt, nil)
	if result.Similarity <= 0.9 {
		t.Fatalf("expected similarity above 0.9, got %g", result.Similarity)
	}

	found := false
	for _, issue := range result.Issues {
		if strings.Contains(issue, "parroting") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a parroting issue, got %v", result.Issues)
	}
	if result.Score != echoPenalty {
		t.Fatalf("expected score %d, got %g", echoPenalty, result.Score)
	}
}

func TestValidateFlagsTopicDrift(t *testing.T) {
	engine := NewEngine()

	result := engine.Validate(
		"explain the rules of chess openings in simple terms",
		"bananas grow best under tropical humidity and rich soil",
		nil,
	)

	found := false
	for _, issue := range result.Issues {
		if strings.Contains(issue, "topic drift") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a topic drift issue, got %v", result.Issues)
	}
	if result.Status != StatusWarn {
		t.Fatalf("expected WARN at score %g, got %s", result.Score, result.Status)
	}
}

func TestValidateUnattributedClaim(t *testing.T) {
	engine := NewEngine()

	result := engine.Validate(
		"what is the population of the city",
		"According to some sources the population doubled last year.",
		nil,
	)

	found := false
	for _, issue := range result.Issues {
		if strings.Contains(issue, "reliable attribution") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an attribution issue, got %v", result.Issues)
	}

	// The qualifier suppresses the penalty.
	result = engine.Validate(
		"what is the population of the city",
		"According to some sources, though one reliable source confirms it, the population doubled.",
		nil,
	)
	for _, issue := range result.Issues {
		if strings.Contains(issue, "reliable attribution") {
			t.Fatalf("did not expect an attribution issue, got %v", result.Issues)
		}
	}
}

func TestCosineSimilarityZeroMagnitude(t *testing.T) {
	if got := cosineSimilarity(map[string]int{}, map[string]int{"a": 1}); got != 0 {
		t.Fatalf("expected 0 for empty vector, got %g", got)
	}
}

func TestValidateSimilarityRounding(t *testing.T) {
	engine := NewEngine()

	result := engine.Validate("alpha beta gamma", "alpha beta delta", nil)
	scaled := result.Similarity * 10000
	if math.Abs(scaled-math.Round(scaled)) > 1e-9 {
		t.Fatalf("expected similarity rounded to 4 decimals, got %v", result.Similarity)
	}
}
