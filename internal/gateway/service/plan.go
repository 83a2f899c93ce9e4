package service

import (
	"encoding/json"
	"errors"
	"regexp"

	"Argus/internal/models"
)

// Plan-producing agents return their structured result inside a fenced code
// block. The fence marker is the locator; the body must be a JSON object.
var planFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractPlan locates the fenced JSON block in raw model output and decodes
// it. When the block is missing or not parseable, a ParseError retaining the
// raw text is returned; raw output is never coerced into an empty success.
func ExtractPlan(raw string) (map[string]interface{}, error) {
	match := planFencePattern.FindStringSubmatch(raw)
	if match == nil {
		return nil, &models.ParseError{Raw: raw, Err: errors.New("no fenced plan block in model output")}
	}

	var plan map[string]interface{}
	if err := json.Unmarshal([]byte(match[1]), &plan); err != nil {
		return nil, &models.ParseError{Raw: raw, Err: err}
	}
	return plan, nil
}
