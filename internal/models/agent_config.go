package models

// PromptPlaceholder is the token a prompt template substitutes with the
// caller-supplied input text.
const PromptPlaceholder = "{inputText}"

// Response formats an agent configuration may declare. A "plan" agent is
// expected to return its structured result inside a fenced code block.
const (
	ResponseFormatText = "text"
	ResponseFormatPlan = "plan"
)

// AgentConfig is the per-scope configuration bag read on every dispatch.
// ModelURL is the only mandatory field; the rest are validated when present.
type AgentConfig struct {
	ModelURL       string             `json:"modelUrl" bson:"model_url"`
	ModelName      string             `json:"modelName,omitempty" bson:"model_name,omitempty"`
	PromptTemplate string             `json:"promptTemplate,omitempty" bson:"prompt_template,omitempty"`
	TimeoutMs      int                `json:"timeoutMs,omitempty" bson:"timeout_ms,omitempty"`
	PhraseWeights  map[string]float64 `json:"phraseWeights,omitempty" bson:"phrase_weights,omitempty"`
	ResponseFormat string             `json:"responseFormat,omitempty" bson:"response_format,omitempty"`
}
