package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"Argus/internal/gateway/store"
	"Argus/internal/models"
	"Argus/pkg/logger"
)

// Resolver serves per-scope agent configuration. Reads fall back to the
// environment-supplied default, which is persisted on first use so later
// reads are stable. Writes require the shared secret and validate the full
// bag before anything is stored.
type Resolver struct {
	store    store.ConfigStore
	defaults models.AgentConfig
	secret   string
	logger   *logger.Logger
}

// NewResolver creates a Resolver over the given store.
func NewResolver(configStore store.ConfigStore, defaults models.AgentConfig, secret string, logger *logger.Logger) *Resolver {
	return &Resolver{
		store:    configStore,
		defaults: defaults,
		secret:   secret,
		logger:   logger,
	}
}

// Get returns the stored configuration for scope. When none exists the
// default is materialized: readOrDefault picks it, then the explicit persist
// step makes the side effect visible rather than hiding it in the read.
func (r *Resolver) Get(ctx context.Context, scope string) (models.AgentConfig, error) {
	cfg, defaulted, err := r.readOrDefault(ctx, scope)
	if err != nil {
		return models.AgentConfig{}, err
	}
	if defaulted {
		if err := r.store.Put(ctx, scope, &cfg); err != nil {
			// The default is still usable; only its persistence failed.
			r.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"scope": scope}).Warn("Failed to persist default configuration")
		} else {
			r.logger.WithPayload(map[string]interface{}{"scope": scope}).Info("Materialized default configuration")
		}
	}
	return cfg, nil
}

func (r *Resolver) readOrDefault(ctx context.Context, scope string) (models.AgentConfig, bool, error) {
	stored, err := r.store.Get(ctx, scope)
	if err != nil {
		return models.AgentConfig{}, false, err
	}
	if stored != nil {
		return *stored, false, nil
	}
	return r.defaults, true, nil
}

// Set validates and stores a full configuration bag for scope. The write is
// rejected wholesale on a secret mismatch or any validation issue; prior
// configuration is left untouched.
func (r *Resolver) Set(ctx context.Context, scope string, raw map[string]interface{}, secret string) (models.AgentConfig, error) {
	if subtle.ConstantTimeCompare([]byte(secret), []byte(r.secret)) != 1 {
		return models.AgentConfig{}, &models.AuthorizationError{Reason: "invalid credentials"}
	}

	cfg, issues := validateConfig(raw)
	if len(issues) > 0 {
		return models.AgentConfig{}, &models.ValidationError{Issues: issues}
	}

	if err := r.store.Put(ctx, scope, &cfg); err != nil {
		return models.AgentConfig{}, err
	}
	r.logger.WithPayload(map[string]interface{}{"scope": scope}).Info("Configuration updated")
	return cfg, nil
}

// validateConfig checks the raw bag and converts it into an AgentConfig.
// Every violation is collected; callers receive the union, not the first.
func validateConfig(raw map[string]interface{}) (models.AgentConfig, []string) {
	var cfg models.AgentConfig
	var issues []string

	modelURL, ok := stringField(raw, "modelUrl")
	if !ok || strings.TrimSpace(modelURL) == "" {
		issues = append(issues, "'modelUrl' is required and must be a non-empty string.")
	}
	cfg.ModelURL = modelURL

	if v, present := raw["modelName"]; present {
		name, ok := v.(string)
		if !ok || strings.TrimSpace(name) == "" {
			issues = append(issues, "'modelName' must be a non-empty string.")
		}
		cfg.ModelName = name
	}

	if v, present := raw["promptTemplate"]; present {
		tmpl, ok := v.(string)
		if !ok || strings.TrimSpace(tmpl) == "" {
			issues = append(issues, "'promptTemplate' must be a non-empty string.")
		} else if !strings.Contains(tmpl, models.PromptPlaceholder) {
			issues = append(issues, fmt.Sprintf("The 'promptTemplate' must include the placeholder '%s'.", models.PromptPlaceholder))
		}
		cfg.PromptTemplate = tmpl
	}

	if v, present := raw["timeoutMs"]; present {
		timeout, ok := numericField(v)
		if !ok || timeout <= 0 {
			issues = append(issues, "'timeoutMs' must be a positive number (in milliseconds).")
		} else {
			cfg.TimeoutMs = int(timeout)
		}
	}

	if v, present := raw["phraseWeights"]; present {
		weights, ok := v.(map[string]interface{})
		if !ok {
			issues = append(issues, "'phraseWeights' must be an object.")
		} else {
			cfg.PhraseWeights = make(map[string]float64, len(weights))
			for phrase, value := range weights {
				weight, ok := numericField(value)
				if !ok {
					issues = append(issues, "All values in 'phraseWeights' must be numbers.")
					break
				}
				cfg.PhraseWeights[phrase] = weight
			}
		}
	}

	if v, present := raw["responseFormat"]; present {
		format, ok := v.(string)
		if !ok || (format != models.ResponseFormatText && format != models.ResponseFormatPlan) {
			issues = append(issues, "'responseFormat' must be \"text\" or \"plan\".")
		}
		cfg.ResponseFormat = format
	}

	return cfg, issues
}

func stringField(raw map[string]interface{}, key string) (string, bool) {
	v, present := raw[key]
	if !present {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// numericField accepts the numeric types JSON decoding can produce.
func numericField(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
