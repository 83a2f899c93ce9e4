package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"Argus/internal/models"
	"Argus/pkg/logger"
	"Argus/pkg/resilience"

	olla "github.com/ollama/ollama/api"
)

// DefaultTimeout bounds a generation call when the resolved configuration
// does not supply one.
const DefaultTimeout = 60 * time.Second

// GenerateParams are the resolved settings for one generation call.
type GenerateParams struct {
	ModelURL string
	Model    string
	Prompt   string
	Timeout  time.Duration
}

// Backend is a client for an Ollama-compatible generation endpoint
// (POST {modelUrl}/api/generate). Non-streaming calls go through the
// resilience layer; streaming calls connect directly because a stream cannot
// be retried once bytes start flowing.
type Backend struct {
	resilient *resilience.Client
	direct    *http.Client
	logger    *logger.Logger
}

// NewBackend creates a Backend using the given resilient client for
// non-streaming calls.
func NewBackend(resilient *resilience.Client, logger *logger.Logger) *Backend {
	return &Backend{
		resilient: resilient,
		direct:    &http.Client{},
		logger:    logger,
	}
}

// Generate performs a non-streaming generation call and decodes the response.
func (b *Backend) Generate(ctx context.Context, p GenerateParams) (*olla.GenerateResponse, error) {
	payload, err := marshalRequest(p, false)
	if err != nil {
		return nil, err
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	resp, err := b.resilient.Post(ctx, generateURL(p.ModelURL), payload, timeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading backend response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &models.BackendError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result olla.GenerateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &models.ParseError{Raw: string(body), Err: err}
	}
	return &result, nil
}

// Stream opens a streaming generation call and returns the raw chunked
// NDJSON body so the caller can relay it verbatim. No retry is applied: a
// mid-stream failure terminates the stream.
func (b *Backend) Stream(ctx context.Context, p GenerateParams) (io.ReadCloser, error) {
	payload, err := marshalRequest(p, true)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, generateURL(p.ModelURL), strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.direct.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening backend stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &models.BackendError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return resp.Body, nil
}

func marshalRequest(p GenerateParams, stream bool) ([]byte, error) {
	req := olla.GenerateRequest{
		Model:  p.Model,
		Prompt: p.Prompt,
		Stream: &stream,
	}
	payload, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("marshaling generate request: %w", err)
	}
	return payload, nil
}

var schemePattern = regexp.MustCompile(`^https?://`)

// generateURL normalizes the configured model URL and appends the generation
// endpoint path.
func generateURL(modelURL string) string {
	url := strings.TrimRight(strings.TrimSpace(modelURL), "/")
	if !schemePattern.MatchString(url) {
		url = "http://" + url
	}
	return url + "/api/generate"
}
