package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"Argus/internal/gateway/service"
	"Argus/internal/models"
	"Argus/internal/safety"
	"Argus/pkg/circuitbreaker"
	"Argus/pkg/logger"

	"github.com/gin-gonic/gin"
)

// API provides the HTTP handlers for the gateway.
type API struct {
	orchestrator *service.Orchestrator
	resolver     *service.Resolver
	safety       *safety.Engine
	logger       *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(orchestrator *service.Orchestrator, resolver *service.Resolver, engine *safety.Engine, logger *logger.Logger) *API {
	return &API{
		orchestrator: orchestrator,
		resolver:     resolver,
		safety:       engine,
		logger:       logger,
	}
}

// AskHandler accepts a prompt and dispatches it. The default is asynchronous:
// the job id is returned immediately and the caller polls for the result.
// "sync": true waits for the answer inline; "stream": true relays the
// backend's chunked output as it arrives.
func (a *API) AskHandler(c *gin.Context) {
	var payload struct {
		Prompt string `json:"prompt"`
		Stream bool   `json:"stream"`
		Sync   bool   `json:"sync"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	ctx := service.WithTraceID(c.Request.Context(), c.GetString(traceIDContextKey))

	switch {
	case payload.Stream:
		a.streamResponse(c, payload.Prompt)
	case payload.Sync:
		resp, err := a.orchestrator.RunSync(ctx, payload.Prompt)
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "response": resp.Response})
	default:
		jobID, err := a.orchestrator.Enqueue(ctx, payload.Prompt)
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
	}
}

// streamResponse relays the backend's chunked NDJSON body verbatim. Once
// bytes start flowing, failures terminate the stream; they cannot be turned
// into an error status anymore.
func (a *API) streamResponse(c *gin.Context, prompt string) {
	body, err := a.orchestrator.Stream(c.Request.Context(), prompt)
	if err != nil {
		a.writeError(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)

	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				return // client disconnected
			}
			c.Writer.Flush()
		}
		if readErr != nil {
			if readErr != io.EOF {
				a.logger.WithError(models.ErrorInfo{Message: readErr.Error()}).Warn("Backend stream terminated early")
			}
			return
		}
	}
}

// GetJobHandler returns the current record for a job id.
func (a *API) GetJobHandler(c *gin.Context) {
	job, err := a.orchestrator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetConfigHandler returns the active configuration for a scope.
func (a *API) GetConfigHandler(c *gin.Context) {
	cfg, err := a.resolver.Get(c.Request.Context(), c.Param("scope"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// SetConfigHandler replaces the configuration for a scope. The write is
// protected by the shared secret carried as a bearer token.
func (a *API) SetConfigHandler(c *gin.Context) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	cfg, err := a.resolver.Set(c.Request.Context(), c.Param("scope"), raw, bearerToken(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// ModerateHandler screens a prompt without dispatching it anywhere.
func (a *API) ModerateHandler(c *gin.Context) {
	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	c.JSON(http.StatusOK, a.safety.Moderate(payload.Prompt))
}

// ValidateHandler scores a prompt/response pair without dispatching anything.
// Phrase weights come from the payload, or from the named scope's stored
// configuration when only a scope is given.
func (a *API) ValidateHandler(c *gin.Context) {
	var payload struct {
		Prompt        string             `json:"prompt"`
		Response      string             `json:"response"`
		Scope         string             `json:"scope"`
		PhraseWeights map[string]float64 `json:"phraseWeights"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	weights := payload.PhraseWeights
	if weights == nil && payload.Scope != "" {
		cfg, err := a.resolver.Get(c.Request.Context(), payload.Scope)
		if err != nil {
			a.writeError(c, err)
			return
		}
		weights = cfg.PhraseWeights
	}

	c.JSON(http.StatusOK, a.safety.Validate(payload.Prompt, payload.Response, weights))
}

// HealthHandler reports process liveness.
func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps service failures onto HTTP statuses. Validation problems
// carry their full issue list; everything else gets a single message.
func (a *API) writeError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	var authErr *models.AuthorizationError
	var backendErr *models.BackendError
	var transientErr *models.TransientError
	var parseErr *models.ParseError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "issues": validationErr.Issues})
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, models.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Backend temporarily unavailable"})
	case errors.As(err, &transientErr):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Backend did not respond in time"})
	case errors.As(err, &parseErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Backend returned an unparseable response", "raw": parseErr.Raw})
	case errors.As(err, &backendErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Backend request failed"})
	default:
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Unhandled request failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or returns an empty string.
func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
