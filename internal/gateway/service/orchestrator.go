package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"Argus/internal/gateway/publisher"
	"Argus/internal/gateway/store"
	"Argus/internal/llm"
	"Argus/internal/models"
	"Argus/internal/safety"
	"Argus/pkg/circuitbreaker"
	"Argus/pkg/logger"

	"github.com/google/uuid"
	olla "github.com/ollama/ollama/api"
)

// Options control which safety checks the orchestrator runs inline.
type Options struct {
	Scope             string // agent scope used for configuration resolution
	ModerationEnabled bool   // screen prompts before dispatch
	ValidationEnabled bool   // score responses after completion
}

// Orchestrator owns the job lifecycle: it creates durable job records,
// dispatches them to the model backend synchronously, asynchronously, or as
// a streamed passthrough, and is the only writer of any job it created.
type Orchestrator struct {
	jobs     store.JobStore
	resolver *Resolver
	backend  *llm.Backend
	safety   *safety.Engine
	events   *publisher.EventPublisher
	logger   *logger.Logger
	opts     Options

	wg sync.WaitGroup
}

// NewOrchestrator wires an Orchestrator. events may be nil when lifecycle
// eventing is not configured.
func NewOrchestrator(jobs store.JobStore, resolver *Resolver, backend *llm.Backend, engine *safety.Engine, events *publisher.EventPublisher, logger *logger.Logger, opts Options) *Orchestrator {
	if opts.Scope == "" {
		opts.Scope = "gateway"
	}
	return &Orchestrator{
		jobs:     jobs,
		resolver: resolver,
		backend:  backend,
		safety:   engine,
		events:   events,
		logger:   logger,
		opts:     opts,
	}
}

// Enqueue validates the prompt, persists a pending job record, and schedules
// background execution the caller does not wait on. The returned job id can
// be polled immediately.
func (o *Orchestrator) Enqueue(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", models.NewValidationError("Prompt is required and must be a non-empty string.")
	}

	job := &models.Job{
		ID:          uuid.New().String(),
		Prompt:      prompt,
		Status:      models.JobStatusPending,
		TraceID:     traceIDFrom(ctx),
		SubmittedAt: time.Now().UTC(),
	}

	if err := o.jobs.Create(ctx, job); err != nil {
		o.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to create job record")
		return "", err
	}

	o.events.Publish(ctx, publisher.JobEvent{
		Type:    publisher.EventJobEnqueued,
		JobID:   job.ID,
		TraceID: job.TraceID,
		Status:  job.Status,
	})

	// Detached from the request: the WaitGroup keeps the process alive for
	// in-flight jobs during shutdown.
	o.wg.Add(1)
	go o.runAsync(job.ID, prompt, job.TraceID)

	return job.ID, nil
}

// runAsync drives one job to a terminal state. Every failure, including a
// panic, is captured into the job record; nothing escapes this goroutine.
func (o *Orchestrator) runAsync(jobID, prompt, traceID string) {
	defer o.wg.Done()

	ctx := context.Background()
	log := o.logger.WithTrace(traceID)

	defer func() {
		if r := recover(); r != nil {
			log.WithPayload(map[string]interface{}{"job_id": jobID, "panic": fmt.Sprint(r)}).Error("Job execution panicked")
			o.finishJob(ctx, jobID, traceID, nil, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := o.transition(ctx, jobID, models.JobStatusProcessing, nil); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"job_id": jobID}).Error("Failed to mark job processing")
		return
	}

	result, err := o.execute(ctx, prompt, log)
	o.finishJob(ctx, jobID, traceID, result, err)
}

// execute resolves configuration and performs the guarded backend call,
// returning either a terminal result payload or the failure to record.
func (o *Orchestrator) execute(ctx context.Context, prompt string, log *logger.Logger) (*models.JobResult, error) {
	cfg, err := o.resolver.Get(ctx, o.opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}

	if o.opts.ModerationEnabled {
		moderation := o.safety.Moderate(prompt)
		if moderation.Status == safety.StatusFail {
			return nil, models.NewValidationError(moderation.Issues...)
		}
	}

	resp, err := o.backend.Generate(ctx, generateParams(cfg, prompt))
	if err != nil {
		return nil, err
	}

	result := &models.JobResult{Response: resp.Response}

	if cfg.ResponseFormat == models.ResponseFormatPlan {
		plan, err := ExtractPlan(resp.Response)
		if err != nil {
			return nil, err
		}
		result.Plan = plan
	}

	if o.opts.ValidationEnabled {
		report := o.safety.Validate(prompt, resp.Response, cfg.PhraseWeights)
		result.Safety = report
		if report.Status != safety.StatusPass {
			log.WithPayload(map[string]interface{}{"status": report.Status, "score": report.Score}).Warn("Response flagged by safety validation")
		}
	}

	return result, nil
}

// finishJob records the terminal state for a job.
func (o *Orchestrator) finishJob(ctx context.Context, jobID, traceID string, result *models.JobResult, cause error) {
	status := models.JobStatusCompleted
	eventType := publisher.EventJobCompleted

	if cause != nil {
		status = models.JobStatusError
		eventType = publisher.EventJobError
		result = errorResult(cause)
	}

	if err := o.transition(ctx, jobID, status, result); err != nil {
		o.logger.WithTrace(traceID).WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"job_id": jobID}).Error("Failed to persist terminal job state")
		return
	}

	o.events.Publish(ctx, publisher.JobEvent{
		Type:    eventType,
		JobID:   jobID,
		TraceID: traceID,
		Status:  status,
	})
}

func (o *Orchestrator) transition(ctx context.Context, jobID string, status models.JobStatus, result *models.JobResult) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return models.ErrJobNotFound
	}
	job.Status = status
	job.Result = result
	if status.Terminal() {
		job.CompletedAt = time.Now().UTC()
	}
	return o.jobs.Update(ctx, job)
}

// RunSync performs the backend call inline and returns the result directly.
// No job record is created; errors propagate to the caller.
func (o *Orchestrator) RunSync(ctx context.Context, prompt string) (*olla.GenerateResponse, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, models.NewValidationError("Prompt is required and must be a non-empty string.")
	}

	cfg, err := o.resolver.Get(ctx, o.opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}

	if o.opts.ModerationEnabled {
		moderation := o.safety.Moderate(prompt)
		if moderation.Status == safety.StatusFail {
			return nil, models.NewValidationError(moderation.Issues...)
		}
	}

	return o.backend.Generate(ctx, generateParams(cfg, prompt))
}

// GetStatus returns the job record for id, or ErrJobNotFound. It performs a
// single storage lookup and never blocks on job execution.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*models.Job, error) {
	job, err := o.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, models.ErrJobNotFound
	}
	return job, nil
}

// Stream opens a streaming backend call and returns its raw body for
// verbatim relay. The stream ends when the caller disconnects or the backend
// closes it.
func (o *Orchestrator) Stream(ctx context.Context, prompt string) (io.ReadCloser, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, models.NewValidationError("Prompt is required and must be a non-empty string.")
	}

	cfg, err := o.resolver.Get(ctx, o.opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}

	return o.backend.Stream(ctx, generateParams(cfg, prompt))
}

// Wait blocks until all in-flight background jobs have reached a terminal
// state. Called during graceful shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// generateParams applies the prompt template and timeout from a resolved
// configuration.
func generateParams(cfg models.AgentConfig, prompt string) llm.GenerateParams {
	finalPrompt := prompt
	if cfg.PromptTemplate != "" {
		finalPrompt = strings.ReplaceAll(cfg.PromptTemplate, models.PromptPlaceholder, prompt)
	}

	timeout := llm.DefaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	return llm.GenerateParams{
		ModelURL: cfg.ModelURL,
		Model:    cfg.ModelName,
		Prompt:   finalPrompt,
		Timeout:  timeout,
	}
}

// errorResult converts a failure into the structured payload stored on the
// job record.
func errorResult(cause error) *models.JobResult {
	result := &models.JobResult{Error: &models.ErrorInfo{Message: cause.Error()}}

	var validationErr *models.ValidationError
	var backendErr *models.BackendError
	var transientErr *models.TransientError
	var parseErr *models.ParseError

	switch {
	case errors.As(cause, &validationErr):
		result.Error.Type = "validation_error"
	case errors.Is(cause, circuitbreaker.ErrCircuitOpen):
		result.Error.Type = "breaker_open"
	case errors.As(cause, &parseErr):
		result.Error.Type = "parse_error"
		result.Raw = parseErr.Raw
	case errors.As(cause, &transientErr):
		result.Error.Type = "transient_error"
	case errors.As(cause, &backendErr):
		result.Error.Type = "backend_error"
		result.Error.StatusCode = backendErr.StatusCode
	default:
		result.Error.Type = "internal_error"
	}

	return result
}

type traceIDKey struct{}

// WithTraceID stores a trace id on the context for job creation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func traceIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok && v != "" {
		return v
	}
	return uuid.New().String()
}
