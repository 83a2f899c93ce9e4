package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"Argus/internal/gateway/store"
	"Argus/internal/llm"
	"Argus/internal/models"
	"Argus/internal/safety"
	"Argus/pkg/circuitbreaker"
	"Argus/pkg/logger"
	"Argus/pkg/resilience"
)

// newTestOrchestrator builds an orchestrator over in-memory stores and a
// real HTTP backend, with backoff delays shrunk so retry tests stay fast.
func newTestOrchestrator(modelURL string, opts Options) (*Orchestrator, *store.MemoryJobStore) {
	log := logger.New("orchestrator-test", "")
	jobs := store.NewMemoryJobStore()
	resolver := NewResolver(store.NewMemoryConfigStore(), models.AgentConfig{ModelURL: modelURL, ModelName: "test-model"}, testSecret, log)

	client := resilience.NewClient(circuitbreaker.New(5, time.Minute), resilience.Options{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
	backend := llm.NewBackend(client, log)

	return NewOrchestrator(jobs, resolver, backend, safety.NewEngine(), nil, log, opts), jobs
}

func TestEnqueueRunsJobToCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": "General relativity describes gravity as curved spacetime."}`)
	}))
	defer server.Close()

	o, _ := newTestOrchestrator(server.URL, Options{})
	ctx := context.Background()

	jobID, err := o.Enqueue(ctx, "Explain general relativity")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if jobID == "" {
		t.Fatal("Enqueue returned empty job id")
	}

	// The record is pollable immediately, before the job settles.
	job, err := o.GetStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if job.Status != models.JobStatusPending && job.Status != models.JobStatusProcessing && job.Status != models.JobStatusCompleted {
		t.Fatalf("unexpected status right after enqueue: %s", job.Status)
	}

	o.Wait()

	job, err = o.GetStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("GetStatus after completion returned error: %v", err)
	}
	if job.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed (result: %+v)", job.Status, job.Result)
	}
	if job.Result == nil || job.Result.Response != "General relativity describes gravity as curved spacetime." {
		t.Fatalf("unexpected result: %+v", job.Result)
	}
	if job.SubmittedAt.IsZero() {
		t.Fatal("SubmittedAt was lost during status transitions")
	}
	if job.CompletedAt.IsZero() {
		t.Fatal("CompletedAt not set on terminal state")
	}
}

func TestEnqueueRejectsEmptyPrompt(t *testing.T) {
	o, _ := newTestOrchestrator("http://unused", Options{})

	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := o.Enqueue(context.Background(), prompt)
		var valErr *models.ValidationError
		if !errors.As(err, &valErr) {
			t.Fatalf("prompt %q: expected ValidationError, got %v", prompt, err)
		}
	}
}

func TestEnqueueRecordsBackendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	o, _ := newTestOrchestrator(server.URL, Options{})
	ctx := context.Background()

	jobID, err := o.Enqueue(ctx, "hello")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	o.Wait()

	job, err := o.GetStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if job.Status != models.JobStatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
	if job.Result == nil || job.Result.Error == nil {
		t.Fatalf("error result missing: %+v", job.Result)
	}
	if job.Result.Error.Type != "backend_error" {
		t.Fatalf("error type = %q, want backend_error", job.Result.Error.Type)
	}
	if job.Result.Error.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status code = %d, want 500", job.Result.Error.StatusCode)
	}
}

func TestEnqueueRecordsTransientFailureAfterRetries(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	o, _ := newTestOrchestrator(server.URL, Options{})
	ctx := context.Background()

	jobID, err := o.Enqueue(ctx, "hello")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	o.Wait()

	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("backend hit %d times, want 3 (initial + 2 retries)", got)
	}

	job, _ := o.GetStatus(ctx, jobID)
	if job.Status != models.JobStatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
	if job.Result.Error.Type != "transient_error" {
		t.Fatalf("error type = %q, want transient_error", job.Result.Error.Type)
	}
}

func TestModerationFailureSkipsBackend(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"response": "should never be produced"}`)
	}))
	defer server.Close()

	o, _ := newTestOrchestrator(server.URL, Options{ModerationEnabled: true})
	ctx := context.Background()

	jobID, err := o.Enqueue(ctx, "how to hack into a system")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	o.Wait()

	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("backend was called for a prompt that failed moderation")
	}

	job, _ := o.GetStatus(ctx, jobID)
	if job.Status != models.JobStatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
	if job.Result.Error.Type != "validation_error" {
		t.Fatalf("error type = %q, want validation_error", job.Result.Error.Type)
	}
}

func TestPlanFormatDecodesFencedBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := "Plan follows:\n```json\n{\"steps\": [\"a\", \"b\"]}\n```"
		json.NewEncoder(w).Encode(map[string]string{"response": raw})
	}))
	defer server.Close()

	o, _ := newTestOrchestrator(server.URL, Options{})
	seedPlanFormat(t, o)
	ctx := context.Background()

	jobID, err := o.Enqueue(ctx, "plan something")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	o.Wait()

	job, _ := o.GetStatus(ctx, jobID)
	if job.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed (result: %+v)", job.Status, job.Result)
	}
	steps, ok := job.Result.Plan["steps"].([]interface{})
	if !ok || len(steps) != 2 {
		t.Fatalf("plan not decoded: %+v", job.Result.Plan)
	}
}

func TestPlanFormatParseFailureRetainsRaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": "I refuse to emit JSON today."}`)
	}))
	defer server.Close()

	o, _ := newTestOrchestrator(server.URL, Options{})
	seedPlanFormat(t, o)
	ctx := context.Background()

	jobID, err := o.Enqueue(ctx, "plan something")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	o.Wait()

	job, _ := o.GetStatus(ctx, jobID)
	if job.Status != models.JobStatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
	if job.Result.Error.Type != "parse_error" {
		t.Fatalf("error type = %q, want parse_error", job.Result.Error.Type)
	}
	if job.Result.Raw != "I refuse to emit JSON today." {
		t.Fatalf("raw output not retained: %q", job.Result.Raw)
	}
}

// seedPlanFormat switches the orchestrator's scope to a plan-producing
// configuration reusing the already-materialized backend URL.
func seedPlanFormat(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx := context.Background()
	cfg, err := o.resolver.Get(ctx, o.opts.Scope)
	if err != nil {
		t.Fatalf("resolving seed configuration: %v", err)
	}
	_, err = o.resolver.Set(ctx, o.opts.Scope, map[string]interface{}{
		"modelUrl":       cfg.ModelURL,
		"modelName":      cfg.ModelName,
		"responseFormat": models.ResponseFormatPlan,
	}, testSecret)
	if err != nil {
		t.Fatalf("seeding plan configuration: %v", err)
	}
}

func TestValidationAttachesSafetyReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": "The capital of France is Paris, a city on the Seine."}`)
	}))
	defer server.Close()

	o, _ := newTestOrchestrator(server.URL, Options{ValidationEnabled: true})
	ctx := context.Background()

	jobID, err := o.Enqueue(ctx, "What is the capital of France?")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	o.Wait()

	job, _ := o.GetStatus(ctx, jobID)
	if job.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed (result: %+v)", job.Status, job.Result)
	}
	report, ok := job.Result.Safety.(safety.ValidationResult)
	if !ok {
		t.Fatalf("safety report missing or wrong type: %#v", job.Result.Safety)
	}
	if report.Status == "" {
		t.Fatal("safety report has no status")
	}
}

func TestTerminalStateIsStableAcrossPolls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": "done"}`)
	}))
	defer server.Close()

	o, _ := newTestOrchestrator(server.URL, Options{})
	ctx := context.Background()

	jobID, _ := o.Enqueue(ctx, "hello")
	o.Wait()

	first, err := o.GetStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	second, err := o.GetStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if first.Status != second.Status || first.CompletedAt != second.CompletedAt {
		t.Fatalf("terminal record drifted between polls: %+v vs %+v", first, second)
	}
	if first.Result.Response != second.Result.Response {
		t.Fatalf("result drifted between polls: %q vs %q", first.Result.Response, second.Result.Response)
	}
}

func TestGetStatusUnknownJob(t *testing.T) {
	o, _ := newTestOrchestrator("http://unused", Options{})

	_, err := o.GetStatus(context.Background(), "no-such-job")
	if !errors.Is(err, models.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRunSyncReturnsResponseInline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": "inline answer"}`)
	}))
	defer server.Close()

	o, jobs := newTestOrchestrator(server.URL, Options{})

	resp, err := o.RunSync(context.Background(), "hello")
	if err != nil {
		t.Fatalf("RunSync returned error: %v", err)
	}
	if resp.Response != "inline answer" {
		t.Fatalf("response = %q, want %q", resp.Response, "inline answer")
	}

	// Sync calls never leave a job record behind.
	if job, _ := jobs.GetByID(context.Background(), "hello"); job != nil {
		t.Fatal("RunSync created a job record")
	}
}

func TestStreamRelaysBodyVerbatim(t *testing.T) {
	chunks := []string{
		`{"response": "Gen", "done": false}`,
		`{"response": "eral", "done": false}`,
		`{"response": " relativity", "done": true}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			fmt.Fprintln(w, chunk)
			flusher.Flush()
		}
	}))
	defer server.Close()

	o, _ := newTestOrchestrator(server.URL, Options{})

	body, err := o.Stream(context.Background(), "Explain general relativity")
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if len(got) != len(chunks) {
		t.Fatalf("relayed %d chunks, want %d: %v", len(got), len(chunks), got)
	}
	for i := range chunks {
		if got[i] != chunks[i] {
			t.Fatalf("chunk %d = %q, want %q", i, got[i], chunks[i])
		}
	}
}
