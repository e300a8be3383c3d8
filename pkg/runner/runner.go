// Package runner orchestrates completions: it sanitizes run options,
// renders the prompt, consults the completion cache, walks the provider
// fallback chain, and emits the durable completion record.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
	"github.com/anotherai-dev/anotherai/pkg/template"
)

// Cache use policies accepted on a run request.
const (
	UseCacheAuto   = "auto"
	UseCacheAlways = "always"
	UseCacheNever  = "never"
)

// UseFallbackNever disables the provider fallback chain for a request.
const UseFallbackNever = "never"

// AdapterSource hands out provider adapters; satisfied by the factory.
type AdapterSource interface {
	Get(ctx context.Context, p provider.Provider) (provider.Adapter, error)
	Configured(p provider.Provider) bool
}

// CompletionCache looks up a previously stored completion for a
// (version, input) pair. A miss returns (nil, nil).
type CompletionCache interface {
	CachedCompletion(ctx context.Context, tenantUID int64, versionID, inputID string) (*models.AgentCompletion, error)
}

// Emitter receives finished completion records. Implementations must not
// block; persistence happens off the request path.
type Emitter interface {
	EmitCompletion(completion *models.AgentCompletion)
}

// Runner executes completion requests against the provider fleet.
type Runner struct {
	adapters     AdapterSource
	cache        CompletionCache
	emitter      Emitter
	files        FileStore
	cacheTimeout time.Duration
	logger       *slog.Logger
}

// Options configures a Runner.
type Options struct {
	Adapters     AdapterSource
	Cache        CompletionCache
	Emitter      Emitter
	Files        FileStore
	CacheTimeout time.Duration
	Logger       *slog.Logger
}

// New builds a Runner.
func New(opts Options) *Runner {
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		adapters:     opts.Adapters,
		cache:        opts.Cache,
		emitter:      opts.Emitter,
		files:        opts.Files,
		cacheTimeout: opts.CacheTimeout,
		logger:       opts.Logger,
	}
}

// RunRequest is one sanitized-enough completion request. Version carries
// the prompt template and sampling configuration; Input the caller's
// messages and variables.
type RunRequest struct {
	TenantUID int64
	AgentID   string
	// CompletionID pins the record id when the caller pre-registered it
	// (experiment runs). Zero means a fresh UUIDv7 is minted.
	CompletionID uuid.UUID
	Version      models.Version
	Input        models.AgentInput
	// UseCache is auto (default), always, or never.
	UseCache string
	// UseFallback is auto (default) or never.
	UseFallback string
	Source      models.CompletionSource
	Metadata    map[string]any
}

// preparedRun is the outcome of sanitize+render, shared by the buffered
// and streaming paths.
type preparedRun struct {
	req        RunRequest
	info       provider.ModelInfo
	candidates []provider.Provider
	versionID  string
	rendered   []models.Message
}

func (p *preparedRun) completionID() uuid.UUID {
	if p.req.CompletionID != uuid.Nil {
		return p.req.CompletionID
	}
	return models.NewCompletionID()
}

// Run executes a buffered completion. The completion record is always
// emitted, for failures too; the error return mirrors Output.Error.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*models.AgentCompletion, error) {
	run, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if cached := r.cacheLookup(ctx, run); cached != nil {
		r.emitter.EmitCompletion(cached)
		return cached, nil
	}

	var (
		llm        *provider.LLMCompletion
		traces     []models.Trace
		attemptErr error
	)
	for i, cand := range run.candidates {
		adapter, err := r.adapters.Get(ctx, cand)
		if err != nil {
			attemptErr = err
			continue
		}
		start := time.Now()
		completion, err := adapter.Complete(ctx, r.providerRequest(run))
		if err != nil {
			attemptErr = err
			if r.advance(ctx, run, err, i) {
				continue
			}
			break
		}
		if cand == provider.Fireworks && len(completion.Messages) > 0 {
			text, reasoning := stripThinkTags(completion.Messages[0].Content)
			completion.Messages[0].Content = text
			completion.Messages[0].Reasoning = reasoning
		}
		traces = append(traces, r.llmTrace(completion, time.Since(start)))
		llm = completion
		attemptErr = nil
		break
	}

	record := r.finalize(run, llm, traces, attemptErr)
	r.emitter.EmitCompletion(record)
	if attemptErr != nil {
		return record, attemptErr
	}
	return record, nil
}

// Stream executes a streaming completion. The returned channel carries
// deltas in arrival order and closes after exactly one final chunk.
// Preparation failures are returned synchronously before any streaming.
func (r *Runner) Stream(ctx context.Context, req RunRequest) (<-chan RunnerOutputChunk, error) {
	run, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan RunnerOutputChunk)
	go r.streamAttempts(ctx, run, out)
	return out, nil
}

func (r *Runner) streamAttempts(ctx context.Context, run *preparedRun, out chan<- RunnerOutputChunk) {
	defer close(out)

	if cached := r.cacheLookup(ctx, run); cached != nil {
		r.emitter.EmitCompletion(cached)
		for _, m := range cached.Output.Messages {
			if m.Content != "" && !send(ctx, out, RunnerOutputChunk{Delta: m.Content}) {
				return
			}
		}
		send(ctx, out, RunnerOutputChunk{Final: true, Completion: cached})
		return
	}

	var (
		llm        *provider.LLMCompletion
		traces     []models.Trace
		attemptErr error
	)
	for i, cand := range run.candidates {
		adapter, err := r.adapters.Get(ctx, cand)
		if err != nil {
			attemptErr = err
			continue
		}
		start := time.Now()
		stream, err := adapter.Stream(ctx, r.providerRequest(run))
		if err != nil {
			attemptErr = err
			if r.advance(ctx, run, err, i) {
				continue
			}
			break
		}

		sc := newStreamingContext(cand)
		var final provider.FinalChunk
		for chunk := range stream {
			if f, ok := chunk.(provider.FinalChunk); ok {
				final = f
				continue
			}
			for _, oc := range sc.process(chunk) {
				if !send(ctx, out, oc) {
					r.emitCancelled(run, sc, traces)
					return
				}
			}
		}
		for _, oc := range sc.flush() {
			if !send(ctx, out, oc) {
				r.emitCancelled(run, sc, traces)
				return
			}
		}

		if final.Err != nil {
			attemptErr = final.Err
			// Fall back only while nothing user-visible has streamed.
			if !sc.emitted && r.advance(ctx, run, final.Err, i) {
				continue
			}
			break
		}
		llm = final.Completion
		llm.Messages = []models.Message{sc.outputMessage()}
		traces = append(traces, r.llmTrace(llm, time.Since(start)))
		attemptErr = nil
		break
	}

	record := r.finalize(run, llm, traces, attemptErr)
	r.emitter.EmitCompletion(record)
	send(ctx, out, RunnerOutputChunk{Final: true, Completion: record, Err: attemptErr})
}

// send delivers one chunk unless the consumer's context ends first. A
// false return means the client is gone and streaming must stop.
func send(ctx context.Context, out chan<- RunnerOutputChunk, oc RunnerOutputChunk) bool {
	select {
	case out <- oc:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitCancelled persists the partial record for a stream whose consumer
// went away before the final chunk.
func (r *Runner) emitCancelled(run *preparedRun, sc *streamingContext, traces []models.Trace) {
	record := r.finalize(run, nil, traces, context.Canceled)
	if m := sc.outputMessage(); m.Content != "" || m.Reasoning != "" || len(m.ToolCalls) > 0 {
		record.Output.Messages = []models.Message{m}
	}
	r.emitter.EmitCompletion(record)
}

// advance reports whether the attempt loop should move to the next
// candidate after a failure.
func (r *Runner) advance(ctx context.Context, run *preparedRun, err error, attempt int) bool {
	if ctx.Err() != nil {
		return false
	}
	if run.req.UseFallback == UseFallbackNever {
		return false
	}
	if !apperr.IsRetryable(err) {
		return false
	}
	if attempt >= len(run.candidates)-1 {
		return false
	}
	r.logger.Warn("Provider attempt failed, falling back",
		"provider", run.candidates[attempt],
		"next", run.candidates[attempt+1],
		"model", run.req.Version.Model,
		"error", err)
	return true
}

// prepare sanitizes the run options and renders the prompt. The input id
// is computed over template+variables before rendering.
func (r *Runner) prepare(ctx context.Context, req RunRequest) (*preparedRun, error) {
	var explicit provider.Provider
	if req.Version.Provider != "" {
		p, err := provider.Parse(req.Version.Provider)
		if err != nil {
			return nil, err
		}
		explicit = p
	}
	if req.Version.Model == "" && explicit != "" {
		adapter, err := r.adapters.Get(ctx, explicit)
		if err != nil {
			return nil, err
		}
		req.Version.Model = adapter.DefaultModel()
	}
	info, err := provider.ResolveModel(req.Version.Model)
	if err != nil {
		return nil, err
	}
	req.Version.Model = info.ID

	candidates, err := provider.Candidates(info.ID, explicit)
	if err != nil {
		return nil, err
	}
	configured := candidates[:0]
	for _, c := range candidates {
		if r.adapters.Configured(c) {
			configured = append(configured, c)
		}
	}
	if len(configured) == 0 {
		return nil, apperr.InvalidRunOptions("no configured provider supports model %q", info.ID)
	}

	req.Input.ComputeID()
	req.Input.ComputePreview()

	all := append(append([]models.Message{}, req.Version.Prompt...), req.Input.Messages...)
	rendered := all
	if len(req.Input.Variables) > 0 {
		rendered, err = template.Render(ctx, all, req.Input.Variables)
		if err != nil {
			return nil, err
		}
	}
	// Offload runs on the rendered messages so file payloads that arrive
	// through template variables are resolved first; the input id was
	// already computed over the pre-render bytes.
	if err := r.offloadFiles(ctx, req.TenantUID, rendered); err != nil {
		return nil, err
	}

	return &preparedRun{
		req:        req,
		info:       info,
		candidates: configured,
		versionID:  req.Version.ID(),
		rendered:   rendered,
	}, nil
}

// cacheLookup returns a synthesized from-cache completion, or nil. The
// lookup is bounded so a slow analytical store never stalls requests.
// Callers emit the returned record; a hit must still resolve by id like
// any other completion.
func (r *Runner) cacheLookup(ctx context.Context, run *preparedRun) *models.AgentCompletion {
	switch run.req.UseCache {
	case UseCacheNever:
		return nil
	case UseCacheAlways:
	default:
		// Auto caches only deterministic configurations.
		if run.req.Version.Temperature == nil || *run.req.Version.Temperature != 0 {
			return nil
		}
	}
	if r.cache == nil {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.cacheTimeout)
	defer cancel()
	hit, err := r.cache.CachedCompletion(lookupCtx, run.req.TenantUID, run.versionID, run.req.Input.ID)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("Completion cache lookup failed", "error", err)
		}
		return nil
	}
	if hit == nil {
		return nil
	}

	return &models.AgentCompletion{
		ID:        run.completionID(),
		TenantUID: run.req.TenantUID,
		AgentID:   run.req.AgentID,
		Input:     run.req.Input,
		Output:    hit.Output,
		Messages:  run.rendered,
		Version:   run.req.Version,
		VersionID: run.versionID,
		Status:    models.CompletionSuccess,
		FromCache: true,
		Source:    run.req.Source,
		Metadata:  run.req.Metadata,
	}
}

// providerRequest maps the prepared run onto the adapter request, clamping
// reasoning settings to the model's published window.
func (r *Runner) providerRequest(run *preparedRun) provider.Request {
	v := run.req.Version
	budget, effort := run.info.Reasoning.Clamp(v.ReasoningBudget, v.ReasoningEffort)

	req := provider.Request{
		Model:            v.Model,
		Messages:         run.rendered,
		Temperature:      v.Temperature,
		TopP:             v.TopP,
		PresencePenalty:  v.PresencePenalty,
		FrequencyPenalty: v.FrequencyPenalty,
		MaxOutputTokens:  v.MaxOutputTokens,
		Tools:            v.Tools,
		ResponseSchema:   v.ResponseSchema,
		ReasoningEffort:  effort,
		ReasoningBudget:  budget,
	}
	if v.ToolChoice != "" {
		switch v.ToolChoice {
		case "auto", "none", "required":
			req.ToolChoice = v.ToolChoice
		default:
			req.ToolChoice = map[string]any{
				"type":     "function",
				"function": map[string]any{"name": v.ToolChoice},
			}
		}
	}
	return req
}

func (r *Runner) llmTrace(c *provider.LLMCompletion, elapsed time.Duration) models.Trace {
	c.IncursCost = provider.ResolveIncursCost(c, c.PreserveCredits)
	var cost float64
	if c.IncursCost {
		cost = provider.CostUSD(c.Model, c.Usage)
	}
	usage := c.Usage
	return models.Trace{
		Kind:            models.TraceKindLLM,
		DurationSeconds: elapsed.Seconds(),
		CostUSD:         cost,
		Model:           c.Model,
		Provider:        string(c.Provider),
		Usage:           &usage,
	}
}

// finalize assembles the durable completion record for success and failure
// alike.
func (r *Runner) finalize(run *preparedRun, llm *provider.LLMCompletion, traces []models.Trace, attemptErr error) *models.AgentCompletion {
	record := &models.AgentCompletion{
		ID:              run.completionID(),
		TenantUID:       run.req.TenantUID,
		AgentID:         run.req.AgentID,
		Input:           run.req.Input,
		Messages:        run.rendered,
		Version:         run.req.Version,
		VersionID:       run.versionID,
		Status:          models.CompletionSuccess,
		DurationSeconds: models.SumDuration(traces),
		CostUSD:         models.SumCost(traces),
		Traces:          traces,
		Source:          run.req.Source,
		Metadata:        run.req.Metadata,
	}
	if attemptErr != nil || llm == nil {
		record.Status = models.CompletionFailure
		record.Output.Error = outputError(attemptErr)
		return record
	}
	record.Output.Messages = llm.Messages
	return record
}

func outputError(err error) *models.OutputError {
	if err == nil {
		return &models.OutputError{Code: string(apperr.CodeInternal), Message: "no provider attempt succeeded"}
	}
	if errors.Is(err, context.Canceled) {
		return &models.OutputError{Code: "cancelled", Message: "request was cancelled"}
	}
	return &models.OutputError{Code: string(apperr.CodeOf(err)), Message: err.Error()}
}
