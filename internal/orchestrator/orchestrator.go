package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modelgate/modelgate/internal/accounting"
	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/providers"
)

// Options tune the attempt loop.
type Options struct {
	MaxAttempts        int
	DefaultTemperature float64
	DefaultMaxTokens   int
}

// DefaultOptions returns the gateway defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:        3,
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   2000,
	}
}

// Orchestrator turns one inbound chat request into one successful
// (possibly multi-attempt, possibly streamed) upstream call. Composition
// is explicit: routing, resilience, fallback and accounting are injected.
type Orchestrator struct {
	logger     *zap.Logger
	adapter    providers.Adapter
	selector   *ModelSelector
	chain      *FallbackChain
	policy     *ResiliencePolicy
	accountant *accounting.Accountant
	metrics    *metrics.GatewayMetrics
	opts       Options
}

// New creates an orchestrator.
func New(
	logger *zap.Logger,
	adapter providers.Adapter,
	selector *ModelSelector,
	chain *FallbackChain,
	policy *ResiliencePolicy,
	accountant *accounting.Accountant,
	gatewayMetrics *metrics.GatewayMetrics,
	opts Options,
) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.DefaultTemperature == 0 {
		opts.DefaultTemperature = 0.7
	}
	if opts.DefaultMaxTokens <= 0 {
		opts.DefaultMaxTokens = 2000
	}

	return &Orchestrator{
		logger:     logger,
		adapter:    adapter,
		selector:   selector,
		chain:      chain,
		policy:     policy,
		accountant: accountant,
		metrics:    gatewayMetrics,
		opts:       opts,
	}
}

// Execute runs the unary pipeline: validate, route, attempt with
// fallback, account, assemble.
func (o *Orchestrator) Execute(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	estimated := EstimateTokens(req.Messages)
	model, err := o.selector.Select(estimated, req.Model)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := o.runAttempts(ctx, req, model, estimated)
	if err != nil {
		o.metrics.ObserveFailure(model, Kind(err).String())
		return nil, err
	}
	elapsed := time.Since(start)

	wasFallback := result.attempts > 1
	cost := o.accountant.Track(ctx, accounting.TrackInput{
		Model:        result.modelUsed,
		Provider:     ProviderName(result.modelUsed),
		InputTokens:  result.inputTokens,
		OutputTokens: result.outputTokens,
		ResponseTime: elapsed,
		WasFallback:  wasFallback,
	})

	o.metrics.ObserveSuccess(result.modelUsed, wasFallback, elapsed.Seconds(), result.inputTokens, result.outputTokens)

	return &ChatResponse{
		Content:       result.content,
		Model:         result.modelUsed,
		TokensUsed:    result.inputTokens + result.outputTokens,
		EstimatedCost: cost,
		ResponseTime:  elapsed,
	}, nil
}

// runAttempts drives up to MaxAttempts calls over the fallback chain,
// sequentially within the request.
func (o *Orchestrator) runAttempts(ctx context.Context, req *ChatRequest, initialModel string, estimated int) (*attemptResult, error) {
	currentModel := initialModel
	attempted := make([]string, 0, o.opts.MaxAttempts)

	for attempts := 1; attempts <= o.opts.MaxAttempts; attempts++ {
		attempted = append(attempted, currentModel)

		var completion *providers.Completion
		err := o.policy.Execute(ctx, ProviderName(currentModel), func(ctx context.Context) error {
			c, callErr := o.adapter.ChatCompletion(ctx, o.params(req, currentModel))
			if callErr != nil {
				return callErr
			}
			completion = c
			return nil
		})

		// An empty result from a healthy upstream counts as a transient
		// failure of this attempt.
		if err == nil && completion.Content == "" {
			err = &GatewayError{Kind: KindTransient, Message: "upstream returned an empty completion"}
		}

		if err == nil {
			inputTokens := completion.InputTokens
			if inputTokens == 0 {
				inputTokens = estimated
			}
			outputTokens := completion.OutputTokens
			if outputTokens == 0 {
				outputTokens = len(completion.Content) / 4
			}
			return &attemptResult{
				content:      completion.Content,
				inputTokens:  inputTokens,
				outputTokens: outputTokens,
				modelUsed:    currentModel,
				attempts:     attempts,
			}, nil
		}

		if errors.Is(err, context.Canceled) {
			return nil, &GatewayError{Kind: KindClientCancel, Message: "request canceled by client", Err: err}
		}
		if !IsTransient(err) {
			return nil, terminalError(err)
		}

		o.logger.Warn("Attempt failed, considering fallback",
			zap.String("model", currentModel),
			zap.Int("attempt", attempts),
			zap.Error(err))

		if attempts == o.opts.MaxAttempts {
			break
		}

		next, chainErr := o.chain.Next(currentModel, attempted)
		if chainErr != nil {
			// Chain errors are terminal by definition.
			return nil, chainErr
		}
		currentModel = next
	}

	return nil, NewAllProvidersFailedError(attempted)
}

func (o *Orchestrator) params(req *ChatRequest, model string) *providers.ChatParams {
	temperature := o.opts.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := o.opts.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	return &providers.ChatParams{
		Model:       model,
		Messages:    req.Messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// terminalError normalizes a non-transient failure into a classified
// gateway error for the transport boundary.
func terminalError(err error) error {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}

	var statusErr *providers.StatusError
	if errors.As(err, &statusErr) {
		return &GatewayError{Kind: KindUpstreamTerminal, Message: "upstream rejected the request", Err: err}
	}

	return &GatewayError{Kind: KindInternal, Message: "upstream call failed", Err: err}
}

// StreamSession is a running streaming orchestration. Frames arrive in
// upstream order on Frames; after the channel closes, Err reports the
// terminal failure if the stream ended without a complete frame.
type StreamSession struct {
	frames chan StreamFrame

	mu  sync.Mutex
	err error
}

// Frames returns the frame channel. The producer stalls when the
// consumer is slow; backpressure is end-to-end.
func (s *StreamSession) Frames() <-chan StreamFrame {
	return s.frames
}

// Err returns the terminal error, valid once Frames is closed.
func (s *StreamSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *StreamSession) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// ExecuteStream runs the streaming pipeline. Validation and routing
// failures are returned synchronously, before any frame is produced.
func (o *Orchestrator) ExecuteStream(ctx context.Context, req *ChatRequest) (*StreamSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	estimated := EstimateTokens(req.Messages)
	model, err := o.selector.Select(estimated, req.Model)
	if err != nil {
		return nil, err
	}

	session := &StreamSession{frames: make(chan StreamFrame)}
	go o.runStream(ctx, req, model, estimated, session)
	return session, nil
}

// runStream is the streaming variant of the attempt loop. Fallback is
// only possible before the first chunk reaches the caller: once partial
// content bound to a specific model has been delivered, any failure is
// terminal and the stream closes without a complete frame.
func (o *Orchestrator) runStream(ctx context.Context, req *ChatRequest, initialModel string, estimated int, session *StreamSession) {
	defer close(session.frames)

	start := time.Now()
	currentModel := initialModel
	attempted := make([]string, 0, o.opts.MaxAttempts)

	for attempts := 1; attempts <= o.opts.MaxAttempts; attempts++ {
		attempted = append(attempted, currentModel)

		emitted, usage, err := o.streamAttempt(ctx, req, currentModel, session.frames)

		if err == nil && emitted == 0 && usage == nil {
			err = &GatewayError{Kind: KindTransient, Message: "upstream stream produced no content"}
		}

		if err == nil {
			o.finishStream(ctx, session, currentModel, estimated, emitted, usage, attempts, start)
			return
		}

		if errors.Is(err, context.Canceled) {
			// Caller hung up: abandon silently, bill nothing.
			return
		}

		if emitted > 0 {
			o.logger.Warn("Stream failed after partial content, closing without complete frame",
				zap.String("model", currentModel),
				zap.Int("chunks_sent", emitted),
				zap.Error(err))
			o.metrics.ObserveFailure(currentModel, Kind(err).String())
			session.fail(terminalError(err))
			return
		}

		if !IsTransient(err) {
			o.metrics.ObserveFailure(currentModel, Kind(err).String())
			session.fail(terminalError(err))
			return
		}

		o.logger.Warn("Stream attempt failed before first chunk, considering fallback",
			zap.String("model", currentModel),
			zap.Int("attempt", attempts),
			zap.Error(err))

		if attempts == o.opts.MaxAttempts {
			break
		}

		next, chainErr := o.chain.Next(currentModel, attempted)
		if chainErr != nil {
			session.fail(chainErr)
			return
		}
		currentModel = next
	}

	allFailed := NewAllProvidersFailedError(attempted)
	o.metrics.ObserveFailure(initialModel, allFailed.Kind.String())
	session.fail(allFailed)
}

// streamAttempt opens one upstream stream and forwards content chunks as
// they arrive. Only the stream open goes through the resilience policy;
// retrying after delivered chunks would duplicate content.
func (o *Orchestrator) streamAttempt(ctx context.Context, req *ChatRequest, model string, frames chan<- StreamFrame) (int, *providers.Usage, error) {
	var events <-chan providers.StreamEvent
	err := o.policy.Execute(ctx, ProviderName(model), func(ctx context.Context) error {
		ev, openErr := o.adapter.ChatCompletionStream(ctx, o.params(req, model))
		if openErr != nil {
			return openErr
		}
		events = ev
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	emitted := 0
	var usage *providers.Usage

	for event := range events {
		if event.Err != nil {
			return emitted, usage, event.Err
		}
		if event.Usage != nil {
			usage = event.Usage
		}
		if event.Content == "" {
			continue
		}

		select {
		case frames <- ChunkFrame(event.Content):
			emitted++
		case <-ctx.Done():
			return emitted, usage, ctx.Err()
		}
	}

	return emitted, usage, nil
}

// finishStream runs accounting and emits the terminal complete frame.
// Emitted chunk count is the output estimate unless the upstream
// reported exact usage with its final event.
func (o *Orchestrator) finishStream(ctx context.Context, session *StreamSession, model string, estimated, emitted int, usage *providers.Usage, attempts int, start time.Time) {
	// A caller that hung up as the stream ended gets no complete frame
	// and is not billed.
	if ctx.Err() != nil {
		return
	}

	elapsed := time.Since(start)

	inputTokens := estimated
	outputTokens := emitted
	if usage != nil {
		if usage.InputTokens > 0 {
			inputTokens = usage.InputTokens
		}
		if usage.OutputTokens > 0 {
			outputTokens = usage.OutputTokens
		}
	}

	wasFallback := attempts > 1
	cost := o.accountant.Track(ctx, accounting.TrackInput{
		Model:        model,
		Provider:     ProviderName(model),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		ResponseTime: elapsed,
		WasFallback:  wasFallback,
	})

	responseTimeMs := elapsed.Milliseconds()
	if responseTimeMs < 1 {
		responseTimeMs = 1
	}

	meta := &StreamMetadata{
		Model:              model,
		TotalTokens:        outputTokens,
		ResponseTimeMs:     responseTimeMs,
		AvgTokensPerSecond: float64(outputTokens) * 1000 / float64(responseTimeMs),
		EstimatedCostUSD:   cost.USD(),
		Provider:           ProviderName(model),
	}

	select {
	case session.frames <- CompleteFrame(meta):
		o.metrics.ObserveSuccess(model, wasFallback, elapsed.Seconds(), inputTokens, outputTokens)
	case <-ctx.Done():
	}
}
