// Package hooks runs prioritized, timeout-bounded middleware chains at
// agent lifecycle points.
//
// Hooks on a channel run one after another, highest priority first. Each
// hook receives a copy of the payload produced by the last successful hook.
// Async hooks (the default) race a timeout; a hook that loses the race is
// recorded as failed and whatever it returns later is dropped.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marcus/agentrouter/internal/logging"
)

// DefaultTimeout bounds async hooks registered without a timeout.
const DefaultTimeout = 5 * time.Second

const tracerName = "github.com/marcus/agentrouter/internal/hooks"

// Payload is the data passed along a hook chain.
type Payload map[string]any

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Handler processes a payload. Returning a nil payload keeps the input.
type Handler func(ctx context.Context, p Payload) (Payload, error)

// Options configures a registered hook. Hooks are async unless Sync is set;
// a sync hook runs inline with no timeout.
type Options struct {
	Name     string
	Priority int
	Sync     bool
	Timeout  time.Duration
}

// Hook is a registered handler.
type Hook struct {
	Name     string
	Priority int
	Async    bool
	Timeout  time.Duration
	handler  Handler
}

// Result is the outcome of one hook invocation.
type Result struct {
	Hook     string
	Success  bool
	Duration time.Duration
	Err      error
}

// Outcome is the outcome of one Execute call.
type Outcome struct {
	Channel  Channel
	Payload  Payload
	Results  []Result
	Duration time.Duration
}

// Failed returns the results that did not succeed.
func (o *Outcome) Failed() []Result {
	var out []Result
	for _, r := range o.Results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// Metrics summarizes pipeline activity.
type Metrics struct {
	Executions           int
	Failures             int
	AverageExecutionTime time.Duration
	SuccessRate          float64
	RegisteredHooks      int
}

// Pipeline is a registry of hooks keyed by channel.
type Pipeline struct {
	mu      sync.RWMutex
	hooks   [numChannels][]Hook
	metrics Metrics
	avgNs   float64

	defaultTimeout time.Duration
	log            *logging.Logger
	tracer         trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithDefaultTimeout sets the timeout for async hooks registered without one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.defaultTimeout = d
		}
	}
}

// WithTracerProvider sets the tracer provider. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = tp.Tracer(tracerName) }
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		defaultTimeout: DefaultTimeout,
		log:            logging.Component("hooks"),
		tracer:         otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds handler to ch. Hooks with equal priority keep registration order.
func (p *Pipeline) Register(ch Channel, handler Handler, opts Options) error {
	if !ch.Valid() {
		return &ValidationError{Field: "channel", Value: int(ch), Err: ErrUnknownChannel}
	}
	if handler == nil {
		return &ValidationError{Field: "handler", Value: opts.Name, Err: ErrNilHandler}
	}

	h := Hook{
		Name:     opts.Name,
		Priority: opts.Priority,
		Async:    !opts.Sync,
		Timeout:  opts.Timeout,
		handler:  handler,
	}
	if h.Name == "" {
		h.Name = "anonymous"
	}
	if h.Timeout <= 0 {
		h.Timeout = p.defaultTimeout
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.hooks[ch]
	i := len(list)
	for j, existing := range list {
		if existing.Priority < h.Priority {
			i = j
			break
		}
	}
	list = append(list, Hook{})
	copy(list[i+1:], list[i:])
	list[i] = h
	p.hooks[ch] = list
	p.metrics.RegisteredHooks++

	p.log.DebugCtx("hook registered", map[string]any{
		"channel":  ch.String(),
		"hook":     h.Name,
		"priority": h.Priority,
		"async":    h.Async,
	})
	return nil
}

// Execute runs every hook on ch against payload.
//
// A failing hook on a critical channel stops the chain and its *HookError is
// returned together with the partial outcome. On other channels failures are
// logged and the chain continues with the last good payload.
func (p *Pipeline) Execute(ctx context.Context, ch Channel, payload Payload) (*Outcome, error) {
	if !ch.Valid() {
		return nil, &ValidationError{Field: "channel", Value: int(ch), Err: ErrUnknownChannel}
	}
	if payload == nil {
		payload = Payload{}
	}

	p.mu.RLock()
	chain := append([]Hook(nil), p.hooks[ch]...)
	p.mu.RUnlock()

	ctx, span := p.tracer.Start(ctx, "hooks.execute", trace.WithAttributes(
		attribute.String("hooks.channel", ch.String()),
		attribute.Int("hooks.count", len(chain)),
	))
	defer span.End()

	start := time.Now()
	out := &Outcome{Channel: ch, Payload: payload}
	current := payload
	failures := 0
	var abort error

	for _, h := range chain {
		next, res := p.runHook(ctx, ch, h, current.Clone())
		out.Results = append(out.Results, res)
		if res.Success {
			if next != nil {
				current = next
			}
			continue
		}

		failures++
		herr := &HookError{Channel: ch, Hook: h.Name, Err: res.Err}
		if ch.Critical() {
			abort = herr
			break
		}
		p.log.WarnCtx("hook failed", map[string]any{
			"channel": ch.String(),
			"hook":    h.Name,
			"error":   res.Err.Error(),
		})
	}

	out.Payload = current
	out.Duration = time.Since(start)
	p.record(out.Duration, failures)

	span.SetAttributes(attribute.Int("hooks.failures", failures))
	if abort != nil {
		span.RecordError(abort)
		span.SetStatus(codes.Error, abort.Error())
		p.log.ErrorCtx("critical hook failed", map[string]any{
			"channel": ch.String(),
			"error":   abort.Error(),
		})
		return out, abort
	}
	return out, nil
}

func (p *Pipeline) runHook(ctx context.Context, ch Channel, h Hook, in Payload) (Payload, Result) {
	ctx, span := p.tracer.Start(ctx, "hook."+h.Name, trace.WithAttributes(
		attribute.String("hook.channel", ch.String()),
		attribute.Int("hook.priority", h.Priority),
		attribute.Bool("hook.async", h.Async),
	))
	defer span.End()

	start := time.Now()
	var (
		next Payload
		err  error
	)
	if h.Async {
		next, err = runWithTimeout(ctx, h, in)
	} else {
		next, err = safeCall(ctx, h.handler, in)
	}

	res := Result{Hook: h.Name, Success: err == nil, Duration: time.Since(start), Err: err}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, res
	}
	return next, res
}

type callResult struct {
	payload Payload
	err     error
}

// runWithTimeout races the handler against h.Timeout and ctx. The handler's
// context is cancelled when this returns; a handler that ignores it keeps
// running but its result is never read.
func runWithTimeout(ctx context.Context, h Hook, in Payload) (Payload, error) {
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		out, err := safeCall(hctx, h.handler, in)
		done <- callResult{payload: out, err: err}
	}()

	timer := time.NewTimer(h.Timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.payload, r.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrHookTimeout, h.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func safeCall(ctx context.Context, fn Handler, in Payload) (out Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHookPanic, r)
		}
	}()
	return fn(ctx, in)
}

func (p *Pipeline) record(d time.Duration, failures int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.Executions++
	p.metrics.Failures += failures
	n := float64(p.metrics.Executions)
	p.avgNs = (p.avgNs*(n-1) + float64(d)) / n
}

// Metrics returns a snapshot of pipeline counters.
func (p *Pipeline) Metrics() Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	m := p.metrics
	m.AverageExecutionTime = time.Duration(p.avgNs)
	m.SuccessRate = 1
	if m.Executions > 0 {
		m.SuccessRate = max(0, 1-float64(m.Failures)/float64(m.Executions))
	}
	return m
}

// List returns the registered hooks of every non-empty channel, in run order.
func (p *Pipeline) List() map[Channel][]Hook {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[Channel][]Hook)
	for ch, list := range p.hooks {
		if len(list) > 0 {
			out[Channel(ch)] = append([]Hook(nil), list...)
		}
	}
	return out
}

// Clear removes every hook on ch.
func (p *Pipeline) Clear(ch Channel) error {
	if !ch.Valid() {
		return &ValidationError{Field: "channel", Value: int(ch), Err: ErrUnknownChannel}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.RegisteredHooks -= len(p.hooks[ch])
	p.hooks[ch] = nil
	return nil
}
