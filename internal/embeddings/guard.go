package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single embedding call when none is configured.
const DefaultTimeout = 30 * time.Second

// GuardOptions configures a Guard.
type GuardOptions struct {
	// Timeout bounds each call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// RatePerSecond limits calls to the backend. Zero disables limiting.
	RatePerSecond float64
	// Burst is the limiter burst. Defaults to 1.
	Burst int
	// Model labels metrics.
	Model   string
	Logger  *zap.Logger
	Metrics *Metrics
}

// Guard wraps a Provider so that every call has a deadline, is rate
// limited, and reports backend failures as ErrUpstreamUnavailable.
type Guard struct {
	next    Provider
	timeout time.Duration
	limiter *rate.Limiter
	model   string
	logger  *zap.Logger
	metrics *Metrics
}

var _ Provider = (*Guard)(nil)

// NewGuard wraps p.
func NewGuard(p Provider, opts GuardOptions) *Guard {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(opts.Logger)
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Guard{
		next:    p,
		timeout: opts.Timeout,
		limiter: limiter,
		model:   opts.Model,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// EmbedDocuments embeds texts within the configured timeout.
func (g *Guard) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := g.call(ctx, "embed_documents", len(texts), func(ctx context.Context) error {
		vectors, err := g.next.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
		}
		out = vectors
		return nil
	})
	return out, err
}

// EmbedQuery embeds a query within the configured timeout.
func (g *Guard) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.call(ctx, "embed_query", 1, func(ctx context.Context) error {
		vector, err := g.next.EmbedQuery(ctx, text)
		if err != nil {
			return err
		}
		out = vector
		return nil
	})
	return out, err
}

// Dimension returns the wrapped provider's dimension.
func (g *Guard) Dimension() int {
	return g.next.Dimension()
}

// Close closes the wrapped provider.
func (g *Guard) Close() error {
	return g.next.Close()
}

func (g *Guard) call(ctx context.Context, op string, batch int, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := g.wait(ctx)
	if err == nil {
		err = fn(ctx)
	}
	elapsed := time.Since(start)

	if err == nil {
		g.metrics.RecordCall(ctx, g.model, op, elapsed, batch, "")
		return nil
	}
	if errors.Is(err, ErrEmptyInput) {
		return err
	}

	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = "timeout"
	}
	g.metrics.RecordCall(context.WithoutCancel(ctx), g.model, op, elapsed, batch, reason)
	g.logger.Warn("embedding call failed",
		zap.String("operation", op),
		zap.String("reason", reason),
		zap.Duration("elapsed", elapsed),
		zap.Error(err))

	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
}

func (g *Guard) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
