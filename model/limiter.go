package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrTimeout is returned when a single model call exceeds its deadline.
var ErrTimeout = errors.New("model call timed out")

type LimiterConfig struct {
	// MaxInFlight caps concurrent external calls.
	MaxInFlight int
	// RequestsPerMinute is a sustained rate; zero disables it.
	RequestsPerMinute int
	// CallTimeout bounds every call; zero disables it.
	CallTimeout time.Duration
}

// Limiter gates every outbound model call. Admission (waiting for a slot
// or a rate token) follows the caller's context; once admitted the call runs
// on a context detached from the caller's cancellation and bounded only by
// CallTimeout, so an in-flight call is allowed to finish.
type Limiter struct {
	sem     *semaphore.Weighted
	rate    *rate.Limiter
	timeout time.Duration
}

func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	l := &Limiter{
		sem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		timeout: cfg.CallTimeout,
	}
	if cfg.RequestsPerMinute > 0 {
		perSecond := float64(cfg.RequestsPerMinute) / 60
		l.rate = rate.NewLimiter(rate.Limit(perSecond), max(1, cfg.MaxInFlight))
	}
	return l
}

// Do runs fn once it is admitted. It returns the caller's context error
// without running fn if the caller is cancelled while waiting.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	callCtx := context.WithoutCancel(ctx)
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, l.timeout)
		defer cancel()
	}

	err := fn(callCtx)
	if err != nil && callCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %v: %v", ErrTimeout, l.timeout, err)
	}
	return err
}

// IsRetryable reports whether a failed call is worth repeating.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 429 || statusErr.Code >= 500
	}
	return false
}

type limitedReasoner struct {
	next    Reasoner
	limiter *Limiter
}

// LimitReasoner routes every Complete call through the limiter.
func LimitReasoner(r Reasoner, l *Limiter) Reasoner {
	return &limitedReasoner{next: r, limiter: l}
}

func (r *limitedReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := r.limiter.Do(ctx, func(callCtx context.Context) error {
		var err error
		out, err = r.next.Complete(callCtx, prompt)
		return err
	})
	return out, err
}

type limitedEmbedder struct {
	next    Embedder
	limiter *Limiter
}

// LimitEmbedder routes every Embed call through the limiter.
func LimitEmbedder(e Embedder, l *Limiter) Embedder {
	return &limitedEmbedder{next: e, limiter: l}
}

func (e *limitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := e.limiter.Do(ctx, func(callCtx context.Context) error {
		var err error
		out, err = e.next.Embed(callCtx, text)
		return err
	})
	return out, err
}
