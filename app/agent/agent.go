// Package agent holds the model-driven stages of the pipeline: classifying
// chunks, locating reference search terms and writing grounded rewrites.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vagueness/model"
)

var ErrMalformedReply = errors.New("malformed model reply")

// Reply is a parsed model answer. A malformed reply keeps the raw text so it
// can be fed to a repair prompt.
type Reply[T any] struct {
	Value     T
	Raw       string
	Malformed bool
	Reason    error
}

func Ok[T any](v T, raw string) Reply[T] {
	return Reply[T]{Value: v, Raw: raw}
}

func Malformed[T any](raw string, reason error) Reply[T] {
	return Reply[T]{Raw: raw, Malformed: true, Reason: reason}
}

// ParseReply decodes raw into T and applies check. Any failure yields a
// malformed reply.
func ParseReply[T any](raw string, check func(*T) error) Reply[T] {
	v, err := model.DecodeJSON[T](raw)
	if err != nil {
		return Malformed[T](raw, err)
	}
	if check != nil {
		if err := check(&v); err != nil {
			return Malformed[T](raw, err)
		}
	}
	return Ok(v, raw)
}

type CallConfig struct {
	// MaxRetries is the number of extra attempts after a retryable failure.
	MaxRetries int
	Backoff    time.Duration
}

type caller struct {
	reasoner model.Reasoner
	cfg      CallConfig
	logger   *slog.Logger
}

func newCaller(r model.Reasoner, cfg CallConfig) caller {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 300 * time.Millisecond
	}
	return caller{reasoner: r, cfg: cfg, logger: slog.Default()}
}

// complete retries timeouts and transient server errors with linear backoff.
func (c caller) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		raw, err := c.reasoner.Complete(ctx, prompt)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil || !model.IsRetryable(err) {
			return "", err
		}
		lastErr = err
		c.logger.Warn("[AGENT] retryable model error", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * c.cfg.Backoff):
		}
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// ask sends prompt and, if the reply does not fit the expected shape, sends
// one repair prompt. It reports how many model calls were made.
func ask[T any](ctx context.Context, c caller, prompt, shape string, check func(*T) error) (Reply[T], int, error) {
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return Reply[T]{}, 1, err
	}
	reply := ParseReply(raw, check)
	if !reply.Malformed {
		return reply, 1, nil
	}
	c.logger.Warn("[AGENT] malformed reply, asking for reformat", "reason", reply.Reason)

	raw, err = c.complete(ctx, model.BuildRepairPrompt(raw, shape))
	if err != nil {
		return reply, 2, err
	}
	reply = ParseReply(raw, check)
	if reply.Malformed {
		return reply, 2, fmt.Errorf("%w: %v", ErrMalformedReply, reply.Reason)
	}
	return reply, 2, nil
}
