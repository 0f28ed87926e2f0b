package rag

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v3"

	"pdfrag/src/log"
)

// RetryPolicy bounds retries of backend calls. Only errors matching
// ErrBackend are retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

func (p RetryPolicy) do(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrBackend) {
			return backoff.Permanent(err)
		}
		log.Debug("backend call failed", "op", op, "attempt", attempt, "error", err.Error())
		return err
	}, p.backOff(ctx))
}

// RetryingEmbedder retries a wrapped Embedder according to a RetryPolicy.
type RetryingEmbedder struct {
	next   Embedder
	policy RetryPolicy
}

func NewRetryingEmbedder(next Embedder, policy RetryPolicy) *RetryingEmbedder {
	return &RetryingEmbedder{next: next, policy: policy}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.policy.do(ctx, "embed", func() error {
		var err error
		vec, err = r.next.Embed(ctx, text)
		return err
	})
	return vec, err
}

// RetryingCompleter retries a wrapped Completer according to a RetryPolicy.
type RetryingCompleter struct {
	next   Completer
	policy RetryPolicy
}

func NewRetryingCompleter(next Completer, policy RetryPolicy) *RetryingCompleter {
	return &RetryingCompleter{next: next, policy: policy}
}

func (r *RetryingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := r.policy.do(ctx, "complete", func() error {
		var err error
		answer, err = r.next.Complete(ctx, prompt)
		return err
	})
	return answer, err
}
