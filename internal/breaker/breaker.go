// Package breaker counts consecutive provider failures in the shared
// transient store and short-circuits calls while a provider is failing.
//
// There is no half-open probe: the failure counter expires a cooldown after
// the last recorded failure and the breaker is closed again from zero.
package breaker

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/repository"
	"github.com/user/alttext-service/pkg/utils"
)

const (
	DefaultThreshold = 3
	DefaultCooldown  = 30 * time.Minute
)

// Breaker is safe for concurrent use; all state lives in the store.
type Breaker struct {
	store     repository.TransientRepository
	threshold int64
	cooldown  time.Duration
	logger    *zap.Logger
}

// Option customizes the breaker.
type Option func(*Breaker)

// WithThreshold overrides the failure count that opens the breaker.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = int64(n)
		}
	}
}

// WithCooldown overrides how long an open breaker rejects calls.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// New creates a breaker backed by store.
func New(store repository.TransientRepository, logger *zap.Logger, opts ...Option) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{
		store:     store,
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func key(provider string) string {
	return "breaker:" + utils.HashURL(provider)
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures(ctx context.Context, provider string) (int64, error) {
	val, ok, err := b.store.Get(ctx, key(provider))
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// Allow reports whether a call to provider may be attempted. A store error
// allows the call so that a broken store never disables the provider.
func (b *Breaker) Allow(ctx context.Context, provider string) bool {
	n, err := b.Failures(ctx, provider)
	if err != nil {
		b.logger.Warn("breaker state unavailable", zap.String("provider", provider), zap.Error(err))
		return true
	}
	return n < b.threshold
}

// RecordSuccess resets the failure counter.
func (b *Breaker) RecordSuccess(ctx context.Context, provider string) {
	if err := b.store.Delete(ctx, key(provider)); err != nil {
		b.logger.Warn("failed to reset breaker", zap.String("provider", provider), zap.Error(err))
	}
}

// RecordFailure increments the counter and reports whether this failure
// transitioned the breaker to open. Exactly one concurrent caller observes
// the transition because the increment is atomic.
func (b *Breaker) RecordFailure(ctx context.Context, provider string) bool {
	n, err := b.store.Incr(ctx, key(provider), b.cooldown)
	if err != nil {
		b.logger.Warn("failed to record breaker failure", zap.String("provider", provider), zap.Error(err))
		return false
	}
	return n == b.threshold
}
