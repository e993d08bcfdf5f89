package breaker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/user/alttext-service/internal/adapter/memory"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewTransientRepo().WithClock(func() time.Time { return now })
	b := New(store, zaptest.NewLogger(t))

	const provider = "api.example.com"
	for i := 1; i <= 2; i++ {
		if opened := b.RecordFailure(ctx, provider); opened {
			t.Fatalf("breaker opened after %d failures", i)
		}
		if !b.Allow(ctx, provider) {
			t.Fatalf("breaker should stay closed after %d failures", i)
		}
	}
	if opened := b.RecordFailure(ctx, provider); !opened {
		t.Fatal("third failure should open the breaker")
	}
	if b.Allow(ctx, provider) {
		t.Fatal("open breaker must reject calls")
	}

	now = now.Add(29 * time.Minute)
	if b.Allow(ctx, provider) {
		t.Fatal("breaker must stay open during cooldown")
	}
	now = now.Add(time.Minute)
	if !b.Allow(ctx, provider) {
		t.Fatal("breaker must close once the cooldown lapses")
	}
	if n, _ := b.Failures(ctx, provider); n != 0 {
		t.Fatalf("expected counter reset after cooldown, got %d", n)
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	ctx := context.Background()
	b := New(memory.NewTransientRepo(), nil)

	b.RecordFailure(ctx, "p")
	b.RecordFailure(ctx, "p")
	b.RecordSuccess(ctx, "p")
	b.RecordFailure(ctx, "p")

	if n, _ := b.Failures(ctx, "p"); n != 1 {
		t.Fatalf("expected count to restart at 1, got %d", n)
	}
	if !b.Allow(ctx, "p") {
		t.Fatal("breaker should be closed")
	}
}

func TestBreakerProvidersAreIndependent(t *testing.T) {
	ctx := context.Background()
	b := New(memory.NewTransientRepo(), nil, WithThreshold(1))
	b.RecordFailure(ctx, "a")
	if b.Allow(ctx, "a") {
		t.Fatal("provider a should be open")
	}
	if !b.Allow(ctx, "b") {
		t.Fatal("provider b should be closed")
	}
}
