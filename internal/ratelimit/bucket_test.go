package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestConsumeImmediateWhenTokensAvailable(t *testing.T) {
	t.Parallel()

	b := New(10, 100)
	start := time.Now()
	if err := b.Consume(context.Background(), 1); err != nil {
		t.Fatalf("Consume() = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("Consume with full bucket took %v, want immediate", elapsed)
	}
	if s := b.SnapshotNow(); s.Tokens > 9.5 {
		t.Fatalf("tokens = %.2f after consume, want about 9", s.Tokens)
	}
}

func TestConsumeBlocksForRefill(t *testing.T) {
	t.Parallel()

	// 1 token capacity, 20 tokens/sec: a drained bucket needs 50ms per token.
	b := New(1, 20)
	if err := b.Consume(context.Background(), 1); err != nil {
		t.Fatalf("drain: %v", err)
	}

	start := time.Now()
	if err := b.Consume(context.Background(), 1); err != nil {
		t.Fatalf("Consume() = %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 30*time.Millisecond {
		t.Fatalf("Consume returned after %v, want >= ~50ms refill wait", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("Consume took %v, way past the computed wait", elapsed)
	}
}

func TestConsumeContextCancelAbortsWait(t *testing.T) {
	t.Parallel()

	// Effectively no refill within the test window.
	b := New(1, 0.001)
	if err := b.Consume(context.Background(), 1); err != nil {
		t.Fatalf("drain: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := b.Consume(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Consume() = %v, want context.DeadlineExceeded", err)
	}
}

func TestTokensCappedAtCapacity(t *testing.T) {
	t.Parallel()

	b := New(5, 1000)
	time.Sleep(20 * time.Millisecond) // would accrue 20 tokens uncapped
	if s := b.SnapshotNow(); s.Tokens > s.Capacity {
		t.Fatalf("tokens = %.2f exceeds capacity %.2f", s.Tokens, s.Capacity)
	}
}

func TestConsumeRejectsAmountOverCapacity(t *testing.T) {
	t.Parallel()

	b := New(2, 10)
	if err := b.Consume(context.Background(), 3); err == nil {
		t.Fatal("Consume(3) on capacity-2 bucket = nil, want error")
	}
}

func TestConcurrentConsumersAreThrottled(t *testing.T) {
	t.Parallel()

	// Capacity 2, 50 tokens/sec. Six consumers need 4 refilled tokens,
	// so the last one cannot finish before ~80ms.
	b := New(2, 50)
	start := time.Now()

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Consume(context.Background(), 1)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Consume() = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("six consumes finished in %v, want throttling to ~80ms", elapsed)
	}

	if s := b.SnapshotNow(); s.Tokens < 0 {
		t.Fatalf("tokens went negative: %.2f", s.Tokens)
	}
}
