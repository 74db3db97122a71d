package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireConsumesTokens(t *testing.T) {
	b := NewBucket(5, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := b.Acquire(ctx, 1); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := b.Acquire(ctx2, 1); err == nil {
		t.Fatal("expected acquire to block once capacity is exhausted")
	}
}

func TestAcquireRefillsOverTime(t *testing.T) {
	b := NewBucket(1, 20) // refills fast: 1 token every 50ms
	ctx := context.Background()

	if err := b.Acquire(ctx, 1); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := b.Acquire(ctx2, 1); err != nil {
		t.Fatalf("expected refill to allow a second acquire, got: %v", err)
	}
}

func TestForceDrainBlocksUntilExpiry(t *testing.T) {
	b := NewBucket(10, 100)
	b.ForceDrain(150 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := b.Acquire(ctx, 1); err == nil {
		t.Fatal("expected acquire to be blocked during the forced drain window")
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := b.Acquire(ctx2, 1); err != nil {
		t.Fatalf("expected acquire to succeed after the drain window expires, got: %v", err)
	}
}

func TestFIFOOrdering(t *testing.T) {
	b := NewBucket(1, 1000)
	ctx := context.Background()

	// Drain the single available token.
	if err := b.Acquire(ctx, 1); err != nil {
		t.Fatalf("drain acquire: %v", err)
	}

	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := b.Acquire(ctx, 1); err == nil {
				order <- i
			}
		}()
		time.Sleep(5 * time.Millisecond) // stagger enqueue order
	}

	for i := 0; i < 3; i++ {
		select {
		case got := <-order:
			if got != i {
				t.Errorf("expected FIFO order, waiter %d served at position %d", got, i)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for FIFO waiters to be served")
		}
	}
}
