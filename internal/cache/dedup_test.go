package cache

import (
	"context"
	"testing"
	"time"
)

func TestDedupCacheDisabledAlwaysMisses(t *testing.T) {
	d := NewDedupCache(nil, nil)
	ctx := context.Background()
	fp := Fingerprint{UpdatedAt: time.Now(), Volume: 100}

	if d.Unchanged(ctx, "m1", fp) {
		t.Fatal("a disabled cache must never report unchanged")
	}
	d.Remember(ctx, "m1", fp) // must not panic with a nil client
	if d.Unchanged(ctx, "m1", fp) {
		t.Fatal("a disabled cache must still miss after Remember")
	}
}
