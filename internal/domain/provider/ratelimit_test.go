package provider

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_EnforcesMinimumSpacing(t *testing.T) {
	p := &Profile{Vendor: VendorEpic, CallDelay: 10 * time.Millisecond}
	l := NewRateLimiter()
	ctx := context.Background()

	const calls = 4
	start := time.Now()
	for i := 0; i < calls; i++ {
		if err := l.Wait(ctx, p, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	elapsed := time.Since(start)

	if min := time.Duration(calls-1) * p.CallDelay; elapsed < min {
		t.Errorf("expected %d calls to take at least %s, took %s", calls, min, elapsed)
	}
}

func TestRateLimiter_TenantsIndependent(t *testing.T) {
	p := &Profile{Vendor: VendorCerner, CallDelay: 50 * time.Millisecond, TenantHeader: "X-Tenant-ID"}
	l := NewRateLimiter()
	ctx := context.Background()

	// One call per tenant: neither should wait on the other's bucket.
	start := time.Now()
	if err := l.Wait(ctx, p, "tenant-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Wait(ctx, p, "tenant-b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= p.CallDelay {
		t.Errorf("independent tenants should not serialize, took %s", elapsed)
	}
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	p := &Profile{Vendor: VendorEpic, CallDelay: time.Minute}
	l := NewRateLimiter()

	// Consume the initial token, then cancel while waiting for the next.
	if err := l.Wait(context.Background(), p, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, p, ""); err == nil {
		t.Fatal("expected error from cancelled wait")
	}
}
