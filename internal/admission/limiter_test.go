package admission

import (
	"testing"
	"time"
)

// fakeClock — управляемый источник времени.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(node string, clock *fakeClock, capacity, refill float64) *Limiter {
	return New(Config{
		NodeID:          node,
		Capacity:        capacity,
		RefillPerSecond: refill,
		Now:             clock.Now,
	})
}

func TestLimiterAllowConsumesTokens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newTestLimiter("node-1", clock, 3, 1)

	for i := 0; i < 3; i++ {
		d := l.Allow("project-a")
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
		if d.TokensRemaining < 0 {
			t.Fatalf("tokens remaining = %f, want >= 0", d.TokensRemaining)
		}
	}

	d := l.Allow("project-a")
	if d.Allowed {
		t.Fatal("fourth request allowed, want denied")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("retry after = %v, want > 0", d.RetryAfter)
	}
}

func TestLimiterRefillRestoresTokens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newTestLimiter("node-1", clock, 2, 1)

	l.Allow("project-a")
	l.Allow("project-a")
	if d := l.Allow("project-a"); d.Allowed {
		t.Fatal("request with empty bucket allowed")
	}

	clock.Advance(time.Second)
	if d := l.Allow("project-a"); !d.Allowed {
		t.Fatal("request after refill denied")
	}
}

func TestLimiterRefillCapsAtCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newTestLimiter("node-1", clock, 2, 1)

	l.Allow("project-a")
	clock.Advance(time.Hour)

	// После долгого простоя доступно ровно capacity, не больше.
	if got := l.TokensEstimate("project-a"); got != 2 {
		t.Fatalf("tokens estimate = %f, want capacity 2", got)
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newTestLimiter("node-1", clock, 1, 1)

	if d := l.Allow("project-a"); !d.Allowed {
		t.Fatal("project-a denied")
	}
	if d := l.Allow("project-a"); d.Allowed {
		t.Fatal("project-a second request allowed")
	}
	if d := l.Allow("project-b"); !d.Allowed {
		t.Fatal("project-b denied, buckets must be independent")
	}
}

func TestLimiterMergeAppliesRemoteConsumption(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	a := newTestLimiter("node-a", clock, 4, 0.001)
	b := newTestLimiter("node-b", clock, 4, 0.001)

	// node-b истратил почти всё.
	b.Allow("project-a")
	b.Allow("project-a")
	b.Allow("project-a")
	b.Allow("project-a")

	a.Merge(b.Snapshot())

	// Политика минимума: после слияния node-a видит пустой bucket node-b.
	if d := a.Allow("project-a"); d.Allowed {
		t.Fatal("node-a allowed request despite exhausted remote bucket")
	}
}

func TestLimiterMergeIsLastWriterWins(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newTestLimiter("node-a", clock, 10, 1)

	newer := Record{Key: "k", NodeID: "node-b", Tokens: 1, LastUpdate: clock.Now()}
	older := Record{Key: "k", NodeID: "node-b", Tokens: 9, LastUpdate: clock.Now().Add(-time.Minute)}

	l.Merge([]Record{newer})
	l.Merge([]Record{older})

	// Поздняя запись (1 токен) должна пережить повторную доставку ранней.
	if got := l.TokensEstimate("k"); got > 2 {
		t.Fatalf("tokens estimate = %f, stale record overwrote newer one", got)
	}
}

func TestLimiterGossipConverges(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	a := newTestLimiter("node-a", clock, 10, 1)
	b := newTestLimiter("node-b", clock, 10, 1)

	a.Allow("project-a")
	a.Allow("project-a")
	b.Allow("project-a")

	// Полный обмен в обе стороны.
	a.Merge(b.Snapshot())
	b.Merge(a.Snapshot())

	// Повторный обмен ничего не меняет: состояния сошлись.
	ea := a.TokensEstimate("project-a")
	eb := b.TokensEstimate("project-a")
	if ea != eb {
		t.Fatalf("estimates diverged: node-a %f, node-b %f", ea, eb)
	}

	a.Merge(b.Snapshot())
	b.Merge(a.Snapshot())
	if got := a.TokensEstimate("project-a"); got != ea {
		t.Fatalf("estimate changed after idempotent exchange: %f → %f", ea, got)
	}
}

func TestLimiterDenyAlwaysReportsPositiveRetryAfter(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newTestLimiter("node-1", clock, 1, 100)

	l.Allow("project-a")
	d := l.Allow("project-a")
	if d.Allowed {
		t.Fatal("request allowed, want denied")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("retry after = %v, want strictly positive", d.RetryAfter)
	}
}

func TestLimiterTokensNeverNegative(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newTestLimiter("node-1", clock, 2, 1)

	for i := 0; i < 20; i++ {
		l.Allow("project-a")
	}
	if got := l.TokensEstimate("project-a"); got < 0 {
		t.Fatalf("tokens estimate = %f, want >= 0", got)
	}
}
