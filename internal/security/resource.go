package security

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ResourceTracker enforces the resource policy's concurrency bound. It
// hands out a weighted semaphore permit per dispatch; a panic inside the
// tool still releases the permit because callers acquire it with defer.
// When the policy sets MaxOpsPerSecond, a per-agent token-bucket limiter
// also gates acquisition: an agent driving tool calls faster than its
// budget is denied before it ever reaches the concurrency semaphore.
type ResourceTracker struct {
	mu        sync.Mutex
	sems      map[string]*semaphore.Weighted
	limiters  map[string]*rate.Limiter
	limit     int64
	opsPerSec rate.Limit
	burst     int
}

// NewResourceTracker builds a tracker bounded by policy.MaxConcurrentOps
// and, if set, policy.MaxOpsPerSecond.
func NewResourceTracker(policy ResourcePolicy) *ResourceTracker {
	limit := int64(policy.MaxConcurrentOps)
	if limit <= 0 {
		limit = 16
	}
	t := &ResourceTracker{
		sems:     make(map[string]*semaphore.Weighted),
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
	}
	if policy.MaxOpsPerSecond > 0 {
		t.opsPerSec = rate.Limit(policy.MaxOpsPerSecond)
		t.burst = policy.MaxOpsPerSecond * 2
	}
	return t
}

func (t *ResourceTracker) semFor(agentID string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()
	sem, ok := t.sems[agentID]
	if !ok {
		sem = semaphore.NewWeighted(t.limit)
		t.sems[agentID] = sem
	}
	return sem
}

func (t *ResourceTracker) rateLimiterFor(agentID string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[agentID]
	if !ok {
		lim = rate.NewLimiter(t.opsPerSec, t.burst)
		t.limiters[agentID] = lim
	}
	return lim
}

// PermitGuard represents one acquired concurrency slot. Release must be
// called exactly once.
type PermitGuard struct {
	sem      *semaphore.Weighted
	released bool
	mu       sync.Mutex
}

// Release returns the permit. Safe to call more than once; only the
// first call has effect.
func (g *PermitGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.sem.Release(1)
}

// Acquire blocks (respecting ctx cancellation) until a concurrency slot
// for agentID is available. If a per-agent rate limit is configured and
// exhausted, Acquire denies immediately rather than waiting: a burst is
// a policy violation, not a queueing condition.
func (t *ResourceTracker) Acquire(ctx context.Context, agentID string) (*PermitGuard, error) {
	if t.opsPerSec > 0 && !t.rateLimiterFor(agentID).Allow() {
		return nil, &resourceErr{kind: "ConcurrencyLimit", message: "agent " + agentID + " exceeded max_ops_per_second"}
	}
	sem := t.semFor(agentID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, &resourceErr{kind: "ConcurrencyLimit", message: err.Error()}
	}
	return &PermitGuard{sem: sem}, nil
}

type resourceErr struct {
	kind    string
	message string
}

func (e *resourceErr) Error() string { return "resource: " + e.kind + ": " + e.message }

// Kind returns the stable Resource error kind string.
func (e *resourceErr) Kind() string { return e.kind }
