package mesh

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentkernel/core/pkg/models"
)

// DefaultDLQCapacity bounds per-topic dead-letter entries per spec §4.6.
const DefaultDLQCapacity = 10_000

// DLQEntry is one dead-lettered message plus why it landed here. ID is a
// ULID: lexicographically sortable by creation time, so an external
// consumer draining a DLQ dump can order entries correctly without
// trusting message metadata or wall-clock comparisons across topics.
type DLQEntry struct {
	ID     string
	Message models.Message
	Reason  string
	DeadAt  time.Time
}

// DroppedEvent describes an entry evicted from a full DLQ or past its
// retention window. Spec §4.6 requires these drops be audited, not
// silent; DLQ itself only records them, the caller decides the sink.
type DroppedEvent struct {
	Topic  models.Topic
	Entry  DLQEntry
	Reason string
}

// DLQ is a bounded, time-retained per-topic dead-letter store. Entries
// beyond the per-topic capacity or total volume cap evict the oldest
// entry; entries older than Retention are dropped on the next touch.
// Both evictions are surfaced through Drops rather than discarded
// silently.
type DLQ struct {
	mu        sync.Mutex
	capacity  int
	totalCap  int
	retention time.Duration
	topics    map[models.Topic][]DLQEntry
	total     int
	drops     []DroppedEvent
	entropy   *ulid.MonotonicEntropy
}

// NewDLQ builds a DLQ with the given per-topic capacity, total volume
// cap across all topics, and retention window. Zero values fall back to
// DefaultDLQCapacity / unlimited total / no expiry.
func NewDLQ(capacity, totalCap int, retention time.Duration) *DLQ {
	if capacity <= 0 {
		capacity = DefaultDLQCapacity
	}
	return &DLQ{
		capacity:  capacity,
		totalCap:  totalCap,
		retention: retention,
		topics:    make(map[models.Topic][]DLQEntry),
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// Add dead-letters msg under topic for reason (e.g. "retry_budget" or
// "ttl_expired"). now is passed in explicitly since the mesh package
// must not call time.Now() directly from within workflow-driven code
// paths that rely on deterministic replays in tests.
func (d *DLQ) Add(topic models.Topic, msg models.Message, reason string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.expireLocked(now)

	id := ulid.MustNew(ulid.Timestamp(now), d.entropy)
	entry := DLQEntry{ID: id.String(), Message: msg, Reason: reason, DeadAt: now}
	entries := d.topics[topic]
	entries = append(entries, entry)
	d.total++

	if len(entries) > d.capacity {
		evicted := entries[0]
		entries = entries[1:]
		d.total--
		d.drops = append(d.drops, DroppedEvent{Topic: topic, Entry: evicted, Reason: "capacity"})
	}
	d.topics[topic] = entries

	if d.totalCap > 0 {
		for d.total > d.totalCap {
			d.evictOldestLocked()
		}
	}
}

// evictOldestLocked drops the single oldest entry across all topics,
// comparing by ULID rather than DeadAt: the ULID's lexicographic order
// is exact down to the millisecond plus a monotonic counter, so ties
// between entries dead-lettered in the same instant resolve
// deterministically instead of by map iteration order.
func (d *DLQ) evictOldestLocked() {
	var oldestTopic models.Topic
	var oldestIdx = -1
	var oldestID string
	for topic, entries := range d.topics {
		if len(entries) == 0 {
			continue
		}
		if oldestIdx == -1 || entries[0].ID < oldestID {
			oldestTopic, oldestIdx, oldestID = topic, 0, entries[0].ID
		}
	}
	if oldestIdx == -1 {
		return
	}
	entries := d.topics[oldestTopic]
	evicted := entries[0]
	d.topics[oldestTopic] = entries[1:]
	d.total--
	d.drops = append(d.drops, DroppedEvent{Topic: oldestTopic, Entry: evicted, Reason: "total_cap"})
}

// expireLocked drops entries older than d.retention relative to now.
func (d *DLQ) expireLocked(now time.Time) {
	if d.retention <= 0 {
		return
	}
	for topic, entries := range d.topics {
		kept := entries[:0:0]
		for _, e := range entries {
			if now.Sub(e.DeadAt) > d.retention {
				d.total--
				d.drops = append(d.drops, DroppedEvent{Topic: topic, Entry: e, Reason: "retention_expired"})
				continue
			}
			kept = append(kept, e)
		}
		d.topics[topic] = kept
	}
}

// Size returns the current number of entries held for topic.
func (d *DLQ) Size(topic models.Topic) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.topics[topic])
}

// Drain removes and returns every entry currently held for topic, in
// insertion order, which is also ascending ID order.
func (d *DLQ) Drain(topic models.Topic) []DLQEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.topics[topic]
	delete(d.topics, topic)
	d.total -= len(entries)
	return entries
}

// TakeDrops returns and clears every DroppedEvent recorded since the
// last call, so a caller can emit one audit event per drop without
// re-processing the same eviction twice.
func (d *DLQ) TakeDrops() []DroppedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	drops := d.drops
	d.drops = nil
	return drops
}
