package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

// InProcess is a channel-based Transport for single-process composition
// and tests, promoted from the teacher's swarm-only InMemorySwarmContext
// helper to a first-class transport implementing the full mesh
// capability set.
type InProcess struct {
	thresholds BackpressureThresholds
	metrics    *observability.Metrics

	mu        sync.Mutex
	mailboxes map[models.MeshAgentID]*mailbox
	topics    map[models.Topic][]*subscription
	presence  map[models.MeshAgentID]time.Time
	closed    bool
}

// NewInProcess builds an InProcess transport with the given
// backpressure thresholds.
func NewInProcess(thresholds BackpressureThresholds) *InProcess {
	return &InProcess{
		thresholds: thresholds,
		mailboxes:  make(map[models.MeshAgentID]*mailbox),
		topics:     make(map[models.Topic][]*subscription),
		presence:   make(map[models.MeshAgentID]time.Time),
	}
}

// SetMetrics attaches the instrument set that Send/Receive report queue
// depth to. Nil-safe: a transport with no metrics attached behaves
// identically, just unobserved.
func (t *InProcess) SetMetrics(m *observability.Metrics) {
	t.metrics = m
}

func (t *InProcess) observeDepth(agentID models.MeshAgentID, depth int) {
	if t.metrics != nil {
		t.metrics.SetMeshQueueDepth(string(agentID), float64(depth))
	}
}

// mailbox is a FIFO queue with a notify channel a blocked Receive waits
// on; it never drops a message silently short of the hard cap, which
// Send enforces before ever appending.
type mailbox struct {
	mu     sync.Mutex
	queue  []models.Message
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (mb *mailbox) depth() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}

func (mb *mailbox) push(msg models.Message) {
	mb.mu.Lock()
	mb.queue = append(mb.queue, msg)
	mb.mu.Unlock()
	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

func (mb *mailbox) pop() (models.Message, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.queue) == 0 {
		return models.Message{}, false
	}
	msg := mb.queue[0]
	mb.queue = mb.queue[1:]
	return msg, true
}

func (t *InProcess) mailboxFor(agentID models.MeshAgentID) *mailbox {
	t.mu.Lock()
	defer t.mu.Unlock()
	mb, ok := t.mailboxes[agentID]
	if !ok {
		mb = newMailbox()
		t.mailboxes[agentID] = mb
	}
	return mb
}

// Send pushes msg onto agentID's mailbox, rejecting it with
// MeshBackpressureSaturated once the mailbox is at its hard cap, per
// spec §4.6.
func (t *InProcess) Send(ctx context.Context, agentID models.MeshAgentID, msg models.Message) error {
	mb := t.mailboxFor(agentID)
	if t.thresholds.Exceeds(mb.depth()) {
		return &models.MeshError{Kind: models.MeshBackpressureSaturated, Message: string(agentID)}
	}
	mb.push(msg)
	t.observeDepth(agentID, mb.depth())
	return nil
}

// Receive blocks (up to timeout, respecting ctx) for the next message in
// agentID's mailbox, popping it on return per the at-least-once
// point-to-point contract.
func (t *InProcess) Receive(ctx context.Context, agentID models.MeshAgentID, timeout time.Duration) (models.Message, bool, error) {
	mb := t.mailboxFor(agentID)

	if msg, ok := mb.pop(); ok {
		t.observeDepth(agentID, mb.depth())
		return msg, true, nil
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case <-mb.notify:
			if msg, ok := mb.pop(); ok {
				t.observeDepth(agentID, mb.depth())
				return msg, true, nil
			}
		case <-timeoutCh:
			return models.Message{}, false, nil
		case <-ctx.Done():
			return models.Message{}, false, ctx.Err()
		}
	}
}

// Broadcast publishes msg to the well-known broadcast topic, which
// every registered presence is expected to subscribe to.
func (t *InProcess) Broadcast(ctx context.Context, msg models.Message) error {
	return t.Publish(ctx, models.BroadcastTopic, msg)
}

// subscription is one Subscribe call's live channel.
type subscription struct {
	ch     chan models.Message
	closed chan struct{}
	once   sync.Once
	parent *InProcess
	topic  models.Topic
}

func (s *subscription) Messages() <-chan models.Message { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.parent.unsubscribe(s.topic, s)
		close(s.closed)
	})
	return nil
}

func (t *InProcess) unsubscribe(topic models.Topic, sub *subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.topics[topic]
	for i, s := range subs {
		if s == sub {
			t.topics[topic] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish delivers msg to every live subscriber of topic. Delivery is
// at-most-once: a subscriber whose channel is full misses the message,
// matching Redis pub/sub semantics per spec §4.6.
func (t *InProcess) Publish(ctx context.Context, topic models.Topic, msg models.Message) error {
	t.mu.Lock()
	subs := append([]*subscription(nil), t.topics[topic]...)
	t.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a live stream of topic's messages. The stream ends
// only when Close is called or the transport itself closes.
func (t *InProcess) Subscribe(ctx context.Context, topic models.Topic) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, &models.MeshError{Kind: models.MeshSubscribeFailed, Message: "transport closed"}
	}
	sub := &subscription{
		ch:     make(chan models.Message, 64),
		closed: make(chan struct{}),
		parent: t,
		topic:  topic,
	}
	t.topics[topic] = append(t.topics[topic], sub)
	return sub, nil
}

// RegisterPresence marks agentID live until ttl elapses. A ttl of zero
// means the presence never expires on its own.
func (t *InProcess) RegisterPresence(ctx context.Context, agentID models.MeshAgentID, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ttl <= 0 {
		t.presence[agentID] = time.Time{}
		return nil
	}
	t.presence[agentID] = time.Now().Add(ttl)
	return nil
}

// DeregisterPresence removes agentID from the membership set immediately.
func (t *InProcess) DeregisterPresence(ctx context.Context, agentID models.MeshAgentID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.presence, agentID)
	return nil
}

// IsPresent reports whether agentID has a live, unexpired presence
// entry. Exposed for coordination patterns that need a worker liveness
// check (supervisor/worker re-submission, §4.6).
func (t *InProcess) IsPresent(ctx context.Context, agentID models.MeshAgentID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiry, ok := t.presence[agentID]
	if !ok {
		return false
	}
	if expiry.IsZero() {
		return true
	}
	return time.Now().Before(expiry)
}

// QueueDepth reports agentID's current mailbox depth, the input to
// backpressure classification.
func (t *InProcess) QueueDepth(ctx context.Context, agentID models.MeshAgentID) (int, error) {
	return t.mailboxFor(agentID).depth(), nil
}

// Close releases every open subscription. Mailboxes are left as-is
// since Close does not imply data loss for point-to-point delivery.
func (t *InProcess) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, subs := range t.topics {
		for _, s := range subs {
			close(s.ch)
		}
	}
	t.topics = make(map[models.Topic][]*subscription)
	return nil
}
