package mesh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/internal/retry"
	"github.com/agentkernel/core/internal/security"
	"github.com/agentkernel/core/pkg/models"
)

// TaskState is one state in the supervisor task lifecycle of spec §4.6:
// Queued -> Assigned(worker) -> Completed | Failed(reason) -> Requeued
// (up to max retries) -> DeadLettered. Completed and DeadLettered are
// terminal.
type TaskState string

const (
	TaskQueued       TaskState = "Queued"
	TaskAssigned     TaskState = "Assigned"
	TaskCompleted    TaskState = "Completed"
	TaskFailed       TaskState = "Failed"
	TaskRequeued     TaskState = "Requeued"
	TaskDeadLettered TaskState = "DeadLettered"
)

// Task is one unit of supervised work.
type Task struct {
	ID         string
	Topic      models.Topic
	PayloadType models.PayloadType
	Payload    []byte
	State      TaskState
	Worker     models.MeshAgentID
	Retries    int
	MaxRetries int
	LastError  string
}

// WorkerSelector picks the next worker to assign a task to, given the
// currently live worker set and each worker's known outstanding load.
// Selection is pluggable per spec §4.6.
type WorkerSelector func(workers []models.MeshAgentID, loads map[models.MeshAgentID]int) (models.MeshAgentID, bool)

// RoundRobinSelector cycles through workers in order, skipping none
// (liveness filtering happens before the selector is called).
func RoundRobinSelector() WorkerSelector {
	var next int
	return func(workers []models.MeshAgentID, loads map[models.MeshAgentID]int) (models.MeshAgentID, bool) {
		if len(workers) == 0 {
			return "", false
		}
		w := workers[next%len(workers)]
		next++
		return w, true
	}
}

// LeastLoadedSelector picks the worker with the smallest outstanding
// load, breaking ties by worker order.
func LeastLoadedSelector() WorkerSelector {
	return func(workers []models.MeshAgentID, loads map[models.MeshAgentID]int) (models.MeshAgentID, bool) {
		if len(workers) == 0 {
			return "", false
		}
		best := workers[0]
		bestLoad := loads[best]
		for _, w := range workers[1:] {
			if loads[w] < bestLoad {
				best, bestLoad = w, loads[w]
			}
		}
		return best, true
	}
}

// PresenceChecker reports whether an endpoint currently has a live mesh
// presence entry. Both InProcess and Redis transports implement it;
// Supervisor treats it as optional so a bare Transport still works with
// no liveness filtering.
type PresenceChecker interface {
	IsPresent(ctx context.Context, agentID models.MeshAgentID) bool
}

// Supervisor assigns Tasks to a maintained worker set, re-submitting on
// failure up to a retry budget and dead-lettering tasks that exhaust it,
// per spec §4.6's supervisor/worker pattern.
type Supervisor struct {
	transport  Transport
	presence   PresenceChecker
	selector   WorkerSelector
	dlq        *DLQ
	maxRetries int
	metrics    *observability.Metrics
	audit      *security.AuditSink
	backoff    retry.Config
	hasBackoff bool

	mu      sync.Mutex
	workers []models.MeshAgentID
	loads   map[models.MeshAgentID]int
	tasks   map[string]*Task
}

// SupervisorConfig bundles a Supervisor's collaborators. Metrics and
// Audit are optional: a nil Metrics leaves mesh.dlq.size unobserved, and
// a nil Audit leaves drops unreported beyond DLQ.TakeDrops. Backoff is
// optional too: a zero-valued Config (the default) requeues a failed
// task immediately, as before; setting Backoff.InitialDelay inserts an
// exponential (optionally jittered) delay before each reassignment, so
// a worker flapping under load gets breathing room instead of a hot
// requeue loop.
type SupervisorConfig struct {
	Transport  Transport
	Presence   PresenceChecker
	Selector   WorkerSelector
	DLQ        *DLQ
	MaxRetries int
	Workers    []models.MeshAgentID
	Metrics    *observability.Metrics
	Audit      *security.AuditSink
	Backoff    retry.Config
}

// NewSupervisor builds a Supervisor. cfg.Selector defaults to
// RoundRobinSelector if nil; cfg.MaxRetries defaults to 3.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Selector == nil {
		cfg.Selector = RoundRobinSelector()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Supervisor{
		transport:  cfg.Transport,
		presence:   cfg.Presence,
		selector:   cfg.Selector,
		dlq:        cfg.DLQ,
		maxRetries: cfg.MaxRetries,
		metrics:    cfg.Metrics,
		audit:      cfg.Audit,
		backoff:    cfg.Backoff,
		hasBackoff: cfg.Backoff.InitialDelay > 0,
		workers:    append([]models.MeshAgentID(nil), cfg.Workers...),
		loads:      make(map[models.MeshAgentID]int),
		tasks:      make(map[string]*Task),
	}
}

// reportDLQDrops drains any DroppedEvents recorded by the DLQ since the
// last call and turns each into an audit event, so a full or expired DLQ
// never loses a message silently (spec §4.6).
func (s *Supervisor) reportDLQDrops() {
	if s.dlq == nil || s.audit == nil {
		return
	}
	for _, d := range s.dlq.TakeDrops() {
		s.audit.Emit(security.AuditEvent{
			Tool:    "mesh.dlq",
			Outcome: security.OutcomeLimitExceeded,
			Reason:  d.Reason,
		})
	}
}

// AddWorker registers w in the worker set.
func (s *Supervisor) AddWorker(w models.MeshAgentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.workers {
		if existing == w {
			return
		}
	}
	s.workers = append(s.workers, w)
}

func (s *Supervisor) liveWorkersLocked(ctx context.Context) []models.MeshAgentID {
	if s.presence == nil {
		return s.workers
	}
	live := make([]models.MeshAgentID, 0, len(s.workers))
	for _, w := range s.workers {
		if s.presence.IsPresent(ctx, w) {
			live = append(live, w)
		}
	}
	return live
}

// Submit queues task and immediately attempts assignment to a live
// worker via the configured selector.
func (s *Supervisor) Submit(ctx context.Context, task *Task) error {
	if task.MaxRetries <= 0 {
		task.MaxRetries = s.maxRetries
	}
	task.State = TaskQueued

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	return s.assign(ctx, task)
}

func (s *Supervisor) assign(ctx context.Context, task *Task) error {
	s.mu.Lock()
	live := s.liveWorkersLocked(ctx)
	worker, ok := s.selector(live, s.loads)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("mesh: no live worker available for task %s", task.ID)
	}
	s.loads[worker]++
	task.Worker = worker
	task.State = TaskAssigned
	s.mu.Unlock()

	msg := models.Message{
		ID:          uuid.NewString(),
		PayloadType: task.PayloadType,
		Payload:     task.Payload,
		Metadata:    map[string]string{"task_id": task.ID},
		CreatedAt:   time.Now(),
		Retries:     task.Retries,
	}
	if err := s.transport.Send(ctx, worker, msg); err != nil {
		return err
	}
	return nil
}

// ReportSuccess marks taskID Completed, a terminal state.
func (s *Supervisor) ReportSuccess(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return
	}
	task.State = TaskCompleted
	s.loads[task.Worker]--
}

// ReportFailure records a failure for taskID. If the task's retry
// budget remains, it transitions to Requeued and is re-submitted to a
// different worker; otherwise it transitions to DeadLettered and is
// recorded in the supervisor's DLQ (if configured).
func (s *Supervisor) ReportFailure(ctx context.Context, taskID, reason string) error {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("mesh: unknown task %s", taskID)
	}
	task.State = TaskFailed
	task.LastError = reason
	s.loads[task.Worker]--
	task.Retries++
	s.mu.Unlock()

	if task.Retries > task.MaxRetries {
		s.mu.Lock()
		task.State = TaskDeadLettered
		s.mu.Unlock()
		if s.dlq != nil {
			msg := models.Message{
				ID:          uuid.NewString(),
				PayloadType: task.PayloadType,
				Payload:     task.Payload,
				Metadata:    map[string]string{"task_id": task.ID},
				CreatedAt:   time.Now(),
				Retries:     task.Retries,
			}
			s.dlq.Add(task.Topic, msg, reason, time.Now())
			if s.metrics != nil {
				s.metrics.SetMeshDLQSize(string(task.Topic), float64(s.dlq.Size(task.Topic)))
			}
			s.reportDLQDrops()
		}
		return &models.MeshError{Kind: models.MeshDeadLettered, Message: taskID}
	}

	s.mu.Lock()
	task.State = TaskRequeued
	s.mu.Unlock()

	if s.hasBackoff {
		var delay time.Duration
		if s.backoff.Jitter {
			delay = retry.BackoffWithJitter(task.Retries, s.backoff.InitialDelay, s.backoff.MaxDelay, s.backoff.Factor)
		} else {
			delay = retry.Backoff(task.Retries, s.backoff.InitialDelay, s.backoff.MaxDelay, s.backoff.Factor)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return s.assign(ctx, task)
}

// Task returns the current state of taskID, if known.
func (s *Supervisor) Task(taskID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	return t, ok
}
