package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Fixed label caps per spec. Labels observed beyond the cap are folded
// into the overflowLabel bucket rather than creating new series.
const (
	toolLabelCap  = 20
	errorKindCap  = 10
	meshTopicCap  = 20
	overflowLabel = "__other__"
)

// errorKinds is the fixed label set for agent.errors.total.
var errorKinds = map[string]bool{
	"parse": true, "timeout": true, "auth": true, "tool": true, "memory": true,
}

// memoryOps is the fixed label set for memory.ops.total.
var memoryOps = map[string]bool{
	"read": true, "write": true, "backup": true, "restore": true,
}

// Metrics holds every instrument required by spec §4.7. Instrument and
// label names are fixed; this wrapper folds any label outside its
// declared set into overflowLabel so cardinality never grows unbounded
// regardless of how many custom tools or mesh topics are registered at
// runtime.
type Metrics struct {
	namespace string

	ActiveSessions prometheus.Gauge

	ToolExecTotal    *prometheus.CounterVec
	ToolExecDuration *prometheus.HistogramVec

	ErrorsTotal *prometheus.CounterVec

	MemoryOpsTotal *prometheus.CounterVec

	MeshQueueDepth *prometheus.GaugeVec
	MeshDLQSize    *prometheus.GaugeVec

	seenTools  *boundedSet
	seenTopics *boundedSet
}

// NewMetrics registers every instrument against reg under namespace. reg
// may be prometheus.DefaultRegisterer or a test-local registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		namespace: namespace,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "agent", Name: "sessions_active",
			Help: "Number of live coordinators.",
		}),
		ToolExecTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tool", Name: "exec_total",
			Help: "Tool dispatch count by tool name.",
		}, []string{"tool"}),
		ToolExecDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "tool", Name: "exec_duration_seconds",
			Help:    "Tool dispatch duration by tool name.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "errors_total",
			Help: "Agent-visible errors by kind.",
		}, []string{"kind"}),
		MemoryOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "memory", Name: "ops_total",
			Help: "Memory backend operations by op.",
		}, []string{"op"}),
		MeshQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "mesh", Name: "queue_depth",
			Help: "Mailbox/topic queue depth by topic.",
		}, []string{"topic"}),
		MeshDLQSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "mesh", Name: "dlq_size",
			Help: "Dead-letter queue size by topic.",
		}, []string{"topic"}),
		seenTools:  newBoundedSet(toolLabelCap),
		seenTopics: newBoundedSet(meshTopicCap),
	}

	if reg != nil {
		reg.MustRegister(
			m.ActiveSessions, m.ToolExecTotal, m.ToolExecDuration,
			m.ErrorsTotal, m.MemoryOpsTotal, m.MeshQueueDepth, m.MeshDLQSize,
		)
	}
	return m
}

// ObserveToolExec records one dispatch of the named tool.
func (m *Metrics) ObserveToolExec(tool string, seconds float64) {
	label := m.seenTools.fold(tool)
	m.ToolExecTotal.WithLabelValues(label).Inc()
	m.ToolExecDuration.WithLabelValues(label).Observe(seconds)
}

// ObserveError records an agent-visible error. kind outside the fixed
// set {parse,timeout,auth,tool,memory} is folded into overflowLabel.
func (m *Metrics) ObserveError(kind string) {
	if !errorKinds[kind] {
		kind = overflowLabel
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveMemoryOp records a memory backend operation. op outside
// {read,write,backup,restore} is folded into overflowLabel.
func (m *Metrics) ObserveMemoryOp(op string) {
	if !memoryOps[op] {
		op = overflowLabel
	}
	m.MemoryOpsTotal.WithLabelValues(op).Inc()
}

// SetMeshQueueDepth records the current mailbox/topic depth.
func (m *Metrics) SetMeshQueueDepth(topic string, depth float64) {
	m.MeshQueueDepth.WithLabelValues(m.seenTopics.fold(topic)).Set(depth)
}

// SetMeshDLQSize records the current DLQ size for a topic.
func (m *Metrics) SetMeshDLQSize(topic string, size float64) {
	m.MeshDLQSize.WithLabelValues(m.seenTopics.fold(topic)).Set(size)
}

// boundedSet tracks at most cap distinct labels it has seen; any label
// beyond that cap folds to overflowLabel on every subsequent call,
// including its first excess occurrence.
type boundedSet struct {
	mu   sync.Mutex
	cap  int
	seen map[string]bool
}

func newBoundedSet(cap int) *boundedSet {
	return &boundedSet{cap: cap, seen: make(map[string]bool, cap)}
}

func (b *boundedSet) fold(label string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[label] {
		return label
	}
	if len(b.seen) < b.cap {
		b.seen[label] = true
		return label
	}
	return overflowLabel
}
