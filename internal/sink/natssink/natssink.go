// Package natssink publishes run events as JSON messages on a NATS subject
package natssink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/sink"
)

// Publisher is the part of *nats.Conn the sink uses
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Sink struct {
	pub     Publisher
	subject string
	log     *slog.Logger
	closer  func()
}

var _ sink.Sink = (*Sink)(nil)

func New(pub Publisher, subject string, log *slog.Logger) *Sink {
	return &Sink{pub: pub, subject: subject, log: log.With("component", "natssink"), closer: func() {}}
}

// Connect dials the NATS server at url
func Connect(url, subject string, log *slog.Logger) (*Sink, error) {
	nc, err := nats.Connect(url,
		nats.Name("judge"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s := New(nc, subject, log)
	s.closer = func() {
		if err := nc.Drain(); err != nil {
			s.log.Warn("failed to drain NATS connection", "error", err)
		}
	}
	return s, nil
}

// Close flushes pending messages and closes the connection, if the sink
// owns one
func (s *Sink) Close() { s.closer() }

func (s *Sink) send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal message", "error", err)
		return
	}
	if err := s.pub.Publish(s.subject, b); err != nil {
		s.log.Error("failed to publish message to NATS", "error", err)
	}
}

func (s *Sink) StartRun(runUuid, problem string) {
	s.send(api.NewStartRun(runUuid, problem))
}

func (s *Sink) StartCompile(runUuid, unit string) {
	s.send(api.NewStartCompile(runUuid, unit))
}

func (s *Sink) FinishCompile(runUuid string, res api.CompileResult) {
	s.send(api.NewFinishCompile(runUuid, sink.TrimCompileResult(res)))
}

func (s *Sink) TestcaseStatus(runUuid, testcaseId string, verdict api.Verdict) {
	s.send(api.NewTestcaseStatus(runUuid, testcaseId, verdict))
}

func (s *Sink) FinishTestcase(runUuid string, res api.TestcaseResult) {
	s.send(api.NewFinishTestcase(runUuid, sink.TrimResult(res)))
}

func (s *Sink) StressStatus(runUuid string, status api.StressStatus) {
	s.send(api.NewStressStatusUpdate(runUuid, status))
}

func (s *Sink) CompileError(runUuid, msg string) {
	s.send(api.NewFinishRun(runUuid, &msg, true, false))
}

func (s *Sink) InternalError(runUuid, msg string) {
	s.send(api.NewFinishRun(runUuid, &msg, false, true))
}

func (s *Sink) FinishRun(runUuid string) {
	s.send(api.NewFinishRun(runUuid, nil, false, false))
}
