// Package termsink prints run events to a terminal
package termsink

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/sink"
)

type Sink struct {
	w       io.Writer
	verbose bool

	mu      sync.Mutex
	started map[string]time.Time
	names   map[string]string

	ok, bad, warn, faint, bold *color.Color
}

var _ sink.Sink = (*Sink)(nil)

// New creates a terminal sink. verbose also prints running states.
func New(w io.Writer, noColor, verbose bool) *Sink {
	s := &Sink{
		w:       w,
		verbose: verbose,
		started: map[string]time.Time{},
		names:   map[string]string{},
		ok:      color.New(color.FgGreen, color.Bold),
		bad:     color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow, color.Bold),
		faint:   color.New(color.Faint),
		bold:    color.New(color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{s.ok, s.bad, s.warn, s.faint, s.bold} {
			c.DisableColor()
		}
	}
	return s
}

// Name sets the label printed for a testcase instead of its id
func (s *Sink) Name(testcaseId, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[testcaseId] = name
}

func (s *Sink) label(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.names[id]; ok {
		return n
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (s *Sink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func (s *Sink) colorFor(v api.Verdict) *color.Color {
	switch v {
	case api.Accepted:
		return s.ok
	case api.TimeLimitExceeded, api.MemoryLimitExceeded, api.OutputLimitExceeded, api.PartiallyCorrect:
		return s.warn
	case api.Skipped, api.Rejected:
		return s.faint
	}
	if v.IsRunning() {
		return s.faint
	}
	return s.bad
}

func (s *Sink) StartRun(runUuid, problem string) {
	s.mu.Lock()
	s.started[runUuid] = time.Now()
	s.mu.Unlock()
	s.printf("%s %s\n", s.bold.Sprint("== Judging"), s.bold.Sprint(problem+" =="))
}

func (s *Sink) StartCompile(runUuid, unit string) {
	if s.verbose {
		s.printf("-- compiling %s\n", unit)
	}
}

func (s *Sink) FinishCompile(runUuid string, res api.CompileResult) {
	switch {
	case !res.Success:
		s.printf("-- %s %s\n", res.Unit, s.bad.Sprint("failed to compile"))
	case res.Cached:
		s.printf("-- %s %s\n", res.Unit, s.faint.Sprint("cached"))
	default:
		var took string
		if res.RuntimeData != nil {
			took = fmt.Sprintf(" in %.0fms", res.RuntimeData.TimeMillis)
		}
		s.printf("-- %s compiled%s\n", res.Unit, took)
	}
}

func (s *Sink) TestcaseStatus(runUuid, testcaseId string, verdict api.Verdict) {
	if s.verbose {
		s.printf("   %s %s\n", s.faint.Sprint(s.label(testcaseId)), s.faint.Sprint(verdict.FullName()))
	}
}

func (s *Sink) FinishTestcase(runUuid string, res api.TestcaseResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-8s %7.0fms", s.colorFor(res.Verdict).Sprintf("%-4s", res.Verdict), s.label(res.TestcaseId), res.TimeMillis)
	if res.MemoryMiB != nil {
		fmt.Fprintf(&b, " %7.1fMB", *res.MemoryMiB)
	}
	if res.Message != nil && *res.Message != "" {
		msg := sink.TrimToRect(*res.Message, 4, api.MaxRuntimeDataWidth)
		fmt.Fprintf(&b, "\n     %s", strings.ReplaceAll(msg, "\n", "\n     "))
	}
	s.printf("%s\n", b.String())
}

func (s *Sink) StressStatus(runUuid string, status api.StressStatus) {
	line := fmt.Sprintf("stress #%d %s", status.Iteration, status.State)
	if status.Message != nil {
		line += ": " + *status.Message
	}
	if status.State == "foundDifference" || status.State == "internalError" || status.State == "compilationError" {
		s.printf("%s\n", s.bad.Sprint(line))
		return
	}
	if s.verbose {
		s.printf("%s\n", s.faint.Sprint(line))
	}
}

func (s *Sink) CompileError(runUuid, msg string) {
	s.printf("%s\n%s\n", s.bad.Sprint("== Compilation error =="), msg)
	s.finish(runUuid)
}

func (s *Sink) InternalError(runUuid, msg string) {
	s.printf("%s %s\n", s.bad.Sprint("== Internal error:"), msg)
	s.finish(runUuid)
}

func (s *Sink) FinishRun(runUuid string) {
	s.finish(runUuid)
}

func (s *Sink) finish(runUuid string) {
	s.mu.Lock()
	started, ok := s.started[runUuid]
	delete(s.started, runUuid)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.printf("%s\n", s.bold.Sprintf("== Finished in %s ==", time.Since(started).Round(time.Millisecond)))
}
