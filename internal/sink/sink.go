// Package sink receives the progress events of judging runs. A run starts
// with StartRun and ends with exactly one of CompileError, InternalError
// or FinishRun.
package sink

import (
	"strings"
	"unicode/utf8"

	"github.com/programme-lv/judge/api"
)

type Sink interface {
	StartRun(runUuid, problem string)

	StartCompile(runUuid, unit string)
	FinishCompile(runUuid string, res api.CompileResult)

	TestcaseStatus(runUuid, testcaseId string, verdict api.Verdict)
	FinishTestcase(runUuid string, res api.TestcaseResult)

	StressStatus(runUuid string, status api.StressStatus)

	CompileError(runUuid, msg string)
	InternalError(runUuid, msg string)
	FinishRun(runUuid string)
}

// Nop discards all events
type Nop struct{}

func (Nop) StartRun(string, string) {}
func (Nop) StartCompile(string, string) {}
func (Nop) FinishCompile(string, api.CompileResult) {}
func (Nop) TestcaseStatus(string, string, api.Verdict) {}
func (Nop) FinishTestcase(string, api.TestcaseResult) {}
func (Nop) StressStatus(string, api.StressStatus) {}
func (Nop) CompileError(string, string) {}
func (Nop) InternalError(string, string) {}
func (Nop) FinishRun(string) {}

// Multi forwards every event to all sinks in order
type Multi []Sink

func (m Multi) StartRun(runUuid, problem string) {
	for _, s := range m {
		s.StartRun(runUuid, problem)
	}
}

func (m Multi) StartCompile(runUuid, unit string) {
	for _, s := range m {
		s.StartCompile(runUuid, unit)
	}
}

func (m Multi) FinishCompile(runUuid string, res api.CompileResult) {
	for _, s := range m {
		s.FinishCompile(runUuid, res)
	}
}

func (m Multi) TestcaseStatus(runUuid, testcaseId string, verdict api.Verdict) {
	for _, s := range m {
		s.TestcaseStatus(runUuid, testcaseId, verdict)
	}
}

func (m Multi) FinishTestcase(runUuid string, res api.TestcaseResult) {
	for _, s := range m {
		s.FinishTestcase(runUuid, res)
	}
}

func (m Multi) StressStatus(runUuid string, status api.StressStatus) {
	for _, s := range m {
		s.StressStatus(runUuid, status)
	}
}

func (m Multi) CompileError(runUuid, msg string) {
	for _, s := range m {
		s.CompileError(runUuid, msg)
	}
}

func (m Multi) InternalError(runUuid, msg string) {
	for _, s := range m {
		s.InternalError(runUuid, msg)
	}
}

func (m Multi) FinishRun(runUuid string) {
	for _, s := range m {
		s.FinishRun(runUuid)
	}
}

// TrimToRect cuts s to at most maxHeight lines of at most maxWidth bytes,
// marking every cut with [...]. Lines are only cut between runes.
func TrimToRect(s string, maxHeight, maxWidth int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	cut := len(lines) > maxHeight
	if cut {
		lines = lines[:maxHeight]
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if len(line) > maxWidth {
			end := maxWidth
			for end > 0 && !utf8.RuneStart(line[end]) {
				end--
			}
			b.WriteString(line[:end])
			b.WriteString("[...]")
		} else {
			b.WriteString(line)
		}
	}
	if cut {
		b.WriteString("\n[...]")
	}
	return b.String()
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := TrimToRect(*s, api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth)
	return &t
}

// TrimResult returns res with its output and message cut for display
func TrimResult(res api.TestcaseResult) api.TestcaseResult {
	res.Stdout = trimPtr(res.Stdout)
	res.Stderr = trimPtr(res.Stderr)
	res.Message = trimPtr(res.Message)
	return res
}

// TrimCompileResult returns res with its compiler output cut for display
func TrimCompileResult(res api.CompileResult) api.CompileResult {
	res.Error = trimPtr(res.Error)
	if rd := res.RuntimeData; rd != nil {
		cp := *rd
		cp.Stdout = TrimToRect(cp.Stdout, api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth)
		cp.Stderr = TrimToRect(cp.Stderr, api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth)
		res.RuntimeData = &cp
	}
	return res
}
