package judge

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/grader"
)

// Input is everything the evaluator looks at for one solution run
type Input struct {
	Exec *execute.Result

	InputPath  string
	AnswerPath string
	// Checker is the argv of the checker, nil to compare with the answer
	Checker []string

	TimeLimit     time.Duration
	MemoryLimitMb *float64
}

// Outcome is the verdict of one solution run. Time and memory are set
// regardless of the verdict.
type Outcome struct {
	Verdict  api.Verdict
	TimeMs   float64
	MemoryMb *float64
	Msg      string
}

// Evaluator assigns verdicts to finished runs. It only reads the files of
// the run, so evaluating the same input twice gives the same outcome.
type Evaluator struct {
	checker *grader.CheckerRunner
	opts    grader.Options
}

func NewEvaluator(checker *grader.CheckerRunner, opts grader.Options) *Evaluator {
	return &Evaluator{checker: checker, opts: opts}
}

func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*Outcome, error) {
	res := in.Exec
	out := &Outcome{TimeMs: millis(res.Time), MemoryMb: res.MemoryMiB}

	if v, msg, ok := limitVerdict(res, in.TimeLimit, in.MemoryLimitMb); ok {
		out.Verdict, out.Msg = v, msg
		if v == api.TimeLimitExceeded {
			out.TimeMs = millis(in.TimeLimit)
		}
		return out, nil
	}
	if res.Abnormal() {
		out.Verdict, out.Msg = api.RuntimeError, exitMessage(res)
		return out, nil
	}

	if in.Checker != nil {
		if e.checker == nil {
			return nil, fmt.Errorf("checker given but no checker runner configured")
		}
		v, msg, err := e.checker.Check(ctx, in.Checker, in.InputPath, res.StdoutPath, in.AnswerPath)
		if err != nil {
			return nil, err
		}
		out.Verdict, out.Msg = v, msg
		return out, nil
	}

	actual, err := os.ReadFile(res.StdoutPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	expected, err := os.ReadFile(in.AnswerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read answer: %w", err)
	}
	stderr, err := os.ReadFile(res.StderrPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read stderr: %w", err)
	}
	out.Verdict, out.Msg = grader.Compare(string(actual), string(expected), string(stderr), e.opts)
	return out, nil
}

// limitVerdict checks, in order, cancellation, the time limit and the
// memory limit
func limitVerdict(res *execute.Result, limit time.Duration, memLimit *float64) (api.Verdict, string, bool) {
	switch {
	case res.Cancelled():
		return api.Rejected, "", true
	case res.TimedOut() || (limit > 0 && res.Time > limit):
		return api.TimeLimitExceeded, "", true
	case memLimit != nil && res.MemoryMiB != nil && *res.MemoryMiB > *memLimit:
		return api.MemoryLimitExceeded, fmt.Sprintf("Memory used: %.1f MB", *res.MemoryMiB), true
	}
	return "", "", false
}

func exitMessage(res *execute.Result) string {
	if res.Signal != "" {
		return "Program killed by signal: " + res.Signal
	}
	return fmt.Sprintf("Program exited with code: %d", res.ExitCode)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
