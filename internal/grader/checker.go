package grader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/testio"
)

// MapTestlibExitCode maps a testlib checker or interactor exit code to a
// verdict. The message is set only for codes that carry no feedback of
// their own.
func MapTestlibExitCode(code int) (api.Verdict, string) {
	switch code {
	case 0:
		return api.Accepted, ""
	case 1:
		return api.WrongAnswer, ""
	case 2:
		return api.PresentationError, ""
	case 3:
		return api.SystemError, ""
	case 4:
		return api.WrongAnswer, "Unexpected EOF"
	case 7:
		return api.PartiallyCorrect, ""
	}
	return api.SystemError, fmt.Sprintf("Unknown testlib code: %d", code)
}

const maxCheckerMessage = 16 << 10

// CheckerRunner runs testlib style checkers as
// checker <input> <output> <answer>
type CheckerRunner struct {
	exec  *execute.Executor
	limit time.Duration
	log   *slog.Logger
}

func NewCheckerRunner(exec *execute.Executor, limit time.Duration, log *slog.Logger) *CheckerRunner {
	return &CheckerRunner{exec: exec, limit: limit, log: log.With("component", "checker")}
}

// Check runs the checker. A checker that cannot be run, is killed by a
// signal or times out yields SE. Cancellation yields RJ.
func (c *CheckerRunner) Check(ctx context.Context, argv []string, input, output, answer string) (api.Verdict, string, error) {
	cmd := append(append([]string(nil), argv...), input, output, answer)
	res, err := c.exec.Run(ctx, execute.Request{Cmd: cmd, TimeLimit: c.limit})
	if err != nil {
		c.log.Warn("failed to run checker", "error", err)
		return api.SystemError, err.Error(), nil
	}
	defer c.exec.Dispose(res)

	msg, err := testio.Head(res.StderrPath, maxCheckerMessage)
	if err != nil {
		return "", "", fmt.Errorf("failed to read checker message: %w", err)
	}
	msg = strings.TrimSpace(msg)

	switch {
	case res.Cancelled():
		return api.Rejected, "", nil
	case res.TimedOut():
		return api.SystemError, "Checker timed out", nil
	case res.Signal != "":
		return api.SystemError, fmt.Sprintf("Checker killed by signal: %s", res.Signal), nil
	}
	v, extra := MapTestlibExitCode(res.ExitCode)
	if msg == "" {
		msg = extra
	}
	return v, msg, nil
}
