package judge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/grader"
	"github.com/programme-lv/judge/internal/problem"
	"github.com/programme-lv/judge/internal/testio"
)

const maxFeedback = 64 << 10

// Interactive connects the solution to an interactor that is run as
// interactor <input> <feedback> <answer>
type Interactive struct {
	strategy execute.Strategy
	exec     *execute.Executor
	mat      *testio.Materializer
	grace    time.Duration
	inline   int64
	log      *slog.Logger
}

// runPiped runs the solution through the strategy when it supports
// interaction and directly otherwise
func (j *Interactive) runPiped(ctx context.Context, sol, inter execute.Request) (*execute.Result, *execute.Result, error) {
	if ps, ok := j.strategy.(execute.PipedStrategy); ok {
		return ps.ExecutePiped(ctx, sol, inter, j.grace)
	}
	j.log.Debug("strategy cannot run interactions, running the solution directly")
	return j.exec.RunPiped(ctx, sol, inter, j.grace)
}

func (j *Interactive) Judge(ctx context.Context, req Request, onStatus StatusFunc) (*problem.Result, error) {
	if len(req.Interactor) == 0 {
		return nil, ErrMissingInteractor
	}
	in, ans, release, err := materialize(j.mat, req)
	if err != nil {
		return nil, err
	}
	defer release()

	pool := j.exec.Pool()
	feedback := pool.Create()
	defer pool.Dispose(feedback)
	if err := os.WriteFile(feedback, nil, 0644); err != nil {
		return nil, fmt.Errorf("failed to create feedback file: %w", err)
	}

	var mem float64
	if req.MemoryLimitMb != nil {
		mem = *req.MemoryLimitMb
	}
	sol := execute.Request{Cmd: req.Solution, TimeLimit: req.TimeLimit, MemoryLimitMiB: mem}
	inter := execute.Request{
		Cmd:       append(append([]string(nil), req.Interactor...), in, feedback, ans),
		TimeLimit: req.TimeLimit + j.grace,
	}

	status(onStatus, api.Judging)
	sres, ires, err := j.runPiped(ctx, sol, inter)
	if err != nil {
		return nil, fmt.Errorf("failed to run interaction: %w", err)
	}
	defer j.exec.Dispose(ires)
	status(onStatus, api.Judged)

	status(onStatus, api.Comparing)
	fb, err := testio.Head(feedback, maxFeedback)
	if err != nil {
		j.exec.Dispose(sres)
		return nil, fmt.Errorf("failed to read feedback: %w", err)
	}
	istderr, err := testio.Head(ires.StderrPath, maxFeedback)
	if err != nil {
		j.exec.Dispose(sres)
		return nil, fmt.Errorf("failed to read interactor stderr: %w", err)
	}

	out := decideInteractive(sres, ires, fb, istderr, req.TimeLimit, req.MemoryLimitMb)
	j.log.Debug("interaction judged",
		"verdict", out.Verdict,
		"solution_exit", sres.ExitCode,
		"interactor_exit", ires.ExitCode,
		"interactor_killed_by_peer", ires.KilledByPeer)

	return &problem.Result{
		Verdict:  out.Verdict,
		TimeMs:   out.TimeMs,
		MemoryMb: out.MemoryMb,
		Stdout:   testio.Inline(""),
		Stderr:   keepOutput(j.mat, sres.StderrPath, j.inline),
		Msg:      out.Msg,
	}, nil
}

// decideInteractive applies the verdict rules of an interaction given both
// results, the interactor feedback and its stderr
func decideInteractive(sol, inter *execute.Result, feedback, interStderr string,
	limit time.Duration, memLimit *float64) *Outcome {

	out := &Outcome{TimeMs: millis(sol.Time), MemoryMb: sol.MemoryMiB}
	verdict, fbMsg := parseFeedback(feedback)
	out.Msg = joinMsg(fbMsg, strings.TrimSpace(interStderr))

	if sol.Cancelled() || inter.Cancelled() {
		out.Verdict, out.Msg = api.Rejected, ""
		return out
	}
	if v, msg, ok := limitVerdict(sol, limit, memLimit); ok {
		out.Verdict = v
		if v == api.TimeLimitExceeded {
			out.TimeMs = millis(limit)
		} else {
			out.Msg = joinMsg(msg, out.Msg)
		}
		return out
	}
	// interactor gave up waiting on a solution that never finished
	if inter.TimedOut() && sol.KilledByPeer {
		out.Verdict, out.TimeMs = api.TimeLimitExceeded, millis(limit)
		return out
	}

	switch {
	case verdict != "":
		out.Verdict = verdict
	case inter.Signal != "" || inter.TimedOut() || inter.KilledByPeer:
		out.Verdict = api.SystemError
		out.Msg = joinMsg("Interactor did not exit normally", out.Msg)
	default:
		v, msg := grader.MapTestlibExitCode(inter.ExitCode)
		out.Verdict = v
		if out.Msg == "" {
			out.Msg = msg
		}
	}

	if out.Verdict == api.Accepted && sol.Abnormal() && !sol.KilledByPeer {
		out.Verdict = api.RuntimeError
		out.Msg = joinMsg(exitMessage(sol), out.Msg)
	}
	return out
}

// parseFeedback extracts a verdict=XX line from the feedback and returns
// the remaining text
func parseFeedback(fb string) (api.Verdict, string) {
	var verdict api.Verdict
	var rest []string
	for _, line := range strings.Split(fb, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "verdict="); ok && verdict == "" {
			if pv, ok := api.ParseVerdict(strings.TrimSpace(v)); ok && !pv.IsRunning() {
				verdict = pv
				continue
			}
		}
		rest = append(rest, line)
	}
	return verdict, strings.TrimSpace(strings.Join(rest, "\n"))
}

func joinMsg(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}
