package judge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/problem"
	"github.com/programme-lv/judge/internal/testio"
)

// Traditional runs the solution on the input and evaluates its output
type Traditional struct {
	strategy execute.Strategy
	exec     *execute.Executor
	eval     *Evaluator
	mat      *testio.Materializer
	inline   int64
	log      *slog.Logger
}

func (t *Traditional) Judge(ctx context.Context, req Request, onStatus StatusFunc) (*problem.Result, error) {
	in, ans, release, err := materialize(t.mat, req)
	if err != nil {
		return nil, err
	}
	defer release()

	status(onStatus, api.Judging)
	var mem float64
	if req.MemoryLimitMb != nil {
		mem = *req.MemoryLimitMb
	}
	res, err := t.strategy.Execute(ctx, execute.Request{
		Cmd:            req.Solution,
		StdinPath:      in,
		TimeLimit:      req.TimeLimit,
		MemoryLimitMiB: mem,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run solution: %w", err)
	}
	status(onStatus, api.Judged)

	status(onStatus, api.Comparing)
	out, err := t.eval.Evaluate(ctx, Input{
		Exec:          res,
		InputPath:     in,
		AnswerPath:    ans,
		Checker:       req.Checker,
		TimeLimit:     req.TimeLimit,
		MemoryLimitMb: req.MemoryLimitMb,
	})
	if err != nil {
		t.exec.Dispose(res)
		return nil, err
	}
	t.log.Debug("evaluated", "verdict", out.Verdict, "time_ms", out.TimeMs)

	return &problem.Result{
		Verdict:  out.Verdict,
		TimeMs:   out.TimeMs,
		MemoryMb: out.MemoryMb,
		Stdout:   keepOutput(t.mat, res.StdoutPath, t.inline),
		Stderr:   keepOutput(t.mat, res.StderrPath, t.inline),
		Msg:      out.Msg,
	}, nil
}
