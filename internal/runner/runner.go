// Package runner drives the testcases of a problem through compilation and
// judging, tracks what is in flight and reports every state change to a
// sink.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/judge"
	"github.com/programme-lv/judge/internal/problem"
	"github.com/programme-lv/judge/internal/sink"
	"github.com/programme-lv/judge/internal/stress"
	"github.com/programme-lv/judge/internal/testio"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Concurrency is the number of testcases judged at the same time
	Concurrency int
}

type Runner struct {
	comp   *compiler.Compiler
	judges *judge.Services
	stress *stress.Service
	exec   *execute.Executor
	sink   sink.Sink
	opts   Options
	log    *slog.Logger

	// testcase id -> per-testcase scope
	inflight *xsync.MapOf[string, *flight]
	// problem -> run-wide scope of RunAll and Stress
	runs *xsync.MapOf[*problem.Problem, *flight]
}

func New(comp *compiler.Compiler, judges *judge.Services, st *stress.Service, exec *execute.Executor,
	s sink.Sink, opts Options, log *slog.Logger) *Runner {

	if s == nil {
		s = sink.Nop{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{
		comp:     comp,
		judges:   judges,
		stress:   st,
		exec:     exec,
		sink:     s,
		opts:     opts,
		log:      log.With("component", "runner"),
		inflight: xsync.NewMapOf[string, *flight](),
		runs:     xsync.NewMapOf[*problem.Problem, *flight](),
	}
}

// RunAll judges every enabled testcase of p and marks the rest skipped. A
// previous RunAll or Stress of p is cancelled first.
func (r *Runner) RunAll(ctx context.Context, p *problem.Problem, force bool) error {
	scope := acquire(r.runs, p, ctx)
	defer release(r.runs, p, scope)

	var enabled, disabled []problem.Testcase
	for _, tc := range p.Testcases() {
		if tc.Enabled {
			enabled = append(enabled, tc)
		} else {
			disabled = append(disabled, tc)
		}
	}
	return r.run(scope.ctx, p, enabled, disabled, force)
}

// RunOne judges a single testcase, enabled or not
func (r *Runner) RunOne(ctx context.Context, p *problem.Problem, id string, force bool) error {
	tc, err := p.Testcase(id)
	if err != nil {
		return err
	}
	return r.run(ctx, p, []problem.Testcase{tc}, nil, force)
}

// Stop cancels the run of one testcase and waits for it to end. It reports
// whether the testcase was running.
func (r *Runner) Stop(id string) bool {
	return stop(r.inflight, id)
}

// StopAll cancels the run-wide scope of p and every testcase of p in flight
func (r *Runner) StopAll(p *problem.Problem) {
	stop(r.runs, p)
	for _, tc := range p.Testcases() {
		stop(r.inflight, tc.ID)
	}
}

func (r *Runner) run(ctx context.Context, p *problem.Problem, tcs, skipped []problem.Testcase, force bool) error {
	runUuid := uuid.NewString()
	log := r.log.With("run", runUuid, "problem", p.Name)
	r.sink.StartRun(runUuid, p.Name)

	for _, tc := range skipped {
		r.resetResult(p, tc.ID, api.Skipped)
		r.finish(runUuid, p, tc.ID, &problem.Result{Verdict: api.Skipped})
	}

	flights := make([]*flight, len(tcs))
	for i, tc := range tcs {
		flights[i] = acquire(r.inflight, tc.ID, ctx)
		if r.resetResult(p, tc.ID, api.Waiting) {
			r.sink.TestcaseStatus(runUuid, tc.ID, api.Waiting)
		}
	}
	defer func() {
		for i, tc := range tcs {
			release(r.inflight, tc.ID, flights[i])
		}
	}()
	for _, tc := range tcs {
		r.setStatus(runUuid, p, tc.ID, api.Compiling)
	}

	arts, err := r.comp.CompileAll(ctx, p, force, &observer{sink: r.sink, runUuid: runUuid})
	if err != nil {
		if ctx.Err() != nil {
			r.finishAll(runUuid, p, tcs, api.Rejected, "")
			r.sink.FinishRun(runUuid)
			return nil
		}
		log.Error("failed to compile", "error", err)
		r.finishAll(runUuid, p, tcs, api.SystemError, err.Error())
		r.sink.InternalError(runUuid, err.Error())
		return err
	}

	if err := arts.Err(compiler.Solution); err != nil {
		return r.solutionFailed(runUuid, p, tcs, err)
	}
	if err := arts.Err(compiler.Checker); err != nil {
		log.Warn("checker failed to compile, comparing outputs instead", "error", err)
	}

	req, err := judge.NewRequest(p, arts)
	if err != nil {
		log.Error("failed to prepare judging", "error", err)
		r.finishAll(runUuid, p, tcs, api.SystemError, err.Error())
		r.sink.InternalError(runUuid, err.Error())
		return nil
	}
	svc := r.judges.For(p)

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, tc := range tcs {
		fl := flights[i]
		g.Go(func() error {
			defer release(r.inflight, tc.ID, fl)
			r.judgeOne(fl.ctx, runUuid, p, svc, req, tc, log)
			return nil
		})
	}
	_ = g.Wait()

	r.sink.FinishRun(runUuid)
	return nil
}

func (r *Runner) judgeOne(ctx context.Context, runUuid string, p *problem.Problem, svc judge.Service,
	req judge.Request, tc problem.Testcase, log *slog.Logger) {

	if ctx.Err() != nil {
		r.finish(runUuid, p, tc.ID, &problem.Result{Verdict: api.Rejected})
		return
	}
	req.Stdin = tc.Stdin
	req.Answer = tc.Answer
	res, err := svc.Judge(ctx, req, func(v api.Verdict) {
		r.setStatus(runUuid, p, tc.ID, v)
	})
	switch {
	case err != nil && ctx.Err() != nil:
		res = &problem.Result{Verdict: api.Rejected}
	case err != nil:
		log.Warn("failed to judge testcase", "testcase", tc.ID, "error", err)
		res = &problem.Result{Verdict: api.SystemError, Msg: err.Error()}
	}
	r.finish(runUuid, p, tc.ID, res)
}

// solutionFailed ends a run whose solution could not be compiled
func (r *Runner) solutionFailed(runUuid string, p *problem.Problem, tcs []problem.Testcase, err error) error {
	var ce *compiler.CompileError
	switch {
	case errors.As(err, &ce):
		msg := strings.TrimSpace(ce.Output)
		if ce.TimedOut || msg == "" {
			msg = ce.Error()
		}
		r.finishAll(runUuid, p, tcs, api.CompilationError, msg)
		r.sink.CompileError(runUuid, msg)
	case errors.Is(err, compiler.ErrUnsupportedLanguage):
		msg := fmt.Sprintf("No language is registered for %s", p.Src)
		r.finishAll(runUuid, p, tcs, api.Rejected, msg)
		r.sink.CompileError(runUuid, msg)
	default:
		r.finishAll(runUuid, p, tcs, api.SystemError, err.Error())
		r.sink.InternalError(runUuid, err.Error())
	}
	return nil
}

func (r *Runner) setStatus(runUuid string, p *problem.Problem, id string, v api.Verdict) {
	if err := p.SetVerdict(id, v); err != nil {
		return
	}
	r.sink.TestcaseStatus(runUuid, id, v)
}

func (r *Runner) finish(runUuid string, p *problem.Problem, id string, res *problem.Result) {
	if err := p.SetResult(id, res); err != nil {
		r.log.Debug("testcase removed while running", "testcase", id)
		r.exec.Pool().Dispose(res.Stdout.Path, res.Stderr.Path)
		return
	}
	r.sink.FinishTestcase(runUuid, Surface(id, res))
}

func (r *Runner) finishAll(runUuid string, p *problem.Problem, tcs []problem.Testcase, v api.Verdict, msg string) {
	for _, tc := range tcs {
		r.finish(runUuid, p, tc.ID, &problem.Result{Verdict: v, Msg: msg})
	}
}

// resetResult starts the testcase over with a bare verdict v and hands the
// captured output files of the previous result back to the pool. It
// reports whether the testcase still exists.
func (r *Runner) resetResult(p *problem.Problem, id string, v api.Verdict) bool {
	old, err := p.ResetResult(id, v)
	if err != nil {
		return false
	}
	if old != nil {
		r.exec.Pool().Dispose(old.Stdout.Path, old.Stderr.Path)
	}
	return true
}

// Surface converts a result into its user facing form. Outputs kept as
// files are cut to what fits the display.
func Surface(id string, res *problem.Result) api.TestcaseResult {
	out := api.TestcaseResult{
		TestcaseId: id,
		Verdict:    res.Verdict,
		TimeMillis: res.TimeMs,
		MemoryMiB:  res.MemoryMb,
		Stdout:     surfaceIO(res.Stdout),
		Stderr:     surfaceIO(res.Stderr),
	}
	if res.Msg != "" {
		msg := res.Msg
		out.Message = &msg
	}
	return out
}

const surfaceMax = api.MaxRuntimeDataHeight * (api.MaxRuntimeDataWidth + 1)

func surfaceIO(x testio.IO) *string {
	switch {
	case x.IsInline():
		s := *x.Data
		return &s
	case x.Path != "":
		s, err := testio.Head(x.Path, surfaceMax)
		if err != nil {
			return nil
		}
		return &s
	}
	return nil
}
