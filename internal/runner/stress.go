package runner

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/problem"
	"github.com/programme-lv/judge/internal/stress"
)

// Stress compiles every unit of p and runs a stress test until the solution
// disagrees with the brute force. The id of the testcase added for the
// difference is returned, or "" when none was found. A previous RunAll or
// Stress of p is cancelled first.
func (r *Runner) Stress(ctx context.Context, p *problem.Problem, force bool) (string, error) {
	bf := p.BfCompare
	if !bf.Ready() {
		return "", errors.New("stress test needs a generator and a brute force")
	}
	scope := acquire(r.runs, p, ctx)
	defer release(r.runs, p, scope)
	ctx = scope.ctx

	runUuid := uuid.NewString()
	log := r.log.With("run", runUuid, "problem", p.Name)
	r.sink.StartRun(runUuid, p.Name)
	notify := func(st api.StressStatus) { r.sink.StressStatus(runUuid, st) }

	bf.ResetCount()
	bf.SetState(problem.BfCompiling)
	notify(stress.Status(bf))

	arts, err := r.comp.CompileAll(ctx, p, force, &observer{sink: r.sink, runUuid: runUuid},
		compiler.Solution, compiler.Checker, compiler.Interactor, compiler.Generator, compiler.BruteForce)
	if err != nil {
		if ctx.Err() != nil {
			bf.SetState(problem.BfInactive)
			notify(stress.Status(bf))
			r.sink.FinishRun(runUuid)
			return "", nil
		}
		log.Error("failed to compile", "error", err)
		bf.Fail(problem.BfInternalError, err.Error())
		notify(stress.Status(bf))
		r.sink.InternalError(runUuid, err.Error())
		return "", err
	}

	id, err := r.stress.Run(ctx, p, arts, notify)
	if err != nil {
		log.Error("stress test failed", "error", err)
		bf.Fail(problem.BfInternalError, err.Error())
		notify(stress.Status(bf))
		r.sink.InternalError(runUuid, err.Error())
		return "", err
	}
	if id != "" {
		if tc, err := p.Testcase(id); err == nil && tc.Result != nil {
			r.sink.FinishTestcase(runUuid, Surface(id, tc.Result))
		}
	}

	switch bf.State() {
	case problem.BfCompilationError:
		r.sink.CompileError(runUuid, bf.Msg())
	case problem.BfInternalError:
		r.sink.InternalError(runUuid, bf.Msg())
	default:
		r.sink.FinishRun(runUuid)
	}
	return id, nil
}

// Compile compiles every unit of p without judging anything. A failing
// solution ends the run with a compile error; failures of helper programs
// are only reported per unit.
func (r *Runner) Compile(ctx context.Context, p *problem.Problem, force bool) (*compiler.Artifacts, error) {
	runUuid := uuid.NewString()
	r.sink.StartRun(runUuid, p.Name)

	units := make([]compiler.Unit, 0, 5)
	for u := range compiler.Sources(p) {
		units = append(units, u)
	}
	arts, err := r.comp.CompileAll(ctx, p, force, &observer{sink: r.sink, runUuid: runUuid}, units...)
	if err != nil {
		if ctx.Err() != nil {
			r.sink.FinishRun(runUuid)
			return nil, ctx.Err()
		}
		r.sink.InternalError(runUuid, err.Error())
		return nil, err
	}
	if err := arts.Err(compiler.Solution); err != nil {
		r.sink.CompileError(runUuid, err.Error())
		return arts, nil
	}
	r.sink.FinishRun(runUuid)
	return arts, nil
}
