// Package stress compares a solution with a brute force on generated
// inputs until their answers differ.
package stress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/judge"
	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/problem"
	"github.com/programme-lv/judge/internal/testio"
)

type Options struct {
	GeneratorLimit  time.Duration
	BruteForceLimit time.Duration
	// Seed is passed to the generator plus the iteration number
	Seed int64
}

// UpdateFunc receives every state change of the stress test
type UpdateFunc func(api.StressStatus)

type Service struct {
	exec   *execute.Executor
	judges *judge.Services
	opts   Options
	log    *slog.Logger
}

func New(exec *execute.Executor, judges *judge.Services, opts Options, log *slog.Logger) *Service {
	return &Service{exec: exec, judges: judges, opts: opts, log: log.With("component", "stress")}
}

// Status returns the wire form of the stress state of bf
func Status(bf *problem.BfCompare) api.StressStatus {
	st := api.StressStatus{State: string(bf.State()), Iteration: bf.Count()}
	if msg := bf.Msg(); msg != "" {
		st.Message = &msg
	}
	return st
}

// Run iterates generate, brute force, judge until the solution disagrees
// with the brute force, a helper fails or ctx is cancelled. When a
// difference is found the failing input is added to p as a new testcase and
// its id is returned.
func (s *Service) Run(ctx context.Context, p *problem.Problem, arts *compiler.Artifacts, onUpdate UpdateFunc) (string, error) {
	bf := p.BfCompare
	if !bf.Ready() {
		return "", errors.New("stress test needs a generator and a brute force")
	}
	notify := func() {
		if onUpdate != nil {
			onUpdate(Status(bf))
		}
	}

	for _, u := range []compiler.Unit{compiler.Solution, compiler.Generator, compiler.BruteForce} {
		if arts.Get(u) == nil {
			msg := fmt.Sprintf("%s was not compiled", u)
			if err := arts.Err(u); err != nil {
				msg = err.Error()
			}
			bf.Fail(problem.BfCompilationError, msg)
			notify()
			return "", nil
		}
	}

	genArgv, err := arts.Get(compiler.Generator).RunArgv(lang.Overrides{})
	if err != nil {
		return "", err
	}
	bruteArgv, err := arts.Get(compiler.BruteForce).RunArgv(lang.Overrides{})
	if err != nil {
		return "", err
	}
	req, err := judge.NewRequest(p, arts)
	if err != nil {
		bf.Fail(problem.BfInternalError, err.Error())
		notify()
		return "", nil
	}
	svc := s.judges.For(p)

	bf.ResetCount()
	for {
		if ctx.Err() != nil {
			bf.SetState(problem.BfInactive)
			notify()
			return "", nil
		}
		it := bf.Next()
		seed := s.opts.Seed + int64(it)
		id, done := s.iterate(ctx, p, svc, req, genArgv, bruteArgv, it, seed, notify)
		if done {
			return id, nil
		}
	}
}

// iterate runs one generate, brute force, judge round and reports whether
// the loop has to stop
func (s *Service) iterate(ctx context.Context, p *problem.Problem, svc judge.Service, req judge.Request,
	genArgv, bruteArgv []string, it int, seed int64, notify func()) (string, bool) {

	bf := p.BfCompare
	bf.SetState(problem.BfGenerating)
	notify()
	gen, stop := s.runHelper(ctx, bf, "Generator", execute.Request{
		Cmd:       append(append([]string(nil), genArgv...), strconv.FormatInt(seed, 10)),
		TimeLimit: s.opts.GeneratorLimit,
	}, notify)
	if stop {
		return "", true
	}
	defer s.exec.Dispose(gen)

	bf.SetState(problem.BfRunningBrute)
	notify()
	brute, stop := s.runHelper(ctx, bf, "Brute force", execute.Request{
		Cmd:       bruteArgv,
		StdinPath: gen.StdoutPath,
		TimeLimit: s.opts.BruteForceLimit,
	}, notify)
	if stop {
		return "", true
	}
	defer s.exec.Dispose(brute)

	bf.SetState(problem.BfRunningSolution)
	notify()
	req.Stdin = testio.File(gen.StdoutPath)
	req.Answer = testio.File(brute.StdoutPath)
	res, err := svc.Judge(ctx, req, nil)
	if err != nil {
		s.log.Warn("failed to judge solution", "iteration", it, "error", err)
		bf.Fail(problem.BfInternalError, err.Error())
		notify()
		return "", true
	}

	switch res.Verdict {
	case api.Accepted:
		s.exec.Pool().Dispose(res.Stdout.Path, res.Stderr.Path)
		return "", false
	case api.Rejected:
		s.exec.Pool().Dispose(res.Stdout.Path, res.Stderr.Path)
		bf.SetState(problem.BfInactive)
		notify()
		return "", true
	}

	tc, err := foundTestcase(req, res)
	if err != nil {
		bf.Fail(problem.BfInternalError, err.Error())
		notify()
		return "", true
	}
	id := p.AddTestcase(tc)
	s.log.Info("found difference", "iteration", it, "seed", seed, "verdict", res.Verdict, "testcase", id)
	bf.Fail(problem.BfFoundDifference,
		fmt.Sprintf("Iteration %d (seed %d): %s", it, seed, res.Verdict.FullName()))
	notify()
	return id, true
}

// foundTestcase inlines the generated input and the brute force answer,
// since both live in pooled files that are reused after this iteration
func foundTestcase(req judge.Request, res *problem.Result) (*problem.Testcase, error) {
	input, err := testio.Read(req.Stdin)
	if err != nil {
		return nil, err
	}
	answer, err := testio.Read(req.Answer)
	if err != nil {
		return nil, err
	}
	return &problem.Testcase{
		Stdin:   testio.Inline(input),
		Answer:  testio.Inline(answer),
		Enabled: true,
		Result:  res,
	}, nil
}

// runHelper runs the generator or the brute force. On failure the state is
// updated and stop is true.
func (s *Service) runHelper(ctx context.Context, bf *problem.BfCompare, name string,
	req execute.Request, notify func()) (*execute.Result, bool) {

	res, err := s.exec.Run(ctx, req)
	if err != nil {
		bf.Fail(problem.BfInternalError, fmt.Sprintf("%s: %v", name, err))
		notify()
		return nil, true
	}
	var msg string
	switch {
	case res.Cancelled():
		s.exec.Dispose(res)
		bf.SetState(problem.BfInactive)
		notify()
		return nil, true
	case res.TimedOut():
		msg = name + " timed out"
	case res.Signal != "":
		msg = fmt.Sprintf("%s killed by signal: %s", name, res.Signal)
	case res.ExitCode != 0:
		msg = fmt.Sprintf("%s exited with code: %d", name, res.ExitCode)
	}
	if msg != "" {
		s.exec.Dispose(res)
		bf.Fail(problem.BfInternalError, msg)
		notify()
		return nil, true
	}
	return res, false
}
