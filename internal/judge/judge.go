// Package judge runs a solution on one testcase and decides its verdict,
// either by comparing its output or by letting an interactor talk to it.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/grader"
	"github.com/programme-lv/judge/internal/problem"
	"github.com/programme-lv/judge/internal/testio"
)

// ErrMissingInteractor is returned when an interactive testcase is judged
// without an interactor
var ErrMissingInteractor = errors.New("interactive problem has no interactor")

// Request describes one judging of a testcase
type Request struct {
	Stdin  testio.IO
	Answer testio.IO

	Solution   []string
	Checker    []string
	Interactor []string

	TimeLimit     time.Duration
	MemoryLimitMb *float64
}

// StatusFunc receives the running verdicts of a testcase
type StatusFunc func(api.Verdict)

// Service judges one testcase
type Service interface {
	Judge(ctx context.Context, req Request, onStatus StatusFunc) (*problem.Result, error)
}

type Options struct {
	Strategy execute.Strategy
	Exec     *execute.Executor
	Checker  *grader.CheckerRunner
	Compare  grader.Options

	// InteractorGrace is how long one side of an interaction may keep
	// running after the other side exited
	InteractorGrace time.Duration
	// InlineMax is the largest output kept in memory in results
	InlineMax int64
}

// Services holds the traditional and the interactive judge
type Services struct {
	Traditional *Traditional
	Interactive *Interactive
}

func New(opts Options, log *slog.Logger) *Services {
	mat := testio.NewMaterializer(opts.Exec.Pool())
	eval := NewEvaluator(opts.Checker, opts.Compare)
	return &Services{
		Traditional: &Traditional{
			strategy: opts.Strategy,
			exec:     opts.Exec,
			eval:     eval,
			mat:      mat,
			inline:   opts.InlineMax,
			log:      log.With("component", "judge"),
		},
		Interactive: &Interactive{
			strategy: opts.Strategy,
			exec:     opts.Exec,
			mat:      mat,
			grace:    opts.InteractorGrace,
			inline:   opts.InlineMax,
			log:      log.With("component", "interactive-judge"),
		},
	}
}

// For returns the service that judges testcases of p
func (s *Services) For(p *problem.Problem) Service {
	if p.Interactive() {
		return s.Interactive
	}
	return s.Traditional
}

func status(f StatusFunc, v api.Verdict) {
	if f != nil {
		f(v)
	}
}

// materialize returns paths for the testcase input and answer
func materialize(mat *testio.Materializer, req Request) (string, string, func(), error) {
	in, relIn, err := mat.Materialize(req.Stdin)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to materialize input: %w", err)
	}
	ans, relAns, err := mat.Materialize(req.Answer)
	if err != nil {
		relIn()
		return "", "", nil, fmt.Errorf("failed to materialize answer: %w", err)
	}
	return in, ans, func() { relIn(); relAns() }, nil
}

// keepOutput inlines a small capture file or keeps a reference to it. An
// empty path gives an empty inline value.
func keepOutput(mat *testio.Materializer, path string, max int64) testio.IO {
	if path == "" {
		return testio.Inline("")
	}
	x, err := mat.TryInline(path, max)
	if err != nil {
		return testio.File(path)
	}
	return x
}
