package judge_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/grader"
	"github.com/programme-lv/judge/internal/judge"
	"github.com/programme-lv/judge/internal/logging"
	"github.com/programme-lv/judge/internal/problem"
	"github.com/programme-lv/judge/internal/testio"
	"github.com/programme-lv/judge/internal/tmpstore"
	"github.com/stretchr/testify/require"
)

type env struct {
	dir  string
	exec *execute.Executor
	svc  *judge.Services
	eval *judge.Evaluator
}

func newEnv(t *testing.T) *env {
	dir := t.TempDir()
	pool, err := tmpstore.New(filepath.Join(dir, "tmp"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	exec := execute.New(pool, 100*time.Millisecond, logging.Discard())
	strategy, err := execute.NewStrategy(execute.StrategyNormal, exec, execute.StrategyOptions{})
	require.NoError(t, err)
	checker := grader.NewCheckerRunner(exec, 5*time.Second, logging.Discard())

	return &env{
		dir:  dir,
		exec: exec,
		eval: judge.NewEvaluator(checker, grader.Options{Mode: grader.ModeLines}),
		svc: judge.New(judge.Options{
			Strategy:        strategy,
			Exec:            exec,
			Checker:         checker,
			Compare:         grader.Options{Mode: grader.ModeLines},
			InteractorGrace: 500 * time.Millisecond,
			InlineMax:       1 << 10,
		}, logging.Discard()),
	}
}

func (e *env) file(t *testing.T, name, body string) string {
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func ptr[T any](v T) *T { return &v }

func TestEvaluateIsIdempotent(t *testing.T) {
	e := newEnv(t)
	in := judge.Input{
		Exec: &execute.Result{
			StdoutPath: e.file(t, "out", "1 2\n4\n"),
			StderrPath: e.file(t, "err", ""),
			Time:       20 * time.Millisecond,
		},
		AnswerPath: e.file(t, "ans", "1 2\n3\n"),
		TimeLimit:  time.Second,
	}
	first, err := e.eval.Evaluate(context.Background(), in)
	require.NoError(t, err)
	second, err := e.eval.Evaluate(context.Background(), in)
	require.NoError(t, err)

	require.Equal(t, api.WrongAnswer, first.Verdict)
	require.Equal(t, first, second)
	require.Equal(t, 20.0, first.TimeMs)
	require.FileExists(t, in.Exec.StdoutPath)
}

func TestEvaluateOrder(t *testing.T) {
	e := newEnv(t)
	out := e.file(t, "out", "3\n")
	errf := e.file(t, "err", "")
	ans := e.file(t, "ans", "3\n")

	cases := []struct {
		name string
		res  execute.Result
		mem  *float64
		want api.Verdict
		msg  string
		time float64
	}{
		{name: "accepted", res: execute.Result{Time: 10 * time.Millisecond}, want: api.Accepted, time: 10},
		{name: "cancelled wins", res: execute.Result{Abort: execute.AbortCancelled, ExitCode: 1}, want: api.Rejected},
		{name: "timeout reports limit", res: execute.Result{Abort: execute.AbortTimeout, Time: 3 * time.Second, Signal: "SIGKILL"}, want: api.TimeLimitExceeded, time: 1000},
		{name: "slow but finished", res: execute.Result{Time: 1100 * time.Millisecond}, want: api.TimeLimitExceeded, time: 1000},
		{name: "memory", res: execute.Result{MemoryMiB: ptr(300.0)}, mem: ptr(256.0), want: api.MemoryLimitExceeded, msg: "Memory used: 300.0 MB"},
		{name: "memory unknown", res: execute.Result{}, mem: ptr(256.0), want: api.Accepted},
		{name: "exit code", res: execute.Result{ExitCode: 3}, want: api.RuntimeError, msg: "Program exited with code: 3"},
		{name: "signal", res: execute.Result{ExitCode: -1, Signal: "SIGSEGV"}, want: api.RuntimeError, msg: "Program killed by signal: SIGSEGV"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := tc.res
			res.StdoutPath, res.StderrPath = out, errf
			o, err := e.eval.Evaluate(context.Background(), judge.Input{
				Exec:          &res,
				AnswerPath:    ans,
				TimeLimit:     time.Second,
				MemoryLimitMb: tc.mem,
			})
			require.NoError(t, err)
			require.Equal(t, tc.want, o.Verdict)
			require.Equal(t, tc.msg, o.Msg)
			if tc.time > 0 {
				require.Equal(t, tc.time, o.TimeMs)
			}
		})
	}
}

func TestEvaluateWithChecker(t *testing.T) {
	e := newEnv(t)
	chk := e.file(t, "chk.sh", `echo "points: 5" >&2; exit 7`)
	o, err := e.eval.Evaluate(context.Background(), judge.Input{
		Exec: &execute.Result{
			StdoutPath: e.file(t, "out", "x"),
			StderrPath: e.file(t, "err", ""),
		},
		InputPath:  e.file(t, "in", ""),
		AnswerPath: e.file(t, "ans", ""),
		Checker:    []string{"sh", chk},
		TimeLimit:  time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, api.PartiallyCorrect, o.Verdict)
	require.Equal(t, "points: 5", o.Msg)
}

type statuses struct {
	mu sync.Mutex
	vs []api.Verdict
}

func (s *statuses) add(v api.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vs = append(s.vs, v)
}

func TestTraditionalJudge(t *testing.T) {
	e := newEnv(t)
	sol := e.file(t, "sol.sh", "read a b; echo $((a+b)); echo debug >&2")

	st := &statuses{}
	res, err := e.svc.Traditional.Judge(context.Background(), judge.Request{
		Stdin:     testio.Inline("1 2\n"),
		Answer:    testio.Inline("3\n"),
		Solution:  []string{"sh", sol},
		TimeLimit: 2 * time.Second,
	}, st.add)
	require.NoError(t, err)
	require.Equal(t, api.Accepted, res.Verdict)
	require.Equal(t, "3\n", *res.Stdout.Data)
	require.Equal(t, "debug\n", *res.Stderr.Data)
	require.Equal(t, []api.Verdict{api.Judging, api.Judged, api.Comparing}, st.vs)

	used, _ := e.exec.Pool().Stats()
	require.Equal(t, 0, used)
}

func TestTraditionalJudgeWhitespaceTolerance(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Traditional.Judge(context.Background(), judge.Request{
		Stdin:     testio.Inline(""),
		Answer:    testio.Inline("1 2\n3"),
		Solution:  []string{"sh", "-c", `printf '1 2   \n3\n\n\n'`},
		TimeLimit: 2 * time.Second,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, api.Accepted, res.Verdict)
}

func TestTraditionalJudgeTimeLimit(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Traditional.Judge(context.Background(), judge.Request{
		Stdin:     testio.Inline(""),
		Answer:    testio.Inline(""),
		Solution:  []string{"sleep", "10"},
		TimeLimit: 200 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, api.TimeLimitExceeded, res.Verdict)
	require.Equal(t, 200.0, res.TimeMs)
}

func TestTraditionalJudgeLargeOutputStaysOnDisk(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Traditional.Judge(context.Background(), judge.Request{
		Stdin:     testio.Inline(""),
		Answer:    testio.Inline(""),
		Solution:  []string{"sh", "-c", "head -c 4096 /dev/zero"},
		TimeLimit: 2 * time.Second,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, api.WrongAnswer, res.Verdict)
	require.False(t, res.Stdout.IsInline())
	require.FileExists(t, res.Stdout.Path)
}

const interactorScript = `
read n < "$1"
echo "$n"
read reply
if [ "$reply" = "$((n+1))" ]; then echo "correct" >&2; exit 0; fi
echo "verdict=WA" > "$2"
echo "got $reply" >> "$2"
exit 0
`

func interactiveRequest(e *env, t *testing.T, solution string) judge.Request {
	return judge.Request{
		Stdin:      testio.Inline("5\n"),
		Answer:     testio.Inline(""),
		Solution:   []string{"sh", e.file(t, "sol.sh", solution)},
		Interactor: []string{"sh", e.file(t, "inter.sh", interactorScript)},
		TimeLimit:  2 * time.Second,
	}
}

func TestInteractiveAccepted(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Interactive.Judge(context.Background(), interactiveRequest(e, t, "read n; echo $((n+1))"), nil)
	require.NoError(t, err)
	require.Equal(t, api.Accepted, res.Verdict)
	require.Equal(t, "correct", res.Msg)
}

func TestInteractiveFeedbackVerdict(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Interactive.Judge(context.Background(), interactiveRequest(e, t, "read n; echo $n"), nil)
	require.NoError(t, err)
	require.Equal(t, api.WrongAnswer, res.Verdict)
	require.Equal(t, "got 5", res.Msg)
}

func TestInteractiveVerdictBeatsSolutionCrash(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Interactive.Judge(context.Background(), interactiveRequest(e, t, "read n; echo $n; exit 3"), nil)
	require.NoError(t, err)
	require.Equal(t, api.WrongAnswer, res.Verdict)
}

func TestInteractiveSolutionCrashAfterAccept(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Interactive.Judge(context.Background(), interactiveRequest(e, t, "read n; echo $((n+1)); exit 3"), nil)
	require.NoError(t, err)
	require.Equal(t, api.RuntimeError, res.Verdict)
	require.Contains(t, res.Msg, "Program exited with code: 3")
}

func TestInteractiveSolutionTimeout(t *testing.T) {
	e := newEnv(t)
	req := interactiveRequest(e, t, "sleep 10")
	req.TimeLimit = 200 * time.Millisecond
	res, err := e.svc.Interactive.Judge(context.Background(), req, nil)
	require.NoError(t, err)
	require.Equal(t, api.TimeLimitExceeded, res.Verdict)
}

func TestInteractiveMemoryLimit(t *testing.T) {
	e := newEnv(t)
	req := interactiveRequest(e, t, "read n; echo $((n+1))")
	limit := 0.001
	req.MemoryLimitMb = &limit
	res, err := e.svc.Interactive.Judge(context.Background(), req, nil)
	require.NoError(t, err)
	require.Equal(t, api.MemoryLimitExceeded, res.Verdict)
	require.NotNil(t, res.MemoryMb)
	require.Greater(t, *res.MemoryMb, limit)
}

func TestInteractiveCancelled(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.svc.Interactive.Judge(ctx, interactiveRequest(e, t, "sleep 10"), nil)
	require.NoError(t, err)
	require.Equal(t, api.Rejected, res.Verdict)
}

func TestInteractiveMissingInteractor(t *testing.T) {
	e := newEnv(t)
	req := interactiveRequest(e, t, "true")
	req.Interactor = nil
	_, err := e.svc.Interactive.Judge(context.Background(), req, nil)
	require.ErrorIs(t, err, judge.ErrMissingInteractor)
}

func TestServiceFor(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, judge.Service(e.svc.Traditional), e.svc.For(&problem.Problem{Src: "a.c"}))
	require.Equal(t, judge.Service(e.svc.Interactive), e.svc.For(&problem.Problem{Src: "a.c", Interactor: "i.c"}))
}
