package execute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Strategy runs one solution invocation
type Strategy interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// PipedStrategy is a strategy that can also run the solution side of an
// interaction. sol and peer are connected as in Executor.RunPiped.
type PipedStrategy interface {
	Strategy
	ExecutePiped(ctx context.Context, sol, peer Request, peerGrace time.Duration) (*Result, *Result, error)
}

// Strategy names
const (
	StrategyNormal   = "normal"
	StrategyWrapper  = "wrapper"
	StrategyExternal = "external"
)

// StrategyOptions configures the non-normal strategies
type StrategyOptions struct {
	// WrapperCmd is the measuring helper argv prefix
	WrapperCmd []string
	// ExternalRunner is the path of the external runner executable
	ExternalRunner string
	UnlimitedStack bool
}

// NewStrategy returns the strategy registered under name
func NewStrategy(name string, exec *Executor, opts StrategyOptions) (Strategy, error) {
	switch name {
	case "", StrategyNormal:
		return &Normal{exec: exec}, nil
	case StrategyWrapper:
		if len(opts.WrapperCmd) == 0 {
			return nil, errors.New("wrapper strategy requires a wrapper command")
		}
		return &Wrapper{exec: exec, helper: opts.WrapperCmd, unlimitedStack: opts.UnlimitedStack}, nil
	case StrategyExternal:
		if opts.ExternalRunner == "" {
			return nil, errors.New("external strategy requires a runner")
		}
		return &External{exec: exec, runner: opts.ExternalRunner, unlimitedStack: opts.UnlimitedStack}, nil
	}
	return nil, fmt.Errorf("unknown execution strategy %q", name)
}

// Normal invokes the program directly. Memory is the rusage peak of the
// program itself.
type Normal struct {
	exec *Executor
}

func (s *Normal) Execute(ctx context.Context, req Request) (*Result, error) {
	return s.exec.Run(ctx, req)
}

func (s *Normal) ExecutePiped(ctx context.Context, sol, peer Request, peerGrace time.Duration) (*Result, *Result, error) {
	return s.exec.RunPiped(ctx, sol, peer, peerGrace)
}

// Environment understood by the measuring helper
const (
	EnvReportPath     = "JUDGE_REPORT_PATH"
	EnvUnlimitedStack = "JUDGE_UNLIMITED_STACK"
)

// WrapperReport is written by the measuring helper after its child exits
type WrapperReport struct {
	WallMicros int64  `json:"wall_us"`
	CpuMicros  int64  `json:"cpu_us"`
	MemoryKiB  int64  `json:"memory_kb"`
	ExitCode   int    `json:"exit_code"`
	Signal     string `json:"signal,omitempty"`
}

// Wrapper invokes the program through a measuring helper that reports
// peak resident memory.
type Wrapper struct {
	exec           *Executor
	helper         []string
	unlimitedStack bool
}

func (s *Wrapper) Execute(ctx context.Context, req Request) (*Result, error) {
	wreq, reportPath, err := s.wrap(req)
	if err != nil {
		return nil, err
	}
	defer s.exec.Pool().Dispose(reportPath)

	res, err := s.exec.Run(ctx, wreq)
	if err != nil {
		return nil, err
	}
	s.measure(res, reportPath)
	return res, nil
}

// ExecutePiped measures only sol; peer is run directly
func (s *Wrapper) ExecutePiped(ctx context.Context, sol, peer Request, peerGrace time.Duration) (*Result, *Result, error) {
	wsol, reportPath, err := s.wrap(sol)
	if err != nil {
		return nil, nil, err
	}
	defer s.exec.Pool().Dispose(reportPath)

	rs, rp, err := s.exec.RunPiped(ctx, wsol, peer, peerGrace)
	if err != nil {
		return nil, nil, err
	}
	s.measure(rs, reportPath)
	return rs, rp, nil
}

// wrap prefixes req with the helper and points it at a fresh report file
func (s *Wrapper) wrap(req Request) (Request, string, error) {
	pool := s.exec.Pool()
	reportPath := pool.Create()
	if err := os.WriteFile(reportPath, nil, 0644); err != nil {
		pool.Dispose(reportPath)
		return req, "", fmt.Errorf("failed to create wrapper report: %w", err)
	}

	stack := "0"
	if s.unlimitedStack {
		stack = "1"
	}
	wreq := req
	wreq.Cmd = append(append(append([]string{}, s.helper...), "--"), req.Cmd...)
	wreq.Env = append(append([]string{}, req.Env...),
		EnvReportPath+"="+reportPath,
		EnvUnlimitedStack+"="+stack)
	return wreq, reportPath, nil
}

// measure replaces the measurements of res with the helper's report. Without
// a report the rusage peak of the helper stays.
func (s *Wrapper) measure(res *Result, reportPath string) {
	rep, err := readWrapperReport(reportPath)
	switch {
	case err != nil:
		s.exec.log.Error("failed to parse wrapper report", "error", err)
	case rep == nil:
		if res.Abort == AbortNone && !res.KilledByPeer {
			s.exec.log.Warn("wrapper report is empty")
		}
	default:
		res.Time = time.Duration(rep.WallMicros) * time.Microsecond
		res.ExitCode = rep.ExitCode
		res.Signal = rep.Signal
		mem := float64(rep.MemoryKiB) / 1024
		res.MemoryMiB = &mem
	}
}

func readWrapperReport(path string) (*WrapperReport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, nil
	}
	var rep WrapperReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// external runner stdout protocol
type runnerOutput struct {
	Error     bool    `json:"error"`
	Killed    bool    `json:"killed"`
	Time      float64 `json:"time"`
	Memory    float64 `json:"memory"`
	ExitCode  int     `json:"exitCode"`
	Signal    int     `json:"signal"`
	ErrorType int     `json:"errorType"`
	ErrorCode int     `json:"errorCode"`
}

// External delegates the invocation, limit enforcement included, to a
// user supplied runner and trusts its report.
type External struct {
	exec           *Executor
	runner         string
	unlimitedStack bool
}

func (s *External) Execute(ctx context.Context, req Request) (*Result, error) {
	if len(req.Cmd) != 1 {
		return nil, errors.New("external runner only supports a single program without arguments")
	}
	pool := s.exec.Pool()

	stdinPath := req.StdinPath
	if req.StdinData != nil || stdinPath == "" {
		stdinPath = pool.Create()
		defer pool.Dispose(stdinPath)
		data := ""
		if req.StdinData != nil {
			data = *req.StdinData
		}
		if err := os.WriteFile(stdinPath, []byte(data), 0644); err != nil {
			return nil, fmt.Errorf("failed to write stdin: %w", err)
		}
	}

	userOut := pool.Create()
	userErr := pool.Create()
	argv := []string{s.runner, req.Cmd[0], stdinPath, userOut, userErr}
	if s.unlimitedStack {
		argv = append(argv, "--unlimited-stack")
	}

	res, err := s.exec.Run(ctx, Request{
		Cmd:       argv,
		TimeLimit: req.TimeLimit,
		Env:       req.Env,
		Dir:       req.Dir,
		softKill:  true,
	})
	if err != nil {
		pool.Dispose(userOut, userErr)
		return nil, err
	}
	raw, readErr := os.ReadFile(res.StdoutPath)
	s.exec.Dispose(res)

	aborted := &Result{
		ExitCode:   -1,
		StdoutPath: userOut,
		StderrPath: userErr,
		Time:       res.Time,
		Abort:      res.Abort,
	}
	if readErr != nil {
		pool.Dispose(userOut, userErr)
		return nil, fmt.Errorf("failed to read runner output: %w", readErr)
	}
	if res.Abnormal() {
		if res.Abort != AbortNone {
			return aborted, nil
		}
		pool.Dispose(userOut, userErr)
		return nil, fmt.Errorf("runner exited with code %d%s", res.ExitCode, sigSuffix(res.Signal))
	}

	var out runnerOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		if res.Abort != AbortNone {
			return aborted, nil
		}
		pool.Dispose(userOut, userErr)
		return nil, fmt.Errorf("runner output is invalid JSON: %w", err)
	}
	if out.Error {
		pool.Dispose(userOut, userErr)
		return nil, fmt.Errorf("runner reported error: %d (code: %d)", out.ErrorType, out.ErrorCode)
	}

	mem := out.Memory
	r := &Result{
		ExitCode:   out.ExitCode,
		StdoutPath: userOut,
		StderrPath: userErr,
		Time:       time.Duration(out.Time * float64(time.Millisecond)),
		MemoryMiB:  &mem,
		Abort:      res.Abort,
	}
	if out.Signal != 0 {
		r.Signal = unix.SignalName(syscall.Signal(out.Signal))
		if r.Signal == "" {
			r.Signal = fmt.Sprintf("signal %d", out.Signal)
		}
	}
	return r, nil
}

func sigSuffix(sig string) string {
	if sig == "" {
		return ""
	}
	return " (" + sig + ")"
}
