package execute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/programme-lv/judge/internal/tmpstore"
	"golang.org/x/sys/unix"
)

// AbortReason tells why the engine killed a process
type AbortReason int

const (
	AbortNone AbortReason = iota
	AbortCancelled
	AbortTimeout
)

func (a AbortReason) String() string {
	switch a {
	case AbortCancelled:
		return "cancelled"
	case AbortTimeout:
		return "timeout"
	}
	return "none"
}

// Request is an immutable description of one process invocation
type Request struct {
	Cmd []string

	// StdinData takes precedence over StdinPath. With neither set the
	// process reads from the null device.
	StdinPath string
	StdinData *string

	// TimeLimit of zero disables the watchdog
	TimeLimit      time.Duration
	MemoryLimitMiB float64

	Env []string
	Dir string

	// softKill makes abort write "k" to a stdin pipe instead of killing,
	// with a hard kill after the grace period
	softKill bool
}

// Result is the raw outcome of one process invocation. StdoutPath and
// StderrPath are pooled and must be disposed by the caller.
type Result struct {
	ExitCode int
	Signal   string

	StdoutPath string
	StderrPath string

	Time time.Duration
	// MemoryMiB is the peak resident set size of the direct child, or what
	// a measuring strategy reported
	MemoryMiB *float64

	Abort AbortReason
	// KilledByPeer is set in piped mode when the process was killed
	// because the other side had already finished or failed
	KilledByPeer bool
}

func (r *Result) Cancelled() bool { return r.Abort == AbortCancelled }

func (r *Result) TimedOut() bool { return r.Abort == AbortTimeout }

// Abnormal reports a non-zero exit code or a terminating signal
func (r *Result) Abnormal() bool { return r.Signal != "" || r.ExitCode != 0 }

// Executor spawns processes with a watchdog and captures their output into
// pooled temporary files.
type Executor struct {
	pool  *tmpstore.Pool
	grace time.Duration
	log   *slog.Logger
}

// New creates an executor. grace is added to every time limit before the
// watchdog kills the process.
func New(pool *tmpstore.Pool, grace time.Duration, log *slog.Logger) *Executor {
	return &Executor{pool: pool, grace: grace, log: log.With("component", "executor")}
}

func (e *Executor) Pool() *tmpstore.Pool { return e.pool }

func (e *Executor) Grace() time.Duration { return e.grace }

// Dispose returns the capture files of r to the pool
func (e *Executor) Dispose(r *Result) {
	if r == nil {
		return
	}
	e.pool.Dispose(r.StdoutPath, r.StderrPath)
}

// Run executes req and waits for it to finish, be cancelled through ctx or
// exceed its time limit plus grace.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	stdin, release, err := e.openStdin(req)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := e.start(req, stdin, nil)
	if err != nil {
		return nil, err
	}
	return e.wait(ctx, p, req.TimeLimit, nil, 0)
}

type process struct {
	name   string
	cmd    *exec.Cmd
	start  time.Time
	stdinW io.WriteCloser
	res    *Result
	files  []*os.File
	grace  time.Duration
	log    *slog.Logger

	mu     sync.Mutex
	reason AbortReason
	byPeer bool
	done   chan struct{}
}

func (e *Executor) openStdin(req Request) (*os.File, func(), error) {
	switch {
	case req.softKill:
		return nil, func() {}, nil
	case req.StdinData != nil:
		path := e.pool.Create()
		if err := os.WriteFile(path, []byte(*req.StdinData), 0644); err != nil {
			e.pool.Dispose(path)
			return nil, nil, fmt.Errorf("failed to write stdin: %w", err)
		}
		f, err := os.Open(path)
		if err != nil {
			e.pool.Dispose(path)
			return nil, nil, fmt.Errorf("failed to open stdin: %w", err)
		}
		return f, func() { f.Close(); e.pool.Dispose(path) }, nil
	case req.StdinPath != "":
		f, err := os.Open(req.StdinPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open stdin: %w", err)
		}
		return f, func() { f.Close() }, nil
	}
	return nil, func() {}, nil
}

// start spawns the process in its own process group. A nil stdout means
// capture into a pooled file.
func (e *Executor) start(req Request, stdin *os.File, stdout *os.File) (*process, error) {
	if len(req.Cmd) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(req.Cmd[0], req.Cmd[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &process{
		name:  req.Cmd[0],
		cmd:   cmd,
		res:   &Result{},
		grace: e.grace,
		log:   e.log,
		done:  make(chan struct{}),
	}

	cleanup := func() {
		for _, f := range p.files {
			f.Close()
		}
		e.pool.Dispose(p.res.StdoutPath, p.res.StderrPath)
	}

	if stdout == nil {
		p.res.StdoutPath = e.pool.Create()
		f, err := os.Create(p.res.StdoutPath)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to create stdout file: %w", err)
		}
		p.files = append(p.files, f)
		stdout = f
	}
	p.res.StderrPath = e.pool.Create()
	ferr, err := os.Create(p.res.StderrPath)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create stderr file: %w", err)
	}
	p.files = append(p.files, ferr)

	cmd.Stdout = stdout
	cmd.Stderr = ferr
	if req.softKill {
		w, err := cmd.StdinPipe()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
		}
		p.stdinW = w
	} else if stdin != nil {
		cmd.Stdin = stdin
	}

	p.start = time.Now()
	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to start %s: %w", req.Cmd[0], err)
	}
	return p, nil
}

// abort kills the process group. The first reason recorded wins.
func (p *process) abort(reason AbortReason) {
	p.mu.Lock()
	if p.reason != AbortNone || p.byPeer {
		p.mu.Unlock()
		return
	}
	p.reason = reason
	p.mu.Unlock()

	if p.stdinW != nil {
		p.log.Warn("soft killing process", "pid", p.cmd.Process.Pid, "reason", reason.String())
		_, _ = p.stdinW.Write([]byte("k"))
		_ = p.stdinW.Close()
		go func() {
			select {
			case <-p.done:
			case <-time.After(p.grace):
				p.kill()
			}
		}()
		return
	}
	p.kill()
}

func (p *process) killByPeer() {
	p.mu.Lock()
	if p.reason != AbortNone || p.byPeer {
		p.mu.Unlock()
		return
	}
	p.byPeer = true
	p.mu.Unlock()
	p.kill()
}

func (p *process) kill() {
	select {
	case <-p.done:
		return
	default:
	}
	pid := p.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		p.log.Warn("failed to kill process group", "pid", pid, "error", err)
	}
	_ = p.cmd.Process.Kill()
}

// wait blocks until the process exits. peerDone, when not nil, is closed
// once the peer process has exited; the process then gets peerGrace before
// being killed.
func (e *Executor) wait(ctx context.Context, p *process, limit time.Duration,
	peer *process, peerGrace time.Duration) (*Result, error) {

	exited := make(chan error, 1)
	go func() { exited <- p.cmd.Wait() }()

	var timeout <-chan time.Time
	if limit > 0 {
		t := time.NewTimer(limit + e.grace)
		defer t.Stop()
		timeout = t.C
	}
	var peerDone <-chan struct{}
	if peer != nil {
		peerDone = peer.done
	}
	var graceC <-chan time.Time

	var waitErr error
loop:
	for {
		select {
		case waitErr = <-exited:
			break loop
		case <-ctx.Done():
			p.abort(AbortCancelled)
			ctx = context.Background()
		case <-timeout:
			p.abort(AbortTimeout)
			timeout = nil
		case <-peerDone:
			peerDone = nil
			peer.mu.Lock()
			peerAborted := peer.reason != AbortNone
			peer.mu.Unlock()
			if peerAborted || peerGrace <= 0 {
				p.killByPeer()
			} else {
				t := time.NewTimer(peerGrace)
				defer t.Stop()
				graceC = t.C
			}
		case <-graceC:
			graceC = nil
			p.killByPeer()
		}
	}
	elapsed := time.Since(p.start)

	// stragglers left in the group by the program itself
	if err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL); err == nil {
		p.log.Debug("killed leftover processes", "pgid", p.cmd.Process.Pid)
	}
	close(p.done)
	for _, f := range p.files {
		f.Close()
	}

	res := p.res
	res.Time = elapsed
	p.mu.Lock()
	res.Abort = p.reason
	res.KilledByPeer = p.byPeer
	p.mu.Unlock()

	if waitErr != nil {
		var ee *exec.ExitError
		if !errors.As(waitErr, &ee) {
			e.pool.Dispose(res.StdoutPath, res.StderrPath)
			return nil, fmt.Errorf("failed to wait for %s: %w", p.name, waitErr)
		}
	}

	st := p.cmd.ProcessState
	if ws, ok := st.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		res.Signal = unix.SignalName(ws.Signal())
		if res.Signal == "" {
			res.Signal = ws.Signal().String()
		}
		res.ExitCode = -1
	} else {
		res.ExitCode = st.ExitCode()
	}
	if ru, ok := st.SysUsage().(*syscall.Rusage); ok && ru != nil && ru.Maxrss > 0 {
		mem := float64(ru.Maxrss) / 1024
		res.MemoryMiB = &mem
	}

	e.log.Debug("process finished",
		"cmd", p.name,
		"exit", res.ExitCode,
		"signal", res.Signal,
		"time", elapsed,
		"abort", res.Abort.String(),
		"killed_by_peer", res.KilledByPeer)
	return res, nil
}
