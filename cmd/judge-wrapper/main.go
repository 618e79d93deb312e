// judge-wrapper runs a program and reports its wall time, cpu time and peak
// resident memory as JSON to the file named by JUDGE_REPORT_PATH.
//
//	judge-wrapper -- CMD [ARGS...]
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/programme-lv/judge/internal/execute"
	"golang.org/x/sys/unix"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: judge-wrapper -- CMD [ARGS...]")
		os.Exit(2)
	}

	if os.Getenv(execute.EnvUnlimitedStack) == "1" {
		raiseStackLimit()
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	start := time.Now()
	err := cmd.Run()
	wall := time.Since(start)

	var ee *exec.ExitError
	if err != nil && !errors.As(err, &ee) {
		fmt.Fprintf(os.Stderr, "judge-wrapper: failed to run %s: %v\n", args[0], err)
		os.Exit(127)
	}

	st := cmd.ProcessState
	rep := execute.WrapperReport{
		WallMicros: wall.Microseconds(),
		ExitCode:   st.ExitCode(),
	}
	code := st.ExitCode()
	if ws, ok := st.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		rep.Signal = unix.SignalName(ws.Signal())
		code = 128 + int(ws.Signal())
	}
	if ru, ok := st.SysUsage().(*syscall.Rusage); ok && ru != nil {
		rep.CpuMicros = (ru.Utime.Nano() + ru.Stime.Nano()) / 1000
		rep.MemoryKiB = int64(ru.Maxrss)
	}

	if path := os.Getenv(execute.EnvReportPath); path != "" {
		if err := writeReport(path, rep); err != nil {
			fmt.Fprintf(os.Stderr, "judge-wrapper: %v\n", err)
		}
	}
	os.Exit(code)
}

func writeReport(path string, rep execute.WrapperReport) error {
	b, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func raiseStackLimit() {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_STACK, &lim); err != nil {
		return
	}
	lim.Cur = lim.Max
	_ = unix.Setrlimit(unix.RLIMIT_STACK, &lim)
}
