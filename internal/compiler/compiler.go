// Package compiler turns the sources of a problem into runnable artifacts.
// Artifacts are cached on disk under a name derived from the hash of the
// source content and the compile settings, so a stale artifact is never
// picked up.
package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/testio"
	"golang.org/x/sync/singleflight"
)

// Unit names one compiled program of a problem
type Unit string

const (
	Solution   Unit = "solution"
	Checker    Unit = "checker"
	Interactor Unit = "interactor"
	Generator  Unit = "generator"
	BruteForce Unit = "brute_force"
)

// ErrUnsupportedLanguage is returned when no registered language claims
// the extension of a solution
var ErrUnsupportedLanguage = errors.New("unsupported language")

// CompileError is a compiler run that did not produce an artifact
type CompileError struct {
	Unit     Unit
	Src      string
	Output   string
	TimedOut bool
}

func (e *CompileError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: compilation timed out", e.Unit)
	}
	return fmt.Sprintf("%s: compilation failed: %s", e.Unit, strings.TrimSpace(e.Output))
}

// Artifact is a runnable program. Lang is nil for prebuilt executables.
type Artifact struct {
	Unit   Unit
	Src    string
	Path   string
	Hash   string
	Lang   *lang.Language
	Cached bool
	Output string
	Time   time.Duration
}

// RunArgv returns the command line that runs the artifact
func (a *Artifact) RunArgv(ov lang.Overrides) ([]string, error) {
	if a.Lang == nil {
		return []string{a.Path}, nil
	}
	return a.Lang.RunArgv(a.Path, ov)
}

type Options struct {
	CacheDir string
	Timeout  time.Duration
	// UseWrapper keeps artifacts for the wrapper strategy apart from the
	// others
	UseWrapper bool
}

const maxOutputBytes = 64 << 10

type Compiler struct {
	reg  *lang.Registry
	exec *execute.Executor
	opts Options
	dir  string
	log  *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	builds map[string]*pendingBuild
}

// pendingBuild is the context of a shared compiler run. It is cancelled once
// every caller waiting for it has left.
type pendingBuild struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func New(reg *lang.Registry, exec *execute.Executor, opts Options, log *slog.Logger) (*Compiler, error) {
	dir := filepath.Join(opts.CacheDir, "artifacts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Compiler{
		reg:    reg,
		exec:   exec,
		opts:   opts,
		dir:    dir,
		log:    log.With("component", "compiler"),
		builds: map[string]*pendingBuild{},
	}, nil
}

// Compile returns the artifact for src, building it unless a cached one
// with the same hash exists and force is false. Concurrent calls for the
// same artifact share one compiler run.
func (c *Compiler) Compile(ctx context.Context, unit Unit, src string, force bool, ov lang.Overrides) (*Artifact, error) {
	src, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", src, err)
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	l, ok := c.reg.Resolve(src)
	if !ok {
		if unit == Solution {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, filepath.Ext(src))
		}
		c.log.Debug("using source as prebuilt executable", "unit", unit, "src", src)
		return &Artifact{Unit: unit, Src: src, Path: src, Hash: sha256Hex(content), Cached: true}, nil
	}
	if !l.Compiled() {
		return &Artifact{Unit: unit, Src: src, Path: src, Lang: l, Hash: sha256Hex(content), Cached: true}, nil
	}

	tmpl, err := l.CompileArgv(lang.PhSrc, lang.PhOut, ov)
	if err != nil {
		return nil, err
	}
	hash := c.hash(content, l, tmpl)
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	path := filepath.Join(c.dir, fmt.Sprintf("%s-%s%s", base, hash[:16], l.ArtifactExt))

	key := path
	if force {
		key += "\x00force"
	}
	v, shared, err := c.shared(ctx, key, func(bctx context.Context) (any, error) {
		return c.build(bctx, unit, src, path, hash, l, ov, force)
	})
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) && ce.Unit != unit {
			cp := *ce
			cp.Unit = unit
			return nil, &cp
		}
		return nil, err
	}
	a := *v.(*Artifact)
	a.Unit = unit
	if shared {
		c.log.Debug("shared compilation", "unit", unit, "artifact", path)
	}
	return &a, nil
}

// shared runs fn once for all concurrent callers of key. fn gets a context
// that outlives any single caller and is cancelled when the last one
// leaves, so one caller giving up does not fail the others.
func (c *Compiler) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	for {
		b := c.join(ctx, key)
		ch := c.group.DoChan(key, func() (any, error) { return fn(b.ctx) })
		select {
		case <-ctx.Done():
			c.leave(key, b)
			return nil, false, fmt.Errorf("compilation cancelled: %w", context.Cause(ctx))
		case r := <-ch:
			c.leave(key, b)
			// joined a run that its last waiter had already abandoned
			if errors.Is(r.Err, context.Canceled) && ctx.Err() == nil {
				continue
			}
			return r.Val, r.Shared, r.Err
		}
	}
}

func (c *Compiler) join(ctx context.Context, key string) *pendingBuild {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.builds[key]
	if !ok {
		bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b = &pendingBuild{ctx: bctx, cancel: cancel}
		c.builds[key] = b
	}
	b.waiters++
	return b
}

func (c *Compiler) leave(key string, b *pendingBuild) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.waiters--
	if b.waiters > 0 {
		return
	}
	b.cancel()
	if c.builds[key] == b {
		delete(c.builds, key)
	}
}

func (c *Compiler) hash(content []byte, l *lang.Language, tmpl []string) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte{0})
	h.Write([]byte(l.ID))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(tmpl, "\x00")))
	if c.opts.UseWrapper {
		h.Write([]byte("\x00wrapper"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Compiler) build(ctx context.Context, unit Unit, src, path, hash string,
	l *lang.Language, ov lang.Overrides, force bool) (*Artifact, error) {

	a := &Artifact{Unit: unit, Src: src, Path: path, Hash: hash, Lang: l}
	if !force {
		if _, err := os.Stat(path); err == nil {
			c.log.Debug("artifact cache hit", "unit", unit, "artifact", path)
			a.Cached = true
			return a, nil
		}
	}

	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())
	defer os.Remove(tmp)
	argv, err := l.CompileArgv(src, tmp, ov)
	if err != nil {
		return nil, err
	}

	c.log.Info("compiling", "unit", unit, "src", src, "lang", l.ID)
	res, err := c.exec.Run(ctx, execute.Request{
		Cmd:       argv,
		TimeLimit: c.opts.Timeout,
		Dir:       filepath.Dir(src),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run compiler: %w", err)
	}
	defer c.exec.Dispose(res)

	output, err := combinedOutput(res)
	if err != nil {
		return nil, err
	}
	a.Output = output
	a.Time = res.Time

	switch {
	case res.Cancelled():
		return nil, fmt.Errorf("compilation cancelled: %w", context.Cause(ctx))
	case res.TimedOut():
		return nil, &CompileError{Unit: unit, Src: src, Output: "compilation timed out", TimedOut: true}
	case res.Abnormal():
		return nil, &CompileError{Unit: unit, Src: src, Output: output}
	}
	if _, err := os.Stat(tmp); err != nil {
		return nil, &CompileError{Unit: unit, Src: src, Output: output + "\ncompiler produced no output file"}
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("failed to move artifact into place: %w", err)
	}

	if err := writeLog(path+".log.json", res, output); err != nil {
		c.log.Warn("failed to write compile log", "artifact", path, "error", err)
	}
	c.log.Info("compiled", "unit", unit, "artifact", path, "time", res.Time)
	return a, nil
}

func combinedOutput(res *execute.Result) (string, error) {
	out, err := testio.Head(res.StdoutPath, maxOutputBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read compiler stdout: %w", err)
	}
	errOut, err := testio.Head(res.StderrPath, maxOutputBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read compiler stderr: %w", err)
	}
	if out != "" && errOut != "" {
		return out + "\n" + errOut, nil
	}
	return out + errOut, nil
}

func writeLog(path string, res *execute.Result, output string) error {
	rd := api.RuntimeData{
		Stdout:     output,
		ExitCode:   int64(res.ExitCode),
		TimeMillis: float64(res.Time.Microseconds()) / 1000,
	}
	b, err := json.Marshal(rd)
	if err != nil {
		return fmt.Errorf("failed to marshal runtime data: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write runtime data: %w", err)
	}
	return nil
}

func sha256Hex(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}
