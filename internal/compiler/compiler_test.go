package compiler_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/logging"
	"github.com/programme-lv/judge/internal/problem"
	"github.com/programme-lv/judge/internal/tmpstore"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	comp    *compiler.Compiler
	dir     string
	counter string
}

// shellLang "compiles" a shell script by copying it, logging every
// invocation to counter. Sources containing FAIL fail to compile, sources
// containing SLOW take a moment and sources containing SLEEP hang.
func shellLang(counter string) *lang.Language {
	l := lang.New("sh", "Shell", "sh")
	script := fmt.Sprintf(`echo x >> %s; `+
		`if grep -q SLOW "$0"; then sleep 0.15; fi; `+
		`if grep -q SLEEP "$0"; then sleep 5; fi; `+
		`if grep -q FAIL "$0"; then echo "syntax error" >&2; exit 1; fi; `+
		`cp "$0" "$1"`, counter)
	l.CompileCmd = "sh -c '" + script + "' {src} {out} {flags}"
	l.RunCmd = "sh {exe} {args}"
	return l
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	counter := filepath.Join(dir, "count")
	pool, err := tmpstore.New(filepath.Join(dir, "tmp"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	exec := execute.New(pool, 50*time.Millisecond, logging.Discard())
	comp, err := compiler.New(lang.NewRegistry(shellLang(counter)), exec, compiler.Options{
		CacheDir: filepath.Join(dir, "cache"),
		Timeout:  300 * time.Millisecond,
	}, logging.Discard())
	require.NoError(t, err)
	return &fixture{comp: comp, dir: dir, counter: counter}
}

func (f *fixture) source(t *testing.T, name, body string) string {
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func (f *fixture) invocations(t *testing.T) int {
	b, err := os.ReadFile(f.counter)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(b), "x")
}

func TestCompileCachesArtifact(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "sol.sh", "echo 1\n")

	a, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
	require.NoError(t, err)
	require.False(t, a.Cached)
	require.FileExists(t, a.Path)
	require.FileExists(t, a.Path+".log.json")
	require.Contains(t, filepath.Base(a.Path), "sol-"+a.Hash[:16])

	b, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
	require.NoError(t, err)
	require.True(t, b.Cached)
	require.Equal(t, a.Path, b.Path)
	require.Equal(t, 1, f.invocations(t))

	argv, err := b.RunArgv(lang.Overrides{})
	require.NoError(t, err)
	require.Equal(t, []string{"sh", a.Path}, argv)
}

func TestCompileMissesOnChange(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "sol.sh", "echo 1\n")

	a, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
	require.NoError(t, err)

	f.source(t, "sol.sh", "echo 2\n")
	b, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
	require.NoError(t, err)
	require.False(t, b.Cached)
	require.NotEqual(t, a.Hash, b.Hash)

	flags := "-e"
	c, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{CompilerArgs: &flags})
	require.NoError(t, err)
	require.False(t, c.Cached)
	require.NotEqual(t, b.Hash, c.Hash)
	require.Equal(t, 3, f.invocations(t))
}

func TestCompileForce(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "sol.sh", "echo 1\n")

	_, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
	require.NoError(t, err)
	a, err := f.comp.Compile(context.Background(), compiler.Solution, src, true, lang.Overrides{})
	require.NoError(t, err)
	require.False(t, a.Cached)
	require.Equal(t, 2, f.invocations(t))
}

func TestCompileCoalescesConcurrentCalls(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "sol.sh", "echo 1\n")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.invocations(t))
}

func TestSharedCompileSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "sol.sh", "SLOW\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := f.comp.Compile(ctx, compiler.Solution, src, false, lang.Overrides{})
		first <- err
	}()
	require.Eventually(t, func() bool { return f.invocations(t) == 1 }, 2*time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-first, context.Canceled)
	require.NoError(t, <-second)

	a, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
	require.NoError(t, err)
	require.True(t, a.Cached)
}

func TestCompileError(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "sol.sh", "FAIL\n")

	_, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
	var ce *compiler.CompileError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, compiler.Solution, ce.Unit)
	require.Contains(t, ce.Output, "syntax error")
	require.False(t, ce.TimedOut)
}

func TestCompileTimeout(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "sol.sh", "SLEEP\n")

	_, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
	var ce *compiler.CompileError
	require.ErrorAs(t, err, &ce)
	require.True(t, ce.TimedOut)
}

func TestCompileCancelled(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "sol.sh", "SLEEP\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.comp.Compile(ctx, compiler.Solution, src, false, lang.Overrides{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnsupportedLanguage(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "sol.zig", "")

	_, err := f.comp.Compile(context.Background(), compiler.Solution, src, false, lang.Overrides{})
	require.ErrorIs(t, err, compiler.ErrUnsupportedLanguage)

	// helpers without a language are taken as prebuilt executables
	a, err := f.comp.Compile(context.Background(), compiler.Checker, src, false, lang.Overrides{})
	require.NoError(t, err)
	require.Nil(t, a.Lang)
	argv, err := a.RunArgv(lang.Overrides{})
	require.NoError(t, err)
	require.Equal(t, []string{src}, argv)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []compiler.Unit
	finished map[compiler.Unit]error
}

func (o *recordingObserver) StartCompile(u compiler.Unit) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, u)
}

func (o *recordingObserver) FinishCompile(u compiler.Unit, _ *compiler.Artifact, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished == nil {
		o.finished = map[compiler.Unit]error{}
	}
	o.finished[u] = err
}

func TestCompileAll(t *testing.T) {
	f := newFixture(t)
	p := &problem.Problem{
		Src:     f.source(t, "sol.sh", "echo 1\n"),
		Checker: f.source(t, "chk.sh", "FAIL\n"),
		BfCompare: &problem.BfCompare{
			Generator:  f.source(t, "gen.sh", "echo 1\n"),
			BruteForce: f.source(t, "bf.sh", "echo 2\n"),
		},
	}
	obs := &recordingObserver{}

	arts, err := f.comp.CompileAll(context.Background(), p, false, obs)
	require.NoError(t, err)
	require.NotNil(t, arts.Get(compiler.Solution))
	require.Nil(t, arts.Get(compiler.Checker))
	var ce *compiler.CompileError
	require.ErrorAs(t, arts.Err(compiler.Checker), &ce)
	require.Nil(t, arts.Get(compiler.Generator))
	require.ElementsMatch(t, []compiler.Unit{compiler.Solution, compiler.Checker}, obs.started)
	require.Len(t, obs.finished, 2)

	arts, err = f.comp.CompileAll(context.Background(), p, false, nil,
		compiler.Solution, compiler.Generator, compiler.BruteForce)
	require.NoError(t, err)
	require.True(t, arts.Get(compiler.Solution).Cached)
	require.NotNil(t, arts.Get(compiler.Generator))
	require.NotNil(t, arts.Get(compiler.BruteForce))
}

func TestCompileAllMissingSource(t *testing.T) {
	f := newFixture(t)
	p := &problem.Problem{Src: filepath.Join(f.dir, "missing.sh")}

	arts, err := f.comp.CompileAll(context.Background(), p, false, nil)
	require.NoError(t, err)
	require.ErrorIs(t, arts.Err(compiler.Solution), os.ErrNotExist)
}
