package lang_test

import (
	"testing"

	"github.com/programme-lv/judge/internal/lang"
	"github.com/stretchr/testify/require"
)

func TestResolveByExtension(t *testing.T) {
	reg := lang.NewRegistry(lang.Defaults()...)

	l, ok := reg.Resolve("/tmp/sol.CPP")
	require.True(t, ok)
	require.Equal(t, "cpp", l.ID)

	l, ok = reg.Resolve("a.c++")
	require.True(t, ok)
	require.Equal(t, "cpp", l.ID)

	l, ok = reg.Resolve("gen.py")
	require.True(t, ok)
	require.Equal(t, "python", l.ID)

	_, ok = reg.Resolve("notes.txt")
	require.False(t, ok)

	_, ok = reg.Resolve("Makefile")
	require.False(t, ok)
}

func TestFirstRegisteredWins(t *testing.T) {
	custom := lang.New("clang", "C (clang)", "c")
	custom.CompileCmd = "clang {src} -o {out}"

	reg := lang.NewRegistry(custom)
	for _, l := range lang.Defaults() {
		reg.Register(l)
	}

	l, ok := reg.Resolve("main.c")
	require.True(t, ok)
	require.Equal(t, "clang", l.ID)
}

func TestCompileArgv(t *testing.T) {
	cpp := lang.New("cpp", "C++", "cpp")
	cpp.CompileCmd = "g++ {src} {flags} -o {out}"
	cpp.Flags = "-O2 -std=c++17"

	argv, err := cpp.CompileArgv("/src/a b.cpp", "/cache/a", lang.Overrides{})
	require.NoError(t, err)
	require.Equal(t, []string{"g++", "/src/a b.cpp", "-O2", "-std=c++17", "-o", "/cache/a"}, argv)

	compiler := "clang++"
	flags := ""
	argv, err = cpp.CompileArgv("a.cpp", "a", lang.Overrides{Compiler: &compiler, CompilerArgs: &flags})
	require.NoError(t, err)
	require.Equal(t, []string{"clang++", "a.cpp", "-o", "a"}, argv)
}

func TestCompileArgvRejectsInterpreted(t *testing.T) {
	js := lang.New("javascript", "JavaScript", "js")
	_, err := js.CompileArgv("a.js", "a", lang.Overrides{})
	require.Error(t, err)
}

func TestRunArgv(t *testing.T) {
	py := lang.New("python", "Python", "py")
	py.RunCmd = "python3 {args} {exe}"

	argv, err := py.RunArgv("/cache/a.pyc", lang.Overrides{})
	require.NoError(t, err)
	require.Equal(t, []string{"python3", "/cache/a.pyc"}, argv)

	runner := "pypy3"
	args := "-X faulthandler"
	argv, err = py.RunArgv("/cache/a.pyc", lang.Overrides{Runner: &runner, RunnerArgs: &args})
	require.NoError(t, err)
	require.Equal(t, []string{"pypy3", "-X", "faulthandler", "/cache/a.pyc"}, argv)

	bin := lang.New("cpp", "C++", "cpp")
	argv, err = bin.RunArgv("/cache/a", lang.Overrides{})
	require.NoError(t, err)
	require.Equal(t, []string{"/cache/a"}, argv)

	valgrind := "valgrind"
	argv, err = bin.RunArgv("/cache/a", lang.Overrides{Runner: &valgrind})
	require.NoError(t, err)
	require.Equal(t, []string{"valgrind", "/cache/a"}, argv)
}

func TestBadTemplate(t *testing.T) {
	l := lang.New("x", "X", "x")
	l.CompileCmd = `cc "{src}`
	_, err := l.CompileArgv("a.x", "a", lang.Overrides{})
	require.Error(t, err)
}
