// Package health checks that the toolchains of the registered languages and
// the execution strategy actually work on this machine.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/testio"
)

type Level int

const (
	Okay Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Okay:
		return "OKAY"
	case Warn:
		return "WARN"
	}
	return "ERROR"
}

// Row is the outcome of checking one unit
type Row struct {
	Unit    string
	Level   Level
	Message string
}

// Samples print "hello" in the built-in languages
var Samples = map[string]string{
	"c":          "#include <stdio.h>\nint main(void) { puts(\"hello\"); return 0; }\n",
	"cpp":        "#include <iostream>\nint main() { std::cout << \"hello\" << std::endl; }\n",
	"python":     "print(\"hello\")\n",
	"javascript": "console.log(\"hello\");\n",
	"go":         "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(\"hello\") }\n",
	"rust":       "fn main() { println!(\"hello\"); }\n",
}

const runLimit = 5 * time.Second

type Checker struct {
	comp     *compiler.Compiler
	strategy execute.Strategy
	exec     *execute.Executor
	samples  map[string]string
	dir      string
	log      *slog.Logger
}

// New creates a checker that writes sample sources into dir. samples
// extend and override Samples by language id.
func New(comp *compiler.Compiler, strategy execute.Strategy, exec *execute.Executor,
	samples map[string]string, dir string, log *slog.Logger) *Checker {

	all := make(map[string]string, len(Samples)+len(samples))
	for id, src := range Samples {
		all[id] = src
	}
	for id, src := range samples {
		all[id] = src
	}
	return &Checker{comp: comp, strategy: strategy, exec: exec, samples: all, dir: dir, log: log.With("component", "health")}
}

// Check probes every language in order
func (c *Checker) Check(ctx context.Context, langs []*lang.Language) []Row {
	rows := make([]Row, 0, len(langs))
	for _, l := range langs {
		if ctx.Err() != nil {
			break
		}
		rows = append(rows, c.probe(ctx, l))
	}
	return rows
}

func (c *Checker) probe(ctx context.Context, l *lang.Language) Row {
	row := Row{Unit: l.Name}
	sample, ok := c.samples[l.ID]
	if !ok {
		row.Level = Warn
		row.Message = "no sample program"
		return row
	}
	exts := l.Extensions.ToSlice()
	if len(exts) == 0 {
		row.Level = Warn
		row.Message = "no file extension"
		return row
	}
	slices.Sort(exts)

	src := filepath.Join(c.dir, l.ID, "hello."+exts[0])
	if err := os.MkdirAll(filepath.Dir(src), 0755); err != nil {
		return failed(row, err)
	}
	if err := os.WriteFile(src, []byte(sample), 0644); err != nil {
		return failed(row, err)
	}

	art, err := c.comp.Compile(ctx, compiler.Solution, src, true, lang.Overrides{})
	var ce *compiler.CompileError
	switch {
	case errors.As(err, &ce):
		row.Level = Error
		row.Message = firstLine(ce.Error())
		return row
	case err != nil:
		return failed(row, err)
	}
	argv, err := art.RunArgv(lang.Overrides{})
	if err != nil {
		return failed(row, err)
	}

	res, err := c.strategy.Execute(ctx, execute.Request{Cmd: argv, TimeLimit: runLimit})
	if err != nil {
		return failed(row, err)
	}
	defer c.exec.Dispose(res)
	out, err := testio.Head(res.StdoutPath, 1<<10)
	if err != nil {
		return failed(row, err)
	}

	switch {
	case res.Abort != execute.AbortNone:
		row.Level = Error
		row.Message = "sample program aborted: " + res.Abort.String()
	case res.Abnormal():
		row.Level = Error
		row.Message = fmt.Sprintf("sample program exited with code %d", res.ExitCode)
		if res.Signal != "" {
			row.Message = "sample program killed by signal " + res.Signal
		}
	case strings.TrimSpace(out) != "hello":
		row.Level = Error
		row.Message = fmt.Sprintf("unexpected output %q", firstLine(out))
	default:
		row.Message = fmt.Sprintf("compiled in %dms, ran in %dms", art.Time.Milliseconds(), res.Time.Milliseconds())
	}
	c.log.Debug("probed language", "lang", l.ID, "level", row.Level, "message", row.Message)
	return row
}

func failed(row Row, err error) Row {
	row.Level = Error
	row.Message = firstLine(err.Error())
	return row
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " [...]"
	}
	return s
}
