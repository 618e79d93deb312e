package lang

import (
	"fmt"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/shlex"
)

// Template placeholders
const (
	PhSrc   = "{src}"
	PhOut   = "{out}"
	PhFlags = "{flags}"
	PhExe   = "{exe}"
	PhArgs  = "{args}"
)

// Language describes how to compile and run sources of one language
type Language struct {
	ID   string
	Name string

	Extensions mapset.Set[string]

	// CompileCmd uses {src}, {out} and {flags}. Empty means the source
	// itself is executed through RunCmd.
	CompileCmd string
	Flags      string
	// ArtifactExt is appended to the compiled artifact name, e.g. ".pyc"
	ArtifactExt string

	// RunCmd uses {exe} and {args}
	RunCmd  string
	RunArgs string
}

// Overrides replace parts of a language's commands for one problem
type Overrides struct {
	Compiler     *string `toml:"compiler,omitempty"`
	CompilerArgs *string `toml:"compiler_args,omitempty"`
	Runner       *string `toml:"runner,omitempty"`
	RunnerArgs   *string `toml:"runner_args,omitempty"`
}

// New creates a language claiming the given extensions (without dots)
func New(id, name string, exts ...string) *Language {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, e := range exts {
		set.Add(normExt(e))
	}
	return &Language{ID: id, Name: name, Extensions: set, RunCmd: PhExe + " " + PhArgs}
}

// Compiled reports whether sources are built before running
func (l *Language) Compiled() bool {
	return strings.TrimSpace(l.CompileCmd) != ""
}

// CompileArgv renders the compile template for one source file
func (l *Language) CompileArgv(src, out string, ov Overrides) ([]string, error) {
	if !l.Compiled() {
		return nil, fmt.Errorf("language %s is not compiled", l.ID)
	}
	flags := l.Flags
	if ov.CompilerArgs != nil {
		flags = *ov.CompilerArgs
	}
	argv, err := render(l.CompileCmd, map[string]string{PhSrc: src, PhOut: out}, PhFlags, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to render compile command of %s: %w", l.ID, err)
	}
	if ov.Compiler != nil && *ov.Compiler != "" {
		argv[0] = *ov.Compiler
	}
	return argv, nil
}

// RunArgv renders the run template for a compiled artifact or source file
func (l *Language) RunArgv(exe string, ov Overrides) ([]string, error) {
	args := l.RunArgs
	if ov.RunnerArgs != nil {
		args = *ov.RunnerArgs
	}
	tmpl := l.RunCmd
	if strings.TrimSpace(tmpl) == "" {
		tmpl = PhExe + " " + PhArgs
	}
	argv, err := render(tmpl, map[string]string{PhExe: exe}, PhArgs, args)
	if err != nil {
		return nil, fmt.Errorf("failed to render run command of %s: %w", l.ID, err)
	}
	if ov.Runner != nil && *ov.Runner != "" {
		// a runner only replaces an interpreter, never the program itself
		if argv[0] != exe {
			argv[0] = *ov.Runner
		} else {
			argv = append([]string{*ov.Runner}, argv...)
		}
	}
	return argv, nil
}

// render splits tmpl into argv, substitutes single valued placeholders in
// place and expands the list placeholder into zero or more elements.
func render(tmpl string, vals map[string]string, listPh, list string) ([]string, error) {
	words, err := shlex.Split(tmpl)
	if err != nil {
		return nil, err
	}
	extra, err := shlex.Split(list)
	if err != nil {
		return nil, fmt.Errorf("bad %s value %q: %w", listPh, list, err)
	}

	argv := make([]string, 0, len(words)+len(extra))
	for _, w := range words {
		if w == listPh {
			argv = append(argv, extra...)
			continue
		}
		for ph, v := range vals {
			w = strings.ReplaceAll(w, ph, v)
		}
		argv = append(argv, w)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command template %q", tmpl)
	}
	return argv, nil
}

func normExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtOf returns the lowercased extension of path without the dot
func ExtOf(path string) string {
	return normExt(filepath.Ext(path))
}
