package problem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/testio"
)

// fileTestcase is a single testcase in the problem file
type fileTestcase struct {
	ID       string  `toml:"id,omitempty"`
	In       *string `toml:"in,omitempty"`
	InFile   string  `toml:"in_file,omitempty"`
	Ans      *string `toml:"ans,omitempty"`
	AnsFile  string  `toml:"ans_file,omitempty"`
	Disabled bool    `toml:"disabled,omitempty"`
}

type fileBfCompare struct {
	Generator  string `toml:"generator"`
	BruteForce string `toml:"brute_force"`
}

// fileOverrides are per-problem limit overrides
type fileOverrides struct {
	lang.Overrides
	TimeLimitMs   *int64   `toml:"time_limit_ms,omitempty"`
	MemoryLimitMb *float64 `toml:"memory_limit_mb,omitempty"`
}

type fileRoot struct {
	Name          string         `toml:"name"`
	Src           string         `toml:"src"`
	Checker       string         `toml:"checker,omitempty"`
	Interactor    string         `toml:"interactor,omitempty"`
	TimeLimitMs   int64          `toml:"time_limit_ms"`
	MemoryLimitMb *float64       `toml:"memory_limit_mb,omitempty"`
	BfCompare     *fileBfCompare `toml:"bf_compare,omitempty"`
	Overrides     *fileOverrides `toml:"overrides,omitempty"`
	Testcases     []fileTestcase `toml:"testcases"`
}

// DefaultTimeLimitMs applies when the problem file sets no time limit
const DefaultTimeLimitMs = 1000

// Load reads a problem file. Relative paths inside it are resolved against
// the directory of the file.
func Load(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem file: %w", err)
	}
	var root fileRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return fromFile(root, filepath.Dir(abs), abs)
}

func fromFile(root fileRoot, dir, path string) (*Problem, error) {
	if root.Src == "" {
		return nil, fmt.Errorf("problem file is missing src")
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	p := &Problem{
		Name:          root.Name,
		Src:           resolve(root.Src),
		Checker:       resolve(root.Checker),
		Interactor:    resolve(root.Interactor),
		TimeLimitMs:   root.TimeLimitMs,
		MemoryLimitMb: root.MemoryLimitMb,
		Path:          path,
	}
	if p.Name == "" {
		p.Name = filepath.Base(dir)
	}
	if p.TimeLimitMs <= 0 {
		p.TimeLimitMs = DefaultTimeLimitMs
	}
	if root.BfCompare != nil {
		p.BfCompare = &BfCompare{
			Generator:  resolve(root.BfCompare.Generator),
			BruteForce: resolve(root.BfCompare.BruteForce),
		}
	}
	if ov := root.Overrides; ov != nil {
		p.Overrides = ov.Overrides
		if ov.TimeLimitMs != nil && *ov.TimeLimitMs > 0 {
			p.TimeLimitMs = *ov.TimeLimitMs
		}
		if ov.MemoryLimitMb != nil {
			p.MemoryLimitMb = ov.MemoryLimitMb
		}
	}
	if p.MemoryLimitMb != nil && *p.MemoryLimitMb <= 0 {
		p.MemoryLimitMb = nil
	}

	for i, t := range root.Testcases {
		tc := &Testcase{ID: t.ID, Enabled: !t.Disabled}
		switch {
		case t.In != nil:
			tc.Stdin = testio.Inline(*t.In)
		case t.InFile != "":
			tc.Stdin = testio.File(resolve(t.InFile))
		default:
			return nil, fmt.Errorf("testcase %d has neither in nor in_file", i+1)
		}
		switch {
		case t.Ans != nil:
			tc.Answer = testio.Inline(*t.Ans)
		case t.AnsFile != "":
			tc.Answer = testio.File(resolve(t.AnsFile))
		default:
			// interactive problems often have no answer
			tc.Answer = testio.Inline("")
		}
		if tc.ID == "" {
			tc.ID = uuid.NewString()
		}
		p.AddTestcase(tc)
	}
	return p, nil
}

// Save writes p to path in the problem file format. Paths are written
// relative to the directory of path when possible.
func Save(path string, p *Problem) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	rel := func(s string) string {
		if s == "" {
			return ""
		}
		if r, err := filepath.Rel(dir, s); err == nil {
			return r
		}
		return s
	}

	root := fileRoot{
		Name:          p.Name,
		Src:           rel(p.Src),
		Checker:       rel(p.Checker),
		Interactor:    rel(p.Interactor),
		TimeLimitMs:   p.TimeLimitMs,
		MemoryLimitMb: p.MemoryLimitMb,
	}
	if p.BfCompare != nil {
		root.BfCompare = &fileBfCompare{
			Generator:  rel(p.BfCompare.Generator),
			BruteForce: rel(p.BfCompare.BruteForce),
		}
	}
	ov := p.Overrides
	if ov.Compiler != nil || ov.CompilerArgs != nil || ov.Runner != nil || ov.RunnerArgs != nil {
		root.Overrides = &fileOverrides{Overrides: ov}
	}
	for _, tc := range p.Testcases() {
		st := fileTestcase{ID: tc.ID, Disabled: !tc.Enabled}
		if tc.Stdin.IsInline() {
			st.In = tc.Stdin.Data
		} else {
			st.InFile = rel(tc.Stdin.Path)
		}
		if tc.Answer.IsInline() {
			st.Ans = tc.Answer.Data
		} else {
			st.AnsFile = rel(tc.Answer.Path)
		}
		root.Testcases = append(root.Testcases, st)
	}

	b, err := toml.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to marshal problem: %w", err)
	}
	tmp := abs + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("failed to write problem file: %w", err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		return fmt.Errorf("failed to replace problem file: %w", err)
	}
	return nil
}
