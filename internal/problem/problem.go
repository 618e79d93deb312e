package problem

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/testio"
)

var ErrTestcaseNotFound = errors.New("testcase not found")

// Result is the outcome of the latest run of a testcase
type Result struct {
	Verdict  api.Verdict
	TimeMs   float64
	MemoryMb *float64
	Stdout   testio.IO
	Stderr   testio.IO
	Msg      string
}

// Testcase is one input/answer pair with its latest result
type Testcase struct {
	ID      string
	Stdin   testio.IO
	Answer  testio.IO
	Enabled bool
	Result  *Result
}

// Problem is a solution together with its helper programs and testcases.
// Testcases and their results are guarded by the problem; use the methods
// rather than the fields once the problem is shared.
type Problem struct {
	Name       string
	Src        string
	Checker    string
	Interactor string
	BfCompare  *BfCompare

	TimeLimitMs   int64
	MemoryLimitMb *float64
	Overrides     lang.Overrides

	// Path is the problem file the problem was loaded from, if any
	Path string

	mu        sync.Mutex
	testcases []*Testcase
}

// Interactive reports whether the problem is judged by an interactor
func (p *Problem) Interactive() bool { return p.Interactor != "" }

// AddTestcase appends tc, assigning an id when it has none, and returns the id
func (p *Problem) AddTestcase(tc *Testcase) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	p.testcases = append(p.testcases, tc)
	return tc.ID
}

// Testcases returns snapshots of all testcases in order
func (p *Problem) Testcases() []Testcase {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Testcase, 0, len(p.testcases))
	for _, tc := range p.testcases {
		out = append(out, snapshot(tc))
	}
	return out
}

// Testcase returns a snapshot of the testcase with the given id
func (p *Problem) Testcase(id string) (Testcase, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tc := range p.testcases {
		if tc.ID == id {
			return snapshot(tc), nil
		}
	}
	return Testcase{}, ErrTestcaseNotFound
}

// SetResult replaces the result of a testcase. A nil result clears it.
func (p *Problem) SetResult(id string, r *Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tc := range p.testcases {
		if tc.ID == id {
			if r != nil {
				cp := *r
				r = &cp
			}
			tc.Result = r
			return nil
		}
	}
	return ErrTestcaseNotFound
}

// ResetResult replaces the result of a testcase with an empty one holding
// only v and returns the previous result
func (p *Problem) ResetResult(id string, v api.Verdict) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tc := range p.testcases {
		if tc.ID == id {
			old := tc.Result
			tc.Result = &Result{Verdict: v}
			return old, nil
		}
	}
	return nil, ErrTestcaseNotFound
}

// SetVerdict updates only the verdict, creating an empty result if needed
func (p *Problem) SetVerdict(id string, v api.Verdict) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tc := range p.testcases {
		if tc.ID == id {
			if tc.Result == nil {
				tc.Result = &Result{}
			}
			tc.Result.Verdict = v
			return nil
		}
	}
	return ErrTestcaseNotFound
}

// SetEnabled toggles whether a testcase takes part in runs
func (p *Problem) SetEnabled(id string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tc := range p.testcases {
		if tc.ID == id {
			tc.Enabled = enabled
			return nil
		}
	}
	return ErrTestcaseNotFound
}

// RemoveTestcase deletes a testcase
func (p *Problem) RemoveTestcase(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, tc := range p.testcases {
		if tc.ID == id {
			p.testcases = append(p.testcases[:i], p.testcases[i+1:]...)
			return nil
		}
	}
	return ErrTestcaseNotFound
}

func snapshot(tc *Testcase) Testcase {
	cp := *tc
	if tc.Result != nil {
		r := *tc.Result
		cp.Result = &r
	}
	return cp
}
