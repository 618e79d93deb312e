package judge

import (
	"fmt"
	"time"

	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/problem"
)

// NewRequest builds the testcase independent part of a request from the
// compiled units of p. A checker that failed to compile is left out, so
// outputs are compared instead. Stdin and Answer are left empty.
func NewRequest(p *problem.Problem, arts *compiler.Artifacts) (Request, error) {
	req := Request{
		TimeLimit:     time.Duration(p.TimeLimitMs) * time.Millisecond,
		MemoryLimitMb: p.MemoryLimitMb,
	}
	sol := arts.Get(compiler.Solution)
	if sol == nil {
		return req, fmt.Errorf("solution was not compiled")
	}
	var err error
	if req.Solution, err = sol.RunArgv(p.Overrides); err != nil {
		return req, fmt.Errorf("failed to build solution command: %w", err)
	}
	if a := arts.Get(compiler.Checker); a != nil {
		if req.Checker, err = a.RunArgv(lang.Overrides{}); err != nil {
			return req, fmt.Errorf("failed to build checker command: %w", err)
		}
	}
	if p.Interactive() {
		a := arts.Get(compiler.Interactor)
		if a == nil {
			if cause := arts.Err(compiler.Interactor); cause != nil {
				return req, fmt.Errorf("%w: %w", ErrMissingInteractor, cause)
			}
			return req, ErrMissingInteractor
		}
		if req.Interactor, err = a.RunArgv(lang.Overrides{}); err != nil {
			return req, fmt.Errorf("failed to build interactor command: %w", err)
		}
	}
	return req, nil
}
