package compiler

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/problem"
	"golang.org/x/sync/errgroup"
)

// Observer is notified about the compilation of every unit
type Observer interface {
	StartCompile(unit Unit)
	FinishCompile(unit Unit, a *Artifact, err error)
}

// Artifacts holds the outcome of compiling the units of a problem
type Artifacts struct {
	mu       sync.Mutex
	byUnit   map[Unit]*Artifact
	failures map[Unit]error
}

func newArtifacts() *Artifacts {
	return &Artifacts{byUnit: map[Unit]*Artifact{}, failures: map[Unit]error{}}
}

// Get returns the artifact of unit, or nil if it was not compiled
func (a *Artifacts) Get(unit Unit) *Artifact {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byUnit[unit]
}

// Err returns the known failure of unit: a *CompileError,
// ErrUnsupportedLanguage or a missing source
func (a *Artifacts) Err(unit Unit) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures[unit]
}

func (a *Artifacts) set(unit Unit, art *Artifact, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.failures[unit] = err
		return
	}
	a.byUnit[unit] = art
}

// Sources returns the source path of every unit present in p
func Sources(p *problem.Problem) map[Unit]string {
	srcs := map[Unit]string{Solution: p.Src}
	if p.Checker != "" {
		srcs[Checker] = p.Checker
	}
	if p.Interactor != "" {
		srcs[Interactor] = p.Interactor
	}
	if p.BfCompare != nil {
		if p.BfCompare.Generator != "" {
			srcs[Generator] = p.BfCompare.Generator
		}
		if p.BfCompare.BruteForce != "" {
			srcs[BruteForce] = p.BfCompare.BruteForce
		}
	}
	return srcs
}

// CompileAll compiles the given units of p concurrently. Without units the
// solution, checker and interactor are compiled. Known failures are
// recorded per unit in the result; the returned error is reserved for
// cancellation and other exceptional conditions.
func (c *Compiler) CompileAll(ctx context.Context, p *problem.Problem, force bool, obs Observer, units ...Unit) (*Artifacts, error) {
	if len(units) == 0 {
		units = []Unit{Solution, Checker, Interactor}
	}
	srcs := Sources(p)
	arts := newArtifacts()

	var g errgroup.Group
	for _, u := range units {
		src, ok := srcs[u]
		if !ok {
			continue
		}
		g.Go(func() error {
			if obs != nil {
				obs.StartCompile(u)
			}
			var ov lang.Overrides
			if u == Solution {
				ov = p.Overrides
			}
			a, err := c.Compile(ctx, u, src, force, ov)
			if obs != nil {
				obs.FinishCompile(u, a, err)
			}
			if err != nil && !known(err) {
				return err
			}
			arts.set(u, a, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return arts, nil
}

func known(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce) || errors.Is(err, ErrUnsupportedLanguage) || errors.Is(err, fs.ErrNotExist)
}
