// Package recorder collects run events in memory into complete reports
package recorder

import (
	"sync"
	"time"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/sink"
)

// Recorder builds an api.RunReport per run
type Recorder struct {
	mu      sync.Mutex
	reports map[string]*api.RunReport
	started map[string]time.Time
	order   []string
}

var _ sink.Sink = (*Recorder)(nil)

func New() *Recorder {
	return &Recorder{reports: map[string]*api.RunReport{}, started: map[string]time.Time{}}
}

// Report returns a copy of the report of a run, or nil if it is unknown
func (r *Recorder) Report(runUuid string) *api.RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[runUuid]
	if !ok {
		return nil
	}
	return clone(rep)
}

// Last returns a copy of the most recently started report
func (r *Recorder) Last() *api.RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil
	}
	return clone(r.reports[r.order[len(r.order)-1]])
}

func clone(rep *api.RunReport) *api.RunReport {
	cp := *rep
	cp.Compilation = append([]api.CompileResult(nil), rep.Compilation...)
	cp.Testcases = append([]api.TestcaseResult(nil), rep.Testcases...)
	if rep.Stress != nil {
		st := *rep.Stress
		cp.Stress = &st
	}
	return &cp
}

// with runs f on the report of runUuid, creating it when an event arrives
// before StartRun
func (r *Recorder) with(runUuid string, f func(*api.RunReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[runUuid]
	if !ok {
		rep = &api.RunReport{RunUuid: runUuid, Status: api.Success}
		r.reports[runUuid] = rep
		r.order = append(r.order, runUuid)
	}
	f(rep)
}

func (r *Recorder) StartRun(runUuid, problem string) {
	now := time.Now()
	r.with(runUuid, func(rep *api.RunReport) {
		rep.Problem = problem
		rep.StartTime = now.Format(time.RFC3339)
		r.started[runUuid] = now
	})
}

func (r *Recorder) StartCompile(string, string) {}

func (r *Recorder) FinishCompile(runUuid string, res api.CompileResult) {
	r.with(runUuid, func(rep *api.RunReport) {
		rep.Compilation = append(rep.Compilation, res)
	})
}

func (r *Recorder) TestcaseStatus(string, string, api.Verdict) {}

// FinishTestcase replaces an earlier result of the same testcase
func (r *Recorder) FinishTestcase(runUuid string, res api.TestcaseResult) {
	r.with(runUuid, func(rep *api.RunReport) {
		for i := range rep.Testcases {
			if rep.Testcases[i].TestcaseId == res.TestcaseId {
				rep.Testcases[i] = res
				return
			}
		}
		rep.Testcases = append(rep.Testcases, res)
	})
}

func (r *Recorder) StressStatus(runUuid string, status api.StressStatus) {
	r.with(runUuid, func(rep *api.RunReport) {
		rep.Stress = &status
	})
}

func (r *Recorder) CompileError(runUuid, msg string) {
	r.finish(runUuid, api.CompileError, &msg)
}

func (r *Recorder) InternalError(runUuid, msg string) {
	r.finish(runUuid, api.InternalError, &msg)
}

func (r *Recorder) FinishRun(runUuid string) {
	r.finish(runUuid, api.Success, nil)
}

func (r *Recorder) finish(runUuid string, status api.RunStatus, msg *string) {
	now := time.Now()
	r.with(runUuid, func(rep *api.RunReport) {
		rep.Status = status
		rep.ErrorMessage = msg
		rep.FinishTime = now.Format(time.RFC3339)
		if started, ok := r.started[runUuid]; ok {
			rep.TotalTimeMs = now.Sub(started).Milliseconds()
			delete(r.started, runUuid)
		}
	})
}
