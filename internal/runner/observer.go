package runner

import (
	"errors"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/sink"
)

// observer forwards compilation progress of one run to the sink
type observer struct {
	sink    sink.Sink
	runUuid string
}

func (o *observer) StartCompile(unit compiler.Unit) {
	o.sink.StartCompile(o.runUuid, string(unit))
}

func (o *observer) FinishCompile(unit compiler.Unit, a *compiler.Artifact, err error) {
	o.sink.FinishCompile(o.runUuid, CompileResult(unit, a, err))
}

// CompileResult converts the outcome of compiling one unit into its wire
// form
func CompileResult(unit compiler.Unit, a *compiler.Artifact, err error) api.CompileResult {
	res := api.CompileResult{Unit: string(unit), Success: err == nil}
	if err != nil {
		msg := err.Error()
		res.Error = &msg
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			rd := &api.RuntimeData{Stderr: ce.Output}
			if ce.TimedOut {
				abort := "timeout"
				rd.Abort = &abort
			}
			res.RuntimeData = rd
		}
		return res
	}
	if a != nil {
		res.Cached = a.Cached
		res.RuntimeData = &api.RuntimeData{
			Stderr:     a.Output,
			TimeMillis: float64(a.Time.Microseconds()) / 1000,
		}
	}
	return res
}
