package termsink_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/sink/termsink"
	"github.com/stretchr/testify/require"
)

func TestPrintsResults(t *testing.T) {
	var buf bytes.Buffer
	s := termsink.New(&buf, true, false)
	s.Name("0f3c1e9a-0000-0000-0000-000000000000", "#1")

	mem := 3.5
	msg := "At line 1, expected: 3 actual: 4"
	s.StartRun("run", "aplusb")
	s.FinishCompile("run", api.CompileResult{Unit: "solution", Success: true, Cached: true})
	s.TestcaseStatus("run", "0f3c1e9a-0000-0000-0000-000000000000", api.Judging)
	s.FinishTestcase("run", api.TestcaseResult{
		TestcaseId: "0f3c1e9a-0000-0000-0000-000000000000",
		Verdict:    api.WrongAnswer,
		TimeMillis: 12,
		MemoryMiB:  &mem,
		Message:    &msg,
	})
	s.FinishTestcase("run", api.TestcaseResult{TestcaseId: "abcdef0123456789", Verdict: api.Accepted})
	s.FinishRun("run")

	out := buf.String()
	require.Contains(t, out, "== Judging aplusb ==")
	require.Contains(t, out, "-- solution cached")
	require.NotContains(t, out, "Judging\n")
	require.Contains(t, out, "WA   #1")
	require.Contains(t, out, "3.5MB")
	require.Contains(t, out, msg)
	require.Contains(t, out, "AC   abcdef01")
	require.True(t, strings.Contains(out, "== Finished in"))
	require.NotContains(t, out, "\x1b[")
}

func TestVerbosePrintsRunningStates(t *testing.T) {
	var buf bytes.Buffer
	s := termsink.New(&buf, true, true)
	s.TestcaseStatus("run", "t", api.Compiling)
	s.StressStatus("run", api.StressStatus{State: "generating", Iteration: 2})
	require.Contains(t, buf.String(), "Compiling")
	require.Contains(t, buf.String(), "stress #2 generating")
}
