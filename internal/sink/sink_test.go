package sink_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/sink"
	"github.com/programme-lv/judge/internal/sink/recorder"
	"github.com/stretchr/testify/require"
)

func TestTrimToRect(t *testing.T) {
	require.Equal(t, "", sink.TrimToRect("", 2, 3))
	require.Equal(t, "ab\ncd", sink.TrimToRect("ab\ncd", 2, 3))
	require.Equal(t, "abc[...]\nd", sink.TrimToRect("abcdef\nd", 2, 3))
	require.Equal(t, "1\n2\n[...]", sink.TrimToRect("1\n2\n3\n4", 2, 3))
	require.Equal(t, "abc[...]\n[...]", sink.TrimToRect("abcdef\nx\ny", 1, 3))
}

func TestTrimToRectKeepsRunesWhole(t *testing.T) {
	// "ā" and "ž" are two bytes each
	got := sink.TrimToRect("aāžb", 5, 4)
	require.Equal(t, "aā[...]", got)
	require.True(t, utf8.ValidString(got))

	got = sink.TrimToRect("ā", 5, 1)
	require.Equal(t, "[...]", got)
}

func TestTrimResult(t *testing.T) {
	long := strings.Repeat("x", 200)
	res := sink.TrimResult(api.TestcaseResult{TestcaseId: "a", Stdout: &long})
	require.Len(t, *res.Stdout, api.MaxRuntimeDataWidth+len("[...]"))
	require.Nil(t, res.Stderr)
	require.Len(t, long, 200)
}

func TestMulti(t *testing.T) {
	a, b := recorder.New(), recorder.New()
	m := sink.Multi{a, b, sink.Nop{}}

	m.StartRun("run", "p")
	m.FinishTestcase("run", api.TestcaseResult{TestcaseId: "t", Verdict: api.Accepted})
	m.FinishRun("run")

	for _, r := range []*recorder.Recorder{a, b} {
		rep := r.Report("run")
		require.NotNil(t, rep)
		require.Equal(t, "p", rep.Problem)
		require.Len(t, rep.Testcases, 1)
		require.Equal(t, api.Success, rep.Status)
	}
}
