package natssink_test

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/logging"
	"github.com/programme-lv/judge/internal/sink/natssink"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	msgs     [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.msgs = append(f.msgs, data)
	return f.err
}

func TestPublishesMessages(t *testing.T) {
	pub := &fakePublisher{}
	s := natssink.New(pub, "judge.events", logging.Discard())

	long := strings.Repeat("y\n", 100)
	s.StartRun("run", "p")
	s.TestcaseStatus("run", "t1", api.Judging)
	s.FinishTestcase("run", api.TestcaseResult{TestcaseId: "t1", Verdict: api.WrongAnswer, Stdout: &long})
	s.CompileError("run", "boom")

	require.Len(t, pub.msgs, 4)
	require.Equal(t, []string{"judge.events", "judge.events", "judge.events", "judge.events"}, pub.subjects)

	var header api.Header
	require.NoError(t, json.Unmarshal(pub.msgs[0], &header))
	require.Equal(t, api.StartRunMsg, header.MsgType)
	require.Equal(t, "run", header.RunUuid)

	var fin api.FinishTestcase
	require.NoError(t, json.Unmarshal(pub.msgs[2], &fin))
	require.True(t, strings.HasSuffix(*fin.Result.Stdout, "[...]"))
	require.LessOrEqual(t, strings.Count(*fin.Result.Stdout, "\n"), api.MaxRuntimeDataHeight)

	var run api.FinishRun
	require.NoError(t, json.Unmarshal(pub.msgs[3], &run))
	require.True(t, run.CompileError)
	require.Equal(t, "boom", *run.ErrorMessage)
}

func TestPublishErrorIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("disconnected")}
	s := natssink.New(pub, "x", logging.Discard())
	s.FinishRun("run")
	s.Close()
	require.Len(t, pub.msgs, 1)
}
