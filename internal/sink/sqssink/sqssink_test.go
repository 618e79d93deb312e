package sqssink_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/logging"
	"github.com/programme-lv/judge/internal/sink/sqssink"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	inputs []*sqs.SendMessageInput
}

func (f *fakeSender) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

func TestSendsFinalEvents(t *testing.T) {
	f := &fakeSender{}
	s := sqssink.New(f, "https://sqs.example/queue", logging.Discard())

	s.StartRun("run", "p")
	s.TestcaseStatus("run", "t", api.Judging)
	s.FinishTestcase("run", api.TestcaseResult{TestcaseId: "t", Verdict: api.Accepted})
	s.StressStatus("run", api.StressStatus{State: "generating", Iteration: 1})
	s.InternalError("run", "oops")

	require.Len(t, f.inputs, 4)
	for _, in := range f.inputs {
		require.Equal(t, "https://sqs.example/queue", *in.QueueUrl)
	}

	var fin api.FinishRun
	require.NoError(t, json.Unmarshal([]byte(*f.inputs[3].MessageBody), &fin))
	require.Equal(t, api.FinishRunMsg, fin.MsgType)
	require.True(t, fin.InternalError)
	require.False(t, fin.CompileError)
}
