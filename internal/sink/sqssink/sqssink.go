// Package sqssink sends run events as JSON messages to an SQS queue
package sqssink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/sink"
)

// Sender is the part of *sqs.Client the sink uses
type Sender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

const sendTimeout = 10 * time.Second

type Sink struct {
	client   Sender
	queueUrl string
	log      *slog.Logger
}

var _ sink.Sink = (*Sink)(nil)

func New(client Sender, queueUrl string, log *slog.Logger) *Sink {
	return &Sink{client: client, queueUrl: queueUrl, log: log.With("component", "sqssink")}
}

// Connect creates an SQS client from the default AWS configuration
func Connect(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

func (s *Sink) send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal message", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueUrl),
		MessageBody: aws.String(string(b)),
	})
	if err != nil {
		s.log.Error("failed to send message", "queue", s.queueUrl, "error", err)
	}
}

func (s *Sink) StartRun(runUuid, problem string) {
	s.send(api.NewStartRun(runUuid, problem))
}

func (s *Sink) StartCompile(runUuid, unit string) {
	s.send(api.NewStartCompile(runUuid, unit))
}

func (s *Sink) FinishCompile(runUuid string, res api.CompileResult) {
	s.send(api.NewFinishCompile(runUuid, sink.TrimCompileResult(res)))
}

// TestcaseStatus is not forwarded; only final results reach the queue
func (s *Sink) TestcaseStatus(string, string, api.Verdict) {}

func (s *Sink) FinishTestcase(runUuid string, res api.TestcaseResult) {
	s.send(api.NewFinishTestcase(runUuid, sink.TrimResult(res)))
}

func (s *Sink) StressStatus(runUuid string, status api.StressStatus) {
	s.send(api.NewStressStatusUpdate(runUuid, status))
}

func (s *Sink) CompileError(runUuid, msg string) {
	s.send(api.NewFinishRun(runUuid, &msg, true, false))
}

func (s *Sink) InternalError(runUuid, msg string) {
	s.send(api.NewFinishRun(runUuid, &msg, false, true))
}

func (s *Sink) FinishRun(runUuid string) {
	s.send(api.NewFinishRun(runUuid, nil, false, false))
}
