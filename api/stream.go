package api

import "time"

// MsgType is a message type for streaming events
type MsgType string

// Streaming message type constants
const (
	StartRunMsg       MsgType = "run_start"
	StartCompileMsg   MsgType = "compile_start"
	FinishCompileMsg  MsgType = "compile_finish"
	TestcaseStatusMsg MsgType = "testcase_status"
	FinishTestcaseMsg MsgType = "testcase_finish"
	StressStatusMsg   MsgType = "stress_status"
	FinishRunMsg      MsgType = "run_finish"
)

// Output size constraints for streaming and display
const (
	MaxRuntimeDataHeight = 40
	MaxRuntimeDataWidth  = 80
)

// Header is the common header for all streaming messages
type Header struct {
	RunUuid string  `json:"run_uuid"`
	MsgType MsgType `json:"msg_type"`
}

// StartRun message sent when a run begins
type StartRun struct {
	Header
	Problem     string `json:"problem"`
	StartedTime string `json:"started_time"`
}

// StartCompile message sent when compilation of a unit begins
type StartCompile struct {
	Header
	Unit string `json:"unit"`
}

// FinishCompile message sent when compilation of a unit completes
type FinishCompile struct {
	Header
	Result CompileResult `json:"result"`
}

// TestcaseStatus message sent on every transient state change of a testcase
type TestcaseStatus struct {
	Header
	TestcaseId string  `json:"testcase_id"`
	Verdict    Verdict `json:"verdict"`
}

// FinishTestcase message sent when a testcase reaches its final verdict
type FinishTestcase struct {
	Header
	Result TestcaseResult `json:"result"`
}

// StressStatus describes the progress of a stress test
type StressStatus struct {
	State     string  `json:"state"`
	Iteration int     `json:"iteration"`
	Message   *string `json:"message,omitempty"`
}

// StressStatusUpdate message sent when the stress test changes state
type StressStatusUpdate struct {
	Header
	Status StressStatus `json:"status"`
}

// FinishRun message sent when the run completes
type FinishRun struct {
	Header
	ErrorMessage  *string `json:"error_message"`
	CompileError  bool    `json:"compile_error"`
	InternalError bool    `json:"internal_error"`
}

func NewHeader(runUuid string, msgType MsgType) Header {
	return Header{
		RunUuid: runUuid,
		MsgType: msgType,
	}
}

func NewStartRun(runUuid, problem string) StartRun {
	return StartRun{
		Header:      NewHeader(runUuid, StartRunMsg),
		Problem:     problem,
		StartedTime: time.Now().Format(time.RFC3339),
	}
}

func NewStartCompile(runUuid, unit string) StartCompile {
	return StartCompile{
		Header: NewHeader(runUuid, StartCompileMsg),
		Unit:   unit,
	}
}

func NewFinishCompile(runUuid string, result CompileResult) FinishCompile {
	return FinishCompile{
		Header: NewHeader(runUuid, FinishCompileMsg),
		Result: result,
	}
}

func NewTestcaseStatus(runUuid, testcaseId string, verdict Verdict) TestcaseStatus {
	return TestcaseStatus{
		Header:     NewHeader(runUuid, TestcaseStatusMsg),
		TestcaseId: testcaseId,
		Verdict:    verdict,
	}
}

func NewFinishTestcase(runUuid string, result TestcaseResult) FinishTestcase {
	return FinishTestcase{
		Header: NewHeader(runUuid, FinishTestcaseMsg),
		Result: result,
	}
}

func NewStressStatusUpdate(runUuid string, status StressStatus) StressStatusUpdate {
	return StressStatusUpdate{
		Header: NewHeader(runUuid, StressStatusMsg),
		Status: status,
	}
}

func NewFinishRun(runUuid string, errorMessage *string, compileError, internalError bool) FinishRun {
	return FinishRun{
		Header:        NewHeader(runUuid, FinishRunMsg),
		ErrorMessage:  errorMessage,
		CompileError:  compileError,
		InternalError: internalError,
	}
}
