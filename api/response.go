package api

// TestcaseResult is the persisted result of one testcase, as surfaced to the user
type TestcaseResult struct {
	TestcaseId string  `json:"testcase_id"`
	Verdict    Verdict `json:"verdict"`

	TimeMillis float64  `json:"time_ms"`
	MemoryMiB  *float64 `json:"mem_mib,omitempty"`

	// Output, trimmed for display
	Stdout *string `json:"stdout,omitempty"`
	Stderr *string `json:"stderr,omitempty"`

	// Checker or interactor feedback, or a diagnostic
	Message *string `json:"message,omitempty"`
}

// CompileResult represents the compilation outcome of one unit
type CompileResult struct {
	Unit    string  `json:"unit"`
	Success bool    `json:"success"`
	Cached  bool    `json:"cached"`
	Error   *string `json:"error,omitempty"`

	RuntimeData *RuntimeData `json:"runtime_data,omitempty"`
}

type RunStatus string

const (
	Success       RunStatus = "success"
	CompileError  RunStatus = "compile_error"
	InternalError RunStatus = "internal_error"
)

// RunReport is a complete, non-streaming summary of one run
type RunReport struct {
	RunUuid string    `json:"run_uuid"`
	Problem string    `json:"problem"`
	Status  RunStatus `json:"status"`

	Compilation []CompileResult  `json:"compilation"`
	Testcases   []TestcaseResult `json:"testcases"`

	// Last stress test status, if a stress test ran
	Stress *StressStatus `json:"stress,omitempty"`

	ErrorMessage *string `json:"error_message,omitempty"`

	StartTime   string `json:"start_time"`
	FinishTime  string `json:"finish_time"`
	TotalTimeMs int64  `json:"total_time_ms"`
}
