package api

// RuntimeData contains execution information for a process
type RuntimeData struct {
	Stdout   string `json:"out"`
	Stderr   string `json:"err"`
	ExitCode int64  `json:"exit"`

	TimeMillis float64  `json:"time_ms"`
	MemoryMiB  *float64 `json:"mem_mib,omitempty"`

	ExitSignal *string `json:"signal,omitempty"`
	// Abort is "cancelled" or "timeout" when the engine killed the process
	Abort *string `json:"abort,omitempty"`
}
