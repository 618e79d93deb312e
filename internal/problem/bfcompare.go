package problem

import "sync"

// BfState is the state of a stress test
type BfState string

const (
	BfInactive         BfState = "inactive"
	BfCompiling        BfState = "compiling"
	BfCompilationError BfState = "compilationError"
	BfGenerating       BfState = "generating"
	BfRunningBrute     BfState = "runningBruteForce"
	BfRunningSolution  BfState = "runningSolution"
	BfFoundDifference  BfState = "foundDifference"
	BfInternalError    BfState = "internalError"
)

// BfCompare holds the generator and brute force of a problem and the
// progress of the stress test running on them.
type BfCompare struct {
	Generator  string
	BruteForce string

	mu    sync.Mutex
	state BfState
	msg   string
	count int
}

func (b *BfCompare) State() BfState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == "" {
		return BfInactive
	}
	return b.state
}

// SetState changes the state and clears the message
func (b *BfCompare) SetState(s BfState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
	b.msg = ""
}

// Fail moves to a terminal state with a message
func (b *BfCompare) Fail(s BfState, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
	b.msg = msg
}

func (b *BfCompare) Msg() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msg
}

func (b *BfCompare) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Next increments the iteration counter and returns it
func (b *BfCompare) Next() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	return b.count
}

func (b *BfCompare) ResetCount() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = 0
}

// Running reports whether the stress test is compiling or iterating
func (b *BfCompare) Running() bool {
	switch b.State() {
	case BfCompiling, BfGenerating, BfRunningBrute, BfRunningSolution:
		return true
	}
	return false
}

// Ready reports whether both programs are set
func (b *BfCompare) Ready() bool {
	return b != nil && b.Generator != "" && b.BruteForce != ""
}
