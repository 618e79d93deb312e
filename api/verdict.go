package api

import "strings"

// Verdict is the classification of a testcase run, final or in progress
type Verdict string

// Final verdicts
const (
	UnknownError        Verdict = "UKE"
	Accepted            Verdict = "AC"
	PartiallyCorrect    Verdict = "PC"
	PresentationError   Verdict = "PE"
	WrongAnswer         Verdict = "WA"
	TimeLimitExceeded   Verdict = "TLE"
	MemoryLimitExceeded Verdict = "MLE"
	OutputLimitExceeded Verdict = "OLE"
	RuntimeError        Verdict = "RE"
	RestrictedFunction  Verdict = "RF"
	CompilationError    Verdict = "CE"
	SystemError         Verdict = "SE"
	Skipped             Verdict = "SK"
	Rejected            Verdict = "RJ"
)

// Running states
const (
	Waiting   Verdict = "WT"
	Fetched   Verdict = "FC"
	Compiling Verdict = "CP"
	Compiled  Verdict = "CPD"
	Judging   Verdict = "JG"
	Judged    Verdict = "JGD"
	Comparing Verdict = "CMP"
)

var verdictNames = map[Verdict]string{
	UnknownError:        "Unknown Error",
	Accepted:            "Accepted",
	PartiallyCorrect:    "Partially Correct",
	PresentationError:   "Presentation Error",
	WrongAnswer:         "Wrong Answer",
	TimeLimitExceeded:   "Time Limit Exceeded",
	MemoryLimitExceeded: "Memory Limit Exceeded",
	OutputLimitExceeded: "Output Limit Exceeded",
	RuntimeError:        "Runtime Error",
	RestrictedFunction:  "Restricted Function",
	CompilationError:    "Compilation Error",
	SystemError:         "System Error",
	Skipped:             "Skipped",
	Rejected:            "Rejected",
	Waiting:             "Waiting",
	Fetched:             "Fetched",
	Compiling:           "Compiling",
	Compiled:            "Compiled",
	Judging:             "Judging",
	Judged:              "Judged",
	Comparing:           "Comparing",
}

// FullName returns the human readable name, or the abbreviation itself
// for values outside the enumeration.
func (v Verdict) FullName() string {
	if n, ok := verdictNames[v]; ok {
		return n
	}
	return string(v)
}

// IsRunning reports whether v is a transient state
func (v Verdict) IsRunning() bool {
	switch v {
	case Waiting, Fetched, Compiling, Compiled, Judging, Judged, Comparing:
		return true
	}
	return false
}

// Valid reports whether v belongs to the closed set of verdicts
func (v Verdict) Valid() bool {
	_, ok := verdictNames[v]
	return ok
}

// ParseVerdict accepts an abbreviation such as "WA" or "ok".
func ParseVerdict(s string) (Verdict, bool) {
	v := Verdict(strings.ToUpper(strings.TrimSpace(s)))
	if v == "OK" {
		return Accepted, true
	}
	if !v.Valid() {
		return "", false
	}
	return v, true
}
