// Package grader compares program output with the expected answer and
// interprets testlib checker exit codes.
package grader

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/programme-lv/judge/api"
)

// Compare modes
const (
	ModeLines  = "lines"
	ModeTokens = "tokens"
	ModeExact  = "exact"
)

// ValidMode reports whether m names a compare mode
func ValidMode(m string) bool {
	switch m {
	case "", ModeLines, ModeTokens, ModeExact:
		return true
	}
	return false
}

type Options struct {
	Mode string
	// StderrIsError turns any non-blank stderr into a runtime error
	StderrIsError bool
	// OleFactor, when positive, limits the output to OleFactor times the
	// length of the answer
	OleFactor    float64
	RegardPEAsAC bool
}

// Compare returns the verdict for actual against expected, with a message
// describing the first difference when the answer is wrong.
func Compare(actual, expected, stderr string, opts Options) (api.Verdict, string) {
	if opts.StderrIsError && strings.TrimSpace(stderr) != "" {
		return api.RuntimeError, "Program wrote to stderr"
	}

	normActual := normalize(actual)
	normExpected := normalize(expected)
	if opts.OleFactor > 0 && float64(len(normActual)) > float64(len(normExpected))*opts.OleFactor {
		return api.OutputLimitExceeded, fmt.Sprintf("Output is %d bytes, answer is %d bytes", len(normActual), len(normExpected))
	}

	switch opts.Mode {
	case ModeExact:
		if actual == expected {
			return api.Accepted, ""
		}
		return api.WrongAnswer, firstDiff(strings.Split(expected, "\n"), strings.Split(actual, "\n"))
	case ModeTokens:
		a, e := strings.Fields(actual), strings.Fields(expected)
		for i := 0; i < len(a) || i < len(e); i++ {
			if i >= len(a) || i >= len(e) || a[i] != e[i] {
				return api.WrongAnswer, fmt.Sprintf("At token %d, expected: %s actual: %s", i+1, at(e, i), at(a, i))
			}
		}
		return api.Accepted, ""
	}

	if stripSpace(actual) != stripSpace(expected) {
		return api.WrongAnswer, firstDiff(strings.Split(normExpected, "\n"), strings.Split(normActual, "\n"))
	}
	if normActual != normExpected && !opts.RegardPEAsAC {
		return api.PresentationError, firstDiff(strings.Split(normExpected, "\n"), strings.Split(normActual, "\n"))
	}
	return api.Accepted, ""
}

// normalize drops trailing whitespace from every line and trailing blank lines
func normalize(s string) string {
	lines := strings.Split(strings.TrimRightFunc(s, unicode.IsSpace), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.Join(lines, "\n")
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func firstDiff(expected, actual []string) string {
	for i := 0; i < len(expected) || i < len(actual); i++ {
		e, a := at(expected, i), at(actual, i)
		if e != a || i >= len(expected) || i >= len(actual) {
			return fmt.Sprintf("At line %d, expected: %s actual: %s", i+1, clip(e), clip(a))
		}
	}
	return ""
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return "<EOF>"
}

func clip(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
