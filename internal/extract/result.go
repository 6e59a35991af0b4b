package extract

import (
	"fmt"
	"strings"
)

// Class tells the transport layer who is at fault for a failure.
type Class int

const (
	ClassClient Class = iota + 1
	ClassServer
)

func (c Class) String() string {
	switch c {
	case ClassClient:
		return "client"
	case ClassServer:
		return "server"
	default:
		return "unknown"
	}
}

// Failure is a typed, user-presentable failure produced by a pipeline stage.
type Failure struct {
	Reason string
	Class  Class
}

func (f *Failure) Error() string { return f.Reason }

func ClientFailure(format string, args ...any) *Failure {
	return &Failure{Reason: fmt.Sprintf(format, args...), Class: ClassClient}
}

func ServerFailure(format string, args ...any) *Failure {
	return &Failure{Reason: fmt.Sprintf(format, args...), Class: ClassServer}
}

// Result is either recovered text or a Failure, never both.
// A text result always holds non-blank text.
type Result struct {
	text    string
	failure *Failure
}

// TextOr returns a text result, or a client failure with emptyReason when
// text is blank after trimming.
func TextOr(text, emptyReason string) Result {
	if strings.TrimSpace(text) == "" {
		return Fail(ClientFailure("%s", emptyReason))
	}
	return Result{text: text}
}

func Fail(f *Failure) Result {
	if f == nil {
		f = ServerFailure("unknown extraction failure")
	}
	return Result{failure: f}
}

func (r Result) Text() (string, bool) {
	if r.failure != nil {
		return "", false
	}
	return r.text, true
}

func (r Result) Failure() (*Failure, bool) {
	return r.failure, r.failure != nil
}

func (r Result) IsFailure() bool { return r.failure != nil }

// BuildCounts returns whitespace-separated word count and rune count.
func BuildCounts(text string) (wordCount int, charCount int) {
	charCount = len([]rune(text))
	wordCount = 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			if inWord {
				wordCount++
				inWord = false
			}
			continue
		}
		inWord = true
	}
	if inWord {
		wordCount++
	}
	return
}
