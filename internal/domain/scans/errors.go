package scans

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies why a stage did not pass.
type ErrorKind string

const (
	ErrKindToolMissing             ErrorKind = "TOOL_MISSING"
	ErrKindToolError               ErrorKind = "TOOL_ERROR"
	ErrKindFindingsAboveThreshold  ErrorKind = "FINDINGS_ABOVE_THRESHOLD"
	ErrKindEnvironmentStartFailure ErrorKind = "ENVIRONMENT_START_FAILURE"
	ErrKindEnvironmentStopWarning  ErrorKind = "ENVIRONMENT_STOP_WARNING"
	ErrKindTimeout                 ErrorKind = "TIMEOUT"
	ErrKindWrongTarget             ErrorKind = "WRONG_TARGET"
	ErrKindCanceled                ErrorKind = "CANCELED"
)

// Error is a classified pipeline error.
type Error struct {
	Kind    ErrorKind
	Stage   string
	Message string
	Cause   error
}

// ErrToolMissing is returned by invokers when the executable is not on PATH.
var ErrToolMissing = &Error{Kind: ErrKindToolMissing, Message: "executable not found"}

func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Stage, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors by kind so errors.Is(err, ErrToolMissing) works on wrapped copies.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithCause returns a copy carrying cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{Kind: e.Kind, Stage: e.Stage, Message: e.Message, Cause: cause}
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf extracts the kind of err, defaulting to TOOL_ERROR.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindToolError
}

// ToolFailure builds a TOOL_ERROR result. kind distinguishes missing tools,
// timeouts and the rest.
func ToolFailure(kind ErrorKind, started time.Time, rawOutput, format string, args ...any) Result {
	if kind == "" {
		kind = ErrKindToolError
	}
	return Result{
		Outcome:   OutcomeToolError,
		Kind:      kind,
		RawOutput: rawOutput,
		Duration:  time.Since(started),
		Message:   fmt.Sprintf(format, args...),
	}
}

// Gate turns parsed counts into a result against threshold.
func Gate(counts SeverityCounts, threshold Severity, started time.Time, rawOutput string) Result {
	res := Result{
		Outcome:   OutcomePassed,
		Counts:    counts,
		RawOutput: rawOutput,
		Duration:  time.Since(started),
	}
	if n := counts.AtOrAbove(threshold); n > 0 {
		res.Outcome = OutcomeFailedFindings
		res.Kind = ErrKindFindingsAboveThreshold
		res.Message = fmt.Sprintf("%d finding(s) at or above %s", n, threshold)
	}
	return res
}
