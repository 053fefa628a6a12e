package executor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caffeineduck/scriptbox/sandbox"
)

type State string

const (
	StateSucceeded     State = "succeeded"
	StateCompileFailed State = "compile_failed"
	StateExecuteFailed State = "execute_failed"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one compiler message.
type Diagnostic struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Code     string   `json:"code,omitempty" yaml:"code,omitempty"`
	Message  string   `json:"message" yaml:"message"`
	File     string   `json:"file,omitempty" yaml:"file,omitempty"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
	Column   int      `json:"column,omitempty" yaml:"column,omitempty"`
}

// String formats the diagnostic as file:line:col: severity code: message,
// leaving out whatever is unknown.
func (d Diagnostic) String() string {
	var b strings.Builder
	if d.File != "" {
		b.WriteString(d.File)
		if d.Line > 0 {
			b.WriteString(":" + strconv.Itoa(d.Line))
			if d.Column > 0 {
				b.WriteString(":" + strconv.Itoa(d.Column))
			}
		}
		b.WriteString(": ")
	}
	sev := d.Severity
	if sev == "" {
		sev = SeverityError
	}
	b.WriteString(string(sev))
	if d.Code != "" {
		b.WriteString(" " + d.Code)
	}
	b.WriteString(": " + d.Message)
	return b.String()
}

// CompilationError reports a script that did not compile.
type CompilationError struct {
	Diagnostics []Diagnostic
}

func (e *CompilationError) Error() string {
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// ExecutionError reports a script that compiled but failed while loading or
// running. Message and Stack are taken from the original fault.
type ExecutionError struct {
	Message string
	Stack   string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

func toExecutionError(err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	out := &ExecutionError{Message: err.Error(), Cause: err}
	var fault *sandbox.Fault
	if errors.As(err, &fault) {
		out.Stack = fault.Stack
	}
	return out
}

// Result is the outcome of one Execute call. At most one of CompileError
// and ExecuteError is set.
type Result struct {
	CompileError *CompilationError
	ExecuteError *ExecutionError
	// ReturnValue is always nil; values are not marshalled out of the
	// boundary.
	ReturnValue any

	Output       string
	Duration     time.Duration
	CacheHit     bool
	ArtifactPath string
	Descriptor   *SessionDescriptor
}

func (r Result) State() State {
	switch {
	case r.CompileError != nil:
		return StateCompileFailed
	case r.ExecuteError != nil:
		return StateExecuteFailed
	default:
		return StateSucceeded
	}
}

// Err returns the failure held by the result, or nil on success.
func (r Result) Err() error {
	switch {
	case r.CompileError != nil:
		return fmt.Errorf("compile: %w", r.CompileError)
	case r.ExecuteError != nil:
		return fmt.Errorf("execute: %w", r.ExecuteError)
	default:
		return nil
	}
}
