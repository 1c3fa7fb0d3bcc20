package harness

import (
	"errors"
	"fmt"
)

// Exit statuses returned by the run entry point.
const (
	ExitOK                 = 0
	ExitSuiteMissing       = 1
	ExitConfigNotWritable  = 2
	ExitNoBenchmarks       = 3
	ExitCopies             = 4
	ExitConfigFile         = 5
	ExitOutputFormats      = 6
	ExitSize               = 7
	ExitTune               = 8
	ExitInsufficientDisk   = 9
	ExitInvocationFailed   = 10
	ExitResultsUnparseable = 11
	ExitUnknown            = 12
)

// Class groups exit statuses by who has to act on them.
type Class string

const (
	ClassOK                     Class = "ok"
	ClassConfigurationInvalid   Class = "configuration_invalid"
	ClassEnvironmentUnavailable Class = "environment_unavailable"
	ClassInvocationFailed       Class = "invocation_failed"
	ClassResultsUnparseable     Class = "results_unparseable"
	ClassUnknown                Class = "unknown"
)

// ClassOf maps an exit status to its class.
func ClassOf(code int) Class {
	switch code {
	case ExitOK:
		return ClassOK
	case ExitSuiteMissing, ExitConfigNotWritable, ExitInsufficientDisk:
		return ClassEnvironmentUnavailable
	case ExitNoBenchmarks, ExitCopies, ExitConfigFile, ExitOutputFormats, ExitSize, ExitTune:
		return ClassConfigurationInvalid
	case ExitInvocationFailed:
		return ClassInvocationFailed
	case ExitResultsUnparseable:
		return ClassResultsUnparseable
	}
	return ClassUnknown
}

// Error is a classified fatal condition.
type Error struct {
	Class Class
	Code  int
	Err   error
}

func fail(code int, err error) *Error {
	return &Error{Class: ClassOf(code), Code: code, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (status %d): %v", e.Class, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit status for err. Unclassified errors
// map to ExitUnknown.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Code
	}
	return ExitUnknown
}
