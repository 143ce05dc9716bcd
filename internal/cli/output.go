package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope printed with --format json.
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed command.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type formatter struct {
	format string
	w      io.Writer
}

// success prints data as JSON or through text.
func (f formatter) success(data interface{}, text func(w io.Writer)) error {
	if f.format == "json" {
		return json.NewEncoder(f.w).Encode(Response{Status: "ok", Data: data})
	}
	text(f.w)
	return nil
}

// failure prints err and returns it wrapped with ExitFailure.
func (f formatter) failure(err error) error {
	appErr := appErrors.FromError(err)
	if f.format == "json" {
		_ = json.NewEncoder(f.w).Encode(Response{Status: "error", Error: &ErrorBody{Code: appErr.Code, Message: appErr.Message, Retryable: appErr.Retryable}})
	} else {
		fmt.Fprintf(f.w, "Error [%s]: %s\n", appErr.Code, appErr.Message)
	}
	return WrapExitError(ExitFailure, appErr.Code, err)
}
