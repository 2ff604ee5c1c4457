package models

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// FSErrorCode classifies filesystem-provider failures.
type FSErrorCode string

// Error codes for structured error handling.
const (
	CodeFileNotFound      FSErrorCode = "FileNotFound"
	CodeFileExists        FSErrorCode = "FileExists"
	CodeFileNotADirectory FSErrorCode = "FileNotADirectory"
	CodeFileIsADirectory  FSErrorCode = "FileIsADirectory"
	CodeNoPermissions     FSErrorCode = "NoPermissions"
	CodeUnavailable       FSErrorCode = "Unavailable"
)

// Sentinel errors. FSError values match these with errors.Is by code.
var (
	ErrFileNotFound      = &FSError{Code: CodeFileNotFound}
	ErrFileExists        = &FSError{Code: CodeFileExists}
	ErrFileNotADirectory = &FSError{Code: CodeFileNotADirectory}
	ErrFileIsADirectory  = &FSError{Code: CodeFileIsADirectory}
	ErrNoPermissions     = &FSError{Code: CodeNoPermissions}
	ErrUnavailable       = &FSError{Code: CodeUnavailable}

	ErrCancelled       = errors.New("transfer cancelled")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotConnected    = errors.New("client not connected")
)

// FSError is a filesystem-provider failure surfaced to the host.
type FSError struct {
	Code    FSErrorCode
	URI     string
	Message string
	Err     error
}

func (e *FSError) Error() string {
	msg := string(e.Code)
	if e.URI != "" {
		msg += " (" + e.URI + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FSError) Unwrap() error {
	return e.Err
}

// Is matches any FSError with the same code.
func (e *FSError) Is(target error) bool {
	var t *FSError
	if errors.As(target, &t) {
		return t.Code == e.Code && t.URI == "" && t.Message == "" && t.Err == nil
	}
	return false
}

// FileNotFound reports a missing path.
func FileNotFound(uri string) error {
	return &FSError{Code: CodeFileNotFound, URI: uri}
}

// FileExists reports a create/rename target collision.
func FileExists(uri string) error {
	return &FSError{Code: CodeFileExists, URI: uri}
}

// FileNotADirectory reports a directory operation on a file.
func FileNotADirectory(uri string) error {
	return &FSError{Code: CodeFileNotADirectory, URI: uri}
}

// FileIsADirectory reports a file operation on a directory.
func FileIsADirectory(uri string) error {
	return &FSError{Code: CodeFileIsADirectory, URI: uri}
}

// NoPermissions reports a policy refusal.
func NoPermissions(format string, args ...interface{}) error {
	return &FSError{Code: CodeNoPermissions, Message: fmt.Sprintf(format, args...)}
}

// Unavailable reports a disconnected client or a transport failure.
func Unavailable(err error, format string, args ...interface{}) error {
	return &FSError{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// TransferError is a non-OK, non-cancelled terminal status of a blob stream.
type TransferError struct {
	Op           string
	ResourceName string
	Code         codes.Code
	Detail       string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s failed with %s: %s", e.Op, e.ResourceName, e.Code, e.Detail)
}

// IntegrityError represents a hash mismatch.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s",
		e.Path, e.Expected, e.Actual)
}

// APIError represents an error from the Inputs HTTP API.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Is lets callers test API failures against ErrNotFound, ErrAlreadyExists
// and ErrInvalidArgument.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrAlreadyExists:
		return e.StatusCode == http.StatusConflict
	case ErrInvalidArgument:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}
