package scanning

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for the distinct upstream failure kinds. Callers pick a
// response code with errors.Is instead of re-inspecting transport details.
var (
	ErrAuth         = errors.New("upstream authentication failed")
	ErrRateLimited  = errors.New("upstream rate limit exceeded")
	ErrTimeout      = errors.New("upstream request timed out")
	ErrNetwork      = errors.New("upstream connection failed")
	ErrEmptyContent = errors.New("upstream returned empty content")
)

// ErrFileTooLarge marks an upload that exceeds the configured size limit.
var ErrFileTooLarge = errors.New("file too large")

// UpstreamError is an unexpected non-2xx response from an upstream API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Body)
}

// ValidationError is a local input rejection raised before any upstream call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Stage identifies which pipeline stage produced a failure.
type Stage string

const (
	StageValidation Stage = "validation"
	StageOCR        Stage = "ocr"
	StageParse      Stage = "parse"
)

// StageError tags a failure with the pipeline stage it originated from.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an upstream HTTP status to a failure kind.
func classifyStatus(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrAuth
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &UpstreamError{Status: status, Body: string(body)}
	}
}

// classifyTransportError maps a transport-level failure to a failure kind.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
