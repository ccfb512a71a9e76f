package remote

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("remote: not connected")
	ErrJobFailed    = errors.New("remote: job failed")
	ErrPollTimeout  = errors.New("remote: timed out waiting for job")
	ErrNoCredential = errors.New("remote: credentials missing")
)

const (
	CodeInvalidRequest     = "E_INVALID_REQUEST"
	CodeInvalidCredentials = "E_INVALID_CREDENTIALS"
	CodeSessionExpired     = "E_SESSION_EXPIRED"
	CodeJobNotFound        = "E_JOB_NOT_FOUND"
	CodeInternalError      = "E_INTERNAL_ERROR"
)

// APIError is an error reported by the remote itself.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// JobError carries the remote's reason for a failed retrieve or deploy job.
type JobError struct {
	ID     string
	Status string
	Reason string
}

func (e *JobError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("job %s %s", e.ID, e.Status)
	}
	return fmt.Sprintf("job %s %s: %s", e.ID, e.Status, e.Reason)
}

func (e *JobError) Is(target error) bool { return target == ErrJobFailed }
