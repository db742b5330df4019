package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrInFlight is returned when Run is called while another job is running.
	ErrInFlight = errors.New("upload: a job is already in flight")
	// ErrPermissionExpired is returned when a transfer starts after the write
	// permission lapsed.
	ErrPermissionExpired = errors.New("upload: write permission expired")
	// ErrMediaTooLarge is returned when the local media exceeds the configured limit.
	ErrMediaTooLarge = errors.New("upload: media exceeds size limit")
	// ErrNoMediaRoot is returned for a local media reference when no media root is
	// configured.
	ErrNoMediaRoot = errors.New("upload: local media references are disabled")
	// ErrOutsideMediaRoot is returned when a local media reference does not name a
	// regular file under the media root.
	ErrOutsideMediaRoot = errors.New("upload: media reference is outside the media root")
)

// Stage names a pipeline step for error reporting.
type Stage string

const (
	StagePrepare    Stage = "prepare"
	StagePermission Stage = "permission"
	StageTransfer   Stage = "transfer"
	StageNotify     Stage = "notify"
)

// StageError records which step failed a job.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stored reports whether the media reached the object store before the failure.
func (e *StageError) Stored() bool {
	return e.Stage == StageNotify
}

// TransferError is a non-success response from the write permission URL.
type TransferError struct {
	StatusCode int
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer rejected with status %d", e.StatusCode)
}

// NotifyError is a non-success response from the processing function.
type NotifyError struct {
	StatusCode int
	Message    string
}

func (e *NotifyError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("notify rejected with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("notify rejected with status %d", e.StatusCode)
}

// StateError reports a job that cannot start, such as one without an owner.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return "upload: " + e.Reason
}
