package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a publish request that failed its preconditions.
	// No network call was made.
	ErrInvalidInput = errors.New("invalid input")

	ErrProcessing       = errors.New("instagram failed to process this media")
	ErrContainerExpired = errors.New("media container expired")
	ErrPollTimeout      = errors.New("timeout waiting for instagram to process media")

	ErrNoActiveProfile = errors.New("no active profile")
)

// ProtocolError is any Graph API rejection or transport failure. Stage names
// the protocol step, e.g. "Upload Media 2" or "Publish Container".
type ProtocolError struct {
	Stage       string
	StatusCode  int
	Code        int
	Message     string
	UserMessage string
	Err         error
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.UserMessage != "" {
		msg += " - " + e.UserMessage
	}
	return fmt.Sprintf("instagram api error [%s]: %s", e.Stage, msg)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ContainerError reports a container that never became ready. It unwraps to
// ErrProcessing, ErrContainerExpired or ErrPollTimeout.
type ContainerError struct {
	Stage       string
	ContainerID string
	Attempts    int
	Err         error
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("container %s [%s]: %v", e.ContainerID, e.Stage, e.Err)
}

func (e *ContainerError) Unwrap() error {
	return e.Err
}

// SyncError means the post went live but writing "published" back to the
// sheet failed. Callers must not publish the post again in the same run.
type SyncError struct {
	PublishedID string
	RowIndex    int
	Err         error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("posted as %s but status sync for row %d failed: %v", e.PublishedID, e.RowIndex, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Stage extracts the protocol stage from a publish failure, or "".
func Stage(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	var ce *ContainerError
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return ""
}
