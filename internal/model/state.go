package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for an upload state change the state
// machine does not allow.
var ErrInvalidTransition = errors.New("invalid upload state transition")

// UploadState is the per-attempt upload state of an Asset.
type UploadState string

const (
	StateIdle      UploadState = "idle"
	StateUploading UploadState = "uploading"
	StateUploaded  UploadState = "uploaded"
	StateErrored   UploadState = "errored"
)

// States lists every upload state.
var States = []UploadState{StateIdle, StateUploading, StateUploaded, StateErrored}

// Terminal reports whether s ends an attempt.
func (s UploadState) Terminal() bool {
	return s == StateUploaded || s == StateErrored
}

// CanTransition reports whether an attempt may move from one state to
// another. A new attempt may start from any state but uploading.
func CanTransition(from, to UploadState) bool {
	if from == "" {
		from = StateIdle
	}
	switch to {
	case StateUploading:
		return from == StateIdle || from == StateUploaded || from == StateErrored
	case StateUploaded, StateErrored:
		return from == StateUploading
	}
	return false
}

// Transition moves the Asset to state to, or fails with ErrInvalidTransition.
func (a *Asset) Transition(to UploadState) error {
	from := a.State()
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	a.UploadState = to
	return nil
}

// Unpublish clears the remote copy after it was removed from its Space. It
// resets the Asset to idle outside the per-attempt state machine, so it is
// refused only while an attempt is running.
func (a *Asset) Unpublish() error {
	if a.State() == StateUploading {
		return fmt.Errorf("%w: cannot unpublish while uploading", ErrInvalidTransition)
	}
	a.UploadState = StateIdle
	a.IsUploaded = false
	a.PublicURL = ""
	a.RemoteKey = ""
	a.Error = ""
	return nil
}
