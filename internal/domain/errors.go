package domain

import "errors"

// Code identifies a client-facing, recoverable condition.
type Code string

const (
	CodeProfileIncomplete     Code = "PROFILE_INCOMPLETE"
	CodeNoCandidatesAvailable Code = "NO_CANDIDATES_AVAILABLE"
	CodeSelectionNotFound     Code = "SELECTION_NOT_FOUND"
	CodeTargetNotInSelection  Code = "TARGET_NOT_IN_SELECTION"
	CodeQuotaExceeded         Code = "QUOTA_EXCEEDED"
	CodeAlreadyChosenToday    Code = "ALREADY_CHOSEN_TODAY"
	CodePairingNotFound       Code = "PAIRING_NOT_FOUND"
	CodeProfileNotFound       Code = "PROFILE_NOT_FOUND"
)

// Error is returned for every condition in the client-facing taxonomy.
// Two Errors match under errors.Is when their codes match, so callers can
// compare against the sentinels below even when the message was customised.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithMessage returns a copy carrying a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

var (
	ErrProfileIncomplete     = &Error{CodeProfileIncomplete, "complete your profile to receive a daily selection"}
	ErrNoCandidatesAvailable = &Error{CodeNoCandidatesAvailable, "no candidates available today"}
	ErrSelectionNotFound     = &Error{CodeSelectionNotFound, "fetch today's selection before choosing"}
	ErrTargetNotInSelection  = &Error{CodeTargetNotInSelection, "this profile is not part of today's selection"}
	ErrQuotaExceeded         = &Error{CodeQuotaExceeded, "no choices left today"}
	ErrAlreadyChosenToday    = &Error{CodeAlreadyChosenToday, "you already chose this profile today"}
	ErrPairingNotFound       = &Error{CodePairingNotFound, "pairing not found"}
	ErrProfileNotFound       = &Error{CodeProfileNotFound, "profile not found"}
)

// IsClientError reports whether err belongs to the client-facing taxonomy.
func IsClientError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
