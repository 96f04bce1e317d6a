package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when no session matches the id or PIN.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrParticipantNotFound is returned when a player acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidTransition is returned when a state machine precondition fails.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrAlreadyAnswered is returned on a duplicate submission for a question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrQuestionClosed is returned when submitting outside the answer window.
	ErrQuestionClosed = errors.New("question closed")
	// ErrSessionNotJoinable is returned when the session has left the lobby.
	ErrSessionNotJoinable = errors.New("game already started")
	// ErrPinConflict is returned by stores when a PIN is already held by an
	// active session.
	ErrPinConflict = errors.New("pin already in use")
	// ErrPinExhausted is returned when PIN generation keeps colliding.
	ErrPinExhausted = errors.New("could not allocate a free game pin")
	// ErrValidation covers malformed input (nickname length, bad pin, ...).
	ErrValidation = errors.New("validation failed")
	// ErrStoreUnavailable wraps transient persistence failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
