package app

import (
	"context"

	"quiz-live-service/internal/domain"
)

// SessionStore is the authoritative record of sessions, participants, and
// responses. Implementations must make ApplyScore atomic (the response insert
// and the participant score/streak update land together or not at all) and
// must make UpdateSession a compare-and-swap on the expected prior status.
type SessionStore interface {
	// CreateSession inserts a new session and atomically claims its PIN
	// among active sessions, failing with domain.ErrPinConflict if another
	// non-finished session already holds it.
	CreateSession(ctx context.Context, session domain.GameSession) error
	GetSession(ctx context.Context, sessionID string) (domain.GameSession, error)
	// GetSessionByPIN resolves a PIN against non-finished sessions only;
	// finished sessions release their PIN for reuse.
	GetSessionByPIN(ctx context.Context, pin string) (domain.GameSession, error)
	// UpdateSession writes the session iff its stored status equals expect.
	// A mismatch returns domain.ErrInvalidTransition.
	UpdateSession(ctx context.Context, session domain.GameSession, expect domain.GameStatus) error

	AddParticipant(ctx context.Context, participant domain.Participant) error
	GetParticipant(ctx context.Context, sessionID, participantID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)

	// ApplyScore inserts the response and applies its points/streak to the
	// participant in one atomic step. A second response for the same
	// (participant, question) returns domain.ErrAlreadyAnswered and leaves
	// the participant untouched. Returns the updated participant.
	ApplyScore(ctx context.Context, response domain.Response, newStreak int) (domain.Participant, error)
	ListResponses(ctx context.Context, sessionID, questionID string) ([]domain.Response, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// EventPublisher fans a change event out to a session's subscribers.
type EventPublisher interface {
	Publish(sessionID string, event domain.Event)
}
