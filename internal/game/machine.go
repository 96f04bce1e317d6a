package game

import (
	"time"

	"quiz-live-service/internal/domain"
)

// The session state machine: lobby -> question <-> results -> finished.
// Transitions are pure functions over session values; callers persist the
// result with a compare-and-swap on the returned prior status so a retried
// host request cannot double-apply. The machine holds no clock and never
// transitions on its own; deadline enforcement belongs to the driver.

// Start moves a lobby session onto its first question.
func Start(s domain.GameSession, now time.Time) (domain.GameSession, domain.GameStatus, error) {
	if s.Status != domain.StatusLobby {
		return s, "", domain.ErrInvalidTransition
	}
	prior := s.Status
	s.Status = domain.StatusQuestion
	s.CurrentQuestionIndex = 0
	s.StartedAt = now
	s.QuestionStartedAt = now
	return s, prior, nil
}

// Reveal moves the current question into the results phase.
func Reveal(s domain.GameSession) (domain.GameSession, domain.GameStatus, error) {
	if s.Status != domain.StatusQuestion {
		return s, "", domain.ErrInvalidTransition
	}
	prior := s.Status
	s.Status = domain.StatusResults
	return s, prior, nil
}

// Advance moves from results to the next question, or finishes the session
// when the last question has been played. The finished return is true on the
// finish branch; the caller derives the winner before persisting.
func Advance(s domain.GameSession, questionCount int, now time.Time) (domain.GameSession, domain.GameStatus, bool, error) {
	if s.Status != domain.StatusResults {
		return s, "", false, domain.ErrInvalidTransition
	}
	prior := s.Status
	if s.CurrentQuestionIndex+1 >= questionCount {
		s.Status = domain.StatusFinished
		s.EndedAt = now
		return s, prior, true, nil
	}
	s.Status = domain.StatusQuestion
	s.CurrentQuestionIndex++
	s.QuestionStartedAt = now
	return s, prior, false, nil
}

// End force-finishes a session from any state. Ending an already finished
// session is a no-op.
func End(s domain.GameSession, now time.Time) (domain.GameSession, domain.GameStatus, error) {
	prior := s.Status
	if s.Status == domain.StatusFinished {
		return s, prior, nil
	}
	s.Status = domain.StatusFinished
	s.EndedAt = now
	return s, prior, nil
}

// Winner picks the participant with the highest total score; ties go to the
// earliest joiner. ok is false for an empty roster.
func Winner(participants []domain.Participant) (domain.Participant, bool) {
	var best domain.Participant
	found := false
	for _, p := range participants {
		if !found {
			best, found = p, true
			continue
		}
		if p.TotalScore > best.TotalScore ||
			(p.TotalScore == best.TotalScore && p.JoinedAt.Before(best.JoinedAt)) {
			best = p
		}
	}
	return best, found
}

// Deadline is the instant the current question's answer window ends.
func Deadline(s domain.GameSession, q domain.Question) time.Time {
	return s.QuestionStartedAt.Add(s.QuestionTimeLimit(q))
}
