package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/game"
	"quiz-live-service/pkg/logger"
)

const (
	// maxPinAttempts bounds the collision retry loop; with ~900k candidate
	// PINs scoped to active sessions, five draws is plenty.
	maxPinAttempts = 5
	// resultsPause is how long auto-advance lingers on the results screen.
	resultsPause = 5 * time.Second
)

// GameCoordinator combines the scoring engine, PIN generator, state machine,
// store, and hub into the operations host and player clients invoke.
type GameCoordinator struct {
	store   SessionStore
	quizzes QuizRepository
	hub     EventPublisher
	pins    *game.PinGenerator
	clock   func() time.Time
}

func NewGameCoordinator(store SessionStore, quizzes QuizRepository, hub EventPublisher) *GameCoordinator {
	return NewGameCoordinatorWithClock(store, quizzes, hub, time.Now)
}

// NewGameCoordinatorWithClock allows deterministic timestamps in tests.
func NewGameCoordinatorWithClock(store SessionStore, quizzes QuizRepository, hub EventPublisher, clock func() time.Time) *GameCoordinator {
	return &GameCoordinator{
		store:   store,
		quizzes: quizzes,
		hub:     hub,
		pins:    game.NewPinGenerator(),
		clock:   clock,
	}
}

// CreateGame creates a session in the lobby for the given quiz and returns it
// with its freshly allocated PIN.
func (c *GameCoordinator) CreateGame(ctx context.Context, quizID, hostID string, settings domain.GameSettings) (domain.GameSession, error) {
	if _, err := c.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.GameSession{}, err
	}

	if settings.TimeLimit <= 0 {
		settings.TimeLimit = domain.DefaultSettings().TimeLimit
	}
	if settings.PointsPerQuestion <= 0 {
		settings.PointsPerQuestion = domain.DefaultSettings().PointsPerQuestion
	}

	now := c.clock()
	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		session := domain.GameSession{
			ID:        uuid.NewString(),
			QuizID:    quizID,
			HostID:    hostID,
			PIN:       c.pins.Generate(),
			Status:    domain.StatusLobby,
			Settings:  settings,
			CreatedAt: now,
		}
		err := c.store.CreateSession(ctx, session)
		if errors.Is(err, domain.ErrPinConflict) {
			continue // PIN held by an active session, draw again
		}
		if err != nil {
			return domain.GameSession{}, err
		}
		return session, nil
	}
	return domain.GameSession{}, domain.ErrPinExhausted
}

// JoinGame adds a participant to a lobby session found by PIN.
func (c *GameCoordinator) JoinGame(ctx context.Context, pin, nickname, avatarBase, avatarAccessory string) (domain.Participant, domain.GameSession, error) {
	if !game.ValidPIN(pin) {
		return domain.Participant{}, domain.GameSession{}, domain.ErrValidation
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || len(nickname) > 20 {
		return domain.Participant{}, domain.GameSession{}, domain.ErrValidation
	}

	session, err := c.store.GetSessionByPIN(ctx, game.CleanPIN(pin))
	if errors.Is(err, domain.ErrSessionNotFound) {
		// Expired and never-issued PINs look the same here: finished
		// sessions release their PIN, so it no longer resolves.
		return domain.Participant{}, domain.GameSession{}, fmt.Errorf("%w: pin not found", domain.ErrSessionNotJoinable)
	}
	if err != nil {
		return domain.Participant{}, domain.GameSession{}, err
	}
	if session.Status != domain.StatusLobby {
		return domain.Participant{}, domain.GameSession{}, fmt.Errorf("%w: game already started", domain.ErrSessionNotJoinable)
	}

	participant := domain.Participant{
		ID:              uuid.NewString(),
		SessionID:       session.ID,
		Nickname:        nickname,
		AvatarBase:      avatarBase,
		AvatarAccessory: avatarAccessory,
		JoinedAt:        c.clock(),
	}
	if err := c.store.AddParticipant(ctx, participant); err != nil {
		return domain.Participant{}, domain.GameSession{}, err
	}
	c.hub.Publish(session.ID, domain.Event{Kind: domain.EventParticipantJoined, Participant: &participant})
	return participant, session, nil
}

// StartGame moves a lobby session onto its first question.
func (c *GameCoordinator) StartGame(ctx context.Context, sessionID string) error {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	next, prior, err := game.Start(session, c.clock())
	if err != nil {
		return err
	}
	if err := c.store.UpdateSession(ctx, next, prior); err != nil {
		return err
	}
	c.hub.Publish(sessionID, domain.Event{Kind: domain.EventSessionUpdated, Session: &next})
	c.scheduleAutoReveal(ctx, next)
	return nil
}

// RevealResults exposes the current question's results. Calling it when the
// session is already showing results is a harmless no-op so a double-clicking
// host cannot race itself into an error.
func (c *GameCoordinator) RevealResults(ctx context.Context, sessionID string) error {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == domain.StatusResults {
		return nil
	}
	next, prior, err := game.Reveal(session)
	if err != nil {
		return err
	}
	if err := c.store.UpdateSession(ctx, next, prior); err != nil {
		return err
	}
	c.hub.Publish(sessionID, domain.Event{Kind: domain.EventSessionUpdated, Session: &next})
	c.scheduleAutoAdvance(next)
	return nil
}

// AdvanceQuestion moves from results to the next question, or finishes the
// game after the last one. Returns true on the finish branch.
func (c *GameCoordinator) AdvanceQuestion(ctx context.Context, sessionID string) (bool, error) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	quiz, err := c.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return false, err
	}
	next, prior, finished, err := game.Advance(session, len(quiz.Questions), c.clock())
	if err != nil {
		return false, err
	}
	if finished {
		if err := c.setWinner(ctx, &next); err != nil {
			return false, err
		}
	}
	if err := c.store.UpdateSession(ctx, next, prior); err != nil {
		return false, err
	}
	c.hub.Publish(sessionID, domain.Event{Kind: domain.EventSessionUpdated, Session: &next})
	if !finished {
		c.scheduleAutoReveal(ctx, next)
	}
	return finished, nil
}

// EndGame force-finishes a session from any state; ending a finished session
// is a no-op.
func (c *GameCoordinator) EndGame(ctx context.Context, sessionID string) error {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	next, prior, err := game.End(session, c.clock())
	if err != nil {
		return err
	}
	if prior == domain.StatusFinished {
		return nil
	}
	if err := c.setWinner(ctx, &next); err != nil {
		return err
	}
	if err := c.store.UpdateSession(ctx, next, prior); err != nil {
		return err
	}
	c.hub.Publish(sessionID, domain.Event{Kind: domain.EventSessionUpdated, Session: &next})
	return nil
}

// SubmitAnswer records one participant's answer to the current question and
// applies the score atomically. A nil optionID records a timed-out blank.
func (c *GameCoordinator) SubmitAnswer(ctx context.Context, sessionID, participantID, questionID string, optionID *string) (domain.AnswerOutcome, error) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if session.Status != domain.StatusQuestion {
		return domain.AnswerOutcome{}, domain.ErrQuestionClosed
	}

	quiz, err := c.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if session.CurrentQuestionIndex >= len(quiz.Questions) {
		return domain.AnswerOutcome{}, domain.ErrQuestionClosed
	}
	question := quiz.Questions[session.CurrentQuestionIndex]
	if question.ID != questionID {
		// Submission raced a transition and targets a stale question.
		return domain.AnswerOutcome{}, domain.ErrQuestionClosed
	}

	isCorrect := false
	if optionID != nil {
		found := false
		for _, opt := range question.Options {
			if opt.ID == *optionID {
				isCorrect = opt.IsCorrect
				found = true
				break
			}
		}
		if !found {
			return domain.AnswerOutcome{}, domain.ErrOptionNotFound
		}
	}

	participant, err := c.store.GetParticipant(ctx, sessionID, participantID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	now := c.clock()
	responseTime := now.Sub(session.QuestionStartedAt).Milliseconds()
	if responseTime < 0 {
		responseTime = 0
	}

	result := game.Score(game.ScoreInput{
		BasePoints:     session.Settings.PointsPerQuestion,
		TimeLimitMs:    session.QuestionTimeLimit(question).Milliseconds(),
		ResponseTimeMs: responseTime,
		SpeedScoring:   session.Settings.SpeedScoring,
		CurrentStreak:  participant.CurrentStreak,
		IsCorrect:      isCorrect,
		IsWarmup:       question.IsWarmup,
	})

	response := domain.Response{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		ParticipantID:    participantID,
		QuestionID:       questionID,
		SelectedOptionID: optionID,
		IsCorrect:        isCorrect,
		ResponseTimeMs:   responseTime,
		PointsAwarded:    result.Points,
		AnsweredAt:       now,
	}
	updated, err := c.store.ApplyScore(ctx, response, result.NewStreak)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	c.hub.Publish(sessionID, domain.Event{Kind: domain.EventResponseRecorded, Response: &response})
	return domain.AnswerOutcome{
		IsCorrect:     isCorrect,
		PointsAwarded: result.Points,
		NewStreak:     updated.CurrentStreak,
		NewTotalScore: updated.TotalScore,
	}, nil
}

// GetSession exposes a session snapshot for transports and drivers.
func (c *GameCoordinator) GetSession(ctx context.Context, sessionID string) (domain.GameSession, error) {
	return c.store.GetSession(ctx, sessionID)
}

// ListParticipants exposes the current roster ordered as stored.
func (c *GameCoordinator) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	return c.store.ListParticipants(ctx, sessionID)
}

// ListResponses exposes the answers recorded for one question.
func (c *GameCoordinator) ListResponses(ctx context.Context, sessionID, questionID string) ([]domain.Response, error) {
	return c.store.ListResponses(ctx, sessionID, questionID)
}

// Quiz exposes quiz content for transports building question views.
func (c *GameCoordinator) Quiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return c.quizzes.GetQuiz(ctx, quizID)
}

func (c *GameCoordinator) setWinner(ctx context.Context, session *domain.GameSession) error {
	participants, err := c.store.ListParticipants(ctx, session.ID)
	if err != nil {
		return err
	}
	if winner, ok := game.Winner(participants); ok {
		session.WinnerID = winner.ID
	}
	return nil
}

// Auto-advance is a driver policy layered on top of the state machine: when
// the session opts in, the coordinator schedules the reveal at the question
// deadline and the advance a short pause after the reveal. The timers re-read
// the session and go through the usual CAS transitions, so one that fires
// after the host already moved on fails harmlessly.

func (c *GameCoordinator) scheduleAutoReveal(ctx context.Context, session domain.GameSession) {
	if !session.Settings.AutoAdvance {
		return
	}
	delay := time.Duration(session.Settings.TimeLimit) * time.Second
	if quiz, err := c.quizzes.GetQuiz(ctx, session.QuizID); err == nil && session.CurrentQuestionIndex < len(quiz.Questions) {
		delay = session.QuestionTimeLimit(quiz.Questions[session.CurrentQuestionIndex])
	}
	index := session.CurrentQuestionIndex
	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		current, err := c.store.GetSession(ctx, session.ID)
		if err != nil || current.Status != domain.StatusQuestion || current.CurrentQuestionIndex != index {
			return
		}
		if err := c.RevealResults(ctx, session.ID); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			logger.Warn("auto reveal failed", "sessionId", session.ID, "error", err)
		}
	})
}

func (c *GameCoordinator) scheduleAutoAdvance(session domain.GameSession) {
	if !session.Settings.AutoAdvance {
		return
	}
	index := session.CurrentQuestionIndex
	time.AfterFunc(resultsPause, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		current, err := c.store.GetSession(ctx, session.ID)
		if err != nil || current.Status != domain.StatusResults || current.CurrentQuestionIndex != index {
			return
		}
		if _, err := c.AdvanceQuestion(ctx, session.ID); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			logger.Warn("auto advance failed", "sessionId", session.ID, "error", err)
		}
	})
}
