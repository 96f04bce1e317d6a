package domain

import "time"

// GameStatus is the lifecycle state of a live session. Only the four values
// below are ever produced; transitions are enforced by the game package.
type GameStatus string

const (
	StatusLobby    GameStatus = "lobby"
	StatusQuestion GameStatus = "question"
	StatusResults  GameStatus = "results"
	StatusFinished GameStatus = "finished"
)

// QuestionType distinguishes multiple-choice from true/false questions.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
)

// GameSettings is the per-session scoring configuration, snapshotted at
// creation time and immutable afterwards.
type GameSettings struct {
	TimeLimit         int  `json:"timeLimit"` // seconds
	SpeedScoring      bool `json:"speedScoring"`
	PointsPerQuestion int  `json:"pointsPerQuestion"`
	AutoAdvance       bool `json:"autoAdvance"`
}

// DefaultSettings mirrors the product defaults for a new game.
func DefaultSettings() GameSettings {
	return GameSettings{
		TimeLimit:         20,
		SpeedScoring:      true,
		PointsPerQuestion: 1000,
		AutoAdvance:       false,
	}
}

// GameSession is the mutable root entity of a single live game.
type GameSession struct {
	ID                   string       `json:"id"`
	QuizID               string       `json:"quizId"`
	HostID               string       `json:"hostId,omitempty"` // empty for anonymous hosts
	PIN                  string       `json:"pin"`
	Status               GameStatus   `json:"status"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	QuestionStartedAt    time.Time    `json:"questionStartedAt"` // scoring clock origin, reset on every question
	StartedAt            time.Time    `json:"startedAt"`
	EndedAt              time.Time    `json:"endedAt"`
	WinnerID             string       `json:"winnerId,omitempty"`
	Settings             GameSettings `json:"settings"`
	CreatedAt            time.Time    `json:"createdAt"`
}

// QuestionTimeLimit returns the effective limit for a question, honoring the
// per-question override when present.
func (s GameSession) QuestionTimeLimit(q Question) time.Duration {
	limit := s.Settings.TimeLimit
	if q.TimeLimitOverride > 0 {
		limit = q.TimeLimitOverride
	}
	return time.Duration(limit) * time.Second
}

// Participant is a player inside one session. TotalScore and CurrentStreak
// only ever change through a recorded response.
type Participant struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"sessionId"`
	UserID          string    `json:"userId,omitempty"`
	Nickname        string    `json:"nickname"`
	AvatarBase      string    `json:"avatarBase"`
	AvatarAccessory string    `json:"avatarAccessory,omitempty"`
	TotalScore      int       `json:"totalScore"`
	CurrentStreak   int       `json:"currentStreak"`
	JoinedAt        time.Time `json:"joinedAt"`
}

// Response records one participant's answer to one question. At most one
// exists per (participant, question); it is never updated or deleted.
type Response struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"sessionId"`
	ParticipantID    string    `json:"participantId"`
	QuestionID       string    `json:"questionId"`
	SelectedOptionID *string   `json:"selectedOptionId"` // nil means timed out with no answer
	IsCorrect        bool      `json:"isCorrect"`
	ResponseTimeMs   int64     `json:"responseTimeMs"`
	PointsAwarded    int       `json:"pointsAwarded"`
	AnsweredAt       time.Time `json:"answeredAt"`
}

// AnswerOutcome is what a submitting player gets back.
type AnswerOutcome struct {
	IsCorrect     bool `json:"isCorrect"`
	PointsAwarded int  `json:"pointsAwarded"`
	NewStreak     int  `json:"newStreak"`
	NewTotalScore int  `json:"newTotalScore"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	OrderIndex int    `json:"orderIndex"`
	IsCorrect  bool   `json:"isCorrect"`
}

// Question models a quiz question with 2-4 options, exactly one correct.
type Question struct {
	ID                string       `json:"id"`
	Type              QuestionType `json:"type"`
	Text              string       `json:"text"`
	OrderIndex        int          `json:"orderIndex"`
	IsWarmup          bool         `json:"isWarmup"`
	TimeLimitOverride int          `json:"timeLimitOverride,omitempty"` // seconds, 0 means use session setting
	Options           []Option     `json:"options"`
}

// CorrectOption returns the question's correct option.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt, true
		}
	}
	return Option{}, false
}

// Quiz is an ordered collection of questions, read-only during a live game.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}
