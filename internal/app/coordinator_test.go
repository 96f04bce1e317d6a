package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
	"quiz-live-service/internal/realtime"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func twoQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:         "q1",
				Type:       domain.QuestionMultipleChoice,
				Text:       "What is 2 + 2?",
				OrderIndex: 0,
				Options: []domain.Option{
					{ID: "q1o1", Text: "3", OrderIndex: 0},
					{ID: "q1o2", Text: "4", OrderIndex: 1, IsCorrect: true},
				},
			},
			{
				ID:         "q2",
				Type:       domain.QuestionTrueFalse,
				Text:       "Just for fun: the sky is green",
				OrderIndex: 1,
				IsWarmup:   true,
				Options: []domain.Option{
					{ID: "q2o1", Text: "True", OrderIndex: 0},
					{ID: "q2o2", Text: "False", OrderIndex: 1, IsCorrect: true},
				},
			},
		},
	}
}

func newTestCoordinator(clock *fakeClock) (*app.GameCoordinator, *memory.SessionStore) {
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": twoQuestionQuiz(),
	}), 5*time.Minute)
	coordinator := app.NewGameCoordinatorWithClock(store, quizzes, realtime.NewHub(), clock.Now)
	return coordinator, store
}

func submit(t *testing.T, c *app.GameCoordinator, ctx context.Context, sessionID, participantID, questionID, optionID string) domain.AnswerOutcome {
	t.Helper()
	outcome, err := c.SubmitAnswer(ctx, sessionID, participantID, questionID, &optionID)
	if err != nil {
		t.Fatalf("submit %s/%s: %v", participantID, questionID, err)
	}
	return outcome
}

func TestFullGameFlow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	coordinator, _ := newTestCoordinator(clock)

	session, err := coordinator.CreateGame(ctx, "quiz-1", "host-1", domain.GameSettings{
		TimeLimit:         20,
		SpeedScoring:      true,
		PointsPerQuestion: 1000,
	})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if session.Status != domain.StatusLobby || len(session.PIN) != 6 {
		t.Fatalf("unexpected session: %+v", session)
	}

	alice, _, err := coordinator.JoinGame(ctx, session.PIN, "Alice", "fox", "")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	clock.Advance(time.Second)
	bob, _, err := coordinator.JoinGame(ctx, session.PIN, "Bob", "owl", "crown")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if err := coordinator.StartGame(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Question 1: Alice answers correctly in 2s, Bob in 18s.
	clock.Advance(2 * time.Second)
	aliceOutcome := submit(t, coordinator, ctx, session.ID, alice.ID, "q1", "q1o2")
	clock.Advance(16 * time.Second)
	bobOutcome := submit(t, coordinator, ctx, session.ID, bob.ID, "q1", "q1o2")

	if !aliceOutcome.IsCorrect || !bobOutcome.IsCorrect {
		t.Fatalf("both answers should be correct: %+v %+v", aliceOutcome, bobOutcome)
	}
	if aliceOutcome.PointsAwarded <= bobOutcome.PointsAwarded {
		t.Fatalf("faster answer must score higher: alice=%d bob=%d", aliceOutcome.PointsAwarded, bobOutcome.PointsAwarded)
	}
	if aliceOutcome.NewStreak != 1 || bobOutcome.NewStreak != 1 {
		t.Fatalf("expected streak 1 for both, got %d and %d", aliceOutcome.NewStreak, bobOutcome.NewStreak)
	}
	// 2s of 20s: factor 0.5 + 0.5*0.9 = 0.95; 18s: factor 0.55.
	if aliceOutcome.PointsAwarded != 950 || bobOutcome.PointsAwarded != 550 {
		t.Fatalf("expected 950/550, got %d/%d", aliceOutcome.PointsAwarded, bobOutcome.PointsAwarded)
	}

	if err := coordinator.RevealResults(ctx, session.ID); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	// A repeated reveal is a harmless no-op.
	if err := coordinator.RevealResults(ctx, session.ID); err != nil {
		t.Fatalf("repeated reveal: %v", err)
	}

	finished, err := coordinator.AdvanceQuestion(ctx, session.ID)
	if err != nil || finished {
		t.Fatalf("advance to warmup: finished=%v err=%v", finished, err)
	}

	// Question 2 is a warmup: answers never move score or streak.
	clock.Advance(time.Second)
	aliceWarmup := submit(t, coordinator, ctx, session.ID, alice.ID, "q2", "q2o2") // correct
	bobWarmup := submit(t, coordinator, ctx, session.ID, bob.ID, "q2", "q2o1")    // wrong
	if aliceWarmup.PointsAwarded != 0 || bobWarmup.PointsAwarded != 0 {
		t.Fatalf("warmup must award nothing, got %d/%d", aliceWarmup.PointsAwarded, bobWarmup.PointsAwarded)
	}
	if aliceWarmup.NewStreak != 1 || bobWarmup.NewStreak != 1 {
		t.Fatalf("warmup must preserve streaks, got %d/%d", aliceWarmup.NewStreak, bobWarmup.NewStreak)
	}
	if aliceWarmup.NewTotalScore != 950 || bobWarmup.NewTotalScore != 550 {
		t.Fatalf("warmup must not change totals, got %d/%d", aliceWarmup.NewTotalScore, bobWarmup.NewTotalScore)
	}

	if err := coordinator.RevealResults(ctx, session.ID); err != nil {
		t.Fatalf("reveal 2: %v", err)
	}
	finished, err = coordinator.AdvanceQuestion(ctx, session.ID)
	if err != nil || !finished {
		t.Fatalf("expected finish: finished=%v err=%v", finished, err)
	}

	final, err := coordinator.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if final.Status != domain.StatusFinished || final.EndedAt.IsZero() {
		t.Fatalf("unexpected final session: %+v", final)
	}
	if final.WinnerID != alice.ID {
		t.Fatalf("expected alice to win, got %s", final.WinnerID)
	}
}

func TestDuplicateSubmissionsResolveToOne(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	coordinator, _ := newTestCoordinator(clock)

	session, err := coordinator.CreateGame(ctx, "quiz-1", "", domain.DefaultSettings())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	player, _, err := coordinator.JoinGame(ctx, session.PIN, "Racer", "cat", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := coordinator.StartGame(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	const attempts = 16
	option := "q1o2"
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coordinator.SubmitAnswer(ctx, session.ID, player.ID, "q1", &option)
		}(i)
	}
	wg.Wait()

	accepted, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrAlreadyAnswered):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 || duplicates != attempts-1 {
		t.Fatalf("expected exactly one accepted submission, got accepted=%d duplicates=%d", accepted, duplicates)
	}

	roster, _ := coordinator.ListParticipants(ctx, session.ID)
	if len(roster) != 1 || roster[0].TotalScore != 1000 {
		// instant answer: full base points, no streak bonus yet
		t.Fatalf("score must be applied exactly once, got %+v", roster)
	}
}

func TestJoinValidation(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(newFakeClock())

	session, err := coordinator.CreateGame(ctx, "quiz-1", "", domain.DefaultSettings())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := coordinator.JoinGame(ctx, "12345", "Alice", "fox", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("short pin must fail validation, got %v", err)
	}
	if _, _, err := coordinator.JoinGame(ctx, session.PIN, "", "fox", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty nickname must fail validation, got %v", err)
	}
	if _, _, err := coordinator.JoinGame(ctx, session.PIN, "this nickname is way too long!", "fox", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("long nickname must fail validation, got %v", err)
	}

	// A PIN with an inner space is accepted the way it is displayed.
	spaced := session.PIN[:3] + " " + session.PIN[3:]
	if _, _, err := coordinator.JoinGame(ctx, spaced, "Alice", "fox", ""); err != nil {
		t.Fatalf("formatted pin should join, got %v", err)
	}
}

func TestJoinAfterStartNotJoinable(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(newFakeClock())

	session, _ := coordinator.CreateGame(ctx, "quiz-1", "", domain.DefaultSettings())
	if _, _, err := coordinator.JoinGame(ctx, session.PIN, "Early", "fox", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := coordinator.StartGame(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := coordinator.JoinGame(ctx, session.PIN, "Late", "owl", ""); !errors.Is(err, domain.ErrSessionNotJoinable) {
		t.Fatalf("expected not joinable after start, got %v", err)
	}
}

func TestFinishedPinNotJoinable(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(newFakeClock())

	session, _ := coordinator.CreateGame(ctx, "quiz-1", "", domain.DefaultSettings())
	if err := coordinator.EndGame(ctx, session.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, _, err := coordinator.JoinGame(ctx, session.PIN, "Ghost", "fox", ""); !errors.Is(err, domain.ErrSessionNotJoinable) {
		t.Fatalf("finished session pin must not be joinable, got %v", err)
	}
}

func TestReusedPinResolvesToNewestSession(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	coordinator, store := newTestCoordinator(clock)

	first, _ := coordinator.CreateGame(ctx, "quiz-1", "", domain.DefaultSettings())
	if err := coordinator.EndGame(ctx, first.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	// A newer lobby session claims the exact same PIN after release.
	second := domain.GameSession{
		ID:       "second",
		QuizID:   "quiz-1",
		PIN:      first.PIN,
		Status:   domain.StatusLobby,
		Settings: domain.DefaultSettings(),
	}
	if err := store.CreateSession(ctx, second); err != nil {
		t.Fatalf("reuse pin: %v", err)
	}

	_, joined, err := coordinator.JoinGame(ctx, first.PIN, "Fresh", "panda", "")
	if err != nil {
		t.Fatalf("join reused pin: %v", err)
	}
	if joined.ID != "second" {
		t.Fatalf("pin must resolve to the live session, got %s", joined.ID)
	}
}

func TestSubmitOutsideQuestionWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	coordinator, _ := newTestCoordinator(clock)

	session, _ := coordinator.CreateGame(ctx, "quiz-1", "", domain.DefaultSettings())
	player, _, _ := coordinator.JoinGame(ctx, session.PIN, "Alice", "fox", "")

	option := "q1o2"
	if _, err := coordinator.SubmitAnswer(ctx, session.ID, player.ID, "q1", &option); !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("submit before start must be closed, got %v", err)
	}

	_ = coordinator.StartGame(ctx, session.ID)
	_ = coordinator.RevealResults(ctx, session.ID)
	if _, err := coordinator.SubmitAnswer(ctx, session.ID, player.ID, "q1", &option); !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("submit during results must be closed, got %v", err)
	}
}

func TestSubmitUnknownOption(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(newFakeClock())

	session, _ := coordinator.CreateGame(ctx, "quiz-1", "", domain.DefaultSettings())
	player, _, _ := coordinator.JoinGame(ctx, session.PIN, "Alice", "fox", "")
	_ = coordinator.StartGame(ctx, session.ID)

	bogus := "nope"
	if _, err := coordinator.SubmitAnswer(ctx, session.ID, player.ID, "q1", &bogus); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected unknown option error, got %v", err)
	}
}

func TestTimedOutBlankAnswerResetsStreak(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	coordinator, _ := newTestCoordinator(clock)

	session, _ := coordinator.CreateGame(ctx, "quiz-1", "", domain.DefaultSettings())
	player, _, _ := coordinator.JoinGame(ctx, session.PIN, "Alice", "fox", "")
	_ = coordinator.StartGame(ctx, session.ID)

	clock.Advance(25 * time.Second)
	outcome, err := coordinator.SubmitAnswer(ctx, session.ID, player.ID, "q1", nil)
	if err != nil {
		t.Fatalf("blank submit: %v", err)
	}
	if outcome.IsCorrect || outcome.PointsAwarded != 0 || outcome.NewStreak != 0 {
		t.Fatalf("blank answer must score nothing, got %+v", outcome)
	}

	responses, _ := coordinator.ListResponses(ctx, session.ID, "q1")
	if len(responses) != 1 || responses[0].SelectedOptionID != nil {
		t.Fatalf("expected one blank response, got %+v", responses)
	}
}
