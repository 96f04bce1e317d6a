package game

import "math"

// Scoring constants. A correct answer at the deadline still earns half the
// base points; streak bonus grows 100 per consecutive correct answer up to 500.
const (
	minPointsRatio        = 0.5
	streakBonusPerCorrect = 100
	maxStreakBonus        = 500
)

// ScoreInput carries everything the scoring function needs. It is a pure
// value; the caller resolves streak and timing before calling Score.
type ScoreInput struct {
	BasePoints     int
	TimeLimitMs    int64
	ResponseTimeMs int64
	SpeedScoring   bool
	CurrentStreak  int
	IsCorrect      bool
	IsWarmup       bool
}

// ScoreResult is the outcome of scoring a single response.
type ScoreResult struct {
	Points      int `json:"points"`
	NewStreak   int `json:"newStreak"`
	TimeBonus   int `json:"timeBonus"`
	StreakBonus int `json:"streakBonus"`
	IsWarmup    bool `json:"isWarmup"`
}

// Score computes the points and streak delta for one response. No I/O, no
// shared state.
//
// Warmup questions never touch score or streak, regardless of correctness.
// A wrong or missing answer on a real question resets the streak. Correct
// answers earn the base points, scaled by answer speed when speed scoring is
// on (never below 50% of base, even for late answers), plus the streak bonus
// computed from the streak before this answer.
func Score(in ScoreInput) ScoreResult {
	if in.IsWarmup {
		return ScoreResult{NewStreak: in.CurrentStreak, IsWarmup: true}
	}

	if !in.IsCorrect {
		return ScoreResult{NewStreak: 0}
	}

	points := in.BasePoints
	timeBonus := 0
	if in.SpeedScoring && in.TimeLimitMs > 0 {
		ratio := 1 - float64(in.ResponseTimeMs)/float64(in.TimeLimitMs)
		if ratio < 0 {
			ratio = 0 // late answers floor at the minimum, never go negative
		}
		factor := minPointsRatio + (1-minPointsRatio)*ratio
		points = int(math.Round(float64(in.BasePoints) * factor))
		timeBonus = points - int(math.Round(float64(in.BasePoints)*minPointsRatio))
	}

	streakBonus := in.CurrentStreak * streakBonusPerCorrect
	if streakBonus > maxStreakBonus {
		streakBonus = maxStreakBonus
	}

	return ScoreResult{
		Points:      points + streakBonus,
		NewStreak:   in.CurrentStreak + 1,
		TimeBonus:   timeBonus,
		StreakBonus: streakBonus,
	}
}
