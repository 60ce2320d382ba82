// Package scoring ranks duel performances.
package scoring

import (
	"math"

	"aksara-duel-service/internal/domain"
)

// DefaultInitialTime is the length of the shared duel clock in ticks.
const DefaultInitialTime = 120

// Outcome of comparing two performances.
type Outcome string

const (
	OutcomeFirst  Outcome = "first"
	OutcomeSecond Outcome = "second"
	OutcomeTie    Outcome = "tie"
)

// Result holds both raw and display scores for a pair of players.
type Result struct {
	First         float64 `json:"first"`
	Second        float64 `json:"second"`
	FirstRounded  int64   `json:"firstRounded"`
	SecondRounded int64   `json:"secondRounded"`
	Outcome       Outcome `json:"outcome"`
}

// TimeTaken is the number of clock ticks charged to a player. Players that
// never finished are charged the whole clock.
func TimeTaken(stats domain.PlayerStats, initialTime int) int {
	if stats.FinishTime == nil {
		return initialTime
	}
	return initialTime - *stats.FinishTime
}

// PerformanceScore computes
//
//	score² × progress × 1000 × accuracyBonus / max(timeTaken, 1)
//
// where accuracyBonus is 1+avgAccuracy when any drawing was scored.
func PerformanceScore(stats domain.PlayerStats, initialTime int) float64 {
	if stats.Progress == 0 {
		return 0
	}
	bonus := 1.0
	if stats.AvgAccuracy > 0 {
		bonus = 1 + stats.AvgAccuracy
	}
	taken := TimeTaken(stats, initialTime)
	if taken < 1 {
		taken = 1
	}
	score := float64(stats.Score)
	return score * score * float64(stats.Progress) * 1000 * bonus / float64(taken)
}

// Round returns the display value of a performance score.
func Round(v float64) int64 {
	return int64(math.Round(v))
}

// Decide compares unrounded scores; rounding is for display only.
func Decide(first, second float64) Outcome {
	switch {
	case first > second:
		return OutcomeFirst
	case second > first:
		return OutcomeSecond
	default:
		return OutcomeTie
	}
}

// Compare scores both players and decides the winner.
func Compare(first, second domain.PlayerStats, initialTime int) Result {
	a := PerformanceScore(first, initialTime)
	b := PerformanceScore(second, initialTime)
	return Result{
		First:         a,
		Second:        b,
		FirstRounded:  Round(a),
		SecondRounded: Round(b),
		Outcome:       Decide(a, b),
	}
}
