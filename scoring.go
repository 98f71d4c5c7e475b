package main

// Scoring goals:
// - Fast correct answers are rewarded, with diminishing curvature.
// - Win streaks boost points, but the multiplier is capped so leaders don't run away.
// - Breaking a losing streak earns a capped comeback bonus.
// - Wrong answers and non-answers award nothing.

import (
	"math"
	"time"
)

const (
	basePoints = 120

	maxSpeedBonus  = 80
	speedExponent  = 1.25
	winStep        = 0.08
	winCap         = 0.45
	comebackStep   = 0.07
	comebackCap    = 0.35
)

// nextStreak returns the streak value after an answer is judged.
// A correct answer while losing snaps back to +1; a wrong answer
// while winning snaps to -1. Otherwise the streak extends.
func nextStreak(prev int, correct bool) int {
	if correct {
		if prev < 0 {
			return 1
		}
		return prev + 1
	}
	if prev > 0 {
		return -1
	}
	return prev - 1
}

// awardForCorrect computes the points for a correct answer. next is the
// already-transitioned (positive) streak, prev the streak before it.
func awardForCorrect(elapsed, duration time.Duration, next, prev int) int {
	remaining := float64(duration-elapsed) / float64(duration)
	remaining = math.Max(0, math.Min(1, remaining))
	speedBonus := math.Round(maxSpeedBonus * math.Pow(remaining, speedExponent))

	winSteps := next - 1
	if winSteps < 0 {
		winSteps = 0
	}
	winMult := 1 + math.Min(winCap, float64(winSteps)*winStep)

	comeback := 0
	if prev < 0 {
		comeback = -prev
	}
	comebackMult := 1 + math.Min(comebackCap, float64(comeback)*comebackStep)

	return int(math.Round((basePoints + speedBonus) * winMult * comebackMult))
}
