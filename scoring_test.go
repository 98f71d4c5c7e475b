package main

import (
	"testing"
	"time"
)

func TestNextStreak(t *testing.T) {
	cases := []struct {
		prev    int
		correct bool
		want    int
	}{
		{prev: 0, correct: true, want: 1},
		{prev: 3, correct: true, want: 4},
		{prev: -1, correct: true, want: 1},
		{prev: -4, correct: true, want: 1},
		{prev: 0, correct: false, want: -1},
		{prev: 2, correct: false, want: -1},
		{prev: -2, correct: false, want: -3},
	}

	for _, tc := range cases {
		got := nextStreak(tc.prev, tc.correct)
		if got != tc.want {
			t.Fatalf("nextStreak(%d, %t) = %d, want %d", tc.prev, tc.correct, got, tc.want)
		}
	}
}

func TestAwardInstantAnswerNoStreak(t *testing.T) {
	// full speed bonus, no multipliers: (120 + 80) * 1.0 * 1.0
	got := awardForCorrect(0, 20*time.Second, 1, 0)
	if got != 200 {
		t.Fatalf("expected 200 points, got %d", got)
	}
}

func TestAwardAtTheWireWithWinStreak(t *testing.T) {
	// no speed bonus, win multiplier 1 + 3*0.08: round(120 * 1.24)
	got := awardForCorrect(20*time.Second, 20*time.Second, 4, 3)
	if got != 149 {
		t.Fatalf("expected 149 points, got %d", got)
	}
}

func TestAwardComebackMultiplier(t *testing.T) {
	// breaking a 2-loss streak: (120 + 80) * 1.0 * 1.14
	got := awardForCorrect(0, 20*time.Second, 1, -2)
	if got != 228 {
		t.Fatalf("expected 228 points, got %d", got)
	}
}

func TestAwardWinMultiplierIsCapped(t *testing.T) {
	// a 20-win streak caps at +45%: round(120 * 1.45)
	got := awardForCorrect(20*time.Second, 20*time.Second, 20, 19)
	if got != 174 {
		t.Fatalf("expected 174 points, got %d", got)
	}
}

func TestAwardComebackMultiplierIsCapped(t *testing.T) {
	// a 10-loss streak caps at +35%: (120 + 80) * 1.35
	got := awardForCorrect(0, 20*time.Second, 1, -10)
	if got != 270 {
		t.Fatalf("expected 270 points, got %d", got)
	}
}

func TestAwardClampsOverlongAnswers(t *testing.T) {
	// answers slower than the nominal duration still earn the base
	slow := awardForCorrect(25*time.Second, 20*time.Second, 1, 0)
	atWire := awardForCorrect(20*time.Second, 20*time.Second, 1, 0)
	if slow != atWire {
		t.Fatalf("expected overlong answer to clamp to %d, got %d", atWire, slow)
	}
	if slow != 120 {
		t.Fatalf("expected base award of 120, got %d", slow)
	}
}
