package main

import (
	"time"
)

type matchPhase string

const (
	phaseLobby      matchPhase = "lobby"
	phaseQuestion   matchPhase = "question"
	phaseLockin     matchPhase = "lockin"
	phaseReveal     matchPhase = "reveal"
	phaseScoreboard matchPhase = "scoreboard"
)

const (
	defaultPlayerName = "Player"
	defaultPlayerIcon = "/icons/icon-1.svg"
)

// Player is the server-side record for a claimed player identity. It
// survives disconnects; only a kick or a full reset removes it.
type Player struct {
	ClientID     string
	Name         string
	Icon         string
	Points       int
	Streak       int
	CorrectCount int
	WrongCount   int
	Connected    bool
	Ready        bool
}

// Answer is a player's submission for the current question.
type Answer struct {
	Option     string
	AnsweredAt time.Time
	Elapsed    time.Duration // since question start, excluding paused time
}

// Session is the single authoritative record of the match. It is owned
// and mutated exclusively by the Hub event loop.
type Session struct {
	phase                matchPhase
	gameID               string
	currentQuestionIndex int

	questionDuration  time.Duration
	questionStartedAt time.Time
	phaseDeadline     time.Time

	paused     bool
	pausedAt   time.Time
	pauseAccum time.Duration

	correctOption string

	hostClientID  string
	hostConnected bool

	players map[string]*Player
	answers map[string]*Answer
}

func newSession(questionDuration time.Duration) *Session {
	return &Session{
		phase:            phaseLobby,
		questionDuration: questionDuration,
		players:          make(map[string]*Player),
		answers:          make(map[string]*Answer),
	}
}

func (s *Session) connectedCount() int {
	count := 0
	for _, p := range s.players {
		if p.Connected {
			count++
		}
	}
	return count
}

func (s *Session) readyCount() int {
	count := 0
	for _, p := range s.players {
		if p.Connected && p.Ready {
			count++
		}
	}
	return count
}

func (s *Session) allConnectedReady() bool {
	needed := s.connectedCount()
	return needed > 0 && s.readyCount() == needed
}

// requiredAnswers is the answer quorum. During an active question it
// counts every registered player, including disconnected ones, so a
// drop never silently closes the question. Elsewhere it counts only
// connected players.
func (s *Session) requiredAnswers() int {
	if s.phase == phaseQuestion || s.phase == phaseLockin {
		return len(s.players)
	}
	return s.connectedCount()
}

// resetRound clears the per-question data: answers and the revealed option.
func (s *Session) resetRound() {
	s.answers = make(map[string]*Answer)
	s.correctOption = ""
}

// resetScores zeroes every player's standing and readiness, keeping the
// player records themselves.
func (s *Session) resetScores() {
	for _, p := range s.players {
		p.Points = 0
		p.Streak = 0
		p.CorrectCount = 0
		p.WrongCount = 0
		p.Ready = false
	}
}

// resetTiming drops all pause and deadline bookkeeping.
func (s *Session) resetTiming() {
	s.paused = false
	s.pausedAt = time.Time{}
	s.pauseAccum = 0
	s.questionStartedAt = time.Time{}
	s.phaseDeadline = time.Time{}
}

// terminate returns the session to its freshly-constructed state: no
// game, no host, no players, back in the lobby.
func (s *Session) terminate() {
	s.phase = phaseLobby
	s.gameID = ""
	s.currentQuestionIndex = 0
	s.resetTiming()
	s.hostClientID = ""
	s.hostConnected = false
	s.players = make(map[string]*Player)
	s.resetRound()
}

func clampIndex(idx, length int) int {
	if idx < 0 {
		return 0
	}
	if idx > length-1 {
		return length - 1
	}
	return idx
}
