package main

// The projection turns the private Session into the snapshot every
// client is allowed to see. Redaction is phase-based: the question is
// hidden in the lobby, the correct option appears only once revealed.

import (
	"sort"
	"time"
)

type PublicQuestion struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	Options map[string]string `json:"options"`
	Image   string            `json:"image,omitempty"`
}

type PublicGame struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	QuestionCount int    `json:"question_count"`
}

type PublicPlayer struct {
	ClientID     string `json:"client_id"`
	Name         string `json:"name"`
	Icon         string `json:"icon"`
	Points       int    `json:"points"`
	Streak       int    `json:"streak"`
	CorrectCount int    `json:"correct_count"`
	WrongCount   int    `json:"wrong_count"`
	LastAnswer   string `json:"last_answer,omitempty"`
	HasAnswered  bool   `json:"has_answered"`
	Connected    bool   `json:"connected"`
	Ready        bool   `json:"ready"`
}

type PublicState struct {
	HasHost       bool   `json:"has_host"`
	HostClientID  string `json:"host_client_id,omitempty"`
	HostConnected bool   `json:"host_connected"`

	Game                 *PublicGame `json:"game,omitempty"`
	Phase                matchPhase  `json:"phase"`
	CurrentQuestionIndex int         `json:"current_question_index"`

	QuestionDurationMs int64 `json:"question_duration_ms"`
	RemainingMs        int64 `json:"remaining_ms"`
	Paused             bool  `json:"paused"`

	ReadyCount      int  `json:"ready_count"`
	AllPlayersReady bool `json:"all_players_ready"`

	Question      *PublicQuestion `json:"question,omitempty"`
	CorrectOption string          `json:"correct_option,omitempty"`

	Players      []PublicPlayer `json:"players"`
	AnswersCount int            `json:"answers_count"`
	PlayersCount int            `json:"players_count"`
}

// buildPublicState derives the redacted snapshot from a fully-settled
// session. Rank is positional in the sorted player list, never stored.
func buildPublicState(s *Session, catalog *Catalog, now time.Time) PublicState {
	var game *Game
	if s.gameID != "" {
		game, _ = catalog.Game(s.gameID)
	}

	state := PublicState{
		HasHost:              s.hostClientID != "",
		HostClientID:         s.hostClientID,
		HostConnected:        s.hostConnected,
		Phase:                s.phase,
		CurrentQuestionIndex: s.currentQuestionIndex,
		QuestionDurationMs:   s.questionDuration.Milliseconds(),
		Paused:               s.paused,
		ReadyCount:           s.readyCount(),
		AllPlayersReady:      s.allConnectedReady(),
		AnswersCount:         len(s.answers),
		PlayersCount:         s.requiredAnswers(),
	}

	if game != nil {
		state.Game = &PublicGame{
			ID:            game.ID,
			Title:         game.Title,
			QuestionCount: len(game.Questions),
		}

		if s.phase != phaseLobby && s.currentQuestionIndex < len(game.Questions) {
			q := game.Questions[s.currentQuestionIndex]
			state.Question = &PublicQuestion{
				ID:      q.ID,
				Title:   q.Title,
				Options: q.Options,
				Image:   q.Image,
			}
		}
	}

	if s.phase == phaseReveal || s.phase == phaseScoreboard {
		state.CorrectOption = s.correctOption
	}

	if !s.phaseDeadline.IsZero() && (s.phase == phaseLockin || s.phase == phaseReveal) {
		remaining := s.phaseDeadline.Sub(now)
		if remaining > 0 {
			state.RemainingMs = remaining.Milliseconds()
		}
	}

	players := make([]PublicPlayer, 0, len(s.players))
	for _, p := range s.players {
		public := PublicPlayer{
			ClientID:     p.ClientID,
			Name:         p.Name,
			Icon:         p.Icon,
			Points:       p.Points,
			Streak:       p.Streak,
			CorrectCount: p.CorrectCount,
			WrongCount:   p.WrongCount,
			Connected:    p.Connected,
			Ready:        p.Ready,
		}
		if answer, ok := s.answers[p.ClientID]; ok {
			public.LastAnswer = answer.Option
			public.HasAnswered = true
		}
		players = append(players, public)
	}

	sort.Slice(players, func(i, j int) bool {
		if players[i].Points != players[j].Points {
			return players[i].Points > players[j].Points
		}
		return players[i].Name < players[j].Name
	})
	state.Players = players

	return state
}
