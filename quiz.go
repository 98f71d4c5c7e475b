// Quizbox Match Coordinator
//
// One host display and several player clients share a single authoritative
// match that advances through timed phases: lobby, question, lockin,
// reveal, scoreboard.
//
// Features:
// - WebSocket endpoint at /quiz/ws; clients identified by cookie
// - First client to claim the host role holds it; reclaim by identity
// - Players marked ready in the lobby; host starts once everyone is ready
// - A question closes only after every registered player has answered,
//   including players that dropped mid-question
// - Fixed lock-in window before reveal; retracting an answer reopens it
// - Speed, win-streak, and comeback scoring with capped multipliers
// - Host controls: pause, navigate, force reveal, restart, reset, kick
// - Match auto-terminates after a grace period with no clients connected
// - In-browser QR button to share the join URL, backed by go-qrcode

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type clientCommand struct {
	Type     string `json:"type"`                // command name
	Role     string `json:"role,omitempty"`      // set_role: "host" or "player"
	Name     string `json:"name,omitempty"`      // set_role (player)
	Icon     string `json:"icon,omitempty"`      // set_role (player)
	GameID   string `json:"game_id,omitempty"`   // choose_game
	Ready    *bool  `json:"ready,omitempty"`     // set_ready
	Option   string `json:"option,omitempty"`    // answer
	Dir      int    `json:"dir,omitempty"`       // navigate: -1 or 1
	TargetID string `json:"client_id,omitempty"` // kick_player
}

// Messages sent to clients
type stateMessage struct {
	Type  string      `json:"type"` // "state"
	State PublicState `json:"state"`
}

// toastMessage is an advisory notification for rejected actions that
// warrant user feedback.
type toastMessage struct {
	Type    string `json:"type"`  // "toast"
	Level   string `json:"level"` // "error" or "info"
	Message string `json:"message"`
}

// resetMessage instructs clients to drop back to an unassigned role.
type resetMessage struct {
	Type string `json:"type"` // "reset"
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	clientID string
}

type inboundCommand struct {
	client *Client
	cmd    clientCommand
}

// Hub owns the Session and is its single writer: inbound commands,
// connection changes, expired deadlines, and ticks are all processed one
// at a time on the run loop.
type Hub struct {
	cfg     *Config
	log     zerolog.Logger
	catalog *Catalog
	clock   clockwork.Clock

	session *Session
	sched   *scheduler

	clients  map[*Client]bool
	register chan *Client
	unreg    chan *Client
	commands chan inboundCommand
}

func newHub(cfg *Config, logger zerolog.Logger, catalog *Catalog, clock clockwork.Clock) *Hub {
	return &Hub{
		cfg:      cfg,
		log:      logger,
		catalog:  catalog,
		clock:    clock,
		session:  newSession(cfg.questionDuration),
		sched:    newScheduler(clock),
		clients:  make(map[*Client]bool),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		commands: make(chan inboundCommand),
	}
}

func (h *Hub) run(ctx context.Context) {
	ticker := h.clock.NewTicker(h.cfg.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unreg:
			h.handleUnregister(c)
		case in := <-h.commands:
			h.dispatch(in.client, in.cmd)
		case ev := <-h.sched.fires:
			if h.sched.claim(ev) {
				h.handleTimer(ev)
			}
		case <-ticker.Chan():
			h.tick()
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.clients[c] = true
	h.sched.cancel(deferIdle)

	h.log.Debug().Str("client", c.clientID).Msg("MATCH: Client connected")

	h.sendTo(c, h.stateSnapshot())
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}

	if c.clientID != "" && !h.stillConnected(c.clientID) {
		if h.session.hostClientID == c.clientID {
			h.session.hostConnected = false
		}
		if p, ok := h.session.players[c.clientID]; ok {
			p.Connected = false
		}
	}

	h.log.Debug().Str("client", c.clientID).Msg("MATCH: Client disconnected")

	h.broadcast()
	h.evaluateIdle()
}

// stillConnected reports whether any other socket for this identity
// remains registered, so a duplicate tab closing doesn't mark the
// identity as gone.
func (h *Hub) stillConnected(clientID string) bool {
	for client := range h.clients {
		if client.clientID == clientID {
			return true
		}
	}
	return false
}

// evaluateIdle arms the idle-termination grace period when the host is
// disconnected and no player is either; any connection cancels it.
func (h *Hub) evaluateIdle() {
	s := h.session

	abandoned := !s.hostConnected && s.connectedCount() == 0 &&
		(s.hostClientID != "" || len(s.players) > 0)

	if !abandoned {
		h.sched.cancel(deferIdle)
		return
	}
	if !h.sched.pending(deferIdle) {
		h.sched.arm(deferIdle, h.cfg.idleGrace)
		h.log.Debug().Dur("grace", h.cfg.idleGrace).Msg("MATCH: All clients gone, termination armed")
	}
}

func (h *Hub) handleTimer(ev timerEvent) {
	switch ev.kind {
	case deferLockin:
		h.revealAnswers()
	case deferReveal:
		h.advanceQuestion()
	case deferIdle:
		h.log.Info().Msg("MATCH: Idle grace elapsed, terminating match")
		h.terminateMatch()
	}
}

// tick republishes remaining time for deadline-bearing phases and also
// performs the transition itself if the deadline has already passed, in
// case the one-shot action was lost to jitter.
func (h *Hub) tick() {
	s := h.session

	if s.phase != phaseLockin && s.phase != phaseReveal {
		return
	}
	if s.phaseDeadline.IsZero() {
		return
	}

	h.broadcast()

	if h.clock.Now().Before(s.phaseDeadline) {
		return
	}

	if s.phase == phaseLockin {
		h.revealAnswers()
		return
	}
	h.advanceQuestion()
}

func (h *Hub) dispatch(c *Client, cmd clientCommand) {
	switch cmd.Type {
	case "request_state":
		h.sendTo(c, h.stateSnapshot())
	case "set_role":
		h.handleSetRole(c, cmd)
	case "choose_game":
		h.handleChooseGame(c, cmd)
	case "set_ready":
		h.handleSetReady(c, cmd)
	case "start_game":
		h.handleStartGame(c)
	case "answer":
		h.handleAnswer(c, cmd)
	case "unlock_answer":
		h.handleUnlockAnswer(c)
	case "toggle_pause":
		h.handleTogglePause(c)
	case "navigate":
		h.handleNavigate(c, cmd)
	case "force_reveal":
		h.handleForceReveal(c)
	case "restart":
		h.handleRestart(c)
	case "force_reset":
		h.handleForceReset(c)
	case "kick_player":
		h.handleKick(c, cmd)
	default:
		// ignore unknown types
	}
}

func (h *Hub) isHost(c *Client) bool {
	return c.clientID != "" && c.clientID == h.session.hostClientID
}

func (h *Hub) currentGame() *Game {
	if h.session.gameID == "" {
		return nil
	}
	game, ok := h.catalog.Game(h.session.gameID)
	if !ok {
		return nil
	}
	return game
}

// handleSetRole processes host and player claims. Host policy: claim if
// unclaimed, reclaim your own identity, or take over in the lobby while
// the previous host is disconnected. Player claims reuse the existing
// record for a known identity.
func (h *Hub) handleSetRole(c *Client, cmd clientCommand) {
	if c.clientID == "" {
		return
	}

	s := h.session
	h.sched.cancel(deferIdle)

	switch cmd.Role {
	case "host":
		canClaim := s.hostClientID == "" ||
			s.hostClientID == c.clientID ||
			(s.phase == phaseLobby && !s.hostConnected)

		if !canClaim {
			h.sendTo(c, toastMessage{Type: "toast", Level: "error", Message: "A host is already claimed."})
			return
		}

		s.hostClientID = c.clientID
		s.hostConnected = true
		h.log.Info().Str("client", c.clientID).Msg("MATCH: Host claimed")

	case "player":
		if existing, ok := s.players[c.clientID]; ok {
			existing.Connected = true
		} else {
			name := strings.TrimSpace(cmd.Name)
			if name == "" {
				name = defaultPlayerName
			}
			icon := strings.TrimSpace(cmd.Icon)
			if icon == "" {
				icon = defaultPlayerIcon
			}
			s.players[c.clientID] = &Player{
				ClientID:  c.clientID,
				Name:      name,
				Icon:      icon,
				Connected: true,
			}
			h.log.Info().Str("client", c.clientID).Str("name", name).Msg("MATCH: Player joined")
		}

	default:
		return
	}

	h.broadcast()
}

func (h *Hub) handleChooseGame(c *Client, cmd clientCommand) {
	if !h.isHost(c) {
		return
	}

	game, ok := h.catalog.Game(cmd.GameID)
	if !ok {
		return
	}

	h.sched.cancel(deferLockin)
	h.sched.cancel(deferReveal)

	s := h.session
	s.gameID = game.ID
	s.phase = phaseLobby
	s.currentQuestionIndex = 0
	s.resetTiming()
	s.resetRound()
	s.resetScores()

	h.log.Info().Str("game", game.ID).Msg("MATCH: Game chosen")

	h.broadcast()
}

func (h *Hub) handleSetReady(c *Client, cmd clientCommand) {
	if cmd.Ready == nil {
		return
	}
	p, ok := h.session.players[c.clientID]
	if !ok {
		return
	}

	p.Ready = *cmd.Ready
	h.broadcast()
}

func (h *Hub) handleStartGame(c *Client) {
	s := h.session

	if !h.isHost(c) || s.gameID == "" || s.phase != phaseLobby {
		return
	}

	if !s.allConnectedReady() {
		h.sendTo(c, toastMessage{Type: "toast", Level: "info", Message: "Waiting for every player to ready up."})
		return
	}

	h.startQuestion()
}

func (h *Hub) handleAnswer(c *Client, cmd clientCommand) {
	s := h.session

	if c.clientID == "" || s.phase != phaseQuestion || s.paused {
		return
	}

	p, ok := s.players[c.clientID]
	if !ok || !p.Connected {
		return
	}

	if !validOption(cmd.Option) {
		return
	}

	// first submission wins; answering twice is a no-op
	if _, ok := s.answers[c.clientID]; ok {
		return
	}

	now := h.clock.Now()
	elapsed := now.Sub(s.questionStartedAt) - s.pauseAccum
	if elapsed < 0 {
		elapsed = 0
	}

	s.answers[c.clientID] = &Answer{
		Option:     cmd.Option,
		AnsweredAt: now,
		Elapsed:    elapsed,
	}

	h.broadcast()
	h.maybeLockin()
}

func (h *Hub) handleUnlockAnswer(c *Client) {
	s := h.session

	if s.phase != phaseQuestion && s.phase != phaseLockin {
		return
	}
	if s.paused {
		return
	}
	if _, ok := s.answers[c.clientID]; !ok {
		return
	}

	delete(s.answers, c.clientID)

	// retracting below quorum reopens the question
	if s.phase == phaseLockin {
		s.phase = phaseQuestion
		s.phaseDeadline = time.Time{}
		h.sched.cancel(deferLockin)
	}

	h.broadcast()
}

func (h *Hub) handleTogglePause(c *Client) {
	s := h.session

	if !h.isHost(c) || s.phase != phaseQuestion {
		return
	}

	now := h.clock.Now()

	if !s.paused {
		s.paused = true
		s.pausedAt = now
		h.broadcast()
		return
	}

	s.paused = false
	if !s.pausedAt.IsZero() {
		s.pauseAccum += now.Sub(s.pausedAt)
		s.pausedAt = time.Time{}
	}

	h.broadcast()
}

func (h *Hub) handleNavigate(c *Client, cmd clientCommand) {
	if !h.isHost(c) {
		return
	}
	if cmd.Dir != 1 && cmd.Dir != -1 {
		return
	}

	game := h.currentGame()
	if game == nil {
		return
	}

	s := h.session
	next := clampIndex(s.currentQuestionIndex+cmd.Dir, len(game.Questions))
	if next == s.currentQuestionIndex {
		return
	}

	s.currentQuestionIndex = next
	h.startQuestion()
}

func (h *Hub) handleForceReveal(c *Client) {
	if !h.isHost(c) {
		return
	}

	s := h.session

	switch s.phase {
	case phaseQuestion:
		required := s.requiredAnswers()
		if required == 0 || len(s.answers) < required {
			return
		}
		h.revealAnswers()
	case phaseLockin:
		h.revealAnswers()
	}
}

func (h *Hub) handleRestart(c *Client) {
	if !h.isHost(c) {
		return
	}

	h.sched.cancel(deferLockin)
	h.sched.cancel(deferReveal)

	s := h.session
	s.phase = phaseLobby
	s.currentQuestionIndex = 0
	s.resetTiming()
	s.resetRound()
	s.resetScores()

	h.log.Info().Str("game", s.gameID).Msg("MATCH: Restarted")

	h.broadcast()
}

func (h *Hub) handleForceReset(c *Client) {
	if !h.isHost(c) {
		return
	}

	h.log.Info().Msg("MATCH: Full reset issued by host")
	h.terminateMatch()
}

func (h *Hub) handleKick(c *Client, cmd clientCommand) {
	if !h.isHost(c) {
		return
	}

	s := h.session
	if _, ok := s.players[cmd.TargetID]; !ok {
		return
	}

	for client := range h.clients {
		if client.clientID == cmd.TargetID {
			h.sendTo(client, toastMessage{Type: "toast", Level: "error", Message: "You have been removed by the host."})
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		}
	}

	delete(s.players, cmd.TargetID)
	delete(s.answers, cmd.TargetID)

	h.log.Info().Str("client", cmd.TargetID).Msg("MATCH: Player kicked")

	h.broadcast()
	// removing a player shrinks the quorum, which may close the question
	h.maybeLockin()
}

// startQuestion (re-)enters the question phase at the current index.
// The question phase carries no deadline; it ends via quorum or a host
// override.
func (h *Hub) startQuestion() {
	game := h.currentGame()
	if game == nil {
		return
	}

	h.sched.cancel(deferLockin)
	h.sched.cancel(deferReveal)

	s := h.session
	s.resetRound()
	s.currentQuestionIndex = clampIndex(s.currentQuestionIndex, len(game.Questions))
	s.phase = phaseQuestion
	s.resetTiming()
	s.questionStartedAt = h.clock.Now()

	h.log.Debug().Int("index", s.currentQuestionIndex).Msg("MATCH: Question started")

	h.broadcast()
}

// maybeLockin closes the question once every player who must answer has.
func (h *Hub) maybeLockin() {
	s := h.session

	if s.phase != phaseQuestion || s.paused {
		return
	}

	required := s.requiredAnswers()
	if required == 0 || len(s.answers) < required {
		return
	}

	s.phase = phaseLockin
	s.paused = false
	s.phaseDeadline = h.clock.Now().Add(h.cfg.lockinDelay)
	h.sched.arm(deferLockin, h.cfg.lockinDelay)

	h.broadcast()
}

// revealAnswers judges the current question: every registered player
// takes a streak transition, correct answers earn points, everyone else
// (including non-answers) takes the wrong-count hit.
func (h *Hub) revealAnswers() {
	game := h.currentGame()
	if game == nil {
		return
	}

	s := h.session
	if s.currentQuestionIndex >= len(game.Questions) {
		return
	}
	q := game.Questions[s.currentQuestionIndex]

	h.sched.cancel(deferLockin)

	s.phase = phaseReveal
	s.correctOption = q.Correct
	s.paused = false

	for id, p := range s.players {
		answer := s.answers[id]
		correct := answer != nil && answer.Option == q.Correct

		elapsed := s.questionDuration
		if answer != nil {
			elapsed = answer.Elapsed
		}

		next := nextStreak(p.Streak, correct)

		if correct {
			p.Points += awardForCorrect(elapsed, s.questionDuration, next, p.Streak)
			p.CorrectCount++
		} else {
			p.WrongCount++
		}

		p.Streak = next
	}

	if s.currentQuestionIndex < len(game.Questions)-1 {
		s.phaseDeadline = h.clock.Now().Add(h.cfg.revealDelay)
		h.sched.arm(deferReveal, h.cfg.revealDelay)
	} else {
		s.phase = phaseScoreboard
		s.phaseDeadline = time.Time{}
		h.sched.cancel(deferReveal)
	}

	h.broadcast()
}

func (h *Hub) advanceQuestion() {
	game := h.currentGame()
	if game == nil {
		return
	}

	h.sched.cancel(deferReveal)

	s := h.session
	next := s.currentQuestionIndex + 1
	if next >= len(game.Questions) {
		s.phase = phaseScoreboard
		s.phaseDeadline = time.Time{}
		h.broadcast()
		return
	}

	s.currentQuestionIndex = next
	h.startQuestion()
}

// terminateMatch performs the full reset: all timers cancelled, all
// state dropped, every client told to fall back to an unassigned role.
func (h *Hub) terminateMatch() {
	h.sched.cancelAll()
	h.session.terminate()

	for client := range h.clients {
		h.sendTo(client, resetMessage{Type: "reset"})
	}

	h.broadcast()
}

func (h *Hub) stateSnapshot() stateMessage {
	return stateMessage{
		Type:  "state",
		State: buildPublicState(h.session, h.catalog, h.clock.Now()),
	}
}

func (h *Hub) broadcast() {
	msg := h.stateSnapshot()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// sendTo delivers to a single registered client, evicting it if its
// send buffer is full.
func (h *Hub) sendTo(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}

		h.commands <- inboundCommand{
			client: c,
			cmd:    cmd,
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const clientCookieName = "quizbox_id"

func getOrSetClientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(clientCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     clientCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func serveQuizWS(logger zerolog.Logger, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		clientID := getOrSetClientID(w, r)
		if clientID == "" {
			http.Error(w, "unable to assign client id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("SERVE: Websocket upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			clientID: clientID,
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func serveQuizPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_ = getOrSetClientID(w, r)

		_, _ = w.Write([]byte(newPage("Quizbox", "Connect a host display or player client here.")))
	}
}

// serveGamesList exposes the read-only catalog: topics, their games, and
// question counts.
func serveGamesList(cfg *Config, catalog *Catalog) httprouter.Handle {
	type listedTopic struct {
		ID    string       `json:"id"`
		Title string       `json:"title"`
		Games []PublicGame `json:"games"`
	}

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		topics := make([]listedTopic, 0, len(catalog.Topics()))
		for _, topic := range catalog.Topics() {
			listed := listedTopic{
				ID:    topic.ID,
				Title: topic.Title,
				Games: make([]PublicGame, 0, len(topic.Games)),
			}
			for _, game := range topic.Games {
				listed.Games = append(listed.Games, PublicGame{
					ID:            game.ID,
					Title:         game.Title,
					QuestionCount: len(game.Questions),
				})
			}
			topics = append(topics, listed)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		_ = json.NewEncoder(w).Encode(topics)
	}
}

// qrHandler generates a PNG QR code for the join URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /quiz/qr; strip the trailing "/qr" to get the join URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerQuizMatch sets up routes so that:
//   - $path        → placeholder page that mints the identity cookie
//   - $path/ws     → the match websocket
//   - $path/qr     → PNG QR code of the join URL
//   - $path/games  → JSON catalog listing
func registerQuizMatch(cfg *Config, logger zerolog.Logger, path string, mux *httprouter.Router, hub *Hub) {
	mux.GET(cfg.prefix+path, serveQuizPage(cfg))

	mux.GET(cfg.prefix+path+"/ws", serveQuizWS(logger, hub))

	mux.GET(cfg.prefix+path+"/qr", qrHandler)

	mux.GET(cfg.prefix+path+"/games", serveGamesList(cfg, hub.catalog))
}
