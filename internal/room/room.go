// Package room runs one match as an actor: a single goroutine owns the
// sessions, the lifecycle state machine and the game engine, and everything
// else talks to it through a typed message inbox. No two rooms share any
// mutable state.
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dustfall/arcade-backend/internal/config"
	"github.com/dustfall/arcade-backend/internal/game"
	"github.com/dustfall/arcade-backend/internal/registry"
	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// housekeepTick paces countdown progress, grace/AFK deadlines and the
// results timer whenever the simulation ticker is not running.
const housekeepTick = 100 * time.Millisecond

// maxTickFails is how many consecutive simulation failures the room absorbs
// before it gives up on the round.
const maxTickFails = 3

const maxChatLen = 256

// Options carries everything a room needs beyond its identity.
type Options struct {
	GameType   protocol.GameType
	Private    bool
	MaxPlayers int // 0 picks the game default
	Settings   protocol.RoomSettings

	Config   config.Config
	Registry *registry.Registry
	Log      *zap.Logger
	Scores   ScoreReporter
	OnEmpty  func(roomID string) // called once, right before the room closes itself
	Rand     *rand.Rand
}

type Room struct {
	id        string
	code      string
	gameType  protocol.GameType
	spec      game.Spec
	private   bool
	max       int
	settings  protocol.RoomSettings
	createdAt time.Time

	cfg     config.Config
	reg     *registry.Registry
	log     *zap.Logger
	scores  ScoreReporter
	onEmpty func(string)
	rng     *rand.Rand

	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	ticker *time.Ticker

	state    protocol.RoomState
	sessions map[string]*session // by player id
	conns    map[string]string   // conn id → player id
	order    []string            // join order; host migrates down this list
	hostID   string

	engine    game.Engine
	tick      uint64
	tickFails int
	startedAt time.Time // PLAYING entry

	countdownEnds time.Time
	countdownSec  int
	resultsEnds   time.Time

	closing bool
}

// New validates the options, spins up the actor goroutine and returns. The
// room runs until the parent context ends, a Shutdown message arrives, or
// the last session leaves.
func New(parent context.Context, code string, opts Options) (*Room, error) {
	spec, ok := game.SpecFor(opts.GameType)
	if !ok {
		return nil, protocol.NewError(protocol.CodeBadRequest, fmt.Sprintf("unknown game type %q", opts.GameType))
	}
	max := opts.MaxPlayers
	if max <= 0 {
		max = spec.DefaultMax
	}
	if max > spec.MaxCap {
		max = spec.MaxCap
	}
	if max < spec.MinPlayers {
		max = spec.MinPlayers
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	scores := opts.Scores
	if scores == nil {
		scores = LogScores{Log: log}
	}
	inboxSize := opts.Config.RoomInboxSize
	if inboxSize <= 0 {
		inboxSize = 256
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:        uuid.NewString(),
		code:      code,
		gameType:  opts.GameType,
		spec:      spec,
		private:   opts.Private,
		max:       max,
		settings:  opts.Settings,
		createdAt: time.Now(),
		cfg:       opts.Config,
		reg:       opts.Registry,
		scores:    scores,
		onEmpty:   opts.OnEmpty,
		rng:       rng,
		inbox:     make(chan Msg, inboxSize),
		ctx:       ctx,
		cancel:    cancel,
		state:     protocol.StateLobby,
		sessions:  make(map[string]*session),
		conns:     make(map[string]string),
	}
	r.log = log.Named("room").With(
		zap.String("room_id", r.id),
		zap.String("code", code),
		zap.String("game", string(opts.GameType)),
	)

	go r.run()
	return r, nil
}

func (r *Room) ID() string                  { return r.id }
func (r *Room) Code() string                { return r.code }
func (r *Room) GameType() protocol.GameType { return r.gameType }
func (r *Room) Private() bool               { return r.private }

// Inbox accepts room messages; senders should select against Done so a
// closed room cannot strand them.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Stop cancels the room without a farewell broadcast.
func (r *Room) Stop() { r.cancel() }

func (r *Room) run() {
	r.ticker = time.NewTicker(housekeepTick)
	defer r.ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown("")
			return
		case m := <-r.inbox:
			if sd, ok := m.(Shutdown); ok {
				r.shutdown(sd.Reason)
				return
			}
			r.handle(m)
			if r.closing {
				return
			}
		case now := <-r.ticker.C:
			r.onTick(now)
			if r.closing {
				return
			}
		}
	}
}

func (r *Room) handle(m Msg) {
	switch msg := m.(type) {
	case Join:
		r.handleJoin(msg)
	case Leave:
		r.removeSession(msg.PlayerID, protocol.LeaveReasonLeft, time.Now())
	case Disconnect:
		r.handleDisconnect(msg.ConnID)
	case Ready:
		r.handleReady(msg)
	case Start:
		r.handleStart(msg)
	case GameCmd:
		r.handleGameCmd(msg, time.Now())
	case RematchVote:
		r.handleRematch(msg)
	case Chat:
		r.handleChat(msg)
	case GetInfo:
		msg.Reply <- r.info()
	case GetView:
		msg.Reply <- r.view()
	}
}

// --- joins, leaves, disconnects ---

func (r *Room) handleJoin(msg Join) {
	if r.closing {
		msg.Reply <- JoinResult{Err: protocol.NewError(protocol.CodeRoomClosed, "room is closed")}
		return
	}

	if msg.PlayerID != "" {
		if s, ok := r.sessions[msg.PlayerID]; ok {
			if s.state.Connected {
				msg.Reply <- JoinResult{Err: protocol.NewError(protocol.CodePermissionDenied, "player already connected")}
				return
			}
			r.resume(s, msg)
			return
		}
	}

	// Full wins over wrong-state so the caller can be offered alternatives.
	if len(r.sessions) >= r.max {
		msg.Reply <- JoinResult{Err: protocol.NewError(protocol.CodeRoomFull, "room is full")}
		return
	}
	if r.state != protocol.StateLobby {
		msg.Reply <- JoinResult{Err: protocol.NewError(protocol.CodeInvalidRoomState, "game already in progress")}
		return
	}

	id := msg.PlayerID
	if id == "" {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		if tag := id; len(tag) > 4 {
			name = "Player " + tag[:4]
		} else {
			name = "Player " + tag
		}
	}

	now := time.Now()
	s := &session{
		state:        &game.PlayerState{ID: id, Name: name, Connected: true},
		connID:       msg.ConnID,
		joinedAt:     now,
		lastActivity: now,
	}
	if len(r.sessions) == 0 {
		s.host = true
		r.hostID = id
	}
	r.sessions[id] = s
	r.conns[msg.ConnID] = id
	r.order = append(r.order, id)

	msg.Reply <- JoinResult{PlayerID: id}
	r.sendTo(s, protocol.MsgRoomJoined, protocol.RoomJoined{
		Room:     r.info(),
		You:      id,
		Players:  r.playerInfos(),
		Settings: r.settings,
	})
	r.broadcastExcept(id, protocol.MsgPlayerJoined, protocol.PlayerJoined{Player: s.info()})
	r.log.Info("player joined",
		zap.String("player_id", id),
		zap.String("name", name),
		zap.Int("players", len(r.sessions)))

	if len(r.sessions) == r.max {
		r.startCountdown("room full")
	}
}

// resume rebinds a disconnected session to a fresh connection inside its
// grace window; score and alive flag carry over untouched.
func (r *Room) resume(s *session, msg Join) {
	delete(r.conns, s.connID)
	r.conns[msg.ConnID] = s.state.ID
	s.connID = msg.ConnID
	s.state.Connected = true
	s.graceUntil = time.Time{}
	s.lastActivity = time.Now()

	msg.Reply <- JoinResult{PlayerID: s.state.ID, Resumed: true}
	r.sendTo(s, protocol.MsgRoomJoined, protocol.RoomJoined{
		Room:     r.info(),
		You:      s.state.ID,
		Players:  r.playerInfos(),
		Resumed:  true,
		Settings: r.settings,
	})
	if r.state == protocol.StatePlaying && r.engine != nil {
		r.sendTo(s, protocol.MsgGameUpdate, r.engine.Snapshot(r.tick))
	}
	r.broadcastExcept(s.state.ID, protocol.MsgPlayersUpdate, protocol.PlayersUpdate{Players: r.playerInfos()})
	r.log.Info("player resumed", zap.String("player_id", s.state.ID))
}

func (r *Room) handleDisconnect(connID string) {
	id, ok := r.conns[connID]
	if !ok {
		return // already rebound or removed
	}
	delete(r.conns, connID)
	s := r.sessions[id]
	if s == nil {
		return
	}

	// In the lobby there is nothing worth preserving.
	if r.state == protocol.StateLobby {
		r.removeSession(id, protocol.LeaveReasonDisconnected, time.Now())
		return
	}

	s.state.Connected = false
	s.graceUntil = time.Now().Add(r.cfg.GraceWindow)
	if s.host {
		s.host = false
		r.migrateHost()
	}
	r.broadcast(protocol.MsgPlayersUpdate, protocol.PlayersUpdate{Players: r.playerInfos()})
	r.log.Info("player disconnected, grace window open",
		zap.String("player_id", id),
		zap.Duration("grace", r.cfg.GraceWindow))
}

// removeSession destroys a session for good: explicit leave, lobby
// disconnect, grace expiry or AFK kick. It also drives host migration, the
// abort path, and closing the room once empty.
func (r *Room) removeSession(id, reason string, now time.Time) {
	s := r.sessions[id]
	if s == nil {
		return
	}
	delete(r.sessions, id)
	delete(r.conns, s.connID)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	var evs []game.Event
	if r.engine != nil {
		evs = r.engine.RemovePlayer(id, now)
	}
	newHost := ""
	if s.host {
		newHost = r.migrateHost()
	}

	r.broadcast(protocol.MsgPlayerLeft, protocol.PlayerLeft{PlayerID: id, Reason: reason, NewHost: newHost})
	r.broadcastEvents(evs)
	r.broadcast(protocol.MsgPlayersUpdate, protocol.PlayersUpdate{Players: r.playerInfos()})
	r.log.Info("player removed",
		zap.String("player_id", id),
		zap.String("reason", reason),
		zap.Int("players", len(r.sessions)))

	if len(r.sessions) == 0 {
		r.close("room empty")
		return
	}
	if r.state != protocol.StateLobby && len(r.sessions) < r.spec.MinPlayers {
		r.reset("insufficient players", now)
	}
}

// migrateHost hands the host role to the next-joined session, preferring one
// that is still connected. Reconnecting later does not take the role back.
func (r *Room) migrateHost() string {
	r.hostID = ""
	var fallback *session
	for _, id := range r.order {
		s := r.sessions[id]
		if s == nil {
			continue
		}
		if s.state.Connected {
			s.host = true
			r.hostID = id
			r.log.Info("host migrated", zap.String("player_id", id))
			return id
		}
		if fallback == nil {
			fallback = s
		}
	}
	if fallback != nil {
		fallback.host = true
		r.hostID = fallback.state.ID
		return r.hostID
	}
	return ""
}

// --- lobby commands ---

func (r *Room) handleReady(msg Ready) {
	s := r.sessions[msg.PlayerID]
	if s == nil {
		return
	}
	s.lastActivity = time.Now()
	if r.state != protocol.StateLobby {
		r.errTo(s, protocol.NewError(protocol.CodeInvalidRoomState, "ready only applies in the lobby"))
		return
	}
	s.ready = msg.Ready
	r.broadcast(protocol.MsgPlayersUpdate, protocol.PlayersUpdate{Players: r.playerInfos()})
}

func (r *Room) handleStart(msg Start) {
	s := r.sessions[msg.PlayerID]
	if s == nil {
		return
	}
	s.lastActivity = time.Now()
	switch {
	case r.state != protocol.StateLobby:
		r.errTo(s, protocol.NewError(protocol.CodeInvalidRoomState, "game already started"))
	case !s.host:
		r.errTo(s, protocol.NewError(protocol.CodePermissionDenied, "only the host can start"))
	case len(r.sessions) < r.spec.MinPlayers:
		r.errTo(s, protocol.NewError(protocol.CodeBadRequest,
			fmt.Sprintf("need at least %d players", r.spec.MinPlayers)))
	default:
		r.startCountdown("host start")
	}
}

func (r *Room) handleChat(msg Chat) {
	s := r.sessions[msg.PlayerID]
	if s == nil {
		return
	}
	s.lastActivity = time.Now()
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if runes := []rune(text); len(runes) > maxChatLen {
		text = string(runes[:maxChatLen])
	}
	r.broadcast(protocol.MsgChatMessage, protocol.ChatMessage{
		PlayerID: msg.PlayerID,
		Name:     s.state.Name,
		Text:     text,
	})
}

// --- lifecycle transitions ---

func (r *Room) startCountdown(reason string) {
	r.state = protocol.StateCountdown
	r.countdownEnds = time.Now().Add(r.cfg.Countdown)
	r.countdownSec = -1
	r.broadcast(protocol.MsgRoomState, protocol.RoomStateChanged{
		State:       protocol.StateCountdown,
		CountdownMs: r.cfg.Countdown.Milliseconds(),
	})
	r.log.Info("countdown started",
		zap.String("reason", reason),
		zap.Duration("countdown", r.cfg.Countdown))
}

func (r *Room) startPlaying(now time.Time) {
	eng, err := game.New(r.gameType, r.settings, r.rng)
	if err != nil {
		r.log.Error("engine init failed", zap.Error(err))
		r.reset("simulation error", now)
		return
	}
	states := make([]*game.PlayerState, 0, len(r.order))
	for _, id := range r.order {
		states = append(states, r.sessions[id].state)
	}
	eng.Init(states, now)

	r.engine = eng
	r.tick = 0
	r.tickFails = 0
	r.startedAt = now
	r.state = protocol.StatePlaying
	r.ticker.Reset(eng.TickInterval())

	r.broadcast(protocol.MsgRoomState, protocol.RoomStateChanged{State: protocol.StatePlaying})
	r.broadcast(protocol.MsgGameUpdate, eng.Snapshot(0))
	r.log.Info("round started", zap.Int("players", len(states)))
}

func (r *Room) finishRound(reason string, now time.Time) {
	rankings := r.safeResults()
	duration := now.Sub(r.startedAt)

	r.state = protocol.StateResults
	r.ticker.Reset(housekeepTick)
	r.resultsEnds = now.Add(r.cfg.ResultsIdle)
	for _, s := range r.sessions {
		s.rematch = nil
	}

	r.broadcast(protocol.MsgRoomState, protocol.RoomStateChanged{State: protocol.StateResults, Reason: reason})
	r.broadcast(protocol.MsgRoundEnded, protocol.RoundEnded{
		Reason:   reason,
		Rankings: rankings,
		Duration: duration.Milliseconds(),
	})
	r.scores.Report(r.ctx, RoundSummary{
		RoomID:   r.id,
		Code:     r.code,
		GameType: r.gameType,
		Reason:   reason,
		Duration: duration,
		Rankings: rankings,
	})
	r.log.Info("round ended",
		zap.String("reason", reason),
		zap.Duration("duration", duration))
}

// reset is the RESET phase: per-round player state is cleared, sessions that
// sat out the round disconnected are dropped, and the room lands back in
// LOBBY with its identity and code intact.
func (r *Room) reset(reason string, now time.Time) {
	r.broadcast(protocol.MsgRoomState, protocol.RoomStateChanged{State: protocol.StateReset, Reason: reason})
	r.broadcast(protocol.MsgGameReset, protocol.GameReset{Reason: reason})

	r.engine = nil
	r.tick = 0
	r.tickFails = 0
	r.ticker.Reset(housekeepTick)
	r.state = protocol.StateLobby

	for _, id := range append([]string(nil), r.order...) {
		if s := r.sessions[id]; s != nil && !s.state.Connected {
			r.removeSession(id, protocol.LeaveReasonDisconnected, now)
		}
	}
	if r.closing {
		return
	}
	for _, s := range r.sessions {
		s.state.Alive = false
		s.state.Score = 0
		s.ready = false
		s.rematch = nil
		s.graceUntil = time.Time{}
		s.lastActivity = now
	}
	r.broadcast(protocol.MsgRoomState, protocol.RoomStateChanged{State: protocol.StateLobby})
	r.broadcast(protocol.MsgPlayersUpdate, protocol.PlayersUpdate{Players: r.playerInfos()})
	r.log.Info("room reset", zap.String("reason", reason))
}

// close shuts the room down from the inside (last player gone).
func (r *Room) close(reason string) {
	r.closing = true
	if r.onEmpty != nil {
		r.onEmpty(r.id)
	}
	r.cancel()
	r.log.Info("room closed", zap.String("reason", reason))
}

// shutdown is the external teardown path: parent context or Shutdown message.
func (r *Room) shutdown(reason string) {
	if r.closing {
		return
	}
	r.closing = true
	if reason != "" && len(r.sessions) > 0 {
		r.broadcast(protocol.MsgError, protocol.NewError(protocol.CodeRoomClosed, reason))
	}
	r.sessions = make(map[string]*session)
	r.conns = make(map[string]string)
	r.order = nil
	r.cancel()
	r.log.Info("room shut down", zap.String("reason", reason))
}

// --- ticking ---

func (r *Room) onTick(now time.Time) {
	switch r.state {
	case protocol.StateLobby:
		r.checkAFK(now)
	case protocol.StateCountdown:
		r.tickCountdown(now)
	case protocol.StatePlaying:
		r.tickPlaying(now)
	case protocol.StateResults:
		r.tickResults(now)
	}
}

func (r *Room) tickCountdown(now time.Time) {
	r.checkGrace(now)
	if r.closing || r.state != protocol.StateCountdown {
		return
	}
	remaining := r.countdownEnds.Sub(now)
	if remaining <= 0 {
		r.startPlaying(now)
		return
	}
	sec := int((remaining + time.Second - 1) / time.Second)
	if sec != r.countdownSec {
		r.countdownSec = sec
		r.broadcast(protocol.MsgCountdownTick, protocol.CountdownTick{Remaining: sec})
	}
}

func (r *Room) tickPlaying(now time.Time) {
	evs, err := r.safeStep(now)
	if err != nil {
		r.tickFails++
		r.log.Error("simulation tick failed",
			zap.Error(err),
			zap.Int("consecutive", r.tickFails))
		if r.tickFails >= maxTickFails {
			r.finishRound(protocol.RoundReasonSimError, now)
		}
		return
	}
	r.tickFails = 0
	r.tick++
	r.broadcastEvents(evs)
	r.broadcast(protocol.MsgGameUpdate, r.engine.Snapshot(r.tick))

	r.checkGrace(now)
	if r.closing || r.state != protocol.StatePlaying {
		return
	}
	if reason, done := r.engine.Terminal(now); done {
		r.finishRound(reason, now)
	}
}

func (r *Room) tickResults(now time.Time) {
	r.checkGrace(now)
	if r.closing || r.state != protocol.StateResults {
		return
	}
	if r.rematchUnanimous() {
		r.reset("rematch", now)
		return
	}
	if now.After(r.resultsEnds) {
		r.reset("idle", now)
	}
}

func (r *Room) checkAFK(now time.Time) {
	if len(r.sessions) == 0 {
		// A created room nobody ever joined still has to go away.
		if now.Sub(r.createdAt) > r.cfg.AFKThreshold {
			r.close("never joined")
		}
		return
	}
	for _, id := range append([]string(nil), r.order...) {
		s := r.sessions[id]
		if s == nil {
			continue
		}
		if now.Sub(s.lastActivity) > r.cfg.AFKThreshold {
			r.removeSession(id, protocol.LeaveReasonAFK, now)
			if r.closing {
				return
			}
		}
	}
}

func (r *Room) checkGrace(now time.Time) {
	for _, id := range append([]string(nil), r.order...) {
		s := r.sessions[id]
		if s == nil || s.graceUntil.IsZero() {
			continue
		}
		if now.After(s.graceUntil) {
			r.removeSession(id, protocol.LeaveReasonGraceExpired, now)
			if r.closing || r.state == protocol.StateLobby {
				return // an abort landed us back in LOBBY, stop sweeping
			}
		}
	}
}

// --- game commands ---

func (r *Room) handleGameCmd(msg GameCmd, now time.Time) {
	s := r.sessions[msg.PlayerID]
	if s == nil {
		r.log.Debug("command from unknown session", zap.String("player_id", msg.PlayerID))
		return
	}
	s.lastActivity = now
	if r.state != protocol.StatePlaying || r.engine == nil {
		r.errTo(s, protocol.NewError(protocol.CodeInvalidRoomState, "no round in progress"))
		return
	}
	evs, err := r.safeCommand(msg.PlayerID, msg.Cmd, now)
	if err != nil {
		r.errTo(s, gameErr(err))
		return
	}
	r.broadcastEvents(evs)
}

func gameErr(err error) *protocol.Error {
	if pe, ok := protocol.AsError(err); ok {
		return pe
	}
	code := protocol.CodeBadRequest
	if errors.Is(err, game.ErrNotYourTurn) {
		code = protocol.CodePermissionDenied
	}
	return protocol.NewError(code, err.Error())
}

func (r *Room) handleRematch(msg RematchVote) {
	s := r.sessions[msg.PlayerID]
	if s == nil {
		return
	}
	s.lastActivity = time.Now()
	if r.state != protocol.StateResults {
		r.errTo(s, protocol.NewError(protocol.CodeInvalidRoomState, "no results to rematch"))
		return
	}
	v := msg.Rematch
	s.rematch = &v
	if r.rematchUnanimous() {
		r.reset("rematch", time.Now())
	}
}

// rematchUnanimous is satisfied when every connected session has voted yes.
func (r *Room) rematchUnanimous() bool {
	voters := 0
	for _, s := range r.sessions {
		if !s.state.Connected {
			continue
		}
		if s.rematch == nil || !*s.rematch {
			return false
		}
		voters++
	}
	return voters > 0
}

// --- engine isolation ---

// safeStep keeps one bad tick from taking the process down; the caller
// counts consecutive failures.
func (r *Room) safeStep(now time.Time) (evs []game.Event, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tick panic: %v", p)
		}
	}()
	return r.engine.Step(now), nil
}

func (r *Room) safeCommand(playerID string, cmd game.Command, now time.Time) (evs []game.Event, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("command panic", zap.Any("panic", p), zap.String("player_id", playerID))
			err = protocol.NewError(protocol.CodeBadRequest, "command rejected")
		}
	}()
	return r.engine.Command(playerID, cmd, now)
}

func (r *Room) safeResults() (res []protocol.ResultEntry) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("results panic", zap.Any("panic", p))
			res = nil
		}
	}()
	if r.engine == nil {
		return nil
	}
	return r.engine.Results()
}

// --- broadcasting ---

// broadcast fans a frame out to every connected member. Sends never block
// the actor: the registry's queues absorb bursts, and a peer whose queue
// overflows is treated as disconnected.
func (r *Room) broadcast(t protocol.MsgType, payload any) {
	r.broadcastExcept("", t, payload)
}

func (r *Room) broadcastExcept(skipID string, t protocol.MsgType, payload any) {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		r.log.Error("encode broadcast", zap.String("type", string(t)), zap.Error(err))
		return
	}
	var lost []string
	for _, id := range r.order {
		if id == skipID {
			continue
		}
		s := r.sessions[id]
		if s == nil || !s.state.Connected {
			continue
		}
		if err := r.reg.Send(s.connID, frame); err != nil {
			lost = append(lost, s.connID)
		}
	}
	for _, connID := range lost {
		r.handleDisconnect(connID)
	}
}

func (r *Room) sendTo(s *session, t protocol.MsgType, payload any) {
	if !s.state.Connected {
		return
	}
	if err := r.reg.SendEvent(s.connID, t, payload); err != nil {
		r.handleDisconnect(s.connID)
	}
}

func (r *Room) errTo(s *session, e *protocol.Error) {
	r.sendTo(s, protocol.MsgError, e)
}

func (r *Room) broadcastEvents(evs []game.Event) {
	for _, ev := range evs {
		r.broadcast(ev.T, ev.P)
	}
}

// --- views ---

func (r *Room) info() protocol.RoomInfo {
	return protocol.RoomInfo{
		RoomID:     r.id,
		Code:       r.code,
		GameType:   r.gameType,
		State:      r.state,
		Private:    r.private,
		MinPlayers: r.spec.MinPlayers,
		MaxPlayers: r.max,
		Players:    len(r.sessions),
	}
}

func (r *Room) playerInfos() []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(r.order))
	for _, id := range r.order {
		if s := r.sessions[id]; s != nil {
			out = append(out, s.info())
		}
	}
	return out
}

func (r *Room) view() View {
	return View{
		ID:       r.id,
		Code:     r.code,
		GameType: r.gameType,
		State:    r.state,
		HostID:   r.hostID,
		Players:  r.playerInfos(),
		Tick:     r.tick,
	}
}
