package client

import (
	"sync"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// chatBacklog caps the kept chat history.
const chatBacklog = 64

// Player is one roster row as the client tracks it: the server's public
// info plus presentation extras accumulated from death and kill events.
type Player struct {
	protocol.PlayerInfo
	LastDeathCause string
	KilledBy       string
}

// Snapshot is a point-in-time copy of the room mirror. Slices are copied on
// the way out; Game points at a decoded server frame that is never mutated
// after decode, so sharing it is safe.
type Snapshot struct {
	You      string
	Room     protocol.RoomInfo
	Settings protocol.RoomSettings
	Players  []Player

	State        protocol.RoomState
	StateReason  string
	CountdownSec int
	RoundSec     int

	Game       *protocol.GameUpdate
	Rankings   []protocol.ResultEntry
	EndReason  string
	DurationMs int64

	Chat      []protocol.ChatMessage
	LatencyMs int64
}

// InRoom reports whether the mirror currently tracks a room.
func (s Snapshot) InRoom() bool { return s.Room.RoomID != "" }

// View is the local mirror of one room. The session goroutine and the
// debounce/batch timers write to it; consumers read copies via Snapshot.
type View struct {
	mu   sync.Mutex
	s    Snapshot
	seat map[string]int // player id -> index into s.Players
}

func newView() *View {
	return &View{seat: make(map[string]int)}
}

// Snapshot returns a copy safe to keep across further updates.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.s
	out.Players = append([]Player(nil), v.s.Players...)
	out.Rankings = append([]protocol.ResultEntry(nil), v.s.Rankings...)
	out.Chat = append([]protocol.ChatMessage(nil), v.s.Chat...)
	return out
}

func (v *View) roomID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.s.Room.RoomID
}

// applyJoined replaces the mirror with the authoritative join snapshot.
// Chat, latency, and identity survive a resume.
func (v *View) applyJoined(rj protocol.RoomJoined) {
	v.mu.Lock()
	defer v.mu.Unlock()
	chat, lat := v.s.Chat, v.s.LatencyMs
	v.s = Snapshot{
		You:       rj.You,
		Room:      rj.Room,
		Settings:  rj.Settings,
		State:     rj.Room.State,
		Chat:      chat,
		LatencyMs: lat,
	}
	v.seat = make(map[string]int)
	v.setPlayersLocked(rj.Players)
}

// clearRoom empties the mirror but keeps identity, chat, and latency.
func (v *View) clearRoom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.s = Snapshot{You: v.s.You, Chat: v.s.Chat, LatencyMs: v.s.LatencyMs}
	v.seat = make(map[string]int)
}

// setPlayersLocked replaces the roster, carrying client-side extras over for
// players that stay. Caller holds mu.
func (v *View) setPlayersLocked(ps []protocol.PlayerInfo) {
	old := v.seat
	prev := v.s.Players
	rows := make([]Player, len(ps))
	v.seat = make(map[string]int, len(ps))
	for i, p := range ps {
		rows[i] = Player{PlayerInfo: p}
		if j, ok := old[p.PlayerID]; ok && j < len(prev) {
			rows[i].LastDeathCause = prev[j].LastDeathCause
			rows[i].KilledBy = prev[j].KilledBy
		}
		v.seat[p.PlayerID] = i
	}
	v.s.Players = rows
	v.s.Room.Players = len(rows)
}

func (v *View) applyPlayers(ps []protocol.PlayerInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setPlayersLocked(ps)
}

func (v *View) applyPlayerJoined(p protocol.PlayerInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i, ok := v.seat[p.PlayerID]; ok {
		v.s.Players[i] = Player{PlayerInfo: p}
		return
	}
	v.seat[p.PlayerID] = len(v.s.Players)
	v.s.Players = append(v.s.Players, Player{PlayerInfo: p})
	v.s.Room.Players = len(v.s.Players)
}

func (v *View) applyPlayerLeft(pl protocol.PlayerLeft) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i, ok := v.seat[pl.PlayerID]; ok {
		v.s.Players = append(v.s.Players[:i], v.s.Players[i+1:]...)
		delete(v.seat, pl.PlayerID)
		for j := i; j < len(v.s.Players); j++ {
			v.seat[v.s.Players[j].PlayerID] = j
		}
		v.s.Room.Players = len(v.s.Players)
	}
	if pl.NewHost != "" {
		for i := range v.s.Players {
			v.s.Players[i].Host = v.s.Players[i].PlayerID == pl.NewHost
		}
	}
}

func (v *View) applyState(sc protocol.RoomStateChanged) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.s.State = sc.State
	v.s.Room.State = sc.State
	v.s.StateReason = sc.Reason
	switch sc.State {
	case protocol.StateCountdown:
		v.s.CountdownSec = int((sc.CountdownMs + 999) / 1000)
	case protocol.StatePlaying:
		v.s.CountdownSec = 0
		v.s.Rankings = nil
		v.s.EndReason = ""
		v.s.DurationMs = 0
		for i := range v.s.Players {
			v.s.Players[i].LastDeathCause = ""
			v.s.Players[i].KilledBy = ""
		}
	}
}

func (v *View) applyCountdown(t protocol.CountdownTick) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.s.CountdownSec = t.Remaining
}

func (v *View) applyRoundTime(rt protocol.RoundTime) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.s.RoundSec = rt.RemainingSec
}

// applyGame is the debounced landing point for per-tick snapshots.
func (v *View) applyGame(u protocol.GameUpdate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.s.Game = &u
}

// applyDeltas is the batched landing point for per-player changes.
func (v *View) applyDeltas(ds []playerDelta) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, d := range ds {
		i, ok := v.seat[d.playerID]
		if !ok {
			continue
		}
		p := &v.s.Players[i]
		if d.alive != nil {
			p.Alive = *d.alive
		}
		if d.cause != nil {
			p.LastDeathCause = *d.cause
		}
		if d.killedBy != nil {
			p.KilledBy = *d.killedBy
		}
	}
}

func (v *View) applyRoundEnded(re protocol.RoundEnded) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.s.Rankings = re.Rankings
	v.s.EndReason = re.Reason
	v.s.DurationMs = re.Duration
	v.s.RoundSec = 0
}

// applyReset drops round artifacts; the surrounding RoomState frames move
// the lifecycle and a PlayersUpdate rebuilds the roster right after.
func (v *View) applyReset(protocol.GameReset) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.s.Game = nil
	v.s.Rankings = nil
	v.s.EndReason = ""
	v.s.DurationMs = 0
	v.s.CountdownSec = 0
	v.s.RoundSec = 0
	for i := range v.s.Players {
		v.s.Players[i].LastDeathCause = ""
		v.s.Players[i].KilledBy = ""
	}
}

func (v *View) applyChat(m protocol.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.s.Chat) >= chatBacklog {
		v.s.Chat = append(v.s.Chat[:0], v.s.Chat[1:]...)
	}
	v.s.Chat = append(v.s.Chat, m)
}

func (v *View) applyLatency(ms int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.s.LatencyMs = ms
}
