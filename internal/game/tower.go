package game

import (
	"sort"
	"time"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

const towerDefaultLevels = 10

// towerGame runs one level at a time, 0-based. A single active player
// attempts the current level and reports the outcome; once every queued
// player has had a turn the level advances only if somebody passed,
// otherwise it repeats with the attempt set cleared.
type towerGame struct {
	players map[string]*PlayerState
	order   []string // join order, used for queue rebuilds and ranking ties

	level  int
	levels int
	passed bool // someone cleared the current level this round

	queue     []string // remaining turns for the current level
	attempted map[string]struct{}
	active    string // empty between turns

	watermark map[string]int // highest level passed + 1
	deaths    map[string]int
}

func newTowerGame(settings protocol.RoomSettings) *towerGame {
	levels := settings.Levels
	if levels <= 0 {
		levels = towerDefaultLevels
	}
	return &towerGame{
		players:   make(map[string]*PlayerState),
		levels:    levels,
		attempted: make(map[string]struct{}),
		watermark: make(map[string]int),
		deaths:    make(map[string]int),
	}
}

func (g *towerGame) Type() protocol.GameType     { return protocol.GameTower }
func (g *towerGame) TickInterval() time.Duration { return specs[protocol.GameTower].Tick }

func (g *towerGame) Init(players []*PlayerState, now time.Time) {
	g.players = make(map[string]*PlayerState, len(players))
	g.order = g.order[:0]
	for _, p := range players {
		p.Alive = true
		p.Score = 0
		g.players[p.ID] = p
		g.order = append(g.order, p.ID)
		g.watermark[p.ID] = 0
		g.deaths[p.ID] = 0
	}
	g.level = 0
	g.passed = false
	g.rebuildQueue()
	g.seatNext()
}

func (g *towerGame) Command(playerID string, cmd Command, now time.Time) ([]Event, error) {
	p, ok := g.players[playerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if cmd.Type != CmdLevelResult {
		return nil, ErrUnsupportedCommand
	}
	if playerID != g.active {
		return nil, ErrNotYourTurn
	}

	g.attempted[playerID] = struct{}{}
	d := cmd.Deaths
	if d < 0 {
		d = 0
	}
	if !cmd.Success && d == 0 {
		d = 1 // a failed attempt costs at least one death
	}
	g.deaths[playerID] += d
	if cmd.Success {
		if wm := g.level + 1; wm > g.watermark[playerID] {
			g.watermark[playerID] = wm
			p.Score = wm
		}
		g.passed = true
	}
	g.active = "" // next tick seats the next turn
	return nil, nil
}

// Step does turn housekeeping only; the level attempts themselves happen
// client-side and arrive as level results.
//
// TODO: per-turn clock so a connected but idle active player cannot stall
// the level indefinitely.
func (g *towerGame) Step(now time.Time) []Event {
	if g.active != "" {
		if p := g.players[g.active]; p == nil || !p.Connected {
			g.active = "" // mid-attempt disconnect forfeits the turn
		}
	}
	if g.active == "" && g.level < g.levels {
		g.seatNext()
		if g.active == "" {
			g.roundBoundary()
		}
	}
	return nil
}

// seatNext pops the queue until it finds a connected player who has not
// attempted the current level. Disconnected players are dropped from this
// level's turns; they rejoin the queue at the next rebuild.
func (g *towerGame) seatNext() {
	for len(g.queue) > 0 {
		id := g.queue[0]
		g.queue = g.queue[1:]
		if _, done := g.attempted[id]; done {
			continue
		}
		if p := g.players[id]; p == nil || !p.Connected {
			continue
		}
		g.active = id
		return
	}
}

// roundBoundary runs once the queue is empty: the level advances only if at
// least one player passed it, otherwise the same level repeats.
func (g *towerGame) roundBoundary() {
	if g.passed {
		g.level++
		if g.level >= g.levels {
			return
		}
	}
	g.passed = false
	g.attempted = make(map[string]struct{}, len(g.order))
	g.rebuildQueue()
	g.seatNext()
}

func (g *towerGame) rebuildQueue() {
	g.queue = g.queue[:0]
	for _, id := range g.order {
		if p := g.players[id]; p != nil && p.Connected {
			g.queue = append(g.queue, id)
		}
	}
}

func (g *towerGame) Terminal(now time.Time) (string, bool) {
	if g.level >= g.levels {
		return protocol.RoundReasonLevelsDone, true
	}
	return "", false
}

func (g *towerGame) Results() []protocol.ResultEntry {
	ids := append([]string(nil), g.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		if g.watermark[ids[i]] != g.watermark[ids[j]] {
			return g.watermark[ids[i]] > g.watermark[ids[j]]
		}
		return g.deaths[ids[i]] < g.deaths[ids[j]]
	})
	out := make([]protocol.ResultEntry, 0, len(ids))
	for i, id := range ids {
		out = append(out, protocol.ResultEntry{
			Rank: i + 1, PlayerID: id, Name: g.players[id].Name,
			Score: g.watermark[id], Level: g.watermark[id], Deaths: g.deaths[id],
		})
	}
	return out
}

func (g *towerGame) Snapshot(tick uint64) protocol.GameUpdate {
	state := &protocol.TowerState{
		Level:    g.level,
		Levels:   g.levels,
		ActiveID: g.active,
		Queue:    append([]string(nil), g.queue...),
	}
	queued := make(map[string]struct{}, len(g.queue))
	for _, id := range g.queue {
		queued[id] = struct{}{}
	}
	for _, id := range g.order {
		if _, ok := g.attempted[id]; ok {
			state.Attempted = append(state.Attempted, id)
		}
		_, inQueue := queued[id]
		state.Progress = append(state.Progress, protocol.TowerProgress{
			PlayerID: id,
			Level:    g.watermark[id],
			Deaths:   g.deaths[id],
			InQueue:  inQueue || id == g.active,
		})
	}
	return protocol.GameUpdate{Tick: tick, Tower: state}
}

func (g *towerGame) RemovePlayer(playerID string, now time.Time) []Event {
	delete(g.players, playerID)
	delete(g.watermark, playerID)
	delete(g.deaths, playerID)
	delete(g.attempted, playerID)
	for i, id := range g.order {
		if id == playerID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	for i, id := range g.queue {
		if id == playerID {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			break
		}
	}
	if g.active == playerID {
		g.active = ""
	}
	return nil
}
