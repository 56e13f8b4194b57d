package game

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// Snake tuning. Ticks run at 8 Hz.
const (
	snakeGridW      = 32
	snakeGridH      = 24
	snakeStartLen   = 3
	snakeFoodTarget = 3
	snakeHazardGap  = 40 // ticks between hazard spawns
	snakeHazardTTL  = 64
	snakeWeaponGap  = 56
	snakeArmorGap   = 72
	snakeShotRange  = 8
	snakeShotAmmo   = 3
	snakeArmorTicks = 80 // active armor duration

	snakeFoodScore = 1
	snakeKillScore = 3
)

type snakeBody struct {
	cells   []protocol.Cell // head first; nil once dead
	dir     protocol.Direction
	pending protocol.Direction
	growth  int
	shots   int

	armorHeld   bool
	armorActive uint64 // tick the charge expires at; 0 = inactive
}

type powerUp struct {
	id        string
	kind      string
	cell      protocol.Cell
	expiresAt uint64 // 0 = persists until collected
}

type snakeGame struct {
	rng      *rand.Rand
	players  map[string]*PlayerState
	order    []string
	snakes   map[string]*snakeBody
	powerUps map[string]*powerUp

	tick       uint64
	puSeq      int
	lastHazard uint64
	lastWeapon uint64
	lastArmor  uint64
}

func newSnakeGame(rng *rand.Rand) *snakeGame {
	return &snakeGame{
		rng:      rng,
		players:  make(map[string]*PlayerState),
		snakes:   make(map[string]*snakeBody),
		powerUps: make(map[string]*powerUp),
	}
}

func (g *snakeGame) Type() protocol.GameType     { return protocol.GameSnake }
func (g *snakeGame) TickInterval() time.Duration { return specs[protocol.GameSnake].Tick }

func (g *snakeGame) Init(players []*PlayerState, now time.Time) {
	g.players = make(map[string]*PlayerState, len(players))
	g.order = g.order[:0]
	g.snakes = make(map[string]*snakeBody, len(players))
	g.powerUps = make(map[string]*powerUp)
	g.tick = 0
	g.lastHazard, g.lastWeapon, g.lastArmor = 0, 0, 0

	for i, p := range players {
		p.Alive = true
		p.Score = 0
		g.players[p.ID] = p
		g.order = append(g.order, p.ID)

		// Alternate sides so snakes start apart, heads pointing inward.
		row := (i + 1) * snakeGridH / (len(players) + 1)
		s := &snakeBody{shots: 0}
		if i%2 == 0 {
			s.dir, s.pending = protocol.DirRight, protocol.DirRight
			for k := 0; k < snakeStartLen; k++ {
				s.cells = append(s.cells, protocol.Cell{X: snakeStartLen + 2 - k, Y: row})
			}
		} else {
			s.dir, s.pending = protocol.DirLeft, protocol.DirLeft
			for k := 0; k < snakeStartLen; k++ {
				s.cells = append(s.cells, protocol.Cell{X: snakeGridW - 3 - snakeStartLen + k, Y: row})
			}
		}
		g.snakes[p.ID] = s
	}

	for len(g.foodIDs()) < snakeFoodTarget {
		g.spawnPowerUp(protocol.PowerUpFood, 0)
	}
}

func dirDelta(d protocol.Direction) (int, int) {
	switch d {
	case protocol.DirUp:
		return 0, -1
	case protocol.DirDown:
		return 0, 1
	case protocol.DirLeft:
		return -1, 0
	default:
		return 1, 0
	}
}

func opposite(a, b protocol.Direction) bool {
	switch a {
	case protocol.DirUp:
		return b == protocol.DirDown
	case protocol.DirDown:
		return b == protocol.DirUp
	case protocol.DirLeft:
		return b == protocol.DirRight
	case protocol.DirRight:
		return b == protocol.DirLeft
	}
	return false
}

func (g *snakeGame) Command(playerID string, cmd Command, now time.Time) ([]Event, error) {
	p, ok := g.players[playerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	s := g.snakes[playerID]
	if !p.Alive || s == nil {
		return nil, ErrNotAlive
	}

	switch cmd.Type {
	case CmdMove:
		if !cmd.Dir.Valid() {
			return nil, ErrUnsupportedCommand
		}
		// Staged: takes effect at the next tick. Reversing onto the own neck
		// is ignored rather than rejected.
		if len(s.cells) > 1 && opposite(s.dir, cmd.Dir) {
			return nil, nil
		}
		s.pending = cmd.Dir
		return nil, nil

	case CmdShoot:
		if s.shots <= 0 {
			return nil, ErrNoShots
		}
		s.shots--
		return g.resolveShot(playerID, s), nil

	case CmdArmor:
		if !s.armorHeld {
			return nil, ErrNoArmor
		}
		s.armorHeld = false
		s.armorActive = g.tick + snakeArmorTicks
		return []Event{{T: protocol.MsgArmorActivated, P: protocol.ArmorActivated{PlayerID: playerID}}}, nil

	default:
		return nil, ErrUnsupportedCommand
	}
}

// resolveShot traces a ray from the shooter's head, one cell at a time, until
// it hits another snake, a wall, or the travel limit. The shooter's own body
// does not block the shot.
func (g *snakeGame) resolveShot(shooterID string, s *snakeBody) []Event {
	dx, dy := dirDelta(s.dir)
	cur := s.cells[0]
	for step := 0; step < snakeShotRange; step++ {
		cur.X += dx
		cur.Y += dy
		if cur.X < 0 || cur.X >= snakeGridW || cur.Y < 0 || cur.Y >= snakeGridH {
			break
		}
		for _, id := range g.order {
			if id == shooterID {
				continue
			}
			target := g.snakes[id]
			if target == nil || target.cells == nil {
				continue
			}
			if !containsCell(target.cells, cur) {
				continue
			}
			hit := []Event{{T: protocol.MsgPlayerShot, P: protocol.PlayerShot{PlayerID: shooterID, TargetID: id}}}
			if target.armorActive > 0 && g.tick < target.armorActive {
				target.armorActive = 0
				hit = append(hit, Event{T: protocol.MsgArmorUsed, P: protocol.ArmorUsed{PlayerID: id, BlockedID: shooterID}})
				return hit
			}
			hit = append(hit, g.kill(id, "shot", shooterID)...)
			if shooter := g.players[shooterID]; shooter != nil {
				shooter.Score += snakeKillScore
			}
			return hit
		}
	}
	return []Event{{T: protocol.MsgPlayerShot, P: protocol.PlayerShot{PlayerID: shooterID}}}
}

func (g *snakeGame) kill(id, cause, killerID string) []Event {
	p := g.players[id]
	s := g.snakes[id]
	if p == nil || s == nil || !p.Alive {
		return nil
	}
	p.Alive = false
	s.cells = nil
	evs := []Event{{T: protocol.MsgPlayerDied, P: protocol.PlayerDied{PlayerID: id, Cause: cause, KillerID: killerID}}}
	if killerID != "" {
		evs = append(evs, Event{T: protocol.MsgPlayerKilled, P: protocol.PlayerKilled{VictimID: id, KillerID: killerID}})
	}
	return evs
}

// Step advances every alive snake one cell and resolves collisions in a fixed
// order: wall, then self, then head-to-head (both die), then head-to-body
// (the mover dies). Pickups apply only to snakes that survived the move.
func (g *snakeGame) Step(now time.Time) []Event {
	g.tick++
	var evs []Event

	type move struct {
		id      string
		s       *snakeBody
		newHead protocol.Cell
	}
	var moves []move
	for _, id := range g.order {
		p := g.players[id]
		s := g.snakes[id]
		if p == nil || s == nil || !p.Alive {
			continue
		}
		if !(len(s.cells) > 1 && opposite(s.dir, s.pending)) {
			s.dir = s.pending
		}
		dx, dy := dirDelta(s.dir)
		moves = append(moves, move{id: id, s: s, newHead: protocol.Cell{X: s.cells[0].X + dx, Y: s.cells[0].Y + dy}})
	}

	dead := make(map[string]struct{})
	killer := make(map[string]string)
	cause := make(map[string]string)
	mark := func(id, why, by string) {
		if _, done := dead[id]; done {
			return
		}
		dead[id] = struct{}{}
		cause[id] = why
		killer[id] = by
	}

	// Wall.
	for _, m := range moves {
		if m.newHead.X < 0 || m.newHead.X >= snakeGridW || m.newHead.Y < 0 || m.newHead.Y >= snakeGridH {
			mark(m.id, "wall", "")
		}
	}
	// Self: the tail cell vacates this tick unless the snake is growing.
	for _, m := range moves {
		if _, done := dead[m.id]; done {
			continue
		}
		trunk := m.s.cells
		if m.s.growth == 0 && len(trunk) > 0 {
			trunk = trunk[:len(trunk)-1]
		}
		if containsCell(trunk, m.newHead) {
			mark(m.id, "self", "")
		}
	}
	// Head-to-head: every claimant of a contested cell dies.
	claims := make(map[protocol.Cell][]string)
	for _, m := range moves {
		if _, done := dead[m.id]; done {
			continue
		}
		claims[m.newHead] = append(claims[m.newHead], m.id)
	}
	for _, ids := range claims {
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			mark(id, "head_on", "")
		}
	}
	// Head-to-body against the other snakes' pre-move cells.
	for _, m := range moves {
		if _, done := dead[m.id]; done {
			continue
		}
		for _, otherID := range g.order {
			if otherID == m.id {
				continue
			}
			other := g.snakes[otherID]
			op := g.players[otherID]
			if other == nil || op == nil || !op.Alive || other.cells == nil {
				continue
			}
			trunk := other.cells
			if _, otherDies := dead[otherID]; !otherDies && other.growth == 0 && len(trunk) > 0 {
				trunk = trunk[:len(trunk)-1]
			}
			if containsCell(trunk, m.newHead) {
				mark(m.id, "snake", otherID)
				break
			}
		}
	}

	// Apply moves for survivors, then pickups.
	for _, m := range moves {
		if _, done := dead[m.id]; done {
			continue
		}
		m.s.cells = append([]protocol.Cell{m.newHead}, m.s.cells...)
		if m.s.growth > 0 {
			m.s.growth--
		} else {
			m.s.cells = m.s.cells[:len(m.s.cells)-1]
		}
		evs = append(evs, g.collectAt(m.id, m.s, m.newHead, dead, cause)...)
	}

	for _, id := range g.order {
		if _, done := dead[id]; !done {
			continue
		}
		evs = append(evs, g.kill(id, cause[id], killer[id])...)
	}

	evs = append(evs, g.expireArmor()...)
	evs = append(evs, g.expirePowerUps()...)
	evs = append(evs, g.spawnCycle()...)
	return evs
}

func (g *snakeGame) collectAt(id string, s *snakeBody, head protocol.Cell, dead map[string]struct{}, cause map[string]string) []Event {
	var evs []Event
	for puID, pu := range g.powerUps {
		if pu.cell != head {
			continue
		}
		delete(g.powerUps, puID)
		switch pu.kind {
		case protocol.PowerUpFood:
			s.growth++
			if p := g.players[id]; p != nil {
				p.Score += snakeFoodScore
			}
		case protocol.PowerUpHazard:
			dead[id] = struct{}{}
			cause[id] = "hazard"
		case protocol.PowerUpWeapon:
			s.shots += snakeShotAmmo
		case protocol.PowerUpArmor:
			s.armorHeld = true
		}
		evs = append(evs, Event{T: protocol.MsgPowerUpCollected, P: protocol.PowerUpCollected{ID: puID, PlayerID: id, Kind: pu.kind}})
		break
	}
	return evs
}

func (g *snakeGame) expireArmor() []Event {
	var evs []Event
	for _, id := range g.order {
		s := g.snakes[id]
		if s == nil || s.armorActive == 0 {
			continue
		}
		if g.tick >= s.armorActive {
			s.armorActive = 0
			evs = append(evs, Event{T: protocol.MsgArmorExpired, P: protocol.ArmorExpired{PlayerID: id}})
		}
	}
	return evs
}

func (g *snakeGame) expirePowerUps() []Event {
	var expired []string
	for id, pu := range g.powerUps {
		if pu.expiresAt > 0 && g.tick >= pu.expiresAt {
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	var evs []Event
	for _, id := range expired {
		delete(g.powerUps, id)
		evs = append(evs, Event{T: protocol.MsgPowerUpRemoved, P: protocol.PowerUpRemoved{ID: id, Reason: "expired"}})
	}
	return evs
}

func (g *snakeGame) spawnCycle() []Event {
	var evs []Event
	for len(g.foodIDs()) < snakeFoodTarget {
		if ev, ok := g.spawnPowerUp(protocol.PowerUpFood, 0); ok {
			evs = append(evs, ev)
		} else {
			break
		}
	}
	if g.tick-g.lastHazard >= snakeHazardGap {
		if ev, ok := g.spawnPowerUp(protocol.PowerUpHazard, g.tick+snakeHazardTTL); ok {
			g.lastHazard = g.tick
			evs = append(evs, ev)
		}
	}
	if g.tick-g.lastWeapon >= snakeWeaponGap && !g.hasKind(protocol.PowerUpWeapon) {
		if ev, ok := g.spawnPowerUp(protocol.PowerUpWeapon, 0); ok {
			g.lastWeapon = g.tick
			evs = append(evs, ev)
		}
	}
	if g.tick-g.lastArmor >= snakeArmorGap && !g.hasKind(protocol.PowerUpArmor) {
		if ev, ok := g.spawnPowerUp(protocol.PowerUpArmor, 0); ok {
			g.lastArmor = g.tick
			evs = append(evs, ev)
		}
	}
	return evs
}

func (g *snakeGame) hasKind(kind string) bool {
	for _, pu := range g.powerUps {
		if pu.kind == kind {
			return true
		}
	}
	return false
}

func (g *snakeGame) foodIDs() []string {
	var ids []string
	for id, pu := range g.powerUps {
		if pu.kind == protocol.PowerUpFood {
			ids = append(ids, id)
		}
	}
	return ids
}

func (g *snakeGame) spawnPowerUp(kind string, expiresAt uint64) (Event, bool) {
	cell, ok := g.freeCell()
	if !ok {
		return Event{}, false
	}
	g.puSeq++
	pu := &powerUp{id: fmt.Sprintf("pu%d", g.puSeq), kind: kind, cell: cell, expiresAt: expiresAt}
	g.powerUps[pu.id] = pu
	view := protocol.PowerUpView{ID: pu.id, Kind: kind, Cell: cell}
	if expiresAt > 0 {
		view.TTL = int(expiresAt - g.tick)
	}
	return Event{T: protocol.MsgPowerUpSpawned, P: protocol.PowerUpSpawned{PowerUp: view}}, true
}

func (g *snakeGame) freeCell() (protocol.Cell, bool) {
	occupied := func(c protocol.Cell) bool {
		for _, s := range g.snakes {
			if containsCell(s.cells, c) {
				return true
			}
		}
		for _, pu := range g.powerUps {
			if pu.cell == c {
				return true
			}
		}
		return false
	}
	for attempt := 0; attempt < 64; attempt++ {
		c := protocol.Cell{X: g.rng.Intn(snakeGridW), Y: g.rng.Intn(snakeGridH)}
		if !occupied(c) {
			return c, true
		}
	}
	for y := 0; y < snakeGridH; y++ {
		for x := 0; x < snakeGridW; x++ {
			if c := (protocol.Cell{X: x, Y: y}); !occupied(c) {
				return c, true
			}
		}
	}
	return protocol.Cell{}, false
}

func (g *snakeGame) Terminal(now time.Time) (string, bool) {
	alive := 0
	for _, p := range g.players {
		if p.Alive {
			alive++
		}
	}
	if alive <= 1 {
		return protocol.RoundReasonLastAlive, true
	}
	return "", false
}

func (g *snakeGame) Results() []protocol.ResultEntry {
	ids := append([]string(nil), g.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := g.players[ids[i]], g.players[ids[j]]
		if a.Alive != b.Alive {
			return a.Alive
		}
		return a.Score > b.Score
	})
	out := make([]protocol.ResultEntry, 0, len(ids))
	for i, id := range ids {
		p := g.players[id]
		out = append(out, protocol.ResultEntry{Rank: i + 1, PlayerID: id, Name: p.Name, Score: p.Score})
	}
	return out
}

func (g *snakeGame) Snapshot(tick uint64) protocol.GameUpdate {
	state := &protocol.SnakeState{Width: snakeGridW, Height: snakeGridH}
	for _, id := range g.order {
		p := g.players[id]
		s := g.snakes[id]
		if p == nil || s == nil {
			continue
		}
		state.Snakes = append(state.Snakes, protocol.SnakeView{
			PlayerID: id,
			Body:     append([]protocol.Cell(nil), s.cells...),
			Dir:      s.dir,
			Alive:    p.Alive,
			Shots:    s.shots,
			Armor:    s.armorHeld || (s.armorActive > 0 && g.tick < s.armorActive),
		})
	}
	var puIDs []string
	for id := range g.powerUps {
		puIDs = append(puIDs, id)
	}
	sort.Strings(puIDs)
	for _, id := range puIDs {
		pu := g.powerUps[id]
		view := protocol.PowerUpView{ID: pu.id, Kind: pu.kind, Cell: pu.cell}
		if pu.expiresAt > g.tick {
			view.TTL = int(pu.expiresAt - g.tick)
		}
		state.PowerUps = append(state.PowerUps, view)
	}
	return protocol.GameUpdate{Tick: tick, Snake: state}
}

func (g *snakeGame) RemovePlayer(playerID string, now time.Time) []Event {
	if s := g.snakes[playerID]; s != nil {
		s.cells = nil
	}
	if p := g.players[playerID]; p != nil {
		p.Alive = false
	}
	delete(g.snakes, playerID)
	delete(g.players, playerID)
	for i, id := range g.order {
		if id == playerID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

func containsCell(cells []protocol.Cell, c protocol.Cell) bool {
	for _, cc := range cells {
		if cc == c {
			return true
		}
	}
	return false
}
