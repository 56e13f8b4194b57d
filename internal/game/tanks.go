package game

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// Tanks tuning. Ticks run at 20 Hz.
const (
	tanksArenaW = 800.0
	tanksArenaH = 600.0
	tankRadius  = 16.0
	tankSpeed   = 4.0
	projSpeed   = 12.0

	tankMaxHealth    = 100
	tankHitDamage    = 25
	tankShotCooldown = 6 // ticks
	tankKillScore    = 1

	tanksDefaultRoundSec = 120
	tanksTransformEvery  = 20 * time.Second
	tanksRespawnDelay    = 3 * time.Second
)

// beats returns the class att deals damage to. The relation is cyclic:
// flame > frost > volt > flame; every other pairing deals nothing.
func beats(att protocol.TankClass) protocol.TankClass {
	switch att {
	case protocol.ClassFlame:
		return protocol.ClassFrost
	case protocol.ClassFrost:
		return protocol.ClassVolt
	default:
		return protocol.ClassFlame
	}
}

func classDamage(att, def protocol.TankClass) int {
	if beats(att) == def {
		return tankHitDamage
	}
	return 0
}

type tank struct {
	x, y    float64
	facing  protocol.Direction
	heading protocol.Direction // empty while standing still
	class   protocol.TankClass
	health  int
	kills   int

	respawnAt time.Time // zero while alive
	lastShot  uint64
}

type projectile struct {
	id      string
	ownerID string
	x, y    float64
	dx, dy  float64
	class   protocol.TankClass
}

type tanksGame struct {
	rng     *rand.Rand
	players map[string]*PlayerState
	order   []string
	tanks   map[string]*tank
	shots   []*projectile

	tick          uint64
	projSeq       int
	startedAt     time.Time
	roundDur      time.Duration
	lastTransform time.Time
	lastRoundSec  int
}

func newTanksGame(settings protocol.RoomSettings, rng *rand.Rand) *tanksGame {
	roundSec := settings.RoundSeconds
	if roundSec <= 0 {
		roundSec = tanksDefaultRoundSec
	}
	return &tanksGame{
		rng:      rng,
		players:  make(map[string]*PlayerState),
		tanks:    make(map[string]*tank),
		roundDur: time.Duration(roundSec) * time.Second,
	}
}

func (g *tanksGame) Type() protocol.GameType     { return protocol.GameTanks }
func (g *tanksGame) TickInterval() time.Duration { return specs[protocol.GameTanks].Tick }

var classCycle = []protocol.TankClass{protocol.ClassFlame, protocol.ClassFrost, protocol.ClassVolt}

func nextClass(c protocol.TankClass) protocol.TankClass {
	for i, cc := range classCycle {
		if cc == c {
			return classCycle[(i+1)%len(classCycle)]
		}
	}
	return classCycle[0]
}

func (g *tanksGame) Init(players []*PlayerState, now time.Time) {
	g.players = make(map[string]*PlayerState, len(players))
	g.order = g.order[:0]
	g.tanks = make(map[string]*tank, len(players))
	g.shots = nil
	g.tick = 0
	g.startedAt = now
	g.lastTransform = now
	g.lastRoundSec = int(g.roundDur.Seconds())

	for i, p := range players {
		p.Alive = true
		p.Score = 0
		g.players[p.ID] = p
		g.order = append(g.order, p.ID)

		t := &tank{
			x:      float64(i+1) * tanksArenaW / float64(len(players)+1),
			class:  classCycle[i%len(classCycle)],
			health: tankMaxHealth,
		}
		if i%2 == 0 {
			t.y, t.facing = tanksArenaH/4, protocol.DirDown
		} else {
			t.y, t.facing = 3*tanksArenaH/4, protocol.DirUp
		}
		g.tanks[p.ID] = t
	}
}

func (g *tanksGame) Command(playerID string, cmd Command, now time.Time) ([]Event, error) {
	p, ok := g.players[playerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	t := g.tanks[playerID]
	if !p.Alive || t == nil {
		return nil, ErrNotAlive
	}

	switch cmd.Type {
	case CmdMove:
		if !cmd.Dir.Valid() {
			return nil, ErrUnsupportedCommand
		}
		t.facing = cmd.Dir
		t.heading = cmd.Dir
		return nil, nil

	case CmdShoot:
		// lastShot stores tick+1 so a shot on tick zero still arms the cooldown.
		if t.lastShot > 0 && g.tick+1-t.lastShot < tankShotCooldown {
			return nil, nil // still cooling down; not an error, just dropped
		}
		t.lastShot = g.tick + 1
		dx, dy := dirDelta(t.facing)
		g.projSeq++
		g.shots = append(g.shots, &projectile{
			id:      fmt.Sprintf("sh%d", g.projSeq),
			ownerID: playerID,
			x:       t.x + float64(dx)*(tankRadius+2),
			y:       t.y + float64(dy)*(tankRadius+2),
			dx:      float64(dx) * projSpeed,
			dy:      float64(dy) * projSpeed,
			class:   t.class, // the firer's class at fire time sticks to the shell
		})
		return nil, nil

	default:
		return nil, ErrUnsupportedCommand
	}
}

func (g *tanksGame) Step(now time.Time) []Event {
	g.tick++
	var evs []Event

	evs = append(evs, g.respawns(now)...)

	for _, id := range g.order {
		p := g.players[id]
		t := g.tanks[id]
		if p == nil || t == nil || !p.Alive || !p.Connected || t.heading == "" {
			continue
		}
		dx, dy := dirDelta(t.heading)
		t.x = clamp(t.x+float64(dx)*tankSpeed, tankRadius, tanksArenaW-tankRadius)
		t.y = clamp(t.y+float64(dy)*tankSpeed, tankRadius, tanksArenaH-tankRadius)
	}

	evs = append(evs, g.advanceShots(now)...)
	evs = append(evs, g.transform(now)...)
	evs = append(evs, g.roundClock(now)...)
	return evs
}

func (g *tanksGame) respawns(now time.Time) []Event {
	var evs []Event
	for _, id := range g.order {
		p := g.players[id]
		t := g.tanks[id]
		if p == nil || t == nil || p.Alive || t.respawnAt.IsZero() || now.Before(t.respawnAt) {
			continue
		}
		// Persistent-round mode: the tank returns but its score and kill
		// count start over while the round clock keeps running.
		t.respawnAt = time.Time{}
		t.health = tankMaxHealth
		t.heading = ""
		t.kills = 0
		t.x = tankRadius + g.rng.Float64()*(tanksArenaW-2*tankRadius)
		t.y = tankRadius + g.rng.Float64()*(tanksArenaH-2*tankRadius)
		p.Alive = true
		p.Score = 0
		evs = append(evs, Event{T: protocol.MsgPlayerRespawned, P: protocol.PlayerRespawned{PlayerID: id, Class: t.class}})
	}
	return evs
}

func (g *tanksGame) advanceShots(now time.Time) []Event {
	var evs []Event
	kept := g.shots[:0]
	for _, sh := range g.shots {
		sh.x += sh.dx
		sh.y += sh.dy
		if sh.x < 0 || sh.x > tanksArenaW || sh.y < 0 || sh.y > tanksArenaH {
			continue
		}
		hitID := ""
		for _, id := range g.order {
			if id == sh.ownerID {
				continue
			}
			p := g.players[id]
			t := g.tanks[id]
			if p == nil || t == nil || !p.Alive {
				continue
			}
			ddx, ddy := sh.x-t.x, sh.y-t.y
			if ddx*ddx+ddy*ddy <= tankRadius*tankRadius {
				hitID = id
				break
			}
		}
		if hitID == "" {
			kept = append(kept, sh)
			continue
		}
		evs = append(evs, g.resolveHit(sh, hitID, now)...)
	}
	g.shots = kept
	return evs
}

func (g *tanksGame) resolveHit(sh *projectile, targetID string, now time.Time) []Event {
	target := g.tanks[targetID]
	tp := g.players[targetID]
	dmg := classDamage(sh.class, target.class)
	if dmg == 0 {
		return []Event{{T: protocol.MsgPlayerShot, P: protocol.PlayerShot{
			PlayerID: sh.ownerID, TargetID: targetID, NoDamage: true,
		}}}
	}
	target.health -= dmg
	evs := []Event{{T: protocol.MsgPlayerShot, P: protocol.PlayerShot{
		PlayerID: sh.ownerID, TargetID: targetID, Damage: dmg,
	}}}
	if target.health > 0 {
		return evs
	}
	tp.Alive = false
	target.health = 0
	target.respawnAt = now.Add(tanksRespawnDelay)
	if killer := g.tanks[sh.ownerID]; killer != nil {
		killer.kills++
	}
	if kp := g.players[sh.ownerID]; kp != nil {
		kp.Score += tankKillScore
	}
	evs = append(evs,
		Event{T: protocol.MsgPlayerDied, P: protocol.PlayerDied{PlayerID: targetID, Cause: "shot", KillerID: sh.ownerID}},
		Event{T: protocol.MsgPlayerKilled, P: protocol.PlayerKilled{VictimID: targetID, KillerID: sh.ownerID}},
	)
	return evs
}

// transform rotates every tank's class one step around the cycle. Shells in
// flight keep the class they were fired with.
func (g *tanksGame) transform(now time.Time) []Event {
	if now.Sub(g.lastTransform) < tanksTransformEvery {
		return nil
	}
	g.lastTransform = now
	changes := make(map[string]protocol.TankClass, len(g.tanks))
	for _, id := range g.order {
		t := g.tanks[id]
		if t == nil {
			continue
		}
		t.class = nextClass(t.class)
		changes[id] = t.class
	}
	if len(changes) == 0 {
		return nil
	}
	return []Event{{T: protocol.MsgTypeChanged, P: protocol.TypeChanged{Classes: changes}}}
}

func (g *tanksGame) roundClock(now time.Time) []Event {
	remaining := g.roundDur - now.Sub(g.startedAt)
	sec := int(remaining.Seconds())
	if sec < 0 {
		sec = 0
	}
	if sec == g.lastRoundSec {
		return nil
	}
	g.lastRoundSec = sec
	return []Event{{T: protocol.MsgRoundTime, P: protocol.RoundTime{RemainingSec: sec}}}
}

func (g *tanksGame) Terminal(now time.Time) (string, bool) {
	if now.Sub(g.startedAt) >= g.roundDur {
		return protocol.RoundReasonTimeUp, true
	}
	return "", false
}

func (g *tanksGame) Results() []protocol.ResultEntry {
	ids := append([]string(nil), g.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := g.players[ids[i]], g.players[ids[j]]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return g.tanks[ids[i]].kills > g.tanks[ids[j]].kills
	})
	out := make([]protocol.ResultEntry, 0, len(ids))
	for i, id := range ids {
		p := g.players[id]
		out = append(out, protocol.ResultEntry{
			Rank: i + 1, PlayerID: id, Name: p.Name,
			Score: p.Score, Kills: g.tanks[id].kills,
		})
	}
	return out
}

func (g *tanksGame) Snapshot(tick uint64) protocol.GameUpdate {
	state := &protocol.TanksState{Width: tanksArenaW, Height: tanksArenaH}
	now := time.Now()
	for _, id := range g.order {
		p := g.players[id]
		t := g.tanks[id]
		if p == nil || t == nil {
			continue
		}
		view := protocol.TankView{
			PlayerID: id, X: t.x, Y: t.y, Facing: t.facing,
			Class: t.class, Health: t.health, Alive: p.Alive, Kills: t.kills,
		}
		if !p.Alive && !t.respawnAt.IsZero() {
			if ms := t.respawnAt.Sub(now).Milliseconds(); ms > 0 {
				view.RespawnMs = ms
			}
		}
		state.Tanks = append(state.Tanks, view)
	}
	for _, sh := range g.shots {
		state.Projectiles = append(state.Projectiles, protocol.ProjectileView{
			ID: sh.id, OwnerID: sh.ownerID, X: sh.x, Y: sh.y, Class: sh.class,
		})
	}
	return protocol.GameUpdate{Tick: tick, Tanks: state}
}

func (g *tanksGame) RemovePlayer(playerID string, now time.Time) []Event {
	if p := g.players[playerID]; p != nil {
		p.Alive = false
	}
	delete(g.tanks, playerID)
	delete(g.players, playerID)
	for i, id := range g.order {
		if id == playerID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	kept := g.shots[:0]
	for _, sh := range g.shots {
		if sh.ownerID != playerID {
			kept = append(kept, sh)
		}
	}
	g.shots = kept
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
