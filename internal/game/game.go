// Package game holds the per-game-type simulation rules. A room selects one
// Engine at creation by game-type tag and drives it from its actor loop, so
// engines are written single-threaded: no engine method is called
// concurrently with another.
package game

import (
	"errors"
	"math/rand"
	"time"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrUnknownPlayer      = errors.New("unknown player")
	ErrNotAlive           = errors.New("player is not alive")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrNoShots            = errors.New("no weapon charges left")
	ErrNoArmor            = errors.New("no armor charge held")
)

// PlayerState is the slice of a room session the simulation owns. The room
// allocates one per session and shares the pointer with the engine; Alive and
// Score are written by the engine, Connected by the room.
type PlayerState struct {
	ID        string
	Name      string
	Alive     bool
	Score     int
	Connected bool
}

type CommandType string

const (
	CmdMove        CommandType = "Move"
	CmdShoot       CommandType = "Shoot"
	CmdArmor       CommandType = "ActivateArmor"
	CmdLevelResult CommandType = "LevelResult"
)

// Command is a game-directed player action, already validated as to room
// lifecycle by the time it reaches an engine.
type Command struct {
	Type    CommandType
	Dir     protocol.Direction
	Success bool
	Deaths  int
}

// Event is something the room should broadcast to its members.
type Event struct {
	T protocol.MsgType
	P any
}

// Engine is the strategy interface behind the three rule sets. Movement
// intents are staged by the engines and drained at the next Step, so one tick
// always observes a consistent input set.
type Engine interface {
	Type() protocol.GameType
	TickInterval() time.Duration

	// Init seeds a fresh round from the given players, in join order.
	Init(players []*PlayerState, now time.Time)

	// Command applies a player action. Errors are typed and non-fatal.
	Command(playerID string, cmd Command, now time.Time) ([]Event, error)

	// Step advances the simulation one tick.
	Step(now time.Time) []Event

	// Terminal reports whether the round has ended and why.
	Terminal(now time.Time) (reason string, done bool)

	// Results ranks the round for the RESULTS broadcast.
	Results() []protocol.ResultEntry

	// Snapshot builds the wire view for a GameUpdate.
	Snapshot(tick uint64) protocol.GameUpdate

	// RemovePlayer withdraws a player permanently (leave or grace expiry).
	RemovePlayer(playerID string, now time.Time) []Event
}

// Spec describes the fixed envelope of one game type.
type Spec struct {
	Type       protocol.GameType
	MinPlayers int
	MaxCap     int // hard ceiling for MaxPlayers
	DefaultMax int
	Tick       time.Duration
}

var specs = map[protocol.GameType]Spec{
	protocol.GameSnake: {Type: protocol.GameSnake, MinPlayers: 2, MaxCap: 8, DefaultMax: 8, Tick: 125 * time.Millisecond},
	protocol.GameTanks: {Type: protocol.GameTanks, MinPlayers: 2, MaxCap: 6, DefaultMax: 6, Tick: 50 * time.Millisecond},
	protocol.GameTower: {Type: protocol.GameTower, MinPlayers: 2, MaxCap: 8, DefaultMax: 8, Tick: 200 * time.Millisecond},
}

func SpecFor(t protocol.GameType) (Spec, bool) {
	s, ok := specs[t]
	return s, ok
}

// New builds the engine for a game type. The rng seeds spawn positions and
// pickup placement; tests inject a fixed source.
func New(t protocol.GameType, settings protocol.RoomSettings, rng *rand.Rand) (Engine, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	switch t {
	case protocol.GameSnake:
		return newSnakeGame(rng), nil
	case protocol.GameTanks:
		return newTanksGame(settings, rng), nil
	case protocol.GameTower:
		return newTowerGame(settings), nil
	default:
		return nil, errors.New("unknown game type " + string(t))
	}
}
