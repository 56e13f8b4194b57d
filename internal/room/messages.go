package room

import (
	"github.com/dustfall/arcade-backend/internal/game"
	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// Msg is anything the room actor accepts on its inbox.
type Msg interface{ isRoomMsg() }

// Join admits a new player, or resumes an existing session when PlayerID
// names one that is inside its reconnect grace window.
type Join struct {
	ConnID   string
	PlayerID string // empty for a fresh join
	Name     string
	Reply    chan JoinResult
}

type JoinResult struct {
	PlayerID string
	Resumed  bool
	Err      error
}

// Leave is an explicit quit; the session is removed immediately, with no
// grace window.
type Leave struct{ PlayerID string }

// Disconnect reports transport loss for a connection. In LOBBY the session
// goes away; mid-game it is parked until the grace deadline.
type Disconnect struct{ ConnID string }

type Ready struct {
	PlayerID string
	Ready    bool
}

type Start struct{ PlayerID string }

// GameCmd carries a simulation-directed action (move, shoot, armor, level
// result) into the current engine.
type GameCmd struct {
	PlayerID string
	Cmd      game.Command
}

type RematchVote struct {
	PlayerID string
	Rematch  bool
}

type Chat struct {
	PlayerID string
	Text     string
}

// GetInfo replies with the room's public listing entry.
type GetInfo struct{ Reply chan protocol.RoomInfo }

// GetView reflects internal state without data races; used by tests and the
// directory's listings.
type GetView struct{ Reply chan View }

type Shutdown struct{ Reason string }

func (Join) isRoomMsg()        {}
func (Leave) isRoomMsg()       {}
func (Disconnect) isRoomMsg()  {}
func (Ready) isRoomMsg()       {}
func (Start) isRoomMsg()       {}
func (GameCmd) isRoomMsg()     {}
func (RematchVote) isRoomMsg() {}
func (Chat) isRoomMsg()        {}
func (GetInfo) isRoomMsg()     {}
func (GetView) isRoomMsg()     {}
func (Shutdown) isRoomMsg()    {}

// View is a consistent copy of the room for tests and diagnostics.
type View struct {
	ID       string
	Code     string
	GameType protocol.GameType
	State    protocol.RoomState
	HostID   string
	Players  []protocol.PlayerInfo
	Tick     uint64
}
