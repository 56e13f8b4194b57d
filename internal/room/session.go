package room

import (
	"time"

	"github.com/dustfall/arcade-backend/internal/game"
	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// session is one participant's seat in the room. The engine shares the
// embedded PlayerState during a round: it writes Alive and Score, the room
// writes Connected. The room never hands out the transport handle, only the
// connection id, resolved through the registry at send time.
type session struct {
	state  *game.PlayerState
	connID string

	host    bool
	ready   bool
	rematch *bool // nil until voted in the current RESULTS phase

	joinedAt     time.Time
	lastActivity time.Time
	graceUntil   time.Time // zero while connected
}

func (s *session) info() protocol.PlayerInfo {
	return protocol.PlayerInfo{
		PlayerID:  s.state.ID,
		Name:      s.state.Name,
		Host:      s.host,
		Ready:     s.ready,
		Alive:     s.state.Alive,
		Score:     s.state.Score,
		Connected: s.state.Connected,
	}
}
