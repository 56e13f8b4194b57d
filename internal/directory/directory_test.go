package directory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dustfall/arcade-backend/internal/config"
	"github.com/dustfall/arcade-backend/internal/registry"
	"github.com/dustfall/arcade-backend/internal/room"
	"github.com/dustfall/arcade-backend/pkg/protocol"
)

func newTestDirectory(t *testing.T) (*Directory, *registry.Registry) {
	t.Helper()
	cfg := config.Default()
	cfg.Countdown = time.Hour // keep full rooms parked in COUNTDOWN
	reg := registry.New(64, zap.NewNop())
	t.Cleanup(reg.CloseAll)
	d := New(context.Background(), cfg, reg, zap.NewNop(), nil)
	t.Cleanup(func() { d.Shutdown("") })
	return d, reg
}

func drainConn(c *registry.Conn) {
	go func() {
		for {
			select {
			case <-c.Outbox():
			case <-c.Done():
				return
			}
		}
	}()
}

// joinConn registers a fresh connection and joins it into the room.
func joinConn(t *testing.T, d *Directory, reg *registry.Registry, roomID, name string) (*registry.Conn, room.JoinResult) {
	t.Helper()
	c := reg.Register()
	drainConn(c)
	r, res, err := d.Join(context.Background(), roomID, JoinRequest{ConnID: c.ID, Name: name})
	require.NoError(t, err)
	require.Equal(t, roomID, r.ID())
	return c, res
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"uppercase passthrough", "ABCDEF", "ABCDEF", true},
		{"lowercase", "abcdef", "ABCDEF", true},
		{"surrounding space", "  qwerty ", "QWERTY", true},
		{"digits from alphabet", "A2B3C4", "A2B3C4", true},
		{"too short", "ABC", "", false},
		{"too long", "ABCDEFG", "", false},
		{"zero excluded", "ABC0EF", "", false},
		{"letter O excluded", "ABCOEF", "", false},
		{"one excluded", "ABC1EF", "", false},
		{"letter I excluded", "ABCIEF", "", false},
		{"empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeCode(tc.in)
			if !tc.ok {
				require.Error(t, err)
				require.Equal(t, protocol.CodeInvalidRoomCode, protocol.CodeOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDirectory_Create_AllocatesUniqueCodes(t *testing.T) {
	d, _ := newTestDirectory(t)

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		r, err := d.Create(CreateOptions{GameType: protocol.GameSnake})
		require.NoError(t, err)

		code, err := NormalizeCode(r.Code())
		require.NoError(t, err, "generated code must satisfy its own validation")
		require.Equal(t, r.Code(), code)

		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
	require.Equal(t, 20, d.Len())
}

func TestDirectory_Create_RejectsUnknownGameType(t *testing.T) {
	d, _ := newTestDirectory(t)
	_, err := d.Create(CreateOptions{GameType: protocol.GameType("pinball")})
	require.Equal(t, protocol.CodeBadRequest, protocol.CodeOf(err))
}

func TestDirectory_Join_UnknownRoom(t *testing.T) {
	d, _ := newTestDirectory(t)
	_, _, err := d.Join(context.Background(), "no-such-room", JoinRequest{ConnID: "x"})
	require.Equal(t, protocol.CodeRoomNotFound, protocol.CodeOf(err))
}

func TestDirectory_JoinByCode(t *testing.T) {
	d, reg := newTestDirectory(t)

	r, err := d.Create(CreateOptions{GameType: protocol.GameSnake, Private: true})
	require.NoError(t, err)

	// Private rooms never show up in listings but stay reachable by code.
	require.Empty(t, d.List(protocol.GameSnake))

	c := reg.Register()
	drainConn(c)
	joined, res, err := d.JoinByCode(context.Background(), strings.ToLower(r.Code()), JoinRequest{ConnID: c.ID, Name: "ada"})
	require.NoError(t, err)
	require.Equal(t, r.ID(), joined.ID())
	require.NotEmpty(t, res.PlayerID)

	_, _, err = d.JoinByCode(context.Background(), "ZZZZZZ", JoinRequest{ConnID: "x"})
	require.Equal(t, protocol.CodeRoomNotFound, protocol.CodeOf(err))

	_, _, err = d.JoinByCode(context.Background(), "nope", JoinRequest{ConnID: "x"})
	require.Equal(t, protocol.CodeInvalidRoomCode, protocol.CodeOf(err))
}

func TestDirectory_Join_FullRoomOffersAlternatives(t *testing.T) {
	d, reg := newTestDirectory(t)

	full, err := d.Create(CreateOptions{GameType: protocol.GameTanks, MaxPlayers: 2})
	require.NoError(t, err)
	joinConn(t, d, reg, full.ID(), "a")
	joinConn(t, d, reg, full.ID(), "b")

	partial, err := d.Create(CreateOptions{GameType: protocol.GameTanks})
	require.NoError(t, err)
	joinConn(t, d, reg, partial.ID(), "c")

	empty, err := d.Create(CreateOptions{GameType: protocol.GameTanks})
	require.NoError(t, err)

	// Neither other-game nor private rooms may be offered.
	_, err = d.Create(CreateOptions{GameType: protocol.GameSnake})
	require.NoError(t, err)
	_, err = d.Create(CreateOptions{GameType: protocol.GameTanks, Private: true})
	require.NoError(t, err)

	c := reg.Register()
	drainConn(c)
	_, _, err = d.Join(context.Background(), full.ID(), JoinRequest{ConnID: c.ID, Name: "late"})
	require.Error(t, err)

	perr, ok := protocol.AsError(err)
	require.True(t, ok, "expected a protocol error, got %v", err)
	require.Equal(t, protocol.CodeRoomFull, perr.Code)
	require.Len(t, perr.Alternatives, 2)
	require.Equal(t, partial.ID(), perr.Alternatives[0].RoomID, "fullest joinable room ranks first")
	require.Equal(t, empty.ID(), perr.Alternatives[1].RoomID)
	for _, alt := range perr.Alternatives {
		require.Equal(t, protocol.GameTanks, alt.GameType)
		require.False(t, alt.Private)
		require.Equal(t, protocol.StateLobby, alt.State)
	}
}

func TestDirectory_QuickMatch_PrefersFullestThenCreates(t *testing.T) {
	d, reg := newTestDirectory(t)

	partial, err := d.Create(CreateOptions{GameType: protocol.GameTanks})
	require.NoError(t, err)
	joinConn(t, d, reg, partial.ID(), "a")
	_, err = d.Create(CreateOptions{GameType: protocol.GameTanks}) // empty, ranks below
	require.NoError(t, err)

	c := reg.Register()
	drainConn(c)
	matched, res, err := d.QuickMatch(context.Background(), protocol.GameTanks, JoinRequest{ConnID: c.ID, Name: "b"})
	require.NoError(t, err)
	require.Equal(t, partial.ID(), matched.ID())
	require.NotEmpty(t, res.PlayerID)

	// Nothing hosts snake yet, so quick match opens a room.
	before := d.Len()
	c2 := reg.Register()
	drainConn(c2)
	created, _, err := d.QuickMatch(context.Background(), protocol.GameSnake, JoinRequest{ConnID: c2.ID, Name: "c"})
	require.NoError(t, err)
	require.Equal(t, protocol.GameSnake, created.GameType())
	require.Equal(t, before+1, d.Len())

	_, _, err = d.QuickMatch(context.Background(), protocol.GameType("pinball"), JoinRequest{ConnID: "x"})
	require.Equal(t, protocol.CodeBadRequest, protocol.CodeOf(err))
}

func TestDirectory_List_FiltersAndOrders(t *testing.T) {
	d, reg := newTestDirectory(t)

	busy, err := d.Create(CreateOptions{GameType: protocol.GameTanks})
	require.NoError(t, err)
	joinConn(t, d, reg, busy.ID(), "a")
	idle, err := d.Create(CreateOptions{GameType: protocol.GameTanks})
	require.NoError(t, err)
	_, err = d.Create(CreateOptions{GameType: protocol.GameSnake})
	require.NoError(t, err)

	tanks := d.List(protocol.GameTanks)
	require.Len(t, tanks, 2)
	require.Equal(t, busy.ID(), tanks[0].RoomID)
	require.Equal(t, idle.ID(), tanks[1].RoomID)

	require.Len(t, d.List(""), 3)
}

func TestDirectory_RoomRemovedWhenEmpty(t *testing.T) {
	d, reg := newTestDirectory(t)

	r, err := d.Create(CreateOptions{GameType: protocol.GameSnake})
	require.NoError(t, err)
	_, res := joinConn(t, d, reg, r.ID(), "only")
	require.Equal(t, 1, d.Len())

	r.Inbox() <- room.Leave{PlayerID: res.PlayerID}
	require.Eventually(t, func() bool { return d.Len() == 0 }, 2*time.Second, 10*time.Millisecond,
		"empty room should deregister itself")

	_, err = d.Room(r.ID())
	require.Equal(t, protocol.CodeRoomNotFound, protocol.CodeOf(err))
}

func TestDirectory_Shutdown_ClosesRoomsAndRefusesCreates(t *testing.T) {
	d, reg := newTestDirectory(t)

	r, err := d.Create(CreateOptions{GameType: protocol.GameSnake})
	require.NoError(t, err)
	c := reg.Register() // undrained: the farewell frame must be observable
	_, _, err = d.Join(context.Background(), r.ID(), JoinRequest{ConnID: c.ID, Name: "ada"})
	require.NoError(t, err)

	d.Shutdown("maintenance")

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room survived directory shutdown")
	}

	var env protocol.Envelope
	deadline := time.After(2 * time.Second)
	for env.T != protocol.MsgError {
		select {
		case frame := <-c.Outbox():
			var derr error
			env, derr = protocol.DecodeEnvelope(frame)
			require.NoError(t, derr)
		case <-deadline:
			t.Fatal("no farewell error frame")
		}
	}
	perr, err := protocol.DecodePayload[protocol.Error](env)
	require.NoError(t, err)
	require.Equal(t, protocol.CodeRoomClosed, perr.Code)

	_, err = d.Create(CreateOptions{GameType: protocol.GameSnake})
	require.Equal(t, protocol.CodeRoomClosed, protocol.CodeOf(err))
}
