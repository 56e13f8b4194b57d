package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dustfall/arcade-backend/internal/config"
	"github.com/dustfall/arcade-backend/internal/directory"
	"github.com/dustfall/arcade-backend/internal/httpapi"
	"github.com/dustfall/arcade-backend/internal/registry"
	"github.com/dustfall/arcade-backend/internal/room"
	"github.com/dustfall/arcade-backend/internal/ws"
	"github.com/dustfall/arcade-backend/pkg/protocol"
)

const waitFor = 5 * time.Second

type testServer struct {
	url string
	srv *httptest.Server
	reg *registry.Registry
}

// newTestServer stands up the real stack behind an httptest listener.
func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	log := zap.NewNop()
	reg := registry.New(cfg.SendQueueSize, log)
	dir := directory.New(context.Background(), cfg, reg, log, room.LogScores{Log: log})
	srv := httptest.NewServer(httpapi.SetupRoutes(dir, ws.NewHandler(dir, reg, log)))
	t.Cleanup(func() {
		srv.Close()
		dir.Shutdown("")
		reg.CloseAll()
	})
	return &testServer{
		url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		srv: srv,
		reg: reg,
	}
}

func dialTest(t *testing.T, ts *testServer, opts Options) *Client {
	t.Helper()
	c, err := Dial(context.Background(), ts.url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_CreateRoomAndMirror(t *testing.T) {
	ts := newTestServer(t, config.Default())
	ctx := context.Background()

	c := dialTest(t, ts, Options{Name: "ana"})
	require.NotEmpty(t, c.PlayerID())
	require.Equal(t, StatusOnline, c.Status())

	require.NoError(t, c.CreateRoom(ctx, protocol.CreateRoom{
		GameType:   protocol.GameTanks,
		MaxPlayers: 4,
	}))

	s := c.Snapshot()
	require.True(t, s.InRoom())
	require.Equal(t, c.PlayerID(), s.You)
	require.Equal(t, protocol.GameTanks, s.Room.GameType)
	require.Equal(t, protocol.StateLobby, s.State)
	require.Len(t, s.Room.Code, 6)
	require.Len(t, s.Players, 1)
	require.True(t, s.Players[0].Host)
	require.Equal(t, "ana", s.Players[0].Name)
}

func TestClient_TwoClientsShareRoomAndChat(t *testing.T) {
	ts := newTestServer(t, config.Default())
	ctx := context.Background()

	c1 := dialTest(t, ts, Options{Name: "ana"})
	require.NoError(t, c1.CreateRoom(ctx, protocol.CreateRoom{
		GameType: protocol.GameTanks,
		Private:  true,
	}))
	code := c1.Snapshot().Room.Code

	// Codes are case-insensitive on the way in.
	c2 := dialTest(t, ts, Options{Name: "bo"})
	require.NoError(t, c2.JoinByCode(ctx, strings.ToLower(code)))
	require.Equal(t, c1.Snapshot().Room.RoomID, c2.Snapshot().Room.RoomID)

	require.Eventually(t, func() bool {
		return len(c1.Snapshot().Players) == 2
	}, waitFor, 20*time.Millisecond)

	require.NoError(t, c1.Chat(ctx, "gl hf"))
	require.Eventually(t, func() bool {
		chat := c2.Snapshot().Chat
		return len(chat) == 1 && chat[0].Text == "gl hf" && chat[0].Name == "ana"
	}, waitFor, 20*time.Millisecond)

	// Seated clients have to leave before joining elsewhere.
	err := c2.JoinRoom(ctx, c1.Snapshot().Room.RoomID)
	pe, ok := protocol.AsError(err)
	require.True(t, ok)
	require.Equal(t, protocol.CodeInvalidRoomState, pe.Code)

	require.NoError(t, c2.Leave(ctx))
	require.False(t, c2.Snapshot().InRoom())
	require.Eventually(t, func() bool {
		return len(c1.Snapshot().Players) == 1
	}, waitFor, 20*time.Millisecond)
}

func TestClient_JoinRefusalsSurfaceImmediately(t *testing.T) {
	ts := newTestServer(t, config.Default())
	ctx := context.Background()
	c := dialTest(t, ts, Options{Name: "ana"})

	start := time.Now()

	err := c.JoinRoom(ctx, "no-such-room")
	pe, ok := protocol.AsError(err)
	require.True(t, ok)
	require.Equal(t, protocol.CodeRoomNotFound, pe.Code)

	err = c.JoinByCode(ctx, "bad!")
	pe, ok = protocol.AsError(err)
	require.True(t, ok)
	require.Equal(t, protocol.CodeInvalidRoomCode, pe.Code)

	err = c.QuickMatch(ctx, protocol.GameType("pinball"))
	pe, ok = protocol.AsError(err)
	require.True(t, ok)
	require.Equal(t, protocol.CodeBadRequest, pe.Code)

	// Three refusals without a single backoff sleep between them.
	require.Less(t, time.Since(start), time.Second)
}

func TestClient_MirrorsAFullRound(t *testing.T) {
	cfg := config.Default()
	cfg.Countdown = 200 * time.Millisecond
	cfg.ResultsIdle = time.Hour
	ts := newTestServer(t, cfg)
	ctx := context.Background()

	c1 := dialTest(t, ts, Options{Name: "ana"})
	require.NoError(t, c1.CreateRoom(ctx, protocol.CreateRoom{
		GameType:   protocol.GameTanks,
		MaxPlayers: 2,
		Settings:   protocol.RoomSettings{RoundSeconds: 1},
	}))

	// Second seat fills the room, which starts the countdown on its own.
	c2 := dialTest(t, ts, Options{Name: "bo"})
	require.NoError(t, c2.QuickMatch(ctx, protocol.GameTanks))

	require.Eventually(t, func() bool {
		return c1.Snapshot().State == protocol.StatePlaying &&
			c2.Snapshot().State == protocol.StatePlaying
	}, waitFor, 20*time.Millisecond)

	// Debounced snapshots land within a window of the first ticks.
	require.Eventually(t, func() bool {
		g := c1.Snapshot().Game
		return g != nil && g.Tanks != nil && len(g.Tanks.Tanks) == 2
	}, waitFor, 20*time.Millisecond)

	require.NoError(t, c1.Move(ctx, protocol.DirUp))

	// One-second round clock runs out.
	require.Eventually(t, func() bool {
		s := c1.Snapshot()
		return s.State == protocol.StateResults && len(s.Rankings) == 2
	}, waitFor, 20*time.Millisecond)
	require.Equal(t, protocol.RoundReasonTimeUp, c1.Snapshot().EndReason)

	// Unanimous rematch lands everyone back in the lobby.
	require.NoError(t, c1.RematchVote(ctx, true))
	require.NoError(t, c2.RematchVote(ctx, true))
	require.Eventually(t, func() bool {
		s := c2.Snapshot()
		return s.State == protocol.StateLobby && s.Game == nil
	}, waitFor, 20*time.Millisecond)
	for _, p := range c2.Snapshot().Players {
		require.Zero(t, p.Score)
	}
}

func TestClient_DialFailsWhenServerUnreachable(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", Options{
		ReconnectInitial:    20 * time.Millisecond,
		ReconnectMaxElapsed: 200 * time.Millisecond,
	})
	require.Error(t, err)
}

func TestClient_ConnectionIssuesThenManualRetry(t *testing.T) {
	ts := newTestServer(t, config.Default())

	statuses := make(chan Status, 32)
	c := dialTest(t, ts, Options{
		Name:                "ana",
		ReconnectInitial:    20 * time.Millisecond,
		ReconnectMaxElapsed: 250 * time.Millisecond,
		OnStatus:            func(s Status) { statuses <- s },
	})
	require.Equal(t, StatusOnline, <-statuses)

	// Stop accepting, then cut the live socket out from under the client.
	ts.srv.Close()
	ts.reg.CloseAll()

	waitStatus(t, statuses, StatusReconnecting)
	waitStatus(t, statuses, StatusIssues)
	require.Error(t, c.Err())

	// Manual retry runs another backoff round against a dead listener.
	c.Retry()
	waitStatus(t, statuses, StatusReconnecting)
	waitStatus(t, statuses, StatusIssues)

	c.Close()
	require.Equal(t, StatusClosed, c.Status())
}

func waitStatus(t *testing.T, ch <-chan Status, want Status) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("status %q never arrived", want)
		}
	}
}
