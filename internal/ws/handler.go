// Package ws bridges websocket connections to the directory and rooms. The
// read loop decodes command envelopes and forwards them; a writer goroutine
// drains the connection's registry outbox. Rooms never see the socket.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dustfall/arcade-backend/internal/directory"
	"github.com/dustfall/arcade-backend/internal/game"
	"github.com/dustfall/arcade-backend/internal/registry"
	"github.com/dustfall/arcade-backend/internal/room"
	"github.com/dustfall/arcade-backend/pkg/protocol"
)

const (
	writeTimeout = 3 * time.Second
	// readTimeout bounds one blocking read; clients ping well inside it.
	readTimeout = 90 * time.Second
)

type Handler struct {
	dir *directory.Directory
	reg *registry.Registry
	log *zap.Logger
}

func NewHandler(dir *directory.Directory, reg *registry.Registry, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{dir: dir, reg: reg, log: log.Named("ws")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// In dev ONLY, you can loosen origin checks:
		// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
	})
	if err != nil {
		h.log.Debug("accept failed", zap.Error(err))
		return
	}
	defer sock.Close(websocket.StatusNormalClosure, "bye")

	conn := h.reg.Register()
	defer h.reg.Deregister(conn.ID)

	c := &client{
		h:    h,
		sock: sock,
		conn: conn,
		log:  h.log.With(zap.String("conn_id", conn.ID)),
	}
	c.serve(r.Context())
}

// client is the per-connection state. Only the read loop mutates it, so no
// locking is needed.
type client struct {
	h    *Handler
	sock *websocket.Conn
	conn *registry.Conn
	log  *zap.Logger

	playerID string
	name     string
	room     *room.Room
}

func (c *client) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)

	c.readLoop(ctx)

	// The room learns about the loss and starts the grace clock; the socket
	// itself is torn down by the deferred Close/Deregister.
	if r := c.room; r != nil {
		select {
		case r.Inbox() <- room.Disconnect{ConnID: c.conn.ID}:
		case <-r.Done():
		}
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case frame := <-c.conn.Outbox():
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.sock.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.sock.Close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-c.conn.Done():
			// Deregistered, or the queue overflowed; unblock the reader.
			c.sock.Close(websocket.StatusGoingAway, "server closed connection")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *client) readLoop(ctx context.Context) {
	for {
		rctx, cancel := context.WithTimeout(ctx, readTimeout)
		_, data, err := c.sock.Read(rctx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				c.log.Debug("read ended", zap.Error(err))
			}
			return
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			c.sendErr(protocol.NewError(protocol.CodeBadRequest, "malformed frame"))
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *client) dispatch(ctx context.Context, env protocol.Envelope) {
	switch env.T {
	case protocol.MsgHello:
		c.handleHello(env)
		return
	case protocol.MsgPing:
		c.handlePing(env)
		return
	}
	if c.playerID == "" {
		c.sendErr(protocol.NewError(protocol.CodeBadRequest, "say hello first"))
		return
	}

	switch env.T {
	case protocol.MsgCreateRoom:
		req, ok := decode[protocol.CreateRoom](c, env)
		if !ok {
			return
		}
		c.handleCreate(ctx, req)
	case protocol.MsgJoinRoom:
		req, ok := decode[protocol.JoinRoom](c, env)
		if !ok {
			return
		}
		c.joinVia(func() (*room.Room, room.JoinResult, error) {
			return c.h.dir.Join(ctx, req.RoomID, c.joinRequest())
		})
	case protocol.MsgJoinByCode:
		req, ok := decode[protocol.JoinByCode](c, env)
		if !ok {
			return
		}
		c.joinVia(func() (*room.Room, room.JoinResult, error) {
			return c.h.dir.JoinByCode(ctx, req.Code, c.joinRequest())
		})
	case protocol.MsgQuickMatch:
		req, ok := decode[protocol.QuickMatch](c, env)
		if !ok {
			return
		}
		c.joinVia(func() (*room.Room, room.JoinResult, error) {
			return c.h.dir.QuickMatch(ctx, req.GameType, c.joinRequest())
		})
	case protocol.MsgReady:
		req, ok := decode[protocol.Ready](c, env)
		if !ok {
			return
		}
		c.forward(room.Ready{PlayerID: c.playerID, Ready: req.Ready})
	case protocol.MsgStart:
		c.forward(room.Start{PlayerID: c.playerID})
	case protocol.MsgMove:
		req, ok := decode[protocol.Move](c, env)
		if !ok {
			return
		}
		if !req.Direction.Valid() {
			c.sendErr(protocol.NewError(protocol.CodeBadRequest, fmt.Sprintf("bad direction %q", req.Direction)))
			return
		}
		c.forward(room.GameCmd{PlayerID: c.playerID, Cmd: game.Command{Type: game.CmdMove, Dir: req.Direction}})
	case protocol.MsgShoot:
		c.forward(room.GameCmd{PlayerID: c.playerID, Cmd: game.Command{Type: game.CmdShoot}})
	case protocol.MsgActivateArmor:
		c.forward(room.GameCmd{PlayerID: c.playerID, Cmd: game.Command{Type: game.CmdArmor}})
	case protocol.MsgLevelResult:
		req, ok := decode[protocol.LevelResult](c, env)
		if !ok {
			return
		}
		c.forward(room.GameCmd{PlayerID: c.playerID, Cmd: game.Command{
			Type:    game.CmdLevelResult,
			Success: req.Success,
			Deaths:  req.Deaths,
		}})
	case protocol.MsgRematchVote:
		req, ok := decode[protocol.RematchVote](c, env)
		if !ok {
			return
		}
		c.forward(room.RematchVote{PlayerID: c.playerID, Rematch: req.Rematch})
	case protocol.MsgChat:
		req, ok := decode[protocol.Chat](c, env)
		if !ok {
			return
		}
		c.forward(room.Chat{PlayerID: c.playerID, Text: req.Text})
	case protocol.MsgLeave:
		c.handleLeave()
	default:
		c.sendErr(protocol.NewError(protocol.CodeBadRequest, fmt.Sprintf("unknown command %q", env.T)))
	}
}

// decode unmarshals an envelope payload, reporting BAD_REQUEST to the peer
// on garbage. An absent payload decodes to the zero value.
func decode[T any](c *client, env protocol.Envelope) (T, bool) {
	var zero T
	if len(env.P) == 0 {
		return zero, true
	}
	v, err := protocol.DecodePayload[T](env)
	if err != nil {
		c.sendErr(protocol.NewError(protocol.CodeBadRequest, fmt.Sprintf("malformed %s payload", env.T)))
		return zero, false
	}
	return v, true
}

func (c *client) handleHello(env protocol.Envelope) {
	hello, ok := decode[protocol.Hello](c, env)
	if !ok {
		return
	}
	if id := strings.TrimSpace(hello.PlayerID); c.playerID != "" && id != "" && id != c.playerID {
		c.sendErr(protocol.NewError(protocol.CodeBadRequest, "connection is already identified"))
		return
	}
	if c.playerID == "" {
		id := strings.TrimSpace(hello.PlayerID)
		if id == "" {
			id = uuid.NewString()
		}
		c.playerID = id
	}
	if name := strings.TrimSpace(hello.Name); name != "" {
		c.name = name
	}
	c.send(protocol.MsgWelcome, protocol.Welcome{PlayerID: c.playerID, Version: protocol.Version})
}

func (c *client) handlePing(env protocol.Envelope) {
	ping, ok := decode[protocol.Ping](c, env)
	if !ok {
		return
	}
	c.send(protocol.MsgPong, protocol.Pong{
		ClientTimeMs: ping.ClientTimeMs,
		ServerTimeMs: time.Now().UnixMilli(),
	})
}

func (c *client) handleCreate(ctx context.Context, req protocol.CreateRoom) {
	if c.inCurrentRoom() {
		c.sendErr(protocol.NewError(protocol.CodeInvalidRoomState, "leave the current room first"))
		return
	}
	r, err := c.h.dir.Create(directory.CreateOptions{
		GameType:   req.GameType,
		Private:    req.Private,
		MaxPlayers: req.MaxPlayers,
		Settings:   req.Settings,
	})
	if err != nil {
		c.sendErr(toProtocolErr(err))
		return
	}
	c.joinVia(func() (*room.Room, room.JoinResult, error) {
		return c.h.dir.Join(ctx, r.ID(), c.joinRequest())
	})
}

// joinRequest always carries the player id so a rejoin lands on the resume
// path whenever a grace window is open.
func (c *client) joinRequest() directory.JoinRequest {
	return directory.JoinRequest{ConnID: c.conn.ID, PlayerID: c.playerID, Name: c.name}
}

// inCurrentRoom reports whether this connection still holds a seat. The
// room pointer is only a routing hint: the room may have swept the session
// (AFK, grace expiry) or closed since, so membership is re-checked against
// the room itself before a join is refused.
func (c *client) inCurrentRoom() bool {
	r := c.room
	if r == nil {
		return false
	}
	reply := make(chan room.View, 1)
	select {
	case r.Inbox() <- room.GetView{Reply: reply}:
	case <-r.Done():
		c.room = nil
		return false
	}
	select {
	case v := <-reply:
		for _, p := range v.Players {
			if p.PlayerID == c.playerID {
				return true
			}
		}
		c.room = nil
		return false
	case <-r.Done():
		c.room = nil
		return false
	}
}

func (c *client) joinVia(call func() (*room.Room, room.JoinResult, error)) {
	if c.inCurrentRoom() {
		c.sendErr(protocol.NewError(protocol.CodeInvalidRoomState, "leave the current room first"))
		return
	}
	r, res, err := call()
	if err != nil {
		c.sendErr(toProtocolErr(err))
		return
	}
	c.room = r
	c.playerID = res.PlayerID
	c.log.Info("joined room",
		zap.String("room_id", r.ID()),
		zap.String("player_id", c.playerID),
		zap.Bool("resumed", res.Resumed))
}

func (c *client) handleLeave() {
	r := c.room
	if r == nil {
		return
	}
	c.room = nil
	select {
	case r.Inbox() <- room.Leave{PlayerID: c.playerID}:
	case <-r.Done():
	}
}

// forward hands a message to the current room, if any.
func (c *client) forward(msg room.Msg) {
	r := c.room
	if r == nil {
		c.sendErr(protocol.NewError(protocol.CodeInvalidRoomState, "not in a room"))
		return
	}
	select {
	case r.Inbox() <- msg:
	case <-r.Done():
		c.room = nil
		c.sendErr(protocol.NewError(protocol.CodeRoomClosed, "room is closed"))
	}
}

// send queues a frame through the registry so handler replies and room
// broadcasts stay ordered on one queue.
func (c *client) send(t protocol.MsgType, payload any) {
	if err := c.h.reg.SendEvent(c.conn.ID, t, payload); err != nil {
		c.log.Debug("send failed", zap.String("type", string(t)), zap.Error(err))
	}
}

func (c *client) sendErr(e *protocol.Error) { c.send(protocol.MsgError, e) }

func toProtocolErr(err error) *protocol.Error {
	if pe, ok := protocol.AsError(err); ok {
		return pe
	}
	return protocol.NewError(protocol.CodeOf(err), err.Error())
}
