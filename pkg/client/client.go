// Package client keeps a live local mirror of one arcade room. It dials a
// server's /ws endpoint, identifies itself, folds server pushes into a View
// that consumers snapshot at any time, and rides out connection drops with
// bounded reconnection and an in-place resume of the room it was in.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

const (
	writeTimeout = 3 * time.Second
	helloTimeout = 5 * time.Second

	// pingEvery keeps the socket warm well inside the server's read
	// deadline and doubles as the latency probe.
	pingEvery = 25 * time.Second

	defaultReconnectInitial    = 500 * time.Millisecond
	defaultReconnectMaxElapsed = 30 * time.Second
)

// Status is the connection lifecycle as shown to the UI.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusOnline       Status = "online"
	StatusReconnecting Status = "reconnecting"
	// StatusIssues means automatic reconnection gave up. Retry restarts it.
	StatusIssues Status = "connection_issues"
	StatusClosed Status = "closed"
)

// Options tune a Client. The zero value works against a local server.
type Options struct {
	// Name is the display name sent in the hello.
	Name string
	// PlayerID resumes a previous identity when set.
	PlayerID string
	// Log defaults to a nop logger.
	Log *zap.Logger

	// OnEvent, when set, observes every decoded frame after it has been
	// folded into the view. Called from the session goroutine; do not
	// block in it.
	OnEvent func(protocol.Envelope)
	// OnStatus observes connection lifecycle changes.
	OnStatus func(Status)

	// ReconnectInitial and ReconnectMaxElapsed bound the automatic
	// reconnection backoff. Zero values take the defaults.
	ReconnectInitial    time.Duration
	ReconnectMaxElapsed time.Duration
}

// Client is a connected arcade session. All methods are safe for concurrent
// use.
type Client struct {
	url  string
	opts Options
	log  *zap.Logger

	view   *View
	snaps  *debouncer
	deltas *batcher

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	retry  chan struct{}

	wmu sync.Mutex // serializes socket writes

	mu       sync.Mutex
	sock     *websocket.Conn
	playerID string
	status   Status
	lastErr  error
	waiter   chan error

	closeOnce sync.Once
}

// Dial connects to url (a ws:// or wss:// /ws endpoint), completes the hello
// handshake, and starts the session goroutine that keeps the view current.
// Transient dial failures are retried with the reconnect backoff before
// giving up.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:      url,
		opts:     opts,
		log:      opts.Log.Named("client"),
		view:     newView(),
		ctx:      cctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		retry:    make(chan struct{}, 1),
		playerID: opts.PlayerID,
		status:   StatusConnecting,
	}
	c.snaps = newDebouncer(snapshotWindow, c.view.applyGame)
	c.deltas = newBatcher(deltaWindow, c.view.applyDeltas)

	sock, err := c.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.setSock(sock)
	c.setStatus(StatusOnline)
	go c.session(sock)
	return c, nil
}

// Close tears the session down: timers stopped, socket closed, session
// goroutine joined. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.setStatus(StatusClosed)
		c.cancel()
		c.snaps.Close()
		c.deltas.Close()
		c.mu.Lock()
		sock := c.sock
		c.mu.Unlock()
		if sock != nil {
			sock.Close(websocket.StatusNormalClosure, "bye")
		}
		<-c.done
	})
	return nil
}

// PlayerID returns the identity issued at hello, stable across resumes.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Status reports where the connection currently stands.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the last connection or server error, cleared when the client
// comes back online.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot returns a copy of the current room mirror.
func (c *Client) Snapshot() Snapshot {
	return c.view.Snapshot()
}

// Retry kicks the reconnect loop after automatic backoff has given up. It
// is a no-op unless the client is parked in StatusIssues.
func (c *Client) Retry() {
	select {
	case c.retry <- struct{}{}:
	default:
	}
}

// --- joining ---

// CreateRoom asks the server for a fresh room and seats the caller in it.
func (c *Client) CreateRoom(ctx context.Context, req protocol.CreateRoom) error {
	return c.joinWithRetry(ctx, protocol.MsgCreateRoom, req)
}

// JoinRoom joins a room by id. On a ROOM_FULL refusal the returned
// *protocol.Error carries alternative rooms to offer instead.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	return c.joinWithRetry(ctx, protocol.MsgJoinRoom, protocol.JoinRoom{RoomID: roomID})
}

// JoinByCode joins a room by its shareable code, case-insensitive.
func (c *Client) JoinByCode(ctx context.Context, code string) error {
	return c.joinWithRetry(ctx, protocol.MsgJoinByCode, protocol.JoinByCode{Code: code})
}

// QuickMatch joins the fullest open room for the game type, or a fresh one.
func (c *Client) QuickMatch(ctx context.Context, gt protocol.GameType) error {
	return c.joinWithRetry(ctx, protocol.MsgQuickMatch, protocol.QuickMatch{GameType: gt})
}

// Leave exits the current room but keeps the connection.
func (c *Client) Leave(ctx context.Context) error {
	err := c.send(ctx, protocol.MsgLeave, nil)
	c.clearRoom()
	return err
}

// --- in-room commands ---

// Ready flags the caller ready (or not) in the lobby.
func (c *Client) Ready(ctx context.Context, ready bool) error {
	return c.send(ctx, protocol.MsgReady, protocol.Ready{Ready: ready})
}

// Start begins the countdown. Hosts only.
func (c *Client) Start(ctx context.Context) error {
	return c.send(ctx, protocol.MsgStart, nil)
}

// Move steers the caller's piece.
func (c *Client) Move(ctx context.Context, d protocol.Direction) error {
	return c.send(ctx, protocol.MsgMove, protocol.Move{Direction: d})
}

func (c *Client) Shoot(ctx context.Context) error {
	return c.send(ctx, protocol.MsgShoot, nil)
}

func (c *Client) ActivateArmor(ctx context.Context) error {
	return c.send(ctx, protocol.MsgActivateArmor, nil)
}

// LevelResult reports a tower attempt.
func (c *Client) LevelResult(ctx context.Context, success bool, deaths int) error {
	return c.send(ctx, protocol.MsgLevelResult, protocol.LevelResult{Success: success, Deaths: deaths})
}

// RematchVote casts or changes the caller's vote on the results screen.
func (c *Client) RematchVote(ctx context.Context, rematch bool) error {
	return c.send(ctx, protocol.MsgRematchVote, protocol.RematchVote{Rematch: rematch})
}

func (c *Client) Chat(ctx context.Context, text string) error {
	return c.send(ctx, protocol.MsgChat, protocol.Chat{Text: text})
}

// Ping measures the round trip; the result lands in Snapshot().LatencyMs.
func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, protocol.MsgPing, protocol.Ping{ClientTimeMs: time.Now().UnixMilli()})
}

// --- connection management ---

// connect dials and completes the hello handshake, retrying transient
// failures with bounded exponential backoff.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	var sock *websocket.Conn
	err := backoff.RetryNotify(func() error {
		s, err := c.connectOnce(ctx)
		if err != nil {
			return err
		}
		sock = s
		return nil
	}, backoff.WithContext(c.reconnectPolicy(), ctx), func(err error, next time.Duration) {
		c.log.Debug("dial failed",
			zap.Error(err),
			zap.Duration("retry_in", next))
	})
	if err != nil {
		return nil, err
	}
	return sock, nil
}

func (c *Client) reconnectPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInitial
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultReconnectInitial
	}
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = c.opts.ReconnectMaxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = defaultReconnectMaxElapsed
	}
	return b
}

func (c *Client) connectOnce(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()
	sock, _, err := websocket.Dial(dctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	if err := c.hello(dctx, sock); err != nil {
		sock.Close(websocket.StatusNormalClosure, "hello failed")
		return nil, err
	}
	return sock, nil
}

// hello identifies the client and adopts the player id the server issues.
// Presenting the previous id keeps the identity stable across reconnects.
func (c *Client) hello(ctx context.Context, sock *websocket.Conn) error {
	b, err := protocol.Encode(protocol.MsgHello, protocol.Hello{Name: c.opts.Name, PlayerID: c.PlayerID()})
	if err != nil {
		return err
	}
	if err := sock.Write(ctx, websocket.MessageText, b); err != nil {
		return err
	}
	_, data, err := sock.Read(ctx)
	if err != nil {
		return err
	}
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return err
	}
	switch env.T {
	case protocol.MsgWelcome:
		w, err := protocol.DecodePayload[protocol.Welcome](env)
		if err != nil {
			return err
		}
		if w.Version != protocol.Version {
			return backoff.Permanent(fmt.Errorf("server speaks protocol v%d, this client v%d", w.Version, protocol.Version))
		}
		c.mu.Lock()
		c.playerID = w.PlayerID
		c.mu.Unlock()
		return nil
	case protocol.MsgError:
		pe, err := protocol.DecodePayload[*protocol.Error](env)
		if err != nil {
			return err
		}
		return backoff.Permanent(pe)
	default:
		return fmt.Errorf("expected welcome, got %q", env.T)
	}
}

// session owns the read loop and reconnection. It exits only when the
// client is closed.
func (c *Client) session(sock *websocket.Conn) {
	defer close(c.done)
	for {
		err := c.run(sock)
		c.setSock(nil)
		c.settle(protocol.NewError(protocol.CodeConnectionFailed, "connection lost"))
		if c.ctx.Err() != nil {
			return
		}
		c.log.Warn("connection lost", zap.Error(err))
		c.setStatus(StatusReconnecting)

		var rerr error
		sock, rerr = c.connect(c.ctx)
		for rerr != nil {
			if c.ctx.Err() != nil {
				return
			}
			// Automatic reconnection gave up. Park until someone calls
			// Retry, then run another backoff round.
			c.setErr(rerr)
			c.setStatus(StatusIssues)
			select {
			case <-c.retry:
			case <-c.ctx.Done():
				return
			}
			c.setStatus(StatusReconnecting)
			sock, rerr = c.connect(c.ctx)
		}
		c.setSock(sock)
		c.setStatus(StatusOnline)
		c.log.Info("reconnected")
		if rid := c.view.roomID(); rid != "" {
			go c.rejoin(rid)
		}
	}
}

// run reads frames off one socket until it fails.
func (c *Client) run(sock *websocket.Conn) error {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	go c.pinger(ctx)
	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			return err
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			c.log.Warn("bad frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) pinger(ctx context.Context) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = c.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// rejoin puts a resumed connection back into the room it was in. The server
// holds the seat through the disconnect grace window.
func (c *Client) rejoin(roomID string) {
	ctx, cancel := context.WithTimeout(c.ctx, helloTimeout)
	defer cancel()
	err := c.roundTrip(ctx, protocol.MsgJoinRoom, protocol.JoinRoom{RoomID: roomID})
	if err == nil {
		return
	}
	if !protocol.CodeOf(err).Retryable() {
		// The seat is gone: grace expired, the round moved on, or the
		// room closed.
		c.log.Warn("resume refused", zap.String("room_id", roomID), zap.Error(err))
		c.clearRoom()
		c.setErr(err)
		return
	}
	c.log.Warn("resume failed", zap.String("room_id", roomID), zap.Error(err))
}

// --- frame handling ---

// dispatch folds one server frame into the mirror. Frames that only matter
// to presentation (armor, power-ups, class changes) ride the next game
// snapshot; OnEvent sees them all either way.
func (c *Client) dispatch(env protocol.Envelope) {
	switch env.T {
	case protocol.MsgRoomJoined:
		if rj, ok := payload[protocol.RoomJoined](c, env); ok {
			c.deltas.Flush()
			c.snaps.Drop()
			c.view.applyJoined(rj)
			c.settle(nil)
		}
	case protocol.MsgError:
		if pe, ok := payload[*protocol.Error](c, env); ok {
			c.handleError(pe)
		}
	case protocol.MsgPlayerJoined:
		if ev, ok := payload[protocol.PlayerJoined](c, env); ok {
			c.view.applyPlayerJoined(ev.Player)
		}
	case protocol.MsgPlayerLeft:
		if ev, ok := payload[protocol.PlayerLeft](c, env); ok {
			c.deltas.Flush()
			c.view.applyPlayerLeft(ev)
		}
	case protocol.MsgPlayersUpdate:
		if ev, ok := payload[protocol.PlayersUpdate](c, env); ok {
			c.deltas.Flush()
			c.view.applyPlayers(ev.Players)
		}
	case protocol.MsgRoomState:
		if ev, ok := payload[protocol.RoomStateChanged](c, env); ok {
			c.deltas.Flush()
			c.view.applyState(ev)
		}
	case protocol.MsgCountdownTick:
		if ev, ok := payload[protocol.CountdownTick](c, env); ok {
			c.view.applyCountdown(ev)
		}
	case protocol.MsgGameUpdate:
		if ev, ok := payload[protocol.GameUpdate](c, env); ok {
			c.snaps.Push(ev)
		}
	case protocol.MsgPlayerDied:
		if ev, ok := payload[protocol.PlayerDied](c, env); ok {
			c.deltas.Push(playerDelta{
				playerID: ev.PlayerID,
				alive:    ptr(false),
				cause:    ptr(ev.Cause),
				killedBy: ptr(ev.KillerID),
			})
		}
	case protocol.MsgPlayerKilled:
		if ev, ok := payload[protocol.PlayerKilled](c, env); ok {
			c.deltas.Push(playerDelta{
				playerID: ev.VictimID,
				alive:    ptr(false),
				killedBy: ptr(ev.KillerID),
			})
		}
	case protocol.MsgPlayerRespawned:
		if ev, ok := payload[protocol.PlayerRespawned](c, env); ok {
			c.deltas.Push(playerDelta{
				playerID: ev.PlayerID,
				alive:    ptr(true),
				cause:    ptr(""),
				killedBy: ptr(""),
			})
		}
	case protocol.MsgRoundTime:
		if ev, ok := payload[protocol.RoundTime](c, env); ok {
			c.view.applyRoundTime(ev)
		}
	case protocol.MsgRoundEnded:
		if ev, ok := payload[protocol.RoundEnded](c, env); ok {
			c.deltas.Flush()
			c.view.applyRoundEnded(ev)
		}
	case protocol.MsgGameReset:
		if ev, ok := payload[protocol.GameReset](c, env); ok {
			c.deltas.Flush()
			c.snaps.Drop()
			c.view.applyReset(ev)
		}
	case protocol.MsgChatMessage:
		if ev, ok := payload[protocol.ChatMessage](c, env); ok {
			c.view.applyChat(ev)
		}
	case protocol.MsgPong:
		if ev, ok := payload[protocol.Pong](c, env); ok {
			c.view.applyLatency(time.Now().UnixMilli() - ev.ClientTimeMs)
		}
	case protocol.MsgWelcome:
		// Consumed during the hello handshake; nothing to fold in here.
	}
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(env)
	}
}

// handleError routes a server error: a pending join gets it as its reply,
// anything else is recorded for Err.
func (c *Client) handleError(pe *protocol.Error) {
	if c.settle(pe) {
		return
	}
	if pe.Code == protocol.CodeRoomClosed {
		// Farewell broadcast: the room is gone, not just this request.
		c.clearRoom()
	}
	c.setErr(pe)
	c.log.Warn("server error",
		zap.String("code", string(pe.Code)),
		zap.String("message", pe.Message))
}

// payload decodes env into T, logging and dropping bad frames.
func payload[T any](c *Client, env protocol.Envelope) (T, bool) {
	out, err := protocol.DecodePayload[T](env)
	if err != nil {
		c.log.Warn("bad payload", zap.String("type", string(env.T)), zap.Error(err))
		var zero T
		return zero, false
	}
	return out, true
}

// --- plumbing ---

// send encodes and writes one frame. The socket takes one writer at a time,
// so writes are serialized here.
func (c *Client) send(ctx context.Context, t protocol.MsgType, pl any) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return protocol.NewError(protocol.CodeConnectionFailed, "not connected")
	}
	b, err := protocol.Encode(t, pl)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return sock.Write(wctx, websocket.MessageText, b)
}

// roundTrip sends a join-class command and waits for the RoomJoined or
// Error frame that answers it. One join may be in flight at a time.
func (c *Client) roundTrip(ctx context.Context, t protocol.MsgType, pl any) error {
	ch := make(chan error, 1)
	c.mu.Lock()
	if c.waiter != nil {
		c.mu.Unlock()
		return protocol.NewError(protocol.CodeBadRequest, "another join is already in flight")
	}
	c.waiter = ch
	c.mu.Unlock()

	if err := c.send(ctx, t, pl); err != nil {
		c.disarm(ch)
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		c.disarm(ch)
		return protocol.NewError(protocol.CodeTimeout, "no reply from the server")
	case <-c.ctx.Done():
		c.disarm(ch)
		return protocol.NewError(protocol.CodeConnectionFailed, "client closed")
	}
}

// settle resolves the in-flight join round trip, if any.
func (c *Client) settle(err error) bool {
	c.mu.Lock()
	ch := c.waiter
	c.waiter = nil
	c.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- err
	return true
}

// disarm clears the waiter if it is still ours.
func (c *Client) disarm(ch chan error) {
	c.mu.Lock()
	if c.waiter == ch {
		c.waiter = nil
	}
	c.mu.Unlock()
}

func (c *Client) clearRoom() {
	c.snaps.Drop()
	c.view.clearRoom()
}

func (c *Client) setSock(s *websocket.Conn) {
	c.mu.Lock()
	c.sock = s
	c.mu.Unlock()
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s || c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.status = s
	if s == StatusOnline {
		c.lastErr = nil
	}
	c.mu.Unlock()
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(s)
	}
}
