// Package directory is the matchmaking front of the server. It owns the set
// of live rooms, allocates join codes, resolves join and quick-match
// requests, and serves listings for the page layer. Rooms deregister
// themselves through the on-empty callback.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dustfall/arcade-backend/internal/config"
	"github.com/dustfall/arcade-backend/internal/registry"
	"github.com/dustfall/arcade-backend/internal/room"
	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// replyTimeout bounds every round-trip into a room actor so one wedged room
// cannot hang matchmaking for everyone else.
const replyTimeout = 2 * time.Second

// Directory maps room ids and codes to live rooms behind a single mutex.
// The mutex only ever guards the maps; no channel operation happens while it
// is held, so a room calling back into remove can never deadlock.
type Directory struct {
	cfg     config.Config
	reg     *registry.Registry
	log     *zap.Logger
	roomLog *zap.Logger // unnamed base handed to rooms
	scores  room.ScoreReporter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	rooms  map[string]*room.Room // by room id
	byCode map[string]*room.Room
}

func New(parent context.Context, cfg config.Config, reg *registry.Registry, log *zap.Logger, scores room.ScoreReporter) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Directory{
		cfg:     cfg,
		reg:     reg,
		log:     log.Named("directory"),
		roomLog: log,
		scores:  scores,
		ctx:     ctx,
		cancel:  cancel,
		rooms:   make(map[string]*room.Room),
		byCode:  make(map[string]*room.Room),
	}
}

// CreateOptions describes the room a player asked for.
type CreateOptions struct {
	GameType   protocol.GameType
	Private    bool
	MaxPlayers int // 0 picks the game default
	Settings   protocol.RoomSettings
}

// JoinRequest identifies who is joining on which connection.
type JoinRequest struct {
	ConnID   string
	PlayerID string // non-empty only when resuming a session
	Name     string
}

// Create opens a new room and registers it under a fresh code.
func (d *Directory) Create(opts CreateOptions) (*room.Room, error) {
	if !opts.GameType.Valid() {
		return nil, protocol.NewError(protocol.CodeBadRequest, fmt.Sprintf("unknown game type %q", opts.GameType))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() != nil {
		return nil, protocol.NewError(protocol.CodeRoomClosed, "server is shutting down")
	}

	code, err := d.uniqueCodeLocked()
	if err != nil {
		return nil, err
	}
	r, err := room.New(d.ctx, code, room.Options{
		GameType:   opts.GameType,
		Private:    opts.Private,
		MaxPlayers: opts.MaxPlayers,
		Settings:   opts.Settings,
		Config:     d.cfg,
		Registry:   d.reg,
		Log:        d.roomLog,
		Scores:     d.scores,
		OnEmpty:    d.remove,
	})
	if err != nil {
		return nil, err
	}
	d.rooms[r.ID()] = r
	d.byCode[code] = r

	d.log.Info("room created",
		zap.String("room_id", r.ID()),
		zap.String("code", code),
		zap.String("game", string(opts.GameType)),
		zap.Bool("private", opts.Private),
		zap.Int("rooms", len(d.rooms)))
	return r, nil
}

func (d *Directory) uniqueCodeLocked() (string, error) {
	for i := 0; i < 8; i++ {
		code, err := newCode()
		if err != nil {
			return "", err
		}
		if _, taken := d.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", protocol.NewError(protocol.CodeTimeout, "could not allocate a unique room code")
}

// remove is the rooms' on-empty callback. It runs on a room goroutine, so it
// must not block on anything but the map mutex.
func (d *Directory) remove(id string) {
	d.mu.Lock()
	r, ok := d.rooms[id]
	if ok {
		delete(d.rooms, id)
		delete(d.byCode, r.Code())
	}
	n := len(d.rooms)
	d.mu.Unlock()
	if ok {
		d.log.Info("room removed", zap.String("room_id", id), zap.Int("rooms", n))
	}
}

// Room resolves a room id.
func (d *Directory) Room(id string) (*room.Room, error) {
	d.mu.Lock()
	r := d.rooms[id]
	d.mu.Unlock()
	if r == nil {
		return nil, protocol.NewError(protocol.CodeRoomNotFound, "room not found")
	}
	return r, nil
}

// RoomByCode resolves a join code, tolerating lowercase input.
func (d *Directory) RoomByCode(raw string) (*room.Room, error) {
	code, err := NormalizeCode(raw)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	r := d.byCode[code]
	d.mu.Unlock()
	if r == nil {
		return nil, protocol.NewError(protocol.CodeRoomNotFound, "no room with that code")
	}
	return r, nil
}

// Join admits the player into the room with the given id. A ROOM_FULL
// refusal comes back decorated with alternative rooms worth trying.
func (d *Directory) Join(ctx context.Context, roomID string, req JoinRequest) (*room.Room, room.JoinResult, error) {
	r, err := d.Room(roomID)
	if err != nil {
		return nil, room.JoinResult{}, err
	}
	res, err := d.join(ctx, r, req)
	if err != nil {
		return nil, room.JoinResult{}, d.withAlternatives(err, r)
	}
	return r, res, nil
}

// JoinByCode is Join keyed by the human-readable room code.
func (d *Directory) JoinByCode(ctx context.Context, code string, req JoinRequest) (*room.Room, room.JoinResult, error) {
	r, err := d.RoomByCode(code)
	if err != nil {
		return nil, room.JoinResult{}, err
	}
	res, err := d.join(ctx, r, req)
	if err != nil {
		return nil, room.JoinResult{}, d.withAlternatives(err, r)
	}
	return r, res, nil
}

// QuickMatch drops the player into the fullest joinable room of the game
// type, opening a fresh one when nothing has a seat.
func (d *Directory) QuickMatch(ctx context.Context, gt protocol.GameType, req JoinRequest) (*room.Room, room.JoinResult, error) {
	if !gt.Valid() {
		return nil, room.JoinResult{}, protocol.NewError(protocol.CodeBadRequest, fmt.Sprintf("unknown game type %q", gt))
	}
	for _, cand := range d.joinable(gt, "") {
		res, err := d.join(ctx, cand.room, req)
		if err == nil {
			return cand.room, res, nil
		}
		if ctx.Err() != nil {
			return nil, room.JoinResult{}, protocol.NewError(protocol.CodeTimeout, "quick match timed out")
		}
		// Lost the race for the seat; fall through to the next candidate.
	}

	r, err := d.Create(CreateOptions{GameType: gt})
	if err != nil {
		return nil, room.JoinResult{}, err
	}
	res, err := d.join(ctx, r, req)
	if err != nil {
		return nil, room.JoinResult{}, err
	}
	return r, res, nil
}

func (d *Directory) join(ctx context.Context, r *room.Room, req JoinRequest) (room.JoinResult, error) {
	reply := make(chan room.JoinResult, 1)
	select {
	case r.Inbox() <- room.Join{ConnID: req.ConnID, PlayerID: req.PlayerID, Name: req.Name, Reply: reply}:
	case <-r.Done():
		return room.JoinResult{}, protocol.NewError(protocol.CodeRoomClosed, "room is closed")
	case <-ctx.Done():
		return room.JoinResult{}, protocol.NewError(protocol.CodeTimeout, "join timed out")
	}
	select {
	case res := <-reply:
		if res.Err != nil {
			return room.JoinResult{}, res.Err
		}
		return res, nil
	case <-ctx.Done():
		return room.JoinResult{}, protocol.NewError(protocol.CodeTimeout, "join timed out")
	}
}

// withAlternatives attaches fallback rooms to a ROOM_FULL refusal and leaves
// every other error alone.
func (d *Directory) withAlternatives(err error, r *room.Room) error {
	pe, ok := protocol.AsError(err)
	if !ok || pe.Code != protocol.CodeRoomFull {
		return err
	}
	return pe.WithAlternatives(d.alternatives(r.GameType(), r.ID()))
}

func (d *Directory) alternatives(gt protocol.GameType, excludeID string) []protocol.RoomInfo {
	cands := d.joinable(gt, excludeID)
	n := d.cfg.MaxAlternatives
	if n <= 0 {
		n = 3
	}
	if len(cands) > n {
		cands = cands[:n]
	}
	out := make([]protocol.RoomInfo, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.info)
	}
	return out
}

type candidate struct {
	room *room.Room
	info protocol.RoomInfo
}

// joinable snapshots public rooms of one game type that a fresh player could
// enter right now, fullest first. The mutex is released before any room is
// asked for its state.
func (d *Directory) joinable(gt protocol.GameType, excludeID string) []candidate {
	d.mu.Lock()
	snapshot := make([]*room.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		if r.Private() || r.ID() == excludeID {
			continue
		}
		if gt != "" && r.GameType() != gt {
			continue
		}
		snapshot = append(snapshot, r)
	}
	d.mu.Unlock()

	out := make([]candidate, 0, len(snapshot))
	for _, r := range snapshot {
		info, ok := d.infoOf(r)
		if !ok {
			continue
		}
		if info.State != protocol.StateLobby || info.Players >= info.MaxPlayers {
			continue
		}
		out = append(out, candidate{room: r, info: info})
	}
	sort.SliceStable(out, func(i, j int) bool {
		fi, fj := fillRatio(out[i].info), fillRatio(out[j].info)
		if fi != fj {
			return fi > fj
		}
		if out[i].info.Players != out[j].info.Players {
			return out[i].info.Players > out[j].info.Players
		}
		return out[i].info.Code < out[j].info.Code
	})
	return out
}

func fillRatio(info protocol.RoomInfo) float64 {
	if info.MaxPlayers == 0 {
		return 0
	}
	return float64(info.Players) / float64(info.MaxPlayers)
}

// infoOf asks a room for its listing entry. A closed or wedged room simply
// drops out of the result.
func (d *Directory) infoOf(r *room.Room) (protocol.RoomInfo, bool) {
	reply := make(chan protocol.RoomInfo, 1)
	select {
	case r.Inbox() <- room.GetInfo{Reply: reply}:
	case <-r.Done():
		return protocol.RoomInfo{}, false
	case <-time.After(replyTimeout):
		return protocol.RoomInfo{}, false
	}
	select {
	case info := <-reply:
		return info, true
	case <-r.Done():
		return protocol.RoomInfo{}, false
	case <-time.After(replyTimeout):
		return protocol.RoomInfo{}, false
	}
}

// List reports public rooms for the page layer, open lobbies first.
func (d *Directory) List(gt protocol.GameType) []protocol.RoomInfo {
	d.mu.Lock()
	snapshot := make([]*room.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		if r.Private() {
			continue
		}
		if gt != "" && r.GameType() != gt {
			continue
		}
		snapshot = append(snapshot, r)
	}
	d.mu.Unlock()

	out := make([]protocol.RoomInfo, 0, len(snapshot))
	for _, r := range snapshot {
		if info, ok := d.infoOf(r); ok {
			out = append(out, info)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].State == protocol.StateLobby, out[j].State == protocol.StateLobby
		if li != lj {
			return li
		}
		if out[i].Players != out[j].Players {
			return out[i].Players > out[j].Players
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Len reports the number of live rooms.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

// Shutdown says goodbye to every room and refuses creations from then on.
func (d *Directory) Shutdown(reason string) {
	d.mu.Lock()
	snapshot := make([]*room.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		snapshot = append(snapshot, r)
	}
	d.rooms = make(map[string]*room.Room)
	d.byCode = make(map[string]*room.Room)
	d.mu.Unlock()

	for _, r := range snapshot {
		select {
		case r.Inbox() <- room.Shutdown{Reason: reason}:
		case <-r.Done():
		case <-time.After(replyTimeout):
		}
	}
	d.cancel()
	d.log.Info("directory shut down", zap.Int("rooms", len(snapshot)))
}
