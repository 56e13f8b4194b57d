package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dustfall/arcade-backend/internal/directory"
	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// CreateRoom opens a room ahead of the websocket handshake so the page layer
// can show the join code immediately. The body matches the create_room
// command payload.
func CreateRoom(d *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.CreateRoom
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, protocol.NewError(protocol.CodeBadRequest, "malformed body"))
			return
		}
		rm, err := d.Create(directory.CreateOptions{
			GameType:   req.GameType,
			Private:    req.Private,
			MaxPlayers: req.MaxPlayers,
			Settings:   req.Settings,
		})
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			RoomID   string            `json:"room_id"`
			Code     string            `json:"code"`
			GameType protocol.GameType `json:"game_type"`
		}{rm.ID(), rm.Code(), rm.GameType()})
	}
}

// ListRooms reports public rooms, optionally filtered with ?game=.
func ListRooms(d *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gt := protocol.GameType(r.URL.Query().Get("game"))
		if gt != "" && !gt.Valid() {
			writeError(w, http.StatusBadRequest, protocol.NewError(protocol.CodeBadRequest, "unknown game type"))
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Rooms []protocol.RoomInfo `json:"rooms"`
		}{Rooms: d.List(gt)})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProtocolError(w http.ResponseWriter, err error) {
	pe, ok := protocol.AsError(err)
	if !ok {
		pe = protocol.NewError(protocol.CodeBadRequest, err.Error())
	}
	writeError(w, statusFor(pe.Code), pe)
}

func writeError(w http.ResponseWriter, status int, pe *protocol.Error) {
	writeJSON(w, status, struct {
		Error *protocol.Error `json:"error"`
	}{Error: pe})
}

func statusFor(code protocol.ErrorCode) int {
	switch {
	case code == protocol.CodeBadRequest:
		return http.StatusBadRequest
	case code.Category() == protocol.CategoryCapacity:
		return http.StatusConflict
	case code.Category() == protocol.CategoryLookup:
		return http.StatusNotFound
	case code.Category() == protocol.CategoryPermission:
		return http.StatusForbidden
	case code.Category() == protocol.CategoryTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}
