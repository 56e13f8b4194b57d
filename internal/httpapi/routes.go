package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dustfall/arcade-backend/internal/directory"
	"github.com/dustfall/arcade-backend/internal/ws"
)

// SetupRoutes wires the REST surface for the page layer and the websocket
// endpoint the game itself runs over.
func SetupRoutes(d *directory.Directory, wsh *ws.Handler) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Post("/api/rooms", CreateRoom(d))
	r.Get("/api/rooms", ListRooms(d))
	r.Get("/healthz", Healthz)
	r.Get("/ws", wsh.ServeHTTP)
	return r
}
