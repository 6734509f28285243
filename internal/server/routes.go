package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mindmesh/roomcall/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// The browser front-end is served from a different origin.
	// TODO: restrict to the deployed frontend domain.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter builds the HTTP surface: a health probe and the websocket
// signaling endpoint.
func NewRouter(hub *signaling.Hub, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("signaling server is healthy"))
	})

	r.Get("/ws", ServeWs(hub, log))

	return r
}

// ServeWs returns the handler that upgrades requests to websocket
// connections and hands them to the hub. Each connection gets a fresh
// participant id; the id dies with the connection.
func ServeWs(hub *signaling.Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := hub.NewClient(conn, uuid.New().String())
		client.Hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
