package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Endpoints are native processes, not pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSClient struct {
	id   domain.UserID
	conn *websocket.Conn

	// gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

func (c *WSClient) ID() domain.UserID {
	return c.id
}

func (c *WSClient) SendSignal(signal domain.Signal) error {
	return c.write(domain.Envelope{Type: domain.EnvelopeSignal, Signal: &signal})
}

func (c *WSClient) SendError(msg string) error {
	return c.write(domain.Envelope{Type: domain.EnvelopeError, Error: msg})
}

func (c *WSClient) write(env domain.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(env)
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

// ServeWS attaches an endpoint. The caller names itself with the user_id
// query parameter; every signal it sends is stamped with that id.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientID, err := domain.NewUserIDFromString(r.URL.Query().Get("user_id"))
	if err != nil || clientID.IsZero() {
		http.Error(w, "user_id query parameter must be a uuid", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:   clientID,
		conn: conn,
	}

	l := log.With().Str("client_id", clientID.String()).Logger()
	l.Info().Msg("New client connected")

	h.Hub.Register(client)

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Hub.Unregister(client)
		conn.Close()
	}()

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		if env.Type != domain.EnvelopeSignal || env.Signal == nil {
			l.Warn().Str("type", string(env.Type)).Msg("Ignoring frame without signal")
			_ = client.SendError("expected a signal frame")
			continue
		}

		if err := h.RelayService.HandleSignal(r.Context(), client.id, *env.Signal); err != nil {
			l.Warn().Err(err).Str("type", string(env.Signal.Type)).Msg("Failed to relay signal")
			_ = client.SendError(err.Error())
		}
	}
}
