package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Hub tracks one connection per user and implements port.RealTimeGateway.
type Hub struct {
	mu         sync.RWMutex
	clients    map[domain.UserID]Client
	register   chan Client
	unregister chan Client
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.UserID]Client),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) SendSignal(ctx context.Context, to domain.UserID, signal domain.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	client, ok := h.clients[to]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRecipientOffline, to)
	}

	if err := client.SendSignal(signal); err != nil {
		log.Error().Err(err).Str("client_id", to.String()).Msg("Error sending signal")
		h.Unregister(client)
		return fmt.Errorf("%w: %s: %w", domain.ErrRecipientOffline, to, err)
	}
	return nil
}

// Online reports whether a user currently holds a connection.
func (h *Hub) Online(id domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				client.Close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			// A reconnect replaces the previous connection of the same user.
			old, ok := h.clients[client.ID()]
			h.clients[client.ID()] = client
			h.mu.Unlock()
			if ok && old != client {
				old.Close()
				log.Info().Str("client_id", client.ID().String()).Msg("Client replaced")
			}
			log.Info().Str("client_id", client.ID().String()).Msg("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			cur, ok := h.clients[client.ID()]
			if ok && cur == client {
				delete(h.clients, client.ID())
			}
			h.mu.Unlock()
			if ok && cur == client {
				client.Close()
				log.Info().Str("client_id", client.ID().String()).Msg("Client unregistered")
			}
		}
	}
}

func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		c.Close()
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

var _ port.RealTimeGateway = (*Hub)(nil)
