// Package wsbridge is the endpoint side of the relay: it implements
// port.SignalingBridge over one websocket connection.
package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait    = 10 * time.Second
	closeTimeout = time.Second
)

var ErrBridgeClosed = errors.New("signaling bridge closed")

type subscription struct {
	id      uint64
	handler func(domain.Signal)
}

type Bridge struct {
	self domain.UserID
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   []subscription
	nextID uint64

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay at rawURL as self and starts reading.
func Dial(ctx context.Context, rawURL string, self domain.UserID) (*Bridge, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse signaling url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", self.String())
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	b := &Bridge{
		self: self,
		conn: conn,
		done: make(chan struct{}),
	}
	go b.readLoop()
	log.Info().Str("url", u.Redacted()).Msg("Connected to signaling relay")
	return b, nil
}

func (b *Bridge) Send(ctx context.Context, sig domain.Signal) error {
	select {
	case <-b.done:
		return ErrBridgeClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := b.conn.WriteJSON(domain.Envelope{Type: domain.EnvelopeSignal, Signal: &sig}); err != nil {
		return fmt.Errorf("send %s: %w", sig.Type, err)
	}
	return nil
}

// Subscribe registers handler for every inbound signal. Handlers run on
// the read goroutine in subscription order, without any bridge lock held,
// so they may subscribe or unsubscribe themselves.
func (b *Bridge) Subscribe(handler func(domain.Signal)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Done is closed when the connection to the relay is gone.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.writeMu.Lock()
		_ = b.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout),
		)
		b.writeMu.Unlock()
		err = b.conn.Close()
	})
	return err
}

func (b *Bridge) readLoop() {
	defer close(b.done)
	for {
		var env domain.Envelope
		if err := b.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("Signaling connection lost")
			}
			return
		}

		switch env.Type {
		case domain.EnvelopeSignal:
			if env.Signal == nil {
				log.Warn().Msg("Signal frame without signal")
				continue
			}
			b.dispatch(*env.Signal)
		case domain.EnvelopeError:
			log.Warn().Str("error", env.Error).Msg("Relay refused a signal")
		default:
			log.Warn().Str("type", string(env.Type)).Msg("Unknown frame from relay")
		}
	}
}

func (b *Bridge) dispatch(sig domain.Signal) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(sig)
	}
}

var _ port.SignalingBridge = (*Bridge)(nil)
