package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/adapter/driven/signaling/wsbridge"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relay struct {
	hub *ws.Hub
	srv *httptest.Server
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	hub := ws.NewHub()
	go hub.Run()
	h := NewHandler(service.NewRelayService(hub), hub)
	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return &relay{hub: hub, srv: srv}
}

func (r *relay) connect(t *testing.T) (*wsbridge.Bridge, domain.UserID, chan domain.Signal) {
	t.Helper()
	id := domain.NewUserID()
	b, err := wsbridge.Dial(context.Background(), "ws"+strings.TrimPrefix(r.srv.URL, "http")+"/ws", id)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	got := make(chan domain.Signal, 8)
	b.Subscribe(func(s domain.Signal) { got <- s })
	require.Eventually(t, func() bool { return r.hub.Online(id) }, time.Second, 5*time.Millisecond)
	return b, id, got
}

func receive(t *testing.T, ch chan domain.Signal) domain.Signal {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no signal received")
		return domain.Signal{}
	}
}

func TestRelayForwardsAndStampsSender(t *testing.T) {
	r := newRelay(t)
	alice, aliceID, _ := r.connect(t)
	_, bobID, bobGot := r.connect(t)

	offer := domain.Signal{
		Type:     domain.SignalOffer,
		CallID:   domain.NewCallID(),
		From:     bobID, // spoofed, relay overwrites it
		FromName: "Alice",
		To:       bobID,
		Kind:     domain.KindVideo,
		SDP:      &domain.SessionDescription{Type: domain.SDPOffer, SDP: "v=0"},
	}
	require.NoError(t, alice.Send(context.Background(), offer))

	got := receive(t, bobGot)
	assert.Equal(t, domain.SignalOffer, got.Type)
	assert.Equal(t, aliceID, got.From)
	assert.Equal(t, "Alice", got.FromName)
	assert.Equal(t, offer.CallID, got.CallID)
	assert.Equal(t, domain.KindVideo, got.Kind)
	require.NotNil(t, got.SDP)
	assert.Equal(t, "v=0", got.SDP.SDP)
}

func TestRelayBouncesOfferToOfflineUser(t *testing.T) {
	r := newRelay(t)
	alice, _, aliceGot := r.connect(t)
	ghost := domain.NewUserID()
	callID := domain.NewCallID()

	require.NoError(t, alice.Send(context.Background(), domain.Signal{
		Type:   domain.SignalOffer,
		CallID: callID,
		To:     ghost,
		Kind:   domain.KindVoice,
		SDP:    &domain.SessionDescription{Type: domain.SDPOffer, SDP: "v=0"},
	}))

	got := receive(t, aliceGot)
	assert.Equal(t, domain.SignalReject, got.Type)
	assert.Equal(t, callID, got.CallID)
	assert.Equal(t, ghost, got.From)
	assert.Equal(t, domain.RejectOffline, got.Reason)
}

func TestRelayDropsInvalidSignal(t *testing.T) {
	r := newRelay(t)
	alice, _, _ := r.connect(t)
	_, bobID, bobGot := r.connect(t)

	// An answer without sdp is refused and never reaches bob.
	require.NoError(t, alice.Send(context.Background(), domain.Signal{
		Type:   domain.SignalAnswer,
		CallID: domain.NewCallID(),
		To:     bobID,
	}))
	require.NoError(t, alice.Send(context.Background(), domain.Signal{
		Type:   domain.SignalCancel,
		CallID: domain.NewCallID(),
		To:     bobID,
	}))

	assert.Equal(t, domain.SignalCancel, receive(t, bobGot).Type)
}

func TestServeWSRequiresUserID(t *testing.T) {
	r := newRelay(t)
	resp, err := http.Get(r.srv.URL + "/ws?user_id=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	r := newRelay(t)
	resp, err := http.Get(r.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}
