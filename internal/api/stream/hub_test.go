package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridwatch/internal/logger"
	"gridwatch/internal/model"
	"gridwatch/internal/poller"
)

// fakeSource serves a fixed current state. When emitOnCurrent is set, the
// first Current call also pushes that update into the feed, as a session
// would if a cycle finished while a client was connecting.
type fakeSource struct {
	mu            sync.Mutex
	feed          chan poller.Update
	current       []poller.Update
	emitOnCurrent *poller.Update
}

func (f *fakeSource) Subscribe() (<-chan poller.Update, func()) {
	return f.feed, func() {}
}

func (f *fakeSource) Current() []poller.Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]poller.Update(nil), f.current...)
	if f.emitOnCurrent != nil {
		f.feed <- *f.emitOnCurrent
		f.emitOnCurrent = nil
		// Leave the hub time to try broadcasting before registration.
		time.Sleep(50 * time.Millisecond)
	}
	return out
}

type envelope struct {
	Kind model.Kind `json:"kind"`
	Seq  uint64     `json:"seq"`
}

func startHub(t *testing.T, src Source) *httptest.Server {
	t.Helper()
	hub := NewHub(src, nil, logger.Discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var e envelope
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return e
}

func TestServeWSDeliversUpdateEmittedDuringConnect(t *testing.T) {
	src := &fakeSource{
		feed:          make(chan poller.Update, 4),
		current:       []poller.Update{{Kind: model.KindGrid, Seq: 5, Data: model.NewGridSnapshot()}},
		emitOnCurrent: &poller.Update{Kind: model.KindLedger, Seq: 6, Data: model.LedgerSnapshot{Timestamp: "2024-01-01T10:00:00Z"}},
	}
	conn := dial(t, startHub(t, src))

	if e := readEnvelope(t, conn); e.Kind != model.KindGrid || e.Seq != 5 {
		t.Fatalf("first message = %+v, want retained grid seq 5", e)
	}
	if e := readEnvelope(t, conn); e.Kind != model.KindLedger || e.Seq != 6 {
		t.Fatalf("second message = %+v, want ledger seq 6", e)
	}
}

func TestServeWSForwardsLiveUpdates(t *testing.T) {
	src := &fakeSource{feed: make(chan poller.Update, 4)}
	srv := startHub(t, src)
	conn := dial(t, srv)

	// Registration happens after the upgrade; resend until it lands.
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	done := make(chan envelope, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var e envelope
		if json.Unmarshal(msg, &e) == nil {
			done <- e
		}
	}()
	for seq := uint64(1); ; seq++ {
		src.feed <- poller.Update{Kind: model.KindConstraints, Seq: seq, Data: model.ConstraintsSnapshot{}}
		select {
		case e := <-done:
			if e.Kind != model.KindConstraints {
				t.Fatalf("unexpected message %+v", e)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no live update received")
		}
	}
}
