package status

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowgate/flowgate/internal/router"
)

// fakeSource counts snapshot reads so tests can prove the reporter only
// observes.
type fakeSource struct {
	mu    sync.Mutex
	reads int
	stats router.Stats
}

func (f *fakeSource) Stats() router.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.stats
}

func (f *fakeSource) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func testStats() router.Stats {
	return router.Stats{
		TotalRouted: 42,
		TotalUsers:  7,
		Backends: []router.BackendStats{
			{Backend: 0, URL: "http://b0", CurrentQPS: 1.0, QueueDepth: 3, BoundUsers: 4},
			{Backend: 1, URL: "http://b1", CurrentQPS: 0.5, QueueDepth: 0, BoundUsers: 3},
		},
	}
}

func TestReporter_StartStop(t *testing.T) {
	source := &fakeSource{stats: testStats()}
	r := New(Config{Interval: 10 * time.Millisecond}, source, nil, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if source.readCount() == 0 {
		t.Error("reporter never snapshotted the source")
	}
}

func TestFeed_BroadcastReachesSubscriber(t *testing.T) {
	feed := NewFeed(nil)
	defer feed.Close()

	srv := httptest.NewServer(feed)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Subscription is registered during the upgrade handshake; broadcast
	// right away.
	feed.Broadcast(testStats())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}

	var got router.Stats
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if got.TotalRouted != 42 {
		t.Errorf("TotalRouted = %d, want 42", got.TotalRouted)
	}
	if len(got.Backends) != 2 {
		t.Errorf("len(Backends) = %d, want 2", len(got.Backends))
	}
}

func TestFeed_DisconnectedSubscriberDropped(t *testing.T) {
	feed := NewFeed(nil)
	defer feed.Close()

	srv := httptest.NewServer(feed)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	conn.Close()

	// Give the feed's read loop a moment to notice the close.
	time.Sleep(50 * time.Millisecond)

	feed.mu.Lock()
	subscribers := len(feed.conns)
	feed.mu.Unlock()
	if subscribers != 0 {
		t.Errorf("subscribers = %d, want 0 after disconnect", subscribers)
	}

	// Broadcasting to nobody must not panic.
	feed.Broadcast(testStats())
}

func TestReporter_BroadcastsToFeed(t *testing.T) {
	feed := NewFeed(nil)
	defer feed.Close()

	srv := httptest.NewServer(feed)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	source := &fakeSource{stats: testStats()}
	r := New(Config{Interval: 10 * time.Millisecond}, source, feed, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(context.Background())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var got router.Stats
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if got.TotalUsers != 7 {
		t.Errorf("TotalUsers = %d, want 7", got.TotalUsers)
	}
}
