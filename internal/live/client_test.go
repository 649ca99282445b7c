package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/websockettest"
)

// feed serves the given payloads as binary messages, then runs after.
func feed(t *testing.T, payloads [][]byte, after func(conn *websocket.Conn)) string {
	return websockettest.Serve(t, func(conn *websocket.Conn) {
		for _, payload := range payloads {
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		}
		after(conn)
	})
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game over")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_, _, _ = conn.ReadMessage()
}

type collector struct {
	mu     sync.Mutex
	events []schema.Event
}

func (c *collector) sink(event schema.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func TestRunDeliversEventsInOrder(t *testing.T) {
	sent := []schema.Event{schema.NewRound(1), schema.NewRound(2), &schema.MatchFooter{Winner: 2, TotalRounds: 2}}
	var payloads [][]byte
	for _, event := range sent {
		payloads = append(payloads, schema.EncodeEvent(event))
	}
	url := feed(t, payloads, closeNormally)

	got := &collector{}
	client := NewClient(Config{URL: url}, got.sink, logging.NewTestLogger())
	if err := client.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got.events))
	}
	if r, ok := got.events[1].(*schema.Round); !ok || r.RoundID != 2 {
		t.Fatalf("unexpected second event %+v", got.events[1])
	}
	if f, ok := got.events[2].(*schema.MatchFooter); !ok || f.Winner != 2 {
		t.Fatalf("unexpected footer %+v", got.events[2])
	}
}

func TestRunStopsOnSinkError(t *testing.T) {
	url := feed(t, [][]byte{schema.EncodeEvent(schema.NewRound(1))}, closeNormally)
	refuse := errors.New("refused")
	client := NewClient(Config{URL: url}, func(schema.Event) error { return refuse }, logging.NewTestLogger())
	if err := client.Run(context.Background()); !errors.Is(err, refuse) {
		t.Fatalf("expected the sink error, got %v", err)
	}
}

func TestRunRejectsMalformedEvent(t *testing.T) {
	url := feed(t, [][]byte{{1, 2, 3}}, closeNormally)
	got := &collector{}
	client := NewClient(Config{URL: url}, got.sink, logging.NewTestLogger())
	if err := client.Run(context.Background()); !errors.Is(err, schema.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRunEndsWithContext(t *testing.T) {
	//1.- Keep reading so control frames are answered until the client leaves.
	url := feed(t, nil, websockettest.Drain)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(Config{URL: url, PingInterval: 10 * time.Millisecond}, (&collector{}).sink, logging.NewTestLogger())
	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestRunReportsDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewClient(Config{URL: url}, (&collector{}).sink, logging.NewTestLogger())
	err := client.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("expected a 404 dial error, got %v", err)
	}
}

func TestRunDropsUnresponsiveFeed(t *testing.T) {
	//1.- The server reads but never answers pings, so no pong ever extends the deadline.
	url := websockettest.ServeIgnoringPings(t, websockettest.Drain)

	client := NewClient(Config{URL: url, PingInterval: 20 * time.Millisecond}, (&collector{}).sink, logging.NewTestLogger())
	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(context.Background()) }()

	select {
	case err := <-errCh:
		var netErr interface{ Timeout() bool }
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			t.Fatalf("expected a read timeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not drop the silent feed")
	}
}
