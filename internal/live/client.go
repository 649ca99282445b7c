// Package live follows a game while it is being played. The match server sends one binary
// websocket message per event wrapper.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/schema"
)

const (
	defaultPingInterval     = 20 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// Sink receives every decoded event in order. Returning an error ends the feed.
type Sink func(event schema.Event) error

// Config describes the feed to follow.
type Config struct {
	URL    string
	Header http.Header
	// PingInterval is the keepalive cadence. The feed is dropped when no pong or message
	// arrives within two intervals.
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

// Client follows one live feed.
type Client struct {
	cfg    Config
	sink   Sink
	log    *logging.Logger
	dialer *websocket.Dialer
}

// NewClient prepares a client; nothing is dialed until Run.
func NewClient(cfg Config, sink Sink, log *logging.Logger) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if log == nil {
		log = logging.L()
	}
	return &Client{
		cfg:    cfg,
		sink:   sink,
		log:    log.With(logging.String("feed", cfg.URL)),
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// Run dials the feed and hands events to the sink until the server closes the feed, the
// context ends, or an event cannot be decoded or ingested. A normal close returns nil.
func (c *Client) Run(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()
	c.log.Info("live feed connected")

	//1.- Every pong or message pushes the read deadline out.
	wait := 2 * c.cfg.PingInterval
	extend := func() error { return conn.SetReadDeadline(time.Now().Add(wait)) }
	if err := extend(); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error { return extend() })

	done := make(chan struct{})
	defer close(done)
	go c.keepalive(ctx, conn, done)

	received := 0
	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("live feed closed", logging.Int("events", received))
				return nil
			}
			return fmt.Errorf("read live feed: %w", err)
		}
		if err := extend(); err != nil {
			return err
		}
		if kind != websocket.BinaryMessage {
			c.log.Warn("ignoring non-binary message", logging.Int("type", kind))
			continue
		}

		//2.- Decode and ingest in arrival order.
		event, err := schema.DecodeEvent(payload)
		if err != nil {
			return fmt.Errorf("event %d: %w", received, err)
		}
		if err := c.sink(event); err != nil {
			return fmt.Errorf("event %d (%s): %w", received, event.Type(), err)
		}
		received++
	}
}

// keepalive pings the server and closes the connection once ctx ends.
func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "viewer left")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.PingInterval)); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.log.Warn("ping failed", logging.Error(err))
				}
				return
			}
		}
	}
}
