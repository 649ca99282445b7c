// Package websockettest serves scripted WebSocket peers for feed tests.
package websockettest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// Serve starts a server that upgrades each request and hands the connection to script.
// It returns the ws:// URL and closes the server when the test ends.
func Serve(t testing.TB, script func(conn *websocket.Conn)) string {
	return serve(t, false, script)
}

// ServeIgnoringPings is like Serve but never answers pings, so tests can simulate a
// feed that stopped responding.
func ServeIgnoringPings(t testing.TB, script func(conn *websocket.Conn)) string {
	return serve(t, true, script)
}

func serve(t testing.TB, silent bool, script func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		if silent {
			conn.SetPingHandler(func(string) error { return nil })
		}
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// Drain reads until the peer goes away so control frames keep being processed.
func Drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
