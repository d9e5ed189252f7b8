package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	evhttp "github.com/evwire/evhttp"
	"github.com/evwire/evhttp/ws"
)

// echoServer upgrades with gorilla/websocket and echoes every message, so
// the client side of the handshake and frame codec is tested against an
// independent implementation.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketEcho(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cl := evhttp.NewClient()
	resp, err := cl.Do(ctx, cl.NewRequest("GET", wsURL(srv)))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode() != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode())
	}
	conn, ok := resp.Upgraded().(*ws.Conn)
	if !ok {
		t.Fatalf("Upgraded() = %T, want *ws.Conn", resp.Upgraded())
	}
	defer conn.Close(1000, "done")

	for _, msg := range []string{"first", "second", strings.Repeat("x", 200)} {
		if err := conn.WriteText(msg); err != nil {
			t.Fatal(err)
		}
		op, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if op != ws.OpText || string(payload) != msg {
			t.Errorf("echo = %v %q, want %q", op, payload, msg)
		}
	}

	if err := conn.WriteBinary([]byte{0, 1, 2}); err != nil {
		t.Fatal(err)
	}
	op, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if op != ws.OpBinary || len(payload) != 3 {
		t.Errorf("binary echo = %v %q", op, payload)
	}
}

func TestWebsocketBadAccept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, rw, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Error(err)
			return
		}
		defer conn.Close()
		rw.WriteString("HTTP/1.1 101 Switching Protocols\r\n" +
			"Connection: Upgrade\r\nUpgrade: websocket\r\n" +
			"Sec-WebSocket-Accept: bogus\r\n\r\n")
		rw.Flush()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cl := evhttp.NewClient()
	_, err := cl.Do(ctx, cl.NewRequest("GET", wsURL(srv)))
	if err == nil || !strings.Contains(err.Error(), "handshake") {
		t.Errorf("err = %v, want handshake failure", err)
	}
}
