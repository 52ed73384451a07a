// Package testutil provides testing utilities for trsync, chiefly a scripted
// websocket broker speaking the connect/sub/unsub framing.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// SubscribeFunc returns the raw response frame for a subscribe request.
// Returning an empty string sends "<id> A {}".
type SubscribeFunc func(id uint64, payload map[string]any) string

// Broker is a scripted websocket endpoint for channel tests. It answers the
// connect handshake with "connected", delegates sub frames to a SubscribeFunc,
// and acks unsub frames. It records the id sequence for invariant assertions.
type Broker struct {
	t         *testing.T
	server    *httptest.Server
	subscribe SubscribeFunc

	mu       sync.Mutex
	subIDs   []uint64
	unsubIDs []uint64
	connects int
}

// NewBroker starts a scripted broker. The server shuts down with the test.
func NewBroker(t *testing.T, subscribe SubscribeFunc) *Broker {
	t.Helper()

	b := &Broker{t: t, subscribe: subscribe}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		b.serve(conn)
	}))
	t.Cleanup(b.server.Close)

	return b
}

// URL returns the ws:// endpoint of the broker
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

// SubscribeIDs returns the request ids seen on sub frames, in arrival order
func (b *Broker) SubscribeIDs() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint64(nil), b.subIDs...)
}

// UnsubscribeIDs returns the request ids seen on unsub frames, in arrival order
func (b *Broker) UnsubscribeIDs() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint64(nil), b.unsubIDs...)
}

// Connects returns how many connect handshakes completed
func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *Broker) serve(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		verb, rest, _ := strings.Cut(string(message), " ")
		switch verb {
		case "connect":
			b.mu.Lock()
			b.connects++
			b.mu.Unlock()
			if err := conn.WriteMessage(websocket.TextMessage, []byte("connected")); err != nil {
				return
			}

		case "sub":
			idText, payloadText, _ := strings.Cut(rest, " ")
			id, err := strconv.ParseUint(idText, 10, 64)
			if err != nil {
				b.t.Logf("broker: bad sub id %q", idText)
				return
			}

			var payload map[string]any
			if payloadText != "" {
				_ = json.Unmarshal([]byte(payloadText), &payload)
			}

			b.mu.Lock()
			b.subIDs = append(b.subIDs, id)
			b.mu.Unlock()

			var response string
			if b.subscribe != nil {
				response = b.subscribe(id, payload)
			}
			if response == "" {
				response = fmt.Sprintf("%d A {}", id)
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(response)); err != nil {
				return
			}

		case "unsub":
			id, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 64)
			if err != nil {
				b.t.Logf("broker: bad unsub id %q", rest)
				return
			}

			b.mu.Lock()
			b.unsubIDs = append(b.unsubIDs, id)
			b.mu.Unlock()

			if err := conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("%d C", id))); err != nil {
				return
			}

		default:
			b.t.Logf("broker: unknown frame %q", message)
			return
		}
	}
}

// PageResponse builds a timeline page frame with the given item JSON objects
// and an optional continuation cursor.
func PageResponse(id uint64, items []string, after string) string {
	cursors := "{}"
	if after != "" {
		cursors = fmt.Sprintf(`{"after":%q}`, after)
	}
	return fmt.Sprintf(`%d A {"items":[%s],"cursors":%s}`, id, strings.Join(items, ","), cursors)
}
