// Package netadapter provides concrete transport adapters that satisfy the
// tlspump package's Subscriber/UpstreamSource contracts over real network
// connections. tlspump itself never imports net or net/http; this package
// is the bridge a caller wires in.
package netadapter

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/cobalt-tunnel/tlspump"
)

// WebSocketSubscriber adapts a *websocket.Conn into both a tlspump.Subscriber
// (frames are written out as binary messages) and a tlspump.UpstreamSource
// (incoming binary messages are delivered to a registered Subscriber). This
// package owns the *websocket.Conn; tlspump owns none of it.
type WebSocketSubscriber struct {
	conn *websocket.Conn
	log  hclog.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	sub  tlspump.Subscriber
	done chan struct{}
}

// NewWebSocketSubscriber wraps an already-established websocket connection.
func NewWebSocketSubscriber(conn *websocket.Conn, log hclog.Logger) *WebSocketSubscriber {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &WebSocketSubscriber{
		conn: conn,
		log:  log.Named("netadapter.websocket"),
		done: make(chan struct{}),
	}
}

// OnNext implements tlspump.Subscriber: each call writes one binary
// websocket message per non-empty buffer in the frame, in order; empty
// buffers are skipped. When final is true it then writes a websocket close
// frame (normal closure), ignoring any error from that write; the
// underlying connection is left open.
func (w *WebSocketSubscriber) OnNext(frame tlspump.Frame, final bool) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	for _, b := range frame {
		if len(b) == 0 {
			continue
		}
		if err := w.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
			return err
		}
	}
	if final {
		_ = w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	return nil
}

// OnError implements tlspump.Subscriber: closes the underlying connection.
func (w *WebSocketSubscriber) OnError(err error) {
	w.log.Debug("closing websocket after pump error", "error", err)
	_ = w.conn.Close()
}

// Subscribe implements tlspump.UpstreamSource: registers sub and starts the
// read pump goroutine. Subscribe may only be called once.
func (w *WebSocketSubscriber) Subscribe(sub tlspump.Subscriber) {
	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()

	sub.OnSubscribe(&wsSubscription{ws: w})
	go w.readLoop()
}

func (w *WebSocketSubscriber) readLoop() {
	for {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			sub := w.sub
			w.mu.Unlock()
			if sub != nil {
				sub.OnError(err)
			}
			close(w.done)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		w.mu.Lock()
		sub := w.sub
		w.mu.Unlock()
		if sub == nil {
			continue
		}
		if err := sub.OnNext(tlspump.Frame{data}, false); err != nil {
			sub.OnError(err)
			_ = w.conn.Close()
			close(w.done)
			return
		}
	}
}

// Done returns a channel closed once the read loop has exited.
func (w *WebSocketSubscriber) Done() <-chan struct{} {
	return w.done
}

// wsSubscription is the Subscription handed to the reader side's Subscriber.
// Request is a no-op: the websocket read loop runs continuously and relies
// on TCP-level flow control rather than explicit per-frame credit.
type wsSubscription struct {
	ws *WebSocketSubscriber
}

func (s *wsSubscription) Request(n int64) {}

func (s *wsSubscription) Cancel() {
	_ = s.ws.conn.Close()
}
