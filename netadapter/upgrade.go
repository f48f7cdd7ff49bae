package netadapter

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/jpillora/requestlog"
	"github.com/tomasen/realip"
)

// UpgradeHandlerOptions configures UpgradeHandler.
type UpgradeHandlerOptions struct {
	// CheckOrigin overrides the default permissive origin check. nil means
	// allow all origins.
	CheckOrigin func(r *http.Request) bool
	// AccessLog wraps the handler in jpillora/requestlog when true.
	AccessLog bool
	Log       hclog.Logger
}

// UpgradeHandler returns an http.Handler that upgrades every request to a
// websocket ciphertext transport and hands the resulting
// *WebSocketSubscriber to accept. realip resolves the client address that
// is passed to accept and logged when the upgrade fails; the optional
// requestlog access log does not use it.
func UpgradeHandler(opts UpgradeHandlerOptions, accept func(ws *WebSocketSubscriber, remoteAddr string)) http.Handler {
	if opts.Log == nil {
		opts.Log = hclog.NewNullLogger()
	}
	log := opts.Log.Named("netadapter.upgrade")

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remote := realip.FromRequest(r)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", "remote", remote, "error", err)
			return
		}
		ws := NewWebSocketSubscriber(conn, log)
		accept(ws, remote)
	})

	if opts.AccessLog {
		return requestlog.Wrap(h)
	}
	return h
}
