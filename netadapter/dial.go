package netadapter

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/jpillora/backoff"
)

// DialOptions configures DialWithBackoff.
type DialOptions struct {
	// MaxRetryInterval caps the backoff delay between attempts. Zero means
	// 5 minutes.
	MaxRetryInterval time.Duration
	// MaxRetryCount caps the number of retries after the first failed
	// dial. Zero (the zero value) makes a single dial with no retry; a
	// negative value retries forever.
	MaxRetryCount int
	// Header carries any request headers (e.g. auth) to send on upgrade.
	Header http.Header
	// Subprotocols is passed through to websocket.Dialer.Subprotocols.
	Subprotocols []string
	Log          hclog.Logger
}

// DialWithBackoff dials url, retrying with jpillora/backoff spacing on
// failure.
func DialWithBackoff(url string, opts DialOptions) (*WebSocketSubscriber, error) {
	if opts.MaxRetryInterval <= 0 {
		opts.MaxRetryInterval = 5 * time.Minute
	}
	if opts.Log == nil {
		opts.Log = hclog.NewNullLogger()
	}
	log := opts.Log.Named("netadapter.dial")

	dialer := websocket.Dialer{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 45 * time.Second,
		Subprotocols:     opts.Subprotocols,
	}

	b := &backoff.Backoff{Max: opts.MaxRetryInterval}
	var lastErr error
	for {
		attempt := int(b.Attempt())
		if lastErr != nil {
			if opts.MaxRetryCount >= 0 && attempt >= opts.MaxRetryCount {
				return nil, fmt.Errorf("netadapter: giving up after %d attempts: %w", attempt+1, lastErr)
			}
			d := b.Duration()
			log.Info("retrying dial", "attempt", attempt, "delay", d, "error", lastErr)
			time.Sleep(d)
		}

		conn, _, err := dialer.Dial(url, opts.Header)
		if err != nil {
			lastErr = err
			continue
		}
		return NewWebSocketSubscriber(conn, log), nil
	}
}
