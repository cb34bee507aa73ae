// Package wsport connects ports over a websocket.
package wsport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stateforward/go-iventy/port"
)

type Config struct {
	// WriteWait bounds every write, zero disables the deadline.
	WriteWait time.Duration
	// ReadLimit is the largest message accepted, zero means no limit.
	ReadLimit int64
	Logger    *slog.Logger
}

var DefaultConfig = Config{
	WriteWait: 10 * time.Second,
	ReadLimit: 1 << 20,
}

// Transport sends port messages as JSON text frames. Send is safe for
// concurrent use.
type Transport struct {
	conn   *websocket.Conn
	config Config
	mutex  sync.Mutex
}

func New(conn *websocket.Conn, maybeConfig ...Config) *Transport {
	config := DefaultConfig
	if len(maybeConfig) > 0 {
		config = maybeConfig[0]
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ReadLimit > 0 {
		conn.SetReadLimit(config.ReadLimit)
	}
	return &Transport{conn: conn, config: config}
}

func (transport *Transport) Send(message port.Message) error {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	if transport.config.WriteWait > 0 {
		if err := transport.conn.SetWriteDeadline(time.Now().Add(transport.config.WriteWait)); err != nil {
			return err
		}
	}
	return transport.conn.WriteJSON(message)
}

// Close sends a normal closure frame and closes the connection.
func (transport *Transport) Close() error {
	transport.mutex.Lock()
	deadline := time.Now().Add(time.Second)
	err := transport.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	transport.mutex.Unlock()
	if closeErr := transport.conn.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Serve reads messages from the connection and consumes them on p until the
// peer closes the connection or ctx is done. Malformed messages are logged
// and skipped. Handlers reached through p run on the calling goroutine.
func (transport *Transport) Serve(ctx context.Context, p *port.Port) error {
	stop := context.AfterFunc(ctx, func() {
		transport.conn.Close()
	})
	defer stop()
	for {
		_, raw, err := transport.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				transport.config.Logger.Debug("websocket closed", "error", err)
				return nil
			}
			return err
		}
		if err := p.Consume(raw); err != nil {
			transport.config.Logger.Warn("dropping websocket message", "error", err)
		}
	}
}
