// Package wsclient maintains the agent's duplex connection to the server.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fileferry/fileferry/pkg/protocol"
)

// Conn represents a WebSocket connection to the server.
type Conn struct {
	conn       *websocket.Conn
	logger     *slog.Logger
	sendChan   chan protocol.Envelope
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	writeMu    sync.Mutex
}

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// Dial establishes a WebSocket connection to the server. apiKey, when
// non-empty, is sent as the X-API-Key header on the upgrade request.
func Dial(ctx context.Context, wsURL, apiKey string, logger *slog.Logger) (*Conn, error) {
	headers := http.Header{}
	if apiKey != "" {
		headers.Set("X-API-Key", apiKey)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}

	c := &Conn{
		conn:       conn,
		logger:     logger,
		sendChan:   make(chan protocol.Envelope, 256),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	// Start writer goroutine for serialized writes
	go c.writeLoop()

	return c, nil
}

// ReadLoop reads messages from the WebSocket connection and calls onEnv for
// each envelope. Returns when the connection is closed or the context is
// cancelled. A ping keepalive runs alongside so the connection survives file
// transfers that produce no traffic of their own.
func (c *Conn) ReadLoop(ctx context.Context, onEnv func(env protocol.Envelope)) error {
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.writeMu.Lock()
				c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				err := c.conn.WriteMessage(websocket.PingMessage, nil)
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		// Closing the connection forces ReadMessage() to unblock instantly
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return err
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("invalid JSON envelope", "error", err)
			continue
		}

		onEnv(env)
	}
}

// Send sends an envelope over the WebSocket connection.
// Uses a buffered channel to serialize writes and avoid concurrent write
// issues. Transfer goroutines may outlive the session and call this after
// Close; they get an error back, never a panic.
func (c *Conn) Send(env protocol.Envelope) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
	}
	select {
	case c.sendChan <- env:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	}
}

// writeLoop handles serialized writes to the WebSocket connection.
func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case <-c.done:
			return
		case env := <-c.sendChan:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.conn.WriteJSON(env)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Error("websocket write error", "error", err)
				c.shutdown()
				return
			}
		}
	}
}

// shutdown marks the connection closed. The send queue itself is never
// closed; late senders observe done and take the error path.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Close closes the WebSocket connection.
func (c *Conn) Close() error {
	c.shutdown()
	<-c.writerDone // Wait for write loop to finish
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Close()
}
