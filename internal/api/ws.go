package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fileferry/fileferry/internal/metrics"
	"github.com/fileferry/fileferry/pkg/protocol"
)

const (
	wsReadLimit    = 64 * 1024
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// handleObserverWS accepts a browser-observer session. Observers only
// receive: status updates fan out to them and the agent's presence is
// announced on connect and on every change.
func (s *Server) handleObserverWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	sendFunc, stopPing := wsSender(conn)
	defer stopPing()

	remove := s.hub.AddObserver(connID, sendFunc)
	defer func() {
		remove()
		metrics.SetObserverSessions(s.hub.ObserverCount())
		s.logger.Info("observer disconnected", "conn_id", connID)
	}()
	metrics.SetObserverSessions(s.hub.ObserverCount())
	s.logger.Info("observer connected", "conn_id", connID)

	// Tell the new observer whether an agent is live right now.
	if env, err := newAgentStatusEnvelope(s.hub.AgentConnected()); err == nil {
		if err := sendFunc(env); err != nil {
			return
		}
	}

	// Observers are not expected to send anything meaningful; the read
	// loop exists to notice disconnects and keep pong handling alive.
	readUntilClosed(conn, func(env protocol.Envelope) {})
}

// handleAgentWS accepts the agent session after verifying the shared API
// key. Status events the agent emits are applied in arrival order, which
// preserves per-file ordering up to the registry's serialization point.
func (s *Server) handleAgentWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.logger.Warn("agent connection rejected: bad API key", "remote", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "invalid API key")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	sendFunc, stopPing := wsSender(conn)
	defer stopPing()

	remove := s.hub.SetAgent(connID, sendFunc)
	defer func() {
		remove()
		// remove is a no-op when a reconnect already replaced this
		// session, so re-check instead of assuming disconnected.
		connected := s.hub.AgentConnected()
		metrics.SetAgentConnected(connected)
		s.broadcastAgentStatus(connected)
		s.logger.Info("agent disconnected", "conn_id", connID)
	}()

	metrics.SetAgentConnected(true)
	s.broadcastAgentStatus(true)
	s.logger.Info("agent connected", "conn_id", connID)

	readUntilClosed(conn, func(env protocol.Envelope) {
		s.handleAgentEnvelope(env, sendFunc)
	})
}

// handleAgentEnvelope applies one inbound agent message. Rejected messages
// get an error envelope back on the same session; the session stays up.
func (s *Server) handleAgentEnvelope(env protocol.Envelope, reply func(env protocol.Envelope) error) {
	if err := env.ValidateBasic(); err != nil {
		s.logger.Warn("invalid envelope from agent", "error", err)
		s.replyError(reply, protocol.ErrCodeBadEnvelope, err.Error())
		return
	}

	switch env.Type {
	case protocol.TypeStatusUpdate:
		var update protocol.StatusUpdate
		if err := env.DecodePayload(&update); err != nil {
			s.logger.Warn("bad status_update payload", "error", err)
			s.replyError(reply, protocol.ErrCodeBadPayload, "status_update payload did not decode")
			return
		}
		if update.File == "" || !update.Status.Valid() {
			s.logger.Warn("bad status_update fields", "file", update.File, "status", update.Status)
			s.replyError(reply, protocol.ErrCodeBadPayload, "status_update needs a file and a valid status")
			return
		}
		s.registry.Set(update.File, update.Status)
		s.logger.Info("status update", "file", update.File, "status", update.Status)
	default:
		s.logger.Debug("rejecting agent message", "type", env.Type)
		s.replyError(reply, protocol.ErrCodeUnsupportedType, "unsupported message type: "+env.Type)
	}
}

func (s *Server) replyError(reply func(env protocol.Envelope) error, code, message string) {
	env, err := protocol.NewEnvelope(protocol.TypeError, protocol.NewMsgID(), protocol.Error{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	env.From = "server"
	if err := reply(env); err != nil {
		s.logger.Debug("error reply not delivered", "error", err)
	}
}

func (s *Server) broadcastAgentStatus(connected bool) {
	env, err := newAgentStatusEnvelope(connected)
	if err != nil {
		return
	}
	s.hub.Broadcast(env)
}

func newAgentStatusEnvelope(connected bool) (protocol.Envelope, error) {
	env, err := protocol.NewEnvelope(protocol.TypeAgentStatus, protocol.NewMsgID(), protocol.AgentStatus{
		Connected: connected,
	})
	if err != nil {
		return protocol.Envelope{}, err
	}
	env.From = "server"
	return env, nil
}

// wsSender returns a send function with serialized writes plus a stop
// function for the keepalive pinger it starts.
func wsSender(conn *websocket.Conn) (send func(env protocol.Envelope) error, stop func()) {
	var writeMu sync.Mutex

	stopPing := make(chan struct{})
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
				writeMu.Unlock()
			}
		}
	}()

	send = func(env protocol.Envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(env)
	}
	var once sync.Once
	stop = func() { once.Do(func() { close(stopPing) }) }
	return send, stop
}

// readUntilClosed consumes envelopes from conn until the peer goes away.
func readUntilClosed(conn *websocket.Conn, onEnv func(env protocol.Envelope)) {
	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if messageType != websocket.TextMessage {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			continue
		}
		onEnv(env)
	}
}
