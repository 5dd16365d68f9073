// Package agent implements the private agent: it keeps a duplex session to
// the public server, executes download commands, and reports status.
package agent

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fileferry/fileferry/internal/config"
	"github.com/fileferry/fileferry/internal/wsclient"
	"github.com/fileferry/fileferry/pkg/protocol"
)

// Agent maintains the server session and runs transfers.
type Agent struct {
	cfg       config.AgentConfig
	executor  *Executor
	logger    *slog.Logger
	connected atomic.Bool
}

// New creates an agent. The executor writes downloads under cfg.FilesDir.
func New(cfg config.AgentConfig, logger *slog.Logger) (*Agent, error) {
	exec, err := NewExecutor(cfg.ServerURL, cfg.APIKey, cfg.FilesDir)
	if err != nil {
		return nil, err
	}
	return &Agent{
		cfg:      cfg,
		executor: exec,
		logger:   logger,
	}, nil
}

// Connected reports whether the server session is currently live.
func (a *Agent) Connected() bool {
	return a.connected.Load()
}

// FilesDir returns the agent's download destination directory.
func (a *Agent) FilesDir() string {
	return a.cfg.FilesDir
}

// Run connects to the server and serves commands until ctx is cancelled.
// On any disconnect it waits the configured interval and retries forever:
// a lost server is expected to come back.
func (a *Agent) Run(ctx context.Context) error {
	wsURL, err := agentWSURL(a.cfg.ServerURL)
	if err != nil {
		return err
	}

	for {
		if err := a.runSession(ctx, wsURL); err != nil && ctx.Err() == nil {
			a.logger.Error("session ended", "error", err)
		}
		a.connected.Store(false)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.ReconnectInterval):
		}
	}
}

func (a *Agent) runSession(ctx context.Context, wsURL string) error {
	a.logger.Info("connecting to server", "url", wsURL)
	conn, err := wsclient.Dial(ctx, wsURL, a.cfg.APIKey, a.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	a.connected.Store(true)
	a.logger.Info("connected to server")

	// Transfers run on their own goroutines so the read loop keeps
	// servicing keepalives and further commands during a download.
	return conn.ReadLoop(ctx, func(env protocol.Envelope) {
		a.handleEnvelope(ctx, conn, env)
	})
}

func (a *Agent) handleEnvelope(ctx context.Context, conn *wsclient.Conn, env protocol.Envelope) {
	if err := env.ValidateBasic(); err != nil {
		a.logger.Warn("invalid envelope", "error", err)
		return
	}

	switch env.Type {
	case protocol.TypeDownload:
		var cmd protocol.Download
		if err := env.DecodePayload(&cmd); err != nil {
			a.logger.Warn("bad download payload", "error", err)
			return
		}
		if cmd.File == "" {
			a.logger.Warn("download command without file name")
			return
		}
		go a.runTransfer(ctx, conn, cmd.File)
	case protocol.TypeError:
		var perr protocol.Error
		if err := env.DecodePayload(&perr); err != nil {
			a.logger.Warn("bad error payload", "error", err)
			return
		}
		a.logger.Warn("server rejected a message", "code", perr.Code, "message", perr.Message)
	default:
		a.logger.Debug("ignoring message", "type", env.Type)
	}
}

// runTransfer executes one download command and emits exactly one terminal
// status event for it. The server already set the file to downloading when
// it accepted the command, so no downloading echo is sent from here.
func (a *Agent) runTransfer(ctx context.Context, conn *wsclient.Conn, file string) {
	status := protocol.StatusComplete
	if err := a.executor.Fetch(ctx, file); err != nil {
		a.logger.Error("transfer failed", "file", file, "error", err)
		status = protocol.StatusError
	} else {
		a.logger.Info("transfer complete", "file", file)
	}

	env, err := protocol.NewEnvelope(protocol.TypeStatusUpdate, protocol.NewMsgID(), protocol.StatusUpdate{
		File:   file,
		Status: status,
	})
	if err != nil {
		return
	}
	env.From = "agent"
	if err := conn.Send(env); err != nil {
		// Session died before the event went out; the server keeps its
		// last known status until a new command supersedes it.
		a.logger.Warn("could not report status", "file", file, "status", status, "error", err)
	}
}

// agentWSURL converts the configured server URL to the agent WS endpoint.
func agentWSURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/agent"
	return u.String(), nil
}
