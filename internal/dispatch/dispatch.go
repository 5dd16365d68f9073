// Package dispatch implements the server's command channel: it validates a
// download request against the catalog, checks agent availability, applies
// the optimistic registry update, and forwards the command to the agent.
package dispatch

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fileferry/fileferry/internal/catalog"
	"github.com/fileferry/fileferry/internal/hub"
	"github.com/fileferry/fileferry/internal/metrics"
	"github.com/fileferry/fileferry/internal/registry"
	"github.com/fileferry/fileferry/pkg/protocol"
)

// ErrNotFound is returned when the requested file is not in the catalog.
var ErrNotFound = catalog.ErrNotFound

// ErrAgentUnavailable is returned when no agent session is connected.
var ErrAgentUnavailable = errors.New("no agent connected")

// Dispatcher accepts download submissions and forwards them to the agent.
type Dispatcher struct {
	catalog  *catalog.Catalog
	hub      *hub.Hub
	registry *registry.Registry
	logger   *slog.Logger
}

// New creates a dispatcher.
func New(cat *catalog.Catalog, h *hub.Hub, reg *registry.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		catalog:  cat,
		hub:      h,
		registry: reg,
		logger:   logger,
	}
}

// SubmitDownload asks the agent to download file. On acceptance the file's
// status becomes downloading immediately; the resulting terminal status
// arrives later over the agent session. Rejections leave the registry
// untouched. Resubmitting an in-flight file is accepted again and restarts
// the transfer at the agent (file name is the correlation key; commands are
// not queued).
func (d *Dispatcher) SubmitDownload(file string) error {
	if !d.catalog.Has(file) {
		metrics.RecordCommand("not_found")
		return ErrNotFound
	}
	if !d.hub.AgentConnected() {
		metrics.RecordCommand("agent_unavailable")
		return ErrAgentUnavailable
	}

	env, err := protocol.NewEnvelope(protocol.TypeDownload, uuid.NewString(), protocol.Download{File: file})
	if err != nil {
		return err
	}
	env.From = "server"

	d.registry.Set(file, protocol.StatusDownloading)

	if !d.hub.SendToAgent(env) {
		// Agent vanished between the availability check and the send.
		// The optimistic update already happened, so resolve the attempt
		// with a synthesized error rather than leaving it downloading.
		d.registry.Set(file, protocol.StatusError)
		metrics.RecordCommand("agent_unavailable")
		return ErrAgentUnavailable
	}

	metrics.RecordCommand("accepted")
	d.logger.Info("download command sent", "file", file, "msg_id", env.MsgID)
	return nil
}
