package progress

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

// NotificationMethod is the outgoing MCP notification carrying progress
// payloads.
const NotificationMethod = "notifications/progress"

// MCPSink publishes progress on the MCP channel and delegates every event
// to an inner sink (normally the log sink) so the events are observable
// even when no client is attached.
type MCPSink struct {
	srv      *server.MCPServer
	delegate Sink
	logger   *slog.Logger
}

func NewMCPSink(srv *server.MCPServer, delegate Sink, logger *slog.Logger) *MCPSink {
	if delegate == nil {
		delegate = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPSink{srv: srv, delegate: delegate, logger: logger}
}

func (s *MCPSink) Publish(ctx context.Context, ev Event) {
	s.delegate.Publish(ctx, ev)
	if s.srv == nil {
		return
	}
	payload := map[string]any{
		"id":        ev.ID,
		"label":     ev.Label,
		"completed": ev.Completed,
		"total":     ev.Total,
		"status":    string(ev.Status),
	}
	if ev.Message != "" {
		payload["message"] = ev.Message
	}
	if len(ev.Attrs) > 0 {
		payload["attrs"] = ev.Attrs
	}
	// Notification failures never fail the publisher.
	s.srv.SendNotificationToAllClients(NotificationMethod, payload)
}
