package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stepflow/internal/streaming"
)

// notificationMethod is the MCP method used for run progress pushes.
const notificationMethod = "notifications/message"

// ClientNotifier pushes a payload to one MCP session.
type ClientNotifier interface {
	SendNotificationToSpecificClient(sessionID, method string, params map[string]any) error
}

// ProgressNotifier forwards hub events to the sessions watching the
// event's workflow.
type ProgressNotifier struct {
	client   ClientNotifier
	sessions *SessionRegistry
	logger   *slog.Logger
}

// NewProgressNotifier creates a notifier that pushes via client.
func NewProgressNotifier(client ClientNotifier, sessions *SessionRegistry, logger *slog.Logger) *ProgressNotifier {
	return &ProgressNotifier{client: client, sessions: sessions, logger: logger}
}

// Notify sends event to every watching session.
// Best-effort: a vanished session is unregistered and skipped.
func (n *ProgressNotifier) Notify(event streaming.Event) {
	sessions := n.sessions.SessionsFor(event.WorkflowID)
	if len(sessions) == 0 {
		return
	}
	payload := eventPayload(event)
	for _, sid := range sessions {
		err := n.client.SendNotificationToSpecificClient(sid, notificationMethod, payload)
		switch {
		case err == nil:
		case errors.Is(err, server.ErrSessionNotFound):
			n.sessions.Remove(sid)
		default:
			n.logger.Debug("progress notification failed", "session", sid, "run_id", event.RunID, "error", err)
		}
	}
}

// Forward subscribes to hub and notifies until ctx is done.
func (n *ProgressNotifier) Forward(ctx context.Context, hub streaming.EventHub) error {
	events, unsubscribe, err := hub.Subscribe(ctx, streaming.Filter{})
	if err != nil {
		return err
	}
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			n.Notify(e)
		}
	}
}

func eventPayload(e streaming.Event) map[string]any {
	data := map[string]any{
		"run_id":      e.RunID,
		"workflow_id": e.WorkflowID,
		"type":        e.Type,
		"status":      e.Status,
		"timestamp":   e.Timestamp,
	}
	if e.StepID != "" {
		data["step_id"] = e.StepID
	}
	if e.Error != "" {
		data["error"] = e.Error
	}
	if len(e.Payload) > 0 {
		data["payload"] = e.Payload
	}
	return map[string]any{
		"level":  "info",
		"logger": "stepflow",
		"data":   data,
	}
}
