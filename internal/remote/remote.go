// Package remote provides the remote event adapter: a WebSocket client
// that delivers created/updated/deleted events for one namespace to the
// reconciliation engine, and an op log that carries best-effort
// outbound notifications the other way.
//
// Delivery assumptions (matching the backend contract):
//  1. At-least-once: events can be replayed after reconnect; the
//     engine's idempotent apply methods absorb duplicates
//  2. Unordered across entities; no buffering while disconnected
//  3. Connectivity status is surfaced as a separate signal, never
//     blocking a local mutation
package remote

import (
	"context"
	"time"

	"github.com/clipd-io/clipd/internal/clip"
)

// EventKind identifies an inbound event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event is one inbound message on a namespace stream.
type Event struct {
	Kind      EventKind  `json:"kind"`
	Namespace string     `json:"namespace,omitempty"`
	Clip      *clip.Clip `json:"clip,omitempty"` // created, updated
	ID        string     `json:"id,omitempty"`   // deleted
	Timestamp time.Time  `json:"timestamp,omitempty"`
}

// Status is the connectivity signal surfaced to the host UI.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// EventHandler applies inbound events. The engine implements this.
//
// Handlers must be idempotent: replays of the same created event and
// deletes of absent ids are no-ops by contract.
type EventHandler interface {
	ApplyRemoteCreated(ctx context.Context, c *clip.Clip) error
	ApplyRemoteUpdated(ctx context.Context, c *clip.Clip) error
	ApplyRemoteDeleted(ctx context.Context, id string) error
}

// Notifier pushes local mutations to the backend. Best-effort: no
// acknowledgment is required, and callers (the op log) own retries.
type Notifier interface {
	NotifyCreated(ctx context.Context, c *clip.Clip) error
	NotifyUpdated(ctx context.Context, c *clip.Clip) error
	NotifyDeleted(ctx context.Context, id string) error
}
