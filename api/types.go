package api

import (
	"context"

	"kanban-api/domain"
)

// Store abstracts persistence for handlers: snapshot load and save for board
// sessions, event publishing for the change feed and a reachability probe.
type Store interface {
	LoadSnapshot(ctx context.Context, projectID string) ([]byte, error)
	SaveSnapshot(ctx context.Context, projectID string, data []byte) error
	PublishEvents(ctx context.Context, events []domain.BoardEvent) error
	Ping(ctx context.Context) error
}

// EventPublisher is the slice of Store the async event sender needs.
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []domain.BoardEvent) error
}

// Deduper remembers the outcome of creation requests by idempotency key so a
// replayed request is answered with the original id instead of reapplied.
type Deduper interface {
	Recall(ctx context.Context, projectID, key string) (string, bool, error)
	Remember(ctx context.Context, projectID, key, id string) error
}
