package storage

import (
	"context"

	"ammCore/internal/model"
)

// EventSink receives events of committed pool operations.
type EventSink interface {
	Emit(ctx context.Context, events ...model.PoolEvent) error
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, ...model.PoolEvent) error { return nil }
