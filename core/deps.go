package core

import (
	"context"
	"time"

	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// Host is the browser tab directory the engine queries and commands.
type Host interface {
	QueryTabs(ctx context.Context, query schema.TabQuery) ([]schema.Tab, error)
	CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.Tab, error)
	UpdateTab(ctx context.Context, req schema.UpdateTabRequest) (schema.Tab, error)
}

// Store is a durable key-value store holding opaque values.
// Get reports false when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Timer schedules fn to run once after d. It mirrors time.AfterFunc.
type Timer func(d time.Duration, fn func())

// ServiceDeps captures dependencies for the engine and its components.
type ServiceDeps struct {
	Host   Host
	Store  Store
	Logger pslog.Logger
	// Timer overrides time.AfterFunc for delayed restores.
	Timer Timer
	// OnChange is called after the pinned set may have changed.
	OnChange func()
}

func defaultTimer(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
