package core

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// Recorder derives the pinned set from live host state and persists it.
type Recorder struct {
	host  Host
	store Store
	key   string
	log   pslog.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(cfg schema.ServiceConfig, deps ServiceDeps) (*Recorder, error) {
	cfg, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Host == nil {
		return nil, errors.New("host dependency is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store dependency is required")
	}
	return &Recorder{
		host:  deps.Host,
		store: deps.Store,
		key:   cfg.StorageKey,
		log:   loggerOrDefault(deps.Logger),
	}, nil
}

// RecordSnapshot queries every pinned tab, dedupes their URLs in discovery
// order and overwrites the stored pinned set with the result. Pinned tabs
// with an empty URL (still loading) are left out so "" never reaches the
// store. Nothing is written when the query fails.
func (r *Recorder) RecordSnapshot(ctx context.Context) ([]string, error) {
	tabs, err := r.host.QueryTabs(ctx, schema.TabQuery{Pinned: true})
	if err != nil {
		r.log.Warn("snapshot query failed", "err", err)
		return nil, fmt.Errorf("query pinned tabs: %w", err)
	}
	snapshot := Dedupe(tabURLs(tabs))
	if err := savePinned(ctx, r.store, r.key, snapshot); err != nil {
		r.log.Warn("snapshot save failed", "err", err)
		return nil, err
	}
	r.log.Debug("snapshot save ok", "tabs", len(tabs), "urls", len(snapshot))
	return snapshot, nil
}

// ShouldRecord reports whether event can change the pinned set and so
// requires a full resynchronization.
func ShouldRecord(event schema.HostEvent) bool {
	switch event.Type {
	case schema.EventTabUpdated:
		if event.Change.Pinned != nil {
			return true
		}
		return event.Change.URL != "" && event.Tab != nil && event.Tab.Pinned
	case schema.EventTabCreated:
		return event.Tab != nil && event.Tab.Pinned
	case schema.EventTabRemoved, schema.EventTabDetached, schema.EventTabAttached:
		// A removed tab's pinned state is unknown, so always resync.
		return true
	case schema.EventInstalled:
		return true
	default:
		return false
	}
}

func loggerOrDefault(logger pslog.Logger) pslog.Logger {
	if logger == nil {
		return pslog.Ctx(context.Background())
	}
	return logger
}
