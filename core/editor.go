package core

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/pinkeep/internal/logx"
	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// ListEditor backs the list-editing UI: it shows the stored pinned set and
// applies the user's deletions and additions to it.
type ListEditor struct {
	host     Host
	store    Store
	key      string
	onChange func()
	log      pslog.Logger
}

// NewListEditor constructs a ListEditor. The host is only needed for
// AddCurrentTab.
func NewListEditor(cfg schema.ServiceConfig, deps ServiceDeps) (*ListEditor, error) {
	cfg, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.New("store dependency is required")
	}
	return &ListEditor{
		host:     deps.Host,
		store:    deps.Store,
		key:      cfg.StorageKey,
		onChange: deps.OnChange,
		log:      loggerOrDefault(deps.Logger),
	}, nil
}

// List returns the stored pinned set; an absent entry is an empty list.
func (l *ListEditor) List(ctx context.Context) ([]string, error) {
	return loadPinned(ctx, l.store, l.key)
}

// Delete removes the entry at index and persists the remainder.
func (l *ListEditor) Delete(ctx context.Context, index int) ([]string, error) {
	urls, err := loadPinned(ctx, l.store, l.key)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(urls) {
		return nil, fmt.Errorf("%w: %d (have %d)", schema.ErrIndexOutOfRange, index, len(urls))
	}
	removed := urls[index]
	urls = append(urls[:index], urls[index+1:]...)
	if err := savePinned(ctx, l.store, l.key, urls); err != nil {
		l.log.Warn("list delete failed", "index", index, "err", err)
		return nil, err
	}
	l.log.Info("list delete ok", "url", removed, "remaining", len(urls))
	l.notify()
	return urls, nil
}

// AddCurrentTab pins the active tab of the current window in the browser and
// appends its URL to the stored set unless it is already there.
func (l *ListEditor) AddCurrentTab(ctx context.Context) ([]string, error) {
	if l.host == nil {
		return nil, schema.ErrHostUnavailable
	}
	current := schema.DefaultScope()
	tabs, err := l.host.QueryTabs(ctx, schema.TabQuery{Active: true, Scope: &current})
	if err != nil {
		return nil, fmt.Errorf("query active tab: %w", err)
	}
	if len(tabs) == 0 {
		return nil, schema.ErrNoActiveTab
	}
	tab := tabs[0]
	log := logx.WithTab(l.log, tab.ID)
	if _, err := l.host.UpdateTab(ctx, schema.UpdateTabRequest{TabID: tab.ID, Pinned: true}); err != nil {
		log.Warn("list pin current failed", "err", err)
		return nil, fmt.Errorf("pin active tab: %w", err)
	}
	urls, err := loadPinned(ctx, l.store, l.key)
	if err != nil {
		return nil, err
	}
	if tab.URL == "" || containsURL(urls, tab.URL) {
		log.Debug("list add skipped", "url", tab.URL)
		l.notify()
		return urls, nil
	}
	urls = append(urls, tab.URL)
	if err := savePinned(ctx, l.store, l.key, urls); err != nil {
		log.Warn("list add failed", "err", err)
		return nil, err
	}
	log.Info("list add ok", "url", tab.URL, "count", len(urls))
	l.notify()
	return urls, nil
}

func (l *ListEditor) notify() {
	if l.onChange != nil {
		l.onChange()
	}
}
