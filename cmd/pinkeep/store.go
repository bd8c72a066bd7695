package main

import (
	"context"
	"fmt"

	"pkt.systems/pinkeep/core"
	"pkt.systems/pinkeep/internal/appconfig"
	"pkt.systems/pinkeep/internal/kvsqlite"
	"pkt.systems/pinkeep/internal/persist"
	"pkt.systems/pslog"
)

// openStore opens the configured pinned set backend. The returned close func
// is never nil.
func openStore(ctx context.Context, cfg appconfig.Config, logger pslog.Logger) (core.Store, func() error, error) {
	path := cfg.StorePath()
	switch cfg.Store.Backend {
	case appconfig.BackendFile:
		store, err := persist.NewStoreWithLogger(path, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case appconfig.BackendSQLite:
		store, err := kvsqlite.Open(ctx, path, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store.backend %q", cfg.Store.Backend)
	}
}

// openEditor opens the store and wraps it in a list editor without a
// browser connection.
func openEditor(ctx context.Context, cfgPath string) (*core.ListEditor, func() error, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger := pslog.Ctx(ctx)
	store, closeFn, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	editor, err := core.NewListEditor(cfg.ServiceConfig(), core.ServiceDeps{Store: store, Logger: logger})
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return editor, closeFn, nil
}
