package core

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/pinkeep/internal/logx"
	"pkt.systems/pinkeep/schema"
	"pkt.systems/pslog"
)

// Reconciler replays the stored pinned set into a window scope.
type Reconciler struct {
	host  Host
	store Store
	key   string
	log   pslog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(cfg schema.ServiceConfig, deps ServiceDeps) (*Reconciler, error) {
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
	return &Reconciler{
		host:  deps.Host,
		store: deps.Store,
		key:   cfg.StorageKey,
		log:   loggerOrDefault(deps.Logger),
	}, nil
}

// Restore opens an inactive pinned tab in scope for every stored URL that is
// not already pinned there. URLs already present are skipped, so repeated
// restores do not duplicate tabs the host or an earlier restore opened.
// Each create is independent; failures are joined into the returned error.
func (r *Reconciler) Restore(ctx context.Context, scope schema.Scope) (schema.RestoreResult, error) {
	result := schema.RestoreResult{Scope: scope}
	log := logx.WithScope(r.log, scope)

	saved, err := loadPinned(ctx, r.store, r.key)
	if err != nil {
		log.Warn("restore load failed", "err", err)
		return result, err
	}
	if len(saved) == 0 {
		log.Debug("restore skipped", "reason", "empty pinned set")
		return result, nil
	}

	present, err := r.host.QueryTabs(ctx, schema.TabQuery{Pinned: true, Scope: &scope})
	if err != nil {
		log.Warn("restore query failed", "err", err)
		return result, fmt.Errorf("query pinned tabs in %s: %w", scope, err)
	}
	presentURLs := tabURLs(present)

	var errs []error
	for _, url := range saved {
		if containsURL(presentURLs, url) {
			log.Debug("skipping duplicate restore", "url", url)
			result.Skipped = append(result.Skipped, url)
			continue
		}
		if _, err := r.host.CreateTab(ctx, schema.CreateTabRequest{
			Scope:  scope,
			URL:    url,
			Pinned: true,
			Active: false,
		}); err != nil {
			log.Warn("restore create failed", "url", url, "err", err)
			errs = append(errs, fmt.Errorf("create %q: %w", url, err))
			continue
		}
		result.Created = append(result.Created, url)
	}
	log.Info("restore done", "created", len(result.Created), "skipped", len(result.Skipped), "failed", len(errs))
	return result, errors.Join(errs...)
}
