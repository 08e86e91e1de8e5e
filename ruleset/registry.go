/*
Package ruleset manages versioned matching parameters: exactly one
version is active at any instant, JSON-configured and validated before
it can be put live.
*/
package ruleset

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/reconcile-engine/reconcile"
	"github.com/warp/reconcile-engine/store/sqlite"
)

// Registry manages ruleset versions over a durable store.
type Registry struct {
	store *sqlite.Store
}

// NewRegistry builds a Registry.
func NewRegistry(store *sqlite.Store) *Registry {
	return &Registry{store: store}
}

// List returns every ruleset version, newest first.
func (r *Registry) List(ctx context.Context) ([]reconcile.Ruleset, error) {
	return r.store.ListRulesets(ctx)
}

// Active returns the sole active ruleset, or reconcile.ErrNoActiveRuleset.
func (r *Registry) Active(ctx context.Context) (*reconcile.Ruleset, error) {
	return r.store.ActiveRuleset(ctx)
}

// Put validates params and atomically deactivates every prior version
// before inserting this one as active. If version is empty, one is
// generated from the wall clock.
func (r *Registry) Put(ctx context.Context, version string, params reconcile.RulesetParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	if version == "" {
		version = fmt.Sprintf("v%d", time.Now().UnixNano())
	}

	err := r.store.WithTx(ctx, func(tx sqlite.Store) error {
		return tx.ActivateRuleset(ctx, version, params)
	})
	if err != nil {
		return "", err
	}
	return version, nil
}
