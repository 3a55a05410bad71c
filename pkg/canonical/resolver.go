package canonical

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mwtools/wikiquery/pkg/client"
	"github.com/mwtools/wikiquery/pkg/query"
	"github.com/mwtools/wikiquery/pkg/reduce"
)

// ResolverConfig configures the resolve/enumerate pipeline.
type ResolverConfig struct {
	// Concurrency caps simultaneous in-flight batches.
	Concurrency int

	// Adaptive configures the batch-size congestion control loop.
	Adaptive query.AdaptiveConfig
}

// DefaultResolverConfig returns safe defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Concurrency: 10,
		Adaptive:    query.DefaultAdaptiveConfig(),
	}
}

// Resolver drives the two store-mutating operations, resolve and
// alias-enumeration, through the planner, fan-out executor, and reducers.
// Tasks only return data; the resolver applies all store mutations
// sequentially after each wave, so no fine-grained locking is needed.
type Resolver struct {
	store      *Store
	controller *query.Controller
	logger     zerolog.Logger
}

// NewResolver creates a resolver over an API client and a shared store.
func NewResolver(apiClient *client.Client, store *Store, cfg ResolverConfig) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	driver := query.NewDriver(apiClient)
	executor := query.NewExecutor(driver, cfg.Concurrency)
	return &Resolver{
		store:      store,
		controller: query.NewController(executor, cfg.Adaptive),
		logger:     log.With().Str("component", "mw-resolver").Logger(),
	}
}

// Store returns the shared canonicalization store.
func (r *Resolver) Store() *Store {
	return r.store
}

// Resolve fixes redirects for the reference set: every reference ends up
// with a redirect-map entry (nil for missing entities), plus normalization
// and identifier entries harvested from the same responses. References that
// already have an entry are skipped, so repeating the call issues no network
// requests. A failed run leaves the store at its last consistent state.
func (r *Resolver) Resolve(ctx context.Context, refs []query.Ref) error {
	pending, err := r.pendingForResolve(refs)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		r.logger.Debug().Int("refs", len(refs)).Msg("All references already resolved")
		return nil
	}

	start := time.Now()
	fragments, err := query.RunAdaptive(ctx, r.controller, pending,
		query.PlanOptions{
			Extra: map[string]string{"redirects": ""},
			Canon: r.store,
		},
		reduce.ParseResolution)
	if err != nil {
		return fmt.Errorf("resolve redirects: %w", err)
	}

	merged := reduce.NewResolution()
	for _, frag := range fragments {
		merged.Merge(frag)
	}
	if err := r.store.ApplyResolution(merged); err != nil {
		return err
	}

	if err := r.fetchMissingIDs(ctx); err != nil {
		return err
	}

	r.store.DerivePageIDRedirects()
	r.store.Consolidate()

	r.logger.Info().
		Int("requested", len(refs)).
		Int("resolved", len(pending)).
		Dur("duration", time.Since(start)).
		Msg("Resolve complete")
	return nil
}

// fetchMissingIDs runs the follow-up pass: identifiers for redirect keys and
// targets that the combined pass did not cover. Titles the remote cannot find
// are recorded as -1.
func (r *Resolver) fetchMissingIDs(ctx context.Context) error {
	missing := r.store.MissingIDTargets()
	if len(missing) == 0 {
		return nil
	}

	r.logger.Debug().
		Int("titles", len(missing)).
		Msg("Fetching identifiers for redirect targets")

	fragments, err := query.RunAdaptive(ctx, r.controller, query.Titles(missing...),
		query.PlanOptions{}, reduce.ParseResolution)
	if err != nil {
		return fmt.Errorf("fetch missing identifiers: %w", err)
	}

	merged := reduce.NewResolution()
	for _, frag := range fragments {
		merged.Merge(frag)
	}
	// Only identifiers are wanted here; drop redirect fragments so the
	// follow-up cannot overwrite resolution entries.
	merged.Redirects = make(map[string]*string)
	if err := r.store.ApplyResolution(merged); err != nil {
		return err
	}

	r.store.RecordMissingIDs(missing)
	return nil
}

// EnumerateAliases populates the collected-redirects map for the reference
// set: for each canonical entity, every title and page id that redirects to
// it (itself included), with the reverse redirect entries derived for every
// discovered member. References already enumerated are skipped. Resolve runs
// first for any unresolved references.
func (r *Resolver) EnumerateAliases(ctx context.Context, refs []query.Ref) error {
	pending, err := r.pendingForEnumerate(refs)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		r.logger.Debug().Int("refs", len(refs)).Msg("All references already enumerated")
		return nil
	}

	if err := r.Resolve(ctx, pending); err != nil {
		return err
	}

	start := time.Now()
	sets, err := query.RunAdaptive(ctx, r.controller, pending,
		query.PlanOptions{
			Extra: map[string]string{"prop": "redirects", "rdlimit": "max"},
			Canon: r.store,
		},
		reduce.ParseAliasEnumeration)
	if err != nil {
		return fmt.Errorf("enumerate aliases: %w", err)
	}

	for _, set := range sets {
		r.store.ApplyAliases(set)
	}

	r.logger.Info().
		Int("requested", len(refs)).
		Int("enumerated", len(pending)).
		Dur("duration", time.Since(start)).
		Msg("Alias enumeration complete")
	return nil
}

// pendingForResolve drops references whose canonical form already has a
// redirect entry. Revision-id references pass through unchanged.
func (r *Resolver) pendingForResolve(refs []query.Ref) ([]query.Ref, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: empty reference set", client.ErrInvalidRequest)
	}

	kind := refs[0].Kind()
	var pending []query.Ref
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref.Kind() != kind {
			return nil, fmt.Errorf("%w: mixed reference kinds %s and %s",
				client.ErrInvalidRequest, kind, ref.Kind())
		}
		switch kind {
		case query.KindTitle:
			canonical, ok := r.store.CanonicalTitle(ref.TitleValue())
			if !ok || canonical == "" || r.store.ResolvedTitle(canonical) || seen[canonical] {
				continue
			}
			seen[canonical] = true
			pending = append(pending, query.Title(canonical))
		case query.KindPageID:
			canonical, ok := r.store.CanonicalPageID(ref.IDValue())
			if !ok || r.store.ResolvedPageID(canonical) {
				continue
			}
			v := query.PageID(canonical)
			if seen[v.Value()] {
				continue
			}
			seen[v.Value()] = true
			pending = append(pending, v)
		default:
			if seen[ref.Value()] {
				continue
			}
			seen[ref.Value()] = true
			pending = append(pending, ref)
		}
	}
	return pending, nil
}

// pendingForEnumerate drops references whose canonical form was already
// enumerated.
func (r *Resolver) pendingForEnumerate(refs []query.Ref) ([]query.Ref, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: empty reference set", client.ErrInvalidRequest)
	}

	kind := refs[0].Kind()
	var pending []query.Ref
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref.Kind() != kind {
			return nil, fmt.Errorf("%w: mixed reference kinds %s and %s",
				client.ErrInvalidRequest, kind, ref.Kind())
		}
		switch kind {
		case query.KindTitle:
			canonical, ok := r.store.CanonicalTitle(ref.TitleValue())
			if !ok || canonical == "" || r.store.EnumeratedTitle(canonical) || seen[canonical] {
				continue
			}
			seen[canonical] = true
			pending = append(pending, query.Title(canonical))
		case query.KindPageID:
			canonical, ok := r.store.CanonicalPageID(ref.IDValue())
			if !ok {
				continue
			}
			if _, enumerated := r.store.AliasPageIDs(canonical); enumerated {
				continue
			}
			v := query.PageID(canonical)
			if seen[v.Value()] {
				continue
			}
			seen[v.Value()] = true
			pending = append(pending, v)
		default:
			return nil, fmt.Errorf("%w: alias enumeration requires titles or page ids",
				client.ErrInvalidRequest)
		}
	}
	return pending, nil
}
