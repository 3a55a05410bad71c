// Package fetch provides the high-level entity-data operations built on the
// query engine: link collection in all modes, revision ranges and pinned
// revisions, and revision data/content by revision id. Every operation runs
// through the adaptive controller and merges its batched, paginated fragments
// by canonical entity.
package fetch

import (
	"strconv"
	"strings"

	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mwtools/wikiquery/pkg/canonical"
	"github.com/mwtools/wikiquery/pkg/client"
	"github.com/mwtools/wikiquery/pkg/query"
	"github.com/mwtools/wikiquery/pkg/reduce"
)

// LinkMode selects which link relation a links job collects.
type LinkMode string

const (
	// LinksOut collects pages the entity links to.
	LinksOut LinkMode = "out"

	// LinksIn collects pages linking to the entity.
	LinksIn LinkMode = "in"

	// LinksLang collects language links grouped per language.
	LinksLang LinkMode = "lang"

	// LinksInterwiki collects interwiki links.
	LinksInterwiki LinkMode = "interwiki"

	// LinksExternal collects external links.
	LinksExternal LinkMode = "ext"
)

// modeSpec holds the request shape of one link mode. Generator modes paginate
// per entity and force batch size 1.
type modeSpec struct {
	generator bool
	value     string
	nsParam   string
	limit     string
}

var modeSpecs = map[LinkMode]modeSpec{
	LinksOut:       {generator: true, value: "links", nsParam: "gplnamespace", limit: "gpllimit"},
	LinksIn:        {generator: true, value: "linkshere", nsParam: "glhnamespace", limit: "glhlimit"},
	LinksLang:      {value: "langlinks", limit: "lllimit"},
	LinksInterwiki: {value: "iwlinks", limit: "iwlimit"},
	LinksExternal:  {value: "extlinks", limit: "ellimit"},
}

// Config configures a Fetcher.
type Config struct {
	// Concurrency caps simultaneous in-flight batches.
	Concurrency int

	// Adaptive configures the batch-size congestion control loop.
	Adaptive query.AdaptiveConfig
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 10,
		Adaptive:    query.DefaultAdaptiveConfig(),
	}
}

// Fetcher runs entity-data jobs against the API, sharing one adaptive
// controller and one canonicalization store across calls.
type Fetcher struct {
	store      *canonical.Store
	controller *query.Controller
	logger     zerolog.Logger
}

// NewFetcher creates a fetcher. The store may be nil when no
// canonicalization state should be consulted or updated.
func NewFetcher(apiClient *client.Client, store *canonical.Store, cfg Config) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	driver := query.NewDriver(apiClient)
	executor := query.NewExecutor(driver, cfg.Concurrency)
	return &Fetcher{
		store:      store,
		controller: query.NewController(executor, cfg.Adaptive),
		logger:     log.With().Str("component", "mw-fetch").Logger(),
	}
}

// LinksOptions configures a links job.
type LinksOptions struct {
	// Namespaces filters generator modes to the given namespaces.
	// Empty means the main namespace; AllNamespaces overrides.
	Namespaces    []int
	AllNamespaces bool

	// UpdateMaps harvests normalization/redirect/identifier pairs from the
	// job's own responses into the store.
	UpdateMaps bool
}

func (o LinksOptions) namespaceValue() string {
	if o.AllNamespaces {
		return "*"
	}
	if len(o.Namespaces) == 0 {
		return "0"
	}
	parts := make([]string, len(o.Namespaces))
	for i, ns := range o.Namespaces {
		parts[i] = strconv.Itoa(ns)
	}
	return strings.Join(parts, "|")
}

// Links collects the generator-style link relations (LinksOut, LinksIn),
// keyed by the requested entity's canonical wire value. Sources reported
// missing map to nil; with UpdateMaps they are also recorded in the store as
// null redirects with -1 identifiers.
func (f *Fetcher) Links(ctx context.Context, refs []query.Ref, mode LinkMode, opts LinksOptions) (map[string][]client.Page, error) {
	spec, ok := modeSpecs[mode]
	if !ok || !spec.generator {
		return nil, client.ErrInvalidRequest
	}

	extra := map[string]string{
		"generator":  spec.value,
		spec.limit:   "max",
		spec.nsParam: opts.namespaceValue(),
	}
	if opts.UpdateMaps {
		extra["redirects"] = ""
	}

	batches, err := query.RunAdaptiveBatches(ctx, f.controller, refs,
		query.PlanOptions{Generator: true, Extra: extra, Canon: f.canon()},
		reduce.ParseGeneratorLinks)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]client.Page, len(batches))
	merged := reduce.NewResolution()
	for _, batch := range batches {
		source := batch.Descriptor.Batch[0]
		if batch.Value.Missing {
			out[source] = nil
			if opts.UpdateMaps {
				merged.Redirects[source] = nil
				merged.IDs[source] = -1
			}
			continue
		}
		out[source] = batch.Value.Pages
		if opts.UpdateMaps {
			merged.Merge(batch.Value.Res)
		}
	}

	if opts.UpdateMaps && f.store != nil {
		if err := f.store.ApplyResolution(merged); err != nil {
			return nil, err
		}
	}

	f.logger.Info().
		Str("mode", string(mode)).
		Int("sources", len(out)).
		Msg("Link collection complete")
	return out, nil
}

// LangLinks collects language links grouped per language, keyed by page.
func (f *Fetcher) LangLinks(ctx context.Context, refs []query.Ref) (map[reduce.PageKey]map[string][]string, error) {
	spec := modeSpecs[LinksLang]
	batches, err := query.RunAdaptive(ctx, f.controller, refs,
		query.PlanOptions{
			Extra: map[string]string{"prop": spec.value, spec.limit: "max"},
			Canon: f.canon(),
		},
		reduce.ParseLangLinks)
	if err != nil {
		return nil, err
	}

	out := make(map[reduce.PageKey]map[string][]string)
	for _, frag := range batches {
		for k, byLang := range frag {
			dst, ok := out[k]
			if !ok {
				dst = make(map[string][]string)
				out[k] = dst
			}
			for lang, titles := range byLang {
				dst[lang] = append(dst[lang], titles...)
			}
		}
	}
	return out, nil
}

// ExtLinks collects external links keyed by page.
func (f *Fetcher) ExtLinks(ctx context.Context, refs []query.Ref) (map[reduce.PageKey][]string, error) {
	spec := modeSpecs[LinksExternal]
	batches, err := query.RunAdaptive(ctx, f.controller, refs,
		query.PlanOptions{
			Extra: map[string]string{"prop": spec.value, spec.limit: "max"},
			Canon: f.canon(),
		},
		reduce.ParseExtLinks)
	if err != nil {
		return nil, err
	}

	out := make(map[reduce.PageKey][]string)
	for _, frag := range batches {
		for k, urls := range frag {
			out[k] = append(out[k], urls...)
		}
	}
	return out, nil
}

// IWLinks collects interwiki links keyed by page.
func (f *Fetcher) IWLinks(ctx context.Context, refs []query.Ref) (map[reduce.PageKey][]client.IWLink, error) {
	spec := modeSpecs[LinksInterwiki]
	batches, err := query.RunAdaptive(ctx, f.controller, refs,
		query.PlanOptions{
			Extra: map[string]string{"prop": spec.value, spec.limit: "max"},
			Canon: f.canon(),
		},
		reduce.ParseIWLinks)
	if err != nil {
		return nil, err
	}

	out := make(map[reduce.PageKey][]client.IWLink)
	for _, frag := range batches {
		for k, links := range frag {
			out[k] = append(out[k], links...)
		}
	}
	return out, nil
}

// canon returns the store as a planner canonicalizer, or nil when no store
// is attached. A typed nil inside a non-nil interface would defeat the
// planner's nil check.
func (f *Fetcher) canon() query.Canonicalizer {
	if f.store == nil {
		return nil
	}
	return f.store
}
