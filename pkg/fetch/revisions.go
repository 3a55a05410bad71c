package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/mwtools/wikiquery/pkg/client"
	"github.com/mwtools/wikiquery/pkg/query"
	"github.com/mwtools/wikiquery/pkg/reduce"
)

// DefaultRevisionProps are the revision fields fetched when none are given.
var DefaultRevisionProps = []string{"timestamp", "ids"}

func propValue(props []string) string {
	if len(props) == 0 {
		props = DefaultRevisionProps
	}
	return strings.Join(props, "|")
}

// Revisions collects every revision of each entity between start and stop,
// keyed by page. Revision history paginates per entity, so batches hold one
// entity each.
func (f *Fetcher) Revisions(ctx context.Context, refs []query.Ref, start, stop time.Time, props []string) (map[reduce.PageKey][]client.Revision, error) {
	if stop.IsZero() {
		stop = time.Now().UTC()
	}
	if start.IsZero() {
		start = stop.Add(-30 * 24 * time.Hour)
	}

	extra := map[string]string{
		"prop":    "revisions",
		"rvdir":   "newer",
		"rvstart": start.UTC().Format(time.RFC3339),
		"rvend":   stop.UTC().Format(time.RFC3339),
		"rvlimit": "max",
		"rvslots": "main",
		"rvprop":  propValue(props),
	}

	batches, err := query.RunAdaptive(ctx, f.controller, refs,
		query.PlanOptions{Generator: true, Extra: extra, Canon: f.canon()},
		reduce.ParseRevisions)
	if err != nil {
		return nil, err
	}

	out := make(map[reduce.PageKey][]client.Revision)
	for _, frag := range batches {
		for k, revs := range frag {
			out[k] = append(out[k], revs...)
		}
	}
	return out, nil
}

// PinnedRevision collects, per entity, the latest revision at or before the
// given instant. One request per entity, no continuation.
func (f *Fetcher) PinnedRevision(ctx context.Context, refs []query.Ref, at time.Time, props []string) (map[reduce.PageKey]client.Revision, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	extra := map[string]string{
		"prop":    "revisions",
		"rvdir":   "older",
		"rvstart": at.UTC().Format(time.RFC3339),
		"rvlimit": "1",
		"rvslots": "main",
		"rvprop":  propValue(props),
	}

	batches, err := query.RunAdaptive(ctx, f.controller, refs,
		query.PlanOptions{Generator: true, Extra: extra, Canon: f.canon()},
		reduce.ParsePinnedRevision)
	if err != nil {
		return nil, err
	}

	out := make(map[reduce.PageKey]client.Revision)
	for _, frag := range batches {
		for k, rev := range frag {
			out[k] = rev
		}
	}
	return out, nil
}

// RevisionData collects revision records keyed by revision id.
func (f *Fetcher) RevisionData(ctx context.Context, revids []int64, props []string) (map[int64]client.Revision, error) {
	extra := map[string]string{
		"prop":    "revisions",
		"rvslots": "main",
		"rvprop":  propValue(props),
	}

	batches, err := query.RunAdaptive(ctx, f.controller, query.RevisionIDs(revids...),
		query.PlanOptions{Extra: extra},
		reduce.ParseRevisionData)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]client.Revision)
	for _, frag := range batches {
		for id, rev := range frag {
			out[id] = rev
		}
	}
	return out, nil
}

// RevisionContent collects main-slot wikitext keyed by revision id.
func (f *Fetcher) RevisionContent(ctx context.Context, revids []int64) (map[int64]string, error) {
	extra := map[string]string{
		"prop":    "revisions",
		"rvslots": "main",
		"rvprop":  "ids|content",
	}

	batches, err := query.RunAdaptive(ctx, f.controller, query.RevisionIDs(revids...),
		query.PlanOptions{Extra: extra},
		reduce.ParseRevisionContent)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]string)
	for _, frag := range batches {
		for id, content := range frag {
			out[id] = content
		}
	}
	return out, nil
}
