package reduce

import (
	"context"

	"github.com/mwtools/wikiquery/pkg/client"
	"github.com/mwtools/wikiquery/pkg/query"
)

// ParseRevisions folds a prop=revisions range batch into per-page revision
// lists, appending across continuation pages of the same page.
func ParseRevisions(ctx context.Context, pages *query.Pages) (map[PageKey][]client.Revision, error) {
	out := make(map[PageKey][]client.Revision)
	for pages.Next(ctx) {
		page := pages.Page()
		if page.Empty {
			continue
		}
		for _, pg := range page.Query.Pages {
			k := keyOf(pg)
			out[k] = append(out[k], pg.Revisions...)
		}
	}
	return out, pages.Err()
}

// ParsePinnedRevision folds a single-revision batch (rvlimit=1) into one
// revision per page. The property is a singleton, so only the first page of
// the sequence is consumed; the remote's revision-history continuation is
// deliberately not followed.
func ParsePinnedRevision(ctx context.Context, pages *query.Pages) (map[PageKey]client.Revision, error) {
	out := make(map[PageKey]client.Revision)
	if pages.Next(ctx) {
		page := pages.Page()
		if !page.Empty {
			for _, pg := range page.Query.Pages {
				if len(pg.Revisions) == 0 {
					continue
				}
				out[keyOf(pg)] = pg.Revisions[0]
			}
		}
	}
	return out, pages.Err()
}

// ParseRevisionData folds a revids batch into records keyed by revision id.
func ParseRevisionData(ctx context.Context, pages *query.Pages) (map[int64]client.Revision, error) {
	out := make(map[int64]client.Revision)
	for pages.Next(ctx) {
		page := pages.Page()
		if page.Empty {
			continue
		}
		for _, pg := range page.Query.Pages {
			for _, rev := range pg.Revisions {
				out[rev.RevID] = rev
			}
		}
	}
	return out, pages.Err()
}

// ParseRevisionContent folds a revids batch into main-slot content keyed by
// revision id.
func ParseRevisionContent(ctx context.Context, pages *query.Pages) (map[int64]string, error) {
	out := make(map[int64]string)
	for pages.Next(ctx) {
		page := pages.Page()
		if page.Empty {
			continue
		}
		for _, pg := range page.Query.Pages {
			for _, rev := range pg.Revisions {
				if slot, ok := rev.Slots["main"]; ok {
					out[rev.RevID] = slot.Content
				}
			}
		}
	}
	return out, pages.Err()
}
