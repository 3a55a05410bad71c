package reduce

import (
	"context"

	"github.com/mwtools/wikiquery/pkg/query"
)

// AliasSet is the reduced output of a redirect-enumeration batch
// (prop=redirects): for every canonical page, all titles that redirect to it,
// the page itself included, plus the page ids of the discovered aliases.
// The caller merges these into the store; the reducer stays side-effect-free.
type AliasSet struct {
	Collected map[string][]string
	IDs       map[string]int64
}

// NewAliasSet returns an empty alias set.
func NewAliasSet() AliasSet {
	return AliasSet{
		Collected: make(map[string][]string),
		IDs:       make(map[string]int64),
	}
}

// ParseAliasEnumeration folds a prop=redirects batch. Continuation fragments
// for the same canonical page append to its alias list; the page itself is
// always the first member. Missing pages are skipped.
func ParseAliasEnumeration(ctx context.Context, pages *query.Pages) (AliasSet, error) {
	out := NewAliasSet()
	for pages.Next(ctx) {
		page := pages.Page()
		if page.Empty {
			continue
		}
		for _, pg := range page.Query.Pages {
			if pg.Missing {
				continue
			}
			if _, ok := out.Collected[pg.Title]; !ok {
				out.Collected[pg.Title] = []string{pg.Title}
				out.IDs[pg.Title] = pg.PageID
			}
			for _, rd := range pg.Redirects {
				out.Collected[pg.Title] = append(out.Collected[pg.Title], rd.Title)
				if rd.PageID != 0 {
					out.IDs[rd.Title] = rd.PageID
				} else {
					out.IDs[rd.Title] = -1
				}
			}
		}
	}
	return out, pages.Err()
}
