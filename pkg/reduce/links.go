package reduce

import (
	"context"

	"github.com/mwtools/wikiquery/pkg/client"
	"github.com/mwtools/wikiquery/pkg/query"
)

// PageKey identifies one canonical page by id and title jointly.
type PageKey struct {
	ID    int64
	Title string
}

func keyOf(p client.Page) PageKey {
	return PageKey{ID: p.PageID, Title: p.Title}
}

// GeneratorLinks is the reduced output of one generator-style link batch
// (one source entity per batch). Pages are the linked/linking pages the
// generator walked; Res carries mapping pairs harvested when the query ran
// with redirect resolution enabled. Missing is set when the generator source
// itself does not exist.
type GeneratorLinks struct {
	Pages   []client.Page
	Res     Resolution
	Missing bool
}

// ParseGeneratorLinks folds a generator-style batch (generator=links or
// generator=linkshere) into the flat list of pages it produced, harvesting
// normalization/redirect/identifier pairs along the way.
func ParseGeneratorLinks(ctx context.Context, pages *query.Pages) (GeneratorLinks, error) {
	out := GeneratorLinks{Res: NewResolution()}
	sawQuery := false
	for pages.Next(ctx) {
		page := pages.Page()
		if page.Empty {
			continue
		}
		sawQuery = true
		q := page.Query
		for _, rn := range q.Redirects {
			to := rn.To
			out.Res.Redirects[rn.From] = &to
		}
		for _, rn := range q.Normalized {
			out.Res.Norms[rn.From] = rn.To
		}
		for _, pg := range q.Pages {
			if pg.Missing {
				out.Res.Redirects[pg.Title] = nil
				continue
			}
			out.Res.IDs[pg.Title] = pg.PageID
			out.Pages = append(out.Pages, pg)
		}
	}
	if err := pages.Err(); err != nil {
		return out, err
	}
	// A generator over a missing page yields no query section at all.
	out.Missing = !sawQuery
	return out, nil
}

// ParseLangLinks folds a prop=langlinks batch into per-page maps grouping
// linked titles by language.
func ParseLangLinks(ctx context.Context, pages *query.Pages) (map[PageKey]map[string][]string, error) {
	out := make(map[PageKey]map[string][]string)
	for pages.Next(ctx) {
		page := pages.Page()
		if page.Empty {
			continue
		}
		for _, pg := range page.Query.Pages {
			k := keyOf(pg)
			byLang, ok := out[k]
			if !ok {
				byLang = make(map[string][]string)
				out[k] = byLang
			}
			for _, ll := range pg.LangLinks {
				byLang[ll.Lang] = append(byLang[ll.Lang], ll.Title)
			}
		}
	}
	return out, pages.Err()
}

// ParseExtLinks folds a prop=extlinks batch into per-page URL lists.
func ParseExtLinks(ctx context.Context, pages *query.Pages) (map[PageKey][]string, error) {
	out := make(map[PageKey][]string)
	for pages.Next(ctx) {
		page := pages.Page()
		if page.Empty {
			continue
		}
		for _, pg := range page.Query.Pages {
			k := keyOf(pg)
			if _, ok := out[k]; !ok {
				out[k] = nil
			}
			for _, el := range pg.ExtLinks {
				out[k] = append(out[k], el.URL)
			}
		}
	}
	return out, pages.Err()
}

// ParseIWLinks folds a prop=iwlinks batch into per-page interwiki-link lists.
func ParseIWLinks(ctx context.Context, pages *query.Pages) (map[PageKey][]client.IWLink, error) {
	out := make(map[PageKey][]client.IWLink)
	for pages.Next(ctx) {
		page := pages.Page()
		if page.Empty {
			continue
		}
		for _, pg := range page.Query.Pages {
			k := keyOf(pg)
			if _, ok := out[k]; !ok {
				out[k] = nil
			}
			out[k] = append(out[k], pg.IWLinks...)
		}
	}
	return out, pages.Err()
}
