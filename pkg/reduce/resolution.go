package reduce

import (
	"context"

	"github.com/mwtools/wikiquery/pkg/query"
)

// Resolution carries the mapping fragments extracted from one batch of a
// redirect-resolution query: normalization pairs, single-hop redirect pairs
// (nil target encodes a missing entity), and page identifiers.
type Resolution struct {
	Redirects map[string]*string
	Norms     map[string]string
	IDs       map[string]int64
}

// NewResolution returns an empty resolution fragment.
func NewResolution() Resolution {
	return Resolution{
		Redirects: make(map[string]*string),
		Norms:     make(map[string]string),
		IDs:       make(map[string]int64),
	}
}

// Merge folds another fragment into this one.
func (r Resolution) Merge(other Resolution) {
	for k, v := range other.Redirects {
		r.Redirects[k] = v
	}
	for k, v := range other.Norms {
		r.Norms[k] = v
	}
	for k, v := range other.IDs {
		r.IDs[k] = v
	}
}

// ParseResolution extracts normalization, redirect, and identifier pairs from
// every page of the sequence in one combined pass. Pages reported missing are
// recorded as redirects to nil.
func ParseResolution(ctx context.Context, pages *query.Pages) (Resolution, error) {
	res := NewResolution()
	for pages.Next(ctx) {
		page := pages.Page()
		if page.Empty {
			continue
		}
		q := page.Query
		for _, rn := range q.Redirects {
			to := rn.To
			res.Redirects[rn.From] = &to
		}
		for _, rn := range q.Normalized {
			res.Norms[rn.From] = rn.To
		}
		for _, pg := range q.Pages {
			if pg.Missing {
				res.Redirects[pg.Title] = nil
				continue
			}
			id := pg.PageID
			if id == 0 {
				id = -1
			}
			res.IDs[pg.Title] = id
		}
	}
	return res, pages.Err()
}
