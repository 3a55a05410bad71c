package canonical

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mwtools/wikiquery/pkg/reduce"
)

var mwStoreEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "mw_store_entries",
	Help: "Entries per canonicalization map",
}, []string{"map"})

// maxRedirectHops caps redirect chain consolidation. Chains longer than this
// (or cycles) freeze at the last resolved hop.
const maxRedirectHops = 8

// Store holds the canonicalization maps shared across jobs: normalization,
// title and page-id redirects (nil target encodes a missing entity),
// identifiers (-1 encodes known missing), and collected redirects (canonical
// entity to all known aliases, itself included).
//
// Concurrent readers are safe. Mutations are applied sequentially by the
// orchestration layer after a fan-out wave completes, never by tasks.
type Store struct {
	mu               sync.RWMutex
	norms            map[string]string
	titleRedirects   map[string]*string
	pageIDRedirects  map[int64]*int64
	ids              map[string]int64
	collectedTitles  map[string][]string
	collectedPageIDs map[int64][]int64
	logger           zerolog.Logger
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		norms:            make(map[string]string),
		titleRedirects:   make(map[string]*string),
		pageIDRedirects:  make(map[int64]*int64),
		ids:              make(map[string]int64),
		collectedTitles:  make(map[string][]string),
		collectedPageIDs: make(map[int64][]int64),
		logger:           log.With().Str("component", "mw-store").Logger(),
	}
}

// CanonicalTitle maps a raw title through normalization and redirect state.
// The boolean is false when the title is known missing. Unknown titles pass
// through unchanged.
func (s *Store) CanonicalTitle(title string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.norms[title]; ok {
		title = n
	}
	if target, ok := s.titleRedirects[title]; ok {
		if target == nil {
			return "", false
		}
		return *target, true
	}
	return title, true
}

// CanonicalPageID maps a page id through redirect state. The boolean is false
// when the id is known missing.
func (s *Store) CanonicalPageID(id int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if target, ok := s.pageIDRedirects[id]; ok {
		if target == nil {
			return 0, false
		}
		return *target, true
	}
	return id, true
}

// ResolvedTitle reports whether the title (in canonical form) already has a
// redirect-map entry, i.e. resolve work for it is done.
func (s *Store) ResolvedTitle(title string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.norms[title]; ok {
		title = n
	}
	_, ok := s.titleRedirects[title]
	return ok
}

// ResolvedPageID reports whether the page id already has a redirect-map entry.
func (s *Store) ResolvedPageID(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pageIDRedirects[id]
	return ok
}

// EnumeratedTitle reports whether aliases were already enumerated for the
// title's canonical form.
func (s *Store) EnumeratedTitle(title string) bool {
	canonical, ok := s.CanonicalTitle(title)
	if !ok {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok = s.collectedTitles[canonical]
	return ok
}

// Redirect returns the redirect target for a title key. The second boolean is
// false when the key is absent; a nil target means the entity is missing.
func (s *Store) Redirect(title string) (*string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.titleRedirects[title]
	return target, ok
}

// PageIDOf returns the numeric identifier recorded for a canonical title.
// -1 means known missing.
func (s *Store) PageIDOf(title string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[title]
	return id, ok
}

// Aliases returns all titles known to resolve to the canonical title, the
// title itself included.
func (s *Store) Aliases(title string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	aliases, ok := s.collectedTitles[title]
	if !ok {
		return nil, false
	}
	out := make([]string, len(aliases))
	copy(out, aliases)
	return out, true
}

// AliasPageIDs returns the page ids of all pages redirecting to the canonical
// page id, itself included.
func (s *Store) AliasPageIDs(id int64) ([]int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	aliases, ok := s.collectedPageIDs[id]
	if !ok {
		return nil, false
	}
	out := make([]int64, len(aliases))
	copy(out, aliases)
	return out, true
}

// ApplyResolution merges one resolve pass into the store. Normalization
// entries are append-only: an attempt to materially change an existing
// mapping fails the whole merge and leaves the store untouched.
// Every resolved page also gets a self redirect entry, so repeating a
// resolve for the same references issues no further work.
func (s *Store) ApplyResolution(res reduce.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for from, to := range res.Norms {
		if existing, ok := s.norms[from]; ok && existing != to {
			s.logger.Error().
				Str("from", from).
				Str("existing", existing).
				Str("new", to).
				Msg("Normalization redefinition rejected")
			return fmt.Errorf("normalization redefinition for %q: %q -> %q", from, existing, to)
		}
	}

	for from, to := range res.Norms {
		s.norms[from] = to
	}
	for from, to := range res.Redirects {
		s.titleRedirects[from] = to
	}
	for title, id := range res.IDs {
		s.ids[title] = id
		if _, ok := s.titleRedirects[title]; !ok {
			self := title
			s.titleRedirects[title] = &self
		}
	}

	s.updateMetricsLocked()
	return nil
}

// ApplyAliases merges one alias-enumeration pass into the store: the
// collected forward map, the derived reverse redirect entries, and the
// numeric-identifier equivalents for every member with a known id.
func (s *Store) ApplyAliases(set reduce.AliasSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for title, id := range set.IDs {
		if _, ok := s.ids[title]; !ok || id > 0 {
			s.ids[title] = id
		}
	}

	for canonical, aliases := range set.Collected {
		existing := s.collectedTitles[canonical]
		known := make(map[string]bool, len(existing))
		for _, a := range existing {
			known[a] = true
		}
		for _, alias := range aliases {
			if !known[alias] {
				existing = append(existing, alias)
				known[alias] = true
			}
			target := canonical
			s.titleRedirects[alias] = &target
		}
		s.collectedTitles[canonical] = existing

		canonicalID, ok := s.ids[canonical]
		if !ok || canonicalID <= 0 {
			continue
		}
		idAliases := s.collectedPageIDs[canonicalID]
		knownIDs := make(map[int64]bool, len(idAliases))
		for _, a := range idAliases {
			knownIDs[a] = true
		}
		for _, alias := range existing {
			aliasID, ok := s.ids[alias]
			if !ok || aliasID <= 0 {
				continue
			}
			cid := canonicalID
			s.pageIDRedirects[aliasID] = &cid
			if !knownIDs[aliasID] {
				idAliases = append(idAliases, aliasID)
				knownIDs[aliasID] = true
			}
		}
		s.collectedPageIDs[canonicalID] = idAliases
	}

	s.updateMetricsLocked()
}

// DerivePageIDRedirects looks up both sides of every title redirect pair and
// records the equivalent numeric-identifier mapping. Pairs whose members lack
// a positive identifier are skipped.
func (s *Store) DerivePageIDRedirects() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for from, to := range s.titleRedirects {
		fromID, ok := s.ids[from]
		if !ok || fromID <= 0 {
			continue
		}
		if to == nil {
			s.pageIDRedirects[fromID] = nil
			continue
		}
		toID, ok := s.ids[*to]
		if !ok || toID <= 0 {
			continue
		}
		target := toID
		s.pageIDRedirects[fromID] = &target
	}

	s.updateMetricsLocked()
}

// Consolidate closes multi-hop redirect chains (A→B, B→C becomes A→C),
// iterating each chain to its end with a hop cap of maxRedirectHops.
// Cycles and over-long chains keep their last resolved hop.
func (s *Store) Consolidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for from, to := range s.titleRedirects {
		if to == nil {
			continue
		}
		final := *to
		for hop := 0; hop < maxRedirectHops; hop++ {
			next, ok := s.titleRedirects[final]
			if !ok || next == nil || *next == final {
				break
			}
			final = *next
		}
		if final != *to {
			target := final
			s.titleRedirects[from] = &target
		}
	}

	for from, to := range s.pageIDRedirects {
		if to == nil {
			continue
		}
		final := *to
		for hop := 0; hop < maxRedirectHops; hop++ {
			next, ok := s.pageIDRedirects[final]
			if !ok || next == nil || *next == final {
				break
			}
			final = *next
		}
		if final != *to {
			target := final
			s.pageIDRedirects[from] = &target
		}
	}
}

// MissingIDTargets returns redirect keys and targets that have no identifier
// entry yet. Used by the resolve follow-up pass.
func (s *Store) MissingIDTargets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	seen := make(map[string]bool)
	for from, to := range s.titleRedirects {
		if _, ok := s.ids[from]; !ok && !seen[from] {
			missing = append(missing, from)
			seen[from] = true
		}
		if to == nil {
			continue
		}
		if _, ok := s.ids[*to]; !ok && !seen[*to] {
			missing = append(missing, *to)
			seen[*to] = true
		}
	}
	return missing
}

// RecordMissingIDs stores -1 for every title that a follow-up identifier
// fetch could not find.
func (s *Store) RecordMissingIDs(titles []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range titles {
		if _, ok := s.ids[t]; !ok {
			s.ids[t] = -1
		}
	}
	s.updateMetricsLocked()
}

// Stats returns entry counts per map.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		"norms":             len(s.norms),
		"title_redirects":   len(s.titleRedirects),
		"pageid_redirects":  len(s.pageIDRedirects),
		"ids":               len(s.ids),
		"collected_titles":  len(s.collectedTitles),
		"collected_pageids": len(s.collectedPageIDs),
	}
}

func (s *Store) updateMetricsLocked() {
	mwStoreEntries.WithLabelValues("norms").Set(float64(len(s.norms)))
	mwStoreEntries.WithLabelValues("title_redirects").Set(float64(len(s.titleRedirects)))
	mwStoreEntries.WithLabelValues("pageid_redirects").Set(float64(len(s.pageIDRedirects)))
	mwStoreEntries.WithLabelValues("ids").Set(float64(len(s.ids)))
	mwStoreEntries.WithLabelValues("collected_titles").Set(float64(len(s.collectedTitles)))
	mwStoreEntries.WithLabelValues("collected_pageids").Set(float64(len(s.collectedPageIDs)))
}
