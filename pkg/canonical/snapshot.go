package canonical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrNoSnapshot indicates no persisted snapshot exists under the given key.
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshot is the serialized form of all store maps. Load restores all maps
// jointly or none, preserving cross-map invariants.
type Snapshot struct {
	Norms            map[string]string   `json:"norms"`
	TitleRedirects   map[string]*string  `json:"title_redirects"`
	PageIDRedirects  map[int64]*int64    `json:"pageid_redirects"`
	IDs              map[string]int64    `json:"ids"`
	CollectedTitles  map[string][]string `json:"collected_titles"`
	CollectedPageIDs map[int64][]int64   `json:"collected_pageids"`
}

// Snapshot returns a deep copy of all maps.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Norms:            make(map[string]string, len(s.norms)),
		TitleRedirects:   make(map[string]*string, len(s.titleRedirects)),
		PageIDRedirects:  make(map[int64]*int64, len(s.pageIDRedirects)),
		IDs:              make(map[string]int64, len(s.ids)),
		CollectedTitles:  make(map[string][]string, len(s.collectedTitles)),
		CollectedPageIDs: make(map[int64][]int64, len(s.collectedPageIDs)),
	}
	for k, v := range s.norms {
		snap.Norms[k] = v
	}
	for k, v := range s.titleRedirects {
		snap.TitleRedirects[k] = copyPtr(v)
	}
	for k, v := range s.pageIDRedirects {
		snap.PageIDRedirects[k] = copyPtr(v)
	}
	for k, v := range s.ids {
		snap.IDs[k] = v
	}
	for k, v := range s.collectedTitles {
		snap.CollectedTitles[k] = append([]string(nil), v...)
	}
	for k, v := range s.collectedPageIDs {
		snap.CollectedPageIDs[k] = append([]int64(nil), v...)
	}
	return snap
}

// Restore replaces all maps from a snapshot in one step.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.norms = orEmpty(snap.Norms)
	s.titleRedirects = orEmptyP(snap.TitleRedirects)
	s.pageIDRedirects = orEmptyIDP(snap.PageIDRedirects)
	s.ids = orEmptyI(snap.IDs)
	s.collectedTitles = orEmptyS(snap.CollectedTitles)
	s.collectedPageIDs = orEmptyIS(snap.CollectedPageIDs)

	s.updateMetricsLocked()
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return make(map[string]string)
	}
	return m
}

func orEmptyP(m map[string]*string) map[string]*string {
	if m == nil {
		return make(map[string]*string)
	}
	return m
}

func orEmptyIDP(m map[int64]*int64) map[int64]*int64 {
	if m == nil {
		return make(map[int64]*int64)
	}
	return m
}

func orEmptyI(m map[string]int64) map[string]int64 {
	if m == nil {
		return make(map[string]int64)
	}
	return m
}

func orEmptyS(m map[string][]string) map[string][]string {
	if m == nil {
		return make(map[string][]string)
	}
	return m
}

func orEmptyIS(m map[int64][]int64) map[int64][]int64 {
	if m == nil {
		return make(map[int64][]int64)
	}
	return m
}

// SnapshotStore persists store snapshots in Redis as a single JSON document,
// so a load observes either the whole snapshot or nothing.
type SnapshotStore struct {
	redis *redis.Client
	key   string
}

// NewSnapshotStore creates a snapshot store writing under the given key.
func NewSnapshotStore(redisClient *redis.Client, key string) *SnapshotStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = "mw:canonical:snapshot"
	}
	return &SnapshotStore{redis: redisClient, key: key}
}

// Save persists the store's current snapshot.
func (p *SnapshotStore) Save(ctx context.Context, s *Store) error {
	snap := s.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := p.redis.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	log.Info().
		Str("key", p.key).
		Int("bytes", len(data)).
		Msg("Store snapshot saved")
	return nil
}

// Load restores the store from the persisted snapshot.
// Returns ErrNoSnapshot when nothing is stored under the key.
func (p *SnapshotStore) Load(ctx context.Context, s *Store) error {
	data, err := p.redis.Get(ctx, p.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrNoSnapshot
		}
		return fmt.Errorf("redis get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	s.Restore(snap)
	log.Info().
		Str("key", p.key).
		Int("bytes", len(data)).
		Msg("Store snapshot loaded")
	return nil
}
