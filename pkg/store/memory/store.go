// Package memory is an in-process implementation of the entity, alias and pending match
// stores. It enforces the same uniqueness and exclusion rules as the PostgreSQL schema and
// backs dry runs and tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"
)

type txKey struct{}

type Store struct {
	// txMu serializes units of work and standalone writes
	txMu sync.Mutex
	mu   sync.RWMutex

	entities map[string]entityRow
	aliases  map[string]aliasRow
	matches  map[string]matchRow

	now func() time.Time
}

func New() *Store {
	return &Store{
		entities: make(map[string]entityRow),
		aliases:  make(map[string]aliasRow),
		matches:  make(map[string]matchRow),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Entities() *EntityRepository {
	return &EntityRepository{store: s}
}

func (s *Store) Aliases() *AliasRepository {
	return &AliasRepository{store: s}
}

func (s *Store) PendingMatches() *PendingMatchRepository {
	return &PendingMatchRepository{store: s}
}

// WithinTx runs fn as one unit of work. On error or panic every write fn made is undone.
// Nested calls join the outer unit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// write applies fn under the write lock, joining the caller's unit of work when there is one
func (s *Store) write(ctx context.Context, fn func() error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) read(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

type snapshot struct {
	entities map[string]entityRow
	aliases  map[string]aliasRow
	matches  map[string]matchRow
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		entities: maps.Clone(s.entities),
		aliases:  maps.Clone(s.aliases),
		matches:  maps.Clone(s.matches),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = snap.entities
	s.aliases = snap.aliases
	s.matches = snap.matches
}
