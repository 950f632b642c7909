package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// errMissing is returned by backends for records that do not exist.
var errMissing = errors.New("record does not exist")

// backend persists encoded records. It is not safe for concurrent use; Store
// serializes all calls.
type backend interface {
	read(kind, id string) ([]byte, error)
	write(kind, id string, data []byte) error
	remove(kind, id string) error
	list(kind string) ([]string, error)
	close() error
}

// Store implements rom.EntityStore on top of a backend. Records are JSON
// encoded. Each kind has a capacity-bounded cache of encoded records.
type Store struct {
	backend  backend
	capacity int
	logger   rom.Logger

	mu     sync.Mutex
	caches map[string]*rom.CapMap[string, []byte]
}

var _ rom.EntityStore = (*Store)(nil)

func newStore(b backend, capacity int, logger rom.Logger) *Store {
	return &Store{
		backend:  b,
		capacity: capacity,
		logger:   logger,
		caches:   make(map[string]*rom.CapMap[string, []byte]),
	}
}

func (s *Store) Get(kind, id string, dst any) bool {
	data, ok := s.load(kind, id)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.discard(kind, id, err)
		return false
	}
	return true
}

func (s *Store) Save(kind, id string, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("encoding %s %s: %w", kind, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.write(kind, id, data); err != nil {
		return fmt.Errorf("writing %s %s: %w", kind, id, err)
	}
	s.cache(kind).Set(id, data)
	return nil
}

func (s *Store) Delete(kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache(kind).Remove(id)
	if err := s.backend.remove(kind, id); err != nil && !errors.Is(err, errMissing) {
		return fmt.Errorf("deleting %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *Store) Iterate(kind string, fn func(decode func(dst any) error)) error {
	s.mu.Lock()
	ids, err := s.backend.list(kind)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("listing %s: %w", kind, err)
	}

	for _, id := range ids {
		data, ok := s.load(kind, id)
		if !ok {
			continue
		}
		fn(func(dst any) error {
			return json.Unmarshal(data, dst)
		})
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.close()
}

// load returns the encoded record, from cache if possible. Unreadable and
// malformed records are removed and reported as absent.
func (s *Store) load(kind, id string) ([]byte, bool) {
	if id == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cache := s.cache(kind)
	if data, ok := cache.Get(id); ok {
		return data, true
	}
	data, err := s.backend.read(kind, id)
	if errors.Is(err, errMissing) {
		return nil, false
	}
	if err == nil && !json.Valid(data) {
		err = errors.New("malformed record")
	}
	if err != nil {
		s.removeLocked(kind, id, err)
		return nil, false
	}
	cache.Set(id, data)
	return data, true
}

func (s *Store) discard(kind, id string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(kind, id, cause)
}

func (s *Store) removeLocked(kind, id string, cause error) {
	s.logger.Warn("discarding corrupt record", "kind", kind, "id", id, "error", cause)
	s.cache(kind).Remove(id)
	if err := s.backend.remove(kind, id); err != nil && !errors.Is(err, errMissing) {
		s.logger.Error("removing corrupt record", "kind", kind, "id", id, "error", err)
	}
}

func (s *Store) cache(kind string) *rom.CapMap[string, []byte] {
	c, ok := s.caches[kind]
	if !ok {
		c = rom.NewCapMap[string, []byte](s.capacity)
		s.caches[kind] = c
	}
	return c
}
