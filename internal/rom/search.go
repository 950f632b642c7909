package rom

import (
	"strings"
	"sync"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

const (
	maxIndexedTags        = 10
	maxIndexedDescription = 10
	maxQueryTokens        = 10
	maxSearchResults      = 30
)

// Search answers catalogue queries from a token index rebuilt on every scan
// pass over ROMs.
type Search struct {
	db EntityStore

	mu    sync.RWMutex
	index map[string][]string
}

func NewSearch(db EntityStore) *Search {
	return &Search{db: db, index: make(map[string][]string)}
}

// Query returns the cids of ROMs matching query. An exact ROM cid matches
// only that ROM. Otherwise ROMs are returned in the order their tokens
// first match, up to a fixed limit.
func (s *Search) Query(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}
	}
	if _, ok := Get[model.Rom](s.db, query); ok {
		return []string{query}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	results := []string{}
	for _, token := range firstN(SplitTags(query), maxQueryTokens) {
		for _, cid := range s.index[token] {
			if _, ok := seen[cid]; ok {
				continue
			}
			seen[cid] = struct{}{}
			results = append(results, cid)
			if len(results) == maxSearchResults {
				return results
			}
		}
	}
	return results
}

func (s *Search) replace(index map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = index
}

// NewHandler returns a Handler factory for the Scanner.
func (s *Search) NewHandler() Handler[model.Rom] {
	return &searchPass{search: s}
}

type searchPass struct {
	search *Search
	index  map[string][]string
}

func (h *searchPass) Initialize() {
	h.index = make(map[string][]string)
}

func (h *searchPass) OnEntity(rom model.Rom) {
	tokens := SplitTags(rom.Info.Title)
	tokens = append(tokens, SplitTags(rom.Info.Author)...)
	tokens = append(tokens, firstN(SplitTags(rom.Info.Tags), maxIndexedTags)...)
	tokens = append(tokens, firstN(SplitTags(rom.Info.Description), maxIndexedDescription)...)

	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		h.index[token] = append(h.index[token], rom.CID)
	}
}

func (h *searchPass) Finish() {
	h.search.replace(h.index)
}
