package rom

import (
	"sort"
	"sync"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

const (
	// PopularContentID is the id of the persisted PopularContent record.
	PopularContentID = "popcontentid"

	popularLimit = 7
)

// Popular ranks ROMs by mount count and tags by frequency. The last result
// is persisted and served from memory.
type Popular struct {
	db     EntityStore
	logger Logger

	mu      sync.RWMutex
	current model.PopularContent
}

// NewPopular creates a Popular, loading the last persisted ranking.
func NewPopular(db EntityStore, logger Logger) *Popular {
	p := &Popular{db: db, logger: logger}
	if pc, ok := Get[model.PopularContent](db, PopularContentID); ok {
		p.current = pc
	}
	return p
}

// Info returns the latest ranking.
func (p *Popular) Info() model.PopularContent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.PopularContent{
		ID:      p.current.ID,
		RomCIDs: append([]string{}, p.current.RomCIDs...),
		Tags:    append([]string{}, p.current.Tags...),
	}
}

func (p *Popular) set(pc model.PopularContent) {
	if err := Save(p.db, pc); err != nil {
		p.logger.Error("saving popular content", "error", err)
	}
	p.mu.Lock()
	p.current = pc
	p.mu.Unlock()
}

// NewHandler returns a Handler factory for the Scanner.
func (p *Popular) NewHandler() Handler[model.Rom] {
	return &popularPass{popular: p}
}

type rankedRom struct {
	cid     string
	counter int
}

type popularPass struct {
	popular *Popular
	top     []rankedRom
	tags    map[string]int
}

func (h *popularPass) Initialize() {
	h.top = nil
	h.tags = make(map[string]int)
}

func (h *popularPass) OnEntity(rom model.Rom) {
	for _, tag := range SplitTags(rom.Info.Tags) {
		h.tags[tag]++
	}

	r := rankedRom{cid: rom.CID, counter: rom.MountCounter}
	if len(h.top) < popularLimit {
		h.top = append(h.top, r)
		return
	}
	low := 0
	for i := range h.top {
		if h.top[i].counter < h.top[low].counter {
			low = i
		}
	}
	if r.counter > h.top[low].counter {
		h.top[low] = r
	}
}

func (h *popularPass) Finish() {
	sort.SliceStable(h.top, func(i, j int) bool {
		return h.top[i].counter > h.top[j].counter
	})
	cids := make([]string, len(h.top))
	for i, r := range h.top {
		cids[i] = r.cid
	}

	tags := make([]string, 0, len(h.tags))
	for tag := range h.tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if h.tags[tags[i]] != h.tags[tags[j]] {
			return h.tags[tags[i]] > h.tags[tags[j]]
		}
		return tags[i] < tags[j]
	})

	h.popular.set(model.PopularContent{
		ID:      PopularContentID,
		RomCIDs: cids,
		Tags:    firstN(tags, popularLimit),
	})
}
