package rom

// DefaultCacheCapacity is the entry count above which a CapMap is reset.
const DefaultCacheCapacity = 10000

// CapMap is a map that is cleared wholesale once it grows past its capacity.
// It bounds memory without the bookkeeping of an LRU. Not safe for concurrent
// use; callers hold their own lock.
type CapMap[K comparable, V any] struct {
	capacity int
	m        map[K]V
}

// NewCapMap creates a CapMap. A non-positive capacity uses DefaultCacheCapacity.
func NewCapMap[K comparable, V any](capacity int) *CapMap[K, V] {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &CapMap[K, V]{capacity: capacity, m: make(map[K]V)}
}

func (c *CapMap[K, V]) Set(key K, value V) {
	if _, ok := c.m[key]; !ok && len(c.m) >= c.capacity {
		clear(c.m)
	}
	c.m[key] = value
}

func (c *CapMap[K, V]) Get(key K) (V, bool) {
	v, ok := c.m[key]
	return v, ok
}

func (c *CapMap[K, V]) Remove(key K) {
	delete(c.m, key)
}

func (c *CapMap[K, V]) Len() int {
	return len(c.m)
}
