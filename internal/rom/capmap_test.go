package rom

import "testing"

func TestCapMap(t *testing.T) {
	t.Parallel()

	c := NewCapMap[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v, want 1, true", v, ok)
	}

	c.Set("b", 3)
	if c.Len() != 2 {
		t.Errorf("Len() after overwrite = %d, want 2", c.Len())
	}

	c.Set("c", 4)
	if c.Len() != 1 {
		t.Errorf("Len() after exceeding capacity = %d, want 1", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) found entry after reset")
	}
	if v, ok := c.Get("c"); !ok || v != 4 {
		t.Errorf("Get(c) = %d, %v, want 4, true", v, ok)
	}

	c.Remove("c")
	if c.Len() != 0 {
		t.Errorf("Len() after Remove = %d, want 0", c.Len())
	}
}

func TestNewCapMap_DefaultCapacity(t *testing.T) {
	t.Parallel()
	c := NewCapMap[int, int](0)
	if c.capacity != DefaultCacheCapacity {
		t.Errorf("capacity = %d, want %d", c.capacity, DefaultCacheCapacity)
	}
}
