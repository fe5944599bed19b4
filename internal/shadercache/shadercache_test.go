package shadercache

import "testing"

func TestHashStable(t *testing.T) {
	a := Hash("fn main() {}")
	b := Hash("fn main() {}")
	if a != b {
		t.Errorf("Hash not stable: %d != %d", a, b)
	}
	if Hash("fn main() {}") == Hash("fn other() {}") {
		t.Error("distinct sources should not collide on trivial inputs")
	}
}

func TestGetPut(t *testing.T) {
	c := New(4)

	if _, ok := c.Get(1); ok {
		t.Error("Get on empty cache = true")
	}

	code := []uint32{0x07230203, 1, 2, 3}
	c.Put(1, code)

	got, ok := c.Get(1)
	if !ok {
		t.Fatal("Get after Put = false")
	}
	if len(got) != len(code) || got[0] != code[0] {
		t.Errorf("Get = %v, want %v", got, code)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestPutReplace(t *testing.T) {
	c := New(4)
	c.Put(1, []uint32{1})
	c.Put(1, []uint32{2})

	got, _ := c.Get(1)
	if got[0] != 2 {
		t.Errorf("Get after replace = %v, want [2]", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2)
	c.Put(1, []uint32{1})
	c.Put(2, []uint32{2})

	// Touch 1 so 2 becomes the eviction candidate.
	c.Get(1)
	c.Put(3, []uint32{3})

	if _, ok := c.Get(2); ok {
		t.Error("least recently used entry should be evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("recently used entry should survive")
	}
	if _, ok := c.Get(3); !ok {
		t.Error("new entry should be present")
	}
}

func TestStats(t *testing.T) {
	c := New(2)
	c.Put(1, []uint32{1})
	c.Get(1)
	c.Get(2)
	c.Put(2, []uint32{2})
	c.Put(3, []uint32{3})

	hits, misses, evictions := c.Stats()
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
	if evictions != 1 {
		t.Errorf("evictions = %d, want 1", evictions)
	}
}

func TestDefaultCapacity(t *testing.T) {
	c := New(0)
	if c.capacity != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", c.capacity, DefaultCapacity)
	}
}
