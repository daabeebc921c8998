package cache

import (
	"fmt"
	"testing"
)

func TestKey_NormalizationStability(t *testing.T) {
	versions := map[string]int{"doc-1": 2}

	a := Key("What is   the refund policy?", 5, "optimal", versions)
	b := Key("  what is the REFUND policy?  ", 5, "optimal", versions)
	if a != b {
		t.Error("keys should be identical for queries differing only in case and whitespace")
	}
}

func TestKey_Discriminators(t *testing.T) {
	base := Key("query", 5, "optimal", map[string]int{"doc-1": 1})

	tests := []struct {
		name string
		key  string
	}{
		{name: "different query", key: Key("other query", 5, "optimal", map[string]int{"doc-1": 1})},
		{name: "different top_k", key: Key("query", 10, "optimal", map[string]int{"doc-1": 1})},
		{name: "different level", key: Key("query", 5, "fallback", map[string]int{"doc-1": 1})},
		{name: "bumped version", key: Key("query", 5, "optimal", map[string]int{"doc-1": 2})},
		{name: "extra document", key: Key("query", 5, "optimal", map[string]int{"doc-1": 1, "doc-2": 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key == base {
				t.Error("key should differ from base")
			}
		})
	}
}

func TestKey_VersionSetOrderIndependent(t *testing.T) {
	// Map iteration order must not leak into the key.
	versions := map[string]int{"doc-a": 1, "doc-b": 3, "doc-c": 2}
	first := Key("query", 5, "optimal", versions)
	for i := 0; i < 20; i++ {
		if got := Key("query", 5, "optimal", versions); got != first {
			t.Fatal("key should be deterministic across map iteration orders")
		}
	}
}

func TestAnswerCache_GetPut(t *testing.T) {
	c := New(10)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on empty cache should miss")
	}

	c.Put("k1", Entry{Answer: "answer one", Level: "optimal"})

	entry, ok := c.Get("k1")
	if !ok {
		t.Fatal("Get() should hit after Put()")
	}
	if entry.Answer != "answer one" || entry.Level != "optimal" {
		t.Errorf("Get() = %+v, want stored entry", entry)
	}
	if entry.CachedAt.IsZero() {
		t.Error("Put() should stamp CachedAt")
	}
}

func TestAnswerCache_LRUEviction(t *testing.T) {
	c := New(2)

	c.Put("k1", Entry{Answer: "one"})
	c.Put("k2", Entry{Answer: "two"})

	// Touch k1 so k2 becomes the eviction candidate.
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("Get(k1) should hit")
	}

	c.Put("k3", Entry{Answer: "three"})

	if _, ok := c.Get("k2"); ok {
		t.Error("k2 should have been evicted as least recently used")
	}
	if _, ok := c.Get("k1"); !ok {
		t.Error("k1 should survive eviction")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestAnswerCache_InvalidateForDocument(t *testing.T) {
	c := New(10)

	c.Put("with-doc1", Entry{
		Answer: "cites doc-1",
		Citations: []Citation{
			{ChunkID: "c1", DocumentID: "doc-1", Version: 2},
			{ChunkID: "c2", DocumentID: "doc-2", Version: 1},
		},
	})
	c.Put("without-doc1", Entry{
		Answer: "cites only doc-2",
		Citations: []Citation{
			{ChunkID: "c3", DocumentID: "doc-2", Version: 1},
		},
	})
	c.Put("doc1-other-version", Entry{
		Answer: "cites doc-1 v1",
		Citations: []Citation{
			{ChunkID: "c4", DocumentID: "doc-1", Version: 1},
		},
	})

	c.InvalidateForDocument("doc-1", 2)

	if _, ok := c.Get("with-doc1"); ok {
		t.Error("entries citing the deleted version should be invalidated")
	}
	if _, ok := c.Get("without-doc1"); !ok {
		t.Error("entries not citing the deleted version should survive")
	}
	if _, ok := c.Get("doc1-other-version"); !ok {
		t.Error("invalidation is per version, other versions should survive")
	}
}

func TestAnswerCache_PutOverwritesExistingKey(t *testing.T) {
	c := New(2)

	c.Put("k1", Entry{Answer: "old"})
	c.Put("k1", Entry{Answer: "new"})

	entry, ok := c.Get("k1")
	if !ok || entry.Answer != "new" {
		t.Errorf("Get() = %+v, want overwritten entry", entry)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestAnswerCache_MinimumSize(t *testing.T) {
	c := New(0)
	c.Put("k1", Entry{Answer: "one"})
	if c.Len() != 1 {
		t.Errorf("cache with clamped size should hold one entry, Len() = %d", c.Len())
	}
}

func TestAnswerCache_ManyEntries(t *testing.T) {
	c := New(100)
	for i := 0; i < 250; i++ {
		c.Put(fmt.Sprintf("k%d", i), Entry{Answer: "a"})
	}
	if c.Len() != 100 {
		t.Errorf("Len() = %d, want 100", c.Len())
	}
}
