package cache

import (
	"container/list"
	"sync"
	"time"
)

// Citation references a chunk that justified an answer.
type Citation struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Version    int    `json:"version"`
	Ordinal    int    `json:"ordinal"`
	Excerpt    string `json:"excerpt,omitempty"`
}

// Entry is a memoized answer. Level and Reason are stored so a cache hit can
// replay the original routing outcome.
type Entry struct {
	Answer       string
	Citations    []Citation
	Level        string
	Reason       string
	Confidence   float64
	LowConfident bool
	CachedAt     time.Time

	// documents contributing to this entry, for delete invalidation
	contributors []contributor
}

type contributor struct {
	documentID string
	version    int
}

// AnswerCache memoizes (query, strategy, document version set) -> answer.
// Keys embed document versions, so a version bump is a natural miss and only
// outright deletes need explicit invalidation. get-then-put is not atomic
// across concurrent identical requests: the benign race duplicates
// generation work but never caches incorrect content.
type AnswerCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type cacheItem struct {
	key   string
	entry Entry
}

// New creates an AnswerCache holding at most maxSize entries.
func New(maxSize int) *AnswerCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &AnswerCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the entry for a key, or false.
func (c *AnswerCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheItem).entry, true
}

// Put stores an entry, evicting the least recently used one when full.
func (c *AnswerCache) Put(key string, entry Entry) {
	entry.CachedAt = time.Now()
	entry.contributors = contributorsOf(entry.Citations)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheItem).entry = entry
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheItem{key: key, entry: entry})
	c.entries[key] = elem

	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheItem).key)
		}
	}
}

// InvalidateForDocument removes every entry the given document version
// contributed to. Needed only when a document is deleted outright.
func (c *AnswerCache) InvalidateForDocument(documentID string, version int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, elem := range c.entries {
		item := elem.Value.(*cacheItem)
		for _, contrib := range item.entry.contributors {
			if contrib.documentID == documentID && contrib.version == version {
				c.order.Remove(elem)
				delete(c.entries, key)
				break
			}
		}
	}
}

// Len returns the number of cached entries.
func (c *AnswerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func contributorsOf(citations []Citation) []contributor {
	seen := make(map[contributor]struct{}, len(citations))
	var contributors []contributor
	for _, cit := range citations {
		key := contributor{documentID: cit.DocumentID, version: cit.Version}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		contributors = append(contributors, key)
	}
	return contributors
}
