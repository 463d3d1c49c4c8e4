package vectorizer

import (
	"container/list"
	"sync"
)

// embedCache is a content-addressed cache keyed by exact input text.
// It is separate from the tiered cache and bounded: when full, the
// oldest-inserted entry is evicted first.
type embedCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = oldest inserted
}

type embedEntry struct {
	text   string
	vector []float32
}

func newEmbedCache(maxSize int) *embedCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &embedCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *embedCache) get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[text]; ok {
		return elem.Value.(*embedEntry).vector, true
	}
	return nil, false
}

func (c *embedCache) set(text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		elem.Value.(*embedEntry).vector = vector
		return
	}

	c.entries[text] = c.order.PushBack(&embedEntry{text: text, vector: vector})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Remove(c.order.Front()).(*embedEntry)
		delete(c.entries, oldest.text)
	}
}

func (c *embedCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
