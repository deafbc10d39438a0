package tts

import (
	"fmt"
	"sync"
)

// Cache keys synthesized audio by (turn index, synthesis tag) so each turn
// is synthesized at most once per language. A language switch must flush the
// whole cache: the tag alone cannot disambiguate entries created under a
// previous session generation.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

func cacheKey(turnIndex int, synthesisTag string) string {
	return fmt.Sprintf("audio_%d_%s", turnIndex, synthesisTag)
}

// Get returns the cached audio for the key, if present.
func (c *Cache) Get(turnIndex int, synthesisTag string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[cacheKey(turnIndex, synthesisTag)]
	return b, ok
}

// Put stores synthesized audio for the key.
func (c *Cache) Put(turnIndex int, synthesisTag string, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(turnIndex, synthesisTag)] = audio
}

// Flush drops every entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
}

// Len reports the number of cached clips.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
