package rag

import (
	"slices"
	"sync"
)

// filenameCache remembers the filenames ingested by this process, most recent last.
type filenameCache struct {
	mu    sync.RWMutex
	names []string
}

func newFilenameCache() *filenameCache {
	return &filenameCache{}
}

func (c *filenameCache) Add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = slices.DeleteFunc(c.names, func(n string) bool { return n == name })
	c.names = append(c.names, name)
}

// List returns the filenames, most recent first.
func (c *filenameCache) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := slices.Clone(c.names)
	slices.Reverse(out)
	return out
}

func (c *filenameCache) Clear() {
	c.mu.Lock()
	c.names = nil
	c.mu.Unlock()
}
