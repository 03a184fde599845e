package api

import (
	"sync"

	"github.com/Jay-Tejada/malunita/internal/pipeline"
)

// runCacheSize bounds how many completed runs are kept in memory.
const runCacheSize = 32

// RunCache holds recent pipeline results so clarification questions and
// composed summaries, which are never persisted, stay queryable for the
// current session.
type RunCache struct {
	mu         sync.RWMutex
	byCapture  map[string]*pipeline.Result
	order      []string
	lastByUser map[string]*pipeline.Result
}

func NewRunCache() *RunCache {
	return &RunCache{
		byCapture:  make(map[string]*pipeline.Result),
		lastByUser: make(map[string]*pipeline.Result),
	}
}

// Put records a completed run, evicting the oldest once the cache is full.
func (c *RunCache) Put(res *pipeline.Result) {
	if res == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id := res.Capture.ID
	if _, exists := c.byCapture[id]; !exists {
		c.order = append(c.order, id)
		if len(c.order) > runCacheSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.byCapture, oldest)
		}
	}
	c.byCapture[id] = res
	c.lastByUser[res.Capture.UserID] = res
}

// Capture returns the cached run for a capture id.
func (c *RunCache) Capture(id string) (*pipeline.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.byCapture[id]
	return res, ok
}

// Latest returns the most recent run for a user.
func (c *RunCache) Latest(userID string) (*pipeline.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.lastByUser[userID]
	return res, ok
}
