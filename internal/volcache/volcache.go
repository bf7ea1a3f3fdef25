// Package volcache tracks the volumes currently resident in memory, keyed by
// source series instance UID. Which volume to evict and when is the owner's
// decision; the cache only guarantees that an evicted volume is released
// exactly once. A volume released behind the cache's back stays resident and
// reports its state through its own accessors.
package volcache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/medvolt-imaging/voxelstore/internal/volume"
)

// Cache is safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	byUID map[string]*volume.Volume
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{byUID: make(map[string]*volume.Volume)}
}

// Put registers a volume under its series UID. The cache takes over the
// ownership obligation to release it. Registering a released volume or a
// duplicate series is an error.
func (c *Cache) Put(v *volume.Volume) error {
	if v == nil {
		return fmt.Errorf("cannot cache a nil volume")
	}
	if v.Released() {
		return fmt.Errorf("cannot cache released volume for series %s", v.SourceSeriesInstanceUID())
	}
	uid := v.SourceSeriesInstanceUID()
	if uid == "" {
		return fmt.Errorf("cannot cache a volume without a series instance UID")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byUID[uid]; ok {
		return fmt.Errorf("series %s is already resident", uid)
	}
	c.byUID[uid] = v
	return nil
}

// Get returns the resident volume for the series, if any.
func (c *Cache) Get(seriesUID string) (*volume.Volume, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byUID[seriesUID]
	return v, ok
}

// Evict removes the series from the cache and releases its volume. Evicting
// a series that is not resident is a no-op.
func (c *Cache) Evict(seriesUID string) error {
	c.mu.Lock()
	v, ok := c.byUID[seriesUID]
	delete(c.byUID, seriesUID)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := v.Release(); err != nil {
		return fmt.Errorf("evicting series %s: %w", seriesUID, err)
	}
	return nil
}

// Len returns the number of resident volumes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byUID)
}

// Series returns the resident series UIDs in stable order.
func (c *Cache) Series() []string {
	c.mu.RLock()
	uids := make([]string, 0, len(c.byUID))
	for uid := range c.byUID {
		uids = append(uids, uid)
	}
	c.mu.RUnlock()
	sort.Strings(uids)
	return uids
}

// Close evicts everything, releasing every resident volume. The first
// release error is returned after all volumes have been processed.
func (c *Cache) Close() error {
	c.mu.Lock()
	volumes := make([]*volume.Volume, 0, len(c.byUID))
	for _, v := range c.byUID {
		volumes = append(volumes, v)
	}
	c.byUID = make(map[string]*volume.Volume)
	c.mu.Unlock()

	var firstErr error
	for _, v := range volumes {
		if err := v.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
