/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package roster

import (
	"sync"

	"github.com/jackal-xmpp/squire/xmpp"
)

const (
	maxNonRosterEntries   = 1024
	maxResourcesPerEntry  = 32
	offlineResourceMarker = ""
)

// presenceCache holds the last known presence per (bare JID, resource).
//
// In-roster entities live in a plain unbounded map. Everything else lives in
// a bounded LRU so a presence flood from unknown senders cannot grow memory
// without limit. The cache tracks roster membership itself: moving an entity
// between partitions is a single operation atomic under the cache mutex.
type presenceCache struct {
	mu        sync.RWMutex
	roster    map[string]map[string]*xmpp.Presence
	nonRoster *lruCache
}

func newPresenceCache() *presenceCache {
	return &presenceCache{
		roster:    make(map[string]map[string]*xmpp.Presence),
		nonRoster: newLRUCache(maxNonRosterEntries),
	}
}

// setRosterMembership moves any cached presence data for bareJID between
// the roster and non-roster partitions.
func (c *presenceCache) setRosterMembership(bareJID string, inRoster bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inRoster {
		if _, ok := c.roster[bareJID]; ok {
			return
		}
		resources := make(map[string]*xmpp.Presence)
		if cached, ok := c.nonRoster.get(bareJID); ok {
			cached.(*lruCache).forEach(func(resource string, p interface{}) {
				resources[resource] = p.(*xmpp.Presence)
			})
			c.nonRoster.remove(bareJID)
		}
		c.roster[bareJID] = resources
		return
	}
	resources, ok := c.roster[bareJID]
	if !ok {
		return
	}
	delete(c.roster, bareJID)
	if len(resources) == 0 {
		return
	}
	cached := newLRUCache(maxResourcesPerEntry)
	for resource, p := range resources {
		cached.put(resource, p)
	}
	c.nonRoster.put(bareJID, cached)
}

// storeAvailable records an available presence, dropping any stale
// empty-resource offline marker.
func (c *presenceCache) storeAvailable(bareJID, resource string, presence *xmpp.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if resources, ok := c.roster[bareJID]; ok {
		delete(resources, offlineResourceMarker)
		resources[resource] = presence
		return
	}
	resources := c.nonRosterResources(bareJID)
	resources.remove(offlineResourceMarker)
	resources.put(resource, presence)
}

// storeUnavailable records an unavailable presence under its resource, or
// under the empty-resource marker when the sender had no resource part.
func (c *presenceCache) storeUnavailable(bareJID, resource string, presence *xmpp.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if resources, ok := c.roster[bareJID]; ok {
		resources[resource] = presence
		return
	}
	c.nonRosterResources(bareJID).put(resource, presence)
}

// storeError flushes all cached resources for bareJID and records a single
// empty-resource error presence.
func (c *presenceCache) storeError(bareJID string, presence *xmpp.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.roster[bareJID]; ok {
		c.roster[bareJID] = map[string]*xmpp.Presence{offlineResourceMarker: presence}
		return
	}
	resources := newLRUCache(maxResourcesPerEntry)
	resources.put(offlineResourceMarker, presence)
	c.nonRoster.put(bareJID, resources)
}

// resourcePresence returns the cached presence for an exact (bare, resource)
// pair, or nil.
func (c *presenceCache) resourcePresence(bareJID, resource string) *xmpp.Presence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if resources, ok := c.roster[bareJID]; ok {
		return resources[resource]
	}
	if cached, ok := c.nonRoster.get(bareJID); ok {
		if p, ok := cached.(*lruCache).get(resource); ok {
			return p.(*xmpp.Presence)
		}
	}
	return nil
}

// presences returns all cached presences for bareJID.
func (c *presenceCache) presences(bareJID string) []*xmpp.Presence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ret []*xmpp.Presence
	if resources, ok := c.roster[bareJID]; ok {
		for _, p := range resources {
			ret = append(ret, p)
		}
		return ret
	}
	if cached, ok := c.nonRoster.get(bareJID); ok {
		cached.(*lruCache).forEach(func(_ string, p interface{}) {
			ret = append(ret, p.(*xmpp.Presence))
		})
	}
	return ret
}

// snapshot returns every cached (bare JID, resource) pair across both
// partitions.
func (c *presenceCache) snapshot() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ret := make(map[string][]string)
	for bareJID, resources := range c.roster {
		for resource := range resources {
			ret[bareJID] = append(ret[bareJID], resource)
		}
	}
	c.nonRoster.forEach(func(bareJID string, cached interface{}) {
		cached.(*lruCache).forEach(func(resource string, _ interface{}) {
			ret[bareJID] = append(ret[bareJID], resource)
		})
	})
	return ret
}

// must be called with mutex held
func (c *presenceCache) nonRosterResources(bareJID string) *lruCache {
	if cached, ok := c.nonRoster.get(bareJID); ok {
		return cached.(*lruCache)
	}
	cached := newLRUCache(maxResourcesPerEntry)
	c.nonRoster.put(bareJID, cached)
	return cached
}
