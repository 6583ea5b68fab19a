/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package memstorage

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jackal-xmpp/squire/roster"
)

// ErrMocked will be returned by any Storage method when
// mocked error is activated.
var ErrMocked = errors.New("memstorage: mocked error")

// Storage is an in-memory roster store. It is mainly intended for
// testing and for clients that do not need synchronization to survive
// a process restart.
type Storage struct {
	mockErr uint32
	mu      sync.RWMutex
	synced  bool
	version string
	entries map[string]roster.Item
}

// New returns an empty in-memory store.
func New() *Storage {
	return &Storage{entries: make(map[string]roster.Item)}
}

// ActivateMockedError makes every storage method fail from this point on.
func (m *Storage) ActivateMockedError() {
	atomic.StoreUint32(&m.mockErr, 1)
}

// DeactivateMockedError disables mocked storage error.
func (m *Storage) DeactivateMockedError() {
	atomic.StoreUint32(&m.mockErr, 0)
}

// Version returns the last stored version token.
func (m *Storage) Version() string {
	if atomic.LoadUint32(&m.mockErr) == 1 {
		return ""
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Entries returns all stored entries, or nil if the store was never synced.
func (m *Storage) Entries() []roster.Item {
	if atomic.LoadUint32(&m.mockErr) == 1 {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.synced {
		return nil
	}
	ret := make([]roster.Item, 0, len(m.entries))
	for _, item := range m.entries {
		ret = append(ret, item)
	}
	return ret
}

// ResetEntries replaces the whole store content.
func (m *Storage) ResetEntries(items []roster.Item, version string) error {
	return m.inWriteLock(func() error {
		m.entries = make(map[string]roster.Item, len(items))
		for _, item := range items {
			m.entries[item.JID] = item
		}
		m.version = version
		m.synced = true
		return nil
	})
}

// UpsertEntry adds or updates a single stored entry.
func (m *Storage) UpsertEntry(item *roster.Item, version string) error {
	return m.inWriteLock(func() error {
		m.entries[item.JID] = *item
		m.version = version
		m.synced = true
		return nil
	})
}

// RemoveEntry removes a single stored entry given its bare JID.
func (m *Storage) RemoveEntry(itemJID string, version string) error {
	return m.inWriteLock(func() error {
		delete(m.entries, itemJID)
		m.version = version
		m.synced = true
		return nil
	})
}

// ResetStore wipes the store content and version token.
func (m *Storage) ResetStore() error {
	return m.inWriteLock(func() error {
		m.entries = make(map[string]roster.Item)
		m.version = ""
		m.synced = false
		return nil
	})
}

// Close satisfies roster.Store interface.
func (m *Storage) Close() error { return nil }

func (m *Storage) inWriteLock(f func() error) error {
	if atomic.LoadUint32(&m.mockErr) == 1 {
		return ErrMocked
	}
	m.mu.Lock()
	err := f()
	m.mu.Unlock()
	return err
}
