/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package roster

// Store defines a persistent roster storage backend used to resume
// versioned roster synchronization across sessions.
type Store interface {
	// Version returns the last roster version token written to the store,
	// or an empty string if none is known.
	Version() string

	// Entries returns all stored roster entries. A nil slice (as opposed
	// to an empty one) means the store content is absent or corrupted.
	Entries() []Item

	// ResetEntries replaces the whole store content.
	ResetEntries(items []Item, version string) error

	// UpsertEntry adds or updates a single stored entry.
	UpsertEntry(item *Item, version string) error

	// RemoveEntry removes a single stored entry given its bare JID.
	RemoveEntry(itemJID string, version string) error

	// ResetStore wipes the store content and version token.
	ResetStore() error

	// Close releases all underlying storage resources.
	Close() error
}
