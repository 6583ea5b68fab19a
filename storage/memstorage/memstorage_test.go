/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package memstorage

import (
	"testing"

	"github.com/jackal-xmpp/squire/roster"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := New()

	require.Equal(t, "", s.Version())
	require.Nil(t, s.Entries()) // never synced

	items := []roster.Item{
		{JID: "noelia@jackal.im", Subscription: roster.SubscriptionBoth},
		{JID: "ortuman@jackal.im", Subscription: roster.SubscriptionTo},
	}
	require.Nil(t, s.ResetEntries(items, "v1"))
	require.Equal(t, "v1", s.Version())
	require.Equal(t, 2, len(s.Entries()))

	require.Nil(t, s.UpsertEntry(&roster.Item{JID: "romeo@jackal.im"}, "v2"))
	require.Equal(t, "v2", s.Version())
	require.Equal(t, 3, len(s.Entries()))

	require.Nil(t, s.RemoveEntry("noelia@jackal.im", "v3"))
	require.Equal(t, "v3", s.Version())
	require.Equal(t, 2, len(s.Entries()))

	require.Nil(t, s.ResetStore())
	require.Equal(t, "", s.Version())
	require.Nil(t, s.Entries())
}

func TestMemoryStoreEmptyIsNotAbsent(t *testing.T) {
	s := New()
	require.Nil(t, s.ResetEntries(nil, "v1"))

	entries := s.Entries()
	require.NotNil(t, entries)
	require.Equal(t, 0, len(entries))
}

func TestMemoryStoreMockedError(t *testing.T) {
	s := New()
	require.Nil(t, s.ResetEntries([]roster.Item{{JID: "noelia@jackal.im"}}, "v1"))

	s.ActivateMockedError()
	require.Equal(t, ErrMocked, s.UpsertEntry(&roster.Item{JID: "romeo@jackal.im"}, "v2"))
	require.Equal(t, "", s.Version())
	require.Nil(t, s.Entries())

	s.DeactivateMockedError()
	require.Equal(t, "v1", s.Version())
	require.Equal(t, 1, len(s.Entries()))
}
