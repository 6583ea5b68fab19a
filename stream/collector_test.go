/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package stream

import (
	"testing"
	"time"

	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
	"github.com/stretchr/testify/require"
)

func testCollectorIQ(id string) xmpp.Stanza {
	j, _ := jid.NewWithString("ortuman@jackal.im/balcony", true)
	iq := xmpp.NewIQType(id, xmpp.ResultType)
	iq.SetFromJID(j)
	iq.SetToJID(j)
	return iq
}

func TestCollectorMatch(t *testing.T) {
	c := NewCollector(func(stanza xmpp.Stanza) bool {
		return stanza.ID() == "id-1234"
	})
	require.False(t, c.Process(testCollectorIQ("other-id")))
	require.True(t, c.Process(testCollectorIQ("id-1234")))

	stanza, err := c.Collect(time.Second)
	require.Nil(t, err)
	require.Equal(t, "id-1234", stanza.ID())
}

func TestCollectorTimeout(t *testing.T) {
	c := NewCollector(nil)
	_, err := c.Collect(time.Millisecond * 50)
	require.Equal(t, ErrNoReply, err)
}

func TestCollectorCancel(t *testing.T) {
	c := NewCollector(nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Collect(time.Second * 5)
		errCh <- err
	}()
	c.Cancel()

	select {
	case err := <-errCh:
		require.Equal(t, ErrCancelled, err)
	case <-time.After(time.Second):
		require.Fail(t, "collect was not released")
	}
}

func TestCollectorDisconnect(t *testing.T) {
	c := NewCollector(nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Collect(time.Second * 5)
		errCh <- err
	}()
	c.Disconnect()

	select {
	case err := <-errCh:
		require.Equal(t, ErrDisconnected, err)
	case <-time.After(time.Second):
		require.Fail(t, "collect was not released")
	}
}

func TestCollectorDeliveredBeforeRelease(t *testing.T) {
	c := NewCollector(nil)
	require.True(t, c.Process(testCollectorIQ("id-1234")))
	c.Cancel()

	stanza, err := c.Collect(time.Second)
	require.Nil(t, err)
	require.Equal(t, "id-1234", stanza.ID())
}
