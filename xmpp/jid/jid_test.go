/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package jid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadJID(t *testing.T) {
	_, err := NewWithString("ortuman@", false)
	require.NotNil(t, err)
	longStr := ""
	for i := 0; i < 1074; i++ {
		longStr += "a"
	}
	_, err2 := New(longStr, "example.org", "res", false)
	require.NotNil(t, err2)
	_, err3 := New("ortuman", longStr, "res", false)
	require.NotNil(t, err3)
	_, err4 := New("ortuman", "example.org", longStr, false)
	require.NotNil(t, err4)
}

func TestNewJID(t *testing.T) {
	j1, err := New("ortuman", "example.org", "res", false)
	require.Nil(t, err)
	require.Equal(t, "ortuman", j1.Node())
	require.Equal(t, "example.org", j1.Domain())
	require.Equal(t, "res", j1.Resource())

	j2, err := New("ortuman", "example.org", "res", true)
	require.Nil(t, err)
	require.Equal(t, "ortuman", j2.Node())
	require.Equal(t, "example.org", j2.Domain())
	require.Equal(t, "res", j2.Resource())
}

func TestEmptyJID(t *testing.T) {
	j, err := NewWithString("", true)
	require.Nil(t, err)
	require.Equal(t, "", j.Node())
	require.Equal(t, "", j.Domain())
	require.Equal(t, "", j.Resource())
}

func TestNewJIDString(t *testing.T) {
	j, err := NewWithString("ortuman@jackal.im/res", false)
	require.Nil(t, err)
	require.Equal(t, "ortuman", j.Node())
	require.Equal(t, "jackal.im", j.Domain())
	require.Equal(t, "res", j.Resource())
	require.Equal(t, "ortuman@jackal.im", j.ToBareJID().String())
	require.Equal(t, "jackal.im", j.ToDomainJID().String())
	require.Equal(t, "ortuman@jackal.im/res", j.String())
}

func TestJIDType(t *testing.T) {
	fullWithUser, _ := NewWithString("ortuman@jackal.im/res", true)
	bare, _ := NewWithString("ortuman@jackal.im", true)
	domain, _ := NewWithString("jackal.im", true)
	fullWithServer, _ := NewWithString("jackal.im/res", true)

	require.True(t, fullWithUser.IsFull())
	require.True(t, fullWithUser.IsFullWithUser())
	require.True(t, bare.IsBare())
	require.True(t, domain.IsServer())
	require.True(t, fullWithServer.IsServer())
	require.True(t, fullWithServer.IsFull())
	require.True(t, fullWithServer.IsFullWithServer())
}

func TestJIDMatching(t *testing.T) {
	j1, _ := NewWithString("ortuman@jackal.im/res", true)
	j2, _ := NewWithString("ortuman@jackal.im/res2", true)
	j3, _ := NewWithString("romeo@jackal.im/res", true)

	require.True(t, j1.Matches(j2, MatchesBare))
	require.False(t, j1.Matches(j2, MatchesFull))
	require.False(t, j1.Matches(j3, MatchesNode))
	require.True(t, j1.Matches(j3, MatchesDomain|MatchesResource))
}
