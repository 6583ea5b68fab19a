/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"testing"

	"github.com/jackal-xmpp/squire/xmpp/jid"
	"github.com/stretchr/testify/require"
)

func TestIQBuild(t *testing.T) {
	j, _ := jid.New("ortuman", "example.org", "balcony", false)

	elem := NewElementName("message")
	_, err := NewIQFromElement(elem, j, j) // wrong name...
	require.NotNil(t, err)

	elem.SetName("iq")
	_, err = NewIQFromElement(elem, j, j) // no ID...
	require.NotNil(t, err)

	elem.SetID("id-1234")
	_, err = NewIQFromElement(elem, j, j) // no type...
	require.NotNil(t, err)

	elem.SetType("invalid")
	_, err = NewIQFromElement(elem, j, j) // invalid type...
	require.NotNil(t, err)

	elem.SetType(GetType)
	_, err = NewIQFromElement(elem, j, j) // 'get' IQ with no child...
	require.NotNil(t, err)

	elem.SetType(ResultType)
	elem.AppendElements([]XElement{NewElementName("a"), NewElementName("b")})
	_, err = NewIQFromElement(elem, j, j) // 'result' IQ with more than one child...
	require.NotNil(t, err)

	elem.ClearElements()
	elem.AppendElements([]XElement{NewElementName("a")})
	iq, err := NewIQFromElement(elem, j, j)
	require.Nil(t, err)
	require.NotNil(t, iq)
}

func TestIQType(t *testing.T) {
	require.True(t, NewIQType("id", GetType).IsGet())
	require.True(t, NewIQType("id", SetType).IsSet())
	require.True(t, NewIQType("id", ResultType).IsResult())
}

func TestResultIQ(t *testing.T) {
	j, _ := jid.NewWithString("ortuman@jackal.im/balcony", false)
	srv, _ := jid.NewWithString("jackal.im", false)

	iq := NewIQType("id-1234", GetType)
	iq.SetFromJID(j)
	iq.SetToJID(srv)
	iq.AppendElement(NewElementNamespace("ping", "urn:xmpp:ping"))

	result := iq.ResultIQ()
	require.Equal(t, "id-1234", result.ID())
	require.True(t, result.IsResult())
	require.Equal(t, srv.String(), result.From())
	require.Equal(t, j.String(), result.To())
}
