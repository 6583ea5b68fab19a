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

func TestErrorElement(t *testing.T) {
	el := ErrServiceUnavailable.Element()
	require.Equal(t, "error", el.Name())
	require.Equal(t, "503", el.Attributes().Get("code"))
	require.Equal(t, "cancel", el.Type())
	require.NotNil(t, el.Elements().ChildNamespace("service-unavailable", stanzasNamespace))
	require.Equal(t, "service-unavailable", ErrServiceUnavailable.Error())
}

func TestStanzaErrorConstructors(t *testing.T) {
	j, _ := jid.NewWithString("ortuman@jackal.im/balcony", false)
	srv, _ := jid.NewWithString("jackal.im", false)

	iq := NewIQType("id-1234", GetType)
	iq.SetFromJID(j)
	iq.SetToJID(srv)

	checks := []struct {
		stanza Stanza
		reason string
	}{
		{iq.BadRequestError(), "bad-request"},
		{iq.ForbiddenError(), "forbidden"},
		{iq.InternalServerError(), "internal-server-error"},
		{iq.ItemNotFoundError(), "item-not-found"},
		{iq.NotAllowedError(), "not-allowed"},
		{iq.FeatureNotImplementedError(), "feature-not-implemented"},
		{iq.ServiceUnavailableError(), "service-unavailable"},
	}
	for _, check := range checks {
		require.True(t, check.stanza.IsError())
		require.NotNil(t, check.stanza.Error().Elements().ChildNamespace(check.reason, stanzasNamespace))
	}
}

func TestNewStanzaErrorFromStanza(t *testing.T) {
	j, _ := jid.NewWithString("ortuman@jackal.im/balcony", false)
	srv, _ := jid.NewWithString("jackal.im", false)

	iq := NewIQType("id-1234", GetType)
	iq.SetFromJID(j)
	iq.SetToJID(srv)

	errStanza := NewErrorStanzaFromStanza(iq, ErrItemNotFound, []XElement{
		NewElementNamespace("text", stanzasNamespace).SetText("no such item"),
	})
	se := NewStanzaErrorFromStanza(errStanza)
	require.Equal(t, "item-not-found", se.Condition())
	require.Equal(t, 404, se.Code())
	require.Equal(t, "cancel", se.Type())
	require.Equal(t, "no such item", se.Text())

	// stanza with no error element at all
	se = NewStanzaErrorFromStanza(iq)
	require.Equal(t, ErrUndefinedCondition, se)

	// error element with no defined condition
	empty := NewIQType("id-5678", GetType)
	empty.SetFromJID(srv)
	empty.SetToJID(j)
	empty.SetType(ErrorType)
	empty.AppendElement(NewElementName("error"))
	se = NewStanzaErrorFromStanza(empty)
	require.Equal(t, ErrUndefinedCondition, se)
}
