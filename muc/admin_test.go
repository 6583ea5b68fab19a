/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"testing"

	"github.com/jackal-xmpp/squire/stream"
	"github.com/jackal-xmpp/squire/stream/streamtest"
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/stretchr/testify/require"
)

// resultOnIQ answers every outbound IQ with its empty result.
func resultOnIQ(stm *streamtest.Stream) {
	stm.OnSend(func(elem xmpp.XElement) {
		if iq, ok := elem.(*xmpp.IQ); ok {
			stm.Inject(stream.Sync, iq.ResultIQ())
		}
	})
}

func TestRoomKick(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	joinRoom(t, stm, r, "ortuman")
	resultOnIQ(stm)

	require.Nil(t, r.Kick("noelia", "gardening is serious business"))

	iq := stm.LastSent().(*xmpp.IQ)
	require.Equal(t, xmpp.SetType, iq.Type())
	require.Equal(t, "garden@conference.jackal.im", iq.To())

	item := iq.Elements().ChildNamespace("query", mucNamespaceAdmin).Elements().Child("item")
	require.NotNil(t, item)
	require.Equal(t, "noelia", item.Attributes().Get("nick"))
	require.Equal(t, RoleNone, item.Attributes().Get("role"))
	require.Equal(t, "gardening is serious business", item.Elements().Child("reason").Text())

	// a role mutation never touches the occupant map by itself
	require.Equal(t, 1, r.OccupantCount())
}

func TestRoomVoiceAndModerator(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	joinRoom(t, stm, r, "ortuman")
	resultOnIQ(stm)

	tcs := []struct {
		op   func() error
		role string
	}{
		{func() error { return r.GrantVoice("noelia", "") }, RoleParticipant},
		{func() error { return r.RevokeVoice("noelia", "") }, RoleVisitor},
		{func() error { return r.GrantModerator("noelia") }, RoleModerator},
		{func() error { return r.RevokeModerator("noelia") }, RoleParticipant},
	}
	for _, tc := range tcs {
		require.Nil(t, tc.op())

		item := stm.LastSent().Elements().ChildNamespace("query", mucNamespaceAdmin).Elements().Child("item")
		require.Equal(t, "noelia", item.Attributes().Get("nick"))
		require.Equal(t, tc.role, item.Attributes().Get("role"))
	}
}

func TestRoomBanAndAffiliations(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	joinRoom(t, stm, r, "ortuman")
	resultOnIQ(stm)

	noelia := mustParseJID(t, "noelia@jackal.im/garden")

	tcs := []struct {
		op          func() error
		affiliation string
	}{
		{func() error { return r.Ban(noelia, "spam") }, AffiliationOutcast},
		{func() error { return r.GrantMembership(noelia) }, AffiliationMember},
		{func() error { return r.RevokeMembership(noelia) }, AffiliationNone},
		{func() error { return r.GrantAdmin(noelia) }, AffiliationAdmin},
		{func() error { return r.RevokeAdmin(noelia) }, AffiliationMember},
		{func() error { return r.GrantOwnership(noelia) }, AffiliationOwner},
		{func() error { return r.RevokeOwnership(noelia) }, AffiliationAdmin},
	}
	for _, tc := range tcs {
		require.Nil(t, tc.op())

		item := stm.LastSent().Elements().ChildNamespace("query", mucNamespaceAdmin).Elements().Child("item")
		require.Equal(t, "noelia@jackal.im", item.Attributes().Get("jid")) // always the bare JID
		require.Equal(t, tc.affiliation, item.Attributes().Get("affiliation"))
	}
}

func TestRoomAdminNotAllowed(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	joinRoom(t, stm, r, "ortuman")
	stm.OnSend(func(elem xmpp.XElement) {
		if iq, ok := elem.(*xmpp.IQ); ok {
			stm.Inject(stream.Sync, iq.NotAllowedError())
		}
	})

	err = r.Kick("noelia", "")
	se, ok := err.(*xmpp.StanzaError)
	require.True(t, ok)
	require.Equal(t, "not-allowed", se.Condition())
}

func TestRoomAffiliationList(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	joinRoom(t, stm, r, "ortuman")

	stm.OnSend(func(elem xmpp.XElement) {
		iq, ok := elem.(*xmpp.IQ)
		if !ok {
			return
		}
		require.True(t, iq.IsGet())

		result := iq.ResultIQ()
		query := xmpp.NewElementNamespace("query", mucNamespaceAdmin)
		for _, member := range []string{"noelia@jackal.im", "romeo@jackal.im"} {
			item := xmpp.NewElementName("item")
			item.SetAttribute("jid", member)
			item.SetAttribute("affiliation", AffiliationMember)
			query.AppendElement(item)
		}
		result.AppendElement(query)
		stm.Inject(stream.Sync, result)
	})
	items, err := r.AffiliationList(AffiliationMember)
	require.Nil(t, err)

	require.Len(t, items, 2)
	require.Equal(t, "noelia@jackal.im", items[0].JID.String())
	require.Equal(t, AffiliationMember, items[0].Affiliation)
	require.Equal(t, "romeo@jackal.im", items[1].JID.String())
}

func TestRoomDestroy(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	joinRoom(t, stm, r, "ortuman")
	resultOnIQ(stm)

	require.Nil(t, r.Destroy("pruned", "patio@conference.jackal.im"))

	iq := stm.LastSent().(*xmpp.IQ)
	destroy := iq.Elements().ChildNamespace("query", mucNamespaceOwner).Elements().Child("destroy")
	require.NotNil(t, destroy)
	require.Equal(t, "patio@conference.jackal.im", destroy.Attributes().Get("jid"))
	require.Equal(t, "pruned", destroy.Elements().Child("reason").Text())
}

func TestRoomInviteAndDecline(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	rec := &eventRecorder{}
	joinRoom(t, stm, r, "ortuman")
	r.Subscribe(rec.handle)

	require.Nil(t, r.Invite(mustParseJID(t, "noelia@jackal.im/garden"), "join us"))

	invite := stm.LastSent().Elements().ChildNamespace("x", mucNamespaceUser).Elements().Child("invite")
	require.NotNil(t, invite)
	require.Equal(t, "noelia@jackal.im", invite.Attributes().Get("to"))
	require.Equal(t, "join us", invite.Elements().Child("reason").Text())

	// the invitee turns the invitation down
	decline := xmpp.NewElementName("decline")
	decline.SetAttribute("from", "noelia@jackal.im")
	decline.AppendElement(xmpp.NewElementName("reason").SetText("busy"))
	x := xmpp.NewElementNamespace("x", mucNamespaceUser)
	x.AppendElement(decline)

	msg := xmpp.NewMessageType("decline-1", "")
	msg.SetFromJID(testRoomJID(t))
	msg.SetToJID(mustParseJID(t, "ortuman@jackal.im"))
	msg.AppendElement(x)
	stm.Inject(stream.Sync, msg)

	require.Equal(t, 1, rec.len())
	require.Equal(t, InvitationDeclined, rec.at(0).Type)
	require.Equal(t, "noelia@jackal.im", rec.at(0).Invitation.From.String())
	require.Equal(t, "busy", rec.at(0).Invitation.Reason)
}

func TestRoomMessageReceived(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	rec := &eventRecorder{}
	joinRoom(t, stm, r, "ortuman")
	r.Subscribe(rec.handle)

	msg := xmpp.NewMessageType("msg-1", xmpp.GroupChatType)
	msg.SetFromJID(mustParseJID(t, "garden@conference.jackal.im/noelia"))
	msg.SetToJID(mustParseJID(t, "ortuman@jackal.im"))
	msg.AppendElement(xmpp.NewElementName("body").SetText("hello there"))
	stm.Inject(stream.Sync, msg)

	require.Equal(t, 1, rec.len())
	ev := rec.at(0)
	require.Equal(t, MessageReceived, ev.Type)
	require.Equal(t, "noelia", ev.Nickname)
	require.False(t, ev.Self)
	require.Equal(t, "hello there", ev.Message.Elements().Child("body").Text())

	// own reflected groupchat messages are flagged as such
	echo := xmpp.NewMessageType("msg-2", xmpp.GroupChatType)
	echo.SetFromJID(mustParseJID(t, "garden@conference.jackal.im/ortuman"))
	echo.SetToJID(mustParseJID(t, "ortuman@jackal.im"))
	echo.AppendElement(xmpp.NewElementName("body").SetText("hello noelia"))
	stm.Inject(stream.Sync, echo)

	require.Equal(t, 2, rec.len())
	require.True(t, rec.at(1).Self)
}
