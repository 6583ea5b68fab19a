/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
)

func (r *Room) processMessage(stanza xmpp.Stanza) {
	msg, ok := stanza.(*xmpp.Message)
	if !ok {
		return
	}
	x := userElement(msg)
	if x != nil {
		if invite := x.Elements().Child("invite"); invite != nil {
			r.processInvite(invite, x)
			return
		}
		if decline := x.Elements().Child("decline"); decline != nil {
			r.processDecline(decline)
			return
		}
	}
	if !msg.IsGroupChat() {
		return
	}
	from := msg.FromJID()
	switch {
	case len(msg.Subject()) > 0 && !msg.IsMessageWithBody():
		r.mu.Lock()
		r.subject = msg.Subject()
		r.fireEventLocked(&Event{
			Type:     SubjectUpdated,
			Subject:  msg.Subject(),
			Nickname: from.Resource(),
		})
		r.mu.Unlock()

	case msg.IsMessageWithBody():
		r.mu.Lock()
		self := r.selfJID != nil && r.selfJID.String() == from.String()
		r.fireEventLocked(&Event{
			Type:     MessageReceived,
			Message:  msg,
			Nickname: from.Resource(),
			Self:     self,
		})
		r.mu.Unlock()
	}
}

func (r *Room) processInvite(invite, x xmpp.XElement) {
	inv := &Invitation{Room: r.roomJID}
	if fromStr := invite.Attributes().Get("from"); len(fromStr) > 0 {
		inv.From, _ = jid.NewWithString(fromStr, true)
	}
	if reason := invite.Elements().Child("reason"); reason != nil {
		inv.Reason = reason.Text()
	}
	if password := x.Elements().Child("password"); password != nil {
		inv.Password = password.Text()
	}
	r.mu.Lock()
	r.fireEventLocked(&Event{Type: InvitationReceived, Invitation: inv})
	r.mu.Unlock()
}

func (r *Room) processDecline(decline xmpp.XElement) {
	inv := &Invitation{Room: r.roomJID}
	if fromStr := decline.Attributes().Get("from"); len(fromStr) > 0 {
		inv.From, _ = jid.NewWithString(fromStr, true)
	}
	if reason := decline.Elements().Child("reason"); reason != nil {
		inv.Reason = reason.Text()
	}
	r.mu.Lock()
	r.fireEventLocked(&Event{Type: InvitationDeclined, Invitation: inv})
	r.mu.Unlock()
}
