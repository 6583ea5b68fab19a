/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"github.com/google/uuid"
	"github.com/jackal-xmpp/squire/stream"
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
)

// AffiliationItem describes one entry of a room affiliation list.
type AffiliationItem struct {
	JID         *jid.JID
	Affiliation string
	Nickname    string
}

// Kick expels an occupant from the room.
func (r *Room) Kick(nickname, reason string) error {
	return r.updateRole(nickname, RoleNone, reason)
}

// GrantVoice allows an occupant to speak in a moderated room.
func (r *Room) GrantVoice(nickname, reason string) error {
	return r.updateRole(nickname, RoleParticipant, reason)
}

// RevokeVoice prevents an occupant from speaking in a moderated room.
func (r *Room) RevokeVoice(nickname, reason string) error {
	return r.updateRole(nickname, RoleVisitor, reason)
}

// GrantModerator grants moderator privileges to an occupant.
func (r *Room) GrantModerator(nickname string) error {
	return r.updateRole(nickname, RoleModerator, "")
}

// RevokeModerator revokes an occupant moderator privileges.
func (r *Room) RevokeModerator(nickname string) error {
	return r.updateRole(nickname, RoleParticipant, "")
}

// Ban excludes a user from the room.
func (r *Room) Ban(user *jid.JID, reason string) error {
	return r.updateAffiliation(user, AffiliationOutcast, reason)
}

// GrantMembership adds a user to the room member list.
func (r *Room) GrantMembership(user *jid.JID) error {
	return r.updateAffiliation(user, AffiliationMember, "")
}

// RevokeMembership removes a user from the room member list.
func (r *Room) RevokeMembership(user *jid.JID) error {
	return r.updateAffiliation(user, AffiliationNone, "")
}

// GrantAdmin promotes a user to room admin.
func (r *Room) GrantAdmin(user *jid.JID) error {
	return r.updateAffiliation(user, AffiliationAdmin, "")
}

// RevokeAdmin demotes a room admin to plain member.
func (r *Room) RevokeAdmin(user *jid.JID) error {
	return r.updateAffiliation(user, AffiliationMember, "")
}

// GrantOwnership promotes a user to room owner.
func (r *Room) GrantOwnership(user *jid.JID) error {
	return r.updateAffiliation(user, AffiliationOwner, "")
}

// RevokeOwnership demotes a room owner to admin.
func (r *Room) RevokeOwnership(user *jid.JID) error {
	return r.updateAffiliation(user, AffiliationAdmin, "")
}

// AffiliationList fetches the room list for the given affiliation.
func (r *Room) AffiliationList(affiliation string) ([]AffiliationItem, error) {
	if !r.stm.IsConnected() {
		return nil, stream.ErrNotConnected
	}
	iq := xmpp.NewIQType(uuid.New().String(), xmpp.GetType)
	iq.SetFromJID(r.stm.JID())
	iq.SetToJID(r.roomJID)

	query := xmpp.NewElementNamespace("query", mucNamespaceAdmin)
	item := xmpp.NewElementName("item")
	item.SetAttribute("affiliation", affiliation)
	query.AppendElement(item)
	iq.AppendElement(query)

	reply, err := r.stm.SendAndCollect(iq, correlatedReply(iq.ID()))
	if err != nil {
		return nil, err
	}
	if reply.Type() == xmpp.ErrorType {
		return nil, xmpp.NewStanzaErrorFromStanza(reply)
	}
	resultQuery := reply.Elements().ChildNamespace("query", mucNamespaceAdmin)
	if resultQuery == nil {
		return nil, nil
	}
	var items []AffiliationItem
	for _, itemEl := range resultQuery.Elements().Children("item") {
		ai := AffiliationItem{
			Affiliation: itemEl.Attributes().Get("affiliation"),
			Nickname:    itemEl.Attributes().Get("nick"),
		}
		if jidStr := itemEl.Attributes().Get("jid"); len(jidStr) > 0 {
			ai.JID, _ = jid.NewWithString(jidStr, true)
		}
		items = append(items, ai)
	}
	return items, nil
}

// Destroy requests the destruction of the room, optionally pointing members
// to an alternate venue.
func (r *Room) Destroy(reason, alternateRoom string) error {
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	iq := xmpp.NewIQType(uuid.New().String(), xmpp.SetType)
	iq.SetFromJID(r.stm.JID())
	iq.SetToJID(r.roomJID)

	destroy := xmpp.NewElementName("destroy")
	if len(alternateRoom) > 0 {
		destroy.SetAttribute("jid", alternateRoom)
	}
	if len(reason) > 0 {
		destroy.AppendElement(xmpp.NewElementName("reason").SetText(reason))
	}
	query := xmpp.NewElementNamespace("query", mucNamespaceOwner)
	query.AppendElement(destroy)
	iq.AppendElement(query)

	return r.sendAdminIQ(iq)
}

// updateRole sends a role mutation for an occupant nickname. Local state is
// never touched here: it only changes once the service reflects the update
// through the presence ingestion path.
func (r *Room) updateRole(nickname, role, reason string) error {
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	iq := xmpp.NewIQType(uuid.New().String(), xmpp.SetType)
	iq.SetFromJID(r.stm.JID())
	iq.SetToJID(r.roomJID)

	item := xmpp.NewElementName("item")
	item.SetAttribute("nick", nickname)
	item.SetAttribute("role", role)
	if len(reason) > 0 {
		item.AppendElement(xmpp.NewElementName("reason").SetText(reason))
	}
	query := xmpp.NewElementNamespace("query", mucNamespaceAdmin)
	query.AppendElement(item)
	iq.AppendElement(query)

	return r.sendAdminIQ(iq)
}

// updateAffiliation sends an affiliation mutation for a user bare JID.
func (r *Room) updateAffiliation(user *jid.JID, affiliation, reason string) error {
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	iq := xmpp.NewIQType(uuid.New().String(), xmpp.SetType)
	iq.SetFromJID(r.stm.JID())
	iq.SetToJID(r.roomJID)

	item := xmpp.NewElementName("item")
	item.SetAttribute("jid", user.ToBareJID().String())
	item.SetAttribute("affiliation", affiliation)
	if len(reason) > 0 {
		item.AppendElement(xmpp.NewElementName("reason").SetText(reason))
	}
	query := xmpp.NewElementNamespace("query", mucNamespaceAdmin)
	query.AppendElement(item)
	iq.AppendElement(query)

	return r.sendAdminIQ(iq)
}

func (r *Room) sendAdminIQ(iq *xmpp.IQ) error {
	reply, err := r.stm.SendAndCollect(iq, correlatedReply(iq.ID()))
	if err != nil {
		return err
	}
	if reply.Type() == xmpp.ErrorType {
		return xmpp.NewStanzaErrorFromStanza(reply)
	}
	return nil
}
