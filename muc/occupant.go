/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
)

const (
	// RoleNone represents a 'none' occupant role.
	RoleNone = "none"

	// RoleVisitor represents a 'visitor' occupant role.
	RoleVisitor = "visitor"

	// RoleParticipant represents a 'participant' occupant role.
	RoleParticipant = "participant"

	// RoleModerator represents a 'moderator' occupant role.
	RoleModerator = "moderator"
)

const (
	// AffiliationNone represents a 'none' occupant affiliation.
	AffiliationNone = "none"

	// AffiliationOutcast represents an 'outcast' occupant affiliation.
	AffiliationOutcast = "outcast"

	// AffiliationMember represents a 'member' occupant affiliation.
	AffiliationMember = "member"

	// AffiliationAdmin represents an 'admin' occupant affiliation.
	AffiliationAdmin = "admin"

	// AffiliationOwner represents an 'owner' occupant affiliation.
	AffiliationOwner = "owner"
)

// Occupant represents a room occupant derived from its last presence.
type Occupant struct {
	occupantJID *jid.JID
	realJID     *jid.JID
	role        string
	affiliation string
	presence    *xmpp.Presence
}

func newOccupant(presence *xmpp.Presence) *Occupant {
	o := &Occupant{
		occupantJID: presence.FromJID(),
		role:        RoleNone,
		affiliation: AffiliationNone,
		presence:    presence,
	}
	item := userItemElement(presence)
	if item == nil {
		return o
	}
	if role := item.Attributes().Get("role"); len(role) > 0 {
		o.role = role
	}
	if affiliation := item.Attributes().Get("affiliation"); len(affiliation) > 0 {
		o.affiliation = affiliation
	}
	if realJIDStr := item.Attributes().Get("jid"); len(realJIDStr) > 0 {
		if realJID, err := jid.NewWithString(realJIDStr, true); err == nil {
			o.realJID = realJID
		}
	}
	return o
}

// OccupantJID returns the occupant full room address (room@service/nickname).
func (o *Occupant) OccupantJID() *jid.JID {
	return o.occupantJID
}

// Nickname returns the occupant room nickname.
func (o *Occupant) Nickname() string {
	return o.occupantJID.Resource()
}

// RealJID returns the occupant real address, or nil if the room does not
// expose it.
func (o *Occupant) RealJID() *jid.JID {
	return o.realJID
}

// Role returns the occupant current role.
func (o *Occupant) Role() string {
	return o.role
}

// Affiliation returns the occupant current affiliation.
func (o *Occupant) Affiliation() string {
	return o.affiliation
}

// Presence returns the last presence received from the occupant.
func (o *Occupant) Presence() *xmpp.Presence {
	return o.presence
}

// HasVoice returns true if the occupant is allowed to speak in a
// moderated room.
func (o *Occupant) HasVoice() bool {
	return o.role == RoleParticipant || o.role == RoleModerator
}

// IsModerator returns true if the occupant holds the moderator role.
func (o *Occupant) IsModerator() bool {
	return o.role == RoleModerator
}

func (o *Occupant) clone() *Occupant {
	c := *o
	return &c
}
