/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
)

// EventType identifies a room event variant.
type EventType int

const (
	// OccupantJoined event is posted when a new occupant enters the room.
	OccupantJoined EventType = iota

	// OccupantLeft event is posted when an occupant leaves the room.
	OccupantLeft

	// OccupantKicked event is posted when an occupant is removed by a
	// moderator (status 307).
	OccupantKicked

	// OccupantBanned event is posted when an occupant is banned from the
	// room (status 301).
	OccupantBanned

	// OccupantRemoved event is posted when an occupant is removed because
	// of an affiliation change (status 321).
	OccupantRemoved

	// NicknameChanged event is posted when an occupant switches to a new
	// nickname (status 303).
	NicknameChanged

	// RoomDestroyed event is posted when the room is destroyed or the
	// service shuts down.
	RoomDestroyed

	// VoiceGranted event is posted when an occupant gains voice.
	VoiceGranted

	// VoiceRevoked event is posted when an occupant loses voice.
	VoiceRevoked

	// ModeratorGranted event is posted when an occupant gains the
	// moderator role.
	ModeratorGranted

	// ModeratorRevoked event is posted when an occupant loses the
	// moderator role.
	ModeratorRevoked

	// MembershipGranted event is posted when an occupant becomes a room
	// member.
	MembershipGranted

	// MembershipRevoked event is posted when an occupant loses room
	// membership.
	MembershipRevoked

	// AdminGranted event is posted when an occupant becomes a room admin.
	AdminGranted

	// AdminRevoked event is posted when an occupant loses room admin
	// status.
	AdminRevoked

	// OwnershipGranted event is posted when an occupant becomes a room
	// owner.
	OwnershipGranted

	// OwnershipRevoked event is posted when an occupant loses room
	// ownership.
	OwnershipRevoked

	// SubjectUpdated event is posted when the room subject changes.
	SubjectUpdated

	// MessageReceived event is posted for every groupchat message with a
	// body.
	MessageReceived

	// InvitationReceived event is posted when a mediated invitation for
	// the room arrives.
	InvitationReceived

	// InvitationDeclined event is posted when an invitee declines a
	// previously sent invitation.
	InvitationDeclined
)

// Invitation describes a mediated room invitation or its decline.
type Invitation struct {
	Room     *jid.JID
	From     *jid.JID
	Reason   string
	Password string
}

// Event represents a room event.
type Event struct {
	// Type is the event variant.
	Type EventType

	// Occupant is the occupant the event refers to, when any.
	Occupant *Occupant

	// Self tells whether the event concerns the local occupant.
	Self bool

	// NewNickname carries the rewritten nickname on NicknameChanged.
	NewNickname string

	// Nickname carries the sender nickname on subject and message events.
	Nickname string

	// Subject carries the room subject on SubjectUpdated.
	Subject string

	// Message carries the received stanza on MessageReceived.
	Message *xmpp.Message

	// Invitation carries invitation details on invitation events.
	Invitation *Invitation
}

// EventHandler handles a room event.
type EventHandler func(ev *Event)

// Subscription represents a registered room event handler.
type Subscription struct {
	handler EventHandler
}
