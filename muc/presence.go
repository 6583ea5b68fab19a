/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"github.com/jackal-xmpp/squire/xmpp"
)

func (r *Room) processPresence(stanza xmpp.Stanza) {
	presence := stanza.(*xmpp.Presence)

	from := presence.FromJID()
	if from == nil || len(from.Resource()) == 0 {
		return // room level presence carries no occupant
	}
	r.gate.Run(from.String(), func() {
		r.applyOccupantPresence(presence)
	})
}

// applyOccupantPresence runs on the per-occupant serialized path and is the
// only place where the occupant map mutates.
func (r *Room) applyOccupantPresence(presence *xmpp.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := presence.FromJID()
	key := from.String()

	switch {
	case presence.IsAvailable():
		r.applyAvailable(key, presence)

	case presence.IsUnavailable():
		r.applyUnavailable(key, presence)
	}
	r.cond.Broadcast()
}

func (r *Room) applyAvailable(key string, presence *xmpp.Presence) {
	occ := newOccupant(presence)
	self := isSelfPresence(presence) || (r.selfJID != nil && r.selfJID.String() == key)
	if isSelfPresence(presence) {
		// the service may have rewritten the requested nickname
		r.selfJID = presence.FromJID()
		r.lastSelfJID = presence.FromJID()
	}
	prev := r.occupants[key]
	r.occupants[key] = occ

	if prev == nil {
		r.fireEventLocked(&Event{Type: OccupantJoined, Occupant: occ.clone(), Self: self})
		return
	}
	for _, evType := range roleTransitionEvents(prev.role, occ.role) {
		r.fireEventLocked(&Event{Type: evType, Occupant: occ.clone(), Self: self})
	}
	for _, evType := range affiliationTransitionEvents(prev.affiliation, occ.affiliation) {
		r.fireEventLocked(&Event{Type: evType, Occupant: occ.clone(), Self: self})
	}
}

func (r *Room) applyUnavailable(key string, presence *xmpp.Presence) {
	occ := r.occupants[key]
	delete(r.occupants, key)
	if occ == nil {
		occ = newOccupant(presence)
	}
	codes := statusCodes(presence)
	self := hasStatus(codes, statusSelfPresence) || (r.selfJID != nil && r.selfJID.String() == key)

	ev := &Event{Occupant: occ.clone(), Self: self}
	nicknameChange := hasStatus(codes, statusNewNickname)
	switch {
	case nicknameChange:
		ev.Type = NicknameChanged
		ev.NewNickname = newNickname(presence)
	case hasStatus(codes, statusBanned):
		ev.Type = OccupantBanned
	case hasStatus(codes, statusKicked):
		ev.Type = OccupantKicked
	case hasStatus(codes, statusAffiliationDropped):
		ev.Type = OccupantRemoved
	case hasStatus(codes, statusServiceShutdown) || hasDestroyElement(presence):
		ev.Type = RoomDestroyed
	default:
		ev.Type = OccupantLeft
	}
	r.fireEventLocked(ev)

	// a nickname change keeps the session alive; the occupant reappears
	// under the new address right after
	if self && !nicknameChange {
		r.teardownSessionLocked()
	}
}

// teardownSessionLocked clears session state while holding the engine lock.
func (r *Room) teardownSessionLocked() {
	r.occupants = make(map[string]*Occupant)
	r.selfJID = nil
	r.subject = ""
	r.state = NotJoined
	r.unregisterListeners()
}

// roleTransitionEvents maps a role transition to its ordered event list.
// Voice changes fire before moderator changes.
func roleTransitionEvents(prev, next string) []EventType {
	if prev == next {
		return nil
	}
	var evs []EventType
	hadVoice := prev == RoleParticipant || prev == RoleModerator
	hasVoice := next == RoleParticipant || next == RoleModerator
	if !hadVoice && hasVoice {
		evs = append(evs, VoiceGranted)
	}
	if hadVoice && !hasVoice {
		evs = append(evs, VoiceRevoked)
	}
	if prev != RoleModerator && next == RoleModerator {
		evs = append(evs, ModeratorGranted)
	}
	if prev == RoleModerator && next != RoleModerator {
		evs = append(evs, ModeratorRevoked)
	}
	return evs
}

// affiliationTransitionEvents maps an affiliation transition to its ordered
// event list. Revocations fire before grants.
func affiliationTransitionEvents(prev, next string) []EventType {
	if prev == next {
		return nil
	}
	var evs []EventType
	switch prev {
	case AffiliationOwner:
		evs = append(evs, OwnershipRevoked)
	case AffiliationAdmin:
		evs = append(evs, AdminRevoked)
	case AffiliationMember:
		evs = append(evs, MembershipRevoked)
	}
	switch next {
	case AffiliationOwner:
		evs = append(evs, OwnershipGranted)
	case AffiliationAdmin:
		evs = append(evs, AdminGranted)
	case AffiliationMember:
		evs = append(evs, MembershipGranted)
	}
	return evs
}
