/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package roster

import (
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
)

// EventType identifies a roster event variant.
type EventType int

const (
	// EntriesAdded notifies a batch of entries inserted by a merge pass.
	EntriesAdded EventType = iota

	// EntriesUpdated notifies a batch of entries updated by a merge pass.
	EntriesUpdated

	// EntriesDeleted notifies a batch of entries removed by a merge pass.
	EntriesDeleted

	// Loaded notifies a reload settled successfully.
	Loaded

	// LoadingFailed notifies a reload failure. Err carries the cause.
	LoadingFailed

	// PresenceChanged notifies a presence update for an in-roster entry.
	PresenceChanged

	// OwnPresenceChanged notifies a presence update for the local account.
	OwnPresenceChanged

	// SubscribeRequest notifies an inbound presence subscription request.
	SubscribeRequest
)

// Event represents a roster change notification.
type Event struct {
	Type     EventType
	JIDs     []*jid.JID
	Presence *xmpp.Presence
	Err      error
}

// EventHandler is invoked on every roster event.
type EventHandler func(ev *Event)

// SubscribeAnswer is the reply a subscribe handler gives to an inbound
// subscription request while running in manual mode.
type SubscribeAnswer int

const (
	// NoAnswer leaves the request pending for another handler.
	NoAnswer SubscribeAnswer = iota

	// Approve grants the subscription request.
	Approve

	// Deny rejects the subscription request.
	Deny
)

// SubscribeHandler decides the fate of an inbound subscription request.
type SubscribeHandler func(from *jid.JID) SubscribeAnswer
