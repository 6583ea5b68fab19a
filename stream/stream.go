/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package stream defines the transport contract consumed by the roster and
// MUC engines. A Stream is an authenticated XMPP connection able to send
// elements, correlate replies and fan inbound stanzas out to registered
// listeners.
package stream

import (
	"time"

	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
)

// DeliveryClass determines the dispatch path an inbound stanza listener is
// attached to.
type DeliveryClass int

const (
	// Sync listeners are invoked one at a time, in stanza arrival order.
	// Ordering-sensitive stanzas (IQ pushes) are consumed here.
	Sync DeliveryClass = iota

	// Async listeners may be invoked concurrently with no cross-stanza
	// ordering guarantee. Presence is consumed here.
	Async
)

// Filter is a predicate over inbound stanzas.
type Filter func(stanza xmpp.Stanza) bool

// Handler processes an inbound stanza accepted by a listener filter.
type Handler func(stanza xmpp.Stanza)

// Listener couples a stanza filter to its handler on a delivery class.
type Listener struct {
	Class  DeliveryClass
	Filter Filter
	Handle Handler
}

// Stream represents an XMPP client connection.
type Stream interface {
	// JID returns the stream authenticated JID.
	JID() *jid.JID

	// IsConnected returns whether or not the underlying transport is up.
	IsConnected() bool

	// IsAuthenticated returns whether or not the stream has been
	// authenticated against the server.
	IsAuthenticated() bool

	// ReplyTimeout returns the default amount of time a send-and-wait
	// operation waits for its correlated reply.
	ReplyTimeout() time.Duration

	// SendElement writes an element to the underlying transport.
	SendElement(elem xmpp.XElement) error

	// SendAndCollect writes stanza and blocks until an inbound stanza
	// accepted by filter arrives, the reply timeout elapses, or the
	// connection is lost.
	SendAndCollect(stanza xmpp.Stanza, filter Filter) (xmpp.Stanza, error)

	// NewCollector registers a collector that captures inbound stanzas
	// accepted by filter. The caller must cancel it when done.
	NewCollector(filter Filter) (*Collector, error)

	// RegisterListener attaches an inbound stanza listener.
	RegisterListener(listener *Listener)

	// UnregisterListener detaches a previously registered listener.
	UnregisterListener(listener *Listener)

	// OnClosed registers a handler invoked once when the connection is
	// lost or closed.
	OnClosed(handler func())
}
