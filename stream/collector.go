/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package stream

import (
	"sync"
	"time"

	"github.com/jackal-xmpp/squire/xmpp"
)

const collectorBufferSize = 16

// Collector captures inbound stanzas accepted by its filter, releasing a
// blocked Collect call when the first one arrives.
//
// Timeout, connection loss and explicit cancellation release the wait with
// distinguishable errors (ErrNoReply, ErrDisconnected, ErrCancelled).
type Collector struct {
	filter     Filter
	resultCh   chan xmpp.Stanza
	cancelCh   chan struct{}
	discCh     chan struct{}
	cancelOnce sync.Once
	discOnce   sync.Once
}

// NewCollector returns an initialized stanza collector.
func NewCollector(filter Filter) *Collector {
	return &Collector{
		filter:   filter,
		resultCh: make(chan xmpp.Stanza, collectorBufferSize),
		cancelCh: make(chan struct{}),
		discCh:   make(chan struct{}),
	}
}

// Process offers an inbound stanza to the collector, returning true if the
// stanza was accepted by the collector filter.
//
// Process is meant to be called by Stream implementations.
func (c *Collector) Process(stanza xmpp.Stanza) bool {
	if c.filter != nil && !c.filter(stanza) {
		return false
	}
	select {
	case c.resultCh <- stanza:
		return true
	default:
		return false // buffer exhausted
	}
}

// Collect blocks until a matching stanza arrives or timeout elapses.
func (c *Collector) Collect(timeout time.Duration) (xmpp.Stanza, error) {
	tm := time.NewTimer(timeout)
	defer tm.Stop()

	select {
	case stanza := <-c.resultCh:
		return stanza, nil
	case <-c.cancelCh:
		return c.drain(ErrCancelled)
	case <-c.discCh:
		return c.drain(ErrDisconnected)
	case <-tm.C:
		return nil, ErrNoReply
	}
}

// Cancel releases any blocked Collect call with ErrCancelled and detaches
// the collector from its stream.
func (c *Collector) Cancel() {
	c.cancelOnce.Do(func() { close(c.cancelCh) })
}

// Disconnect releases any blocked Collect call with ErrDisconnected.
//
// Disconnect is meant to be called by Stream implementations upon
// connection loss.
func (c *Collector) Disconnect() {
	c.discOnce.Do(func() { close(c.discCh) })
}

// a stanza delivered before the release signal wins over the signal
func (c *Collector) drain(err error) (xmpp.Stanza, error) {
	select {
	case stanza := <-c.resultCh:
		return stanza, nil
	default:
		return nil, err
	}
}
