/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package streamtest provides an in-memory stream.Stream implementation
// meant to be used by engine tests: outbound elements are captured, replies
// are programmable and inbound stanzas can be injected on either delivery
// class.
package streamtest

import (
	"sync"
	"time"

	"github.com/jackal-xmpp/squire/stream"
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
)

const defaultReplyTimeout = time.Millisecond * 500

// Stream represents a fake client connection.
type Stream struct {
	mu            sync.RWMutex
	jid           *jid.JID
	connected     bool
	authenticated bool
	replyTimeout  time.Duration
	sendHook      func(elem xmpp.XElement)
	sent          []xmpp.XElement
	listeners     []*stream.Listener
	collectors    []*stream.Collector
	closeHandlers []func()
	closed        bool
}

// New returns an initialized fake stream authenticated as jidStr.
func New(jidStr string) *Stream {
	j, err := jid.NewWithString(jidStr, true)
	if err != nil {
		panic(err)
	}
	return &Stream{
		jid:           j,
		connected:     true,
		authenticated: true,
		replyTimeout:  defaultReplyTimeout,
	}
}

// JID returns the stream authenticated JID.
func (s *Stream) JID() *jid.JID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jid
}

// IsConnected returns whether or not the fake transport is up.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// IsAuthenticated returns whether or not the fake stream has been authenticated.
func (s *Stream) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// ReplyTimeout returns the stream reply timeout.
func (s *Stream) ReplyTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replyTimeout
}

// SetConnected updates the fake connection state.
func (s *Stream) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// SetAuthenticated updates the fake authentication state.
func (s *Stream) SetAuthenticated(authenticated bool) {
	s.mu.Lock()
	s.authenticated = authenticated
	s.mu.Unlock()
}

// SetReplyTimeout updates the stream reply timeout.
func (s *Stream) SetReplyTimeout(timeout time.Duration) {
	s.mu.Lock()
	s.replyTimeout = timeout
	s.mu.Unlock()
}

// OnSend installs a hook invoked synchronously for every sent element.
// The hook typically injects the programmed server reply.
func (s *Stream) OnSend(hook func(elem xmpp.XElement)) {
	s.mu.Lock()
	s.sendHook = hook
	s.mu.Unlock()
}

// SendElement captures an outbound element and triggers the send hook.
func (s *Stream) SendElement(elem xmpp.XElement) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return stream.ErrNotConnected
	}
	s.sent = append(s.sent, elem)
	hook := s.sendHook
	s.mu.Unlock()

	if hook != nil {
		hook(elem)
	}
	return nil
}

// SendAndCollect captures stanza and blocks until a matching reply is
// injected or the reply timeout elapses.
func (s *Stream) SendAndCollect(stanza xmpp.Stanza, filter stream.Filter) (xmpp.Stanza, error) {
	c, err := s.NewCollector(filter)
	if err != nil {
		return nil, err
	}
	defer func() {
		s.removeCollector(c)
		c.Cancel()
	}()

	if err := s.SendElement(stanza); err != nil {
		return nil, err
	}
	return c.Collect(s.ReplyTimeout())
}

// NewCollector registers a collector capturing injected stanzas.
func (s *Stream) NewCollector(filter stream.Filter) (*stream.Collector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, stream.ErrNotConnected
	}
	c := stream.NewCollector(filter)
	s.collectors = append(s.collectors, c)
	return c, nil
}

// RegisterListener attaches an inbound stanza listener.
func (s *Stream) RegisterListener(listener *stream.Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

// UnregisterListener detaches a previously registered listener.
func (s *Stream) UnregisterListener(listener *stream.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l == listener {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of attached listeners.
func (s *Stream) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// OnClosed registers a connection-closed handler.
func (s *Stream) OnClosed(handler func()) {
	s.mu.Lock()
	s.closeHandlers = append(s.closeHandlers, handler)
	s.mu.Unlock()
}

// Inject delivers an inbound stanza to all registered collectors and to
// every matching listener of the given delivery class, synchronously in the
// caller goroutine.
func (s *Stream) Inject(class stream.DeliveryClass, stanza xmpp.Stanza) {
	s.mu.RLock()
	collectors := make([]*stream.Collector, len(s.collectors))
	copy(collectors, s.collectors)
	listeners := make([]*stream.Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, c := range collectors {
		c.Process(stanza)
	}
	for _, l := range listeners {
		if l.Class != class {
			continue
		}
		if l.Filter != nil && !l.Filter(stanza) {
			continue
		}
		l.Handle(stanza)
	}
}

// Disconnect simulates a connection loss: pending collects are released
// with stream.ErrDisconnected and close handlers run.
func (s *Stream) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.connected = false
	s.authenticated = false
	collectors := s.collectors
	s.collectors = nil
	handlers := s.closeHandlers
	s.mu.Unlock()

	for _, c := range collectors {
		c.Disconnect()
	}
	for _, h := range handlers {
		h()
	}
}

// Sent returns a snapshot of all captured outbound elements.
func (s *Stream) Sent() []xmpp.XElement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sent := make([]xmpp.XElement, len(s.sent))
	copy(sent, s.sent)
	return sent
}

// LastSent returns the most recently captured outbound element or nil.
func (s *Stream) LastSent() xmpp.XElement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

func (s *Stream) removeCollector(c *stream.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sc := range s.collectors {
		if sc == c {
			s.collectors = append(s.collectors[:i], s.collectors[i+1:]...)
			return
		}
	}
}
