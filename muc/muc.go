/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package muc implements the occupant side of multi-user chat rooms: the
// enter/leave handshakes, the occupant map derived from room presence and
// the role/affiliation change events, on top of an abstract stream.
package muc

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackal-xmpp/squire/runqueue"
	"github.com/jackal-xmpp/squire/stream"
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
)

var (
	// ErrNotAMucService will be returned by Enter when the room domain
	// does not host a multi-user chat service.
	ErrNotAMucService = errors.New("muc: not a multi-user chat service")

	// ErrAlreadyJoined will be returned by Enter when the room was
	// already entered on this stream.
	ErrAlreadyJoined = errors.New("muc: already joined")

	// ErrNotJoined will be returned by room operations requiring an
	// active occupancy.
	ErrNotJoined = errors.New("muc: not joined")

	// ErrCreationNotAcknowledged will be returned by Create when the
	// service does not confirm the creation of a new room.
	ErrCreationNotAcknowledged = errors.New("muc: room creation not acknowledged")
)

// ServiceInfoProvider resolves capability information of remote service
// domains. Typically backed by a disco#info cache.
type ServiceInfoProvider interface {
	// IsMucService tells whether domain hosts a multi-user chat service.
	IsMucService(domain string) bool
}

// State represents a room session state.
type State int

const (
	// NotJoined represents a room with no active occupancy.
	NotJoined State = iota

	// Entering represents a room whose join presence is awaiting its
	// reflected self-presence.
	Entering

	// Joined represents an active room occupancy.
	Joined

	// Leaving represents a room whose exit presence is awaiting its
	// reflection.
	Leaving
)

// Room represents the occupant view of a single multi-user chat room.
type Room struct {
	stm      stream.Stream
	provider ServiceInfoProvider
	roomJID  *jid.JID

	mu          sync.RWMutex
	cond        *sync.Cond
	state       State
	selfJID     *jid.JID
	lastSelfJID *jid.JID
	occupants   map[string]*Occupant
	subject     string
	handlers    []*Subscription

	lmu       sync.Mutex
	listening bool

	gate *runqueue.Keyed

	presenceListener *stream.Listener
	messageListener  *stream.Listener
}

// New returns a room engine bound to stm. The room is not entered yet and
// no stanza listener is attached until Enter succeeds in registering them.
func New(stm stream.Stream, roomJID *jid.JID, provider ServiceInfoProvider) (*Room, error) {
	if roomJID == nil || !roomJID.IsBare() {
		return nil, errors.New("muc: room JID must be a bare JID")
	}
	r := &Room{
		stm:       stm,
		provider:  provider,
		roomJID:   roomJID,
		occupants: make(map[string]*Occupant),
		gate:      runqueue.NewKeyed("muc/" + roomJID.String()),
	}
	r.cond = sync.NewCond(&r.mu)

	r.presenceListener = &stream.Listener{
		Class:  stream.Async,
		Filter: r.isRoomPresence,
		Handle: r.processPresence,
	}
	r.messageListener = &stream.Listener{
		Class:  stream.Sync,
		Filter: r.isRoomMessage,
		Handle: r.processMessage,
	}
	stm.OnClosed(r.handleDisconnect)
	return r, nil
}

// Dispose tears the room session down and stops the presence gate.
func (r *Room) Dispose() {
	r.teardown()
	r.gate.Stop(func() {})
}

// RoomJID returns the room bare JID.
func (r *Room) RoomJID() *jid.JID {
	return r.roomJID
}

// State returns current session state.
func (r *Room) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsJoined returns true while the room holds an active occupancy. The
// predicate is defined purely by the presence of a self room address.
func (r *Room) IsJoined() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selfJID != nil
}

// SelfOccupant returns the local occupant, or nil when not joined.
func (r *Room) SelfOccupant() *Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selfJID == nil {
		return nil
	}
	if occ := r.occupants[r.selfJID.String()]; occ != nil {
		return occ.clone()
	}
	return nil
}

// Occupant returns the occupant holding nickname, or nil.
func (r *Room) Occupant(nickname string) *Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, occ := range r.occupants {
		if occ.Nickname() == nickname {
			return occ.clone()
		}
	}
	return nil
}

// Occupants returns a snapshot of all known room occupants.
func (r *Room) Occupants() []*Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]*Occupant, 0, len(r.occupants))
	for _, occ := range r.occupants {
		ret = append(ret, occ.clone())
	}
	return ret
}

// OccupantCount returns the number of known room occupants.
func (r *Room) OccupantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.occupants)
}

// Subject returns the last room subject seen.
func (r *Room) Subject() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subject
}

// Subscribe registers a room event handler.
func (r *Room) Subscribe(handler EventHandler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := &Subscription{handler: handler}
	r.handlers = append(r.handlers, sub)
	return sub
}

// Unsubscribe removes a previously registered room event handler.
func (r *Room) Unsubscribe(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.handlers {
		if s == sub {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return
		}
	}
}

// Enter joins the room and blocks until the service reflects the join back,
// the occupant map has absorbed the reflected self-presence, or the reply
// timeout elapses. On any failure every listener registered during the
// handshake is detached before the error is returned.
func (r *Room) Enter(cfg *Config) error {
	reflected, err := r.enter(cfg)
	if err != nil {
		return err
	}
	if err := r.awaitSelfOccupant(reflected); err != nil {
		r.teardown()
		return err
	}
	return nil
}

// Create joins the room expecting to create it, acknowledging an instant
// room. ErrCreationNotAcknowledged is returned if the service reflects the
// join without the room-created marker.
func (r *Room) Create(cfg *Config) error {
	reflected, err := r.enter(cfg)
	if err != nil {
		return err
	}
	if !hasStatus(statusCodes(reflected), statusRoomCreated) {
		r.teardown()
		return ErrCreationNotAcknowledged
	}
	if err := r.awaitSelfOccupant(reflected); err != nil {
		r.teardown()
		return err
	}
	return r.acknowledgeCreation()
}

// CreateOrJoin joins the room, acknowledging an instant room if the join
// ended up creating it.
func (r *Room) CreateOrJoin(cfg *Config) error {
	reflected, err := r.enter(cfg)
	if err != nil {
		return err
	}
	if err := r.awaitSelfOccupant(reflected); err != nil {
		r.teardown()
		return err
	}
	if hasStatus(statusCodes(reflected), statusRoomCreated) {
		return r.acknowledgeCreation()
	}
	return nil
}

// Leave exits the room. The exit presence is sent even if local state
// claims the room is not joined, to resynchronize with the service view;
// local teardown runs regardless of the outcome of the wait.
func (r *Room) Leave() error {
	r.mu.Lock()
	self := r.selfJID
	if self == nil {
		self = r.lastSelfJID
	}
	r.state = Leaving
	r.mu.Unlock()

	defer r.teardown()

	if self == nil {
		return nil // nothing was ever joined
	}
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	p := xmpp.NewPresence(r.stm.JID(), self, xmpp.UnavailableType)
	p.SetID(uuid.New().String())

	reply, err := r.stm.SendAndCollect(p, r.exitReplyFilter(p.ID(), self))
	if err != nil {
		return err
	}
	if reply.Type() == xmpp.ErrorType {
		return xmpp.NewStanzaErrorFromStanza(reply)
	}
	return nil
}

// ChangeNickname switches the local occupant to a new nickname and blocks
// until the service reflects the new self-presence back.
func (r *Room) ChangeNickname(nickname string) error {
	r.mu.RLock()
	joined := r.selfJID != nil
	r.mu.RUnlock()
	if !joined {
		return ErrNotJoined
	}
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	to, err := jid.New(r.roomJID.Node(), r.roomJID.Domain(), nickname, true)
	if err != nil {
		return err
	}
	p := xmpp.NewPresence(r.stm.JID(), to, xmpp.AvailableType)
	p.SetID(uuid.New().String())

	reply, err := r.stm.SendAndCollect(p, r.selfReflectionFilter(p.ID(), to))
	if err != nil {
		return err
	}
	if reply.Type() == xmpp.ErrorType {
		return xmpp.NewStanzaErrorFromStanza(reply)
	}
	return r.awaitSelfOccupant(presenceFromStanza(reply))
}

// ChangeAvailabilityStatus updates the local occupant presence shown to the
// room and blocks until its reflection.
func (r *Room) ChangeAvailabilityStatus(show xmpp.ShowState, status string) error {
	r.mu.RLock()
	self := r.selfJID
	r.mu.RUnlock()
	if self == nil {
		return ErrNotJoined
	}
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	p := xmpp.NewPresence(r.stm.JID(), self, xmpp.AvailableType)
	p.SetID(uuid.New().String())
	p.SetShowState(show)
	p.SetStatus(status)

	reply, err := r.stm.SendAndCollect(p, r.selfReflectionFilter(p.ID(), self))
	if err != nil {
		return err
	}
	if reply.Type() == xmpp.ErrorType {
		return xmpp.NewStanzaErrorFromStanza(reply)
	}
	return nil
}

// ChangeSubject updates the room subject and blocks until the service
// broadcasts the new subject back.
func (r *Room) ChangeSubject(subject string) error {
	r.mu.RLock()
	joined := r.selfJID != nil
	r.mu.RUnlock()
	if !joined {
		return ErrNotJoined
	}
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	msg := xmpp.NewMessageType(uuid.New().String(), xmpp.GroupChatType)
	msg.SetFromJID(r.stm.JID())
	msg.SetToJID(r.roomJID)
	msg.AppendElement(xmpp.NewElementName("subject").SetText(subject))

	reply, err := r.stm.SendAndCollect(msg, r.subjectReplyFilter(msg.ID(), subject))
	if err != nil {
		return err
	}
	if reply.Type() == xmpp.ErrorType {
		return xmpp.NewStanzaErrorFromStanza(reply)
	}
	return nil
}

// Invite sends a mediated invitation for the room.
func (r *Room) Invite(invitee *jid.JID, reason string) error {
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	invite := xmpp.NewElementName("invite")
	invite.SetAttribute("to", invitee.ToBareJID().String())
	if len(reason) > 0 {
		invite.AppendElement(xmpp.NewElementName("reason").SetText(reason))
	}
	x := xmpp.NewElementNamespace("x", mucNamespaceUser)
	x.AppendElement(invite)

	msg := xmpp.NewMessageType(uuid.New().String(), "")
	msg.SetFromJID(r.stm.JID())
	msg.SetToJID(r.roomJID)
	msg.AppendElement(x)
	return r.stm.SendElement(msg)
}

// RequestVoice asks the room moderators for voice. The request is a plain
// data form message and carries no reply to wait for.
func (r *Room) RequestVoice() error {
	r.mu.RLock()
	joined := r.selfJID != nil
	r.mu.RUnlock()
	if !joined {
		return ErrNotJoined
	}
	form := xmpp.NewElementNamespace("x", dataFormsNamespace)
	form.SetAttribute("type", "submit")

	formType := xmpp.NewElementName("field")
	formType.SetAttribute("var", "FORM_TYPE")
	formType.AppendElement(xmpp.NewElementName("value").SetText(voiceRequestNamespace))
	form.AppendElement(formType)

	roleField := xmpp.NewElementName("field")
	roleField.SetAttribute("var", "muc#role")
	roleField.SetAttribute("type", "list-single")
	roleField.AppendElement(xmpp.NewElementName("value").SetText(RoleParticipant))
	form.AppendElement(roleField)

	msg := xmpp.NewMessageType(uuid.New().String(), "")
	msg.SetFromJID(r.stm.JID())
	msg.SetToJID(r.roomJID)
	msg.AppendElement(form)
	return r.stm.SendElement(msg)
}

// enter performs the join handshake up to the reflected presence, leaving
// occupant absorption to the caller. Listeners are registered before the
// join presence goes out so the reflection cannot be missed, and torn down
// on every failure path.
func (r *Room) enter(cfg *Config) (*xmpp.Presence, error) {
	if cfg == nil || len(cfg.Nickname) == 0 {
		return nil, errors.New("muc: a nickname is required to enter a room")
	}
	if !r.stm.IsConnected() {
		return nil, stream.ErrNotConnected
	}
	if !r.stm.IsAuthenticated() {
		return nil, stream.ErrNotAuthenticated
	}
	if r.provider == nil || !r.provider.IsMucService(r.roomJID.Domain()) {
		return nil, ErrNotAMucService
	}
	to, err := jid.New(r.roomJID.Node(), r.roomJID.Domain(), cfg.Nickname, true)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.selfJID != nil || r.state == Entering {
		r.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	r.state = Entering
	r.mu.Unlock()

	r.registerListeners()

	success := false
	defer func() {
		if !success {
			r.teardown()
		}
	}()

	p := xmpp.NewPresence(r.stm.JID(), to, xmpp.AvailableType)
	p.SetID(uuid.New().String())
	p.AppendElement(newJoinElement(cfg))
	if len(cfg.Status) > 0 {
		p.SetStatus(cfg.Status)
	}
	reply, err := r.stm.SendAndCollect(p, r.enterReplyFilter(p.ID(), to))
	if err != nil {
		return nil, err
	}
	if reply.Type() == xmpp.ErrorType {
		return nil, xmpp.NewStanzaErrorFromStanza(reply)
	}
	success = true
	return presenceFromStanza(reply), nil
}

// awaitSelfOccupant blocks until the occupant map has absorbed the
// reflected self-presence, so callers never observe a stale occupant count
// after a successful handshake.
func (r *Room) awaitSelfOccupant(reflected *xmpp.Presence) error {
	if reflected == nil {
		return stream.ErrNoReply
	}
	key := reflected.FromJID().String()
	deadline := time.Now().Add(r.stm.ReplyTimeout())

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.occupants[key] == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return stream.ErrNoReply
		}
		t := time.AfterFunc(remaining, r.cond.Broadcast)
		r.cond.Wait()
		t.Stop()
	}
	r.state = Joined
	return nil
}

// acknowledgeCreation accepts the service default configuration for a just
// created room, turning it into an instant room.
func (r *Room) acknowledgeCreation() error {
	iq := xmpp.NewIQType(uuid.New().String(), xmpp.SetType)
	iq.SetFromJID(r.stm.JID())
	iq.SetToJID(r.roomJID)

	form := xmpp.NewElementNamespace("x", dataFormsNamespace)
	form.SetAttribute("type", "submit")
	query := xmpp.NewElementNamespace("query", mucNamespaceOwner)
	query.AppendElement(form)
	iq.AppendElement(query)

	reply, err := r.stm.SendAndCollect(iq, correlatedReply(iq.ID()))
	if err != nil {
		return err
	}
	if reply.Type() == xmpp.ErrorType {
		return xmpp.NewStanzaErrorFromStanza(reply)
	}
	return nil
}

func (r *Room) registerListeners() {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	if r.listening {
		return
	}
	r.listening = true
	r.stm.RegisterListener(r.presenceListener)
	r.stm.RegisterListener(r.messageListener)
}

func (r *Room) unregisterListeners() {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	if !r.listening {
		return
	}
	r.listening = false
	r.stm.UnregisterListener(r.presenceListener)
	r.stm.UnregisterListener(r.messageListener)
}

// teardown clears every trace of the room session: occupant map, self
// address, subject and attached listeners.
func (r *Room) teardown() {
	r.unregisterListeners()

	r.mu.Lock()
	r.occupants = make(map[string]*Occupant)
	r.selfJID = nil
	r.subject = ""
	r.state = NotJoined
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *Room) handleDisconnect() {
	r.teardown()
}

func (r *Room) fireEventLocked(ev *Event) {
	for _, sub := range r.handlers {
		sub.handler(ev)
	}
}

func (r *Room) isRoomPresence(stanza xmpp.Stanza) bool {
	if stanza.Name() != xmpp.PresenceName {
		return false
	}
	from := stanza.FromJID()
	return from != nil && from.ToBareJID().String() == r.roomJID.String()
}

func (r *Room) isRoomMessage(stanza xmpp.Stanza) bool {
	if stanza.Name() != xmpp.MessageName {
		return false
	}
	from := stanza.FromJID()
	return from != nil && from.ToBareJID().String() == r.roomJID.String()
}

// enterReplyFilter matches the join outcome: the reflected self-presence
// coming from the room, or an error presence correlated by stanza id from
// the exact address the join was sent to.
func (r *Room) enterReplyFilter(id string, to *jid.JID) stream.Filter {
	return func(stanza xmpp.Stanza) bool {
		if stanza.Name() != xmpp.PresenceName {
			return false
		}
		from := stanza.FromJID()
		if from == nil {
			return false
		}
		if stanza.Type() == xmpp.ErrorType {
			return stanza.ID() == id && from.String() == to.String()
		}
		return from.ToBareJID().String() == r.roomJID.String() && isSelfPresence(stanza)
	}
}

// selfReflectionFilter matches an available self-presence reflected from
// the given room address, or a correlated error presence.
func (r *Room) selfReflectionFilter(id string, to *jid.JID) stream.Filter {
	return func(stanza xmpp.Stanza) bool {
		if stanza.Name() != xmpp.PresenceName {
			return false
		}
		from := stanza.FromJID()
		if from == nil {
			return false
		}
		if stanza.Type() == xmpp.ErrorType {
			return stanza.ID() == id && from.String() == to.String()
		}
		return len(stanza.Type()) == 0 && from.String() == to.String() && isSelfPresence(stanza)
	}
}

// exitReplyFilter matches the reflected unavailable self-presence, or a
// correlated error presence.
func (r *Room) exitReplyFilter(id string, self *jid.JID) stream.Filter {
	return func(stanza xmpp.Stanza) bool {
		if stanza.Name() != xmpp.PresenceName {
			return false
		}
		from := stanza.FromJID()
		if from == nil {
			return false
		}
		switch stanza.Type() {
		case xmpp.ErrorType:
			return stanza.ID() == id && from.String() == self.String()
		case xmpp.UnavailableType:
			return from.ToBareJID().String() == r.roomJID.String() && isSelfPresence(stanza)
		default:
			return false
		}
	}
}

// subjectReplyFilter matches the reflected subject broadcast, or a
// correlated error message.
func (r *Room) subjectReplyFilter(id, subject string) stream.Filter {
	return func(stanza xmpp.Stanza) bool {
		if stanza.Name() != xmpp.MessageName {
			return false
		}
		from := stanza.FromJID()
		if from == nil || from.ToBareJID().String() != r.roomJID.String() {
			return false
		}
		if stanza.Type() == xmpp.ErrorType {
			return stanza.ID() == id
		}
		if stanza.Type() != xmpp.GroupChatType {
			return false
		}
		subjectEl := stanza.Elements().Child("subject")
		return subjectEl != nil && subjectEl.Text() == subject && stanza.Elements().Child("body") == nil
	}
}

func correlatedReply(id string) stream.Filter {
	return func(stanza xmpp.Stanza) bool {
		if stanza.Name() != xmpp.IQName || stanza.ID() != id {
			return false
		}
		switch stanza.Type() {
		case xmpp.ResultType, xmpp.ErrorType:
			return true
		default:
			return false
		}
	}
}

func presenceFromStanza(stanza xmpp.Stanza) *xmpp.Presence {
	if p, ok := stanza.(*xmpp.Presence); ok {
		return p
	}
	p, err := xmpp.NewPresenceFromElement(stanza, stanza.FromJID(), stanza.ToJID())
	if err != nil {
		return nil
	}
	return p
}
