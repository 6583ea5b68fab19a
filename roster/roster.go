/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package roster implements the client side of the XMPP roster: a locally
// cached contact/group/presence graph kept consistent with server-pushed
// deltas and versioned snapshots.
package roster

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackal-xmpp/squire/log"
	"github.com/jackal-xmpp/squire/runqueue"
	"github.com/jackal-xmpp/squire/stream"
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
	"github.com/pborman/uuid"
)

const rosterNamespace = "jabber:iq:roster"

// State represents the roster synchronization state.
type State int

const (
	// Uninitialized is the state before the first reload and after a
	// failed one.
	Uninitialized State = iota

	// Loading is the state while a reload reply is pending.
	Loading

	// StateLoaded is the state after a reload settled successfully.
	StateLoaded
)

// SubscriptionMode determines how inbound presence subscription requests
// are answered.
type SubscriptionMode int

const (
	// AcceptAll automatically approves every subscription request.
	AcceptAll SubscriptionMode = iota

	// RejectAll automatically denies every subscription request.
	RejectAll

	// Manual consults the registered subscribe handlers; unanswered
	// requests are left pending.
	Manual
)

// FeatureProvider reports server capabilities the engine depends upon.
type FeatureProvider interface {
	// RosterVersioningSupported returns whether or not the server
	// advertises roster versioning (RFC 6121 §2.6).
	RosterVersioningSupported() bool

	// PreApprovalSupported returns whether or not the server advertises
	// subscription pre-approval (RFC 6121 §3.4).
	PreApprovalSupported() bool
}

// Config represents a roster engine configuration.
type Config struct {
	SubscriptionMode SubscriptionMode
	Store            Store
	Features         FeatureProvider
}

type configProxyType struct {
	SubscriptionMode string `yaml:"subscription_mode"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	cp := configProxyType{}
	if err := unmarshal(&cp); err != nil {
		return err
	}
	switch strings.ToLower(cp.SubscriptionMode) {
	case "", "accept_all": // default mode
		c.SubscriptionMode = AcceptAll
	case "reject_all":
		c.SubscriptionMode = RejectAll
	case "manual":
		c.SubscriptionMode = Manual
	default:
		return fmt.Errorf("roster.Config: unrecognized subscription mode: %s", cp.SubscriptionMode)
	}
	return nil
}

// Subscription represents a registered event handler.
type Subscription struct {
	handler EventHandler
}

// Roster represents the roster synchronization engine bound to a stream.
type Roster struct {
	stm      stream.Stream
	store    Store
	features FeatureProvider
	mode     SubscriptionMode

	mu      sync.RWMutex
	cond    *sync.Cond
	state   State
	entries map[string]*Item
	groups  map[string]map[string]struct{}

	handlers          []*Subscription
	subscribeHandlers []*SubscribeRegistration

	cache *presenceCache
	gate  *runqueue.Keyed

	pushListener     *stream.Listener
	presenceListener *stream.Listener
}

// SubscribeRegistration represents a registered subscribe handler.
type SubscribeRegistration struct {
	handler SubscribeHandler
}

// New returns an initialized roster engine attached to stm.
func New(cfg *Config, stm stream.Stream) *Roster {
	if cfg == nil {
		cfg = &Config{}
	}
	r := &Roster{
		stm:      stm,
		store:    cfg.Store,
		features: cfg.Features,
		mode:     cfg.SubscriptionMode,
		entries:  make(map[string]*Item),
		groups:   make(map[string]map[string]struct{}),
		cache:    newPresenceCache(),
		gate:     runqueue.NewKeyed("roster/presence"),
	}
	r.cond = sync.NewCond(&r.mu)

	r.pushListener = &stream.Listener{
		Class:  stream.Sync,
		Filter: isRosterPush,
		Handle: r.processPush,
	}
	r.presenceListener = &stream.Listener{
		Class:  stream.Async,
		Filter: isPresence,
		Handle: r.processPresence,
	}
	stm.RegisterListener(r.pushListener)
	stm.RegisterListener(r.presenceListener)
	stm.OnClosed(r.handleDisconnect)
	return r
}

// Dispose detaches the engine from its stream and stops the presence gate.
func (r *Roster) Dispose() {
	r.stm.UnregisterListener(r.pushListener)
	r.stm.UnregisterListener(r.presenceListener)
	r.gate.Stop(func() {})

	r.mu.Lock()
	r.state = Uninitialized
	r.cond.Broadcast()
	r.mu.Unlock()
}

// State returns current synchronization state.
func (r *Roster) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsLoaded returns true once a reload has settled successfully.
func (r *Roster) IsLoaded() bool {
	return r.State() == StateLoaded
}

// Reload asynchronously fetches the roster from the server, carrying the
// cached version token when a store is attached and the server supports
// versioning. Reload failures are notified through LoadingFailed events,
// never returned here.
func (r *Roster) Reload() error {
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	if !r.stm.IsAuthenticated() {
		return stream.ErrNotAuthenticated
	}
	versioned := r.store != nil && r.features != nil && r.features.RosterVersioningSupported()

	iq := r.newQueryIQ(versioned)
	r.mu.Lock()
	r.state = Loading
	r.mu.Unlock()

	go r.sendReloadRequest(iq, versioned)
	return nil
}

// ReloadAndWait performs a Reload and blocks until the roster settles or
// the stream reply timeout elapses. The returned boolean tells whether the
// roster ended up loaded; a timed out wait is not an error.
func (r *Roster) ReloadAndWait() (bool, error) {
	if err := r.Reload(); err != nil {
		return false, err
	}
	deadline := time.Now().Add(r.stm.ReplyTimeout())

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.state == Loading {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		t := time.AfterFunc(remaining, r.cond.Broadcast)
		r.cond.Wait()
		t.Stop()
	}
	return r.state == StateLoaded, nil
}

// Subscribe registers an event handler.
func (r *Roster) Subscribe(handler EventHandler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := &Subscription{handler: handler}
	r.handlers = append(r.handlers, sub)
	return sub
}

// EntriesAndSubscribe registers an event handler and returns the current
// entry snapshot atomically: no change event can be lost or duplicated
// between the snapshot and the handler installation.
func (r *Roster) EntriesAndSubscribe(handler EventHandler) ([]Item, *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := &Subscription{handler: handler}
	r.handlers = append(r.handlers, sub)
	return r.entriesSnapshot(), sub
}

// Unsubscribe removes a previously registered event handler.
func (r *Roster) Unsubscribe(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.handlers {
		if s == sub {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return
		}
	}
}

// RegisterSubscribeHandler registers a subscription request handler
// consulted in manual mode.
func (r *Roster) RegisterSubscribeHandler(handler SubscribeHandler) *SubscribeRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()
	rh := &SubscribeRegistration{handler: handler}
	r.subscribeHandlers = append(r.subscribeHandlers, rh)
	return rh
}

// UnregisterSubscribeHandler removes a previously registered subscribe
// handler.
func (r *Roster) UnregisterSubscribeHandler(reg *SubscribeRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rh := range r.subscribeHandlers {
		if rh == reg {
			r.subscribeHandlers = append(r.subscribeHandlers[:i], r.subscribeHandlers[i+1:]...)
			return
		}
	}
}

// Entry returns a copy of the entry associated to j, or nil if the entry
// is not in the roster.
func (r *Roster) Entry(j *jid.JID) *Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry := r.entries[j.ToBareJID().String()]; entry != nil {
		return entry.clone()
	}
	return nil
}

// Entries returns a copy of all roster entries.
func (r *Roster) Entries() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entriesSnapshot()
}

// Contains returns true if j has a roster entry.
func (r *Roster) Contains(j *jid.JID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[j.ToBareJID().String()]
	return ok
}

// Groups returns the names of all non-empty roster groups.
func (r *Roster) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	return names
}

// Group returns copies of the entries filed under the named group.
func (r *Roster) Group(name string) []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ret []Item
	for bareJID := range r.groups[name] {
		ret = append(ret, *r.entries[bareJID].clone())
	}
	return ret
}

// UnfiledEntries returns copies of the entries not filed under any group.
func (r *Roster) UnfiledEntries() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ret []Item
	for _, entry := range r.entries {
		if len(entry.Groups) == 0 {
			ret = append(ret, *entry.clone())
		}
	}
	return ret
}

// IsSubscribedToMyPresence returns true if j is allowed to see the local
// account's presence.
func (r *Roster) IsSubscribedToMyPresence(j *jid.JID) bool {
	if j.ToBareJID().String() == r.stm.JID().ToBareJID().String() {
		return true
	}
	entry := r.Entry(j)
	return entry != nil && entry.IsSubscribedToMe()
}

// CreateItem requests the creation or update of a roster entry and blocks
// until the server acknowledges it. Local state is only mutated by the
// authoritative push that follows.
func (r *Roster) CreateItem(j *jid.JID, name string, groups []string) error {
	return r.sendItemIQ(&Item{
		JID:    j.ToBareJID().String(),
		Name:   name,
		Groups: groups,
	})
}

// CreateItemAndRequest creates a roster entry and requests a presence
// subscription to it.
func (r *Roster) CreateItemAndRequest(j *jid.JID, name string, groups []string) error {
	if err := r.CreateItem(j, name, groups); err != nil {
		return err
	}
	return r.stm.SendElement(xmpp.NewPresence(r.stm.JID(), j.ToBareJID(), xmpp.SubscribeType))
}

// PreApprove pre-approves a presence subscription request from j. Fails
// with stream.ErrFeatureNotSupported when the server lacks pre-approval.
func (r *Roster) PreApprove(j *jid.JID) error {
	if r.features == nil || !r.features.PreApprovalSupported() {
		return stream.ErrFeatureNotSupported
	}
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	return r.stm.SendElement(xmpp.NewPresence(r.stm.JID(), j.ToBareJID(), xmpp.SubscribedType))
}

// RemoveItem requests the removal of a roster entry and blocks until the
// server acknowledges it.
func (r *Roster) RemoveItem(j *jid.JID) error {
	return r.sendItemIQ(&Item{
		JID:          j.ToBareJID().String(),
		Subscription: SubscriptionRemove,
	})
}

// BestPresence returns the best presence among all known resources of j:
// highest priority first, mode rank chat > available > away > xa > dnd on
// ties, the last unavailable record when no resource is available, or a
// synthesized unavailable presence if nothing is cached.
func (r *Roster) BestPresence(j *jid.JID) *xmpp.Presence {
	presences := r.cache.presences(j.ToBareJID().String())

	var best *xmpp.Presence
	var lastUnavailable *xmpp.Presence
	for _, p := range presences {
		if !p.IsAvailable() {
			if p.IsUnavailable() {
				lastUnavailable = p
			}
			continue
		}
		if best == nil || presenceRank(p) > presenceRank(best) {
			best = p
		}
	}
	if best != nil {
		return best
	}
	if lastUnavailable != nil {
		return lastUnavailable
	}
	return xmpp.NewPresence(j.ToBareJID(), r.stm.JID().ToBareJID(), xmpp.UnavailableType)
}

// ResourcePresence returns the cached presence for an exact full JID, or
// nil if none is known.
func (r *Roster) ResourcePresence(j *jid.JID) *xmpp.Presence {
	return r.cache.resourcePresence(j.ToBareJID().String(), j.Resource())
}

// AllPresences returns all cached presences for j.
func (r *Roster) AllPresences(j *jid.JID) []*xmpp.Presence {
	return r.cache.presences(j.ToBareJID().String())
}

// AvailablePresences returns all cached available presences for j.
func (r *Roster) AvailablePresences(j *jid.JID) []*xmpp.Presence {
	var ret []*xmpp.Presence
	for _, p := range r.cache.presences(j.ToBareJID().String()) {
		if p.IsAvailable() {
			ret = append(ret, p)
		}
	}
	return ret
}

func (r *Roster) newQueryIQ(versioned bool) *xmpp.IQ {
	iq := xmpp.NewIQType(uuid.New(), xmpp.GetType)
	iq.SetFromJID(r.stm.JID())
	iq.SetToJID(r.stm.JID().ToBareJID())

	query := xmpp.NewElementNamespace("query", rosterNamespace)
	if versioned {
		query.SetAttribute("ver", r.store.Version())
	}
	iq.AppendElement(query)
	return iq
}

func (r *Roster) sendReloadRequest(iq *xmpp.IQ, versioned bool) {
	reply, err := r.stm.SendAndCollect(iq, correlatedReply(iq.ID()))
	if err != nil {
		r.loadingFailed(err)
		return
	}
	if reply.IsError() {
		r.loadingFailed(xmpp.NewStanzaErrorFromStanza(reply))
		return
	}
	r.handleReloadResult(reply, versioned)
}

func (r *Roster) handleReloadResult(reply xmpp.Stanza, versioned bool) {
	query := reply.Elements().ChildNamespace("query", rosterNamespace)

	var items []*Item
	switch {
	case query != nil:
		for _, itemEl := range query.Elements().Children("item") {
			ri, err := NewItemFromElement(itemEl)
			if err != nil {
				log.Warnf("roster: ignoring invalid reload item: %v", err)
				continue
			}
			items = append(items, ri)
		}
		r.mergeItems(items, true)
		if r.store != nil {
			snapshot := make([]Item, 0, len(items))
			for _, ri := range items {
				snapshot = append(snapshot, *ri)
			}
			if err := r.store.ResetEntries(snapshot, query.Attributes().Get("ver")); err != nil {
				log.Warnf("roster: failed to persist reload result: %v", err)
			}
		}

	case versioned:
		// empty versioned result: the server considers the stored
		// roster up to date, so replay it
		stored := r.store.Entries()
		if stored == nil {
			// corrupted store content: wipe it and fall back to a
			// full, unversioned reload
			if err := r.store.ResetStore(); err != nil {
				r.loadingFailed(err)
				return
			}
			go r.sendReloadRequest(r.newQueryIQ(false), false)
			return
		}
		for i := range stored {
			items = append(items, &stored[i])
		}
		r.mergeItems(items, true)

	default:
		r.mergeItems(nil, true)
	}
	r.setLoaded()
}

func (r *Roster) loadingFailed(err error) {
	log.Warnf("roster: reload failed: %v", err)

	r.mu.Lock()
	r.state = Uninitialized
	r.cond.Broadcast()
	handlers := r.handlersSnapshot()
	r.mu.Unlock()

	fireEvent(handlers, &Event{Type: LoadingFailed, Err: err})
}

func (r *Roster) setLoaded() {
	r.mu.Lock()
	r.state = StateLoaded
	r.cond.Broadcast()
	handlers := r.handlersSnapshot()
	r.mu.Unlock()

	fireEvent(handlers, &Event{Type: Loaded})
}

// mergeItems reconciles incoming items against the cached entries. For a
// full snapshot any known entry absent from items is deleted. Entry batch
// events fire while the engine lock is held, so handler installation stays
// atomic with respect to change delivery.
func (r *Roster) mergeItems(items []*Item, fullSnapshot bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added, updated, deleted []*jid.JID

	seen := make(map[string]struct{}, len(items))
	for _, ri := range items {
		if ri.Subscription == SubscriptionRemove {
			continue
		}
		seen[ri.JID] = struct{}{}

		existing := r.entries[ri.JID]
		switch {
		case existing == nil:
			entry := ri.clone()
			r.entries[ri.JID] = entry
			r.reindexGroups(nil, entry)
			r.cache.setRosterMembership(ri.JID, true)
			added = append(added, entryJID(ri.JID))

		case existing.Equals(ri):
			break // unchanged

		default:
			entry := ri.clone()
			r.entries[ri.JID] = entry
			r.reindexGroups(existing, entry)
			updated = append(updated, entryJID(ri.JID))
		}
	}
	if fullSnapshot {
		for bareJID, entry := range r.entries {
			if _, ok := seen[bareJID]; ok {
				continue
			}
			delete(r.entries, bareJID)
			r.reindexGroups(entry, nil)
			r.cache.setRosterMembership(bareJID, false)
			deleted = append(deleted, entryJID(bareJID))
		}
	}
	r.fireEntryBatches(added, updated, deleted)
}

func (r *Roster) deleteEntry(bareJID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entries[bareJID]
	if entry == nil {
		return
	}
	delete(r.entries, bareJID)
	r.reindexGroups(entry, nil)
	r.cache.setRosterMembership(bareJID, false)
	r.fireEntryBatches(nil, nil, []*jid.JID{entryJID(bareJID)})
}

// must be called with engine lock held
func (r *Roster) reindexGroups(prev, next *Item) {
	var nextGroups map[string]struct{}
	if next != nil {
		nextGroups = make(map[string]struct{}, len(next.Groups))
		for _, name := range next.Groups {
			nextGroups[name] = struct{}{}
		}
	}
	if prev != nil {
		for _, name := range prev.Groups {
			if _, ok := nextGroups[name]; ok {
				continue
			}
			if members := r.groups[name]; members != nil {
				delete(members, prev.JID)
				if len(members) == 0 {
					delete(r.groups, name)
				}
			}
		}
	}
	if next == nil {
		return
	}
	for name := range nextGroups {
		members := r.groups[name]
		if members == nil {
			members = make(map[string]struct{})
			r.groups[name] = members
		}
		members[next.JID] = struct{}{}
	}
}

// must be called with engine lock held
func (r *Roster) fireEntryBatches(added, updated, deleted []*jid.JID) {
	if len(added) > 0 {
		r.fireEventLocked(&Event{Type: EntriesAdded, JIDs: added})
	}
	if len(updated) > 0 {
		r.fireEventLocked(&Event{Type: EntriesUpdated, JIDs: updated})
	}
	if len(deleted) > 0 {
		r.fireEventLocked(&Event{Type: EntriesDeleted, JIDs: deleted})
	}
}

func (r *Roster) fireEventLocked(ev *Event) {
	for _, sub := range r.handlers {
		sub.handler(ev)
	}
}

func (r *Roster) processPush(stanza xmpp.Stanza) {
	iq := stanza.(*xmpp.IQ)
	query := iq.Elements().ChildNamespace("query", rosterNamespace)
	items := query.Elements().Children("item")
	if len(items) != 1 {
		_ = r.stm.SendElement(iq.BadRequestError())
		return
	}
	ourBareJID := r.stm.JID().ToBareJID()
	if from := iq.FromJID(); from != nil && len(from.Domain()) > 0 {
		if from.ToBareJID().String() != ourBareJID.String() {
			log.Warnf("roster: rejecting push from %s", from)
			_ = r.stm.SendElement(iq.ServiceUnavailableError())
			return
		}
		if from.IsFullWithUser() {
			log.Warnf("roster: accepting push from full JID %s", from)
		}
	}
	ri, err := NewItemFromElement(items[0])
	if err != nil {
		// items carrying unknown markers are ignored entirely
		log.Warnf("roster: ignoring invalid push item: %v", err)
		_ = r.stm.SendElement(iq.ResultIQ())
		return
	}
	ver := query.Attributes().Get("ver")
	if ri.Subscription == SubscriptionRemove {
		r.deleteEntry(ri.JID)
		if r.store != nil {
			if err := r.store.RemoveEntry(ri.JID, ver); err != nil {
				log.Warnf("roster: failed to remove stored entry: %v", err)
			}
		}
	} else {
		r.mergeItems([]*Item{ri}, false)
		if r.store != nil {
			if err := r.store.UpsertEntry(ri, ver); err != nil {
				log.Warnf("roster: failed to persist pushed entry: %v", err)
			}
		}
	}
	_ = r.stm.SendElement(iq.ResultIQ())
}

func (r *Roster) processPresence(stanza xmpp.Stanza) {
	presence := stanza.(*xmpp.Presence)

	key := r.stm.JID().ToBareJID().String()
	if from := presence.FromJID(); from != nil && len(from.Domain()) > 0 {
		key = from.ToBareJID().String()
	}
	r.gate.Run(key, func() {
		r.applyPresence(key, presence)
	})
}

// applyPresence runs on the per-sender serialized path. Presence racing
// ahead of a pending reload defers until the roster settles.
func (r *Roster) applyPresence(bareJID string, presence *xmpp.Presence) {
	r.waitWhileLoading()

	var resource string
	if from := presence.FromJID(); from != nil {
		resource = from.Resource()
	}
	switch {
	case presence.IsAvailable():
		r.cache.storeAvailable(bareJID, resource, presence)

	case presence.IsUnavailable():
		if len(resource) == 0 {
			resource = offlineResourceMarker
		}
		r.cache.storeUnavailable(bareJID, resource, presence)

	case presence.IsError():
		if len(resource) > 0 {
			return // error presence is only meaningful from a bare sender
		}
		r.cache.storeError(bareJID, presence)

	case presence.IsSubscribe():
		r.processSubscribeRequest(presence)
		return

	default:
		return
	}

	r.mu.RLock()
	_, inRoster := r.entries[bareJID]
	handlers := r.handlersSnapshot()
	r.mu.RUnlock()

	if bareJID == r.stm.JID().ToBareJID().String() {
		fireEvent(handlers, &Event{Type: OwnPresenceChanged, Presence: presence})
	} else if inRoster {
		fireEvent(handlers, &Event{Type: PresenceChanged, Presence: presence})
	}
}

func (r *Roster) processSubscribeRequest(presence *xmpp.Presence) {
	from := presence.FromJID()
	if from == nil || len(from.Domain()) == 0 {
		return
	}
	r.mu.RLock()
	handlers := r.handlersSnapshot()
	subscribeHandlers := make([]*SubscribeRegistration, len(r.subscribeHandlers))
	copy(subscribeHandlers, r.subscribeHandlers)
	r.mu.RUnlock()

	fireEvent(handlers, &Event{Type: SubscribeRequest, Presence: presence})

	answer := NoAnswer
	switch r.mode {
	case AcceptAll:
		answer = Approve
	case RejectAll:
		answer = Deny
	case Manual:
		for _, rh := range subscribeHandlers {
			if a := rh.handler(from); a != NoAnswer {
				answer = a
				break
			}
		}
	}
	switch answer {
	case Approve:
		_ = r.stm.SendElement(xmpp.NewPresence(r.stm.JID(), from.ToBareJID(), xmpp.SubscribedType))
	case Deny:
		_ = r.stm.SendElement(xmpp.NewPresence(r.stm.JID(), from.ToBareJID(), xmpp.UnsubscribedType))
	default:
		break // manual mode with no answer: leave request pending
	}
}

// handleDisconnect marks every cached resource offline by feeding a
// synthesized unavailable presence through the regular ingestion path, then
// resets the synchronization state.
func (r *Roster) handleDisconnect() {
	ourBareJID := r.stm.JID().ToBareJID()

	for bareJID, resources := range r.cache.snapshot() {
		for _, resource := range resources {
			from, err := offlineJID(bareJID, resource)
			if err != nil {
				continue
			}
			presence := xmpp.NewPresence(from, ourBareJID, xmpp.UnavailableType)

			key := bareJID
			r.gate.Run(key, func() {
				r.applyPresence(key, presence)
			})
		}
	}
	r.mu.Lock()
	r.state = Uninitialized
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *Roster) sendItemIQ(ri *Item) error {
	if !r.stm.IsConnected() {
		return stream.ErrNotConnected
	}
	if !r.stm.IsAuthenticated() {
		return stream.ErrNotAuthenticated
	}
	iq := xmpp.NewIQType(uuid.New(), xmpp.SetType)
	iq.SetFromJID(r.stm.JID())
	iq.SetToJID(r.stm.JID().ToBareJID())

	query := xmpp.NewElementNamespace("query", rosterNamespace)
	query.AppendElement(ri.Element())
	iq.AppendElement(query)

	reply, err := r.stm.SendAndCollect(iq, correlatedReply(iq.ID()))
	if err != nil {
		return err
	}
	if reply.IsError() {
		return xmpp.NewStanzaErrorFromStanza(reply)
	}
	return nil
}

func (r *Roster) waitWhileLoading() {
	deadline := time.Now().Add(r.stm.ReplyTimeout())

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.state == Loading {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		t := time.AfterFunc(remaining, r.cond.Broadcast)
		r.cond.Wait()
		t.Stop()
	}
}

// must be called with engine lock held
func (r *Roster) entriesSnapshot() []Item {
	ret := make([]Item, 0, len(r.entries))
	for _, entry := range r.entries {
		ret = append(ret, *entry.clone())
	}
	return ret
}

// must be called with engine lock held
func (r *Roster) handlersSnapshot() []*Subscription {
	handlers := make([]*Subscription, len(r.handlers))
	copy(handlers, r.handlers)
	return handlers
}

func fireEvent(handlers []*Subscription, ev *Event) {
	for _, sub := range handlers {
		sub.handler(ev)
	}
}

func presenceRank(p *xmpp.Presence) int {
	rank := int(p.Priority()) * 8
	switch p.ShowState() {
	case xmpp.ChatShowState:
		rank += 4
	case xmpp.AvailableShowState:
		rank += 3
	case xmpp.AwayShowState:
		rank += 2
	case xmpp.ExtendedAwaysShowState:
		rank += 1
	case xmpp.DoNotDisturbShowState:
		rank += 0
	}
	return rank
}

func entryJID(bareJID string) *jid.JID {
	j, _ := jid.NewWithString(bareJID, true)
	return j
}

func offlineJID(bareJID, resource string) (*jid.JID, error) {
	if len(resource) == 0 {
		return jid.NewWithString(bareJID, true)
	}
	return jid.NewWithString(bareJID+"/"+resource, true)
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

func isRosterPush(stanza xmpp.Stanza) bool {
	iq, ok := stanza.(*xmpp.IQ)
	if !ok {
		return false
	}
	return iq.IsSet() && iq.Elements().ChildNamespace("query", rosterNamespace) != nil
}

func isPresence(stanza xmpp.Stanza) bool {
	_, ok := stanza.(*xmpp.Presence)
	return ok
}
