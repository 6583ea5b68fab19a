/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package registry ties engine instances to their stream: one roster engine
// per stream and one room engine per (stream, room) pair, created on demand
// and destroyed together with the stream they belong to.
package registry

import (
	"sync"

	"github.com/jackal-xmpp/squire/log"
	"github.com/jackal-xmpp/squire/muc"
	"github.com/jackal-xmpp/squire/roster"
	"github.com/jackal-xmpp/squire/storage"
	"github.com/jackal-xmpp/squire/stream"
	"github.com/jackal-xmpp/squire/xmpp/jid"
)

// Config represents an engine registry configuration.
type Config struct {
	// Roster carries the options applied to every roster engine. When
	// Storage is set the Store field is ignored and a dedicated store is
	// opened per stream account instead.
	Roster roster.Config

	// Storage, when present, describes the per-account roster store
	// backend.
	Storage *storage.Config

	// MucProvider resolves which domains host a multi-user chat service.
	MucProvider muc.ServiceInfoProvider
}

type streamEngines struct {
	roster     *roster.Roster
	store      roster.Store
	ownedStore bool
	rooms      map[string]*muc.Room
}

// Registry owns the engines attached to a set of streams. Engines are keyed
// by stream identity and live until the stream is explicitly disposed.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	streams map[stream.Stream]*streamEngines
}

// New returns an initialized engine registry.
func New(cfg *Config) *Registry {
	r := &Registry{streams: make(map[stream.Stream]*streamEngines)}
	if cfg != nil {
		r.cfg = *cfg
	}
	return r
}

// Roster returns the roster engine bound to stm, creating it on first use.
func (r *Registry) Roster(stm stream.Stream) (*roster.Roster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	eng := r.engines(stm)
	if eng.roster != nil {
		return eng.roster, nil
	}
	store := r.cfg.Roster.Store
	if r.cfg.Storage != nil {
		account := stm.JID().ToBareJID().String()
		s, err := storage.New(r.cfg.Storage, account)
		if err != nil {
			return nil, err
		}
		store = s
		eng.store = s
		eng.ownedStore = true
	}
	eng.roster = roster.New(&roster.Config{
		SubscriptionMode: r.cfg.Roster.SubscriptionMode,
		Store:            store,
		Features:         r.cfg.Roster.Features,
	}, stm)
	return eng.roster, nil
}

// Room returns the room engine bound to stm and roomJID, creating it on
// first use.
func (r *Registry) Room(stm stream.Stream, roomJID *jid.JID) (*muc.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	eng := r.engines(stm)
	key := roomJID.ToBareJID().String()
	if room := eng.rooms[key]; room != nil {
		return room, nil
	}
	room, err := muc.New(stm, roomJID.ToBareJID(), r.cfg.MucProvider)
	if err != nil {
		return nil, err
	}
	eng.rooms[key] = room
	return room, nil
}

// Rooms returns a snapshot of every room engine bound to stm.
func (r *Registry) Rooms(stm stream.Stream) []*muc.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	eng := r.streams[stm]
	if eng == nil {
		return nil
	}
	rooms := make([]*muc.Room, 0, len(eng.rooms))
	for _, room := range eng.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Dispose destroys every engine bound to stm and forgets the stream.
func (r *Registry) Dispose(stm stream.Stream) {
	r.mu.Lock()
	eng := r.streams[stm]
	delete(r.streams, stm)
	r.mu.Unlock()

	if eng == nil {
		return
	}
	disposeEngines(eng)
}

// DisposeAll destroys every engine the registry knows about.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	streams := r.streams
	r.streams = make(map[stream.Stream]*streamEngines)
	r.mu.Unlock()

	for _, eng := range streams {
		disposeEngines(eng)
	}
}

func (r *Registry) engines(stm stream.Stream) *streamEngines {
	eng := r.streams[stm]
	if eng == nil {
		eng = &streamEngines{rooms: make(map[string]*muc.Room)}
		r.streams[stm] = eng
	}
	return eng
}

func disposeEngines(eng *streamEngines) {
	for _, room := range eng.rooms {
		room.Dispose()
	}
	if eng.roster != nil {
		eng.roster.Dispose()
	}
	if eng.ownedStore && eng.store != nil {
		if err := eng.store.Close(); err != nil {
			log.Warnf("registry: closing roster store: %v", err)
		}
	}
}
