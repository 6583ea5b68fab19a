/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"sync"
	"testing"
	"time"

	"github.com/jackal-xmpp/squire/stream"
	"github.com/jackal-xmpp/squire/stream/streamtest"
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

type testProvider struct {
	mucDomains map[string]bool
}

func (p *testProvider) IsMucService(domain string) bool {
	return p.mucDomains[domain]
}

func newTestProvider() *testProvider {
	return &testProvider{mucDomains: map[string]bool{"conference.jackal.im": true}}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *eventRecorder) handle(ev *Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *eventRecorder) at(i int) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[i]
}

func mustParseJID(t *testing.T, s string) *jid.JID {
	j, err := jid.NewWithString(s, true)
	require.Nil(t, err)
	return j
}

func testRoomJID(t *testing.T) *jid.JID {
	return mustParseJID(t, "garden@conference.jackal.im")
}

// occupantPresence builds an available room presence carrying a muc#user
// item and the given status codes.
func occupantPresence(t *testing.T, from, role, affiliation string, codes ...string) *xmpp.Presence {
	fromJID := mustParseJID(t, from)
	p := xmpp.NewPresence(fromJID, mustParseJID(t, "ortuman@jackal.im"), xmpp.AvailableType)

	item := xmpp.NewElementName("item")
	item.SetAttribute("role", role)
	item.SetAttribute("affiliation", affiliation)
	x := xmpp.NewElementNamespace("x", mucNamespaceUser)
	x.AppendElement(item)
	for _, code := range codes {
		x.AppendElement(newStatusElement(code))
	}
	p.AppendElement(x)
	return p
}

// departurePresence builds an unavailable room presence with status codes.
func departurePresence(t *testing.T, from string, nick string, codes ...string) *xmpp.Presence {
	fromJID := mustParseJID(t, from)
	p := xmpp.NewPresence(fromJID, mustParseJID(t, "ortuman@jackal.im"), xmpp.UnavailableType)

	item := xmpp.NewElementName("item")
	if len(nick) > 0 {
		item.SetAttribute("nick", nick)
	}
	x := xmpp.NewElementNamespace("x", mucNamespaceUser)
	x.AppendElement(item)
	for _, code := range codes {
		x.AppendElement(newStatusElement(code))
	}
	p.AppendElement(x)
	return p
}

// joinRoom drives a successful enter handshake reflecting nickname back.
func joinRoom(t *testing.T, stm *streamtest.Stream, r *Room, nickname string) {
	stm.OnSend(func(elem xmpp.XElement) {
		if elem.Name() != xmpp.PresenceName {
			return
		}
		reflected := occupantPresence(t, "garden@conference.jackal.im/"+nickname,
			RoleParticipant, AffiliationMember, statusSelfPresence)
		stm.Inject(stream.Async, reflected)
	})
	require.Nil(t, r.Enter(&Config{Nickname: nickname}))
	stm.OnSend(nil)
}

func TestRoomEnter(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	joinRoom(t, stm, r, "ortuman")

	require.True(t, r.IsJoined())
	require.Equal(t, Joined, r.State())
	require.Equal(t, 1, r.OccupantCount())

	self := r.SelfOccupant()
	require.NotNil(t, self)
	require.Equal(t, "ortuman", self.Nickname())
	require.Equal(t, RoleParticipant, self.Role())
	require.Equal(t, AffiliationMember, self.Affiliation())
	require.Equal(t, 2, stm.ListenerCount())

	// the join presence carries the muc x element
	join := stm.Sent()[0]
	require.Equal(t, "garden@conference.jackal.im/ortuman", join.To())
	require.NotNil(t, join.Elements().ChildNamespace("x", mucNamespace))

	require.Equal(t, ErrAlreadyJoined, r.Enter(&Config{Nickname: "ortuman"}))
}

func TestRoomEnterNicknameRewritten(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	stm.OnSend(func(elem xmpp.XElement) {
		if elem.Name() != xmpp.PresenceName {
			return
		}
		reflected := occupantPresence(t, "garden@conference.jackal.im/ortuman.2",
			RoleParticipant, AffiliationNone, statusSelfPresence, statusNicknameRewritten)
		stm.Inject(stream.Async, reflected)
	})
	require.Nil(t, r.Enter(&Config{Nickname: "ortuman"}))

	require.Equal(t, "ortuman.2", r.SelfOccupant().Nickname())
}

func TestRoomEnterError(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	stm.OnSend(func(elem xmpp.XElement) {
		// bounce the join presence back with a forbidden error
		sent := xmpp.NewPresence(mustParseJID(t, "ortuman@jackal.im/balcony"),
			mustParseJID(t, "garden@conference.jackal.im/ortuman"), xmpp.AvailableType)
		sent.SetID(elem.ID())
		stm.Inject(stream.Async, sent.ForbiddenError())
	})
	err = r.Enter(&Config{Nickname: "ortuman"})

	se, ok := err.(*xmpp.StanzaError)
	require.True(t, ok)
	require.Equal(t, "forbidden", se.Condition())

	// a failed handshake leaves no trace behind
	require.False(t, r.IsJoined())
	require.Equal(t, 0, r.OccupantCount())
	require.Equal(t, 0, stm.ListenerCount())
}

func TestRoomEnterNotAMucService(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, mustParseJID(t, "garden@rooms.jackal.im"), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	require.Equal(t, ErrNotAMucService, r.Enter(&Config{Nickname: "ortuman"}))
	require.Equal(t, 0, stm.ListenerCount())
}

func TestRoomEnterTimeout(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	stm.SetReplyTimeout(time.Millisecond * 50)
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	require.Equal(t, stream.ErrNoReply, r.Enter(&Config{Nickname: "ortuman"}))
	require.False(t, r.IsJoined())
	require.Equal(t, 0, stm.ListenerCount())
}

func TestRoomCreate(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	stm.OnSend(func(elem xmpp.XElement) {
		switch elem.Name() {
		case xmpp.PresenceName:
			reflected := occupantPresence(t, "garden@conference.jackal.im/ortuman",
				RoleModerator, AffiliationOwner, statusSelfPresence, statusRoomCreated)
			stm.Inject(stream.Async, reflected)
		case xmpp.IQName:
			iq := elem.(*xmpp.IQ)
			require.NotNil(t, iq.Elements().ChildNamespace("query", mucNamespaceOwner))
			stm.Inject(stream.Sync, iq.ResultIQ())
		}
	})
	require.Nil(t, r.Create(&Config{Nickname: "ortuman"}))
	require.True(t, r.IsJoined())
	require.Equal(t, AffiliationOwner, r.SelfOccupant().Affiliation())
}

func TestRoomCreateNotAcknowledged(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	stm.OnSend(func(elem xmpp.XElement) {
		if elem.Name() != xmpp.PresenceName {
			return
		}
		// an existing room reflects the join without the created marker
		reflected := occupantPresence(t, "garden@conference.jackal.im/ortuman",
			RoleParticipant, AffiliationNone, statusSelfPresence)
		stm.Inject(stream.Async, reflected)
	})
	require.Equal(t, ErrCreationNotAcknowledged, r.Create(&Config{Nickname: "ortuman"}))
	require.False(t, r.IsJoined())
	require.Equal(t, 0, stm.ListenerCount())
}

func TestRoomLeave(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	joinRoom(t, stm, r, "ortuman")

	stm.OnSend(func(elem xmpp.XElement) {
		if elem.Name() != xmpp.PresenceName || elem.Type() != xmpp.UnavailableType {
			return
		}
		reflected := departurePresence(t, "garden@conference.jackal.im/ortuman", "",
			statusSelfPresence)
		stm.Inject(stream.Async, reflected)
	})
	require.Nil(t, r.Leave())
	require.False(t, r.IsJoined())
	require.Equal(t, 0, r.OccupantCount())
	require.Equal(t, 0, stm.ListenerCount())
}

func TestRoomLeaveTimeout(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	stm.SetReplyTimeout(time.Millisecond * 50)
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	joinRoom(t, stm, r, "ortuman")

	// the service already dropped the session: no reflection ever arrives,
	// yet local state is torn down regardless
	require.Equal(t, stream.ErrNoReply, r.Leave())
	require.False(t, r.IsJoined())
	require.Equal(t, 0, r.OccupantCount())
	require.Equal(t, 0, stm.ListenerCount())
}

func TestRoomChangeNickname(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	rec := &eventRecorder{}
	joinRoom(t, stm, r, "ortuman")
	r.Subscribe(rec.handle)

	stm.OnSend(func(elem xmpp.XElement) {
		if elem.Name() != xmpp.PresenceName {
			return
		}
		old := departurePresence(t, "garden@conference.jackal.im/ortuman", "miguel",
			statusNewNickname, statusSelfPresence)
		stm.Inject(stream.Async, old)

		reflected := occupantPresence(t, "garden@conference.jackal.im/miguel",
			RoleParticipant, AffiliationMember, statusSelfPresence)
		stm.Inject(stream.Async, reflected)
	})
	require.Nil(t, r.ChangeNickname("miguel"))

	require.True(t, r.IsJoined())
	require.Equal(t, "miguel", r.SelfOccupant().Nickname())

	require.Eventually(t, func() bool {
		for i := 0; i < rec.len(); i++ {
			ev := rec.at(i)
			if ev.Type == NicknameChanged && ev.Self && ev.NewNickname == "miguel" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond*10)
}

func TestRoomChangeSubject(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	rec := &eventRecorder{}
	joinRoom(t, stm, r, "ortuman")
	r.Subscribe(rec.handle)

	stm.OnSend(func(elem xmpp.XElement) {
		if elem.Name() != xmpp.MessageName {
			return
		}
		reflected := xmpp.NewMessageType(elem.ID(), xmpp.GroupChatType)
		reflected.SetFromJID(mustParseJID(t, "garden@conference.jackal.im/ortuman"))
		reflected.SetToJID(mustParseJID(t, "ortuman@jackal.im"))
		reflected.AppendElement(xmpp.NewElementName("subject").SetText("spring gardening"))
		stm.Inject(stream.Sync, reflected)
	})
	require.Nil(t, r.ChangeSubject("spring gardening"))

	require.Equal(t, "spring gardening", r.Subject())
	require.Equal(t, 1, rec.len())
	require.Equal(t, SubjectUpdated, rec.at(0).Type)
	require.Equal(t, "spring gardening", rec.at(0).Subject)
	require.Equal(t, "ortuman", rec.at(0).Nickname)
}

func TestRoomNotJoinedOperations(t *testing.T) {
	stm := streamtest.New("ortuman@jackal.im/balcony")
	r, err := New(stm, testRoomJID(t), newTestProvider())
	require.Nil(t, err)
	defer r.Dispose()

	require.Equal(t, ErrNotJoined, r.ChangeNickname("miguel"))
	require.Equal(t, ErrNotJoined, r.ChangeSubject("spring gardening"))
	require.Equal(t, ErrNotJoined, r.RequestVoice())
	require.Nil(t, r.Leave()) // leaving a never entered room is a no-op
}

func TestRoomConfig(t *testing.T) {
	cfg := Config{}
	err := yaml.Unmarshal([]byte(`
nickname: ortuman
password: secret
max_history_stanzas: 25
`), &cfg)
	require.Nil(t, err)
	require.Equal(t, "ortuman", cfg.Nickname)
	require.Equal(t, 25, cfg.MaxHistoryStanzas)

	cfg = Config{}
	require.NotNil(t, yaml.Unmarshal([]byte(`password: secret`), &cfg)) // missing nickname
}
