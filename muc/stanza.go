/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"strconv"

	"github.com/jackal-xmpp/squire/xmpp"
)

const (
	mucNamespace      = "http://jabber.org/protocol/muc"
	mucNamespaceUser  = mucNamespace + "#user"
	mucNamespaceAdmin = mucNamespace + "#admin"
	mucNamespaceOwner = mucNamespace + "#owner"

	dataFormsNamespace    = "jabber:x:data"
	voiceRequestNamespace = mucNamespace + "#request"
)

const (
	statusNonAnonymous       = "100"
	statusSelfPresence       = "110"
	statusRoomCreated        = "201"
	statusNicknameRewritten  = "210"
	statusBanned             = "301"
	statusNewNickname        = "303"
	statusKicked             = "307"
	statusAffiliationDropped = "321"
	statusServiceShutdown    = "332"
)

func newStatusElement(code string) *xmpp.Element {
	s := xmpp.NewElementName("status")
	s.SetAttribute("code", code)
	return s
}

// newJoinElement builds the x element announcing MUC support on a join
// presence, carrying password and history limits when configured.
// A negative MaxHistoryStanzas requests no history at all.
func newJoinElement(cfg *Config) *xmpp.Element {
	x := xmpp.NewElementNamespace("x", mucNamespace)
	if len(cfg.Password) > 0 {
		x.AppendElement(xmpp.NewElementName("password").SetText(cfg.Password))
	}
	if cfg.MaxHistoryStanzas != 0 || cfg.HistorySeconds > 0 {
		history := xmpp.NewElementName("history")
		switch {
		case cfg.MaxHistoryStanzas > 0:
			history.SetAttribute("maxstanzas", strconv.Itoa(cfg.MaxHistoryStanzas))
		case cfg.MaxHistoryStanzas < 0:
			history.SetAttribute("maxstanzas", "0")
		}
		if cfg.HistorySeconds > 0 {
			history.SetAttribute("seconds", strconv.Itoa(cfg.HistorySeconds))
		}
		x.AppendElement(history)
	}
	return x
}

// userElement returns the stanza x child in the muc#user namespace, or nil.
func userElement(stanza xmpp.XElement) xmpp.XElement {
	return stanza.Elements().ChildNamespace("x", mucNamespaceUser)
}

// userItemElement returns the item child of the stanza muc#user extension,
// or nil.
func userItemElement(stanza xmpp.XElement) xmpp.XElement {
	x := userElement(stanza)
	if x == nil {
		return nil
	}
	return x.Elements().Child("item")
}

// statusCodes extracts all status codes carried by the stanza muc#user
// extension.
func statusCodes(stanza xmpp.XElement) []string {
	x := userElement(stanza)
	if x == nil {
		return nil
	}
	var codes []string
	for _, status := range x.Elements().Children("status") {
		if code := status.Attributes().Get("code"); len(code) > 0 {
			codes = append(codes, code)
		}
	}
	return codes
}

func hasStatus(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// isSelfPresence tells whether the stanza muc#user extension carries the
// self-presence marker.
func isSelfPresence(stanza xmpp.XElement) bool {
	return hasStatus(statusCodes(stanza), statusSelfPresence)
}

// newNickname returns the rewritten nickname announced by a status 303
// unavailable presence.
func newNickname(stanza xmpp.XElement) string {
	item := userItemElement(stanza)
	if item == nil {
		return ""
	}
	return item.Attributes().Get("nick")
}

func hasDestroyElement(stanza xmpp.XElement) bool {
	x := userElement(stanza)
	return x != nil && x.Elements().Child("destroy") != nil
}
