/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package roster

import (
	"github.com/jackal-xmpp/squire/xmpp"
	"github.com/jackal-xmpp/squire/xmpp/jid"
	"github.com/pkg/errors"
)

const (
	// SubscriptionNone represents 'none' subscription type.
	SubscriptionNone = "none"

	// SubscriptionFrom represents 'from' subscription type.
	SubscriptionFrom = "from"

	// SubscriptionTo represents 'to' subscription type.
	SubscriptionTo = "to"

	// SubscriptionBoth represents 'both' subscription type.
	SubscriptionBoth = "both"

	// SubscriptionRemove represents 'remove' subscription type.
	SubscriptionRemove = "remove"
)

// Item represents a roster entry.
type Item struct {
	JID          string
	Name         string
	Subscription string
	Ask          bool
	Approved     bool
	Groups       []string
}

// NewItemFromElement builds an Item from a 'jabber:iq:roster' item element.
func NewItemFromElement(item xmpp.XElement) (*Item, error) {
	ri := &Item{}
	if itemJID := item.Attributes().Get("jid"); len(itemJID) > 0 {
		j, err := jid.NewWithString(itemJID, false)
		if err != nil {
			return nil, err
		}
		ri.JID = j.ToBareJID().String()
	} else {
		return nil, errors.New("item 'jid' attribute is required")
	}
	ri.Name = item.Attributes().Get("name")

	subscription := item.Attributes().Get("subscription")
	if len(subscription) > 0 {
		switch subscription {
		case SubscriptionBoth, SubscriptionFrom, SubscriptionTo, SubscriptionNone, SubscriptionRemove:
			break
		default:
			return nil, errors.Errorf("unrecognized 'subscription' enum type: %s", subscription)
		}
		ri.Subscription = subscription
	}
	ask := item.Attributes().Get("ask")
	if len(ask) > 0 {
		if ask != "subscribe" {
			return nil, errors.Errorf("unrecognized 'ask' enum type: %s", ask)
		}
		ri.Ask = true
	}
	ri.Approved = item.Attributes().Get("approved") == "true"

	groups := item.Elements().Children("group")
	for _, group := range groups {
		if group.Attributes().Count() > 0 {
			return nil, errors.New("group element must not contain any attribute")
		}
		ri.Groups = append(ri.Groups, group.Text())
	}
	return ri, nil
}

// Element returns the item 'jabber:iq:roster' element representation.
func (ri *Item) Element() xmpp.XElement {
	item := xmpp.NewElementName("item")
	item.SetAttribute("jid", ri.JID)
	if len(ri.Name) > 0 {
		item.SetAttribute("name", ri.Name)
	}
	if len(ri.Subscription) > 0 {
		item.SetAttribute("subscription", ri.Subscription)
	}
	if ri.Ask {
		item.SetAttribute("ask", "subscribe")
	}
	if ri.Approved {
		item.SetAttribute("approved", "true")
	}
	for _, group := range ri.Groups {
		if len(group) == 0 {
			continue
		}
		gr := xmpp.NewElementName("group")
		gr.SetText(group)
		item.AppendElement(gr)
	}
	return item
}

// Equals returns true if both items carry the same content, group set included.
func (ri *Item) Equals(other *Item) bool {
	if ri.JID != other.JID || ri.Name != other.Name || ri.Subscription != other.Subscription {
		return false
	}
	if ri.Ask != other.Ask || ri.Approved != other.Approved {
		return false
	}
	if len(ri.Groups) != len(other.Groups) {
		return false
	}
	groups := make(map[string]struct{}, len(ri.Groups))
	for _, group := range ri.Groups {
		groups[group] = struct{}{}
	}
	for _, group := range other.Groups {
		if _, ok := groups[group]; !ok {
			return false
		}
	}
	return true
}

// IsSubscribedToMe returns true if the entry is subscribed to the local
// account's presence.
func (ri *Item) IsSubscribedToMe() bool {
	return ri.Subscription == SubscriptionFrom || ri.Subscription == SubscriptionBoth
}

// IsSubscribedTo returns true if the local account is subscribed to the
// entry's presence.
func (ri *Item) IsSubscribedTo() bool {
	return ri.Subscription == SubscriptionTo || ri.Subscription == SubscriptionBoth
}

func (ri *Item) clone() *Item {
	cp := &Item{}
	*cp = *ri
	cp.Groups = make([]string, len(ri.Groups))
	copy(cp.Groups, ri.Groups)
	return cp
}
