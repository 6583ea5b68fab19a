/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package pgsql

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackal-xmpp/squire/log"
	"github.com/jackal-xmpp/squire/roster"
)

// Version returns the last version token written to the store.
func (s *Storage) Version() string {
	var ver string
	err := s.withBreaker(func() error {
		ctx, cancel := requestContext()
		defer cancel()

		q := sb.Select("ver").
			From("roster_versions").
			Where(sq.Eq{"account": s.account})

		err := q.RunWith(s.db).QueryRowContext(ctx).Scan(&ver)
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	})
	if err != nil {
		log.Error(err)
		return ""
	}
	return ver
}

// Entries returns all stored entries. A nil result means no snapshot was
// ever written, or that the stored one could not be read back.
func (s *Storage) Entries() []roster.Item {
	var items []roster.Item
	err := s.withBreaker(func() error {
		ctx, cancel := requestContext()
		defer cancel()

		var ver string
		err := sb.Select("ver").
			From("roster_versions").
			Where(sq.Eq{"account": s.account}).
			RunWith(s.db).QueryRowContext(ctx).Scan(&ver)
		switch {
		case err == sql.ErrNoRows:
			return nil // never synced
		case err != nil:
			return err
		}
		q := sb.Select("jid", "name", "subscription", "ask", "approved", "groups").
			From("roster_items").
			Where(sq.Eq{"account": s.account}).
			OrderBy("jid")

		rows, err := q.RunWith(s.db).QueryContext(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		items = make([]roster.Item, 0)
		for rows.Next() {
			var item roster.Item
			var groupsBytes []byte
			if err := rows.Scan(&item.JID, &item.Name, &item.Subscription, &item.Ask, &item.Approved, &groupsBytes); err != nil {
				return err
			}
			if len(groupsBytes) > 0 {
				if err := json.Unmarshal(groupsBytes, &item.Groups); err != nil {
					return err
				}
			}
			items = append(items, item)
		}
		return rows.Err()
	})
	if err != nil {
		log.Error(err)
		return nil
	}
	return items
}

// ResetEntries replaces the whole store content.
func (s *Storage) ResetEntries(items []roster.Item, version string) error {
	return s.withBreaker(func() error {
		ctx, cancel := requestContext()
		defer cancel()

		return s.inTransaction(ctx, func(tx *sql.Tx) error {
			_, err := sb.Delete("roster_items").
				Where(sq.Eq{"account": s.account}).
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return err
			}
			for i := range items {
				if err := s.upsertItem(ctx, tx, &items[i]); err != nil {
					return err
				}
			}
			return s.upsertVersion(ctx, tx, version)
		})
	})
}

// UpsertEntry adds or updates a single stored entry.
func (s *Storage) UpsertEntry(item *roster.Item, version string) error {
	return s.withBreaker(func() error {
		ctx, cancel := requestContext()
		defer cancel()

		return s.inTransaction(ctx, func(tx *sql.Tx) error {
			if err := s.upsertItem(ctx, tx, item); err != nil {
				return err
			}
			return s.upsertVersion(ctx, tx, version)
		})
	})
}

// RemoveEntry removes a single stored entry given its bare JID.
func (s *Storage) RemoveEntry(itemJID string, version string) error {
	return s.withBreaker(func() error {
		ctx, cancel := requestContext()
		defer cancel()

		return s.inTransaction(ctx, func(tx *sql.Tx) error {
			_, err := sb.Delete("roster_items").
				Where(sq.And{sq.Eq{"account": s.account}, sq.Eq{"jid": itemJID}}).
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return err
			}
			return s.upsertVersion(ctx, tx, version)
		})
	})
}

// ResetStore wipes the store content and version token.
func (s *Storage) ResetStore() error {
	return s.withBreaker(func() error {
		ctx, cancel := requestContext()
		defer cancel()

		return s.inTransaction(ctx, func(tx *sql.Tx) error {
			_, err := sb.Delete("roster_items").
				Where(sq.Eq{"account": s.account}).
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return err
			}
			_, err = sb.Delete("roster_versions").
				Where(sq.Eq{"account": s.account}).
				RunWith(tx).ExecContext(ctx)
			return err
		})
	})
}

func (s *Storage) upsertItem(ctx context.Context, tx *sql.Tx, item *roster.Item) error {
	groupsBytes, err := json.Marshal(item.Groups)
	if err != nil {
		return err
	}
	q := sb.Insert("roster_items").
		Columns("account", "jid", "name", "subscription", "ask", "approved", "groups").
		Values(s.account, item.JID, item.Name, item.Subscription, item.Ask, item.Approved, groupsBytes).
		Suffix("ON CONFLICT (account, jid) DO UPDATE SET name = EXCLUDED.name, subscription = EXCLUDED.subscription, ask = EXCLUDED.ask, approved = EXCLUDED.approved, groups = EXCLUDED.groups")

	_, err = q.RunWith(tx).ExecContext(ctx)
	return err
}

func (s *Storage) upsertVersion(ctx context.Context, tx *sql.Tx, version string) error {
	q := sb.Insert("roster_versions").
		Columns("account", "ver").
		Values(s.account, version).
		Suffix("ON CONFLICT (account) DO UPDATE SET ver = EXCLUDED.ver")

	_, err := q.RunWith(tx).ExecContext(ctx)
	return err
}
