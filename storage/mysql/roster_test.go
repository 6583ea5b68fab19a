/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package mysql

import (
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackal-xmpp/squire/roster"
	"github.com/stretchr/testify/require"
)

func TestMySQLStorageVersion(t *testing.T) {
	s, mock := NewMock()
	mock.ExpectQuery("SELECT ver FROM roster_versions (.+)").
		WithArgs("ortuman@jackal.im").
		WillReturnRows(sqlmock.NewRows([]string{"ver"}).AddRow("v1"))

	require.Equal(t, "v1", s.Version())
	require.Nil(t, mock.ExpectationsWereMet())

	s, mock = NewMock()
	mock.ExpectQuery("SELECT ver FROM roster_versions (.+)").
		WithArgs("ortuman@jackal.im").
		WillReturnRows(sqlmock.NewRows([]string{"ver"}))

	require.Equal(t, "", s.Version()) // no row, no version
	require.Nil(t, mock.ExpectationsWereMet())
}

func TestMySQLStorageEntries(t *testing.T) {
	s, mock := NewMock()
	mock.ExpectQuery("SELECT ver FROM roster_versions (.+)").
		WithArgs("ortuman@jackal.im").
		WillReturnRows(sqlmock.NewRows([]string{"ver"}).AddRow("v1"))
	mock.ExpectQuery("SELECT (.+) FROM roster_items (.+)").
		WithArgs("ortuman@jackal.im").
		WillReturnRows(sqlmock.NewRows([]string{"jid", "name", "subscription", "ask", "approved", "groups"}).
			AddRow("noelia@jackal.im", "Noelia", "both", false, false, []byte(`["Friends"]`)).
			AddRow("romeo@jackal.im", "", "to", true, false, []byte(`null`)))

	entries := s.Entries()
	require.Equal(t, 2, len(entries))
	require.Equal(t, "noelia@jackal.im", entries[0].JID)
	require.Equal(t, []string{"Friends"}, entries[0].Groups)
	require.True(t, entries[1].Ask)
	require.Nil(t, mock.ExpectationsWereMet())
}

func TestMySQLStorageEntriesAbsent(t *testing.T) {
	s, mock := NewMock()
	mock.ExpectQuery("SELECT ver FROM roster_versions (.+)").
		WithArgs("ortuman@jackal.im").
		WillReturnRows(sqlmock.NewRows([]string{"ver"}))

	require.Nil(t, s.Entries())
	require.Nil(t, mock.ExpectationsWereMet())

	s, mock = NewMock()
	mock.ExpectQuery("SELECT ver FROM roster_versions (.+)").
		WithArgs("ortuman@jackal.im").
		WillReturnError(errors.New("connection refused"))

	require.Nil(t, s.Entries())
	require.Nil(t, mock.ExpectationsWereMet())
}

func TestMySQLStorageUpsertEntry(t *testing.T) {
	groups := []byte(`["Friends"]`)

	s, mock := NewMock()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roster_items (.+) ON DUPLICATE KEY UPDATE (.+)").
		WithArgs("ortuman@jackal.im", "noelia@jackal.im", "Noelia", "both", false, false, groups,
			"Noelia", "both", false, false, groups).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO roster_versions (.+) ON DUPLICATE KEY UPDATE (.+)").
		WithArgs("ortuman@jackal.im", "v2", "v2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item := &roster.Item{
		JID:          "noelia@jackal.im",
		Name:         "Noelia",
		Subscription: roster.SubscriptionBoth,
		Groups:       []string{"Friends"},
	}
	require.Nil(t, s.UpsertEntry(item, "v2"))
	require.Nil(t, mock.ExpectationsWereMet())
}

func TestMySQLStorageRemoveEntry(t *testing.T) {
	s, mock := NewMock()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM roster_items (.+)").
		WithArgs("ortuman@jackal.im", "noelia@jackal.im").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO roster_versions (.+) ON DUPLICATE KEY UPDATE (.+)").
		WithArgs("ortuman@jackal.im", "v3", "v3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.Nil(t, s.RemoveEntry("noelia@jackal.im", "v3"))
	require.Nil(t, mock.ExpectationsWereMet())
}

func TestMySQLStorageResetEntries(t *testing.T) {
	groups := []byte(`null`)

	s, mock := NewMock()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM roster_items (.+)").
		WithArgs("ortuman@jackal.im").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO roster_items (.+) ON DUPLICATE KEY UPDATE (.+)").
		WithArgs("ortuman@jackal.im", "noelia@jackal.im", "", "both", false, false, groups,
			"", "both", false, false, groups).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO roster_versions (.+) ON DUPLICATE KEY UPDATE (.+)").
		WithArgs("ortuman@jackal.im", "v1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	items := []roster.Item{{JID: "noelia@jackal.im", Subscription: roster.SubscriptionBoth}}
	require.Nil(t, s.ResetEntries(items, "v1"))
	require.Nil(t, mock.ExpectationsWereMet())
}

func TestMySQLStorageResetStore(t *testing.T) {
	s, mock := NewMock()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM roster_items (.+)").
		WithArgs("ortuman@jackal.im").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM roster_versions (.+)").
		WithArgs("ortuman@jackal.im").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.Nil(t, s.ResetStore())
	require.Nil(t, mock.ExpectationsWereMet())
}

func TestMySQLStorageTransactionRollback(t *testing.T) {
	s, mock := NewMock()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roster_items (.+) ON DUPLICATE KEY UPDATE (.+)").
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := s.UpsertEntry(&roster.Item{JID: "noelia@jackal.im", Subscription: roster.SubscriptionTo}, "v2")
	require.NotNil(t, err)
	require.Nil(t, mock.ExpectationsWereMet())
}
