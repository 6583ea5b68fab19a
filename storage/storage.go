/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package storage

import (
	"fmt"

	"github.com/jackal-xmpp/squire/roster"
	"github.com/jackal-xmpp/squire/storage/memstorage"
	"github.com/jackal-xmpp/squire/storage/mysql"
	"github.com/jackal-xmpp/squire/storage/pgsql"
)

// Type represents a roster store type.
type Type int

const (
	// Memory represents an in-memory store type.
	Memory Type = iota

	// MySQL represents a MySQL store type.
	MySQL

	// PgSQL represents a PostgreSQL store type.
	PgSQL
)

// Config represents a roster store configuration.
type Config struct {
	Type  Type
	MySQL *mysql.Config
	PgSQL *pgsql.Config
}

type storageProxyType struct {
	Type  string        `yaml:"type"`
	MySQL *mysql.Config `yaml:"mysql"`
	PgSQL *pgsql.Config `yaml:"pgsql"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	p := storageProxyType{}
	if err := unmarshal(&p); err != nil {
		return err
	}
	switch p.Type {
	case "mysql":
		if p.MySQL == nil {
			return fmt.Errorf("storage.Config: couldn't read MySQL configuration")
		}
		c.Type = MySQL
		c.MySQL = p.MySQL

	case "pgsql":
		if p.PgSQL == nil {
			return fmt.Errorf("storage.Config: couldn't read PostgreSQL configuration")
		}
		c.Type = PgSQL
		c.PgSQL = p.PgSQL

	case "memory", "":
		c.Type = Memory

	default:
		return fmt.Errorf("storage.Config: unrecognized storage type: %s", p.Type)
	}
	return nil
}

// New instantiates a roster store associated to an account bare JID,
// given a store configuration.
func New(cfg *Config, account string) (roster.Store, error) {
	switch cfg.Type {
	case MySQL:
		return mysql.New(cfg.MySQL, account)
	case PgSQL:
		return pgsql.New(cfg.PgSQL, account)
	default:
		return memstorage.New(), nil
	}
}
