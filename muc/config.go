/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package muc

import (
	"errors"
)

// Config represents a room enter configuration.
type Config struct {
	// Nickname is the nickname requested when entering the room.
	Nickname string `yaml:"nickname"`

	// Password unlocks password protected rooms.
	Password string `yaml:"password"`

	// MaxHistoryStanzas limits the amount of discussion history sent on
	// entering. Zero keeps the service default, a negative value requests
	// no history at all.
	MaxHistoryStanzas int `yaml:"max_history_stanzas"`

	// HistorySeconds limits discussion history to the given time window.
	HistorySeconds int `yaml:"history_seconds"`

	// Status is the presence status announced to the room on entering.
	Status string `yaml:"status"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawConfig Config
	parsed := rawConfig{}
	if err := unmarshal(&parsed); err != nil {
		return err
	}
	if len(parsed.Nickname) == 0 {
		return errors.New("muc.Config: nickname value must be set")
	}
	*c = Config(parsed)
	return nil
}
