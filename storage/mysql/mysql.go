/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "github.com/go-sql-driver/mysql" // SQL driver
	"github.com/jackal-xmpp/squire/log"
	"github.com/sony/gobreaker"
)

// DefaultPoolSize defines the default size of the database connection pool.
const DefaultPoolSize = 16

const requestTimeout = time.Second * 5

// Config represents MySQL storage configuration.
type Config struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawConfig Config
	parsed := rawConfig{PoolSize: DefaultPoolSize}
	if err := unmarshal(&parsed); err != nil {
		return err
	}
	*c = Config(parsed)
	return nil
}

// Storage represents a MySQL roster store.
type Storage struct {
	account string
	db      *sql.DB
	cb      *gobreaker.CircuitBreaker
	doneCh  chan chan bool
}

// New instantiates a MySQL store associated to an account bare JID.
func New(cfg *Config, account string) (*Storage, error) {
	s := &Storage{
		account: account,
		cb:      newCircuitBreaker("mysql"),
		doneCh:  make(chan chan bool),
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Database)

	var err error
	s.db, err = sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	s.db.SetMaxOpenConns(cfg.PoolSize)

	if err := s.db.Ping(); err != nil {
		return nil, err
	}
	go s.loop()

	return s, nil
}

// NewMock returns a mocked MySQL store instance.
func NewMock() (*Storage, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return &Storage{
		account: "ortuman@jackal.im",
		db:      db,
		cb:      newCircuitBreaker("mysql"),
	}, mock
}

// Close shuts down the store connection pool.
func (s *Storage) Close() error {
	if s.doneCh == nil { // mocked instance
		return s.db.Close()
	}
	ch := make(chan bool)
	s.doneCh <- ch
	<-ch
	return nil
}

func (s *Storage) loop() {
	tc := time.NewTicker(time.Second * 15)
	defer tc.Stop()
	for {
		select {
		case <-tc.C:
			if err := s.db.Ping(); err != nil {
				log.Error(err)
			}
		case ch := <-s.doneCh:
			_ = s.db.Close()
			close(ch)
			return
		}
	}
}

func (s *Storage) inTransaction(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return txErr
	}
	if err := f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// withBreaker runs a database round trip through the circuit breaker, so
// a dead server fails fast instead of piling up blocked synchronizations.
func (s *Storage) withBreaker(f func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, f()
	})
	return err
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: time.Second * 10,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
