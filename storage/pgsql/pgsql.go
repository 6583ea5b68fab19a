/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package pgsql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackal-xmpp/squire/log"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sony/gobreaker"
)

// DefaultPoolSize defines the default size of the database connection pool.
const DefaultPoolSize = 16

const requestTimeout = time.Second * 5

// sb builds statements with PostgreSQL dollar placeholders.
var sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Config represents PostgreSQL storage configuration.
type Config struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	PoolSize int    `yaml:"pool_size"`
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawConfig Config
	parsed := rawConfig{PoolSize: DefaultPoolSize, SSLMode: "disable"}
	if err := unmarshal(&parsed); err != nil {
		return err
	}
	*c = Config(parsed)
	return nil
}

// Storage represents a PostgreSQL roster store.
type Storage struct {
	account    string
	db         *sql.DB
	cb         *gobreaker.CircuitBreaker
	cancelPing context.CancelFunc
}

// New instantiates a PostgreSQL store associated to an account bare JID.
func New(cfg *Config, account string) (*Storage, error) {
	s := &Storage{
		account: account,
		cb:      newCircuitBreaker("pgsql"),
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s", cfg.User, cfg.Password, cfg.Host, cfg.Database, cfg.SSLMode)

	var err error
	s.db, err = sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	s.db.SetMaxOpenConns(cfg.PoolSize)

	if err := s.db.Ping(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelPing = cancel
	go s.pingLoop(ctx)

	return s, nil
}

// NewMock returns a mocked PostgreSQL store instance.
func NewMock() (*Storage, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return &Storage{
		account: "ortuman@jackal.im",
		db:      db,
		cb:      newCircuitBreaker("pgsql"),
	}, mock
}

// Close shuts down the store connection pool.
func (s *Storage) Close() error {
	if s.cancelPing != nil {
		s.cancelPing()
	}
	return s.db.Close()
}

func (s *Storage) pingLoop(ctx context.Context) {
	tc := time.NewTicker(time.Second * 15)
	defer tc.Stop()
	for {
		select {
		case <-tc.C:
			if err := s.db.PingContext(ctx); err != nil {
				log.Error(err)
			}
		case <-ctx.Done():
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
