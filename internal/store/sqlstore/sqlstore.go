// Package sqlstore implements store.Store on database/sql, against
// PostgreSQL (lib/pq) or SQLite (modernc.org/sqlite).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder style and change propagation
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// notifyChannel is the LISTEN/NOTIFY channel carrying change events
const notifyChannel = "hearth_changes"

// Store is a SQL-backed store.Store
type Store struct {
	db       *sql.DB
	dialect  Dialect
	dsn      string
	hub      *store.Hub
	listener *pq.Listener
	log      *logger.Logger

	clockMu sync.Mutex
	lastTS  time.Time
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// ParseDSN picks the dialect for a connection string. postgres:// and
// postgresql:// URLs use PostgreSQL; sqlite://path, file: URIs and plain
// paths use SQLite.
func ParseDSN(dsn string) (Dialect, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return SQLite, strings.TrimPrefix(dsn, "sqlite://")
	default:
		return SQLite, dsn
	}
}

// Open connects, migrates and, on PostgreSQL, starts listening for changes
// made by other processes.
func Open(dsn string, log *logger.Logger) (*Store, error) {
	dialect, source := ParseDSN(dsn)

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case Postgres:
		db, err = sql.Open("postgres", source)
	case SQLite:
		if source != ":memory:" && !strings.HasPrefix(source, "file:") {
			if err := os.MkdirAll(filepath.Dir(source), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		// one writer at a time; also keeps :memory: on a single connection
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == SQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	s := &Store{
		db:      db,
		dialect: dialect,
		dsn:     source,
		hub:     store.NewHub(),
		log:     log.WithFields(logger.F("component", "sqlstore"), logger.F("dialect", dialect.String())),
		now:     time.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if dialect == Postgres {
		if err := s.listen(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close stops the listener and closes the database
func (s *Store) Close() error {
	if s.listener != nil {
		s.listener.Close()
	}
	return s.db.Close()
}

// DB exposes the connection for tables owned by the server (users, sessions)
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Rebind rewrites ? placeholders into the dialect's style
func (s *Store) Rebind(query string) string {
	return rebind(s.dialect, query)
}

func rebind(d Dialect, query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timestamp returns a strictly increasing creation time so rows inserted
// by this process keep their insertion order
func (s *Store) timestamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	ts := s.now().UTC()
	if !ts.After(s.lastTS) {
		ts = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = ts
	return ts
}

// Subscribe streams committed changes to table
func (s *Store) Subscribe(ctx context.Context, table string, where store.Filter) (<-chan store.Event, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	if err := t.CheckColumns(where.Columns()...); err != nil {
		return nil, err
	}
	if err := where.Validate(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, table, where), nil
}
