// Package sqlite persists shared documents and schedule run records in a
// SQLite database using the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/runsheet/core/docsync"
	"github.com/kilianp07/runsheet/core/factory"
	"github.com/kilianp07/runsheet/infra/logger"
)

func init() {
	_ = docsync.RegisterStore("sqlite", func(conf map[string]any) (docsync.DocumentStore, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewDocStore(c)
	})
}

// Config locates the database and sets the change polling interval.
type Config struct {
	Path         string        `json:"path"`
	PollInterval time.Duration `json:"poll_interval"`
}

// DocStore implements docsync.DocumentStore on a documents table. Every
// upsert bumps the row version; subscribers poll it.
type DocStore struct {
	db     *sql.DB
	poll   time.Duration
	logger logger.Logger
}

// Open opens or creates the database at path with a busy timeout suited to
// several processes sharing the file.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return sql.Open("sqlite", dsn)
}

// NewDocStore opens the database and ensures the schema.
func NewDocStore(cfg Config) (*DocStore, error) {
	db, err := Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS documents (
        key TEXT PRIMARY KEY,
        body BLOB NOT NULL,
        version INTEGER NOT NULL,
        updated_at INTEGER NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &DocStore{db: db, poll: poll, logger: logger.New("sqlite_docstore")}, nil
}

// Read returns the body stored under key.
func (s *DocStore) Read(ctx context.Context, key string) ([]byte, error) {
	body, _, err := s.read(ctx, key)
	return body, err
}

func (s *DocStore) read(ctx context.Context, key string) ([]byte, int64, error) {
	var body []byte
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT body, version FROM documents WHERE key = ?`, key).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, docsync.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", key, err)
	}
	return body, version, nil
}

// Upsert replaces the body of key and bumps its version.
func (s *DocStore) Upsert(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO documents (key, body, version, updated_at)
        VALUES (?, ?, 1, ?)
        ON CONFLICT(key) DO UPDATE SET
            body = excluded.body,
            version = documents.version + 1,
            updated_at = excluded.updated_at`,
		key, blob, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Subscribe polls the version of key and streams the body on every change
// made after the call.
func (s *DocStore) Subscribe(ctx context.Context, key string) (<-chan []byte, error) {
	_, last, err := s.read(ctx, key)
	if err != nil && !errors.Is(err, docsync.ErrNotFound) {
		return nil, err
	}
	out := make(chan []byte, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			body, version, err := s.read(ctx, key)
			if err != nil {
				if !errors.Is(err, docsync.ErrNotFound) && ctx.Err() == nil {
					s.logger.Warnf("poll %s: %v", key, err)
				}
				continue
			}
			if version == last {
				continue
			}
			last = version
			select {
			case out <- body:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the underlying database.
func (s *DocStore) Close() error {
	return s.db.Close()
}
