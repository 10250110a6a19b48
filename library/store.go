// Package library persists media collection in SQLite database so imports
// made in different runs see each other.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"wsi/story"
)

const schema = `
CREATE TABLE IF NOT EXISTS media (
	position INTEGER PRIMARY KEY,
	id       INTEGER NOT NULL,
	title    TEXT NOT NULL DEFAULT '',
	alt      TEXT NOT NULL DEFAULT '',
	item     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS media_title ON media(title);
`

// Store is media library kept in SQLite database. Connection is not safe for
// concurrent use, so all access is serialized.
type Store struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// Open opens (creating if necessary) library database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("unable to open media library '%s': %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to prepare media library '%s': %w", path, err)
	}
	return &Store{conn: conn, log: log.Named("library")}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Current returns media items in library order.
func (s *Store) Current(ctx context.Context) ([]story.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer s.conn.SetInterrupt(s.conn.SetInterrupt(ctx.Done()))
	return s.load()
}

// Update applies fn to library content inside single transaction. Nothing
// is changed if fn result could not be stored.
func (s *Store) Update(ctx context.Context, fn func(prev []story.MediaItem) []story.MediaItem) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer s.conn.SetInterrupt(s.conn.SetInterrupt(ctx.Done()))
	defer sqlitex.Save(s.conn)(&err)

	prev, err := s.load()
	if err != nil {
		return err
	}
	next := fn(prev)

	if err := sqlitex.Execute(s.conn, `DELETE FROM media`, nil); err != nil {
		return fmt.Errorf("unable to clear media library: %w", err)
	}
	for i := range next {
		data, err := json.Marshal(&next[i])
		if err != nil {
			return fmt.Errorf("unable to encode media item %d: %w", next[i].ID, err)
		}
		err = sqlitex.Execute(s.conn, `INSERT INTO media (position, id, title, alt, item) VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{i, next[i].ID, next[i].Title, next[i].Alt, string(data)}})
		if err != nil {
			return fmt.Errorf("unable to store media item %d: %w", next[i].ID, err)
		}
	}
	s.log.Debug("Media library updated", zap.Int("before", len(prev)), zap.Int("after", len(next)))
	return nil
}

func (s *Store) load() ([]story.MediaItem, error) {
	var items []story.MediaItem
	err := sqlitex.Execute(s.conn, `SELECT item FROM media ORDER BY position`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			var item story.MediaItem
			if err := json.Unmarshal([]byte(stmt.ColumnText(0)), &item); err != nil {
				return fmt.Errorf("unable to decode media item: %w", err)
			}
			items = append(items, item)
			return nil
		}})
	if err != nil {
		return nil, fmt.Errorf("unable to read media library: %w", err)
	}
	return items, nil
}
