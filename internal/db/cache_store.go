package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/riverwalks/rw/internal/cache"
)

// cacheStore implements cache.Store on top of the cache_entries table.
type cacheStore struct {
	db *DB
}

// CacheStore returns the sqlite-backed store for the request cache.
func (db *DB) CacheStore() cache.Store {
	return &cacheStore{db: db}
}

func (s *cacheStore) GetEntry(key string) (*cache.Entry, error) {
	var (
		e        cache.Entry
		part     string
		storedAt time.Time
	)
	err := s.db.conn.QueryRow(
		`SELECT key, partition, status, content_type, body, stored_at FROM cache_entries WHERE key = ?`,
		key,
	).Scan(&e.Key, &part, &e.Status, &e.ContentType, &e.Body, &storedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select cache entry: %w", err)
	}
	e.Partition = cache.Partition(part)
	e.StoredAt = storedAt
	return &e, nil
}

func (s *cacheStore) PutEntry(e cache.Entry) error {
	return s.db.withWriteLock(func() error {
		_, err := s.db.conn.Exec(
			`INSERT OR REPLACE INTO cache_entries (key, partition, status, content_type, body, stored_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.Key, string(e.Partition), e.Status, e.ContentType, e.Body, e.StoredAt,
		)
		if err != nil {
			return fmt.Errorf("upsert cache entry: %w", err)
		}
		return nil
	})
}

func (s *cacheStore) DeleteEntry(key string) error {
	return s.db.withWriteLock(func() error {
		_, err := s.db.conn.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
		return err
	})
}

func (s *cacheStore) DeleteEntryPrefix(prefix string) (int, error) {
	var n int64
	err := s.db.withWriteLock(func() error {
		res, err := s.db.conn.Exec(
			`DELETE FROM cache_entries WHERE key LIKE ? ESCAPE '\'`,
			likePrefix(prefix),
		)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

func (s *cacheStore) PurgePartition(p cache.Partition) (int, error) {
	var n int64
	err := s.db.withWriteLock(func() error {
		res, err := s.db.conn.Exec(`DELETE FROM cache_entries WHERE partition = ?`, string(p))
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

func (s *cacheStore) CountEntries() (int, error) {
	var n int
	err := s.db.conn.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}

// likePrefix escapes LIKE metacharacters in prefix and appends the
// match-anything suffix.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
