// Package offline keeps a local cache and a durable queue of write
// requests made while the server is unreachable, and replays the queue once
// connectivity returns.
package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Partition string

const (
	Dashboard      Partition = "dashboard"
	BulkRequests   Partition = "bulk_requests"
	RequestDetails Partition = "request_details"
	PaymentTracker Partition = "payment_tracker"
	UserProfile    Partition = "user_profile"
	Drafts         Partition = "drafts"
)

// partitionTTL is the cache lifetime per partition. Zero never expires.
var partitionTTL = map[Partition]time.Duration{
	Dashboard:      time.Hour,
	BulkRequests:   30 * time.Minute,
	RequestDetails: time.Hour,
	PaymentTracker: 5 * time.Minute,
	UserProfile:    24 * time.Hour,
	Drafts:         0,
}

var ErrNotFound = errors.New("offline entry not found")

// TTL returns the partition's cache lifetime and whether it is known.
func TTL(p Partition) (time.Duration, bool) {
	ttl, ok := partitionTTL[p]
	return ttl, ok
}

// Entry is one cached value.
type Entry struct {
	Partition Partition       `json:"partition"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	StoredAt  time.Time       `json:"storedAt"`
	TTL       time.Duration   `json:"ttl"`
}

func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.StoredAt) > e.TTL
}

// Store is the SQLite-backed local state of the offline client.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore opens or creates the store at path. A leading ~ expands to the
// home directory.
func OpenStore(path string) (*Store, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, path[1:])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache (
			bucket TEXT NOT NULL,
			entry_key TEXT NOT NULL,
			data TEXT NOT NULL,
			stored_at INTEGER NOT NULL,
			ttl_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bucket, entry_key)
		);

		CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			data TEXT,
			created_at INTEGER NOT NULL,
			retries INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			next_attempt_at INTEGER NOT NULL,
			last_error TEXT,
			conflict TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_attempt_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// Put caches data under key with the partition's TTL.
func (s *Store) Put(ctx context.Context, p Partition, key string, data any) error {
	ttl, ok := partitionTTL[p]
	if !ok {
		return fmt.Errorf("unknown partition %q", p)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", p, key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache (bucket, entry_key, data, stored_at, ttl_ms) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (bucket, entry_key) DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at, ttl_ms = excluded.ttl_ms`,
		string(p), key, string(raw), toMillis(s.now()), ttl.Milliseconds())
	return err
}

// Get returns a cached entry. Expired entries are deleted and reported as
// ErrNotFound.
func (s *Store) Get(ctx context.Context, p Partition, key string) (*Entry, error) {
	var raw string
	var storedAt, ttlMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, stored_at, ttl_ms FROM cache WHERE bucket = ? AND entry_key = ?`,
		string(p), key).Scan(&raw, &storedAt, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Partition: p,
		Key:       key,
		Data:      json.RawMessage(raw),
		StoredAt:  fromMillis(storedAt),
		TTL:       time.Duration(ttlMs) * time.Millisecond,
	}
	if e.Expired(s.now()) {
		if err := s.Delete(ctx, p, key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return e, nil
}

// GetInto decodes a cached entry into dst.
func (s *Store) GetInto(ctx context.Context, p Partition, key string, dst any) error {
	e, err := s.Get(ctx, p, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(e.Data, dst)
}

// GetAll returns the live entries of a partition, purging expired ones.
func (s *Store) GetAll(ctx context.Context, p Partition) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_key, data, stored_at, ttl_ms FROM cache WHERE bucket = ? ORDER BY entry_key`, string(p))
	if err != nil {
		return nil, err
	}

	now := s.now()
	var live []Entry
	var expired []string
	for rows.Next() {
		var e Entry
		var raw string
		var storedAt, ttlMs int64
		if err := rows.Scan(&e.Key, &raw, &storedAt, &ttlMs); err != nil {
			rows.Close()
			return nil, err
		}
		e.Partition = p
		e.Data = json.RawMessage(raw)
		e.StoredAt = fromMillis(storedAt)
		e.TTL = time.Duration(ttlMs) * time.Millisecond
		if e.Expired(now) {
			expired = append(expired, e.Key)
			continue
		}
		live = append(live, e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, key := range expired {
		if err := s.Delete(ctx, p, key); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func (s *Store) Delete(ctx context.Context, p Partition, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE bucket = ? AND entry_key = ?`, string(p), key)
	return err
}

// ClearExpired purges expired entries from every partition and returns how
// many were removed.
func (s *Store) ClearExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE ttl_ms > 0 AND ? - stored_at > ttl_ms`, toMillis(s.now()))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SaveDraft stores form data until it is submitted.
func (s *Store) SaveDraft(ctx context.Context, formID string, data any) error {
	return s.Put(ctx, Drafts, formID, data)
}

func (s *Store) GetDraft(ctx context.Context, formID string, dst any) error {
	return s.GetInto(ctx, Drafts, formID, dst)
}

func (s *Store) ClearDraft(ctx context.Context, formID string) error {
	return s.Delete(ctx, Drafts, formID)
}

// Freshness describes how current a cached entry is.
func (s *Store) Freshness(ctx context.Context, p Partition, key string) (*DataFreshness, error) {
	e, err := s.Get(ctx, p, key)
	if err != nil {
		return nil, err
	}
	f := NewDataFreshness(e.Data, e.StoredAt, e.TTL, s.now())
	return &f, nil
}
