package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type ItemStatus string

const (
	StatusPending ItemStatus = "pending"
	StatusFailed  ItemStatus = "failed"
	StatusSynced  ItemStatus = "synced"
)

// QueueItem is one deferred write request.
type QueueItem struct {
	ID            int64           `json:"id"`
	Method        string          `json:"method"`
	URL           string          `json:"url"`
	Data          json.RawMessage `json:"data,omitempty"`
	CreatedAt     time.Time       `json:"timestamp"`
	Retries       int             `json:"retries"`
	Status        ItemStatus      `json:"status"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	LastError     string          `json:"lastError,omitempty"`
	Conflict      *Resolution     `json:"conflict,omitempty"`
}

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
}

// ValidationError lists every problem with a queue item.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid sync item: " + strings.Join(e.Problems, "; ")
}

// ValidateItem checks that method is a known verb, url is server-relative
// and writes carry a body.
func ValidateItem(method, url string, data json.RawMessage) error {
	var problems []string
	if !allowedMethods[method] {
		problems = append(problems, "Invalid HTTP method")
	}
	if !strings.HasPrefix(url, "/") {
		problems = append(problems, "Invalid URL")
	}
	if method != "GET" && isEmptyJSON(data) {
		problems = append(problems, "Data required for non-GET requests")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func isEmptyJSON(data json.RawMessage) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null"
}

// Enqueue validates and persists a write request for later replay.
func (s *Store) Enqueue(ctx context.Context, method, url string, data any) (int64, error) {
	method = strings.ToUpper(method)
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return 0, fmt.Errorf("failed to encode sync data: %w", err)
		}
		raw = encoded
	}
	if err := ValidateItem(method, url, raw); err != nil {
		return 0, err
	}

	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_queue (method, url, data, created_at, retries, status, next_attempt_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		method, url, nullableJSON(raw), now, string(StatusPending), now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullableJSON(raw json.RawMessage) sql.NullString {
	if isEmptyJSON(raw) {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

const queueColumns = `id, method, url, data, created_at, retries, status, next_attempt_at, last_error, conflict`

func scanItem(scan func(dest ...any) error) (*QueueItem, error) {
	var item QueueItem
	var data, lastError, conflict sql.NullString
	var createdAt, nextAttempt int64
	var status string
	if err := scan(&item.ID, &item.Method, &item.URL, &data, &createdAt, &item.Retries, &status, &nextAttempt, &lastError, &conflict); err != nil {
		return nil, err
	}
	if data.Valid {
		item.Data = json.RawMessage(data.String)
	}
	item.CreatedAt = fromMillis(createdAt)
	item.NextAttemptAt = fromMillis(nextAttempt)
	item.Status = ItemStatus(status)
	item.LastError = lastError.String
	if conflict.Valid && conflict.String != "" {
		var r Resolution
		if err := json.Unmarshal([]byte(conflict.String), &r); err == nil {
			item.Conflict = &r
		}
	}
	return &item, nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ListQueue returns every queued item in enqueue order.
func (s *Store) ListQueue(ctx context.Context) ([]QueueItem, error) {
	return s.queryItems(ctx, `SELECT `+queueColumns+` FROM sync_queue ORDER BY id`)
}

// DueItems returns pending items whose backoff has elapsed, oldest first.
func (s *Store) DueItems(ctx context.Context, now time.Time) ([]QueueItem, error) {
	return s.queryItems(ctx,
		`SELECT `+queueColumns+` FROM sync_queue WHERE status = ? AND next_attempt_at <= ? ORDER BY id`,
		string(StatusPending), toMillis(now))
}

func (s *Store) GetItem(ctx context.Context, id int64) (*QueueItem, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// QueueLength counts pending items.
func (s *Store) QueueLength(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE status = ?`, string(StatusPending)).Scan(&n)
	return n, err
}

func (s *Store) deleteItem(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	return err
}

func (s *Store) saveItem(ctx context.Context, item *QueueItem) error {
	var conflict sql.NullString
	if item.Conflict != nil {
		raw, err := json.Marshal(item.Conflict)
		if err != nil {
			return err
		}
		conflict = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET data = ?, retries = ?, status = ?, next_attempt_at = ?, last_error = ?, conflict = ?
		WHERE id = ?`,
		nullableJSON(item.Data), item.Retries, string(item.Status), toMillis(item.NextAttemptAt),
		sql.NullString{String: item.LastError, Valid: item.LastError != ""}, conflict, item.ID)
	return err
}

// Retry returns a failed item to pending with a fresh retry budget.
func (s *Store) Retry(ctx context.Context, id int64) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != StatusFailed {
		return fmt.Errorf("sync item %d is %s, only failed items can be retried", id, item.Status)
	}
	item.Status = StatusPending
	item.Retries = 0
	item.NextAttemptAt = s.now()
	item.LastError = ""
	item.Conflict = nil
	return s.saveItem(ctx, item)
}

// PurgeFailed deletes every failed item and returns how many were removed.
func (s *Store) PurgeFailed(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE status = ?`, string(StatusFailed))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
