package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const (
	keyRetryCount = "retry.count"
	keyRetryNext  = "retry.next_at"
	keyLastWindow = "schedule.last_window"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  outcome TEXT NOT NULL,
  emailSubject TEXT,
  emailMessageId TEXT,
  rowsWritten INTEGER NOT NULL DEFAULT 0,
  durationMs INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) InsertRun(outcome, subject, messageID string, rowsWritten int, duration time.Duration) error {
	_, err := d.conn.Exec(`
INSERT INTO runs (outcome, emailSubject, emailMessageId, rowsWritten, durationMs)
VALUES (?, ?, ?, ?, ?)
`, outcome, subject, messageID, rowsWritten, duration.Milliseconds())
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) DeleteMetadata(key string) error {
	_, err := d.conn.Exec(`DELETE FROM metadata WHERE key = ?`, key)
	return err
}

// RetryCount returns how many consecutive no-mail retries have happened since
// the last successful run.
func (d *DB) RetryCount() (int, error) {
	value, err := d.GetMetadata(keyRetryCount)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(*value)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (d *DB) SetRetryCount(n int) error {
	return d.SetMetadata(keyRetryCount, strconv.Itoa(n))
}

func (d *DB) ResetRetryCount() error {
	return d.DeleteMetadata(keyRetryCount)
}

// NextRetryAt returns the stored one-shot retry deadline, nil when none is
// scheduled.
func (d *DB) NextRetryAt() (*time.Time, error) {
	value, err := d.GetMetadata(keyRetryNext)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

func (d *DB) SetNextRetryAt(t time.Time) error {
	return d.SetMetadata(keyRetryNext, t.UTC().Format(time.RFC3339))
}

func (d *DB) ClearNextRetryAt() error {
	return d.DeleteMetadata(keyRetryNext)
}

// LastWindow identifies the most recent schedule slot a run was fired for,
// formatted as date plus check time ("2026-01-15 08:05"). It keeps the
// daemon from firing the same slot twice.
func (d *DB) LastWindow() (string, error) {
	value, err := d.GetMetadata(keyLastWindow)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

func (d *DB) SetLastWindow(window string) error {
	return d.SetMetadata(keyLastWindow, window)
}

// ResetState drops all scheduler state: retry counter, retry deadline, and
// the last served window.
func (d *DB) ResetState() error {
	for _, key := range []string{keyRetryCount, keyRetryNext, keyLastWindow} {
		if err := d.DeleteMetadata(key); err != nil {
			return err
		}
	}
	return nil
}
