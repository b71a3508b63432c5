// Package store persists the message archive: every message the console
// sends or receives, queryable by counterpart for the history command.
package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"meshpilot/internal/config"
)

// Direction marks which way a message travelled.
type Direction string

// Archive directions.
const (
	In  Direction = "in"
	Out Direction = "out"
)

// Entry is one archived message.
type Entry struct {
	ID              int64
	Direction       Direction
	Counterpart     string // peer identity; "" for channel traffic
	CounterpartName string // display label at the time of archiving
	Channel         int    // channel index; -1 for direct messages
	Text            string
	PathLen         int
	SNR             float64
	Acked           bool
	CreatedAt       time.Time
}

// Archive wraps a SQLite database holding the message log.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive for a node in the config directory.
func Open(nodeName string) (*Archive, error) {
	dir, err := config.EnsureDir()
	if err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}
	if nodeName == "" {
		nodeName = "default"
	}
	dsn := filepath.Join(dir, "archive-"+nodeName+".db")

	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

// NewFromDB creates an Archive from an existing *sql.DB and runs
// migrations. This is useful for testing with an in-memory database.
func NewFromDB(db *sql.DB) (*Archive, error) {
	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			direction TEXT NOT NULL,
			counterpart TEXT NOT NULL DEFAULT '',
			counterpart_name TEXT NOT NULL DEFAULT '',
			channel INTEGER NOT NULL DEFAULT -1,
			text TEXT NOT NULL,
			path_len INTEGER NOT NULL DEFAULT 0,
			snr REAL NOT NULL DEFAULT 0,
			acked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_name ON messages(counterpart_name, id);
		CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel, id);
	`)
	return err
}

// Record appends a message and returns its archive id.
func (a *Archive) Record(e Entry) (int64, error) {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := a.db.Exec(`
		INSERT INTO messages (direction, counterpart, counterpart_name, channel, text, path_len, snr, acked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Direction), e.Counterpart, e.CounterpartName, e.Channel,
		e.Text, e.PathLen, e.SNR, boolInt(e.Acked),
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("record message: %w", err)
	}
	return res.LastInsertId()
}

// MarkAcked flags an archived outbound message as acknowledged.
func (a *Archive) MarkAcked(id int64) error {
	_, err := a.db.Exec(`UPDATE messages SET acked = 1 WHERE id = ?`, id)
	return err
}

// Recent returns the newest messages, oldest first for display. A
// counterpart name filters to that peer's traffic (matching either its
// label or a channel label like "ch0"); "" returns everything.
func (a *Archive) Recent(counterpartName string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		rows *sql.Rows
		err  error
	)
	if counterpartName == "" {
		rows, err = a.db.Query(`
			SELECT id, direction, counterpart, counterpart_name, channel, text, path_len, snr, acked, created_at
			FROM messages ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = a.db.Query(`
			SELECT id, direction, counterpart, counterpart_name, channel, text, path_len, snr, acked, created_at
			FROM messages WHERE counterpart_name = ? ORDER BY id DESC LIMIT ?`, counterpartName, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			dir     string
			acked   int
			created string
		)
		if err := rows.Scan(&e.ID, &dir, &e.Counterpart, &e.CounterpartName, &e.Channel,
			&e.Text, &e.PathLen, &e.SNR, &acked, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		e.Direction = Direction(dir)
		e.Acked = acked != 0
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the total number of archived messages.
func (a *Archive) Count() (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
