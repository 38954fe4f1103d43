package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"promptarena/logging"
	"promptarena/types"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no rows
var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339Nano

// InitDatabase opens the database and creates or upgrades the schema
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		prompt TEXT,
		metric TEXT,
		loss REAL NOT NULL,
		is_best INTEGER NOT NULL DEFAULT 0,
		image_png BLOB,
		created_at TEXT,
		UNIQUE(session_id, number)
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id);
	CREATE TABLE IF NOT EXISTS attacks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		keyword TEXT,
		attack TEXT,
		output TEXT,
		tokens INTEGER,
		success INTEGER NOT NULL DEFAULT 0,
		created_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_attacks_session ON attacks(session_id);`

	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}

	// Databases created before hashes were recorded lack the column
	var hasHashColumn bool
	err = db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('attempts') WHERE name='average_hash'").Scan(&hasHashColumn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error checking for average_hash column: %w", err)
	}
	if !hasHashColumn {
		if _, err = db.Exec("ALTER TABLE attempts ADD COLUMN average_hash TEXT;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("error adding average_hash column: %w", err)
		}
		logging.DebugLog("Added 'average_hash' column to existing database schema")
	}

	return db, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// StoreAttempt inserts an attempt and fills in its ID and creation time
func StoreAttempt(db *sql.DB, attempt *types.Attempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	stmt, err := db.Prepare(`
		INSERT INTO attempts (
			session_id, number, prompt, metric, loss, is_best, image_png, average_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for attempt %d: %w", attempt.Number, err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(
		attempt.SessionID,
		attempt.Number,
		attempt.Prompt,
		attempt.Metric,
		attempt.Loss,
		boolToInt(attempt.IsBest),
		attempt.ImagePNG,
		attempt.ImageHash,
		attempt.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("cannot insert attempt %d of session %s: %w", attempt.Number, attempt.SessionID, err)
	}

	if attempt.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("cannot read attempt id: %w", err)
	}
	return nil
}

const attemptColumns = `id, session_id, number, prompt, metric, loss, is_best, image_png, COALESCE(average_hash, ''), created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (types.Attempt, error) {
	var a types.Attempt
	var isBest int
	var created string
	err := row.Scan(&a.ID, &a.SessionID, &a.Number, &a.Prompt, &a.Metric, &a.Loss, &isBest, &a.ImagePNG, &a.ImageHash, &created)
	if err != nil {
		return a, err
	}
	a.IsBest = isBest != 0
	if a.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return a, fmt.Errorf("bad timestamp %q on attempt %d: %w", created, a.ID, err)
	}
	return a, nil
}

// BestAttempt returns the lowest-loss attempt of a session. Ties go to the
// earliest attempt.
func BestAttempt(db *sql.DB, sessionID string) (*types.Attempt, error) {
	row := db.QueryRow(`SELECT `+attemptColumns+` FROM attempts
		WHERE session_id = ? ORDER BY loss ASC, number ASC LIMIT 1`, sessionID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("best attempt of session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("best attempt of session %s: %w", sessionID, err)
	}
	return &a, nil
}

// ListAttempts returns the attempts of a session in submission order
func ListAttempts(db *sql.DB, sessionID string) ([]types.Attempt, error) {
	rows, err := db.Query(`SELECT `+attemptColumns+` FROM attempts
		WHERE session_id = ? ORDER BY number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing attempts of session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var attempts []types.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// StoreAttack inserts one attack round and fills in its ID and creation time
func StoreAttack(db *sql.DB, record *types.AttackRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	res, err := db.Exec(`
		INSERT INTO attacks (session_id, keyword, attack, output, tokens, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID,
		record.Keyword,
		record.Attack,
		record.Output,
		record.Tokens,
		boolToInt(record.Success),
		record.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("cannot insert attack for session %s: %w", record.SessionID, err)
	}
	if record.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("cannot read attack id: %w", err)
	}
	return nil
}

// ListAttacks returns the attack rounds of a session in order
func ListAttacks(db *sql.DB, sessionID string) ([]types.AttackRecord, error) {
	rows, err := db.Query(`SELECT id, session_id, keyword, attack, output, tokens, success, created_at
		FROM attacks WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing attacks of session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var records []types.AttackRecord
	for rows.Next() {
		var r types.AttackRecord
		var success int
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Keyword, &r.Attack, &r.Output, &r.Tokens, &success, &created); err != nil {
			return nil, err
		}
		r.Success = success != 0
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("bad timestamp %q on attack %d: %w", created, r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SessionStats summarizes one session across both games
type SessionStats struct {
	Attempts          int
	BestLoss          float64
	Attacks           int
	SuccessfulAttacks int
	TotalTokens       int
}

// GetSessionStats aggregates the stored rows of a session. BestLoss is -1
// when the session has no attempts.
func GetSessionStats(db *sql.DB, sessionID string) (*SessionStats, error) {
	var stats SessionStats
	var best sql.NullFloat64

	err := db.QueryRow("SELECT COUNT(*), MIN(loss) FROM attempts WHERE session_id = ?", sessionID).
		Scan(&stats.Attempts, &best)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	stats.BestLoss = -1
	if best.Valid {
		stats.BestLoss = best.Float64
	}

	err = db.QueryRow("SELECT COUNT(*), COALESCE(SUM(success), 0), COALESCE(SUM(tokens), 0) FROM attacks WHERE session_id = ?", sessionID).
		Scan(&stats.Attacks, &stats.SuccessfulAttacks, &stats.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to count attacks: %w", err)
	}

	return &stats, nil
}
