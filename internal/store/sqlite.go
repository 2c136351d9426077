package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Dumbogiflen/Manifest-system/internal/constants"
	apperrors "github.com/Dumbogiflen/Manifest-system/internal/errors"
	"github.com/Dumbogiflen/Manifest-system/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	direction TEXT NOT NULL,
	text TEXT NOT NULL,
	ts DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'sent',
	remote_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts);

CREATE TABLE IF NOT EXISTS lifts (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	totals_jumpers INTEGER NOT NULL,
	totals_canopies INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lift_rows (
	lift_id INTEGER NOT NULL REFERENCES lifts(id) ON DELETE CASCADE,
	alt INTEGER NOT NULL,
	jumpers INTEGER NOT NULL,
	overflights INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lift_rows_lift ON lift_rows(lift_id);

CREATE TABLE IF NOT EXISTS quick_replies (
	position INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL UNIQUE
);
`

// SQLiteStore is the durable Store backend. All calls are bounded by a
// timeout so a wedged disk never blocks a request handler indefinitely.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if len(path) == 0 || path[0] == '\x00' {
		return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "invalid database path")
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, fmt.Sprintf("failed to ping database (close error: %v)", closeErr))
		}
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodePersistence, "failed to ping database")
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, fmt.Sprintf("failed to initialize schema (close error: %v)", closeErr))
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to initialize schema")
	}

	return &SQLiteStore{
		db:      db,
		timeout: constants.DefaultStoreTimeoutSec * time.Second,
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (direction, text, ts, status, remote_id) VALUES (?, ?, ?, ?, ?)`,
		msg.Direction, msg.Text, msg.Timestamp, msg.Status, msg.RemoteID,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to save message")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to read message id")
	}
	msg.ID = id

	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = constants.DefaultMessageLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, direction, text, ts, status, remote_id FROM messages ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to list messages")
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.Direction, &msg.Text, &msg.Timestamp, &msg.Status, &msg.RemoteID); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to scan message")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to iterate messages")
	}

	return messages, nil
}

func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ? WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to update message status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to get affected rows")
	}

	return affected > 0, nil
}

// UpsertLift replaces the stored lift wholesale: the lifts row is upserted
// and lift_rows are deleted and re-inserted within one transaction.
func (s *SQLiteStore) UpsertLift(ctx context.Context, lift *models.Lift) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if lift.CreatedAt.IsZero() {
		lift.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lifts (id, name, status, totals_jumpers, totals_canopies, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			totals_jumpers = excluded.totals_jumpers,
			totals_canopies = excluded.totals_canopies,
			created_at = excluded.created_at`,
		lift.ID, lift.Name, lift.Status, lift.Totals.Jumpers, lift.Totals.Canopies, lift.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to upsert lift")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM lift_rows WHERE lift_id = ?`, lift.ID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to clear lift rows")
	}

	for _, row := range lift.Rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lift_rows (lift_id, alt, jumpers, overflights) VALUES (?, ?, ?, ?)`,
			lift.ID, row.Alt, row.Jumpers, row.Overflights,
		)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to insert lift row")
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to commit lift upsert")
	}

	return nil
}

func (s *SQLiteStore) ListLifts(ctx context.Context) ([]models.Lift, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, totals_jumpers, totals_canopies, created_at FROM lifts ORDER BY id DESC`,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to list lifts")
	}
	defer rows.Close()

	var lifts []models.Lift
	for rows.Next() {
		var lift models.Lift
		if err := rows.Scan(&lift.ID, &lift.Name, &lift.Status, &lift.Totals.Jumpers, &lift.Totals.Canopies, &lift.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to scan lift")
		}
		lifts = append(lifts, lift)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to iterate lifts")
	}

	for i := range lifts {
		liftRows, err := s.listLiftRows(ctx, lifts[i].ID)
		if err != nil {
			return nil, err
		}
		lifts[i].Rows = liftRows
	}

	return lifts, nil
}

func (s *SQLiteStore) listLiftRows(ctx context.Context, liftID int64) ([]models.LiftRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alt, jumpers, overflights FROM lift_rows WHERE lift_id = ? ORDER BY rowid`,
		liftID,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to list lift rows")
	}
	defer rows.Close()

	var result []models.LiftRow
	for rows.Next() {
		var row models.LiftRow
		if err := rows.Scan(&row.Alt, &row.Jumpers, &row.Overflights); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to scan lift row")
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to iterate lift rows")
	}

	return result, nil
}

func (s *SQLiteStore) UpdateLiftStatus(ctx context.Context, id int64, status models.LiftStatus) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`UPDATE lifts SET status = ? WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to update lift status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to get affected rows")
	}

	return affected > 0, nil
}

func (s *SQLiteStore) AddQuickReply(ctx context.Context, text string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO quick_replies (text) VALUES (?)`,
		text,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to add quick reply")
	}

	return nil
}

func (s *SQLiteStore) RemoveQuickReply(ctx context.Context, text string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM quick_replies WHERE text = ?`,
		text,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to remove quick reply")
	}

	return nil
}

func (s *SQLiteStore) ListQuickReplies(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT text FROM quick_replies ORDER BY position`,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to list quick replies")
	}
	defer rows.Close()

	var replies []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to scan quick reply")
		}
		replies = append(replies, text)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to iterate quick replies")
	}

	return replies, nil
}
