package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glizzus/mustard/internal/schedule"
)

// SQLiteStore keeps the same records as PostgresStore in a single SQLite
// file. Transactions are expected to begin IMMEDIATE (see
// datalayer.OpenSQLite), which serialises writers.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) WithTx(ctx context.Context, ownerID int64, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("failed to rollback transaction", "ownerID", ownerID, "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, `INSERT INTO owners (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, ownerID); err != nil {
		return fmt.Errorf("failed to ensure owner: %w", err)
	}

	if err := fn(&sqliteTx{tx: tx, ownerID: ownerID}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Owners(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM owners ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate owners: %w", err)
	}
	return ids, nil
}

type sqliteTx struct {
	tx      *sql.Tx
	ownerID int64
}

var _ Tx = (*sqliteTx)(nil)

func (t *sqliteTx) DeleteSetups(ctx context.Context) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM setups WHERE owner_id = ?`, t.ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete setups: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted setups: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) InsertSetup(ctx context.Context, setup Setup) (int64, error) {
	const query = `
	INSERT INTO setups (owner_id, category, title, tags, tweet)
	VALUES (?, ?, ?, ?, ?)
	`
	res, err := t.tx.ExecContext(ctx, query, t.ownerID, setup.Category, setup.Title, setup.Tags, setup.Tweet)
	if err != nil {
		return 0, fmt.Errorf("failed to insert setup: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read setup id: %w", err)
	}
	return id, nil
}

func (t *sqliteTx) ListSetups(ctx context.Context) ([]Setup, error) {
	const query = `
	SELECT id, owner_id, category, title, tags, tweet
	FROM setups
	WHERE owner_id = ?
	ORDER BY id
	`
	rows, err := t.tx.QueryContext(ctx, query, t.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query setups: %w", err)
	}
	defer rows.Close()

	setups := make([]Setup, 0)
	for rows.Next() {
		var s Setup
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Category, &s.Title, &s.Tags, &s.Tweet); err != nil {
			return nil, fmt.Errorf("failed to scan setup: %w", err)
		}
		setups = append(setups, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate setups: %w", err)
	}
	return setups, nil
}

func (t *sqliteTx) ListTimerIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM timers WHERE owner_id = ? ORDER BY id`, t.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timer ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan timer id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timer ids: %w", err)
	}
	return ids, nil
}

func (t *sqliteTx) ListTimers(ctx context.Context) ([]Timer, error) {
	const query = `
	SELECT id, owner_id, title, delta, maxtime, styling
	FROM timers
	WHERE owner_id = ?
	ORDER BY id
	`
	rows, err := t.tx.QueryContext(ctx, query, t.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}
	defer rows.Close()

	timers := make([]Timer, 0)
	for rows.Next() {
		var tm Timer
		if err := rows.Scan(&tm.ID, &tm.OwnerID, &tm.Title, &tm.Delta, &tm.MaxTime, &tm.Styling); err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}
		timers = append(timers, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timers: %w", err)
	}
	return timers, nil
}

func (t *sqliteTx) InsertTimer(ctx context.Context, id string, patch TimerPatch) error {
	const query = `
	INSERT INTO timers (id, owner_id, title, delta, maxtime, styling)
	VALUES (?, ?, COALESCE(?, ''), COALESCE(?, 0), COALESCE(?, ?), COALESCE(?, ''))
	`
	_, err := t.tx.ExecContext(ctx, query,
		id, t.ownerID, nullable(patch.Title), nullable(patch.Delta),
		nullable(patch.MaxTime), DefaultTimerMaxTime, nullable(patch.Styling),
	)
	if err != nil {
		return fmt.Errorf("failed to insert timer %s: %w", id, err)
	}
	return nil
}

func (t *sqliteTx) UpdateTimer(ctx context.Context, id string, patch TimerPatch) error {
	const query = `
	UPDATE timers SET
		title = COALESCE(?, title),
		delta = COALESCE(?, delta),
		maxtime = COALESCE(?, maxtime),
		styling = COALESCE(?, styling)
	WHERE id = ? AND owner_id = ?
	`
	_, err := t.tx.ExecContext(ctx, query,
		nullable(patch.Title), nullable(patch.Delta), nullable(patch.MaxTime), nullable(patch.Styling),
		id, t.ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update timer %s: %w", id, err)
	}
	return nil
}

func (t *sqliteTx) DeleteTimer(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM timers WHERE id = ? AND owner_id = ?`, id, t.ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete timer %s: %w", id, err)
	}
	return nil
}

func (t *sqliteTx) GetSchedule(ctx context.Context) (ScheduleConfig, error) {
	var cfg ScheduleConfig
	var raw string
	err := t.tx.QueryRowContext(ctx, `SELECT timezone, schedule, tweet_offset FROM owners WHERE id = ?`, t.ownerID).
		Scan(&cfg.Timezone, &raw, &cfg.TweetOffset)
	if err != nil {
		return cfg, fmt.Errorf("failed to query schedule: %w", err)
	}
	weekly, err := decodeWeekly(raw)
	if err != nil {
		return cfg, err
	}
	cfg.Weekly = weekly
	return cfg, nil
}

func (t *sqliteTx) SetSchedule(ctx context.Context, timezone string, weekly schedule.WeeklySchedule) error {
	raw, err := encodeWeekly(weekly)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE owners SET timezone = ?, schedule = ? WHERE id = ?`, timezone, raw, t.ownerID)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return nil
}

func (t *sqliteTx) SetTweetOffset(ctx context.Context, offset int) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE owners SET tweet_offset = ? WHERE id = ?`, offset, t.ownerID)
	if err != nil {
		return fmt.Errorf("failed to update tweet offset: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetChecklist(ctx context.Context) (string, error) {
	var checklist string
	if err := t.tx.QueryRowContext(ctx, `SELECT checklist FROM owners WHERE id = ?`, t.ownerID).Scan(&checklist); err != nil {
		return "", fmt.Errorf("failed to query checklist: %w", err)
	}
	return checklist, nil
}

func (t *sqliteTx) SetChecklist(ctx context.Context, checklist string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE owners SET checklist = ? WHERE id = ?`, checklist, t.ownerID)
	if err != nil {
		return fmt.Errorf("failed to update checklist: %w", err)
	}
	return nil
}

// nullable turns an unset patch field into SQL NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
