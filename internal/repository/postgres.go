package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glizzus/mustard/internal/schedule"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// WithTx locks the owner row for the duration of the transaction, so two
// transactions for the same owner run one after the other.
func (s *PostgresStore) WithTx(ctx context.Context, ownerID int64, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "ownerID", ownerID, "error", err)
		}
	}()

	const ensureOwnerQuery = `
	INSERT INTO owners (id)
	VALUES ($1)
	ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, ensureOwnerQuery, ownerID); err != nil {
		return fmt.Errorf("failed to ensure owner: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT id FROM owners WHERE id = $1 FOR UPDATE`, ownerID); err != nil {
		return fmt.Errorf("failed to lock owner: %w", err)
	}

	if err := fn(&postgresTx{tx: tx, ownerID: ownerID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Owners(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM owners ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to collect owners: %w", err)
	}
	return ids, nil
}

type postgresTx struct {
	tx      pgx.Tx
	ownerID int64
}

var _ Tx = (*postgresTx)(nil)

func (t *postgresTx) DeleteSetups(ctx context.Context) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM setups WHERE owner_id = $1`, t.ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete setups: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *postgresTx) InsertSetup(ctx context.Context, setup Setup) (int64, error) {
	const query = `
	INSERT INTO setups (owner_id, category, title, tags, tweet)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query, t.ownerID, setup.Category, setup.Title, setup.Tags, setup.Tweet).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert setup: %w", err)
	}
	return id, nil
}

func (t *postgresTx) ListSetups(ctx context.Context) ([]Setup, error) {
	const query = `
	SELECT id, owner_id, category, title, tags, tweet
	FROM setups
	WHERE owner_id = $1
	ORDER BY id
	`
	rows, err := t.tx.Query(ctx, query, t.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query setups: %w", err)
	}
	setups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Setup, error) {
		var s Setup
		err := row.Scan(&s.ID, &s.OwnerID, &s.Category, &s.Title, &s.Tags, &s.Tweet)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan setups: %w", err)
	}
	return setups, nil
}

func (t *postgresTx) ListTimerIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT id FROM timers WHERE owner_id = $1 ORDER BY id`, t.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timer ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect timer ids: %w", err)
	}
	return ids, nil
}

func (t *postgresTx) ListTimers(ctx context.Context) ([]Timer, error) {
	const query = `
	SELECT id, owner_id, title, delta, maxtime, styling
	FROM timers
	WHERE owner_id = $1
	ORDER BY id
	`
	rows, err := t.tx.Query(ctx, query, t.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}
	timers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Timer, error) {
		var tm Timer
		err := row.Scan(&tm.ID, &tm.OwnerID, &tm.Title, &tm.Delta, &tm.MaxTime, &tm.Styling)
		return tm, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan timers: %w", err)
	}
	return timers, nil
}

func (t *postgresTx) InsertTimer(ctx context.Context, id string, patch TimerPatch) error {
	const query = `
	INSERT INTO timers (id, owner_id, title, delta, maxtime, styling)
	VALUES (
		$1,
		$2,
		COALESCE($3::text, ''),
		COALESCE($4::integer, 0),
		COALESCE($5::integer, $7::integer),
		COALESCE($6::text, '')
	)
	`
	_, err := t.tx.Exec(ctx, query, id, t.ownerID, patch.Title, patch.Delta, patch.MaxTime, patch.Styling, DefaultTimerMaxTime)
	if err != nil {
		return fmt.Errorf("failed to insert timer %s: %w", id, err)
	}
	return nil
}

func (t *postgresTx) UpdateTimer(ctx context.Context, id string, patch TimerPatch) error {
	const query = `
	UPDATE timers SET
		title = COALESCE($3::text, title),
		delta = COALESCE($4::integer, delta),
		maxtime = COALESCE($5::integer, maxtime),
		styling = COALESCE($6::text, styling)
	WHERE id = $1 AND owner_id = $2
	`
	_, err := t.tx.Exec(ctx, query, id, t.ownerID, patch.Title, patch.Delta, patch.MaxTime, patch.Styling)
	if err != nil {
		return fmt.Errorf("failed to update timer %s: %w", id, err)
	}
	return nil
}

func (t *postgresTx) DeleteTimer(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM timers WHERE id = $1 AND owner_id = $2`, id, t.ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete timer %s: %w", id, err)
	}
	return nil
}

func (t *postgresTx) GetSchedule(ctx context.Context) (ScheduleConfig, error) {
	const query = `
	SELECT timezone, schedule::text, tweet_offset
	FROM owners
	WHERE id = $1
	`
	var cfg ScheduleConfig
	var raw string
	if err := t.tx.QueryRow(ctx, query, t.ownerID).Scan(&cfg.Timezone, &raw, &cfg.TweetOffset); err != nil {
		return cfg, fmt.Errorf("failed to query schedule: %w", err)
	}
	weekly, err := decodeWeekly(raw)
	if err != nil {
		return cfg, err
	}
	cfg.Weekly = weekly
	return cfg, nil
}

func (t *postgresTx) SetSchedule(ctx context.Context, timezone string, weekly schedule.WeeklySchedule) error {
	raw, err := encodeWeekly(weekly)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `UPDATE owners SET timezone = $2, schedule = $3::jsonb WHERE id = $1`, t.ownerID, timezone, raw)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return nil
}

func (t *postgresTx) SetTweetOffset(ctx context.Context, offset int) error {
	_, err := t.tx.Exec(ctx, `UPDATE owners SET tweet_offset = $2 WHERE id = $1`, t.ownerID, offset)
	if err != nil {
		return fmt.Errorf("failed to update tweet offset: %w", err)
	}
	return nil
}

func (t *postgresTx) GetChecklist(ctx context.Context) (string, error) {
	var checklist string
	if err := t.tx.QueryRow(ctx, `SELECT checklist FROM owners WHERE id = $1`, t.ownerID).Scan(&checklist); err != nil {
		return "", fmt.Errorf("failed to query checklist: %w", err)
	}
	return checklist, nil
}

func (t *postgresTx) SetChecklist(ctx context.Context, checklist string) error {
	_, err := t.tx.Exec(ctx, `UPDATE owners SET checklist = $2 WHERE id = $1`, t.ownerID, checklist)
	if err != nil {
		return fmt.Errorf("failed to update checklist: %w", err)
	}
	return nil
}

func encodeWeekly(weekly schedule.WeeklySchedule) (string, error) {
	raw, err := json.Marshal(weekly.Normalized())
	if err != nil {
		return "", fmt.Errorf("failed to encode schedule: %w", err)
	}
	return string(raw), nil
}

func decodeWeekly(raw string) (schedule.WeeklySchedule, error) {
	var weekly schedule.WeeklySchedule
	if raw == "" {
		return weekly.Normalized(), nil
	}
	if err := json.Unmarshal([]byte(raw), &weekly); err != nil {
		return weekly, fmt.Errorf("failed to decode schedule: %w", err)
	}
	return weekly.Normalized(), nil
}
