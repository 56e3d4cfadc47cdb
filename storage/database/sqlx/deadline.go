package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core/deadline"
)

var (
	deadlineColumns = []string{
		"id", "user_id", "application_id", "title", "description", "kind", "priority", "due_at", "completed",
		"completed_at", "created_at", "updated_at",
	}
	reminderColumns = []string{"id", "deadline_id", "user_id", "trigger_at", "sent_at", "attempts", "last_error", "retry_at"}
)

// claimRemindersQuery leases due reminders. Rows locked by a concurrent pass are skipped.
const claimRemindersQuery = `
WITH due AS (
	SELECT r.id
	FROM reminders r
	JOIN deadlines d ON d.id = r.deadline_id
	WHERE r.sent_at IS NULL
	  AND r.trigger_at <= $1
	  AND (r.retry_at IS NULL OR r.retry_at <= $1)
	  AND r.attempts < $2
	  AND NOT d.completed
	ORDER BY r.trigger_at
	LIMIT $3
	FOR UPDATE OF r SKIP LOCKED
)
UPDATE reminders r
SET attempts = r.attempts + 1, retry_at = $4
FROM due, deadlines d
WHERE r.id = due.id AND d.id = r.deadline_id
RETURNING r.id, r.deadline_id, r.user_id, r.trigger_at, r.sent_at, r.attempts, r.last_error, r.retry_at,
	d.title, d.kind, d.due_at, d.application_id`

type (
	deadlineRow struct {
		ID            string     `db:"id"`
		UserID        string     `db:"user_id"`
		ApplicationID *string    `db:"application_id"`
		Title         string     `db:"title"`
		Description   string     `db:"description"`
		Kind          string     `db:"kind"`
		Priority      string     `db:"priority"`
		DueAt         time.Time  `db:"due_at"`
		Completed     bool       `db:"completed"`
		CompletedAt   *time.Time `db:"completed_at"`
		CreatedAt     time.Time  `db:"created_at"`
		UpdatedAt     time.Time  `db:"updated_at"`
	}

	reminderRow struct {
		ID         string     `db:"id"`
		DeadlineID string     `db:"deadline_id"`
		UserID     string     `db:"user_id"`
		TriggerAt  time.Time  `db:"trigger_at"`
		SentAt     *time.Time `db:"sent_at"`
		Attempts   int        `db:"attempts"`
		LastError  string     `db:"last_error"`
		RetryAt    *time.Time `db:"retry_at"`
	}

	dueReminderRow struct {
		reminderRow
		Title         string    `db:"title"`
		Kind          string    `db:"kind"`
		DueAt         time.Time `db:"due_at"`
		ApplicationID *string   `db:"application_id"`
	}
)

func (row deadlineRow) toDeadline(reminders []deadline.Reminder) deadline.Deadline {
	if reminders == nil {
		reminders = []deadline.Reminder{}
	}
	return deadline.Deadline{
		ID:            row.ID,
		UserID:        row.UserID,
		ApplicationID: row.ApplicationID,
		Title:         row.Title,
		Description:   row.Description,
		Kind:          row.Kind,
		Priority:      row.Priority,
		DueAt:         row.DueAt.UTC(),
		Completed:     row.Completed,
		CompletedAt:   row.CompletedAt,
		Reminders:     reminders,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func (row reminderRow) toReminder() deadline.Reminder {
	return deadline.Reminder{
		ID:         row.ID,
		DeadlineID: row.DeadlineID,
		UserID:     row.UserID,
		TriggerAt:  row.TriggerAt.UTC(),
		SentAt:     row.SentAt,
		Attempts:   row.Attempts,
		LastError:  row.LastError,
		RetryAt:    row.RetryAt,
	}
}

type deadlineRepository struct {
	db *sqlx.DB
}

var _ deadline.Repository = (*deadlineRepository)(nil) // interface compliance check

func NewDeadlineRepository(db *sqlx.DB) *deadlineRepository {
	return &deadlineRepository{db: db}
}

func (repo *deadlineRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// insertReminders inserts the reminders of d without an ID and returns all of d's reminders.
func insertReminders(ctx context.Context, tx *sqlx.Tx, d deadline.Deadline) ([]deadline.Reminder, error) {
	builder := psql.Insert("reminders").Columns(reminderColumns...)
	var n int
	reminders := make([]deadline.Reminder, 0, len(d.Reminders))
	for _, r := range d.Reminders {
		if r.ID == "" {
			r.ID = newID()
			r.DeadlineID = d.ID
			r.UserID = d.UserID
			builder = builder.Values(r.ID, r.DeadlineID, r.UserID, r.TriggerAt, r.SentAt, r.Attempts, r.LastError, r.RetryAt)
			n++
		}
		reminders = append(reminders, r)
	}
	if n == 0 {
		return reminders, nil
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, errors.Wrap(err, "inserting reminders")
	}
	return reminders, nil
}

func (repo *deadlineRepository) CreateDeadline(ctx context.Context, d deadline.Deadline) (deadline.Deadline, error) {
	d.ID = newID()
	err := repo.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := psql.Insert("deadlines").
			Columns(deadlineColumns...).
			Values(d.ID, d.UserID, d.ApplicationID, d.Title, d.Description, d.Kind, d.Priority, d.DueAt, d.Completed,
				d.CompletedAt, d.CreatedAt, d.UpdatedAt).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "inserting deadline")
		}
		d.Reminders, err = insertReminders(ctx, tx, d)
		return err
	})
	if err != nil {
		return deadline.Deadline{}, err
	}
	return d, nil
}

func (repo *deadlineRepository) remindersOf(ctx context.Context, ids ...string) (map[string][]deadline.Reminder, error) {
	byDeadline := make(map[string][]deadline.Reminder, len(ids))
	if len(ids) == 0 {
		return byDeadline, nil
	}
	query, args, err := psql.Select(reminderColumns...).
		From("reminders").
		Where(sq.Eq{"deadline_id": ids}).
		OrderBy("trigger_at").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []reminderRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting reminders")
	}
	for _, row := range rows {
		byDeadline[row.DeadlineID] = append(byDeadline[row.DeadlineID], row.toReminder())
	}
	return byDeadline, nil
}

func (repo *deadlineRepository) GetDeadline(ctx context.Context, id string) (deadline.Deadline, error) {
	query, args, err := psql.Select(deadlineColumns...).From("deadlines").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return deadline.Deadline{}, errors.Wrap(err, "building query")
	}
	var row deadlineRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return deadline.Deadline{}, trapNoRowsErr(err, deadline.ErrNotFound)
	}
	reminders, err := repo.remindersOf(ctx, row.ID)
	if err != nil {
		return deadline.Deadline{}, err
	}
	return row.toDeadline(reminders[row.ID]), nil
}

func (repo *deadlineRepository) QueryDeadlines(ctx context.Context, filter deadline.QueryFilter) ([]deadline.Deadline, error) {
	builder := psql.Select(deadlineColumns...).From("deadlines").OrderBy("due_at ASC")
	if filter.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.ApplicationID != "" {
		builder = builder.Where(sq.Eq{"application_id": filter.ApplicationID})
	}
	if filter.Completed != nil {
		builder = builder.Where(sq.Eq{"completed": *filter.Completed})
	}
	if filter.DueAfter != nil {
		builder = builder.Where(sq.GtOrEq{"due_at": *filter.DueAfter})
	}
	if filter.DueBefore != nil {
		builder = builder.Where(sq.LtOrEq{"due_at": *filter.DueBefore})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []deadlineRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting deadlines")
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	reminders, err := repo.remindersOf(ctx, ids...)
	if err != nil {
		return nil, err
	}
	deadlines := make([]deadline.Deadline, 0, len(rows))
	for _, row := range rows {
		deadlines = append(deadlines, row.toDeadline(reminders[row.ID]))
	}
	return deadlines, nil
}

func (repo *deadlineRepository) UpdateDeadline(ctx context.Context, d deadline.Deadline, replaceReminders bool) (deadline.Deadline, error) {
	err := repo.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := psql.Update("deadlines").
			SetMap(map[string]interface{}{
				"title":        d.Title,
				"description":  d.Description,
				"kind":         d.Kind,
				"priority":     d.Priority,
				"due_at":       d.DueAt,
				"completed":    d.Completed,
				"completed_at": d.CompletedAt,
				"updated_at":   d.UpdatedAt,
			}).
			Where(sq.Eq{"id": d.ID}).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return errors.Wrap(err, "updating deadline")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return deadline.ErrNotFound
		}
		if !replaceReminders {
			return nil
		}

		query, args, err = psql.Delete("reminders").
			Where(sq.Eq{"deadline_id": d.ID, "sent_at": nil}).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "deleting unsent reminders")
		}
		unsent := d
		unsent.Reminders = make([]deadline.Reminder, 0, len(d.Reminders))
		for _, r := range d.Reminders {
			if !r.IsSent() {
				r.ID = ""
				unsent.Reminders = append(unsent.Reminders, r)
			}
		}
		_, err = insertReminders(ctx, tx, unsent)
		return err
	})
	if err != nil {
		return deadline.Deadline{}, err
	}
	return repo.GetDeadline(ctx, d.ID)
}

func (repo *deadlineRepository) DeleteDeadline(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "deadlines", id, deadline.ErrNotFound)
}

func (repo *deadlineRepository) ClaimDueReminders(ctx context.Context, now time.Time, limit, maxAttempts int, lease time.Duration) ([]deadline.DueReminder, error) {
	var rows []dueReminderRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, claimRemindersQuery, now, maxAttempts, limit, now.Add(lease)); err != nil {
		return nil, errors.Wrap(err, "claiming due reminders")
	}
	due := make([]deadline.DueReminder, 0, len(rows))
	for _, row := range rows {
		due = append(due, deadline.DueReminder{
			Reminder:      row.toReminder(),
			Title:         row.Title,
			Kind:          row.Kind,
			DueAt:         row.DueAt.UTC(),
			ApplicationID: row.ApplicationID,
		})
	}
	return due, nil
}

func (repo *deadlineRepository) MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error {
	query, args, err := psql.Update("reminders").
		Set("sent_at", sentAt).
		Set("retry_at", nil).
		Set("last_error", "").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "marking reminder sent")
	}
	return nil
}

func (repo *deadlineRepository) MarkReminderFailed(ctx context.Context, id string, errMsg string, retryAt time.Time) error {
	query, args, err := psql.Update("reminders").
		Set("last_error", errMsg).
		Set("retry_at", retryAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "marking reminder failed")
	}
	return nil
}
