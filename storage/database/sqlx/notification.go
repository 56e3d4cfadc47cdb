package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/notification"
)

var (
	preferencesColumns  = []string{"user_id", "channels", "types", "reminder_lead_hours", "phone", "timezone", "updated_at"}
	notificationColumns = []string{"id", "user_id", "type", "title", "message", "data", "channels", "is_read", "read_at", "created_at"}
)

type (
	preferencesRow struct {
		UserID            string                      `db:"user_id"`
		Channels          jsonColumn[map[string]bool] `db:"channels"`
		Types             jsonColumn[map[string]bool] `db:"types"`
		ReminderLeadHours pq.Int64Array               `db:"reminder_lead_hours"`
		Phone             string                      `db:"phone"`
		Timezone          string                      `db:"timezone"`
		UpdatedAt         time.Time                   `db:"updated_at"`
	}

	notificationRow struct {
		ID        string                             `db:"id"`
		UserID    string                             `db:"user_id"`
		Type      string                             `db:"type"`
		Title     string                             `db:"title"`
		Message   string                             `db:"message"`
		Data      jsonColumn[map[string]interface{}] `db:"data"`
		Channels  pq.StringArray                     `db:"channels"`
		IsRead    bool                               `db:"is_read"`
		ReadAt    *time.Time                         `db:"read_at"`
		CreatedAt time.Time                          `db:"created_at"`
	}
)

func (row preferencesRow) toPreferences() notification.Preferences {
	hours := make([]int, 0, len(row.ReminderLeadHours))
	for _, h := range row.ReminderLeadHours {
		hours = append(hours, int(h))
	}
	p := notification.Preferences{
		UserID:            row.UserID,
		Channels:          row.Channels.V,
		Types:             row.Types.V,
		ReminderLeadHours: hours,
		Phone:             row.Phone,
		Timezone:          row.Timezone,
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
	if p.Channels == nil {
		p.Channels = map[string]bool{}
	}
	if p.Types == nil {
		p.Types = map[string]bool{}
	}
	return p
}

func (row notificationRow) toNotification() notification.Notification {
	n := notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		Data:      row.Data.V,
		Channels:  []string(row.Channels),
		IsRead:    row.IsRead,
		ReadAt:    row.ReadAt,
		CreatedAt: row.CreatedAt.UTC(),
	}
	if n.Data == nil {
		n.Data = map[string]interface{}{}
	}
	if n.Channels == nil {
		n.Channels = []string{}
	}
	return n
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) GetPreferences(ctx context.Context, userID string) (notification.Preferences, error) {
	query, args, err := psql.Select(preferencesColumns...).
		From("notification_preferences").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return notification.Preferences{}, errors.Wrap(err, "building query")
	}
	var row preferencesRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return notification.Preferences{}, trapNoRowsErr(err, notification.ErrPreferencesNotFound)
	}
	return row.toPreferences(), nil
}

func (repo *notificationRepository) SavePreferences(ctx context.Context, p notification.Preferences) (notification.Preferences, error) {
	hours := make(pq.Int64Array, 0, len(p.ReminderLeadHours))
	for _, h := range p.ReminderLeadHours {
		hours = append(hours, int64(h))
	}
	query, args, err := psql.Insert("notification_preferences").
		Columns(preferencesColumns...).
		Values(p.UserID, jsonOf(p.Channels), jsonOf(p.Types), hours, p.Phone, p.Timezone, p.UpdatedAt).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			channels = EXCLUDED.channels,
			types = EXCLUDED.types,
			reminder_lead_hours = EXCLUDED.reminder_lead_hours,
			phone = EXCLUDED.phone,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return notification.Preferences{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return notification.Preferences{}, errors.Wrap(err, "saving preferences")
	}
	return p, nil
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = newID()
	query, args, err := psql.Insert("notifications").
		Columns(notificationColumns...).
		Values(n.ID, n.UserID, n.Type, n.Title, n.Message, jsonOf(n.Data), pq.StringArray(n.Channels), n.IsRead, n.ReadAt,
			n.CreatedAt).
		ToSql()
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, unreadOnly bool, page core.Page) ([]notification.Notification, error) {
	builder := psql.Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC")
	if unreadOnly {
		builder = builder.Where(sq.Eq{"is_read": false})
	}
	query, args, err := paginate(builder, page).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []notificationRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}
	list := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toNotification())
	}
	return list, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("notifications").
		Where(sq.Eq{"user_id": userID, "is_read": false}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	var count int
	if err := sqlx.GetContext(ctx, repo.db, &count, query, args...); err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return count, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, userID, id string, readAt time.Time) (notification.Notification, error) {
	query, args, err := psql.Update("notifications").
		Set("is_read", true).
		Set("read_at", sq.Expr("COALESCE(read_at, ?)", readAt)).
		Where(sq.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING " + joinColumns(notificationColumns)).
		ToSql()
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "building query")
	}
	var row notificationRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound)
	}
	return row.toNotification(), nil
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error) {
	query, args, err := psql.Update("notifications").
		Set("is_read", true).
		Set("read_at", readAt).
		Where(sq.Eq{"user_id": userID, "is_read": false}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting marked notifications")
	}
	return int(n), nil
}
