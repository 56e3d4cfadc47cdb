package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/forum"
)

var (
	threadColumns = []string{
		"id", "user_id", "category", "title", "body", "tags", "reply_count", "last_reply_at", "created_at", "updated_at",
	}
	replyColumns = []string{"id", "thread_id", "user_id", "body", "created_at"}
)

type (
	threadRow struct {
		ID          string         `db:"id"`
		UserID      string         `db:"user_id"`
		Category    string         `db:"category"`
		Title       string         `db:"title"`
		Body        string         `db:"body"`
		Tags        pq.StringArray `db:"tags"`
		ReplyCount  int            `db:"reply_count"`
		LastReplyAt *time.Time     `db:"last_reply_at"`
		CreatedAt   time.Time      `db:"created_at"`
		UpdatedAt   time.Time      `db:"updated_at"`
	}

	replyRow struct {
		ID        string    `db:"id"`
		ThreadID  string    `db:"thread_id"`
		UserID    string    `db:"user_id"`
		Body      string    `db:"body"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (row threadRow) toThread() forum.Thread {
	tags := []string(row.Tags)
	if tags == nil {
		tags = []string{}
	}
	return forum.Thread{
		ID:          row.ID,
		UserID:      row.UserID,
		Category:    row.Category,
		Title:       row.Title,
		Body:        row.Body,
		Tags:        tags,
		ReplyCount:  row.ReplyCount,
		LastReplyAt: row.LastReplyAt,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type forumRepository struct {
	db *sqlx.DB
}

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(db *sqlx.DB) *forumRepository {
	return &forumRepository{db: db}
}

func (repo *forumRepository) CreateThread(ctx context.Context, t forum.Thread) (forum.Thread, error) {
	t.ID = newID()
	query, args, err := psql.Insert("forum_threads").
		Columns(threadColumns...).
		Values(t.ID, t.UserID, t.Category, t.Title, t.Body, pq.StringArray(t.Tags), t.ReplyCount, t.LastReplyAt,
			t.CreatedAt, t.UpdatedAt).
		ToSql()
	if err != nil {
		return forum.Thread{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return forum.Thread{}, errors.Wrap(err, "inserting thread")
	}
	return t, nil
}

func (repo *forumRepository) GetThread(ctx context.Context, id string) (forum.Thread, error) {
	query, args, err := psql.Select(threadColumns...).From("forum_threads").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return forum.Thread{}, errors.Wrap(err, "building query")
	}
	var row threadRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return forum.Thread{}, trapNoRowsErr(err, forum.ErrNotFound)
	}
	return row.toThread(), nil
}

func (repo *forumRepository) QueryThreads(ctx context.Context, filter forum.QueryFilter, page core.Page) ([]forum.Thread, error) {
	builder := psql.Select(threadColumns...).
		From("forum_threads").
		OrderBy("COALESCE(last_reply_at, created_at) DESC")
	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"category": filter.Category})
	}
	if filter.Tag != "" {
		builder = builder.Where("? = ANY(tags)", filter.Tag)
	}
	if filter.Search != "" {
		builder = builder.Where(ilike(filter.Search, "title", "body"))
	}
	query, args, err := paginate(builder, page).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []threadRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting threads")
	}
	threads := make([]forum.Thread, 0, len(rows))
	for _, row := range rows {
		threads = append(threads, row.toThread())
	}
	return threads, nil
}

func (repo *forumRepository) UpdateThread(ctx context.Context, t forum.Thread) (forum.Thread, error) {
	query, args, err := psql.Update("forum_threads").
		SetMap(map[string]interface{}{
			"category":   t.Category,
			"title":      t.Title,
			"body":       t.Body,
			"tags":       pq.StringArray(t.Tags),
			"updated_at": t.UpdatedAt,
		}).
		Where(sq.Eq{"id": t.ID}).
		Suffix("RETURNING " + joinColumns(threadColumns)).
		ToSql()
	if err != nil {
		return forum.Thread{}, errors.Wrap(err, "building query")
	}
	var row threadRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return forum.Thread{}, trapNoRowsErr(err, forum.ErrNotFound)
	}
	return row.toThread(), nil
}

func (repo *forumRepository) DeleteThread(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "forum_threads", id, forum.ErrNotFound)
}

func (repo *forumRepository) CreateReply(ctx context.Context, r forum.Reply) (forum.Reply, error) {
	r.ID = newID()
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psql.Update("forum_threads").
		Set("reply_count", sq.Expr("reply_count + 1")).
		Set("last_reply_at", r.CreatedAt).
		Where(sq.Eq{"id": r.ThreadID}).
		ToSql()
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "building query")
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "bumping reply count")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return forum.Reply{}, forum.ErrNotFound
	}

	query, args, err = psql.Insert("forum_replies").
		Columns(replyColumns...).
		Values(r.ID, r.ThreadID, r.UserID, r.Body, r.CreatedAt).
		ToSql()
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "building query")
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return forum.Reply{}, errors.Wrap(err, "inserting reply")
	}
	if err := tx.Commit(); err != nil {
		return forum.Reply{}, errors.Wrap(err, "committing transaction")
	}
	return r, nil
}

func (repo *forumRepository) QueryReplies(ctx context.Context, threadID string, page core.Page) ([]forum.Reply, error) {
	builder := psql.Select(replyColumns...).
		From("forum_replies").
		Where(sq.Eq{"thread_id": threadID}).
		OrderBy("created_at ASC")
	query, args, err := paginate(builder, page).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []replyRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting replies")
	}
	replies := make([]forum.Reply, 0, len(rows))
	for _, row := range rows {
		replies = append(replies, forum.Reply{
			ID:        row.ID,
			ThreadID:  row.ThreadID,
			UserID:    row.UserID,
			Body:      row.Body,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return replies, nil
}
