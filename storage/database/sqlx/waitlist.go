package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/waitlist"
)

var waitlistColumns = []string{"id", "email", "name", "source", "country", "created_at"}

type waitlistRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Source    string    `db:"source"`
	Country   string    `db:"country"`
	CreatedAt time.Time `db:"created_at"`
}

type waitlistRepository struct {
	db *sqlx.DB
}

var _ waitlist.Repository = (*waitlistRepository)(nil) // interface compliance check

func NewWaitlistRepository(db *sqlx.DB) *waitlistRepository {
	return &waitlistRepository{db: db}
}

func (repo *waitlistRepository) CreateEntry(ctx context.Context, e waitlist.Entry) (waitlist.Entry, error) {
	e.ID = newID()
	query, args, err := psql.Insert("waitlist").
		Columns(waitlistColumns...).
		Values(e.ID, e.Email, e.Name, e.Source, e.Country, e.CreatedAt).
		ToSql()
	if err != nil {
		return waitlist.Entry{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err, "") {
			return waitlist.Entry{}, waitlist.ErrAlreadyJoined
		}
		return waitlist.Entry{}, errors.Wrap(err, "inserting waitlist entry")
	}
	return e, nil
}

func (repo *waitlistRepository) QueryEntries(ctx context.Context, page core.Page) ([]waitlist.Entry, error) {
	query, args, err := paginate(psql.Select(waitlistColumns...).From("waitlist").OrderBy("created_at DESC"), page).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []waitlistRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting waitlist entries")
	}
	entries := make([]waitlist.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, waitlist.Entry{
			ID:        row.ID,
			Email:     row.Email,
			Name:      row.Name,
			Source:    row.Source,
			Country:   row.Country,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return entries, nil
}

func (repo *waitlistRepository) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, repo.db, &count, "SELECT COUNT(*) FROM waitlist"); err != nil {
		return 0, errors.Wrap(err, "counting waitlist entries")
	}
	return count, nil
}
