package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
)

var applicationColumns = []string{
	"id", "user_id", "university", "program", "country", "degree", "intake", "status", "deadline", "portal_url",
	"notes", "status_history", "submitted_at", "decided_at", "created_at", "updated_at",
}

type applicationRow struct {
	ID            string                                `db:"id"`
	UserID        string                                `db:"user_id"`
	University    string                                `db:"university"`
	Program       string                                `db:"program"`
	Country       string                                `db:"country"`
	Degree        string                                `db:"degree"`
	Intake        string                                `db:"intake"`
	Status        string                                `db:"status"`
	Deadline      *time.Time                            `db:"deadline"`
	PortalURL     string                                `db:"portal_url"`
	Notes         string                                `db:"notes"`
	StatusHistory jsonColumn[[]application.StatusChange] `db:"status_history"`
	SubmittedAt   *time.Time                            `db:"submitted_at"`
	DecidedAt     *time.Time                            `db:"decided_at"`
	CreatedAt     time.Time                             `db:"created_at"`
	UpdatedAt     time.Time                             `db:"updated_at"`
}

func (row applicationRow) toApplication() application.Application {
	history := row.StatusHistory.V
	if history == nil {
		history = []application.StatusChange{}
	}
	return application.Application{
		ID:            row.ID,
		UserID:        row.UserID,
		University:    row.University,
		Program:       row.Program,
		Country:       row.Country,
		Degree:        row.Degree,
		Intake:        row.Intake,
		Status:        application.Status(row.Status),
		Deadline:      row.Deadline,
		PortalURL:     row.PortalURL,
		Notes:         row.Notes,
		StatusHistory: history,
		SubmittedAt:   row.SubmittedAt,
		DecidedAt:     row.DecidedAt,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

type applicationRepository struct {
	db *sqlx.DB
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(db *sqlx.DB) *applicationRepository {
	return &applicationRepository{db: db}
}

func (repo *applicationRepository) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	app.ID = newID()
	query, args, err := psql.Insert("applications").
		Columns(applicationColumns...).
		Values(app.ID, app.UserID, app.University, app.Program, app.Country, app.Degree, app.Intake, string(app.Status),
			app.Deadline, app.PortalURL, app.Notes, jsonOf(app.StatusHistory), app.SubmittedAt, app.DecidedAt,
			app.CreatedAt, app.UpdatedAt).
		ToSql()
	if err != nil {
		return application.Application{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return application.Application{}, errors.Wrap(err, "inserting application")
	}
	return app, nil
}

func (repo *applicationRepository) GetApplication(ctx context.Context, id string) (application.Application, error) {
	query, args, err := psql.Select(applicationColumns...).From("applications").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return application.Application{}, errors.Wrap(err, "building query")
	}
	var row applicationRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return application.Application{}, trapNoRowsErr(err, application.ErrNotFound)
	}
	return row.toApplication(), nil
}

var applicationOrderings = map[string]string{
	"university": "university",
	"program":    "program",
	"country":    "country",
	"status":     "status",
	"deadline":   "deadline",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (repo *applicationRepository) QueryApplications(ctx context.Context, filter application.QueryFilter, ordering []core.DBOrdering) ([]application.Application, error) {
	builder := psql.Select(applicationColumns...).From("applications")
	if filter.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		builder = builder.Where(sq.Eq{"status": statuses})
	}
	if filter.Country != "" {
		builder = builder.Where(sq.ILike{"country": filter.Country})
	}
	if filter.Search != "" {
		builder = builder.Where(ilike(filter.Search, "university", "program"))
	}
	builder = orderBy(builder, ordering, applicationOrderings, "created_at DESC")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []applicationRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting applications")
	}
	apps := make([]application.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.toApplication())
	}
	return apps, nil
}

func (repo *applicationRepository) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	query, args, err := psql.Update("applications").
		SetMap(map[string]interface{}{
			"university": app.University,
			"program":    app.Program,
			"country":    app.Country,
			"degree":     app.Degree,
			"intake":     app.Intake,
			"deadline":   app.Deadline,
			"portal_url": app.PortalURL,
			"notes":      app.Notes,
			"updated_at": app.UpdatedAt,
		}).
		Where(sq.Eq{"id": app.ID}).
		Suffix("RETURNING " + joinColumns(applicationColumns)).
		ToSql()
	if err != nil {
		return application.Application{}, errors.Wrap(err, "building query")
	}
	var row applicationRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return application.Application{}, trapNoRowsErr(err, application.ErrNotFound)
	}
	return row.toApplication(), nil
}

// ChangeStatus appends the last history entry of app with a jsonb concatenation, guarded by the previous status.
func (repo *applicationRepository) ChangeStatus(ctx context.Context, app application.Application, from application.Status) (application.Application, error) {
	var last []application.StatusChange
	if n := len(app.StatusHistory); n > 0 {
		last = app.StatusHistory[n-1:]
	}
	query, args, err := psql.Update("applications").
		Set("status", string(app.Status)).
		Set("status_history", sq.Expr("status_history || ?::jsonb", jsonOf(last))).
		Set("submitted_at", app.SubmittedAt).
		Set("decided_at", app.DecidedAt).
		Set("updated_at", app.UpdatedAt).
		Where(sq.Eq{"id": app.ID, "status": string(from)}).
		Suffix("RETURNING " + joinColumns(applicationColumns)).
		ToSql()
	if err != nil {
		return application.Application{}, errors.Wrap(err, "building query")
	}
	var row applicationRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		if err = trapNoRowsErr(err, application.ErrStatusConflict); err == application.ErrStatusConflict {
			// tell a concurrent change apart from a deleted application
			if _, getErr := repo.GetApplication(ctx, app.ID); getErr != nil {
				return application.Application{}, getErr
			}
		}
		return application.Application{}, err
	}
	return row.toApplication(), nil
}

func (repo *applicationRepository) DeleteApplication(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "applications", id, application.ErrNotFound)
}

func (repo *applicationRepository) CountByStatus(ctx context.Context, userID string) (map[application.Status]int, error) {
	query, args, err := psql.Select("status", "COUNT(*) AS count").
		From("applications").
		Where(sq.Eq{"user_id": userID}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "counting applications")
	}
	counts := make(map[application.Status]int, len(rows))
	for _, row := range rows {
		counts[application.Status(row.Status)] = row.Count
	}
	return counts, nil
}
