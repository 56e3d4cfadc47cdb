// Package sqlxrepos implements the repositories on Postgres with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
	"github.com/trezcool/edulens/core/deadline"
	"github.com/trezcool/edulens/core/document"
	"github.com/trezcool/edulens/core/forum"
	"github.com/trezcool/edulens/core/marketplace"
	"github.com/trezcool/edulens/core/notification"
	"github.com/trezcool/edulens/core/profile"
	"github.com/trezcool/edulens/core/resume"
	"github.com/trezcool/edulens/core/user"
	"github.com/trezcool/edulens/core/waitlist"
)

// psql builds Postgres statements ($1, $2, ...).
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	defaultNewID = uuid.NewString
	newID        = defaultNewID // mockable
)

// Postgres error codes
const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02" // e.g. a malformed uuid
)

// trapNoRowsErr returns notFound when no row matched, including lookups by an id that is not a valid uuid.
func trapNoRowsErr(err, notFound error) error {
	if errors.Cause(err) == sql.ErrNoRows || isInvalidText(err) {
		return notFound
	}
	return err
}

func isInvalidText(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == invalidTextRepresentation
}

func isUniqueViolation(err error, constraint string) bool {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return pqErr.Code == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
	}
	return false
}

// jsonColumn reads & writes a jsonb column.
type jsonColumn[T any] struct {
	V T
}

func jsonOf[T any](v T) jsonColumn[T] {
	return jsonColumn[T]{V: v}
}

func (j jsonColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *jsonColumn[T]) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	default:
		return fmt.Errorf("cannot scan %T into a json column", src)
	}
}

// orderBy sorts on the orderings whose field is in `allowed` (API field name -> column), or on fallback.
func orderBy(builder sq.SelectBuilder, orderings []core.DBOrdering, allowed map[string]string, fallback string) sq.SelectBuilder {
	orderings = core.FilterOrderings(orderings, allowed)
	if len(orderings) == 0 {
		return builder.OrderBy(fallback)
	}
	clauses := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		clauses = append(clauses, ord.String())
	}
	return builder.OrderBy(clauses...)
}

func paginate(builder sq.SelectBuilder, page core.Page) sq.SelectBuilder {
	if page.Limit > 0 {
		builder = builder.Limit(page.Limit)
	}
	if page.Offset > 0 {
		builder = builder.Offset(page.Offset)
	}
	return builder
}

// ilike matches `search` anywhere in one of `columns`, case-insensitively.
func ilike(search string, columns ...string) sq.Or {
	pattern := "%" + search + "%"
	or := make(sq.Or, 0, len(columns))
	for _, col := range columns {
		or = append(or, sq.ILike{col: pattern})
	}
	return or
}

// Repositories groups the Postgres repositories of every relational domain.
type Repositories struct {
	Users         user.Repository
	Profiles      profile.Repository
	Applications  application.Repository
	Deadlines     deadline.Repository
	Notifications notification.Repository
	Documents     document.Repository
	Resumes       resume.Repository
	Waitlist      waitlist.Repository
	Forum         forum.Repository
	Marketplace   marketplace.Repository
}

func NewRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Users:         NewUserRepository(db),
		Profiles:      NewProfileRepository(db),
		Applications:  NewApplicationRepository(db),
		Deadlines:     NewDeadlineRepository(db),
		Notifications: NewNotificationRepository(db),
		Documents:     NewDocumentRepository(db),
		Resumes:       NewResumeRepository(db),
		Waitlist:      NewWaitlistRepository(db),
		Forum:         NewForumRepository(db),
		Marketplace:   NewMarketplaceRepository(db),
	}
}

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

func deleteByID(ctx context.Context, db sqlx.ExecerContext, table, id string, notFound error) error {
	query, args, err := psql.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if isInvalidText(err) {
			return notFound
		}
		return errors.Wrapf(err, "deleting from %s", table)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}
