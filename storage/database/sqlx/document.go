package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core/document"
	"github.com/trezcool/edulens/core/resume"
)

var (
	documentColumns = []string{
		"id", "user_id", "kind", "title", "content", "status", "version", "generated", "metadata", "created_at", "updated_at",
	}
	resumeColumns = []string{
		"id", "user_id", "kind", "title", "summary", "contact", "education", "experience", "skills", "created_at", "updated_at",
	}
)

type (
	documentRow struct {
		ID        string                             `db:"id"`
		UserID    string                             `db:"user_id"`
		Kind      string                             `db:"kind"`
		Title     string                             `db:"title"`
		Content   string                             `db:"content"`
		Status    string                             `db:"status"`
		Version   int                                `db:"version"`
		Generated bool                               `db:"generated"`
		Metadata  jsonColumn[map[string]interface{}] `db:"metadata"`
		CreatedAt time.Time                          `db:"created_at"`
		UpdatedAt time.Time                          `db:"updated_at"`
	}

	resumeRow struct {
		ID         string                          `db:"id"`
		UserID     string                          `db:"user_id"`
		Kind       string                          `db:"kind"`
		Title      string                          `db:"title"`
		Summary    string                          `db:"summary"`
		Contact    jsonColumn[resume.Contact]      `db:"contact"`
		Education  jsonColumn[[]resume.Education]  `db:"education"`
		Experience jsonColumn[[]resume.Experience] `db:"experience"`
		Skills     pq.StringArray                  `db:"skills"`
		CreatedAt  time.Time                       `db:"created_at"`
		UpdatedAt  time.Time                       `db:"updated_at"`
	}
)

func (row documentRow) toDocument() document.Document {
	doc := document.Document{
		ID:        row.ID,
		UserID:    row.UserID,
		Kind:      row.Kind,
		Title:     row.Title,
		Content:   row.Content,
		Status:    row.Status,
		Version:   row.Version,
		Generated: row.Generated,
		Metadata:  row.Metadata.V,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	return doc
}

func (row resumeRow) toResume() resume.Resume {
	res := resume.Resume{
		ID:         row.ID,
		UserID:     row.UserID,
		Kind:       row.Kind,
		Title:      row.Title,
		Summary:    row.Summary,
		Contact:    row.Contact.V,
		Education:  row.Education.V,
		Experience: row.Experience.V,
		Skills:     []string(row.Skills),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if res.Education == nil {
		res.Education = []resume.Education{}
	}
	if res.Experience == nil {
		res.Experience = []resume.Experience{}
	}
	if res.Skills == nil {
		res.Skills = []string{}
	}
	return res
}

type documentRepository struct {
	db *sqlx.DB
}

var _ document.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(db *sqlx.DB) *documentRepository {
	return &documentRepository{db: db}
}

func (repo *documentRepository) CreateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	doc.ID = newID()
	query, args, err := psql.Insert("documents").
		Columns(documentColumns...).
		Values(doc.ID, doc.UserID, doc.Kind, doc.Title, doc.Content, doc.Status, doc.Version, doc.Generated,
			jsonOf(doc.Metadata), doc.CreatedAt, doc.UpdatedAt).
		ToSql()
	if err != nil {
		return document.Document{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return document.Document{}, errors.Wrap(err, "inserting document")
	}
	return doc, nil
}

func (repo *documentRepository) GetDocument(ctx context.Context, id string) (document.Document, error) {
	query, args, err := psql.Select(documentColumns...).From("documents").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return document.Document{}, errors.Wrap(err, "building query")
	}
	var row documentRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return document.Document{}, trapNoRowsErr(err, document.ErrNotFound)
	}
	return row.toDocument(), nil
}

func (repo *documentRepository) QueryDocuments(ctx context.Context, filter document.QueryFilter) ([]document.Document, error) {
	builder := psql.Select(documentColumns...).From("documents").OrderBy("updated_at DESC")
	if filter.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Kind != "" {
		builder = builder.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []documentRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting documents")
	}
	docs := make([]document.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.toDocument())
	}
	return docs, nil
}

func (repo *documentRepository) UpdateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	query, args, err := psql.Update("documents").
		SetMap(map[string]interface{}{
			"title":      doc.Title,
			"content":    doc.Content,
			"status":     doc.Status,
			"version":    doc.Version,
			"metadata":   jsonOf(doc.Metadata),
			"updated_at": doc.UpdatedAt,
		}).
		Where(sq.Eq{"id": doc.ID}).
		ToSql()
	if err != nil {
		return document.Document{}, errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return document.Document{}, errors.Wrap(err, "updating document")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return document.Document{}, document.ErrNotFound
	}
	return doc, nil
}

func (repo *documentRepository) DeleteDocument(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "documents", id, document.ErrNotFound)
}

type resumeRepository struct {
	db *sqlx.DB
}

var _ resume.Repository = (*resumeRepository)(nil) // interface compliance check

func NewResumeRepository(db *sqlx.DB) *resumeRepository {
	return &resumeRepository{db: db}
}

func (repo *resumeRepository) CreateResume(ctx context.Context, res resume.Resume) (resume.Resume, error) {
	res.ID = newID()
	query, args, err := psql.Insert("resumes").
		Columns(resumeColumns...).
		Values(res.ID, res.UserID, res.Kind, res.Title, res.Summary, jsonOf(res.Contact), jsonOf(res.Education),
			jsonOf(res.Experience), pq.StringArray(res.Skills), res.CreatedAt, res.UpdatedAt).
		ToSql()
	if err != nil {
		return resume.Resume{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return resume.Resume{}, errors.Wrap(err, "inserting resume")
	}
	return res, nil
}

func (repo *resumeRepository) GetResume(ctx context.Context, id string) (resume.Resume, error) {
	query, args, err := psql.Select(resumeColumns...).From("resumes").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return resume.Resume{}, errors.Wrap(err, "building query")
	}
	var row resumeRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return resume.Resume{}, trapNoRowsErr(err, resume.ErrNotFound)
	}
	return row.toResume(), nil
}

func (repo *resumeRepository) QueryResumes(ctx context.Context, userID string) ([]resume.Resume, error) {
	query, args, err := psql.Select(resumeColumns...).
		From("resumes").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("updated_at DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []resumeRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting resumes")
	}
	list := make([]resume.Resume, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toResume())
	}
	return list, nil
}

func (repo *resumeRepository) UpdateResume(ctx context.Context, res resume.Resume) (resume.Resume, error) {
	query, args, err := psql.Update("resumes").
		SetMap(map[string]interface{}{
			"title":      res.Title,
			"summary":    res.Summary,
			"contact":    jsonOf(res.Contact),
			"education":  jsonOf(res.Education),
			"experience": jsonOf(res.Experience),
			"skills":     pq.StringArray(res.Skills),
			"updated_at": res.UpdatedAt,
		}).
		Where(sq.Eq{"id": res.ID}).
		ToSql()
	if err != nil {
		return resume.Resume{}, errors.Wrap(err, "building query")
	}
	result, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return resume.Resume{}, errors.Wrap(err, "updating resume")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return resume.Resume{}, resume.ErrNotFound
	}
	return res, nil
}

func (repo *resumeRepository) DeleteResume(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "resumes", id, resume.ErrNotFound)
}
