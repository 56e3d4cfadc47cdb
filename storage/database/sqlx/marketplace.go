package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/marketplace"
)

var listingColumns = []string{
	"id", "user_id", "title", "description", "category", "price_cents", "currency", "is_active", "created_at", "updated_at",
}

type listingRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Category    string    `db:"category"`
	PriceCents  int64     `db:"price_cents"`
	Currency    string    `db:"currency"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row listingRow) toListing() marketplace.Listing {
	return marketplace.Listing{
		ID:          row.ID,
		UserID:      row.UserID,
		Title:       row.Title,
		Description: row.Description,
		Category:    row.Category,
		PriceCents:  row.PriceCents,
		Currency:    row.Currency,
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type marketplaceRepository struct {
	db *sqlx.DB
}

var _ marketplace.Repository = (*marketplaceRepository)(nil) // interface compliance check

func NewMarketplaceRepository(db *sqlx.DB) *marketplaceRepository {
	return &marketplaceRepository{db: db}
}

func (repo *marketplaceRepository) CreateListing(ctx context.Context, l marketplace.Listing) (marketplace.Listing, error) {
	l.ID = newID()
	query, args, err := psql.Insert("listings").
		Columns(listingColumns...).
		Values(l.ID, l.UserID, l.Title, l.Description, l.Category, l.PriceCents, l.Currency, l.IsActive, l.CreatedAt,
			l.UpdatedAt).
		ToSql()
	if err != nil {
		return marketplace.Listing{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return marketplace.Listing{}, errors.Wrap(err, "inserting listing")
	}
	return l, nil
}

func (repo *marketplaceRepository) GetListing(ctx context.Context, id string) (marketplace.Listing, error) {
	query, args, err := psql.Select(listingColumns...).From("listings").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return marketplace.Listing{}, errors.Wrap(err, "building query")
	}
	var row listingRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return marketplace.Listing{}, trapNoRowsErr(err, marketplace.ErrNotFound)
	}
	return row.toListing(), nil
}

func (repo *marketplaceRepository) QueryListings(ctx context.Context, filter marketplace.QueryFilter, page core.Page) ([]marketplace.Listing, error) {
	builder := psql.Select(listingColumns...).From("listings").OrderBy("created_at DESC")
	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"category": filter.Category})
	}
	if filter.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.ActiveOnly {
		builder = builder.Where(sq.Eq{"is_active": true})
	}
	if filter.Search != "" {
		builder = builder.Where(ilike(filter.Search, "title", "description"))
	}
	query, args, err := paginate(builder, page).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []listingRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting listings")
	}
	listings := make([]marketplace.Listing, 0, len(rows))
	for _, row := range rows {
		listings = append(listings, row.toListing())
	}
	return listings, nil
}

func (repo *marketplaceRepository) UpdateListing(ctx context.Context, l marketplace.Listing) (marketplace.Listing, error) {
	query, args, err := psql.Update("listings").
		SetMap(map[string]interface{}{
			"title":       l.Title,
			"description": l.Description,
			"category":    l.Category,
			"price_cents": l.PriceCents,
			"currency":    l.Currency,
			"is_active":   l.IsActive,
			"updated_at":  l.UpdatedAt,
		}).
		Where(sq.Eq{"id": l.ID}).
		ToSql()
	if err != nil {
		return marketplace.Listing{}, errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return marketplace.Listing{}, errors.Wrap(err, "updating listing")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return marketplace.Listing{}, marketplace.ErrNotFound
	}
	return l, nil
}

func (repo *marketplaceRepository) DeleteListing(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.db, "listings", id, marketplace.ErrNotFound)
}
