package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/marketplace"
)

type marketplaceRepository struct {
	db *DB
}

var _ marketplace.Repository = (*marketplaceRepository)(nil) // interface compliance check

func NewMarketplaceRepository(db *DB) *marketplaceRepository {
	return &marketplaceRepository{db: db}
}

func (repo *marketplaceRepository) CreateListing(_ context.Context, l marketplace.Listing) (marketplace.Listing, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	l.ID = newID()
	stored := l
	repo.db.listings[l.ID] = &stored
	return l, nil
}

func (repo *marketplaceRepository) GetListing(_ context.Context, id string) (marketplace.Listing, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if l, ok := repo.db.listings[id]; ok {
		return *l, nil
	}
	return marketplace.Listing{}, marketplace.ErrNotFound
}

func (repo *marketplaceRepository) QueryListings(_ context.Context, filter marketplace.QueryFilter, page core.Page) ([]marketplace.Listing, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	listings := make([]marketplace.Listing, 0)
	for _, l := range repo.db.listings {
		if filter.Category != "" && l.Category != filter.Category {
			continue
		}
		if filter.UserID != "" && l.UserID != filter.UserID {
			continue
		}
		if filter.ActiveOnly && !l.IsActive {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(l.Title), search) &&
			!strings.Contains(strings.ToLower(l.Description), search) {
			continue
		}
		listings = append(listings, *l)
	}
	sort.SliceStable(listings, func(i, j int) bool { return listings[i].CreatedAt.After(listings[j].CreatedAt) })
	start, end := paginate(len(listings), page.Limit, page.Offset)
	return listings[start:end], nil
}

func (repo *marketplaceRepository) UpdateListing(_ context.Context, l marketplace.Listing) (marketplace.Listing, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.listings[l.ID]; !ok {
		return marketplace.Listing{}, marketplace.ErrNotFound
	}
	stored := l
	repo.db.listings[l.ID] = &stored
	return l, nil
}

func (repo *marketplaceRepository) DeleteListing(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.listings[id]; !ok {
		return marketplace.ErrNotFound
	}
	delete(repo.db.listings, id)
	return nil
}
