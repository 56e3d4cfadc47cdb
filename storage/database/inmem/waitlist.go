package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/waitlist"
)

type waitlistRepository struct {
	db *DB
}

var _ waitlist.Repository = (*waitlistRepository)(nil) // interface compliance check

func NewWaitlistRepository(db *DB) *waitlistRepository {
	return &waitlistRepository{db: db}
}

func (repo *waitlistRepository) CreateEntry(_ context.Context, e waitlist.Entry) (waitlist.Entry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, entry := range repo.db.waitlist {
		if entry.Email == e.Email {
			return waitlist.Entry{}, waitlist.ErrAlreadyJoined
		}
	}
	e.ID = newID()
	stored := e
	repo.db.waitlist[e.ID] = &stored
	return e, nil
}

func (repo *waitlistRepository) QueryEntries(_ context.Context, page core.Page) ([]waitlist.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]waitlist.Entry, 0, len(repo.db.waitlist))
	for _, e := range repo.db.waitlist {
		entries = append(entries, *e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	start, end := paginate(len(entries), page.Limit, page.Offset)
	return entries[start:end], nil
}

func (repo *waitlistRepository) CountEntries(_ context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.waitlist), nil
}
