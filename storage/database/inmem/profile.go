package inmemdb

import (
	"context"

	"github.com/trezcool/edulens/core/profile"
)

type profileRepository struct {
	db *DB
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *DB) *profileRepository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) GetProfile(_ context.Context, userID string) (profile.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.profiles[userID]; ok {
		return cloneProfile(*p), nil
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (repo *profileRepository) SaveProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := cloneProfile(p)
	repo.db.profiles[p.UserID] = &stored
	return p, nil
}

func cloneProfile(p profile.Profile) profile.Profile {
	p.TargetCountries = append([]string{}, p.TargetCountries...)
	scores := make(map[string]float64, len(p.TestScores))
	for k, v := range p.TestScores {
		scores[k] = v
	}
	p.TestScores = scores
	return p
}
