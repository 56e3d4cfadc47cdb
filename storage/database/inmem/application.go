package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
)

type applicationRepository struct {
	db *DB
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(db *DB) *applicationRepository {
	return &applicationRepository{db: db}
}

func (repo *applicationRepository) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	app.ID = newID()
	stored := cloneApplication(app)
	repo.db.applications[app.ID] = &stored
	return app, nil
}

func (repo *applicationRepository) GetApplication(_ context.Context, id string) (application.Application, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if app, ok := repo.db.applications[id]; ok {
		return cloneApplication(*app), nil
	}
	return application.Application{}, application.ErrNotFound
}

func (repo *applicationRepository) QueryApplications(_ context.Context, filter application.QueryFilter, ordering []core.DBOrdering) ([]application.Application, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	apps := make([]application.Application, 0)
	for _, app := range repo.db.applications {
		if filter.UserID != "" && app.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, app.Status) {
			continue
		}
		if filter.Country != "" && !strings.EqualFold(app.Country, filter.Country) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(app.University), search) &&
			!strings.Contains(strings.ToLower(app.Program), search) {
			continue
		}
		apps = append(apps, cloneApplication(*app))
	}

	sort.SliceStable(apps, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareApplications(apps[i], apps[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
	return apps, nil
}

func hasStatus(statuses []application.Status, s application.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func compareApplications(a, b application.Application, field string) int {
	switch field {
	case "university":
		return strings.Compare(a.University, b.University)
	case "program":
		return strings.Compare(a.Program, b.Program)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "deadline":
		switch {
		case a.Deadline == nil && b.Deadline == nil:
			return 0
		case a.Deadline == nil:
			return 1
		case b.Deadline == nil:
			return -1
		}
		return a.Deadline.Compare(*b.Deadline)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	return 0
}

func (repo *applicationRepository) UpdateApplication(_ context.Context, app application.Application) (application.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.applications[app.ID]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	// status fields only change through ChangeStatus
	app.Status = orig.Status
	app.StatusHistory = orig.StatusHistory
	app.SubmittedAt = orig.SubmittedAt
	app.DecidedAt = orig.DecidedAt
	stored := cloneApplication(app)
	repo.db.applications[app.ID] = &stored
	return cloneApplication(stored), nil
}

func (repo *applicationRepository) ChangeStatus(_ context.Context, app application.Application, from application.Status) (application.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.applications[app.ID]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	if orig.Status != from {
		return application.Application{}, application.ErrStatusConflict
	}
	updated := cloneApplication(*orig)
	updated.Status = app.Status
	updated.SubmittedAt = app.SubmittedAt
	updated.DecidedAt = app.DecidedAt
	updated.UpdatedAt = app.UpdatedAt
	if n := len(app.StatusHistory); n > 0 {
		updated.StatusHistory = append(updated.StatusHistory, app.StatusHistory[n-1])
	}
	repo.db.applications[app.ID] = &updated
	return cloneApplication(updated), nil
}

func (repo *applicationRepository) DeleteApplication(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.applications[id]; !ok {
		return application.ErrNotFound
	}
	delete(repo.db.applications, id)
	for _, d := range repo.db.deadlines {
		if d.ApplicationID != nil && *d.ApplicationID == id {
			d.ApplicationID = nil
		}
	}
	return nil
}

func (repo *applicationRepository) CountByStatus(_ context.Context, userID string) (map[application.Status]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[application.Status]int)
	for _, app := range repo.db.applications {
		if app.UserID == userID {
			counts[app.Status]++
		}
	}
	return counts, nil
}

func cloneApplication(app application.Application) application.Application {
	app.StatusHistory = append([]application.StatusChange{}, app.StatusHistory...)
	return app
}
