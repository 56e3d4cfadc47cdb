package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/edulens/core/deadline"
)

type deadlineRepository struct {
	db *DB
}

var _ deadline.Repository = (*deadlineRepository)(nil) // interface compliance check

func NewDeadlineRepository(db *DB) *deadlineRepository {
	return &deadlineRepository{db: db}
}

// load returns a copy of d along with its reminders. The caller holds the lock.
func (repo *deadlineRepository) load(d *deadline.Deadline) deadline.Deadline {
	out := *d
	out.Reminders = make([]deadline.Reminder, 0)
	for _, r := range repo.db.reminders {
		if r.DeadlineID == d.ID {
			out.Reminders = append(out.Reminders, *r)
		}
	}
	sort.Slice(out.Reminders, func(i, j int) bool { return out.Reminders[i].TriggerAt.Before(out.Reminders[j].TriggerAt) })
	return out
}

// saveReminders stores the reminders of d that have no ID yet. The caller holds the lock.
func (repo *deadlineRepository) saveReminders(d deadline.Deadline) {
	for _, r := range d.Reminders {
		if r.ID != "" {
			continue
		}
		r.ID = newID()
		r.DeadlineID = d.ID
		r.UserID = d.UserID
		stored := r
		repo.db.reminders[r.ID] = &stored
	}
}

func (repo *deadlineRepository) CreateDeadline(_ context.Context, d deadline.Deadline) (deadline.Deadline, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d.ID = newID()
	stored := d
	stored.Reminders = nil
	repo.db.deadlines[d.ID] = &stored
	repo.saveReminders(d)
	return repo.load(&stored), nil
}

func (repo *deadlineRepository) GetDeadline(_ context.Context, id string) (deadline.Deadline, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if d, ok := repo.db.deadlines[id]; ok {
		return repo.load(d), nil
	}
	return deadline.Deadline{}, deadline.ErrNotFound
}

func (repo *deadlineRepository) QueryDeadlines(_ context.Context, filter deadline.QueryFilter) ([]deadline.Deadline, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	deadlines := make([]deadline.Deadline, 0)
	for _, d := range repo.db.deadlines {
		if filter.UserID != "" && d.UserID != filter.UserID {
			continue
		}
		if filter.ApplicationID != "" && (d.ApplicationID == nil || *d.ApplicationID != filter.ApplicationID) {
			continue
		}
		if filter.Completed != nil && d.Completed != *filter.Completed {
			continue
		}
		if filter.DueAfter != nil && d.DueAt.Before(*filter.DueAfter) {
			continue
		}
		if filter.DueBefore != nil && d.DueAt.After(*filter.DueBefore) {
			continue
		}
		deadlines = append(deadlines, repo.load(d))
	}
	sort.Slice(deadlines, func(i, j int) bool { return deadlines[i].DueAt.Before(deadlines[j].DueAt) })
	return deadlines, nil
}

func (repo *deadlineRepository) UpdateDeadline(_ context.Context, d deadline.Deadline, replaceReminders bool) (deadline.Deadline, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.deadlines[d.ID]; !ok {
		return deadline.Deadline{}, deadline.ErrNotFound
	}
	stored := d
	stored.Reminders = nil
	repo.db.deadlines[d.ID] = &stored

	if replaceReminders {
		for id, r := range repo.db.reminders {
			if r.DeadlineID == d.ID && !r.IsSent() {
				delete(repo.db.reminders, id)
			}
		}
		unsent := d
		unsent.Reminders = make([]deadline.Reminder, 0, len(d.Reminders))
		for _, r := range d.Reminders {
			if !r.IsSent() {
				r.ID = ""
				unsent.Reminders = append(unsent.Reminders, r)
			}
		}
		repo.saveReminders(unsent)
	}
	return repo.load(&stored), nil
}

func (repo *deadlineRepository) DeleteDeadline(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.deadlines[id]; !ok {
		return deadline.ErrNotFound
	}
	delete(repo.db.deadlines, id)
	for rid, r := range repo.db.reminders {
		if r.DeadlineID == id {
			delete(repo.db.reminders, rid)
		}
	}
	return nil
}

func (repo *deadlineRepository) ClaimDueReminders(_ context.Context, now time.Time, limit, maxAttempts int, lease time.Duration) ([]deadline.DueReminder, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	due := make([]*deadline.Reminder, 0)
	for _, r := range repo.db.reminders {
		if r.IsSent() || r.TriggerAt.After(now) || r.Attempts >= maxAttempts {
			continue
		}
		if r.RetryAt != nil && r.RetryAt.After(now) {
			continue
		}
		if d, ok := repo.db.deadlines[r.DeadlineID]; !ok || d.Completed {
			continue
		}
		due = append(due, r)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].TriggerAt.Before(due[j].TriggerAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	retryAt := now.Add(lease)
	claimed := make([]deadline.DueReminder, 0, len(due))
	for _, r := range due {
		r.Attempts++
		at := retryAt
		r.RetryAt = &at

		d := repo.db.deadlines[r.DeadlineID]
		claimed = append(claimed, deadline.DueReminder{
			Reminder:      *r,
			Title:         d.Title,
			Kind:          d.Kind,
			DueAt:         d.DueAt,
			ApplicationID: d.ApplicationID,
		})
	}
	return claimed, nil
}

func (repo *deadlineRepository) MarkReminderSent(_ context.Context, id string, sentAt time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r, ok := repo.db.reminders[id]
	if !ok {
		return deadline.ErrNotFound
	}
	r.SentAt = &sentAt
	r.RetryAt = nil
	r.LastError = ""
	return nil
}

func (repo *deadlineRepository) MarkReminderFailed(_ context.Context, id string, errMsg string, retryAt time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r, ok := repo.db.reminders[id]
	if !ok {
		return deadline.ErrNotFound
	}
	r.LastError = errMsg
	r.RetryAt = &retryAt
	return nil
}
