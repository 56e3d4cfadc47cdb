package deadline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("deadline not found")
	ErrForbidden = core.NewForbiddenError("you do not have access to this deadline")
)

type (
	Repository interface {
		// CreateDeadline saves d along with its reminders.
		CreateDeadline(ctx context.Context, d Deadline) (Deadline, error)
		GetDeadline(ctx context.Context, id string) (Deadline, error)
		QueryDeadlines(ctx context.Context, filter QueryFilter) ([]Deadline, error)
		// UpdateDeadline saves d; if replaceReminders, the unsent reminders are replaced by the unsent ones of d.
		UpdateDeadline(ctx context.Context, d Deadline, replaceReminders bool) (Deadline, error)
		DeleteDeadline(ctx context.Context, id string) error

		// ClaimDueReminders leases up to `limit` unsent reminders due at `now` whose deadline is not completed
		// and that have been attempted less than maxAttempts times. Each claimed reminder has its attempts
		// incremented and its retry time pushed to now+lease, so it is not claimed again by a concurrent pass.
		ClaimDueReminders(ctx context.Context, now time.Time, limit, maxAttempts int, lease time.Duration) ([]DueReminder, error)
		MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error
		MarkReminderFailed(ctx context.Context, id string, errMsg string, retryAt time.Time) error
	}

	// ApplicationGetter checks that a linked application is readable by the Actor.
	ApplicationGetter interface {
		Get(ctx context.Context, actor core.Actor, id string) (application.Application, error)
	}

	// LeadTimeSource provides the default reminder lead times of a user.
	LeadTimeSource interface {
		ReminderLeadHours(ctx context.Context, userID string) ([]int, error)
	}

	Service struct {
		repo      Repository
		apps      ApplicationGetter
		leadTimes LeadTimeSource
	}
)

func NewService(repo Repository, apps ApplicationGetter, leadTimes LeadTimeSource) *Service {
	return &Service{repo: repo, apps: apps, leadTimes: leadTimes}
}

func (svc *Service) leadHours(ctx context.Context, userID string, explicit *[]int) ([]int, error) {
	if explicit != nil {
		return *explicit, nil
	}
	hours, err := svc.leadTimes.ReminderLeadHours(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "getting reminder lead hours")
	}
	return hours, nil
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, nd NewDeadline) (Deadline, error) {
	if nd.ApplicationID != nil {
		app, err := svc.apps.Get(ctx, actor, *nd.ApplicationID)
		if err != nil {
			if core.IsNotFound(err) || core.IsForbidden(err) {
				return Deadline{}, core.NewValidationError(nil, core.FieldError{Field: "application_id", Error: "application not found"})
			}
			return Deadline{}, errors.Wrap(err, "getting application")
		}
		if app.UserID != actor.ID {
			return Deadline{}, core.NewValidationError(nil, core.FieldError{Field: "application_id", Error: "application not found"})
		}
	}

	hours, err := svc.leadHours(ctx, actor.ID, nd.ReminderLeadHours)
	if err != nil {
		return Deadline{}, err
	}

	now := core.NowFunc()
	due := nd.DueAt.UTC()
	d := Deadline{
		UserID:        actor.ID,
		ApplicationID: nd.ApplicationID,
		Title:         nd.Title,
		Description:   nd.Description,
		Kind:          nd.Kind,
		Priority:      nd.Priority,
		DueAt:         due,
		Reminders:     buildReminders(actor.ID, due, hours, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	d, err = svc.repo.CreateDeadline(ctx, d)
	if err != nil {
		return Deadline{}, errors.Wrap(err, "creating deadline")
	}
	return d, nil
}

func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Deadline, error) {
	d, err := svc.repo.GetDeadline(ctx, id)
	if err != nil {
		return Deadline{}, err
	}
	if !actor.CanWrite(d.UserID) {
		return Deadline{}, ErrForbidden
	}
	return d, nil
}

// Query lists the Actor's deadlines.
func (svc *Service) Query(ctx context.Context, actor core.Actor, filter QueryFilter) ([]Deadline, error) {
	filter.UserID = actor.ID
	return svc.repo.QueryDeadlines(ctx, filter)
}

// Upcoming lists the Actor's open deadlines due within `days` days.
func (svc *Service) Upcoming(ctx context.Context, actor core.Actor, days int) ([]Deadline, error) {
	if days <= 0 {
		days = 30
	}
	now := core.NowFunc()
	until := now.Add(time.Duration(days) * 24 * time.Hour)
	completed := false
	return svc.Query(ctx, actor, QueryFilter{Completed: &completed, DueAfter: &now, DueBefore: &until})
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ud UpdateDeadline) (Deadline, error) {
	d, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Deadline{}, err
	}
	now := core.NowFunc()

	setStr := func(dst *string, src *string, lower bool) {
		if src != nil {
			*dst = core.CleanString(*src, lower)
		}
	}
	setStr(&d.Title, ud.Title, false)
	setStr(&d.Description, ud.Description, false)
	setStr(&d.Kind, ud.Kind, true)
	setStr(&d.Priority, ud.Priority, true)
	if ud.Completed != nil {
		d.Completed = *ud.Completed
		if d.Completed {
			d.CompletedAt = &now
		} else {
			d.CompletedAt = nil
		}
	}

	var replace bool
	if ud.DueAt != nil || ud.ReminderLeadHours != nil {
		if ud.DueAt != nil {
			d.DueAt = ud.DueAt.UTC()
		}
		hours, err := svc.leadHours(ctx, d.UserID, ud.ReminderLeadHours)
		if err != nil {
			return Deadline{}, err
		}
		d.Reminders = append(sentReminders(d.Reminders), buildReminders(d.UserID, d.DueAt, hours, now)...)
		replace = true
	}

	d.UpdatedAt = now
	d, err = svc.repo.UpdateDeadline(ctx, d, replace)
	if err != nil {
		return Deadline{}, errors.Wrap(err, "updating deadline")
	}
	return d, nil
}

// Complete marks a deadline as done; its pending reminders are no longer sent.
func (svc *Service) Complete(ctx context.Context, actor core.Actor, id string) (Deadline, error) {
	completed := true
	return svc.Update(ctx, actor, id, UpdateDeadline{Completed: &completed})
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return err
	}
	return svc.repo.DeleteDeadline(ctx, id)
}
