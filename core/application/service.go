package application

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("application not found")
	ErrForbidden      = core.NewForbiddenError("you do not have access to this application")
	ErrStatusConflict = core.NewConflictError("application status changed concurrently, reload and retry")
)

// EventsChannel is the pub/sub channel application events are published on.
const EventsChannel = "edulens:events:applications"

type (
	Repository interface {
		CreateApplication(ctx context.Context, app Application) (Application, error)
		GetApplication(ctx context.Context, id string) (Application, error)
		QueryApplications(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Application, error)
		UpdateApplication(ctx context.Context, app Application) (Application, error)
		// ChangeStatus saves the status fields of app and appends its last StatusHistory entry,
		// only if the stored status still equals `from`; otherwise ErrStatusConflict.
		ChangeStatus(ctx context.Context, app Application, from Status) (Application, error)
		DeleteApplication(ctx context.Context, id string) error
		CountByStatus(ctx context.Context, userID string) (map[Status]int, error)
	}

	// EventPublisher broadcasts domain events to other processes.
	EventPublisher interface {
		Publish(ctx context.Context, channel string, payload interface{}) error
	}

	// Notifier sends a user notification through the channels they enabled.
	Notifier interface {
		Notify(ctx context.Context, userID, kind, title, message string, data map[string]interface{}) error
	}

	Service struct {
		repo      Repository
		publisher EventPublisher
		notifier  Notifier
		logger    core.Logger
	}

	// StatusChangedEvent is published after every accepted status change.
	StatusChangedEvent struct {
		Type          string       `json:"type"`
		ApplicationID string       `json:"application_id"`
		UserID        string       `json:"user_id"`
		Change        StatusChange `json:"change"`
	}
)

// NewService creates the application Service. publisher and notifier are optional.
func NewService(repo Repository, publisher EventPublisher, notifier Notifier, logger core.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, notifier: notifier, logger: logger}
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, na NewApplication) (Application, error) {
	now := core.NowFunc()
	status := StatusDraft
	if na.Status != "" {
		status = Status(na.Status)
	}
	app := Application{
		UserID:        actor.ID,
		University:    na.University,
		Program:       na.Program,
		Country:       na.Country,
		Degree:        na.Degree,
		Intake:        na.Intake,
		Status:        status,
		PortalURL:     na.PortalURL,
		Notes:         na.Notes,
		StatusHistory: []StatusChange{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if na.Deadline != nil {
		d := na.Deadline.UTC()
		app.Deadline = &d
	}
	app, err := svc.repo.CreateApplication(ctx, app)
	if err != nil {
		return Application{}, errors.Wrap(err, "creating application")
	}
	return app, nil
}

// Get returns an application the Actor may read. Staff may read any application.
func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Application, error) {
	app, err := svc.repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if !actor.CanRead(app.UserID) {
		return Application{}, ErrForbidden
	}
	return app, nil
}

// getWritable returns an application the Actor may modify.
func (svc *Service) getWritable(ctx context.Context, actor core.Actor, id string) (Application, error) {
	app, err := svc.repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if !actor.CanWrite(app.UserID) {
		return Application{}, ErrForbidden
	}
	return app, nil
}

// Query lists the Actor's applications. Staff may list another user's applications through filter.UserID.
func (svc *Service) Query(ctx context.Context, actor core.Actor, filter QueryFilter, ordering []core.DBOrdering) ([]Application, error) {
	if filter.UserID == "" || !actor.IsStaff() {
		filter.UserID = actor.ID
	}
	filter.Clean()
	return svc.repo.QueryApplications(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ua UpdateApplication) (Application, error) {
	app, err := svc.getWritable(ctx, actor, id)
	if err != nil {
		return Application{}, err
	}
	ua.apply(&app)
	app.UpdatedAt = core.NowFunc()
	app, err = svc.repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, errors.Wrap(err, "updating application")
	}
	return app, nil
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	if _, err := svc.getWritable(ctx, actor, id); err != nil {
		return err
	}
	return svc.repo.DeleteApplication(ctx, id)
}

// ChangeStatus moves an application along the status machine and records the change in its audit log.
// Owners, admins and counselors may change a status.
func (svc *Service) ChangeStatus(ctx context.Context, actor core.Actor, id string, su StatusUpdate) (Application, error) {
	to, err := ParseStatus(su.Status)
	if err != nil {
		return Application{}, err
	}

	app, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Application{}, err
	}
	from := app.Status
	if !IsTransitionAllowed(from, to) {
		msg := fmt.Sprintf("cannot move an application from %q to %q", from, to)
		if next := NextStatuses(from); len(next) > 0 {
			values := make([]string, 0, len(next))
			for _, s := range next {
				values = append(values, string(s))
			}
			msg += fmt.Sprintf("; allowed: %v", values)
		}
		return Application{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: msg})
	}

	now := core.NowFunc()
	change := StatusChange{
		From:      from,
		To:        to,
		Note:      core.CleanString(su.Note),
		ChangedBy: actor.ID,
		ChangedAt: now,
	}
	app.Status = to
	app.StatusHistory = append(app.StatusHistory, change)
	app.UpdatedAt = now
	if to == StatusSubmitted && app.SubmittedAt == nil {
		app.SubmittedAt = &now
	}
	if to.IsDecision() {
		app.DecidedAt = &now
	}

	app, err = svc.repo.ChangeStatus(ctx, app, from)
	if err != nil {
		return Application{}, errors.Wrap(err, "changing application status")
	}
	svc.statusChanged(ctx, actor, app, change)
	return app, nil
}

// statusChanged runs the non-fatal side effects of a status change.
func (svc *Service) statusChanged(ctx context.Context, actor core.Actor, app Application, change StatusChange) {
	if svc.publisher != nil {
		evt := StatusChangedEvent{
			Type:          "application.status_changed",
			ApplicationID: app.ID,
			UserID:        app.UserID,
			Change:        change,
		}
		if err := svc.publisher.Publish(ctx, EventsChannel, evt); err != nil {
			svc.logger.Warn("failed to publish application event", errors.Wrap(err, "publishing event"))
		}
	}

	if svc.notifier != nil && actor.ID != app.UserID {
		title := fmt.Sprintf("%s: %s", app.University, statusLabel(change.To))
		msg := fmt.Sprintf("Your application to %s (%s) moved from %s to %s.",
			app.University, app.Program, statusLabel(change.From), statusLabel(change.To))
		data := map[string]interface{}{"application_id": app.ID, "status": string(change.To)}
		if err := svc.notifier.Notify(ctx, app.UserID, "application_update", title, msg, data); err != nil {
			svc.logger.Warn("failed to notify application owner", errors.Wrap(err, "notifying owner"))
		}
	}
}

func (svc *Service) Stats(ctx context.Context, actor core.Actor) (Stats, error) {
	counts, err := svc.repo.CountByStatus(ctx, actor.ID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting applications")
	}
	stats := Stats{ByStatus: make(map[Status]int, len(Statuses))}
	for _, s := range Statuses {
		stats.ByStatus[s] = counts[s]
		stats.Total += counts[s]
	}
	return stats, nil
}

func statusLabel(s Status) string {
	switch s {
	case StatusInProgress:
		return "in progress"
	case StatusUnderReview:
		return "under review"
	default:
		return string(s)
	}
}
