// Package application tracks university applications and their status history.
package application

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/edulens/core"
)

// StatusChange is one entry of the application audit log.
type StatusChange struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Note      string    `json:"note,omitempty"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type Application struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	University    string         `json:"university"`
	Program       string         `json:"program"`
	Country       string         `json:"country"`
	Degree        string         `json:"degree"`
	Intake        string         `json:"intake"`
	Status        Status         `json:"status"`
	Deadline      *time.Time     `json:"deadline"`
	PortalURL     string         `json:"portal_url"`
	Notes         string         `json:"notes"`
	StatusHistory []StatusChange `json:"status_history"`
	SubmittedAt   *time.Time     `json:"submitted_at"`
	DecidedAt     *time.Time     `json:"decided_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewApplication contains information needed to track a new Application.
type NewApplication struct {
	University string     `json:"university" validate:"required,notblank,max=200"`
	Program    string     `json:"program" validate:"required,notblank,max=200"`
	Country    string     `json:"country" validate:"omitempty,max=100"`
	Degree     string     `json:"degree" validate:"omitempty,oneof=bachelors masters phd diploma other"`
	Intake     string     `json:"intake" validate:"omitempty,max=50"`
	Status     string     `json:"status" validate:"omitempty,oneof=draft in_progress"`
	Deadline   *time.Time `json:"deadline"`
	PortalURL  string     `json:"portal_url" validate:"omitempty,url"`
	Notes      string     `json:"notes" validate:"omitempty,max=5000"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.University = core.CleanString(na.University)
	na.Program = core.CleanString(na.Program)
	na.Country = core.CleanString(na.Country)
	na.Degree = core.CleanString(na.Degree, true /* lower */)
	na.Intake = core.CleanString(na.Intake)
	na.Status = core.CleanString(na.Status, true /* lower */)
	na.PortalURL = core.CleanString(na.PortalURL)
	return validate.Struct(na)
}

// UpdateApplication holds a partial update: nil fields are left untouched. Status has its own endpoint.
type UpdateApplication struct {
	University *string    `json:"university" validate:"omitempty,notblank,max=200"`
	Program    *string    `json:"program" validate:"omitempty,notblank,max=200"`
	Country    *string    `json:"country" validate:"omitempty,max=100"`
	Degree     *string    `json:"degree" validate:"omitempty,oneof=bachelors masters phd diploma other"`
	Intake     *string    `json:"intake" validate:"omitempty,max=50"`
	Deadline   *time.Time `json:"deadline"`
	PortalURL  *string    `json:"portal_url" validate:"omitempty,url"`
	Notes      *string    `json:"notes" validate:"omitempty,max=5000"`
}

func (ua *UpdateApplication) Validate(validate *validator.Validate) error {
	core.CleanStringPtr(ua.University)
	core.CleanStringPtr(ua.Program)
	core.CleanStringPtr(ua.Country)
	core.CleanStringPtr(ua.Degree, true /* lower */)
	core.CleanStringPtr(ua.Intake)
	core.CleanStringPtr(ua.PortalURL)
	return validate.Struct(ua)
}

func (ua UpdateApplication) apply(app *Application) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	setStr(&app.University, ua.University)
	setStr(&app.Program, ua.Program)
	setStr(&app.Country, ua.Country)
	if ua.Degree != nil {
		app.Degree = core.CleanString(*ua.Degree, true /* lower */)
	}
	setStr(&app.Intake, ua.Intake)
	setStr(&app.PortalURL, ua.PortalURL)
	setStr(&app.Notes, ua.Notes)
	if ua.Deadline != nil {
		d := ua.Deadline.UTC()
		app.Deadline = &d
	}
}

type StatusUpdate struct {
	Status string `json:"status"` // checked by ParseStatus
	Note   string `json:"note" validate:"omitempty,max=1000"`
}

type QueryFilter struct {
	UserID   string
	Statuses []Status
	Search   string // case-insensitive match on University or Program
	Country  string
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Country = core.CleanString(qf.Country)
}

// Stats counts applications per status.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}
