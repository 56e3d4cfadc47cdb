// Package deadline manages study-abroad deadlines and the reminders attached to them.
package deadline

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/edulens/core"
)

const (
	KindApplication = "application"
	KindTest        = "test"
	KindScholarship = "scholarship"
	KindVisa        = "visa"
	KindDocument    = "document"
	KindOther       = "other"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"

	// maxLeadHours caps reminder lead times to 90 days.
	maxLeadHours = 90 * 24
)

type Reminder struct {
	ID         string     `json:"id"`
	DeadlineID string     `json:"deadline_id"`
	UserID     string     `json:"-"`
	TriggerAt  time.Time  `json:"trigger_at"`
	SentAt     *time.Time `json:"sent_at"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	RetryAt    *time.Time `json:"retry_at,omitempty"`
}

func (r Reminder) IsSent() bool { return r.SentAt != nil }

// DueReminder is a claimed Reminder along with the Deadline fields needed to notify its owner.
type DueReminder struct {
	Reminder
	Title         string    `json:"title"`
	Kind          string    `json:"kind"`
	DueAt         time.Time `json:"due_at"`
	ApplicationID *string   `json:"application_id"`
}

type Deadline struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	ApplicationID *string    `json:"application_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Kind          string     `json:"kind"`
	Priority      string     `json:"priority"`
	DueAt         time.Time  `json:"due_at"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completed_at"`
	Reminders     []Reminder `json:"reminders"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewDeadline contains information needed to create a Deadline.
// ReminderLeadHours defaults to the owner's notification preferences; an empty list disables reminders.
type NewDeadline struct {
	ApplicationID     *string   `json:"application_id" validate:"omitempty,uuid"`
	Title             string    `json:"title" validate:"required,notblank,max=200"`
	Description       string    `json:"description" validate:"omitempty,max=5000"`
	Kind              string    `json:"kind" validate:"omitempty,oneof=application test scholarship visa document other"`
	Priority          string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueAt             time.Time `json:"due_at" validate:"required"`
	ReminderLeadHours *[]int    `json:"reminder_lead_hours" validate:"omitempty,max=10,dive,min=1,max=2160"`
}

func (nd *NewDeadline) Validate(validate *validator.Validate) error {
	nd.Title = core.CleanString(nd.Title)
	nd.Description = core.CleanString(nd.Description)
	nd.Kind = core.CleanString(nd.Kind, true /* lower */)
	nd.Priority = core.CleanString(nd.Priority, true /* lower */)
	if nd.Kind == "" {
		nd.Kind = KindOther
	}
	if nd.Priority == "" {
		nd.Priority = PriorityMedium
	}
	return validate.Struct(nd)
}

// UpdateDeadline holds a partial update: nil fields are left untouched.
// Changing DueAt or ReminderLeadHours regenerates the unsent reminders.
type UpdateDeadline struct {
	Title             *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Description       *string    `json:"description" validate:"omitempty,max=5000"`
	Kind              *string    `json:"kind" validate:"omitempty,oneof=application test scholarship visa document other"`
	Priority          *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueAt             *time.Time `json:"due_at"`
	Completed         *bool      `json:"completed"`
	ReminderLeadHours *[]int     `json:"reminder_lead_hours" validate:"omitempty,max=10,dive,min=1,max=2160"`
}

func (ud *UpdateDeadline) Validate(validate *validator.Validate) error {
	core.CleanStringPtr(ud.Title)
	core.CleanStringPtr(ud.Description)
	core.CleanStringPtr(ud.Kind, true /* lower */)
	core.CleanStringPtr(ud.Priority, true /* lower */)
	return validate.Struct(ud)
}

type QueryFilter struct {
	UserID        string
	ApplicationID string
	Completed     *bool
	DueAfter      *time.Time
	DueBefore     *time.Time
}

// buildReminders returns the reminders of a deadline due at dueAt, one per lead time, keeping only the
// ones triggering after now.
func buildReminders(userID string, dueAt time.Time, leadHours []int, now time.Time) []Reminder {
	seen := make(map[int]bool, len(leadHours))
	reminders := make([]Reminder, 0, len(leadHours))
	for _, h := range leadHours {
		if h <= 0 || h > maxLeadHours || seen[h] {
			continue
		}
		seen[h] = true
		trigger := dueAt.Add(-time.Duration(h) * time.Hour).UTC()
		if !trigger.After(now) {
			continue
		}
		reminders = append(reminders, Reminder{UserID: userID, TriggerAt: trigger})
	}
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].TriggerAt.Before(reminders[j].TriggerAt) })
	return reminders
}

// sentReminders keeps the reminders already sent.
func sentReminders(reminders []Reminder) []Reminder {
	sent := make([]Reminder, 0, len(reminders))
	for _, r := range reminders {
		if r.IsSent() {
			sent = append(sent, r)
		}
	}
	return sent
}
