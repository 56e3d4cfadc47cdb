// Package notification delivers user notifications over email, SMS and the in-app inbox,
// according to each user's notification preferences.
package notification

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/edulens/core"
)

// channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelInApp = "in_app"
)

// notification types
const (
	TypeDeadlineReminder  = "deadline_reminder"
	TypeApplicationUpdate = "application_update"
	TypeCommunity         = "community"
	TypeMarketing         = "marketing"
)

var (
	Channels = []string{ChannelEmail, ChannelSMS, ChannelInApp}
	Types    = []string{TypeDeadlineReminder, TypeApplicationUpdate, TypeCommunity, TypeMarketing}
)

type Preferences struct {
	UserID            string          `json:"user_id"`
	Channels          map[string]bool `json:"channels"`
	Types             map[string]bool `json:"types"`
	ReminderLeadHours []int           `json:"reminder_lead_hours"`
	Phone             string          `json:"phone"`
	Timezone          string          `json:"timezone"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DefaultPreferences returns the preferences of a user who never saved any.
func DefaultPreferences(userID string, leadHours []int) Preferences {
	hours := make([]int, len(leadHours))
	copy(hours, leadHours)
	return Preferences{
		UserID:            userID,
		Channels:          map[string]bool{ChannelEmail: true, ChannelSMS: false, ChannelInApp: true},
		Types:             map[string]bool{TypeDeadlineReminder: true, TypeApplicationUpdate: true, TypeCommunity: true, TypeMarketing: false},
		ReminderLeadHours: hours,
		Timezone:          "UTC",
	}
}

// Enabled reports whether notifications of type `kind` may be sent on `channel`.
// Unknown types are enabled unless switched off explicitly.
func (p Preferences) Enabled(kind, channel string) bool {
	if on, ok := p.Types[kind]; ok && !on {
		return false
	}
	return p.Channels[channel]
}

// UpdatePreferences holds a partial update: absent map keys and nil fields are left untouched.
type UpdatePreferences struct {
	Channels          map[string]bool `json:"channels"`
	Types             map[string]bool `json:"types"`
	ReminderLeadHours *[]int          `json:"reminder_lead_hours" validate:"omitempty,max=10,dive,min=1,max=2160"`
	Phone             *string         `json:"phone" validate:"omitempty,e164"`
	Timezone          *string         `json:"timezone" validate:"omitempty,max=64"`
}

func (up *UpdatePreferences) Validate(validate *validator.Validate) error {
	for ch := range up.Channels {
		if !core.StringInSlice(ch, Channels) {
			return core.NewChoiceError("channels", ch, Channels)
		}
	}
	for typ := range up.Types {
		if !core.StringInSlice(typ, Types) {
			return core.NewChoiceError("types", typ, Types)
		}
	}
	if up.Phone != nil {
		phone := core.CleanString(*up.Phone)
		up.Phone = &phone
	}
	if up.Timezone != nil {
		tz := core.CleanString(*up.Timezone)
		up.Timezone = &tz
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "timezone", Error: "invalid timezone"})
		}
	}
	if err := validate.Struct(up); err != nil {
		return err
	}
	return nil
}

// apply merges up into p.
func (up UpdatePreferences) apply(p *Preferences) {
	if p.Channels == nil {
		p.Channels = make(map[string]bool, len(Channels))
	}
	for ch, on := range up.Channels {
		p.Channels[ch] = on
	}
	if p.Types == nil {
		p.Types = make(map[string]bool, len(Types))
	}
	for typ, on := range up.Types {
		p.Types[typ] = on
	}
	if up.ReminderLeadHours != nil {
		hours := append([]int{}, *up.ReminderLeadHours...)
		sort.Sort(sort.Reverse(sort.IntSlice(hours)))
		p.ReminderLeadHours = hours
	}
	if up.Phone != nil {
		p.Phone = *up.Phone
	}
	if up.Timezone != nil {
		p.Timezone = *up.Timezone
	}
}

// Notification is an entry of the in-app inbox.
type Notification struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Channels  []string               `json:"channels"`
	IsRead    bool                   `json:"is_read"`
	ReadAt    *time.Time             `json:"read_at"`
	CreatedAt time.Time              `json:"created_at"`
}

// Report tells which channels a notification went through.
type Report struct {
	Delivered []string          `json:"delivered"`
	Skipped   []string          `json:"skipped"`
	Failed    map[string]string `json:"failed"`
}

func (r *Report) fail(channel string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]string)
	}
	r.Failed[channel] = err.Error()
}
