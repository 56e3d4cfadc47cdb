package notification

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("notification not found")
	ErrPreferencesNotFound = core.NewNotFoundError("notification preferences not found")
)

type (
	Repository interface {
		// GetPreferences returns ErrPreferencesNotFound when the user never saved preferences.
		GetPreferences(ctx context.Context, userID string) (Preferences, error)
		SavePreferences(ctx context.Context, p Preferences) (Preferences, error)

		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		// QueryNotifications lists the newest notifications of a user first.
		QueryNotifications(ctx context.Context, userID string, unreadOnly bool, page core.Page) ([]Notification, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		MarkRead(ctx context.Context, userID, id string, readAt time.Time) (Notification, error)
		MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo             Repository
		users            UserGetter
		mailSvc          core.EmailService
		smsSvc           core.SMSService
		logger           core.Logger
		defaultLeadHours []int
	}
)

// NewService creates the notification Service. smsSvc is optional.
func NewService(repo Repository, users UserGetter, mailSvc core.EmailService, smsSvc core.SMSService, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:             repo,
		users:            users,
		mailSvc:          mailSvc,
		smsSvc:           smsSvc,
		logger:           logger,
		defaultLeadHours: conf.Reminders.DefaultLeadHours,
	}
}

// Preferences returns the user's preferences, or the defaults if none were saved.
func (svc *Service) Preferences(ctx context.Context, userID string) (Preferences, error) {
	p, err := svc.repo.GetPreferences(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return DefaultPreferences(userID, svc.defaultLeadHours), nil
		}
		return Preferences{}, errors.Wrap(err, "getting preferences")
	}
	return p, nil
}

// UpdatePreferences merges up into the saved (or default) preferences.
func (svc *Service) UpdatePreferences(ctx context.Context, userID string, up UpdatePreferences) (Preferences, error) {
	p, err := svc.Preferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	up.apply(&p)
	p.UpdatedAt = core.NowFunc()
	p, err = svc.repo.SavePreferences(ctx, p)
	if err != nil {
		return Preferences{}, errors.Wrap(err, "saving preferences")
	}
	return p, nil
}

// ReminderLeadHours returns the lead times used for the reminders of a new deadline.
func (svc *Service) ReminderLeadHours(ctx context.Context, userID string) ([]int, error) {
	p, err := svc.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.ReminderLeadHours, nil
}

func (svc *Service) List(ctx context.Context, userID string, unreadOnly bool, page core.Page) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx, userID, unreadOnly, page.Normalize())
}

func (svc *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountUnread(ctx, userID)
}

func (svc *Service) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	return svc.repo.MarkRead(ctx, userID, id, core.NowFunc())
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return svc.repo.MarkAllRead(ctx, userID, core.NowFunc())
}

type emailData struct {
	Title   string
	Message string
	Link    string
}

// Send delivers a notification synchronously on every channel the user enabled for its type.
// Channel failures are reported, not returned; err is only set when the user or preferences cannot be loaded.
func (svc *Service) Send(ctx context.Context, userID, kind, title, message string, data map[string]interface{}) (Report, error) {
	var report Report

	prefs, err := svc.Preferences(ctx, userID)
	if err != nil {
		return report, err
	}
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		return report, errors.Wrap(err, "getting user")
	}
	if !usr.IsActive {
		report.Skipped = append(report.Skipped, Channels...)
		return report, nil
	}

	if prefs.Enabled(kind, ChannelEmail) && usr.Email != "" {
		link, _ := data["link"].(string)
		msg := &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      title,
			TemplateName: "notification",
			TemplateData: emailData{Title: title, Message: message, Link: link},
		}
		if err := svc.mailSvc.Send(ctx, msg); err != nil {
			report.fail(ChannelEmail, err)
		} else {
			report.Delivered = append(report.Delivered, ChannelEmail)
		}
	} else {
		report.Skipped = append(report.Skipped, ChannelEmail)
	}

	if prefs.Enabled(kind, ChannelSMS) && prefs.Phone != "" && svc.smsSvc != nil {
		sms := core.SMSMessage{PhoneNumber: prefs.Phone, Body: core.Truncate(fmt.Sprintf("%s: %s", title, message), 160)}
		if err := svc.smsSvc.SendSMS(ctx, sms); err != nil {
			report.fail(ChannelSMS, err)
		} else {
			report.Delivered = append(report.Delivered, ChannelSMS)
		}
	} else {
		report.Skipped = append(report.Skipped, ChannelSMS)
	}

	if prefs.Enabled(kind, ChannelInApp) {
		if data == nil {
			data = map[string]interface{}{}
		}
		n := Notification{
			UserID:    userID,
			Type:      kind,
			Title:     title,
			Message:   message,
			Data:      data,
			Channels:  append(append([]string{}, report.Delivered...), ChannelInApp),
			CreatedAt: core.NowFunc(),
		}
		if _, err := svc.repo.CreateNotification(ctx, n); err != nil {
			report.fail(ChannelInApp, err)
		} else {
			report.Delivered = append(report.Delivered, ChannelInApp)
		}
	} else {
		report.Skipped = append(report.Skipped, ChannelInApp)
	}
	return report, nil
}

// Notify sends a notification and fails when a channel failed while none delivered it.
func (svc *Service) Notify(ctx context.Context, userID, kind, title, message string, data map[string]interface{}) error {
	report, err := svc.Send(ctx, userID, kind, title, message, data)
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		failures := make([]string, 0, len(report.Failed))
		for _, ch := range Channels {
			if msg, ok := report.Failed[ch]; ok {
				failures = append(failures, ch+": "+msg)
			}
		}
		if len(report.Delivered) == 0 {
			return errors.Errorf("notification not delivered (%s)", strings.Join(failures, "; "))
		}
		svc.logger.Warn("notification partially delivered", map[string]interface{}{"user_id": userID, "failed": failures})
	}
	return nil
}
