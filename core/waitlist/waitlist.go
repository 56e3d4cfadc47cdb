// Package waitlist collects pre-launch signups.
package waitlist

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mcnijman/go-emailaddress"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

var ErrAlreadyJoined = core.NewConflictError("this email is already on the waitlist")

type (
	Entry struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		Name      string    `json:"name"`
		Source    string    `json:"source"`
		Country   string    `json:"country"`
		CreatedAt time.Time `json:"created_at"`
	}

	NewEntry struct {
		Email   string `json:"email" validate:"required,max=254"`
		Name    string `json:"name" validate:"omitempty,max=200"`
		Source  string `json:"source" validate:"omitempty,max=100"`
		Country string `json:"country" validate:"omitempty,max=100"`
	}

	Repository interface {
		// CreateEntry returns ErrAlreadyJoined when the email is already on the waitlist.
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		QueryEntries(ctx context.Context, page core.Page) ([]Entry, error)
		CountEntries(ctx context.Context) (int, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		sync    bool
	}
)

func (ne *NewEntry) Validate(validate *validator.Validate) error {
	ne.Email = core.CleanString(ne.Email, true /* lower */)
	ne.Name = core.CleanString(ne.Name)
	ne.Source = core.CleanString(ne.Source, true /* lower */)
	ne.Country = core.CleanString(ne.Country)
	if err := validate.Struct(ne); err != nil {
		return err
	}
	addr, err := emailaddress.Parse(ne.Email)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "must be a valid email address"})
	}
	ne.Email = addr.String()
	return nil
}

func NewService(repo Repository, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, mailSvc: mailSvc}
}

// NewServiceMock returns a Service sending emails synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService) *Service {
	svc := NewService(repo, mailSvc)
	svc.sync = true
	return svc
}

type welcomeData struct {
	Name string
}

// Join adds an email to the waitlist and sends a welcome email.
func (svc *Service) Join(ctx context.Context, ne NewEntry) (Entry, error) {
	e := Entry{
		Email:     ne.Email,
		Name:      ne.Name,
		Source:    ne.Source,
		Country:   ne.Country,
		CreatedAt: core.NowFunc(),
	}
	e, err := svc.repo.CreateEntry(ctx, e)
	if err != nil {
		if core.IsConflict(err) {
			return Entry{}, err
		}
		return Entry{}, errors.Wrap(err, "joining waitlist")
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: e.Name, Address: e.Email}},
		Subject:      "Welcome to the EduLens waitlist",
		TemplateName: "waitlist_welcome",
		TemplateData: welcomeData{Name: e.Name},
	}
	if svc.sync {
		if err := svc.mailSvc.Send(ctx, msg); err != nil {
			return e, errors.Wrap(err, "sending welcome email")
		}
	} else {
		svc.mailSvc.SendMessages(msg)
	}
	return e, nil
}

func (svc *Service) List(ctx context.Context, page core.Page) ([]Entry, int, error) {
	entries, err := svc.repo.QueryEntries(ctx, page.Normalize())
	if err != nil {
		return nil, 0, err
	}
	count, err := svc.repo.CountEntries(ctx)
	if err != nil {
		return nil, 0, err
	}
	return entries, count, nil
}
