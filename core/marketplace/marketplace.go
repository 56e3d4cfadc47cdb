// Package marketplace lists the counselling and editing services offered by counselors.
package marketplace

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("listing not found")
	ErrForbidden   = core.NewForbiddenError("only the provider may change this listing")
	ErrNotProvider = core.NewForbiddenError("only counselors may publish listings")
)

type (
	Listing struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Category    string    `json:"category"`
		PriceCents  int64     `json:"price_cents"`
		Currency    string    `json:"currency"`
		IsActive    bool      `json:"is_active"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	NewListing struct {
		Title       string `json:"title" validate:"required,notblank,max=200"`
		Description string `json:"description" validate:"required,notblank,max=10000"`
		Category    string `json:"category" validate:"required,oneof=counselling editing test_prep translation other"`
		PriceCents  int64  `json:"price_cents" validate:"min=0"`
		Currency    string `json:"currency" validate:"omitempty,len=3,alpha"`
	}

	UpdateListing struct {
		Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
		Description *string `json:"description" validate:"omitempty,notblank,max=10000"`
		Category    *string `json:"category" validate:"omitempty,oneof=counselling editing test_prep translation other"`
		PriceCents  *int64  `json:"price_cents" validate:"omitempty,min=0"`
		Currency    *string `json:"currency" validate:"omitempty,len=3,alpha"`
		IsActive    *bool   `json:"is_active"`
	}

	QueryFilter struct {
		Category   string
		UserID     string
		ActiveOnly bool
		Search     string
	}

	Repository interface {
		CreateListing(ctx context.Context, l Listing) (Listing, error)
		GetListing(ctx context.Context, id string) (Listing, error)
		QueryListings(ctx context.Context, filter QueryFilter, page core.Page) ([]Listing, error)
		UpdateListing(ctx context.Context, l Listing) (Listing, error)
		DeleteListing(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
	}
)

func (nl *NewListing) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	nl.Category = core.CleanString(nl.Category, true /* lower */)
	nl.Currency = core.CleanString(nl.Currency)
	return validate.Struct(nl)
}

func (ul *UpdateListing) Validate(validate *validator.Validate) error {
	return validate.Struct(ul)
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, nl NewListing) (Listing, error) {
	if !actor.IsStaff() {
		return Listing{}, ErrNotProvider
	}
	currency := "USD"
	if nl.Currency != "" {
		currency = nl.Currency
	}
	now := core.NowFunc()
	l := Listing{
		UserID:      actor.ID,
		Title:       nl.Title,
		Description: nl.Description,
		Category:    nl.Category,
		PriceCents:  nl.PriceCents,
		Currency:    strings.ToUpper(currency),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l, err := svc.repo.CreateListing(ctx, l)
	if err != nil {
		return Listing{}, errors.Wrap(err, "creating listing")
	}
	return l, nil
}

// Get returns a listing. Inactive listings are only visible to their provider and admins.
func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Listing, error) {
	l, err := svc.repo.GetListing(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	if !l.IsActive && !actor.CanWrite(l.UserID) {
		return Listing{}, ErrNotFound
	}
	return l, nil
}

func (svc *Service) Query(ctx context.Context, actor core.Actor, filter QueryFilter, page core.Page) ([]Listing, error) {
	filter.Category = core.CleanString(filter.Category, true /* lower */)
	filter.Search = core.CleanString(filter.Search)
	if filter.UserID != actor.ID && !actor.IsAdmin {
		filter.ActiveOnly = true
	}
	return svc.repo.QueryListings(ctx, filter, page.Normalize())
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ul UpdateListing) (Listing, error) {
	l, err := svc.repo.GetListing(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	if !actor.CanWrite(l.UserID) {
		return Listing{}, ErrForbidden
	}
	if ul.Title != nil {
		l.Title = core.CleanString(*ul.Title)
	}
	if ul.Description != nil {
		l.Description = core.CleanString(*ul.Description)
	}
	if ul.Category != nil {
		l.Category = core.CleanString(*ul.Category, true /* lower */)
	}
	if ul.PriceCents != nil {
		l.PriceCents = *ul.PriceCents
	}
	if ul.Currency != nil {
		l.Currency = strings.ToUpper(core.CleanString(*ul.Currency))
	}
	if ul.IsActive != nil {
		l.IsActive = *ul.IsActive
	}
	l.UpdatedAt = core.NowFunc()
	l, err = svc.repo.UpdateListing(ctx, l)
	if err != nil {
		return Listing{}, errors.Wrap(err, "updating listing")
	}
	return l, nil
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	l, err := svc.repo.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanWrite(l.UserID) {
		return ErrForbidden
	}
	return svc.repo.DeleteListing(ctx, id)
}
