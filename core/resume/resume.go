// Package resume manages structured resumes and CVs.
package resume

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("resume not found")
	ErrForbidden = core.NewForbiddenError("you do not have access to this resume")
)

type (
	Contact struct {
		Email    string `json:"email" validate:"omitempty,email"`
		Phone    string `json:"phone" validate:"omitempty,max=30"`
		Location string `json:"location" validate:"omitempty,max=200"`
		Website  string `json:"website" validate:"omitempty,url"`
		LinkedIn string `json:"linkedin" validate:"omitempty,url"`
	}

	Education struct {
		Institution string `json:"institution" validate:"required,notblank,max=200"`
		Degree      string `json:"degree" validate:"omitempty,max=200"`
		Field       string `json:"field" validate:"omitempty,max=200"`
		StartDate   string `json:"start_date" validate:"omitempty,max=20"`
		EndDate     string `json:"end_date" validate:"omitempty,max=20"`
		Grade       string `json:"grade" validate:"omitempty,max=50"`
	}

	Experience struct {
		Company     string `json:"company" validate:"required,notblank,max=200"`
		Role        string `json:"role" validate:"required,notblank,max=200"`
		Location    string `json:"location" validate:"omitempty,max=200"`
		StartDate   string `json:"start_date" validate:"omitempty,max=20"`
		EndDate     string `json:"end_date" validate:"omitempty,max=20"`
		Description string `json:"description" validate:"omitempty,max=5000"`
	}

	Resume struct {
		ID         string       `json:"id"`
		UserID     string       `json:"user_id"`
		Kind       string       `json:"kind"` // resume | cv
		Title      string       `json:"title"`
		Summary    string       `json:"summary"`
		Contact    Contact      `json:"contact"`
		Education  []Education  `json:"education"`
		Experience []Experience `json:"experience"`
		Skills     []string     `json:"skills"`
		CreatedAt  time.Time    `json:"created_at"`
		UpdatedAt  time.Time    `json:"updated_at"`
	}

	NewResume struct {
		Kind       string       `json:"kind" validate:"omitempty,oneof=resume cv"`
		Title      string       `json:"title" validate:"required,notblank,max=200"`
		Summary    string       `json:"summary" validate:"omitempty,max=5000"`
		Contact    Contact      `json:"contact"`
		Education  []Education  `json:"education" validate:"omitempty,max=20,dive"`
		Experience []Experience `json:"experience" validate:"omitempty,max=50,dive"`
		Skills     []string     `json:"skills" validate:"omitempty,max=100,dive,max=100"`
	}

	// UpdateResume replaces the provided sections; nil fields are left untouched.
	UpdateResume struct {
		Title      *string       `json:"title" validate:"omitempty,notblank,max=200"`
		Summary    *string       `json:"summary" validate:"omitempty,max=5000"`
		Contact    *Contact      `json:"contact"`
		Education  *[]Education  `json:"education" validate:"omitempty,max=20,dive"`
		Experience *[]Experience `json:"experience" validate:"omitempty,max=50,dive"`
		Skills     *[]string     `json:"skills" validate:"omitempty,max=100,dive,max=100"`
	}

	Repository interface {
		CreateResume(ctx context.Context, res Resume) (Resume, error)
		GetResume(ctx context.Context, id string) (Resume, error)
		QueryResumes(ctx context.Context, userID string) ([]Resume, error)
		UpdateResume(ctx context.Context, res Resume) (Resume, error)
		DeleteResume(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
	}
)

func (nr *NewResume) Validate(validate *validator.Validate) error {
	nr.Kind = core.CleanString(nr.Kind, true /* lower */)
	if nr.Kind == "" {
		nr.Kind = "resume"
	}
	nr.Title = core.CleanString(nr.Title)
	nr.Skills = core.CleanStrings(nr.Skills)
	return validate.Struct(nr)
}

func (ur *UpdateResume) Validate(validate *validator.Validate) error {
	if ur.Skills != nil {
		skills := core.CleanStrings(*ur.Skills)
		ur.Skills = &skills
	}
	return validate.Struct(ur)
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, nr NewResume) (Resume, error) {
	now := core.NowFunc()
	res := Resume{
		UserID:     actor.ID,
		Kind:       nr.Kind,
		Title:      nr.Title,
		Summary:    core.CleanString(nr.Summary),
		Contact:    nr.Contact,
		Education:  nr.Education,
		Experience: nr.Experience,
		Skills:     nr.Skills,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	normalize(&res)
	res, err := svc.repo.CreateResume(ctx, res)
	if err != nil {
		return Resume{}, errors.Wrap(err, "creating resume")
	}
	return res, nil
}

func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Resume, error) {
	res, err := svc.repo.GetResume(ctx, id)
	if err != nil {
		return Resume{}, err
	}
	if !actor.CanRead(res.UserID) {
		return Resume{}, ErrForbidden
	}
	return res, nil
}

func (svc *Service) Query(ctx context.Context, actor core.Actor) ([]Resume, error) {
	return svc.repo.QueryResumes(ctx, actor.ID)
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ur UpdateResume) (Resume, error) {
	res, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Resume{}, err
	}
	if !actor.CanWrite(res.UserID) {
		return Resume{}, ErrForbidden
	}

	if ur.Title != nil {
		res.Title = core.CleanString(*ur.Title)
	}
	if ur.Summary != nil {
		res.Summary = core.CleanString(*ur.Summary)
	}
	if ur.Contact != nil {
		res.Contact = *ur.Contact
	}
	if ur.Education != nil {
		res.Education = *ur.Education
	}
	if ur.Experience != nil {
		res.Experience = *ur.Experience
	}
	if ur.Skills != nil {
		res.Skills = *ur.Skills
	}
	normalize(&res)
	res.UpdatedAt = core.NowFunc()

	res, err = svc.repo.UpdateResume(ctx, res)
	if err != nil {
		return Resume{}, errors.Wrap(err, "updating resume")
	}
	return res, nil
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	res, err := svc.repo.GetResume(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanWrite(res.UserID) {
		return ErrForbidden
	}
	return svc.repo.DeleteResume(ctx, id)
}

// normalize replaces nil sections by empty ones.
func normalize(res *Resume) {
	if res.Education == nil {
		res.Education = []Education{}
	}
	if res.Experience == nil {
		res.Experience = []Experience{}
	}
	if res.Skills == nil {
		res.Skills = []string{}
	}
}
