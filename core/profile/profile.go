// Package profile manages the study-abroad profile of a student.
package profile

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

var ErrNotFound = core.NewNotFoundError("profile not found")

type Profile struct {
	UserID           string             `json:"user_id"`
	Nationality      string             `json:"nationality"`
	CurrentEducation string             `json:"current_education"`
	FieldOfStudy     string             `json:"field_of_study"`
	GPA              *float64           `json:"gpa"`
	TargetCountries  []string           `json:"target_countries"`
	TargetDegree     string             `json:"target_degree"`
	TargetIntake     string             `json:"target_intake"`
	TestScores       map[string]float64 `json:"test_scores"`
	Budget           *int               `json:"budget"`
	Bio              string             `json:"bio"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// UpdateProfile holds a partial update: nil fields are left untouched.
type UpdateProfile struct {
	Nationality      *string            `json:"nationality" validate:"omitempty,max=100"`
	CurrentEducation *string            `json:"current_education" validate:"omitempty,max=200"`
	FieldOfStudy     *string            `json:"field_of_study" validate:"omitempty,max=200"`
	GPA              *float64           `json:"gpa" validate:"omitempty,min=0,max=10"`
	TargetCountries  []string           `json:"target_countries" validate:"omitempty,max=20,dive,notblank"`
	TargetDegree     *string            `json:"target_degree" validate:"omitempty,oneof=bachelors masters phd diploma other"`
	TargetIntake     *string            `json:"target_intake" validate:"omitempty,max=50"`
	TestScores       map[string]float64 `json:"test_scores" validate:"omitempty,max=20,dive,keys,notblank,endkeys,min=0"`
	Budget           *int               `json:"budget" validate:"omitempty,min=0"`
	Bio              *string            `json:"bio" validate:"omitempty,max=2000"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	up.TargetCountries = core.CleanStrings(up.TargetCountries)
	if up.TargetDegree != nil {
		deg := core.CleanString(*up.TargetDegree, true /* lower */)
		up.TargetDegree = &deg
	}
	return validate.Struct(up)
}

// apply merges up into p.
func (up UpdateProfile) apply(p *Profile) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	setStr(&p.Nationality, up.Nationality)
	setStr(&p.CurrentEducation, up.CurrentEducation)
	setStr(&p.FieldOfStudy, up.FieldOfStudy)
	setStr(&p.TargetDegree, up.TargetDegree)
	setStr(&p.TargetIntake, up.TargetIntake)
	setStr(&p.Bio, up.Bio)
	if up.GPA != nil {
		p.GPA = up.GPA
	}
	if up.Budget != nil {
		p.Budget = up.Budget
	}
	if up.TargetCountries != nil {
		p.TargetCountries = up.TargetCountries
	}
	if up.TestScores != nil {
		if p.TestScores == nil {
			p.TestScores = make(map[string]float64, len(up.TestScores))
		}
		for name, score := range up.TestScores {
			p.TestScores[core.CleanString(name, true /* lower */)] = score
		}
	}
}

type (
	Repository interface {
		GetProfile(ctx context.Context, userID string) (Profile, error)
		SaveProfile(ctx context.Context, p Profile) (Profile, error) // upsert
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the Actor's profile, or an empty one if it was never saved.
func (svc *Service) Get(ctx context.Context, actor core.Actor) (Profile, error) {
	p, err := svc.repo.GetProfile(ctx, actor.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return emptyProfile(actor.ID), nil
		}
		return Profile{}, errors.Wrap(err, "getting profile")
	}
	return p, nil
}

// Update merges a partial update into the Actor's profile, creating it if needed.
func (svc *Service) Update(ctx context.Context, actor core.Actor, up UpdateProfile) (Profile, error) {
	p, err := svc.Get(ctx, actor)
	if err != nil {
		return Profile{}, err
	}
	up.apply(&p)
	now := core.NowFunc()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return svc.repo.SaveProfile(ctx, p)
}

func emptyProfile(userID string) Profile {
	return Profile{
		UserID:          userID,
		TargetCountries: []string{},
		TestScores:      map[string]float64{},
	}
}
