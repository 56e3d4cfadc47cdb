package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core/profile"
)

var profileColumns = []string{
	"user_id", "nationality", "current_education", "field_of_study", "gpa", "target_countries", "target_degree",
	"target_intake", "test_scores", "budget", "bio", "created_at", "updated_at",
}

type profileRow struct {
	UserID           string                         `db:"user_id"`
	Nationality      string                         `db:"nationality"`
	CurrentEducation string                         `db:"current_education"`
	FieldOfStudy     string                         `db:"field_of_study"`
	GPA              *float64                       `db:"gpa"`
	TargetCountries  pq.StringArray                 `db:"target_countries"`
	TargetDegree     string                         `db:"target_degree"`
	TargetIntake     string                         `db:"target_intake"`
	TestScores       jsonColumn[map[string]float64] `db:"test_scores"`
	Budget           *int                           `db:"budget"`
	Bio              string                         `db:"bio"`
	CreatedAt        time.Time                      `db:"created_at"`
	UpdatedAt        time.Time                      `db:"updated_at"`
}

func (row profileRow) toProfile() profile.Profile {
	p := profile.Profile{
		UserID:           row.UserID,
		Nationality:      row.Nationality,
		CurrentEducation: row.CurrentEducation,
		FieldOfStudy:     row.FieldOfStudy,
		GPA:              row.GPA,
		TargetCountries:  []string(row.TargetCountries),
		TargetDegree:     row.TargetDegree,
		TargetIntake:     row.TargetIntake,
		TestScores:       row.TestScores.V,
		Budget:           row.Budget,
		Bio:              row.Bio,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
	if p.TargetCountries == nil {
		p.TargetCountries = []string{}
	}
	if p.TestScores == nil {
		p.TestScores = map[string]float64{}
	}
	return p
}

type profileRepository struct {
	db *sqlx.DB
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *sqlx.DB) *profileRepository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	query, args, err := psql.Select(profileColumns...).From("profiles").Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "building query")
	}
	var row profileRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return profile.Profile{}, trapNoRowsErr(err, profile.ErrNotFound)
	}
	return row.toProfile(), nil
}

func (repo *profileRepository) SaveProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	query, args, err := psql.Insert("profiles").
		Columns(profileColumns...).
		Values(p.UserID, p.Nationality, p.CurrentEducation, p.FieldOfStudy, p.GPA, pq.StringArray(p.TargetCountries),
			p.TargetDegree, p.TargetIntake, jsonOf(p.TestScores), p.Budget, p.Bio, p.CreatedAt, p.UpdatedAt).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			nationality = EXCLUDED.nationality,
			current_education = EXCLUDED.current_education,
			field_of_study = EXCLUDED.field_of_study,
			gpa = EXCLUDED.gpa,
			target_countries = EXCLUDED.target_countries,
			target_degree = EXCLUDED.target_degree,
			target_intake = EXCLUDED.target_intake,
			test_scores = EXCLUDED.test_scores,
			budget = EXCLUDED.budget,
			bio = EXCLUDED.bio,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "building query")
	}
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return profile.Profile{}, errors.Wrap(err, "saving profile")
	}
	return p, nil
}
