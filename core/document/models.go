// Package document stores application documents (SOP, LOR, essays, CVs) and generates drafts through the AI service.
package document

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/edulens/core"
)

const (
	KindSOP    = "sop"
	KindLOR    = "lor"
	KindEssay  = "essay"
	KindCV     = "cv"
	KindResume = "resume"
	KindOther  = "other"

	StatusDraft = "draft"
	StatusFinal = "final"
)

var Kinds = []string{KindSOP, KindLOR, KindEssay, KindCV, KindResume, KindOther}

type Document struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Kind      string                 `json:"kind"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Status    string                 `json:"status"`
	Version   int                    `json:"version"`
	Generated bool                   `json:"generated"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

type NewDocument struct {
	Kind     string                 `json:"kind" validate:"required,oneof=sop lor essay cv resume other"`
	Title    string                 `json:"title" validate:"required,notblank,max=200"`
	Content  string                 `json:"content" validate:"omitempty,max=100000"`
	Status   string                 `json:"status" validate:"omitempty,oneof=draft final"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (nd *NewDocument) Validate(validate *validator.Validate) error {
	nd.Kind = core.CleanString(nd.Kind, true /* lower */)
	nd.Title = core.CleanString(nd.Title)
	nd.Status = core.CleanString(nd.Status, true /* lower */)
	if nd.Status == "" {
		nd.Status = StatusDraft
	}
	return validate.Struct(nd)
}

// UpdateDocument holds a partial update. A content change bumps the document version.
type UpdateDocument struct {
	Title    *string                `json:"title" validate:"omitempty,notblank,max=200"`
	Content  *string                `json:"content" validate:"omitempty,max=100000"`
	Status   *string                `json:"status" validate:"omitempty,oneof=draft final"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (ud *UpdateDocument) Validate(validate *validator.Validate) error {
	return validate.Struct(ud)
}

func (ud UpdateDocument) apply(doc *Document) {
	if ud.Title != nil {
		doc.Title = core.CleanString(*ud.Title)
	}
	if ud.Status != nil {
		doc.Status = core.CleanString(*ud.Status, true /* lower */)
	}
	if ud.Content != nil && *ud.Content != doc.Content {
		doc.Content = *ud.Content
		doc.Version++
	}
	if ud.Metadata != nil {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{}, len(ud.Metadata))
		}
		for k, v := range ud.Metadata {
			doc.Metadata[k] = v
		}
	}
}

// GenerateDocument asks the AI service for a draft of `Kind` built from `Inputs`.
type GenerateDocument struct {
	Kind   string                 `json:"kind" validate:"required,oneof=sop lor essay cv resume"`
	Title  string                 `json:"title" validate:"omitempty,max=200"`
	Inputs map[string]interface{} `json:"inputs" validate:"required"`
}

func (gd *GenerateDocument) Validate(validate *validator.Validate) error {
	gd.Kind = core.CleanString(gd.Kind, true /* lower */)
	gd.Title = core.CleanString(gd.Title)
	if err := validate.Struct(gd); err != nil {
		return err
	}
	return validateInputs(gd.Kind, gd.Inputs)
}

type QueryFilter struct {
	UserID string
	Kind   string
	Status string
}
