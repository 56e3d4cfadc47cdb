package document

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/resume"
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("document not found")
	ErrForbidden = core.NewForbiddenError("you do not have access to this document")
)

const generatePath = "/documents/generate"

type (
	Repository interface {
		CreateDocument(ctx context.Context, doc Document) (Document, error)
		GetDocument(ctx context.Context, id string) (Document, error)
		QueryDocuments(ctx context.Context, filter QueryFilter) ([]Document, error)
		UpdateDocument(ctx context.Context, doc Document) (Document, error)
		DeleteDocument(ctx context.Context, id string) error
	}

	ResumeGetter interface {
		Get(ctx context.Context, actor core.Actor, id string) (resume.Resume, error)
	}

	Service struct {
		repo    Repository
		ai      core.AIService
		resumes ResumeGetter
	}

	generationRequest struct {
		Kind   string                 `json:"kind"`
		Title  string                 `json:"title,omitempty"`
		Inputs map[string]interface{} `json:"inputs"`
		Resume *resume.Resume         `json:"resume,omitempty"`
	}

	generationResponse struct {
		Content  string                 `json:"content"`
		Title    string                 `json:"title"`
		Metadata map[string]interface{} `json:"metadata"`
	}
)

func NewService(repo Repository, ai core.AIService, resumes ResumeGetter) *Service {
	return &Service{repo: repo, ai: ai, resumes: resumes}
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, nd NewDocument) (Document, error) {
	now := core.NowFunc()
	doc := Document{
		UserID:    actor.ID,
		Kind:      nd.Kind,
		Title:     nd.Title,
		Content:   nd.Content,
		Status:    nd.Status,
		Version:   1,
		Metadata:  nd.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	doc, err := svc.repo.CreateDocument(ctx, doc)
	if err != nil {
		return Document{}, errors.Wrap(err, "creating document")
	}
	return doc, nil
}

func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Document, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !actor.CanRead(doc.UserID) {
		return Document{}, ErrForbidden
	}
	return doc, nil
}

func (svc *Service) getWritable(ctx context.Context, actor core.Actor, id string) (Document, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !actor.CanWrite(doc.UserID) {
		return Document{}, ErrForbidden
	}
	return doc, nil
}

func (svc *Service) Query(ctx context.Context, actor core.Actor, filter QueryFilter) ([]Document, error) {
	filter.UserID = actor.ID
	filter.Kind = core.CleanString(filter.Kind, true /* lower */)
	filter.Status = core.CleanString(filter.Status, true /* lower */)
	return svc.repo.QueryDocuments(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ud UpdateDocument) (Document, error) {
	doc, err := svc.getWritable(ctx, actor, id)
	if err != nil {
		return Document{}, err
	}
	ud.apply(&doc)
	doc.UpdatedAt = core.NowFunc()
	doc, err = svc.repo.UpdateDocument(ctx, doc)
	if err != nil {
		return Document{}, errors.Wrap(err, "updating document")
	}
	return doc, nil
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	if _, err := svc.getWritable(ctx, actor, id); err != nil {
		return err
	}
	return svc.repo.DeleteDocument(ctx, id)
}

// Generate sends validated inputs to the AI service and stores the returned content as a new generated draft.
func (svc *Service) Generate(ctx context.Context, actor core.Actor, gd GenerateDocument) (Document, error) {
	req := generationRequest{Kind: gd.Kind, Title: gd.Title, Inputs: gd.Inputs}
	if id, ok := gd.Inputs["resume_id"].(string); ok && id != "" {
		res, err := svc.resumes.Get(ctx, actor, id)
		if err != nil {
			if core.IsNotFound(err) || core.IsForbidden(err) {
				return Document{}, core.NewValidationError(nil, core.FieldError{Field: "inputs.resume_id", Error: "resume not found"})
			}
			return Document{}, errors.Wrap(err, "getting resume")
		}
		req.Resume = &res
	}

	resp, err := svc.ai.PostJSON(ctx, actor.ID, generatePath, req)
	if err != nil {
		return Document{}, err
	}
	if !resp.OK() {
		return Document{}, core.NewUpstreamError(fmt.Sprintf("AI service failed to generate the document (status %d)", resp.StatusCode), nil)
	}
	var gen generationResponse
	if err := json.Unmarshal(resp.Body, &gen); err != nil || gen.Content == "" {
		return Document{}, core.NewUpstreamError("AI service returned an invalid document", err)
	}

	title := gd.Title
	if title == "" {
		title = gen.Title
	}
	if title == "" {
		title = defaultTitle(gd)
	}
	metadata := map[string]interface{}{"inputs": gd.Inputs}
	for k, v := range gen.Metadata {
		metadata[k] = v
	}

	now := core.NowFunc()
	doc := Document{
		UserID:    actor.ID,
		Kind:      gd.Kind,
		Title:     core.Truncate(title, 200),
		Content:   gen.Content,
		Status:    StatusDraft,
		Version:   1,
		Generated: true,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc, err = svc.repo.CreateDocument(ctx, doc)
	if err != nil {
		return Document{}, errors.Wrap(err, "creating generated document")
	}
	return doc, nil
}

func defaultTitle(gd GenerateDocument) string {
	switch gd.Kind {
	case KindSOP:
		uni, _ := gd.Inputs["university"].(string)
		return "Statement of Purpose: " + uni
	case KindLOR:
		rec, _ := gd.Inputs["recommender"].(string)
		return "Letter of Recommendation: " + rec
	case KindEssay:
		return "Essay"
	case KindCV:
		return "CV"
	default:
		return "Resume"
	}
}
