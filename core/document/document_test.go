package document_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/document"
	"github.com/trezcool/edulens/core/resume"
	inmemdb "github.com/trezcool/edulens/storage/database/inmem"
)

type fakeAI struct {
	status int
	body   string
	path   string
	sent   map[string]interface{}
}

func (ai *fakeAI) Forward(context.Context, string, core.AIRequest) (core.AIResponse, error) {
	return core.AIResponse{}, nil
}

func (ai *fakeAI) PostJSON(_ context.Context, _, path string, payload interface{}) (core.AIResponse, error) {
	ai.path = path
	raw, _ := json.Marshal(payload)
	ai.sent = nil
	_ = json.Unmarshal(raw, &ai.sent)
	return core.AIResponse{StatusCode: ai.status, ContentType: "application/json", Body: []byte(ai.body)}, nil
}

var (
	student = core.Actor{ID: "student-1"}
	other   = core.Actor{ID: "student-2"}
)

func setup(t *testing.T, ai *fakeAI) (*document.Service, *resume.Service) {
	t.Helper()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })

	repos := inmemdb.NewRepositories(inmemdb.Open())
	resumes := resume.NewService(repos.Resumes)
	return document.NewService(repos.Documents, ai, resumes), resumes
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok, "expected a validation error, got %v", err)
	names := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestGenerateDocument_Validate(t *testing.T) {
	validate, _ := core.NewValidator()

	tests := []struct {
		name   string
		gd     document.GenerateDocument
		fields []string
	}{
		{
			name: "valid sop",
			gd: document.GenerateDocument{Kind: "SOP", Inputs: map[string]interface{}{
				"university": "MIT", "program": "EECS", "background": "BSc", "goals": "research", "word_limit": 800,
			}},
		},
		{
			name: "sop missing goals with a short word limit",
			gd: document.GenerateDocument{Kind: "sop", Inputs: map[string]interface{}{
				"university": "MIT", "program": "EECS", "background": "BSc", "word_limit": 50,
			}},
			fields: []string{"inputs.goals", "inputs.word_limit"},
		},
		{
			name: "lor strengths must not be empty",
			gd: document.GenerateDocument{Kind: "lor", Inputs: map[string]interface{}{
				"recommender": "Dr. Mensah", "relationship": "supervisor", "strengths": []interface{}{},
			}},
			fields: []string{"inputs.strengths"},
		},
		{
			name:   "cv needs a resume or sections",
			gd:     document.GenerateDocument{Kind: "cv", Inputs: map[string]interface{}{"target_role": "engineer"}},
			fields: []string{"inputs", "inputs.resume_id"},
		},
		{
			name:   "unknown kind",
			gd:     document.GenerateDocument{Kind: "poem", Inputs: map[string]interface{}{}},
			fields: []string{"kind"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.gd.Validate(validate)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			if verr, ok := err.(*core.ValidationError); ok {
				assert.Equal(t, tt.fields, fieldNames(t, verr))
				return
			}
			// struct level errors come from the validator itself
			assert.Error(t, err)
		})
	}
}

func TestService_Generate(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAI{status: 200, body: `{"content": "Dear committee...", "metadata": {"model": "m1"}}`}
	svc, _ := setup(t, ai)

	inputs := map[string]interface{}{"university": "MIT", "program": "EECS", "background": "BSc", "goals": "research"}
	doc, err := svc.Generate(ctx, student, document.GenerateDocument{Kind: document.KindSOP, Inputs: inputs})
	require.NoError(t, err)
	assert.Equal(t, "/documents/generate", ai.path)
	assert.Equal(t, "sop", ai.sent["kind"])
	assert.True(t, doc.Generated)
	assert.Equal(t, document.StatusDraft, doc.Status)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "Dear committee...", doc.Content)
	assert.Equal(t, "Statement of Purpose: MIT", doc.Title)
	assert.Equal(t, "m1", doc.Metadata["model"])
	assert.Equal(t, inputs, doc.Metadata["inputs"])

	docs, err := svc.Query(ctx, student, document.QueryFilter{Kind: "SOP"})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestService_GenerateUpstreamFailures(t *testing.T) {
	ctx := context.Background()
	inputs := map[string]interface{}{"prompt": "Why us?"}

	for _, ai := range []*fakeAI{
		{status: 503, body: `{"detail": "overloaded"}`},
		{status: 200, body: `not json`},
		{status: 200, body: `{"content": ""}`},
	} {
		svc, _ := setup(t, ai)
		_, err := svc.Generate(ctx, student, document.GenerateDocument{Kind: document.KindEssay, Inputs: inputs})
		assert.True(t, core.IsUpstream(err), "body %q: %v", ai.body, err)

		docs, err := svc.Query(ctx, student, document.QueryFilter{})
		require.NoError(t, err)
		assert.Empty(t, docs, "nothing is stored when generation fails")
	}
}

func TestService_GenerateFromResume(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAI{status: 200, body: `{"content": "Ama Owusu\nSoftware engineer", "title": "Ama's CV"}`}
	svc, resumes := setup(t, ai)

	res, err := resumes.Create(ctx, student, resume.NewResume{Kind: "cv", Title: "Main", Skills: []string{"Go"}})
	require.NoError(t, err)

	_, err = svc.Generate(ctx, other, document.GenerateDocument{Kind: document.KindCV, Inputs: map[string]interface{}{"resume_id": res.ID}})
	assert.Equal(t, []string{"inputs.resume_id"}, fieldNames(t, err))

	doc, err := svc.Generate(ctx, student, document.GenerateDocument{Kind: document.KindCV, Inputs: map[string]interface{}{"resume_id": res.ID}})
	require.NoError(t, err)
	assert.Equal(t, "Ama's CV", doc.Title)
	sentResume, ok := ai.sent["resume"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, res.ID, sentResume["id"])
}

func TestService_UpdateBumpsVersion(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, &fakeAI{})

	doc, err := svc.Create(ctx, student, document.NewDocument{Kind: document.KindEssay, Title: "Essay", Content: "v1", Status: document.StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)

	same := "v1"
	doc, err = svc.Update(ctx, student, doc.ID, document.UpdateDocument{Content: &same})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)

	next := "v2"
	final := document.StatusFinal
	doc, err = svc.Update(ctx, student, doc.ID, document.UpdateDocument{Content: &next, Status: &final})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, document.StatusFinal, doc.Status)

	_, err = svc.Update(ctx, other, doc.ID, document.UpdateDocument{Content: &same})
	assert.Equal(t, document.ErrForbidden, err)
	assert.Equal(t, document.ErrForbidden, svc.Delete(ctx, other, doc.ID))
	require.NoError(t, svc.Delete(ctx, student, doc.ID))
	_, err = svc.Get(ctx, student, doc.ID)
	assert.Equal(t, document.ErrNotFound, err)
}
