package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/chat"
	inmemdb "github.com/trezcool/edulens/storage/database/inmem"
)

type aiRequest struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	History   []chat.Message `json:"history"`
}

type fakeAI struct {
	status int
	body   string
	err    error
	last   aiRequest
}

func (ai *fakeAI) Forward(context.Context, string, core.AIRequest) (core.AIResponse, error) {
	return core.AIResponse{}, nil
}

func (ai *fakeAI) PostJSON(_ context.Context, _, _ string, payload interface{}) (core.AIResponse, error) {
	raw, _ := json.Marshal(payload)
	_ = json.Unmarshal(raw, &ai.last)
	if ai.err != nil {
		return core.AIResponse{}, ai.err
	}
	return core.AIResponse{StatusCode: ai.status, ContentType: "application/json", Body: []byte(ai.body)}, nil
}

var (
	student = core.Actor{ID: "student-1"}
	other   = core.Actor{ID: "student-2"}
)

func setup(t *testing.T, ai *fakeAI) *chat.Service {
	t.Helper()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })
	return chat.NewService(inmemdb.NewChatRepository(inmemdb.Open()), ai)
}

func TestService_Send(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAI{status: 200, body: `{"response": "Start with the I-20 form."}`}
	svc := setup(t, ai)

	question := "How do I apply for a US student visa? " + strings.Repeat("details ", 20)
	reply, err := svc.Send(ctx, student, chat.SendMessage{Message: question})
	require.NoError(t, err)
	require.NotEmpty(t, reply.SessionID)
	assert.True(t, reply.OK())
	assert.Equal(t, reply.SessionID, ai.last.SessionID)
	assert.Empty(t, ai.last.History)

	sess, err := svc.Get(ctx, student, reply.SessionID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(sess.Title)), 60+3)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, chat.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, chat.RoleAssistant, sess.Messages[1].Role)
	assert.Equal(t, "Start with the I-20 form.", sess.Messages[1].Content)

	_, err = svc.Send(ctx, student, chat.SendMessage{SessionID: reply.SessionID, Message: "And then?"})
	require.NoError(t, err)
	require.Len(t, ai.last.History, 2, "the history excludes the new message")
	assert.Equal(t, "And then?", ai.last.Message)

	sessions, err := svc.List(ctx, student)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Empty(t, sessions[0].Messages)
}

func TestService_SendUpstreamErrors(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAI{status: 503, body: `{"detail": "overloaded"}`}
	svc := setup(t, ai)

	reply, err := svc.Send(ctx, student, chat.SendMessage{Message: "hello"})
	require.NoError(t, err, "AI service errors are relayed")
	assert.Equal(t, 503, reply.StatusCode)

	sess, err := svc.Get(ctx, student, reply.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 1, "no assistant message is stored")

	ai.err = core.NewUpstreamError("AI service unavailable", errors.New("connection refused"))
	_, err = svc.Send(ctx, student, chat.SendMessage{SessionID: reply.SessionID, Message: "still there?"})
	assert.True(t, core.IsUpstream(err))
}

func TestService_Access(t *testing.T) {
	ctx := context.Background()
	svc := setup(t, &fakeAI{status: 200, body: `plain text`})

	reply, err := svc.Send(ctx, student, chat.SendMessage{Message: "hi"})
	require.NoError(t, err)
	sess, err := svc.Get(ctx, student, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "plain text", sess.Messages[1].Content)

	_, err = svc.Send(ctx, other, chat.SendMessage{SessionID: reply.SessionID, Message: "hi"})
	assert.Equal(t, chat.ErrForbidden, err)
	assert.Equal(t, chat.ErrForbidden, svc.Delete(ctx, other, reply.SessionID))

	require.NoError(t, svc.Delete(ctx, student, reply.SessionID))
	_, err = svc.Get(ctx, student, reply.SessionID)
	assert.Equal(t, chat.ErrNotFound, err)
}
