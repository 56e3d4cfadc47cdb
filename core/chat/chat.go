// Package chat orchestrates conversations with the AI service and keeps their transcripts.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	chatPath      = "/chat"
	titleLen      = 60
	maxHistoryLen = 20
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("chat session not found")
	ErrForbidden = core.NewForbiddenError("you do not have access to this chat session")
)

type (
	Message struct {
		Role      string    `json:"role" bson:"role"`
		Content   string    `json:"content" bson:"content"`
		CreatedAt time.Time `json:"created_at" bson:"created_at"`
	}

	Session struct {
		ID        string    `json:"id" bson:"_id"`
		UserID    string    `json:"user_id" bson:"user_id"`
		Title     string    `json:"title" bson:"title"`
		Messages  []Message `json:"messages,omitempty" bson:"messages"`
		CreatedAt time.Time `json:"created_at" bson:"created_at"`
		UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	}

	SendMessage struct {
		SessionID string `json:"session_id" validate:"omitempty,uuid"`
		Message   string `json:"message" validate:"required,notblank,max=10000"`
	}

	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		// ListSessions returns the user's sessions, most recently updated first, without their messages.
		ListSessions(ctx context.Context, userID string) ([]Session, error)
		AppendMessages(ctx context.Context, id string, updatedAt time.Time, msgs ...Message) error
		DeleteSession(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
		ai   core.AIService
	}

	aiRequest struct {
		SessionID string    `json:"session_id"`
		Message   string    `json:"message"`
		History   []Message `json:"history"`
	}

	// Reply is the AI service reply, relayed verbatim, plus the session it belongs to.
	Reply struct {
		core.AIResponse
		SessionID string
	}
)

func (sm *SendMessage) Validate(validate *validator.Validate) error {
	sm.SessionID = core.CleanString(sm.SessionID)
	sm.Message = core.CleanString(sm.Message)
	return validate.Struct(sm)
}

func NewService(repo Repository, ai core.AIService) *Service {
	return &Service{repo: repo, ai: ai}
}

// Send appends the user message to the session (created if needed), forwards it to the AI service with the
// conversation history and stores the assistant reply when the AI service succeeded.
func (svc *Service) Send(ctx context.Context, actor core.Actor, sm SendMessage) (Reply, error) {
	var (
		sess Session
		err  error
	)
	now := core.NowFunc()
	if sm.SessionID != "" {
		sess, err = svc.Get(ctx, actor, sm.SessionID)
		if err != nil {
			return Reply{}, err
		}
	} else {
		sess, err = svc.repo.CreateSession(ctx, Session{
			UserID:    actor.ID,
			Title:     core.Truncate(sm.Message, titleLen),
			Messages:  []Message{},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return Reply{}, errors.Wrap(err, "creating chat session")
		}
	}

	history := sess.Messages
	if len(history) > maxHistoryLen {
		history = history[len(history)-maxHistoryLen:]
	}
	if history == nil {
		history = []Message{}
	}

	userMsg := Message{Role: RoleUser, Content: sm.Message, CreatedAt: now}
	if err := svc.repo.AppendMessages(ctx, sess.ID, now, userMsg); err != nil {
		return Reply{}, errors.Wrap(err, "saving user message")
	}

	resp, err := svc.ai.PostJSON(ctx, actor.ID, chatPath, aiRequest{SessionID: sess.ID, Message: sm.Message, History: history})
	if err != nil {
		return Reply{}, err
	}
	reply := Reply{AIResponse: resp, SessionID: sess.ID}
	if !resp.OK() {
		return reply, nil
	}

	at := core.NowFunc()
	botMsg := Message{Role: RoleAssistant, Content: assistantContent(resp.Body), CreatedAt: at}
	if err := svc.repo.AppendMessages(ctx, sess.ID, at, botMsg); err != nil {
		return Reply{}, errors.Wrap(err, "saving assistant message")
	}
	return reply, nil
}

func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Session, error) {
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.UserID != actor.ID {
		return Session{}, ErrForbidden
	}
	return sess, nil
}

func (svc *Service) List(ctx context.Context, actor core.Actor) ([]Session, error) {
	return svc.repo.ListSessions(ctx, actor.ID)
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return err
	}
	return svc.repo.DeleteSession(ctx, id)
}

// assistantContent extracts the reply text out of an AI service response body.
func assistantContent(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"response", "reply", "message"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return string(body)
}
