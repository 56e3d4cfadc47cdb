// Package forum hosts the community discussion threads.
package forum

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/notification"
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("thread not found")
	ErrForbidden = core.NewForbiddenError("only the author may change this thread")
)

type (
	Thread struct {
		ID          string     `json:"id"`
		UserID      string     `json:"user_id"`
		Category    string     `json:"category"`
		Title       string     `json:"title"`
		Body        string     `json:"body"`
		Tags        []string   `json:"tags"`
		ReplyCount  int        `json:"reply_count"`
		LastReplyAt *time.Time `json:"last_reply_at"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
	}

	Reply struct {
		ID        string    `json:"id"`
		ThreadID  string    `json:"thread_id"`
		UserID    string    `json:"user_id"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"created_at"`
	}

	NewThread struct {
		Category string   `json:"category" validate:"required,oneof=admissions visas scholarships tests housing general"`
		Title    string   `json:"title" validate:"required,notblank,max=200"`
		Body     string   `json:"body" validate:"required,notblank,max=20000"`
		Tags     []string `json:"tags" validate:"omitempty,max=10,dive,max=50"`
	}

	UpdateThread struct {
		Category *string   `json:"category" validate:"omitempty,oneof=admissions visas scholarships tests housing general"`
		Title    *string   `json:"title" validate:"omitempty,notblank,max=200"`
		Body     *string   `json:"body" validate:"omitempty,notblank,max=20000"`
		Tags     *[]string `json:"tags" validate:"omitempty,max=10,dive,max=50"`
	}

	NewReply struct {
		Body string `json:"body" validate:"required,notblank,max=20000"`
	}

	QueryFilter struct {
		Category string
		Tag      string
		Search   string // case-insensitive match on Title or Body
	}

	Repository interface {
		CreateThread(ctx context.Context, t Thread) (Thread, error)
		GetThread(ctx context.Context, id string) (Thread, error)
		// QueryThreads lists the most recently active threads first.
		QueryThreads(ctx context.Context, filter QueryFilter, page core.Page) ([]Thread, error)
		UpdateThread(ctx context.Context, t Thread) (Thread, error)
		DeleteThread(ctx context.Context, id string) error
		// CreateReply saves r and bumps the reply count and last reply time of its thread.
		CreateReply(ctx context.Context, r Reply) (Reply, error)
		QueryReplies(ctx context.Context, threadID string, page core.Page) ([]Reply, error)
	}

	Notifier interface {
		Notify(ctx context.Context, userID, kind, title, message string, data map[string]interface{}) error
	}

	Service struct {
		repo     Repository
		notifier Notifier
		logger   core.Logger
	}
)

func (nt *NewThread) Validate(validate *validator.Validate) error {
	nt.Category = core.CleanString(nt.Category, true /* lower */)
	nt.Title = core.CleanString(nt.Title)
	nt.Body = core.CleanString(nt.Body)
	nt.Tags = core.CleanStrings(nt.Tags, true /* lower */)
	return validate.Struct(nt)
}

func (ut *UpdateThread) Validate(validate *validator.Validate) error {
	if ut.Category != nil {
		cat := core.CleanString(*ut.Category, true /* lower */)
		ut.Category = &cat
	}
	if ut.Tags != nil {
		tags := core.CleanStrings(*ut.Tags, true /* lower */)
		ut.Tags = &tags
	}
	return validate.Struct(ut)
}

func (nr *NewReply) Validate(validate *validator.Validate) error {
	nr.Body = core.CleanString(nr.Body)
	return validate.Struct(nr)
}

// NewService creates the forum Service. notifier is optional.
func NewService(repo Repository, notifier Notifier, logger core.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

func (svc *Service) CreateThread(ctx context.Context, actor core.Actor, nt NewThread) (Thread, error) {
	now := core.NowFunc()
	t := Thread{
		UserID:    actor.ID,
		Category:  nt.Category,
		Title:     nt.Title,
		Body:      nt.Body,
		Tags:      nt.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t, err := svc.repo.CreateThread(ctx, t)
	if err != nil {
		return Thread{}, errors.Wrap(err, "creating thread")
	}
	return t, nil
}

func (svc *Service) GetThread(ctx context.Context, id string) (Thread, error) {
	return svc.repo.GetThread(ctx, id)
}

func (svc *Service) QueryThreads(ctx context.Context, filter QueryFilter, page core.Page) ([]Thread, error) {
	filter.Category = core.CleanString(filter.Category, true /* lower */)
	filter.Tag = core.CleanString(filter.Tag, true /* lower */)
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryThreads(ctx, filter, page.Normalize())
}

func (svc *Service) getWritable(ctx context.Context, actor core.Actor, id string) (Thread, error) {
	t, err := svc.repo.GetThread(ctx, id)
	if err != nil {
		return Thread{}, err
	}
	if !actor.CanWrite(t.UserID) {
		return Thread{}, ErrForbidden
	}
	return t, nil
}

func (svc *Service) UpdateThread(ctx context.Context, actor core.Actor, id string, ut UpdateThread) (Thread, error) {
	t, err := svc.getWritable(ctx, actor, id)
	if err != nil {
		return Thread{}, err
	}
	if ut.Category != nil {
		t.Category = *ut.Category
	}
	if ut.Title != nil {
		t.Title = core.CleanString(*ut.Title)
	}
	if ut.Body != nil {
		t.Body = core.CleanString(*ut.Body)
	}
	if ut.Tags != nil {
		t.Tags = *ut.Tags
	}
	t.UpdatedAt = core.NowFunc()
	t, err = svc.repo.UpdateThread(ctx, t)
	if err != nil {
		return Thread{}, errors.Wrap(err, "updating thread")
	}
	return t, nil
}

func (svc *Service) DeleteThread(ctx context.Context, actor core.Actor, id string) error {
	if _, err := svc.getWritable(ctx, actor, id); err != nil {
		return err
	}
	return svc.repo.DeleteThread(ctx, id)
}

// Reply adds a reply to a thread and notifies the thread author.
func (svc *Service) Reply(ctx context.Context, actor core.Actor, threadID string, nr NewReply) (Reply, error) {
	t, err := svc.repo.GetThread(ctx, threadID)
	if err != nil {
		return Reply{}, err
	}
	r, err := svc.repo.CreateReply(ctx, Reply{
		ThreadID:  t.ID,
		UserID:    actor.ID,
		Body:      nr.Body,
		CreatedAt: core.NowFunc(),
	})
	if err != nil {
		return Reply{}, errors.Wrap(err, "creating reply")
	}

	if svc.notifier != nil && t.UserID != actor.ID {
		title := "New reply: " + core.Truncate(t.Title, 80)
		msg := fmt.Sprintf("%s replied to your thread.", actorName(actor))
		data := map[string]interface{}{"thread_id": t.ID, "reply_id": r.ID, "link": "/forum/threads/" + t.ID}
		if err := svc.notifier.Notify(ctx, t.UserID, notification.TypeCommunity, title, msg, data); err != nil {
			svc.logger.Warn("failed to notify thread author", errors.Wrap(err, "notifying author"))
		}
	}
	return r, nil
}

func (svc *Service) Replies(ctx context.Context, threadID string, page core.Page) ([]Reply, error) {
	if _, err := svc.repo.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	return svc.repo.QueryReplies(ctx, threadID, page.Normalize())
}

func actorName(actor core.Actor) string {
	if actor.Name != "" {
		return actor.Name
	}
	return "Someone"
}
