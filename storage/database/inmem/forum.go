package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/forum"
)

type forumRepository struct {
	db *DB
}

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(db *DB) *forumRepository {
	return &forumRepository{db: db}
}

func (repo *forumRepository) CreateThread(_ context.Context, t forum.Thread) (forum.Thread, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t.ID = newID()
	stored := cloneThread(t)
	repo.db.threads[t.ID] = &stored
	return t, nil
}

func (repo *forumRepository) GetThread(_ context.Context, id string) (forum.Thread, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.threads[id]; ok {
		return cloneThread(*t), nil
	}
	return forum.Thread{}, forum.ErrNotFound
}

func (repo *forumRepository) QueryThreads(_ context.Context, filter forum.QueryFilter, page core.Page) ([]forum.Thread, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	threads := make([]forum.Thread, 0)
	for _, t := range repo.db.threads {
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		if filter.Tag != "" && !core.StringInSlice(filter.Tag, t.Tags) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Body), search) {
			continue
		}
		threads = append(threads, cloneThread(*t))
	}
	sort.SliceStable(threads, func(i, j int) bool { return lastActivity(threads[i]).After(lastActivity(threads[j])) })
	start, end := paginate(len(threads), page.Limit, page.Offset)
	return threads[start:end], nil
}

func (repo *forumRepository) UpdateThread(_ context.Context, t forum.Thread) (forum.Thread, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.threads[t.ID]
	if !ok {
		return forum.Thread{}, forum.ErrNotFound
	}
	t.ReplyCount = orig.ReplyCount
	t.LastReplyAt = orig.LastReplyAt
	stored := cloneThread(t)
	repo.db.threads[t.ID] = &stored
	return t, nil
}

func (repo *forumRepository) DeleteThread(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.threads[id]; !ok {
		return forum.ErrNotFound
	}
	delete(repo.db.threads, id)
	for rid, r := range repo.db.replies {
		if r.ThreadID == id {
			delete(repo.db.replies, rid)
		}
	}
	return nil
}

func (repo *forumRepository) CreateReply(_ context.Context, r forum.Reply) (forum.Reply, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.threads[r.ThreadID]
	if !ok {
		return forum.Reply{}, forum.ErrNotFound
	}
	r.ID = newID()
	stored := r
	repo.db.replies[r.ID] = &stored
	t.ReplyCount++
	at := r.CreatedAt
	t.LastReplyAt = &at
	return r, nil
}

func (repo *forumRepository) QueryReplies(_ context.Context, threadID string, page core.Page) ([]forum.Reply, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	replies := make([]forum.Reply, 0)
	for _, r := range repo.db.replies {
		if r.ThreadID == threadID {
			replies = append(replies, *r)
		}
	}
	sort.SliceStable(replies, func(i, j int) bool { return replies[i].CreatedAt.Before(replies[j].CreatedAt) })
	start, end := paginate(len(replies), page.Limit, page.Offset)
	return replies[start:end], nil
}

func lastActivity(t forum.Thread) time.Time {
	if t.LastReplyAt != nil {
		return *t.LastReplyAt
	}
	return t.CreatedAt
}

func cloneThread(t forum.Thread) forum.Thread {
	t.Tags = append([]string{}, t.Tags...)
	return t
}
