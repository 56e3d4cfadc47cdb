package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/edulens/core/chat"
)

type chatRepository struct {
	db *DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

// NewChatRepository is used when no MongoDB is configured.
func NewChatRepository(db *DB) *chatRepository {
	return &chatRepository{db: db}
}

func (repo *chatRepository) CreateSession(_ context.Context, s chat.Session) (chat.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = newID()
	stored := s
	stored.Messages = append([]chat.Message{}, s.Messages...)
	repo.db.chatSessions[s.ID] = &stored
	return s, nil
}

func (repo *chatRepository) GetSession(_ context.Context, id string) (chat.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	s, ok := repo.db.chatSessions[id]
	if !ok {
		return chat.Session{}, chat.ErrNotFound
	}
	out := *s
	out.Messages = append([]chat.Message{}, s.Messages...)
	return out, nil
}

func (repo *chatRepository) ListSessions(_ context.Context, userID string) ([]chat.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sessions := make([]chat.Session, 0)
	for _, s := range repo.db.chatSessions {
		if s.UserID == userID {
			out := *s
			out.Messages = nil
			sessions = append(sessions, out)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt) })
	return sessions, nil
}

func (repo *chatRepository) AppendMessages(_ context.Context, id string, updatedAt time.Time, msgs ...chat.Message) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.chatSessions[id]
	if !ok {
		return chat.ErrNotFound
	}
	s.Messages = append(s.Messages, msgs...)
	s.UpdatedAt = updatedAt
	return nil
}

func (repo *chatRepository) DeleteSession(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.chatSessions[id]; !ok {
		return chat.ErrNotFound
	}
	delete(repo.db.chatSessions, id)
	return nil
}
