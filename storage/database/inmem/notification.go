package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) GetPreferences(_ context.Context, userID string) (notification.Preferences, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.preferences[userID]; ok {
		return clonePreferences(*p), nil
	}
	return notification.Preferences{}, notification.ErrPreferencesNotFound
}

func (repo *notificationRepository) SavePreferences(_ context.Context, p notification.Preferences) (notification.Preferences, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := clonePreferences(p)
	repo.db.preferences[p.UserID] = &stored
	return p, nil
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n.ID = newID()
	stored := n
	repo.db.notifications[n.ID] = &stored
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, userID string, unreadOnly bool, page core.Page) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	list := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		list = append(list, *n)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	start, end := paginate(len(list), page.Limit, page.Offset)
	return list[start:end], nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, n := range repo.db.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, userID, id string, readAt time.Time) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok || n.UserID != userID {
		return notification.Notification{}, notification.ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &readAt
	}
	return *n, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, userID string, readAt time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for _, n := range repo.db.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			at := readAt
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func clonePreferences(p notification.Preferences) notification.Preferences {
	channels := make(map[string]bool, len(p.Channels))
	for k, v := range p.Channels {
		channels[k] = v
	}
	types := make(map[string]bool, len(p.Types))
	for k, v := range p.Types {
		types[k] = v
	}
	p.Channels = channels
	p.Types = types
	p.ReminderLeadHours = append([]int{}, p.ReminderLeadHours...)
	return p
}
