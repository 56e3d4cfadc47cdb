// Package inmemdb implements every repository in memory. It backs the tests and local runs without Postgres.
package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/edulens/core/application"
	"github.com/trezcool/edulens/core/chat"
	"github.com/trezcool/edulens/core/deadline"
	"github.com/trezcool/edulens/core/document"
	"github.com/trezcool/edulens/core/forum"
	"github.com/trezcool/edulens/core/marketplace"
	"github.com/trezcool/edulens/core/notification"
	"github.com/trezcool/edulens/core/profile"
	"github.com/trezcool/edulens/core/resume"
	"github.com/trezcool/edulens/core/user"
	"github.com/trezcool/edulens/core/waitlist"
)

// DB holds one table per entity. Each repository locks the whole DB.
type DB struct {
	mutex sync.RWMutex

	users         map[string]*user.User
	profiles      map[string]*profile.Profile
	applications  map[string]*application.Application
	deadlines     map[string]*deadline.Deadline
	reminders     map[string]*deadline.Reminder
	preferences   map[string]*notification.Preferences
	notifications map[string]*notification.Notification
	documents     map[string]*document.Document
	resumes       map[string]*resume.Resume
	chatSessions  map[string]*chat.Session
	waitlist      map[string]*waitlist.Entry
	threads       map[string]*forum.Thread
	replies       map[string]*forum.Reply
	listings      map[string]*marketplace.Listing
}

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		profiles:      make(map[string]*profile.Profile),
		applications:  make(map[string]*application.Application),
		deadlines:     make(map[string]*deadline.Deadline),
		reminders:     make(map[string]*deadline.Reminder),
		preferences:   make(map[string]*notification.Preferences),
		notifications: make(map[string]*notification.Notification),
		documents:     make(map[string]*document.Document),
		resumes:       make(map[string]*resume.Resume),
		chatSessions:  make(map[string]*chat.Session),
		waitlist:      make(map[string]*waitlist.Entry),
		threads:       make(map[string]*forum.Thread),
		replies:       make(map[string]*forum.Reply),
		listings:      make(map[string]*marketplace.Listing),
	}
}

// Repositories groups the repositories of every domain backed by db.
type Repositories struct {
	Users         user.Repository
	Profiles      profile.Repository
	Applications  application.Repository
	Deadlines     deadline.Repository
	Notifications notification.Repository
	Documents     document.Repository
	Resumes       resume.Repository
	Chat          chat.Repository
	Waitlist      waitlist.Repository
	Forum         forum.Repository
	Marketplace   marketplace.Repository
}

func NewRepositories(db *DB) Repositories {
	return Repositories{
		Users:         NewUserRepository(db),
		Profiles:      NewProfileRepository(db),
		Applications:  NewApplicationRepository(db),
		Deadlines:     NewDeadlineRepository(db),
		Notifications: NewNotificationRepository(db),
		Documents:     NewDocumentRepository(db),
		Resumes:       NewResumeRepository(db),
		Chat:          NewChatRepository(db),
		Waitlist:      NewWaitlistRepository(db),
		Forum:         NewForumRepository(db),
		Marketplace:   NewMarketplaceRepository(db),
	}
}

func newID() string {
	return uuid.NewString()
}

// paginate returns the `page` window of a slice of length n.
func paginate(n int, limit, offset uint64) (int, int) {
	start := int(offset)
	if start > n {
		start = n
	}
	end := n
	if limit > 0 && start+int(limit) < n {
		end = start + int(limit)
	}
	return start, end
}
