package sqlxrepos

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
	"github.com/trezcool/edulens/core/deadline"
	"github.com/trezcool/edulens/core/forum"
	"github.com/trezcool/edulens/core/notification"
	"github.com/trezcool/edulens/core/user"
	"github.com/trezcool/edulens/core/waitlist"
)

const testID = "a6a97fd2-74c5-42af-ab22-0549a63d3abd"

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err, "unable to open the mock database connection")
	t.Cleanup(func() { _ = db.Close() })

	newID = func() string { return testID }
	t.Cleanup(func() { newID = defaultNewID })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestUserRepository_GetUserByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 LIMIT 1")).
		WithArgs(testID).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(testID, "Ama", nil, "ama@test.test", true, []byte("{student:}"), []byte("hash"), now, now, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userColumns))

	usr, err := repo.GetUserByID(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, "Ama", usr.Name)
	assert.Equal(t, "", usr.Username)
	assert.Equal(t, []string{user.RoleStudent}, usr.Roles)
	assert.True(t, usr.IsStudent())

	_, err = repo.GetUserByID(ctx, "missing")
	assert.Equal(t, user.ErrNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CheckUsernameUniqueness(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT username, email FROM users WHERE ((username = $1 OR email = $2))")).
		WithArgs("amaama", "ama@test.test").
		WillReturnRows(sqlmock.NewRows([]string{"username", "email"}).AddRow(nil, "ama@test.test"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT username, email FROM users WHERE ((email = $1) AND id NOT IN ($2))")).
		WithArgs("ama@test.test", testID).
		WillReturnRows(sqlmock.NewRows([]string{"username", "email"}))

	err := repo.CheckUsernameUniqueness(ctx, "amaama", "ama@test.test")
	assert.Equal(t, user.ErrEmailExists, err)

	err = repo.CheckUsernameUniqueness(ctx, "", "ama@test.test", user.User{ID: testID})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_QueryUsersOrdering(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users ORDER BY name DESC, created_at ASC")).
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(userColumns))

	ordering := []core.DBOrdering{
		{Field: "name"},
		{Field: "password_hash; DROP TABLE users", Ascending: true},
		{Field: "created_at", Ascending: true},
	}
	_, err := repo.QueryUsers(ctx, nil, ordering)
	require.NoError(t, err)

	// unknown fields only: default ordering
	_, err = repo.QueryUsers(ctx, nil, []core.DBOrdering{{Field: "password_hash"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositories_MalformedID(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	badUUID := &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "nope"`}

	mock.ExpectQuery(regexp.QuoteMeta("FROM applications WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(badUUID)
	mock.ExpectQuery(regexp.QuoteMeta("FROM forum_threads WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(badUUID)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM forum_threads WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(badUUID)
	mock.ExpectQuery(regexp.QuoteMeta("FROM forum_threads WHERE id = $1")).
		WithArgs(testID).
		WillReturnError(&pq.Error{Code: "57014", Message: "canceling statement due to user request"})

	_, err := NewApplicationRepository(db).GetApplication(ctx, "nope")
	assert.Equal(t, application.ErrNotFound, err)

	forumRepo := NewForumRepository(db)
	_, err = forumRepo.GetThread(ctx, "nope")
	assert.Equal(t, forum.ErrNotFound, err)
	assert.Equal(t, forum.ErrNotFound, forumRepo.DeleteThread(ctx, "nope"))

	// other database errors still surface
	_, err = forumRepo.GetThread(ctx, testID)
	assert.Error(t, err)
	assert.NotEqual(t, forum.ErrNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepository_ChangeStatusConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApplicationRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	app := application.Application{
		ID:     testID,
		Status: application.StatusSubmitted,
		StatusHistory: []application.StatusChange{
			{From: application.StatusDraft, To: application.StatusSubmitted, ChangedBy: "u1", ChangedAt: now},
		},
		UpdatedAt: now,
	}

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE applications SET status = $1, status_history = status_history || $2::jsonb")).
		WillReturnRows(sqlmock.NewRows(applicationColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM applications WHERE id = $1")).
		WithArgs(testID).
		WillReturnRows(sqlmock.NewRows(applicationColumns).AddRow(
			testID, "u1", "MIT", "CS", "", "", "", "in_progress", nil, "", "", []byte("[]"), nil, nil, now, now))

	_, err := repo.ChangeStatus(ctx, app, application.StatusDraft)
	assert.Equal(t, application.ErrStatusConflict, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadlineRepository_CreateDeadline(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeadlineRepository(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO deadlines")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reminders")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	d, err := repo.CreateDeadline(context.Background(), deadline.Deadline{
		UserID:    "u1",
		Title:     "TOEFL",
		DueAt:     now.Add(48 * time.Hour),
		Reminders: []deadline.Reminder{{TriggerAt: now}, {TriggerAt: now.Add(24 * time.Hour)}},
	})
	require.NoError(t, err)
	assert.Equal(t, testID, d.ID)
	require.Len(t, d.Reminders, 2)
	assert.Equal(t, testID, d.Reminders[0].DeadlineID)
	assert.Equal(t, "u1", d.Reminders[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadlineRepository_ClaimDueReminders(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeadlineRepository(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lease := time.Minute
	retryAt := now.Add(lease)

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF r SKIP LOCKED")).
		WithArgs(now, 3, 50, retryAt).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "deadline_id", "user_id", "trigger_at", "sent_at", "attempts", "last_error", "retry_at",
			"title", "kind", "due_at", "application_id",
		}).AddRow(testID, "d1", "u1", now, nil, 1, "", retryAt, "IELTS", "test", now.Add(24*time.Hour), nil))

	due, err := repo.ClaimDueReminders(context.Background(), now, 50, 3, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "IELTS", due[0].Title)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Nil(t, due[0].ApplicationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepository_CreateEntryDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWaitlistRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO waitlist")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "waitlist_email_key"})

	_, err := repo.CreateEntry(context.Background(), waitlist.Entry{Email: "ama@test.test"})
	assert.Equal(t, waitlist.ErrAlreadyJoined, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM notification_preferences WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(preferencesColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE notifications SET is_read = $1, read_at = COALESCE(read_at, $2)")).
		WillReturnRows(sqlmock.NewRows(notificationColumns))

	_, err := repo.GetPreferences(ctx, "u1")
	assert.Equal(t, notification.ErrPreferencesNotFound, err)

	count, err := repo.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	_, err = repo.MarkRead(ctx, "u1", testID, now)
	assert.Equal(t, notification.ErrNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
