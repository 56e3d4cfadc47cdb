package reminder_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/deadline"
	"github.com/trezcool/edulens/core/reminder"
	logsvc "github.com/trezcool/edulens/services/logger"
	inmemdb "github.com/trezcool/edulens/storage/database/inmem"
)

type (
	fakeNotifier struct {
		mu     sync.Mutex
		fail   map[string]bool // by user ID
		titles []string
	}

	busyLocker struct{}

	countingLocker struct {
		obtained, released int
	}
	countingLock struct{ l *countingLocker }

	countingStore struct {
		reminder.Store
		limits []int
	}
)

func (s *countingStore) ClaimDueReminders(ctx context.Context, at time.Time, limit, maxAttempts int, lease time.Duration) ([]deadline.DueReminder, error) {
	s.limits = append(s.limits, limit)
	return s.Store.ClaimDueReminders(ctx, at, limit, maxAttempts, lease)
}

func (n *fakeNotifier) Notify(_ context.Context, userID, _, title, _ string, _ map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[userID] {
		return errors.New("no channel delivered")
	}
	n.titles = append(n.titles, title)
	return nil
}

func (busyLocker) Obtain(context.Context, string, time.Duration) (core.Lock, error) {
	return nil, core.ErrLockNotObtained
}

func (l *countingLocker) Obtain(context.Context, string, time.Duration) (core.Lock, error) {
	l.obtained++
	return countingLock{l}, nil
}

func (lk countingLock) Release(context.Context) error {
	lk.l.released++
	return nil
}

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (deadline.Repository, *core.Config) {
	t.Helper()
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })

	conf := core.NewTestConfig()
	conf.Reminders.BatchSize = 2
	conf.Reminders.MaxAttempts = 3
	conf.Reminders.RetryBackoff = time.Minute
	conf.Reminders.LockTTL = 30 * time.Second
	return inmemdb.NewDeadlineRepository(inmemdb.Open()), conf
}

func addDeadline(t *testing.T, repo deadline.Repository, userID, title string, triggers ...time.Time) deadline.Deadline {
	t.Helper()
	reminders := make([]deadline.Reminder, 0, len(triggers))
	for _, at := range triggers {
		reminders = append(reminders, deadline.Reminder{TriggerAt: at})
	}
	d, err := repo.CreateDeadline(context.Background(), deadline.Deadline{
		UserID:    userID,
		Title:     title,
		DueAt:     now.Add(24 * time.Hour),
		Reminders: reminders,
	})
	require.NoError(t, err)
	return d
}

func TestProcessor_RunOnce(t *testing.T) {
	repo, conf := setup(t)
	ctx := context.Background()
	addDeadline(t, repo, "u1", "IELTS", now.Add(-3*time.Hour), now.Add(-2*time.Hour), now.Add(time.Hour))
	addDeadline(t, repo, "u2", "Visa", now.Add(-time.Hour))

	notifier := &fakeNotifier{}
	locker := &countingLocker{}
	proc := reminder.NewProcessor(repo, notifier, locker, nil, conf, logsvc.NewNopLogger())

	sum, err := proc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, reminder.Summary{Claimed: 3, Sent: 3}, sum, "batches are drained within a pass")
	assert.ElementsMatch(t, []string{"Reminder: IELTS", "Reminder: IELTS", "Reminder: Visa"}, notifier.titles)
	assert.Equal(t, 1, locker.obtained)
	assert.Equal(t, 1, locker.released)

	sum, err = proc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, reminder.Summary{}, sum, "sent reminders are not sent twice")
}

func TestProcessor_RunOnceUnsetBatchSize(t *testing.T) {
	repo, conf := setup(t)
	addDeadline(t, repo, "u1", "TOEFL", now.Add(-time.Hour))
	conf.Reminders.BatchSize = 0

	store := &countingStore{Store: repo}
	proc := reminder.NewProcessor(store, &fakeNotifier{}, nil, nil, conf, logsvc.NewNopLogger())

	sum, err := proc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reminder.Summary{Claimed: 1, Sent: 1}, sum)
	assert.Equal(t, []int{100}, store.limits, "a single claim with the default batch size")

	store.limits = nil
	sum, err = proc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reminder.Summary{}, sum)
	assert.Len(t, store.limits, 1, "an empty batch ends the pass")
}

func TestProcessor_RunOnceRetriesFailures(t *testing.T) {
	repo, conf := setup(t)
	ctx := context.Background()
	d := addDeadline(t, repo, "u1", "GRE", now.Add(-time.Hour))

	notifier := &fakeNotifier{fail: map[string]bool{"u1": true}}
	proc := reminder.NewProcessor(repo, notifier, nil, nil, conf, logsvc.NewNopLogger())

	sum, err := proc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, reminder.Summary{Claimed: 1, Failed: 1}, sum)

	got, err := repo.GetDeadline(ctx, d.ID)
	require.NoError(t, err)
	rem := got.Reminders[0]
	assert.Nil(t, rem.SentAt)
	assert.Equal(t, 1, rem.Attempts)
	assert.Equal(t, "no channel delivered", rem.LastError)
	require.NotNil(t, rem.RetryAt)
	assert.Equal(t, now.Add(time.Minute), *rem.RetryAt)

	// not before the backoff
	sum, err = proc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Claimed)

	notifier.fail = nil
	core.NowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	sum, err = proc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, reminder.Summary{Claimed: 1, Sent: 1}, sum)
}

func TestProcessor_RunOnceGivesUp(t *testing.T) {
	repo, conf := setup(t)
	ctx := context.Background()
	addDeadline(t, repo, "u1", "GMAT", now.Add(-time.Hour))

	notifier := &fakeNotifier{fail: map[string]bool{"u1": true}}
	proc := reminder.NewProcessor(repo, notifier, nil, nil, conf, logsvc.NewNopLogger())

	at := now
	for i := 0; i < conf.Reminders.MaxAttempts; i++ {
		core.NowFunc = func() time.Time { return at }
		sum, err := proc.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Failed)
		at = at.Add(time.Hour)
	}

	core.NowFunc = func() time.Time { return at }
	sum, err := proc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Claimed, "reminders past max attempts are left alone")
}

func TestProcessor_RunOnceSkipsWhenLocked(t *testing.T) {
	repo, conf := setup(t)
	addDeadline(t, repo, "u1", "TOEFL", now.Add(-time.Hour))
	notifier := &fakeNotifier{}
	proc := reminder.NewProcessor(repo, notifier, busyLocker{}, nil, conf, logsvc.NewNopLogger())

	sum, err := proc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Skipped)
	assert.Empty(t, notifier.titles)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{12, 24 * time.Hour},
		{64, 24 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reminder.Backoff(time.Minute, tt.attempts), "attempts=%d", tt.attempts)
	}
}
