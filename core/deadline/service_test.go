package deadline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
	"github.com/trezcool/edulens/core/deadline"
	logsvc "github.com/trezcool/edulens/services/logger"
	inmemdb "github.com/trezcool/edulens/storage/database/inmem"
)

type leadHours []int

func (lh leadHours) ReminderLeadHours(context.Context, string) ([]int, error) { return lh, nil }

var (
	now     = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	student = core.Actor{ID: "student-1"}
	other   = core.Actor{ID: "student-2"}
)

type fixture struct {
	svc     *deadline.Service
	apps    *application.Service
	repo    deadline.Repository
	context context.Context
}

func setup(t *testing.T) fixture {
	t.Helper()
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })

	repos := inmemdb.NewRepositories(inmemdb.Open())
	apps := application.NewService(repos.Applications, nil, nil, logsvc.NewNopLogger())
	return fixture{
		svc:     deadline.NewService(repos.Deadlines, apps, leadHours{168, 24}),
		apps:    apps,
		repo:    repos.Deadlines,
		context: context.Background(),
	}
}

func triggers(d deadline.Deadline) []time.Time {
	times := make([]time.Time, 0, len(d.Reminders))
	for _, r := range d.Reminders {
		times = append(times, r.TriggerAt)
	}
	return times
}

func TestService_CreateBuildsReminders(t *testing.T) {
	f := setup(t)
	due := now.Add(10 * 24 * time.Hour)

	d, err := f.svc.Create(f.context, student, deadline.NewDeadline{Title: "TOEFL", DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{due.Add(-168 * time.Hour), due.Add(-24 * time.Hour)}, triggers(d))
	for _, r := range d.Reminders {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, d.ID, r.DeadlineID)
		assert.Nil(t, r.SentAt)
	}

	// lead times before now are dropped, duplicates collapse
	soon := now.Add(48 * time.Hour)
	explicit := []int{24, 24, 72}
	d, err = f.svc.Create(f.context, student, deadline.NewDeadline{Title: "Visa", DueAt: soon, ReminderLeadHours: &explicit})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{soon.Add(-24 * time.Hour)}, triggers(d))

	none := []int{}
	d, err = f.svc.Create(f.context, student, deadline.NewDeadline{Title: "Essay", DueAt: due, ReminderLeadHours: &none})
	require.NoError(t, err)
	assert.Empty(t, d.Reminders)
}

func TestService_CreateLinkedToApplication(t *testing.T) {
	f := setup(t)
	app, err := f.apps.Create(f.context, other, application.NewApplication{University: "UCL", Program: "MSc"})
	require.NoError(t, err)

	_, err = f.svc.Create(f.context, student, deadline.NewDeadline{Title: "Essay", DueAt: now.Add(time.Hour), ApplicationID: &app.ID})
	require.Error(t, err)
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, "application_id", verr.Fields[0].Field)

	d, err := f.svc.Create(f.context, other, deadline.NewDeadline{Title: "Essay", DueAt: now.Add(time.Hour), ApplicationID: &app.ID})
	require.NoError(t, err)
	require.NotNil(t, d.ApplicationID)
	assert.Equal(t, app.ID, *d.ApplicationID)
}

func TestService_UpdateRegeneratesUnsentReminders(t *testing.T) {
	f := setup(t)
	due := now.Add(10 * 24 * time.Hour)

	d, err := f.svc.Create(f.context, student, deadline.NewDeadline{Title: "GRE", DueAt: due})
	require.NoError(t, err)
	require.Len(t, d.Reminders, 2)
	sent := d.Reminders[0]
	require.NoError(t, f.repo.MarkReminderSent(f.context, sent.ID, now))

	newDue := due.Add(5 * 24 * time.Hour)
	d, err = f.svc.Update(f.context, student, d.ID, deadline.UpdateDeadline{DueAt: &newDue})
	require.NoError(t, err)
	assert.Equal(t, newDue, d.DueAt)

	var sentCount int
	var unsent []time.Time
	for _, r := range d.Reminders {
		if r.IsSent() {
			sentCount++
			assert.Equal(t, sent.ID, r.ID, "sent reminders are kept")
		} else {
			unsent = append(unsent, r.TriggerAt)
		}
	}
	assert.Equal(t, 1, sentCount)
	assert.ElementsMatch(t, []time.Time{newDue.Add(-168 * time.Hour), newDue.Add(-24 * time.Hour)}, unsent)

	// other fields leave the reminders alone
	title := "GRE General"
	before := len(d.Reminders)
	d, err = f.svc.Update(f.context, student, d.ID, deadline.UpdateDeadline{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "GRE General", d.Title)
	assert.Len(t, d.Reminders, before)
}

func TestService_CompleteStopsReminders(t *testing.T) {
	f := setup(t)
	d, err := f.svc.Create(f.context, student, deadline.NewDeadline{Title: "Deposit", DueAt: now.Add(25 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, d.Reminders, 1)

	d, err = f.svc.Complete(f.context, student, d.ID)
	require.NoError(t, err)
	assert.True(t, d.Completed)
	require.NotNil(t, d.CompletedAt)

	claimed, err := f.repo.ClaimDueReminders(f.context, now.Add(2*time.Hour), 10, 3, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestService_AccessAndUpcoming(t *testing.T) {
	f := setup(t)
	d, err := f.svc.Create(f.context, student, deadline.NewDeadline{Title: "Loan", DueAt: now.Add(3 * 24 * time.Hour)})
	require.NoError(t, err)
	_, err = f.svc.Create(f.context, student, deadline.NewDeadline{Title: "Far", DueAt: now.Add(60 * 24 * time.Hour)})
	require.NoError(t, err)

	_, err = f.svc.Get(f.context, other, d.ID)
	assert.Equal(t, deadline.ErrForbidden, err)
	assert.Equal(t, deadline.ErrForbidden, f.svc.Delete(f.context, other, d.ID))

	upcoming, err := f.svc.Upcoming(f.context, student, 7)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "Loan", upcoming[0].Title)

	require.NoError(t, f.svc.Delete(f.context, student, d.ID))
	_, err = f.svc.Get(f.context, student, d.ID)
	assert.Equal(t, deadline.ErrNotFound, err)
}
