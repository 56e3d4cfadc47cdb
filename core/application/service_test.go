package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
	logsvc "github.com/trezcool/edulens/services/logger"
	inmemdb "github.com/trezcool/edulens/storage/database/inmem"
)

type (
	published struct {
		channel string
		payload interface{}
	}

	fakePublisher struct {
		mu     sync.Mutex
		events []published
	}

	notified struct {
		userID, kind, title string
	}

	fakeNotifier struct {
		mu    sync.Mutex
		calls []notified
	}
)

func (p *fakePublisher) Publish(_ context.Context, channel string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{channel, payload})
	return nil
}

func (n *fakeNotifier) Notify(_ context.Context, userID, kind, title, _ string, _ map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notified{userID, kind, title})
	return nil
}

var (
	owner     = core.Actor{ID: "student-1", Name: "Ama"}
	stranger  = core.Actor{ID: "student-2", Name: "Kofi"}
	counselor = core.Actor{ID: "counselor-1", Name: "Efua", IsCounselor: true}
)

func setup(t *testing.T) (*application.Service, *fakePublisher, *fakeNotifier) {
	t.Helper()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })

	pub := &fakePublisher{}
	notif := &fakeNotifier{}
	repo := inmemdb.NewApplicationRepository(inmemdb.Open())
	return application.NewService(repo, pub, notif, logsvc.NewNopLogger()), pub, notif
}

func TestIsTransitionAllowed(t *testing.T) {
	tests := []struct {
		from, to application.Status
		want     bool
	}{
		{application.StatusDraft, application.StatusInProgress, true},
		{application.StatusInProgress, application.StatusDraft, true},
		{application.StatusDraft, application.StatusAccepted, false},
		{application.StatusSubmitted, application.StatusInterview, true},
		{application.StatusWaitlisted, application.StatusAccepted, true},
		{application.StatusAccepted, application.StatusWithdrawn, false},
		{application.StatusRejected, application.StatusDraft, false},
		{application.StatusWithdrawn, application.StatusSubmitted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, application.IsTransitionAllowed(tt.from, tt.to))
		})
	}
	assert.True(t, application.StatusAccepted.IsTerminal())
	assert.False(t, application.StatusSubmitted.IsTerminal())
}

func TestParseStatus(t *testing.T) {
	st, err := application.ParseStatus(" Under_Review ")
	require.NoError(t, err)
	assert.Equal(t, application.StatusUnderReview, st)

	_, err = application.ParseStatus("pending")
	require.Error(t, err)
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "status", verr.Fields[0].Field)
	assert.Contains(t, verr.Fields[0].Error, "draft, in_progress, submitted")
}

func TestService_ChangeStatus(t *testing.T) {
	ctx := context.Background()
	svc, pub, notif := setup(t)

	app, err := svc.Create(ctx, owner, application.NewApplication{University: "TU Delft", Program: "MSc CS"})
	require.NoError(t, err)
	assert.Equal(t, application.StatusDraft, app.Status)
	assert.Empty(t, app.StatusHistory)

	app, err = svc.ChangeStatus(ctx, owner, app.ID, application.StatusUpdate{Status: "submitted", Note: "sent online"})
	require.NoError(t, err)
	assert.Equal(t, application.StatusSubmitted, app.Status)
	require.NotNil(t, app.SubmittedAt)
	assert.Nil(t, app.DecidedAt)
	require.Len(t, app.StatusHistory, 1)
	assert.Equal(t, application.StatusChange{
		From:      application.StatusDraft,
		To:        application.StatusSubmitted,
		Note:      "sent online",
		ChangedBy: owner.ID,
		ChangedAt: core.NowFunc(),
	}, app.StatusHistory[0])
	assert.Empty(t, notif.calls, "owners are not notified of their own changes")

	app, err = svc.ChangeStatus(ctx, counselor, app.ID, application.StatusUpdate{Status: "accepted"})
	require.NoError(t, err)
	require.NotNil(t, app.DecidedAt)
	require.Len(t, app.StatusHistory, 2)
	assert.Equal(t, counselor.ID, app.StatusHistory[1].ChangedBy)

	require.Len(t, notif.calls, 1)
	assert.Equal(t, owner.ID, notif.calls[0].userID)
	assert.Equal(t, "application_update", notif.calls[0].kind)
	assert.Equal(t, "TU Delft: accepted", notif.calls[0].title)

	require.Len(t, pub.events, 2)
	assert.Equal(t, application.EventsChannel, pub.events[1].channel)
	evt, ok := pub.events[1].payload.(application.StatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, app.ID, evt.ApplicationID)
	assert.Equal(t, application.StatusAccepted, evt.Change.To)

	// accepted is terminal
	_, err = svc.ChangeStatus(ctx, owner, app.ID, application.StatusUpdate{Status: "withdrawn"})
	require.Error(t, err)
	assert.IsType(t, &core.ValidationError{}, err)

	stored, err := svc.Get(ctx, owner, app.ID)
	require.NoError(t, err)
	assert.Len(t, stored.StatusHistory, 2, "a rejected transition leaves the history untouched")
}

func TestService_ChangeStatusInvalidTransition(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	app, err := svc.Create(ctx, owner, application.NewApplication{University: "ETH", Program: "MSc DS"})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, owner, app.ID, application.StatusUpdate{Status: "interview"})
	require.Error(t, err)
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	assert.Contains(t, verr.Fields[0].Error, `"draft" to "interview"`)
	assert.Contains(t, verr.Fields[0].Error, "in_progress submitted withdrawn")
}

func TestService_Access(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	app, err := svc.Create(ctx, owner, application.NewApplication{University: "KTH", Program: "MSc EE"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, stranger, app.ID)
	assert.Equal(t, application.ErrForbidden, err)

	_, err = svc.Get(ctx, counselor, app.ID)
	assert.NoError(t, err, "staff may read any application")

	notes := "hacked"
	_, err = svc.Update(ctx, counselor, app.ID, application.UpdateApplication{Notes: &notes})
	assert.Equal(t, application.ErrForbidden, err, "counselors cannot edit applications")

	assert.Equal(t, application.ErrForbidden, svc.Delete(ctx, stranger, app.ID))

	_, err = svc.Get(ctx, owner, "missing")
	assert.True(t, core.IsNotFound(err))
}

func TestService_QueryAndStats(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	for _, na := range []application.NewApplication{
		{University: "Uni A", Program: "Physics", Country: "Germany"},
		{University: "Uni B", Program: "Maths", Country: "Canada", Status: "in_progress"},
		{University: "Uni C", Program: "Physics", Country: "germany"},
	} {
		_, err := svc.Create(ctx, owner, na)
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, stranger, application.NewApplication{University: "Uni D", Program: "Physics"})
	require.NoError(t, err)

	apps, err := svc.Query(ctx, owner, application.QueryFilter{Search: "physics"}, nil)
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	apps, err = svc.Query(ctx, owner, application.QueryFilter{UserID: stranger.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, apps, 3, "students only ever list their own applications")

	apps, err = svc.Query(ctx, counselor, application.QueryFilter{UserID: stranger.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	apps, err = svc.Query(ctx, owner, application.QueryFilter{Country: "GERMANY"}, nil)
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	stats, err := svc.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[application.StatusDraft])
	assert.Equal(t, 1, stats.ByStatus[application.StatusInProgress])
	assert.Equal(t, 0, stats.ByStatus[application.StatusAccepted])
}
