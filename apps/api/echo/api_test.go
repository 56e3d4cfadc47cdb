package echoapi_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/edulens/apps/api/echo"
	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
	"github.com/trezcool/edulens/core/deadline"
	"github.com/trezcool/edulens/core/notification"
	"github.com/trezcool/edulens/core/reminder"
	"github.com/trezcool/edulens/core/user"
	"github.com/trezcool/edulens/core/waitlist"
)

func TestHealth(t *testing.T) {
	app := setup(t)
	runHTTPTests(t, app, []httpTest{
		{name: "health", path: "/api/health", wantCode: http.StatusOK, wantData: []byte(`{"status":"ok"}`)},
		{name: "home", path: "/", wantCode: http.StatusOK},
		{name: "unknown route", path: "/api/nope", wantCode: http.StatusNotFound},
	})
}

func TestWaitlistAPI(t *testing.T) {
	app := setup(t)
	admin := createUser(t, "Admin", "admin_1", "admin@example.com", pwd, []string{user.RoleAdmin}, true)
	student := createUser(t, "Student", "student_1", "student@example.com", pwd, user.StudentRoles, true)
	join := marchallObj(t, waitlist.NewEntry{Email: "Early@Bird.io", Name: "Early Bird"})

	rec := do(app, http.MethodPost, "/api/waitlist", "", join)
	assertCode(t, rec, http.StatusCreated)
	var entry waitlist.Entry
	decode(t, rec, &entry)
	assert.Equal(t, "early@bird.io", entry.Email)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "duplicate email",
			method:   http.MethodPost,
			path:     "/api/waitlist",
			body:     join,
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "this email is already on the waitlist"}),
		},
		{
			name:     "invalid email",
			method:   http.MethodPost,
			path:     "/api/waitlist",
			body:     []byte(`{"email":"not-an-email"}`),
			wantCode: http.StatusBadRequest,
		},
		{name: "listing needs a token", path: "/api/waitlist", wantCode: http.StatusUnauthorized},
		{name: "listing is admin only", path: "/api/waitlist", token: getToken(t, student), wantCode: http.StatusForbidden},
		{
			name:     "admins list entries",
			path:     "/api/waitlist",
			token:    getToken(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, WaitlistResponse{Count: 1, Entries: []waitlist.Entry{entry}}),
		},
	})
}

func TestApplicationAPI(t *testing.T) {
	app := setup(t)
	owner := createUser(t, "Owner", "owner_1", "owner@example.com", pwd, user.StudentRoles, true)
	other := createUser(t, "Other", "other_1", "other@example.com", pwd, user.StudentRoles, true)
	counselor := createUser(t, "Counselor", "counsel_1", "counselor@example.com", pwd, user.CounselorRoles, true)
	token := getToken(t, owner)

	rec := do(app, http.MethodPost, "/api/applications", token, marchallObj(t, application.NewApplication{
		University: " University of Toronto ",
		Program:    "MSc Computer Science",
		Country:    "Canada",
		Degree:     "masters",
	}))
	assertCode(t, rec, http.StatusCreated)
	var created application.Application
	decode(t, rec, &created)
	assert.Equal(t, "University of Toronto", created.University)
	assert.Equal(t, application.StatusDraft, created.Status)
	assert.Equal(t, owner.ID, created.UserID)

	path := "/api/applications/" + created.ID
	runHTTPTests(t, app, []httpTest{
		{
			name:     "missing university",
			method:   http.MethodPost,
			path:     "/api/applications",
			token:    token,
			body:     []byte(`{"program":"MBA"}`),
			wantCode: http.StatusBadRequest,
		},
		{name: "owner retrieves", path: path, token: token, wantCode: http.StatusOK},
		{name: "counselor retrieves", path: path, token: getToken(t, counselor), wantCode: http.StatusOK},
		{
			name:     "non-owner is forbidden",
			path:     path,
			token:    getToken(t, other),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "you do not have access to this application"}),
		},
		{name: "unknown id", path: "/api/applications/" + uuid.NewString(), token: token, wantCode: http.StatusNotFound},
		{
			name:     "malformed id",
			path:     "/api/applications/nope",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "malformed id on delete", method: http.MethodDelete, path: "/api/applications/nope", token: token, wantCode: http.StatusNotFound},
		{
			name:     "empty status",
			method:   http.MethodPost,
			path:     path + "/status",
			token:    token,
			body:     []byte(`{"status":""}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"status": `invalid value ""; valid values are: ` + strings.Join(application.StatusValues(), ", "),
			}),
		},
		{
			name:     "update normalizes degree",
			method:   http.MethodPut,
			path:     path,
			token:    token,
			body:     []byte(`{"degree":" PhD "}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "invalid status",
			method:   http.MethodPost,
			path:     path + "/status",
			token:    token,
			body:     []byte(`{"status":"enrolled"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"status": `invalid value "enrolled"; valid values are: ` + strings.Join(application.StatusValues(), ", "),
			}),
		},
		{
			name:     "invalid status filter",
			path:     "/api/applications?status=enrolled",
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "others see an empty list",
			path:     "/api/applications",
			token:    getToken(t, other),
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
	})

	t.Run("degree was lowered", func(t *testing.T) {
		rec := do(app, http.MethodGet, path, token, nil)
		var got application.Application
		decode(t, rec, &got)
		assert.Equal(t, "phd", got.Degree)
	})

	t.Run("status changes are logged", func(t *testing.T) {
		rec := do(app, http.MethodPost, path+"/status", token, []byte(`{"status":"submitted","note":"sent"}`))
		assertCode(t, rec, http.StatusOK)
		var got application.Application
		decode(t, rec, &got)
		assert.Equal(t, application.StatusSubmitted, got.Status)
		assert.NotNil(t, got.SubmittedAt)
		require.Len(t, got.StatusHistory, 1)
		assert.Equal(t, application.StatusDraft, got.StatusHistory[0].From)
		assert.Equal(t, "sent", got.StatusHistory[0].Note)

		// submitted cannot go back to draft
		rec = do(app, http.MethodPost, path+"/status", token, []byte(`{"status":"draft"}`))
		assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
		assert.Less(t, rec.Code, http.StatusInternalServerError)
	})

	t.Run("filter by status", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/api/applications?status=submitted,accepted", token, nil)
		assertCode(t, rec, http.StatusOK)
		var apps []application.Application
		decode(t, rec, &apps)
		require.Len(t, apps, 1)
		assert.Equal(t, created.ID, apps[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		assertCode(t, do(app, http.MethodDelete, path, getToken(t, other), nil), http.StatusForbidden)
		assertCode(t, do(app, http.MethodDelete, path, token, nil), http.StatusNoContent)
		assertCode(t, do(app, http.MethodGet, path, token, nil), http.StatusNotFound)
	})
}

func TestDeadlineAPI(t *testing.T) {
	app := setup(t)
	owner := createUser(t, "Owner", "owner_1", "owner@example.com", pwd, user.StudentRoles, true)
	token := getToken(t, owner)

	soon := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	later := time.Now().UTC().Add(60 * 24 * time.Hour).Truncate(time.Second)
	for title, due := range map[string]time.Time{"IELTS": soon, "Visa": later} {
		rec := do(app, http.MethodPost, "/api/deadlines", token, marchallObj(t, deadline.NewDeadline{Title: title, DueAt: due}))
		assertCode(t, rec, http.StatusCreated)
	}

	rec := do(app, http.MethodGet, "/api/deadlines?upcoming_days=7", token, nil)
	assertCode(t, rec, http.StatusOK)
	var upcoming []deadline.Deadline
	decode(t, rec, &upcoming)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "IELTS", upcoming[0].Title)

	rec = do(app, http.MethodPost, "/api/deadlines/"+upcoming[0].ID+"/complete", token, nil)
	assertCode(t, rec, http.StatusOK)
	var done deadline.Deadline
	decode(t, rec, &done)
	assert.True(t, done.Completed)

	rec = do(app, http.MethodGet, "/api/deadlines?completed=false", token, nil)
	assertCode(t, rec, http.StatusOK)
	var pending []deadline.Deadline
	decode(t, rec, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, "Visa", pending[0].Title)

	t.Run("update is normalized like create", func(t *testing.T) {
		rec := do(app, http.MethodPut, "/api/deadlines/"+pending[0].ID, token, []byte(`{"kind":" VISA ","priority":"High"}`))
		assertCode(t, rec, http.StatusOK)
		var got deadline.Deadline
		decode(t, rec, &got)
		assert.Equal(t, "visa", got.Kind)
		assert.Equal(t, "high", got.Priority)
	})

	runHTTPTests(t, app, []httpTest{
		{name: "malformed id", path: "/api/deadlines/nope", token: token, wantCode: http.StatusNotFound},
		{name: "complete malformed id", method: http.MethodPost, path: "/api/deadlines/nope/complete", token: token, wantCode: http.StatusNotFound},
		{name: "bad completed", path: "/api/deadlines?completed=perhaps", token: token, wantCode: http.StatusBadRequest},
		{name: "bad upcoming_days", path: "/api/deadlines?upcoming_days=soon", token: token, wantCode: http.StatusBadRequest},
		{
			name:     "missing due_at",
			method:   http.MethodPost,
			path:     "/api/deadlines",
			token:    token,
			body:     []byte(`{"title":"No date"}`),
			wantCode: http.StatusBadRequest,
		},
	})
}

func TestNotificationAPI_Preferences(t *testing.T) {
	app := setup(t)
	usr := createUser(t, "Student", "student_1", "student@example.com", pwd, user.StudentRoles, true)
	token := getToken(t, usr)

	rec := do(app, http.MethodGet, "/api/notifications/preferences", token, nil)
	assertCode(t, rec, http.StatusOK)
	var prefs notification.Preferences
	decode(t, rec, &prefs)
	assert.True(t, prefs.Channels[notification.ChannelEmail])
	assert.False(t, prefs.Channels[notification.ChannelSMS])

	rec = do(app, http.MethodPut, "/api/notifications/preferences", token, []byte(`{"channels":{"sms":true},"phone":"+14155550100"}`))
	assertCode(t, rec, http.StatusOK)
	rec = do(app, http.MethodPut, "/api/notifications/preferences", token, []byte(`{"types":{"marketing":true}}`))
	assertCode(t, rec, http.StatusOK)

	rec = do(app, http.MethodGet, "/api/notifications/preferences", token, nil)
	assertCode(t, rec, http.StatusOK)
	prefs = notification.Preferences{}
	decode(t, rec, &prefs)
	assert.True(t, prefs.Channels[notification.ChannelEmail])
	assert.True(t, prefs.Channels[notification.ChannelSMS])
	assert.True(t, prefs.Types[notification.TypeMarketing])
	assert.True(t, prefs.Types[notification.TypeDeadlineReminder])
	assert.Equal(t, "+14155550100", prefs.Phone)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "unknown channel",
			method:   http.MethodPut,
			path:     "/api/notifications/preferences",
			token:    token,
			body:     []byte(`{"channels":{"pigeon":true}}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unread count",
			path:     "/api/notifications/unread-count",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"count":0}`),
		},
		{
			name:     "empty inbox",
			path:     "/api/notifications",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
	})
}

func TestCronAPI(t *testing.T) {
	app := setup(t)

	runHTTPTests(t, app, []httpTest{
		{name: "missing secret", method: http.MethodPost, path: "/api/cron/reminders", wantCode: http.StatusForbidden},
	})

	t.Run("wrong secret", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/cron/reminders")
		req.Header.Set("X-Cron-Secret", "guess")
		app.ServeHTTP(rec, req)
		assertCode(t, rec, http.StatusForbidden)
	})

	t.Run("correct secret", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/cron/reminders")
		req.Header.Set("X-Cron-Secret", conf.Server.CronSecret)
		app.ServeHTTP(rec, req)
		assertCode(t, rec, http.StatusOK)
		var sum reminder.Summary
		decode(t, rec, &sum)
		assert.Equal(t, reminder.Summary{}, sum)
	})
}

func TestAIProxy(t *testing.T) {
	app := setup(t)
	usr := createUser(t, "Student", "student_1", "student@example.com", pwd, user.StudentRoles, true)
	token := getToken(t, usr)

	t.Run("forwards and relays", func(t *testing.T) {
		fakeAI.resp = core.AIResponse{StatusCode: http.StatusAccepted, ContentType: "application/json", Body: []byte(`{"match":0.8}`)}
		rec := do(app, http.MethodPost, "/api/ai/universities/match?top=5", token, []byte(`{"gpa":3.7}`))
		assertCode(t, rec, http.StatusAccepted)
		assert.JSONEq(t, `{"match":0.8}`, rec.Body.String())
		assert.Equal(t, usr.ID, fakeAI.userID)
		assert.Equal(t, http.MethodPost, lastReq.Method)
		assert.Equal(t, "universities/match", strings.TrimPrefix(lastReq.Path, "/"))
		assert.Equal(t, "top=5", lastReq.RawQuery)
		assert.JSONEq(t, `{"gpa":3.7}`, string(fakeAI.body))
	})

	t.Run("upstream failure", func(t *testing.T) {
		fakeAI.err = core.NewUpstreamError("AI service unavailable", errors.New("connection refused"))
		defer func() { fakeAI.err = nil }()
		rec := do(app, http.MethodGet, "/api/ai/ping", token, nil)
		assertCode(t, rec, http.StatusBadGateway)
		assert.JSONEq(t, `{"error":"AI service unavailable"}`, rec.Body.String())
	})

	t.Run("needs a token", func(t *testing.T) {
		assertCode(t, do(app, http.MethodGet, "/api/ai/ping", "", nil), http.StatusUnauthorized)
	})

	t.Run("body too large", func(t *testing.T) {
		big := []byte(`"` + strings.Repeat("a", int(conf.AIService.MaxBodyBytes)) + `"`)
		assertCode(t, do(app, http.MethodPost, "/api/ai/ping", token, big), http.StatusRequestEntityTooLarge)
	})
}

func TestChatAPI(t *testing.T) {
	app := setup(t)
	usr := createUser(t, "Student", "student_1", "student@example.com", pwd, user.StudentRoles, true)
	other := createUser(t, "Other", "other_1", "other@example.com", pwd, user.StudentRoles, true)
	token := getToken(t, usr)
	fakeAI.resp = core.AIResponse{StatusCode: http.StatusOK, ContentType: "application/json", Body: []byte(`{"reply":"Apply early."}`)}

	rec := do(app, http.MethodPost, "/api/chat", token, []byte(`{"message":"When should I apply?"}`))
	assertCode(t, rec, http.StatusOK)
	assert.JSONEq(t, `{"reply":"Apply early."}`, rec.Body.String())
	sessionID := rec.Header().Get("X-Session-Id")
	require.NotEmpty(t, sessionID)

	runHTTPTests(t, app, []httpTest{
		{name: "owner reads the session", path: "/api/chat/sessions/" + sessionID, token: token, wantCode: http.StatusOK},
		{name: "others cannot", path: "/api/chat/sessions/" + sessionID, token: getToken(t, other), wantCode: http.StatusForbidden},
		{
			name:     "empty message",
			method:   http.MethodPost,
			path:     "/api/chat",
			token:    token,
			body:     []byte(`{"message":"   "}`),
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("history is stored", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/api/chat/sessions", token, nil)
		assertCode(t, rec, http.StatusOK)
		assert.Contains(t, rec.Body.String(), sessionID)
	})
}
