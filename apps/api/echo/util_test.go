package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/edulens/apps/api/echo"
	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
	"github.com/trezcool/edulens/core/chat"
	"github.com/trezcool/edulens/core/deadline"
	"github.com/trezcool/edulens/core/document"
	"github.com/trezcool/edulens/core/forum"
	"github.com/trezcool/edulens/core/marketplace"
	"github.com/trezcool/edulens/core/notification"
	"github.com/trezcool/edulens/core/profile"
	"github.com/trezcool/edulens/core/reminder"
	"github.com/trezcool/edulens/core/resume"
	"github.com/trezcool/edulens/core/user"
	"github.com/trezcool/edulens/core/waitlist"
	emailsvc "github.com/trezcool/edulens/services/email"
	logsvc "github.com/trezcool/edulens/services/logger"
	smssvc "github.com/trezcool/edulens/services/sms"
	inmemdb "github.com/trezcool/edulens/storage/database/inmem"
)

var (
	conf    *core.Config
	repos   inmemdb.Repositories
	appSvc  *application.Service
	fakeAI  *aiStub
	lastReq core.AIRequest

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

// aiStub answers every AI service call with the configured response.
type aiStub struct {
	resp    core.AIResponse
	err     error
	userID  string
	payload interface{}
	body    []byte
}

func (ai *aiStub) Forward(_ context.Context, userID string, req core.AIRequest) (core.AIResponse, error) {
	ai.userID = userID
	lastReq = req
	ai.body = nil
	if req.Body != nil {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(req.Body)
		ai.body = buf.Bytes()
	}
	return ai.resp, ai.err
}

func (ai *aiStub) PostJSON(_ context.Context, userID, _ string, payload interface{}) (core.AIResponse, error) {
	ai.userID = userID
	ai.payload = payload
	return ai.resp, ai.err
}

func setup(t *testing.T) Server {
	t.Helper()
	emailsvc.ResetSentMessages()
	smssvc.ResetSentMessages()

	conf = core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	// set up DB & repos
	repos = inmemdb.NewRepositories(inmemdb.Open())

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	fakeAI = &aiStub{resp: core.AIResponse{StatusCode: http.StatusOK, ContentType: "application/json", Body: []byte(`{}`)}}
	usrSvc := user.NewServiceMock(repos.Users, mailSvc, conf)
	notifSvc := notification.NewService(repos.Notifications, usrSvc, mailSvc, smssvc.NewConsoleServiceMock(), conf, logger)
	appSvc = application.NewService(repos.Applications, nil, notifSvc, logger)
	resumeSvc := resume.NewService(repos.Resumes)

	// set up server
	return NewServer(ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		ProfileSvc:      profile.NewService(repos.Profiles),
		ApplicationSvc:  appSvc,
		DeadlineSvc:     deadline.NewService(repos.Deadlines, appSvc, notifSvc),
		NotificationSvc: notifSvc,
		DocumentSvc:     document.NewService(repos.Documents, fakeAI, resumeSvc),
		ResumeSvc:       resumeSvc,
		ChatSvc:         chat.NewService(repos.Chat, fakeAI),
		WaitlistSvc:     waitlist.NewServiceMock(repos.Waitlist, mailSvc),
		ForumSvc:        forum.NewService(repos.Forum, notifSvc, logger),
		MarketplaceSvc:  marketplace.NewService(repos.Marketplace),
		Reminders:       reminder.NewProcessor(repos.Deadlines, notifSvc, nil, nil, conf, logger),
		AI:              fakeAI,
	})
}

func createUser(t *testing.T, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  isActive,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		require.NoError(t, usr.SetPassword(pwd))
	}
	usr, err := repos.Users.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// runHTTPTests serves each test case and checks its response.
func runHTTPTests(t *testing.T, app Server, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func do(app Server, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, body)
	app.ServeHTTP(rec, req)
	return rec
}

func assertCode(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	assert.Equal(t, code, rec.Code, rec.Body.String())
}
