package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edulens/core/forum"
	"github.com/trezcool/edulens/core/marketplace"
	"github.com/trezcool/edulens/core/profile"
	"github.com/trezcool/edulens/core/user"
)

func TestForumAPI(t *testing.T) {
	app := setup(t)
	author := createUser(t, "Author", "author_1", "author@example.com", pwd, user.StudentRoles, true)
	replier := createUser(t, "Replier", "replier_1", "replier@example.com", pwd, user.StudentRoles, true)
	authorToken, replierToken := getToken(t, author), getToken(t, replier)

	rec := do(app, http.MethodPost, "/api/forum/threads", authorToken, marchallObj(t, forum.NewThread{
		Category: "Visas",
		Title:    "Student visa interview tips?",
		Body:     "Mine is next week.",
		Tags:     []string{"USA ", "F1"},
	}))
	assertCode(t, rec, http.StatusCreated)
	var thread forum.Thread
	decode(t, rec, &thread)
	assert.Equal(t, "visas", thread.Category)
	assert.Equal(t, []string{"usa", "f1"}, thread.Tags)

	path := "/api/forum/threads/" + thread.ID
	rec = do(app, http.MethodPost, path+"/replies", replierToken, []byte(`{"body":"Be concise and honest."}`))
	assertCode(t, rec, http.StatusCreated)

	t.Run("reply bumps the thread", func(t *testing.T) {
		rec := do(app, http.MethodGet, path, replierToken, nil)
		assertCode(t, rec, http.StatusOK)
		var got forum.Thread
		decode(t, rec, &got)
		assert.Equal(t, 1, got.ReplyCount)
		assert.NotNil(t, got.LastReplyAt)
	})

	t.Run("author is notified in-app", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/api/notifications/unread-count", authorToken, nil)
		assertCode(t, rec, http.StatusOK)
		assert.JSONEq(t, `{"count":1}`, rec.Body.String())
	})

	t.Run("replies are listed", func(t *testing.T) {
		rec := do(app, http.MethodGet, path+"/replies", authorToken, nil)
		assertCode(t, rec, http.StatusOK)
		var replies []forum.Reply
		decode(t, rec, &replies)
		require.Len(t, replies, 1)
		assert.Equal(t, replier.ID, replies[0].UserID)
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "unknown category",
			method:   http.MethodPost,
			path:     "/api/forum/threads",
			token:    authorToken,
			body:     []byte(`{"category":"memes","title":"t","body":"b"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "only the author edits",
			method:   http.MethodPut,
			path:     path,
			token:    replierToken,
			body:     []byte(`{"title":"Hijacked"}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "only the author may change this thread"}),
		},
		{name: "filter by tag", path: "/api/forum/threads?tag=F1", token: replierToken, wantCode: http.StatusOK},
		{name: "reply to a missing thread", method: http.MethodPost, path: "/api/forum/threads/nope/replies", token: replierToken, body: []byte(`{"body":"hi"}`), wantCode: http.StatusNotFound},
		{name: "author deletes", method: http.MethodDelete, path: path, token: authorToken, wantCode: http.StatusNoContent},
		{name: "gone", path: path, token: authorToken, wantCode: http.StatusNotFound},
	})
}

func TestMarketplaceAPI(t *testing.T) {
	app := setup(t)
	counselor := createUser(t, "Counselor", "counsel_1", "counselor@example.com", pwd, user.CounselorRoles, true)
	student := createUser(t, "Student", "student_1", "student@example.com", pwd, user.StudentRoles, true)
	counselorToken, studentToken := getToken(t, counselor), getToken(t, student)
	newListing := marchallObj(t, marketplace.NewListing{
		Title:       "SOP review",
		Description: "Two rounds of edits on your statement of purpose.",
		Category:    "editing",
		PriceCents:  4900,
		Currency:    "eur",
	})

	rec := do(app, http.MethodPost, "/api/marketplace/listings", counselorToken, newListing)
	assertCode(t, rec, http.StatusCreated)
	var listing marketplace.Listing
	decode(t, rec, &listing)
	assert.Equal(t, "EUR", listing.Currency)
	assert.True(t, listing.IsActive)

	path := "/api/marketplace/listings/" + listing.ID
	runHTTPTests(t, app, []httpTest{
		{
			name:     "students cannot publish",
			method:   http.MethodPost,
			path:     "/api/marketplace/listings",
			token:    studentToken,
			body:     newListing,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "only counselors may publish listings"}),
		},
		{name: "students browse", path: "/api/marketplace/listings?category=editing", token: studentToken, wantCode: http.StatusOK, wantData: marchallList(t, listing)},
		{name: "students cannot edit", method: http.MethodPut, path: path, token: studentToken, body: []byte(`{"price_cents":1}`), wantCode: http.StatusForbidden},
		{name: "provider deactivates", method: http.MethodPut, path: path, token: counselorToken, body: []byte(`{"is_active":false}`), wantCode: http.StatusOK},
		{name: "inactive listings are hidden", path: path, token: studentToken, wantCode: http.StatusNotFound},
		{name: "and not browsable", path: "/api/marketplace/listings", token: studentToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "provider still sees it", path: path, token: counselorToken, wantCode: http.StatusOK},
	})
}

func TestProfileAPI(t *testing.T) {
	app := setup(t)
	usr := createUser(t, "Student", "student_1", "student@example.com", pwd, user.StudentRoles, true)
	token := getToken(t, usr)

	rec := do(app, http.MethodGet, "/api/profile", token, nil)
	assertCode(t, rec, http.StatusOK)
	var p profile.Profile
	decode(t, rec, &p)
	assert.Equal(t, usr.ID, p.UserID)

	rec = do(app, http.MethodPut, "/api/profile", token, []byte(`{"nationality":"Kenyan","gpa":3.6,"target_countries":["Canada","Germany"]}`))
	assertCode(t, rec, http.StatusOK)
	rec = do(app, http.MethodPut, "/api/profile", token, []byte(`{"target_degree":"masters"}`))
	assertCode(t, rec, http.StatusOK)

	p = profile.Profile{}
	decode(t, rec, &p)
	assert.Equal(t, "Kenyan", p.Nationality)
	require.NotNil(t, p.GPA)
	assert.Equal(t, 3.6, *p.GPA)
	assert.Equal(t, []string{"Canada", "Germany"}, p.TargetCountries)
	assert.Equal(t, "masters", p.TargetDegree)

	runHTTPTests(t, app, []httpTest{
		{name: "gpa out of range", method: http.MethodPut, path: "/api/profile", token: token, body: []byte(`{"gpa":42}`), wantCode: http.StatusBadRequest},
		{name: "needs a token", path: "/api/profile", wantCode: http.StatusUnauthorized},
	})
}
