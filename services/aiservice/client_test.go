package aisvc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edulens/core"
)

type observation struct {
	route  string
	status int
}

type observerMock struct {
	mu   sync.Mutex
	seen []observation
}

func (o *observerMock) ObserveAIRequest(route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{route, status})
}

func newTestClient(url string, obs Observer) *Client {
	conf := core.NewTestConfig()
	conf.AIService.URL = url
	conf.AIService.Timeout = 2 * time.Second
	return NewClient(conf, obs)
}

func TestClient_Forward(t *testing.T) {
	var got *http.Request
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	obs := new(observerMock)
	client := newTestClient(srv.URL+"/", obs)
	resp, err := client.Forward(context.Background(), "user-1", core.AIRequest{
		Method:      http.MethodPut,
		Path:        "/universities/search",
		RawQuery:    "q=oxford",
		ContentType: "application/json",
		Accept:      "text/plain",
		Body:        strings.NewReader(`{"a":1}`),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Equal(t, "short and stout", string(resp.Body))
	assert.False(t, resp.OK())

	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/universities/search", got.URL.Path)
	assert.Equal(t, "q=oxford", got.URL.RawQuery)
	assert.Equal(t, "user-1", got.Header.Get("x-user-id"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "text/plain", got.Header.Get("Accept"))
	assert.Empty(t, got.Header.Get("Authorization"))
	assert.Equal(t, `{"a":1}`, gotBody)

	assert.Equal(t, []observation{{"universities", http.StatusTeapot}}, obs.seen)
}

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"message":"hi"}`, string(b))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"hello"}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL, nil).PostJSON(context.Background(), "u", "chat", map[string]string{"message": "hi"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.JSONEq(t, `{"response":"hello"}`, string(resp.Body))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	obs := new(observerMock)
	_, err := newTestClient(url, obs).PostJSON(context.Background(), "u", "/documents/generate", map[string]string{})
	require.Error(t, err)
	assert.True(t, core.IsUpstream(err))
	assert.Equal(t, []observation{{"documents", 0}}, obs.seen)
}

func TestClient_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 16)))
	}))
	defer srv.Close()

	defaultMax := maxResponseSize
	t.Cleanup(func() { maxResponseSize = defaultMax })
	client := newTestClient(srv.URL, nil)

	maxResponseSize = 16
	resp, err := client.Forward(context.Background(), "u", core.AIRequest{Path: "/chat"})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 16), string(resp.Body))

	maxResponseSize = 15
	_, err = client.Forward(context.Background(), "u", core.AIRequest{Path: "/chat"})
	require.Error(t, err)
	assert.True(t, core.IsUpstream(err))
	assert.Contains(t, err.Error(), "AI service response too large")
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := newTestClient("", nil).Forward(context.Background(), "u", core.AIRequest{Path: "/"})
	assert.True(t, core.IsUpstream(err))
}

func Test_routeLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", "root"},
		{"/", "root"},
		{"/chat", "chat"},
		{"documents/generate", "documents"},
		{"/a/b/c", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, routeLabel(tt.path))
		})
	}
}
