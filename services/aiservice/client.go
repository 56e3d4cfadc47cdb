// Package aisvc is the HTTP client of the external AI service.
package aisvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

const userIDHeader = "x-user-id"

var maxResponseSize int64 = 32 << 20 // mockable

// Observer records the outcome of AI service calls.
type Observer interface {
	ObserveAIRequest(route string, status int, took time.Duration)
}

type Client struct {
	baseURL  string
	http     *http.Client
	observer Observer
}

var _ core.AIService = (*Client)(nil)

// NewClient creates a Client of the AI service at conf.AIService.URL. observer is optional.
func NewClient(conf *core.Config, observer Observer) *Client {
	return &Client{
		baseURL:  strings.TrimRight(conf.AIService.URL, "/"),
		http:     &http.Client{Timeout: conf.AIService.Timeout},
		observer: observer,
	}
}

// Forward sends req to the AI service on behalf of userID. Only the body, Content-Type and Accept of the
// original request are forwarded, along with the x-user-id header.
func (c *Client) Forward(ctx context.Context, userID string, req core.AIRequest) (core.AIResponse, error) {
	if c.baseURL == "" {
		return core.AIResponse{}, core.NewUpstreamError("AI service is not configured", nil)
	}

	url := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if req.RawQuery != "" {
		url += "?" + req.RawQuery
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	hReq, err := http.NewRequestWithContext(ctx, method, url, req.Body)
	if err != nil {
		return core.AIResponse{}, errors.Wrap(err, "creating AI service request")
	}
	if req.ContentType != "" {
		hReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Accept != "" {
		hReq.Header.Set("Accept", req.Accept)
	}
	hReq.Header.Set(userIDHeader, userID)

	start := time.Now()
	resp, err := c.http.Do(hReq)
	if err != nil {
		c.observe(req.Path, 0, start)
		return core.AIResponse{}, core.NewUpstreamError("AI service unavailable", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		c.observe(req.Path, 0, start)
		return core.AIResponse{}, core.NewUpstreamError("AI service unavailable", err)
	}
	c.observe(req.Path, resp.StatusCode, start)
	if int64(len(body)) > maxResponseSize {
		return core.AIResponse{}, core.NewUpstreamError("AI service response too large",
			errors.Errorf("response exceeds %d bytes", maxResponseSize))
	}
	return core.AIResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// PostJSON posts payload as JSON to path.
func (c *Client) PostJSON(ctx context.Context, userID, path string, payload interface{}) (core.AIResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return core.AIResponse{}, errors.Wrap(err, "encoding AI service payload")
	}
	return c.Forward(ctx, userID, core.AIRequest{
		Method:      http.MethodPost,
		Path:        path,
		ContentType: "application/json",
		Accept:      "application/json",
		Body:        bytes.NewReader(data),
	})
}

func (c *Client) observe(path string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveAIRequest(routeLabel(path), status, time.Since(start))
	}
}

// routeLabel keeps the first path segment so metric labels stay bounded.
func routeLabel(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "root"
	}
	return path
}
