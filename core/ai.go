package core

import (
	"context"
	"io"
	"net/http"
)

type (
	// AIRequest is a request forwarded to the AI service on behalf of a user.
	AIRequest struct {
		Method      string
		Path        string // relative to the AI service base URL
		RawQuery    string
		ContentType string
		Accept      string
		Body        io.Reader
	}

	// AIResponse holds an AI service reply, relayed verbatim.
	AIResponse struct {
		StatusCode  int
		ContentType string
		Body        []byte
	}

	// AIService is any client of the external AI service.
	AIService interface {
		Forward(ctx context.Context, userID string, req AIRequest) (AIResponse, error)
		PostJSON(ctx context.Context, userID, path string, payload interface{}) (AIResponse, error)
	}
)

func (r AIResponse) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}
