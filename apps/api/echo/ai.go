package echoapi

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

type aiProxy struct {
	ai      core.AIService
	maxBody int64
}

func registerAIProxy(g *echo.Group, jwt echo.MiddlewareFunc, conf *core.Config, ai core.AIService) {
	api := aiProxy{ai: ai, maxBody: conf.AIService.MaxBodyBytes}

	ag := g.Group("/ai", jwt)
	ag.Any("/*", api.forward)
}

// forward passes the request through to the AI service on behalf of the authenticated user.
// Credentials are not forwarded: the AI service trusts the x-user-id header.
func (api *aiProxy) forward(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	req := ctx.Request()
	var body io.Reader
	if req.Body != nil && req.ContentLength != 0 {
		data, err := io.ReadAll(io.LimitReader(req.Body, api.maxBody+1))
		if err != nil {
			return errors.Wrap(err, "reading request body")
		}
		if int64(len(data)) > api.maxBody {
			return errBodyTooLarge
		}
		body = bytes.NewReader(data)
	}

	resp, err := api.ai.Forward(req.Context(), actor.ID, core.AIRequest{
		Method:      req.Method,
		Path:        ctx.Param("*"),
		RawQuery:    req.URL.RawQuery,
		ContentType: req.Header.Get(echo.HeaderContentType),
		Accept:      req.Header.Get(echo.HeaderAccept),
		Body:        body,
	})
	if err != nil {
		return errors.Wrap(err, "forwarding to AI service")
	}
	return relay(ctx, resp)
}
