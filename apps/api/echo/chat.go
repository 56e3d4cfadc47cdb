package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/chat"
)

const sessionIDHeader = "X-Session-Id"

type chatApi struct {
	svc      *chat.Service
	validate *validator.Validate
}

func registerChatAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *chat.Service, validate *validator.Validate) {
	api := chatApi{svc: svc, validate: validate}

	cg := g.Group("/chat", jwt, uuidParamMiddleware())
	cg.POST("", api.send)
	cg.GET("/sessions", api.querySessions)
	cg.GET("/sessions/:id", api.retrieveSession)
	cg.DELETE("/sessions/:id", api.destroySession)
}

// send relays the AI service reply verbatim; the session it belongs to is returned in the X-Session-Id header.
func (api *chatApi) send(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data chat.SendMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reply, err := api.svc.Send(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "sending chat message")
	}
	ctx.Response().Header().Set(sessionIDHeader, reply.SessionID)
	return relay(ctx, reply.AIResponse)
}

func (api *chatApi) querySessions(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	sessions, err := api.svc.List(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "listing chat sessions")
	}
	if sessions == nil {
		sessions = []chat.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *chatApi) retrieveSession(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	sess, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting chat session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *chatApi) destroySession(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting chat session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// relay writes an AI service response as is.
func relay(ctx echo.Context, resp core.AIResponse) error {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return ctx.Blob(resp.StatusCode, contentType, resp.Body)
}
