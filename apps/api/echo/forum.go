package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core/forum"
)

type forumApi struct {
	svc      *forum.Service
	validate *validator.Validate
}

func registerForumAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *forum.Service, validate *validator.Validate) {
	api := forumApi{svc: svc, validate: validate}

	tg := g.Group("/forum/threads", jwt, uuidParamMiddleware())
	tg.GET("", api.queryThreads)
	tg.POST("", api.createThread)
	tg.GET("/:id", api.retrieveThread)
	tg.PUT("/:id", api.updateThread)
	tg.DELETE("/:id", api.destroyThread)
	tg.GET("/:id/replies", api.queryReplies)
	tg.POST("/:id/replies", api.createReply)
}

func (api *forumApi) queryThreads(ctx echo.Context) error {
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	filter := forum.QueryFilter{
		Category: ctx.QueryParam("category"),
		Tag:      ctx.QueryParam("tag"),
		Search:   ctx.QueryParam("search"),
	}

	threads, err := api.svc.QueryThreads(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "querying threads")
	}
	if threads == nil {
		threads = []forum.Thread{}
	}
	return ctx.JSON(http.StatusOK, threads)
}

func (api *forumApi) createThread(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data forum.NewThread
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewThread")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	thread, err := api.svc.CreateThread(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating thread")
	}
	return ctx.JSON(http.StatusCreated, thread)
}

func (api *forumApi) retrieveThread(ctx echo.Context) error {
	thread, err := api.svc.GetThread(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting thread")
	}
	return ctx.JSON(http.StatusOK, thread)
}

func (api *forumApi) updateThread(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data forum.UpdateThread
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateThread")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	thread, err := api.svc.UpdateThread(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating thread")
	}
	return ctx.JSON(http.StatusOK, thread)
}

func (api *forumApi) destroyThread(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteThread(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting thread")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *forumApi) queryReplies(ctx echo.Context) error {
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	replies, err := api.svc.Replies(ctx.Request().Context(), ctx.Param("id"), page)
	if err != nil {
		return errors.Wrap(err, "querying replies")
	}
	if replies == nil {
		replies = []forum.Reply{}
	}
	return ctx.JSON(http.StatusOK, replies)
}

func (api *forumApi) createReply(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data forum.NewReply
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReply")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reply, err := api.svc.Reply(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "replying to thread")
	}
	return ctx.JSON(http.StatusCreated, reply)
}
