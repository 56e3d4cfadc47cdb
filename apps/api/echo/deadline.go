package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core/deadline"
)

type deadlineApi struct {
	svc      *deadline.Service
	validate *validator.Validate
}

func registerDeadlineAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *deadline.Service, validate *validator.Validate) {
	api := deadlineApi{svc: svc, validate: validate}

	dg := g.Group("/deadlines", jwt, uuidParamMiddleware())
	dg.GET("", api.query)
	dg.POST("", api.create)
	dg.GET("/:id", api.retrieve)
	dg.PUT("/:id", api.update)
	dg.DELETE("/:id", api.destroy)
	dg.POST("/:id/complete", api.complete)
}

func (api *deadlineApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var deadlines []deadline.Deadline
	if ctx.QueryParam("upcoming_days") != "" {
		days, err := queryInt(ctx, "upcoming_days")
		if err != nil {
			return err
		}
		deadlines, err = api.svc.Upcoming(ctx.Request().Context(), actor, days)
		if err != nil {
			return errors.Wrap(err, "querying upcoming deadlines")
		}
	} else {
		completed, err := queryBool(ctx, "completed")
		if err != nil {
			return err
		}
		filter := deadline.QueryFilter{ApplicationID: ctx.QueryParam("application_id"), Completed: completed}
		deadlines, err = api.svc.Query(ctx.Request().Context(), actor, filter)
		if err != nil {
			return errors.Wrap(err, "querying deadlines")
		}
	}
	if deadlines == nil {
		deadlines = []deadline.Deadline{}
	}
	return ctx.JSON(http.StatusOK, deadlines)
}

func (api *deadlineApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data deadline.NewDeadline
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDeadline")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating deadline")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *deadlineApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting deadline")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *deadlineApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data deadline.UpdateDeadline
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDeadline")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating deadline")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *deadlineApi) complete(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.Complete(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing deadline")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *deadlineApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting deadline")
	}
	return ctx.NoContent(http.StatusNoContent)
}
