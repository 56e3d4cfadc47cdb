package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core/resume"
)

type resumeApi struct {
	svc      *resume.Service
	validate *validator.Validate
}

func registerResumeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *resume.Service, validate *validator.Validate) {
	api := resumeApi{svc: svc, validate: validate}

	rg := g.Group("/resumes", jwt, uuidParamMiddleware())
	rg.GET("", api.query)
	rg.POST("", api.create)
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.update)
	rg.DELETE("/:id", api.destroy)
}

func (api *resumeApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	resumes, err := api.svc.Query(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "querying resumes")
	}
	if resumes == nil {
		resumes = []resume.Resume{}
	}
	return ctx.JSON(http.StatusOK, resumes)
}

func (api *resumeApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data resume.NewResume
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResume")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating resume")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *resumeApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting resume")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resumeApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data resume.UpdateResume
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateResume")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating resume")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resumeApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting resume")
	}
	return ctx.NoContent(http.StatusNoContent)
}
