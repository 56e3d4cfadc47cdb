package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core/marketplace"
)

type marketplaceApi struct {
	svc      *marketplace.Service
	validate *validator.Validate
}

func registerMarketplaceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *marketplace.Service, validate *validator.Validate) {
	api := marketplaceApi{svc: svc, validate: validate}

	lg := g.Group("/marketplace/listings", jwt, uuidParamMiddleware())
	lg.GET("", api.query)
	lg.POST("", api.create)
	lg.GET("/:id", api.retrieve)
	lg.PUT("/:id", api.update)
	lg.DELETE("/:id", api.destroy)
}

func (api *marketplaceApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	filter := marketplace.QueryFilter{
		Category: ctx.QueryParam("category"),
		UserID:   ctx.QueryParam("provider_id"),
		Search:   ctx.QueryParam("search"),
	}

	listings, err := api.svc.Query(ctx.Request().Context(), actor, filter, page)
	if err != nil {
		return errors.Wrap(err, "querying listings")
	}
	if listings == nil {
		listings = []marketplace.Listing{}
	}
	return ctx.JSON(http.StatusOK, listings)
}

func (api *marketplaceApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data marketplace.NewListing
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewListing")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	listing, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating listing")
	}
	return ctx.JSON(http.StatusCreated, listing)
}

func (api *marketplaceApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	listing, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting listing")
	}
	return ctx.JSON(http.StatusOK, listing)
}

func (api *marketplaceApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data marketplace.UpdateListing
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateListing")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	listing, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating listing")
	}
	return ctx.JSON(http.StatusOK, listing)
}

func (api *marketplaceApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting listing")
	}
	return ctx.NoContent(http.StatusNoContent)
}
