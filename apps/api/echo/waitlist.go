package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core/waitlist"
)

type waitlistApi struct {
	svc      *waitlist.Service
	validate *validator.Validate
}

func registerWaitlistAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *waitlist.Service, validate *validator.Validate) {
	api := waitlistApi{svc: svc, validate: validate}

	wg := g.Group("/waitlist")
	wg.POST("", api.join)
	wg.GET("", api.query, jwt, adminMiddleware())
}

type WaitlistResponse struct {
	Count   int              `json:"count"`
	Entries []waitlist.Entry `json:"entries"`
}

func (api *waitlistApi) join(ctx echo.Context) error {
	var data waitlist.NewEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEntry")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	entry, err := api.svc.Join(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "joining waitlist")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *waitlistApi) query(ctx echo.Context) error {
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	entries, count, err := api.svc.List(ctx.Request().Context(), page)
	if err != nil {
		return errors.Wrap(err, "listing waitlist")
	}
	if entries == nil {
		entries = []waitlist.Entry{}
	}
	return ctx.JSON(http.StatusOK, WaitlistResponse{Count: count, Entries: entries})
}
