package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/reminder"
)

func registerCronAPI(g *echo.Group, conf *core.Config, proc *reminder.Processor) {
	cg := g.Group("/cron", cronSecretMiddleware(conf.Server.CronSecret))
	cg.POST("/reminders", func(ctx echo.Context) error {
		summary, err := proc.RunOnce(ctx.Request().Context())
		if err != nil {
			return errors.Wrap(err, "running reminder pass")
		}
		return ctx.JSON(http.StatusOK, summary)
	})
}
