package echoapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const cronSecretHeader = "X-Cron-Secret"

var errCronDisabled = echo.NewHTTPError(http.StatusForbidden, "cron endpoint disabled")

// HTTPObserver records served requests.
type HTTPObserver interface {
	ObserveHTTPRequest(method, route string, status int, took time.Duration)
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// uuidParamMiddleware answers 404 for an `:id` path param that is not a UUID.
func uuidParamMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if id := ctx.Param("id"); id != "" {
				if _, err := uuid.Parse(id); err != nil {
					return errHttpNotFound
				}
			}
			return next(ctx)
		}
	}
}

// cronSecretMiddleware only lets through requests carrying the shared cron secret.
func cronSecretMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if secret == "" {
				return errCronDisabled
			}
			got := ctx.Request().Header.Get(cronSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

func metricsMiddleware(observer HTTPObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err) // writes the error response, so the status is known
			}
			observer.ObserveHTTPRequest(ctx.Request().Method, ctx.Path(), ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
