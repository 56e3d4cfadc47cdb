package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/edulens/core"
)

var (
	orderingParam = "ordering"
	limitParam    = "limit"
	offsetParam   = "offset"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPage reads the `limit` & `offset` query params.
func bindPage(ctx echo.Context) (core.Page, error) {
	var page core.Page
	var err error
	if page.Limit, err = queryUint(ctx, limitParam); err != nil {
		return core.Page{}, err
	}
	if page.Offset, err = queryUint(ctx, offsetParam); err != nil {
		return core.Page{}, err
	}
	return page.Normalize(), nil
}

func queryUint(ctx echo.Context, name string) (uint64, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, queryParamError(name, "must be a positive integer")
	}
	return n, nil
}

func queryInt(ctx echo.Context, name string) (int, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, queryParamError(name, "must be an integer")
	}
	return n, nil
}

// queryBool returns nil when the param is absent.
func queryBool(ctx echo.Context, name string) (*bool, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, queryParamError(name, "must be a boolean")
	}
	return &b, nil
}

func queryTime(ctx echo.Context, name string) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, queryParamError(name, "must be an RFC 3339 date-time")
	}
	return t.UTC(), nil
}

// queryList returns the values of a repeated or comma-separated query param.
func queryList(ctx echo.Context, name string) []string {
	var values []string
	for _, val := range ctx.QueryParams()[name] {
		for _, v := range strings.Split(val, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
	}
	return values
}

func queryParamError(name, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: name, Error: msg})
}
