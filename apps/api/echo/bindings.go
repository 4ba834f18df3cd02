package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/alama/core"
)

const orderingParam = "ordering"

// bindOrdering parses `?ordering=name,-created_at`, keeping the allowed fields only.
func bindOrdering(ctx echo.Context, allowed ...string) []core.DBOrdering {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}
	return core.ParseOrdering(val, allowed...)
}
