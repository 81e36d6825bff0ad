// Package request holds small helpers for reading echo request input.
package request

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/tableside/pkg/errorbank"
)

// ParamID parses a positive integer path parameter.
func ParamID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithDetail(name, c.Param(name)))
	}
	return id, nil
}

// QueryInt parses an optional integer query parameter.
func QueryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithDetail(name, raw))
	}
	return v, nil
}

// QueryInt64 parses an optional int64 query parameter.
func QueryInt64(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithDetail(name, raw))
	}
	return v, nil
}

// Bind decodes the body into v, wrapping failures as bad requests.
func Bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	return nil
}
