package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store"
	"github.com/labstack/echo/v4"
)

type countResponse struct {
	Count int64 `json:"count"`
}

// storeError writes the error body clients map back to store sentinels
func (s *Server) storeError(c echo.Context, err error) error {
	var (
		status = http.StatusInternalServerError
		code   string
		msg    = err.Error()
	)
	switch {
	case errors.Is(err, store.ErrUnknownTable):
		status, code = http.StatusNotFound, "unknown_table"
	case errors.Is(err, store.ErrUnknownColumn):
		status, code = http.StatusBadRequest, "unknown_column"
	case errors.Is(err, store.ErrInvalidValue):
		status, code = http.StatusBadRequest, "invalid_value"
	case errors.Is(err, store.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	default:
		s.log.Error("store call failed",
			logger.F("method", c.Request().Method),
			logger.F("table", c.Param("table")),
			logger.Err(err))
		msg = "internal error"
	}
	body := map[string]string{"error": msg}
	if code != "" {
		body["code"] = code
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

// tableQuery reads the where and order query parameters
func tableQuery(c echo.Context) (store.Query, error) {
	where, err := store.DecodeFilter(c.QueryParam("where"))
	if err != nil {
		return store.Query{}, err
	}
	order, err := store.ParseOrder(c.QueryParam("order"))
	if err != nil {
		return store.Query{}, err
	}
	return store.Query{Where: where, Order: order}, nil
}

// decodeBody reads a JSON body keeping numbers exact
func decodeBody(c echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func (s *Server) handleSelect(c echo.Context) error {
	q, err := tableQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	rows, err := s.store.Select(c.Request().Context(), c.Param("table"), q)
	if err != nil {
		return s.storeError(c, err)
	}
	if rows == nil {
		rows = []store.Row{}
	}
	return c.JSON(http.StatusOK, rows)
}

// handleInsert stores a JSON array of rows and returns them as stored.
// Cards are stamped with the caller as creator.
func (s *Server) handleInsert(c echo.Context) error {
	table := c.Param("table")
	var rows []store.Row
	if err := decodeBody(c, &rows); err != nil {
		return badRequest(c, "invalid request: expected an array of rows")
	}
	if len(rows) == 0 {
		return c.JSON(http.StatusOK, []store.Row{})
	}
	if table == store.TableCards {
		for _, r := range rows {
			r["created_by"] = userID(c)
		}
	}
	stored, err := s.store.Insert(c.Request().Context(), table, rows...)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, stored)
}

func (s *Server) handleUpdate(c echo.Context) error {
	q, err := tableQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if q.Where.IsEmpty() {
		return badRequest(c, "a filter is required")
	}
	var patch store.Row
	if err := decodeBody(c, &patch); err != nil || len(patch) == 0 {
		return badRequest(c, "invalid request: expected a patch object")
	}
	if _, ok := patch["id"]; ok {
		return badRequest(c, "id cannot be changed")
	}
	n, err := s.store.Update(c.Request().Context(), c.Param("table"), q.Where, patch)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, countResponse{Count: n})
}

func (s *Server) handleDelete(c echo.Context) error {
	q, err := tableQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if q.Where.IsEmpty() {
		return badRequest(c, "a filter is required")
	}
	n, err := s.store.Delete(c.Request().Context(), c.Param("table"), q.Where)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, countResponse{Count: n})
}
