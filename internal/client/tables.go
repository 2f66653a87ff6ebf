package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/existflow/hearth/internal/store"
)

func tablePath(table string) string {
	return "/api/v1/tables/" + url.PathEscape(table)
}

func (c *Client) tableQuery(where store.Filter, order []store.Order) (map[string]string, error) {
	q := map[string]string{}
	if !where.IsEmpty() {
		enc, err := where.Encode()
		if err != nil {
			return nil, err
		}
		q["where"] = enc
	}
	if len(order) > 0 {
		q["order"] = store.FormatOrder(order)
	}
	return q, nil
}

func (c *Client) ready() error {
	if c.session.Token == "" {
		return ErrNotLoggedIn
	}
	return nil
}

// Select implements store.Store
func (c *Client) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	query, err := c.tableQuery(q.Where, q.Order)
	if err != nil {
		return nil, err
	}
	var rows []store.Row
	if err := c.do(ctx, http.MethodGet, tablePath(table), query, nil, &rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

// Insert implements store.Store
func (c *Client) Insert(ctx context.Context, table string, rows ...store.Row) ([]store.Row, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var stored []store.Row
	if err := c.do(ctx, http.MethodPost, tablePath(table), nil, rows, &stored); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return stored, nil
}

type countResponse struct {
	Count int64 `json:"count"`
}

// Update implements store.Store
func (c *Client) Update(ctx context.Context, table string, where store.Filter, patch store.Row) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if where.IsEmpty() {
		return 0, fmt.Errorf("update %s: a filter is required", table)
	}
	query, err := c.tableQuery(where, nil)
	if err != nil {
		return 0, err
	}
	var res countResponse
	if err := c.do(ctx, http.MethodPatch, tablePath(table), query, patch, &res); err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return res.Count, nil
}

// Delete implements store.Store
func (c *Client) Delete(ctx context.Context, table string, where store.Filter) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if where.IsEmpty() {
		return 0, fmt.Errorf("delete %s: a filter is required", table)
	}
	query, err := c.tableQuery(where, nil)
	if err != nil {
		return 0, err
	}
	var res countResponse
	if err := c.do(ctx, http.MethodDelete, tablePath(table), query, nil, &res); err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return res.Count, nil
}

var _ store.Store = (*Client)(nil)
