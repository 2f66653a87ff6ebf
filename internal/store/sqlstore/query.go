package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// builder accumulates a statement's arguments
type builder struct {
	dialect Dialect
	table   store.Table
	args    []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	if b.dialect == Postgres {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func (b *builder) where(f store.Filter) (string, error) {
	switch f.Op {
	case "":
		return "1=1", nil
	case store.OpAnd, store.OpOr:
		parts := make([]string, 0, len(f.Args))
		for _, a := range f.Args {
			p, err := b.where(a)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		sep := " AND "
		if f.Op == store.OpOr {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", nil
	}

	col, ok := b.table.Column(f.Column)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", store.ErrUnknownColumn, b.table.Name, f.Column)
	}
	name := quote(col.Name)

	switch f.Op {
	case store.OpIsNull:
		return name + " IS NULL", nil
	case store.OpNotNull:
		return name + " IS NOT NULL", nil
	case store.OpIn:
		phs := make([]string, len(f.Values))
		for i, v := range f.Values {
			enc, err := encodeValue(col, v)
			if err != nil {
				return "", err
			}
			phs[i] = b.bind(enc)
		}
		return name + " IN (" + strings.Join(phs, ", ") + ")", nil
	}

	enc, err := encodeValue(col, f.Value)
	if err != nil {
		return "", err
	}
	switch f.Op {
	case store.OpEq:
		return name + " = " + b.bind(enc), nil
	case store.OpNeq:
		return name + " <> " + b.bind(enc), nil
	case store.OpGte:
		return name + " >= " + b.bind(enc), nil
	case store.OpLte:
		return name + " <= " + b.bind(enc), nil
	}
	return "", fmt.Errorf("unknown filter operator %q", f.Op)
}

func (b *builder) orderBy(orders []store.Order) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}
	parts := make([]string, len(orders))
	for i, o := range orders {
		if !b.table.Has(o.Column) {
			return "", fmt.Errorf("%w: %s.%s", store.ErrUnknownColumn, b.table.Name, o.Column)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts[i] = quote(o.Column) + " " + dir
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// encodeValue converts a Go, JSON or SQL value to what the column stores
func encodeValue(col store.Column, v any) (any, error) {
	if col.Kind == store.KindJSON {
		if v == nil {
			return nil, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if string(data) == "null" {
			return nil, nil
		}
		return string(data), nil
	}

	n := store.Normalize(v)
	if n == nil {
		return nil, nil
	}

	switch col.Kind {
	case store.KindBool:
		switch x := n.(type) {
		case bool:
			return x, nil
		case float64:
			return x != 0, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w: bool %q", col.Name, store.ErrInvalidValue, x)
			}
			return b, nil
		}
	case store.KindInt:
		switch x := n.(type) {
		case float64:
			return int64(x), nil
		case string:
			i, err := strconv.ParseInt(x, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w: integer %q", col.Name, store.ErrInvalidValue, x)
			}
			return i, nil
		}
	case store.KindTime:
		if x, ok := n.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w: timestamp %q", col.Name, store.ErrInvalidValue, x)
			}
			return store.FormatTime(t), nil
		}
	case store.KindText:
		switch x := n.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
	}
	return nil, fmt.Errorf("column %s: %w: %v (%T)", col.Name, store.ErrInvalidValue, v, v)
}

// decodeValue converts a scanned value to the row representation
func decodeValue(col store.Column, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch col.Kind {
	case store.KindBool:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case string:
			return x == "1" || strings.EqualFold(x, "true") || x == "t", nil
		}
	case store.KindInt:
		switch x := raw.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case store.KindJSON:
		if x, ok := raw.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(x), &out); err != nil {
				return nil, fmt.Errorf("column %s: %w", col.Name, err)
			}
			return out, nil
		}
	case store.KindTime:
		switch x := raw.(type) {
		case time.Time:
			return store.FormatTime(x), nil
		case string:
			return x, nil
		}
	case store.KindText:
		switch x := raw.(type) {
		case string:
			return x, nil
		case time.Time:
			return store.FormatTime(x), nil
		default:
			return fmt.Sprint(x), nil
		}
	}
	return nil, fmt.Errorf("column %s: cannot decode %T", col.Name, raw)
}

func scanRows(t store.Table, rows *sql.Rows) ([]store.Row, error) {
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		raw := make([]any, len(t.Columns))
		ptrs := make([]any, len(t.Columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(t.Columns))
		for i, col := range t.Columns {
			v, err := decodeValue(col, raw[i])
			if err != nil {
				return nil, err
			}
			row[col.Name] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) selectRows(ctx context.Context, q queryer, t store.Table, query store.Query) ([]store.Row, error) {
	b := &builder{dialect: s.dialect, table: t}
	where, err := b.where(query.Where)
	if err != nil {
		return nil, err
	}
	order, err := b.orderBy(query.Order)
	if err != nil {
		return nil, err
	}

	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c.Name)
	}
	stmt := "SELECT " + strings.Join(cols, ", ") + " FROM " + quote(t.Name) + " WHERE " + where + order

	rows, err := q.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	return scanRows(t, rows)
}

// Select returns the rows of table matching q
func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	return s.selectRows(ctx, s.db, t, q)
}

// Insert stores rows, assigning id and created_at, and returns them as stored
func (s *Store) Insert(ctx context.Context, table string, rows ...store.Row) ([]store.Row, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(rows))
	for _, in := range rows {
		row := in.Clone()
		delete(row, "id")
		row["id"] = uuid.NewString()
		if t.Has("created_at") {
			row["created_at"] = s.timestamp()
		}

		names := make([]string, 0, len(row))
		for name := range row {
			names = append(names, name)
		}
		sort.Strings(names)

		b := &builder{dialect: s.dialect, table: t}
		cols := make([]string, len(names))
		phs := make([]string, len(names))
		for i, name := range names {
			col, ok := t.Column(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", store.ErrUnknownColumn, table, name)
			}
			enc, err := encodeValue(col, row[name])
			if err != nil {
				return nil, err
			}
			cols[i] = quote(name)
			phs[i] = b.bind(enc)
		}

		stmt := "INSERT INTO " + quote(table) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(phs, ", ") + ")"
		if _, err := tx.ExecContext(ctx, stmt, b.args...); err != nil {
			return nil, s.wrapWriteErr("insert", table, err)
		}
		ids = append(ids, row["id"].(string))
	}

	stored, err := s.selectByIDs(ctx, tx, t, ids)
	if err != nil {
		return nil, err
	}
	if err := s.notify(ctx, tx, table, store.EventInsert, stored); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, s.wrapWriteErr("insert", table, err)
	}
	s.publish(table, store.EventInsert, stored)
	return stored, nil
}

// Update applies patch to every row matching where and returns the count
func (s *Store) Update(ctx context.Context, table string, where store.Filter, patch store.Row) (int64, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return 0, err
	}
	if where.IsEmpty() {
		return 0, fmt.Errorf("update %s: filter required", table)
	}
	if len(patch) == 0 {
		return 0, nil
	}
	if _, ok := patch["id"]; ok {
		return 0, fmt.Errorf("update %s: id cannot be changed", table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	defer tx.Rollback()

	ids, err := s.matchingIDs(ctx, tx, t, where)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(patch))
	for name := range patch {
		names = append(names, name)
	}
	sort.Strings(names)

	b := &builder{dialect: s.dialect, table: t}
	sets := make([]string, len(names))
	for i, name := range names {
		col, ok := t.Column(name)
		if !ok {
			return 0, fmt.Errorf("%w: %s.%s", store.ErrUnknownColumn, table, name)
		}
		enc, err := encodeValue(col, patch[name])
		if err != nil {
			return 0, err
		}
		sets[i] = quote(name) + " = " + b.bind(enc)
	}
	idFilter, err := b.where(idsFilter(ids))
	if err != nil {
		return 0, err
	}

	stmt := "UPDATE " + quote(table) + " SET " + strings.Join(sets, ", ") + " WHERE " + idFilter
	if _, err := tx.ExecContext(ctx, stmt, b.args...); err != nil {
		return 0, s.wrapWriteErr("update", table, err)
	}

	updated, err := s.selectByIDs(ctx, tx, t, ids)
	if err != nil {
		return 0, err
	}
	if err := s.notify(ctx, tx, table, store.EventUpdate, updated); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, s.wrapWriteErr("update", table, err)
	}
	s.publish(table, store.EventUpdate, updated)
	return int64(len(ids)), nil
}

// Delete removes every row matching where and returns the count
func (s *Store) Delete(ctx context.Context, table string, where store.Filter) (int64, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return 0, err
	}
	if where.IsEmpty() {
		return 0, fmt.Errorf("delete %s: filter required", table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	defer tx.Rollback()

	doomed, err := s.selectRows(ctx, tx, t, store.Query{Where: where})
	if err != nil {
		return 0, err
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	ids := make([]string, len(doomed))
	for i, r := range doomed {
		ids[i] = r.ID()
	}

	b := &builder{dialect: s.dialect, table: t}
	idFilter, err := b.where(idsFilter(ids))
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(table)+" WHERE "+idFilter, b.args...); err != nil {
		return 0, s.wrapWriteErr("delete", table, err)
	}
	if err := s.notify(ctx, tx, table, store.EventDelete, doomed); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, s.wrapWriteErr("delete", table, err)
	}
	s.publish(table, store.EventDelete, doomed)
	return int64(len(ids)), nil
}

func idsFilter(ids []string) store.Filter {
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return store.In("id", vals...)
}

func (s *Store) matchingIDs(ctx context.Context, q queryer, t store.Table, where store.Filter) ([]string, error) {
	b := &builder{dialect: s.dialect, table: t}
	cond, err := b.where(where)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, "SELECT "+quote("id")+" FROM "+quote(t.Name)+" WHERE "+cond, b.args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// selectByIDs returns rows in the order of ids
func (s *Store) selectByIDs(ctx context.Context, q queryer, t store.Table, ids []string) ([]store.Row, error) {
	rows, err := s.selectRows(ctx, q, t, store.Query{Where: idsFilter(ids)})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Row, len(rows))
	for _, r := range rows {
		byID[r.ID()] = r
	}
	out := make([]store.Row, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) wrapWriteErr(op, table string, err error) error {
	if isUniqueViolation(err) {
		s.log.Debug("Unique constraint violated", logger.F("op", op), logger.F("table", table), logger.Err(err))
		return fmt.Errorf("%s %s: %w", op, table, store.ErrConflict)
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
