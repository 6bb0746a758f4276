package memory

import (
	"context"
	"sort"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-resource/resource"
)

// Mapper converts records to rows and back.
type Mapper[T any] interface {
	ToMap(record T) (map[string]any, error)
	FromMap(row map[string]any) (T, error)
}

// Collection is a resource.Collection over one table of a DB.
type Collection[T any] struct {
	db      *DB
	table   string
	mapper  Mapper[T]
	idField string
	nextID  func(seq int64) any
}

type Option func(*options)

type options struct {
	idField string
	nextID  func(seq int64) any
}

// WithIDField names the primary key column. Default "id".
func WithIDField(name string) Option {
	return func(o *options) { o.idField = name }
}

// WithUUIDs assigns random UUID strings to new rows instead of a sequence.
func WithUUIDs() Option {
	return func(o *options) {
		o.nextID = func(int64) any { return uuid.NewString() }
	}
}

func NewCollection[T any](db *DB, table string, mapper Mapper[T], opts ...Option) *Collection[T] {
	o := options{
		idField: "id",
		nextID:  func(seq int64) any { return float64(seq) },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Collection[T]{
		db:      db,
		table:   table,
		mapper:  mapper,
		idField: o.idField,
		nextID:  o.nextID,
	}
}

func (c *Collection[T]) Count(ctx context.Context, q resource.Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := c.db.read(ctx, func(s *state) error {
		n = len(c.selectRows(s, q))
		return nil
	})
	return n, err
}

func (c *Collection[T]) Slice(ctx context.Context, q resource.Query, offset, limit int) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []map[string]any
	err := c.db.read(ctx, func(s *state) error {
		all := c.selectRows(s, q)
		if offset >= len(all) || limit <= 0 {
			return nil
		}
		end := min(offset+limit, len(all))
		for _, row := range all[offset:end] {
			rows = append(rows, cloneRow(row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		rec, err := c.mapper.FromMap(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetByID honours the soft delete part of q; other predicates are ignored.
func (c *Collection[T]) GetByID(ctx context.Context, id string, q resource.Query) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var row map[string]any
	_ = c.db.read(ctx, func(s *state) error {
		if r, ok := s.table(c.table).rows[id]; ok && visible(r, q) {
			row = cloneRow(r)
		}
		return nil
	})
	if row == nil {
		return zero, resource.NewNotFound(c.table, id)
	}
	return c.mapper.FromMap(row)
}

// Raw returns the stored row for id regardless of any soft delete flag.
func (c *Collection[T]) Raw(ctx context.Context, id string) (map[string]any, bool) {
	var row map[string]any
	_ = c.db.read(ctx, func(s *state) error {
		if r, ok := s.table(c.table).rows[id]; ok {
			row = cloneRow(r)
		}
		return nil
	})
	return row, row != nil
}

func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	row, err := c.mapper.ToMap(record)
	if err != nil {
		return zero, err
	}

	err = c.db.write(ctx, func(s *state) error {
		t := s.mutable(c.table)
		if isZeroID(row[c.idField]) {
			t.seq++
			row[c.idField] = c.nextID(t.seq)
		}
		id := resource.Canonical(row[c.idField])
		if _, exists := t.rows[id]; exists {
			return resource.NewValidationError(nil, errors.FieldError{
				Field:   c.idField,
				Message: "already exists",
				Value:   id,
			})
		}

		now := c.db.now().UTC().Format(time.RFC3339Nano)
		stamp(row, "created_at", now)
		stamp(row, "updated_at", now)

		t.rows[id] = cloneRow(row)
		t.order = append(t.order, id)
		return nil
	})
	if err != nil {
		return zero, err
	}
	return c.mapper.FromMap(row)
}

func (c *Collection[T]) Update(ctx context.Context, record T) (T, error) {
	var zero T
	row, err := c.mapper.ToMap(record)
	if err != nil {
		return zero, err
	}
	id := resource.Canonical(row[c.idField])

	err = c.db.write(ctx, func(s *state) error {
		t := s.mutable(c.table)
		current, ok := t.rows[id]
		if !ok {
			return resource.NewNotFound(c.table, id)
		}
		if created, ok := current["created_at"]; ok {
			row["created_at"] = created
		}
		stamp(row, "updated_at", c.db.now().UTC().Format(time.RFC3339Nano))
		t.rows[id] = cloneRow(row)
		return nil
	})
	if err != nil {
		return zero, err
	}
	return c.mapper.FromMap(row)
}

// SetFlag persists only field on the stored row.
func (c *Collection[T]) SetFlag(ctx context.Context, record T, field string, value bool) (T, error) {
	var zero T
	id := c.ID(record)

	var row map[string]any
	err := c.db.write(ctx, func(s *state) error {
		current, ok := s.mutable(c.table).rows[id]
		if !ok {
			return resource.NewNotFound(c.table, id)
		}
		current[field] = value
		row = cloneRow(current)
		return nil
	})
	if err != nil {
		return zero, err
	}
	return c.mapper.FromMap(row)
}

func (c *Collection[T]) Delete(ctx context.Context, record T) error {
	id := c.ID(record)
	return c.db.write(ctx, func(s *state) error {
		t := s.mutable(c.table)
		if _, ok := t.rows[id]; !ok {
			return resource.NewNotFound(c.table, id)
		}
		t.remove(id)
		return nil
	})
}

func (c *Collection[T]) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.db.RunInTx(ctx, fn)
}

func (c *Collection[T]) ID(record T) string {
	row, err := c.mapper.ToMap(record)
	if err != nil {
		return ""
	}
	return resource.Canonical(row[c.idField])
}

// selectRows returns matching rows in query order. Rows are shared with the
// state and must be cloned before leaving the lock.
func (c *Collection[T]) selectRows(s *state, q resource.Query) []map[string]any {
	t := s.table(c.table)
	out := make([]map[string]any, 0, len(t.order))
	for _, id := range t.order {
		if row := t.rows[id]; matches(row, q) {
			out = append(out, row)
		}
	}
	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compare(out[i][o.Field], out[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	return out
}

func visible(row map[string]any, q resource.Query) bool {
	if q.SoftDeleteField == "" || q.WithDeleted {
		return true
	}
	flag, _ := row[q.SoftDeleteField].(bool)
	return !flag
}

func matches(row map[string]any, q resource.Query) bool {
	if !visible(row, q) {
		return false
	}
	for field, v := range q.Include {
		if !v.Matches(row[field]) {
			return false
		}
	}
	if len(q.Exclude) == 0 {
		return true
	}
	// exclusion removes rows matching every exclude predicate at once
	for field, v := range q.Exclude {
		if !v.Matches(row[field]) {
			return true
		}
	}
	return false
}

// compare orders nil first, then numbers numerically and everything else
// by canonical text.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	fa, aok := a.(float64)
	fb, bok := b.(float64)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	sa, sb := resource.Canonical(a), resource.Canonical(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func isZeroID(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case float64:
		return t == 0
	case string:
		return t == "" || t == uuid.Nil.String()
	default:
		return false
	}
}

// stamp sets a timestamp column only when the record type declares it.
func stamp(row map[string]any, field, now string) {
	if _, ok := row[field]; ok {
		row[field] = now
	}
}
