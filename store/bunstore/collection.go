package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-resource/resource"
)

// Model is a bun model addressed by a UUID primary key.
type Model interface {
	GetID() uuid.UUID
	SetID(id uuid.UUID)
}

type txKey struct{}

// Collection is a resource.Collection over one bun model. Reads are built
// with bun directly; inserts and deletes go through a go-repository-bun
// Repository. Writes join the transaction started by RunInTx.
type Collection[T Model] struct {
	db        *bun.DB
	repo      repository.Repository[T]
	table     *schema.Table
	newRecord func() T
}

// Handlers returns the repository handlers for T.
func Handlers[T Model](newRecord func() T) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return record.GetID()
		},
		SetID: func(record T, id uuid.UUID) {
			record.SetID(id)
		},
		GetIdentifier: func() string {
			return "id"
		},
	}
}

// New builds a collection for the model returned by newRecord.
func New[T Model](db *bun.DB, newRecord func() T) *Collection[T] {
	return &Collection[T]{
		db:        db,
		repo:      repository.NewRepository[T](db, Handlers(newRecord)),
		table:     db.Table(reflect.TypeOf(newRecord())),
		newRecord: newRecord,
	}
}

func (c *Collection[T]) idb(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return c.db
}

// RunInTx runs fn inside a database transaction. Nested calls join the
// outer transaction.
func (c *Collection[T]) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (c *Collection[T]) Count(ctx context.Context, q resource.Query) (int, error) {
	sq, err := c.selectQuery(ctx, q, c.newRecord())
	if err != nil {
		return 0, err
	}
	return sq.Count(ctx)
}

func (c *Collection[T]) Slice(ctx context.Context, q resource.Query, offset, limit int) ([]T, error) {
	var records []T
	sq, err := c.selectQuery(ctx, q, &records)
	if err != nil {
		return nil, err
	}
	sq, err = c.order(sq, q.OrderBy)
	if err != nil {
		return nil, err
	}
	if err := sq.Offset(offset).Limit(limit).Scan(ctx); err != nil {
		return nil, err
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// GetByID honours the soft delete part of q; other predicates are ignored.
func (c *Collection[T]) GetByID(ctx context.Context, id string, q resource.Query) (T, error) {
	var zero T
	if _, err := uuid.Parse(id); err != nil {
		return zero, resource.NewNotFound(c.table.Name, id)
	}

	rec := c.newRecord()
	sq := c.idb(ctx).NewSelect().Model(rec).Where("? = ?", bun.Ident(c.pk()), id)
	if q.SoftDeleteField != "" && !q.WithDeleted {
		sq = sq.Where("? = ?", bun.Ident(q.SoftDeleteField), false)
	}

	if err := sq.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, resource.NewNotFound(c.table.Name, id)
		}
		return zero, err
	}
	return rec, nil
}

func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	if record.GetID() == uuid.Nil {
		record.SetID(uuid.New())
	}
	return c.repo.CreateTx(ctx, c.idb(ctx), record)
}

// Update writes every column of record and reads it back.
func (c *Collection[T]) Update(ctx context.Context, record T) (T, error) {
	var zero T
	res, err := c.idb(ctx).NewUpdate().Model(record).WherePK().Exec(ctx)
	if err != nil {
		return zero, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return zero, resource.NewNotFound(c.table.Name, record.GetID().String())
	}
	return c.GetByID(ctx, record.GetID().String(), resource.Query{WithDeleted: true})
}

// SetFlag updates only field and returns the stored record.
func (c *Collection[T]) SetFlag(ctx context.Context, record T, field string, value bool) (T, error) {
	var zero T
	if !c.table.HasField(field) {
		return zero, unknownField(field)
	}
	_, err := c.idb(ctx).NewUpdate().
		Model(record).
		Set("? = ?", bun.Ident(field), value).
		WherePK().
		Exec(ctx)
	if err != nil {
		return zero, err
	}
	return c.GetByID(ctx, record.GetID().String(), resource.Query{WithDeleted: true})
}

func (c *Collection[T]) Delete(ctx context.Context, record T) error {
	return c.repo.DeleteTx(ctx, c.idb(ctx), record)
}

func (c *Collection[T]) ID(record T) string {
	return record.GetID().String()
}

func (c *Collection[T]) pk() string {
	if len(c.table.PKs) > 0 {
		return c.table.PKs[0].Name
	}
	return "id"
}

func (c *Collection[T]) selectQuery(ctx context.Context, q resource.Query, model any) (*bun.SelectQuery, error) {
	sq := c.idb(ctx).NewSelect().Model(model)

	if q.SoftDeleteField != "" && !q.WithDeleted {
		sq = sq.Where("? = ?", bun.Ident(q.SoftDeleteField), false)
	}

	for _, field := range q.Include.Fields() {
		if !c.table.HasField(field) {
			return nil, unknownField(field)
		}
		clause, args := predicate(field, q.Include[field], false)
		sq = sq.Where(clause, args...)
	}

	if len(q.Exclude) > 0 {
		var parts []string
		var args []any
		for _, field := range q.Exclude.Fields() {
			if !c.table.HasField(field) {
				return nil, unknownField(field)
			}
			clause, a := predicate(field, q.Exclude[field], true)
			parts = append(parts, clause)
			args = append(args, a...)
		}
		sq = sq.Where("NOT ("+strings.Join(parts, " AND ")+")", args...)
	}

	return sq, nil
}

// order applies the requested ordering followed by a stable default of
// creation time (when the model has one) and primary key.
func (c *Collection[T]) order(sq *bun.SelectQuery, fields []resource.OrderField) (*bun.SelectQuery, error) {
	for _, o := range fields {
		if !c.table.HasField(o.Field) {
			return nil, unknownField(o.Field)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		sq = sq.OrderExpr("? "+dir, bun.Ident(o.Field))
	}
	if c.table.HasField("created_at") {
		sq = sq.OrderExpr("? ASC", bun.Ident("created_at"))
	}
	return sq.OrderExpr("? ASC", bun.Ident(c.pk())), nil
}

// predicate renders one comparison. Inside a negated group a match also
// requires a non null column so that NULL rows are not dropped.
func predicate(field string, v resource.Value, negated bool) (string, []any) {
	col := bun.Ident(field)
	if v.IsSet() {
		if negated {
			return "(? IN (?) AND ? IS NOT NULL)", []any{col, bun.In(v.Items()), col}
		}
		return "? IN (?)", []any{col, bun.In(v.Items())}
	}
	if v.Scalar() == nil {
		return "? IS NULL", []any{col}
	}
	if negated {
		return "(? = ? AND ? IS NOT NULL)", []any{col, v.Scalar(), col}
	}
	return "? = ?", []any{col, v.Scalar()}
}

func unknownField(field string) error {
	return resource.NewValidationError(nil, goerrors.FieldError{
		Field:   field,
		Message: "unknown field",
	})
}
