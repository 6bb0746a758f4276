package memory

import (
	"context"
	"sync"
	"time"
)

// DB is an in-memory row store shared by several collections. Transactions
// work on a copy of the whole store that replaces the committed state on
// success, so a failed transaction leaves no trace in any table.
type DB struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *state
	now   func() time.Time
}

type state struct {
	tables map[string]*table
}

type table struct {
	rows  map[string]map[string]any
	order []string
	seq   int64
}

type txKey struct{ db *DB }

type DBOption func(*DB)

// WithClock replaces the clock used for created_at and updated_at.
func WithClock(now func() time.Time) DBOption {
	return func(db *DB) { db.now = now }
}

func NewDB(opts ...DBOption) *DB {
	db := &DB{
		state: &state{tables: map[string]*table{}},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// RunInTx runs fn against a private copy of the store and commits it when fn
// succeeds. Nested calls join the outer transaction. Transactions are
// serialized.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{db}).(*state); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	working := db.state.clone()
	db.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{db}, working)); err != nil {
		return err
	}

	db.mu.Lock()
	db.state = working
	db.mu.Unlock()
	return nil
}

// read runs fn with the state visible to ctx.
func (db *DB) read(ctx context.Context, fn func(*state) error) error {
	if st, ok := ctx.Value(txKey{db}).(*state); ok {
		return fn(st)
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(db.state)
}

// write runs fn inside the transaction carried by ctx or in a new one.
func (db *DB) write(ctx context.Context, fn func(*state) error) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{db}).(*state))
	})
}

// table returns the named table. Missing tables read as empty and are only
// registered by mutable.
func (s *state) table(name string) *table {
	if t, ok := s.tables[name]; ok {
		return t
	}
	return &table{rows: map[string]map[string]any{}}
}

func (s *state) mutable(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: map[string]map[string]any{}}
		s.tables[name] = t
	}
	return t
}

func (s *state) clone() *state {
	out := &state{tables: make(map[string]*table, len(s.tables))}
	for name, t := range s.tables {
		ct := &table{
			rows:  make(map[string]map[string]any, len(t.rows)),
			order: append([]string(nil), t.order...),
			seq:   t.seq,
		}
		for id, row := range t.rows {
			ct.rows[id] = cloneRow(row)
		}
		out.tables[name] = ct
	}
	return out
}

func (t *table) remove(id string) {
	delete(t.rows, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneRow(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
