package bunstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-resource/resource"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Name      string    `bun:"name,notnull"`
	Color     *string   `bun:"color"`
	Size      int       `bun:"size,notnull"`
	Removed   bool      `bun:"removed,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (w *widget) GetID() uuid.UUID   { return w.ID }
func (w *widget) SetID(id uuid.UUID) { w.ID = id }

func newWidget() *widget { return &widget{} }

func color(s string) *string { return &s }

func setupCollection(t *testing.T) (*bun.DB, *Collection[*widget]) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, CreateTables(context.Background(), db, (*widget)(nil)))
	return db, New(db, newWidget)
}

// seedWidgets inserts widgets with increasing creation times so the default
// ordering is deterministic.
func seedWidgets(t *testing.T, c *Collection[*widget], widgets ...*widget) []*widget {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*widget, 0, len(widgets))
	for i, w := range widgets {
		w.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		saved, err := c.Create(context.Background(), w)
		require.NoError(t, err)
		out = append(out, saved)
	}
	return out
}

func names(ws []*widget) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Name)
	}
	return out
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestCollection_CreateAndGet(t *testing.T) {
	_, c := setupCollection(t)
	ctx := context.Background()

	saved := seedWidgets(t, c, &widget{Name: "a", Size: 1})[0]
	require.NotEqual(t, uuid.Nil, saved.ID)
	assert.Equal(t, saved.ID.String(), c.ID(saved))

	got, err := c.GetByID(ctx, c.ID(saved), resource.Query{})
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)

	_, err = c.GetByID(ctx, uuid.NewString(), resource.Query{})
	assert.True(t, resource.IsNotFound(err))

	_, err = c.GetByID(ctx, "not-a-uuid", resource.Query{})
	assert.True(t, resource.IsNotFound(err))
}

func TestCollection_Filters(t *testing.T) {
	_, c := setupCollection(t)
	ctx := context.Background()
	seedWidgets(t, c,
		&widget{Name: "a", Color: color("red"), Size: 1},
		&widget{Name: "b", Color: color("red"), Size: 2},
		&widget{Name: "c", Color: color("blue"), Size: 1},
		&widget{Name: "d", Size: 3},
	)

	tests := []struct {
		name string
		q    resource.Query
		want []string
	}{
		{"all", resource.Query{}, []string{"a", "b", "c", "d"}},
		{"scalar", resource.Query{Include: resource.Predicates{"color": resource.Scalar("red")}}, []string{"a", "b"}},
		{"numeric", resource.Query{Include: resource.Predicates{"size": resource.Scalar(int64(1))}}, []string{"a", "c"}},
		{"set", resource.Query{Include: resource.Predicates{"name": resource.Set("a", "d")}}, []string{"a", "d"}},
		{"null", resource.Query{Include: resource.Predicates{"color": resource.Scalar(nil)}}, []string{"d"}},
		{
			"exclude all predicates at once",
			resource.Query{Exclude: resource.Predicates{
				"color": resource.Scalar("red"),
				"size":  resource.Scalar(int64(1)),
			}},
			[]string{"b", "c", "d"},
		},
		{
			"exclude keeps null rows",
			resource.Query{Exclude: resource.Predicates{"color": resource.Scalar("red")}},
			[]string{"c", "d"},
		},
		{
			"exclude set keeps null rows",
			resource.Query{Exclude: resource.Predicates{"color": resource.Set("green", "red")}},
			[]string{"c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Slice(ctx, tt.q, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))

			n, err := c.Count(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func TestCollection_OrderAndWindow(t *testing.T) {
	_, c := setupCollection(t)
	ctx := context.Background()
	seedWidgets(t, c,
		&widget{Name: "a", Size: 2},
		&widget{Name: "b", Size: 3},
		&widget{Name: "c", Size: 1},
	)

	got, err := c.Slice(ctx, resource.Query{OrderBy: []resource.OrderField{{Field: "size", Desc: true}}}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, names(got))

	got, err = c.Slice(ctx, resource.Query{}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(got))
}

func TestCollection_RangeWithLargeBottom(t *testing.T) {
	_, c := setupCollection(t)
	ctx := context.Background()
	seedWidgets(t, c,
		&widget{Name: "a", Size: 1},
		&widget{Name: "b", Size: 2},
		&widget{Name: "c", Size: 3},
	)

	spec, err := resource.ParseFilters(url.Values{"top": {"1"}, "bottom": {"2147483647"}}, resource.AllFields())
	require.NoError(t, err)

	page, err := resource.Paginate[*widget](ctx, c, resource.Query{}, spec.Window, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names(page.Records))
	assert.Equal(t, 3, page.TotalCount)

	huge := math.MaxInt
	page, err = resource.Paginate[*widget](ctx, c, resource.Query{}, resource.Window{Bottom: &huge}, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names(page.Records))

	got, err := c.Slice(ctx, resource.Query{}, 0, math.MaxInt32)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCollection_UnknownFieldIsValidation(t *testing.T) {
	_, c := setupCollection(t)
	ctx := context.Background()

	_, err := c.Count(ctx, resource.Query{Include: resource.Predicates{"nope": resource.Scalar("x")}})
	assert.True(t, resource.IsValidation(err))

	_, err = c.Slice(ctx, resource.Query{OrderBy: []resource.OrderField{{Field: "nope"}}}, 0, 1)
	assert.True(t, resource.IsValidation(err))
}

func TestCollection_SoftDeleteFlag(t *testing.T) {
	_, c := setupCollection(t)
	ctx := context.Background()
	saved := seedWidgets(t, c, &widget{Name: "a"}, &widget{Name: "b"})

	flagged, err := c.SetFlag(ctx, saved[0], "removed", true)
	require.NoError(t, err)
	assert.True(t, flagged.Removed)

	q := resource.Query{SoftDeleteField: "removed"}
	_, err = c.GetByID(ctx, c.ID(saved[0]), q)
	assert.True(t, resource.IsNotFound(err))

	n, err := c.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	q.WithDeleted = true
	_, err = c.GetByID(ctx, c.ID(saved[0]), q)
	assert.NoError(t, err)

	_, err = c.SetFlag(ctx, saved[1], "missing", true)
	assert.True(t, resource.IsValidation(err))
}

func TestCollection_UpdateAndDelete(t *testing.T) {
	_, c := setupCollection(t)
	ctx := context.Background()
	saved := seedWidgets(t, c, &widget{Name: "a", Size: 1})[0]

	saved.Name = "renamed"
	updated, err := c.Update(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)

	_, err = c.Update(ctx, &widget{ID: uuid.New(), Name: "ghost"})
	assert.True(t, resource.IsNotFound(err))

	require.NoError(t, c.Delete(ctx, updated))
	_, err = c.GetByID(ctx, c.ID(updated), resource.Query{})
	assert.True(t, resource.IsNotFound(err))
}

func TestCollection_RunInTxRollsBack(t *testing.T) {
	_, c := setupCollection(t)
	ctx := context.Background()
	seedWidgets(t, c, &widget{Name: "keep"})

	boom := errors.New("boom")
	err := c.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := c.Create(ctx, &widget{Name: "lost", CreatedAt: time.Now()}); err != nil {
			return err
		}
		// nested calls join the outer transaction
		return c.RunInTx(ctx, func(ctx context.Context) error {
			n, err := c.Count(ctx, resource.Query{})
			if err != nil {
				return err
			}
			if n != 2 {
				return fmt.Errorf("expected 2 rows inside tx, got %d", n)
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	got, err := c.Slice(ctx, resource.Query{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, names(got))
}
