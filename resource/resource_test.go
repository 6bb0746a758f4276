package resource_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-resource/cache"
	"github.com/goliatone/go-resource/codec"
	"github.com/goliatone/go-resource/resource"
	"github.com/goliatone/go-resource/store/memory"
)

type ticket struct {
	ID       int64  `json:"id,omitempty"`
	Status   string `json:"status"`
	Assignee string `json:"assignee,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Removed  bool   `json:"removed"`
}

func (t ticket) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Status, validation.Required, validation.In("open", "closed")),
	)
}

type fixture struct {
	db    *memory.DB
	coll  *memory.Collection[ticket]
	codec *codec.JSON[ticket]
	cache cache.CacheService
	logs  *bytes.Buffer
}

func newFixture() *fixture {
	db := memory.NewDB()
	c := codec.NewJSON[ticket](codec.WithReadOnly("id", "removed"))
	return &fixture{
		db:    db,
		coll:  memory.NewCollection[ticket](db, "tickets", c),
		codec: c,
		cache: cache.NewMemoryService(),
		logs:  &bytes.Buffer{},
	}
}

func (f *fixture) definition() resource.Definition[ticket] {
	return resource.Definition[ticket]{
		Collection:     f.coll,
		Codec:          f.codec,
		PageSize:       2,
		CacheKeyPrefix: "tickets",
	}
}

func (f *fixture) build(t *testing.T, def resource.Definition[ticket], opts ...resource.Option) *resource.Resource[ticket] {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]resource.Option{resource.WithCache(f.cache), resource.WithLogger(logger)}, opts...)
	r, err := resource.New(def, opts...)
	require.NoError(t, err)
	return r
}

func (f *fixture) seed(t *testing.T, tickets ...ticket) {
	t.Helper()
	for _, tk := range tickets {
		_, err := f.coll.Create(context.Background(), tk)
		require.NoError(t, err)
	}
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.coll.Count(context.Background(), resource.Query{})
	require.NoError(t, err)
	return n
}

func objectIDs(res resource.ListResult) []float64 {
	out := make([]float64, 0, len(res.Objects))
	for _, o := range res.Objects {
		out = append(out, o["id"].(float64))
	}
	return out
}

func TestResource_DefaultName(t *testing.T) {
	f := newFixture()
	r := f.build(t, f.definition())
	assert.Equal(t, "tickets", r.Name())
	assert.True(t, r.Definition().UpdateFields.IsAll())
}

func TestResource_InvalidDefinition(t *testing.T) {
	_, err := resource.New(resource.Definition[ticket]{Name: "tickets"})
	assert.True(t, resource.IsValidation(err))
}

func TestResource_ListCountedPage(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		f.seed(t, ticket{Status: "open"})
	}
	r := f.build(t, f.definition())

	res, err := r.List(context.Background(), url.Values{"top": {"2"}})
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 4}, objectIDs(res))
	assert.Equal(t, 5, res.TotalCount)
	require.NotNil(t, res.NumPages)
	require.NotNil(t, res.CurrentPage)
	assert.Equal(t, 3, *res.NumPages)
	assert.Equal(t, 2, *res.CurrentPage)
}

func TestResource_ListRange(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		f.seed(t, ticket{Status: "open"})
	}
	r := f.build(t, f.definition())

	res, err := r.List(context.Background(), url.Values{"top": {"1"}, "bottom": {"4"}})
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 3, 4}, objectIDs(res))
	assert.Equal(t, 5, res.TotalCount)
	assert.Nil(t, res.NumPages)
	assert.Nil(t, res.CurrentPage)
}

func TestResource_ListFilters(t *testing.T) {
	f := newFixture()
	f.seed(t,
		ticket{Status: "open", Assignee: "ana"},
		ticket{Status: "closed", Assignee: "ana"},
		ticket{Status: "open", Assignee: "bo"},
		ticket{Status: "open", Assignee: "cy"},
	)
	def := f.definition()
	def.PageSize = 10
	def.FilterFields = resource.NamedFields("status", "assignee")
	r := f.build(t, def)
	ctx := context.Background()

	res, err := r.List(ctx, url.Values{"status": {"open"}, "notes": {"ignored"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 4}, objectIDs(res))

	res, err = r.List(ctx, url.Values{"assignee": {"bo,cy"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, objectIDs(res))

	res, err = r.List(ctx, url.Values{"exclude__status": {"open"}, "exclude__assignee": {"ana"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4}, objectIDs(res))

	res, err = r.List(ctx, url.Values{"status": {"open"}, "order_by": {"-assignee"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 3, 1}, objectIDs(res))
	assert.Equal(t, 3, res.TotalCount)
}

func TestResource_ListParseError(t *testing.T) {
	f := newFixture()
	r := f.build(t, f.definition())

	_, err := r.List(context.Background(), url.Values{"page": {"0"}})
	assert.True(t, resource.IsParseError(err))
}

func TestResource_MethodNotAllowed(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open"})
	def := f.definition()
	def.Operations = resource.OperationSet{resource.OpList}
	r := f.build(t, def)
	ctx := context.Background()

	_, err := r.Retrieve(ctx, "1")
	assert.True(t, resource.IsMethodNotAllowed(err))
	_, err = r.Create(ctx, resource.Payload{"status": "open"})
	assert.True(t, resource.IsMethodNotAllowed(err))
	_, err = r.Update(ctx, "1", resource.Payload{"status": "closed"})
	assert.True(t, resource.IsMethodNotAllowed(err))
	assert.True(t, resource.IsMethodNotAllowed(r.Destroy(ctx, "1")))

	assert.Equal(t, 1, f.count(t))
	_, err = r.List(ctx, nil)
	assert.NoError(t, err)
}

func TestResource_CreateAndRetrieve(t *testing.T) {
	f := newFixture()
	r := f.build(t, f.definition())
	ctx := context.Background()

	created, err := r.Create(ctx, resource.Payload{"id": 99, "status": "open", "notes": "first"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), created["id"], "read-only id must be assigned by the store")
	assert.Equal(t, "first", created["notes"])

	got, err := r.Retrieve(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = r.Retrieve(ctx, "42")
	assert.True(t, resource.IsNotFound(err))
}

func TestResource_CreateValidation(t *testing.T) {
	f := newFixture()
	r := f.build(t, f.definition())
	ctx := context.Background()

	tests := map[string]resource.Payload{
		"missing status": {"notes": "x"},
		"bad status":     {"status": "lost"},
		"unknown field":  {"status": "open", "color": "red"},
		"wrong type":     {"status": 12},
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := r.Create(ctx, payload)
			assert.True(t, resource.IsValidation(err), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.count(t))
}

func TestResource_Update(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open", Assignee: "ana"})
	def := f.definition()
	def.UpdateFields = resource.NamedFields("status", "notes")
	r := f.build(t, def)
	ctx := context.Background()

	updated, err := r.Update(ctx, "1", resource.Payload{"status": "closed"})
	require.NoError(t, err)
	assert.Equal(t, "closed", updated["status"])
	assert.Equal(t, "ana", updated["assignee"], "fields absent from the patch are kept")

	_, err = r.Update(ctx, "1", resource.Payload{"assignee": "bo", "status": "open"})
	require.True(t, resource.IsFieldNotAllowed(err), "got %v", err)

	got, err := r.Retrieve(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "closed", got["status"], "rejected update must not write")

	_, err = r.Update(ctx, "1", resource.Payload{"status": "lost"})
	assert.True(t, resource.IsValidation(err))

	_, err = r.Update(ctx, "7", resource.Payload{"status": "open"})
	assert.True(t, resource.IsNotFound(err))
}

func TestResource_SoftDelete(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open"}, ticket{Status: "open"})
	def := f.definition()
	def.SoftDeleteField = "removed"
	r := f.build(t, def)
	ctx := context.Background()

	_, err := r.Retrieve(ctx, "1")
	require.NoError(t, err)
	_, err = r.List(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, r.Destroy(ctx, "1"))

	_, err = r.Retrieve(ctx, "1")
	assert.True(t, resource.IsNotFound(err))

	res, err := r.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, objectIDs(res))
	assert.Equal(t, 1, res.TotalCount)

	row, ok := f.coll.Raw(ctx, "1")
	require.True(t, ok, "soft deleted row must stay in storage")
	assert.Equal(t, true, row["removed"])

	deleted := resource.WithDeleted(ctx)
	got, err := r.Retrieve(deleted, "1")
	require.NoError(t, err)
	assert.Equal(t, true, got["removed"])

	res, err = r.List(deleted, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)

	assert.True(t, resource.IsNotFound(r.Destroy(ctx, "1")))
}

func TestResource_HardDelete(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open"})
	r := f.build(t, f.definition())
	ctx := context.Background()

	require.NoError(t, r.Destroy(ctx, "1"))
	_, ok := f.coll.Raw(ctx, "1")
	assert.False(t, ok)
	assert.True(t, resource.IsNotFound(r.Destroy(ctx, "1")))
}

func TestResource_ListIsCachedUntilWrite(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open"})
	r := f.build(t, f.definition())
	ctx := context.Background()

	first, err := r.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalCount)

	// a write that bypasses the resource is invisible while the entry lives
	f.seed(t, ticket{Status: "open"})
	cached, err := r.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TotalCount)

	_, err = r.Create(ctx, resource.Payload{"status": "closed"})
	require.NoError(t, err)

	fresh, err := r.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.TotalCount)
}

func TestResource_RetrieveIsCachedUntilUpdate(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open"})
	r := f.build(t, f.definition())
	ctx := context.Background()

	_, err := r.Retrieve(ctx, "1")
	require.NoError(t, err)

	_, err = f.coll.Update(ctx, ticket{ID: 1, Status: "closed"})
	require.NoError(t, err)

	stale, err := r.Retrieve(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "open", stale["status"])

	_, err = r.Update(ctx, "1", resource.Payload{"notes": "n"})
	require.NoError(t, err)

	fresh, err := r.Retrieve(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "closed", fresh["status"])
	assert.Equal(t, "n", fresh["notes"])
}

// paddedIDs accepts zero padded spellings of numeric ids, the way a SQL
// store accepts differently cased UUIDs.
type paddedIDs struct {
	*memory.Collection[ticket]
}

func (c paddedIDs) GetByID(ctx context.Context, id string, q resource.Query) (ticket, error) {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		id = strconv.FormatInt(n, 10)
	}
	return c.Collection.GetByID(ctx, id, q)
}

func TestResource_CacheUsesCanonicalIDs(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open"}, ticket{Status: "open"})
	def := f.definition()
	def.Collection = paddedIDs{f.coll}
	def.SoftDeleteField = "removed"
	r := f.build(t, def)
	ctx := context.Background()

	_, err := r.Retrieve(ctx, "2")
	require.NoError(t, err)
	_, err = r.Update(ctx, "02", resource.Payload{"status": "closed"})
	require.NoError(t, err)
	got, err := r.Retrieve(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "closed", got["status"])

	_, err = r.Retrieve(ctx, "1")
	require.NoError(t, err)
	require.NoError(t, r.Destroy(ctx, "01"))

	_, err = r.Retrieve(ctx, "1")
	assert.True(t, resource.IsNotFound(err), "got %v", err)
	_, err = r.Retrieve(ctx, "01")
	assert.True(t, resource.IsNotFound(err), "got %v", err)
}

func TestResource_NoCachePrefixReadsThrough(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open"})
	def := f.definition()
	def.CacheKeyPrefix = ""
	r := f.build(t, def)
	ctx := context.Background()

	_, err := r.List(ctx, nil)
	require.NoError(t, err)
	f.seed(t, ticket{Status: "open"})

	res, err := r.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
}

func TestResource_PreCreateRollsBackTransaction(t *testing.T) {
	f := newFixture()
	audit := memory.NewCollection[ticket](f.db, "audit", f.codec)
	def := f.definition()
	def.Hooks.PreCreate = func(ctx context.Context, p resource.Payload) error {
		_, err := audit.Create(ctx, ticket{Status: "open", Notes: "pre create"})
		return err
	}
	r := f.build(t, def)
	ctx := context.Background()

	_, err := r.Create(ctx, resource.Payload{"status": "lost"})
	require.True(t, resource.IsValidation(err))

	n, err := audit.Count(ctx, resource.Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "hook write must roll back with the failed create")

	_, err = r.Create(ctx, resource.Payload{"status": "open"})
	require.NoError(t, err)
	n, _ = audit.Count(ctx, resource.Query{})
	assert.Equal(t, 1, n)
}

func TestResource_PreHookErrorAborts(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open"})
	refused := errors.New("refused")
	def := f.definition()
	def.Hooks.PreUpdate = func(context.Context, resource.Payload, ticket) error { return refused }
	def.Hooks.PreDestroy = func(context.Context, ticket) error { return refused }
	r := f.build(t, def)
	ctx := context.Background()

	_, err := r.Update(ctx, "1", resource.Payload{"status": "closed"})
	assert.ErrorIs(t, err, refused)

	err = r.Destroy(ctx, "1")
	assert.ErrorIs(t, err, refused)

	got, err := r.Retrieve(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "open", got["status"])
}

func TestResource_PostHooks(t *testing.T) {
	f := newFixture()
	var seen []string
	def := f.definition()
	def.Hooks.PostCreate = func(_ context.Context, tk ticket) error {
		seen = append(seen, fmt.Sprintf("create:%d", tk.ID))
		return errors.New("mailer down")
	}
	def.Hooks.PostUpdate = func(_ context.Context, tk ticket) error {
		seen = append(seen, "update:"+tk.Status)
		return nil
	}
	def.Hooks.PostDestroy = func(_ context.Context, tk ticket) error {
		seen = append(seen, fmt.Sprintf("destroy:%d", tk.ID))
		return nil
	}
	r := f.build(t, def)
	ctx := context.Background()

	_, err := r.Create(ctx, resource.Payload{"status": "open"})
	require.NoError(t, err, "post hook failure must not fail the create")
	assert.Equal(t, 1, f.count(t))
	assert.Contains(t, f.logs.String(), "mailer down")
	assert.Contains(t, f.logs.String(), "level=WARN")

	_, err = r.Update(ctx, "1", resource.Payload{"status": "closed"})
	require.NoError(t, err)
	require.NoError(t, r.Destroy(ctx, "1"))

	assert.Equal(t, []string{"create:1", "update:closed", "destroy:1"}, seen)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (brokenCache) Delete(context.Context, string) error         { return errors.New("down") }
func (brokenCache) DeleteByPrefix(context.Context, string) error { return errors.New("down") }

func TestResource_CacheFailuresDegrade(t *testing.T) {
	f := newFixture()
	f.cache = brokenCache{}
	f.seed(t, ticket{Status: "open"})
	r := f.build(t, f.definition())
	ctx := context.Background()

	res, err := r.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)

	_, err = r.Retrieve(ctx, "1")
	require.NoError(t, err)
	_, err = r.Create(ctx, resource.Payload{"status": "open"})
	require.NoError(t, err)
	require.NoError(t, r.Destroy(ctx, "2"))

	assert.True(t, strings.Contains(f.logs.String(), cache.TextCodeCacheUnavailable))
}

func TestResource_Metrics(t *testing.T) {
	f := newFixture()
	f.seed(t, ticket{Status: "open"})
	reg := prometheus.NewRegistry()
	r := f.build(t, f.definition(), resource.WithMetrics(resource.NewMetrics(reg)))
	ctx := context.Background()

	_, _ = r.Retrieve(ctx, "1")
	_, _ = r.Retrieve(ctx, "1")
	_, _ = r.Retrieve(ctx, "9")

	expected := `
# HELP resource_cache_lookups_total Resource cache lookups by key family and result.
# TYPE resource_cache_lookups_total counter
resource_cache_lookups_total{kind="object",resource="tickets",result="hit"} 1
resource_cache_lookups_total{kind="object",resource="tickets",result="miss"} 2
# HELP resource_operations_total Resource operations by outcome.
# TYPE resource_operations_total counter
resource_operations_total{operation="retrieve",outcome="not_found",resource="tickets"} 1
resource_operations_total{operation="retrieve",outcome="ok",resource="tickets"} 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"resource_cache_lookups_total", "resource_operations_total")
	assert.NoError(t, err)
}
