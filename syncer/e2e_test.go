package syncer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/remote/sqliteremote"
	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/store"
	"github.com/tidemark/normstore/syncer"
)

// End-to-end flows against the SQLite backend: the cache, registry, and
// coordinator wired exactly as an application would wire them.

func newSystem(t *testing.T) (*syncer.Coordinator, *sqliteremote.Backend) {
	t.Helper()
	backend, err := sqliteremote.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	c := syncer.New(store.New(), query.NewRegistry(), backend)
	return c, backend
}

func seedArticles(t *testing.T, b *sqliteremote.Backend) {
	t.Helper()
	require.NoError(t, b.Seed(context.Background(),
		&resource.Resource{
			Type: "articles", ID: "1",
			Attributes: resource.Attributes{"title": resource.String("gamma"), "views": resource.Int(30)},
		},
		&resource.Resource{
			Type: "articles", ID: "2",
			Attributes: resource.Attributes{"title": resource.String("alpha"), "views": resource.Int(10)},
		},
		&resource.Resource{
			Type: "articles", ID: "3",
			Attributes: resource.Attributes{"title": resource.String("beta"), "views": resource.Int(20)},
		},
	))
}

func TestEndToEndFetchThenLocalQuery(t *testing.T) {
	ctx := context.Background()
	c, backend := newSystem(t)
	seedArticles(t, backend)

	records, err := c.FindMany(ctx, query.Query{
		Type:   "articles",
		Params: &query.Params{Sort: []string{"title"}},
	}, true)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2", records[0].Identifier.ID)
	assert.Equal(t, store.StateUnchanged, records[0].State)

	// A second query answered purely from the cache sees the same data.
	cached, err := c.FindMany(ctx, query.Query{
		Type:   "articles",
		Params: &query.Params{Filter: map[string]any{"title": "beta"}},
	}, false)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "3", cached[0].Identifier.ID)
}

func TestEndToEndFindOneMissing(t *testing.T) {
	ctx := context.Background()
	c, _ := newSystem(t)

	// The backend answers a missing single resource with a 404; the
	// caller sees absence, not an error.
	rec, err := c.FindOne(ctx, query.Query{Type: "articles", ID: "404"}, true)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEndToEndOptimisticCreateCommit(t *testing.T) {
	ctx := context.Background()
	c, backend := newSystem(t)

	draft := &resource.Resource{
		Type: "articles", ID: "10",
		Attributes: resource.Attributes{"title": resource.String("draft")},
	}
	require.NoError(t, c.PostResource(ctx, draft, false))

	snap, ok := c.Store().Snapshot(draft.Identifier())
	require.True(t, ok)
	assert.Equal(t, store.StateNew, snap.State)

	errs := c.Apply(ctx)
	assert.Empty(t, errs)

	snap, ok = c.Store().Snapshot(draft.Identifier())
	require.True(t, ok)
	assert.Equal(t, store.StateUnchanged, snap.State)

	// The backend now holds the resource.
	doc, err := backend.Fetch(ctx, query.Query{Type: "articles", ID: "10"})
	require.NoError(t, err)
	assert.Equal(t, resource.String("draft"), doc.Data[0].Attributes["title"])
}

func TestEndToEndPatchRollbackOnMissing(t *testing.T) {
	ctx := context.Background()
	c, backend := newSystem(t)
	seedArticles(t, backend)

	id := resource.Identifier{Type: "articles", ID: "1"}
	_, err := c.FindOne(ctx, query.Query{Type: "articles", ID: "1"}, true)
	require.NoError(t, err)

	// The backend loses the row out from under the cache.
	require.NoError(t, backend.Delete(ctx, id))

	edited := &resource.Resource{
		Type: "articles", ID: "1",
		Attributes: resource.Attributes{"title": resource.String("edited")},
	}
	err = c.PatchResource(ctx, edited, true)
	require.Error(t, err)
	assert.True(t, syncer.IsRemoteFailure(err))

	// Rolled back to the persisted baseline, with the failure recorded.
	snap, ok := c.Store().Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, store.StateUnchanged, snap.State)
	assert.Equal(t, resource.String("gamma"), snap.Resource.Attributes["title"])
	assert.Equal(t, store.LoadingError, snap.Status)
}

func TestEndToEndDeleteFlow(t *testing.T) {
	ctx := context.Background()
	c, backend := newSystem(t)
	seedArticles(t, backend)

	_, err := c.FindMany(ctx, query.Query{Type: "articles"}, true)
	require.NoError(t, err)

	id := resource.Identifier{Type: "articles", ID: "2"}
	require.NoError(t, c.DeleteResource(ctx, id, true))

	_, ok := c.Store().Snapshot(id)
	assert.False(t, ok, "committed deletion removes the record")

	doc, err := backend.Fetch(ctx, query.Query{Type: "articles"})
	require.NoError(t, err)
	assert.Len(t, doc.Data, 2)
}

func TestEndToEndIncludedResourcesMerged(t *testing.T) {
	ctx := context.Background()
	c, backend := newSystem(t)

	author := &resource.Resource{
		Type: "people", ID: "9",
		Attributes: resource.Attributes{"name": resource.String("dora")},
	}
	art := &resource.Resource{
		Type: "articles", ID: "1",
		Attributes: resource.Attributes{"title": resource.String("alpha")},
		Relationships: map[string]resource.Relationship{
			"author": resource.ToOne(author.Identifier()),
		},
	}
	require.NoError(t, backend.Seed(ctx, author, art))

	records, err := c.FindMany(ctx, query.Query{
		Type:   "articles",
		Params: &query.Params{Include: []string{"author"}},
	}, true)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// The included author landed in the cache alongside the article.
	snap, ok := c.Store().Snapshot(author.Identifier())
	require.True(t, ok)
	assert.Equal(t, resource.String("dora"), snap.Resource.Attributes["name"])
}

func TestEndToEndObserveSeesRemoteMerge(t *testing.T) {
	ctx := context.Background()
	c, backend := newSystem(t)
	seedArticles(t, backend)

	var last []*store.Record
	sub, err := c.Observe(query.Query{
		Type:   "articles",
		Params: &query.Params{Sort: []string{"views"}},
	}, func(records []*store.Record) {
		last = records
	})
	require.NoError(t, err)
	defer sub.Cancel()

	assert.Empty(t, last, "cache starts cold")

	_, err = c.FindMany(ctx, query.Query{Type: "articles"}, true)
	require.NoError(t, err)

	require.Len(t, last, 3)
	assert.Equal(t, "2", last[0].Identifier.ID)
}
