package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/store"
)

// fakeRemote scripts remote behavior per identifier and records calls.
type fakeRemote struct {
	mu        sync.Mutex
	documents map[string]*resource.Document // queryID -> fetch result
	fetchErr  error
	failWrite map[resource.Identifier]error
	canonical map[resource.Identifier]*resource.Resource
	block     chan struct{} // when set, writes wait here
	calls     []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		documents: make(map[string]*resource.Document),
		failWrite: make(map[resource.Identifier]error),
		canonical: make(map[resource.Identifier]*resource.Resource),
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRemote) wait() {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (f *fakeRemote) Fetch(_ context.Context, q query.Query) (*resource.Document, error) {
	f.record("fetch " + q.QueryID)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if doc, ok := f.documents[q.QueryID]; ok {
		return doc, nil
	}
	return resource.CollectionDocument(), nil
}

func (f *fakeRemote) Create(_ context.Context, res *resource.Resource) (*resource.Resource, error) {
	f.record("create " + res.Identifier().String())
	f.wait()
	if err := f.failWrite[res.Identifier()]; err != nil {
		return nil, err
	}
	return f.canonical[res.Identifier()], nil
}

func (f *fakeRemote) Update(_ context.Context, res *resource.Resource) (*resource.Resource, error) {
	f.record("update " + res.Identifier().String())
	f.wait()
	if err := f.failWrite[res.Identifier()]; err != nil {
		return nil, err
	}
	return f.canonical[res.Identifier()], nil
}

func (f *fakeRemote) Delete(_ context.Context, id resource.Identifier) error {
	f.record("delete " + id.String())
	f.wait()
	return f.failWrite[id]
}

func newCoordinator(remote Remote) *Coordinator {
	s := store.New()
	r := query.NewRegistry(query.WithIDGenerator(query.NewFixedGenerator(
		"q-1", "q-2", "q-3", "q-4", "q-5",
	)))
	return New(s, r, remote)
}

func article(id, title string) *resource.Resource {
	return &resource.Resource{
		Type:       "articles",
		ID:         id,
		Attributes: resource.Attributes{"title": resource.String(title)},
	}
}

func ident(id string) resource.Identifier {
	return resource.Identifier{Type: "articles", ID: id}
}

func TestFindManyFromRemote(t *testing.T) {
	remote := newFakeRemote()
	remote.documents["list"] = resource.CollectionDocument(article("1", "a"), article("2", "b"))
	c := newCoordinator(remote)

	records, err := c.FindMany(context.Background(), query.Query{QueryID: "list", Type: "articles"}, true)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].Identifier.ID)
	assert.Equal(t, store.StateUnchanged, records[0].State)

	// The transient lookup reference was released.
	assert.Zero(t, c.Registry().Len())
	// But the resources stay cached.
	assert.Equal(t, 2, c.Store().Len())
}

func TestFindManyLocal(t *testing.T) {
	remote := newFakeRemote()
	c := newCoordinator(remote)
	require.NoError(t, c.Store().UpsertRemote(article("1", "a"), article("2", "b")))

	records, err := c.FindMany(context.Background(), query.Query{Type: "articles"}, false)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Empty(t, remote.calls, "local lookups never touch the remote")
}

func TestFindManyMergesIncluded(t *testing.T) {
	remote := newFakeRemote()
	art := article("1", "a")
	art.Relationships = map[string]resource.Relationship{
		"author": resource.ToOne(resource.Identifier{Type: "people", ID: "9"}),
	}
	remote.documents["list"] = &resource.Document{
		Data:     []*resource.Resource{art},
		Included: []*resource.Resource{{Type: "people", ID: "9"}},
	}
	c := newCoordinator(remote)

	records, err := c.FindMany(context.Background(), query.Query{QueryID: "list", Type: "articles"}, true)
	require.NoError(t, err)
	require.Len(t, records, 1, "included resources are merged but not primary results")
	_, ok := c.Store().Snapshot(resource.Identifier{Type: "people", ID: "9"})
	assert.True(t, ok)
}

func TestFindOneZeroAndNonUnique(t *testing.T) {
	remote := newFakeRemote()
	c := newCoordinator(remote)
	require.NoError(t, c.Store().UpsertRemote(article("1", "same"), article("2", "same")))

	rec, err := c.FindOne(context.Background(), query.Query{Type: "articles", ID: "404"}, false)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = c.FindOne(context.Background(), query.Query{
		Type:   "articles",
		Params: &query.Params{Filter: map[string]any{"title": "same"}},
	}, false)
	require.Error(t, err)
	assert.True(t, query.IsNonUnique(err))
}

func TestFindOneRemoteNotFound(t *testing.T) {
	remote := newFakeRemote()
	remote.fetchErr = NewRemoteError(404, "resource articles/404 not found", nil)
	c := newCoordinator(remote)

	// A not-found single-resource fetch is absence, not failure.
	rec, err := c.FindOne(context.Background(), query.Query{Type: "articles", ID: "404"}, true)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Zero(t, c.Store().Len())

	// A collection fetch with the same status is a real failure.
	_, err = c.FindMany(context.Background(), query.Query{Type: "articles"}, true)
	require.Error(t, err)
	assert.True(t, IsRemoteFailure(err))
}

func TestReadFailureLeavesStoreUntouched(t *testing.T) {
	remote := newFakeRemote()
	remote.fetchErr = errors.New("boom")
	c := newCoordinator(remote)

	reg := c.Registry().Register(query.Query{QueryID: "list", Type: "articles"}, true)
	err := c.Read(context.Background(), reg.Query)
	require.Error(t, err)
	assert.True(t, IsRemoteFailure(err))
	assert.Zero(t, c.Store().Len())

	got, ok := c.Registry().Get("list")
	require.True(t, ok)
	assert.False(t, got.Loading)
	require.Len(t, got.Errors, 1)
}

func TestPostApplyCommit(t *testing.T) {
	remote := newFakeRemote()
	remote.canonical[ident("1")] = article("1", "server-title")
	c := newCoordinator(remote)

	require.NoError(t, c.PostResource(context.Background(), article("1", "draft"), false))
	rec, _ := c.Store().Snapshot(ident("1"))
	assert.Equal(t, store.StateNew, rec.State)
	assert.Empty(t, remote.calls, "toRemote=false stages only")

	errs := c.Apply(context.Background())
	assert.Empty(t, errs)

	rec, _ = c.Store().Snapshot(ident("1"))
	assert.Equal(t, store.StateUnchanged, rec.State)
	// Canonical remote body became the baseline.
	assert.Equal(t, resource.String("server-title"), rec.Resource.Attributes["title"])

	status, ok := c.LastOperation(ident("1"))
	require.True(t, ok)
	assert.Equal(t, StateCommitted, status.State)
	assert.Equal(t, OpCreate, status.Kind)
}

func TestFailedCreateRollsBackToAbsent(t *testing.T) {
	remote := newFakeRemote()
	remote.failWrite[ident("1")] = NewRemoteError(422, "title taken", nil)
	c := newCoordinator(remote)

	require.NoError(t, c.PostResource(context.Background(), article("1", "draft"), false))
	errs := c.Apply(context.Background())
	require.Len(t, errs, 1)
	assert.True(t, IsRemoteFailure(errs[ident("1")]))

	// Never persisted: the record rolls back to absent.
	_, ok := c.Store().Snapshot(ident("1"))
	assert.False(t, ok)

	// The error is still retrievable from the identifier's last operation.
	status, ok := c.LastOperation(ident("1"))
	require.True(t, ok)
	assert.Equal(t, StateFailed, status.State)
	assert.True(t, IsRemoteFailure(status.Err))
}

func TestPatchCommitAndRollback(t *testing.T) {
	remote := newFakeRemote()
	c := newCoordinator(remote)
	require.NoError(t, c.Store().UpsertRemote(article("1", "a")))

	require.NoError(t, c.PatchResource(context.Background(), article("1", "b"), true))
	rec, _ := c.Store().Snapshot(ident("1"))
	assert.Equal(t, store.StateUnchanged, rec.State)
	assert.True(t, rec.Resource.Equal(rec.Persisted))
	assert.Equal(t, resource.String("b"), rec.Persisted.Attributes["title"])

	// Now a failing update rolls back to the committed baseline.
	remote.failWrite[ident("1")] = NewRemoteError(500, "server error", nil)
	err := c.PatchResource(context.Background(), article("1", "c"), true)
	require.Error(t, err)

	rec, _ = c.Store().Snapshot(ident("1"))
	assert.Equal(t, resource.String("b"), rec.Resource.Attributes["title"])
	assert.Equal(t, store.LoadingError, rec.Status)
	assert.True(t, IsRemoteFailure(rec.LastError))
}

func TestDeleteResource(t *testing.T) {
	remote := newFakeRemote()
	c := newCoordinator(remote)
	require.NoError(t, c.Store().UpsertRemote(article("1", "a")))

	require.NoError(t, c.DeleteResource(context.Background(), ident("1"), true))
	_, ok := c.Store().Snapshot(ident("1"))
	assert.False(t, ok)

	// Deleting a NEW record never reaches the remote.
	require.NoError(t, c.PostResource(context.Background(), article("2", "draft"), false))
	require.NoError(t, c.DeleteResource(context.Background(), ident("2"), true))
	assert.NotContains(t, remote.calls, "delete articles/2")
}

func TestOperationInProgressGuard(t *testing.T) {
	remote := newFakeRemote()
	remote.block = make(chan struct{})
	c := newCoordinator(remote)
	require.NoError(t, c.Store().UpsertRemote(article("1", "a")))
	require.NoError(t, c.Store().ApplyLocalEdit(article("1", "b"), store.EditPatch))

	done := make(chan error, 1)
	go func() { done <- c.Update(context.Background(), ident("1")) }()

	// Wait until the first operation is in flight.
	require.Eventually(t, func() bool {
		rec, ok := c.Store().Snapshot(ident("1"))
		return ok && rec.Status == store.LoadingInFlight
	}, time.Second, time.Millisecond)

	err := c.Update(context.Background(), ident("1"))
	require.Error(t, err)
	assert.True(t, IsOperationInProgress(err))

	close(remote.block)
	require.NoError(t, <-done)
}

func TestLastOperationSupersededByNextWrite(t *testing.T) {
	remote := newFakeRemote()
	c := newCoordinator(remote)
	require.NoError(t, c.Store().UpsertRemote(article("1", "a")))
	require.NoError(t, c.PatchResource(context.Background(), article("1", "b"), true))

	_, ok := c.LastOperation(ident("1"))
	require.True(t, ok)

	// A new operation for the identifier discards the settled entry
	// while it is in flight.
	remote.block = make(chan struct{})
	require.NoError(t, c.Store().ApplyLocalEdit(article("1", "c"), store.EditPatch))
	done := make(chan error, 1)
	go func() { done <- c.Update(context.Background(), ident("1")) }()

	require.Eventually(t, func() bool {
		_, ok := c.LastOperation(ident("1"))
		return !ok
	}, time.Second, time.Millisecond)

	close(remote.block)
	require.NoError(t, <-done)

	status, ok := c.LastOperation(ident("1"))
	require.True(t, ok)
	assert.Equal(t, StateCommitted, status.State)
	assert.Equal(t, OpUpdate, status.Kind)
}

func TestApplyAllIndependentFailures(t *testing.T) {
	remote := newFakeRemote()
	remote.failWrite[ident("2")] = NewRemoteError(500, "nope", nil)
	c := newCoordinator(remote)
	require.NoError(t, c.Store().UpsertRemote(article("1", "a"), article("2", "b")))
	require.NoError(t, c.Store().ApplyLocalEdit(article("1", "a2"), store.EditPatch))
	require.NoError(t, c.Store().ApplyLocalEdit(article("2", "b2"), store.EditPatch))

	errs := c.ApplyAll(context.Background())
	require.Len(t, errs, 1)

	// Sibling success is unaffected by the failure.
	rec, _ := c.Store().Snapshot(ident("1"))
	assert.Equal(t, resource.String("a2"), rec.Persisted.Attributes["title"])
	rec, _ = c.Store().Snapshot(ident("2"))
	assert.Equal(t, resource.String("b"), rec.Resource.Attributes["title"], "rolled back")
}

func TestPushRequiresMatchingState(t *testing.T) {
	remote := newFakeRemote()
	c := newCoordinator(remote)
	require.NoError(t, c.Store().UpsertRemote(article("1", "a")))

	err := c.Create(context.Background(), ident("1"))
	require.Error(t, err)
	assert.True(t, IsStateMismatch(err))

	err = c.Update(context.Background(), ident("1"))
	assert.True(t, IsStateMismatch(err))

	err = c.Delete(context.Background(), ident("404"))
	assert.True(t, IsStateMismatch(err))
}

func TestObserve(t *testing.T) {
	remote := newFakeRemote()
	c := newCoordinator(remote)
	require.NoError(t, c.Store().UpsertRemote(article("1", "a")))

	var (
		mu      sync.Mutex
		updates [][]string
	)
	sub, err := c.Observe(query.Query{QueryID: "live", Type: "articles"}, func(records []*store.Record) {
		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.Identifier.ID
		}
		mu.Lock()
		updates = append(updates, ids)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Registry().Len())

	// A relevant store change re-invokes the observer.
	require.NoError(t, c.Store().UpsertRemote(article("2", "b")))
	// An irrelevant type does not.
	require.NoError(t, c.Store().UpsertRemote(&resource.Resource{Type: "people", ID: "9"}))

	mu.Lock()
	require.Len(t, updates, 2)
	assert.Equal(t, []string{"1"}, updates[0])
	assert.Equal(t, []string{"1", "2"}, updates[1])
	mu.Unlock()

	// Cancel synchronously drops the registration.
	sub.Cancel()
	assert.Zero(t, c.Registry().Len())
	require.NoError(t, c.Store().UpsertRemote(article("3", "c")))
	mu.Lock()
	assert.Len(t, updates, 2)
	mu.Unlock()
}
