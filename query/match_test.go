package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	require.NoError(t, s.UpsertRemote(
		&resource.Resource{Type: "articles", ID: "1", Attributes: resource.Attributes{
			"title": resource.String("beta"), "views": resource.Int(10),
		}},
		&resource.Resource{Type: "articles", ID: "2", Attributes: resource.Attributes{
			"title": resource.String("alpha"), "views": resource.Int(30),
		}},
		&resource.Resource{Type: "articles", ID: "3", Attributes: resource.Attributes{
			"title": resource.String("alpha"), "views": resource.Int(20),
		}},
		&resource.Resource{Type: "people", ID: "9"},
	))
	return s
}

func evalIDs(t *testing.T, q Query, s *store.Store) []string {
	t.Helper()
	ids, err := Evaluate(q, s)
	require.NoError(t, err)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.ID
	}
	return out
}

func TestEvaluateCollectionInsertionOrder(t *testing.T) {
	s := seedStore(t)
	assert.Equal(t, []string{"1", "2", "3"}, evalIDs(t, Query{Type: "articles"}, s))
}

func TestEvaluateFilterEquality(t *testing.T) {
	s := seedStore(t)
	q := Query{Type: "articles", Params: &Params{Filter: map[string]any{"title": "alpha"}}}
	assert.Equal(t, []string{"2", "3"}, evalIDs(t, q, s))

	// Numeric filters tolerate int callers against int64 attributes.
	q = Query{Type: "articles", Params: &Params{Filter: map[string]any{"views": 10}}}
	assert.Equal(t, []string{"1"}, evalIDs(t, q, s))
}

func TestEvaluateExprPredicate(t *testing.T) {
	s := seedStore(t)
	q := Query{Type: "articles", Params: &Params{Expr: `attributes.views > 15`}}
	assert.Equal(t, []string{"2", "3"}, evalIDs(t, q, s))

	_, err := Evaluate(Query{Type: "articles", Params: &Params{Expr: `attributes.views`}}, s)
	assert.Error(t, err, "non-boolean predicate result")
}

func TestEvaluateSorting(t *testing.T) {
	s := seedStore(t)

	// Stable multi-key: title ascending, insertion order breaks ties.
	q := Query{Type: "articles", Params: &Params{Sort: []string{"title"}}}
	assert.Equal(t, []string{"2", "3", "1"}, evalIDs(t, q, s))

	// Descending marker on the secondary key.
	q = Query{Type: "articles", Params: &Params{Sort: []string{"title", "-views"}}}
	assert.Equal(t, []string{"2", "3", "1"}, evalIDs(t, q, s))

	q = Query{Type: "articles", Params: &Params{Sort: []string{"-views"}}}
	assert.Equal(t, []string{"2", "3", "1"}, evalIDs(t, q, s))
}

func TestEvaluateSliceAfterSort(t *testing.T) {
	s := seedStore(t)
	q := Query{Type: "articles", Params: &Params{Sort: []string{"-views"}, Offset: 1, Limit: 1}}
	assert.Equal(t, []string{"3"}, evalIDs(t, q, s))

	// Offset past the end yields empty, not an error.
	q = Query{Type: "articles", Params: &Params{Offset: 10}}
	assert.Empty(t, evalIDs(t, q, s))
}

func TestEvaluateExcludesDeleted(t *testing.T) {
	s := seedStore(t)
	require.NoError(t, s.MarkDeleted(resource.Identifier{Type: "articles", ID: "2"}))
	assert.Equal(t, []string{"1", "3"}, evalIDs(t, Query{Type: "articles"}, s))

	// Single-resource lookup still sees the pending delete.
	one := Query{Type: "articles", ID: "2"}
	assert.Equal(t, []string{"2"}, evalIDs(t, one, s))
}

func TestEvaluateOne(t *testing.T) {
	s := seedStore(t)

	// Unknown id: empty result, not an error.
	assert.Empty(t, evalIDs(t, Query{Type: "articles", ID: "404"}, s))

	// Criteria-based ONE matching a single record.
	q := Query{Type: "articles", Kind: KindOne, Params: &Params{Filter: map[string]any{"views": 10}}}
	assert.Equal(t, []string{"1"}, evalIDs(t, q, s))

	// Two or more matches is a NonUniqueResult.
	q = Query{QueryID: "q-one", Type: "articles", Kind: KindOne, Params: &Params{Filter: map[string]any{"title": "alpha"}}}
	_, err := Evaluate(q, s)
	require.Error(t, err)
	assert.True(t, IsNonUnique(err))
}

func TestEvaluateOneWithIDAppliesParams(t *testing.T) {
	s := seedStore(t)

	// The id addresses the candidate; the filter still has to hold.
	q := Query{Type: "articles", ID: "1", Params: &Params{Filter: map[string]any{"title": "beta"}}}
	assert.Equal(t, []string{"1"}, evalIDs(t, q, s))

	q = Query{Type: "articles", ID: "1", Params: &Params{Filter: map[string]any{"title": "alpha"}}}
	assert.Empty(t, evalIDs(t, q, s))

	q = Query{Type: "articles", ID: "1", Params: &Params{Expr: `attributes.views > 15`}}
	assert.Empty(t, evalIDs(t, q, s))

	// A broken predicate errors rather than silently matching.
	_, err := Evaluate(Query{Type: "articles", ID: "1", Params: &Params{Expr: `attributes.views`}}, s)
	assert.Error(t, err)
}

func TestMatchesSingleResourceQuery(t *testing.T) {
	s := seedStore(t)
	rec, _ := s.Snapshot(resource.Identifier{Type: "articles", ID: "1"})

	ok, err := Matches(Query{Type: "articles", ID: "1"}, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Matches(Query{Type: "articles", ID: "2"}, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	// Filter criteria apply to the addressed candidate too.
	ok, err = Matches(Query{Type: "articles", ID: "1", Params: &Params{Filter: map[string]any{"title": "alpha"}}}, rec)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSortNormalizesUnicode(t *testing.T) {
	s := store.New()
	// "é" composed (U+00E9) vs decomposed (e + U+0301): equal after NFC,
	// so insertion order decides.
	require.NoError(t, s.UpsertRemote(
		&resource.Resource{Type: "tags", ID: "1", Attributes: resource.Attributes{"name": resource.String("café")}},
		&resource.Resource{Type: "tags", ID: "2", Attributes: resource.Attributes{"name": resource.String("café")}},
	))
	q := Query{Type: "tags", Params: &Params{Sort: []string{"name"}}}
	assert.Equal(t, []string{"1", "2"}, evalIDs(t, q, s))
}
