package httpremote

import (
	"context"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/syncer"
)

const base = "https://api.example.test"

func newClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(base)
	require.NoError(t, err)
	return c
}

func TestFetchCollection(t *testing.T) {
	defer gock.Off()
	gock.New(base).
		Get("/articles").
		MatchParam("sort", "title").
		MatchParam("page[limit]", "2").
		Reply(200).
		JSON(map[string]any{
			"data": []map[string]any{
				{"type": "articles", "id": "1", "attributes": map[string]any{"title": "a"}},
				{"type": "articles", "id": "2", "attributes": map[string]any{"title": "b"}},
			},
		})

	doc, err := newClient(t).Fetch(context.Background(), query.Query{
		Type:   "articles",
		Params: &query.Params{Sort: []string{"title"}, Limit: 2},
	})
	require.NoError(t, err)
	assert.False(t, doc.Single)
	assert.Len(t, doc.Data, 2)
}

func TestFetchOneWithInclude(t *testing.T) {
	defer gock.Off()
	gock.New(base).
		Get("/articles/1").
		MatchParam("include", "author").
		Reply(200).
		JSON(map[string]any{
			"data":     map[string]any{"type": "articles", "id": "1"},
			"included": []map[string]any{{"type": "people", "id": "9"}},
		})

	doc, err := newClient(t).Fetch(context.Background(), query.Query{
		Type:   "articles",
		ID:     "1",
		Params: &query.Params{Include: []string{"author"}},
	})
	require.NoError(t, err)
	assert.True(t, doc.Single)
	require.Len(t, doc.Included, 1)
	assert.Equal(t, "9", doc.Included[0].ID)
}

func TestFetchErrorDocument(t *testing.T) {
	defer gock.Off()
	gock.New(base).
		Get("/articles/404").
		Reply(404).
		JSON(map[string]any{
			"errors": []map[string]any{{"status": "404", "detail": "no such article"}},
		})

	_, err := newClient(t).Fetch(context.Background(), query.Query{Type: "articles", ID: "404"})
	require.Error(t, err)
	assert.True(t, syncer.IsRemoteFailure(err))

	var re *syncer.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 404, re.Status)
	assert.Contains(t, re.Message, "no such article")
}

func TestCreateReturnsCanonical(t *testing.T) {
	defer gock.Off()
	gock.New(base).
		Post("/articles").
		Reply(201).
		JSON(map[string]any{
			"data": map[string]any{
				"type": "articles", "id": "1",
				"attributes": map[string]any{"title": "server-normalized"},
			},
		})

	canonical, err := newClient(t).Create(context.Background(), &resource.Resource{
		Type: "articles", ID: "1",
		Attributes: resource.Attributes{"title": resource.String("draft")},
	})
	require.NoError(t, err)
	require.NotNil(t, canonical)
	assert.Equal(t, resource.String("server-normalized"), canonical.Attributes["title"])
}

func TestUpdateEmptyResponse(t *testing.T) {
	defer gock.Off()
	gock.New(base).
		Patch("/articles/1").
		Reply(204)

	canonical, err := newClient(t).Update(context.Background(), &resource.Resource{
		Type: "articles", ID: "1",
	})
	require.NoError(t, err)
	assert.Nil(t, canonical, "empty body means the submitted state is canonical")
}

func TestDelete(t *testing.T) {
	defer gock.Off()
	gock.New(base).
		Delete("/articles/1").
		Reply(204)

	err := newClient(t).Delete(context.Background(), resource.Identifier{Type: "articles", ID: "1"})
	require.NoError(t, err)
	assert.True(t, gock.IsDone())
}

func TestHeadersForwarded(t *testing.T) {
	defer gock.Off()
	gock.New(base).
		Get("/articles").
		MatchHeader("Authorization", "Bearer token-1").
		Reply(200).
		JSON(map[string]any{"data": []any{}})

	c, err := New(base, WithHeader("Authorization", "Bearer token-1"))
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), query.Query{Type: "articles"})
	require.NoError(t, err)
}
