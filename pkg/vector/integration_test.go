package vector_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/vector"
	"github.com/docpipe/docpipe/test/util"
)

func newIntegrationClient(t *testing.T) (*vector.Client, string) {
	t.Helper()
	client := vector.NewClient(&config.Settings{VectorStoreURL: util.QdrantURL(t)})

	collection := fmt.Sprintf("it_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_ = client.DeleteCollection(context.Background(), collection)
	})
	return client, collection
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	client, collection := newIntegrationClient(t)

	_, exists, err := client.GetCollection(ctx, collection)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, client.EnsureCollection(ctx, collection, 4))

	info, exists, err := client.GetCollection(ctx, collection)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, 4, info.Dimension)

	names, err := client.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, collection)

	// A dimension change recreates the collection.
	require.NoError(t, client.EnsureCollection(ctx, collection, 8))
	info, _, err = client.GetCollection(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, 8, info.Dimension)
}

func TestUpsertSearchAndDelete(t *testing.T) {
	ctx := context.Background()
	client, collection := newIntegrationClient(t)
	require.NoError(t, client.EnsureCollection(ctx, collection, 4))

	points := []vector.Point{
		{
			ID:      vector.PointID("a.md", 0),
			Vector:  []float32{1, 0, 0, 0},
			Payload: vector.Payload{Text: "alpha", Source: "a.md", ChunkIndex: 0, Category: "docs"},
		},
		{
			ID:      vector.PointID("a.md", 1),
			Vector:  []float32{0.9, 0.1, 0, 0},
			Payload: vector.Payload{Text: "beta", Source: "a.md", ChunkIndex: 1, Category: "docs"},
		},
		{
			ID:      vector.PointID("b.md", 0),
			Vector:  []float32{0, 0, 0, 1},
			Payload: vector.Payload{Text: "gamma", Source: "b.md", ChunkIndex: 0, Category: "guides"},
		},
	}
	require.NoError(t, client.Upsert(ctx, collection, points, true))

	hits, err := client.Search(ctx, collection, []float32{1, 0, 0, 0}, "", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "alpha", hits[0].Payload.Text)

	// Category filter excludes the other source entirely.
	hits, err = client.Search(ctx, collection, []float32{0, 0, 0, 1}, "docs", 10, 0)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.Equal(t, "docs", hit.Payload.Category)
	}

	scrolled, _, err := client.Scroll(ctx, collection, "a.md", 100, nil)
	require.NoError(t, err)
	assert.Len(t, scrolled, 2)

	require.NoError(t, client.DeleteBySource(ctx, collection, "a.md"))

	scrolled, _, err = client.Scroll(ctx, collection, "a.md", 100, nil)
	require.NoError(t, err)
	assert.Empty(t, scrolled)
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client, collection := newIntegrationClient(t)
	require.NoError(t, client.EnsureCollection(ctx, collection, 4))

	point := vector.Point{
		ID:      vector.PointID("s.md", 0),
		Vector:  []float32{0.5, 0.5, 0, 0},
		Payload: vector.Payload{Text: "chunk", Source: "s.md", Category: "docs"},
	}
	require.NoError(t, client.Upsert(ctx, collection, []vector.Point{point}, true))
	require.NoError(t, client.Upsert(ctx, collection, []vector.Point{point}, true))

	info, _, err := client.GetCollection(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.PointsCount)
}
