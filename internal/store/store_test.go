package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/metrics"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorindex"
)

const testDim = 64

// countingEmbedder wraps an embedder and counts calls.
type countingEmbedder struct {
	embeddings.Embedder
	docs    atomic.Int32
	queries atomic.Int32
}

func (c *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	c.docs.Add(1)
	return c.Embedder.EmbedDocuments(ctx, texts)
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.queries.Add(1)
	return c.Embedder.EmbedQuery(ctx, text)
}

// fixedEmbedder returns vectors of a fixed length, or err.
type fixedEmbedder struct {
	dim int
	err error
}

func (f fixedEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f fixedEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dim), nil
}

func testKey() tenant.Key {
	return tenant.NewKey("Kavinda", "u1", "agriculture")
}

func openStore(t *testing.T, dir string, emb embeddings.Embedder) *Store {
	t.Helper()
	s, err := Open(context.Background(), testKey(), dir, emb, Options{
		Dimension: testDim,
		Logger:    zaptest.NewLogger(t),
		Metrics:   metrics.New(nil),
	})
	require.NoError(t, err)
	return s
}

func hashEmbedder() *countingEmbedder {
	return &countingEmbedder{Embedder: embeddings.NewHashProvider(testDim)}
}

func fragments(texts ...string) []chunk.Chunk {
	out := make([]chunk.Chunk, len(texts))
	for i, t := range texts {
		out[i] = chunk.FileFragment{Content: t, SourceFile: "prices.txt", SourceType: "txt", SequenceIndex: i}
	}
	return out
}

func resultTexts(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}

func TestHybridSearch_SingleQAChunk(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir(), hashEmbedder())

	qa := chunk.QA{Question: "What is your main product?", Answer: "Milk"}
	profile := tenant.Profile{Name: "Kavinda Farms", Domain: "agriculture"}
	require.NoError(t, s.Ingest(ctx, []chunk.Chunk{qa}, profile, ModeAppend))

	results, err := s.HybridSearch(ctx, "main product", 1, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, chunk.Equal(qa, results[0].Chunk))
	assert.Equal(t, 0, results[0].Row)
	assert.Equal(t, 1.0, results[0].Keyword)
	assert.Equal(t, profile, results[0].Profile)
	assert.Equal(t, "kavinda", results[0].Tenant.Organization)
}

func TestKeywordSearch_MilkPrice(t *testing.T) {
	ctx := context.Background()
	emb := hashEmbedder()
	s := openStore(t, t.TempDir(), emb)

	require.NoError(t, s.Ingest(ctx, fragments("Rice: Rs. 120/kg", "Milk: Rs. 90/L"), tenant.Profile{}, ModeAppend))

	results, err := s.KeywordSearch(ctx, "milk price", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Milk: Rs. 90/L", results[0].Text)
	assert.Equal(t, int32(0), emb.queries.Load())
}

func TestIngest_ReplaceDropsOldRows(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, hashEmbedder())

	old := fragments("alpha wheat", "beta barley", "gamma oats", "delta rye", "epsilon corn")
	require.NoError(t, s.Ingest(ctx, old, tenant.Profile{}, ModeAppend))
	require.Equal(t, 5, s.Size())

	fresh := []chunk.Chunk{chunk.QA{Question: "What do you grow?", Answer: "Tea"}}
	require.NoError(t, s.Ingest(ctx, fresh, tenant.Profile{}, ModeReplace))
	assert.Equal(t, 1, s.Size())

	for _, q := range []string{"alpha wheat", "barley", "corn", "grow"} {
		hybrid, err := s.HybridSearch(ctx, q, 10, 0.5)
		require.NoError(t, err)
		plain, err := s.Search(ctx, q, 10)
		require.NoError(t, err)
		keyword, err := s.KeywordSearch(ctx, q, 10)
		require.NoError(t, err)
		for _, r := range append(append(hybrid, plain...), keyword...) {
			assert.True(t, chunk.Equal(fresh[0], r.Chunk), "old chunk reachable for %q: %s", q, r.Text)
		}
	}

	reopened := openStore(t, dir, hashEmbedder())
	assert.Equal(t, 1, reopened.Size())
}

func TestSearch_EmptyStore(t *testing.T) {
	ctx := context.Background()
	emb := hashEmbedder()
	s := openStore(t, t.TempDir(), emb)

	plain, err := s.Search(ctx, "anything", 3)
	require.NoError(t, err)
	assert.NotNil(t, plain)
	assert.Empty(t, plain)

	hybrid, err := s.HybridSearch(ctx, "anything", 3, 0.5)
	require.NoError(t, err)
	assert.Empty(t, hybrid)

	keyword, err := s.KeywordSearch(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, keyword)

	for _, q := range []string{"", "   "} {
		plain, err := s.Search(ctx, q, 3)
		require.NoError(t, err, "query %q", q)
		assert.Empty(t, plain)

		hybrid, err := s.HybridSearch(ctx, q, 3, 0.5)
		require.NoError(t, err, "query %q", q)
		assert.Empty(t, hybrid)

		keyword, err := s.KeywordSearch(ctx, q, 3)
		require.NoError(t, err, "query %q", q)
		assert.NotNil(t, keyword)
		assert.Empty(t, keyword)
	}

	assert.Equal(t, int32(0), emb.queries.Load())
}

func TestReload_IdenticalResults(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, hashEmbedder())

	chunks := []chunk.Chunk{
		chunk.QA{Question: "What is your main product?", Answer: "Milk"},
		chunk.QA{Question: "Where are you located?", Answer: "Kandy"},
		chunk.Other{Fields: map[string]any{"crop": "tea", "acres": 12}},
	}
	chunks = append(chunks, fragments("Milk: Rs. 90/L", "Rice: Rs. 120/kg")...)
	require.NoError(t, s.Ingest(ctx, chunks, tenant.Profile{Name: "K"}, ModeAppend))

	queries := []string{"milk", "main product", "located kandy", "tea acres", "rice price"}
	alphas := []float64{0, 0.3, 0.5, 1}

	reopened := openStore(t, dir, hashEmbedder())
	require.Equal(t, s.Size(), reopened.Size())
	assert.Equal(t, s.Profile(), reopened.Profile())

	for _, q := range queries {
		for _, a := range alphas {
			before, err := s.HybridSearch(ctx, q, 3, a)
			require.NoError(t, err)
			after, err := reopened.HybridSearch(ctx, q, 3, a)
			require.NoError(t, err)
			require.Len(t, after, len(before))
			for i := range before {
				assert.Equal(t, before[i].Row, after[i].Row, "query %q alpha %v", q, a)
				assert.Equal(t, before[i].Score, after[i].Score)
				assert.True(t, chunk.Equal(before[i].Chunk, after[i].Chunk))
			}
		}
	}
}

func TestIngest_DimensionMismatchLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, hashEmbedder())
	require.NoError(t, s.Ingest(ctx, fragments("first"), tenant.Profile{}, ModeAppend))

	s.embedder = fixedEmbedder{dim: testDim / 2}
	err := s.Ingest(ctx, fragments("second"), tenant.Profile{}, ModeAppend)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, s.Size())
	assert.Equal(t, uint64(1), s.Snapshot().Generation)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "ingest", opErr.Op)
	assert.Equal(t, "agriculture", opErr.Tenant.Domain)
}

func TestIngest_UpstreamFailure(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir(), fixedEmbedder{err: errors.New("connection refused")})

	err := s.Ingest(ctx, fragments("x"), tenant.Profile{}, ModeAppend)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 0, s.Size())
}

func TestIngest_PersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, hashEmbedder())
	require.NoError(t, s.Ingest(ctx, fragments("kept row"), tenant.Profile{Name: "before"}, ModeAppend))

	s.commit = func(state) error { return errors.New("disk full") }
	err := s.Ingest(ctx, fragments("lost row"), tenant.Profile{Name: "after"}, ModeAppend)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	assert.Equal(t, 1, s.Size())
	assert.Equal(t, "before", s.Profile().Name)
	results, err := s.KeywordSearch(ctx, "lost", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	reopened := openStore(t, dir, hashEmbedder())
	assert.Equal(t, 1, reopened.Size())
}

func TestOpen_DetectsMisalignedState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, hashEmbedder())
	require.NoError(t, s.Ingest(ctx, fragments("one", "two"), tenant.Profile{}, ModeAppend))

	short := vectorindex.New(testDim)
	require.NoError(t, short.Add([][]float32{make([]float32, testDim)}))
	blob, err := short.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, indexName(1)), blob, 0o600))

	_, err = Open(ctx, testKey(), dir, hashEmbedder(), Options{Dimension: testDim})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestOpen_MissingGenerationFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("7\n"), 0o600))

	_, err := Open(context.Background(), testKey(), dir, hashEmbedder(), Options{Dimension: testDim})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestOpen_InvalidKey(t *testing.T) {
	_, err := Open(context.Background(), tenant.NewKey("", "u1", ""), t.TempDir(), hashEmbedder(), Options{})
	assert.ErrorIs(t, err, ErrInvalidTenantKey)
}

func TestIngest_PrunesOldGenerations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, hashEmbedder())

	require.NoError(t, s.Ingest(ctx, fragments("a"), tenant.Profile{}, ModeAppend))
	require.NoError(t, s.Ingest(ctx, fragments("b"), tenant.Profile{}, ModeAppend))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta-9.json.tmp.deadbeef"), []byte("{}"), 0o600))
	require.NoError(t, s.Ingest(ctx, fragments("c"), tenant.Profile{}, ModeAppend))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{currentFile, indexName(3), metaName(3)}, names)
}

func TestUpdateAnswer(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, hashEmbedder())

	chunks := []chunk.Chunk{
		chunk.QA{Question: "What are your main products or crops?", Answer: "Rice"},
		chunk.QA{Question: "Where are you located?", Answer: "Kandy"},
	}
	require.NoError(t, s.Ingest(ctx, chunks, tenant.Profile{Name: "K"}, ModeAppend))

	require.NoError(t, s.UpdateAnswer(ctx, "What are your main products or crops?", "Milk"))
	assert.Equal(t, 2, s.Size())
	assert.Equal(t, "K", s.Profile().Name)

	results, err := s.KeywordSearch(ctx, "milk", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Row)
	assert.Equal(t, "Q: What are your main products or crops?\nA: Milk", results[0].Text)

	err = s.UpdateAnswer(ctx, "What is your favourite colour?", "Green")
	assert.ErrorIs(t, err, ErrNotFound)

	reopened := openStore(t, dir, hashEmbedder())
	plain, err := reopened.Search(ctx, "main products crops milk", 1)
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Contains(t, plain[0].Text, "A: Milk")
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, hashEmbedder())
	require.NoError(t, s.Ingest(ctx, fragments("a", "b"), tenant.Profile{Name: "K"}, ModeAppend))

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Size())
	assert.Equal(t, "K", s.Profile().Name)

	reopened := openStore(t, dir, hashEmbedder())
	assert.Equal(t, 0, reopened.Size())

	require.NoError(t, reopened.Ingest(ctx, fragments("c"), tenant.Profile{}, ModeAppend))
	assert.Equal(t, 1, reopened.Size())
}

func TestSearch_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir(), hashEmbedder())
	require.NoError(t, s.Ingest(ctx, fragments("a"), tenant.Profile{}, ModeAppend))

	_, err := s.HybridSearch(ctx, "q", 3, 1.5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.HybridSearch(ctx, "q", 0, 0.5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.Search(ctx, "  ", 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.KeywordSearch(ctx, "q", -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = ParseMode("merge")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	m, err := ParseMode("Replace")
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, m)
}

func TestIngest_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := openStore(t, t.TempDir(), hashEmbedder())

	err := s.Ingest(ctx, fragments("a"), tenant.Profile{}, ModeAppend)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Size())
}

func TestConcurrentIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir(), hashEmbedder())
	require.NoError(t, s.Ingest(ctx, fragments("seed row"), tenant.Profile{}, ModeAppend))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Ingest(ctx, fragments("more rows"), tenant.Profile{}, ModeAppend))
		}()
		go func() {
			defer wg.Done()
			results, err := s.HybridSearch(ctx, "rows", 3, 0.5)
			assert.NoError(t, err)
			for _, r := range results {
				assert.NotNil(t, r.Chunk)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, s.Size())
	snap := s.Snapshot()
	assert.Len(t, snap.Chunks, 5)
	assert.Equal(t, uint64(5), snap.Generation)
}
