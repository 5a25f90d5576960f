// Package store implements the per-tenant retrieval store: a flat vector
// index and a row-aligned chunk list, searched with plain, hybrid or
// keyword ranking and persisted atomically to the tenant's directory.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/chunkstore"
	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/metrics"
	"github.com/fyrsmithlabs/tenantrag/internal/ranker"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorindex"
)

const instrumentationName = "github.com/fyrsmithlabs/tenantrag/internal/store"

// Mode selects how Ingest combines new chunks with existing ones.
type Mode int

const (
	// ModeAppend embeds the new chunks and appends them after existing rows.
	ModeAppend Mode = iota
	// ModeReplace rebuilds the store from only the given chunks.
	ModeReplace
)

func (m Mode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeReplace:
		return "replace"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "append" or "replace". Empty means append.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "append":
		return ModeAppend, nil
	case "replace":
		return ModeReplace, nil
	default:
		return 0, fmt.Errorf("%w: unknown ingest mode %q", ErrInvalidArgument, s)
	}
}

// Result is one ranked chunk with provenance.
type Result struct {
	Chunk    chunk.Chunk
	Text     string
	Score    float64
	Semantic float64
	Keyword  float64
	Row      int
	Profile  tenant.Profile
	Tenant   tenant.Key
}

// MarshalJSON encodes the chunk through chunk.Record.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Chunk    chunk.Record   `json:"chunk"`
		Text     string         `json:"text"`
		Score    float64        `json:"score"`
		Semantic float64        `json:"semantic"`
		Keyword  float64        `json:"keyword"`
		Row      int            `json:"row"`
		Profile  tenant.Profile `json:"profile"`
		Tenant   tenant.Key     `json:"tenant"`
	}{chunk.Record{Chunk: r.Chunk}, r.Text, r.Score, r.Semantic, r.Keyword, r.Row, r.Profile, r.Tenant})
}

// Options configures a Store.
type Options struct {
	// Dimension is the embedder's vector length. Zero lets the first
	// ingest fix it.
	Dimension int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer
}

// Store is one tenant's retrieval unit. Ingest holds the write lock;
// searches hold the read lock.
type Store struct {
	key      tenant.Key
	dir      string
	dim      int
	embedder embeddings.Embedder
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	// commit persists a staged state; replaced in tests.
	commit func(state) error

	mu  sync.RWMutex
	cur state
}

// Snapshot is a read-only copy of a store's committed state.
type Snapshot struct {
	Tenant     tenant.Key     `json:"tenant"`
	Profile    tenant.Profile `json:"profile"`
	Generation uint64         `json:"generation"`
	Dimension  int            `json:"dimension"`
	Chunks     []chunk.Record `json:"chunks"`
}

// Open binds a store to dir, loading the committed generation if present.
// A directory without committed state yields an empty store; nothing is
// written until the first ingest.
func Open(ctx context.Context, key tenant.Key, dir string, embedder embeddings.Embedder, opts Options) (*Store, error) {
	if err := key.Validate(); err != nil {
		return nil, &OpError{Op: "open", Tenant: key, Err: err}
	}
	if embedder == nil {
		return nil, &OpError{Op: "open", Tenant: key, Err: fmt.Errorf("%w: nil embedder", ErrInvalidArgument)}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}

	s := &Store{
		key:      key.Normalized(),
		dir:      dir,
		dim:      opts.Dimension,
		embedder: embedder,
		logger:   opts.Logger.With(zap.String("tenant", key.String())),
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		cur: state{
			index:  vectorindex.New(opts.Dimension),
			chunks: chunkstore.New(nil),
		},
	}
	s.commit = s.persist

	if err := ctx.Err(); err != nil {
		return nil, s.opErr("open", err)
	}

	st, ok, err := loadState(dir, opts.Dimension)
	if err != nil {
		return nil, s.opErr("open", fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
	}
	if ok {
		if st.index.Size() == 0 && opts.Dimension > 0 {
			st.index = vectorindex.New(opts.Dimension)
		}
		s.cur = st
		if s.dim == 0 {
			s.dim = st.index.Dimension()
		}
		s.logger.Debug("store loaded",
			zap.Uint64("generation", st.generation),
			zap.Int("rows", st.chunks.Len()))
	}
	return s, nil
}

// Key returns the normalized tenant key.
func (s *Store) Key() tenant.Key { return s.key }

// Path returns the store directory.
func (s *Store) Path() string { return s.dir }

// Size returns the number of rows.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.chunks.Len()
}

// Profile returns the stored tenant profile.
func (s *Store) Profile() tenant.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.profile
}

// Snapshot returns a copy of the committed state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Tenant:     s.key,
		Profile:    s.cur.profile,
		Generation: s.cur.generation,
		Dimension:  s.cur.index.Dimension(),
		Chunks:     chunk.ToRecords(s.cur.chunks.Chunks()),
	}
}

// Ingest embeds chunks and commits them per mode. profile attributes that
// are set replace the stored ones. On any failure the committed state,
// in memory and on disk, is unchanged.
func (s *Store) Ingest(ctx context.Context, chunks []chunk.Chunk, profile tenant.Profile, mode Mode) (err error) {
	ctx, span := s.tracer.Start(ctx, "store.ingest", trace.WithAttributes(
		attribute.String("tenant", s.key.String()),
		attribute.String("mode", mode.String()),
		attribute.Int("chunks", len(chunks)),
	))
	defer func() { endSpan(span, err) }()

	if mode != ModeAppend && mode != ModeReplace {
		return s.opErr("ingest", fmt.Errorf("%w: %s", ErrInvalidArgument, mode))
	}
	for i, c := range chunks {
		if c == nil {
			return s.opErr("ingest", fmt.Errorf("%w: nil chunk at %d", ErrInvalidArgument, i))
		}
	}
	if mode == ModeAppend && len(chunks) == 0 && profile.IsZero() {
		return nil
	}

	// Embed before taking the lock; a failure here touches nothing.
	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return s.opErr("ingest", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return s.opErr("ingest", err)
	}

	next, err := s.stage(chunks, vectors, profile, mode)
	if err != nil {
		return s.opErr("ingest", err)
	}
	if err := s.publish(next); err != nil {
		return s.opErr("ingest", err)
	}

	s.metrics.AddIngested(s.key.Domain, mode.String(), len(chunks))
	s.logger.Info("ingest committed",
		zap.String("mode", mode.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("rows", next.chunks.Len()),
		zap.Uint64("generation", next.generation))
	return nil
}

// Clear rebuilds the store with zero rows, keeping the profile.
func (s *Store) Clear(ctx context.Context) error {
	return s.Ingest(ctx, nil, tenant.Profile{}, ModeReplace)
}

// UpdateAnswer rewrites the answer of the QA chunk whose question matches
// and rebuilds the store. Only the rewritten row is re-embedded.
func (s *Store) UpdateAnswer(ctx context.Context, question, answer string) (err error) {
	ctx, span := s.tracer.Start(ctx, "store.update_answer",
		trace.WithAttributes(attribute.String("tenant", s.key.String())))
	defer func() { endSpan(span, err) }()

	question = strings.TrimSpace(question)
	if question == "" {
		return s.opErr("update_answer", fmt.Errorf("%w: empty question", ErrInvalidArgument))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.cur.chunks.Chunks()
	row := -1
	for i, c := range chunks {
		if qa, ok := c.(chunk.QA); ok && strings.TrimSpace(qa.Question) == question {
			row = i
			break
		}
	}
	if row < 0 {
		return s.opErr("update_answer", fmt.Errorf("%w: question %q", ErrNotFound, question))
	}

	updated := chunk.QA{Question: chunks[row].(chunk.QA).Question, Answer: answer}
	vec, err := s.embedChunks(ctx, []chunk.Chunk{updated})
	if err != nil {
		return s.opErr("update_answer", err)
	}
	chunks[row] = updated

	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		if i == row {
			vectors[i] = vec[0]
			continue
		}
		if vectors[i], err = s.cur.index.Vector(i); err != nil {
			return s.opErr("update_answer", fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
		}
	}

	next, err := s.stage(chunks, vectors, tenant.Profile{}, ModeReplace)
	if err != nil {
		return s.opErr("update_answer", err)
	}
	if err := s.publish(next); err != nil {
		return s.opErr("update_answer", err)
	}
	s.logger.Info("answer updated", zap.Int("row", row))
	return nil
}

// Search returns the k nearest rows by vector distance alone. An empty
// store returns no rows for any query without calling the embedder.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Result, error) {
	return s.search(ctx, "plain", query, k, func(qv []float32, texts []string) ([]ranker.Hit, error) {
		neighbors, err := s.cur.index.Search(qv, k)
		if err != nil {
			return nil, err
		}
		return ranker.Plain(neighbors, k), nil
	})
}

// HybridSearch fuses vector similarity with keyword overlap:
// alpha*semantic + (1-alpha)*keyword.
func (s *Store) HybridSearch(ctx context.Context, query string, k int, alpha float64) ([]Result, error) {
	if alpha < 0 || alpha > 1 {
		return nil, s.opErr("hybrid_search", fmt.Errorf("%w: alpha %v outside [0,1]", ErrInvalidArgument, alpha))
	}
	return s.search(ctx, "hybrid", query, k, func(qv []float32, texts []string) ([]ranker.Hit, error) {
		neighbors, err := s.cur.index.Search(qv, k)
		if err != nil {
			return nil, err
		}
		return ranker.Hybrid(neighbors, texts, query, k, alpha), nil
	})
}

// KeywordSearch scans rows in storage order for the query text, trimmed
// and lowercased. When fewer than k rows contain it and the query has
// several tokens, the scan continues in storage order with rows containing
// any single token, so results are not limited to raw-substring matches.
// The embedder is not called. An empty store returns no rows for any query.
func (s *Store) KeywordSearch(ctx context.Context, query string, k int) (results []Result, err error) {
	ctx, span := s.tracer.Start(ctx, "store.keyword_search", trace.WithAttributes(
		attribute.String("tenant", s.key.String()),
		attribute.Int("k", k),
	))
	start := time.Now()
	defer func() {
		endSpan(span, err)
		s.metrics.ObserveSearch("keyword", err, time.Since(start))
	}()

	if s.Size() == 0 {
		return []Result{}, nil
	}
	if err := validateQuery(query, k); err != nil {
		return nil, s.opErr("keyword_search", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, s.opErr("keyword_search", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	texts := s.cur.chunks.Texts()
	rows := ranker.KeywordScan(texts, query, k)
	scores := ranker.KeywordScores(texts, ranker.Tokenize(query))

	results = make([]Result, 0, len(rows))
	for _, row := range rows {
		kw := scores[row]
		results = append(results, s.result(ranker.Hit{Row: row, Score: kw, Keyword: kw}))
	}
	return results, nil
}

type rankFunc func(qv []float32, texts []string) ([]ranker.Hit, error)

// search embeds the query outside the lock and ranks under the read lock.
func (s *Store) search(ctx context.Context, mode, query string, k int, rank rankFunc) (results []Result, err error) {
	op := mode + "_search"
	if mode == "plain" {
		op = "search"
	}
	ctx, span := s.tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("tenant", s.key.String()),
		attribute.Int("k", k),
	))
	start := time.Now()
	defer func() {
		endSpan(span, err)
		s.metrics.ObserveSearch(mode, err, time.Since(start))
	}()

	if s.Size() == 0 {
		return []Result{}, nil
	}
	if err := validateQuery(query, k); err != nil {
		return nil, s.opErr(op, err)
	}

	qv, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, s.opErr(op, upstream(err))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cur.chunks.Len() == 0 {
		return []Result{}, nil
	}
	hits, err := rank(qv, s.cur.chunks.Texts())
	if err != nil {
		return nil, s.opErr(op, err)
	}

	results = make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, s.result(h))
	}
	return results, nil
}

// result must be called with the read lock held.
func (s *Store) result(h ranker.Hit) Result {
	c, _ := s.cur.chunks.At(h.Row)
	return Result{
		Chunk:    c,
		Text:     s.cur.chunks.Text(h.Row),
		Score:    h.Score,
		Semantic: h.Semantic,
		Keyword:  h.Keyword,
		Row:      h.Row,
		Profile:  s.cur.profile,
		Tenant:   s.key,
	}
}

func (s *Store) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, chunk.Texts(chunks))
	if err != nil {
		return nil, upstream(err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
			ErrUpstreamUnavailable, len(vectors), len(chunks))
	}
	return vectors, nil
}

// stage builds the next state off to the side. Must hold the write lock.
func (s *Store) stage(chunks []chunk.Chunk, vectors [][]float32, profile tenant.Profile, mode Mode) (state, error) {
	var next state
	switch mode {
	case ModeAppend:
		next.index = s.cur.index.Clone()
		next.chunks = s.cur.chunks.Clone()
	default:
		dim := s.dim
		if dim == 0 {
			dim = s.cur.index.Dimension()
		}
		next.index = vectorindex.New(dim)
		next.chunks = chunkstore.New(nil)
	}

	if err := next.index.Add(vectors); err != nil {
		return state{}, err
	}
	next.chunks.Append(chunks)
	if next.index.Size() != next.chunks.Len() {
		return state{}, fmt.Errorf("%w: %d vectors for %d chunks",
			ErrDimensionMismatch, next.index.Size(), next.chunks.Len())
	}

	next.profile = profile.Merge(s.cur.profile)
	next.generation = s.cur.generation + 1
	return next, nil
}

// publish persists next and swaps it in. Must hold the write lock.
func (s *Store) publish(next state) error {
	start := time.Now()
	err := s.commit(next)
	s.metrics.ObservePersist(err, time.Since(start))
	if err != nil {
		s.logger.Error("persist failed, state rolled back",
			zap.Uint64("generation", next.generation), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	s.cur = next
	if s.dim == 0 {
		s.dim = next.index.Dimension()
	}
	if err := pruneGenerations(s.dir, next.generation); err != nil {
		s.logger.Warn("pruning old generations", zap.Error(err))
	}
	return nil
}

func (s *Store) persist(next state) error {
	return writeState(s.dir, s.key, next)
}

func validateQuery(query string, k int) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: empty query", ErrInvalidArgument)
	}
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	return nil
}

// upstream tags embedder failures as retryable without double wrapping.
func upstream(err error) error {
	if errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
