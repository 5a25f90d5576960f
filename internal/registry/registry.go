// Package registry maps tenant keys to their retrieval stores.
//
// Directory structure:
//
//	{base}/
//	├── {domain}/
//	│   ├── {org}__{user}/      ← one tenant store
//	│   │   ├── CURRENT
//	│   │   ├── index-<gen>.bin
//	│   │   └── meta-<gen>.json
//	│   └── ...
//	└── ...
//
// Organization and domain names are sanitized; user ids are validated and
// kept verbatim. At most one in-memory store exists per sanitized key for
// the registry's lifetime.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/metrics"
	"github.com/fyrsmithlabs/tenantrag/internal/sanitize"
	"github.com/fyrsmithlabs/tenantrag/internal/store"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("registry closed")

// Options configures a Registry.
type Options struct {
	// BaseDir is the storage root. Required.
	BaseDir string
	// Embedder is shared by every store. Required.
	Embedder embeddings.Embedder
	// Dimension is the embedder's vector length; 0 lets each store fix it
	// on first ingest.
	Dimension int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer
}

// Registry resolves tenant keys to stores and caches them.
type Registry struct {
	baseDir  string
	embedder embeddings.Embedder
	dim      int
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	stores sync.Map // sanitized key string -> *store.Store
	group  singleflight.Group
	count  atomic.Int64
	closed atomic.Bool
}

// New creates a registry rooted at opts.BaseDir, creating it if needed.
func New(opts Options) (*Registry, error) {
	if opts.BaseDir == "" {
		return nil, fmt.Errorf("%w: base directory is required", store.ErrInvalidArgument)
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", store.ErrInvalidArgument)
	}
	base, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base directory: %w", err)
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating base directory: %w", store.ErrStorageUnavailable, err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/fyrsmithlabs/tenantrag/internal/registry")
	}

	return &Registry{
		baseDir:  base,
		embedder: opts.Embedder,
		dim:      opts.Dimension,
		logger:   opts.Logger.Named("registry"),
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}, nil
}

// Sanitize normalizes an organization or domain name for use as a path
// component.
func Sanitize(raw string) string {
	return sanitize.Name(raw)
}

// BaseDir returns the absolute storage root.
func (r *Registry) BaseDir() string { return r.baseDir }

// StorePath returns the directory a key resolves to.
func (r *Registry) StorePath(key tenant.Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	n := key.Normalized()
	return sanitize.ValidatePath(filepath.Join(r.baseDir, n.Domain, n.DirName()), r.baseDir)
}

// Resolve returns the store for key, opening it on first use. Concurrent
// first resolutions of the same key share one construction.
func (r *Registry) Resolve(ctx context.Context, key tenant.Key) (*store.Store, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		r.metrics.Lookup("error")
		return nil, err
	}

	n := key.Normalized()
	id := n.String()
	if s, ok := r.stores.Load(id); ok {
		r.metrics.Lookup("hit")
		return s.(*store.Store), nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		if s, ok := r.stores.Load(id); ok {
			return s, nil
		}
		dir, err := r.StorePath(n)
		if err != nil {
			return nil, err
		}
		s, err := store.Open(ctx, n, dir, r.embedder, store.Options{
			Dimension: r.dim,
			Logger:    r.logger.Named("store"),
			Metrics:   r.metrics,
			Tracer:    r.tracer,
		})
		if err != nil {
			return nil, err
		}
		r.stores.Store(id, s)
		if r.metrics != nil {
			r.metrics.OpenStores.Set(float64(r.count.Add(1)))
		}
		r.logger.Debug("store opened", zap.String("tenant", id), zap.Int("rows", s.Size()))
		return s, nil
	})
	if err != nil {
		r.metrics.Lookup("error")
		return nil, err
	}
	r.metrics.Lookup("miss")
	return v.(*store.Store), nil
}

// Domains lists, sorted, the domains holding a persisted store for the
// organization and user.
func (r *Registry) Domains(ctx context.Context, org, userID string) ([]string, error) {
	key := tenant.NewKey(org, userID, "")
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing domains: %w", store.ErrStorageUnavailable, err)
	}

	dirName := key.Normalized().DirName()
	domains := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(r.baseDir, e.Name(), dirName))
		if err == nil && info.IsDir() {
			domains = append(domains, e.Name())
		}
	}
	sort.Strings(domains)
	return domains, nil
}

// ResolveAllDomains resolves every store the organization and user have,
// in domain order.
func (r *Registry) ResolveAllDomains(ctx context.Context, org, userID string) ([]*store.Store, error) {
	domains, err := r.Domains(ctx, org, userID)
	if err != nil {
		return nil, err
	}
	stores := make([]*store.Store, 0, len(domains))
	for _, d := range domains {
		s, err := r.Resolve(ctx, tenant.NewKey(org, userID, d))
		if err != nil {
			return nil, fmt.Errorf("resolving domain %s: %w", d, err)
		}
		stores = append(stores, s)
	}
	return stores, nil
}

// FanOutOptions controls a cross-domain search.
type FanOutOptions struct {
	K     int
	Alpha float64
	// PreferredDomain, when present among the user's domains, is searched
	// first so its results win deduplication.
	PreferredDomain string
}

// FanOutSearch runs a hybrid search over every domain store of the user
// and merges the results. Duplicates by derived text keep the first copy;
// the merged list is cut to K.
func (r *Registry) FanOutSearch(ctx context.Context, org, userID, query string, opts FanOutOptions) (results []store.Result, err error) {
	ctx, span := r.tracer.Start(ctx, "registry.fanout", trace.WithAttributes(
		attribute.String("org", Sanitize(org)),
		attribute.Int("k", opts.K),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if opts.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", store.ErrInvalidArgument, opts.K)
	}

	stores, err := r.ResolveAllDomains(ctx, org, userID)
	if err != nil {
		return nil, err
	}
	stores = preferFirst(stores, opts.PreferredDomain)
	span.SetAttributes(attribute.Int("domains", len(stores)))
	if r.metrics != nil {
		r.metrics.FanOutDomains.Observe(float64(len(stores)))
	}

	merged := make([]store.Result, 0, opts.K)
	seen := make(map[string]bool)
	for _, s := range stores {
		hits, err := s.HybridSearch(ctx, query, opts.K, opts.Alpha)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if seen[h.Text] {
				continue
			}
			seen[h.Text] = true
			merged = append(merged, h)
		}
	}

	if len(merged) > opts.K {
		merged = merged[:opts.K]
	}
	return merged, nil
}

// preferFirst moves the store of the preferred domain to the front,
// keeping the order of the rest.
func preferFirst(stores []*store.Store, preferred string) []*store.Store {
	if preferred == "" {
		return stores
	}
	want := Sanitize(preferred)
	for i, s := range stores {
		if s.Key().Domain != want {
			continue
		}
		out := make([]*store.Store, 0, len(stores))
		out = append(out, s)
		out = append(out, stores[:i]...)
		return append(out, stores[i+1:]...)
	}
	return stores
}

// Tenants returns the keys of every cached store, sorted.
func (r *Registry) Tenants() []tenant.Key {
	var keys []tenant.Key
	r.stores.Range(func(_, v any) bool {
		keys = append(keys, v.(*store.Store).Key())
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Close drops every cached store. Stores hold no open files between
// operations, so nothing needs flushing.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.stores.Range(func(k, _ any) bool {
		r.stores.Delete(k)
		return true
	})
	r.count.Store(0)
	if r.metrics != nil {
		r.metrics.OpenStores.Set(0)
	}
	return nil
}
