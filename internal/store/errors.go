package store

import (
	"errors"

	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorindex"
)

var (
	// ErrDimensionMismatch is returned when the embedder produced vectors
	// of a length other than the store's dimension.
	ErrDimensionMismatch = vectorindex.ErrDimensionMismatch

	// ErrUpstreamUnavailable is returned when the embedder failed or timed
	// out. Retryable.
	ErrUpstreamUnavailable = embeddings.ErrUpstreamUnavailable

	// ErrInvalidTenantKey is returned for keys missing an organization or
	// user id.
	ErrInvalidTenantKey = tenant.ErrInvalidKey

	// ErrStorageUnavailable is returned when persisted state cannot be read
	// or written, or is inconsistent.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidArgument is returned for out-of-range search parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned by UpdateAnswer when no QA chunk carries the
	// question.
	ErrNotFound = errors.New("not found")
)

// OpError records a failed store operation and the tenant it ran against.
type OpError struct {
	Op     string
	Tenant tenant.Key
	Err    error
}

func (e *OpError) Error() string {
	return "store " + e.Op + " " + e.Tenant.String() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func (s *Store) opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Tenant: s.key, Err: err}
}
