package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
	"github.com/fyrsmithlabs/tenantrag/internal/store"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

// NoDataAnswer is returned when the tenant has nothing to search.
const NoDataAnswer = "No data found for this user."

const (
	// DefaultK is the number of chunks used as context.
	DefaultK = 3
	// DefaultAlpha weighs semantic against keyword relevance.
	DefaultAlpha = 0.5
)

// ErrNoCompleter is returned by Ask when no completion backend is set.
var ErrNoCompleter = errors.New("no completion backend configured")

// Answer is a generated answer with the chunks it was grounded on.
type Answer struct {
	Text    string         `json:"answer"`
	Sources []store.Result `json:"sources"`
}

// Pipeline retrieves context from the registry and asks the completer.
type Pipeline struct {
	registry  *registry.Registry
	completer Completer
	k         int
	alpha     float64
	logger    *zap.Logger
}

// NewPipeline creates a pipeline. Zero k or a negative alpha select the
// defaults. completer may be nil, in which case Ask fails with
// ErrNoCompleter once context has been found.
func NewPipeline(reg *registry.Registry, completer Completer, k int, alpha float64, logger *zap.Logger) *Pipeline {
	if k <= 0 {
		k = DefaultK
	}
	if alpha < 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{registry: reg, completer: completer, k: k, alpha: alpha, logger: logger}
}

// Retrieve returns the context chunks for a question from one domain
// store. A key without a domain reads the general domain.
func (p *Pipeline) Retrieve(ctx context.Context, key tenant.Key, question string) ([]store.Result, error) {
	s, err := p.registry.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.HybridSearch(ctx, question, p.k, p.alpha)
}

// Ask answers question from the tenant's data.
func (p *Pipeline) Ask(ctx context.Context, key tenant.Key, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", store.ErrInvalidArgument)
	}

	sources, err := p.Retrieve(ctx, key, question)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return &Answer{Text: NoDataAnswer, Sources: []store.Result{}}, nil
	}
	if p.completer == nil {
		return nil, ErrNoCompleter
	}

	text, err := p.completer.Complete(ctx, BuildContext(sources), question)
	if err != nil {
		p.logger.Warn("completion failed", zap.String("tenant", key.String()), zap.Error(err))
		return nil, err
	}
	return &Answer{Text: strings.TrimSpace(text), Sources: sources}, nil
}

// BuildContext joins the derived texts of results with a blank line.
func BuildContext(results []store.Result) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
		if texts[i] == "" && r.Chunk != nil {
			texts[i] = chunk.DeriveText(r.Chunk)
		}
	}
	return strings.Join(texts, "\n\n")
}
