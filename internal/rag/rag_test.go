package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/metrics"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
	"github.com/fyrsmithlabs/tenantrag/internal/store"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

type stubCompleter struct {
	context  string
	question string
	calls    int
	answer   string
	err      error
}

func (s *stubCompleter) Complete(_ context.Context, contextText, question string) (string, error) {
	s.calls++
	s.context = contextText
	s.question = question
	return s.answer, s.err
}

type stubModel struct {
	prompt string
	reply  string
	err    error
}

func (m *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompt += text.Text
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New(registry.Options{
		BaseDir:   t.TempDir(),
		Embedder:  embeddings.NewHashProvider(64),
		Dimension: 64,
		Logger:    zaptest.NewLogger(t),
		Metrics:   metrics.New(nil),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func seed(t *testing.T, r *registry.Registry, key tenant.Key, chunks ...chunk.Chunk) {
	t.Helper()
	s, err := r.Resolve(context.Background(), key)
	require.NoError(t, err)
	require.NoError(t, s.Ingest(context.Background(), chunks, tenant.Profile{}, store.ModeAppend))
}

func TestAsk_EmptyStoreSkipsCompleter(t *testing.T) {
	r := newRegistry(t)
	c := &stubCompleter{answer: "unused"}
	p := NewPipeline(r, c, 0, -1, zaptest.NewLogger(t))

	ans, err := p.Ask(context.Background(), tenant.NewKey("acme", "u1", "sales"), "what is the price of rice?")
	require.NoError(t, err)
	assert.Equal(t, NoDataAnswer, ans.Text)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, c.calls)
}

func TestAsk_UsesRetrievedContext(t *testing.T) {
	r := newRegistry(t)
	key := tenant.NewKey("acme", "u1", "grocery")
	seed(t, r, key,
		chunk.QA{Question: "What is the price of rice?", Answer: "Rice costs 120 rupees per kg."},
		chunk.QA{Question: "What is the price of milk?", Answer: "Milk costs 60 rupees per litre."},
		chunk.Other{Fields: map[string]any{"note": "store opens at 9"}},
		chunk.Other{Fields: map[string]any{"note": "closed on sunday"}},
	)

	c := &stubCompleter{answer: "  120 rupees per kg.  "}
	p := NewPipeline(r, c, 0, -1, nil)

	ans, err := p.Ask(context.Background(), key, "price of rice")
	require.NoError(t, err)
	assert.Equal(t, "120 rupees per kg.", ans.Text)
	assert.Len(t, ans.Sources, DefaultK)
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, "price of rice", c.question)
	assert.Contains(t, c.context, "Rice costs 120 rupees per kg.")
	assert.Equal(t, DefaultK-1, strings.Count(c.context, "\n\n"))
}

func TestAsk_EmptyDomainReadsGeneral(t *testing.T) {
	r := newRegistry(t)
	seed(t, r, tenant.NewKey("acme", "u1", tenant.DefaultDomain),
		chunk.QA{Question: "Who handles refunds?", Answer: "The front desk handles refunds."})
	seed(t, r, tenant.NewKey("acme", "u1", "support"),
		chunk.QA{Question: "Who handles outages?", Answer: "The support rota handles outages."})

	c := &stubCompleter{answer: "ok"}
	p := NewPipeline(r, c, 0, -1, nil)

	ans, err := p.Ask(context.Background(), tenant.Key{Organization: "acme", UserID: "u1"}, "who handles things")
	require.NoError(t, err)
	assert.Equal(t, "ok", ans.Text)
	assert.Contains(t, c.context, "front desk")
	assert.NotContains(t, c.context, "support rota")
	for _, src := range ans.Sources {
		assert.Equal(t, tenant.DefaultDomain, src.Tenant.Domain)
	}
}

func TestAsk_Errors(t *testing.T) {
	r := newRegistry(t)
	key := tenant.NewKey("acme", "u1", "sales")
	seed(t, r, key, chunk.QA{Question: "q", Answer: "a"})

	t.Run("empty question", func(t *testing.T) {
		_, err := NewPipeline(r, &stubCompleter{}, 0, -1, nil).Ask(context.Background(), key, "  ")
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := NewPipeline(r, &stubCompleter{}, 0, -1, nil).Ask(context.Background(), tenant.NewKey("acme", "", "sales"), "q")
		assert.ErrorIs(t, err, store.ErrInvalidTenantKey)
	})

	t.Run("no completer", func(t *testing.T) {
		_, err := NewPipeline(r, nil, 0, -1, nil).Ask(context.Background(), key, "q")
		assert.ErrorIs(t, err, ErrNoCompleter)
	})

	t.Run("completer failure", func(t *testing.T) {
		c := &stubCompleter{err: errors.New("boom")}
		_, err := NewPipeline(r, c, 0, -1, nil).Ask(context.Background(), key, "q")
		assert.EqualError(t, err, "boom")
	})
}

func TestLangchainCompleter(t *testing.T) {
	m := &stubModel{reply: "Rice costs 120."}
	c := NewLangchainCompleter(m, 0.2, time.Second)

	out, err := c.Complete(context.Background(), "Rice costs 120 rupees.", "price of rice?")
	require.NoError(t, err)
	assert.Equal(t, "Rice costs 120.", out)
	assert.Contains(t, m.prompt, "Context:\nRice costs 120 rupees.")
	assert.Contains(t, m.prompt, "Question: price of rice?")
	assert.True(t, strings.HasSuffix(m.prompt, "Answer:"))
}

func TestLangchainCompleter_UpstreamError(t *testing.T) {
	c := NewLangchainCompleter(&stubModel{err: errors.New("503 from provider")}, 0, 0)

	_, err := c.Complete(context.Background(), "ctx", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUpstreamUnavailable)
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]store.Result{
		{Text: "one"},
		{Chunk: chunk.QA{Question: "q", Answer: "a"}},
	})
	assert.Equal(t, "one\n\n"+chunk.DeriveText(chunk.QA{Question: "q", Answer: "a"}), got)
}
