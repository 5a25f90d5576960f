// Package rag answers questions from a tenant's stores with a completion
// model.
package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"

	"github.com/fyrsmithlabs/tenantrag/internal/store"
)

// DefaultCompletionTimeout bounds one completion call.
const DefaultCompletionTimeout = 60 * time.Second

const answerTemplate = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

Context:
{{.context}}

Question: {{.question}}

Answer:`

// Completer turns retrieved context and a question into an answer.
type Completer interface {
	Complete(ctx context.Context, context, question string) (string, error)
}

// CompleterConfig configures an OpenAI-compatible completion backend.
type CompleterConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// LangchainCompleter renders the answer prompt and calls an llms.Model.
type LangchainCompleter struct {
	llm         llms.Model
	prompt      prompts.PromptTemplate
	temperature float64
	timeout     time.Duration
}

// NewOpenAICompleter creates a completer for any OpenAI-compatible
// endpoint.
func NewOpenAICompleter(cfg CompleterConfig) (*LangchainCompleter, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}
	return NewLangchainCompleter(llm, cfg.Temperature, cfg.Timeout), nil
}

// NewLangchainCompleter wraps an existing model.
func NewLangchainCompleter(llm llms.Model, temperature float64, timeout time.Duration) *LangchainCompleter {
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	return &LangchainCompleter{
		llm: llm,
		prompt: prompts.PromptTemplate{
			Template:       answerTemplate,
			InputVariables: []string{"context", "question"},
			TemplateFormat: prompts.TemplateFormatGoTemplate,
		},
		temperature: temperature,
		timeout:     timeout,
	}
}

// Prompt renders the answer prompt.
func (c *LangchainCompleter) Prompt(contextText, question string) (string, error) {
	return c.prompt.Format(map[string]any{
		"context":  contextText,
		"question": question,
	})
}

// Complete renders the prompt and generates the answer within the
// configured timeout. Model failures are ErrUpstreamUnavailable.
func (c *LangchainCompleter) Complete(ctx context.Context, contextText, question string) (string, error) {
	prompt, err := c.Prompt(contextText, question)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(c.temperature))
	if err != nil {
		if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: completion: %w", store.ErrUpstreamUnavailable, err)
	}
	return out, nil
}
