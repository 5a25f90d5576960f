package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	// BaseURL overrides the API base, e.g. a local vLLM or Nebius endpoint.
	BaseURL string
	APIKey  string
	Model   string
	// Dimension is sent as the requested output size when positive;
	// otherwise it is inferred from the model name.
	Dimension int
}

// OpenAIProvider embeds through the /embeddings API.
type OpenAIProvider struct {
	client        *openai.Client
	model         openai.EmbeddingModel
	dimension     int
	sendDimension bool
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: api key or base URL required", ErrInvalidConfig)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	dim := cfg.Dimension
	if dim <= 0 {
		dim = detectDimensionFromModel(cfg.Model)
	}

	return &OpenAIProvider{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         openai.EmbeddingModel(cfg.Model),
		dimension:     dim,
		sendDimension: cfg.Dimension > 0,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          p.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if p.sendDimension {
		req.Dimensions = p.dimension
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(resp.Data), len(texts))
	}

	// The API returns an index per item; order by it rather than trusting
	// response order.
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the expected vector length.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the client holds no resources.
func (p *OpenAIProvider) Close() error {
	return nil
}

// parseAPIError keeps the status code and message of API failures.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: api error %d: %s", ErrEmbeddingFailed, reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: api error %d: %s", ErrEmbeddingFailed, apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
}
