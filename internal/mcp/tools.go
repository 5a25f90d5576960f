package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
	"github.com/fyrsmithlabs/tenantrag/internal/store"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

type searchInput struct {
	Organization string   `json:"organization" jsonschema:"Organization name"`
	UserID       string   `json:"user_id" jsonschema:"User identifier"`
	Domain       string   `json:"domain,omitempty" jsonschema:"Knowledge domain (default: general)"`
	Query        string   `json:"query" jsonschema:"Search query"`
	K            int      `json:"k,omitempty" jsonschema:"Maximum results (default: 3)"`
	Alpha        *float64 `json:"alpha,omitempty" jsonschema:"Semantic weight in [0,1] for hybrid mode (default: 0.5)"`
	Mode         string   `json:"mode,omitempty" jsonschema:"hybrid (default), plain or keyword"`
}

type fanOutInput struct {
	Organization    string   `json:"organization" jsonschema:"Organization name"`
	UserID          string   `json:"user_id" jsonschema:"User identifier"`
	Query           string   `json:"query" jsonschema:"Search query"`
	K               int      `json:"k,omitempty" jsonschema:"Maximum results (default: 3)"`
	Alpha           *float64 `json:"alpha,omitempty" jsonschema:"Semantic weight in [0,1] (default: 0.5)"`
	PreferredDomain string   `json:"preferred_domain,omitempty" jsonschema:"Domain whose results win ties on duplicate text"`
}

type hit struct {
	Text      string         `json:"text" jsonschema:"Derived chunk text"`
	Score     float64        `json:"score" jsonschema:"Final relevance score"`
	Semantic  float64        `json:"semantic" jsonschema:"Semantic score"`
	Keyword   float64        `json:"keyword" jsonschema:"Keyword score"`
	ChunkType string         `json:"chunk_type" jsonschema:"qa, file_fragment or other"`
	Tenant    string         `json:"tenant" jsonschema:"Store the chunk came from (domain/org__user)"`
	Profile   tenant.Profile `json:"profile" jsonschema:"Profile of the owning tenant"`
}

type searchOutput struct {
	Results []hit `json:"results" jsonschema:"Ranked results"`
	Count   int   `json:"count" jsonschema:"Number of results"`
}

type chunkInput struct {
	ChunkType  string         `json:"chunk_type" jsonschema:"qa, file_fragment or other"`
	Question   string         `json:"question,omitempty" jsonschema:"Question of a qa chunk"`
	Answer     string         `json:"answer,omitempty" jsonschema:"Answer of a qa chunk"`
	Content    string         `json:"content,omitempty" jsonschema:"Text of a file_fragment chunk"`
	SourceFile string         `json:"source_file,omitempty" jsonschema:"Originating file of a file_fragment chunk"`
	Fields     map[string]any `json:"fields,omitempty" jsonschema:"Key/value content of an other chunk"`
}

type ingestInput struct {
	Organization string         `json:"organization" jsonschema:"Organization name"`
	UserID       string         `json:"user_id" jsonschema:"User identifier"`
	Domain       string         `json:"domain,omitempty" jsonschema:"Knowledge domain (default: general)"`
	Chunks       []chunkInput   `json:"chunks" jsonschema:"Chunks to write"`
	Mode         string         `json:"mode,omitempty" jsonschema:"append (default) or replace"`
	Profile      tenant.Profile `json:"profile,omitempty" jsonschema:"Tenant profile attributes"`
}

type ingestOutput struct {
	Tenant   string `json:"tenant" jsonschema:"Store written (domain/org__user)"`
	Ingested int    `json:"ingested" jsonschema:"Chunks written by this call"`
	Size     int    `json:"size" jsonschema:"Chunks in the store afterwards"`
}

type askInput struct {
	Organization string `json:"organization" jsonschema:"Organization name"`
	UserID       string `json:"user_id" jsonschema:"User identifier"`
	Domain       string `json:"domain,omitempty" jsonschema:"Knowledge domain (default: general)"`
	Question     string `json:"question" jsonschema:"Question to answer"`
}

type askOutput struct {
	Answer  string `json:"answer" jsonschema:"Generated answer"`
	Sources []hit  `json:"sources" jsonschema:"Chunks the answer was grounded on"`
}

type toolSearchInput struct {
	Query    string `json:"query" jsonschema:"Substring or regular expression matched against tool names, descriptions and keywords"`
	Category string `json:"category,omitempty" jsonschema:"Restrict to search, ingest, answer or discovery"`
}

type toolSearchOutput struct {
	Results []*SearchResult `json:"results" jsonschema:"Matching tools"`
	Count   int             `json:"count" jsonschema:"Number of matches"`
}

// registerTools registers every tool with the MCP server and the
// discovery registry.
func (s *Server) registerTools() {
	addTool(s, &ToolMetadata{
		Name:        "tenant_search",
		Description: "Search one tenant store by organization, user and domain. Hybrid mode blends semantic and keyword relevance.",
		Category:    CategorySearch,
		Keywords:    []string{"hybrid", "keyword", "semantic", "retrieve"},
	}, s.handleSearch)

	addTool(s, &ToolMetadata{
		Name:        "tenant_fanout",
		Description: "Search every domain of an organization and user, dropping results with duplicate text.",
		Category:    CategorySearch,
		Keywords:    []string{"domains", "dedup", "all"},
	}, s.handleFanOut)

	addTool(s, &ToolMetadata{
		Name:        "tenant_ingest",
		Description: "Append chunks to a tenant store, or replace its contents.",
		Category:    CategoryIngest,
		Keywords:    []string{"write", "add", "replace", "qa"},
	}, s.handleIngest)

	if s.pipeline != nil {
		addTool(s, &ToolMetadata{
			Name:        "tenant_ask",
			Description: "Answer a question from the tenant's retrieved context.",
			Category:    CategoryAnswer,
			Keywords:    []string{"question", "answer", "rag"},
		}, s.handleAsk)
	}

	addTool(s, &ToolMetadata{
		Name:        "tool_search",
		Description: "Find available tools by name, description or keyword.",
		Category:    CategoryDiscovery,
	}, s.handleToolSearch)
}

// addTool registers meta and h, recording metrics for every call.
func addTool[In, Out any](s *Server, meta *ToolMetadata, h mcp.ToolHandlerFor[In, Out]) {
	if err := s.toolRegistry.Register(meta); err != nil {
		s.logger.Warn("skipping tool", zap.String("tool", meta.Name), zap.Error(err))
		return
	}
	name := meta.Name
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: meta.Description},
		func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
			start := time.Now()
			s.metrics.IncrementActive(ctx, name)
			defer s.metrics.DecrementActive(ctx, name)

			res, out, err := h(ctx, req, in)
			s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
			if err != nil {
				s.logger.Debug("tool failed", zap.String("tool", name), zap.Error(err))
			}
			return res, out, err
		})
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, searchOutput, error) {
	key := tenant.NewKey(in.Organization, in.UserID, in.Domain)
	st, err := s.registry.Resolve(ctx, key)
	if err != nil {
		return nil, searchOutput{}, err
	}

	k := s.kOrDefault(in.K)
	var results []store.Result
	switch strings.ToLower(in.Mode) {
	case "", "hybrid":
		results, err = st.HybridSearch(ctx, in.Query, k, s.alphaOrDefault(in.Alpha))
	case "plain":
		results, err = st.Search(ctx, in.Query, k)
	case "keyword":
		results, err = st.KeywordSearch(ctx, in.Query, k)
	default:
		return nil, searchOutput{}, fmt.Errorf("%w: mode must be plain, hybrid or keyword", store.ErrInvalidArgument)
	}
	if err != nil {
		return nil, searchOutput{}, err
	}

	out := searchOutput{Results: toHits(results), Count: len(results)}
	return textResult(fmt.Sprintf("Found %d results in %s", out.Count, key)), out, nil
}

func (s *Server) handleFanOut(ctx context.Context, _ *mcp.CallToolRequest, in fanOutInput) (*mcp.CallToolResult, searchOutput, error) {
	results, err := s.registry.FanOutSearch(ctx, in.Organization, in.UserID, in.Query, registry.FanOutOptions{
		K:               s.kOrDefault(in.K),
		Alpha:           s.alphaOrDefault(in.Alpha),
		PreferredDomain: in.PreferredDomain,
	})
	if err != nil {
		return nil, searchOutput{}, err
	}
	out := searchOutput{Results: toHits(results), Count: len(results)}
	return textResult(fmt.Sprintf("Found %d results across domains", out.Count)), out, nil
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, in ingestInput) (*mcp.CallToolResult, ingestOutput, error) {
	mode, err := store.ParseMode(in.Mode)
	if err != nil {
		return nil, ingestOutput{}, err
	}
	chunks, err := toChunks(in.Chunks)
	if err != nil {
		return nil, ingestOutput{}, err
	}

	st, err := s.registry.Resolve(ctx, tenant.NewKey(in.Organization, in.UserID, in.Domain))
	if err != nil {
		return nil, ingestOutput{}, err
	}
	if err := st.Ingest(ctx, chunks, in.Profile, mode); err != nil {
		return nil, ingestOutput{}, err
	}

	out := ingestOutput{Tenant: st.Key().String(), Ingested: len(chunks), Size: st.Size()}
	return textResult(fmt.Sprintf("Ingested %d chunks into %s (%s)", out.Ingested, out.Tenant, mode)), out, nil
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, in askInput) (*mcp.CallToolResult, askOutput, error) {
	ans, err := s.pipeline.Ask(ctx, tenant.NewKey(in.Organization, in.UserID, in.Domain), in.Question)
	if err != nil {
		return nil, askOutput{}, err
	}
	return textResult(ans.Text), askOutput{Answer: ans.Text, Sources: toHits(ans.Sources)}, nil
}

func (s *Server) handleToolSearch(_ context.Context, _ *mcp.CallToolRequest, in toolSearchInput) (*mcp.CallToolResult, toolSearchOutput, error) {
	if in.Query == "" {
		return nil, toolSearchOutput{}, fmt.Errorf("%w: query is required", store.ErrInvalidArgument)
	}
	results := s.toolRegistry.Search(in.Query, ToolCategory(in.Category))
	if results == nil {
		results = []*SearchResult{}
	}
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Tool.Name
	}
	return textResult("Matching tools: " + strings.Join(names, ", ")),
		toolSearchOutput{Results: results, Count: len(results)}, nil
}

func (s *Server) kOrDefault(k int) int {
	if k > 0 {
		return k
	}
	return s.k
}

func (s *Server) alphaOrDefault(alpha *float64) float64 {
	if alpha != nil {
		return *alpha
	}
	return s.alpha
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func toHits(results []store.Result) []hit {
	hits := make([]hit, len(results))
	for i, r := range results {
		hits[i] = hit{
			Text:     r.Text,
			Score:    r.Score,
			Semantic: r.Semantic,
			Keyword:  r.Keyword,
			Tenant:   r.Tenant.String(),
			Profile:  r.Profile,
		}
		if r.Chunk != nil {
			hits[i].ChunkType = string(r.Chunk.Type())
		}
	}
	return hits
}

func toChunks(in []chunkInput) ([]chunk.Chunk, error) {
	out := make([]chunk.Chunk, len(in))
	for i, c := range in {
		switch chunk.Type(c.ChunkType) {
		case chunk.TypeQA:
			out[i] = chunk.QA{Question: c.Question, Answer: c.Answer}
		case chunk.TypeFileFragment:
			out[i] = chunk.FileFragment{Content: c.Content, SourceFile: c.SourceFile, SequenceIndex: i}
		case chunk.TypeOther:
			fields := c.Fields
			if fields == nil {
				fields = map[string]any{}
			}
			out[i] = chunk.Other{Fields: fields}
		default:
			return nil, fmt.Errorf("%w: chunk %d: %w %q", store.ErrInvalidArgument, i, chunk.ErrUnknownType, c.ChunkType)
		}
	}
	return out, nil
}
