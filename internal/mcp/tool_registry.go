package mcp

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ToolCategory groups tools for discovery.
type ToolCategory string

const (
	// CategorySearch covers single-store and fan-out retrieval.
	CategorySearch ToolCategory = "search"
	// CategoryIngest covers writing chunks to a tenant store.
	CategoryIngest ToolCategory = "ingest"
	// CategoryAnswer covers question answering.
	CategoryAnswer ToolCategory = "answer"
	// CategoryDiscovery is for tool_search itself.
	CategoryDiscovery ToolCategory = "discovery"
)

// ToolMetadata describes one registered MCP tool.
type ToolMetadata struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    ToolCategory `json:"category"`
	Keywords    []string     `json:"keywords,omitempty"`
}

// ToolRegistry indexes tool metadata for discovery.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolMetadata
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*ToolMetadata)}
}

// Register adds a tool. Names must be unique.
func (r *ToolRegistry) Register(tool *ToolMetadata) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Category == "" {
		return fmt.Errorf("tool %s: category is required", tool.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[tool.Name]; ok {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get returns the metadata for a tool.
func (r *ToolRegistry) Get(name string) (*ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return tool, nil
}

// List returns every tool sorted by name.
func (r *ToolRegistry) List() []*ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolMetadata, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SearchResult is one tool match.
type SearchResult struct {
	Tool *ToolMetadata `json:"tool"`
	// Score is 3 for an exact name, 2 for a name match and 1 for a
	// description or keyword match.
	Score       int    `json:"score"`
	MatchReason string `json:"match_reason"`
}

// Search matches query case-insensitively against names, descriptions
// and keywords. A query that compiles as a regular expression is also
// matched as one. An empty category searches every category.
func (r *ToolRegistry) Search(query string, category ToolCategory) []*SearchResult {
	if query == "" {
		return nil
	}
	q := strings.ToLower(query)
	re, _ := regexp.Compile("(?i)" + query)
	matches := func(s string) bool {
		return strings.Contains(strings.ToLower(s), q) || (re != nil && re.MatchString(s))
	}

	var results []*SearchResult
	for _, tool := range r.List() {
		if category != "" && tool.Category != category {
			continue
		}
		switch {
		case strings.ToLower(tool.Name) == q:
			results = append(results, &SearchResult{Tool: tool, Score: 3, MatchReason: "exact name match"})
		case matches(tool.Name):
			results = append(results, &SearchResult{Tool: tool, Score: 2, MatchReason: "name match"})
		case matches(tool.Description):
			results = append(results, &SearchResult{Tool: tool, Score: 1, MatchReason: "description match"})
		default:
			for _, kw := range tool.Keywords {
				if matches(kw) {
					results = append(results, &SearchResult{Tool: tool, Score: 1, MatchReason: "keyword match"})
					break
				}
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
