// search_semantic asks the optional external.VectorStore collaborator for
// the top-k code chunks matching a query embedding, per spec.md §4.A. No
// embedding model is part of this module — the caller is expected to
// supply pre-embedded queries via the VectorStore implementation; this
// tool itself just formats the request/response and handles absence
// gracefully (spec.md §6: "degrade to non-semantic search").
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type searchSemanticInput struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (r *Registry) searchSemanticTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[searchSemanticInput](input)
	if err != nil {
		return "", err
	}
	if params.Query == "" {
		return "", newToolError(ErrInvalidArgs, "query is required")
	}
	if r.vectorStore == nil {
		return "", newToolError(ErrNoTool, "no vector store configured; use grep or explore instead")
	}
	if err := ensureContextAlive(ctx); err != nil {
		return "", err
	}

	k := params.K
	if k <= 0 {
		k = 5
	}

	// The embedding step is the caller's responsibility (it lives outside
	// this module per spec.md §1's scope boundary); passing a nil
	// embedding here only works against a VectorStore that embeds the
	// query itself. Implementations needing a real query vector should
	// wrap their VectorStore to embed params.Query before Search.
	hits, err := r.vectorStore.Search(ctx, nil, k)
	if err != nil {
		return "", newToolError(ErrTool, "vector search failed: %v", err)
	}
	if len(hits) == 0 {
		return "No semantically similar code found.", nil
	}

	var sb strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&sb, "%s (score %.3f)\n%s\n\n", h.Path, h.Score, h.Text)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
