// Package external declares the optional collaborator interfaces from
// spec.md §6: a vector store, a language-server-style symbol server, a
// plugin host, and a confirmation prompter. None are implemented here —
// each is a pure interface so tools/ and agent/ can degrade gracefully
// when a collaborator is absent (see spec.md: "failures must not crash
// the agent; degrade to non-semantic search and bare-text symbol
// handling").
package external

import "context"

// VectorHit is one result from a VectorStore similarity search.
type VectorHit struct {
	Path     string
	Text     string
	Score    float32
	Metadata map[string]string
}

// VectorStore is consumed by the search_semantic tool. A nil VectorStore
// means search_semantic reports E_NO_TOOL rather than crashing.
type VectorStore interface {
	Search(ctx context.Context, queryEmbedding []float32, k int) ([]VectorHit, error)
}

// Location is a position in a source file, as returned by SymbolServer.
type Location struct {
	Path string
	Line int
	Col  int
}

// Symbol describes one named entity a SymbolServer knows about.
type Symbol struct {
	Name string
	Kind string
	Location
}

// SymbolServer is an optional LSP-style collaborator for symbol-aware
// tools (definition/references/workspace symbol search). No tool in this
// module takes a SymbolServer; the interface has no consumer here.
type SymbolServer interface {
	Definition(ctx context.Context, path string, line, col int) ([]Location, error)
	References(ctx context.Context, path string, line, col int) ([]Location, error)
	Symbols(ctx context.Context, path string) ([]Symbol, error)
	SearchWorkspace(ctx context.Context, query string) ([]Symbol, error)
}

// PluginResult is the structured outcome of a PluginHost.Run call.
type PluginResult struct {
	OK     bool
	Output string
	Error  string
}

// PluginHost is an optional collaborator for third-party plugin tools. No
// tool in this module takes a PluginHost; the interface has no consumer
// here.
type PluginHost interface {
	Run(ctx context.Context, name string, args map[string]any) (PluginResult, error)
}

// ConfirmationPrompter asks the user a yes/no question before a risky
// action proceeds. ui.Terminal already implements the non-context-aware
// ConfirmAction(prompt string) bool; nothing in this module adapts it to
// this context-aware interface.
type ConfirmationPrompter interface {
	Ask(ctx context.Context, message string) (bool, error)
}
