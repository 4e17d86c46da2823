package schemas

import (
	"context"
	"encoding/json"
)

// -- Browser Interface --

// Page is the primitive browser automation capability the engine consumes.
// Implementations own a single tab and are not safe for concurrent use; the
// engine drives them strictly sequentially.
type Page interface {
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// Click activates the first node matching the CSS selector.
	Click(ctx context.Context, selector string) error
	// Type focuses the node matching selector and types text into it.
	Type(ctx context.Context, selector, text string) error
	// PressKey dispatches a single named key (e.g. "Escape", "Enter") to the focused document.
	PressKey(ctx context.Context, key string) error
	// Evaluate runs a JavaScript expression in the page and decodes its JSON result into res.
	// A nil res discards the result.
	Evaluate(ctx context.Context, script string, res interface{}) error
	// CurrentURL returns the real browser URL.
	CurrentURL(ctx context.Context) (string, error)
	// Reload reloads the current document.
	Reload(ctx context.Context) error
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// RequestCount returns the number of network requests issued since the page was opened.
	RequestCount() int
	// Close releases the tab.
	Close(ctx context.Context) error
}

// -- Oracle Interface --

// OracleTask names a prompt template in the oracle's catalog.
type OracleTask string

const (
	TaskElementGeneration  OracleTask = "element_generation"
	TaskFormFill           OracleTask = "form_fill"
	TaskFormFillWithSubmit OracleTask = "form_fill_with_submit"
	TaskFormFillValuesOnly OracleTask = "form_fill_values_only"
	TaskFormFix            OracleTask = "form_fix"
)

// Oracle is the nondeterministic value and selector generation service.
// Synthesize returns the fenced data block extracted from the reply. A reply
// that stays malformed after the bounded retries degrades to an empty result.
type Oracle interface {
	Synthesize(ctx context.Context, task OracleTask, vars map[string]string) (json.RawMessage, error)
}

// LLMClient is the transport an Oracle uses to reach a model provider.
type LLMClient interface {
	// Generate produces a text completion for the given prompts.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close releases provider resources.
	Close() error
}

// GenerationRequest carries a rendered prompt pair.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

// -- Crawl Interfaces --

// Frontier is the BFS crawl queue. Domain scoping and depth limits are its
// responsibility, not the engine's.
type Frontier interface {
	AddURL(url string, depth int) bool
	Next() (CrawlTask, bool)
	HasMore() bool
	MarkProcessed(url string)
	IsProcessed(url string) bool
}

// ResultsSink persists the outcomes of each page visit.
type ResultsSink interface {
	Record(ctx context.Context, page PageResult) error
	RecordPopup(ctx context.Context, report PopupReport) error
	// Flush writes any buffered state. It is called on normal completion and on interrupt.
	Flush(ctx context.Context, summary RunSummary) error
}

// Authenticator performs an optional login before exploration starts.
type Authenticator interface {
	Authenticate(ctx context.Context, page Page) error
}
