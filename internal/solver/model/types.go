package model

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
)

// PromptMode decides which instruction template answers a query.
type PromptMode string

const (
	ModeDbGrounded PromptMode = "db_grounded"
	ModeWebSearch  PromptMode = "web_search"
)

// ModelInfo is one raw entry of the provider's model listing.
type ModelInfo struct {
	Name             string
	SupportedActions []string
}

// ModelDescriptor is a listing entry after capability checks and scoring.
type ModelDescriptor struct {
	Name               string
	SupportsGeneration bool
	Score              int
	Version            float64
}

// Passage is a single reference excerpt returned by the knowledge backend.
type Passage struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// RetrievalResult is request scoped: it is consumed by the prompt assembler
// and discarded.
type RetrievalResult struct {
	Found    bool
	Passages []Passage
}

// NotFound is the result used for every kind of retrieval miss.
func NotFound() RetrievalResult {
	return RetrievalResult{Found: false, Passages: []Passage{}}
}

// ContextText renders the passages as labelled blocks separated by blank lines.
func (r RetrievalResult) ContextText() string {
	blocks := make([]string, 0, len(r.Passages))
	for i, p := range r.Passages {
		blocks = append(blocks, fmt.Sprintf("--- [Reference %d] (source: %s / %s) ---\n%s", i+1, p.Source, p.Title, p.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// Sources returns the distinct source labels in first-seen order.
func (r RetrievalResult) Sources() []string {
	seen := make(map[string]struct{}, len(r.Passages))
	out := make([]string, 0, len(r.Passages))
	for _, p := range r.Passages {
		if _, ok := seen[p.Source]; ok {
			continue
		}
		seen[p.Source] = struct{}{}
		out = append(out, p.Source)
	}
	return out
}

// SearchQuery is the text sent to the knowledge backend. Empty means skip.
type SearchQuery struct {
	Text string
}

// AssembledPrompt is the final instruction text plus the badge recorded for
// the returned explanation.
type AssembledPrompt struct {
	Text         string
	Mode         PromptMode
	EnableSearch bool
	Badge        string
}

// GenerationRequest is a single generateContent call.
type GenerationRequest struct {
	Model        string
	Prompt       string
	Image        []byte
	ImageMIME    string
	EnableSearch bool
}

// Usage mirrors the provider's token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generation is an accepted provider response.
type Generation struct {
	Model string
	Text  string
	Usage *Usage
}

// Attempt records the outcome of one model in the fallback loop.
type Attempt struct {
	Model      string
	Generation *Generation
	Err        error
}

// Succeeded reports whether the attempt produced usable text.
func (a Attempt) Succeeded() bool {
	return a.Err == nil && a.Generation != nil
}

// Provider is the generative-AI backend used by one solver invocation.
type Provider interface {
	// ListModels returns the raw model listing.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Generate issues one generateContent request.
	Generate(ctx context.Context, req GenerationRequest) (*Generation, error)

	// ChatModel returns an eino chat model bound to the named model.
	ChatModel(ctx context.Context, name string) (einomodel.BaseChatModel, error)
}

// ProviderFactory builds a Provider for the caller's API key.
type ProviderFactory func(ctx context.Context, apiKey string) (Provider, error)

// SolveInput is the public input of the solve graph.
type SolveInput struct {
	APIKey         string `json:"-"`
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	Image          []byte `json:"-"`
}

// HasImage reports whether a photo was attached.
func (in SolveInput) HasImage() bool {
	return len(in.Image) > 0
}

// ChartInput asks for a chart for an existing conversation.
type ChartInput struct {
	APIKey         string `json:"-"`
	ConversationID string `json:"conversation_id"`
}

// AnswerResult is handed to the caller, which owns it from then on.
type AnswerResult struct {
	Explanation    string     `json:"explanation"`
	ChartCode      string     `json:"chart_code"`
	Model          string     `json:"model"`
	Mode           PromptMode `json:"mode,omitempty"`
	ConversationID string     `json:"conversation_id"`
}
