package model

// AppState stores per-invocation state for the solve graph.
// It is registered as graph local state via compose.WithGenLocalState and is
// only read or written inside state handlers or compose.ProcessState.
type AppState struct {
	// Owner scopes history reads and writes; see OwnerKey.
	Owner          string
	ConversationID string
	Query          string
	// UserPrompt is the query with earlier turns of the conversation prepended.
	UserPrompt string

	Provider     Provider
	RankedModels []string

	Image        []byte // normalized JPEG, nil for text questions
	ImagePreview string // base64 of Image

	Prompt   *AssembledPrompt
	Attempts []Attempt

	// Accumulated LLM cost (USD) across model calls for this query
	TotalCostUSD float64
}

// HasImage reports whether the invocation carries a normalized photo.
func (s *AppState) HasImage() bool {
	return len(s.Image) > 0
}
