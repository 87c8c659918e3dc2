package graph

import (
	"context"
	"strings"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/SolveWise/server/internal/solver/model"
)

type fakeProvider struct {
	mu       sync.Mutex
	models   []model.ModelInfo
	listErr  error
	generate func(req model.GenerationRequest) (*model.Generation, error)
	chat     func(name string, msgs []*schema.Message) (*schema.Message, error)
	requests []model.GenerationRequest
	chats    []string
}

func (f *fakeProvider) ListModels(context.Context) ([]model.ModelInfo, error) {
	return f.models, f.listErr
}

func (f *fakeProvider) Generate(ctx context.Context, req model.GenerationRequest) (*model.Generation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.generate(req)
}

func (f *fakeProvider) ChatModel(ctx context.Context, name string) (einomodel.BaseChatModel, error) {
	return &fakeChatModel{name: name, parent: f}, nil
}

// answerRequests drops query synthesis calls.
func (f *fakeProvider) answerRequests() []model.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.GenerationRequest
	for _, r := range f.requests {
		if !isSynthesis(r) {
			out = append(out, r)
		}
	}
	return out
}

func isSynthesis(req model.GenerationRequest) bool {
	return strings.Contains(req.Prompt, "Write one search query")
}

type fakeChatModel struct {
	name   string
	parent *fakeProvider
}

func (m *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.parent.mu.Lock()
	m.parent.chats = append(m.parent.chats, m.name)
	m.parent.mu.Unlock()
	return m.parent.chat(m.name, input)
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

type fakeRetriever struct {
	mu      sync.Mutex
	result  model.RetrievalResult
	queries []string
}

func (r *fakeRetriever) Retrieve(ctx context.Context, query string) model.RetrievalResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	return r.result
}

func genModels(names ...string) []model.ModelInfo {
	out := make([]model.ModelInfo, len(names))
	for i, n := range names {
		out[i] = model.ModelInfo{Name: n, SupportedActions: []string{"generateContent"}}
	}
	return out
}
