package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
)

const defaultImageMIME = "image/jpeg"

// GeminiConfig holds the settings for one Gemini client.
type GeminiConfig struct {
	APIKey           string
	BaseURL          string
	ChartMaxTokens   int
	ChartTemperature float32
}

// GeminiProvider talks to the Gemini API through the genai SDK.
type GeminiProvider struct {
	client           *genai.Client
	chartMaxTokens   int
	chartTemperature float32
}

// NewGeminiProvider creates a genai client bound to the given API key.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errx.InvalidInput("missing Gemini API key")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:           client,
		chartMaxTokens:   cfg.ChartMaxTokens,
		chartTemperature: cfg.ChartTemperature,
	}, nil
}

// NewFactory returns a ProviderFactory that builds a GeminiProvider per API key.
func NewFactory(cfg model.ProviderConfig) model.ProviderFactory {
	return func(ctx context.Context, apiKey string) (model.Provider, error) {
		p, err := NewGeminiProvider(ctx, GeminiConfig{
			APIKey:           apiKey,
			BaseURL:          cfg.BaseURL,
			ChartMaxTokens:   cfg.ChartMaxTokens,
			ChartTemperature: cfg.ChartTemperature,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func (p *GeminiProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	var out []model.ModelInfo
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		if m == nil {
			continue
		}
		out = append(out, model.ModelInfo{Name: m.Name, SupportedActions: m.SupportedActions})
	}
	return out, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req model.GenerationRequest) (*model.Generation, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = defaultImageMIME
		}
		parts = append(parts, genai.NewPartFromBytes(req.Image, mime))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	var cfg *genai.GenerateContentConfig
	if req.EnableSearch {
		cfg = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content with %s: %w", req.Model, err)
	}
	return ParseResponse(req.Model, resp)
}

// ParseResponse validates a generateContent response and extracts the text
// of the first candidate.
func ParseResponse(modelName string, resp *genai.GenerateContentResponse) (*model.Generation, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response from %s", errx.ErrSchemaMismatch, modelName)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, fmt.Errorf("%w: %s", errx.ErrEmptyCandidates, modelName)
	}

	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return nil, fmt.Errorf("%w: candidate from %s has no content parts", errx.ErrSchemaMismatch, modelName)
	}

	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: candidate from %s has no text", errx.ErrSchemaMismatch, modelName)
	}

	gen := &model.Generation{Model: modelName, Text: text}
	if um := resp.UsageMetadata; um != nil {
		gen.Usage = &model.Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}
	return gen, nil
}

// ChatModel wraps the shared client in an eino gemini chat model.
func (p *GeminiProvider) ChatModel(ctx context.Context, name string) (einomodel.BaseChatModel, error) {
	cfg := &gemini.Config{
		Client: p.client,
		Model:  strings.TrimPrefix(name, "models/"),
	}
	if p.chartMaxTokens > 0 {
		cfg.MaxTokens = &p.chartMaxTokens
	}
	if p.chartTemperature > 0 {
		cfg.Temperature = &p.chartTemperature
	}

	cm, err := gemini.NewChatModel(ctx, cfg)
	if err != nil {
		logx.Error().Err(err).Str("model", name).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model %s: %w", name, err)
	}
	return cm, nil
}

var _ model.Provider = (*GeminiProvider)(nil)
