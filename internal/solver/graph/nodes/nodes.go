package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/solver/graph/conversations"
	"github.com/SolveWise/server/internal/solver/graph/parsers"
	"github.com/SolveWise/server/internal/solver/graph/prompts"
	"github.com/SolveWise/server/internal/solver/imaging"
	"github.com/SolveWise/server/internal/solver/model"
	"github.com/SolveWise/server/internal/solver/provider"
	"github.com/SolveWise/server/internal/solver/retrieval"
	logx "github.com/SolveWise/server/pkg/logger"
	"github.com/SolveWise/server/pkg/metrics"
)

// Deps are the collaborators shared by every node. They hold no per-request
// state; that lives in model.AppState.
type Deps struct {
	ProviderFactory model.ProviderFactory
	Directory       provider.Directory
	Normalizer      *imaging.Normalizer
	Retriever       retrieval.Retriever
	Assembler       *prompts.Assembler
	Messages        *conversations.MessagesManager
	PromptConfig    model.PromptConfig
	GenerateTimeout time.Duration
	SynthTimeout    time.Duration
}

// NewInputConverterNode validates the input, creates the per-call provider
// and builds the user prompt from the conversation so far.
func NewInputConverterNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.SolveInput) (model.SolveInput, error) {
		in.Query = strings.TrimSpace(in.Query)
		if in.Query == "" && !in.HasImage() {
			return in, errx.InvalidInput("a question or a photo is required")
		}
		if in.ConversationID == "" {
			in.ConversationID = uuid.NewString()
		}

		p, err := d.ProviderFactory(ctx, in.APIKey)
		if err != nil {
			return in, fmt.Errorf("create provider: %w", err)
		}

		owner := model.OwnerKey(in.APIKey)
		userPrompt := d.Messages.BuildUserPrompt(ctx, owner, in.ConversationID, in.Query, in.HasImage())

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Owner = owner
			s.ConversationID = in.ConversationID
			s.Query = in.Query
			s.UserPrompt = userPrompt
			s.Provider = p
			return nil
		})
		if err != nil {
			return in, fmt.Errorf("failed to access state: %w", err)
		}
		return in, nil
	})
}

// NewModelDirectoryNode ranks the provider's models for this call.
func NewModelDirectoryNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.SolveInput) (model.SolveInput, error) {
		var p model.Provider
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			p = s.Provider
			return nil
		}); err != nil {
			return in, fmt.Errorf("failed to access state: %w", err)
		}

		ranked := d.Directory.ListRankedModels(ctx, p)
		if len(ranked) == 0 {
			return in, errx.NoModelsAvailable()
		}

		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.RankedModels = ranked
			return nil
		})
		if err != nil {
			return in, fmt.Errorf("failed to access state: %w", err)
		}
		return in, nil
	})
}

// NewInputTypeCondition routes photos through normalization and query
// synthesis and text straight to retrieval.
func NewInputTypeCondition() func(context.Context, model.SolveInput) (string, error) {
	return func(ctx context.Context, in model.SolveInput) (string, error) {
		if in.HasImage() {
			logx.Debug().Int("image_bytes", len(in.Image)).Msg("Routing to ImageNormalizer")
			return NodeImageNormalizer, nil
		}
		logx.Debug().Msg("Routing to TextQuery")
		return NodeTextQuery, nil
	}
}

// NewImageNormalizerNode downsamples the photo. Decode failures end the run.
func NewImageNormalizerNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.SolveInput) (model.SolveInput, error) {
		normalized, err := d.Normalizer.Normalize(in.Image)
		if err != nil {
			logx.Warn().Err(err).Msg("image normalization failed")
			return in, err
		}
		logx.Debug().
			Int("width", normalized.Width).
			Int("height", normalized.Height).
			Int("bytes", len(normalized.Data)).
			Msg("image normalized")

		in.Image = normalized.Data
		return in, nil
	})
}

// NewImageNormalizerPostHandler keeps the normalized photo for generation.
func NewImageNormalizerPostHandler() func(context.Context, model.SolveInput, *model.AppState) (model.SolveInput, error) {
	return func(ctx context.Context, out model.SolveInput, state *model.AppState) (model.SolveInput, error) {
		n := &imaging.Normalized{Data: out.Image}
		state.Image = out.Image
		state.ImagePreview = n.Base64()
		return out, nil
	}
}

// NewQuerySynthesizerNode asks the top-ranked model to describe the photo as
// a search query. Any failure yields an empty query, which skips retrieval.
func NewQuerySynthesizerNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.SolveInput) (model.SearchQuery, error) {
		var (
			p     model.Provider
			top   string
			image []byte
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			p = s.Provider
			image = s.Image
			if len(s.RankedModels) > 0 {
				top = s.RankedModels[0]
			}
			return nil
		})
		if err != nil {
			return model.SearchQuery{}, fmt.Errorf("failed to access state: %w", err)
		}

		return model.SearchQuery{Text: SynthesizeQuery(ctx, p, top, image, d.PromptConfig, d.SynthTimeout)}, nil
	})
}

// SynthesizeQuery returns a one-line search query for the photographed
// problem, or "" when the model cannot provide one.
func SynthesizeQuery(ctx context.Context, p model.Provider, modelName string, image []byte, cfg model.PromptConfig, timeout time.Duration) string {
	if p == nil || modelName == "" || len(image) == 0 {
		return ""
	}
	instruction, err := prompts.RenderSynthesize(ctx, cfg)
	if err != nil {
		logx.Warn().Err(err).Msg("query synthesis prompt failed")
		return ""
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	gen, err := p.Generate(ctx, model.GenerationRequest{
		Model:     modelName,
		Prompt:    instruction,
		Image:     image,
		ImageMIME: imaging.MIMEType,
	})
	if err != nil || gen == nil {
		logx.Warn().Err(err).Str("model", modelName).Msg("query synthesis failed, skipping retrieval")
		return ""
	}

	query := strings.TrimSpace(gen.Text)
	logx.Debug().Str("model", modelName).Str("query", query).Msg("synthesized search query")
	return query
}

// NewTextQueryNode uses the typed question as the search query.
func NewTextQueryNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.SolveInput) (model.SearchQuery, error) {
		return model.SearchQuery{Text: strings.TrimSpace(in.Query)}, nil
	})
}

// NewRetrieverNode looks up lecture material. Misses are not errors.
func NewRetrieverNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, q model.SearchQuery) (model.RetrievalResult, error) {
		if q.Text == "" || d.Retriever == nil {
			logx.Debug().Msg("empty search query, skipping retrieval")
			metrics.RetrievalTotal.WithLabelValues(metrics.RetrievalSkipped).Inc()
			return model.NotFound(), nil
		}
		return d.Retriever.Retrieve(ctx, q.Text), nil
	})
}

// NewPromptAssemblerNode builds the final instruction and badge.
func NewPromptAssemblerNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, retrieved model.RetrievalResult) (*model.AssembledPrompt, error) {
		var (
			userPrompt string
			hasImage   bool
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			userPrompt = s.UserPrompt
			hasImage = s.HasImage()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		assembled, err := d.Assembler.Assemble(ctx, userPrompt, retrieved, hasImage)
		if err != nil {
			return nil, fmt.Errorf("assemble prompt: %w", err)
		}
		logx.Debug().Str("mode", string(assembled.Mode)).Bool("search", assembled.EnableSearch).Msg("prompt assembled")
		return assembled, nil
	})
}

// NewPromptAssemblerPostHandler records the prompt for the post processor.
func NewPromptAssemblerPostHandler() func(context.Context, *model.AssembledPrompt, *model.AppState) (*model.AssembledPrompt, error) {
	return func(ctx context.Context, out *model.AssembledPrompt, state *model.AppState) (*model.AssembledPrompt, error) {
		state.Prompt = out
		return out, nil
	}
}

// NewAnswerGeneratorNode tries the ranked models in order until one answers.
func NewAnswerGeneratorNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, prompt *model.AssembledPrompt) (*model.Generation, error) {
		var (
			p      model.Provider
			ranked []string
			image  []byte
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			p = s.Provider
			ranked = s.RankedModels
			image = s.Image
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		attempts, err := firstSuccess(ctx, ranked, d.GenerateTimeout, func(ctx context.Context, name string) (*model.Generation, error) {
			req := model.GenerationRequest{
				Model:        name,
				Prompt:       prompt.Text,
				EnableSearch: prompt.EnableSearch,
			}
			if len(image) > 0 {
				req.Image = image
				req.ImageMIME = imaging.MIMEType
			}
			return p.Generate(ctx, req)
		})

		_ = compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Attempts = attempts
			return nil
		})
		if err != nil {
			logx.Error().Err(err).Int("attempts", len(attempts)).Msg("every model failed")
			return nil, err
		}
		return attempts[len(attempts)-1].Generation, nil
	})
}

// NewAnswerGeneratorPostHandler accounts the cost of the accepted answer.
func NewAnswerGeneratorPostHandler() func(context.Context, *model.Generation, *model.AppState) (*model.Generation, error) {
	return func(ctx context.Context, out *model.Generation, state *model.AppState) (*model.Generation, error) {
		state.TotalCostUSD += logUsage(state.ConversationID, NodeAnswerGenerator, out)
		return out, nil
	}
}

// NewPostProcessorNode splits chart code from the explanation, prefixes the
// badge and saves the turn.
func NewPostProcessorNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, gen *model.Generation) (*model.AnswerResult, error) {
		var (
			state model.AppState
			badge string
			mode  model.PromptMode
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			state = *s
			if s.Prompt != nil {
				badge = s.Prompt.Badge
				mode = s.Prompt.Mode
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		parsed := parsers.SplitChart(gen.Text, prompts.ChartContainerID)
		result := &model.AnswerResult{
			Explanation:    badge + parsed.Explanation,
			ChartCode:      parsed.ChartCode,
			Model:          gen.Model,
			Mode:           mode,
			ConversationID: state.ConversationID,
		}
		metrics.AnswersTotal.WithLabelValues(string(mode)).Inc()

		if err := d.Messages.SaveTurn(ctx, conversations.Turn{
			Owner:          state.Owner,
			ConversationID: state.ConversationID,
			Query:          state.Query,
			HasImage:       state.HasImage(),
			PreviewImage:   state.ImagePreview,
			Answer:         result,
		}); err != nil {
			logx.Error().
				Str("conversation_id", state.ConversationID).
				Err(err).
				Msg("Error saving answer to history")
		} else {
			logx.Debug().
				Str("conversation_id", state.ConversationID).
				Msg("Successfully saved answer to history")
		}

		logx.Info().
			Str("conversation_id", state.ConversationID).
			Str("model", gen.Model).
			Str("mode", string(mode)).
			Int("attempts", len(state.Attempts)).
			Float64("total_cost_usd", state.TotalCostUSD).
			Bool("chart", result.ChartCode != "").
			Msg("answer ready")
		return result, nil
	})
}
