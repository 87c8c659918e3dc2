package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/solver/graph/parsers"
	"github.com/SolveWise/server/internal/solver/graph/prompts"
	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
)

// ChartJob carries one chart request through the chart chain.
type ChartJob struct {
	Input    model.ChartInput
	Provider model.Provider
	Ranked   []string
	Item     *model.HistoryItem
	Messages []*schema.Message
	Answer   *model.Generation
}

// NewChartConverterNode loads the conversation and appends the chart
// instruction.
func NewChartConverterNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ChartInput) (*ChartJob, error) {
		if strings.TrimSpace(in.ConversationID) == "" {
			return nil, errx.InvalidInput("conversation id is required")
		}

		instruction, err := prompts.RenderChart(ctx)
		if err != nil {
			return nil, err
		}
		item, messages, err := d.Messages.ChartContext(ctx, model.OwnerKey(in.APIKey), in.ConversationID, instruction)
		if err != nil {
			return nil, err
		}

		p, err := d.ProviderFactory(ctx, in.APIKey)
		if err != nil {
			return nil, fmt.Errorf("create provider: %w", err)
		}
		ranked := d.Directory.ListRankedModels(ctx, p)
		if len(ranked) == 0 {
			return nil, errx.NoModelsAvailable()
		}

		return &ChartJob{
			Input:    in,
			Provider: p,
			Ranked:   ranked,
			Item:     item,
			Messages: messages,
		}, nil
	})
}

// NewChartGeneratorNode asks the ranked chat models for chart code, falling
// back in order like the answer generator.
func NewChartGeneratorNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, job *ChartJob) (*ChartJob, error) {
		attempts, err := firstSuccess(ctx, job.Ranked, d.GenerateTimeout, func(ctx context.Context, name string) (*model.Generation, error) {
			cm, err := job.Provider.ChatModel(ctx, name)
			if err != nil {
				return nil, err
			}
			msg, err := cm.Generate(ctx, job.Messages)
			if err != nil {
				return nil, err
			}
			if msg == nil || strings.TrimSpace(msg.Content) == "" {
				return nil, fmt.Errorf("%w: empty chart response from %s", errx.ErrEmptyCandidates, name)
			}
			gen := &model.Generation{Model: name, Text: msg.Content}
			if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
				gen.Usage = &model.Usage{
					PromptTokens:     msg.ResponseMeta.Usage.PromptTokens,
					CompletionTokens: msg.ResponseMeta.Usage.CompletionTokens,
					TotalTokens:      msg.ResponseMeta.Usage.TotalTokens,
				}
			}
			return gen, nil
		})
		if err != nil {
			logx.Error().Err(err).Str("conversation_id", job.Input.ConversationID).Msg("chart generation failed")
			return nil, err
		}

		job.Answer = attempts[len(attempts)-1].Generation
		logUsage(job.Input.ConversationID, NodeChartGenerator, job.Answer)
		return job, nil
	})
}

// NewChartPostProcessorNode extracts the chart code and stores the turn.
func NewChartPostProcessorNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, job *ChartJob) (*model.AnswerResult, error) {
		parsed := parsers.SplitChart(job.Answer.Text, prompts.ChartContainerID)
		if parsed.ChartCode == "" {
			logx.Warn().Str("conversation_id", job.Input.ConversationID).Msg("chart response contained no code block")
		}

		if err := d.Messages.SaveChart(ctx, model.OwnerKey(job.Input.APIKey), job.Item, job.Answer.Text, parsed.ChartCode); err != nil {
			logx.Error().Err(err).Str("conversation_id", job.Input.ConversationID).Msg("Error saving chart to history")
		}

		return &model.AnswerResult{
			Explanation:    strings.TrimSpace(parsed.Explanation),
			ChartCode:      parsed.ChartCode,
			Model:          job.Answer.Model,
			ConversationID: job.Input.ConversationID,
		}, nil
	})
}
