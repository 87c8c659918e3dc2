package nodes

import (
	"context"
	"time"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
	"github.com/SolveWise/server/pkg/metrics"
)

// tryFunc issues one request against a single model.
type tryFunc func(ctx context.Context, modelName string) (*model.Generation, error)

// firstSuccess walks the ranked list in order and stops at the first model
// that answers. Each attempt gets its own timeout; a model is tried once.
// The returned attempts end with the accepted one when err is nil.
func firstSuccess(ctx context.Context, ranked []string, timeout time.Duration, try tryFunc) ([]model.Attempt, error) {
	if len(ranked) == 0 {
		return nil, errx.NoModelsAvailable()
	}

	attempts := make([]model.Attempt, 0, len(ranked))
	for _, name := range ranked {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		attempt := runAttempt(ctx, name, timeout, try)
		attempts = append(attempts, attempt)
		if attempt.Succeeded() {
			return attempts, nil
		}
		logx.Warn().Err(attempt.Err).Str("model", name).Msg("model failed, trying next")
	}

	last := attempts[len(attempts)-1]
	return attempts, errx.ModelsExhausted(last.Model, last.Err)
}

func runAttempt(ctx context.Context, name string, timeout time.Duration, try tryFunc) model.Attempt {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logx.Debug().Str("model", name).Msg("attempting generation")
	start := time.Now()
	gen, err := try(ctx, name)
	metrics.GenerationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err == nil && gen == nil {
		err = errx.ErrEmptyCandidates
	}
	if err != nil {
		metrics.ModelAttemptsTotal.WithLabelValues(name, metrics.StatusFailure).Inc()
		return model.Attempt{Model: name, Err: err}
	}

	metrics.ModelAttemptsTotal.WithLabelValues(name, metrics.StatusSuccess).Inc()
	return model.Attempt{Model: name, Generation: gen}
}

// logUsage logs token usage and cost of an accepted generation and returns
// the cost in USD.
func logUsage(conversationID, node string, gen *model.Generation) float64 {
	if gen == nil || gen.Usage == nil {
		return 0
	}
	inC, outC, totalC := model.ComputeCost(gen.Usage, model.ResolvePricing(gen.Model))
	logx.Debug().
		Str("conversation_id", conversationID).
		Str("node", node).
		Str("model", gen.Model).
		Int("prompt_tokens", gen.Usage.PromptTokens).
		Int("completion_tokens", gen.Usage.CompletionTokens).
		Int("total_tokens", gen.Usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
	return totalC
}
