package prompts

import (
	"context"
	_ "embed"

	"github.com/SolveWise/server/internal/solver/model"
)

//go:embed template/synthesize_prompt.txt
var synthesizePrompt string

//go:embed template/chart_prompt.txt
var chartPrompt string

// ChartContainerID is the DOM id every chart is drawn into.
const ChartContainerID = "chart"

// RenderSynthesize renders the instruction that turns a photographed problem
// into a one-line search query.
func RenderSynthesize(ctx context.Context, config model.PromptConfig) (string, error) {
	return render(ctx, "synthesize", synthesizePrompt, map[string]any{
		"ExamName": config.ExamName,
	})
}

// RenderChart renders the follow-up instruction asking for Plotly code.
func RenderChart(ctx context.Context) (string, error) {
	return render(ctx, "chart", chartPrompt, map[string]any{
		"ContainerID": ChartContainerID,
	})
}
