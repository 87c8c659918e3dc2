package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/SolveWise/server/internal/solver/model"
)

//go:embed template/grounded_prompt.txt
var groundedPrompt string

//go:embed template/websearch_prompt.txt
var webSearchPrompt string

//go:embed template/output_format.txt
var outputFormat string

const (
	groundedBadgeFormat = "### 📚 **[Answer from the internal knowledge base]**\n> **Referenced lectures**: %s\n\n"
	webSearchBadge      = "### 🌐 **[Answer from Google web search]**\n> **Note**: The internal knowledge base had nothing on this topic, so a web search was performed.\n\n"
)

// Assembler builds the final instruction text for a query.
type Assembler struct {
	config model.PromptConfig
}

func NewAssembler(config model.PromptConfig) *Assembler {
	return &Assembler{config: config}
}

// Assemble picks the prompt mode from the retrieval result. Google Search is
// enabled in both modes; in grounded mode it backs up thin lecture material.
func (a *Assembler) Assemble(ctx context.Context, userPrompt string, retrieval model.RetrievalResult, hasImage bool) (*model.AssembledPrompt, error) {
	mode := model.ModeWebSearch
	if retrieval.Found {
		mode = model.ModeDbGrounded
	}
	grounded := mode == model.ModeDbGrounded

	format, err := render(ctx, "output_format", outputFormat, map[string]any{
		"HasImage": hasImage,
		"Grounded": grounded,
	})
	if err != nil {
		return nil, err
	}

	vars := map[string]any{
		"TutorName":    a.config.TutorName,
		"ExamName":     a.config.ExamName,
		"OutputFormat": format,
		"UserPrompt":   userPrompt,
	}

	out := &model.AssembledPrompt{Mode: mode, EnableSearch: true}
	if grounded {
		vars["Context"] = retrieval.ContextText()
		out.Text, err = render(ctx, "grounded", groundedPrompt, vars)
		out.Badge = GroundedBadge(retrieval.Sources())
	} else {
		out.Text, err = render(ctx, "web_search", webSearchPrompt, vars)
		out.Badge = WebSearchBadge()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GroundedBadge names the lecture sources an answer was built from.
func GroundedBadge(sources []string) string {
	return fmt.Sprintf(groundedBadgeFormat, strings.Join(sources, ", "))
}

func WebSearchBadge() string {
	return webSearchBadge
}
