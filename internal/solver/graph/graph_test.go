package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/solver/graph/nodes"
	"github.com/SolveWise/server/internal/solver/graph/prompts"
	"github.com/SolveWise/server/internal/solver/imaging"
	"github.com/SolveWise/server/internal/solver/model"
	"github.com/SolveWise/server/internal/solver/repo"
	"github.com/SolveWise/server/internal/solver/retrieval"
)

const answerWithChart = "**1. Problem category**\nMicroeconomics\n\n```javascript\nvar data = [];\nvar layout = {};\nPlotly.newPlot('plot', data, layout, {displayModeBar: false});\n```\n\n**5. Final answer**\nA budget line."

type harness struct {
	provider  *fakeProvider
	retriever retrieval.Retriever
	history   *repo.MemoryHistoryRepository
	runner    Runner
}

func newHarness(t *testing.T, p *fakeProvider, r retrieval.Retriever, fallback string) *harness {
	t.Helper()
	history := repo.NewMemoryHistoryRepository(30)
	runner, err := BuildSolver(context.Background(), Config{
		Provider: model.ProviderConfig{
			FallbackModel:   fallback,
			GenerateTimeout: 2 * time.Second,
			SynthTimeout:    time.Second,
		},
		Prompt:      model.PromptConfig{ExamName: "KICPA", TutorName: "SolveWise"},
		History:     model.HistoryConfig{MaxItems: 30, MaxTurns: 6},
		HistoryRepo: history,
		ProviderFactory: func(ctx context.Context, apiKey string) (model.Provider, error) {
			if apiKey == "" {
				return nil, errx.InvalidInput("missing Gemini API key")
			}
			return p, nil
		},
		Retriever: r,
	})
	require.NoError(t, err)
	return &harness{provider: p, retriever: r, history: history, runner: runner}
}

func lectureThree() model.RetrievalResult {
	return model.RetrievalResult{Found: true, Passages: []model.Passage{
		{Source: "Lecture 3", Title: "Budget constraint", Content: "The budget line joins the bundles that spend all income."},
	}}
}

func TestSolve_TextGrounded(t *testing.T) {
	p := &fakeProvider{
		models: genModels("models/gemini-2.0-flash", "models/gemini-2.5-pro"),
		generate: func(req model.GenerationRequest) (*model.Generation, error) {
			return &model.Generation{Model: req.Model, Text: answerWithChart}, nil
		},
	}
	r := &fakeRetriever{result: lectureThree()}
	h := newHarness(t, p, r, "models/gemini-1.5-pro")

	out, err := h.runner.Solve(context.Background(), model.SolveInput{APIKey: "k", Query: "What is a budget line?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"What is a budget line?"}, r.queries)
	assert.True(t, strings.HasPrefix(out.Explanation, prompts.GroundedBadge([]string{"Lecture 3"})))
	assert.Contains(t, out.Explanation, "Lecture 3")
	assert.NotContains(t, out.Explanation, "```javascript")
	assert.Equal(t, "var data = [];\nvar layout = {};\nPlotly.newPlot('chart', data, layout, {displayModeBar: false});", out.ChartCode)
	assert.Equal(t, "models/gemini-2.5-pro", out.Model)
	assert.Equal(t, model.ModeDbGrounded, out.Mode)
	assert.NotEmpty(t, out.ConversationID)

	reqs := h.provider.answerRequests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].EnableSearch)
	assert.Empty(t, reqs[0].Image)
	assert.Contains(t, reqs[0].Prompt, "The budget line joins the bundles that spend all income.")

	item, err := h.history.GetItem(context.Background(), model.OwnerKey("k"), out.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.HistoryText, item.Type)
	assert.Equal(t, out.ChartCode, item.ChartCode)
}

func TestSolve_UnreachableBackendFallsBackToWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := &fakeProvider{
		models: genModels("models/gemini-2.5-pro"),
		generate: func(req model.GenerationRequest) (*model.Generation, error) {
			return &model.Generation{Model: req.Model, Text: "answer"}, nil
		},
	}
	h := newHarness(t, p, retrieval.NewClient(url, time.Second), "models/gemini-1.5-pro")

	out, err := h.runner.Solve(context.Background(), model.SolveInput{APIKey: "k", Query: "What is opportunity cost?"})
	require.NoError(t, err)

	assert.Equal(t, prompts.WebSearchBadge()+"answer", out.Explanation)
	assert.Equal(t, model.ModeWebSearch, out.Mode)
	assert.Empty(t, out.ChartCode)
	reqs := h.provider.answerRequests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].EnableSearch)
}

func TestSolve_AllModelsFail(t *testing.T) {
	p := &fakeProvider{
		models: genModels("models/gemini-2.5-pro", "models/gemini-2.0-flash", "models/gemini-1.0-nano"),
		generate: func(req model.GenerationRequest) (*model.Generation, error) {
			return nil, fmt.Errorf("HTTP 500 from %s", req.Model)
		},
	}
	h := newHarness(t, p, &fakeRetriever{result: model.NotFound()}, "models/gemini-1.5-pro")

	out, err := h.runner.Solve(context.Background(), model.SolveInput{APIKey: "k", Query: "q"})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, errx.ErrAllModelsExhausted))
	assert.Contains(t, err.Error(), "models/gemini-1.0-nano")

	var tried []string
	for _, r := range h.provider.answerRequests() {
		tried = append(tried, r.Model)
	}
	assert.Equal(t, []string{"models/gemini-2.5-pro", "models/gemini-2.0-flash", "models/gemini-1.0-nano"}, tried)
}

func TestSolve_ListingFailureUsesFallbackModel(t *testing.T) {
	p := &fakeProvider{
		listErr: errors.New("HTTP 403"),
		generate: func(req model.GenerationRequest) (*model.Generation, error) {
			return &model.Generation{Model: req.Model, Text: "answer"}, nil
		},
	}
	h := newHarness(t, p, &fakeRetriever{result: model.NotFound()}, "models/gemini-1.5-pro")

	out, err := h.runner.Solve(context.Background(), model.SolveInput{APIKey: "k", Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "models/gemini-1.5-pro", out.Model)
}

func TestSolve_NoModelsAvailable(t *testing.T) {
	p := &fakeProvider{listErr: errors.New("HTTP 403")}
	h := newHarness(t, p, &fakeRetriever{result: model.NotFound()}, "")

	_, err := h.runner.Solve(context.Background(), model.SolveInput{APIKey: "k", Query: "q"})
	assert.True(t, errors.Is(err, errx.ErrNoModelsAvailable))
	assert.Empty(t, h.provider.requests)
}

func TestSolve_InvalidInput(t *testing.T) {
	h := newHarness(t, &fakeProvider{}, &fakeRetriever{}, "models/gemini-1.5-pro")

	_, err := h.runner.Solve(context.Background(), model.SolveInput{APIKey: "k", Query: "   "})
	assert.True(t, errors.Is(err, errx.ErrInvalidInput))

	_, err = h.runner.Solve(context.Background(), model.SolveInput{Query: "q"})
	assert.True(t, errors.Is(err, errx.ErrInvalidInput))
}

func photo(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestSolve_ImagePath(t *testing.T) {
	p := &fakeProvider{
		models: genModels("models/gemini-2.5-pro"),
		generate: func(req model.GenerationRequest) (*model.Generation, error) {
			if isSynthesis(req) {
				return &model.Generation{Model: req.Model, Text: "  Microeconomics consumer theory budget line shift  \n"}, nil
			}
			return &model.Generation{Model: req.Model, Text: "answer"}, nil
		},
	}
	r := &fakeRetriever{result: lectureThree()}
	h := newHarness(t, p, r, "models/gemini-1.5-pro")

	out, err := h.runner.Solve(context.Background(), model.SolveInput{APIKey: "k", Image: photo(t, 1600, 800)})
	require.NoError(t, err)

	assert.Equal(t, []string{"Microeconomics consumer theory budget line shift"}, r.queries)
	assert.Equal(t, model.ModeDbGrounded, out.Mode)

	reqs := h.provider.answerRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, imaging.MIMEType, reqs[0].ImageMIME)
	assert.NotEmpty(t, reqs[0].Image)
	assert.Contains(t, reqs[0].Prompt, "Transcribe the question text")

	item, err := h.history.GetItem(context.Background(), model.OwnerKey("k"), out.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.HistoryImage, item.Type)
	assert.NotEmpty(t, item.PreviewImage)
}

func TestSolve_ImageSynthesisFailureSkipsRetrieval(t *testing.T) {
	p := &fakeProvider{
		models: genModels("models/gemini-2.5-pro"),
		generate: func(req model.GenerationRequest) (*model.Generation, error) {
			if isSynthesis(req) {
				return nil, errors.New("HTTP 429")
			}
			return &model.Generation{Model: req.Model, Text: "answer"}, nil
		},
	}
	r := &fakeRetriever{result: lectureThree()}
	h := newHarness(t, p, r, "models/gemini-1.5-pro")

	out, err := h.runner.Solve(context.Background(), model.SolveInput{APIKey: "k", Image: photo(t, 20, 20)})
	require.NoError(t, err)

	assert.Empty(t, r.queries)
	assert.Equal(t, model.ModeWebSearch, out.Mode)
}

func TestSolve_UndecodableImage(t *testing.T) {
	p := &fakeProvider{models: genModels("models/gemini-2.5-pro")}
	h := newHarness(t, p, &fakeRetriever{}, "models/gemini-1.5-pro")

	_, err := h.runner.Solve(context.Background(), model.SolveInput{APIKey: "k", Image: []byte("not an image")})
	assert.True(t, errors.Is(err, errx.ErrImageDecode))
	assert.Empty(t, p.requests)
}

func TestSolve_FollowUpCarriesConversation(t *testing.T) {
	p := &fakeProvider{
		models: genModels("models/gemini-2.5-pro"),
		generate: func(req model.GenerationRequest) (*model.Generation, error) {
			return &model.Generation{Model: req.Model, Text: "first answer"}, nil
		},
	}
	r := &fakeRetriever{result: model.NotFound()}
	h := newHarness(t, p, r, "models/gemini-1.5-pro")
	ctx := context.Background()

	first, err := h.runner.Solve(ctx, model.SolveInput{APIKey: "k", Query: "What is a budget line?"})
	require.NoError(t, err)

	_, err = h.runner.Solve(ctx, model.SolveInput{APIKey: "k", ConversationID: first.ConversationID, Query: "And if prices fall?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"What is a budget line?", "And if prices fall?"}, r.queries)
	reqs := h.provider.answerRequests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Prompt, "[Previous conversation]\nUser: What is a budget line?")
	assert.Contains(t, reqs[1].Prompt, "[Current question]: And if prices fall?")

	item, err := h.history.GetItem(ctx, model.OwnerKey("k"), first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, item.Messages, 4)
}

func TestChart(t *testing.T) {
	p := &fakeProvider{
		models: genModels("models/gemini-2.5-pro", "models/gemini-2.0-flash"),
		generate: func(req model.GenerationRequest) (*model.Generation, error) {
			return &model.Generation{Model: req.Model, Text: "answer"}, nil
		},
		chat: func(name string, msgs []*schema.Message) (*schema.Message, error) {
			if name == "models/gemini-2.5-pro" {
				return nil, errors.New("HTTP 503")
			}
			last := msgs[len(msgs)-1]
			if !strings.Contains(last.Content, "Plotly.js") {
				return nil, errors.New("chart instruction missing")
			}
			return schema.AssistantMessage("```javascript\nPlotly.newPlot('div1', data, layout);\n```", nil), nil
		},
	}
	h := newHarness(t, p, &fakeRetriever{result: model.NotFound()}, "models/gemini-1.5-pro")
	ctx := context.Background()

	solved, err := h.runner.Solve(ctx, model.SolveInput{APIKey: "k", Query: "What is a budget line?"})
	require.NoError(t, err)

	out, err := h.runner.Chart(ctx, model.ChartInput{APIKey: "k", ConversationID: solved.ConversationID})
	require.NoError(t, err)
	assert.Equal(t, "Plotly.newPlot('chart', data, layout);", out.ChartCode)
	assert.Empty(t, out.Explanation)
	assert.Equal(t, "models/gemini-2.0-flash", out.Model)
	assert.Equal(t, []string{"models/gemini-2.5-pro", "models/gemini-2.0-flash"}, p.chats)

	item, err := h.history.GetItem(ctx, model.OwnerKey("k"), solved.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, out.ChartCode, item.ChartCode)
	assert.Len(t, item.Messages, 3)
}

func TestChart_UnknownConversation(t *testing.T) {
	h := newHarness(t, &fakeProvider{}, &fakeRetriever{}, "models/gemini-1.5-pro")

	_, err := h.runner.Chart(context.Background(), model.ChartInput{APIKey: "k", ConversationID: "missing"})
	assert.True(t, errors.Is(err, errx.ErrNotFound))
}

func TestCurrentModel(t *testing.T) {
	p := &fakeProvider{models: genModels("models/gemini-2.0-flash", "models/gemini-2.5-pro")}
	h := newHarness(t, p, &fakeRetriever{}, "models/gemini-1.5-pro")

	name, err := h.runner.CurrentModel(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", name)

	_, err = h.runner.CurrentModel(context.Background(), "")
	assert.True(t, errors.Is(err, errx.ErrInvalidInput))
}

func TestHistoryIsScopedToAPIKey(t *testing.T) {
	p := &fakeProvider{
		models: genModels("models/gemini-2.5-pro"),
		generate: func(req model.GenerationRequest) (*model.Generation, error) {
			return &model.Generation{Model: req.Model, Text: "answer"}, nil
		},
		chat: func(name string, msgs []*schema.Message) (*schema.Message, error) {
			return schema.AssistantMessage("```javascript\nPlotly.newPlot('div1', data, layout);\n```", nil), nil
		},
	}
	h := newHarness(t, p, &fakeRetriever{result: model.NotFound()}, "models/gemini-1.5-pro")
	ctx := context.Background()

	first, err := h.runner.Solve(ctx, model.SolveInput{APIKey: "alice", Query: "What is a budget line?"})
	require.NoError(t, err)

	_, err = h.runner.Solve(ctx, model.SolveInput{APIKey: "bob", ConversationID: first.ConversationID, Query: "And if prices fall?"})
	require.NoError(t, err)
	reqs := h.provider.answerRequests()
	require.Len(t, reqs, 2)
	assert.NotContains(t, reqs[1].Prompt, "[Previous conversation]")

	_, err = h.runner.Chart(ctx, model.ChartInput{APIKey: "mallory", ConversationID: first.ConversationID})
	assert.ErrorIs(t, err, errx.ErrNotFound)

	item, err := h.history.GetItem(ctx, model.OwnerKey("alice"), first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, item.Messages, 2)
}

func TestBuildSolveGraph(t *testing.T) {
	ctx := context.Background()

	_, err := BuildSolveGraph(ctx, nil)
	assert.Error(t, err)
	_, err = BuildSolveGraph(ctx, &nodes.Deps{})
	assert.Error(t, err)

	d := NewDeps(Config{
		ProviderFactory: func(ctx context.Context, apiKey string) (model.Provider, error) { return &fakeProvider{}, nil },
		Retriever:       &fakeRetriever{},
		HistoryRepo:     repo.NewMemoryHistoryRepository(30),
	})
	r, err := BuildSolveGraph(ctx, d)
	require.NoError(t, err)
	assert.NotNil(t, r)
}
