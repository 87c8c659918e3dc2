package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/SolveWise/server/internal/solver/graph/conversations"
	"github.com/SolveWise/server/internal/solver/graph/nodes"
	"github.com/SolveWise/server/internal/solver/graph/observers"
	"github.com/SolveWise/server/internal/solver/graph/prompts"
	"github.com/SolveWise/server/internal/solver/imaging"
	"github.com/SolveWise/server/internal/solver/model"
	"github.com/SolveWise/server/internal/solver/provider"
	"github.com/SolveWise/server/internal/solver/retrieval"
	logx "github.com/SolveWise/server/pkg/logger"
)

const maxRunSteps = 20

// Runner executes the compiled solve graph and chart chain.
type Runner interface {
	Solve(ctx context.Context, in model.SolveInput) (*model.AnswerResult, error)
	Chart(ctx context.Context, in model.ChartInput) (*model.AnswerResult, error)
	CurrentModel(ctx context.Context, apiKey string) (string, error)
}

// Config holds everything needed to compose the solver end-to-end.
// ProviderFactory and Retriever default to the Gemini provider and the
// knowledge backend client when nil.
type Config struct {
	Provider    model.ProviderConfig
	Image       model.ImageConfig
	Knowledge   model.KnowledgeConfig
	Prompt      model.PromptConfig
	History     model.HistoryConfig
	HistoryRepo model.HistoryRepository

	ProviderFactory model.ProviderFactory
	Retriever       retrieval.Retriever
}

type graphRunner struct {
	deps  *nodes.Deps
	solve compose.Runnable[model.SolveInput, *model.AnswerResult]
	chart compose.Runnable[model.ChartInput, *model.AnswerResult]
}

func (r *graphRunner) Solve(ctx context.Context, in model.SolveInput) (*model.AnswerResult, error) {
	return r.solve.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
}

func (r *graphRunner) Chart(ctx context.Context, in model.ChartInput) (*model.AnswerResult, error) {
	return r.chart.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
}

// CurrentModel reports the model a solve call would try first.
func (r *graphRunner) CurrentModel(ctx context.Context, apiKey string) (string, error) {
	p, err := r.deps.ProviderFactory(ctx, apiKey)
	if err != nil {
		return "", err
	}
	return r.deps.Directory.CurrentModel(ctx, p), nil
}

// NewDeps resolves defaults in cfg into the shared node collaborators.
func NewDeps(cfg Config) *nodes.Deps {
	factory := cfg.ProviderFactory
	if factory == nil {
		factory = provider.NewFactory(cfg.Provider)
	}
	retriever := cfg.Retriever
	if retriever == nil {
		retriever = retrieval.NewClient(cfg.Knowledge.URL, cfg.Knowledge.Timeout)
	}

	return &nodes.Deps{
		ProviderFactory: factory,
		Directory:       provider.NewDirectory(cfg.Provider.Family, cfg.Provider.FallbackModel),
		Normalizer:      imaging.NewNormalizer(cfg.Image.MaxSide, cfg.Image.Quality, cfg.Image.MaxPixels),
		Retriever:       retriever,
		Assembler:       prompts.NewAssembler(cfg.Prompt),
		Messages:        conversations.NewMessagesManager(cfg.HistoryRepo, cfg.History),
		PromptConfig:    cfg.Prompt,
		GenerateTimeout: cfg.Provider.GenerateTimeout,
		SynthTimeout:    cfg.Provider.SynthTimeout,
	}
}

// BuildSolver compiles the solve graph and the chart chain and returns a Runner.
func BuildSolver(ctx context.Context, cfg Config) (Runner, error) {
	deps := NewDeps(cfg)

	solve, err := BuildSolveGraph(ctx, deps)
	if err != nil {
		return nil, err
	}
	chart, err := BuildChartChain(ctx, deps)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Solver built successfully")
	return &graphRunner{deps: deps, solve: solve, chart: chart}, nil
}

// BuildSolveGraph wires input handling, retrieval, prompt assembly and the
// model fallback loop into one graph with per-invocation state.
func BuildSolveGraph(ctx context.Context, d *nodes.Deps) (compose.Runnable[model.SolveInput, *model.AnswerResult], error) {
	if d == nil {
		return nil, fmt.Errorf("graph deps are nil")
	}
	if d.ProviderFactory == nil || d.Normalizer == nil || d.Assembler == nil || d.Messages == nil {
		return nil, fmt.Errorf("graph deps are not properly initialized")
	}

	g := compose.NewGraph[model.SolveInput, *model.AnswerResult](
		compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
			return &model.AppState{}
		}),
	)

	lambdas := []struct {
		key  string
		node *compose.Lambda
		opts []compose.GraphAddNodeOpt
	}{
		{key: nodes.NodeInputConverter, node: nodes.NewInputConverterNode(d)},
		{key: nodes.NodeModelDirectory, node: nodes.NewModelDirectoryNode(d)},
		{
			key:  nodes.NodeImageNormalizer,
			node: nodes.NewImageNormalizerNode(d),
			opts: []compose.GraphAddNodeOpt{compose.WithStatePostHandler(nodes.NewImageNormalizerPostHandler())},
		},
		{key: nodes.NodeQuerySynthesizer, node: nodes.NewQuerySynthesizerNode(d)},
		{key: nodes.NodeTextQuery, node: nodes.NewTextQueryNode()},
		{key: nodes.NodeRetriever, node: nodes.NewRetrieverNode(d)},
		{
			key:  nodes.NodePromptAssembler,
			node: nodes.NewPromptAssemblerNode(d),
			opts: []compose.GraphAddNodeOpt{compose.WithStatePostHandler(nodes.NewPromptAssemblerPostHandler())},
		},
		{
			key:  nodes.NodeAnswerGenerator,
			node: nodes.NewAnswerGeneratorNode(d),
			opts: []compose.GraphAddNodeOpt{compose.WithStatePostHandler(nodes.NewAnswerGeneratorPostHandler())},
		},
		{key: nodes.NodePostProcessor, node: nodes.NewPostProcessorNode(d)},
	}
	for _, l := range lambdas {
		if err := g.AddLambdaNode(l.key, l.node, l.opts...); err != nil {
			logx.Error().Err(err).Str("node", l.key).Msg("Error adding node")
			return nil, fmt.Errorf("error adding node %s: %w", l.key, err)
		}
	}

	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeModelDirectory},
		{nodes.NodeImageNormalizer, nodes.NodeQuerySynthesizer},
		{nodes.NodeQuerySynthesizer, nodes.NodeRetriever},
		{nodes.NodeTextQuery, nodes.NodeRetriever},
		{nodes.NodeRetriever, nodes.NodePromptAssembler},
		{nodes.NodePromptAssembler, nodes.NodeAnswerGenerator},
		{nodes.NodeAnswerGenerator, nodes.NodePostProcessor},
		{nodes.NodePostProcessor, compose.END},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}

	inputBranch := compose.NewGraphBranch(
		nodes.NewInputTypeCondition(),
		map[string]bool{
			nodes.NodeImageNormalizer: true,
			nodes.NodeTextQuery:       true,
		},
	)
	if err := g.AddBranch(nodes.NodeModelDirectory, inputBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding input type branch")
		return nil, fmt.Errorf("error adding input type branch: %w", err)
	}

	runnable, err := g.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling solve graph")
		return nil, fmt.Errorf("error compiling solve graph: %w", err)
	}

	logx.Debug().Msg("Solve graph compiled successfully")
	return runnable, nil
}

// BuildChartChain compiles the follow-up chart request pipeline.
func BuildChartChain(ctx context.Context, d *nodes.Deps) (compose.Runnable[model.ChartInput, *model.AnswerResult], error) {
	if d == nil || d.Messages == nil || d.ProviderFactory == nil {
		return nil, fmt.Errorf("chart deps are not properly initialized")
	}

	chain := compose.NewChain[model.ChartInput, *model.AnswerResult]().
		AppendLambda(nodes.NewChartConverterNode(d), compose.WithNodeName(nodes.NodeChartConverter)).
		AppendLambda(nodes.NewChartGeneratorNode(d), compose.WithNodeName(nodes.NodeChartGenerator)).
		AppendLambda(nodes.NewChartPostProcessorNode(d), compose.WithNodeName(nodes.NodeChartPostProcessor))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling chart chain")
		return nil, fmt.Errorf("error compiling chart chain: %w", err)
	}
	return runnable, nil
}
