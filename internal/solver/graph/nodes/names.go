package nodes

// Solve graph nodes.
const (
	NodeInputConverter   = "InputConverter"
	NodeModelDirectory   = "ModelDirectory"
	NodeImageNormalizer  = "ImageNormalizer"
	NodeQuerySynthesizer = "QuerySynthesizer"
	NodeTextQuery        = "TextQuery"
	NodeRetriever        = "Retriever"
	NodePromptAssembler  = "PromptAssembler"
	NodeAnswerGenerator  = "AnswerGenerator"
	NodePostProcessor    = "PostProcessor"
)

// Chart chain nodes.
const (
	NodeChartConverter     = "ChartConverter"
	NodeChartGenerator     = "ChartGenerator"
	NodeChartPostProcessor = "ChartPostProcessor"
)
