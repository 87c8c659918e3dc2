package model

import "time"

// ================ Config ================

// ProviderConfig selects the Gemini endpoint and the model family to rank.
type ProviderConfig struct {
	APIKey           string        `envconfig:"GEMINI_API_KEY"`
	BaseURL          string        `envconfig:"GEMINI_BASE_URL"`
	Family           string        `envconfig:"MODEL_FAMILY" default:"gemini"`
	FallbackModel    string        `envconfig:"MODEL_FALLBACK" default:"models/gemini-1.5-pro"`
	GenerateTimeout  time.Duration `envconfig:"GENERATE_TIMEOUT" default:"60s"`
	SynthTimeout     time.Duration `envconfig:"SYNTH_TIMEOUT" default:"30s"`
	ChartMaxTokens   int           `envconfig:"CHART_MAX_TOKENS" default:"4096"`
	ChartTemperature float32       `envconfig:"CHART_TEMPERATURE" default:"0.2"`
}

type ImageConfig struct {
	MaxSide   int `envconfig:"IMAGE_MAX_SIDE" default:"800"`
	Quality   int `envconfig:"IMAGE_QUALITY" default:"70"`
	MaxPixels int `envconfig:"IMAGE_MAX_PIXELS" default:"24000000"`
}

type KnowledgeConfig struct {
	URL     string        `envconfig:"KNOWLEDGE_URL" default:"https://solvewise-server.onrender.com/api/search"`
	Timeout time.Duration `envconfig:"KNOWLEDGE_TIMEOUT" default:"10s"`
}

type PromptConfig struct {
	ExamName  string `envconfig:"PROMPT_EXAM_NAME" default:"KICPA"`
	TutorName string `envconfig:"PROMPT_TUTOR_NAME" default:"SolveWise"`
}

type HistoryConfig struct {
	MaxItems int           `envconfig:"HISTORY_MAX_ITEMS" default:"30"`
	TTL      time.Duration `envconfig:"HISTORY_TTL" default:"0s"`
	MaxTurns int           `envconfig:"HISTORY_MAX_TURNS" default:"6"`
}
