package provider

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
)

const (
	// ActionGenerateContent is the capability every ranked model must list.
	ActionGenerateContent = "generateContent"

	DefaultFamily   = "gemini"
	DefaultFallback = "models/gemini-1.5-pro"

	// NoModelFound is shown by CurrentModel when nothing can be ranked.
	NoModelFound = "No Model Found"

	floatingAlias = "latest"
)

// Tier scores, highest first.
const (
	ScoreFlagship = 200
	ScorePro      = 100
	ScoreFlash    = 50
	ScoreOther    = 10
)

var (
	digitRe   = regexp.MustCompile(`\d`)
	versionRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ModelLister is the part of a Provider the directory needs.
type ModelLister interface {
	ListModels(ctx context.Context) ([]model.ModelInfo, error)
}

// Directory filters and ranks the provider's models.
type Directory struct {
	Family   string
	Fallback string
}

func NewDirectory(family, fallback string) Directory {
	if family == "" {
		family = DefaultFamily
	}
	return Directory{Family: family, Fallback: fallback}
}

// ListRankedModels returns model identifiers best first. Listing errors and
// listings with no usable model degrade to the single fallback identifier;
// the result is only empty when no fallback is configured.
func (d Directory) ListRankedModels(ctx context.Context, lister ModelLister) []string {
	infos, err := lister.ListModels(ctx)
	if err != nil {
		logx.Warn().Err(err).Str("fallback", d.Fallback).Msg("model listing failed, using fallback model")
		return d.fallbackList()
	}

	descs := make([]model.ModelDescriptor, 0, len(infos))
	for _, info := range infos {
		if desc, ok := Describe(info, d.Family); ok {
			descs = append(descs, desc)
		}
	}
	if len(descs) == 0 {
		logx.Warn().Int("listed", len(infos)).Str("fallback", d.Fallback).Msg("no capable models listed, using fallback model")
		return d.fallbackList()
	}

	ranked := Rank(descs)
	logx.Debug().Strs("models", ranked).Msg("ranked models")
	return ranked
}

// CurrentModel returns the top-ranked identifier without its "models/" prefix.
func (d Directory) CurrentModel(ctx context.Context, lister ModelLister) string {
	ranked := d.ListRankedModels(ctx, lister)
	if len(ranked) == 0 {
		return NoModelFound
	}
	return strings.TrimPrefix(ranked[0], "models/")
}

func (d Directory) fallbackList() []string {
	if d.Fallback == "" {
		return []string{}
	}
	return []string{d.Fallback}
}

// Describe applies the capability filter. A model is kept only if it
// supports generateContent, names the family, carries a version digit and is
// not a floating alias.
func Describe(info model.ModelInfo, family string) (model.ModelDescriptor, bool) {
	name := strings.ToLower(info.Name)
	desc := model.ModelDescriptor{
		Name:               info.Name,
		SupportsGeneration: supports(info.SupportedActions, ActionGenerateContent),
	}
	if !desc.SupportsGeneration ||
		!strings.Contains(name, strings.ToLower(family)) ||
		!digitRe.MatchString(name) ||
		strings.Contains(name, floatingAlias) {
		return desc, false
	}
	desc.Score = Score(info.Name)
	desc.Version = ParseVersion(info.Name)
	return desc, true
}

func supports(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// Score assigns the tier of a model name.
func Score(name string) int {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "3.0") || strings.Contains(n, "ultra"):
		return ScoreFlagship
	case strings.Contains(n, "pro"):
		return ScorePro
	case strings.Contains(n, "flash"):
		return ScoreFlash
	default:
		return ScoreOther
	}
}

// ParseVersion returns the first "N" or "N.N" token of the name, or 0.
func ParseVersion(name string) float64 {
	tok := versionRe.FindString(strings.TrimPrefix(strings.ToLower(name), "models/"))
	if tok == "" {
		return 0
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0
	}
	return v
}

// Rank orders descriptors by score, then version, then reverse lexicographic
// name, and returns the names.
func Rank(descs []model.ModelDescriptor) []string {
	sorted := append([]model.ModelDescriptor(nil), descs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Version != b.Version {
			return a.Version > b.Version
		}
		return a.Name > b.Name
	})

	names := make([]string, len(sorted))
	for i, d := range sorted {
		names[i] = d.Name
	}
	return names
}
