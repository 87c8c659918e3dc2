package parsers

import (
	"regexp"
	"strings"
)

var (
	chartBlockRe = regexp.MustCompile("(?s)```(?:javascript|js)\\b[ \t]*\\r?\\n?(.*?)```")
	newPlotRe    = regexp.MustCompile(`Plotly\.newPlot\(\s*['"](.*?)['"]`)
)

// ParsedAnswer is a raw model response split into prose and chart code.
type ParsedAnswer struct {
	Explanation string
	ChartCode   string
}

// SplitChart extracts the first javascript code block as chart code, points
// its Plotly.newPlot call at containerID and removes the block from the
// explanation. Responses without such a block are returned unchanged.
func SplitChart(raw, containerID string) ParsedAnswer {
	loc := chartBlockRe.FindStringSubmatchIndex(raw)
	if loc == nil {
		return ParsedAnswer{Explanation: raw}
	}

	block := raw[loc[0]:loc[1]]
	code := strings.TrimSpace(raw[loc[2]:loc[3]])

	return ParsedAnswer{
		Explanation: strings.Replace(raw, block, "", 1),
		ChartCode:   RetargetChart(code, containerID),
	}
}

// RetargetChart rewrites the first Plotly.newPlot container argument.
func RetargetChart(code, containerID string) string {
	replaced := false
	return newPlotRe.ReplaceAllStringFunc(code, func(m string) string {
		if replaced {
			return m
		}
		replaced = true
		return "Plotly.newPlot('" + containerID + "'"
	})
}
