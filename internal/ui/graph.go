package ui

import (
	"fmt"
	"strings"

	"github.com/nozo-moto/tcpcount/pkg/types"
)

const graphLeftMargin = 7

// renderGraph draws the active-connection samples as a bar chart filling
// width x height cells, axis labels included. The newest sample sits at the
// right edge; samples that do not fit are cut from the left.
func renderGraph(samples []types.HistorySample, width, height int) string {
	plotW := width - graphLeftMargin - 1
	plotH := height - 1
	if plotW < 1 || plotH < 2 {
		return ""
	}
	if len(samples) > plotW {
		samples = samples[len(samples)-plotW:]
	}

	max := 1
	for _, s := range samples {
		if s.Active > max {
			max = s.Active
		}
	}

	grid := make([][]rune, plotH)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", plotW))
	}
	start := plotW - len(samples)
	for i, s := range samples {
		// ceil so any non-zero sample shows at least one cell
		h := (s.Active*plotH + max - 1) / max
		for r := 0; r < h; r++ {
			grid[plotH-1-r][start+i] = '█'
		}
	}

	labels := map[int]int{0: max, plotH - 1: 0}
	if plotH > 2 {
		labels[(plotH-1)/2] = max - max*((plotH-1)/2)/(plotH-1)
	}

	var b strings.Builder
	for row := 0; row < plotH; row++ {
		label := strings.Repeat(" ", graphLeftMargin)
		if v, ok := labels[row]; ok {
			label = fmt.Sprintf("%*d ", graphLeftMargin-1, v)
		}
		b.WriteString(label)
		b.WriteString("│[green]")
		b.WriteString(string(grid[row]))
		b.WriteString("[-]\n")
	}
	b.WriteString(strings.Repeat(" ", graphLeftMargin))
	b.WriteString("└")
	b.WriteString(strings.Repeat("─", plotW))
	return b.String()
}
