package services

import (
	"fmt"
	"strings"

	"github.com/crossmindhq/crossmind-backend/internal/types"
)

const analysisKickoffPrompt = "Run a health analysis of this framework now. " +
	"Survey the zones first, dig into weak spots, record suggestions for concrete issues, " +
	"and finish by writing the dimension scores."

// buildAnalysisSystemPrompt renders the session instructions with the
// framework's zones and scored dimensions inlined, so the model never
// has to guess valid keys.
func buildAnalysisSystemPrompt(pf *types.ProjectFramework, tables *WeightTables) string {
	var b strings.Builder
	b.WriteString("You are a product-strategy analyst reviewing an ideation canvas organized by the \"")
	b.WriteString(pf.Name)
	b.WriteString("\" framework. Your job is to assess how healthy the project's thinking is in each zone, ")
	b.WriteString("record actionable suggestions for gaps you find, and score the framework's health dimensions.\n\n")

	b.WriteString("Zones of this framework:\n")
	for _, z := range pf.Zones {
		if z.Description != "" {
			fmt.Fprintf(&b, "- %s (%s): %s\n", z.Name, z.ZoneKey, z.Description)
		} else {
			fmt.Fprintf(&b, "- %s (%s)\n", z.Name, z.ZoneKey)
		}
	}

	if tables != nil {
		if table, ok := tables.Frameworks[pf.FrameworkKey]; ok {
			b.WriteString("\nScored dimensions and their weights:\n")
			for _, dim := range scoredDimensions(pf.FrameworkKey, tables) {
				fmt.Fprintf(&b, "- %s (weight %.3g)\n", dim, table[dim])
			}
		}
	}

	b.WriteString(`
Working method:
1. Call viewFrameworkZones once to get the layout. It is cheap.
2. Call viewNode only for nodes that look thin, stale or contradictory. It is expensive; be selective.
3. For each concrete issue, call createSuggestion once. Prefer specific, actionable suggestions over vague advice. Use add-tag or refine-content with a node_id when the fix targets one node; use add-node when a zone is missing content entirely; use health-issue for problems the user must judge themselves.
4. When you have seen enough, call updateFrameworkHealth exactly once with a 0-100 score and a one-sentence summary per dimension. Score what exists today, not potential.
5. After the health update, write a short closing summary for the user and stop.

Rules:
- Empty zones are findings, not errors. An empty zone scores low and deserves an add-node suggestion.
- A tool result of {"error": ...} means that call failed; adjust and continue, do not give up.
- Do not invent node ids. Only use ids returned by the tools.
- Keep assistant messages brief while working; the user sees them streaming.`)

	return b.String()
}
