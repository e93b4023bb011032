// ABOUTME: MCP tool handler for rule-book reloads
// ABOUTME: Re-reads rules.json and reports the active thresholds
package handlers

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/tradedesk/rules"
)

type RuleHandlers struct {
	store *rules.Store
}

func NewRuleHandlers(store *rules.Store) *RuleHandlers {
	return &RuleHandlers{store: store}
}

type ReloadRulesInput struct{}

type ReloadRulesOutput struct {
	AIEnabled            bool              `json:"ai_enabled"`
	Path                 string            `json:"path"`
	ScoreRules           int               `json:"score_rules"`
	Thresholds           []rules.Threshold `json:"thresholds"`
	TrendAnalysisEnabled bool              `json:"trend_analysis_enabled"`
}

// ReloadRules swaps in the rule book on disk. An invalid file leaves the
// previous rules active and is returned as a config error.
func (h *RuleHandlers) ReloadRules(_ context.Context, _ *mcp.CallToolRequest, _ ReloadRulesInput) (*mcp.CallToolResult, ReloadRulesOutput, error) {
	if err := h.store.Reload(); err != nil {
		return nil, ReloadRulesOutput{}, err
	}
	rb := h.store.Current()
	return nil, ReloadRulesOutput{
		AIEnabled:            rb.AIEnabled,
		Path:                 h.store.Path(),
		ScoreRules:           len(rb.ScoreRules),
		Thresholds:           rb.ClassificationThresholds,
		TrendAnalysisEnabled: rb.TrendAnalysisEnabled,
	}, nil
}
