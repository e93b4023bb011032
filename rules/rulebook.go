// ABOUTME: RuleBook value holding score rules, classification thresholds and lexicons
// ABOUTME: Provides band classification, message-type effects and phrase matching
package rules

import (
	"strings"
)

// RuleBook is the validated configuration used by one pass of the intake
// pipeline. Values handed out by Store are shared and must not be mutated;
// use Clone to derive an edited copy.
//
// Fields are declared in JSON key order so that encoding is byte-stable.
type RuleBook struct {
	AIEnabled                bool                 `json:"ai_enabled"`
	ClassificationThresholds []Threshold          `json:"classification_thresholds"`
	Lexicons                 Lexicons             `json:"lexicons"`
	ScoreRules               map[string]ScoreRule `json:"score_rules"`
	TrendAnalysisEnabled     bool                 `json:"trend_analysis_enabled"`
	TrendWindow              int                  `json:"trend_window"`
}

type Threshold struct {
	Color    string `json:"color"`
	Icon     string `json:"icon"`
	Label    string `json:"label"`
	MinScore int    `json:"min_score"`
}

type ScoreRule struct {
	Description string `json:"description"`
	Effect      int    `json:"effect"`
	Enabled     bool   `json:"enabled"`
}

// Lexicons are phrase lists matched as case-insensitive substrings.
type Lexicons struct {
	Categories            map[string][]string `json:"categories"`
	Courtesy              []string            `json:"courtesy"`
	HighPriority          []string            `json:"high_priority"`
	Interest              []string            `json:"interest"`
	MediumPriority        []string            `json:"medium_priority"`
	Negative              []string            `json:"negative"`
	Positive              []string            `json:"positive"`
	PurchaseIntent        []string            `json:"purchase_intent"`
	RelevanceRequestTerms []string            `json:"relevance_request_terms"`
	RelevanceWhitelist    []string            `json:"relevance_whitelist"`
	SpamBlacklist         []string            `json:"spam_blacklist"`
	Trade                 []string            `json:"trade"`
}

// Classify returns the threshold entry for score: the entry with the highest
// min_score not above score. When two entries share a min_score the one that
// appears later in the table wins. A score below every entry gets the lowest.
func (rb *RuleBook) Classify(score int) Threshold {
	i := rb.bandIndex(score)
	if i < 0 {
		return Threshold{}
	}
	return rb.ClassificationThresholds[i]
}

// Rank is the position of score's band when bands are ordered by ascending
// min_score. It never decreases as score grows.
func (rb *RuleBook) Rank(score int) int {
	i := rb.bandIndex(score)
	if i < 0 {
		return 0
	}
	chosen := rb.ClassificationThresholds[i].MinScore
	rank := 0
	for _, t := range rb.ClassificationThresholds {
		if t.MinScore < chosen {
			rank++
		}
	}
	return rank
}

func (rb *RuleBook) bandIndex(score int) int {
	best, lowest := -1, -1
	for i, t := range rb.ClassificationThresholds {
		if t.MinScore <= score && (best < 0 || t.MinScore >= rb.ClassificationThresholds[best].MinScore) {
			best = i
		}
		if lowest < 0 || t.MinScore <= rb.ClassificationThresholds[lowest].MinScore {
			lowest = i
		}
	}
	if best < 0 {
		return lowest
	}
	return best
}

// EffectOf returns the score effect of messageType, or 0 when the rule is
// disabled or unknown.
func (rb *RuleBook) EffectOf(messageType string) int {
	rule, ok := rb.ScoreRules[messageType]
	if !ok || !rule.Enabled {
		return 0
	}
	return rule.Effect
}

// Clone returns a deep copy that may be edited freely.
func (rb *RuleBook) Clone() *RuleBook {
	out := *rb
	out.ClassificationThresholds = append([]Threshold(nil), rb.ClassificationThresholds...)
	out.ScoreRules = make(map[string]ScoreRule, len(rb.ScoreRules))
	for k, v := range rb.ScoreRules {
		out.ScoreRules[k] = v
	}

	lx := rb.Lexicons
	out.Lexicons = Lexicons{
		Courtesy:              cloneList(lx.Courtesy),
		HighPriority:          cloneList(lx.HighPriority),
		Interest:              cloneList(lx.Interest),
		MediumPriority:        cloneList(lx.MediumPriority),
		Negative:              cloneList(lx.Negative),
		Positive:              cloneList(lx.Positive),
		PurchaseIntent:        cloneList(lx.PurchaseIntent),
		RelevanceRequestTerms: cloneList(lx.RelevanceRequestTerms),
		RelevanceWhitelist:    cloneList(lx.RelevanceWhitelist),
		SpamBlacklist:         cloneList(lx.SpamBlacklist),
		Trade:                 cloneList(lx.Trade),
		Categories:            make(map[string][]string, len(lx.Categories)),
	}
	for k, v := range lx.Categories {
		out.Lexicons.Categories[k] = cloneList(v)
	}
	return &out
}

func cloneList(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

// Matches returns the phrases found in text. text must already be lowercased;
// phrases are compared lowercased. Each phrase counts once.
func Matches(text string, phrases []string) []string {
	var hits []string
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(text, p) {
			hits = append(hits, p)
		}
	}
	return hits
}

// Count is len(Matches(text, phrases)) without the allocation.
func Count(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(text, p) {
			n++
		}
	}
	return n
}
