// ABOUTME: Relevance and intent classifier for inbound business correspondence
// ABOUTME: Pure keyword rules over subject and body; no I/O and no shared state
package relevance

import (
	"strings"

	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/rules"
)

// Reasons reported by Classify.
const (
	ReasonSpam            = "marketing/promotional"
	ReasonProductRequest  = "product + explicit request"
	ReasonProductInterest = "product + interest"
	ReasonProductTrade    = "product + trade"
	ReasonStrongRequest   = "strong request"
	ReasonMultipleSignals = "multiple business signals"
	ReasonNoSignal        = "no business signal"

	// ReasonKnownClient is set by the intake pipeline, not by Classify, when
	// the sender is already a client.
	ReasonKnownClient = "reply from known client"
)

const (
	strongRequestScore = 15
	spamSignalFloor    = 5
	minCategoryHits    = 2
)

// intentWeights is ordered by tie-break priority.
var intentWeights = []struct {
	category string
	tag      string
	weight   int
}{
	{rules.CategoryPrice, models.IntentPrice, 15},
	{rules.CategorySample, models.IntentSample, 25},
	{rules.CategorySpecs, models.IntentSpecs, 10},
	{rules.CategoryMOQ, models.IntentMOQ, 10},
}

// categoryOrder fixes the order categories are reported in.
var categoryOrder = []string{
	rules.CategoryPrice, rules.CategorySample, rules.CategorySpecs, rules.CategoryMOQ,
	rules.CategoryQuantity, rules.CategoryExport, rules.CategoryProduct,
	rules.CategoryInquiry, rules.CategoryBusiness,
}

type Result struct {
	Keep        bool     `json:"keep"`
	Reason      string   `json:"reason"`
	Intents     []string `json:"intents"`
	IntentScore int      `json:"intent_score"`
	Categories  []string `json:"categories,omitempty"`
}

// HasRequest reports whether any intent is at the request tier.
func (r Result) HasRequest() bool {
	for _, tag := range r.Intents {
		if models.IsRequestTier(tag) {
			return true
		}
	}
	return false
}

// Classify decides whether a message is worth recording and tags its intents.
// HTML bodies are matched as plain text.
func Classify(subject, body string, rb *rules.RuleBook) Result {
	text := normalize(subject, body)
	lx := &rb.Lexicons

	productHits := rules.Count(text, lx.RelevanceWhitelist)
	requestHits := rules.Count(text, lx.RelevanceRequestTerms)
	categories := categoryHits(text, lx, productHits > 0)
	intents, intentScore := detect(text, lx)

	res := Result{Intents: intents, IntentScore: intentScore, Categories: categories}

	// A lone specs or MOQ term is not enough to outweigh promotional wording.
	strongRequest := intentScore >= strongRequestScore

	signal := productHits*3 + requestHits*2 + len(categories)
	if rules.Count(text, lx.SpamBlacklist) > 0 && productHits == 0 && !strongRequest && signal < spamSignalFloor {
		res.Reason = ReasonSpam
		return res
	}

	product := productHits > 0
	switch {
	case product && requestHits > 0:
		res.Keep, res.Reason = true, ReasonProductRequest
	case product && rules.Count(text, lx.Interest) > 0:
		res.Keep, res.Reason = true, ReasonProductInterest
	case product && rules.Count(text, lx.Trade) > 0:
		res.Keep, res.Reason = true, ReasonProductTrade
	case intentScore >= strongRequestScore:
		res.Keep, res.Reason = true, ReasonStrongRequest
	case len(categories) >= minCategoryHits:
		res.Keep, res.Reason = true, ReasonMultipleSignals
	default:
		res.Reason = ReasonNoSignal
	}
	return res
}

// DetectRequestType returns the intent tags hit and their summed weight.
// With no hit it returns General Inquiry and 0.
func DetectRequestType(subject, body string, rb *rules.RuleBook) ([]string, int) {
	return detect(normalize(subject, body), &rb.Lexicons)
}

// PrimaryIntent picks the heaviest request-tier tag; ties go to price, then
// sample, specs and MOQ. It returns "" when no tag is at the request tier.
func PrimaryIntent(tags []string) string {
	best, bestWeight := "", -1
	for _, w := range intentWeights {
		for _, tag := range tags {
			if tag == w.tag && w.weight > bestWeight {
				best, bestWeight = w.tag, w.weight
			}
		}
	}
	return best
}

func detect(text string, lx *rules.Lexicons) ([]string, int) {
	var tags []string
	score := 0
	for _, w := range intentWeights {
		if rules.Count(text, lx.Categories[w.category]) > 0 {
			tags = append(tags, w.tag)
			score += w.weight
		}
	}
	if len(tags) == 0 {
		return []string{models.IntentGeneralInquiry}, 0
	}
	return tags, score
}

func categoryHits(text string, lx *rules.Lexicons, product bool) []string {
	var hits []string
	for _, name := range categoryOrder {
		if name == rules.CategoryProduct {
			if product {
				hits = append(hits, name)
			}
			continue
		}
		if rules.Count(text, lx.Categories[name]) > 0 {
			hits = append(hits, name)
		}
	}
	return hits
}

func normalize(subject, body string) string {
	return strings.ToLower(subject + "\n" + body)
}
