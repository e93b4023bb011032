// ABOUTME: Reply analyzer turning the free text of a client reply into a score delta
// ABOUTME: Also reports sentiment and purchase intent; pure and safe for concurrent use
package reply

import (
	"regexp"
	"strings"

	"github.com/harperreed/tradedesk/rules"
)

const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

const (
	negativeVeto = -25
	minDelta     = -30
	maxDelta     = 50

	highPriorityStep, highPriorityCap = 20, 40
	positiveStep, positiveCap         = 10, 30
	mediumStep, mediumCap             = 5, 10
	questionStep, questionCap         = 3, 9
	courtesyStep                      = 5
	numberBonus                       = 10
	lengthBonus                       = 5
	longBody, veryLongBody            = 50, 100
)

var digitRun = regexp.MustCompile(`\p{Nd}+`)

type Analysis struct {
	ScoreDelta          int     `json:"score_delta"`
	Sentiment           string  `json:"sentiment"`
	SentimentConfidence float64 `json:"sentiment_confidence"`
	PurchaseIntent      bool    `json:"purchase_intent"`
	PurchaseConfidence  float64 `json:"purchase_confidence"`
}

// Disabled is the analysis used when reply analysis is switched off.
func Disabled() Analysis {
	return Analysis{Sentiment: Neutral, SentimentConfidence: 0.5}
}

// Analyze scores body against the rule book lexicons.
func Analyze(body string, rb *rules.RuleBook) Analysis {
	text := strings.ToLower(body)
	lx := &rb.Lexicons

	a := Analysis{ScoreDelta: scoreDelta(text, lx)}
	a.Sentiment, a.SentimentConfidence = sentiment(text, lx)
	a.PurchaseIntent, a.PurchaseConfidence = purchaseIntent(text, lx)
	return a
}

func scoreDelta(text string, lx *rules.Lexicons) int {
	if rules.Count(text, lx.Negative) > 0 {
		return negativeVeto
	}

	delta := 0
	delta += capped(rules.Count(text, lx.HighPriority)*highPriorityStep, highPriorityCap)
	delta += capped(rules.Count(text, lx.Positive)*positiveStep, positiveCap)
	delta += capped(rules.Count(text, lx.MediumPriority)*mediumStep, mediumCap)

	words := len(strings.Fields(text))
	if words > longBody {
		delta += lengthBonus
	}
	if words > veryLongBody {
		delta += lengthBonus
	}

	if hasSignificantNumber(text) {
		delta += numberBonus
	}

	questions := strings.Count(text, "?") + strings.Count(text, "؟")
	delta += capped(questions*questionStep, questionCap)

	delta += rules.Count(text, lx.Courtesy) * courtesyStep

	return clamp(delta, minDelta, maxDelta)
}

func sentiment(text string, lx *rules.Lexicons) (string, float64) {
	pos := rules.Count(text, lx.Positive) + rules.Count(text, lx.HighPriority)
	neg := rules.Count(text, lx.Negative)
	switch {
	case pos > neg:
		return Positive, float64(pos) / float64(pos+neg)
	case neg > pos:
		return Negative, float64(neg) / float64(pos+neg)
	default:
		return Neutral, 0.5
	}
}

func purchaseIntent(text string, lx *rules.Lexicons) (bool, float64) {
	hits := rules.Count(text, lx.PurchaseIntent)
	if hits == 0 {
		return false, 0
	}
	conf := 0.5 + 0.2*float64(hits)
	if conf > 1 {
		conf = 1
	}
	return true, conf
}

// hasSignificantNumber reports whether text holds a number above 10 written
// with at most ten digits. Arabic-Indic digits count.
func hasSignificantNumber(text string) bool {
	for _, run := range digitRun.FindAllString(text, -1) {
		value, digits, ok := parseDigits(run)
		if ok && digits <= 10 && value > 10 {
			return true
		}
	}
	return false
}

func parseDigits(run string) (int64, int, bool) {
	var value int64
	digits := 0
	for _, r := range run {
		var d rune
		switch {
		case r >= '0' && r <= '9':
			d = r - '0'
		case r >= '٠' && r <= '٩':
			d = r - '٠'
		case r >= '۰' && r <= '۹':
			d = r - '۰'
		default:
			return 0, 0, false
		}
		digits++
		if digits > 10 {
			return 0, digits, false
		}
		value = value*10 + int64(d)
	}
	return value, digits, true
}

func capped(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
