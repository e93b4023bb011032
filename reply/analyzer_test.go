// ABOUTME: Tests for the reply analyzer
// ABOUTME: Covers the negative veto, per-signal caps, clamping, sentiment and purchase intent
package reply

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harperreed/tradedesk/rules"
)

func TestScoreDelta(t *testing.T) {
	rb := rules.Default()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty", "", 0},
		{"single positive", "Please send MOQ and price", 10},
		{"negative veto", "Thank you for the detailed quotation, but we are not interested at this time.", -25},
		{"positive cap", "please send, kindly send, sounds good, approved, good quality", 30},
		{"high priority cap", "purchase order ready to order proforma", 40},
		{"medium cap", "samples specification certificate", 10},
		{"number above ten", "we need 20", 10},
		{"number of ten or less", "we need 10", 0},
		{"number too long", "ref 12345678901", 0},
		{"arabic digits", "نحتاج ٢٥ طن", 10},
		{"question cap", "what? when? where? how?", 9},
		{"arabic question mark", "متى؟", 3},
		{"courtesy", "thank you, looking forward", 10},
		{"clamped at fifty", "purchase order ready to order. please send, kindly send, sounds good. samples, packing. 500 tons? thank you, best regards, appreciate", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.body, rb).ScoreDelta)
		})
	}
}

func TestLengthBonus(t *testing.T) {
	rb := rules.Default()

	assert.Equal(t, 0, Analyze(strings.Repeat("word ", 50), rb).ScoreDelta)
	assert.Equal(t, 5, Analyze(strings.Repeat("word ", 51), rb).ScoreDelta)
	assert.Equal(t, 10, Analyze(strings.Repeat("word ", 101), rb).ScoreDelta)
}

func TestNegativeVetoInLongPositiveMessage(t *testing.T) {
	rb := rules.Default()
	body := strings.Repeat("we are interested, please send samples, thank you. ", 50) + "too expensive"

	a := Analyze(body, rb)
	assert.Equal(t, -25, a.ScoreDelta)
	assert.Equal(t, Positive, a.Sentiment)
}

func TestSentiment(t *testing.T) {
	rb := rules.Default()

	a := Analyze("", rb)
	assert.Equal(t, Neutral, a.Sentiment)
	assert.Equal(t, 0.5, a.SentimentConfidence)

	a = Analyze("sounds good, ready to order", rb)
	assert.Equal(t, Positive, a.Sentiment)
	assert.Equal(t, 1.0, a.SentimentConfidence)

	a = Analyze("not interested, sounds good, too expensive", rb)
	assert.Equal(t, Negative, a.Sentiment)
	assert.InDelta(t, 2.0/3.0, a.SentimentConfidence, 1e-9)

	a = Analyze("sounds good but too expensive", rb)
	assert.Equal(t, Neutral, a.Sentiment)
	assert.Equal(t, 0.5, a.SentimentConfidence)
}

func TestPurchaseIntent(t *testing.T) {
	rb := rules.Default()

	a := Analyze("hello", rb)
	assert.False(t, a.PurchaseIntent)
	assert.Equal(t, 0.0, a.PurchaseConfidence)

	a = Analyze("we are ready to order", rb)
	assert.True(t, a.PurchaseIntent)
	assert.InDelta(t, 0.7, a.PurchaseConfidence, 1e-9)

	a = Analyze("ready to buy, ready to order, purchase order attached, please confirm the order", rb)
	assert.True(t, a.PurchaseIntent)
	assert.Equal(t, 1.0, a.PurchaseConfidence)
}

func TestDisabled(t *testing.T) {
	a := Disabled()
	assert.Equal(t, 0, a.ScoreDelta)
	assert.Equal(t, Neutral, a.Sentiment)
	assert.Equal(t, 0.5, a.SentimentConfidence)
	assert.False(t, a.PurchaseIntent)
}
