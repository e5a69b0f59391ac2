package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreBullishText(t *testing.T) {
	a := NewAnalyzer()
	s := a.Score("Company reports record gains and a strong earnings beat, analysts upgrade outlook", nil)
	assert.Greater(t, s.Polarity, 0.15)
	assert.Equal(t, Bullish, s.Label)
}

func TestScoreBearishText(t *testing.T) {
	a := NewAnalyzer()
	s := a.Score("Shares plunge after guidance cut and bankruptcy fears, analysts downgrade the stock", nil)
	assert.Less(t, s.Polarity, -0.15)
	assert.Equal(t, Bearish, s.Label)
}

func TestScoreNeutralOnNoHits(t *testing.T) {
	a := NewAnalyzer()
	s := a.Score("The quarterly meeting was held on Tuesday afternoon in the conference room", nil)
	assert.Equal(t, Neutral, s.Label)
	assert.Equal(t, 0.0, s.Polarity)
}

func TestConfidenceScalesWithWordCountAndAgreement(t *testing.T) {
	a := NewAnalyzer()
	short := a.Score("gain beat upgrade", nil)
	long := a.Score("gain beat upgrade "+repeat("filler word ", 40), nil)
	assert.Less(t, short.Confidence, long.Confidence)
}

func TestSocialComponentShiftsPolarity(t *testing.T) {
	a := NewAnalyzer()
	withoutSocial := a.Score("steady results this quarter", nil)
	withSocial := a.Score("steady results this quarter", []SocialPost{
		{Text: "huge rally incoming, bullish surge", Engagement: 500},
	})
	assert.Greater(t, withSocial.Polarity, withoutSocial.Polarity)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
