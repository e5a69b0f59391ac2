// Package sentiment implements the weighted-ensemble SentimentAnalyzer of
// spec §4.F: two independent lexicon scorers, a finance-specific keyword
// dictionary, and an optional social-engagement component, combined as
//
//	polarity = 0.40·lex1 + 0.30·lex2 + 0.20·keyword + 0.10·social
package sentiment

import (
	"math"
	"regexp"
	"strings"
)

// Score is the §3 SentimentScore.
type Score struct {
	Polarity   float64
	Confidence float64
	Label      Label
}

type Label string

const (
	Bullish Label = "bullish"
	Neutral Label = "neutral"
	Bearish Label = "bearish"
)

func labelFor(polarity float64) Label {
	switch {
	case polarity >= 0.15:
		return Bullish
	case polarity <= -0.15:
		return Bearish
	default:
		return Neutral
	}
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z']+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// lexicon1 and lexicon2 are two independently curated, deliberately
// non-identical positive/negative word lists — the ensemble's whole
// point is that they disagree on edge cases often enough to matter.
var lexicon1Pos = wordSet("gain", "gains", "rally", "surge", "soar", "beat", "beats", "strong", "record", "breakout", "upgrade", "outperform", "bullish", "profit", "growth", "optimistic", "rebound", "jump")
var lexicon1Neg = wordSet("loss", "losses", "plunge", "crash", "slump", "miss", "misses", "weak", "downgrade", "underperform", "bearish", "decline", "recession", "lawsuit", "default", "fraud", "selloff", "tumble")

var lexicon2Pos = wordSet("up", "higher", "improve", "improved", "improving", "win", "winning", "positive", "boost", "boosted", "expand", "expansion", "momentum", "accelerate", "strength", "recovery")
var lexicon2Neg = wordSet("down", "lower", "worsen", "worsened", "worsening", "lose", "losing", "negative", "cut", "shrink", "contraction", "slowdown", "weakness", "layoffs", "investigation", "probe")

var financeKeywordPos = wordSet("upgrade", "beat", "raised", "guidance-raise", "accretive", "buyback", "outperform", "overweight", "approval", "clearance", "partnership")
var financeKeywordNeg = wordSet("downgrade", "miss", "lowered", "guidance-cut", "dilutive", "bankruptcy", "underperform", "underweight", "recall", "investigation", "delisting")

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func lexiconPolarity(tokens []string, pos, neg map[string]struct{}) (polarity float64, hit bool) {
	var score, hits float64
	for _, t := range tokens {
		if _, ok := pos[t]; ok {
			score += 1
			hits++
		} else if _, ok := neg[t]; ok {
			score -= 1
			hits++
		}
	}
	if hits == 0 {
		return 0, false
	}
	return clamp(score/hits, -1, 1), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SocialPost is one engagement-weighted post contributing to the social
// component (spec §4.F "optional engagement-weighted polarity").
type SocialPost struct {
	Text       string
	Engagement float64 // likes + reposts + replies, or similar
}

func socialPolarity(posts []SocialPost) (polarity float64, present bool) {
	if len(posts) == 0 {
		return 0, false
	}
	var weightedSum, weightSum float64
	for _, p := range posts {
		lex1, ok1 := lexiconPolarity(tokenize(p.Text), lexicon1Pos, lexicon1Neg)
		lex2, ok2 := lexiconPolarity(tokenize(p.Text), lexicon2Pos, lexicon2Neg)
		if !ok1 && !ok2 {
			continue
		}
		var postPolarity float64
		switch {
		case ok1 && ok2:
			postPolarity = (lex1 + lex2) / 2
		case ok1:
			postPolarity = lex1
		default:
			postPolarity = lex2
		}
		w := 1 + p.Engagement
		weightedSum += postPolarity * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0, false
	}
	return clamp(weightedSum/weightSum, -1, 1), true
}

// Analyzer is the stateless ensemble scorer; it carries no fields because
// every lexicon is a package-level constant, matching the "pure function
// of text" character the spec assigns SentimentAnalyzer.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Score implements spec §4.F. Posts is optional social context for the
// same subject (may be nil/empty — the social term is then omitted and
// the remaining weights are unaffected, since absent terms contribute 0
// as the spec's formula already assumes).
func (a *Analyzer) Score(text string, posts []SocialPost) Score {
	tokens := tokenize(text)

	lex1, _ := lexiconPolarity(tokens, lexicon1Pos, lexicon1Neg)
	lex2, _ := lexiconPolarity(tokens, lexicon2Pos, lexicon2Neg)
	keyword, _ := lexiconPolarity(tokens, financeKeywordPos, financeKeywordNeg)
	social, socialPresent := socialPolarity(posts)

	polarity := 0.40*lex1 + 0.30*lex2 + 0.20*keyword + 0.10*social
	polarity = clamp(polarity, -1, 1)

	agreement := componentAgreement(lex1, lex2, keyword, social, socialPresent)
	confidence := math.Min(1, float64(len(tokens))/100) * agreement

	return Score{Polarity: polarity, Confidence: confidence, Label: labelFor(polarity)}
}

// componentAgreement is the normalized cosine between component
// polarities viewed as signed scalars (spec §4.F): 1 when every present
// component agrees in sign, 0 when they are maximally mixed.
func componentAgreement(lex1, lex2, keyword, social float64, socialPresent bool) float64 {
	vals := []float64{lex1, lex2, keyword}
	if socialPresent {
		vals = append(vals, social)
	}
	var sumSign, n float64
	for _, v := range vals {
		if v == 0 {
			continue
		}
		n++
		if v > 0 {
			sumSign++
		} else {
			sumSign--
		}
	}
	if n == 0 {
		return 0
	}
	return math.Abs(sumSign) / n
}
