package scoring

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sawpanic/equityrun/internal/marketdata"
)

func bddUptrend(n int, sym string) marketdata.Series {
	base := time.Now().UTC().AddDate(0, 0, -n)
	out := make(marketdata.Series, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= 1.01
		out[i] = marketdata.Bar{
			Symbol: sym, TS: base.AddDate(0, 0, i),
			Open: price * 0.995, High: price * 1.01, Low: price * 0.99, Close: price, Volume: 1_500_000,
		}
	}
	return out
}

var _ = Describe("Engine.Score", func() {
	engine := NewEngine()

	Context("with fewer bars than minBarsForConfidence", func() {
		It("returns a soft HOLD with low confidence rather than erroring, with Total computed from the real components", func() {
			series := bddUptrend(minBarsForConfidence-1, "ACME")
			ms, err := engine.Score("ACME", series, nil, nil, RegimeTilt{})

			Expect(err).NotTo(HaveOccurred())
			Expect(ms.Recommendation).To(Equal(Hold))
			Expect(ms.Conviction).To(Equal(Low))
			Expect(ms.Confidence).To(BeNumerically("<", 0.5))

			want := int(0.30*ms.Components.Trend + 0.20*ms.Components.Momentum + 0.25*ms.Components.Sentiment +
				0.15*ms.Components.Divergence + 0.10*ms.Components.Volume)
			Expect(ms.Total).To(BeNumerically("~", want, 1))
			Expect(ms.Reasons).To(ContainElement("INSUFFICIENT_HISTORY"))
		})
	})

	Context("with only a single bar", func() {
		It("never raises, and still returns a soft HOLD", func() {
			ms, err := engine.Score("ACME", bddUptrend(1, "ACME"), nil, nil, RegimeTilt{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ms.Recommendation).To(Equal(Hold))
			Expect(ms.Reasons).To(ContainElement("INSUFFICIENT_HISTORY"))
		})
	})

	Context("with an empty series", func() {
		It("surfaces an insufficient-history error", func() {
			_, err := engine.Score("ACME", nil, nil, nil, RegimeTilt{})
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with a full, strongly trending history", func() {
		It("produces a Total in [0, 100] with confidence approaching 1", func() {
			series := bddUptrend(fullHistoryBars, "ACME")
			ms, err := engine.Score("ACME", series, nil, nil, RegimeTilt{})

			Expect(err).NotTo(HaveOccurred())
			Expect(ms.Total).To(BeNumerically(">=", 0))
			Expect(ms.Total).To(BeNumerically("<=", 100))
			Expect(ms.Confidence).To(BeNumerically(">", 0.7))
		})
	})

	Context("when a RegimeTilt exceeds the clamp", func() {
		It("never shifts a weight by more than 5 percentage points", func() {
			tilt := RegimeTilt{Trend: 0.5, Momentum: -0.5}.clamp()
			Expect(tilt.Trend).To(BeNumerically("<=", 0.05))
			Expect(tilt.Momentum).To(BeNumerically(">=", -0.05))
		})
	})
})
