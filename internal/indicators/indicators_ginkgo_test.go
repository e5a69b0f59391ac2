package indicators_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sawpanic/equityrun/internal/indicators"
)

func risingCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

var _ = Describe("SMA", func() {
	Context("given fewer closes than the window", func() {
		It("reports every point undefined", func() {
			out := indicators.SMA([]float64{1, 2}, 5)
			Expect(out).To(HaveLen(2))
			for _, v := range out {
				Expect(v.Defined).To(BeFalse())
			}
		})
	})

	Context("given a flat series", func() {
		It("converges to the flat value once the window fills", func() {
			closes := make([]float64, 10)
			for i := range closes {
				closes[i] = 42
			}
			out := indicators.SMA(closes, 3)
			Expect(out[len(out)-1].Defined).To(BeTrue())
			Expect(out[len(out)-1].V).To(BeNumerically("~", 42, 1e-9))
		})
	})
})

var _ = Describe("RSI", func() {
	Context("on a strictly rising series", func() {
		It("saturates near 100", func() {
			closes := risingCloses(40, 10, 1)
			out := indicators.RSI(closes, 14)
			last := out[len(out)-1]
			Expect(last.Defined).To(BeTrue())
			Expect(last.V).To(BeNumerically(">", 90))
		})
	})
})

var _ = Describe("MACD", func() {
	Context("on a rising series", func() {
		It("produces a defined histogram once both EMAs and the signal line have data", func() {
			closes := risingCloses(60, 10, 0.5)
			res := indicators.MACD(closes, 12, 26, 9)
			last := res.Histogram[len(res.Histogram)-1]
			Expect(last.Defined).To(BeTrue())
		})
	})
})
