package gather

import (
	"context"
	"math/rand"
	"time"

	"factorlab/internal/domain"
	"factorlab/internal/util"
)

// GenerateSampleBars returns numDays synthetic daily bars on consecutive
// business days from start. Prices are a Gaussian random walk around 60
// with uniform jitter for high, low, open and close; volume is uniform in
// [1e6, 5e6). The same seed always gives the same bars.
func GenerateSampleBars(symbol string, numDays int, seed int64, start time.Time) []domain.Bar {
	if numDays <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))

	steps := make([]float64, numDays)
	for i := range steps {
		steps[i] = rng.NormFloat64()
	}
	price := make([]float64, numDays)
	level := 60.0
	for i, s := range steps {
		level += s
		price[i] = level
	}

	high := uniform(rng, numDays, 0.5, 1.5)
	low := uniform(rng, numDays, 0.5, 1.5)
	open := uniform(rng, numDays, -0.5, 0.5)
	closeJ := uniform(rng, numDays, -0.5, 0.5)

	days := util.BusinessDays(start, numDays)
	bars := make([]domain.Bar, numDays)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: days[i],
			Open:      price[i] + open[i],
			High:      price[i] + high[i],
			Low:       price[i] - low[i],
			Close:     price[i] + closeJ[i],
			Volume:    1_000_000 + rng.Int63n(4_000_000),
		}
	}
	return bars
}

func uniform(rng *rand.Rand, n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*rng.Float64()
	}
	return out
}

// Compile-time interface check.
var _ Source = (*SampleSource)(nil)

// SampleSource serves GenerateSampleBars output. The end of the requested
// range is ignored: every symbol gets numDays bars from start.
type SampleSource struct {
	numDays int
	seed    int64
}

// NewSampleSource creates a SampleSource.
func NewSampleSource(numDays int, seed int64) *SampleSource {
	return &SampleSource{numDays: numDays, seed: seed}
}

// Name returns "sample".
func (s *SampleSource) Name() string { return "sample" }

// FetchBars generates bars for each symbol. Every symbol uses the same seed.
func (s *SampleSource) FetchBars(ctx context.Context, symbols []string, start, _ time.Time) (map[string][]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		out[sym] = GenerateSampleBars(sym, s.numDays, s.seed, start)
	}
	return out, nil
}
