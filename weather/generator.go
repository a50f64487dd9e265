package weather

import (
	"math"
	"math/rand/v2"
	"sync"

	"weather-udp/protocol"
)

// Source yields uniformly distributed values in a closed range.
type Source interface {
	Float(min, max float32) float32
}

// Metric describes the range and unit of one generated measurement.
type Metric struct {
	Min, Max float32
	Unit     string
}

var metrics = map[protocol.Type]Metric{
	protocol.TypeTemperature: {Min: -10.0, Max: 40.0, Unit: "°C"},
	protocol.TypeHumidity:    {Min: 20.0, Max: 100.0, Unit: "%"},
	protocol.TypeWind:        {Min: 0.0, Max: 100.0, Unit: "km/h"},
	protocol.TypePressure:    {Min: 950.0, Max: 1050.0, Unit: "hPa"},
}

// MetricFor returns the range of a request type.
func MetricFor(t protocol.Type) (Metric, bool) {
	m, ok := metrics[t]
	return m, ok
}

// Generate draws a value for t from src. It returns 0 for unsupported types.
func Generate(src Source, t protocol.Type) float32 {
	m, ok := metrics[t]
	if !ok {
		return 0
	}
	return src.Float(m.Min, m.Max)
}

// lockedSource draws tenths uniformly from a shared PRNG.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSource returns a goroutine-safe Source seeded once.
// Values have one-decimal granularity, both bounds included.
func NewSource(seed uint64) Source {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *lockedSource) Float(min, max float32) float32 {
	lo := int(math.Round(float64(min) * 10))
	hi := int(math.Round(float64(max) * 10))
	if hi <= lo {
		return min
	}

	s.mu.Lock()
	n := s.r.IntN(hi - lo + 1)
	s.mu.Unlock()

	return float32(float64(lo+n) / 10)
}
