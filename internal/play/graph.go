package play

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultSampleRate is the rate recordings are captured at.
const DefaultSampleRate = 44100

// atempo accepts factors in [0.5, 100]; slower factors are chained.
const (
	minTempo = 0.5
	maxTempo = 100
)

// Slow-motion rates outside [MinRate, MaxRate] are rejected. Above MaxRate
// the compensating tempo exceeds what atempo accepts; far below MinRate the
// resampled rate collapses toward zero.
const (
	MinRate = 0.01
	MaxRate = 100
)

// ValidRate reports whether rate can be rendered as a slow-motion graph.
func ValidRate(rate float64) bool {
	return !math.IsNaN(rate) && rate >= MinRate && rate <= MaxRate
}

// PitchCompensation is the pitch offset, in cents, that playing at rate
// introduces: 1200 * log2(rate). Slowing to half speed gives -1200.
func PitchCompensation(rate float64) float64 {
	return 1200 * math.Log2(rate)
}

// RateNode changes playback speed by resampling, which moves the pitch
// along with it.
type RateNode struct {
	Rate float64
}

func (n RateNode) filter(sampleRate int) []string {
	return []string{
		"asetrate=" + strconv.Itoa(int(math.Round(float64(sampleRate)*n.Rate))),
		"aresample=" + strconv.Itoa(sampleRate),
	}
}

// PitchNode removes a pitch offset of Cents while keeping the tempo.
type PitchNode struct {
	Cents float64
}

func (n PitchNode) filter(sampleRate int) []string {
	factor := math.Pow(2, -n.Cents/1200)
	out := []string{
		"asetrate=" + strconv.Itoa(int(math.Round(float64(sampleRate)*factor))),
		"aresample=" + strconv.Itoa(sampleRate),
	}
	return append(out, tempoChain(1/factor)...)
}

// Graph is the slow-motion chain: a rate node followed by a pitch node.
type Graph struct {
	Rate       RateNode
	Pitch      PitchNode
	SampleRate int
}

// NewSlowMotionGraph builds the graph for rate, which must lie in
// [MinRate, MaxRate].
func NewSlowMotionGraph(rate float64) (Graph, error) {
	if !ValidRate(rate) {
		return Graph{}, fmt.Errorf("%w: rate must be between %v and %v, got %v", ErrPlaybackFailed, MinRate, MaxRate, rate)
	}
	return Graph{
		Rate:       RateNode{Rate: rate},
		Pitch:      PitchNode{Cents: PitchCompensation(rate)},
		SampleRate: DefaultSampleRate,
	}, nil
}

// Filter renders the graph as an ffmpeg audio filter chain.
func (g Graph) Filter() string {
	sr := g.SampleRate
	if sr <= 0 {
		sr = DefaultSampleRate
	}
	parts := append(g.Rate.filter(sr), g.Pitch.filter(sr)...)
	return strings.Join(parts, ",")
}

// tempoChain splits factor into atempo stages within the filter's range.
func tempoChain(factor float64) []string {
	var stages []string
	for factor < minTempo {
		stages = append(stages, "atempo="+formatFloat(minTempo))
		factor /= minTempo
	}
	// rounding at MaxRate can land a hair above the limit
	factor = math.Min(factor, maxTempo)
	if math.Abs(factor-1) > 1e-9 {
		stages = append(stages, "atempo="+formatFloat(factor))
	}
	return stages
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
