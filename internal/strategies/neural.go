package strategies

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"

	"github.com/anvh2/sentiment-trading/internal/cache/window"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/talib"
)

type NeuralConfidenceParams struct {
	NeuralLayers        int     `mapstructure:"neural_layers"`
	LearningRate        float64 `mapstructure:"learning_rate"`
	LookbackWindow      int     `mapstructure:"lookback_window"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	AdaptationPeriod    int     `mapstructure:"adaptation_period"`
	RiskMultiplier      float64 `mapstructure:"risk_multiplier"`
}

// NeuralConfidence is a shallow adaptive pattern scorer: normalized
// returns flow through fixed tanh layers whose weights are seeded
// deterministically from the strategy id and nudged every adaptation
// period against the sign of the latest realized return. It detects
// patterns; it is not a training framework.
type NeuralConfidence struct {
	id     string
	params NeuralConfidenceParams

	mutex  sync.Mutex
	hidden [][]float64 // hidden[layer][in*size+out]
	output []float64
	ticks  int
	lastTS int64
}

func NewNeuralConfidence(id string, params NeuralConfidenceParams) *NeuralConfidence {
	n := &NeuralConfidence{id: id, params: params}
	n.seed()
	return n
}

func (s *NeuralConfidence) Kind() string { return KindNeuralConfidence }

func (s *NeuralConfidence) Lookback() int {
	return s.params.LookbackWindow + 1
}

// seed builds the weight tensors from a hash of the strategy id so an
// identical id always produces the identical detector.
func (s *NeuralConfidence) seed() {
	h := fnv.New64a()
	h.Write([]byte(s.id))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	size := s.params.LookbackWindow
	s.hidden = make([][]float64, s.params.NeuralLayers)
	for l := range s.hidden {
		s.hidden[l] = make([]float64, size*size)
		for i := range s.hidden[l] {
			s.hidden[l][i] = rng.NormFloat64() / math.Sqrt(float64(size))
		}
	}

	s.output = make([]float64, size)
	for i := range s.output {
		s.output[i] = rng.NormFloat64() / math.Sqrt(float64(size))
	}
}

func (s *NeuralConfidence) Evaluate(ticks []*models.Tick) *models.TechnicalSignal {
	symbol, ts := head(ticks)
	closes := window.Closes(ticks)

	if len(closes) < s.Lookback() {
		return holdSignal(s.id, symbol, ts, nil, "window warming up")
	}

	input := normalizedReturns(closes, s.params.LookbackWindow)

	s.mutex.Lock()
	output := s.forward(input)

	// adapt only when the stream advances so replaying the last tick
	// leaves the detector unchanged
	if ts > s.lastTS {
		s.lastTS = ts
		s.ticks++

		if s.ticks%s.params.AdaptationPeriod == 0 {
			s.adapt(input)
		}
	}
	s.mutex.Unlock()

	indicators := map[string]float64{"neural_output": output}
	confidence := talib.Clamp(math.Abs(output)*s.params.RiskMultiplier, 0, 0.95)

	if math.Abs(output) <= s.params.ConfidenceThreshold {
		return holdSignal(s.id, symbol, ts, indicators, fmt.Sprintf("pattern score %.3f below threshold", output))
	}

	action := models.ActionBuy
	if output < 0 {
		action = models.ActionSell
	}

	return &models.TechnicalSignal{
		StrategyID: s.id,
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		Indicators: indicators,
		Reason:     fmt.Sprintf("pattern score %.3f", output),
		Time:       ts,
	}
}

func (s *NeuralConfidence) forward(input []float64) float64 {
	size := len(input)
	current := input

	for _, layer := range s.hidden {
		next := make([]float64, size)
		for out := 0; out < size; out++ {
			sum := 0.0
			for in := 0; in < size; in++ {
				sum += layer[in*size+out] * current[in]
			}
			next[out] = math.Tanh(sum)
		}
		current = next
	}

	sum := 0.0
	for i, v := range current {
		sum += s.output[i] * v
	}
	return math.Tanh(sum)
}

// adapt nudges the output layer toward the sign of the most recent
// realized return.
func (s *NeuralConfidence) adapt(input []float64) {
	target := 0.0
	if last := input[len(input)-1]; last > 0 {
		target = 1
	} else if last < 0 {
		target = -1
	}

	for i := range s.output {
		s.output[i] += s.params.LearningRate * target * input[i]
	}
}

// normalizedReturns maps the last n tick-to-tick returns into roughly
// [-1, 1] by scaling against their max magnitude.
func normalizedReturns(closes []float64, n int) []float64 {
	returns := make([]float64, n)
	offset := len(closes) - n

	maxAbs := 0.0
	for i := 0; i < n; i++ {
		prev := closes[offset+i-1]
		if prev != 0 {
			returns[i] = (closes[offset+i] - prev) / prev
		}
		if a := math.Abs(returns[i]); a > maxAbs {
			maxAbs = a
		}
	}

	if maxAbs > 0 {
		for i := range returns {
			returns[i] /= maxAbs
		}
	}

	return returns
}
