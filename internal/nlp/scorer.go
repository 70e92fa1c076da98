package nlp

import (
	"context"
	"strings"

	"github.com/anvh2/sentiment-trading/internal/talib"
	"golang.org/x/sync/errgroup"
)

// TextScore is the sentiment of one short text.
type TextScore struct {
	Score           float64 // [-1, 1]
	Confidence      float64 // [0, 1]
	TokensProcessed int
}

// Context adjusts a base score with momentum and session weighting.
type Context struct {
	PreviousScore   float64
	MarketCondition string // BULL, BEAR, NEUTRAL
	MarketHours     bool
}

// Scorer is a keyword-weighted sentiment scorer for short texts and
// structured on-chain metrics.
type Scorer struct {
	keywords map[string]float64
}

func NewScorer() *Scorer {
	return &Scorer{keywords: defaultKeywords()}
}

func NewScorerWithKeywords(keywords map[string]float64) *Scorer {
	return &Scorer{keywords: keywords}
}

// Score evaluates one text: mean of matched keyword weights clamped to
// [-1, 1]; confidence blends token coverage with score magnitude.
func (s *Scorer) Score(text string) TextScore {
	tokens := tokenize(text)

	matched := 0.0
	sum := 0.0
	for _, token := range tokens {
		if weight, ok := s.keywords[token]; ok {
			sum += weight
			matched++
		}
	}

	score := 0.0
	if matched > 0 {
		score = talib.Clamp(sum/matched, -1, 1)
	}

	confidence := talib.Clamp(float64(len(tokens))/100, 0, 1)*0.5 + abs(score)*0.5

	return TextScore{
		Score:           score,
		Confidence:      confidence,
		TokensProcessed: len(tokens),
	}
}

// ScoreBatch evaluates texts in parallel, preserving order.
func (s *Scorer) ScoreBatch(ctx context.Context, texts []string) ([]TextScore, error) {
	out := make([]TextScore, len(texts))

	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(8)

	for i, text := range texts {
		i, text := i, text
		group.Go(func() error {
			out[i] = s.Score(text)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ScoreWithContext applies additive momentum from the previous score
// and multiplicative session weighting to the base score.
func (s *Scorer) ScoreWithContext(text string, c Context) TextScore {
	base := s.Score(text)

	momentum := c.PreviousScore * 0.2
	adjusted := base.Score + momentum

	if c.MarketHours {
		adjusted *= 1.1
	} else {
		adjusted *= 0.9
	}

	base.Score = talib.Clamp(adjusted, -1, 1)
	return base
}

// OnChainMetrics are the scalar inputs from chain observers.
type OnChainMetrics struct {
	TxCount           float64
	LargeTransfers    float64
	ExchangeInflow    float64
	ExchangeOutflow   float64
	MempoolSize       float64
	DormantActivation float64
}

// ScoreMetrics maps structured on-chain metrics onto the same score
// space. Outflows from exchanges read bullish, inflows and dormant
// wallet activity bearish.
func (s *Scorer) ScoreMetrics(m OnChainMetrics) TextScore {
	score := 0.0
	signals := 0.0

	if total := m.ExchangeInflow + m.ExchangeOutflow; total > 0 {
		score += (m.ExchangeOutflow - m.ExchangeInflow) / total
		signals++
	}

	if m.TxCount > 0 {
		// heavier large-transfer share reads as whale repositioning
		share := talib.Clamp(m.LargeTransfers/m.TxCount*10, 0, 1)
		score -= share * 0.5
		signals++
	}

	if m.DormantActivation > 0 {
		score -= talib.Clamp(m.DormantActivation/100, 0, 1)
		signals++
	}

	if signals > 0 {
		score = talib.Clamp(score/signals, -1, 1)
	}

	confidence := talib.Clamp(signals/3, 0, 1)*0.5 + abs(score)*0.5

	return TextScore{Score: score, Confidence: confidence, TokensProcessed: int(signals)}
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.Trim(f, ".,!?;:()[]\"'#$"))
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func defaultKeywords() map[string]float64 {
	return map[string]float64{
		"moon":        0.9,
		"bullish":     0.8,
		"pump":        0.6,
		"rally":       0.7,
		"breakout":    0.6,
		"buy":         0.5,
		"long":        0.4,
		"adoption":    0.7,
		"partnership": 0.8,
		"listing":     0.7,
		"upgrade":     0.5,
		"surge":       0.7,
		"ath":         0.8,
		"accumulate":  0.5,
		"bearish":     -0.8,
		"dump":        -0.7,
		"crash":       -0.9,
		"sell":        -0.5,
		"short":       -0.4,
		"scam":        -0.9,
		"hack":        -1,
		"exploit":     -1,
		"rug":         -0.9,
		"lawsuit":     -0.7,
		"ban":         -0.8,
		"regulation":  -0.4,
		"sec":         -0.3,
		"fud":         -0.5,
		"liquidation": -0.6,
		"delisting":   -0.8,
	}
}
