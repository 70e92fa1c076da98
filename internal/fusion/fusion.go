package fusion

import (
	"fmt"
	"math"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/talib"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxConfidence = 0.95

type Config struct {
	MinSentimentConfidence float64
	ConflictThreshold      float64
	MaxBoost               float64
	Staleness              time.Duration
}

// Fuser combines one technical signal with the latest aggregated
// sentiment into a final action.
type Fuser struct {
	logger *logger.Logger
	config *Config
}

func New(logger *logger.Logger, config *Config) *Fuser {
	return &Fuser{logger: logger, config: config}
}

// Fuse applies the conflict and alignment rules. The sentiment may be
// nil or stale; the technical signal then stands alone.
func (f *Fuser) Fuse(technical *models.TechnicalSignal, sentiment *models.AggregatedSentiment) *models.EnhancedSignal {
	enhanced := &models.EnhancedSignal{
		ID:              uuid.NewString(),
		Technical:       technical,
		FinalAction:     technical.Action,
		FinalConfidence: technical.Confidence,
		Time:            technical.Time,
	}

	if sentiment == nil || f.stale(sentiment) {
		enhanced.Rationale = "sentiment unavailable or stale, technical signal stands alone"
		return enhanced
	}

	enhanced.SentimentScore = sentiment.OverallScore
	enhanced.SentimentConfidence = sentiment.OverallConfidence

	// critical events pre-empt everything else
	if sentiment.HasCritical(models.EventHack) && technical.Action != models.ActionHold {
		enhanced.FinalAction = models.ActionSkip
		enhanced.FinalConfidence = 0
		enhanced.Rationale = f.eventRationale(sentiment)
		return enhanced
	}

	if sentiment.OverallConfidence < f.config.MinSentimentConfidence {
		enhanced.Rationale = fmt.Sprintf("sentiment ignored: confidence %.2f below %.2f",
			sentiment.OverallConfidence, f.config.MinSentimentConfidence)
		return enhanced
	}

	if f.conflicts(technical.Action, sentiment.OverallScore) {
		enhanced.Conflict = true
		enhanced.FinalAction = models.ActionSkip
		enhanced.FinalConfidence = 0
		enhanced.Rationale = fmt.Sprintf("sentiment %.2f conflicts with technical %s",
			sentiment.OverallScore, technical.Action)

		f.logger.Info("[Fusion] conflict skip",
			zap.String("symbol", technical.Symbol), zap.String("strategy", technical.StrategyID),
			zap.Float64("sentiment", sentiment.OverallScore))
		return enhanced
	}

	// aligned or weakly opposed: boost toward the sentiment's strength,
	// full boost once |score|*confidence reaches 0.5
	strength := talib.Clamp(math.Abs(sentiment.OverallScore)*sentiment.OverallConfidence*2, 0, 1)
	enhanced.ConfidenceBoost = f.config.MaxBoost * strength
	enhanced.FinalConfidence = math.Min(maxConfidence, technical.Confidence*(1+enhanced.ConfidenceBoost))
	enhanced.Rationale = fmt.Sprintf("sentiment %.2f@%.2f boosts confidence by %.3f",
		sentiment.OverallScore, sentiment.OverallConfidence, enhanced.ConfidenceBoost)

	return enhanced
}

func (f *Fuser) stale(sentiment *models.AggregatedSentiment) bool {
	if f.config.Staleness <= 0 {
		return false
	}
	age := time.Now().UnixMilli() - sentiment.Time
	return age > f.config.Staleness.Milliseconds()
}

// conflicts reports a material sign disagreement between the sentiment
// score and the technical action.
func (f *Fuser) conflicts(action models.Action, score float64) bool {
	if math.Abs(score) < f.config.ConflictThreshold {
		return false
	}

	switch action {
	case models.ActionBuy:
		return score < 0
	case models.ActionSell:
		return score > 0
	}
	return false
}

func (f *Fuser) eventRationale(sentiment *models.AggregatedSentiment) string {
	for _, event := range sentiment.CriticalEvents {
		if event.Kind == models.EventHack {
			return fmt.Sprintf("pre-empted by %s event: %s", event.Kind, event.Description)
		}
	}
	return "pre-empted by critical event"
}
