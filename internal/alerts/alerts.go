package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"go.uber.org/zap"
)

type Kind string

const (
	KindFirstTrade    Kind = "FIRST_TRADE"
	KindDailySummary  Kind = "DAILY_SUMMARY"
	KindCriticalEvent Kind = "CRITICAL_EVENT"
	KindBrokerError   Kind = "BROKER_ERROR"
	KindFatal         Kind = "FATAL"
)

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one outbound notification. Delivery transports are behind
// the Sink interface; the core never knows where alerts land.
type Alert struct {
	Kind     Kind
	Severity Severity
	Message  string
	Fields   map[string]interface{}
	Time     time.Time
}

type Sink interface {
	SendAlert(ctx context.Context, alert *Alert) error
}

// Manager fans one alert out to every configured sink. A failing sink
// never blocks the others.
type Manager struct {
	logger *logger.Logger
	sinks  []Sink
}

func NewManager(logger *logger.Logger, sinks ...Sink) *Manager {
	return &Manager{logger: logger, sinks: sinks}
}

func (m *Manager) SendAlert(ctx context.Context, alert *Alert) error {
	if alert.Time.IsZero() {
		alert.Time = time.Now()
	}

	var lastErr error
	for _, sink := range m.sinks {
		if err := sink.SendAlert(ctx, alert); err != nil {
			m.logger.Error("[Alerts] failed to deliver", zap.String("kind", string(alert.Kind)), zap.Error(err))
			lastErr = err
		}
	}

	return lastErr
}

// LogSink writes alerts to the service log. Used as the fallback sink
// when no chat transport is configured.
type LogSink struct {
	logger *logger.Logger
}

func NewLogSink(logger *logger.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) SendAlert(ctx context.Context, alert *Alert) error {
	fields := []zap.Field{
		zap.String("kind", string(alert.Kind)),
		zap.String("severity", string(alert.Severity)),
	}
	for key, value := range alert.Fields {
		fields = append(fields, zap.Any(key, value))
	}

	switch alert.Severity {
	case SeverityCritical:
		s.logger.Error(fmt.Sprintf("[Alert] %s", alert.Message), fields...)
	case SeverityWarning:
		s.logger.Warn(fmt.Sprintf("[Alert] %s", alert.Message), fields...)
	default:
		s.logger.Info(fmt.Sprintf("[Alert] %s", alert.Message), fields...)
	}

	return nil
}
