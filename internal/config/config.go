package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed snapshot of everything the components read at
// startup. Values come from config.yaml with environment overrides; the
// flat env names (FEED_INTERVAL_MS, ...) are bound explicitly.
type Config struct {
	Trading   TradingConfig   `mapstructure:"trading"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	OrderBook OrderBookConfig `mapstructure:"orderbook"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Weights   WeightsConfig   `mapstructure:"weights"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type TradingConfig struct {
	LogPath           string   `mapstructure:"log_path"`
	Symbols           []string `mapstructure:"symbols"`
	StartingBalance   float64  `mapstructure:"starting_balance"`
	MinExecConfidence float64  `mapstructure:"min_exec_confidence"`
	MinExitConfidence float64  `mapstructure:"min_exit_confidence"`
	StopLossPct       float64  `mapstructure:"stop_loss_pct"`
	TakeProfitPct     float64  `mapstructure:"take_profit_pct"`
	MaxHoldMinutes    int      `mapstructure:"max_hold_minutes"` // 0 disables
	PositionCost      float64  `mapstructure:"position_cost"`    // quote currency per entry
	DrainTimeoutSec   int      `mapstructure:"drain_timeout_sec"`
}

type FeedConfig struct {
	IntervalMS int `mapstructure:"interval_ms"`
}

type SentimentConfig struct {
	IntervalMS        int     `mapstructure:"interval_ms"`
	StalenessMS       int     `mapstructure:"staleness_ms"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
	ConflictThreshold float64 `mapstructure:"conflict_threshold"`
	MaxBoost          float64 `mapstructure:"max_boost"`
}

type SourcesConfig struct {
	TimeoutMS      int                 `mapstructure:"timeout_ms"`
	Parallelism    int                 `mapstructure:"parallelism"`
	MaxItems       int                 `mapstructure:"max_items"`
	MicroblogURL   string              `mapstructure:"microblog_url"`
	ForumURL       string              `mapstructure:"forum_url"`
	NewsFeeds      []string            `mapstructure:"news_feeds"`
	OnChainURL     string              `mapstructure:"onchain_url"`
	SymbolKeywords map[string][]string `mapstructure:"symbol_keywords"`
}

type OrderBookConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	Levels              int     `mapstructure:"levels"`
	LargeOrderThreshold float64 `mapstructure:"large_order_threshold"`
	StalenessMS         int     `mapstructure:"staleness_ms"`
}

type SignalConfig struct {
	ChannelCapacity int `mapstructure:"channel_capacity"`
	CooldownMS      int `mapstructure:"cooldown_ms"`
}

type BrokerConfig struct {
	RetryAttempts int    `mapstructure:"retry_attempts"`
	RetryBaseMS   int    `mapstructure:"retry_base_ms"`
	QuoteAsset    string `mapstructure:"quote_asset"`
}

type WeightsConfig struct {
	UpdateIntervalSec int     `mapstructure:"update_interval_sec"`
	WinRateHigh       float64 `mapstructure:"win_rate_high"`
	WinRateLow        float64 `mapstructure:"win_rate_low"`
}

type StorageConfig struct {
	Path           string `mapstructure:"path"`
	JournalPath    string `mapstructure:"journal_path"`
	RetryCount     int    `mapstructure:"retry_count"`
	RetryBackoffMS int    `mapstructure:"retry_backoff_ms"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type NotifyConfig struct {
	Channels map[string]int64 `mapstructure:"channels"`
}

// flat env names from the external interface contract
var envBindings = map[string]string{
	"feed.interval_ms":            "FEED_INTERVAL_MS",
	"sources.timeout_ms":          "SOURCE_TIMEOUT_MS",
	"sentiment.staleness_ms":      "SENTIMENT_STALENESS_MS",
	"signal.channel_capacity":     "SIGNAL_CHANNEL_CAPACITY",
	"broker.retry_attempts":       "BROKER_RETRY_ATTEMPTS",
	"weights.update_interval_sec": "WEIGHTS_UPDATE_INTERVAL_S",
	"trading.min_exec_confidence": "MIN_EXEC_CONFIDENCE",
	"trading.stop_loss_pct":       "STOP_LOSS_PCT",
	"trading.take_profit_pct":     "TAKE_PROFIT_PCT",
	"orderbook.enabled":           "ENABLE_ORDER_BOOK",
}

func setDefaults() {
	viper.SetDefault("trading.log_path", "data/sentiment-trading.log")
	viper.SetDefault("trading.symbols", []string{"BTCUSDT"})
	viper.SetDefault("trading.starting_balance", 10000)
	viper.SetDefault("trading.min_exec_confidence", 0.6)
	viper.SetDefault("trading.min_exit_confidence", 0.6)
	viper.SetDefault("trading.stop_loss_pct", 0.02)
	viper.SetDefault("trading.take_profit_pct", 0.04)
	viper.SetDefault("trading.max_hold_minutes", 0)
	viper.SetDefault("trading.position_cost", 100)
	viper.SetDefault("trading.drain_timeout_sec", 10)

	viper.SetDefault("feed.interval_ms", 30000)

	viper.SetDefault("sentiment.interval_ms", 30000)
	viper.SetDefault("sentiment.staleness_ms", 30000)
	viper.SetDefault("sentiment.min_confidence", 0.4)
	viper.SetDefault("sentiment.conflict_threshold", 0.3)
	viper.SetDefault("sentiment.max_boost", 0.2)

	viper.SetDefault("sources.timeout_ms", 2000)
	viper.SetDefault("sources.parallelism", 8)
	viper.SetDefault("sources.max_items", 100)

	viper.SetDefault("orderbook.enabled", true)
	viper.SetDefault("orderbook.levels", 20)
	viper.SetDefault("orderbook.large_order_threshold", 10)
	viper.SetDefault("orderbook.staleness_ms", 5000)

	viper.SetDefault("signal.channel_capacity", 1024)
	viper.SetDefault("signal.cooldown_ms", 600000)

	viper.SetDefault("broker.retry_attempts", 3)
	viper.SetDefault("broker.retry_base_ms", 200)
	viper.SetDefault("broker.quote_asset", "USDT")

	viper.SetDefault("weights.update_interval_sec", 3600)
	viper.SetDefault("weights.win_rate_high", 0.6)
	viper.SetDefault("weights.win_rate_low", 0.4)

	viper.SetDefault("storage.path", "data/sentiment-trading.db")
	viper.SetDefault("storage.journal_path", "data/journal")
	viper.SetDefault("storage.retry_count", 10)
	viper.SetDefault("storage.retry_backoff_ms", 1000)

	viper.SetDefault("metrics.port", 9100)
}

// Load builds the typed snapshot from viper's current state.
func Load() (*Config, error) {
	setDefaults()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the system cannot start with.
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return errors.New("config: trading.symbols empty")
	}
	if c.Feed.IntervalMS <= 0 {
		return errors.New("config: feed.interval_ms must be positive")
	}
	if c.Sources.TimeoutMS <= 0 {
		return errors.New("config: sources.timeout_ms must be positive")
	}
	if c.Signal.ChannelCapacity <= 0 {
		return errors.New("config: signal.channel_capacity must be positive")
	}
	if c.Trading.MinExecConfidence < 0 || c.Trading.MinExecConfidence > 1 {
		return errors.New("config: trading.min_exec_confidence out of range")
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.TakeProfitPct <= 0 {
		return errors.New("config: exit bounds must be positive")
	}
	return nil
}

func (c *Config) FeedInterval() time.Duration {
	return time.Duration(c.Feed.IntervalMS) * time.Millisecond
}

func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Sources.TimeoutMS) * time.Millisecond
}

func (c *Config) SentimentInterval() time.Duration {
	return time.Duration(c.Sentiment.IntervalMS) * time.Millisecond
}

func (c *Config) SentimentStaleness() time.Duration {
	return time.Duration(c.Sentiment.StalenessMS) * time.Millisecond
}

func (c *Config) SignalCooldown() time.Duration {
	return time.Duration(c.Signal.CooldownMS) * time.Millisecond
}

func (c *Config) WeightsInterval() time.Duration {
	return time.Duration(c.Weights.UpdateIntervalSec) * time.Second
}

func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Trading.DrainTimeoutSec) * time.Second
}
