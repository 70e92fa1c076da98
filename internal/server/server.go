package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/anvh2/sentiment-trading/internal/alerts"
	"github.com/anvh2/sentiment-trading/internal/bus"
	"github.com/anvh2/sentiment-trading/internal/config"
	"github.com/anvh2/sentiment-trading/internal/engine"
	"github.com/anvh2/sentiment-trading/internal/feed"
	"github.com/anvh2/sentiment-trading/internal/fusion"
	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/metrics"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/nlp"
	"github.com/anvh2/sentiment-trading/internal/orderbook"
	"github.com/anvh2/sentiment-trading/internal/sentiment"
	"github.com/anvh2/sentiment-trading/internal/services/binance"
	"github.com/anvh2/sentiment-trading/internal/sources"
	"github.com/anvh2/sentiment-trading/internal/storage"
	"github.com/anvh2/sentiment-trading/internal/strategies"
	"github.com/anvh2/sentiment-trading/internal/trader"
	"github.com/anvh2/sentiment-trading/internal/worker"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Exit codes of the start command.
const (
	ExitClean              = 0
	ExitStartupFailure     = 1
	ExitSteadyStateFailure = 2
)

type Server struct {
	logger *logger.Logger
	config *config.Config

	store  *storage.Store
	notify *alerts.Manager

	binance    *binance.Binance
	feed       *feed.Feed
	orderbook  *orderbook.Analyzer
	aggregator *sentiment.Aggregator
	weights    *sentiment.WeightsController
	registry   *strategies.Registry
	engine     *engine.Engine
	signals    *bus.SignalBus
	fuser      *fusion.Fuser
	trader     *trader.Trader
	worker     *worker.Worker

	metricsServer *http.Server

	symbols      []string
	fatalChannel chan error
	quitChannel  chan struct{}
}

// New wires every component. Startup failures are fatal with exit
// code 1: nothing useful can run without config, logs or the store.
func New() *Server {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := logger.New(cfg.Trading.LogPath)
	if err != nil {
		log.Fatal("failed to init logger: ", err)
	}

	store, err := storage.Open(logger, &storage.Config{
		Path:         cfg.Storage.Path,
		JournalPath:  cfg.Storage.JournalPath,
		RetryCount:   cfg.Storage.RetryCount,
		RetryBackoff: time.Duration(cfg.Storage.RetryBackoffMS) * time.Millisecond,
	})
	if err != nil {
		log.Fatal("failed to open store: ", err)
	}

	notify := newAlertManager(logger, cfg)

	registry := strategies.NewRegistry(logger)
	registerStrategies(logger, registry, cfg)

	symbols := registry.Symbols()
	if len(symbols) == 0 {
		log.Fatal("no active strategies registered")
	}

	exchange := binance.New(logger)
	marketFeed := feed.New(logger, exchange, symbols, cfg.FeedInterval())

	signals := bus.New(cfg.Signal.ChannelCapacity)
	executionEngine := engine.New(logger, registry, signals, cfg.SignalCooldown())

	var depthAnalyzer *orderbook.Analyzer
	if cfg.OrderBook.Enabled {
		depthAnalyzer = orderbook.NewAnalyzer(logger, binance.NewDepthStream(exchange), &orderbook.Config{
			Levels:              cfg.OrderBook.Levels,
			LargeOrderThreshold: cfg.OrderBook.LargeOrderThreshold,
			Staleness:           time.Duration(cfg.OrderBook.StalenessMS) * time.Millisecond,
		})
	}

	weights := sentiment.NewWeightsController(logger, store, &sentiment.WeightsControllerConfig{
		WinRateHigh: cfg.Weights.WinRateHigh,
		WinRateLow:  cfg.Weights.WinRateLow,
	})

	aggregator := sentiment.NewAggregator(
		logger,
		buildFetchers(logger, cfg, depthAnalyzer),
		weights,
		executionEngine,
		cfg.SourceTimeout(),
		cfg.Sources.Parallelism,
	)
	aggregator.Observe(weights.RecordCycle)

	fuser := fusion.New(logger, &fusion.Config{
		MinSentimentConfidence: cfg.Sentiment.MinConfidence,
		ConflictThreshold:      cfg.Sentiment.ConflictThreshold,
		MaxBoost:               cfg.Sentiment.MaxBoost,
		Staleness:              cfg.SentimentStaleness(),
	})

	broker := trader.NewPaperBroker(logger, executionEngine.LastPrice, cfg.Broker.QuoteAsset, cfg.Trading.StartingBalance)

	lifecycle := trader.New(logger, broker, store, notify, &trader.Config{
		MinExecConfidence: cfg.Trading.MinExecConfidence,
		MinExitConfidence: cfg.Trading.MinExitConfidence,
		StopLossPct:       cfg.Trading.StopLossPct,
		TakeProfitPct:     cfg.Trading.TakeProfitPct,
		MaxHold:           time.Duration(cfg.Trading.MaxHoldMinutes) * time.Minute,
		PositionCost:      cfg.Trading.PositionCost,
		RetryAttempts:     cfg.Broker.RetryAttempts,
		RetryBase:         time.Duration(cfg.Broker.RetryBaseMS) * time.Millisecond,
		StartingBalance:   cfg.Trading.StartingBalance,
	})

	pool, err := worker.New(logger, &worker.PoolConfig{NumProcess: 8})
	if err != nil {
		log.Fatal("failed to new worker: ", err)
	}

	server := &Server{
		logger:       logger,
		config:       cfg,
		store:        store,
		notify:       notify,
		binance:      exchange,
		feed:         marketFeed,
		orderbook:    depthAnalyzer,
		aggregator:   aggregator,
		weights:      weights,
		registry:     registry,
		engine:       executionEngine,
		signals:      signals,
		fuser:        fuser,
		trader:       lifecycle,
		worker:       pool,
		symbols:      symbols,
		fatalChannel: make(chan error, 1),
		quitChannel:  make(chan struct{}),
	}

	pool.WithProcess(server.fuse)
	return server
}

func (s *Server) Start() error {
	ctx := context.Background()

	if err := s.trader.Start(ctx); err != nil {
		s.logger.Error("failed to open trading session", zap.Error(err))
		os.Exit(ExitStartupFailure)
	}

	if s.orderbook != nil {
		s.orderbook.Start(s.symbols)
	}

	engineTicks := s.feed.Subscribe(s.config.Signal.ChannelCapacity)
	traderTicks := s.feed.Subscribe(s.config.Signal.ChannelCapacity)

	s.engine.Start(engineTicks)
	s.worker.Start()
	s.aggregator.Start(s.symbols, s.config.SentimentInterval())
	s.weights.Start(s.config.WeightsInterval())
	s.feed.Start()

	go s.consumeTrades(traderTicks)
	go s.pump()

	s.metricsServer = metrics.Serve(s.config.Metrics.Port)

	// catch sig
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	s.logger.Info("[Server] started", zap.Strings("symbols", s.symbols))

	select {
	case sig := <-sigs:
		s.logger.Info("[Server] shutting down", zap.String("signal", sig.String()))
		s.shutdown()
		return nil

	case err := <-s.fatalChannel:
		s.logger.Error("[Server] fatal steady-state error", zap.Error(err))

		s.notify.SendAlert(ctx, &alerts.Alert{
			Kind:     alerts.KindFatal,
			Severity: alerts.SeverityCritical,
			Message:  "shutting down after unrecoverable error",
			Fields:   map[string]interface{}{"error": err.Error()},
		})

		s.shutdown()
		os.Exit(ExitSteadyStateFailure)
		return err
	}
}

// shutdown follows the drain order: stop the feed first, drain the
// signal channel, let the trader finish in-flight work, persist and
// disconnect.
func (s *Server) shutdown() {
	close(s.quitChannel)

	s.feed.Stop()
	s.engine.Stop()

	// drain whatever the engine already published
	for {
		signal, ok := s.signals.Poll()
		if !ok {
			break
		}
		s.worker.SendJob(context.Background(), signal)
	}
	s.signals.Close()
	s.worker.Stop()

	s.trader.Stop(s.config.DrainTimeout())

	s.aggregator.Stop()
	s.weights.Stop()
	if s.orderbook != nil {
		s.orderbook.Stop()
	}

	if s.metricsServer != nil {
		s.metricsServer.Close()
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("[Server] store close failed", zap.Error(err))
	}

	s.logger.Info("[Server] shutdown complete")
}

// pump moves signals from the bounded bus into the worker pool.
func (s *Server) pump() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[Server] pump failed", zap.Any("error", r), zap.String("stacktrace", string(debug.Stack())))
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				signal, ok := s.signals.Poll()
				if !ok {
					break
				}
				s.worker.SendJob(context.Background(), signal)
			}

		case <-s.quitChannel:
			return
		}
	}
}

// fuse pairs one technical signal with the latest sentiment and hands
// the result to the lifecycle manager.
func (s *Server) fuse(ctx context.Context, message interface{}) error {
	technical, ok := message.(*models.TechnicalSignal)
	if !ok {
		return nil
	}

	enhanced := s.fuser.Fuse(technical, s.aggregator.Latest(technical.Symbol))

	if err := s.trader.HandleSignal(ctx, enhanced); err != nil {
		select {
		case s.fatalChannel <- err:
		default:
		}
		return err
	}

	return nil
}

func (s *Server) consumeTrades(ticks <-chan *models.Tick) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[Server] trade consumer failed", zap.Any("error", r), zap.String("stacktrace", string(debug.Stack())))
		}
	}()

	for tick := range ticks {
		s.trader.OnTick(context.Background(), tick)
	}
}

func newAlertManager(logger *logger.Logger, cfg *config.Config) *alerts.Manager {
	sinks := []alerts.Sink{alerts.NewLogSink(logger)}

	if cfg.Telegram.Token != "" {
		chatID := cfg.Notify.Channels["trading"]
		telegram, err := alerts.NewTelegramSink(logger, cfg.Telegram.Token, chatID)
		if err != nil {
			logger.Error("failed to new telegram sink, falling back to log alerts", zap.Error(err))
		} else {
			sinks = append(sinks, telegram)
		}
	}

	return alerts.NewManager(logger, sinks...)
}

// registerStrategies installs the configured strategies, or one of each
// kind on the configured symbols when none are declared. Invalid
// entries are skipped, never fatal.
func registerStrategies(logger *logger.Logger, registry *strategies.Registry, cfg *config.Config) {
	configs := make([]*strategies.Config, 0)
	if err := viper.UnmarshalKey("strategies", &configs); err != nil {
		logger.Error("failed to parse strategies config", zap.Error(err))
	}

	if len(configs) == 0 {
		for _, kind := range []string{
			strategies.KindRSIPullback,
			strategies.KindQuantumOscillator,
			strategies.KindNeuralConfidence,
			strategies.KindBollingerBreakout,
		} {
			configs = append(configs, &strategies.Config{
				ID:      kind + "-default",
				Name:    kind,
				Kind:    kind,
				Symbols: cfg.Trading.Symbols,
				Active:  true,
			})
		}
	}

	for _, c := range configs {
		if _, err := registry.Register(c); err != nil {
			logger.Error("[Server] skipping invalid strategy",
				zap.String("id", c.ID), zap.String("kind", c.Kind), zap.Error(err))
		}
	}
}

func buildFetchers(logger *logger.Logger, cfg *config.Config, depthAnalyzer *orderbook.Analyzer) []sources.Fetcher {
	scorer := nlp.NewScorer()

	keywords := func(symbol string) []string {
		return cfg.Sources.SymbolKeywords[symbol]
	}

	fetchers := make([]sources.Fetcher, 0, 5)

	if cfg.Sources.MicroblogURL != "" {
		fetchers = append(fetchers, sources.WithBreaker(logger,
			sources.NewMicroblog(scorer, cfg.Sources.MicroblogURL, cfg.Sources.MaxItems, keywords)))
	}
	if cfg.Sources.ForumURL != "" {
		fetchers = append(fetchers, sources.WithBreaker(logger,
			sources.NewForum(scorer, cfg.Sources.ForumURL, keywords)))
	}
	if len(cfg.Sources.NewsFeeds) > 0 {
		fetchers = append(fetchers, sources.WithBreaker(logger,
			sources.NewNews(scorer, cfg.Sources.NewsFeeds, keywords)))
	}
	if cfg.Sources.OnChainURL != "" {
		fetchers = append(fetchers, sources.WithBreaker(logger,
			sources.NewOnChain(scorer, cfg.Sources.OnChainURL, keywords)))
	}
	if depthAnalyzer != nil {
		fetchers = append(fetchers, sources.WithBreaker(logger, sources.NewOrderBook(depthAnalyzer)))
	}

	return fetchers
}
