package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Every recovered error increments a counter here; nothing recovers
// silently.
var (
	FeedFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_feed_failures_total",
		Help: "Consecutive-failure events while pulling quotes.",
	})

	FetcherFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_fetcher_failures_total",
		Help: "Sentiment source fetch failures.",
	}, []string{"source"})

	BreakerOpen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_fetcher_breaker_open_total",
		Help: "Circuit breaker open transitions per source.",
	}, []string{"source"})

	SignalsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_signals_dropped_total",
		Help: "Signals evicted from the bounded signal channel.",
	})

	SignalsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_signals_published_total",
		Help: "Technical signals published per action.",
	}, []string{"action"})

	BrokerRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_broker_retries_total",
		Help: "Broker placeOrder retry attempts.",
	})

	BrokerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_broker_failures_total",
		Help: "Broker executions abandoned after exhausted retries.",
	})

	PersistenceRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_persistence_retries_total",
		Help: "Store write retries.",
	})

	RecoveredErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_recovered_errors_total",
		Help: "Errors recovered locally, by component.",
	}, []string{"component"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_open_positions",
		Help: "Currently open paper positions.",
	})

	OrderBookStale = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trading_orderbook_stale",
		Help: "1 when the depth snapshot for the symbol is stale.",
	}, []string{"symbol"})
)

// Serve exposes /metrics on the given port.
func Serve(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go server.ListenAndServe()
	return server
}
