package strategies

import (
	"fmt"
	"sync"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"go.uber.org/zap"
)

// Registry holds the typed strategies keyed by (strategy, symbol).
// Instances are created at startup and replaced only by an explicit
// re-registration.
type Registry struct {
	logger *logger.Logger

	mutex     sync.RWMutex
	instances map[string]*Instance            // id -> instance
	bySymbol  map[string]map[string]*Instance // symbol -> id -> instance
}

func NewRegistry(logger *logger.Logger) *Registry {
	return &Registry{
		logger:    logger,
		instances: make(map[string]*Instance),
		bySymbol:  make(map[string]map[string]*Instance),
	}
}

// Register validates the config against the kind's schema, clamps
// out-of-range parameters with a warning and installs the instance.
func (r *Registry) Register(config *Config) (*Instance, error) {
	if len(config.Symbols) == 0 {
		return nil, ErrNoSymbols
	}

	strategy, warnings, err := build(config)
	if err != nil {
		return nil, err
	}

	for _, warning := range warnings {
		r.logger.Warn("[Registry] parameter adjusted",
			zap.String("strategy", config.ID), zap.String("detail", warning))
	}

	instance := &Instance{
		ID:       config.ID,
		Name:     config.Name,
		Kind:     config.Kind,
		Symbols:  config.Symbols,
		Active:   config.Active,
		Strategy: strategy,
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.instances[config.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateStrategy, config.ID)
	}

	r.instances[config.ID] = instance
	for _, symbol := range config.Symbols {
		if r.bySymbol[symbol] == nil {
			r.bySymbol[symbol] = make(map[string]*Instance)
		}
		r.bySymbol[symbol][config.ID] = instance
	}

	r.logger.Info("[Registry] strategy registered",
		zap.String("id", config.ID), zap.String("kind", config.Kind), zap.Strings("symbols", config.Symbols))
	return instance, nil
}

// Reregister replaces an existing instance with a re-validated one.
func (r *Registry) Reregister(config *Config) (*Instance, error) {
	r.Unregister(config.ID)
	return r.Register(config)
}

func (r *Registry) Unregister(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	instance, ok := r.instances[id]
	if !ok {
		return
	}

	delete(r.instances, id)
	for _, symbol := range instance.Symbols {
		delete(r.bySymbol[symbol], id)
	}
}

// ForSymbol returns the active instances registered for the symbol.
func (r *Registry) ForSymbol(symbol string) []*Instance {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*Instance, 0, len(r.bySymbol[symbol]))
	for _, instance := range r.bySymbol[symbol] {
		if instance.Active {
			out = append(out, instance)
		}
	}
	return out
}

// Symbols returns every symbol with at least one active strategy.
func (r *Registry) Symbols() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]string, 0, len(r.bySymbol))
	for symbol, instances := range r.bySymbol {
		for _, instance := range instances {
			if instance.Active {
				out = append(out, symbol)
				break
			}
		}
	}
	return out
}

// MaxLookback returns the largest lookback any live strategy needs for
// the symbol; the engine sizes the symbol's price window with it.
func (r *Registry) MaxLookback(symbol string) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	max := 0
	for _, instance := range r.bySymbol[symbol] {
		if lookback := instance.Strategy.Lookback(); lookback > max {
			max = lookback
		}
	}
	return max
}

func build(config *Config) (Strategy, []string, error) {
	switch config.Kind {
	case KindRSIPullback:
		params := RSIPullbackParams{}
		warnings, err := decode(config.Kind, config.Params, &params)
		if err != nil {
			return nil, warnings, err
		}
		return NewRSIPullback(config.ID, params), warnings, nil

	case KindQuantumOscillator:
		params := QuantumOscillatorParams{}
		warnings, err := decode(config.Kind, config.Params, &params)
		if err != nil {
			return nil, warnings, err
		}
		return NewQuantumOscillator(config.ID, params), warnings, nil

	case KindNeuralConfidence:
		params := NeuralConfidenceParams{}
		warnings, err := decode(config.Kind, config.Params, &params)
		if err != nil {
			return nil, warnings, err
		}
		return NewNeuralConfidence(config.ID, params), warnings, nil

	case KindBollingerBreakout:
		params := BollingerBreakoutParams{}
		warnings, err := decode(config.Kind, config.Params, &params)
		if err != nil {
			return nil, warnings, err
		}
		return NewBollingerBreakout(config.ID, params), warnings, nil
	}

	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKind, config.Kind)
}
