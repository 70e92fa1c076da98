package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"go.uber.org/zap"
)

type Process func(ctx context.Context, message interface{}) error

type PoolConfig struct {
	NumProcess     int32
	ProcessTimeout time.Duration
}

// Worker is a fixed-size pool draining one message channel. Panics in a
// process are recovered and logged; errors are logged, never swallowed.
type Worker struct {
	logger  *logger.Logger
	process Process
	message chan interface{}
	quit    chan struct{}
	wait    *sync.WaitGroup
	config  *PoolConfig
}

func New(logger *logger.Logger, config *PoolConfig) (*Worker, error) {
	if config == nil {
		return nil, errors.New("worker: config invalid")
	}

	if config.NumProcess == 0 {
		return nil, errors.New("worker: no process")
	}

	if config.ProcessTimeout == 0 {
		config.ProcessTimeout = 30 * time.Second
	}

	buffer := config.NumProcess * 2

	return &Worker{
		logger:  logger,
		message: make(chan interface{}, buffer),
		quit:    make(chan struct{}),
		wait:    &sync.WaitGroup{},
		config:  config,
	}, nil
}

func (w *Worker) WithProcess(process Process) *Worker {
	w.process = process
	return w
}

func (w *Worker) Start() error {
	for i := int32(0); i < w.config.NumProcess; i++ {
		w.wait.Add(1)

		go func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("[Worker] process message failed", zap.Any("error", r), zap.String("stacktrace", string(debug.Stack())))
				}
			}()

			defer w.wait.Done()

			for {
				select {
				case msg, ok := <-w.message:
					if ok {
						w.processMessage(msg)
					}

				case <-w.quit:
					// drain before quitting
					for {
						select {
						case msg, ok := <-w.message:
							if !ok {
								return
							}
							w.processMessage(msg)
						default:
							return
						}
					}
				}
			}
		}()
	}

	return nil
}

func (w *Worker) Stop() {
	close(w.quit)
	w.wait.Wait()
	close(w.message)
}

func (w *Worker) SendJob(ctx context.Context, message interface{}) {
	select {
	case w.message <- message:
	case <-ctx.Done():
	case <-w.quit:
	}
}

func (w *Worker) processMessage(message interface{}) {
	if w.process == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.config.ProcessTimeout)
	defer cancel()

	if err := w.process(ctx, message); err != nil {
		w.logger.Error("[Worker] process returned error", zap.Error(err))
	}
}
