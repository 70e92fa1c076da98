package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestWorkerProcessesAll(t *testing.T) {
	var processed int64

	w, err := New(logger.NewDev(), &PoolConfig{NumProcess: 4})
	assert.NoError(t, err)

	w.WithProcess(func(ctx context.Context, message interface{}) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})

	assert.NoError(t, w.Start())

	for i := 0; i < 20; i++ {
		w.SendJob(context.Background(), i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&processed) < 20 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	w.Stop()
	assert.Equal(t, int64(20), atomic.LoadInt64(&processed))
}

func TestWorkerConfigInvalid(t *testing.T) {
	_, err := New(logger.NewDev(), nil)
	assert.Error(t, err)

	_, err = New(logger.NewDev(), &PoolConfig{})
	assert.Error(t, err)
}
