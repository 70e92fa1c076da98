package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/stretchr/testify/assert"
)

type fakeProvider struct {
	counter int64
	fail    int64 // fail the first N calls
}

func (p *fakeProvider) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	n := atomic.AddInt64(&p.counter, 1)
	if n <= atomic.LoadInt64(&p.fail) {
		return nil, errors.New("upstream down")
	}

	return &models.Quote{
		Symbol: symbol,
		Price:  100 + float64(n),
		Volume: 10,
		Time:   n * 1000,
	}, nil
}

func TestBroadcastOrder(t *testing.T) {
	provider := &fakeProvider{}
	f := New(logger.NewDev(), provider, []string{"BTCUSDT"}, 10*time.Millisecond)

	a := f.Subscribe(16)
	b := f.Subscribe(16)

	assert.NoError(t, f.Start())

	collect := func(ch <-chan *models.Tick, n int) []*models.Tick {
		out := make([]*models.Tick, 0, n)
		timeout := time.After(2 * time.Second)
		for len(out) < n {
			select {
			case tick := <-ch:
				out = append(out, tick)
			case <-timeout:
				t.Fatal("timed out collecting ticks")
			}
		}
		return out
	}

	ticksA := collect(a, 3)
	ticksB := collect(b, 3)
	f.Stop()

	for i := 1; i < len(ticksA); i++ {
		assert.Less(t, ticksA[i-1].Time, ticksA[i].Time, "ticks must arrive in production order")
	}
	for i := range ticksA {
		assert.Equal(t, ticksA[i].Time, ticksB[i].Time, "all subscribers see the same stream")
	}
}

func TestFailureCounter(t *testing.T) {
	provider := &fakeProvider{fail: 2}
	f := New(logger.NewDev(), provider, []string{"BTCUSDT"}, 5*time.Millisecond)

	sub := f.Subscribe(4)
	assert.NoError(t, f.Start())

	select {
	case tick := <-sub:
		// first successful tick arrives only after both failures
		assert.NotNil(t, tick)
	case <-time.After(5 * time.Second):
		t.Fatal("never recovered from failures")
	}

	f.Stop()
	assert.Equal(t, 0, f.Failures("BTCUSDT"), "counter resets on success")
}
