package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

func entry(n int) *logging.Entry {
	return logging.NewEntry(logging.StatusProcessed, map[logging.Field]any{logging.FieldNumber: n})
}

func number(t *testing.T, e *logging.Entry) int {
	t.Helper()
	v, ok := e.ValueByKey(logging.FieldNumber)
	assert.True(t, ok)
	return v.(int)
}

func TestQueue_OfferRespectsCapacity(t *testing.T) {
	q := New(3)

	for i := 0; i < 3; i++ {
		assert.True(t, q.Offer(entry(i)))
	}
	assert.False(t, q.Offer(entry(99)))
	assert.Equal(t, 3, q.Len())

	batch := q.DrainAll()
	assert.Len(t, batch, 3)
	for i, e := range batch {
		assert.Equal(t, i, number(t, e))
	}
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := New(10)
	assert.Empty(t, q.DrainAll())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := New(0)
	assert.Equal(t, MaxQueueSize, q.Cap())
}

func TestQueue_Clear(t *testing.T) {
	q := New(5)
	q.Offer(entry(1))
	q.Offer(entry(2))
	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Offer(entry(3)))
}

func TestQueue_ConcurrentProducersNeverExceedCapacity(t *testing.T) {
	q := New(100)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	wg.Add(10)
	for w := 0; w < 10; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if q.Offer(entry(i)) {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
				assert.LessOrEqual(t, q.Len(), 100)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, accepted)
	assert.Len(t, q.DrainAll(), 100)
}

func TestQueue_DrainWhileProducing(t *testing.T) {
	q := New(1000)

	var wg sync.WaitGroup
	wg.Add(4)
	for w := 0; w < 4; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				q.Offer(entry(i))
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		total += len(q.DrainAll())
		select {
		case <-done:
			total += len(q.DrainAll())
			assert.Equal(t, 800, total)
			return
		default:
		}
	}
}
