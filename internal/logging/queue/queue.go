package queue

import (
	"github.com/Chichichkin/LogShipper/internal/logging"
)

const MaxQueueSize = 10000

// Queue is a bounded FIFO of entries awaiting shipment. Offer never blocks;
// it is safe for many producers and one consumer.
type Queue struct {
	entries chan *logging.Entry
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = MaxQueueSize
	}
	return &Queue{entries: make(chan *logging.Entry, capacity)}
}

// Offer enqueues entry, returning false without waiting when the queue is full.
func (q *Queue) Offer(entry *logging.Entry) bool {
	select {
	case q.entries <- entry:
		return true
	default:
		return false
	}
}

// DrainAll removes every entry queued at the time of the call, oldest first.
func (q *Queue) DrainAll() []*logging.Entry {
	n := len(q.entries)
	if n == 0 {
		return nil
	}

	batch := make([]*logging.Entry, 0, n)
	for i := 0; i < n; i++ {
		select {
		case entry := <-q.entries:
			batch = append(batch, entry)
		default:
			return batch
		}
	}
	return batch
}

func (q *Queue) Clear() {
	for {
		select {
		case <-q.entries:
		default:
			return
		}
	}
}

func (q *Queue) Len() int {
	return len(q.entries)
}

func (q *Queue) Cap() int {
	return cap(q.entries)
}
