// internal/command/eventqueue.go
package command

import (
	"sync"

	"serial-gateway/internal/buffer"
)

// eventQueue is a bounded FIFO of pre-formatted event messages. Pushing
// into a full queue evicts the oldest entry (drop-oldest backpressure;
// producers never block). It is the one endpoint structure touched from
// outside the poll loop, so it carries its own lock.
type eventQueue struct {
	mutex sync.Mutex
	ring  *buffer.Ring[string]
}

func newEventQueue(capacity int) *eventQueue {
	if capacity <= 0 {
		capacity = 10
	}
	return &eventQueue{ring: buffer.NewRing[string](capacity)}
}

func (q *eventQueue) Push(message string) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.ring.Free() == 0 {
		q.ring.Read()
	}
	q.ring.Write(message)
}

func (q *eventQueue) Pop() (string, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.ring.Read()
}

func (q *eventQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.ring.Len()
}
