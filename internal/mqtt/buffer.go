package mqtt

// pendingMsg is a serialized message held for replay after reconnection.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// pendingQueue is a fixed-capacity FIFO of messages published while offline.
// When full the oldest message is overwritten.
// Not safe for concurrent use; the bridge holds its mutex around every call.
type pendingQueue struct {
	buf     []pendingMsg
	head    int // next write position
	count   int
	dropped int // overwritten since last drain
}

func newPendingQueue(capacity int) *pendingQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &pendingQueue{buf: make([]pendingMsg, capacity)}
}

// push appends msg and reports whether an older message was lost to make room.
func (q *pendingQueue) push(msg pendingMsg) bool {
	capacity := len(q.buf)
	q.buf[q.head] = msg
	q.head = (q.head + 1) % capacity
	if q.count == capacity {
		q.dropped++
		return true
	}
	q.count++
	return false
}

// drain returns queued messages oldest first and the number dropped, then
// empties the queue.
func (q *pendingQueue) drain() ([]pendingMsg, int) {
	if q.count == 0 {
		return nil, 0
	}
	capacity := len(q.buf)
	out := make([]pendingMsg, q.count)
	start := (q.head - q.count + capacity) % capacity
	for i := range out {
		out[i] = q.buf[(start+i)%capacity]
	}
	dropped := q.dropped
	q.buf = make([]pendingMsg, capacity)
	q.head, q.count, q.dropped = 0, 0, 0
	return out, dropped
}

func (q *pendingQueue) len() int {
	return q.count
}
