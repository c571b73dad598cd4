package transfer

import "sync"

// workQueue hands out chunk indices to concurrent workers. It starts as the
// static partition: worker i owns ranges[i] and takes from its front. A
// worker whose range is empty takes re-queued indices first, then steals
// one index from the back of the largest remaining range. Every index is
// held by at most one worker at a time.
//
// While other workers still hold indices, Next blocks instead of reporting
// an empty queue, since a failing worker may hand its index back.
type workQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	ranges   []ChunkRange
	requeue  []uint64
	inflight int
	closed   bool
}

func newWorkQueue(parts []ChunkRange) *workQueue {
	q := &workQueue{ranges: append([]ChunkRange(nil), parts...)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Next returns the next index for worker, or false when no work is left or
// the queue was closed. The caller must report the index back with Done or
// Requeue.
func (q *workQueue) Next(worker int) (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return 0, false
		}
		if idx, ok := q.take(worker); ok {
			q.inflight++
			return idx, true
		}
		if q.inflight == 0 {
			return 0, false
		}
		q.cond.Wait()
	}
}

func (q *workQueue) take(worker int) (uint64, bool) {
	if worker >= 0 && worker < len(q.ranges) {
		if r := &q.ranges[worker]; r.Len() > 0 {
			idx := r.Start
			r.Start++
			return idx, true
		}
	}
	if n := len(q.requeue); n > 0 {
		idx := q.requeue[n-1]
		q.requeue = q.requeue[:n-1]
		return idx, true
	}

	victim := -1
	var best uint64
	for i := range q.ranges {
		if l := q.ranges[i].Len(); l > best {
			victim, best = i, l
		}
	}
	if victim < 0 {
		return 0, false
	}
	q.ranges[victim].End--
	return q.ranges[victim].End, true
}

// Done marks an index handed out by Next as finished.
func (q *workQueue) Done(idx uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	q.cond.Broadcast()
}

// Requeue returns an index whose fetch failed so another worker can take it.
func (q *workQueue) Requeue(idx uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	q.requeue = append(q.requeue, idx)
	q.cond.Broadcast()
}

// Close wakes every blocked Next call; later calls return false.
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Remaining returns the number of indices not yet handed out.
func (q *workQueue) Remaining() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := uint64(len(q.requeue))
	for _, r := range q.ranges {
		n += r.Len()
	}
	return n
}
