package bufpool

import (
	"sync"
)

// Pool hands out chunk read buffers of a fixed capacity so a sender serving
// many sessions does not allocate a fresh chunk-sized slice per request.
type Pool struct {
	pool    sync.Pool
	bufSize int
}

var pools sync.Map // map[int]*Pool

// New creates a pool whose buffers have capacity bufSize.
func New(bufSize int) *Pool {
	if bufSize <= 0 {
		panic("bufSize must be positive")
	}
	p := &Pool{bufSize: bufSize}
	p.pool.New = func() any {
		buf := make([]byte, bufSize)
		return &buf
	}
	return p
}

// ForSize returns the process-wide pool for bufSize, creating it on first use.
func ForSize(bufSize int) *Pool {
	if pool, ok := pools.Load(bufSize); ok {
		return pool.(*Pool)
	}
	actual, _ := pools.LoadOrStore(bufSize, New(bufSize))
	return actual.(*Pool)
}

// Get returns a buffer of length n (n <= the pool's buffer size). Values of
// n outside that range get a freshly allocated slice that Put will discard.
func (p *Pool) Get(n int) []byte {
	if n < 0 || n > p.bufSize {
		return make([]byte, max(n, 0))
	}
	buf := *(p.pool.Get().(*[]byte))
	if cap(buf) < p.bufSize {
		buf = make([]byte, p.bufSize)
	}
	return buf[:n]
}

// Put returns buf to the pool. Undersized buffers are dropped.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.bufSize {
		return
	}
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}
