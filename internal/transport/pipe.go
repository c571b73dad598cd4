package transport

import (
	"context"
	"net"
	"sync"
)

// Pipe is an in-memory Transport built on net.Pipe. Any address dials the
// single listener.
type Pipe struct {
	mu       sync.Mutex
	listener *pipeListener
}

// NewPipe returns an in-memory transport with no listener yet.
func NewPipe() *Pipe {
	return &Pipe{}
}

func (p *Pipe) Name() string { return "pipe" }

func (p *Pipe) Listen(ctx context.Context, addr string) (Listener, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener != nil {
		return nil, &net.OpError{Op: "listen", Net: "pipe", Err: errAddrInUse}
	}
	p.listener = &pipeListener{
		owner: p,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	return p.listener, nil
}

func (p *Pipe) Dial(ctx context.Context, addr string) (Stream, error) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l == nil {
		return nil, &net.OpError{Op: "dial", Net: "pipe", Err: errConnRefused}
	}
	client, server := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
		return nil, &net.OpError{Op: "dial", Net: "pipe", Err: errConnRefused}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pipeListener struct {
	owner     *Pipe
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (l *pipeListener) Accept(ctx context.Context) (Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, net.ErrClosed
	case c := <-l.conns:
		return c, nil
	}
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr{} }

func (l *pipeListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.owner.mu.Lock()
		l.owner.listener = nil
		l.owner.mu.Unlock()
	})
	return nil
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

type pipeError string

func (e pipeError) Error() string { return string(e) }

const (
	errAddrInUse   = pipeError("address already in use")
	errConnRefused = pipeError("connection refused")
)
