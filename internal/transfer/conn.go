package transfer

import (
	"bufio"
	"context"
	"fmt"

	"github.com/sheerbytes/chunkshare/internal/transport"
	"github.com/sheerbytes/chunkshare/pkg/protocol"
)

const connReadBuffer = 64 * 1024

// msgConn exchanges protocol messages over one stream. Reads are buffered;
// each message is written with a single Write. The stream is closed when
// ctx is cancelled so blocked reads return.
type msgConn struct {
	stream transport.Stream
	r      *bufio.Reader
	stop   func() bool
}

func newMsgConn(ctx context.Context, s transport.Stream) *msgConn {
	return &msgConn{
		stream: s,
		r:      bufio.NewReaderSize(s, connReadBuffer),
		stop:   transport.CloseOnDone(ctx, s),
	}
}

// dialConn opens a stream to addr and wraps it.
func dialConn(ctx context.Context, d transport.Dialer, addr string) (*msgConn, error) {
	stream, err := d.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return newMsgConn(ctx, stream), nil
}

func (c *msgConn) Send(m protocol.Message) error {
	return protocol.WriteMessage(c.stream, m)
}

func (c *msgConn) Recv() (protocol.Message, error) {
	return protocol.ReadMessage(c.r)
}

func (c *msgConn) Close() error {
	c.stop()
	return c.stream.Close()
}
