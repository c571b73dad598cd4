package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSPath is the HTTP path the WebSocket transport upgrades on.
const WSPath = "/chunkshare"

var wsDialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
	ReadBufferSize:   64 * 1024,
	WriteBufferSize:  64 * 1024,
}

type wsTransport struct {
	logger *slog.Logger
}

// NewWS returns a transport that tunnels the byte stream through binary
// WebSocket messages, for networks that only pass HTTP.
func NewWS(logger *slog.Logger) Transport {
	return &wsTransport{logger: logger}
}

func (t *wsTransport) Name() string { return "ws" }

func (t *wsTransport) Listen(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	l := &wsListener{
		ln:      ln,
		streams: make(chan *wsStream, 16),
		done:    make(chan struct{}),
		logger:  t.logger,
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
			return
		}
		s := newWSStream(conn)
		select {
		case l.streams <- s:
		case <-l.done:
			_ = s.Close()
		}
	})
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("websocket server stopped", "error", err)
		}
	}()
	t.logger.Debug("websocket listener created", "local_addr", ln.Addr(), "path", WSPath)
	return l, nil
}

func (t *wsTransport) Dial(ctx context.Context, addr string) (Stream, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: WSPath}
	conn, resp, err := wsDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("websocket upgrade failed (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", u.String(), err)
	}
	return newWSStream(conn), nil
}

type wsListener struct {
	ln        net.Listener
	srv       *http.Server
	streams   chan *wsStream
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func (l *wsListener) Accept(ctx context.Context) (Stream, error) {
	select {
	case <-ctx.Done():
		_ = l.Close()
		return nil, ctx.Err()
	case <-l.done:
		return nil, net.ErrClosed
	case s := <-l.streams:
		return s, nil
	}
}

func (l *wsListener) Addr() net.Addr { return l.ln.Addr() }

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

// wsStream presents a WebSocket connection as a byte stream. Each Write is
// sent as one binary message; Read concatenates message payloads.
type wsStream struct {
	conn      *websocket.Conn
	readMu    sync.Mutex
	reader    io.Reader
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (s *wsStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	for {
		if s.reader == nil {
			messageType, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
