package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// ALPNProtocol is the ALPN identifier for chunkshare over QUIC.
	ALPNProtocol = "chunkshare-v1"

	minQuicStreamWindow = 4 * 1024 * 1024
	maxQuicStreamWindow = 256 * 1024 * 1024
	udpSocketBuffer     = 8 * 1024 * 1024

	// quicLinger bounds how long a closing server stream waits for the peer
	// to read the final frame before the connection is torn down.
	quicLinger = 2 * time.Second
)

type quicTransport struct {
	chunkSize uint64
	logger    *slog.Logger

	certOnce sync.Once
	cert     tls.Certificate
	certErr  error
}

// NewQUIC returns a transport that carries each session on a single stream
// of its own QUIC connection. The certificate is self-signed and the client
// does not verify it; QUIC is used for its congestion control and loss
// recovery, not for authentication.
func NewQUIC(chunkSize uint64, logger *slog.Logger) Transport {
	return &quicTransport{chunkSize: chunkSize, logger: logger}
}

func (t *quicTransport) Name() string { return "quic" }

// BuildQuicConfig returns a QUIC config whose stream window holds at least
// two full chunk frames.
func BuildQuicConfig(chunkSize uint64) *quic.Config {
	stream := clampQuicStreamWindow(2 * (chunkSize + 64))
	return &quic.Config{
		KeepAlivePeriod:                10 * time.Second,
		MaxIdleTimeout:                 30 * time.Second,
		MaxIncomingStreams:             4,
		InitialStreamReceiveWindow:     stream,
		MaxStreamReceiveWindow:         stream,
		InitialConnectionReceiveWindow: stream,
		MaxConnectionReceiveWindow:     2 * stream,
	}
}

func clampQuicStreamWindow(n uint64) uint64 {
	if n < minQuicStreamWindow {
		return minQuicStreamWindow
	}
	if n > maxQuicStreamWindow {
		return maxQuicStreamWindow
	}
	return n
}

// ServerTLSConfig returns a TLS config with a fresh self-signed certificate.
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocol},
	}
}

// ClientTLSConfig returns the client TLS config; certificates are not verified.
func ClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPNProtocol},
	}
}

func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"chunkshare"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{certDER}, PrivateKey: priv}, nil
}

func (t *quicTransport) certificate() (tls.Certificate, error) {
	t.certOnce.Do(func() {
		t.cert, t.certErr = generateSelfSignedCert()
	})
	return t.cert, t.certErr
}

func (t *quicTransport) Listen(ctx context.Context, addr string) (Listener, error) {
	cert, err := t.certificate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if err := udpConn.SetReadBuffer(udpSocketBuffer); err != nil {
		t.logger.Debug("udp read buffer not applied", "error", err)
	}
	if err := udpConn.SetWriteBuffer(udpSocketBuffer); err != nil {
		t.logger.Debug("udp write buffer not applied", "error", err)
	}

	ln, err := quic.Listen(udpConn, ServerTLSConfig(cert), BuildQuicConfig(t.chunkSize))
	if err != nil {
		_ = udpConn.Close()
		t.logger.Error("QUIC listen failed", "error", err, "local_addr", udpConn.LocalAddr())
		return nil, fmt.Errorf("failed to start QUIC listener: %w", err)
	}
	t.logger.Debug("QUIC listener created", "local_addr", udpConn.LocalAddr())

	l := &quicListener{
		ln:      ln,
		udpConn: udpConn,
		logger:  t.logger,
		streams: make(chan *quicStream, 16),
		done:    make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

func (t *quicTransport) Dial(ctx context.Context, addr string) (Stream, error) {
	conn, err := quic.DialAddr(ctx, addr, ClientTLSConfig(), BuildQuicConfig(t.chunkSize))
	if err != nil {
		return nil, fmt.Errorf("failed to dial QUIC %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}
	return &quicStream{stream: stream, conn: conn}, nil
}

type quicListener struct {
	ln        *quic.Listener
	udpConn   *net.UDPConn
	logger    *slog.Logger
	streams   chan *quicStream
	done      chan struct{}
	closeOnce sync.Once
}

// acceptLoop accepts connections and waits for each one's first stream in
// its own goroutine, so a slow client never blocks the others.
func (l *quicListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept(context.Background())
		if err != nil {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			stream, err := conn.AcceptStream(ctx)
			if err != nil {
				l.logger.Debug("QUIC connection opened no stream", "remote_addr", conn.RemoteAddr(), "error", err)
				_ = conn.CloseWithError(0, "")
				return
			}
			qs := &quicStream{stream: stream, conn: conn, linger: true}
			select {
			case l.streams <- qs:
			case <-l.done:
				_ = qs.Close()
			}
		}()
	}
}

func (l *quicListener) Accept(ctx context.Context) (Stream, error) {
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

func (l *quicListener) Addr() net.Addr { return l.udpConn.LocalAddr() }

func (l *quicListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = errors.Join(l.ln.Close(), l.udpConn.Close())
	})
	return err
}

type quicStream struct {
	stream    *quic.Stream
	conn      *quic.Conn
	linger    bool
	closeOnce sync.Once
}

func (s *quicStream) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *quicStream) Write(p []byte) (int, error) { return s.stream.Write(p) }
func (s *quicStream) RemoteAddr() net.Addr        { return s.conn.RemoteAddr() }

// Close sends FIN on the stream and closes the connection. Server-side
// streams keep the connection open for up to quicLinger so the final frame
// is delivered before CONNECTION_CLOSE.
func (s *quicStream) Close() error {
	s.closeOnce.Do(func() {
		s.stream.CancelRead(0)
		_ = s.stream.Close()
		if !s.linger {
			_ = s.conn.CloseWithError(0, "")
			return
		}
		go func() {
			select {
			case <-s.conn.Context().Done():
			case <-time.After(quicLinger):
			}
			_ = s.conn.CloseWithError(0, "")
		}()
	})
	return nil
}
