package transport

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/chunkshare/internal/config"
	"github.com/sheerbytes/chunkshare/internal/logging"
)

func newTransport(t *testing.T, name string) Transport {
	t.Helper()
	if name == "pipe" {
		return NewPipe()
	}
	tr, err := New(name, Options{ChunkSize: 64 * 1024, Logger: logging.Discard()})
	require.NoError(t, err)
	require.Equal(t, name, tr.Name())
	return tr
}

// echoRoundTrip sends payload to an echo server over tr and checks it comes back intact.
func echoRoundTrip(t *testing.T, tr Transport, payload []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ln, err := tr.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverErr := make(chan error, 1)
	go func() {
		s, err := ln.Accept(ctx)
		if err != nil {
			serverErr <- err
			return
		}
		defer s.Close()
		buf := make([]byte, len(payload))
		if _, err := io.ReadFull(s, buf); err != nil {
			serverErr <- err
			return
		}
		_, err = s.Write(buf)
		serverErr <- err
	}()

	s, err := tr.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, s.RemoteAddr())

	_, err = s.Write(payload)
	require.NoError(t, err)
	got := make([]byte, len(payload))
	_, err = io.ReadFull(s, got)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got), "echoed payload differs")
	require.NoError(t, <-serverErr)
}

func TestTransportsEcho(t *testing.T) {
	payload := make([]byte, 256*1024)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	for _, name := range []string{"pipe", config.TransportTCP, config.TransportWS, config.TransportQUIC} {
		t.Run(name, func(t *testing.T) {
			echoRoundTrip(t, newTransport(t, name), payload)
		})
	}
}

func TestNewUnknownTransport(t *testing.T) {
	_, err := New("smoke-signals", Options{})
	require.Error(t, err)
}

func TestListenerAcceptHonoursContext(t *testing.T) {
	for _, name := range []string{"pipe", config.TransportTCP, config.TransportWS} {
		t.Run(name, func(t *testing.T) {
			tr := newTransport(t, name)
			ln, err := tr.Listen(context.Background(), "127.0.0.1:0")
			require.NoError(t, err)
			defer ln.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err = ln.Accept(ctx)
			require.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestPipeDialWithoutListener(t *testing.T) {
	p := NewPipe()
	_, err := p.Dial(context.Background(), "anything")
	require.Error(t, err)

	ln, err := p.Listen(context.Background(), "")
	require.NoError(t, err)
	_, err = p.Listen(context.Background(), "")
	require.Error(t, err, "second listener must be rejected")
	require.NoError(t, ln.Close())

	_, err = ln.Accept(context.Background())
	require.True(t, errors.Is(err, net.ErrClosed))
}

func TestCloseOnDoneUnblocksRead(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stop := CloseOnDone(ctx, client)
	defer stop()

	readErr := make(chan error, 1)
	go func() {
		_, err := client.Read(make([]byte, 1))
		readErr <- err
	}()
	cancel()

	select {
	case err := <-readErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read was not unblocked by context cancellation")
	}
}

func TestBuildQuicConfigWindows(t *testing.T) {
	small := BuildQuicConfig(1024)
	require.Equal(t, uint64(minQuicStreamWindow), small.MaxStreamReceiveWindow)

	large := BuildQuicConfig(1 << 30)
	require.Equal(t, uint64(maxQuicStreamWindow), large.MaxStreamReceiveWindow)

	mid := BuildQuicConfig(16 * 1024 * 1024)
	require.GreaterOrEqual(t, mid.MaxStreamReceiveWindow, uint64(2*16*1024*1024))
	require.Equal(t, 2*mid.MaxStreamReceiveWindow, mid.MaxConnectionReceiveWindow)
}

func TestTLSConfigs(t *testing.T) {
	cert, err := generateSelfSignedCert()
	require.NoError(t, err)
	require.NotNil(t, cert.PrivateKey)

	srv := ServerTLSConfig(cert)
	require.Len(t, srv.Certificates, 1)
	require.Contains(t, srv.NextProtos, ALPNProtocol)

	cli := ClientTLSConfig()
	require.True(t, cli.InsecureSkipVerify)
	require.Contains(t, cli.NextProtos, ALPNProtocol)
}
