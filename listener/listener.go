// Package listener provides the net.Listener wrappers the relay server accepts connections with.
package listener

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// DefaultHandshakeTimeout bounds the protocol sniff and the TLS handshake of a new connection
const DefaultHandshakeTimeout = 10 * time.Second

// peekedConn is a net.Conn whose reads go through the reader holding the sniffed bytes
type peekedConn struct {
	net.Conn
	io.Reader
}

// Read reads from the io.Reader instead of the net.Conn
func (pc *peekedConn) Read(b []byte) (int, error) {
	return pc.Reader.Read(b)
}

// ProtocolMuxListener serves plain HTTP and HTTPS on the same port. The first bytes of every
// connection decide whether it is a TLS handshake. Without a TLS config every connection
// is returned as accepted.
//
// With a TLS config the sniff and the handshake run on their own goroutine per connection,
// so a client that connects and stays silent does not hold up Accept for the others.
type ProtocolMuxListener struct {
	net.Listener
	TLSConfig        *tls.Config
	HandshakeTimeout time.Duration

	setup   sync.Once
	start   sync.Once
	stop    sync.Once
	results chan acceptResult
	stopped chan struct{}
	stopErr error
}

// acceptResult is a classified connection or the error that ended its classification
type acceptResult struct {
	conn net.Conn
	err  error
}

// NewProtocolMuxListener wraps listener. tlsConfig may be nil for plain HTTP only.
func NewProtocolMuxListener(listener net.Listener, tlsConfig *tls.Config) *ProtocolMuxListener {
	return &ProtocolMuxListener{
		Listener:         listener,
		TLSConfig:        tlsConfig,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

func (l *ProtocolMuxListener) init() {
	l.setup.Do(func() {
		l.results = make(chan acceptResult)
		l.stopped = make(chan struct{})
	})
}

// Accept returns the next classified connection, upgraded to TLS when the client started a handshake.
// Connections that fail the sniff or the handshake are returned as errors.
func (l *ProtocolMuxListener) Accept() (net.Conn, error) {
	if l.TLSConfig == nil {
		rawConn, err := l.Listener.Accept()
		if err != nil {
			return nil, fmt.Errorf("accepting connection: %w", err)
		}
		return rawConn, nil
	}

	l.init()
	l.start.Do(func() { go l.acceptLoop() })

	select {
	case result := <-l.results:
		return result.conn, result.err
	case <-l.stopped:
		return nil, l.stopErr
	}
}

// Close closes the underlying listener and releases connections still being classified.
func (l *ProtocolMuxListener) Close() error {
	l.init()
	err := l.Listener.Close()
	l.shutdown(fmt.Errorf("accepting connection: %w", net.ErrClosed))
	return err
}

func (l *ProtocolMuxListener) shutdown(err error) {
	l.stop.Do(func() {
		l.stopErr = err
		close(l.stopped)
	})
}

// acceptLoop accepts raw connections until the listener is closed
func (l *ProtocolMuxListener) acceptLoop() {
	for {
		rawConn, err := l.Listener.Accept()
		if err != nil {
			err = fmt.Errorf("accepting connection: %w", err)
			if errors.Is(err, net.ErrClosed) {
				l.shutdown(err)
				return
			}
			if !l.deliver(acceptResult{err: err}) {
				return
			}
			continue
		}
		go func() {
			conn, err := l.upgrade(rawConn)
			l.deliver(acceptResult{conn: conn, err: err})
		}()
	}
}

// deliver hands result to Accept. It reports false, closing any conn, once the listener is stopped.
func (l *ProtocolMuxListener) deliver(result acceptResult) bool {
	select {
	case l.results <- result:
		return true
	case <-l.stopped:
		if result.conn != nil {
			result.conn.Close()
		}
		return false
	}
}

// upgrade sniffs rawConn and completes the TLS handshake when one was started.
func (l *ProtocolMuxListener) upgrade(rawConn net.Conn) (net.Conn, error) {
	reader := bufio.NewReader(rawConn)
	isTLS, err := l.sniff(rawConn, reader)
	if err != nil {
		rawConn.Close()
		return nil, err
	}

	conn := &peekedConn{Conn: rawConn, Reader: reader}
	if !isTLS {
		return conn, nil
	}

	tlsConn := tls.Server(conn, l.TLSConfig)
	if err := rawConn.SetReadDeadline(time.Now().Add(l.HandshakeTimeout)); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("setting read deadline for handshake: %w", err)
	}
	if err := tlsConn.Handshake(); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("performing tls handshake: %w", err)
	}
	if err := rawConn.SetReadDeadline(time.Time{}); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("clearing read deadline after handshake: %w", err)
	}
	return tlsConn, nil
}

// sniff peeks at the record header. A TLS handshake starts with content type 0x16 and major version 3.
func (l *ProtocolMuxListener) sniff(conn net.Conn, reader *bufio.Reader) (bool, error) {
	if err := conn.SetReadDeadline(time.Now().Add(l.HandshakeTimeout)); err != nil {
		return false, fmt.Errorf("setting read deadline for peek: %w", err)
	}

	peeked, peekErr := reader.Peek(5)

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return false, fmt.Errorf("clearing read deadline after peek: %w", err)
	}
	if peekErr != nil && !errors.Is(peekErr, bufio.ErrBufferFull) {
		return false, fmt.Errorf("peeking initial bytes: %w", peekErr)
	}
	return len(peeked) >= 2 && peeked[0] == 0x16 && peeked[1] == 0x03, nil
}

// ResilientListener keeps accepting after per-connection failures so that one bad client
// cannot stop http.Server.Serve. Only a closed listener ends Accept.
type ResilientListener struct {
	net.Listener
	Logger *slog.Logger
}

// NewResilientListener wraps listener, rejected connections are logged on logger.
func NewResilientListener(listener net.Listener, logger *slog.Logger) *ResilientListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ResilientListener{Listener: listener, Logger: logger}
}

// Accept returns the next connection, skipping over recoverable errors.
func (l *ResilientListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, err
			}
			l.Logger.Warn("connection rejected", "error", err)
			continue
		}
		return conn, nil
	}
}
