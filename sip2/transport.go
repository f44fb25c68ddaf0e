package sip2

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/arloliu/go-sip2/internal/pool"
)

// Stream is a connected, bidirectional byte stream. net.Conn satisfies it.
//
// RemoteAddr is used to tell which transport the stream runs over; login is
// only permitted over the raw TCP transport.
type Stream interface {
	io.Reader
	io.Writer
	RemoteAddr() net.Addr
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// streamTransport performs the raw write and read of one exchange.
//
// This type is NOT goroutine-safe. Client serializes access to it.
type streamTransport struct {
	rw  io.ReadWriter
	cfg *ClientConfig

	// reader is created on first use in ReadUntilTerminator mode and keeps
	// any bytes received after a terminator for the next exchange.
	reader *bufio.Reader
}

func newStreamTransport(rw io.ReadWriter, cfg *ClientConfig) *streamTransport {
	return &streamTransport{rw: rw, cfg: cfg}
}

// writeRequest writes data with a single Write call.
// Per the io.Writer contract a short write without error is a broken writer.
func (st *streamTransport) writeRequest(data []byte) error {
	if st.cfg.writeTimeout > 0 {
		if wd, ok := st.rw.(writeDeadliner); ok {
			if err := wd.SetWriteDeadline(time.Now().Add(st.cfg.writeTimeout)); err != nil {
				return fmt.Errorf("sip2: set write deadline: %w", err)
			}
		}
	}

	n, err := st.rw.Write(data)
	if err != nil {
		return fmt.Errorf("sip2: write request: %w", err)
	}
	if n < len(data) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(data))
	}

	return nil
}

// readResponse reads one response according to the configured read mode.
// The returned slice is owned by the caller.
func (st *streamTransport) readResponse() ([]byte, error) {
	if st.cfg.readTimeout > 0 {
		if rd, ok := st.rw.(readDeadliner); ok {
			if err := rd.SetReadDeadline(time.Now().Add(st.cfg.readTimeout)); err != nil {
				return nil, fmt.Errorf("sip2: set read deadline: %w", err)
			}
		}
	}

	if st.cfg.readMode == ReadUntilTerminator {
		return st.readUntilTerminator()
	}

	return st.readSingle()
}

// readSingle issues exactly one Read of at most maxReadSize bytes.
// Data returned together with io.EOF is delivered; the EOF surfaces on the
// next exchange.
func (st *streamTransport) readSingle() ([]byte, error) {
	buf := pool.GetBuffer(st.cfg.maxReadSize)
	defer pool.PutBuffer(buf)

	n, err := st.rw.Read(buf)
	if err != nil && (n == 0 || !errors.Is(err, io.EOF)) {
		return nil, fmt.Errorf("sip2: read response: %w", err)
	}

	resp := make([]byte, n)
	copy(resp, buf[:n])

	return resp, nil
}

// readUntilTerminator reads up to and including the terminator.
func (st *streamTransport) readUntilTerminator() ([]byte, error) {
	if st.reader == nil {
		st.reader = bufio.NewReaderSize(st.rw, st.cfg.maxReadSize)
	}

	line, err := st.reader.ReadSlice(Terminator)
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		st.discardLine()
		return nil, fmt.Errorf("%w: no terminator within %d bytes", ErrResponseTooLarge, st.cfg.maxReadSize)
	case err != nil && len(line) == 0:
		return nil, fmt.Errorf("sip2: read response: %w", err)
	case len(line) > st.cfg.maxReadSize:
		// bufio enforces a 16-byte minimum buffer
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, len(line))
	}

	// A partial line followed by EOF is returned as is.
	resp := make([]byte, len(line))
	copy(resp, line)

	return resp, nil
}

// discardLine drops buffered and incoming bytes up to and including the next
// terminator, so the rest of an oversized response is not returned as the
// response to the following request. It stops early on a read error.
func (st *streamTransport) discardLine() {
	for {
		_, err := st.reader.ReadSlice(Terminator)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return
		}
	}
}

// remotePort returns the port of the stream's remote address.
func remotePort(rw io.ReadWriter) (int, bool) {
	s, ok := rw.(Stream)
	if !ok {
		return 0, false
	}

	addr := s.RemoteAddr()
	if addr == nil {
		return 0, false
	}

	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.Port, true
	}

	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, false
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, false
	}

	return port, true
}
