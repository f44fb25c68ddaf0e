package sip2

import (
	"bytes"
	"io"
	"net"
	"testing"
)

// fakeStream is a scripted Stream. Each Read returns data from the next
// chunk; Writes are recorded.
type fakeStream struct {
	written    bytes.Buffer
	writeCalls int
	writeErr   error
	shortWrite bool

	chunks  [][]byte
	readErr error // returned once chunks are exhausted, io.EOF when nil
	eofWith bool  // return io.EOF together with the last chunk

	addr net.Addr
}

var _ Stream = (*fakeStream)(nil)

func newFakeStream(port int, chunks ...string) *fakeStream {
	fs := &fakeStream{addr: tcpAddr(port)}
	for _, c := range chunks {
		fs.chunks = append(fs.chunks, []byte(c))
	}

	return fs
}

func (fs *fakeStream) Write(p []byte) (int, error) {
	fs.writeCalls++
	if fs.writeErr != nil {
		return 0, fs.writeErr
	}
	if fs.shortWrite && len(p) > 1 {
		fs.written.Write(p[:len(p)-1])
		return len(p) - 1, nil
	}

	return fs.written.Write(p)
}

func (fs *fakeStream) Read(p []byte) (int, error) {
	if len(fs.chunks) == 0 {
		if fs.readErr != nil {
			return 0, fs.readErr
		}
		return 0, io.EOF
	}

	n := copy(p, fs.chunks[0])
	fs.chunks[0] = fs.chunks[0][n:]
	if len(fs.chunks[0]) == 0 {
		fs.chunks = fs.chunks[1:]
	}

	if fs.eofWith && len(fs.chunks) == 0 {
		return n, io.EOF
	}

	return n, nil
}

func (fs *fakeStream) RemoteAddr() net.Addr {
	return fs.addr
}

func tcpAddr(port int) net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

// readWriter hides RemoteAddr from a stream.
type readWriter struct {
	io.Reader
	io.Writer
}

// newPipeConn creates a net.Pipe pair and registers cleanup.
func newPipeConn(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	return local, remote
}

// readRequest reads one terminated request from r, failing the test on error.
func readRequest(t *testing.T, r io.Reader) []byte {
	t.Helper()

	var req []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			t.Errorf("readRequest: %v", err)
			return req
		}
		req = append(req, buf[0])
		if buf[0] == Terminator {
			return req
		}
	}
}
