package sip2

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/arloliu/go-sip2/logger"
)

// Response is the raw reply to one request together with its verification result.
type Response struct {
	// Request is the framed request that was written, terminator included.
	Request []byte
	// Raw is the bytes returned by the read, terminator included when received.
	Raw []byte
	// Verified is false only when Raw carries a checksum field that does not match.
	Verified bool
}

// String returns Raw as a string.
func (r Response) String() string {
	return string(r.Raw)
}

// Client sends SIP2 requests over a stream and verifies the responses.
//
// Each exchange is one write followed by one read with no retry. Exchanges on
// the same Client are serialized; the stream must not be used concurrently by
// anything else, otherwise responses can be attributed to the wrong request.
type Client struct {
	mu        sync.Mutex
	cfg       *ClientConfig
	logger    logger.Logger
	rw        io.ReadWriter
	transport *streamTransport

	// conn is set when the client dialed the stream itself and owns it.
	conn   net.Conn
	closed bool

	metrics ClientMetrics
}

// NewClient creates a Client on an already connected stream.
//
// The client never closes rw. Login requires rw to implement Stream so the
// remote port can be checked.
func NewClient(rw io.ReadWriter, opts ...ClientOption) (*Client, error) {
	if rw == nil {
		return nil, ErrStreamNil
	}

	cfg, err := NewClientConfig(opts...)
	if err != nil {
		return nil, err
	}

	return newClient(rw, cfg), nil
}

func newClient(rw io.ReadWriter, cfg *ClientConfig) *Client {
	return &Client{
		cfg:       cfg,
		logger:    cfg.logger,
		rw:        rw,
		transport: newStreamTransport(rw, cfg),
	}
}

// Dial connects to the ACS at host:port over TCP and returns a Client owning
// the connection. An empty host means DefaultHost and a zero port DefaultPort.
func Dial(ctx context.Context, host string, port int, opts ...ClientOption) (*Client, error) {
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("sip2: port %d out of range [1, 65535]", port)
	}

	cfg, err := NewClientConfig(opts...)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: cfg.connectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sip2: dial %s: %w", addr, err)
	}

	cfg.logger.Debug("sip2: connected", "remoteAddress", conn.RemoteAddr().String())

	c := newClient(conn, cfg)
	c.conn = conn

	return c, nil
}

// Config returns the client's configuration.
func (c *Client) Config() *ClientConfig {
	return c.cfg
}

// GetLogger returns the logger associated with the client.
func (c *Client) GetLogger() logger.Logger {
	return c.logger
}

// Metrics returns the metrics associated with the client.
func (c *Client) Metrics() *ClientMetrics {
	return &c.metrics
}

// RemoteAddr returns the remote address of the stream, or nil when the stream
// does not expose one.
func (c *Client) RemoteAddr() net.Addr {
	if s, ok := c.rw.(Stream); ok {
		return s.RemoteAddr()
	}

	return nil
}

// Close marks the client closed. The underlying connection is closed only
// when the client was created by Dial.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}

// Send frames body, writes it, reads one response and verifies it.
//
// A non-zero seqNum appends the sequence field and the checksum field.
// Transport failures are returned as errors; a checksum mismatch is not an
// error and is reported through Response.Verified.
func (c *Client) Send(body string, seqNum int) (Response, error) {
	return c.SendMessage(Message{Body: body, SeqNum: seqNum})
}

// SendAuto is Send with the next number of the configured sequence generator.
func (c *Client) SendAuto(body string) (Response, error) {
	return c.Send(body, c.cfg.seqGen.Next())
}

// SendMessage sends msg and returns its verified response.
func (c *Client) SendMessage(msg Message) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Response{}, ErrClientClosed
	}

	return c.exchange(msg)
}

// Login sends a login request with the given credentials.
//
// Login is only permitted when the remote port of the stream is the raw
// transport port. Otherwise a *ProtocolError wrapping ErrUnsupportedTransport
// is returned and nothing is written.
func (c *Client) Login(username, password, location string, seqNum int) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Response{}, ErrClientClosed
	}

	port, ok := remotePort(c.rw)
	if !ok || port != c.cfg.rawPort {
		c.metrics.incProtocolErrCount()

		return Response{}, &ProtocolError{Op: "login", Port: port, Err: ErrUnsupportedTransport}
	}

	return c.exchange(Message{Body: LoginBody(username, password, location), SeqNum: seqNum})
}

// LoginAuto is Login with p and the next number of the configured sequence generator.
func (c *Client) LoginAuto(p LoginParams) (Response, error) {
	return c.Login(p.Username, p.Password, p.Location, c.cfg.seqGen.Next())
}

// exchange must be called with c.mu held.
func (c *Client) exchange(msg Message) (Response, error) {
	data, err := msg.Encode()
	if err != nil {
		return Response{}, err
	}

	c.logger.Debug("sip2: sending", "msg", strconv.Quote(string(data)))

	if err := c.transport.writeRequest(data); err != nil {
		c.metrics.incTransportErrCount()

		return Response{}, err
	}
	c.metrics.incRequestSendCount(len(data))

	raw, err := c.transport.readResponse()
	if err != nil {
		c.metrics.incTransportErrCount()

		return Response{}, err
	}
	c.metrics.incResponseRecvCount(len(raw))

	resp := Response{Request: data, Raw: raw, Verified: c.cfg.verifyMode.verify(raw)}

	c.logger.Debug("sip2: received", "msg", strconv.Quote(string(raw)), "verified", resp.Verified)

	if !resp.Verified {
		c.metrics.incVerifyFailCount()
		c.logger.Warn("sip2: response checksum mismatch",
			"msg", strconv.Quote(string(raw)),
			"verifyMode", c.cfg.verifyMode.String())
	}

	return resp, nil
}

// Send frames body, writes it to rw, reads one response of at most
// DefaultMaxReadSize bytes with a single Read and verifies it.
func Send(rw io.ReadWriter, body string, seqNum int) (Response, error) {
	c, err := NewClient(rw)
	if err != nil {
		return Response{}, err
	}

	return c.Send(body, seqNum)
}

// Login sends a login request over stream with the default client settings.
// See Client.Login.
func Login(stream Stream, username, password, location string, seqNum int) (Response, error) {
	c, err := NewClient(stream)
	if err != nil {
		return Response{}, err
	}

	return c.Login(username, password, location, seqNum)
}
