// Package sip2test provides an in-process fake ACS (Automated Circulation
// System) speaking the SIP2 envelope, for use in tests and local tooling.
//
// The server reads terminator framed requests, answers each one and mirrors
// the request's sequence number. When a request carries the sequence and
// checksum fields, the reply carries them too.
package sip2test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-sip2/logger"
	"github.com/arloliu/go-sip2/sip2"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:0"

// InstitutionID is reported in ACS status replies.
const InstitutionID = "fakeacs"

// Delay bounds between retries after a failed Accept.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Handler computes the reply body for a request.
//
// req is the request without its terminator. The returned body is framed by
// the server: sequence and checksum fields are appended when the request had
// them, followed by the terminator.
type Handler func(req []byte) string

// RawHandler computes the exact bytes written back for a request.
type RawHandler func(req []byte) []byte

// Server is a fake ACS listening on a TCP address.
type Server struct {
	listener net.Listener
	logger   logger.Logger
	clock    func() time.Time

	handler        Handler
	rawHandler     RawHandler
	credentials    *sip2.LoginParams
	corruptReplies bool

	conns       *xsync.MapOf[uint64, net.Conn]
	cmdCounters *xsync.MapOf[string, *xsync.Counter]
	nextConnID  atomic.Uint64

	reqMutex sync.Mutex
	requests [][]byte

	wg     sync.WaitGroup
	closed atomic.Bool
	done   chan struct{}
}

type serverOptions struct {
	addr           string
	logger         logger.Logger
	clock          func() time.Time
	handler        Handler
	rawHandler     RawHandler
	credentials    *sip2.LoginParams
	corruptReplies bool
}

// Option configures a Server.
type Option func(*serverOptions)

// WithAddr sets the listen address. Defaults to DefaultAddr.
func WithAddr(addr string) Option {
	return func(o *serverOptions) { o.addr = addr }
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source used for date fields in replies.
func WithClock(now func() time.Time) Option {
	return func(o *serverOptions) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithHandler replaces the built-in reply logic. Replies are still framed.
func WithHandler(h Handler) Option {
	return func(o *serverOptions) { o.handler = h }
}

// WithRawHandler replaces the built-in reply logic and framing entirely.
func WithRawHandler(h RawHandler) Option {
	return func(o *serverOptions) { o.rawHandler = h }
}

// WithCredentials makes the built-in login handling reject any credentials
// other than p. By default every login is accepted.
func WithCredentials(p sip2.LoginParams) Option {
	return func(o *serverOptions) { o.credentials = &p }
}

// WithCorruptChecksum makes the server damage the checksum of every framed
// reply that carries one, so clients observe failed verification.
func WithCorruptChecksum() Option {
	return func(o *serverOptions) { o.corruptReplies = true }
}

// NewServer starts a fake ACS and begins accepting connections.
func NewServer(opts ...Option) (*Server, error) {
	o := serverOptions{
		addr:   DefaultAddr,
		logger: logger.GetLogger(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", o.addr)
	if err != nil {
		return nil, fmt.Errorf("sip2test: listen %s: %w", o.addr, err)
	}

	return newServer(listener, o), nil
}

// newServer starts serving on an already open listener.
func newServer(listener net.Listener, o serverOptions) *Server {
	s := &Server{
		listener:       listener,
		logger:         o.logger.With("component", "fakeacs"),
		clock:          o.clock,
		handler:        o.handler,
		rawHandler:     o.rawHandler,
		credentials:    o.credentials,
		corruptReplies: o.corruptReplies,
		conns:          xsync.NewMapOf[uint64, net.Conn](),
		cmdCounters:    xsync.NewMapOf[string, *xsync.Counter](),
		done:           make(chan struct{}),
	}

	s.logger.Debug("sip2test: listening", "address", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()

	return s
}

// Addr returns the listen address in host:port form.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the host part of the listen address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())

	return host
}

// Port returns the listen port.
func (s *Server) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}

	_, portStr, _ := net.SplitHostPort(s.Addr())
	port, _ := strconv.Atoi(portStr)

	return port
}

// ConnCount returns the number of currently open client connections.
func (s *Server) ConnCount() int {
	return s.conns.Size()
}

// Requests returns a copy of every request received so far, terminators included.
func (s *Server) Requests() [][]byte {
	s.reqMutex.Lock()
	defer s.reqMutex.Unlock()

	out := make([][]byte, len(s.requests))
	for i, req := range s.requests {
		out[i] = append([]byte(nil), req...)
	}

	return out
}

// CommandCount returns how many requests with the given two character
// command identifier were received.
func (s *Server) CommandCount(cmd string) int64 {
	counter, ok := s.cmdCounters.Load(cmd)
	if !ok {
		return 0
	}

	return counter.Value()
}

// Close stops accepting, closes every open connection and waits for the
// connection handlers to return.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)

	err := s.listener.Close()

	s.conns.Range(func(_ uint64, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})

	s.wg.Wait()

	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	var delay time.Duration

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			delay = nextAcceptBackoff(delay)
			s.logger.Error("sip2test: accept failed", "error", err, "retryIn", delay)

			if !s.wait(delay) {
				return
			}

			continue
		}
		delay = 0

		id := s.nextConnID.Add(1)
		s.conns.Store(id, conn)

		// Close may have swept the registry before this Store.
		if s.closed.Load() {
			_ = conn.Close()
		}

		s.logger.Debug("sip2test: connection accepted", "remoteAddr", conn.RemoteAddr().String())

		s.wg.Add(1)
		go s.serveConn(id, conn)
	}
}

// wait sleeps for d. It returns false when the server is closed meanwhile.
func (s *Server) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.done:
		return false
	case <-timer.C:
		return true
	}
}

// nextAcceptBackoff doubles the previous delay within
// [minAcceptBackoff, maxAcceptBackoff].
func nextAcceptBackoff(prev time.Duration) time.Duration {
	if prev < minAcceptBackoff {
		return minAcceptBackoff
	}

	return min(prev*2, maxAcceptBackoff)
}

func (s *Server) serveConn(id uint64, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.conns.Delete(id)
		_ = conn.Close()
	}()

	reader := bufio.NewReader(conn)

	for {
		req, err := reader.ReadBytes(sip2.Terminator)
		if err != nil {
			return
		}

		s.recordRequest(req)

		reply := s.reply(req[:len(req)-1])
		if _, err := conn.Write(reply); err != nil {
			s.logger.Debug("sip2test: write reply failed", "error", err)

			return
		}
	}
}

func (s *Server) recordRequest(req []byte) {
	s.reqMutex.Lock()
	s.requests = append(s.requests, append([]byte(nil), req...))
	s.reqMutex.Unlock()

	if len(req) >= 2 {
		counter, _ := s.cmdCounters.LoadOrCompute(string(req[:2]), xsync.NewCounter)
		counter.Inc()
	}

	s.logger.Debug("sip2test: request", "msg", strconv.Quote(string(req)))
}

// reply builds the full reply for req, which has no terminator.
func (s *Server) reply(req []byte) []byte {
	if s.rawHandler != nil {
		return s.rawHandler(req)
	}

	var body string
	if s.handler != nil {
		body = s.handler(req)
	} else {
		body = s.defaultReply(req)
	}

	seqNum, _ := sip2.ParseSeqField(req)

	out, err := sip2.AppendMessage(nil, body, seqNum)
	if err != nil {
		// ParseSeqField never yields a negative number
		return []byte(body + string(sip2.Terminator))
	}

	if s.corruptReplies && seqNum != 0 {
		corruptChecksum(out)
	}

	return out
}

// corruptChecksum changes the last checksum digit of a framed reply.
func corruptChecksum(framed []byte) {
	i := len(framed) - 2
	if framed[i] == '0' {
		framed[i] = '1'
	} else {
		framed[i] = '0'
	}
}

func (s *Server) defaultReply(req []byte) string {
	msg := string(req)

	switch {
	case strings.HasPrefix(msg, sip2.LoginCommand):
		return s.loginReply(msg)
	case strings.HasPrefix(msg, "99"):
		return s.statusReply()
	default:
		// Request SC Resend
		return "96"
	}
}

func (s *Server) loginReply(msg string) string {
	if s.credentials == nil {
		return "941"
	}

	fields := parseFields(msg[min(len(msg), 6):])
	if fields["CN"] == s.credentials.Username &&
		fields["CO"] == s.credentials.Password {
		return "941"
	}

	return "940"
}

// statusReply builds an ACS Status message: online, checkin, checkout,
// renewal policy, status update and offline flags, timeout period, retries,
// date, protocol version, institution and supported messages.
func (s *Server) statusReply() string {
	return "98" + "YYYYNN" + "100" + "003" +
		sip2.SIPDate(s.clock()) + "2.00" +
		"AO" + InstitutionID + "|" +
		"BXYYNNNNNNNNNNNN|"
}

// parseFields splits variable length fields of the form <ID><value>|.
func parseFields(s string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(s, "|") {
		if len(part) < 2 {
			continue
		}
		fields[part[:2]] = part[2:]
	}

	return fields
}
