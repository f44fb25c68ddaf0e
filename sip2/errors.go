package sip2

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSeqNum indicates a negative sequence number was supplied.
	ErrInvalidSeqNum = errors.New("sip2: sequence number must not be negative")

	// ErrUnsupportedTransport is wrapped by ProtocolError when login is attempted
	// over a transport other than the raw TCP transport.
	ErrUnsupportedTransport = errors.New("login over this transport is unsupported")

	// ErrShortWrite indicates the stream accepted fewer bytes than the request
	// without reporting an error.
	ErrShortWrite = errors.New("sip2: short write")

	// ErrResponseTooLarge indicates no terminator was seen within the maximum read size.
	ErrResponseTooLarge = errors.New("sip2: response exceeds maximum read size")

	// ErrStreamNil indicates a nil stream was given to NewClient.
	ErrStreamNil = errors.New("sip2: stream is nil")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("sip2: client closed")
)

// ProtocolError reports an operation that the protocol does not allow over the
// current transport. No bytes are written to the stream when it is returned.
type ProtocolError struct {
	Op   string // operation, e.g. "login"
	Port int    // remote port of the stream, 0 when unknown
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Port == 0 {
		return fmt.Sprintf("sip2: %s: unknown remote port: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("sip2: %s: remote port %d: %v", e.Op, e.Port, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
