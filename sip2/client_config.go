package sip2

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-sip2/logger"
)

// Default client settings.
const (
	DefaultHost           = "localhost"
	DefaultPort           = RawTransportPort
	DefaultMaxReadSize    = 1000
	DefaultConnectTimeout = 3 * time.Second
)

// MaxReadSizeLimit bounds the configurable read size.
const MaxReadSizeLimit = 65535

// ReadMode selects how a response is read from the stream.
type ReadMode uint8

const (
	// ReadSingle issues one Read call of at most the maximum read size and
	// returns whatever it yields. This is the default.
	ReadSingle ReadMode = iota
	// ReadUntilTerminator reads until the terminator is seen, bounded by the
	// maximum read size.
	ReadUntilTerminator
)

func (m ReadMode) String() string {
	switch m {
	case ReadSingle:
		return "single"
	case ReadUntilTerminator:
		return "terminator"
	default:
		return "unknown"
	}
}

// ClientConfig holds the configuration of a SIP2 client.
type ClientConfig struct {
	maxReadSize int
	readMode    ReadMode
	verifyMode  VerifyMode

	// rawPort is the remote port identifying the raw TCP transport.
	rawPort int

	// Zero read/write timeouts mean no deadline is applied.
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration

	seqGen *SeqGen
	logger logger.Logger
}

// NewClientConfig creates a client configuration.
// opts are functional options applied in order; see With* functions.
func NewClientConfig(opts ...ClientOption) (*ClientConfig, error) {
	cfg := &ClientConfig{
		maxReadSize:    DefaultMaxReadSize,
		readMode:       ReadSingle,
		verifyMode:     VerifyTerminator,
		rawPort:        RawTransportPort,
		connectTimeout: DefaultConnectTimeout,
		seqGen:         getSeqGen(),
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// MaxReadSize returns the maximum number of bytes read for one response.
func (cfg *ClientConfig) MaxReadSize() int { return cfg.maxReadSize }

// ReadMode returns the response read mode.
func (cfg *ClientConfig) ReadMode() ReadMode { return cfg.readMode }

// VerifyMode returns the response verification trimming mode.
func (cfg *ClientConfig) VerifyMode() VerifyMode { return cfg.verifyMode }

// RawPort returns the remote port on which login is permitted.
func (cfg *ClientConfig) RawPort() int { return cfg.rawPort }

// ConnectTimeout returns the TCP dial timeout used by Dial.
func (cfg *ClientConfig) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// ReadTimeout returns the read deadline applied per response, 0 for none.
func (cfg *ClientConfig) ReadTimeout() time.Duration { return cfg.readTimeout }

// WriteTimeout returns the write deadline applied per request, 0 for none.
func (cfg *ClientConfig) WriteTimeout() time.Duration { return cfg.writeTimeout }

// SeqGen returns the sequence generator used by the *Auto methods.
func (cfg *ClientConfig) SeqGen() *SeqGen { return cfg.seqGen }

// GetLogger returns the configured logger.
func (cfg *ClientConfig) GetLogger() logger.Logger { return cfg.logger }

// --- ClientOption ---

// ClientOption is a functional option for configuring a ClientConfig.
type ClientOption interface {
	apply(*ClientConfig) error
}

type clientOptFunc func(*ClientConfig) error

func (f clientOptFunc) apply(cfg *ClientConfig) error { return f(cfg) }

// WithMaxReadSize sets the maximum number of bytes read for one response.
// Must be in [1, MaxReadSizeLimit]. Defaults to DefaultMaxReadSize.
func WithMaxReadSize(n int) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if n < 1 || n > MaxReadSizeLimit {
			return fmt.Errorf("sip2: max read size %d out of range [1, %d]", n, MaxReadSizeLimit)
		}
		cfg.maxReadSize = n

		return nil
	})
}

// WithReadUntilTerminator reads responses until the terminator instead of
// issuing a single Read call. Bytes following the terminator are kept for the
// next exchange on the same client.
func WithReadUntilTerminator() ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		cfg.readMode = ReadUntilTerminator

		return nil
	})
}

// WithLegacyVerify verifies responses with VerifyLegacy, which trims one
// extra byte before the terminator as older SIP2 test clients do.
func WithLegacyVerify() ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		cfg.verifyMode = VerifyLegacyTrim

		return nil
	})
}

// WithRawPort sets the remote port identifying the raw TCP transport.
// Must be in [1, 65535]. Defaults to RawTransportPort.
func WithRawPort(port int) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("sip2: raw port %d out of range [1, 65535]", port)
		}
		cfg.rawPort = port

		return nil
	})
}

// WithConnectTimeout sets the TCP dial timeout used by Dial.
func WithConnectTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d <= 0 {
			return errors.New("sip2: connect timeout must be positive")
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithReadTimeout sets a read deadline for each response. It only takes
// effect on streams implementing SetReadDeadline. Zero disables it.
func WithReadTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d < 0 {
			return errors.New("sip2: read timeout must not be negative")
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithWriteTimeout sets a write deadline for each request. It only takes
// effect on streams implementing SetWriteDeadline. Zero disables it.
func WithWriteTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d < 0 {
			return errors.New("sip2: write timeout must not be negative")
		}
		cfg.writeTimeout = d

		return nil
	})
}

// WithSeqGen sets the sequence generator used by SendAuto and LoginAuto.
func WithSeqGen(g *SeqGen) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if g == nil {
			return errors.New("sip2: sequence generator must not be nil")
		}
		cfg.seqGen = g

		return nil
	})
}

// WithLogger sets the logger for the client.
func WithLogger(l logger.Logger) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if l == nil {
			return errors.New("sip2: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
