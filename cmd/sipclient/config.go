package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/arloliu/go-sip2/logger"
	"github.com/arloliu/go-sip2/sip2"
)

// clientConfig is the resolved configuration of the interactive client.
type clientConfig struct {
	Host  string
	Port  int
	Login sip2.LoginParams

	// RawPort is the remote port on which login is permitted.
	RawPort int

	// SeqNum is the fixed sequence number; ignored when AutoSeq is set.
	SeqNum  int
	AutoSeq bool

	ReadMode     sip2.ReadMode
	LegacyVerify bool
	MaxReadSize  int

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	LogLevel    logger.Level
	HistoryFile string
}

type fileConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RawPort        int    `toml:"raw_port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Location       string `toml:"location"`
	Seq            int    `toml:"seq"`
	AutoSeq        bool   `toml:"auto_seq"`
	ReadMode       string `toml:"read_mode"`
	LegacyVerify   bool   `toml:"legacy_verify"`
	MaxReadSize    int    `toml:"max_read_size"`
	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
	LogLevel       string `toml:"log_level"`
	HistoryFile    string `toml:"history_file"`
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		Host:           sip2.DefaultHost,
		Port:           sip2.DefaultPort,
		RawPort:        sip2.RawTransportPort,
		Login:          sip2.DefaultLoginParams,
		ReadMode:       sip2.ReadSingle,
		MaxReadSize:    sip2.DefaultMaxReadSize,
		ConnectTimeout: sip2.DefaultConnectTimeout,
		LogLevel:       logger.InfoLevel,
		HistoryFile:    ".sipclient_history",
	}
}

// loadClientConfig reads a TOML file on top of the defaults.
// An empty path yields the defaults.
func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load sipclient config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return clientConfig{}, fmt.Errorf("load sipclient config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("raw_port") {
		cfg.RawPort = raw.RawPort
	}
	if meta.IsDefined("username") {
		cfg.Login.Username = raw.Username
	}
	if meta.IsDefined("password") {
		cfg.Login.Password = raw.Password
	}
	if meta.IsDefined("location") {
		cfg.Login.Location = raw.Location
	}
	if meta.IsDefined("seq") {
		cfg.SeqNum = raw.Seq
	}
	if meta.IsDefined("auto_seq") {
		cfg.AutoSeq = raw.AutoSeq
	}
	if meta.IsDefined("read_mode") {
		mode, err := parseReadMode(raw.ReadMode)
		if err != nil {
			return clientConfig{}, err
		}
		cfg.ReadMode = mode
	}
	if meta.IsDefined("legacy_verify") {
		cfg.LegacyVerify = raw.LegacyVerify
	}
	if meta.IsDefined("max_read_size") {
		cfg.MaxReadSize = raw.MaxReadSize
	}
	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("log_level") {
		lvl, ok := logger.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if !ok {
			return clientConfig{}, fmt.Errorf("parse log_level: unknown level %q", raw.LogLevel)
		}
		cfg.LogLevel = lvl
	}
	if meta.IsDefined("history_file") {
		cfg.HistoryFile = raw.HistoryFile
	}

	if err := cfg.validate(); err != nil {
		return clientConfig{}, err
	}

	return cfg, nil
}

func (cfg clientConfig) validate() error {
	if cfg.Host == "" {
		return fmt.Errorf("sipclient config: host is empty")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("sipclient config: port %d out of range [1, 65535]", cfg.Port)
	}
	if cfg.RawPort < 1 || cfg.RawPort > 65535 {
		return fmt.Errorf("sipclient config: raw_port %d out of range [1, 65535]", cfg.RawPort)
	}
	if cfg.SeqNum < 0 {
		return fmt.Errorf("sipclient config: seq %d must not be negative", cfg.SeqNum)
	}

	return nil
}

// clientOptions converts the configuration into sip2 client options.
func (cfg clientConfig) clientOptions(l logger.Logger) []sip2.ClientOption {
	opts := []sip2.ClientOption{
		sip2.WithLogger(l),
		sip2.WithMaxReadSize(cfg.MaxReadSize),
		sip2.WithConnectTimeout(cfg.ConnectTimeout),
		sip2.WithReadTimeout(cfg.ReadTimeout),
		sip2.WithRawPort(cfg.RawPort),
		sip2.WithSeqGen(sip2.NewSeqGen()),
	}
	if cfg.ReadMode == sip2.ReadUntilTerminator {
		opts = append(opts, sip2.WithReadUntilTerminator())
	}
	if cfg.LegacyVerify {
		opts = append(opts, sip2.WithLegacyVerify())
	}

	return opts
}

func parseReadMode(raw string) (sip2.ReadMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "single":
		return sip2.ReadSingle, nil
	case "terminator":
		return sip2.ReadUntilTerminator, nil
	default:
		return sip2.ReadSingle, fmt.Errorf("parse read_mode: unknown mode %q", raw)
	}
}
