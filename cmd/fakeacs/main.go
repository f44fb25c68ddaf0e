// Command fakeacs runs a fake ACS that answers SIP2 requests.
//
// It listens until it receives an exit signal. The listen address can be set
// by the IP and PORT environment variables, a TOML configuration file or
// flags, in increasing order of precedence.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/arloliu/go-sip2/logger"
	"github.com/arloliu/go-sip2/sip2"
	"github.com/arloliu/go-sip2/sip2test"
)

type serverConfig struct {
	IP              string `toml:"ip"`
	Port            int    `toml:"port"`
	Username        string `toml:"username"`
	Password        string `toml:"password"`
	CorruptChecksum bool   `toml:"corrupt_checksum"`
	LogLevel        string `toml:"log_level"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		IP:       "127.0.0.1",
		Port:     sip2.RawTransportPort,
		LogLevel: "info",
	}
}

func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()

	if val := os.Getenv("IP"); val != "" {
		cfg.IP = val
	}
	if val := os.Getenv("PORT"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return serverConfig{}, fmt.Errorf("parse PORT: %w", err)
		}
		cfg.Port = n
	}

	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return serverConfig{}, fmt.Errorf("load fakeacs config: %w", err)
	}

	return cfg, nil
}

func (cfg serverConfig) options(log logger.Logger) []sip2test.Option {
	opts := []sip2test.Option{
		sip2test.WithAddr(net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port))),
		sip2test.WithLogger(log),
	}
	if cfg.Username != "" {
		opts = append(opts, sip2test.WithCredentials(sip2.LoginParams{
			Username: cfg.Username,
			Password: cfg.Password,
		}))
	}
	if cfg.CorruptChecksum {
		opts = append(opts, sip2test.WithCorruptChecksum())
	}

	return opts
}

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	ip := flag.String("ip", "", "listen IP, overrides the configuration")
	port := flag.Int("port", 0, "listen port, overrides the configuration")
	flag.Parse()

	os.Setenv("ENV", "development")
	log := logger.NewSlog(logger.InfoLevel, false)

	cfg, err := loadServerConfig(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *ip != "" {
		cfg.IP = *ip
	}
	if *port != 0 {
		cfg.Port = *port
	}

	if lvl, ok := logger.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(lvl)
	} else {
		log.Warn("unknown log level, keeping info", "logLevel", cfg.LogLevel)
	}

	srv, err := sip2test.NewServer(cfg.options(log)...)
	if err != nil {
		log.Error("failed to start fake ACS", "error", err)
		os.Exit(1)
	}

	log.Info("fake ACS listening", "address", srv.Addr())

	exitSig := make(chan os.Signal, 1)
	signal.Notify(exitSig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-exitSig

	log.Info("exit signal received")

	if err := srv.Close(); err != nil {
		log.Error("failed to close listener", "error", err)
	}

	log.Info("shutdown finished")
}
