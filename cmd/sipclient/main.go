// Command sipclient is an interactive SIP2 client.
//
// It connects to an ACS, then reads commands from a prompt with completion
// and history. A single command can also be run with -c.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arloliu/go-sip2/logger"
	"github.com/arloliu/go-sip2/sip2"
	"github.com/chzyer/readline"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "sipclient:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sipclient", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML configuration file")
	host := fs.String("host", "", "ACS host, overrides the configuration")
	port := fs.Int("port", 0, "ACS port, overrides the configuration")
	rawPort := fs.Int("raw-port", 0, "remote port on which login is permitted, overrides the configuration")
	seqNum := fs.Int("seq", -1, "sequence number 0-9, overrides the configuration")
	command := fs.String("c", "", "run a single command and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadClientConfig(*configPath)
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *rawPort != 0 {
		cfg.RawPort = *rawPort
	}
	if *seqNum >= 0 {
		cfg.SeqNum = *seqNum
		cfg.AutoSeq = false
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	log := logger.NewSlog(cfg.LogLevel, false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := sip2.Dial(ctx, cfg.Host, cfg.Port, cfg.clientOptions(log)...)
	if err != nil {
		return err
	}
	defer client.Close()

	log.Info("connected", "remoteAddress", client.RemoteAddr().String())

	sh := newShell(client, cfg, out)

	if *command != "" {
		if err := sh.run(*command); err != nil && !errors.Is(err, errQuit) {
			return err
		}

		return nil
	}

	return repl(sh, cfg.HistoryFile)
}

func repl(sh *shell, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sip2> ",
		AutoComplete:    newCompleter(),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("create readline: %w", err)
	}
	defer rl.Close()

	sh.out = rl.Stdout()

	fmt.Fprintln(sh.out, "Enter 'help' for commands, 'quit' to exit")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}

			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		err = sh.run(strings.TrimSpace(line))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(sh.out, "error:", err)
		}
	}
}
