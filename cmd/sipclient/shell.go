package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-sip2/sip2"
	"github.com/chzyer/readline"
)

// statusBody is an SC Status request: status ok, max print width 030,
// protocol version 2.00.
const statusBody = "9900302.00"

var errQuit = errors.New("quit")

type command struct {
	usage string
	desc  string
	run   func(sh *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"login": {
			usage: "login [username password location...]",
			desc:  "send a login request, defaults come from the configuration",
			run:   (*shell).login,
		},
		"send": {
			usage: "send <body>",
			desc:  "frame and send a raw message body",
			run:   (*shell).send,
		},
		"status": {
			usage: "status",
			desc:  "send an SC status request",
			run:   (*shell).status,
		},
		"date": {
			usage: "date",
			desc:  "print the current time in SIP2 date format",
			run:   (*shell).date,
		},
		"seq": {
			usage: "seq [0-9|auto]",
			desc:  "show or set the sequence number, 0 disables the checksum",
			run:   (*shell).seq,
		},
		"metrics": {
			usage: "metrics",
			desc:  "print client counters",
			run:   (*shell).metrics,
		},
		"help": {
			usage: "help",
			desc:  "list commands",
			run:   (*shell).help,
		},
		"quit": {
			usage: "quit",
			desc:  "exit",
			run:   func(*shell, []string) error { return errQuit },
		},
	}
}

// shell executes interactive commands against one client.
type shell struct {
	client *sip2.Client
	params sip2.LoginParams
	out    io.Writer
	clock  func() time.Time

	// seqNum is used unless autoSeq is set, in which case numbers come from
	// the client's sequence generator.
	seqNum  int
	autoSeq bool
}

func newShell(c *sip2.Client, cfg clientConfig, out io.Writer) *shell {
	return &shell{
		client:  c,
		params:  cfg.Login,
		out:     out,
		clock:   time.Now,
		seqNum:  cfg.SeqNum,
		autoSeq: cfg.AutoSeq,
	}
}

// run executes one input line. It returns errQuit when the shell should exit.
func (sh *shell) run(line string) error {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	if name == "" {
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, type help", name)
	}

	rest = strings.TrimSpace(rest)
	var args []string
	if name == "send" {
		// message bodies may contain spaces
		if rest != "" {
			args = []string{rest}
		}
	} else {
		args = strings.Fields(rest)
	}

	return cmd.run(sh, args)
}

// login sends a login request. The location is every argument after the
// password, so "login u p The basement" logs in at "The basement".
func (sh *shell) login(args []string) error {
	p := sh.params
	switch {
	case len(args) == 0:
	case len(args) >= 3:
		p = sip2.LoginParams{
			Username: args[0],
			Password: args[1],
			Location: strings.Join(args[2:], " "),
		}
	default:
		return fmt.Errorf("usage: %s", commands["login"].usage)
	}

	var (
		resp sip2.Response
		err  error
	)
	if sh.autoSeq {
		resp, err = sh.client.LoginAuto(p)
	} else {
		resp, err = sh.client.Login(p.Username, p.Password, p.Location, sh.seqNum)
	}
	if err != nil {
		return err
	}
	sh.printExchange(resp)

	return nil
}

func (sh *shell) send(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", commands["send"].usage)
	}

	return sh.exchange(args[0])
}

func (sh *shell) status([]string) error {
	return sh.exchange(statusBody)
}

func (sh *shell) exchange(body string) error {
	var (
		resp sip2.Response
		err  error
	)
	if sh.autoSeq {
		resp, err = sh.client.SendAuto(body)
	} else {
		resp, err = sh.client.Send(body, sh.seqNum)
	}
	if err != nil {
		return err
	}
	sh.printExchange(resp)

	return nil
}

func (sh *shell) date([]string) error {
	fmt.Fprintln(sh.out, sip2.SIPDate(sh.clock()))

	return nil
}

func (sh *shell) seq(args []string) error {
	if len(args) == 0 {
		if sh.autoSeq {
			fmt.Fprintln(sh.out, "seq: auto")
		} else {
			fmt.Fprintf(sh.out, "seq: %d\n", sh.seqNum)
		}

		return nil
	}

	if args[0] == "auto" {
		sh.autoSeq = true
		sh.client.Config().SeqGen().Reset()

		return nil
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n > sip2.MaxSeqNum {
		return fmt.Errorf("invalid sequence number %q", args[0])
	}
	sh.seqNum = n
	sh.autoSeq = false

	return nil
}

func (sh *shell) metrics([]string) error {
	m := sh.client.Metrics()
	fmt.Fprintf(sh.out, "requests: %d\n", m.RequestSendCount.Load())
	fmt.Fprintf(sh.out, "responses: %d\n", m.ResponseRecvCount.Load())
	fmt.Fprintf(sh.out, "checksum failures: %d\n", m.VerifyFailCount.Load())
	fmt.Fprintf(sh.out, "transport errors: %d\n", m.TransportErrCount.Load())
	fmt.Fprintf(sh.out, "protocol errors: %d\n", m.ProtocolErrCount.Load())
	fmt.Fprintf(sh.out, "bytes sent: %d\n", m.BytesSent.Load())
	fmt.Fprintf(sh.out, "bytes received: %d\n", m.BytesRecv.Load())

	return nil
}

func (sh *shell) help([]string) error {
	for _, name := range commandNames() {
		cmd := commands[name]
		fmt.Fprintf(sh.out, "  %-40s %s\n", cmd.usage, cmd.desc)
	}

	return nil
}

// printExchange prints a completed exchange. Requests refused before being
// written never reach it.
func (sh *shell) printExchange(resp sip2.Response) {
	fmt.Fprintf(sh.out, "Sending %q\n", resp.Request)
	fmt.Fprintf(sh.out, "Received %q\n", resp.Raw)
	fmt.Fprintf(sh.out, "Verified: %v\n", resp.Verified)
}

func commandNames() []string {
	return []string{"login", "send", "status", "date", "seq", "metrics", "help", "quit"}
}

func newCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, name := range commandNames() {
		if name == "seq" {
			items = append(items, readline.PcItem(name, readline.PcItem("auto")))
			continue
		}
		items = append(items, readline.PcItem(name))
	}

	return readline.NewPrefixCompleter(items...)
}
