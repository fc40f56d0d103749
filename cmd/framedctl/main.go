package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/dcreager/framed-fields-go/framed"
	"github.com/dcreager/framed-fields-go/internal/config"
	"github.com/dcreager/framed-fields-go/internal/logging"
	"github.com/dcreager/framed-fields-go/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const usage = `usage: framedctl [-config file] <command> [args]

commands:
  encode          read tab-separated fields from stdin, one message per line
  decode          read wire messages from stdin and print their fields
  send FIELD...   send one message and print the reply
  pipe            send stdin lines and print received messages until both sides finish
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "framedctl: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    config.Config
	logger zerolog.Logger
	stdin  io.Reader
	stdout io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("framedctl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := flags.String("config", "", "path to a TOML config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	logCfg := logging.ConfigFromEnv(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logCfg.Level = lvl
	}
	a := &app{
		cfg:    cfg,
		logger: logging.New(stderr, "framedctl", logCfg),
		stdin:  stdin,
		stdout: stdout,
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return errors.New("missing command")
	}
	switch rest[0] {
	case "encode":
		return a.encode()
	case "decode":
		return a.decode()
	case "send":
		return a.withConn(func(ch *framed.Channel, _ net.Conn) error {
			return a.send(ch, rest[1:])
		})
	case "pipe":
		return a.withConn(a.pipe)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func lineFields(line string) []string {
	return strings.Split(line, "\t")
}

func (a *app) printFields(fields []string) error {
	_, err := fmt.Fprintf(a.stdout, "%q\n", fields)
	return err
}

func (a *app) encode() error {
	builder := framed.MessageBuilder{Mode: a.cfg.Mode}
	scanner := bufio.NewScanner(a.stdin)
	for scanner.Scan() {
		for _, field := range lineFields(scanner.Text()) {
			builder.AddField(field)
		}
		builder.FinishMessage()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var out bytes.Buffer
	builder.Encode(&out)
	a.logger.Debug().Int("messages", builder.Len()).Int("bytes", out.Len()).Msg("encoded")
	_, err := out.WriteTo(a.stdout)
	return err
}

func (a *app) decode() error {
	input, err := io.ReadAll(a.stdin)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var s framed.Scanner
	s.Reset(input)
	for s.Next() {
		if err := a.printFields(s.Fields()); err != nil {
			return err
		}
	}
	if n := len(s.Remaining()); n > 0 {
		a.logger.Warn().Int("bytes", n).Msg("trailing partial message")
	}
	return nil
}

func (a *app) withConn(fn func(*framed.Channel, net.Conn) error) error {
	opts := a.cfg.ChannelOptions()
	opts.Logger = a.logger

	if a.cfg.MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		opts.Observer = metrics.NewObserver(reg)
		srv := &http.Server{
			Addr:    a.cfg.MetricsAddress,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Str("address", a.cfg.MetricsAddress).Msg("metrics server")
			}
		}()
		defer srv.Close()
	}

	conn, err := net.Dial("tcp", a.cfg.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.cfg.Address, err)
	}
	defer conn.Close()
	a.logger.Info().Str("address", a.cfg.Address).Str("mode", a.cfg.Mode.String()).Msg("connected")

	return fn(framed.NewChannel(conn, opts), conn)
}

func (a *app) send(ch *framed.Channel, fields []string) error {
	if err := ch.Send(fields); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	reply, err := ch.Receive()
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	return a.printFields(reply)
}

// pipe sends stdin and prints replies at the same time.  Send and Receive
// each run on their own goroutine, which the channel allows.  The pipe ends
// when the peer closes the connection or either side fails; a failure closes
// the connection so the other side unblocks.  Stdin is scanned on a goroutine
// of its own that is not waited for, since a read from an open terminal
// cannot be interrupted.
func (a *app) pipe(ch *framed.Channel, conn net.Conn) error {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(parent)

	lines := make(chan []string)
	inputErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.stdin)
		for scanner.Scan() {
			select {
			case lines <- lineFields(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		inputErr <- scanner.Err()
	}()

	g.Go(func() error {
		<-ctx.Done()
		return conn.Close()
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case fields, ok := <-lines:
				if !ok {
					if err := <-inputErr; err != nil {
						return fmt.Errorf("read input: %w", err)
					}
					if tcp, ok := conn.(*net.TCPConn); ok {
						return tcp.CloseWrite()
					}
					return nil
				}
				if err := ch.Send(fields); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("send: %w", err)
				}
			}
		}
	})

	g.Go(func() error {
		for {
			fields, err := ch.Receive()
			if errors.Is(err, io.EOF) {
				cancel()
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("receive: %w", err)
			}
			if err := a.printFields(fields); err != nil {
				return err
			}
		}
	})

	return g.Wait()
}
