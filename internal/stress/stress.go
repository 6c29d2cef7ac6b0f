// Package stress opens many chat sessions against a running server and
// reports how many of them completed the login handshake.
package stress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/linechat/internal/chat"
)

// ErrRejected marks a client the server answered with an authentication failure.
var ErrRejected = errors.New("authentication rejected")

// Config describes one stress run.
type Config struct {
	Addr        string        `envconfig:"STRESS_ADDR" default:"127.0.0.1:12345"`
	Clients     int           `envconfig:"STRESS_CLIENTS" default:"10"`
	Concurrency int           `envconfig:"STRESS_CONCURRENCY" default:"1"`
	Username    string        `envconfig:"STRESS_USERNAME" default:"alice"`
	Password    string        `envconfig:"STRESS_PASSWORD" default:"password123"`
	Timeout     time.Duration `envconfig:"STRESS_TIMEOUT" default:"5s"`
	// STRESS_EXIT sends /exit on every session before disconnecting.
	Exit bool `envconfig:"STRESS_EXIT" default:"false"`
	// STRESS_COLOURS enables colorized report output
	Colours bool `envconfig:"STRESS_COLOURS" default:"true"`
}

// LoadConfig reads a Config from STRESS_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

// Result is the outcome of one client.
type Result struct {
	Client   int
	Err      error
	Duration time.Duration
}

// Connected reports whether the client completed the login handshake.
func (r Result) Connected() bool {
	return r.Err == nil
}

// Report summarizes a run.
type Report struct {
	Results []Result
	Elapsed time.Duration
}

// Attempted is the number of clients the run tried to log in.
func (r Report) Attempted() int {
	return len(r.Results)
}

// Succeeded is the number of clients that logged in.
func (r Report) Succeeded() int {
	return lo.CountBy(r.Results, Result.Connected)
}

// Rate is the fraction of clients that logged in, 0 for an empty run.
func (r Report) Rate() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.Succeeded()) / float64(len(r.Results))
}

// Failures returns the results of clients that did not log in, in client order.
func (r Report) Failures() []Result {
	return lo.Reject(r.Results, func(res Result, _ int) bool {
		return res.Connected()
	})
}

// Run logs cfg.Clients sessions in, at most cfg.Concurrency at a time, and
// keeps them all open until every attempt has finished. The sessions are
// then closed, after /exit when cfg.Exit is set.
func Run(ctx context.Context, log *slog.Logger, cfg Config) (Report, error) {
	if cfg.Clients < 0 {
		return Report{}, fmt.Errorf("invalid client count %d", cfg.Clients)
	}

	start := time.Now()
	results := make([]Result, cfg.Clients)
	conns := make([]net.Conn, cfg.Clients)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Concurrency, 1))

	for i := range cfg.Clients {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{Client: i, Err: err}
				return nil
			}

			began := time.Now()
			conn, err := connectClient(gctx, cfg)
			results[i] = Result{Client: i, Err: err, Duration: time.Since(began)}
			if err != nil {
				log.Debug("Client failed", "client", i, "error", err)
				return nil
			}

			conns[i] = conn
			log.Debug("Client connected to the server", "client", i)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Results: results, Elapsed: time.Since(start)}
	for _, conn := range lo.Compact(conns) {
		disconnectClient(conn, cfg.Exit)
	}

	return report, ctx.Err()
}

func connectClient(ctx context.Context, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	if err := handshake(conn, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	// Keep reading so the server never stalls writing to us.
	go func() { _, _ = io.Copy(io.Discard, conn) }()
	return conn, nil
}

// handshake answers both prompts with unterminated writes, one per prompt,
// and reads the verdict line.
func handshake(conn net.Conn, cfg Config) error {
	if cfg.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(cfg.Timeout)); err != nil {
			return err
		}
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}

	r := bufio.NewReader(conn)
	for _, step := range []struct{ prompt, answer string }{
		{chat.PromptUsername, cfg.Username},
		{chat.PromptPassword, cfg.Password},
	} {
		if err := expectPrompt(r, step.prompt); err != nil {
			return err
		}
		if _, err := io.WriteString(conn, step.answer); err != nil {
			return fmt.Errorf("send credentials: %w", err)
		}
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read verdict: %w", err)
	}
	switch strings.TrimRight(line, "\r\n") {
	case chat.MsgWelcome:
		return nil
	case chat.MsgAuthFailed:
		return ErrRejected
	default:
		return fmt.Errorf("unexpected reply %q", line)
	}
}

func expectPrompt(r *bufio.Reader, prompt string) error {
	buf := make([]byte, len(prompt))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read prompt: %w", err)
	}
	if string(buf) != prompt {
		return fmt.Errorf("unexpected prompt %q", buf)
	}
	return nil
}

func disconnectClient(conn net.Conn, exit bool) {
	if exit {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = io.WriteString(conn, chat.CommandExit)
	}
	_ = conn.Close()
}
