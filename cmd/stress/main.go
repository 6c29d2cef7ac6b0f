package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/linechat/internal/stress"
)

var (
	cfg      stress.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "stress [num_clients]",
	Short: "Open many chat sessions and report the login success rate",
	Long: `Stress connects the given number of clients to a linechat server, logs
each of them in and prints how many succeeded.

Defaults come from STRESS_* environment variables; flags override them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid client count %q", args[0])
			}
			cfg.Clients = n
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := stress.Run(ctx, logs.GetLoggerFromString(logLevel), cfg)
		stress.Render(cmd.OutOrStdout(), report, cfg.Colours)
		return err
	},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var err error
	cfg, err = stress.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "Chat server address")
	flags.IntVarP(&cfg.Clients, "clients", "n", cfg.Clients, "Number of clients")
	flags.IntVarP(&cfg.Concurrency, "concurrency", "c", cfg.Concurrency, "Clients connecting at the same time")
	flags.StringVar(&cfg.Username, "username", cfg.Username, "Login username")
	flags.StringVar(&cfg.Password, "password", cfg.Password, "Login password")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-client dial and handshake timeout")
	flags.BoolVar(&cfg.Exit, "exit", cfg.Exit, "Send /exit before disconnecting")
	flags.BoolVar(&cfg.Colours, "colours", cfg.Colours, "Colorize the report")
	flags.StringVar(&logLevel, "log-level", "WARN", "Log level")

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.Execute()
}
