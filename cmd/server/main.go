package main

import (
	"context"
	"fmt"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/credentials"
	"github.com/Tyrowin/linechat/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment alone is enough.
	_ = godotenv.Load()

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	store, err := credentials.LoadFile(cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	log.Info("Loaded credentials", "file", cfg.CredentialsFile, "users", store.Len(), "skipped", store.Skipped())

	hub := chat.NewHub(log, store, cfg.Limits())

	tcp := server.NewTCPServer(log, hub, *cfg)
	if err := tcp.Listen(); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.TCPAddr, err)
	}

	serveErr := make(chan error, 2)
	go func() { serveErr <- tcp.Serve() }()

	operations := map[string]gfshutdown.Operation{
		"tcp-listener": func(context.Context) error {
			return tcp.Close()
		},
		"chat-hub": hub.Shutdown,
	}

	if cfg.HTTPEnabled {
		httpServer := server.NewHTTPServer(log, hub, *cfg)
		go func() { serveErr <- server.StartServer(log, httpServer) }()

		operations["http-server"] = func(ctx context.Context) error {
			return server.ShutdownServer(ctx, log, httpServer)
		}
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, operations)
	log.Info("Press Ctrl+C to shutdown")

	for {
		select {
		case code := <-wait:
			log.Info("Server exited", "code", code)
			if code != 0 {
				return fmt.Errorf("shutdown finished with exit code %d", code)
			}
			return nil
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("server stopped: %w", err)
			}
		}
	}
}
