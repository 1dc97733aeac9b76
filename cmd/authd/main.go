// Command authd runs the UDP authentication service: auth_server [port]
// [dbPath], both positional and optional. Wires config, the embedded
// store, the in-memory security policy, the request handlers, and the
// UDP transport loop together, and shuts all of it down cleanly on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Svetlana-gith/dota2clone-authd/internal/config"
	"github.com/Svetlana-gith/dota2clone-authd/internal/security"
	"github.com/Svetlana-gith/dota2clone-authd/internal/server"
	"github.com/Svetlana-gith/dota2clone-authd/internal/store"
	"github.com/Svetlana-gith/dota2clone-authd/internal/transport"
)

func main() {
	if err := run(); err != nil {
		log.Printf("authd: %v", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := parseArgs(os.Args[1:])
	if err != nil {
		return err
	}

	cfg := config.Default()
	if err := config.LoadFile(cfg, "auth.yaml"); err != nil {
		return err
	}
	if err := config.LoadEnv(cfg); err != nil {
		return err
	}
	config.ApplyFlags(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.DBPath = config.ExpandPath(cfg.DBPath)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := config.OverlayDB(cfg, st.DB(), flags); err != nil {
		return err
	}

	policy := security.NewPolicyWithRateLimits(cfg.RateLimitConfigs())
	srv := server.New(st, policy, cfg.HashCost)

	janitor := store.NewJanitor(st, time.Duration(cfg.JanitorIntervalSec)*time.Second, cfg.HistoryRetentionDays)
	janitor.SetStatsReporter(func() string { return srv.Stats().String() })
	janitor.SetRateLimiterSweeper(policy.RateLimit.Sweep)
	janitor.Start()
	defer janitor.Stop()

	loop, err := transport.Listen(cfg.Port, srv.Handle)
	if err != nil {
		return err
	}

	go loop.Run()
	log.Printf("authd: listening on UDP port %d, db %s", cfg.Port, cfg.DBPath)

	waitForShutdown()

	log.Println("authd: shutting down")
	loop.Stop()
	return nil
}

// parseArgs reads the positional [port] [dbPath] arguments auth_server
// accepts.
func parseArgs(args []string) (config.Flags, error) {
	var flags config.Flags
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return flags, err
		}
		flags.Port = port
	}
	if len(args) > 1 {
		flags.DBPath = args[1]
	}
	return flags, nil
}

func waitForShutdown() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}
