package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cctp-forwarder/go-backend/internal/composition/forwarderd"
	"cctp-forwarder/go-backend/internal/config"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	addr := flag.String("addr", "", "HTTP listen address override (optional)")
	rpcToken := flag.String("rpc-token", "", "Token for Authorization/X-FWD-RPC-Token (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("forwarderd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *rpcToken != "" {
		_ = os.Setenv("FWD_RPC_TOKEN", *rpcToken)
	}

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("forwarderd failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger, err := forwarderd.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatalf("forwarderd failed to initialize logging: %v", err)
	}

	daemon, err := forwarderd.Build(cfg, logger)
	if err != nil {
		log.Fatalf("forwarderd failed to initialize: %v", err)
	}

	log.Println("forwarderd starting")
	if err := daemon.Run(ctx); err != nil {
		log.Fatalf("forwarderd failed: %v", err)
	}
	log.Println("forwarderd stopped")
}
