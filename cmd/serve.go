package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/goatkit/goatlink/internal/config"
	"github.com/goatkit/goatlink/internal/database"
	"github.com/goatkit/goatlink/internal/repository"
	"github.com/goatkit/goatlink/internal/server"
	"github.com/goatkit/goatlink/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assistance server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(db); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	users := repository.NewUserRepository(db)
	orders := repository.NewWorkOrderRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	auth := service.NewAuthService(users)
	sessions := service.NewSessionService(sessionRepo, 0, cfg.SessionTimeout)
	workOrders := service.NewWorkOrderService(orders, users)

	manager := server.NewConnectionManager(logger, cfg.ForwardWorkers)
	router := server.NewMessageRouter(logger)
	server.NewIdentityHandler(router, manager, logger, auth, sessions)
	server.NewTicketHandler(router, manager, logger, workOrders, sessions)
	server.NewStreamHandler(router, manager, logger, sessions)

	srv := server.NewServer(cfg.ListenAddr, logger, manager, router, workOrders, sessions)
	if err := srv.Listen(); err != nil {
		return err
	}

	sweeper := server.NewSessionSweeper(logger, manager, workOrders, sessions)
	if err := sweeper.Start(cfg.SweepInterval); err != nil {
		return err
	}
	defer sweeper.Stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(logger, cfg.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("[MAIN] goatlink serving on %s (db=%s)", cfg.ListenAddr, cfg.DBDriver)
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	logger.Printf("[MAIN] shutdown complete")
	return nil
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Printf("[MAIN] metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("[MAIN] metrics listener failed: %v", err)
	}
}

// buildLogger writes to stderr, or to stderr plus LOG_FILE when set.
// LOG_LEVEL "quiet" silences it entirely.
func buildLogger(cfg *config.Config) (*log.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeLog := func() {}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeLog = func() { f.Close() }
	}
	if cfg.LogLevel == "quiet" {
		out = io.Discard
	}
	return log.New(out, "", log.LstdFlags), closeLog, nil
}
