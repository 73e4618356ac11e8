package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appruns "github.com/bryanwahyu/scanpipe/internal/application/runs"
	"github.com/bryanwahyu/scanpipe/internal/infra/httpserver"
	"github.com/bryanwahyu/scanpipe/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API for triggering runs and reading run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := openDeps(ctx, cfg)
		if err != nil {
			return setupError("%w", err)
		}
		defer d.Close()

		metrics := middleware.NewMetrics()
		svc := &appruns.Service{
			Pipeline: newPipelineFactory(cfg, d),
			Repo:     d.runs,
			Errors:   d.errors,
			Triage:   d.triage,
			Metrics:  metrics,
		}

		checkers := map[string]middleware.HealthChecker{}
		if d.db != nil {
			checkers["database"] = middleware.CheckFunc(d.db.PingContext)
		}
		if d.engine != nil {
			checkers["docker"] = middleware.CheckFunc(d.engine.Ping)
		}

		var limiter *middleware.RateLimiter
		if rl := cfg.Server.RateLimit; rl.PerMinute > 0 {
			limiter = middleware.NewRateLimiter(rl.Burst, rl.PerMinute)
			go limiter.Cleanup(ctx)
		}

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		srv := &http.Server{
			Addr: addr,
			Handler: httpserver.NewRouter(svc, httpserver.Options{
				APIKeys:     cfg.Server.APIKeys,
				CORSOrigins: cfg.Server.CORSOrigins,
				RateLimiter: limiter,
				Metrics:     metrics,
				Checkers:    checkers,
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			log.Printf("server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()

		select {
		case <-ctx.Done():
		case err := <-errc:
			return setupError("server error: %w", err)
		}
		log.Println("shutting down server...")

		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx2); err != nil {
			log.Printf("shutdown error: %v", err)
		}

		// run yang sedang jalan di-cancel, tunggu teardown selesai
		ctx3, cancel3 := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel3()
		if err := svc.Shutdown(ctx3); err != nil {
			log.Printf("run shutdown error: %v", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
