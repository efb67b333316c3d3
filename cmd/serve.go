package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ticketlottery/internal/config"
	"ticketlottery/internal/handlers"
	"ticketlottery/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Campaigns follow config.yaml edits; everything else needs a restart.
	err = config.Watch(configDir, func(next *config.Config) {
		campaigns, err := next.CampaignList()
		if err != nil {
			logger.Errorf("Ignoring reloaded campaigns: %v", err)
			return
		}
		a.campaigns.Replace(campaigns)
		logger.Infof("Reloaded %d campaigns", len(campaigns))
	})
	if err != nil && !errors.Is(err, config.ErrNoConfigFile) {
		return err
	}

	var drawer *scheduler.AutoDrawer
	if cfg.Draw.AutoSchedule != "" {
		if drawer, err = scheduler.NewAutoDrawer(a.service, cfg.Draw.AutoSchedule); err != nil {
			return err
		}
	}

	if !cfg.Log.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger())
	handlers.NewHTTPHandler(a.service).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Server starting on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Infof("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	// Start the background janitor to drop idle rate limit buckets
	if a.memLimiter != nil {
		g.Go(func() error {
			a.memLimiter.Run(ctx, cfg.RateLimit.PruneInterval)
			return nil
		})
	}

	if drawer != nil {
		g.Go(func() error { return drawer.Run(ctx) })
	}

	return g.Wait()
}
