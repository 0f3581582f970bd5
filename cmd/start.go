package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"site-controller/core/controller"
	"site-controller/core/logger"
	"site-controller/core/metrics"
	"site-controller/core/middleware/auth"
	"site-controller/core/middleware/rayid"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the site controller",
	Long:  `Migrates the controller tables, starts the HTTP server and runs the controllers of all enabled object kinds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx)
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}

func runServer(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	logg := a.logger
	defer a.close(context.Background())

	registry, err := a.prepare(ctx)
	if err != nil {
		return err
	}

	srv := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// RayID first so every later log line carries it.
	srv.Use(rayid.New())
	srv.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Debug("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	authCfg := auth.Config{ApiKey: a.cfg.Server.ApiKey}
	if a.cfg.Metrics.Enabled {
		promReg := metrics.NewRegistry()
		registry.MustRegisterMetrics(promReg)
		srv.Get(a.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
		if a.cfg.Metrics.Public {
			authCfg.Skip = append(authCfg.Skip, a.cfg.Metrics.Path)
		}
	}
	srv.Use(auth.New(authCfg))

	if err := a.features.LoadAll(srv); err != nil {
		return err
	}
	controller.NewAPI(registry, logg).RegisterRoutes(srv)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runDone := make(chan error, 1)
	go func() {
		logg.Info("Starting controllers", zap.Strings("kinds", registry.Kinds()))
		runDone <- registry.RunAll(runCtx)
	}()

	listenErr := make(chan error, 1)
	go func() {
		logg.Info("Starting server", zap.String("port", a.cfg.Server.Port))
		listenErr <- srv.Listen(":" + a.cfg.Server.Port)
	}()

	var exitErr error
	select {
	case <-ctx.Done():
	case exitErr = <-listenErr:
		logg.Error("Server stopped", zap.Error(exitErr))
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			exitErr = err
			logg.Error("Controllers stopped", zap.Error(err))
		}
	}

	logg.Info("Shutting down...")
	timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if err := srv.ShutdownWithTimeout(timeout); err != nil {
		logg.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	cancelRun()
	select {
	case <-runDone:
	case <-time.After(timeout):
		logg.Warn("Controllers did not stop in time")
	}
	return exitErr
}
