package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/edgar-monitor/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the full monitor: scheduler, worker pools, and REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Server.JWTSecret == "" {
			return eris.New("server.jwt_secret is required")
		}

		env, err := newAppEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return err
		}

		analyzer, err := env.newAnalyzer()
		if err != nil {
			return err
		}

		sched := env.newScheduler()
		dispatcher := env.newDispatcher(analyzer)

		server := api.NewServer(env.Store, sched, api.Options{
			JWTSecret:      cfg.Server.JWTSecret,
			FreeDailyViews: cfg.Server.FreeDailyViews,
			CORSOrigins:    cfg.Server.CORSOrigins,
			Breakers:       env.Breakers,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		if cfg.Scheduler.Enabled {
			g.Go(func() error { return sched.Run(ctx) })
		} else {
			zap.L().Warn("scheduler disabled, discovery only via admin trigger or scan command")
		}
		g.Go(func() error { return dispatcher.Run(ctx) })
		g.Go(func() error {
			zap.L().Info("api server listening", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "serve: listen")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
