package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for digests and pipeline triggers",
	Long: `Serves stored digests and pipeline metrics over HTTP and accepts
on-demand run triggers. A background checker watches run health and
posts alerts to the monitoring webhook when failure rates climb.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(
			env.Collector,
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, env, cfg.Monitoring.LookbackHours),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP API. runCtx outlives individual requests so
// triggered pipeline runs are not cut short when the caller disconnects.
func newRouter(runCtx context.Context, env *pipelineEnv, lookbackHours int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		snap, err := env.Collector.Collect(req.Context(), lookbackHours)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "metrics collection failed"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Get("/clients/{id}/digest", func(w http.ResponseWriter, req *http.Request) {
		clientID := chi.URLParam(req, "id")
		week := req.URL.Query().Get("week")
		if week == "" {
			week = model.ISOWeek(time.Now())
		}
		d, err := env.Store.GetDigest(req.Context(), clientID, week)
		if err != nil || d == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("no digest for client %s week %s", clientID, week),
			})
			return
		}
		writeJSON(w, http.StatusOK, d)
	})

	r.Post("/clients/{id}/run", func(w http.ResponseWriter, req *http.Request) {
		clientID := chi.URLParam(req, "id")
		if _, err := env.Profiles.Get(req.Context(), clientID); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown client"})
			return
		}

		go func() {
			payload, err := env.Orchestrator.RunClient(runCtx, clientID, false)
			if err != nil {
				zap.L().Error("triggered run failed",
					zap.String("client", clientID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("triggered run complete",
				zap.String("client", clientID),
				zap.Int("opportunities", len(payload.Opportunities())))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"client": clientID,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
