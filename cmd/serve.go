package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/table"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the grant table over HTTP",
	Long: `Serve the grant table over HTTP for dashboard frontends.

Routes:
  GET  /health                  liveness check
  GET  /api/grants              ranked table as JSON
  GET  /api/grants/export.csv   ranked table as CSV
  POST /api/analyze             score a single grant page ({"url": ...})`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/api/grants", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, e.Table.Ranked())
		})

		r.Get("/api/grants/export.csv", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="grants.csv"`)
			if err := table.WriteCSV(w, e.Table.Ranked()); err != nil {
				zap.L().Error("csv export failed", zap.Error(err))
			}
		})

		r.Post("/api/analyze", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				URL string `json:"url"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if !strings.HasPrefix(body.URL, "http://") && !strings.HasPrefix(body.URL, "https://") {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url must be http(s)"})
				return
			}

			g, err := e.Pipeline.AnalyzeURL(req.Context(), e.Search, body.URL)
			switch {
			case err == nil:
				writeJSON(w, http.StatusCreated, g)
			case errors.Is(err, model.ErrDuplicate):
				writeJSON(w, http.StatusConflict, map[string]string{"error": "grant already stored"})
			case errors.Is(err, model.ErrIneligibleDeadline):
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "deadline has passed"})
			default:
				zap.L().Error("analyze request failed", zap.String("url", body.URL), zap.Error(err))
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": "analysis failed"})
			}
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown with a drain window for in-flight requests
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown incomplete", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
