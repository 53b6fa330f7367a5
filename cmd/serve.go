package main

import (
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

	"github.com/chatlabs-hq/agency-ops/internal/automation"
	"github.com/chatlabs-hq/agency-ops/internal/bonus"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := newBonusEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		scheduler := automation.NewScheduler(automation.Config{
			Enabled:   cfg.Automation.Enabled,
			Schedule:  cfg.Automation.Schedule,
			Lookback:  cfg.Automation.Lookback,
			Companies: cfg.Automation.Companies,
		}, env.runner, env.runlog, nil)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/bonus/evaluate", handleEvaluate(env, false))
		r.Post("/bonus/preview", handleEvaluate(env, true))
		r.Get("/bonus/awards", handleAwards(env))
		r.Get("/bonus/progress", handleProgress(env))
		r.Get("/bonus/runs", handleRuns(env))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type evaluateRequest struct {
	CompanyID string `json:"company_id"`
	WorkerID  string `json:"worker_id"`
	RuleID    string `json:"rule_id,omitempty"`
	AsOf      string `json:"as_of,omitempty"`
}

func handleEvaluate(env *bonusEnv, dryRun bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		asOf := time.Now().UTC()
		if req.AsOf != "" {
			t, err := time.Parse(time.RFC3339, req.AsOf)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "as_of must be RFC3339"})
				return
			}
			asOf = t
		}

		outcomes, err := env.runner.RunRules(r.Context(), bonus.RunRequest{
			CompanyID: req.CompanyID,
			WorkerID:  req.WorkerID,
			RuleID:    req.RuleID,
			AsOf:      asOf,
			DryRun:    dryRun,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if bonus.IsValidation(err) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, outcomes)
	}
}

func handleAwards(env *bonusEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := bonus.AwardFilter{
			CompanyID: q.Get("company_id"),
			WorkerID:  q.Get("worker_id"),
			RuleID:    q.Get("rule_id"),
		}
		if filter.CompanyID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "company_id is required"})
			return
		}

		awards, err := env.awards.List(r.Context(), filter)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		totals, err := env.awards.Totals(r.Context(), filter)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"awards": awards, "totals": totals})
	}
}

func handleProgress(env *bonusEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		companyID := q.Get("company_id")
		if companyID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "company_id is required"})
			return
		}

		progress, err := env.prog.List(r.Context(), companyID, q.Get("worker_id"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, progress)
	}
}

func handleRuns(env *bonusEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		companyID := q.Get("company_id")
		if companyID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "company_id is required"})
			return
		}

		runs, err := env.runlog.Recent(r.Context(), companyID, 0)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, runs)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
