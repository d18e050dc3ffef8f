package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trendwatch/internal/dataset"
	"github.com/sells-group/trendwatch/internal/model"
	"github.com/sells-group/trendwatch/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only status API",
	Long:  "Serves run history and the historical dataset over HTTP for dashboards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, initFileStore()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting status server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func newRouter(st store.Store, files *dataset.FileStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		filter := store.RunFilter{
			Status: model.RunStatus(req.URL.Query().Get("status")),
			Limit:  20,
		}
		if n, err := strconv.Atoi(req.URL.Query().Get("limit")); err == nil && n > 0 {
			filter.Limit = n
		}
		runs, err := st.ListRuns(req.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			http.Error(w, `{"error":"list runs failed"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/api/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/api/dataset", func(w http.ResponseWriter, _ *http.Request) {
		ds, exists, err := files.LoadHistorical()
		if err != nil {
			zap.L().Error("historical dataset unreadable", zap.Error(err))
			http.Error(w, `{"error":"dataset unreadable"}`, http.StatusInternalServerError)
			return
		}
		if !exists {
			http.Error(w, `{"error":"no dataset yet"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, datasetResponse(ds))
	})

	return r
}

type datasetRow struct {
	Date   string             `json:"date"`
	Values map[string]float64 `json:"values"`
}

type datasetBody struct {
	Columns []string     `json:"columns"`
	Rows    []datasetRow `json:"rows"`
}

func datasetResponse(ds dataset.Dataset) datasetBody {
	body := datasetBody{Columns: ds.Columns, Rows: make([]datasetRow, 0, len(ds.Rows))}
	for _, row := range ds.Rows {
		body.Rows = append(body.Rows, datasetRow{
			Date:   row.Date.Format(dataset.DateLayout),
			Values: row.Values,
		})
	}
	return body
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
