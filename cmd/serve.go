package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
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

	"github.com/sells-group/fieldstock/internal/fetcher"
	"github.com/sells-group/fieldstock/internal/model"
	"github.com/sells-group/fieldstock/internal/reconcile"
	"github.com/sells-group/fieldstock/internal/store"
)

// maxUploadBytes bounds a multipart report upload.
const maxUploadBytes = 32 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng, err := newEngine(st, cfg)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(st, eng, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

// api serves the reconciliation engine over HTTP.
type api struct {
	store  store.Store
	engine *reconcile.Engine
}

func buildRouter(st store.Store, eng *reconcile.Engine, origins []string) http.Handler {
	a := &api{store: st, engine: eng}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Get("/catalog", a.catalog)
	r.Route("/vehicles", func(r chi.Router) {
		r.Get("/", a.vehicles)
		r.Get("/{vehicle}/assignment", a.assignment)
		r.Get("/{vehicle}/movements", a.movements)
	})
	r.Post("/reconcile", a.reconcile)
	r.Post("/commit", a.commit)
	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) vehicles(w http.ResponseWriter, r *http.Request) {
	vs, err := a.engine.Vehicles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if vs == nil {
		vs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": vs})
}

func (a *api) catalog(w http.ResponseWriter, r *http.Request) {
	cat, err := a.engine.Catalog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	type product struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := make([]product, 0, cat.Len())
	for _, e := range cat.Entries() {
		out = append(out, product{ID: e.ID, Name: e.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

func (a *api) assignment(w http.ResponseWriter, r *http.Request) {
	res, err := a.engine.Inspect(r.Context(), chi.URLParam(r, "vehicle"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) movements(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	moves, err := a.store.Movements(r.Context(), chi.URLParam(r, "vehicle"), limit)
	if err != nil {
		writeError(w, reconcileLedgerError("movements", err))
		return
	}
	if moves == nil {
		moves = []model.Movement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": moves})
}

// reconcile accepts a multipart upload: "file" (the report), optional
// "vehicle" and "sheet" fields.
func (a *api) reconcile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer file.Close() //nolint:errcheck

	table, err := loadUpload(file, header.Filename, r.FormValue("sheet"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res, err := a.engine.Reconcile(r.Context(), table, r.FormValue("vehicle"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// loadUpload spools an uploaded report to disk so workbooks can be opened by
// path, then parses it by the uploaded file name.
func loadUpload(src io.Reader, name, sheet string) (*model.Table, error) {
	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(name))
	if err != nil {
		return nil, eris.Wrap(err, "serve: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "serve: spool upload")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "serve: close temp file")
	}
	return fetcher.LoadFile(tmp.Name(), name, fetcher.LoadOptions{Sheet: sheet})
}

type commitRequest struct {
	Rows       []model.ReconciledRow `json:"rows"`
	Statuses   []string              `json:"statuses,omitempty"`
	PackageTag string                `json:"package_tag,omitempty"`
}

type commitResponse struct {
	model.CommitResult
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

func (a *api) commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rows are required"})
		return
	}
	statuses, err := parseStatuses(req.Statuses)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := a.engine.Commit(r.Context(), reconcile.Select(req.Rows, statuses...), req.PackageTag)
	resp := commitResponse{CommitResult: result, Summary: result.Summary(maxSummaryErrors)}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// reconcileLedgerError tags direct store failures the way the engine does.
func reconcileLedgerError(op string, err error) error {
	return &reconcile.LedgerError{Op: op, Err: err}
}

func statusFor(err error) int {
	var fe *reconcile.FormatError
	switch {
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, reconcile.ErrVehicleRequired):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
