package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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
	"golang.org/x/time/rate"

	"github.com/sells-group/invoice-cli/internal/export"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/monitoring"
	"github.com/sells-group/invoice-cli/internal/pdf"
	"github.com/sells-group/invoice-cli/internal/pipeline"
	"github.com/sells-group/invoice-cli/internal/store"
)

var servePort int

// sessionHeader names the client session whose latest upload wins.
const sessionHeader = "X-Session-ID"

// documentProcessor runs an uploaded document through the pipeline.
type documentProcessor interface {
	Process(ctx context.Context, session string, doc *pdf.Document) (*pipeline.Outcome, error)
}

// serverDeps are the collaborators behind the HTTP routes. Processor, Store
// and Collector may be nil; their routes then answer 503.
type serverDeps struct {
	Processor     documentProcessor
	Store         store.Store
	Collector     *monitoring.Collector
	Limiter       *rate.Limiter
	MaxUpload     int64
	Origins       []string
	LookbackHours int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the invoice upload server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, envOptions{Mode: "serve"})
		if err != nil {
			return err
		}
		defer env.Close()

		collector := env.Collector()
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		handler := buildRouter(serverDeps{
			Processor:     env.Processor,
			Store:         env.Store,
			Collector:     collector,
			Limiter:       rate.NewLimiter(rate.Limit(cfg.Server.RatePerSec), cfg.Server.RateBurst),
			MaxUpload:     int64(cfg.Server.MaxUploadMB) << 20,
			Origins:       cfg.Server.AllowedOrigins,
			LookbackHours: cfg.Monitoring.LookbackHours,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the HTTP routes.
func buildRouter(deps serverDeps) http.Handler {
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = 25 << 20
	}
	origins := deps.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", sessionHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/invoices", func(w http.ResponseWriter, r *http.Request) {
		handleUpload(w, r, deps)
	})

	r.Get("/invoices", func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "store disabled")
			return
		}
		filter, err := listFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		invoices, err := deps.Store.ListInvoices(r.Context(), filter)
		if err != nil {
			zap.L().Error("list invoices failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list invoices failed")
			return
		}
		writeJSON(w, http.StatusOK, invoices)
	})

	r.Get("/invoices/export.xlsx", func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "store disabled")
			return
		}
		filter, err := listFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		invoices, err := deps.Store.ListInvoices(r.Context(), filter)
		if err != nil {
			zap.L().Error("export invoices failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
		if err := export.Write(w, invoices); err != nil {
			zap.L().Error("write xlsx failed", zap.Error(err))
		}
	})

	r.Get("/invoices/{id}", func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "store disabled")
			return
		}
		inv, err := deps.Store.GetInvoice(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invoice not found")
			return
		}
		if err != nil {
			zap.L().Error("get invoice failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get invoice failed")
			return
		}
		writeJSON(w, http.StatusOK, inv)
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if deps.Collector == nil {
			writeError(w, http.StatusServiceUnavailable, "metrics disabled")
			return
		}
		snap, err := deps.Collector.Collect(r.Context(), deps.LookbackHours)
		if err != nil {
			zap.L().Error("collect metrics failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "collect metrics failed")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return r
}

// uploadResponse is returned for a processed upload.
type uploadResponse struct {
	Invoice  model.Invoice `json:"invoice"`
	Stored   bool          `json:"stored"`
	Warnings []string      `json:"warnings,omitempty"`
}

func handleUpload(w http.ResponseWriter, r *http.Request, deps serverDeps) {
	if deps.Limiter != nil && !deps.Limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many uploads, slow down")
		return
	}
	if deps.Processor == nil {
		writeError(w, http.StatusServiceUnavailable, "processing disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUpload)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		http.Error(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}
	doc, err := pdf.NewDocument(hdr.Filename, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is not a PDF")
		return
	}

	session := r.Header.Get(sessionHeader)
	if session == "" {
		session = doc.ID
	}

	out, err := deps.Processor.Process(r.Context(), session, doc)
	if err != nil {
		var f *pipeline.Failure
		switch {
		case errors.Is(err, pipeline.ErrSuperseded):
			writeError(w, http.StatusConflict, "superseded by a newer upload")
		case errors.As(err, &f):
			writeError(w, http.StatusUnprocessableEntity, f.UserMessage())
		default:
			zap.L().Error("process upload failed", zap.String("file", hdr.Filename), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "processing failed")
		}
		return
	}

	resp := uploadResponse{Invoice: out.Invoice, Stored: out.Stored}
	for _, f := range out.Failures {
		resp.Warnings = append(resp.Warnings, f.UserMessage())
	}
	writeJSON(w, http.StatusOK, resp)
}

// listFilterFromQuery reads source, vendor, since (RFC 3339), limit and
// offset query parameters.
func listFilterFromQuery(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()
	f := store.ListFilter{
		Source: model.TextSource(q.Get("source")),
		Vendor: q.Get("vendor"),
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, eris.Errorf("invalid since %q", s)
		}
		f.Since = t
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, eris.Wrap(err, "invalid limit")
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return f, eris.Wrap(err, "invalid offset")
	}
	return f, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("%q is not a non-negative integer", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
