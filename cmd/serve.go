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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/extract"
	"github.com/tastebase/capture-cli/internal/ledger"
	"github.com/tastebase/capture-cli/internal/model"
	"github.com/tastebase/capture-cli/internal/monitoring"
	"github.com/tastebase/capture-cli/internal/photo"
	"github.com/tastebase/capture-cli/internal/provider"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initExtract(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Ledger),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		router := buildRouter(serveDeps{
			Extractor:   env.Orchestrator,
			Registry:    env.Registry,
			Ledger:      env.Ledger,
			PhotoOpts:   env.PhotoOpts,
			MaxUploadMB: cfg.Server.MaxUploadMB,
			Origins:     cfg.Server.AllowedOrigins,
		})

		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// extractor is the slice of the orchestrator the HTTP handlers need.
type extractor interface {
	Extract(ctx context.Context, img provider.Image, domain model.Domain, providerName string) (*extract.Result, error)
}

// serveDeps carries what the router needs. Registry may be nil; provider
// override validation is skipped then.
type serveDeps struct {
	Extractor   extractor
	Registry    *provider.Registry
	Ledger      ledger.Store
	PhotoOpts   photo.Options
	MaxUploadMB int
	Origins     []string
}

// extractResponse is the POST /v1/extract response payload.
type extractResponse struct {
	Record       *model.StructuredRecord `json:"record"`
	Confidence   model.ConfidenceScore   `json:"confidence"`
	Match        *model.MatchResult      `json:"match,omitempty"`
	Metadata     model.ProviderMetadata  `json:"metadata"`
	EntryID      string                  `json:"entry_id"`
	FallbackUsed bool                    `json:"fallback_used"`
	Enriched     []string                `json:"enriched,omitempty"`
}

func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// buildRouter assembles the chi router with all API routes.
func buildRouter(deps serveDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", handleExtract(deps))
		r.Get("/ledger", handleLedgerList(deps.Ledger))
		r.Get("/ledger/{id}", handleLedgerGet(deps.Ledger))
		r.Post("/ledger/{id}/entity", handleAttachEntity(deps.Ledger))
		r.Get("/stats", handleStats(deps.Ledger))
	})

	return r
}

// requestLogger logs one line per request, tagged with the request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func handleExtract(deps serveDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := int64(deps.MaxUploadMB) << 20
		if maxBytes <= 0 {
			maxBytes = 20 << 20
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		if err := r.ParseMultipartForm(maxBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		domain, err := model.ParseDomain(r.FormValue("domain"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		providerName := r.FormValue("provider")
		if providerName != "" && deps.Registry != nil {
			if _, err := deps.Registry.Resolve(providerName); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		file, _, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "image file is required")
			return
		}
		defer file.Close() //nolint:errcheck

		raw, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read image upload")
			return
		}

		jpeg, info, err := photo.Normalize(raw, deps.PhotoOpts)
		if err != nil {
			var invalid *photo.InvalidInputError
			if errors.As(err, &invalid) {
				writeError(w, http.StatusBadRequest, invalid.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "normalize image")
			return
		}

		img := provider.Image{JPEG: jpeg, Width: info.Width, Height: info.Height}
		res, err := deps.Extractor.Extract(r.Context(), img, domain, providerName)
		if err != nil {
			if extract.IsUnavailable(err) {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "extraction failed")
			return
		}

		writeJSON(w, http.StatusOK, extractResponse{
			Record:       res.Record,
			Confidence:   res.Confidence,
			Match:        res.Match,
			Metadata:     res.Metadata,
			EntryID:      res.EntryID,
			FallbackUsed: res.FallbackUsed,
			Enriched:     res.Enriched,
		})
	}
}

func handleLedgerGet(st ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := st.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "ledger read failed")
			return
		}
		if entry == nil {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func handleLedgerList(st ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := ledger.Filter{
			Domain:   model.Domain(q.Get("domain")),
			Provider: q.Get("provider"),
		}
		if v := q.Get("success"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "success must be true or false")
				return
			}
			f.Success = &b
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			f.Limit = n
		}

		entries, err := st.List(r.Context(), f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "ledger read failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entries": entries,
			"count":   len(entries),
		})
	}
}

func handleAttachEntity(st ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EntityID string `json:"entity_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.EntityID == "" {
			writeError(w, http.StatusBadRequest, "entity_id is required")
			return
		}

		id := chi.URLParam(r, "id")
		if err := st.AttachEntity(r.Context(), id, req.EntityID); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				writeError(w, http.StatusNotFound, "entry not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "attach entity failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"id":        id,
			"entity_id": req.EntityID,
		})
	}
}

func handleStats(st ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var since time.Time
		if v := q.Get("hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "hours must be a non-negative integer")
				return
			}
			if n > 0 {
				since = time.Now().UTC().Add(-time.Duration(n) * time.Hour)
			}
		}

		switch by := q.Get("by"); by {
		case "":
			totals, err := st.Stats(r.Context(), since)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "stats read failed")
				return
			}
			writeJSON(w, http.StatusOK, totals)
		case "provider":
			rows, err := st.StatsByProvider(r.Context(), since)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "stats read failed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"providers": rows})
		case "domain":
			rows, err := st.StatsByDomain(r.Context(), since)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "stats read failed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"domains": rows})
		case "day":
			rows, err := st.StatsByDay(r.Context(), since)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "stats read failed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"days": rows})
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown breakdown %q (use provider, domain, or day)", by))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// startServer runs the handler until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
