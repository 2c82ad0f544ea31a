package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/jwstcurves/internal/dashboard"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/render"
	"github.com/lox/jwstcurves/internal/store"
)

// CatalogSource lists the series available for selection.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) ([]models.Selection, error)
}

type Server struct {
	engine   *dashboard.Engine
	catalog  CatalogSource
	store    *store.Store
	addr     string
	previews *render.Cache
}

func NewServer(engine *dashboard.Engine, catalog CatalogSource, st *store.Store, addr string) *Server {
	return &Server{
		engine:   engine,
		catalog:  catalog,
		store:    st,
		addr:     addr,
		previews: render.NewCache(10 * time.Minute),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/catalog", s.handleCatalog)
	mux.HandleFunc("/api/lightcurve", s.handleLightCurve)
	mux.HandleFunc("/api/lightcurve/current", s.handleCurrentLightCurve)
	mux.HandleFunc("/api/drilldown", s.handleDrillDown)
	mux.HandleFunc("/api/matrix", s.handleMatrix)
	mux.HandleFunc("/api/matrix/current", s.handleCurrentMatrix)
	mux.HandleFunc("/api/fetches", s.handleFetches)
	mux.HandleFunc("/api/preview/lightcurve.png", s.handleLightCurvePreview)
	mux.HandleFunc("/api/preview/drilldown.png", s.handleDrillDownPreview)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on %s", s.addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}

	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			health.Status = "error"
			health.Errors = append(health.Errors, "database: "+err.Error())
		} else if fh, err := s.store.GetFetchHealth(time.Now().Add(-time.Hour)); err != nil {
			health.Errors = append(health.Errors, "fetch health: "+err.Error())
			health.Status = "error"
		} else {
			health.Fetches = newFetchHealthView(fh)
			// more than half of the last hour's fetches failing
			if fh.Total > 0 && fh.Failed*2 > fh.Total {
				health.Status = "degraded"
			}
		}
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeParamsError reports a query that could not be parsed as 400 and one
// that parsed into unusable settings as 422.
func writeParamsError(w http.ResponseWriter, err error) {
	var verr *dashboard.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusUnprocessableEntity, verr.Msg)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// writeEngineError maps view errors to status codes: invalid settings are the
// caller's fault, everything else is ours.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *dashboard.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, verr.Msg)
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		log.Printf("api: %s cancelled by client", r.URL.Path)
	default:
		log.Printf("api: %s: %v", r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
