package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/jwstcurves/internal/aggregate"
)

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	selections, err := s.catalog.LoadCatalog(r.Context())
	if err != nil {
		log.Printf("api: catalog: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	firstSeen := make(map[string]time.Time)
	if s.store != nil {
		entries, err := s.store.GetCatalog(time.Time{})
		if err != nil {
			log.Printf("api: catalog history: %v", err)
		}
		for _, e := range entries {
			firstSeen[e.Selection.ID()] = e.FirstSeenAt
		}
	}

	out := make([]CatalogEntryView, len(selections))
	for i, sel := range selections {
		out[i] = newCatalogEntryView(sel)
		if t, ok := firstSeen[sel.ID()]; ok {
			out[i].FirstSeenAt = &t
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLightCurve(w http.ResponseWriter, r *http.Request) {
	settings, err := parseSettings(r.URL.Query())
	if err != nil {
		writeParamsError(w, err)
		return
	}
	lc, err := s.engine.LightCurve(r.Context(), settings)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLightCurveResponse(lc))
}

// handleCurrentLightCurve serves the newest completed light curve, so a
// client that fired overlapping requests can settle on the latest one.
func (s *Server) handleCurrentLightCurve(w http.ResponseWriter, r *http.Request) {
	lc := s.engine.Current()
	if lc == nil {
		writeError(w, http.StatusNotFound, "no light curve computed yet")
		return
	}
	writeJSON(w, http.StatusOK, newLightCurveResponse(lc))
}

func (s *Server) handleDrillDown(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := aggregate.ParsePointID(q.Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	settings, err := parseSettings(q)
	if err != nil {
		writeParamsError(w, err)
		return
	}

	dd, ok, err := s.engine.DrillDown(r.Context(), settings, id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no raw points for "+id.String())
		return
	}
	writeJSON(w, http.StatusOK, newDrillDownResponse(dd))
}

func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	settings, err := parseSettings(r.URL.Query())
	if err != nil {
		writeParamsError(w, err)
		return
	}
	mv, err := s.engine.Matrix(r.Context(), settings)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMatrixResponse(mv))
}

func (s *Server) handleCurrentMatrix(w http.ResponseWriter, r *http.Request) {
	mv := s.engine.CurrentMatrix()
	if mv == nil {
		writeError(w, http.StatusNotFound, "no matrix computed yet")
		return
	}
	writeJSON(w, http.StatusOK, newMatrixResponse(mv))
}

func (s *Server) handleFetches(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "no payload store configured")
		return
	}
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, 1000)
	}

	runs, err := s.store.RecentFetchRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	health, err := s.store.GetFetchHealth(time.Now().Add(-24 * time.Hour))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := FetchesResponse{Health: newFetchHealthView(health), Runs: make([]FetchRunView, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = newFetchRunView(run)
	}
	writeJSON(w, http.StatusOK, resp)
}
