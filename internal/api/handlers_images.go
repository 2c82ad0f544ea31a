package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/lox/jwstcurves/internal/aggregate"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/render"
)

// handleLightCurvePreview renders one band of the light curve as a PNG.
func (s *Server) handleLightCurvePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	band := models.BandSW
	if b := q.Get("band"); b != "" {
		var err error
		if band, err = models.ParseBand(b); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	settings, err := parseSettings(q)
	if err != nil {
		writeParamsError(w, err)
		return
	}
	width, height := render.Size(parseSize(q))

	key := fmt.Sprintf("lc|%s|%s|%dx%d", band, settings.CacheKey(), width, height)
	if data, ok := s.previews.Get(key); ok {
		servePNG(w, data)
		return
	}

	lc, err := s.engine.LightCurve(r.Context(), settings)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	data, err := render.LightCurvePNG(lc.TracesFor(band), string(band), settings.XAxis(), width, height)
	if err != nil {
		log.Printf("api: render light curve: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.previews.Set(key, data)
	servePNG(w, data)
}

func (s *Server) handleDrillDownPreview(w http.ResponseWriter, r *http.Request) {
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
	width, height := render.Size(parseSize(q))

	key := fmt.Sprintf("dd|%s|%s|%dx%d", id, settings.CacheKey(), width, height)
	if data, ok := s.previews.Get(key); ok {
		servePNG(w, data)
		return
	}

	dd, ok, err := s.engine.DrillDown(r.Context(), settings, id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	var data []byte
	if ok {
		data, err = render.DrillDownPNG(dd, settings.XAxis(), width, height)
	} else {
		data, err = render.Placeholder("No raw points for "+id.String(), width, height)
	}
	if err != nil {
		log.Printf("api: render drill-down: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ok {
		s.previews.Set(key, data)
	}
	servePNG(w, data)
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}
