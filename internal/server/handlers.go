// Package server handles HTTP requests and middleware.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/woozymasta/geodraft/internal/crs"
	"github.com/woozymasta/geodraft/internal/edit"
	"github.com/woozymasta/geodraft/internal/geo"
	"github.com/woozymasta/geodraft/internal/processor"
	"github.com/woozymasta/geodraft/internal/reproject"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
)

// Routes returns the API mux wrapped in the request logger.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/crs", s.HandleCRSList)
	mux.HandleFunc("POST /api/import", s.HandleImport)
	mux.HandleFunc("POST /api/reproject", s.HandleReproject)
	mux.HandleFunc("POST /api/metrics", s.HandleMetrics)
	mux.HandleFunc("POST /api/edit", s.HandleEdit)
	mux.HandleFunc("POST /api/export", s.HandleExport)

	return RequestLogger(mux)
}

// HandleCRSList serves the registered coordinate reference systems.
func (s *ServerContext) HandleCRSList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "application/json", s.Registry.All())
}

// HandleImport parses the raw request body as the file named by the
// filename query parameter. The crs parameter overrides the default source CRS.
func (s *ServerContext) HandleImport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filename := strings.TrimSpace(q.Get("filename"))
	if filename == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("filename is required"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.Config.Import.MaxSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, bodyStatus(err), err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.Config.Import.Timeout)
	defer cancel()

	res, err := s.Importer.Import(ctx, filename, data, q.Get("crs"))
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, "application/json", res)
}

type reprojectRequest struct {
	From        string      `json:"from"`
	To          string      `json:"to"`
	Coordinates []orb.Point `json:"coordinates"`
}

type reprojectResponse struct {
	CRS         string      `json:"crs"`
	Coordinates []orb.Point `json:"coordinates"`
}

// HandleReproject converts a list of coordinates between two CRS.
func (s *ServerContext) HandleReproject(w http.ResponseWriter, r *http.Request) {
	var req reprojectRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, bodyStatus(err), err)
		return
	}

	from, to := orDefault(req.From, crs.GeodeticID), orDefault(req.To, crs.GeodeticID)
	out := make([]orb.Point, len(req.Coordinates))
	for i, p := range req.Coordinates {
		q, err := s.Engine.Transform(p, from, to)
		if err != nil {
			writeError(w, r, statusFor(err), fmt.Errorf("coordinate %d: %w", i, err))
			return
		}
		out[i] = q
	}

	writeJSON(w, http.StatusOK, "application/json", reprojectResponse{CRS: crs.Normalize(to), Coordinates: out})
}

type metricsRequest struct {
	Coordinates []orb.Point `json:"coordinates"`
	Closed      bool        `json:"closed"`
	CRS         string      `json:"crs"`
	Zone        string      `json:"zone"`
}

type metricsResponse struct {
	CRS            string  `json:"crs"`
	Length         float64 `json:"length"`
	Perimeter      float64 `json:"perimeter"`
	Area           float64 `json:"area"`
	GeodesicLength float64 `json:"geodesic_length"`
}

// HandleMetrics measures a line or ring. Planar metrics are computed in the
// requested zone, in the source CRS when it is projected, or else in the
// zone covering the coordinates. The geodesic length is always in metres.
func (s *ServerContext) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	var req metricsRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, bodyStatus(err), err)
		return
	}

	src, err := s.Registry.Lookup(orDefault(req.CRS, crs.GeodeticID))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	geodetic, err := s.convert(req.Coordinates, src.ID, crs.GeodeticID)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	target, err := s.metricsFrame(req.Zone, src, geodetic)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	planar, err := s.convert(req.Coordinates, src.ID, target.ID)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	res := metricsResponse{CRS: target.ID, Length: geo.Distance(planar)}
	if req.Closed {
		m := geo.PolygonMetrics(planar)
		res.Perimeter, res.Area = m.Perimeter, m.Area
		if len(geodetic) > 0 && !geo.IsRingClosed(geodetic) {
			geodetic = append(geodetic, geodetic[0])
		}
	}
	res.GeodesicLength = geo.GeodesicLength(geodetic)

	writeJSON(w, http.StatusOK, "application/json", res)
}

func (s *ServerContext) metricsFrame(zone string, src crs.CRS, geodetic []orb.Point) (crs.CRS, error) {
	if zone != "" {
		return s.Registry.Lookup(zone)
	}
	if !src.IsGeodetic() || len(geodetic) == 0 {
		return src, nil
	}

	c := orb.MultiPoint(geodetic).Bound().Center()
	if z, ok := s.Registry.ZoneFor(c[0], c[1]); ok {
		return z, nil
	}
	return src, nil
}

func (s *ServerContext) convert(pts []orb.Point, from, to string) ([]orb.Point, error) {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		q, err := s.Engine.Transform(p, from, to)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

type editRequest struct {
	Collection geo.FeatureCollection `json:"collection"`
	Deltas     []edit.Delta          `json:"deltas"`
}

// HandleEdit applies drag deltas to a collection and returns the result.
func (s *ServerContext) HandleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, bodyStatus(err), err)
		return
	}

	fc, err := edit.Apply(req.Collection, req.Deltas...)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	log.Debug().
		Str("collection", fc.Name).
		Int("deltas", len(req.Deltas)).
		Msg("Edits applied")

	writeJSON(w, http.StatusOK, processor.FormatGeoJSON.ContentType(), fc)
}

// HandleExport encodes the posted collection in the format query parameter
// and serves it as a download. For DXF the crs parameter selects the zone.
func (s *ServerContext) HandleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := processor.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	var fc geo.FeatureCollection
	if err := s.decode(w, r, &fc); err != nil {
		writeError(w, r, bodyStatus(err), err)
		return
	}

	norm, _, err := geo.Normalize(fc)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	data, err := s.Exporter.WithDXFCRS(q.Get("crs")).Export(norm, format)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	name := orDefault(norm.Name, "export")
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+format.Ext()))
	_, _ = w.Write(data)
}

// decode reads a size-limited JSON body into v.
func (s *ServerContext) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.Config.Import.MaxSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error  string           `json:"error"`
	Reason processor.Reason `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v interface{}) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	ev := log.Debug()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")

	res := errorResponse{Error: err.Error()}
	var pe *processor.ParseError
	if errors.As(err, &pe) {
		res.Reason = pe.Reason
	}
	writeJSON(w, status, "application/json", res)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, processor.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, processor.ErrMalformed),
		errors.Is(err, processor.ErrEmpty),
		errors.Is(err, geo.ErrEmptyGeometry),
		errors.Is(err, reproject.ErrNonFinite),
		errors.Is(err, reproject.ErrUnsupportedGeometry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, crs.ErrUnknownCRS),
		errors.Is(err, edit.ErrInvalidDelta):
		return http.StatusBadRequest
	case errors.Is(err, edit.ErrUnknownFeature):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func bodyStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
