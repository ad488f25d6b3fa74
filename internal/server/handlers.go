package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Sternrassler/tscache/pkg/cache"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleReady is 200 only when writes are enabled and Redis answers PING.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.backend.IsActive() {
		http.Error(w, "cache backend degraded", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.backend.Ping(ctx); err != nil {
		http.Error(w, "cache backend unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "READY")
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	query := r.URL.Query()

	metricID, err := strconv.ParseInt(vars["metricId"], 10, 64)
	if err != nil {
		writeError(w, ErrInvalidParameters)
		return
	}

	var bounds [3]int64
	for i, name := range []string{"start", "end", "granularity"} {
		v, err := strconv.ParseInt(query.Get(name), 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %s", ErrInvalidParameters, name))
			return
		}
		bounds[i] = v
	}

	req := cache.CacheRequest{
		MetricID:                 metricID,
		DimensionKeyHash:         vars["dimensionKeyHash"],
		MetricURN:                query.Get("metricUrn"),
		StartTimeInclusive:       bounds[0],
		EndTimeExclusive:         bounds[1],
		GroupByGranularityMillis: bounds[2],
	}

	resp, err := s.cache.Fetch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuerySeries(w http.ResponseWriter, r *http.Request) {
	var reqs []cache.CacheRequest
	if err := decodeBody(w, r, &reqs); err != nil {
		writeError(w, err)
		return
	}

	for i, req := range reqs {
		if err := req.Validate(); err != nil {
			writeError(w, fmt.Errorf("request %d: %w", i, err))
			return
		}
	}

	results := s.runner.FetchAll(r.Context(), reqs)
	out := make([]*cache.CacheResponse, len(results))
	for _, res := range results {
		if res.Err != nil {
			s.logger.Warn().Err(res.Err).Int("index", res.Index).Msg("Batch fetch item failed")
			out[res.Index] = &cache.CacheResponse{Request: reqs[res.Index], Points: []cache.TimeSeriesPoint{}}
			continue
		}
		out[res.Index] = res.Response
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInsertPoints(w http.ResponseWriter, r *http.Request) {
	var points []cache.TimeSeriesPoint
	if err := decodeBody(w, r, &points); err != nil {
		writeError(w, err)
		return
	}

	summary := s.runner.InsertAll(r.Context(), points)
	if summary.Rejected > 0 {
		s.logger.Info().
			Int("submitted", summary.Submitted).
			Int("rejected", summary.Rejected).
			Msg("Rejected invalid points")
	}
	writeJSON(w, http.StatusAccepted, summary)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequestBody, err)
	}
	return nil
}
