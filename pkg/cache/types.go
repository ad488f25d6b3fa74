package cache

import (
	"fmt"
	"math"
	"strconv"
)

// CacheRequest describes one cached window lookup.
type CacheRequest struct {
	MetricID         int64  `json:"metricId"`
	DimensionKeyHash string `json:"dimensionKeyHash"`
	MetricURN        string `json:"metricUrn"`

	// StartTimeInclusive and EndTimeExclusive are epoch millis
	StartTimeInclusive int64 `json:"startTimeInclusive"`
	EndTimeExclusive   int64 `json:"endTimeExclusive"`

	// GroupByGranularityMillis is the step between consecutive points
	GroupByGranularityMillis int64 `json:"groupByGranularityMillis"`
}

// NewCacheRequest builds a request whose dimension key hash is derived from
// the metric URN.
func NewCacheRequest(metricID int64, metricURN string, start, end, granularityMillis int64) CacheRequest {
	return CacheRequest{
		MetricID:                 metricID,
		DimensionKeyHash:         HashMetricURN(metricURN),
		MetricURN:                metricURN,
		StartTimeInclusive:       start,
		EndTimeExclusive:         end,
		GroupByGranularityMillis: granularityMillis,
	}
}

// Validate checks the window invariants.
func (r CacheRequest) Validate() error {
	if r.EndTimeExclusive <= r.StartTimeInclusive {
		return fmt.Errorf("%w: end %d must be after start %d", ErrInvalidRequest, r.EndTimeExclusive, r.StartTimeInclusive)
	}
	if r.GroupByGranularityMillis <= 0 {
		return fmt.Errorf("%w: granularity must be positive (got %d)", ErrInvalidRequest, r.GroupByGranularityMillis)
	}
	return nil
}

// inclusiveEnd converts the exclusive upper bound into the inclusive bound
// used by the range read, one granularity step below the end. ok is false
// when the window is shorter than one granularity step and nothing can match.
func (r CacheRequest) inclusiveEnd() (end int64, ok bool) {
	g := r.GroupByGranularityMillis
	if r.EndTimeExclusive < math.MinInt64+g {
		return 0, false
	}
	end = r.EndTimeExclusive - g
	return end, end >= r.StartTimeInclusive
}

// TimeSeriesPoint is a single observation exchanged with callers.
type TimeSeriesPoint struct {
	MetricURN string `json:"metricUrn"`
	Timestamp int64  `json:"timestamp"`
	MetricID  int64  `json:"metricId"`
	DataValue string `json:"dataValue"`

	// DimensionKeyHash overrides the hash derived from MetricURN when set
	DimensionKeyHash string `json:"dimensionKeyHash,omitempty"`
}

// KeyHash returns the dimension key hash used to address the point's series.
func (p TimeSeriesPoint) KeyHash() string {
	if p.DimensionKeyHash != "" {
		return p.DimensionKeyHash
	}
	return HashMetricURN(p.MetricURN)
}

// DataValueFloat parses DataValue.
func (p TimeSeriesPoint) DataValueFloat() (float64, error) {
	v, err := strconv.ParseFloat(p.DataValue, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: data value %q: %v", ErrInvalidPoint, p.DataValue, err)
	}
	return v, nil
}

// Validate checks that the point carries a numeric value.
func (p TimeSeriesPoint) Validate() error {
	_, err := p.DataValueFloat()
	return err
}

// CacheResponse carries the points found for a request, ascending by
// timestamp. Points is never nil.
type CacheResponse struct {
	Request CacheRequest      `json:"request"`
	Points  []TimeSeriesPoint `json:"points"`
}

func emptyResponse(req CacheRequest) *CacheResponse {
	return &CacheResponse{
		Request: req,
		Points:  []TimeSeriesPoint{},
	}
}
