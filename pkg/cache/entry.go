package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StoreEntry is the persisted form of one timestamp inside a series.
type StoreEntry struct {
	// Timestamp is the epoch-millis time of the observation (also the sorted set score)
	Timestamp int64 `json:"timestamp"`

	// MetricID is the metric the entry was written for
	MetricID int64 `json:"metricId"`

	// DimensionKeyHash identifies the dimension combination
	DimensionKeyHash string `json:"dimensionKeyHash"`

	// DimensionValue is the observed value
	DimensionValue float64 `json:"dimensionValue"`
}

// Matches reports whether the entry already holds the given hash and value.
// NaN is treated as equal to NaN so a NaN observation is not rewritten on
// every insert.
func (e StoreEntry) Matches(dimensionKeyHash string, value float64) bool {
	if e.DimensionKeyHash != dimensionKeyHash {
		return false
	}
	if math.IsNaN(e.DimensionValue) && math.IsNaN(value) {
		return true
	}
	return e.DimensionValue == value
}

// storedEntry adds the JSON-invalid float values that encoding/json rejects.
type storedEntry struct {
	Timestamp        int64           `json:"timestamp"`
	MetricID         int64           `json:"metricId"`
	DimensionKeyHash string          `json:"dimensionKeyHash"`
	DimensionValue   json.RawMessage `json:"dimensionValue"`
}

func encodeEntry(e StoreEntry) (string, error) {
	raw := storedEntry{
		Timestamp:        e.Timestamp,
		MetricID:         e.MetricID,
		DimensionKeyHash: e.DimensionKeyHash,
		DimensionValue:   json.RawMessage(encodeFloat(e.DimensionValue)),
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("marshal store entry: %w", err)
	}
	return string(data), nil
}

func decodeEntry(member string) (StoreEntry, error) {
	var raw storedEntry
	if err := json.Unmarshal([]byte(member), &raw); err != nil {
		return StoreEntry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	value, err := decodeFloat(raw.DimensionValue)
	if err != nil {
		return StoreEntry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return StoreEntry{
		Timestamp:        raw.Timestamp,
		MetricID:         raw.MetricID,
		DimensionKeyHash: raw.DimensionKeyHash,
		DimensionValue:   value,
	}, nil
}

// encodeFloat renders non-finite values as JSON strings.
func encodeFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return `"NaN"`
	case math.IsInf(v, 1):
		return `"+Inf"`
	case math.IsInf(v, -1):
		return `"-Inf"`
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

func decodeFloat(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing dimensionValue")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(s, 64)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// FormatDataValue renders a value as the decimal string carried by
// response points. Integral values keep a ".0" suffix (30 -> "30.0").
func FormatDataValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
