package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultKeyPrefix is the namespace prefix for every series key.
	DefaultKeyPrefix = "thirdeyeMetricId:"

	// dimensionSegment separates the metric ID from the dimension key hash.
	dimensionSegment = ":dimensionKey:"
)

// CreateKey generates the deterministic series key for a metric and
// dimension combination.
// Format: <prefix><metricID>:dimensionKey:<dimensionKeyHash>
//
// Example:
//
//	thirdeyeMetricId:2:dimensionKey:3158902058
//
// The metric ID is rendered in base 10 and never contains ':', so the first
// ":dimensionKey:" after the prefix always terminates it. The hash is the
// remaining suffix and needs no escaping.
func CreateKey(prefix string, metricID int64, dimensionKeyHash string) string {
	var b strings.Builder
	b.Grow(len(prefix) + 20 + len(dimensionSegment) + len(dimensionKeyHash))
	b.WriteString(prefix)
	b.WriteString(strconv.FormatInt(metricID, 10))
	b.WriteString(dimensionSegment)
	b.WriteString(dimensionKeyHash)
	return b.String()
}

// ParseKey splits a series key produced by CreateKey back into its metric ID
// and dimension key hash.
func ParseKey(prefix, key string) (int64, string, error) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return 0, "", fmt.Errorf("key %q does not start with prefix %q", key, prefix)
	}

	idPart, hash, ok := strings.Cut(rest, dimensionSegment)
	if !ok {
		return 0, "", fmt.Errorf("key %q has no dimension segment", key)
	}

	metricID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse metric id in key %q: %w", key, err)
	}

	return metricID, hash, nil
}

// HashMetricURN derives a dimension key hash from a metric URN.
func HashMetricURN(metricURN string) string {
	return strconv.FormatUint(xxhash.Sum64String(metricURN), 10)
}
