// Package cache provides a write-through time-series cache backed by Redis.
//
// Each (metric, dimension combination) pair is one series stored as a Redis
// sorted set. Entries are scored by their epoch-millis timestamp; the whole
// series shares one expiry that is refreshed whenever an entry changes.
//
// The cache is not a system of record: a missing or expired series is an
// empty result, and backend failures never surface as errors from Fetch or
// Insert. A connectivity failure during a write disables further writes
// until the connection recovers (see package connection).
//
// # Basic Usage
//
//	mgr, err := connection.New(connection.DefaultProfile())
//	if err != nil {
//		return err
//	}
//	defer mgr.Close()
//
//	store := cache.NewStore(mgr, cache.FixedTTL(time.Hour))
//
//	// Write two points of metric 2
//	store.Insert(ctx, cache.TimeSeriesPoint{
//		MetricURN: "thirdeye:metric:2",
//		MetricID:  2,
//		Timestamp: 1000,
//		DataValue: "30.0",
//	})
//
//	// Read the window [1000, 3000) at 1s granularity
//	req := cache.NewCacheRequest(2, "thirdeye:metric:2", 1000, 3000, 1000)
//	resp, err := store.Fetch(ctx, req)
//
// # Key Layout
//
//	<prefix><metricId>:dimensionKey:<dimensionKeyHash>
//
// The default prefix is "thirdeyeMetricId:". Members are JSON objects with
// the fields timestamp, metricId, dimensionKeyHash and dimensionValue.
//
// # Range Semantics
//
// A request covers [StartTimeInclusive, EndTimeExclusive). The read is
// inclusive on both ends over [start, end - GroupByGranularityMillis], so a
// point stored exactly at the exclusive end is never returned.
//
// # Metrics
//
// NewPrometheusRecorder exports:
//
//   - tscache_redis_calls_total{operation} - Fetch and insert calls
//   - tscache_redis_exceptions_total{reason} - Misses and backend errors
//   - tscache_redis_writes_total{outcome} - Insert outcomes past the health gate
package cache
