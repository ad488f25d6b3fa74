package cache

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidRequest indicates a cache request violates its window invariants
	ErrInvalidRequest = errors.New("invalid cache request")

	// ErrInvalidPoint indicates a point cannot be stored (non-numeric value)
	ErrInvalidPoint = errors.New("invalid time series point")

	// ErrInvalidEntry indicates a stored entry is corrupted
	ErrInvalidEntry = errors.New("invalid store entry")
)

// DefaultSeriesTTL is used when the TTL source yields a non-positive value.
const DefaultSeriesTTL = time.Hour

// Connection is the backend handle the store borrows per operation.
// *connection.Manager implements it.
type Connection interface {
	// Client returns the shared Redis client
	Client() *redis.Client

	// IsActive reports whether writes should be attempted
	IsActive() bool

	// ReportFailure records a failed write; it returns true when the error
	// degraded the backend
	ReportFailure(err error) bool

	// ReportSuccess records a successful write
	ReportSuccess()
}

// TTLSource supplies the series TTL. It is consulted on every write.
type TTLSource interface {
	SeriesTTL() time.Duration
}

// FixedTTL is a constant TTLSource.
type FixedTTL time.Duration

// SeriesTTL implements TTLSource.
func (f FixedTTL) SeriesTTL() time.Duration { return time.Duration(f) }

// Store is the write-through time-series cache over Redis.
type Store struct {
	conn           Connection
	ttl            TTLSource
	prefix         string
	recorder       Recorder
	logger         zerolog.Logger
	countAllWrites bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRecorder sets the instrumentation sink.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithCountAllWrites controls whether unchanged and failed inserts are
// counted as writes (default true). When false only created and updated
// entries are counted.
func WithCountAllWrites(all bool) Option {
	return func(s *Store) { s.countAllWrites = all }
}

// NewStore creates a cache store over conn.
func NewStore(conn Connection, ttl TTLSource, opts ...Option) *Store {
	if conn == nil {
		panic("cache connection cannot be nil")
	}
	if ttl == nil {
		ttl = FixedTTL(DefaultSeriesTTL)
	}

	s := &Store{
		conn:           conn,
		ttl:            ttl,
		prefix:         DefaultKeyPrefix,
		recorder:       NopRecorder{},
		logger:         log.With().Str("component", "tscache-store").Logger(),
		countAllWrites: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the series key for a metric and dimension key hash.
func (s *Store) Key(metricID int64, dimensionKeyHash string) string {
	return CreateKey(s.prefix, metricID, dimensionKeyHash)
}

// Fetch returns the cached points of the request window. A missing series,
// an empty window and backend failures all yield an empty response; the
// only error is ErrInvalidRequest.
func (s *Store) Fetch(ctx context.Context, req CacheRequest) (*CacheResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := s.Key(req.MetricID, req.DimensionKeyHash)
	ts := newSeries(s.conn.Client(), key)
	s.recorder.Call(OpFetch)

	size, err := ts.size(ctx)
	if err != nil {
		s.readFailed(key, err)
		return emptyResponse(req), nil
	}
	if size == 0 {
		s.logger.Info().
			Str("key", key).
			Int64("start", req.StartTimeInclusive).
			Int64("end", req.EndTimeExclusive).
			Msg("No cached series for window")
		s.recorder.Exception(ReasonMiss)
		return emptyResponse(req), nil
	}

	start := req.StartTimeInclusive
	end, ok := req.inclusiveEnd()
	if !ok {
		return emptyResponse(req), nil
	}

	s.logger.Debug().
		Str("key", key).
		Int64("start", start).
		Int64("end", end).
		Msg("Reading cached window")

	members, err := ts.rangeMembers(ctx, start, end)
	if err != nil {
		s.readFailed(key, err)
		return emptyResponse(req), nil
	}

	points := make([]TimeSeriesPoint, 0, len(members))
	for _, member := range members {
		entry, err := decodeEntry(member)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Skipping corrupted cache entry")
			s.recorder.Exception(ReasonDecodeError)
			continue
		}
		points = append(points, TimeSeriesPoint{
			MetricURN: req.MetricURN,
			Timestamp: entry.Timestamp,
			MetricID:  req.MetricID,
			DataValue: FormatDataValue(entry.DimensionValue),
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})

	return &CacheResponse{Request: req, Points: points}, nil
}

// Insert writes a point into its series. Identical re-inserts are no-ops;
// a changed value replaces the entry and refreshes the series TTL. Backend
// failures are absorbed (the backend may be marked degraded); the only
// error is ErrInvalidPoint.
func (s *Store) Insert(ctx context.Context, point TimeSeriesPoint) error {
	value, err := point.DataValueFloat()
	if err != nil {
		return err
	}

	hash := point.KeyHash()
	key := s.Key(point.MetricID, hash)
	s.recorder.Call(OpInsert)

	if !s.conn.IsActive() {
		return nil
	}

	outcome := s.write(ctx, key, point, hash, value)
	if s.countAllWrites || outcome == OutcomeCreated || outcome == OutcomeUpdated {
		s.recorder.Write(outcome)
	}
	return nil
}

func (s *Store) write(ctx context.Context, key string, point TimeSeriesPoint, hash string, value float64) string {
	ts := newSeries(s.conn.Client(), key)

	existing, found, err := ts.get(ctx, point.Timestamp)
	corrupted := false
	if err != nil {
		if !errors.Is(err, ErrInvalidEntry) {
			s.writeFailed(key, point.Timestamp, err)
			s.recorder.Exception(ReasonReadError)
			return OutcomeFailed
		}
		s.logger.Warn().Err(err).Str("key", key).Int64("timestamp", point.Timestamp).Msg("Replacing corrupted cache entry")
		s.recorder.Exception(ReasonDecodeError)
		corrupted = true
	}

	ttl := s.seriesTTL()

	if !found && !corrupted {
		entry := StoreEntry{
			Timestamp:        point.Timestamp,
			MetricID:         point.MetricID,
			DimensionKeyHash: hash,
			DimensionValue:   value,
		}
		s.logger.Debug().Str("key", key).Int64("timestamp", point.Timestamp).Dur("ttl", ttl).Msg("Creating cache entry")
		if err := ts.add(ctx, entry, ttl); err != nil {
			s.writeFailed(key, point.Timestamp, err)
			s.recorder.Exception(ReasonWriteError)
			return OutcomeFailed
		}
		s.conn.ReportSuccess()
		return OutcomeCreated
	}

	if !corrupted && existing.Matches(hash, value) {
		return OutcomeUnchanged
	}

	updated := existing
	if corrupted {
		updated = StoreEntry{Timestamp: point.Timestamp, MetricID: point.MetricID}
	}
	updated.DimensionKeyHash = hash
	updated.DimensionValue = value

	s.logger.Debug().Str("key", key).Int64("timestamp", point.Timestamp).Dur("ttl", ttl).Msg("Updating cache entry")
	if err := ts.replace(ctx, updated, ttl); err != nil {
		s.writeFailed(key, point.Timestamp, err)
		s.recorder.Exception(ReasonWriteError)
		return OutcomeFailed
	}
	// Removal plus insert does not extend the series expiry on its own.
	if err := ts.touch(ctx, ttl); err != nil {
		s.writeFailed(key, point.Timestamp, err)
		s.recorder.Exception(ReasonWriteError)
		return OutcomeFailed
	}
	s.conn.ReportSuccess()
	return OutcomeUpdated
}

func (s *Store) seriesTTL() time.Duration {
	ttl := s.ttl.SeriesTTL()
	if ttl <= 0 {
		return DefaultSeriesTTL
	}
	return ttl
}

func (s *Store) readFailed(key string, err error) {
	s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, returning empty response")
	s.recorder.Exception(ReasonReadError)
}

func (s *Store) writeFailed(key string, timestamp int64, err error) {
	if s.conn.ReportFailure(err) {
		s.logger.Error().Err(err).Str("key", key).Int64("timestamp", timestamp).Msg("Cache backend unreachable, writes disabled")
		return
	}
	s.logger.Warn().Err(err).Str("key", key).Int64("timestamp", timestamp).Msg("Cache write failed")
}
