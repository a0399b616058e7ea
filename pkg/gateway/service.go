// Package gateway wires the query builder, cache, upstream client,
// report assembler, and formatter into the single surface the inbound
// HTTP layer calls. The inbound layer owns routing and caller
// authentication; this package owns everything between a validated
// logical request and a formatted payload or structured error.
package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openelt/nsgateway/pkg/cache"
	"github.com/openelt/nsgateway/pkg/config"
	"github.com/openelt/nsgateway/pkg/errors"
	"github.com/openelt/nsgateway/pkg/format"
	"github.com/openelt/nsgateway/pkg/metrics"
	"github.com/openelt/nsgateway/pkg/models"
	"github.com/openelt/nsgateway/pkg/query"
	"github.com/openelt/nsgateway/pkg/report"
	"github.com/openelt/nsgateway/pkg/signer"
	"github.com/openelt/nsgateway/pkg/upstream"
)

// Upstream is the slice of the upstream client the service uses.
type Upstream interface {
	report.Executor
	ExpandAll(ctx context.Context, entity string, items []models.Record) []models.Record
	Limiter() upstream.RateLimiter
}

// Store is the response cache surface. The in-memory cache never fails;
// a remote backing store may, and a failing store degrades to direct
// upstream fetches rather than failing requests.
type Store interface {
	Get(key string) (cache.Entry, bool, error)
	Put(key, entity string, records []models.Record, totalCount int, hasMore bool) error
	Invalidate(entity string) (int, error)
	Stats() cache.Stats
}

// memoryStore adapts the in-memory cache to the Store surface.
type memoryStore struct {
	c *cache.Cache
}

func (m memoryStore) Get(key string) (cache.Entry, bool, error) {
	entry, ok := m.c.Get(key)
	return entry, ok, nil
}

func (m memoryStore) Put(key, entity string, records []models.Record, totalCount int, hasMore bool) error {
	m.c.Put(key, entity, records, totalCount, hasMore)
	return nil
}

func (m memoryStore) Invalidate(entity string) (int, error) {
	return m.c.Invalidate(entity), nil
}

func (m memoryStore) Stats() cache.Stats {
	return m.c.GetStats()
}

// Service is the query execution and response shaping engine.
type Service struct {
	cfg       *config.Config
	logger    *zap.Logger
	client    Upstream
	store     Store
	builder   *query.Builder
	assembler *report.Assembler
	formatter *format.Formatter
	inbound   upstream.RateLimiter

	// injectable clock for response timestamps
	now func() time.Time
}

// Option customizes a Service; used by tests to substitute collaborators.
type Option func(*Service)

// WithUpstream overrides the upstream client.
func WithUpstream(u Upstream) Option {
	return func(s *Service) { s.client = u }
}

// WithStore overrides the cache store.
func WithStore(st Store) Option {
	return func(s *Service) { s.store = st }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a fully wired service from configuration. The
// credential is validated here; a malformed credential fails startup,
// never a request.
func NewService(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "gateway")),
		builder: query.NewBuilder(),
		inbound: upstream.NewRateLimiter(cfg.RateLimit.InboundPerSec, cfg.RateLimit.InboundBurst),
		now:     time.Now,
	}

	formatter, err := format.NewFormatter()
	if err != nil {
		return nil, err
	}
	s.formatter = formatter

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		sg, err := signer.New(cfg.Credential)
		if err != nil {
			return nil, err
		}
		s.client = upstream.NewClient(cfg, sg, logger)
	}
	if s.store == nil {
		s.store = memoryStore{c: cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries)}
	}
	s.assembler = report.NewAssembler(s.client, cfg.Upstream.MaxConcurrency, logger)

	return s, nil
}

// Fetch executes one logical request end to end and returns the
// formatted payload. Errors carry a stable kind and a suggested HTTP
// status for the inbound layer.
func (s *Service) Fetch(ctx context.Context, spec query.Spec, fspec format.Spec) (interface{}, error) {
	if err := s.admit(ctx); err != nil {
		return nil, err
	}

	if err := spec.Normalize(s.cfg); err != nil {
		metrics.RequestErrors.WithLabelValues(string(errors.TypeOf(err))).Inc()
		return nil, err
	}
	if fspec.Type == format.TypeCustomLocale && !s.formatter.HasLocale(fspec.Locale) {
		return nil, errors.New(errors.ErrorTypeInvalidRequest, "unknown locale: "+fspec.Locale)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Upstream.TotalTimeout)
	defer cancel()

	kind := s.requestKind(&spec)
	start := s.now()
	defer func() {
		metrics.RequestLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	key := s.cacheKey(&spec, fspec)

	if !spec.NoCache {
		if payload, ok := s.fromCache(key, &spec, fspec); ok {
			return payload, nil
		}
	}

	records, total, hasMore, err := s.execute(ctx, kind, &spec)
	if err != nil {
		metrics.RequestErrors.WithLabelValues(string(errors.TypeOf(err))).Inc()
		return nil, err
	}

	// An aborted request never populates the cache
	if ctx.Err() != nil {
		metrics.RequestErrors.WithLabelValues(string(errors.ErrorTypeTimeout)).Inc()
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request deadline exceeded")
	}

	if !spec.NoCache {
		if err := s.store.Put(key, spec.Entity, records, total, hasMore); err != nil {
			s.logger.Warn("cache put failed", zap.String("key", key), zap.Error(err))
		}
	}

	metrics.RecordsServed.WithLabelValues(spec.Entity).Add(float64(len(records)))

	return s.formatter.Render(records, fspec, format.Meta{
		Entity:      spec.Entity,
		Total:       total,
		HasMore:     hasMore,
		Offset:      spec.Offset,
		Limit:       spec.Limit,
		CacheHit:    false,
		GeneratedAt: s.now(),
	}), nil
}

// InvalidateCache removes cached entries for one entity, or all entries
// when entity is empty, returning how many were dropped and the cache
// stats from before the purge.
func (s *Service) InvalidateCache(entity string) (int, cache.Stats, error) {
	stats := s.store.Stats()
	removed, err := s.store.Invalidate(entity)
	if err != nil {
		return 0, stats, errors.Wrap(err, errors.ErrorTypeCache, "cache invalidation failed")
	}
	s.logger.Info("cache invalidated",
		zap.String("entity", entity),
		zap.Int("removed", removed))
	return removed, stats, nil
}

// CacheStats exposes cache effectiveness counters.
func (s *Service) CacheStats() cache.Stats {
	return s.store.Stats()
}

// admit applies the inbound rate limit: block until capacity frees, or
// reject immediately, per configuration.
func (s *Service) admit(ctx context.Context) error {
	if s.cfg.RateLimit.RejectWhenLimited {
		if !s.inbound.Allow() {
			return errors.New(errors.ErrorTypeRateLimit, "inbound rate limit exceeded")
		}
		return nil
	}
	if err := s.inbound.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeRateLimit, "inbound rate limit wait aborted")
	}
	return nil
}

// requestKind classifies the request for metrics and dispatch.
func (s *Service) requestKind(spec *query.Spec) string {
	switch {
	case spec.Raw != "":
		return "raw"
	case s.builder.IsReport(spec.Entity):
		return "report"
	default:
		return "list"
	}
}

// execute runs the upstream side of a request and returns canonical
// records plus pagination facts.
func (s *Service) execute(ctx context.Context, kind string, spec *query.Spec) ([]models.Record, int, bool, error) {
	if kind == "report" {
		plan, err := s.builder.BuildReport(spec)
		if err != nil {
			return nil, 0, false, err
		}
		res, err := s.assembler.Assemble(ctx, plan, spec.Limit, spec.Offset)
		if err != nil {
			return nil, 0, false, err
		}
		return res.Records, len(res.Records), res.HasMore, nil
	}

	q, err := s.builder.BuildListing(spec)
	if err != nil {
		return nil, 0, false, err
	}

	records, hasMore, err := s.client.FetchAll(ctx, q, spec.Limit, spec.Offset)
	if err != nil {
		return nil, 0, false, err
	}

	if spec.Expand && q.Kind == upstream.KindList {
		records = s.client.ExpandAll(ctx, spec.Entity, records)
	}

	return records, len(records), hasMore, nil
}

// fromCache renders a cached payload if a fresh entry exists. A failing
// store is treated as a miss; the cache is an optimization, never a
// correctness dependency.
func (s *Service) fromCache(key string, spec *query.Spec, fspec format.Spec) (interface{}, bool) {
	entry, ok, err := s.store.Get(key)
	if err != nil {
		s.logger.Warn("cache get failed, falling through to upstream",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	return s.formatter.Render(entry.Records, fspec, format.Meta{
		Entity:      spec.Entity,
		Total:       entry.TotalCount,
		HasMore:     entry.HasMore,
		Offset:      spec.Offset,
		Limit:       spec.Limit,
		CacheHit:    true,
		GeneratedAt: s.now(),
	}), true
}

// cacheKey builds the composite cache key for a request identity.
func (s *Service) cacheKey(spec *query.Spec, fspec format.Spec) string {
	parts := append([]string{string(fspec.Type), fspec.Locale}, spec.CacheKeyParts()...)
	return cache.Key(spec.Entity, parts...)
}
