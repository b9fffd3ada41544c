package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/patient-progress-api/internal/models"
	"github.com/noah-isme/patient-progress-api/internal/store"
	"github.com/noah-isme/patient-progress-api/pkg/jobs"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
)

// JobDatasetRefresh is the queue job type that reloads the dataset.
const JobDatasetRefresh = "dataset.refresh"

const staleRetry = time.Minute

type recordSource interface {
	Name() string
	Load(ctx context.Context) ([]models.AssessmentRecord, error)
}

// DatasetService is a read-through cache in front of the record source. The
// snapshot lives in memory for ttl; when Redis is enabled the raw records are
// shared across instances under the same key.
type DatasetService struct {
	source  recordSource
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	id      string
	ttl     time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	snapshot *store.Dataset
	expires  time.Time

	group singleflight.Group
}

// NewDatasetService constructs the dataset cache. A non-positive ttl means ten
// minutes.
func NewDatasetService(source recordSource, cache *CacheService, metrics *MetricsService, logger *zap.Logger, datasetID string, ttl time.Duration) *DatasetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DatasetService{
		source:  source,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		id:      datasetID,
		ttl:     ttl,
		now:     time.Now,
	}
}

// CacheKey is the key shared by both cache tiers.
func (s *DatasetService) CacheKey() string { return "dataset:" + s.id }

// Dataset returns the current snapshot, loading it when absent or expired.
// cached is true when no source load was needed. When a reload fails and an
// older snapshot exists, the older snapshot is served and the load is retried
// after staleRetry.
func (s *DatasetService) Dataset(ctx context.Context) (ds *store.Dataset, cached bool, err error) {
	if ds := s.current(); ds != nil {
		return ds, true, nil
	}
	ds, cached, err = s.load(ctx, true)
	if err == nil || ctx.Err() != nil {
		return ds, cached, err
	}
	if stale := s.keepStale(); stale != nil {
		s.logger.Warn("serving stale dataset", zap.Time("loaded_at", stale.LoadedAt()), zap.Error(err))
		return stale, true, nil
	}
	return nil, false, err
}

// Invalidate expires the in-memory snapshot and drops the shared copy. The
// old snapshot is kept as a fallback until a reload succeeds.
func (s *DatasetService) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.expires = time.Time{}
	s.mu.Unlock()
	return s.cache.Delete(ctx, s.CacheKey())
}

// Refresh reloads from the source, bypassing Redis. The active snapshot is
// replaced only when the new one loads and validates.
func (s *DatasetService) Refresh(ctx context.Context) (*store.Dataset, error) {
	ds, _, err := s.load(ctx, false)
	return ds, err
}

// HandleJob runs queued refresh jobs.
func (s *DatasetService) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobDatasetRefresh {
		return nil
	}
	ds, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("dataset refreshed", zap.String("job_id", job.ID), zap.Int("records", ds.Len()))
	return nil
}

// Ready reports whether any snapshot has been loaded.
func (s *DatasetService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot != nil
}

func (s *DatasetService) current() *store.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil || !s.now().Before(s.expires) {
		return nil
	}
	return s.snapshot
}

// keepStale extends the old snapshot for staleRetry and returns it, or nil
// when nothing was ever loaded.
func (s *DatasetService) keepStale() *store.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	retry := staleRetry
	if s.ttl < retry {
		retry = s.ttl
	}
	s.expires = s.now().Add(retry)
	return s.snapshot
}

type loadResult struct {
	dataset *store.Dataset
	shared  bool
}

func (s *DatasetService) load(ctx context.Context, useShared bool) (*store.Dataset, bool, error) {
	key := s.CacheKey()
	if !useShared {
		key += ":refresh"
	}
	// The load outlives any single caller so a cancelled request does not
	// fail the others waiting on it.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.loadOnce(context.WithoutCancel(ctx), useShared)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		out := res.Val.(loadResult)
		return out.dataset, out.shared, nil
	}
}

func (s *DatasetService) loadOnce(ctx context.Context, useShared bool) (loadResult, error) {
	if ds := s.current(); ds != nil && useShared {
		return loadResult{dataset: ds, shared: true}, nil
	}

	if useShared {
		var records []models.AssessmentRecord
		hit, err := s.cache.Get(ctx, s.CacheKey(), &records)
		if err == nil && hit {
			ds, err := store.New(s.id, records)
			if err == nil {
				s.publish(ds)
				return loadResult{dataset: ds, shared: true}, nil
			}
			s.logger.Warn("discarding cached dataset", zap.Error(err))
		}
	}

	start := s.now()
	records, err := s.source.Load(ctx)
	s.metrics.ObserveDatasetLoad(s.source.Name(), len(records), s.now().Sub(start), err)
	if err != nil {
		s.logger.Error("dataset load failed", zap.String("source", s.source.Name()), zap.Error(err))
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return loadResult{}, err
		}
		return loadResult{}, appErrors.Wrap(err, appErrors.ErrDatasetUnavailable.Code, appErrors.ErrDatasetUnavailable.Status, "assessment dataset could not be loaded")
	}

	ds, err := store.New(s.id, records)
	if err != nil {
		s.logger.Error("dataset rejected", zap.String("source", s.source.Name()), zap.Error(err))
		return loadResult{}, err
	}
	_ = s.cache.Set(ctx, s.CacheKey(), records, s.ttl)
	s.publish(ds)
	s.logger.Info("dataset loaded", zap.String("source", s.source.Name()), zap.Int("records", ds.Len()), zap.Duration("took", s.now().Sub(start)))
	return loadResult{dataset: ds}, nil
}

func (s *DatasetService) publish(ds *store.Dataset) {
	s.mu.Lock()
	s.snapshot = ds
	s.expires = s.now().Add(s.ttl)
	s.mu.Unlock()
}
