package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/models"
	"github.com/noah-isme/patient-progress-api/pkg/jobs"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
)

type fakeSource struct {
	records []models.AssessmentRecord
	err     error
	delay   time.Duration
	calls   int32
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Load(ctx context.Context) ([]models.AssessmentRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeSource) loads() int { return int(atomic.LoadInt32(&f.calls)) }

func sampleRecords() []models.AssessmentRecord {
	return []models.AssessmentRecord{
		{PatientID: "100", PatientName: "Ana Gómez", Period: "2024-01", Scores: map[string]models.Score{
			"Sitting balance": models.Evaluated(40), "Rolling": models.Evaluated(50), "Crawling": models.Evaluated(30), "Kneeling": models.Evaluated(80),
		}},
		{PatientID: "100", PatientName: "Ana Gómez", Period: "2024-06", Scores: map[string]models.Score{
			"Sitting balance": models.Evaluated(62), "Rolling": models.NotEvaluated(), "Crawling": models.Evaluated(30), "Kneeling": models.Evaluated(20),
		}},
		{PatientID: "200", PatientName: "Luis Pérez", Period: "2024-02", Scores: map[string]models.Score{}},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newDatasetFixture(src *fakeSource, cache *CacheService) (*DatasetService, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewDatasetService(src, cache, NewMetricsService(), zap.NewNop(), "sheet", 10*time.Minute)
	svc.now = clock.Now
	return svc, clock
}

func TestDatasetServiceServesFromMemoryWithinTTL(t *testing.T) {
	src := &fakeSource{records: sampleRecords()}
	svc, clock := newDatasetFixture(src, nil)
	ctx := context.Background()

	ds, cached, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 3, ds.Len())
	assert.True(t, svc.Ready())

	clock.Advance(9 * time.Minute)
	again, cached, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, ds, again)
	assert.Equal(t, 1, src.loads())

	clock.Advance(2 * time.Minute)
	_, cached, err = svc.Dataset(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, src.loads())
}

func TestDatasetServiceCollapsesConcurrentLoads(t *testing.T) {
	src := &fakeSource{records: sampleRecords(), delay: 50 * time.Millisecond}
	svc, _ := newDatasetFixture(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Dataset(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, src.loads())
}

func TestDatasetServiceUsesSharedCache(t *testing.T) {
	repo := &stubCacheRepo{}
	cache := NewCacheService(repo, nil, time.Minute, nil, true)

	first, _ := newDatasetFixture(&fakeSource{records: sampleRecords()}, cache)
	_, _, err := first.Dataset(context.Background())
	require.NoError(t, err)
	assert.True(t, repo.has("dataset:sheet"))

	// A second instance finds the records in Redis and never touches its source.
	src := &fakeSource{err: errors.New("should not be called")}
	second, _ := newDatasetFixture(src, cache)
	ds, cached, err := second.Dataset(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, 0, src.loads())
}

func TestDatasetServiceRefreshBypassesCaches(t *testing.T) {
	repo := &stubCacheRepo{}
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	src := &fakeSource{records: sampleRecords()}
	svc, _ := newDatasetFixture(src, cache)

	_, _, err := svc.Dataset(context.Background())
	require.NoError(t, err)

	src.records = sampleRecords()[:1]
	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "j1", Type: JobDatasetRefresh}))
	assert.Equal(t, 2, src.loads())

	ds, cached, err := svc.Dataset(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, ds.Len())
}

func TestDatasetServiceInvalidate(t *testing.T) {
	src := &fakeSource{records: sampleRecords()}
	svc, _ := newDatasetFixture(src, nil)
	_, _, err := svc.Dataset(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(context.Background()))
	assert.True(t, svc.Ready())
	_, cached, err := svc.Dataset(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, src.loads())
}

func TestDatasetServiceKeepsSnapshotWhenRefreshFails(t *testing.T) {
	src := &fakeSource{records: sampleRecords()}
	svc, _ := newDatasetFixture(src, nil)
	ctx := context.Background()

	before, _, err := svc.Dataset(ctx)
	require.NoError(t, err)

	src.records = append(sampleRecords(), sampleRecords()[0])
	err = svc.HandleJob(ctx, jobs.Job{ID: "j1", Type: JobDatasetRefresh})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateRecord)

	assert.True(t, svc.Ready())
	ds, cached, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, before, ds)
	assert.Equal(t, 2, src.loads())
}

func TestDatasetServiceServesStaleSnapshotWhenReloadFails(t *testing.T) {
	src := &fakeSource{records: sampleRecords()}
	svc, clock := newDatasetFixture(src, nil)
	ctx := context.Background()

	before, _, err := svc.Dataset(ctx)
	require.NoError(t, err)

	src.err = errors.New("quota exceeded")
	clock.Advance(11 * time.Minute)
	ds, cached, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, before, ds)
	assert.Equal(t, 2, src.loads())

	// The failed source is not hit again until the retry window passes.
	_, _, err = svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loads())

	src.err = nil
	src.records = sampleRecords()[:1]
	clock.Advance(2 * time.Minute)
	ds, cached, err = svc.Dataset(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, 3, src.loads())
}

func TestDatasetServiceSourceFailure(t *testing.T) {
	svc, _ := newDatasetFixture(&fakeSource{err: errors.New("quota exceeded")}, nil)
	_, _, err := svc.Dataset(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrDatasetUnavailable)
}

func TestDatasetServiceRejectsDuplicates(t *testing.T) {
	records := sampleRecords()
	records = append(records, records[0])
	svc, _ := newDatasetFixture(&fakeSource{records: records}, nil)
	_, _, err := svc.Dataset(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrDuplicateRecord)
}
