package services

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"sentinel/internal/dao"
	"sentinel/internal/models"
)

// fakeJobDAO is an in-memory ScanJobDAO. onGet, when set, fires once after
// the next read, letting tests interleave a competing transition between a
// load and its conditional write.
type fakeJobDAO struct {
	mu      sync.Mutex
	jobs    map[string]*models.ScanJob
	outbox  []*models.OutboxEntry
	saveErr error
	onGet   func()
}

func newFakeJobDAO() *fakeJobDAO {
	return &fakeJobDAO{jobs: make(map[string]*models.ScanJob)}
}

func (f *fakeJobDAO) SaveWithOutbox(job *models.ScanJob, entry *models.OutboxEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	copied := *job
	f.jobs[job.ID] = &copied
	f.outbox = append(f.outbox, entry)
	return nil
}

func (f *fakeJobDAO) GetByID(id string) (*models.ScanJob, error) {
	f.mu.Lock()
	job, ok := f.jobs[id]
	var copied models.ScanJob
	if ok {
		copied = *job
	}
	hook := f.onGet
	f.onGet = nil
	f.mu.Unlock()

	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if hook != nil {
		hook()
	}
	return &copied, nil
}

func (f *fakeJobDAO) ListByTenant(tenantID string, page, limit int) ([]models.ScanJob, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []models.ScanJob
	for _, job := range f.jobs {
		if job.TenantID == tenantID {
			jobs = append(jobs, *job)
		}
	}
	return jobs, int64(len(jobs)), nil
}

func (f *fakeJobDAO) ListByUser(userID string, page, limit int) ([]models.ScanJob, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []models.ScanJob
	for _, job := range f.jobs {
		if job.UserID == userID {
			jobs = append(jobs, *job)
		}
	}
	return jobs, int64(len(jobs)), nil
}

func (f *fakeJobDAO) UpdateIfStatus(job *models.ScanJob, expected models.ScanStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.jobs[job.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	copied := *job
	f.jobs[job.ID] = &copied
	return true, nil
}

func (f *fakeJobDAO) CountByTenantSince(tenantID string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, job := range f.jobs {
		if job.TenantID == tenantID && !job.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeJobDAO) ListStale(status models.ScanStatus, before time.Time) ([]models.ScanJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []models.ScanJob
	for _, job := range f.jobs {
		if job.Status != status {
			continue
		}
		ts := job.CreatedAt
		if status == models.StatusRunning {
			if job.StartedAt == nil {
				continue
			}
			ts = *job.StartedAt
		}
		if ts.Before(before) {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

func (f *fakeJobDAO) insert(job *models.ScanJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
}

func (f *fakeJobDAO) job(id string) *models.ScanJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

// fakeOutboxDAO is an in-memory OutboxDAO seeded from entries.
type fakeOutboxDAO struct {
	mu      sync.Mutex
	entries []*models.OutboxEntry
	nextID  uint
}

func newFakeOutboxDAO(entries ...*models.OutboxEntry) *fakeOutboxDAO {
	f := &fakeOutboxDAO{nextID: 1}
	for _, entry := range entries {
		entry.ID = f.nextID
		f.nextID++
		f.entries = append(f.entries, entry)
	}
	return f
}

func (f *fakeOutboxDAO) FetchUnpublished(limit int) ([]models.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OutboxEntry
	for _, entry := range f.entries {
		if entry.PublishedAt == nil && len(out) < limit {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (f *fakeOutboxDAO) MarkPublished(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.ID == id {
			now := time.Now().UTC()
			entry.PublishedAt = &now
		}
	}
	return nil
}

func (f *fakeOutboxDAO) Bump(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.ID == id {
			entry.Attempts++
		}
	}
	return nil
}

func (f *fakeOutboxDAO) unpublishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, entry := range f.entries {
		if entry.PublishedAt == nil {
			count++
		}
	}
	return count
}

// fakeResultDAO is an in-memory ScanResultDAO.
type fakeResultDAO struct {
	mu      sync.Mutex
	results map[string]*models.ScanResult
}

func newFakeResultDAO() *fakeResultDAO {
	return &fakeResultDAO{results: make(map[string]*models.ScanResult)}
}

func (f *fakeResultDAO) Insert(result *models.ScanResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.results[result.ScanID]; ok {
		return dao.ErrDuplicateResult
	}
	copied := *result
	f.results[result.ScanID] = &copied
	return nil
}

func (f *fakeResultDAO) GetByScanID(scanID string) (*models.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[scanID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *result
	return &copied, nil
}

func (f *fakeResultDAO) SeveritySummary(tenantID string, since time.Time) (models.SeverityCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var counts models.SeverityCounts
	for _, r := range f.results {
		if r.TenantID == tenantID && !r.DetectedAt.Before(since) {
			counts.Critical += r.CriticalCount
			counts.High += r.HighCount
			counts.Medium += r.MediumCount
			counts.Low += r.LowCount
		}
	}
	return counts, nil
}

func (f *fakeResultDAO) FindingTrend(tenantID string, since time.Time) ([]dao.SeverityTrendPoint, error) {
	return nil, nil
}

func (f *fakeResultDAO) StaticAnalysisSummary(tenantID string, since time.Time) (int64, models.SeverityCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var scans int64
	var counts models.SeverityCounts
	for _, r := range f.results {
		if r.TenantID != tenantID || r.DetectedAt.Before(since) || r.Type != models.TypeStatic {
			continue
		}
		scans++
		counts.Critical += r.CriticalCount
		counts.High += r.HighCount
		counts.Medium += r.MediumCount
		counts.Low += r.LowCount
	}
	return scans, counts, nil
}

func (f *fakeResultDAO) ComplianceCounts(tenantID string, since time.Time) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var passing, failing int64
	for _, r := range f.results {
		if r.TenantID != tenantID || r.DetectedAt.Before(since) {
			continue
		}
		if r.CriticalCount == 0 {
			passing++
		} else {
			failing++
		}
	}
	return passing, failing, nil
}

// fakeOrchestratorClient records status callbacks and can fail on demand.
type fakeOrchestratorClient struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeOrchestratorClient) UpdateScanStatus(ctx context.Context, scanID string, status models.ScanStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, scanID+":"+string(status))
	return nil
}

func (f *fakeOrchestratorClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeArtifactStore records archived reports.
type fakeArtifactStore struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeArtifactStore) PutReport(ctx context.Context, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	return nil
}

// fakeAlerter records operator alerts.
type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (f *fakeAlerter) Alert(title, message string, fields map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, title)
}

func (f *fakeAlerter) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}
