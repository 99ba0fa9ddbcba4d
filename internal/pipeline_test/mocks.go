package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/domain/taskModel"
)

// MockRecordStore implements recordModel.RecordStore. Unset fields fall back
// to an in-memory record map so tests only override what they assert on.
type MockRecordStore struct {
	mu      sync.Mutex
	records map[string]recordModel.Record

	OnCreateRecord  func(ctx context.Context, record recordModel.Record) error
	OnGetRecord     func(ctx context.Context, recordId string) (recordModel.Record, error)
	OnSetStorageRef func(ctx context.Context, recordId string, storageRef string) error
	OnSetStatus     func(ctx context.Context, recordId string, status recordModel.RecordStatus) error
	OnMarkProcessed func(ctx context.Context, recordId string, chunkCount int, noContent bool) error
	OnMarkFailed    func(ctx context.Context, recordId string, retryCount int) error
	OnPatientExists func(ctx context.Context, patientId string) (bool, error)
	OnPatientByUser func(ctx context.Context, userId string) (recordModel.Patient, error)
}

func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{records: make(map[string]recordModel.Record)}
}

// Seed places a record in the backing map directly.
func (m *MockRecordStore) Seed(record recordModel.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Id] = record
}

// KnownIds returns every record id in the backing map.
func (m *MockRecordStore) KnownIds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}

// Stored returns the current state of a record in the backing map.
func (m *MockRecordStore) Stored(recordId string) (recordModel.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[recordId]
	return record, ok
}

func (m *MockRecordStore) CreateRecord(ctx context.Context, record recordModel.Record) error {
	if m.OnCreateRecord != nil {
		return m.OnCreateRecord(ctx, record)
	}
	if record.CreatedTime.IsZero() {
		record.CreatedTime = time.Now().UTC()
		record.UpdatedTime = record.CreatedTime
	}
	m.Seed(record)
	return nil
}

func (m *MockRecordStore) GetRecord(ctx context.Context, recordId string) (recordModel.Record, error) {
	if m.OnGetRecord != nil {
		return m.OnGetRecord(ctx, recordId)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[recordId]
	if !ok {
		return recordModel.Record{}, errNotSeeded(recordId)
	}
	return record, nil
}

func (m *MockRecordStore) GetRecords(ctx context.Context, recordIds []string) ([]recordModel.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordModel.Record
	for _, id := range recordIds {
		if record, ok := m.records[id]; ok {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *MockRecordStore) SetStorageRef(ctx context.Context, recordId string, storageRef string) error {
	if m.OnSetStorageRef != nil {
		return m.OnSetStorageRef(ctx, recordId, storageRef)
	}
	return m.mutate(recordId, func(r *recordModel.Record) { r.StorageRef = storageRef })
}

func (m *MockRecordStore) SetStatus(ctx context.Context, recordId string, status recordModel.RecordStatus) error {
	if m.OnSetStatus != nil {
		return m.OnSetStatus(ctx, recordId, status)
	}
	return m.mutate(recordId, func(r *recordModel.Record) { r.Status = status })
}

func (m *MockRecordStore) MarkProcessed(ctx context.Context, recordId string, chunkCount int, noContent bool) error {
	if m.OnMarkProcessed != nil {
		return m.OnMarkProcessed(ctx, recordId, chunkCount, noContent)
	}
	return m.mutate(recordId, func(r *recordModel.Record) {
		r.Status = recordModel.StatusProcessed
		r.ChunkCount = chunkCount
		r.NoContent = noContent
		r.RetryCount = 0
	})
}

func (m *MockRecordStore) MarkFailed(ctx context.Context, recordId string, retryCount int) error {
	if m.OnMarkFailed != nil {
		return m.OnMarkFailed(ctx, recordId, retryCount)
	}
	return m.mutate(recordId, func(r *recordModel.Record) {
		r.Status = recordModel.StatusFailed
		r.RetryCount = retryCount
	})
}

func (m *MockRecordStore) ResetRetries(ctx context.Context, recordId string) error {
	return m.mutate(recordId, func(r *recordModel.Record) { r.RetryCount = 0 })
}

func (m *MockRecordStore) DeleteRecord(ctx context.Context, recordId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[recordId]; !ok {
		return errNotSeeded(recordId)
	}
	delete(m.records, recordId)
	return nil
}

func (m *MockRecordStore) PatientExists(ctx context.Context, patientId string) (bool, error) {
	if m.OnPatientExists != nil {
		return m.OnPatientExists(ctx, patientId)
	}
	return true, nil
}

func (m *MockRecordStore) PatientByUser(ctx context.Context, userId string) (recordModel.Patient, error) {
	if m.OnPatientByUser != nil {
		return m.OnPatientByUser(ctx, userId)
	}
	return recordModel.Patient{Id: "patient-" + userId, UserId: userId}, nil
}

func (m *MockRecordStore) mutate(recordId string, fn func(*recordModel.Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[recordId]
	if !ok {
		return errNotSeeded(recordId)
	}
	fn(&record)
	record.UpdatedTime = time.Now().UTC()
	m.records[recordId] = record
	return nil
}

// MockAccessStore implements recordModel.AccessStore.
type MockAccessStore struct {
	OnRecordIdsOwnedByUser   func(ctx context.Context, userId string) ([]string, error)
	OnRecordIdsGrantedToUser func(ctx context.Context, userId string) ([]string, error)
	OnAllRecordIds           func(ctx context.Context) ([]string, error)
	OnOwnsRecord             func(ctx context.Context, userId string, recordId string) (bool, error)
	OnHasGrant               func(ctx context.Context, userId string, recordId string) (bool, error)
}

func (m *MockAccessStore) RecordIdsOwnedByUser(ctx context.Context, userId string) ([]string, error) {
	if m.OnRecordIdsOwnedByUser != nil {
		return m.OnRecordIdsOwnedByUser(ctx, userId)
	}
	return nil, nil
}

func (m *MockAccessStore) RecordIdsGrantedToUser(ctx context.Context, userId string) ([]string, error) {
	if m.OnRecordIdsGrantedToUser != nil {
		return m.OnRecordIdsGrantedToUser(ctx, userId)
	}
	return nil, nil
}

func (m *MockAccessStore) AllRecordIds(ctx context.Context) ([]string, error) {
	if m.OnAllRecordIds != nil {
		return m.OnAllRecordIds(ctx)
	}
	return nil, nil
}

func (m *MockAccessStore) OwnsRecord(ctx context.Context, userId string, recordId string) (bool, error) {
	if m.OnOwnsRecord != nil {
		return m.OnOwnsRecord(ctx, userId, recordId)
	}
	return false, nil
}

func (m *MockAccessStore) HasGrant(ctx context.Context, userId string, recordId string) (bool, error) {
	if m.OnHasGrant != nil {
		return m.OnHasGrant(ctx, userId, recordId)
	}
	return false, nil
}

// MockAuditStore records every entry so tests can assert the trail.
type MockAuditStore struct {
	mu      sync.Mutex
	entries []recordModel.AuditEntry

	OnAppendAudit func(ctx context.Context, entry recordModel.AuditEntry) error
}

func (m *MockAuditStore) AppendAudit(ctx context.Context, entry recordModel.AuditEntry) error {
	if m.OnAppendAudit != nil {
		return m.OnAppendAudit(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Actions returns the recorded audit actions in order.
func (m *MockAuditStore) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, len(m.entries))
	for i, entry := range m.entries {
		actions[i] = entry.Action
	}
	return actions
}

// MockBlobStore implements blobStore.Gateway over a map.
type MockBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	next  int

	OnPut func(ctx context.Context, data []byte, contentType string) (string, error)
	OnGet func(ctx context.Context, ref string) ([]byte, error)
}

func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{blobs: make(map[string][]byte)}
}

func (m *MockBlobStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if m.OnPut != nil {
		return m.OnPut(ctx, data, contentType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	ref := fmt.Sprintf("blob-%d", m.next)
	m.blobs[ref] = data
	return ref, nil
}

func (m *MockBlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if m.OnGet != nil {
		return m.OnGet(ctx, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[ref]
	if !ok {
		return nil, errNotSeeded(ref)
	}
	return data, nil
}

func (m *MockBlobStore) SignedURL(ref string, ttl time.Duration) (string, error) {
	return "https://blobs.test/" + ref, nil
}

func (m *MockBlobStore) Delete(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, ref)
	return nil
}

// MockScheduler implements ingest.Scheduler.
type MockScheduler struct {
	mu        sync.Mutex
	scheduled []string

	OnSchedule func(ctx context.Context, recordId string, traceId string) error
}

func (m *MockScheduler) ScheduleProcessing(ctx context.Context, recordId string, traceId string) error {
	if m.OnSchedule != nil {
		return m.OnSchedule(ctx, recordId, traceId)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = append(m.scheduled, recordId)
	return nil
}

func (m *MockScheduler) Scheduled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.scheduled...)
}

// MockExtractor implements textExtract plumbing for the insight stage.
type MockExtractor struct {
	OnExtract func(ctx context.Context, data []byte, mimeType string) (string, error)
}

func (m *MockExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	if m.OnExtract != nil {
		return m.OnExtract(ctx, data, mimeType)
	}
	return string(data), nil
}

// MockLLM implements llm.Provider.
type MockLLM struct {
	mu    sync.Mutex
	calls int

	OnGenerate func(ctx context.Context, question string, contextChunks []string) (string, error)
}

func (m *MockLLM) Generate(ctx context.Context, question string, contextChunks []string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.OnGenerate != nil {
		return m.OnGenerate(ctx, question, contextChunks)
	}
	return "mocked answer", nil
}

func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockLease implements taskModel.Lease with a single in-process holder.
type MockLease struct {
	mu   sync.Mutex
	held map[string]string

	OnAcquire func(ctx context.Context, recordId string, ttl time.Duration) (string, bool, error)
}

var _ taskModel.Lease = (*MockLease)(nil)

func NewMockLease() *MockLease {
	return &MockLease{held: make(map[string]string)}
}

func (m *MockLease) Acquire(ctx context.Context, recordId string, ttl time.Duration) (string, bool, error) {
	if m.OnAcquire != nil {
		return m.OnAcquire(ctx, recordId, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.held[recordId]; held {
		return "", false, nil
	}
	token := "token-" + recordId
	m.held[recordId] = token
	return token, true, nil
}

func (m *MockLease) Release(ctx context.Context, recordId string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[recordId] == token {
		delete(m.held, recordId)
	}
	return nil
}

func errNotSeeded(id string) error { return faults.NotFound("mock entry", id) }
