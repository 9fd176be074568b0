// Package store implements the processing core's persistence contract, in
// memory and on top of gorm.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"toastem/internal/models"
	"toastem/internal/process"
)

type memoryState struct {
	farms      map[uint]models.Farm
	batches    map[uint]models.Batch
	records    map[uint]*models.StageRecord
	audit      []models.AuditEntry
	nextFarm   uint
	nextBatch  uint
	nextRecord uint
}

func newMemoryState() memoryState {
	return memoryState{
		farms:   map[uint]models.Farm{},
		batches: map[uint]models.Batch{},
		records: map[uint]*models.StageRecord{},
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		farms:      make(map[uint]models.Farm, len(s.farms)),
		batches:    make(map[uint]models.Batch, len(s.batches)),
		records:    make(map[uint]*models.StageRecord, len(s.records)),
		audit:      append([]models.AuditEntry(nil), s.audit...),
		nextFarm:   s.nextFarm,
		nextBatch:  s.nextBatch,
		nextRecord: s.nextRecord,
	}
	for id, farm := range s.farms {
		out.farms[id] = farm
	}
	for id, batch := range s.batches {
		out.batches[id] = batch
	}
	for id, record := range s.records {
		out.records[id] = record.Clone()
	}
	return out
}

// MemoryStore keeps everything in process memory. Atomically serializes
// callers and restores the previous state when fn fails.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

var _ process.Store = (*MemoryStore)(nil)

func (s *MemoryStore) view() *memoryTx {
	return &memoryTx{state: &s.state}
}

// Atomically implements process.Store
func (s *MemoryStore) Atomically(ctx context.Context, fn func(tx process.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(s.view()); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) GetFarm(ctx context.Context, id uint) (*models.Farm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetFarm(ctx, id)
}

func (s *MemoryStore) CreateFarm(ctx context.Context, farm *models.Farm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateFarm(ctx, farm)
}

func (s *MemoryStore) GetBatch(ctx context.Context, id uint) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetBatch(ctx, id)
}

func (s *MemoryStore) CreateBatch(ctx context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateBatch(ctx, batch)
}

func (s *MemoryStore) SaveBatch(ctx context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveBatch(ctx, batch)
}

func (s *MemoryStore) NextBatchSeq(ctx context.Context, farmID uint, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().NextBatchSeq(ctx, farmID, year)
}

func (s *MemoryStore) OwnerOf(ctx context.Context, batchID uint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().OwnerOf(ctx, batchID)
}

func (s *MemoryStore) GetStageRecord(ctx context.Context, batchID uint, stage string) (*models.StageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetStageRecord(ctx, batchID, stage)
}

func (s *MemoryStore) GetStageRecordByID(ctx context.Context, id uint) (*models.StageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetStageRecordByID(ctx, id)
}

func (s *MemoryStore) SaveStageRecord(ctx context.Context, record *models.StageRecord) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveStageRecord(ctx, record)
}

func (s *MemoryStore) ListStageRecords(ctx context.Context, batchID uint, stage string) ([]*models.StageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListStageRecords(ctx, batchID, stage)
}

func (s *MemoryStore) ListBatchRecords(ctx context.Context, batchID uint) ([]*models.StageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListBatchRecords(ctx, batchID)
}

func (s *MemoryStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AppendAudit(ctx, entry)
}

func (s *MemoryStore) ListAudit(ctx context.Context, batchID uint) ([]*models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListAudit(ctx, batchID)
}

// memoryTx operates on the state without locking; the caller holds the lock.
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) Atomically(ctx context.Context, fn func(tx process.Store) error) error {
	return fn(t)
}

func (t *memoryTx) GetFarm(_ context.Context, id uint) (*models.Farm, error) {
	farm, ok := t.state.farms[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &farm, nil
}

func (t *memoryTx) CreateFarm(_ context.Context, farm *models.Farm) error {
	t.state.nextFarm++
	farm.ID = t.state.nextFarm
	t.state.farms[farm.ID] = *farm
	return nil
}

func (t *memoryTx) GetBatch(_ context.Context, id uint) (*models.Batch, error) {
	batch, ok := t.state.batches[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &batch, nil
}

func (t *memoryTx) CreateBatch(_ context.Context, batch *models.Batch) error {
	for _, existing := range t.state.batches {
		if existing.Code == batch.Code {
			return models.ErrConflict
		}
	}
	t.state.nextBatch++
	batch.ID = t.state.nextBatch
	t.state.batches[batch.ID] = *batch
	return nil
}

func (t *memoryTx) SaveBatch(_ context.Context, batch *models.Batch) error {
	stored, ok := t.state.batches[batch.ID]
	if !ok {
		return models.ErrNotFound
	}
	if stored.Version != batch.Version {
		return models.ErrConflict
	}
	batch.Version++
	t.state.batches[batch.ID] = *batch
	return nil
}

func (t *memoryTx) NextBatchSeq(_ context.Context, farmID uint, year int) (int, error) {
	prefix := models.BatchCodePrefix(farmID, year)
	n := 0
	for _, batch := range t.state.batches {
		if strings.HasPrefix(batch.Code, prefix) {
			n++
		}
	}
	return n + 1, nil
}

func (t *memoryTx) OwnerOf(_ context.Context, batchID uint) (string, error) {
	batch, ok := t.state.batches[batchID]
	if !ok {
		return "", models.ErrNotFound
	}
	farm, ok := t.state.farms[batch.FarmID]
	if !ok {
		return "", models.ErrNotFound
	}
	return farm.OwnerID, nil
}

func (t *memoryTx) GetStageRecord(_ context.Context, batchID uint, stage string) (*models.StageRecord, error) {
	var newest *models.StageRecord
	for _, record := range t.state.records {
		if record.BatchID != batchID || record.Stage != stage || !record.IsActive() {
			continue
		}
		if newest == nil || record.ID > newest.ID {
			newest = record
		}
	}
	if newest == nil {
		return nil, models.ErrNotFound
	}
	return newest.Clone(), nil
}

func (t *memoryTx) GetStageRecordByID(_ context.Context, id uint) (*models.StageRecord, error) {
	record, ok := t.state.records[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return record.Clone(), nil
}

func (t *memoryTx) SaveStageRecord(_ context.Context, record *models.StageRecord) (uint, error) {
	if record.ID == 0 {
		t.state.nextRecord++
		record.ID = t.state.nextRecord
	} else if _, ok := t.state.records[record.ID]; !ok {
		return 0, models.ErrNotFound
	}
	if err := record.EncodePayload(); err != nil {
		return 0, err
	}
	t.state.records[record.ID] = record.Clone()
	return record.ID, nil
}

func (t *memoryTx) ListStageRecords(_ context.Context, batchID uint, stage string) ([]*models.StageRecord, error) {
	return t.collect(func(r *models.StageRecord) bool {
		return r.BatchID == batchID && r.Stage == stage
	}), nil
}

func (t *memoryTx) ListBatchRecords(_ context.Context, batchID uint) ([]*models.StageRecord, error) {
	return t.collect(func(r *models.StageRecord) bool {
		return r.BatchID == batchID
	}), nil
}

func (t *memoryTx) collect(match func(*models.StageRecord) bool) []*models.StageRecord {
	var out []*models.StageRecord
	for _, record := range t.state.records {
		if match(record) {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memoryTx) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	t.state.audit = append(t.state.audit, *entry)
	return nil
}

func (t *memoryTx) ListAudit(_ context.Context, batchID uint) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	for i := range t.state.audit {
		if t.state.audit[i].BatchID == batchID {
			entry := t.state.audit[i]
			out = append(out, &entry)
		}
	}
	return out, nil
}
