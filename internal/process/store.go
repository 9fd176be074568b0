package process

import (
	"context"

	"toastem/internal/models"
)

// Store is the persistence contract the processing core consumes. Lookups
// of a single row return models.ErrNotFound when nothing matches.
type Store interface {
	GetFarm(ctx context.Context, id uint) (*models.Farm, error)
	CreateFarm(ctx context.Context, farm *models.Farm) error

	GetBatch(ctx context.Context, id uint) (*models.Batch, error)
	CreateBatch(ctx context.Context, batch *models.Batch) error
	// SaveBatch writes batch only if the stored Version still equals
	// batch.Version, then increments it. Otherwise it returns
	// models.ErrConflict.
	SaveBatch(ctx context.Context, batch *models.Batch) error
	// NextBatchSeq returns the next per-farm, per-year sequence number.
	NextBatchSeq(ctx context.Context, farmID uint, year int) (int, error)
	// OwnerOf resolves the user owning a batch through its farm.
	OwnerOf(ctx context.Context, batchID uint) (string, error)

	// GetStageRecord returns the newest active record of a stage.
	GetStageRecord(ctx context.Context, batchID uint, stage string) (*models.StageRecord, error)
	GetStageRecordByID(ctx context.Context, id uint) (*models.StageRecord, error)
	// SaveStageRecord inserts the record when ID is zero and updates it in
	// place otherwise.
	SaveStageRecord(ctx context.Context, record *models.StageRecord) (uint, error)
	// ListStageRecords returns every record of a stage, superseded ones
	// included, oldest first.
	ListStageRecords(ctx context.Context, batchID uint, stage string) ([]*models.StageRecord, error)
	ListBatchRecords(ctx context.Context, batchID uint) ([]*models.StageRecord, error)

	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	ListAudit(ctx context.Context, batchID uint) ([]*models.AuditEntry, error)

	// Atomically runs fn against a store whose writes are applied together
	// or not at all.
	Atomically(ctx context.Context, fn func(tx Store) error) error
}
