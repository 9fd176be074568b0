package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jinzhu/gorm"

	"toastem/internal/models"
	"toastem/internal/process"
)

// GormStore persists batches and stage records through gorm
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore wraps an open gorm connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ process.Store = (*GormStore)(nil)

// Atomically runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (s *GormStore) Atomically(ctx context.Context, fn func(tx process.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	tx := s.db.BeginTx(ctx, &sql.TxOptions{})
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&GormStore{db: tx, inTx: true}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *GormStore) GetFarm(_ context.Context, id uint) (*models.Farm, error) {
	var farm models.Farm
	if err := s.db.First(&farm, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &farm, nil
}

func (s *GormStore) CreateFarm(_ context.Context, farm *models.Farm) error {
	return s.db.Create(farm).Error
}

func (s *GormStore) GetBatch(_ context.Context, id uint) (*models.Batch, error) {
	var batch models.Batch
	if err := s.db.First(&batch, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &batch, nil
}

func (s *GormStore) CreateBatch(_ context.Context, batch *models.Batch) error {
	return s.db.Create(batch).Error
}

// SaveBatch updates the batch only when its version is unchanged
func (s *GormStore) SaveBatch(_ context.Context, batch *models.Batch) error {
	res := s.db.Model(&models.Batch{}).
		Where("id = ? AND version = ?", batch.ID, batch.Version).
		Updates(map[string]interface{}{
			"status":           batch.Status,
			"current_stage_id": batch.CurrentStageID,
			"cancel_reason":    batch.CancelReason,
			"notes":            batch.Notes,
			"updated_at":       batch.UpdatedAt,
			"version":          batch.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int
		if err := s.db.Model(&models.Batch{}).Where("id = ?", batch.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.ErrNotFound
		}
		return models.ErrConflict
	}
	batch.Version++
	return nil
}

func (s *GormStore) NextBatchSeq(_ context.Context, farmID uint, year int) (int, error) {
	var count int
	err := s.db.Model(&models.Batch{}).
		Where("farm_id = ? AND code LIKE ?", farmID, models.BatchCodePrefix(farmID, year)+"%").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

func (s *GormStore) OwnerOf(_ context.Context, batchID uint) (string, error) {
	var owner string
	row := s.db.Table("batches").
		Select("farms.owner_id").
		Joins("JOIN farms ON farms.id = batches.farm_id").
		Where("batches.id = ?", batchID).
		Row()
	if err := row.Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", models.ErrNotFound
		}
		return "", err
	}
	return owner, nil
}

func (s *GormStore) GetStageRecord(_ context.Context, batchID uint, stage string) (*models.StageRecord, error) {
	var record models.StageRecord
	err := s.db.Where("batch_id = ? AND stage = ? AND superseded = ?", batchID, stage, false).
		Order("id desc").
		First(&record).Error
	if err != nil {
		return nil, notFound(err)
	}
	if err := record.DecodePayload(); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *GormStore) GetStageRecordByID(_ context.Context, id uint) (*models.StageRecord, error) {
	var record models.StageRecord
	if err := s.db.First(&record, id).Error; err != nil {
		return nil, notFound(err)
	}
	if err := record.DecodePayload(); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *GormStore) SaveStageRecord(_ context.Context, record *models.StageRecord) (uint, error) {
	if err := record.EncodePayload(); err != nil {
		return 0, err
	}
	if record.ID == 0 {
		if err := s.db.Create(record).Error; err != nil {
			return 0, err
		}
		return record.ID, nil
	}
	res := s.db.Model(record).Updates(map[string]interface{}{
		"status":        record.Status,
		"input_weight":  record.InputWeight,
		"output_weight": record.OutputWeight,
		"notes":         record.Notes,
		"superseded":    record.Superseded,
		"payload":       record.PayloadJSON,
		"updated_at":    record.UpdatedAt,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, models.ErrNotFound
	}
	return record.ID, nil
}

func (s *GormStore) ListStageRecords(_ context.Context, batchID uint, stage string) ([]*models.StageRecord, error) {
	return s.findRecords(s.db.Where("batch_id = ? AND stage = ?", batchID, stage))
}

func (s *GormStore) ListBatchRecords(_ context.Context, batchID uint) ([]*models.StageRecord, error) {
	return s.findRecords(s.db.Where("batch_id = ?", batchID))
}

func (s *GormStore) findRecords(query *gorm.DB) ([]*models.StageRecord, error) {
	var records []*models.StageRecord
	if err := query.Order("id asc").Find(&records).Error; err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := record.DecodePayload(); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *GormStore) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	return s.db.Create(entry).Error
}

func (s *GormStore) ListAudit(_ context.Context, batchID uint) ([]*models.AuditEntry, error) {
	var entries []*models.AuditEntry
	err := s.db.Where("batch_id = ?", batchID).Order("created_at asc").Find(&entries).Error
	return entries, err
}

func notFound(err error) error {
	if gorm.IsRecordNotFoundError(err) {
		return models.ErrNotFound
	}
	return err
}
