package process

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"toastem/internal/catalog"
	"toastem/internal/models"
)

// CorrectionManager reopens finished stage records so their data can be
// corrected, rolling the batch pointer back to the reopened stage.
type CorrectionManager struct {
	catalog *catalog.Catalog
	machine *StateMachine
	now     func() time.Time
}

// NewCorrectionManager creates a correction manager
func NewCorrectionManager(c *catalog.Catalog, m *StateMachine, now func() time.Time) *CorrectionManager {
	if now == nil {
		now = time.Now
	}
	return &CorrectionManager{catalog: c, machine: m, now: now}
}

// Restart moves a finished record back to pending and points the batch at
// its stage. It fails without side effects when the batch is cancelled or
// sold, the record is not an active finished record of the batch, or any
// later stage already has an active record.
//
// tx must be a store opened by Store.Atomically; the record write, the
// audit entry and the batch write all go through it.
func (m *CorrectionManager) Restart(ctx context.Context, tx Store, batchID, recordID uint, actor string) (*models.Batch, *models.StageRecord, error) {
	batch, err := tx.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, persistErr("load batch", err)
	}
	record, err := m.ownedRecord(ctx, tx, batch, recordID)
	if err != nil {
		return nil, nil, err
	}
	stage, err := m.catalog.ByName(record.Stage)
	if err != nil {
		return nil, nil, err
	}

	if batch.IsTerminal() {
		return nil, nil, sequenceErr(stage.Name, SeqBatchTerminal, "batch %s is %s and cannot be corrected", batch.Code, batch.Status)
	}
	if !record.IsActive() {
		return nil, nil, sequenceErr(stage.Name, SeqSuperseded, "record %d was superseded", record.ID)
	}
	if !record.IsFinished() {
		return nil, nil, sequenceErr(stage.Name, SeqNotFinished, "record %d is %s, only finished records can be restarted", record.ID, record.Status)
	}
	if err := m.ensureNoDownstream(ctx, tx, batch, stage); err != nil {
		return nil, nil, err
	}

	previous, err := json.Marshal(record)
	if err != nil {
		return nil, nil, err
	}

	record.Status = models.RecordStatusPending
	if _, err := tx.SaveStageRecord(ctx, record); err != nil {
		return nil, nil, persistErr("save stage record", err)
	}
	entry := &models.AuditEntry{
		ID:             uuid.NewString(),
		BatchID:        batch.ID,
		RecordID:       record.ID,
		Actor:          actor,
		Action:         models.AuditActionRestart,
		PreviousValues: string(previous),
		CreatedAt:      m.now().UTC(),
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return nil, nil, persistErr("append audit", err)
	}

	m.machine.Reset(batch, stage)
	if err := tx.SaveBatch(ctx, batch); err != nil {
		return nil, nil, persistErr("save batch", err)
	}
	return batch, record, nil
}

// Supersede flags a packaging record historical so its weight returns to
// the available pool. Quality control must not have been registered yet.
func (m *CorrectionManager) Supersede(ctx context.Context, tx Store, batchID, recordID uint, actor string) (*models.StageRecord, error) {
	batch, err := tx.GetBatch(ctx, batchID)
	if err != nil {
		return nil, persistErr("load batch", err)
	}
	record, err := m.ownedRecord(ctx, tx, batch, recordID)
	if err != nil {
		return nil, err
	}
	stage, err := m.catalog.ByName(record.Stage)
	if err != nil {
		return nil, err
	}
	if !stage.MultiRecord {
		return nil, sequenceErr(stage.Name, SeqNotMultiRecord, "only packaging records can be superseded")
	}
	if batch.IsTerminal() {
		return nil, sequenceErr(stage.Name, SeqBatchTerminal, "batch %s is %s and cannot be corrected", batch.Code, batch.Status)
	}
	if !record.IsActive() {
		return nil, sequenceErr(stage.Name, SeqSuperseded, "record %d was already superseded", record.ID)
	}
	if err := m.ensureNoDownstream(ctx, tx, batch, stage); err != nil {
		return nil, err
	}

	previous, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	record.Superseded = true
	if _, err := tx.SaveStageRecord(ctx, record); err != nil {
		return nil, persistErr("save stage record", err)
	}
	entry := &models.AuditEntry{
		ID:             uuid.NewString(),
		BatchID:        batch.ID,
		RecordID:       record.ID,
		Actor:          actor,
		Action:         models.AuditActionSupersede,
		PreviousValues: string(previous),
		CreatedAt:      m.now().UTC(),
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return nil, persistErr("append audit", err)
	}
	return record, nil
}

func (m *CorrectionManager) ownedRecord(ctx context.Context, tx Store, batch *models.Batch, recordID uint) (*models.StageRecord, error) {
	record, err := tx.GetStageRecordByID(ctx, recordID)
	if err != nil {
		return nil, persistErr("load stage record", err)
	}
	if record.BatchID != batch.ID {
		return nil, persistErr("load stage record", models.ErrNotFound)
	}
	return record, nil
}

// ensureNoDownstream fails when any stage ordered after stage has an active
// record for the batch.
func (m *CorrectionManager) ensureNoDownstream(ctx context.Context, tx Store, batch *models.Batch, stage catalog.StageDefinition) error {
	for _, later := range m.catalog.After(stage) {
		if later.Name == models.StageHarvest {
			continue
		}
		_, err := tx.GetStageRecord(ctx, batch.ID, later.Name)
		switch {
		case err == nil:
			return sequenceErr(stage.Name, SeqDownstreamExists, "%s has already been registered; correct it first", later.Name)
		case errors.Is(err, models.ErrNotFound):
		default:
			return persistErr("load stage record", err)
		}
	}
	return nil
}
