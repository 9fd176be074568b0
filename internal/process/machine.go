package process

import (
	"toastem/internal/catalog"
	"toastem/internal/models"
)

// Transition is the batch pointer and status computed from a stage event
type Transition struct {
	NextStageID uint
	NextStatus  models.BatchStatus
}

// StateMachine computes batch transitions from stage completions. It holds
// no per-batch state and never touches the store.
type StateMachine struct {
	catalog *catalog.Catalog
}

// NewStateMachine creates a state machine over the given catalog
func NewStateMachine(c *catalog.Catalog) *StateMachine {
	return &StateMachine{catalog: c}
}

// Advance computes the transition after completed has been finished.
//
// The batch moves to the next stage in the catalog, or finishes when
// completed is the last one. A sale decision at drying finishes the batch
// and leaves the pointer on drying. The pointer never moves backwards: a
// stage registered out of ordinal order (a grinding run after packaging has
// started) keeps the pointer where it was.
func (m *StateMachine) Advance(batch *models.Batch, completed catalog.StageDefinition, saleDecision bool) (Transition, error) {
	if saleDecision && completed.Name == models.StageDrying {
		return Transition{NextStageID: completed.ID, NextStatus: models.BatchStatusFinished}, nil
	}

	next, ok := m.catalog.Next(completed)
	if !ok {
		return Transition{NextStageID: completed.ID, NextStatus: models.BatchStatusFinished}, nil
	}

	current, err := m.catalog.ByID(batch.CurrentStageID)
	if err != nil {
		return Transition{}, err
	}
	if current.Order > next.Order {
		next = current
	}
	return Transition{NextStageID: next.ID, NextStatus: models.BatchStatusInProgress}, nil
}

// Apply writes a transition onto the batch
func (m *StateMachine) Apply(batch *models.Batch, t Transition) {
	batch.CurrentStageID = t.NextStageID
	batch.Status = t.NextStatus
}

// Reset points the batch back at stage for a correction
func (m *StateMachine) Reset(batch *models.Batch, stage catalog.StageDefinition) {
	batch.CurrentStageID = stage.ID
	batch.Status = models.BatchStatusInProgress
}

// ValidateCurrentStage rejects registering target on batch when the batch is
// not in progress, or when open (the batch's still-running time-spanning
// record, if any) belongs to another stage.
func (m *StateMachine) ValidateCurrentStage(batch *models.Batch, target catalog.StageDefinition, open *models.StageRecord) error {
	if !batch.IsActive() {
		return sequenceErr(target.Name, SeqBatchNotActive, "batch %s is %s", batch.Code, batch.Status)
	}
	if open != nil && open.IsOpen() && open.Stage != target.Name {
		return sequenceErr(target.Name, SeqStageOpen, "%s is still in progress and must be completed first", open.Stage)
	}
	return nil
}

// Recompute derives the pointer and status a batch should have from its
// records: the open stage when a time-spanning record is still running, a
// stage reopened by a restart, the stage after the highest finished one, or
// the first stage when nothing is finished yet.
func (m *StateMachine) Recompute(records []*models.StageRecord) (Transition, error) {
	var (
		highest    catalog.StageDefinition
		highestRec *models.StageRecord
		found      bool
		pending    *catalog.StageDefinition
	)
	for _, record := range records {
		if !record.IsActive() {
			continue
		}
		stage, err := m.catalog.ByName(record.Stage)
		if err != nil {
			return Transition{}, err
		}
		if record.IsOpen() {
			return Transition{NextStageID: stage.ID, NextStatus: models.BatchStatusInProgress}, nil
		}
		if record.Status == models.RecordStatusPending && (pending == nil || stage.Order < pending.Order) {
			s := stage
			pending = &s
		}
		if record.IsFinished() && (!found || stage.Order > highest.Order) {
			highest, highestRec, found = stage, record, true
		}
	}
	if pending != nil {
		return Transition{NextStageID: pending.ID, NextStatus: models.BatchStatusInProgress}, nil
	}
	if !found {
		return Transition{NextStageID: m.catalog.First().ID, NextStatus: models.BatchStatusInProgress}, nil
	}

	sale := false
	if drying, ok := highestRec.Payload.(*models.DryingData); ok {
		sale = drying.SaleDecision
	}
	if sale {
		return Transition{NextStageID: highest.ID, NextStatus: models.BatchStatusFinished}, nil
	}
	next, ok := m.catalog.Next(highest)
	if !ok {
		return Transition{NextStageID: highest.ID, NextStatus: models.BatchStatusFinished}, nil
	}
	return Transition{NextStageID: next.ID, NextStatus: models.BatchStatusInProgress}, nil
}
