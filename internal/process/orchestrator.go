// Package process implements the coffee batch processing core: stage
// registration, the batch state machine and the correction protocol.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"toastem/internal/catalog"
	"toastem/internal/ledger"
	"toastem/internal/models"
)

// BatchInput is the harvest data a batch is created with
type BatchInput struct {
	HarvestDate   time.Time
	InitialWeight float64
	CoffeeType    string
	HarvestMethod string
	Notes         string
}

// Outcome reports the result of a successful stage registration
type Outcome struct {
	Record      *models.StageRecord
	Batch       *models.Batch
	NextStageID uint
	NextStage   string
	NextStatus  models.BatchStatus
}

// StageProgress lists the active records of one stage
type StageProgress struct {
	Stage   catalog.StageDefinition
	Records []*models.StageRecord
}

// BatchProgress is a read-only view of a batch and its records
type BatchProgress struct {
	Batch        *models.Batch
	CurrentStage catalog.StageDefinition
	Stages       []StageProgress
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithObserver registers an observer notified after each operation
func WithObserver(o Observer) Option {
	return func(orc *Orchestrator) {
		orc.observers = append(orc.observers, o)
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(orc *Orchestrator) {
		orc.now = now
	}
}

// Orchestrator is the entry point callers use to drive batches through the
// pipeline. Callers must have verified that the acting user owns the batch.
type Orchestrator struct {
	store      Store
	catalog    *catalog.Catalog
	machine    *StateMachine
	correction *CorrectionManager
	observers  Observers
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator over store and catalog
func NewOrchestrator(store Store, c *catalog.Catalog, opts ...Option) *Orchestrator {
	orc := &Orchestrator{
		store:   store,
		catalog: c,
		machine: NewStateMachine(c),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(orc)
	}
	orc.correction = NewCorrectionManager(c, orc.machine, orc.now)
	return orc
}

// Catalog returns the stage catalog the orchestrator runs on
func (o *Orchestrator) Catalog() *catalog.Catalog {
	return o.catalog
}

// CreateFarm registers a farm owned by ownerID
func (o *Orchestrator) CreateFarm(ctx context.Context, name, ownerID string) (*models.Farm, error) {
	var vs violations
	if strings.TrimSpace(name) == "" {
		vs.required("name")
	}
	if ownerID == "" {
		vs.required("owner_id")
	}
	if len(vs) > 0 {
		return nil, &ValidationError{Stage: "farm", Violations: vs}
	}
	farm := &models.Farm{Name: strings.TrimSpace(name), OwnerID: ownerID, CreatedAt: o.now().UTC()}
	if err := o.store.CreateFarm(ctx, farm); err != nil {
		return nil, persistErr("create farm", err)
	}
	return farm, nil
}

// CreateBatch registers a harvested batch. The batch starts in progress
// with the pointer on the first stage.
func (o *Orchestrator) CreateBatch(ctx context.Context, farmID uint, in BatchInput) (*models.Batch, error) {
	if vs := checkBatch(in); len(vs) > 0 {
		return nil, &ValidationError{Stage: models.StageHarvest, Violations: vs}
	}
	first := o.catalog.First()

	var batch *models.Batch
	err := o.store.Atomically(ctx, func(tx Store) error {
		if _, err := tx.GetFarm(ctx, farmID); err != nil {
			return persistErr("load farm", err)
		}
		seq, err := tx.NextBatchSeq(ctx, farmID, in.HarvestDate.Year())
		if err != nil {
			return persistErr("next batch sequence", err)
		}
		now := o.now().UTC()
		batch = &models.Batch{
			Code:           models.BatchCode(farmID, in.HarvestDate, seq),
			FarmID:         farmID,
			CreatedAt:      now,
			UpdatedAt:      now,
			HarvestDate:    in.HarvestDate,
			InitialWeight:  in.InitialWeight,
			CoffeeType:     in.CoffeeType,
			HarvestMethod:  in.HarvestMethod,
			Notes:          in.Notes,
			Status:         models.BatchStatusInProgress,
			CurrentStageID: first.ID,
		}
		return persistErr("create batch", tx.CreateBatch(ctx, batch))
	})
	if err != nil {
		return nil, err
	}
	o.emit(Event{Kind: EventBatchCreated, BatchID: batch.ID, BatchStatus: batch.Status, CurrentStage: first.Name})
	return batch, nil
}

// Submit registers one stage of a batch. Validation problems are returned
// together as a *ValidationError; ordering problems as a *SequenceError.
// Either way nothing is written.
func (o *Orchestrator) Submit(ctx context.Context, batchID uint, in StageInput) (*Outcome, error) {
	stage, err := o.catalog.ByName(in.Stage)
	if err != nil {
		return nil, err
	}
	if stage.Name == models.StageHarvest {
		return nil, sequenceErr(stage.Name, SeqNotRecordable, "harvest is recorded when the batch is created")
	}
	if in.Payload == nil || in.Payload.StageName() != stage.Name {
		return nil, o.reject(batchID, stage.Name, &ValidationError{
			Stage:      stage.Name,
			Violations: []models.Violation{{Field: "data", Code: models.CodeRequired, Message: "stage data is required"}},
		})
	}

	var out *Outcome
	err = o.store.Atomically(ctx, func(tx Store) error {
		batch, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return persistErr("load batch", err)
		}
		if err := o.guard(ctx, tx, batch, stage); err != nil {
			return err
		}
		existing, err := o.existingRecord(ctx, tx, batch, stage)
		if err != nil {
			return err
		}
		up, err := o.resolveUpstream(ctx, tx, batch, stage, in.Payload, existing)
		if err != nil {
			return err
		}
		m, vs := checkStage(in, up)
		if len(vs) > 0 {
			return &ValidationError{Stage: stage.Name, Violations: vs}
		}

		now := o.now().UTC()
		record := &models.StageRecord{
			BatchID:      batch.ID,
			Stage:        stage.Name,
			Status:       m.status,
			InputWeight:  m.input,
			OutputWeight: m.output,
			Notes:        in.Notes,
			Payload:      in.Payload,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if existing != nil {
			record.ID = existing.ID
			record.CreatedAt = existing.CreatedAt
		}
		if record.ID, err = tx.SaveStageRecord(ctx, record); err != nil {
			return persistErr("save stage record", err)
		}

		if record.IsFinished() {
			t, err := o.machine.Advance(batch, stage, m.sale)
			if err != nil {
				return err
			}
			o.machine.Apply(batch, t)
			batch.UpdatedAt = now
			if err := tx.SaveBatch(ctx, batch); err != nil {
				return persistErr("save batch", err)
			}
		}
		out = o.outcome(batch, record)
		return nil
	})
	if err != nil {
		return nil, o.reject(batchID, stage.Name, err)
	}

	o.emit(Event{
		Kind:         EventStageSubmitted,
		BatchID:      batchID,
		Stage:        stage.Name,
		RecordID:     out.Record.ID,
		RecordStatus: out.Record.Status.String(),
		BatchStatus:  out.NextStatus,
		CurrentStage: out.NextStage,
	})
	return out, nil
}

// CompleteDrying closes the batch's open drying record and advances the
// batch, finishing it early when a sale decision is taken.
func (o *Orchestrator) CompleteDrying(ctx context.Context, batchID uint, in DryingCompletion) (*Outcome, error) {
	stage, err := o.catalog.ByName(models.StageDrying)
	if err != nil {
		return nil, err
	}

	var out *Outcome
	err = o.store.Atomically(ctx, func(tx Store) error {
		batch, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return persistErr("load batch", err)
		}
		if !batch.IsActive() {
			return sequenceErr(stage.Name, SeqBatchNotActive, "batch %s is %s", batch.Code, batch.Status)
		}
		record, err := tx.GetStageRecord(ctx, batch.ID, stage.Name)
		if errors.Is(err, models.ErrNotFound) || (err == nil && !record.IsOpen()) {
			return sequenceErr(stage.Name, SeqNotInProgress, "no drying is in progress for batch %s", batch.Code)
		}
		if err != nil {
			return persistErr("load stage record", err)
		}
		data, ok := record.Payload.(*models.DryingData)
		if !ok {
			return persistErr("load stage record", errors.New("drying record without drying data"))
		}
		if vs := checkDryingCompletion(record, data, in); len(vs) > 0 {
			return &ValidationError{Stage: stage.Name, Violations: vs}
		}

		end := in.EndDate
		data.EndDate = &end
		data.FinalHumidity = in.FinalHumidity
		data.SaleDecision = in.SaleDecision
		record.Status = models.RecordStatusFinished
		record.OutputWeight = in.OutputWeight
		if in.Notes != "" {
			record.Notes = in.Notes
		}
		now := o.now().UTC()
		record.UpdatedAt = now
		if _, err := tx.SaveStageRecord(ctx, record); err != nil {
			return persistErr("save stage record", err)
		}

		t, err := o.machine.Advance(batch, stage, in.SaleDecision)
		if err != nil {
			return err
		}
		o.machine.Apply(batch, t)
		batch.UpdatedAt = now
		if err := tx.SaveBatch(ctx, batch); err != nil {
			return persistErr("save batch", err)
		}
		out = o.outcome(batch, record)
		return nil
	})
	if err != nil {
		return nil, o.reject(batchID, stage.Name, err)
	}
	o.emit(Event{
		Kind:         EventDryingCompleted,
		BatchID:      batchID,
		Stage:        stage.Name,
		RecordID:     out.Record.ID,
		RecordStatus: out.Record.Status.String(),
		BatchStatus:  out.NextStatus,
		CurrentStage: out.NextStage,
	})
	return out, nil
}

// Restart reopens a finished record for correction. The returned record is
// the pending record whose fields the caller can echo back for editing.
func (o *Orchestrator) Restart(ctx context.Context, batchID, recordID uint, actor string) (*models.StageRecord, error) {
	var (
		batch  *models.Batch
		record *models.StageRecord
	)
	err := o.store.Atomically(ctx, func(tx Store) error {
		var err error
		batch, record, err = o.correction.Restart(ctx, tx, batchID, recordID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.emit(Event{
		Kind:         EventStageRestarted,
		BatchID:      batchID,
		Stage:        record.Stage,
		RecordID:     record.ID,
		RecordStatus: record.Status.String(),
		BatchStatus:  batch.Status,
		CurrentStage: record.Stage,
	})
	return record, nil
}

// Supersede retires a packaging record so its weight can be packaged again
func (o *Orchestrator) Supersede(ctx context.Context, batchID, recordID uint, actor string) (*models.StageRecord, error) {
	var record *models.StageRecord
	err := o.store.Atomically(ctx, func(tx Store) error {
		var err error
		record, err = o.correction.Supersede(ctx, tx, batchID, recordID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.emit(Event{Kind: EventRecordSuperseded, BatchID: batchID, Stage: record.Stage, RecordID: record.ID})
	return record, nil
}

// Cancel soft-deletes a batch. A reason is mandatory and the state is
// terminal.
func (o *Orchestrator) Cancel(ctx context.Context, batchID uint, reason, actor string) (*models.Batch, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{
			Stage:      "batch",
			Violations: []models.Violation{{Field: "reason", Code: models.CodeRequired, Message: "is required"}},
		}
	}
	batch, err := o.closeBatch(ctx, batchID, actor, models.AuditActionCancel, reason, func(b *models.Batch) {
		b.Status = models.BatchStatusCancelled
		b.CancelReason = reason
	})
	if err != nil {
		return nil, err
	}
	o.emit(Event{Kind: EventBatchCancelled, BatchID: batchID, BatchStatus: batch.Status, Reason: reason})
	return batch, nil
}

// Sell finalizes an unfinished batch by sale. Only a batch in progress with
// no open time-spanning stage can be sold this way.
func (o *Orchestrator) Sell(ctx context.Context, batchID uint, actor string) (*models.Batch, error) {
	batch, err := o.closeBatch(ctx, batchID, actor, models.AuditActionSell, "", func(b *models.Batch) {
		b.Status = models.BatchStatusSoldUnfinished
	})
	if err != nil {
		return nil, err
	}
	o.emit(Event{Kind: EventBatchSold, BatchID: batchID, BatchStatus: batch.Status})
	return batch, nil
}

func (o *Orchestrator) closeBatch(ctx context.Context, batchID uint, actor string, action models.AuditAction, reason string, apply func(*models.Batch)) (*models.Batch, error) {
	var batch *models.Batch
	err := o.store.Atomically(ctx, func(tx Store) error {
		var err error
		batch, err = tx.GetBatch(ctx, batchID)
		if err != nil {
			return persistErr("load batch", err)
		}
		if batch.IsTerminal() {
			return sequenceErr("", SeqBatchTerminal, "batch %s is already %s", batch.Code, batch.Status)
		}
		if action == models.AuditActionSell {
			if !batch.IsActive() {
				return sequenceErr("", SeqBatchNotActive, "batch %s is %s", batch.Code, batch.Status)
			}
			open, err := o.openRecord(ctx, tx, batch)
			if err != nil {
				return err
			}
			if open != nil {
				return sequenceErr(open.Stage, SeqStageOpen, "%s is still in progress and must be completed first", open.Stage)
			}
		}

		previous, err := json.Marshal(batch)
		if err != nil {
			return err
		}
		apply(batch)
		batch.UpdatedAt = o.now().UTC()
		if err := tx.SaveBatch(ctx, batch); err != nil {
			return persistErr("save batch", err)
		}
		return persistErr("append audit", tx.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			BatchID:        batch.ID,
			Actor:          actor,
			Action:         action,
			Reason:         reason,
			PreviousValues: string(previous),
			CreatedAt:      o.now().UTC(),
		}))
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Reconcile recomputes the batch pointer and status from its records. It
// repairs a batch whose record write succeeded while the batch write did
// not. Cancelled and sold batches are left alone.
func (o *Orchestrator) Reconcile(ctx context.Context, batchID uint, actor string) (*models.Batch, bool, error) {
	var (
		batch   *models.Batch
		current catalog.StageDefinition
		changed bool
	)
	err := o.store.Atomically(ctx, func(tx Store) error {
		var err error
		batch, err = tx.GetBatch(ctx, batchID)
		if err != nil {
			return persistErr("load batch", err)
		}
		if batch.IsTerminal() {
			return nil
		}
		records, err := tx.ListBatchRecords(ctx, batch.ID)
		if err != nil {
			return persistErr("list stage records", err)
		}
		t, err := o.machine.Recompute(records)
		if err != nil {
			return err
		}
		if t.NextStageID == batch.CurrentStageID && t.NextStatus == batch.Status {
			return nil
		}
		if current, err = o.catalog.ByID(t.NextStageID); err != nil {
			return err
		}

		previous, err := json.Marshal(batch)
		if err != nil {
			return err
		}
		o.machine.Apply(batch, t)
		batch.UpdatedAt = o.now().UTC()
		if err := tx.SaveBatch(ctx, batch); err != nil {
			return persistErr("save batch", err)
		}
		changed = true
		return persistErr("append audit", tx.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			BatchID:        batch.ID,
			Actor:          actor,
			Action:         models.AuditActionReconcile,
			PreviousValues: string(previous),
			CreatedAt:      o.now().UTC(),
		}))
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		o.emit(Event{Kind: EventBatchReconciled, BatchID: batchID, BatchStatus: batch.Status, CurrentStage: current.Name})
	}
	return batch, changed, nil
}

// Progress returns the batch with its active records grouped by stage
func (o *Orchestrator) Progress(ctx context.Context, batchID uint) (*BatchProgress, error) {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, persistErr("load batch", err)
	}
	current, err := o.catalog.ByID(batch.CurrentStageID)
	if err != nil {
		return nil, err
	}
	records, err := o.store.ListBatchRecords(ctx, batch.ID)
	if err != nil {
		return nil, persistErr("list stage records", err)
	}

	byStage := make(map[string][]*models.StageRecord)
	for _, record := range records {
		if record.IsActive() {
			byStage[record.Stage] = append(byStage[record.Stage], record)
		}
	}
	progress := &BatchProgress{Batch: batch, CurrentStage: current}
	for _, stage := range o.catalog.List() {
		progress.Stages = append(progress.Stages, StageProgress{Stage: stage, Records: byStage[stage.Name]})
	}
	return progress, nil
}

// PendingRecord returns the record of a stage reopened by Restart, so its
// fields can be edited and resubmitted.
func (o *Orchestrator) PendingRecord(ctx context.Context, batchID uint, stageName string) (*models.StageRecord, error) {
	stage, err := o.catalog.ByName(stageName)
	if err != nil {
		return nil, err
	}
	record, err := o.store.GetStageRecord(ctx, batchID, stage.Name)
	if err != nil {
		return nil, persistErr("load stage record", err)
	}
	if record.Status != models.RecordStatusPending {
		return nil, sequenceErr(stage.Name, SeqNotPending, "record %d is %s, not pending", record.ID, record.Status)
	}
	return record, nil
}

// Audit lists the correction and administrative history of a batch
func (o *Orchestrator) Audit(ctx context.Context, batchID uint) ([]*models.AuditEntry, error) {
	entries, err := o.store.ListAudit(ctx, batchID)
	return entries, persistErr("list audit", err)
}

// guard enforces that stages are open one at a time
func (o *Orchestrator) guard(ctx context.Context, tx Store, batch *models.Batch, target catalog.StageDefinition) error {
	open, err := o.openRecord(ctx, tx, batch)
	if err != nil {
		return err
	}
	return o.machine.ValidateCurrentStage(batch, target, open)
}

// openRecord returns the record of the batch's current stage when it is
// still in progress.
func (o *Orchestrator) openRecord(ctx context.Context, tx Store, batch *models.Batch) (*models.StageRecord, error) {
	current, err := o.catalog.ByID(batch.CurrentStageID)
	if err != nil {
		return nil, err
	}
	if current.Name == models.StageHarvest || !current.TimeSpanning {
		return nil, nil
	}
	record, err := tx.GetStageRecord(ctx, batch.ID, current.Name)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, persistErr("load stage record", err)
	case record.IsOpen():
		return record, nil
	default:
		return nil, nil
	}
}

// existingRecord returns the pending record a resubmission overwrites, or
// fails when the stage is already registered.
func (o *Orchestrator) existingRecord(ctx context.Context, tx Store, batch *models.Batch, stage catalog.StageDefinition) (*models.StageRecord, error) {
	if stage.MultiRecord {
		records, err := tx.ListStageRecords(ctx, batch.ID, stage.Name)
		if err != nil {
			return nil, persistErr("list stage records", err)
		}
		for _, record := range records {
			if record.IsActive() && record.Status == models.RecordStatusPending {
				return record, nil
			}
		}
		return nil, nil
	}

	record, err := tx.GetStageRecord(ctx, batch.ID, stage.Name)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, persistErr("load stage record", err)
	}
	switch record.Status {
	case models.RecordStatusPending:
		return record, nil
	case models.RecordStatusInProgress:
		return nil, sequenceErr(stage.Name, SeqStageOpen, "%s is in progress; complete it instead of registering it again", stage.Name)
	default:
		return nil, sequenceErr(stage.Name, SeqAlreadyRegistered, "%s is already registered; restart it to correct the data", stage.Name)
	}
}

// resolveUpstream finds the weight a stage is measured against, failing
// when the stage it depends on is not finished.
func (o *Orchestrator) resolveUpstream(ctx context.Context, tx Store, batch *models.Batch, stage catalog.StageDefinition, payload models.StagePayload, existing *models.StageRecord) (upstream, error) {
	switch stage.Name {
	case models.StageDepulping:
		return upstream{reference: batch.InitialWeight}, nil

	case models.StageGrinding:
		roasting, err := o.finishedRecord(ctx, tx, batch, stage, models.StageRoasting)
		if err != nil {
			return upstream{}, err
		}
		packaged, err := o.packagedWeight(ctx, tx, batch, models.ProductWholeBean, existing)
		if err != nil {
			return upstream{}, err
		}
		return upstream{reference: roasting.OutputWeight, available: ledger.Remaining(roasting.OutputWeight, packaged)}, nil

	case models.StagePackaging:
		p, _ := payload.(*models.PackagingData)
		return o.packagingUpstream(ctx, tx, batch, stage, p, existing)

	case models.StageQualityControl:
		records, err := tx.ListStageRecords(ctx, batch.ID, models.StagePackaging)
		if err != nil {
			return upstream{}, persistErr("list stage records", err)
		}
		var packaged []float64
		for _, record := range records {
			if !record.IsActive() {
				continue
			}
			if !record.IsFinished() {
				return upstream{}, sequenceErr(stage.Name, SeqUpstreamMissing, "packaging record %d is %s; it must be finished before quality control", record.ID, record.Status)
			}
			packaged = append(packaged, record.OutputWeight)
		}
		if len(packaged) == 0 {
			return upstream{}, sequenceErr(stage.Name, SeqUpstreamMissing, "packaging must be registered before quality control")
		}
		return upstream{reference: ledger.Sum(packaged...)}, nil
	}

	previous, ok := o.catalog.Previous(stage)
	if !ok {
		return upstream{}, &ConfigurationError{Stage: stage.Name, Reason: "has no preceding stage"}
	}
	if previous.Name == models.StageHarvest {
		return upstream{reference: batch.InitialWeight}, nil
	}
	record, err := o.finishedRecord(ctx, tx, batch, stage, previous.Name)
	if err != nil {
		return upstream{}, err
	}
	return upstream{reference: record.OutputWeight}, nil
}

// packagingUpstream computes the processed weight still available for the
// product type being packaged. Whole bean draws from roasting output minus
// what went to the grinder; ground coffee draws from grinding output.
func (o *Orchestrator) packagingUpstream(ctx context.Context, tx Store, batch *models.Batch, stage catalog.StageDefinition, p *models.PackagingData, existing *models.StageRecord) (upstream, error) {
	if p == nil || !models.IsOptionValid(models.StagePackaging, "product_type", p.ProductType) {
		// Let the field validation report the bad product type.
		return upstream{}, nil
	}

	var source float64
	switch models.ProductType(p.ProductType) {
	case models.ProductGround:
		grinding, err := o.finishedRecord(ctx, tx, batch, stage, models.StageGrinding)
		if err != nil {
			return upstream{}, err
		}
		source = grinding.OutputWeight
	default:
		roasting, err := o.finishedRecord(ctx, tx, batch, stage, models.StageRoasting)
		if err != nil {
			return upstream{}, err
		}
		source = roasting.OutputWeight
		grinding, err := tx.GetStageRecord(ctx, batch.ID, models.StageGrinding)
		switch {
		case err == nil:
			source = ledger.Remaining(source, grinding.InputWeight)
		case !errors.Is(err, models.ErrNotFound):
			return upstream{}, persistErr("load stage record", err)
		}
	}

	packaged, err := o.packagedWeight(ctx, tx, batch, models.ProductType(p.ProductType), existing)
	if err != nil {
		return upstream{}, err
	}
	available := ledger.Remaining(source, packaged)
	return upstream{reference: source, available: available}, nil
}

// packagedWeight sums the active packaging records of a product type,
// leaving out skip (the record being resubmitted).
func (o *Orchestrator) packagedWeight(ctx context.Context, tx Store, batch *models.Batch, product models.ProductType, skip *models.StageRecord) (float64, error) {
	records, err := tx.ListStageRecords(ctx, batch.ID, models.StagePackaging)
	if err != nil {
		return 0, persistErr("list stage records", err)
	}
	used := make([]float64, 0, len(records))
	for _, record := range records {
		if !record.IsActive() || (skip != nil && record.ID == skip.ID) {
			continue
		}
		data, ok := record.Payload.(*models.PackagingData)
		if !ok || models.ProductType(data.ProductType) != product {
			continue
		}
		used = append(used, record.OutputWeight)
	}
	return ledger.Sum(used...), nil
}

// finishedRecord loads the active record of dependency and fails with a
// SequenceError unless it is finished.
func (o *Orchestrator) finishedRecord(ctx context.Context, tx Store, batch *models.Batch, stage catalog.StageDefinition, dependency string) (*models.StageRecord, error) {
	record, err := tx.GetStageRecord(ctx, batch.ID, dependency)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil, sequenceErr(stage.Name, SeqUpstreamMissing, "%s must be finished before %s", dependency, stage.Name)
	case err != nil:
		return nil, persistErr("load stage record", err)
	case !record.IsFinished():
		return nil, sequenceErr(stage.Name, SeqUpstreamMissing, "%s is %s; it must be finished before %s", dependency, record.Status, stage.Name)
	}
	return record, nil
}

func (o *Orchestrator) outcome(batch *models.Batch, record *models.StageRecord) *Outcome {
	next, _ := o.catalog.ByID(batch.CurrentStageID)
	return &Outcome{
		Record:      record,
		Batch:       batch,
		NextStageID: batch.CurrentStageID,
		NextStage:   next.Name,
		NextStatus:  batch.Status,
	}
}

// reject reports validation and sequence failures to observers and passes
// err through unchanged.
func (o *Orchestrator) reject(batchID uint, stage string, err error) error {
	event := Event{Kind: EventStageRejected, BatchID: batchID, Stage: stage, Reason: err.Error()}
	var vErr *ValidationError
	var sErr *SequenceError
	switch {
	case errors.As(err, &vErr):
		event.Violations = vErr.Violations
		event.Reason = "validation"
	case errors.As(err, &sErr):
		event.Reason = sErr.Code
	default:
		return err
	}
	o.emit(event)
	return err
}

func (o *Orchestrator) emit(e Event) {
	if len(o.observers) == 0 {
		return
	}
	if e.At.IsZero() {
		e.At = o.now().UTC()
	}
	o.observers.Observe(e)
}
