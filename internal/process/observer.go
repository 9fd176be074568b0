package process

import (
	"time"

	"toastem/internal/models"
)

// EventKind identifies what happened to a batch
type EventKind string

const (
	EventBatchCreated     EventKind = "batch_created"
	EventStageSubmitted   EventKind = "stage_submitted"
	EventStageRejected    EventKind = "stage_rejected"
	EventDryingCompleted  EventKind = "drying_completed"
	EventStageRestarted   EventKind = "stage_restarted"
	EventRecordSuperseded EventKind = "record_superseded"
	EventBatchCancelled   EventKind = "batch_cancelled"
	EventBatchSold        EventKind = "batch_sold"
	EventBatchReconciled  EventKind = "batch_reconciled"
)

// Event describes one completed (or rejected) operation on a batch
type Event struct {
	Kind         EventKind          `json:"kind"`
	BatchID      uint               `json:"batch_id"`
	Stage        string             `json:"stage,omitempty"`
	RecordID     uint               `json:"record_id,omitempty"`
	RecordStatus string             `json:"record_status,omitempty"`
	BatchStatus  models.BatchStatus `json:"batch_status,omitempty"`
	CurrentStage string             `json:"current_stage,omitempty"`
	Violations   []models.Violation `json:"violations,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	At           time.Time          `json:"at"`
}

// Observer is notified after each operation. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// Observers fans an event out to several observers
type Observers []Observer

// Observe implements Observer
func (o Observers) Observe(e Event) {
	for _, observer := range o {
		if observer != nil {
			observer.Observe(e)
		}
	}
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Observe implements Observer
func (f ObserverFunc) Observe(e Event) { f(e) }
