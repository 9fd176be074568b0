package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecordStatus represents the lifecycle status of a stage record
type RecordStatus int

const (
	RecordStatusPending    RecordStatus = 1
	RecordStatusInProgress RecordStatus = 2
	RecordStatusFinished   RecordStatus = 3
)

func (s RecordStatus) String() string {
	switch s {
	case RecordStatusPending:
		return "pending"
	case RecordStatusInProgress:
		return "in_progress"
	case RecordStatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("RecordStatus(%d)", int(s))
	}
}

// StageRecord is the measurement result of running one stage against one
// batch. The shared base lives in the struct; Payload carries the
// stage-specific fields and is tagged by Stage.
type StageRecord struct {
	ID           uint         `gorm:"primary_key" json:"id"`
	BatchID      uint         `gorm:"index;not null" json:"batch_id"`
	Stage        string       `gorm:"index;not null" json:"stage"`
	Status       RecordStatus `gorm:"not null" json:"status"`
	InputWeight  float64      `json:"input_weight"`
	OutputWeight float64      `json:"output_weight"`
	Notes        string       `gorm:"type:text" json:"notes"`
	Superseded   bool         `gorm:"not null;default:false" json:"superseded"`
	PayloadJSON  string       `gorm:"column:payload;type:text" json:"-"`
	Payload      StagePayload `gorm:"-" json:"data"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsFinished checks if the record is finished
func (r *StageRecord) IsFinished() bool {
	return r.Status == RecordStatusFinished
}

// IsOpen checks if the record spans time and has not been closed yet
func (r *StageRecord) IsOpen() bool {
	return r.Status == RecordStatusInProgress
}

// IsActive reports whether the record still counts toward the batch
func (r *StageRecord) IsActive() bool {
	return !r.Superseded
}

// EncodePayload serializes Payload into PayloadJSON before persisting
func (r *StageRecord) EncodePayload() error {
	if r.Payload == nil {
		r.PayloadJSON = ""
		return nil
	}
	if r.Payload.StageName() != r.Stage {
		return fmt.Errorf("payload for %s attached to %s record", r.Payload.StageName(), r.Stage)
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", r.Stage, err)
	}
	r.PayloadJSON = string(data)
	return nil
}

// DecodePayload restores Payload from PayloadJSON after loading
func (r *StageRecord) DecodePayload() error {
	if r.PayloadJSON == "" {
		r.Payload = nil
		return nil
	}
	payload, err := DecodePayload(r.Stage, []byte(r.PayloadJSON))
	if err != nil {
		return err
	}
	r.Payload = payload
	return nil
}

// Clone returns a deep copy of the record, payload included
func (r *StageRecord) Clone() *StageRecord {
	out := *r
	if r.Payload != nil {
		out.Payload = r.Payload.clone()
	}
	return &out
}
