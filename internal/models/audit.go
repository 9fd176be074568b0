package models

import "time"

// AuditAction represents a correction or administrative action on a batch
type AuditAction string

const (
	AuditActionRestart   AuditAction = "restart"
	AuditActionSupersede AuditAction = "supersede"
	AuditActionCancel    AuditAction = "cancel"
	AuditActionSell      AuditAction = "sell"
	AuditActionReconcile AuditAction = "reconcile"
)

// AuditEntry records who changed what on a batch or stage record, with a
// JSON snapshot of the values before the change. RecordID is zero for
// batch-level actions.
type AuditEntry struct {
	ID             string      `gorm:"primary_key;type:varchar(36)" json:"id"`
	BatchID        uint        `gorm:"index;not null" json:"batch_id"`
	RecordID       uint        `gorm:"index" json:"record_id,omitempty"`
	Actor          string      `gorm:"not null" json:"actor"`
	Action         AuditAction `gorm:"not null" json:"action"`
	Reason         string      `gorm:"type:text" json:"reason,omitempty"`
	PreviousValues string      `gorm:"type:text" json:"previous_values"`
	CreatedAt      time.Time   `gorm:"index;not null" json:"created_at"`
}
