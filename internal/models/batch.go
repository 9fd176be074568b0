package models

import (
	"fmt"
	"time"
)

// BatchStatus represents the overall status of a batch
type BatchStatus string

const (
	BatchStatusInProgress     BatchStatus = "in_progress"
	BatchStatusFinished       BatchStatus = "finished"
	BatchStatusCancelled      BatchStatus = "cancelled"
	BatchStatusSoldUnfinished BatchStatus = "sold_unfinished"
)

// CoffeeType represents the variety family of a harvested batch
type CoffeeType string

const (
	CoffeeTypeArabica CoffeeType = "arabica"
	CoffeeTypeRobusta CoffeeType = "robusta"
	CoffeeTypeBlend   CoffeeType = "blend"
)

// HarvestMethod represents how the cherries were picked
type HarvestMethod string

const (
	HarvestMethodSelective  HarvestMethod = "selective"
	HarvestMethodStripping  HarvestMethod = "stripping"
	HarvestMethodMechanical HarvestMethod = "mechanical"
)

// Batch represents one physical lot of coffee moving through the pipeline.
// Code, FarmID, HarvestDate and InitialWeight are fixed at creation; Status,
// CurrentStageID and Version only change through state machine transitions.
type Batch struct {
	ID             uint        `gorm:"primary_key" json:"id"`
	Code           string      `gorm:"unique_index;not null" json:"code"`
	FarmID         uint        `gorm:"index;not null" json:"farm_id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	HarvestDate    time.Time   `json:"harvest_date"`
	InitialWeight  float64     `gorm:"not null" json:"initial_weight"`
	CoffeeType     string      `json:"coffee_type"`
	HarvestMethod  string      `json:"harvest_method"`
	Notes          string      `gorm:"type:text" json:"notes"`
	Status         BatchStatus `gorm:"index;not null" json:"status"`
	CurrentStageID uint        `gorm:"not null" json:"current_stage_id"`
	CancelReason   string      `gorm:"type:text" json:"cancel_reason,omitempty"`
	Version        int         `gorm:"not null;default:0" json:"version"`
}

// IsTerminal reports whether the batch can no longer change status through
// the normal pipeline.
func (b *Batch) IsTerminal() bool {
	return b.Status == BatchStatusCancelled || b.Status == BatchStatusSoldUnfinished
}

// IsActive checks if stages may currently be registered against the batch
func (b *Batch) IsActive() bool {
	return b.Status == BatchStatusInProgress
}

// BatchCode builds the farm-scoped human readable code for a new batch
func BatchCode(farmID uint, harvest time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", BatchCodePrefix(farmID, harvest.Year()), seq)
}

// BatchCodePrefix is the part of a batch code shared by a farm's batches of
// one harvest year
func BatchCodePrefix(farmID uint, year int) string {
	return fmt.Sprintf("F%d-%d-", farmID, year)
}

// IsCoffeeTypeValid checks if a coffee type is valid
func IsCoffeeTypeValid(coffeeType string) bool {
	validTypes := map[CoffeeType]bool{
		CoffeeTypeArabica: true,
		CoffeeTypeRobusta: true,
		CoffeeTypeBlend:   true,
	}
	return validTypes[CoffeeType(coffeeType)]
}

// IsHarvestMethodValid checks if a harvest method is valid
func IsHarvestMethodValid(method string) bool {
	validMethods := map[HarvestMethod]bool{
		HarvestMethodSelective:  true,
		HarvestMethodStripping:  true,
		HarvestMethodMechanical: true,
	}
	return validMethods[HarvestMethod(method)]
}

// Farm owns batches. OwnerID identifies the user allowed to operate on them.
type Farm struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	OwnerID   string    `gorm:"index;not null" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}
