package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StagePayload is the stage-specific part of a StageRecord. Implementations
// live in this package so every stage has exactly one payload shape.
type StagePayload interface {
	StageName() string
	clone() StagePayload
}

// DepulpingData holds the depulping measurement
type DepulpingData struct {
	Date time.Time `json:"date"`
}

// FermentationData holds the fermentation and washing measurement
type FermentationData struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Method    string    `json:"method"`
}

// ScreeningData holds the screening measurement
type ScreeningData struct {
	Date            time.Time `json:"date"`
	DiscardedWeight float64   `json:"discarded_weight"`
}

// DryingData holds the drying measurement. EndDate and FinalHumidity stay
// nil while the drying is in progress.
type DryingData struct {
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Method        string     `json:"method"`
	FinalHumidity *float64   `json:"final_humidity,omitempty"`
	SaleDecision  bool       `json:"sale_decision"`
}

// GradingData holds the grading measurement
type GradingData struct {
	Date            time.Time `json:"date"`
	ParchmentWeight float64   `json:"parchment_weight"`
	RejectWeight    float64   `json:"reject_weight"`
	TotalWeight     float64   `json:"total_weight"`
	Grade           string    `json:"grade"`
}

// HullingData holds the hulling measurement
type HullingData struct {
	Date time.Time `json:"date"`
}

// RoastingData holds the roasting measurement
type RoastingData struct {
	Date            time.Time `json:"date"`
	Level           string    `json:"level"`
	TemperatureC    float64   `json:"temperature_c"`
	DurationMinutes int       `json:"duration_minutes"`
}

// GrindingData holds the grinding measurement. InputWeight is the portion of
// roasted coffee sent to the grinder; zero means all of it.
type GrindingData struct {
	Date        time.Time `json:"date"`
	GrindSize   string    `json:"grind_size"`
	InputWeight float64   `json:"input_weight"`
}

// PackagingData holds one packaging run for a product type
type PackagingData struct {
	Date             time.Time `json:"date"`
	ProductType      string    `json:"product_type"`
	PackageSizeGrams int       `json:"package_size_grams"`
	Units            int       `json:"units"`
}

// PackagedWeight returns the packaged weight in kilograms
func (p *PackagingData) PackagedWeight() float64 {
	return float64(p.PackageSizeGrams*p.Units) / 1000
}

// QualityControlData holds the final quality inspection
type QualityControlData struct {
	Date     time.Time `json:"date"`
	CupScore float64   `json:"cup_score"`
	Humidity float64   `json:"humidity"`
	Defects  int       `json:"defects"`
	Approved bool      `json:"approved"`
}

func (*DepulpingData) StageName() string      { return StageDepulping }
func (*FermentationData) StageName() string   { return StageFermentation }
func (*ScreeningData) StageName() string      { return StageScreening }
func (*DryingData) StageName() string         { return StageDrying }
func (*GradingData) StageName() string        { return StageGrading }
func (*HullingData) StageName() string        { return StageHulling }
func (*RoastingData) StageName() string       { return StageRoasting }
func (*GrindingData) StageName() string       { return StageGrinding }
func (*PackagingData) StageName() string      { return StagePackaging }
func (*QualityControlData) StageName() string { return StageQualityControl }

func (p *DepulpingData) clone() StagePayload    { c := *p; return &c }
func (p *FermentationData) clone() StagePayload { c := *p; return &c }
func (p *ScreeningData) clone() StagePayload    { c := *p; return &c }
func (p *GradingData) clone() StagePayload      { c := *p; return &c }
func (p *HullingData) clone() StagePayload      { c := *p; return &c }
func (p *RoastingData) clone() StagePayload     { c := *p; return &c }
func (p *GrindingData) clone() StagePayload     { c := *p; return &c }
func (p *PackagingData) clone() StagePayload    { c := *p; return &c }

func (p *QualityControlData) clone() StagePayload { c := *p; return &c }

func (p *DryingData) clone() StagePayload {
	c := *p
	if p.EndDate != nil {
		end := *p.EndDate
		c.EndDate = &end
	}
	if p.FinalHumidity != nil {
		humidity := *p.FinalHumidity
		c.FinalHumidity = &humidity
	}
	return &c
}

// NewPayload returns an empty payload for the given stage, ready to be
// decoded into.
func NewPayload(stage string) (StagePayload, error) {
	switch stage {
	case StageDepulping:
		return &DepulpingData{}, nil
	case StageFermentation:
		return &FermentationData{}, nil
	case StageScreening:
		return &ScreeningData{}, nil
	case StageDrying:
		return &DryingData{}, nil
	case StageGrading:
		return &GradingData{}, nil
	case StageHulling:
		return &HullingData{}, nil
	case StageRoasting:
		return &RoastingData{}, nil
	case StageGrinding:
		return &GrindingData{}, nil
	case StagePackaging:
		return &PackagingData{}, nil
	case StageQualityControl:
		return &QualityControlData{}, nil
	default:
		return nil, fmt.Errorf("stage %q has no record payload", stage)
	}
}

// DecodePayload parses a JSON payload for the given stage
func DecodePayload(stage string, data []byte) (StagePayload, error) {
	payload, err := NewPayload(stage)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", stage, err)
	}
	return payload, nil
}
