package models

// Stage names. They double as the tag of a StageRecord payload.
const (
	StageHarvest        = "harvest"
	StageDepulping      = "depulping"
	StageFermentation   = "fermentation"
	StageScreening      = "screening"
	StageDrying         = "drying"
	StageGrading        = "grading"
	StageHulling        = "hulling"
	StageRoasting       = "roasting"
	StageGrinding       = "grinding"
	StagePackaging      = "packaging"
	StageQualityControl = "quality_control"
)

// Stage is the persisted copy of a catalog entry. The catalog in memory is
// authoritative; the table exists so records can reference stage ids.
type Stage struct {
	ID    uint   `gorm:"primary_key" json:"id"`
	Name  string `gorm:"unique_index;not null" json:"name"`
	Label string `json:"label"`
	Order int    `gorm:"column:sort_order;not null" json:"order"`
}
