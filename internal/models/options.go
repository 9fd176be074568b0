package models

// FermentationMethod represents the post-harvest process used while fermenting
type FermentationMethod string

const (
	FermentationWashed  FermentationMethod = "washed"
	FermentationHoney   FermentationMethod = "honey"
	FermentationNatural FermentationMethod = "natural"
)

// DryingMethod represents how the parchment is dried
type DryingMethod string

const (
	DryingSun        DryingMethod = "sun"
	DryingMechanical DryingMethod = "mechanical"
	DryingSolar      DryingMethod = "solar"
)

// Grade represents the quality grade assigned while grading
type Grade string

const (
	GradePremium    Grade = "premium"
	GradeSpecialty  Grade = "specialty"
	GradeStandard   Grade = "standard"
	GradeCommercial Grade = "commercial"
)

// RoastLevel represents the roast profile
type RoastLevel string

const (
	RoastLight      RoastLevel = "light"
	RoastMedium     RoastLevel = "medium"
	RoastMediumDark RoastLevel = "medium_dark"
	RoastDark       RoastLevel = "dark"
)

// GrindSize represents the particle size of ground coffee
type GrindSize string

const (
	GrindCoarse    GrindSize = "coarse"
	GrindMedium    GrindSize = "medium"
	GrindFine      GrindSize = "fine"
	GrindExtraFine GrindSize = "extra_fine"
)

// ProductType represents what is being packaged
type ProductType string

const (
	ProductWholeBean ProductType = "whole_bean"
	ProductGround    ProductType = "ground"
)

// PackageSizes lists the bag sizes in grams the packaging line supports
var PackageSizes = []int{250, 340, 454, 500, 1000}

// FieldOptions lists the accepted values of every enumerated stage field,
// keyed by stage and then by field name.
var FieldOptions = map[string]map[string][]string{
	StageHarvest: {
		"coffee_type":    {string(CoffeeTypeArabica), string(CoffeeTypeRobusta), string(CoffeeTypeBlend)},
		"harvest_method": {string(HarvestMethodSelective), string(HarvestMethodStripping), string(HarvestMethodMechanical)},
	},
	StageFermentation: {
		"method": {string(FermentationWashed), string(FermentationHoney), string(FermentationNatural)},
	},
	StageDrying: {
		"method": {string(DryingSun), string(DryingMechanical), string(DryingSolar)},
	},
	StageGrading: {
		"grade": {string(GradePremium), string(GradeSpecialty), string(GradeStandard), string(GradeCommercial)},
	},
	StageRoasting: {
		"level": {string(RoastLight), string(RoastMedium), string(RoastMediumDark), string(RoastDark)},
	},
	StageGrinding: {
		"grind_size": {string(GrindCoarse), string(GrindMedium), string(GrindFine), string(GrindExtraFine)},
	},
	StagePackaging: {
		"product_type": {string(ProductWholeBean), string(ProductGround)},
	},
}

// IsOptionValid checks if value is one of the accepted values for a stage field
func IsOptionValid(stage, field, value string) bool {
	for _, option := range FieldOptions[stage][field] {
		if option == value {
			return true
		}
	}
	return false
}

// IsPackageSizeValid checks if a bag size is supported
func IsPackageSizeValid(grams int) bool {
	for _, size := range PackageSizes {
		if size == grams {
			return true
		}
	}
	return false
}
