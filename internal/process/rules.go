package process

import (
	"fmt"
	"time"

	"toastem/internal/ledger"
	"toastem/internal/models"
)

// Stage tolerances applied by the weight checks
var (
	depulpingTolerance    = ledger.None
	fermentationTolerance = ledger.None
	screeningTolerance    = ledger.None
	screeningSumTolerance = ledger.Absolute(0.1)
	dryingTolerance       = ledger.Percent(1)
	gradingTolerance      = ledger.Absolute(0.1)
	gradingSumTolerance   = 0.1
	hullingTolerance      = ledger.Percent(1)
	roastingTolerance     = ledger.None
	grindingTolerance     = ledger.Absolute(0.1)
)

// Roasting temperature bounds in Celsius
const (
	minRoastTemperature = 150
	maxRoastTemperature = 260
)

// StageInput is the caller-supplied data for one stage submission
type StageInput struct {
	Stage        string
	OutputWeight float64
	Notes        string
	Payload      models.StagePayload
}

// DryingCompletion closes a drying record that was opened earlier
type DryingCompletion struct {
	EndDate       time.Time
	FinalHumidity *float64
	OutputWeight  float64
	SaleDecision  bool
	Notes         string
}

// upstream is what a stage is measured against
type upstream struct {
	reference float64
	// available is the processed weight still unconsumed, for stages that
	// draw from a shared pool (grinding and packaging).
	available float64
}

// measured is the outcome of a successful stage check
type measured struct {
	input  float64
	output float64
	status models.RecordStatus
	sale   bool
}

// violations accumulates problems without stopping at the first one
type violations []models.Violation

func (vs *violations) add(v *models.Violation) {
	if v != nil {
		*vs = append(*vs, *v)
	}
}

func (vs *violations) required(field string) {
	*vs = append(*vs, models.Violation{Field: field, Code: models.CodeRequired, Message: "is required"})
}

func (vs *violations) date(field string, t time.Time) bool {
	if t.IsZero() {
		vs.required(field)
		return false
	}
	return true
}

func (vs *violations) dateOrder(startField, endField string, start, end time.Time) {
	if start.IsZero() || end.IsZero() || !end.Before(start) {
		return
	}
	*vs = append(*vs, models.Violation{
		Field:   endField,
		Code:    models.CodeDateOrder,
		Message: fmt.Sprintf("must not be before %s", startField),
	})
}

func (vs *violations) option(stage, field, value string) {
	if value == "" {
		vs.required(field)
		return
	}
	if !models.IsOptionValid(stage, field, value) {
		*vs = append(*vs, models.Violation{
			Field:   field,
			Code:    models.CodeInvalidOption,
			Message: fmt.Sprintf("%q is not one of %v", value, models.FieldOptions[stage][field]),
		})
	}
}

func (vs *violations) inRange(field string, value, min, max float64) {
	if value >= min && value <= max {
		return
	}
	*vs = append(*vs, models.Violation{
		Field:   field,
		Code:    models.CodeOutOfRange,
		Message: fmt.Sprintf("%v is outside [%v, %v]", value, min, max),
		Values:  map[string]float64{"value": value, "min": min, "max": max},
	})
}

func (vs *violations) nonNegative(field string, value float64) {
	if value >= 0 {
		return
	}
	*vs = append(*vs, models.Violation{
		Field:   field,
		Code:    models.CodeOutOfRange,
		Message: "must not be negative",
		Values:  map[string]float64{"value": value},
	})
}

// conserve checks that output is positive and, when it is, that it stays
// within tol of reference. A missing weight yields a single violation.
func (vs *violations) conserve(field string, output, reference float64, tol ledger.Tolerance) bool {
	if v := ledger.ValidatePositive(field, output); v != nil {
		vs.add(v)
		return false
	}
	v := ledger.ValidateConservation(field, output, reference, tol)
	vs.add(v)
	return v == nil
}

// checkStage validates one submission against its upstream and returns the
// weights and status the record should be written with.
func checkStage(in StageInput, up upstream) (measured, []models.Violation) {
	var vs violations
	m := measured{input: up.reference, output: in.OutputWeight, status: models.RecordStatusFinished}

	switch p := in.Payload.(type) {
	case *models.DepulpingData:
		vs.date("date", p.Date)
		vs.conserve("output_weight", in.OutputWeight, up.reference, depulpingTolerance)

	case *models.FermentationData:
		vs.date("start_date", p.StartDate)
		vs.date("end_date", p.EndDate)
		vs.dateOrder("start_date", "end_date", p.StartDate, p.EndDate)
		vs.option(models.StageFermentation, "method", p.Method)
		vs.conserve("output_weight", in.OutputWeight, up.reference, fermentationTolerance)

	case *models.ScreeningData:
		vs.date("date", p.Date)
		vs.nonNegative("discarded_weight", p.DiscardedWeight)
		vs.conserve("output_weight", in.OutputWeight, up.reference, screeningTolerance)
		if in.OutputWeight > 0 && p.DiscardedWeight > 0 {
			vs.add(ledger.ValidateConservation("discarded_weight", in.OutputWeight+p.DiscardedWeight, up.reference, screeningSumTolerance))
		}

	case *models.DryingData:
		vs.date("start_date", p.StartDate)
		vs.option(models.StageDrying, "method", p.Method)
		if p.EndDate == nil {
			if in.OutputWeight != 0 {
				vs.required("end_date")
			}
			m.status = models.RecordStatusInProgress
			m.output = 0
			break
		}
		vs.dateOrder("start_date", "end_date", p.StartDate, *p.EndDate)
		if p.FinalHumidity == nil {
			vs.required("final_humidity")
		} else {
			vs.inRange("final_humidity", *p.FinalHumidity, 0, 100)
		}
		vs.conserve("output_weight", in.OutputWeight, up.reference, dryingTolerance)
		m.sale = p.SaleDecision

	case *models.GradingData:
		vs.date("date", p.Date)
		vs.option(models.StageGrading, "grade", p.Grade)
		vs.add(ledger.ValidatePositive("parchment_weight", p.ParchmentWeight))
		vs.nonNegative("reject_weight", p.RejectWeight)
		vs.conserve("total_weight", p.TotalWeight, up.reference, gradingTolerance)
		vs.add(ledger.ValidateSum("total_weight", []float64{p.ParchmentWeight, p.RejectWeight}, p.TotalWeight, gradingSumTolerance))
		m.output = p.ParchmentWeight

	case *models.HullingData:
		vs.date("date", p.Date)
		vs.conserve("output_weight", in.OutputWeight, up.reference, hullingTolerance)

	case *models.RoastingData:
		vs.date("date", p.Date)
		vs.option(models.StageRoasting, "level", p.Level)
		vs.inRange("temperature_c", p.TemperatureC, minRoastTemperature, maxRoastTemperature)
		if p.DurationMinutes <= 0 {
			vs.add(&models.Violation{Field: "duration_minutes", Code: models.CodeOutOfRange, Message: "must be greater than zero"})
		}
		vs.conserve("output_weight", in.OutputWeight, up.reference, roastingTolerance)

	case *models.GrindingData:
		vs.date("date", p.Date)
		vs.option(models.StageGrinding, "grind_size", p.GrindSize)
		m.input = p.InputWeight
		if m.input == 0 {
			m.input = up.available
		}
		if v := ledger.ValidatePositive("input_weight", m.input); v != nil {
			vs.add(v)
			break
		}
		vs.add(ledger.ValidateAvailable("input_weight", m.input, up.available))
		vs.conserve("output_weight", in.OutputWeight, m.input, grindingTolerance)

	case *models.PackagingData:
		vs.date("date", p.Date)
		vs.option(models.StagePackaging, "product_type", p.ProductType)
		if !models.IsPackageSizeValid(p.PackageSizeGrams) {
			vs.add(&models.Violation{
				Field:   "package_size_grams",
				Code:    models.CodeInvalidOption,
				Message: fmt.Sprintf("%d is not one of %v", p.PackageSizeGrams, models.PackageSizes),
			})
		}
		if p.Units <= 0 {
			vs.add(&models.Violation{Field: "units", Code: models.CodeOutOfRange, Message: "must be greater than zero"})
		}
		m.input = up.available
		m.output = p.PackagedWeight()
		if p.Units > 0 && models.IsPackageSizeValid(p.PackageSizeGrams) {
			vs.add(ledger.ValidateAvailable("units", m.output, up.available))
		}

	case *models.QualityControlData:
		vs.date("date", p.Date)
		vs.inRange("cup_score", p.CupScore, 0, 100)
		vs.inRange("humidity", p.Humidity, 0, 100)
		if p.Defects < 0 {
			vs.add(&models.Violation{Field: "defects", Code: models.CodeOutOfRange, Message: "must not be negative"})
		}
		m.output = up.reference

	default:
		vs.required("data")
	}

	return m, vs
}

// checkDryingCompletion validates closing an open drying record
func checkDryingCompletion(record *models.StageRecord, data *models.DryingData, in DryingCompletion) []models.Violation {
	var vs violations
	if vs.date("end_date", in.EndDate) {
		vs.dateOrder("start_date", "end_date", data.StartDate, in.EndDate)
	}
	if in.FinalHumidity == nil {
		vs.required("final_humidity")
	} else {
		vs.inRange("final_humidity", *in.FinalHumidity, 0, 100)
	}
	vs.conserve("output_weight", in.OutputWeight, record.InputWeight, dryingTolerance)
	return vs
}

// checkBatch validates the harvest data of a new batch
func checkBatch(in BatchInput) []models.Violation {
	var vs violations
	vs.date("harvest_date", in.HarvestDate)
	vs.add(ledger.ValidatePositive("initial_weight", in.InitialWeight))
	vs.option(models.StageHarvest, "coffee_type", in.CoffeeType)
	vs.option(models.StageHarvest, "harvest_method", in.HarvestMethod)
	return vs
}
