// Package catalog holds the fixed, ordered list of coffee processing stages.
// The list is validated once when built and is read-only afterwards.
package catalog

import (
	"fmt"
	"sort"

	"toastem/internal/models"
)

// StageDefinition describes one step of the pipeline
type StageDefinition struct {
	ID    uint
	Name  string
	Label string
	Order int
	// TimeSpanning stages are opened and closed in two separate operations.
	TimeSpanning bool
	// MultiRecord stages keep several active records per batch.
	MultiRecord bool
}

// ConfigurationError reports a catalog that cannot serve the pipeline. It is
// a deployment defect, not something a caller can correct.
type ConfigurationError struct {
	Stage  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Stage == "" {
		return "stage catalog: " + e.Reason
	}
	return fmt.Sprintf("stage catalog: %s: %s", e.Stage, e.Reason)
}

// RequiredStages are the names the processing rules refer to directly.
var RequiredStages = []string{
	models.StageHarvest,
	models.StageDepulping,
	models.StageFermentation,
	models.StageScreening,
	models.StageDrying,
	models.StageGrading,
	models.StageHulling,
	models.StageRoasting,
	models.StageGrinding,
	models.StagePackaging,
	models.StageQualityControl,
}

// Catalog is an immutable ordered stage list
type Catalog struct {
	stages []StageDefinition
	byName map[string]int
	byID   map[uint]int
}

// DefaultDefinitions returns the coffee pipeline in processing order
func DefaultDefinitions() []StageDefinition {
	return []StageDefinition{
		{ID: 1, Name: models.StageHarvest, Label: "Harvest", Order: 1},
		{ID: 2, Name: models.StageDepulping, Label: "Depulping", Order: 2},
		{ID: 3, Name: models.StageFermentation, Label: "Fermentation and washing", Order: 3},
		{ID: 4, Name: models.StageScreening, Label: "Screening", Order: 4},
		{ID: 5, Name: models.StageDrying, Label: "Drying", Order: 5, TimeSpanning: true},
		{ID: 6, Name: models.StageGrading, Label: "Grading", Order: 6},
		{ID: 7, Name: models.StageHulling, Label: "Hulling", Order: 7},
		{ID: 8, Name: models.StageRoasting, Label: "Roasting", Order: 8},
		{ID: 9, Name: models.StageGrinding, Label: "Grinding", Order: 9},
		{ID: 10, Name: models.StagePackaging, Label: "Packaging", Order: 10, MultiRecord: true},
		{ID: 11, Name: models.StageQualityControl, Label: "Quality control", Order: 11},
	}
}

// New validates the definitions and builds a catalog. Every name in required
// must be present; ids, names and order indexes must be unique.
func New(defs []StageDefinition, required ...string) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, &ConfigurationError{Reason: "no stages defined"}
	}

	stages := make([]StageDefinition, len(defs))
	copy(stages, defs)
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Order < stages[j].Order
	})

	c := &Catalog{
		stages: stages,
		byName: make(map[string]int, len(stages)),
		byID:   make(map[uint]int, len(stages)),
	}
	for i, stage := range stages {
		if stage.Name == "" {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("stage with id %d has no name", stage.ID)}
		}
		if stage.ID == 0 {
			return nil, &ConfigurationError{Stage: stage.Name, Reason: "missing id"}
		}
		if _, dup := c.byName[stage.Name]; dup {
			return nil, &ConfigurationError{Stage: stage.Name, Reason: "defined twice"}
		}
		if _, dup := c.byID[stage.ID]; dup {
			return nil, &ConfigurationError{Stage: stage.Name, Reason: fmt.Sprintf("id %d already used", stage.ID)}
		}
		if i > 0 && stages[i-1].Order == stage.Order {
			return nil, &ConfigurationError{
				Stage:  stage.Name,
				Reason: fmt.Sprintf("order %d shared with %s", stage.Order, stages[i-1].Name),
			}
		}
		c.byName[stage.Name] = i
		c.byID[stage.ID] = i
	}

	for _, name := range required {
		if _, ok := c.byName[name]; !ok {
			return nil, &ConfigurationError{Stage: name, Reason: "required stage is missing"}
		}
	}
	return c, nil
}

// Default returns the validated coffee pipeline
func Default() *Catalog {
	c, err := New(DefaultDefinitions(), RequiredStages...)
	if err != nil {
		panic(err)
	}
	return c
}

// List returns the stages in ascending order
func (c *Catalog) List() []StageDefinition {
	out := make([]StageDefinition, len(c.stages))
	copy(out, c.stages)
	return out
}

// ByName looks up a stage by name
func (c *Catalog) ByName(name string) (StageDefinition, error) {
	i, ok := c.byName[name]
	if !ok {
		return StageDefinition{}, &ConfigurationError{Stage: name, Reason: "not in catalog"}
	}
	return c.stages[i], nil
}

// ByID looks up a stage by id
func (c *Catalog) ByID(id uint) (StageDefinition, error) {
	i, ok := c.byID[id]
	if !ok {
		return StageDefinition{}, &ConfigurationError{Reason: fmt.Sprintf("stage id %d not in catalog", id)}
	}
	return c.stages[i], nil
}

// Has checks if a stage name exists
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Next returns the stage with the smallest order greater than stage.Order.
// The boolean is false when stage is the last one.
func (c *Catalog) Next(stage StageDefinition) (StageDefinition, bool) {
	for _, candidate := range c.stages {
		if candidate.Order > stage.Order {
			return candidate, true
		}
	}
	return StageDefinition{}, false
}

// Previous returns the stage immediately before stage
func (c *Catalog) Previous(stage StageDefinition) (StageDefinition, bool) {
	for i := len(c.stages) - 1; i >= 0; i-- {
		if c.stages[i].Order < stage.Order {
			return c.stages[i], true
		}
	}
	return StageDefinition{}, false
}

// First returns the first stage of the pipeline
func (c *Catalog) First() StageDefinition {
	return c.stages[0]
}

// Last returns the last stage of the pipeline
func (c *Catalog) Last() StageDefinition {
	return c.stages[len(c.stages)-1]
}

// After returns every stage strictly after stage, in order
func (c *Catalog) After(stage StageDefinition) []StageDefinition {
	var out []StageDefinition
	for _, candidate := range c.stages {
		if candidate.Order > stage.Order {
			out = append(out, candidate)
		}
	}
	return out
}
