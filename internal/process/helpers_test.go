package process_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"toastem/internal/catalog"
	"toastem/internal/models"
	"toastem/internal/process"
	"toastem/internal/store"
)

var harvestDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return harvestDay.AddDate(0, 0, n) }

func ptr[T any](v T) *T { return &v }

// recorder keeps every emitted event
type recorder struct {
	mu     sync.Mutex
	events []process.Event
}

func (r *recorder) Observe(e process.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []process.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]process.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type env struct {
	ctx     context.Context
	store   *store.MemoryStore
	catalog *catalog.Catalog
	orc     *process.Orchestrator
	events  *recorder
	farm    *models.Farm
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		ctx:     context.Background(),
		store:   store.NewMemoryStore(),
		catalog: catalog.Default(),
		events:  &recorder{},
	}
	clock := func() time.Time { return day(60) }
	e.orc = process.NewOrchestrator(e.store, e.catalog, process.WithClock(clock), process.WithObserver(e.events))

	farm, err := e.orc.CreateFarm(e.ctx, "Finca El Mirador", "grower-1")
	require.NoError(t, err)
	e.farm = farm
	return e
}

func (e *env) newBatch(t *testing.T, initial float64) *models.Batch {
	t.Helper()
	batch, err := e.orc.CreateBatch(e.ctx, e.farm.ID, process.BatchInput{
		HarvestDate:   harvestDay,
		InitialWeight: initial,
		CoffeeType:    string(models.CoffeeTypeArabica),
		HarvestMethod: string(models.HarvestMethodSelective),
	})
	require.NoError(t, err)
	return batch
}

func (e *env) batch(t *testing.T, id uint) *models.Batch {
	t.Helper()
	batch, err := e.store.GetBatch(e.ctx, id)
	require.NoError(t, err)
	return batch
}

func (e *env) stageID(t *testing.T, name string) uint {
	t.Helper()
	stage, err := e.catalog.ByName(name)
	require.NoError(t, err)
	return stage.ID
}

func (e *env) submit(t *testing.T, batchID uint, in process.StageInput) *process.Outcome {
	t.Helper()
	out, err := e.orc.Submit(e.ctx, batchID, in)
	require.NoError(t, err, "submit %s", in.Stage)
	return out
}

// happyPath is a valid run of a 100 kg batch through every recordable
// stage, packaging ground coffee.
func happyPath() []process.StageInput {
	return []process.StageInput{
		{Stage: models.StageDepulping, OutputWeight: 85, Payload: &models.DepulpingData{Date: day(1)}},
		{Stage: models.StageFermentation, OutputWeight: 80, Payload: &models.FermentationData{
			StartDate: day(1), EndDate: day(3), Method: string(models.FermentationWashed),
		}},
		{Stage: models.StageScreening, OutputWeight: 78, Payload: &models.ScreeningData{Date: day(3), DiscardedWeight: 2}},
		{Stage: models.StageDrying, OutputWeight: 40, Payload: &models.DryingData{
			StartDate: day(4), EndDate: ptr(day(20)), Method: string(models.DryingSun), FinalHumidity: ptr(11.5),
		}},
		{Stage: models.StageGrading, Payload: &models.GradingData{
			Date: day(21), ParchmentWeight: 35, RejectWeight: 5, TotalWeight: 40, Grade: string(models.GradeSpecialty),
		}},
		{Stage: models.StageHulling, OutputWeight: 28, Payload: &models.HullingData{Date: day(22)}},
		{Stage: models.StageRoasting, OutputWeight: 24, Payload: &models.RoastingData{
			Date: day(25), Level: string(models.RoastMedium), TemperatureC: 210, DurationMinutes: 14,
		}},
		{Stage: models.StageGrinding, OutputWeight: 12, Payload: &models.GrindingData{
			Date: day(26), GrindSize: string(models.GrindMedium), InputWeight: 12,
		}},
		{Stage: models.StagePackaging, Payload: &models.PackagingData{
			Date: day(27), ProductType: string(models.ProductGround), PackageSizeGrams: 500, Units: 20,
		}},
		{Stage: models.StageQualityControl, Payload: &models.QualityControlData{
			Date: day(28), CupScore: 86.5, Humidity: 11, Defects: 2, Approved: true,
		}},
	}
}

// inputFor returns a fresh copy of the happy path input of a stage
func inputFor(t *testing.T, stage string) process.StageInput {
	t.Helper()
	for _, in := range happyPath() {
		if in.Stage == stage {
			return in
		}
	}
	t.Fatalf("no happy path input for %s", stage)
	return process.StageInput{}
}

// advanceThrough submits the happy path up to and including stage
func (e *env) advanceThrough(t *testing.T, batchID uint, stage string) {
	t.Helper()
	for _, in := range happyPath() {
		e.submit(t, batchID, in)
		if in.Stage == stage {
			return
		}
	}
	t.Fatalf("stage %s not on the happy path", stage)
}
