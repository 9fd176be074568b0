package catalog

import (
	"errors"
	"testing"

	"toastem/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsOrdered(t *testing.T) {
	c := Default()
	stages := c.List()

	require.Len(t, stages, len(RequiredStages))
	for i := 1; i < len(stages); i++ {
		assert.Less(t, stages[i-1].Order, stages[i].Order)
	}
	assert.Equal(t, models.StageHarvest, c.First().Name)
	assert.Equal(t, models.StageQualityControl, c.Last().Name)
}

func TestNext(t *testing.T) {
	c := Default()

	drying, err := c.ByName(models.StageDrying)
	require.NoError(t, err)

	next, ok := c.Next(drying)
	require.True(t, ok)
	assert.Equal(t, models.StageGrading, next.Name)

	_, ok = c.Next(c.Last())
	assert.False(t, ok, "last stage must have no successor")
}

func TestNextSkipsOrderGaps(t *testing.T) {
	c, err := New([]StageDefinition{
		{ID: 1, Name: "a", Order: 10},
		{ID: 2, Name: "c", Order: 50},
		{ID: 3, Name: "b", Order: 20},
	})
	require.NoError(t, err)

	a, _ := c.ByName("a")
	next, ok := c.Next(a)
	require.True(t, ok)
	assert.Equal(t, "b", next.Name)

	prev, ok := c.Previous(a)
	assert.False(t, ok)
	assert.Empty(t, prev.Name)
}

func TestByNameMissing(t *testing.T) {
	c := Default()

	_, err := c.ByName("toasting")
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "toasting", cfgErr.Stage)
}

func TestNewRejectsMissingRequiredStage(t *testing.T) {
	defs := DefaultDefinitions()[:5]

	_, err := New(defs, RequiredStages...)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, models.StageGrading, cfgErr.Stage)
}

func TestNewRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name string
		defs []StageDefinition
	}{
		{"name", []StageDefinition{{ID: 1, Name: "a", Order: 1}, {ID: 2, Name: "a", Order: 2}}},
		{"id", []StageDefinition{{ID: 1, Name: "a", Order: 1}, {ID: 1, Name: "b", Order: 2}}},
		{"order", []StageDefinition{{ID: 1, Name: "a", Order: 1}, {ID: 2, Name: "b", Order: 1}}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs)
			assert.Error(t, err)
		})
	}
}

func TestAfter(t *testing.T) {
	c := Default()
	roasting, _ := c.ByName(models.StageRoasting)

	names := []string{}
	for _, stage := range c.After(roasting) {
		names = append(names, stage.Name)
	}
	assert.Equal(t, []string{models.StageGrinding, models.StagePackaging, models.StageQualityControl}, names)
}
