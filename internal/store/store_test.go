package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toastem/internal/catalog"
	"toastem/internal/database"
	"toastem/internal/models"
	"toastem/internal/process"
	"toastem/internal/store"
)

var harvestDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newGormStore(t *testing.T) process.Store {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, catalog.Default()))
	return store.NewGormStore(db)
}

func newMemoryStore(t *testing.T) process.Store {
	return store.NewMemoryStore()
}

// backends runs fn against every Store implementation
func backends(t *testing.T, fn func(t *testing.T, s process.Store)) {
	for name, factory := range map[string]func(*testing.T) process.Store{
		"memory": newMemoryStore,
		"gorm":   newGormStore,
	} {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func seedBatch(t *testing.T, s process.Store, owner string) (*models.Farm, *models.Batch) {
	t.Helper()
	ctx := context.Background()
	farm := &models.Farm{Name: "La Esperanza", OwnerID: owner, CreatedAt: harvestDay}
	require.NoError(t, s.CreateFarm(ctx, farm))

	seq, err := s.NextBatchSeq(ctx, farm.ID, harvestDay.Year())
	require.NoError(t, err)
	batch := &models.Batch{
		Code:           models.BatchCode(farm.ID, harvestDay, seq),
		FarmID:         farm.ID,
		HarvestDate:    harvestDay,
		InitialWeight:  100,
		CoffeeType:     string(models.CoffeeTypeArabica),
		HarvestMethod:  string(models.HarvestMethodSelective),
		Status:         models.BatchStatusInProgress,
		CurrentStageID: 1,
		CreatedAt:      harvestDay,
		UpdatedAt:      harvestDay,
	}
	require.NoError(t, s.CreateBatch(ctx, batch))
	return farm, batch
}

func TestFarmsAndBatches(t *testing.T) {
	backends(t, func(t *testing.T, s process.Store) {
		ctx := context.Background()
		farm, batch := seedBatch(t, s, "user-1")

		got, err := s.GetFarm(ctx, farm.ID)
		require.NoError(t, err)
		assert.Equal(t, "La Esperanza", got.Name)

		loaded, err := s.GetBatch(ctx, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, batch.Code, loaded.Code)
		assert.Equal(t, models.BatchStatusInProgress, loaded.Status)

		_, err = s.GetBatch(ctx, 999)
		assert.True(t, errors.Is(err, models.ErrNotFound))
		_, err = s.GetFarm(ctx, 999)
		assert.True(t, errors.Is(err, models.ErrNotFound))

		owner, err := s.OwnerOf(ctx, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", owner)
		_, err = s.OwnerOf(ctx, 999)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestNextBatchSeq(t *testing.T) {
	backends(t, func(t *testing.T, s process.Store) {
		ctx := context.Background()
		farm, batch := seedBatch(t, s, "user-1")
		assert.Equal(t, "F1-2024-0001", batch.Code)

		seq, err := s.NextBatchSeq(ctx, farm.ID, 2024)
		require.NoError(t, err)
		assert.Equal(t, 2, seq)

		seq, err = s.NextBatchSeq(ctx, farm.ID, 2025)
		require.NoError(t, err)
		assert.Equal(t, 1, seq)
	})
}

func TestSaveBatchCompareAndSwap(t *testing.T) {
	backends(t, func(t *testing.T, s process.Store) {
		ctx := context.Background()
		_, batch := seedBatch(t, s, "user-1")

		first, err := s.GetBatch(ctx, batch.ID)
		require.NoError(t, err)
		stale, err := s.GetBatch(ctx, batch.ID)
		require.NoError(t, err)

		first.CurrentStageID = 2
		require.NoError(t, s.SaveBatch(ctx, first))
		assert.Equal(t, 1, first.Version)

		stale.Status = models.BatchStatusCancelled
		err = s.SaveBatch(ctx, stale)
		assert.True(t, errors.Is(err, models.ErrConflict))

		loaded, err := s.GetBatch(ctx, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(2), loaded.CurrentStageID)
		assert.Equal(t, models.BatchStatusInProgress, loaded.Status)
		assert.Equal(t, 1, loaded.Version)

		missing := &models.Batch{ID: 999}
		assert.True(t, errors.Is(s.SaveBatch(ctx, missing), models.ErrNotFound))
	})
}

func TestStageRecords(t *testing.T) {
	backends(t, func(t *testing.T, s process.Store) {
		ctx := context.Background()
		_, batch := seedBatch(t, s, "user-1")

		first := &models.StageRecord{
			BatchID:      batch.ID,
			Stage:        models.StagePackaging,
			Status:       models.RecordStatusFinished,
			InputWeight:  10,
			OutputWeight: 5,
			Payload: &models.PackagingData{
				Date:             harvestDay,
				ProductType:      string(models.ProductWholeBean),
				PackageSizeGrams: 500,
				Units:            10,
			},
		}
		id, err := s.SaveStageRecord(ctx, first)
		require.NoError(t, err)
		require.NotZero(t, id)

		second := first.Clone()
		second.ID = 0
		second.Payload.(*models.PackagingData).Units = 4
		_, err = s.SaveStageRecord(ctx, second)
		require.NoError(t, err)

		newest, err := s.GetStageRecord(ctx, batch.ID, models.StagePackaging)
		require.NoError(t, err)
		assert.Equal(t, second.ID, newest.ID)
		data, ok := newest.Payload.(*models.PackagingData)
		require.True(t, ok)
		assert.Equal(t, 4, data.Units)
		assert.True(t, data.Date.Equal(harvestDay))

		newest.Superseded = true
		_, err = s.SaveStageRecord(ctx, newest)
		require.NoError(t, err)

		active, err := s.GetStageRecord(ctx, batch.ID, models.StagePackaging)
		require.NoError(t, err)
		assert.Equal(t, first.ID, active.ID)

		all, err := s.ListStageRecords(ctx, batch.ID, models.StagePackaging)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, first.ID, all[0].ID)
		assert.True(t, all[1].Superseded)

		byID, err := s.GetStageRecordByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, byID.Payload.(*models.PackagingData).Units)

		_, err = s.GetStageRecord(ctx, batch.ID, models.StageDrying)
		assert.True(t, errors.Is(err, models.ErrNotFound))
		_, err = s.SaveStageRecord(ctx, &models.StageRecord{ID: 999, BatchID: batch.ID, Stage: models.StageDrying})
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestRecordsAreIsolatedFromCallers(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_, batch := seedBatch(t, s, "user-1")

	record := &models.StageRecord{
		BatchID: batch.ID,
		Stage:   models.StageScreening,
		Status:  models.RecordStatusFinished,
		Payload: &models.ScreeningData{Date: harvestDay, DiscardedWeight: 2},
	}
	_, err := s.SaveStageRecord(ctx, record)
	require.NoError(t, err)

	record.Payload.(*models.ScreeningData).DiscardedWeight = 50

	loaded, err := s.GetStageRecord(ctx, batch.ID, models.StageScreening)
	require.NoError(t, err)
	assert.Equal(t, 2.0, loaded.Payload.(*models.ScreeningData).DiscardedWeight)
}

func TestAudit(t *testing.T) {
	backends(t, func(t *testing.T, s process.Store) {
		ctx := context.Background()
		_, batch := seedBatch(t, s, "user-1")

		require.NoError(t, s.AppendAudit(ctx, &models.AuditEntry{
			ID:        "0b8e6c1e-0000-4000-8000-000000000001",
			BatchID:   batch.ID,
			RecordID:  3,
			Actor:     "user-1",
			Action:    models.AuditActionRestart,
			CreatedAt: harvestDay,
		}))
		require.NoError(t, s.AppendAudit(ctx, &models.AuditEntry{
			ID:        "0b8e6c1e-0000-4000-8000-000000000002",
			BatchID:   batch.ID,
			Actor:     "user-1",
			Action:    models.AuditActionCancel,
			Reason:    "rain damage",
			CreatedAt: harvestDay.Add(time.Hour),
		}))

		entries, err := s.ListAudit(ctx, batch.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, models.AuditActionRestart, entries[0].Action)
		assert.Equal(t, "rain damage", entries[1].Reason)

		none, err := s.ListAudit(ctx, batch.ID+1)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestAtomicallyRollsBack(t *testing.T) {
	backends(t, func(t *testing.T, s process.Store) {
		ctx := context.Background()
		_, batch := seedBatch(t, s, "user-1")
		boom := errors.New("boom")

		err := s.Atomically(ctx, func(tx process.Store) error {
			loaded, err := tx.GetBatch(ctx, batch.ID)
			if err != nil {
				return err
			}
			loaded.Status = models.BatchStatusFinished
			if err := tx.SaveBatch(ctx, loaded); err != nil {
				return err
			}
			if _, err := tx.SaveStageRecord(ctx, &models.StageRecord{
				BatchID: batch.ID,
				Stage:   models.StageHulling,
				Status:  models.RecordStatusFinished,
				Payload: &models.HullingData{Date: harvestDay},
			}); err != nil {
				return err
			}
			return boom
		})
		assert.True(t, errors.Is(err, boom))

		loaded, err := s.GetBatch(ctx, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BatchStatusInProgress, loaded.Status)
		assert.Equal(t, 0, loaded.Version)

		records, err := s.ListBatchRecords(ctx, batch.ID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestAtomicallyCommits(t *testing.T) {
	backends(t, func(t *testing.T, s process.Store) {
		ctx := context.Background()
		_, batch := seedBatch(t, s, "user-1")

		err := s.Atomically(ctx, func(tx process.Store) error {
			loaded, err := tx.GetBatch(ctx, batch.ID)
			if err != nil {
				return err
			}
			loaded.CurrentStageID = 2
			return tx.SaveBatch(ctx, loaded)
		})
		require.NoError(t, err)

		loaded, err := s.GetBatch(ctx, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(2), loaded.CurrentStageID)
	})
}
