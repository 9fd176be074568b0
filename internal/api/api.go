package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"toastem/internal/catalog"
	"toastem/internal/events"
	"toastem/internal/models"
	"toastem/internal/monitoring"
	"toastem/internal/process"
)

// Processor is the part of the processing core the handlers drive
type Processor interface {
	Catalog() *catalog.Catalog
	CreateFarm(ctx context.Context, name, ownerID string) (*models.Farm, error)
	CreateBatch(ctx context.Context, farmID uint, in process.BatchInput) (*models.Batch, error)
	Submit(ctx context.Context, batchID uint, in process.StageInput) (*process.Outcome, error)
	CompleteDrying(ctx context.Context, batchID uint, in process.DryingCompletion) (*process.Outcome, error)
	Restart(ctx context.Context, batchID, recordID uint, actor string) (*models.StageRecord, error)
	Supersede(ctx context.Context, batchID, recordID uint, actor string) (*models.StageRecord, error)
	Cancel(ctx context.Context, batchID uint, reason, actor string) (*models.Batch, error)
	Sell(ctx context.Context, batchID uint, actor string) (*models.Batch, error)
	Reconcile(ctx context.Context, batchID uint, actor string) (*models.Batch, bool, error)
	Progress(ctx context.Context, batchID uint) (*process.BatchProgress, error)
	PendingRecord(ctx context.Context, batchID uint, stage string) (*models.StageRecord, error)
	Audit(ctx context.Context, batchID uint) ([]*models.AuditEntry, error)
}

// Ownership resolves who may act on farms and batches
type Ownership interface {
	GetFarm(ctx context.Context, id uint) (*models.Farm, error)
	OwnerOf(ctx context.Context, batchID uint) (string, error)
}

// BatchAPI represents the HTTP API of the batch processing service
type BatchAPI struct {
	Router    *gin.Engine
	Processor Processor
	Owners    Ownership
	Hub       *events.Hub
	Monitor   *monitoring.Monitor
	secret    []byte
}

// NewBatchAPI creates the API and its routes. hub and monitor may be nil,
// which disables the events and monitor endpoints.
func NewBatchAPI(p Processor, owners Ownership, secret string, hub *events.Hub, monitor *monitoring.Monitor) *BatchAPI {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := &BatchAPI{
		Router:    router,
		Processor: p,
		Owners:    owners,
		Hub:       hub,
		Monitor:   monitor,
		secret:    []byte(secret),
	}

	api.setupRoutes()
	return api
}

// setupRoutes configures all API endpoints
func (a *BatchAPI) setupRoutes() {
	a.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "toastem API is running"})
	})

	v1 := a.Router.Group("/api/v1", AuthMiddleware(a.secret))
	{
		v1.GET("/stages", a.ListStages)
		v1.POST("/farms", a.CreateFarm)
		v1.POST("/farms/:farmID/batches", a.requireFarmOwner, a.CreateBatch)
		if a.Monitor != nil {
			v1.GET("/monitor", a.GetMonitor)
		}

		batches := v1.Group("/batches/:id", OwnershipMiddleware(a.Owners))
		{
			batches.GET("", a.GetBatch)
			batches.POST("/stages/:stage", a.SubmitStage)
			batches.GET("/stages/:stage/pending", a.GetPendingRecord)
			batches.POST("/drying/complete", a.CompleteDrying)
			batches.POST("/records/:recordID/restart", a.RestartRecord)
			batches.POST("/records/:recordID/supersede", a.SupersedeRecord)
			batches.POST("/cancel", a.CancelBatch)
			batches.POST("/sell", a.SellBatch)
			batches.POST("/reconcile", a.ReconcileBatch)
			batches.GET("/audit", a.GetAudit)
			if a.Hub != nil {
				batches.GET("/events", a.StreamEvents)
			}
		}
	}
}
