package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"toastem/internal/catalog"
	"toastem/internal/models"
	"toastem/internal/process"
)

type stageView struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Label        string `json:"label"`
	Order        int    `json:"order"`
	TimeSpanning bool   `json:"time_spanning"`
	MultiRecord  bool   `json:"multi_record"`
}

func newStageView(s catalog.StageDefinition) stageView {
	return stageView{
		ID:           s.ID,
		Name:         s.Name,
		Label:        s.Label,
		Order:        s.Order,
		TimeSpanning: s.TimeSpanning,
		MultiRecord:  s.MultiRecord,
	}
}

type stageProgressView struct {
	stageView
	Records []*models.StageRecord `json:"records"`
}

type progressView struct {
	Batch        *models.Batch       `json:"batch"`
	CurrentStage stageView           `json:"current_stage"`
	Stages       []stageProgressView `json:"stages"`
}

type outcomeView struct {
	Record     *models.StageRecord `json:"record"`
	Batch      *models.Batch       `json:"batch"`
	NextStage  string              `json:"next_stage"`
	NextStatus models.BatchStatus  `json:"next_status"`
}

type createFarmRequest struct {
	Name string `json:"name"`
}

type createBatchRequest struct {
	HarvestDate   time.Time `json:"harvest_date"`
	InitialWeight float64   `json:"initial_weight"`
	CoffeeType    string    `json:"coffee_type"`
	HarvestMethod string    `json:"harvest_method"`
	Notes         string    `json:"notes"`
}

type submitStageRequest struct {
	OutputWeight float64         `json:"output_weight"`
	Notes        string          `json:"notes"`
	Data         json.RawMessage `json:"data"`
}

type completeDryingRequest struct {
	EndDate       time.Time `json:"end_date"`
	FinalHumidity *float64  `json:"final_humidity"`
	OutputWeight  float64   `json:"output_weight"`
	SaleDecision  bool      `json:"sale_decision"`
	Notes         string    `json:"notes"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func batchID(c *gin.Context) uint {
	return c.MustGet(batchKey).(uint)
}

func actor(c *gin.Context) string {
	return c.GetString(userKey)
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (a *BatchAPI) ListStages(c *gin.Context) {
	stages := a.Processor.Catalog().List()
	views := make([]stageView, 0, len(stages))
	for _, s := range stages {
		views = append(views, newStageView(s))
	}
	c.JSON(http.StatusOK, views)
}

func (a *BatchAPI) CreateFarm(c *gin.Context) {
	var req createFarmRequest
	if !bindJSON(c, &req) {
		return
	}
	farm, err := a.Processor.CreateFarm(c.Request.Context(), req.Name, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, farm)
}

func (a *BatchAPI) CreateBatch(c *gin.Context) {
	farmID, _ := strconv.ParseUint(c.Param("farmID"), 10, 64)
	var req createBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	batch, err := a.Processor.CreateBatch(c.Request.Context(), uint(farmID), process.BatchInput{
		HarvestDate:   req.HarvestDate,
		InitialWeight: req.InitialWeight,
		CoffeeType:    req.CoffeeType,
		HarvestMethod: req.HarvestMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (a *BatchAPI) GetBatch(c *gin.Context) {
	progress, err := a.Processor.Progress(c.Request.Context(), batchID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	view := progressView{
		Batch:        progress.Batch,
		CurrentStage: newStageView(progress.CurrentStage),
	}
	for _, s := range progress.Stages {
		records := s.Records
		if records == nil {
			records = []*models.StageRecord{}
		}
		view.Stages = append(view.Stages, stageProgressView{stageView: newStageView(s.Stage), Records: records})
	}
	c.JSON(http.StatusOK, view)
}

// SubmitStage registers the stage named in the path. The data object is
// decoded into that stage's payload type.
func (a *BatchAPI) SubmitStage(c *gin.Context) {
	stage := c.Param("stage")
	if !a.Processor.Catalog().Has(stage) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown stage " + stage})
		return
	}
	var req submitStageRequest
	if !bindJSON(c, &req) {
		return
	}

	in := process.StageInput{Stage: stage, OutputWeight: req.OutputWeight, Notes: req.Notes}
	if stage != models.StageHarvest && len(req.Data) > 0 && string(req.Data) != "null" {
		payload, err := models.DecodePayload(stage, req.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in.Payload = payload
	}

	out, err := a.Processor.Submit(c.Request.Context(), batchID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOutcomeView(out))
}

func (a *BatchAPI) CompleteDrying(c *gin.Context) {
	var req completeDryingRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := a.Processor.CompleteDrying(c.Request.Context(), batchID(c), process.DryingCompletion{
		EndDate:       req.EndDate,
		FinalHumidity: req.FinalHumidity,
		OutputWeight:  req.OutputWeight,
		SaleDecision:  req.SaleDecision,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOutcomeView(out))
}

func (a *BatchAPI) GetPendingRecord(c *gin.Context) {
	record, err := a.Processor.PendingRecord(c.Request.Context(), batchID(c), c.Param("stage"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (a *BatchAPI) RestartRecord(c *gin.Context) {
	a.correct(c, a.Processor.Restart)
}

func (a *BatchAPI) SupersedeRecord(c *gin.Context) {
	a.correct(c, a.Processor.Supersede)
}

func (a *BatchAPI) correct(c *gin.Context, op func(ctx context.Context, batchID, recordID uint, actor string) (*models.StageRecord, error)) {
	recordID, err := strconv.ParseUint(c.Param("recordID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	record, err := op(c.Request.Context(), batchID(c), uint(recordID), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (a *BatchAPI) CancelBatch(c *gin.Context) {
	var req cancelRequest
	if !bindJSON(c, &req) {
		return
	}
	batch, err := a.Processor.Cancel(c.Request.Context(), batchID(c), req.Reason, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (a *BatchAPI) SellBatch(c *gin.Context) {
	batch, err := a.Processor.Sell(c.Request.Context(), batchID(c), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (a *BatchAPI) ReconcileBatch(c *gin.Context) {
	batch, changed, err := a.Processor.Reconcile(c.Request.Context(), batchID(c), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch, "changed": changed})
}

func (a *BatchAPI) GetAudit(c *gin.Context) {
	entries, err := a.Processor.Audit(c.Request.Context(), batchID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (a *BatchAPI) StreamEvents(c *gin.Context) {
	a.Hub.Serve(c.Writer, c.Request, batchID(c))
}

func (a *BatchAPI) GetMonitor(c *gin.Context) {
	c.JSON(http.StatusOK, a.Monitor.GetMetrics())
}

func newOutcomeView(out *process.Outcome) outcomeView {
	return outcomeView{
		Record:     out.Record,
		Batch:      out.Batch,
		NextStage:  out.NextStage,
		NextStatus: out.NextStatus,
	}
}
