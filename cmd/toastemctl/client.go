package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"toastem/internal/api"
)

// ApiClient talks to the toastem batch API on behalf of one user.
type ApiClient struct {
	httpClient *http.Client
	BaseURL    string
	token      string
}

// NewApiClient reads TOASTEM_API_URL and TOASTEM_TOKEN. Without a token it
// mints one from TOASTEM_JWT_SECRET for TOASTEM_USER.
func NewApiClient() (*ApiClient, error) {
	baseURL := os.Getenv("TOASTEM_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	token := os.Getenv("TOASTEM_TOKEN")
	if token == "" {
		secret := os.Getenv("TOASTEM_JWT_SECRET")
		if secret == "" {
			return nil, fmt.Errorf("set TOASTEM_TOKEN or TOASTEM_JWT_SECRET")
		}
		user := os.Getenv("TOASTEM_USER")
		if user == "" {
			user = os.Getenv("USER")
		}
		var err error
		token, err = api.IssueToken(secret, user, 12*time.Hour)
		if err != nil {
			return nil, err
		}
	}

	return newClient(baseURL, token), nil
}

func newClient(baseURL, token string) *ApiClient {
	return &ApiClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    baseURL,
		token:      token,
	}
}

// CheckHealth checks if the API is up and running
func (c *ApiClient) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.BaseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("API health check failed with status code: %d", resp.StatusCode)
	}
	return true, nil
}

// Batch mirrors the batch resource
type Batch struct {
	ID             uint    `json:"id"`
	Code           string  `json:"code"`
	FarmID         uint    `json:"farm_id"`
	InitialWeight  float64 `json:"initial_weight"`
	Status         string  `json:"status"`
	CurrentStageID uint    `json:"current_stage_id"`
	CancelReason   string  `json:"cancel_reason,omitempty"`
	Version        int     `json:"version"`
}

// Stage mirrors one catalog entry
type Stage struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Label        string `json:"label"`
	Order        int    `json:"order"`
	TimeSpanning bool   `json:"time_spanning"`
	MultiRecord  bool   `json:"multi_record"`
}

// Record mirrors a stage record. Data stays raw since its shape depends on
// the stage.
type Record struct {
	ID           uint            `json:"id"`
	Stage        string          `json:"stage"`
	Status       int             `json:"status"`
	InputWeight  float64         `json:"input_weight"`
	OutputWeight float64         `json:"output_weight"`
	Notes        string          `json:"notes"`
	Superseded   bool            `json:"superseded"`
	Data         json.RawMessage `json:"data"`
}

// StatusLabel renders the numeric record status.
func (r Record) StatusLabel() string {
	switch r.Status {
	case 1:
		return "pending"
	case 2:
		return "in progress"
	case 3:
		return "finished"
	}
	return "unknown"
}

type StageProgress struct {
	Stage
	Records []Record `json:"records"`
}

type BatchProgress struct {
	Batch        Batch           `json:"batch"`
	CurrentStage Stage           `json:"current_stage"`
	Stages       []StageProgress `json:"stages"`
}

type AuditEntry struct {
	ID             string    `json:"id"`
	RecordID       uint      `json:"record_id,omitempty"`
	Actor          string    `json:"actor"`
	Action         string    `json:"action"`
	Reason         string    `json:"reason,omitempty"`
	PreviousValues string    `json:"previous_values"`
	CreatedAt      time.Time `json:"created_at"`
}

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError carries the decoded error body of a failed request.
type APIError struct {
	StatusCode int
	Body       struct {
		Error      string      `json:"error"`
		Stage      string      `json:"stage"`
		Code       string      `json:"code"`
		Reason     string      `json:"reason"`
		Violations []Violation `json:"violations"`
	}
}

func (e *APIError) Error() string {
	b := e.Body
	switch {
	case len(b.Violations) > 0:
		parts := make([]string, 0, len(b.Violations))
		for _, v := range b.Violations {
			parts = append(parts, v.Field+": "+v.Message)
		}
		return fmt.Sprintf("%s (%d): %s", b.Stage, e.StatusCode, strings.Join(parts, "; "))
	case b.Reason != "":
		return fmt.Sprintf("%s (%d): %s", b.Code, e.StatusCode, b.Reason)
	case b.Error != "":
		return fmt.Sprintf("%s (%d)", b.Error, e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// GetStages lists the configured stages in processing order
func (c *ApiClient) GetStages() ([]Stage, error) {
	var stages []Stage
	if err := c.do(http.MethodGet, "/api/v1/stages", nil, &stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// GetBatch fetches a batch together with its records grouped by stage
func (c *ApiClient) GetBatch(id uint) (*BatchProgress, error) {
	var progress BatchProgress
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/v1/batches/%d", id), nil, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// GetAudit fetches the correction and closure history of a batch
func (c *ApiClient) GetAudit(id uint) ([]AuditEntry, error) {
	var entries []AuditEntry
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/v1/batches/%d/audit", id), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// RestartRecord reopens a finished record for correction
func (c *ApiClient) RestartRecord(batchID, recordID uint) (*Record, error) {
	var record Record
	path := fmt.Sprintf("/api/v1/batches/%d/records/%d/restart", batchID, recordID)
	if err := c.do(http.MethodPost, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *ApiClient) SellBatch(id uint) (*Batch, error) {
	var batch Batch
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/v1/batches/%d/sell", id), nil, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (c *ApiClient) CancelBatch(id uint, reason string) (*Batch, error) {
	var batch Batch
	body := map[string]string{"reason": reason}
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/v1/batches/%d/cancel", id), body, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (c *ApiClient) do(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewBuffer(data)
	} else if method == http.MethodPost {
		body = bytes.NewBufferString("{}")
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr.Body)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
