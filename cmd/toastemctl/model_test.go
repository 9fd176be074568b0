package main

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	progress  *BatchProgress
	restarted []uint
	sold      bool
	reason    string
	err       error
}

func (f *fakeBackend) CheckHealth() (bool, error) { return f.err == nil, f.err }
func (f *fakeBackend) GetStages() ([]Stage, error) {
	return []Stage{{ID: 1, Name: "harvest", Label: "Harvest", Order: 1}}, f.err
}
func (f *fakeBackend) GetBatch(id uint) (*BatchProgress, error) { return f.progress, f.err }
func (f *fakeBackend) GetAudit(id uint) ([]AuditEntry, error) {
	return []AuditEntry{{Action: "restart", RecordID: 2, Actor: "grower-1"}}, f.err
}
func (f *fakeBackend) RestartRecord(batchID, recordID uint) (*Record, error) {
	f.restarted = append(f.restarted, recordID)
	return &Record{ID: recordID, Status: 1}, f.err
}
func (f *fakeBackend) SellBatch(id uint) (*Batch, error) {
	f.sold = true
	return &Batch{ID: id, Status: "sold_unfinished"}, f.err
}
func (f *fakeBackend) CancelBatch(id uint, reason string) (*Batch, error) {
	f.reason = reason
	return &Batch{ID: id, Status: "cancelled"}, f.err
}

func sampleProgress() *BatchProgress {
	harvest := Stage{ID: 1, Name: "harvest", Label: "Harvest", Order: 1}
	depulping := Stage{ID: 2, Name: "depulping", Label: "Depulping", Order: 2}
	fermentation := Stage{ID: 3, Name: "fermentation", Label: "Fermentation", Order: 3}
	return &BatchProgress{
		Batch:        Batch{ID: 7, Code: "F1-2024-0001", Status: "in_progress", CurrentStageID: 3},
		CurrentStage: fermentation,
		Stages: []StageProgress{
			{Stage: harvest, Records: []Record{{ID: 1, Status: 3, OutputWeight: 100}}},
			{Stage: depulping, Records: []Record{{ID: 2, Status: 3, InputWeight: 100, OutputWeight: 85}}},
			{Stage: fermentation},
		},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send feeds msg to the model and runs the returned command once
func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	if cmd == nil {
		return model, nil
	}
	return model, cmd()
}

func openBatch(t *testing.T, backend *fakeBackend) Model {
	t.Helper()
	m := initialModel(backend)
	m.currentView = viewBatchInput
	m.textInput.Focus()
	m.textInput.SetValue("7")

	m, msg := send(t, m, key("enter"))
	require.IsType(t, batchMsg{}, msg)
	m, _ = send(t, m, msg)
	return m
}

func TestBatchRows(t *testing.T) {
	rows, records := batchRows(sampleProgress())

	require.Len(t, rows, 3)
	assert.Equal(t, []uint{1, 2, 0}, records)
	assert.Equal(t, "Depulping", rows[1][1])
	assert.Equal(t, "85.00", rows[1][5])
	assert.Equal(t, ">", rows[2][0])
	assert.Equal(t, "-", rows[2][2])
}

func TestOpenBatchRejectsBadID(t *testing.T) {
	m := initialModel(&fakeBackend{})
	m.currentView = viewBatchInput
	m.textInput.Focus()
	m.textInput.SetValue("abc")

	m, msg := send(t, m, key("enter"))
	assert.Nil(t, msg)
	assert.Equal(t, viewBatchInput, m.currentView)
	assert.NotEmpty(t, m.error)
}

func TestOpenBatch(t *testing.T) {
	m := openBatch(t, &fakeBackend{progress: sampleProgress()})

	assert.Equal(t, viewBatch, m.currentView)
	assert.False(t, m.loading)
	assert.Contains(t, m.View(), "F1-2024-0001")
	assert.Contains(t, m.View(), "Fermentation")
}

func TestRestartSelectedRecord(t *testing.T) {
	backend := &fakeBackend{progress: sampleProgress()}
	m := openBatch(t, backend)

	m.batchTable.SetCursor(1)
	m, msg := send(t, m, key("r"))
	require.IsType(t, confirmMsg{}, msg)
	assert.Equal(t, []uint{2}, backend.restarted)

	m, msg = send(t, m, msg)
	assert.Equal(t, "Record 2 reopened", m.message)
	assert.IsType(t, batchMsg{}, msg)
}

func TestRestartWithoutRecord(t *testing.T) {
	backend := &fakeBackend{progress: sampleProgress()}
	m := openBatch(t, backend)

	m.batchTable.SetCursor(2)
	m, msg := send(t, m, key("r"))
	assert.Nil(t, msg)
	assert.Empty(t, backend.restarted)
	assert.NotEmpty(t, m.error)
}

func TestCancelNeedsReason(t *testing.T) {
	backend := &fakeBackend{progress: sampleProgress()}
	m := openBatch(t, backend)

	m, _ = send(t, m, key("x"))
	require.Equal(t, viewCancelInput, m.currentView)

	m, msg := send(t, m, key("enter"))
	assert.Nil(t, msg)
	assert.NotEmpty(t, m.error)

	m.textInput.SetValue("flooded warehouse")
	m, msg = send(t, m, key("enter"))
	require.IsType(t, confirmMsg{}, msg)
	assert.Equal(t, "flooded warehouse", backend.reason)
	assert.Equal(t, viewBatch, m.currentView)
}

func TestSellAndAudit(t *testing.T) {
	backend := &fakeBackend{progress: sampleProgress()}
	m := openBatch(t, backend)

	_, msg := send(t, m, key("s"))
	require.IsType(t, confirmMsg{}, msg)
	assert.True(t, backend.sold)

	m, msg = send(t, m, key("a"))
	require.IsType(t, auditMsg{}, msg)
	m, _ = send(t, m, msg)
	assert.Equal(t, viewAudit, m.currentView)
	assert.Len(t, m.auditTable.Rows(), 1)

	m, _ = send(t, m, key("esc"))
	assert.Equal(t, viewBatch, m.currentView)
}

func TestBackendErrorShown(t *testing.T) {
	backend := &fakeBackend{progress: sampleProgress()}
	m := openBatch(t, backend)
	backend.err = errors.New("boom")

	m, msg := send(t, m, key("s"))
	require.IsType(t, errorMsg{}, msg)
	m, _ = send(t, m, msg)
	assert.Contains(t, m.error, "boom")
	assert.Contains(t, m.View(), "boom")
}
