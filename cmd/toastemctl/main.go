package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styling
var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#6F4E37")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#0a84ff")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#30d158")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#ff453a")).
			Padding(0, 1)
)

const (
	viewMain        = "main"
	viewStages      = "stages"
	viewBatchInput  = "batch_input"
	viewBatch       = "batch"
	viewCancelInput = "cancel_input"
	viewAudit       = "audit"
)

// Backend is the part of the API the terminal client uses.
type Backend interface {
	CheckHealth() (bool, error)
	GetStages() ([]Stage, error)
	GetBatch(id uint) (*BatchProgress, error)
	GetAudit(id uint) ([]AuditEntry, error)
	RestartRecord(batchID, recordID uint) (*Record, error)
	SellBatch(id uint) (*Batch, error)
	CancelBatch(id uint, reason string) (*Batch, error)
}

// Model defines the application state
type Model struct {
	mainMenu    list.Model
	stageTable  table.Model
	batchTable  table.Model
	auditTable  table.Model
	textInput   textinput.Model
	spinner     spinner.Model
	client      Backend
	batch       *BatchProgress
	rowRecords  []uint
	loading     bool
	currentView string
	message     string
	error       string
}

// item represents a list item
type item struct {
	title, desc string
}

func (i item) FilterValue() string { return i.title }
func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }

func initialModel(client Backend) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	items := []list.Item{
		item{title: "Stages", desc: "List the processing stages"},
		item{title: "Open Batch", desc: "Inspect a batch and correct its records"},
		item{title: "Health", desc: "Check the API server"},
		item{title: "Exit", desc: "Exit the application"},
	}
	mainMenu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	mainMenu.Title = "toastem"

	stageTable := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 4},
			{Title: "Stage", Width: 20},
			{Title: "Spans time", Width: 12},
			{Title: "Multi record", Width: 12},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	batchTable := table.New(
		table.WithColumns([]table.Column{
			{Title: "", Width: 2},
			{Title: "Stage", Width: 18},
			{Title: "Record", Width: 8},
			{Title: "Status", Width: 12},
			{Title: "In kg", Width: 10},
			{Title: "Out kg", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(14),
	)
	auditTable := table.New(
		table.WithColumns([]table.Column{
			{Title: "When", Width: 20},
			{Title: "Action", Width: 12},
			{Title: "Record", Width: 8},
			{Title: "Actor", Width: 14},
			{Title: "Reason", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	ti := textinput.New()
	ti.CharLimit = 156
	ti.Width = 30

	return Model{
		mainMenu:    mainMenu,
		stageTable:  stageTable,
		batchTable:  batchTable,
		auditTable:  auditTable,
		textInput:   ti,
		spinner:     s,
		client:      client,
		currentView: viewMain,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles UI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.mainMenu.SetSize(msg.Width-h, msg.Height-v)
		return m, nil
	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case stagesMsg:
		m.loading = false
		m.stageTable.SetRows(stageRows(msg.stages))
		return m, nil
	case batchMsg:
		m.loading = false
		m.error = ""
		m.batch = msg.progress
		rows, records := batchRows(msg.progress)
		m.batchTable.SetRows(rows)
		m.rowRecords = records
		m.currentView = viewBatch
		return m, nil
	case auditMsg:
		m.loading = false
		m.auditTable.SetRows(auditRows(msg.entries))
		m.currentView = viewAudit
		return m, nil
	case errorMsg:
		m.loading = false
		m.error = msg.err
		m.message = ""
		return m, nil
	case confirmMsg:
		m.loading = false
		m.error = ""
		m.message = msg.message
		if m.batch != nil {
			return m, fetchBatch(m.client, m.batch.Batch.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.currentView {
	case viewMain:
		m.mainMenu, cmd = m.mainMenu.Update(msg)
	case viewStages:
		m.stageTable, cmd = m.stageTable.Update(msg)
	case viewBatch:
		m.batchTable, cmd = m.batchTable.Update(msg)
	case viewAudit:
		m.auditTable, cmd = m.auditTable.Update(msg)
	case viewBatchInput, viewCancelInput:
		m.textInput, cmd = m.textInput.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	typing := m.currentView == viewBatchInput || m.currentView == viewCancelInput

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit, true
	case "q":
		if !typing {
			return m, tea.Quit, true
		}
	case "esc":
		m.error = ""
		m.message = ""
		switch m.currentView {
		case viewAudit, viewCancelInput:
			m.currentView = viewBatch
		case viewMain:
		default:
			m.currentView = viewMain
		}
		m.textInput.Blur()
		return m, nil, true
	case "enter":
		switch m.currentView {
		case viewMain:
			selected, ok := m.mainMenu.SelectedItem().(item)
			if !ok {
				return m, nil, true
			}
			switch selected.title {
			case "Exit":
				return m, tea.Quit, true
			case "Stages":
				m.currentView = viewStages
				m.loading = true
				return m, fetchStages(m.client), true
			case "Open Batch":
				m.currentView = viewBatchInput
				m.textInput.Placeholder = "Batch id"
				m.textInput.SetValue("")
				m.textInput.Focus()
				return m, textinput.Blink, true
			case "Health":
				return m, checkHealth(m.client), true
			}
		case viewBatchInput:
			id, err := strconv.ParseUint(strings.TrimSpace(m.textInput.Value()), 10, 64)
			if err != nil || id == 0 {
				m.error = "Batch id must be a positive number"
				return m, nil, true
			}
			m.textInput.Blur()
			m.loading = true
			return m, fetchBatch(m.client, uint(id)), true
		case viewCancelInput:
			reason := strings.TrimSpace(m.textInput.Value())
			if reason == "" {
				m.error = "A cancellation reason is required"
				return m, nil, true
			}
			m.textInput.Blur()
			m.currentView = viewBatch
			m.loading = true
			return m, cancelBatch(m.client, m.batch.Batch.ID, reason), true
		}
	}

	if m.currentView != viewBatch || m.batch == nil {
		return m, nil, false
	}
	id := m.batch.Batch.ID
	switch msg.String() {
	case "r":
		recordID := m.selectedRecord()
		if recordID == 0 {
			m.error = "Select a row with a record to restart"
			return m, nil, true
		}
		m.loading = true
		return m, restartRecord(m.client, id, recordID), true
	case "s":
		m.loading = true
		return m, sellBatch(m.client, id), true
	case "x":
		m.currentView = viewCancelInput
		m.textInput.Placeholder = "Reason"
		m.textInput.SetValue("")
		m.textInput.Focus()
		return m, textinput.Blink, true
	case "a":
		m.loading = true
		return m, fetchAudit(m.client, id), true
	case "g":
		m.loading = true
		return m, fetchBatch(m.client, id), true
	}
	return m, nil, false
}

func (m Model) selectedRecord() uint {
	cursor := m.batchTable.Cursor()
	if cursor < 0 || cursor >= len(m.rowRecords) {
		return 0
	}
	return m.rowRecords[cursor]
}

// View renders the UI
func (m Model) View() string {
	footer := ""
	if m.loading {
		footer += "\n" + m.spinner.View() + " Loading..."
	}
	if m.message != "" {
		footer += "\n" + successStyle.Render(m.message)
	}
	if m.error != "" {
		footer += "\n" + errorStyle.Render(m.error)
	}

	switch m.currentView {
	case viewMain:
		return docStyle.Render(m.mainMenu.View() + footer)
	case viewStages:
		return docStyle.Render(titleStyle.Render("Stages") + "\n\n" + m.stageTable.View() + "\nPress 'esc' to go back" + footer)
	case viewBatchInput:
		return docStyle.Render(titleStyle.Render("Open Batch") + "\n\n" + m.textInput.View() + "\nPress 'enter' to open, 'esc' to go back" + footer)
	case viewBatch:
		return docStyle.Render(batchHeader(m.batch) + "\n\n" + m.batchTable.View() +
			"\n'r' restart record  's' sell  'x' cancel  'a' audit  'g' refresh  'esc' back" + footer)
	case viewCancelInput:
		return docStyle.Render(titleStyle.Render("Cancel Batch") + "\n\n" + m.textInput.View() + "\nPress 'enter' to confirm, 'esc' to abort" + footer)
	case viewAudit:
		return docStyle.Render(titleStyle.Render("Audit") + "\n\n" + m.auditTable.View() + "\nPress 'esc' to go back" + footer)
	default:
		return "Loading..."
	}
}

func batchHeader(p *BatchProgress) string {
	if p == nil {
		return titleStyle.Render("Batch")
	}
	b := p.Batch
	header := titleStyle.Render("Batch "+b.Code) + " " +
		infoStyle.Render(fmt.Sprintf("%s at %s", b.Status, p.CurrentStage.Label))
	if b.CancelReason != "" {
		header += "\nCancelled: " + b.CancelReason
	}
	return header
}

func stageRows(stages []Stage) []table.Row {
	rows := make([]table.Row, 0, len(stages))
	for _, s := range stages {
		rows = append(rows, table.Row{
			strconv.Itoa(s.Order), s.Label, yesNo(s.TimeSpanning), yesNo(s.MultiRecord),
		})
	}
	return rows
}

// batchRows renders one row per record, or a placeholder row for stages
// without records. The second result holds the record id of each row.
func batchRows(p *BatchProgress) ([]table.Row, []uint) {
	var (
		rows    []table.Row
		records []uint
	)
	for _, s := range p.Stages {
		marker := ""
		if s.ID == p.CurrentStage.ID {
			marker = ">"
		}
		if len(s.Records) == 0 {
			rows = append(rows, table.Row{marker, s.Label, "-", "-", "", ""})
			records = append(records, 0)
			continue
		}
		for _, r := range s.Records {
			status := r.StatusLabel()
			if r.Superseded {
				status = "superseded"
			}
			rows = append(rows, table.Row{
				marker,
				s.Label,
				strconv.FormatUint(uint64(r.ID), 10),
				status,
				formatWeight(r.InputWeight),
				formatWeight(r.OutputWeight),
			})
			records = append(records, r.ID)
		}
	}
	return rows, records
}

func auditRows(entries []AuditEntry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		record := ""
		if e.RecordID != 0 {
			record = strconv.FormatUint(uint64(e.RecordID), 10)
		}
		rows = append(rows, table.Row{
			e.CreatedAt.Format("2006-01-02 15:04"), e.Action, record, e.Actor, e.Reason,
		})
	}
	return rows
}

func formatWeight(w float64) string {
	if w == 0 {
		return ""
	}
	return strconv.FormatFloat(w, 'f', 2, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Custom message types for the tea.Model
type stagesMsg struct {
	stages []Stage
}

type batchMsg struct {
	progress *BatchProgress
}

type auditMsg struct {
	entries []AuditEntry
}

type errorMsg struct {
	err string
}

type confirmMsg struct {
	message string
}

func fetchStages(client Backend) tea.Cmd {
	return func() tea.Msg {
		stages, err := client.GetStages()
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching stages: %v", err)}
		}
		return stagesMsg{stages: stages}
	}
}

func fetchBatch(client Backend, id uint) tea.Cmd {
	return func() tea.Msg {
		progress, err := client.GetBatch(id)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching batch %d: %v", id, err)}
		}
		return batchMsg{progress: progress}
	}
}

func fetchAudit(client Backend, id uint) tea.Cmd {
	return func() tea.Msg {
		entries, err := client.GetAudit(id)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching audit: %v", err)}
		}
		return auditMsg{entries: entries}
	}
}

func restartRecord(client Backend, batchID, recordID uint) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.RestartRecord(batchID, recordID); err != nil {
			return errorMsg{err: fmt.Sprintf("Error restarting record %d: %v", recordID, err)}
		}
		return confirmMsg{message: fmt.Sprintf("Record %d reopened", recordID)}
	}
}

func sellBatch(client Backend, id uint) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.SellBatch(id); err != nil {
			return errorMsg{err: fmt.Sprintf("Error selling batch: %v", err)}
		}
		return confirmMsg{message: "Batch sold unfinished"}
	}
}

func cancelBatch(client Backend, id uint, reason string) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.CancelBatch(id, reason); err != nil {
			return errorMsg{err: fmt.Sprintf("Error cancelling batch: %v", err)}
		}
		return confirmMsg{message: "Batch cancelled"}
	}
}

func checkHealth(client Backend) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.CheckHealth(); err != nil {
			return errorMsg{err: fmt.Sprintf("API unavailable: %v", err)}
		}
		return confirmMsg{message: "API server is healthy"}
	}
}

func main() {
	client, err := NewApiClient()
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	p := tea.NewProgram(initialModel(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}
