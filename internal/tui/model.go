// Package tui is the terminal presentation layer: one flat working
// list driven through the five stations of the method (build, scan,
// act, maintain, reflect).
package tui

import (
	"context"
	"fmt"
	imgcolor "image/color"
	"strconv"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"

	"github.com/evanschultz/rz/internal/app"
	"github.com/evanschultz/rz/internal/domain"
)

// Service is the slice of the task store the presentation layer drives.
type Service interface {
	VisibleTasks(context.Context) ([]domain.Task, error)
	GetTask(context.Context, string) (domain.Task, error)
	CreateTask(context.Context, app.CreateTaskInput) (domain.Task, error)
	UpdateTask(context.Context, app.UpdateTaskInput) (domain.Task, error)
	Mark(context.Context, string) (domain.Task, error)
	Unmark(context.Context, string) (domain.Task, error)
	Reenter(context.Context, string) (domain.Task, error)
	Complete(context.Context, string) (domain.Task, error)
	Archive(context.Context, string) (domain.Task, error)
	ToggleCollapse(context.Context, string) (domain.Task, error)
	UnlinkChildren(context.Context, string) (domain.Task, error)
	Split(context.Context, app.SplitInput) (app.SplitResult, error)
	StartTimer(context.Context, string) (domain.Task, error)
	StopTimer(context.Context, string) (domain.Task, error)
	ProjectRollup(context.Context, string) (domain.Rollup, error)
	BeginScan(context.Context, domain.ScanDirection) (*domain.ScanSession, error)
	AdvanceScan(context.Context, bool) (app.ScanStep, error)
	CancelScan()
	ToggleRecent(context.Context, string) (domain.Task, error)
	Scan() *domain.ScanSession
	TodayStats(context.Context) (domain.DayStats, error)
	Ledger(context.Context) (domain.DailyLedger, error)
	Metrics(context.Context) (domain.Metrics, error)
	Settings(context.Context) (domain.Settings, error)
	UpdateSettings(context.Context, domain.Settings) (domain.Settings, error)
	GuideProgress(context.Context) (domain.GuideProgress, error)
	AdvanceGuide(context.Context) (domain.GuideProgress, error)
	ResetGuide(context.Context) error
}

// inputMode represents the active view or input dialog.
type inputMode int

const (
	modeNone inputMode = iota
	modeAddTask
	modeEditTask
	modeTaskInfo
	modeSplit
	modeScan
	modeReflect
	modeSettings
	modeGuide
	modeConfirmArchive
)

// settings view rows in cursor order.
const (
	settingsRowDirection = iota
	settingsRowTheme
	settingsRowSplitMode
	settingsRowInheritNotes
	settingsRowCount
)

// reflectHistoryDays bounds the reflect view's daily table.
const reflectHistoryDays = 7

// splitModeCycle is the tab order of the parent-fate choices in the
// split dialog.
var splitModeCycle = []domain.SplitMode{
	domain.SplitReplace,
	domain.SplitKeep,
	domain.SplitArchive,
}

// Model represents model data used by this package.
type Model struct {
	svc Service

	ready  bool
	width  int
	height int
	err    error

	status string

	help help.Model
	keys keyMap

	tasks    []domain.Task
	selected int
	settings domain.Settings
	guide    domain.GuideProgress
	today    domain.DayStats

	mode inputMode

	addInput      textinput.Model
	editInput     textinput.Model
	editingTaskID string

	splitInput   textarea.Model
	splitTaskID  string
	splitMode    domain.SplitMode
	splitInherit bool

	infoTaskID string
	infoRollup domain.Rollup

	scan          *domain.ScanSession
	scanTask      domain.Task
	lastTouchedID string

	ledger  domain.DailyLedger
	metrics domain.Metrics

	settingsCursor int
	confirmTaskID  string
	confirmText    string

	markdown markdownRenderer
	now      time.Time
	ticking  bool
}

// loadedMsg carries the working list and persisted preferences.
type loadedMsg struct {
	tasks    []domain.Task
	settings domain.Settings
	guide    domain.GuideProgress
	today    domain.DayStats
	err      error
}

// actionMsg carries the outcome of one store mutation.
type actionMsg struct {
	err    error
	status string
	reload bool
}

// scanStartedMsg carries a freshly begun scan session.
type scanStartedMsg struct {
	session *domain.ScanSession
	err     error
}

// scanAdvancedMsg carries one advance outcome and the updated session.
type scanAdvancedMsg struct {
	step    app.ScanStep
	session *domain.ScanSession
	err     error
}

// scanPreviewMsg carries the task under the scan cursor.
type scanPreviewMsg struct {
	task domain.Task
}

// reflectLoadedMsg carries the daily ledger and lifetime counters.
type reflectLoadedMsg struct {
	today   domain.DayStats
	ledger  domain.DailyLedger
	metrics domain.Metrics
	err     error
}

// rollupMsg carries a parent's child aggregate for the info view.
type rollupMsg struct {
	rollup domain.Rollup
	err    error
}

// guideMsg carries updated guide progress.
type guideMsg struct {
	progress domain.GuideProgress
	err      error
}

// tickMsg drives the running-timer readout refresh.
type tickMsg time.Time

// NewModel constructs a new value for this package.
func NewModel(svc Service) Model {
	h := help.New()
	h.ShowAll = false

	addInput := textinput.New()
	addInput.Prompt = "> "
	addInput.Placeholder = "task text"
	addInput.CharLimit = 240

	editInput := textinput.New()
	editInput.Prompt = "> "
	editInput.Placeholder = "text | notes | resistance | level | tags"
	editInput.CharLimit = 480

	splitInput := textarea.New()
	splitInput.Placeholder = "one child task per line"
	splitInput.ShowLineNumbers = false
	splitInput.SetHeight(6)

	return Model{
		svc:        svc,
		status:     "loading...",
		help:       h,
		keys:       newKeyMap(),
		addInput:   addInput,
		editInput:  editInput,
		splitInput: splitInput,
		settings:   domain.DefaultSettings(),
		now:        time.Now(),
	}
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		m.splitInput.SetWidth(max(24, min(72, m.width-8)))
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.tasks = msg.tasks
		m.settings = msg.settings
		m.guide = msg.guide
		m.today = msg.today
		m.selected = clamp(m.selected, 0, len(m.tasks)-1)
		if m.status == "" || m.status == "loading..." {
			m.status = "ready"
		}
		if !m.ticking && anyRunningTimer(m.tasks) {
			m.ticking = true
			return m, scheduleTick()
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		if msg.status != "" {
			m.status = msg.status
		}
		if msg.reload {
			return m, m.loadData
		}
		return m, nil

	case scanStartedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.mode = modeScan
		m.scan = msg.session
		m.scanTask = domain.Task{}
		m.lastTouchedID = ""
		m.status = "scan started"
		return m, m.loadScanPreview
	case scanAdvancedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		if msg.step.Task.ID != "" {
			m.lastTouchedID = msg.step.Task.ID
		}
		if msg.step.Completed {
			m.mode = modeNone
			m.scan = nil
			m.scanTask = domain.Task{}
			m.status = "scan complete"
			return m, m.loadData
		}
		m.scan = msg.session
		return m, m.loadScanPreview

	case scanPreviewMsg:
		m.scanTask = msg.task
		return m, nil

	case reflectLoadedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.today = msg.today
		m.ledger = msg.ledger
		m.metrics = msg.metrics
		m.mode = modeReflect
		m.status = "daily stats"
		return m, nil

	case rollupMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.infoRollup = msg.rollup
		return m, nil

	case guideMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.guide = msg.progress
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if anyRunningTimer(m.tasks) {
			return m, scheduleTick()
		}
		m.ticking = false
		return m, nil

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleInputModeKey(msg)
		}
		return m.handleNormalModeKey(msg)

	default:
		return m, nil
	}
}

// handleNormalModeKey handles keys while the working list is focused.
func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadData
	case key.Matches(msg, m.keys.moveDown):
		if m.selected < len(m.tasks)-1 {
			m.selected++
		}
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case key.Matches(msg, m.keys.addTask):
		m.mode = modeAddTask
		m.addInput.SetValue("")
		m.status = "new task"
		return m, m.addInput.Focus()
	case key.Matches(msg, m.keys.editTask):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		m.mode = modeEditTask
		m.editingTaskID = task.ID
		m.editInput.SetValue(formatTaskEditInput(task))
		m.status = "edit task"
		return m, m.editInput.Focus()
	case key.Matches(msg, m.keys.taskInfo):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		m.mode = modeTaskInfo
		m.infoTaskID = task.ID
		m.infoRollup = domain.Rollup{}
		m.status = "task info"
		if len(task.ChildIDs) > 0 {
			return m, m.loadRollup(task.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.toggleMark):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		if task.Marked {
			return m, m.taskAction("unmarked", m.svc.Unmark, task.ID)
		}
		return m, m.taskAction("marked", m.svc.Mark, task.ID)
	case key.Matches(msg, m.keys.completeTask):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		return m, m.taskAction("completed", m.svc.Complete, task.ID)
	case key.Matches(msg, m.keys.archiveTask):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		m.mode = modeConfirmArchive
		m.confirmTaskID = task.ID
		m.confirmText = task.Text
		m.status = "confirm archive"
		return m, nil
	case key.Matches(msg, m.keys.reenterTask):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		return m, m.taskAction("re-entered at end of list", m.svc.Reenter, task.ID)
	case key.Matches(msg, m.keys.splitTask):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		m.mode = modeSplit
		m.splitTaskID = task.ID
		m.splitMode = m.settings.SplitMode
		m.splitInherit = m.settings.InheritNotesOnSplit
		m.splitInput.SetValue("")
		m.status = "split task"
		return m, m.splitInput.Focus()
	case key.Matches(msg, m.keys.toggleTimer):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		if task.OpenTimer() >= 0 {
			return m, m.taskAction("timer stopped", m.svc.StopTimer, task.ID)
		}
		return m, m.taskAction("timer started", m.svc.StartTimer, task.ID)
	case key.Matches(msg, m.keys.toggleCollapse):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		return m, m.taskAction("collapse toggled", m.svc.ToggleCollapse, task.ID)
	case key.Matches(msg, m.keys.unlinkChildren):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		if len(task.ChildIDs) == 0 {
			m.status = "task has no children"
			return m, nil
		}
		return m, m.taskAction("children unlinked", m.svc.UnlinkChildren, task.ID)
	case key.Matches(msg, m.keys.yankText):
		task, ok := m.selectedTask()
		if !ok {
			m.status = "no task selected"
			return m, nil
		}
		if err := clipboard.WriteAll(task.Text); err != nil {
			m.status = "yank failed: " + err.Error()
			return m, nil
		}
		m.status = fmt.Sprintf("yanked %q", truncate(task.Text, 32))
		return m, nil
	case key.Matches(msg, m.keys.beginScan):
		m.help.ShowAll = false
		return m, m.startScan
	case key.Matches(msg, m.keys.reflect):
		m.help.ShowAll = false
		return m, m.loadReflect
	case key.Matches(msg, m.keys.settings):
		m.mode = modeSettings
		m.settingsCursor = 0
		m.status = "settings"
		return m, nil
	case key.Matches(msg, m.keys.guide):
		m.mode = modeGuide
		m.status = "guide"
		return m, nil
	default:
		return m, nil
	}
}

// handleInputModeKey dispatches keys to the active view or dialog.
func (m Model) handleInputModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeAddTask:
		return m.handleAddTaskKey(msg)
	case modeEditTask:
		return m.handleEditTaskKey(msg)
	case modeSplit:
		return m.handleSplitKey(msg)
	case modeScan:
		return m.handleScanKey(msg)
	case modeSettings:
		return m.handleSettingsKey(msg)
	case modeGuide:
		return m.handleGuideKey(msg)
	case modeTaskInfo, modeReflect:
		switch msg.String() {
		case "esc", "q", "enter", "i", "R":
			m.mode = modeNone
			m.status = "ready"
		}
		return m, nil
	case modeConfirmArchive:
		switch msg.String() {
		case "y", "Y", "enter":
			taskID := m.confirmTaskID
			m.mode = modeNone
			m.confirmTaskID = ""
			return m, m.taskAction("archived", m.svc.Archive, taskID)
		case "n", "N", "esc":
			m.mode = modeNone
			m.confirmTaskID = ""
			m.status = "archive cancelled"
		}
		return m, nil
	default:
		m.mode = modeNone
		return m, nil
	}
}

func (m Model) handleAddTaskKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNone
		m.addInput.Blur()
		m.status = "ready"
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.addInput.Value())
		if text == "" {
			m.status = "task text required"
			return m, nil
		}
		m.mode = modeNone
		m.addInput.Blur()
		return m, m.createTask(text)
	default:
		var cmd tea.Cmd
		m.addInput, cmd = m.addInput.Update(msg)
		return m, cmd
	}
}

func (m Model) handleEditTaskKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNone
		m.editInput.Blur()
		m.status = "ready"
		return m, nil
	case "enter":
		current, ok := m.taskByID(m.editingTaskID)
		if !ok {
			m.mode = modeNone
			m.editInput.Blur()
			m.status = "task is gone"
			return m, m.loadData
		}
		in, err := parseTaskEditInput(m.editInput.Value(), current)
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.mode = modeNone
		m.editInput.Blur()
		return m, func() tea.Msg {
			if _, err := m.svc.UpdateTask(context.Background(), in); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{status: "task updated", reload: true}
		}
	default:
		var cmd tea.Cmd
		m.editInput, cmd = m.editInput.Update(msg)
		return m, cmd
	}
}

func (m Model) handleSplitKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNone
		m.splitInput.Blur()
		m.status = "split cancelled"
		return m, nil
	case "tab":
		m.splitMode = nextSplitMode(m.splitMode)
		return m, nil
	case "ctrl+n":
		m.splitInherit = !m.splitInherit
		return m, nil
	case "ctrl+s":
		lines := strings.Split(m.splitInput.Value(), "\n")
		taskID := m.splitTaskID
		mode := m.splitMode
		inherit := m.splitInherit
		m.mode = modeNone
		m.splitInput.Blur()
		return m, func() tea.Msg {
			result, err := m.svc.Split(context.Background(), app.SplitInput{
				TaskID:       taskID,
				Lines:        lines,
				Mode:         mode,
				InheritNotes: inherit,
			})
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{
				status: fmt.Sprintf("split into %d tasks (%s)", len(result.Children), mode),
				reload: true,
			}
		}
	default:
		var cmd tea.Cmd
		m.splitInput, cmd = m.splitInput.Update(msg)
		return m, cmd
	}
}

// handleScanKey drives one pass: mark-and-advance, skip-and-advance,
// correct a recent decision, or abort.
func (m Model) handleScanKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "m":
		return m, m.advanceScan(true)
	case " ", "space", "n", "right":
		return m, m.advanceScan(false)
	case "u":
		if m.lastTouchedID == "" {
			m.status = "nothing to correct yet"
			return m, nil
		}
		taskID := m.lastTouchedID
		return m, func() tea.Msg {
			if _, err := m.svc.ToggleRecent(context.Background(), taskID); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{status: "mark corrected", reload: true}
		}
	case "esc", "q":
		m.svc.CancelScan()
		m.mode = modeNone
		m.scan = nil
		m.scanTask = domain.Task{}
		m.status = "scan cancelled"
		return m, m.loadData
	default:
		return m, nil
	}
}

func (m Model) handleSettingsKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.settingsCursor > 0 {
			m.settingsCursor--
		}
		return m, nil
	case "down", "j":
		if m.settingsCursor < settingsRowCount-1 {
			m.settingsCursor++
		}
		return m, nil
	case "enter", " ", "space", "left", "right", "h", "l":
		m.settings = cycleSetting(m.settings, m.settingsCursor)
		return m, nil
	case "esc", "q":
		m.mode = modeNone
		settings := m.settings
		return m, func() tea.Msg {
			if _, err := m.svc.UpdateSettings(context.Background(), settings); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{status: "settings saved", reload: true}
		}
	default:
		return m, nil
	}
}

func (m Model) handleGuideKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", " ", "space", "n", "right":
		return m, func() tea.Msg {
			progress, err := m.svc.AdvanceGuide(context.Background())
			return guideMsg{progress: progress, err: err}
		}
	case "R":
		return m, func() tea.Msg {
			if err := m.svc.ResetGuide(context.Background()); err != nil {
				return guideMsg{err: err}
			}
			return guideMsg{}
		}
	case "esc", "q", "g":
		m.mode = modeNone
		m.status = "ready"
		return m, nil
	default:
		return m, nil
	}
}

// loadData loads the working list and the persisted preferences.
func (m Model) loadData() tea.Msg {
	ctx := context.Background()
	tasks, err := m.svc.VisibleTasks(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	settings, err := m.svc.Settings(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	guide, err := m.svc.GuideProgress(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	today, err := m.svc.TodayStats(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{tasks: tasks, settings: settings, guide: guide, today: today}
}

func (m Model) createTask(text string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.svc.CreateTask(context.Background(), app.CreateTaskInput{Text: text}); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "task added at end of list", reload: true}
	}
}

// taskAction wraps one single-task mutation. The store tolerates stale
// ids silently, so a zero task just means the row vanished mid-action.
func (m Model) taskAction(label string, fn func(context.Context, string) (domain.Task, error), taskID string) tea.Cmd {
	return func() tea.Msg {
		task, err := fn(context.Background(), taskID)
		if err != nil {
			return actionMsg{err: err}
		}
		if task.ID == "" {
			return actionMsg{status: "task is gone", reload: true}
		}
		return actionMsg{status: fmt.Sprintf("%s %q", label, truncate(task.Text, 32)), reload: true}
	}
}

func (m Model) startScan() tea.Msg {
	session, err := m.svc.BeginScan(context.Background(), "")
	return scanStartedMsg{session: session, err: err}
}

func (m Model) advanceScan(mark bool) tea.Cmd {
	return func() tea.Msg {
		step, err := m.svc.AdvanceScan(context.Background(), mark)
		return scanAdvancedMsg{step: step, session: m.svc.Scan(), err: err}
	}
}

// loadScanPreview resolves the task under the scan cursor. A stale id
// yields an empty preview; the next advance drains it.
func (m Model) loadScanPreview() tea.Msg {
	if m.scan == nil {
		return scanPreviewMsg{}
	}
	id, ok := m.scan.Current()
	if !ok {
		return scanPreviewMsg{}
	}
	task, err := m.svc.GetTask(context.Background(), id)
	if err != nil {
		return scanPreviewMsg{}
	}
	return scanPreviewMsg{task: task}
}

func (m Model) loadReflect() tea.Msg {
	ctx := context.Background()
	today, err := m.svc.TodayStats(ctx)
	if err != nil {
		return reflectLoadedMsg{err: err}
	}
	ledger, err := m.svc.Ledger(ctx)
	if err != nil {
		return reflectLoadedMsg{err: err}
	}
	metrics, err := m.svc.Metrics(ctx)
	if err != nil {
		return reflectLoadedMsg{err: err}
	}
	return reflectLoadedMsg{today: today, ledger: ledger, metrics: metrics}
}

func (m Model) loadRollup(taskID string) tea.Cmd {
	return func() tea.Msg {
		rollup, err := m.svc.ProjectRollup(context.Background(), taskID)
		return rollupMsg{rollup: rollup, err: err}
	}
}

// scheduleTick refreshes the running-timer readout once a second.
func scheduleTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// View handles view.
func (m Model) View() tea.View {
	if m.err != nil {
		v := tea.NewView("error: " + m.err.Error() + "\n\npress ctrl+r to retry • q quit\n")
		v.AltScreen = true
		return v
	}
	if !m.ready {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	header := titleStyle.Render("rz") + statusStyle.Render("  ["+m.modeLabel()+"]")
	header += statusStyle.Render(fmt.Sprintf("  today: %d scans · %d marks · %s",
		m.today.Scans, m.today.Marks, formatMinutes(m.today.Minutes)))

	var body string
	switch m.mode {
	case modeScan:
		body = m.renderScanView(accent, muted)
	case modeReflect:
		body = m.renderReflectView(accent, muted)
	case modeSettings:
		body = m.renderSettingsView(accent, muted)
	case modeGuide:
		body = m.renderGuideView(accent, muted)
	case modeTaskInfo:
		body = m.renderTaskInfo(accent, muted)
	default:
		body = m.renderList(accent, muted)
		if panel := m.renderInputPanel(accent, muted); panel != "" {
			body += "\n\n" + panel
		}
	}

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	content := header + "\n\n" + body + "\n\n" + statusStyle.Render(m.status) + "\n" + helpLine
	v := tea.NewView(content)
	v.AltScreen = true
	return v
}

// renderList renders the flat working list.
func (m Model) renderList(accent, muted color) string {
	if len(m.tasks) == 0 {
		return lipgloss.NewStyle().Foreground(muted).Render("list is empty — press n to capture a task")
	}

	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	markedStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)
	metaStyle := lipgloss.NewStyle().Foreground(muted)

	parentByID := map[string]string{}
	for _, task := range m.tasks {
		parentByID[task.ID] = task.ParentID
	}

	lines := make([]string, 0, len(m.tasks)*2)
	for idx, task := range m.tasks {
		prefix := "  "
		if idx == m.selected {
			prefix = "│ "
		}
		dot := "· "
		if task.Marked {
			dot = "● "
		}
		indent := strings.Repeat("  ", min(taskDepth(task.ID, parentByID, 0), 4))
		text := truncate(task.Text, max(8, m.width-12))
		if task.IsCollapsed && len(task.ChildIDs) > 0 {
			text += " [+]"
		}
		line := prefix + indent + dot + text
		switch {
		case idx == m.selected:
			line = selectedStyle.Render(line)
		case task.Marked:
			line = markedStyle.Render(line)
		}
		lines = append(lines, line)
		if meta := m.taskMeta(task); meta != "" {
			lines = append(lines, metaStyle.Render(prefix+indent+"  "+meta))
		}
	}
	return strings.Join(lines, "\n")
}

// taskMeta summarizes one list row's secondary fields.
func (m Model) taskMeta(task domain.Task) string {
	parts := make([]string, 0, 5)
	if task.Resistance != nil {
		parts = append(parts, fmt.Sprintf("r%d", *task.Resistance))
	}
	if task.Level != domain.LevelUnspecified && task.Level != "" {
		parts = append(parts, string(task.Level))
	}
	if len(task.Tags) > 0 {
		parts = append(parts, "#"+strings.Join(task.Tags, ",#"))
	}
	if len(task.ChildIDs) > 0 {
		parts = append(parts, fmt.Sprintf("%d children", len(task.ChildIDs)))
	}
	if idx := task.OpenTimer(); idx >= 0 {
		parts = append(parts, "⏱ "+formatClock(m.now.Sub(task.TimeLogs[idx].StartedAt)))
	}
	return strings.Join(parts, " · ")
}

// renderInputPanel renders the add, edit, split, and confirm dialogs
// under the list.
func (m Model) renderInputPanel(accent, muted color) string {
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)
	switch m.mode {
	case modeAddTask:
		return labelStyle.Render("new task") + "\n" +
			m.addInput.View() + "\n" +
			hintStyle.Render("enter add • esc cancel")
	case modeEditTask:
		return labelStyle.Render("edit task") + "\n" +
			m.editInput.View() + "\n" +
			hintStyle.Render("text | notes | resistance(0-10 or -) | level | tags • enter save • esc cancel")
	case modeSplit:
		inherit := "off"
		if m.splitInherit {
			inherit = "on"
		}
		return labelStyle.Render(fmt.Sprintf("split task — mode: %s · inherit notes: %s", m.splitMode, inherit)) + "\n" +
			m.splitInput.View() + "\n" +
			hintStyle.Render("one child per line • tab mode • ctrl+n inherit notes • ctrl+s split • esc cancel")
	case modeConfirmArchive:
		return labelStyle.Render("archive task?") + "\n" +
			truncate(m.confirmText, 64) + "\n" +
			hintStyle.Render("y archive • n cancel")
	default:
		return ""
	}
}

// renderScanView renders the single-task scan pass.
func (m Model) renderScanView(accent, muted color) string {
	if m.scan == nil {
		return "no active scan"
	}
	position, total := m.scan.Progress()
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)

	lines := []string{
		titleStyle.Render(fmt.Sprintf("scan %d/%d (%s)", position, total, m.scan.Direction)),
		"",
	}
	if m.scanTask.ID != "" {
		lines = append(lines, "  "+m.scanTask.Text)
		if meta := m.taskMeta(m.scanTask); meta != "" {
			lines = append(lines, hintStyle.Render("  "+meta))
		}
		if notes := strings.TrimSpace(m.scanTask.Notes); notes != "" {
			lines = append(lines, "", hintStyle.Render("  "+truncate(notes, max(16, m.width-8))))
		}
	} else {
		lines = append(lines, hintStyle.Render("  (resolving...)"))
	}
	lines = append(lines, "", hintStyle.Render("does this feel effortless right now?"))

	if len(m.scan.Recent) > 0 {
		recent := make([]string, 0, len(m.scan.Recent))
		for _, id := range m.scan.Recent {
			label := id
			marked := false
			if task, ok := m.taskByID(id); ok {
				label = truncate(task.Text, 20)
				marked = task.Marked
			}
			if marked {
				label = "●" + label
			}
			recent = append(recent, label)
		}
		lines = append(lines, "", hintStyle.Render("recent: "+strings.Join(recent, " · ")))
	}
	lines = append(lines, "", hintStyle.Render("m mark • space skip • u correct last • esc cancel"))
	return strings.Join(lines, "\n")
}

// renderReflectView renders today's numbers and the recent history.
func (m Model) renderReflectView(accent, muted color) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)

	lines := []string{
		titleStyle.Render("daily stats"),
		"",
		fmt.Sprintf("  today   %d scans · %d marks · %s", m.today.Scans, m.today.Marks, formatMinutes(m.today.Minutes)),
		fmt.Sprintf("  lifetime scans: %d", m.metrics.TotalScans),
		"",
	}
	day := time.Now().UTC()
	for i := 0; i < reflectHistoryDays; i++ {
		keyStr := domain.DayKey(day.AddDate(0, 0, -i))
		stats := m.ledger.Day(keyStr)
		lines = append(lines, hintStyle.Render(fmt.Sprintf("  %s  %2d scans  %2d marks  %8s",
			keyStr, stats.Scans, stats.Marks, formatMinutes(stats.Minutes))))
	}
	lines = append(lines, "", hintStyle.Render("esc close"))
	return strings.Join(lines, "\n")
}

// renderSettingsView renders the editable preferences.
func (m Model) renderSettingsView(accent, muted color) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)

	inherit := "off"
	if m.settings.InheritNotesOnSplit {
		inherit = "on"
	}
	rows := []string{
		fmt.Sprintf("scan direction      %s", m.settings.ScanDirection),
		fmt.Sprintf("theme               %s", m.settings.Theme),
		fmt.Sprintf("default split mode  %s", m.settings.SplitMode),
		fmt.Sprintf("inherit notes       %s", inherit),
	}
	lines := []string{titleStyle.Render("settings"), ""}
	for idx, row := range rows {
		prefix := "   "
		line := prefix + row
		if idx == m.settingsCursor {
			line = selectedStyle.Render("│  " + row)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", hintStyle.Render("j/k move • enter cycle • esc save"))
	return strings.Join(lines, "\n")
}

// renderGuideView renders the active guided-cycle step.
func (m Model) renderGuideView(accent, muted color) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)

	idx := clamp(m.guide.ActiveIndex, 0, len(guideSteps)-1)
	step := guideSteps[idx]
	state := "not started"
	if m.guide.Started {
		state = fmt.Sprintf("step %d/%d", idx+1, len(guideSteps))
	}
	header := titleStyle.Render("guide — "+step.Title) + hintStyle.Render("  ("+state+")")
	body := m.markdown.render(step.Body, max(24, m.width-8), m.settings.Theme)
	return header + "\n" + body + "\n\n" + hintStyle.Render("space next step • R restart • esc close")
}

// renderTaskInfo renders the detail view of the selected task.
func (m Model) renderTaskInfo(accent, muted color) string {
	task, ok := m.taskByID(m.infoTaskID)
	if !ok {
		return "task is gone"
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)

	lines := []string{titleStyle.Render(task.Text), ""}
	if meta := m.taskMeta(task); meta != "" {
		lines = append(lines, hintStyle.Render(meta), "")
	}
	marked := "no"
	if task.Marked {
		marked = "yes, on " + task.LastMarkedOn
	}
	lines = append(lines,
		fmt.Sprintf("status      %s", task.Status),
		fmt.Sprintf("marked      %s", marked),
		fmt.Sprintf("touches     %d (%d in scans)", task.Touches, task.ScanCount),
		fmt.Sprintf("marked      %d times · %d re-entries", task.MarkedCount, task.Reentries),
		fmt.Sprintf("tracked     %s", formatMinutes(task.LoggedMinutes())),
		fmt.Sprintf("created     %s", task.CreatedAt.Format("2006-01-02 15:04")),
	)
	if len(task.ChildIDs) > 0 {
		lines = append(lines, fmt.Sprintf("children    %d total · %d completed · %s tracked",
			m.infoRollup.TotalChildren, m.infoRollup.Completed, formatMinutes(m.infoRollup.Minutes)))
	}
	if notes := strings.TrimSpace(task.Notes); notes != "" {
		lines = append(lines, "", m.markdown.render(notes, max(24, m.width-8), m.settings.Theme))
	}
	lines = append(lines, "", hintStyle.Render("esc close"))
	return strings.Join(lines, "\n")
}

// modeLabel names the active view for the header.
func (m Model) modeLabel() string {
	switch m.mode {
	case modeAddTask:
		return "add"
	case modeEditTask:
		return "edit"
	case modeTaskInfo:
		return "info"
	case modeSplit:
		return "split"
	case modeScan:
		return "scan"
	case modeReflect:
		return "reflect"
	case modeSettings:
		return "settings"
	case modeGuide:
		return "guide"
	case modeConfirmArchive:
		return "confirm"
	default:
		return "list"
	}
}

// selectedTask returns the task under the list cursor.
func (m Model) selectedTask() (domain.Task, bool) {
	if len(m.tasks) == 0 {
		return domain.Task{}, false
	}
	return m.tasks[clamp(m.selected, 0, len(m.tasks)-1)], true
}

// taskByID finds a task in the loaded working list.
func (m Model) taskByID(taskID string) (domain.Task, bool) {
	for _, task := range m.tasks {
		if task.ID == taskID {
			return task, true
		}
	}
	return domain.Task{}, false
}

// parseTaskEditInput parses the pipe-separated edit line against the
// current task. "-" clears an optional field; omitted trailing fields
// keep their current values.
func parseTaskEditInput(input string, current domain.Task) (app.UpdateTaskInput, error) {
	parts := strings.Split(input, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	in := app.UpdateTaskInput{
		TaskID:     current.ID,
		Text:       parts[0],
		Notes:      current.Notes,
		Resistance: current.Resistance,
		Level:      current.Level,
		Tags:       current.Tags,
	}
	if len(parts) > 1 {
		in.Notes = parts[1]
		if parts[1] == "-" {
			in.Notes = ""
		}
	}
	if len(parts) > 2 {
		switch parts[2] {
		case "", "-":
			in.Resistance = nil
		default:
			value, err := strconv.Atoi(parts[2])
			if err != nil {
				return app.UpdateTaskInput{}, fmt.Errorf("resistance must be a number 0-10: %w", domain.ErrInvalidResistance)
			}
			in.Resistance = &value
		}
	}
	if len(parts) > 3 {
		switch parts[3] {
		case "", "-":
			in.Level = domain.LevelUnspecified
		default:
			level := domain.Level(parts[3])
			if !domain.IsValidLevel(level) {
				return app.UpdateTaskInput{}, fmt.Errorf("level must be unspecified, project, step, or meta: %w", domain.ErrInvalidLevel)
			}
			in.Level = level
		}
	}
	if len(parts) > 4 {
		if parts[4] == "-" {
			in.Tags = nil
		} else {
			in.Tags = strings.Split(parts[4], ",")
		}
	}
	return in, nil
}

// formatTaskEditInput renders a task as the pipe-separated edit line.
func formatTaskEditInput(task domain.Task) string {
	resistance := "-"
	if task.Resistance != nil {
		resistance = strconv.Itoa(*task.Resistance)
	}
	level := string(task.Level)
	if level == "" {
		level = string(domain.LevelUnspecified)
	}
	tags := "-"
	if len(task.Tags) > 0 {
		tags = strings.Join(task.Tags, ",")
	}
	notes := task.Notes
	if notes == "" {
		notes = "-"
	}
	return strings.Join([]string{task.Text, notes, resistance, level, tags}, " | ")
}

// cycleSetting advances one settings row to its next value.
func cycleSetting(s domain.Settings, row int) domain.Settings {
	switch row {
	case settingsRowDirection:
		if s.ScanDirection == domain.ScanForward {
			s.ScanDirection = domain.ScanBackward
		} else {
			s.ScanDirection = domain.ScanForward
		}
	case settingsRowTheme:
		if s.Theme == "dark" {
			s.Theme = "light"
		} else {
			s.Theme = "dark"
		}
	case settingsRowSplitMode:
		s.SplitMode = nextSplitMode(s.SplitMode)
	case settingsRowInheritNotes:
		s.InheritNotesOnSplit = !s.InheritNotesOnSplit
	}
	return s
}

// nextSplitMode advances through the split-mode cycle.
func nextSplitMode(mode domain.SplitMode) domain.SplitMode {
	for idx, candidate := range splitModeCycle {
		if candidate == mode {
			return splitModeCycle[(idx+1)%len(splitModeCycle)]
		}
	}
	return splitModeCycle[0]
}

// taskDepth walks parent links with a hop bound so corrupted
// hierarchies cannot loop.
func taskDepth(taskID string, parentByID map[string]string, hops int) int {
	if hops > 8 {
		return hops
	}
	parent, ok := parentByID[taskID]
	if !ok || parent == "" {
		return hops
	}
	return taskDepth(parent, parentByID, hops+1)
}

// anyRunningTimer reports whether a loaded task has an open time log.
func anyRunningTimer(tasks []domain.Task) bool {
	for _, task := range tasks {
		if task.OpenTimer() >= 0 {
			return true
		}
	}
	return false
}

// formatMinutes renders fractional minutes as "1h 23m" or "12m".
func formatMinutes(minutes float64) string {
	total := int(minutes + 0.5)
	if total >= 60 {
		return fmt.Sprintf("%dh %dm", total/60, total%60)
	}
	return fmt.Sprintf("%dm", total)
}

// formatClock renders an elapsed duration as "04:05" or "1:04:05".
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// color aliases the lipgloss color type used across the render helpers.
type color = imgcolor.Color

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncate shortens s to at most n runes with an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}
