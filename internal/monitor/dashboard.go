package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	httpserver "github.com/fyrsmithlabs/embedpool/internal/http"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model is the BubbleTea model for the pool dashboard.
type Model struct {
	client     *Client
	interval   time.Duration
	started    time.Time
	lastUpdate time.Time
	snapshot   Snapshot
	err        error
	quitting   bool

	usageProgress progress.Model
}

// Snapshot holds the latest status and the rates derived between samples.
type Snapshot struct {
	Status *httpserver.StatusResponse

	// AcquireRate is Gets per second since the previous sample.
	AcquireRate float64
	// AvgWait is the mean Get latency since the previous sample.
	AvgWait time.Duration
	// EmptyRatio is the share of Gets since the previous sample that found
	// no idle instance.
	EmptyRatio float64

	PeakInUse int

	InUseHistory []float64
	RateHistory  []float64
	WaitHistory  []float64
}

// Utilization is in-use instances over MaxSize.
func (s Snapshot) Utilization() float64 {
	if s.Status == nil || s.Status.Pool.MaxSize == 0 {
		return 0
	}
	return min(float64(s.Status.Pool.InUse)/float64(s.Status.Pool.MaxSize), 1)
}

// palette holds the ANSI 256 colors the dashboard uses.
type palette struct {
	accent, label, text, muted, border lipgloss.Color
	ok, warn, bad                      lipgloss.Color
}

var defaultPalette = palette{
	accent: "51", label: "45", text: "231", muted: "245", border: "238",
	ok: "46", warn: "226", bad: "196",
}

// theme is every style derived from one palette.
type theme struct {
	header, section, label, value, dim lipgloss.Style
	grade                              [3]lipgloss.Style // ok, warn, bad
	container, footer, key, spark      lipgloss.Style
}

func newTheme(p palette) theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return theme{
		header:    lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(p.accent).Bold(true).Padding(0, 1),
		section:   fg(p.accent).Bold(true).MarginTop(1),
		label:     fg(p.label),
		value:     fg(p.text).Bold(true),
		dim:       fg(p.muted),
		grade:     [3]lipgloss.Style{fg(p.ok).Bold(true), fg(p.warn).Bold(true), fg(p.bad).Bold(true)},
		container: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.border).Padding(1, 2),
		footer:    fg(p.muted).MarginTop(1),
		key:       fg(p.accent).Bold(true),
		spark:     fg(p.accent),
	}
}

var styles = newTheme(defaultPalette)

// grade returns 0, 1 or 2 as v is below warn, below bad, or neither.
func grade[T int64 | float64](v, warn, bad T) int {
	switch {
	case v < warn:
		return 0
	case v < bad:
		return 1
	}
	return 2
}

// NewModel creates a dashboard polling client every interval.
func NewModel(client *Client, interval time.Duration) Model {
	return Model{
		client:   client,
		interval: interval,
		started:  time.Now(),
		usageProgress: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
		),
		snapshot: Snapshot{
			InUseHistory: make([]float64, 0, historySize),
			RateHistory:  make([]float64, 0, historySize),
			WaitHistory:  make([]float64, 0, historySize),
		},
	}
}

// getUsageBadge grades pool utilization.
func getUsageBadge(utilization float64) string {
	g := grade(utilization, 0.7, 0.9)
	return styles.grade[g].Render([...]string{"✓ HEALTHY", "⚠ BUSY", "✗ SATURATED"}[g])
}

// getWaitBadge grades mean Get latency.
func getWaitBadge(wait time.Duration) string {
	g := grade(int64(wait), int64(10*time.Millisecond), int64(100*time.Millisecond))
	return styles.grade[g].Render([...]string{"[✓]", "[⚠]", "[✗]"}[g])
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return styles.dim.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()
	return styles.spark.Render(spark.View())
}

type tickMsg time.Time

type statusMsg struct {
	status *httpserver.StatusResponse
	at     time.Time
}

type errMsg error

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchStatus(m.client),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchStatus(client *Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		status, err := client.Status(ctx)
		if err != nil {
			return errMsg(err)
		}
		return statusMsg{status: status, at: time.Now()}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchStatus(m.client)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchStatus(m.client),
		)

	case statusMsg:
		m.snapshot = m.snapshot.next(msg.status, msg.at.Sub(m.lastUpdate), !m.lastUpdate.IsZero())
		m.lastUpdate = msg.at
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// next derives rates from the counters in cur and the previous sample taken
// elapsed ago.
func (s Snapshot) next(cur *httpserver.StatusResponse, elapsed time.Duration, hasPrev bool) Snapshot {
	n := Snapshot{
		Status:       cur,
		PeakInUse:    max(s.PeakInUse, cur.Pool.InUse),
		InUseHistory: s.InUseHistory,
		RateHistory:  s.RateHistory,
		WaitHistory:  s.WaitHistory,
	}

	if hasPrev && s.Status != nil && elapsed > 0 {
		prev := s.Status.Pool
		acquires := cur.Pool.AcquireCount - prev.AcquireCount
		if acquires > 0 {
			n.AcquireRate = float64(acquires) / elapsed.Seconds()
			n.AvgWait = (cur.Pool.AcquireDuration - prev.AcquireDuration) / time.Duration(acquires)
			n.EmptyRatio = float64(cur.Pool.EmptyAcquireCount-prev.EmptyAcquireCount) / float64(acquires)
		}
	}

	n.InUseHistory = appendToHistory(n.InUseHistory, float64(cur.Pool.InUse))
	n.RateHistory = appendToHistory(n.RateHistory, n.AcquireRate)
	n.WaitHistory = appendToHistory(n.WaitHistory, float64(n.AvgWait)/float64(time.Millisecond))
	return n
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	var b strings.Builder
	b.WriteString(styles.header.Render("embedpool Monitor") + "\n\n")
	b.WriteString(styles.grade[2].Render("⚠ Cannot reach embedpool server") + "\n\n")
	b.WriteString(styles.dim.Render("URL: ") + styles.value.Render(m.client.BaseURL()) + "\n")
	b.WriteString(styles.dim.Render("Error: ") + styles.grade[2].Render(m.err.Error()) + "\n\n")
	b.WriteString(styles.dim.Render("Start a server with: embedpool serve") + "\n")
	b.WriteString(styles.footer.Render("[q] quit  [r] retry") + "\n")
	return styles.container.Render(b.String())
}

func (m Model) renderDashboard() string {
	s := m.snapshot
	if s.Status == nil {
		return styles.container.Render(styles.header.Render(" embedpool Monitor ") + "\n\n" +
			styles.dim.Render("waiting for first sample...") + "\n" + m.footer())
	}
	st := s.Status
	var b strings.Builder

	lastUpdate := m.lastUpdate.Format("3:04:05 PM")
	b.WriteString(styles.header.Render(" embedpool Monitor ") + "\n")
	b.WriteString(fmt.Sprintf("%s   %s   %s   %s\n",
		getUsageBadge(s.Utilization()),
		styles.dim.Render("Watching:"),
		styles.value.Render(FormatDuration(time.Since(m.started))),
		styles.dim.Render(lastUpdate)))

	b.WriteString("\n" + styles.section.Render("┃ Model") + "\n")
	b.WriteString(styles.label.Render("  Kind: ") + styles.value.Render(st.Kind) +
		"   " + styles.label.Render("Name: ") + styles.value.Render(st.Model) + "\n")
	if st.Version != "" {
		b.WriteString(styles.label.Render("  Server: ") + styles.dim.Render(st.Version) + "\n")
	}

	b.WriteString("\n" + styles.section.Render("┃ Pool") + "\n")
	b.WriteString(styles.label.Render("  Instances: ") +
		styles.value.Render(fmt.Sprintf("%d/%d", st.Pool.Size, st.Pool.MaxSize)) +
		styles.dim.Render(fmt.Sprintf("  idle %d  constructing %d", st.Pool.Idle, st.Pool.Constructing)) + "\n")
	b.WriteString(styles.label.Render("  In use: ") +
		styles.value.Render(fmt.Sprintf("%d", st.Pool.InUse)) +
		styles.dim.Render(fmt.Sprintf(" (peak %d)", s.PeakInUse)) +
		"   " + createSparkline(s.InUseHistory) + "\n")
	b.WriteString(styles.label.Render("  Usage: ") +
		m.usageProgress.ViewAs(s.Utilization()) +
		" " + styles.dim.Render(FormatPercentage(s.Utilization())) + "\n")

	b.WriteString("\n" + styles.section.Render("┃ Acquires") + "\n")
	b.WriteString(styles.label.Render("  Rate: ") +
		styles.value.Render(FormatRate(s.AcquireRate)) +
		"   " + createSparkline(s.RateHistory) + "\n")
	b.WriteString(styles.label.Render("  Wait: ") +
		styles.value.Render(FormatLatency(s.AvgWait)) +
		" " + getWaitBadge(s.AvgWait) +
		"   " + createSparkline(s.WaitHistory) + "\n")
	b.WriteString(styles.label.Render("  Empty: ") +
		styles.value.Render(FormatPercentage(s.EmptyRatio)) +
		"   " + styles.label.Render("Total: ") +
		styles.value.Render(fmt.Sprintf("%d", st.Pool.AcquireCount)) +
		styles.dim.Render(fmt.Sprintf("  canceled %d", st.Pool.CanceledAcquireCount)) + "\n")

	b.WriteString("\n" + m.footer())

	return styles.container.Render(b.String())
}

func (m Model) footer() string {
	return styles.key.Render("[q]") + styles.footer.Render(" quit  ") +
		styles.key.Render("[r]") + styles.footer.Render(" refresh  ") +
		styles.footer.Render(fmt.Sprintf("Auto: %v", m.interval))
}
