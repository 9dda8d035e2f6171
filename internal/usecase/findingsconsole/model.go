package findingsconsole

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tesa/internal/domain/finding"
	"tesa/internal/usecase/findings"
)

const maxShownReferences = 6

type Options struct {
	Limit           int
	RefreshInterval time.Duration
}

type consoleModel struct {
	ctx             context.Context
	service         *findings.Service
	limit           int
	refreshInterval time.Duration

	items         []finding.SecurityFinding
	selectedIndex int
	summary       finding.RiskSummary
	hasSummary    bool
	status        string
}

type findingsLoadedMsg struct {
	items []finding.SecurityFinding
	err   error
}

type summaryLoadedMsg struct {
	summary finding.RiskSummary
	err     error
}

type tickMsg struct{}

func NewModel(ctx context.Context, service *findings.Service, options Options) tea.Model {
	limit := options.Limit
	if limit <= 0 {
		limit = findings.DefaultListLimit
	}
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &consoleModel{
		ctx:             ctx,
		service:         service,
		limit:           limit,
		refreshInterval: interval,
		status:          "loading",
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(m.loadFindingsCmd(), m.loadSummaryCmd(), m.tickCmd())
}

func (m *consoleModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadFindingsCmd(), m.loadSummaryCmd(), m.tickCmd())
	case findingsLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.items = msg.items
		if len(m.items) == 0 {
			m.selectedIndex = 0
			m.status = "no findings stored"
			return m, nil
		}
		if m.selectedIndex >= len(m.items) {
			m.selectedIndex = len(m.items) - 1
		}
		m.status = fmt.Sprintf("refreshed, %d findings", len(m.items))
		return m, nil
	case summaryLoadedMsg:
		if msg.err != nil {
			m.hasSummary = false
			m.status = "summary failed: " + msg.err.Error()
			return m, nil
		}
		m.summary = msg.summary
		m.hasSummary = true
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, tea.Batch(m.loadFindingsCmd(), m.loadSummaryCmd())
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.items)-1 {
				m.selectedIndex++
			}
			return m, nil
		}
	}
	return m, nil
}

func (m *consoleModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	criticalStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Findings Console"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf("limit=%d refresh=%s", m.limit, m.refreshInterval)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Summary"))
	builder.WriteString("\n")
	if m.hasSummary {
		builder.WriteString(fmt.Sprintf("low=%d medium=%d high=%d ",
			m.summary.Low, m.summary.Medium, m.summary.High))
		builder.WriteString(criticalStyle.Render(fmt.Sprintf("critical=%d", m.summary.Critical)))
	} else {
		builder.WriteString(dimStyle.Render("- not loaded"))
	}
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Findings"))
	builder.WriteString("\n")
	if len(m.items) == 0 {
		builder.WriteString(dimStyle.Render("- no findings"))
		builder.WriteString("\n")
	}
	for i, item := range m.items {
		line := fmt.Sprintf("%s  %-13s %3d  %-14s %s",
			item.Time.Format("2006-01-02 15:04"),
			item.Severity,
			item.RiskScore,
			item.Domain,
			item.Title,
		)
		if i == m.selectedIndex {
			builder.WriteString(selectedStyle.Render("> " + line))
		} else {
			builder.WriteString("  " + line)
		}
		builder.WriteString("\n")
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	builder.WriteString(m.renderDetail(dimStyle))
	builder.WriteString("\n")

	builder.WriteString(dimStyle.Render("[up/down] select  [g] refresh  [q] quit  " + m.status))
	builder.WriteString("\n")
	return builder.String()
}

func (m *consoleModel) renderDetail(dimStyle lipgloss.Style) string {
	if len(m.items) == 0 || m.selectedIndex >= len(m.items) {
		return dimStyle.Render("- nothing selected")
	}

	item := m.items[m.selectedIndex]
	lines := []string{
		"uid:      " + item.FindingUID,
		"status:   " + string(item.Status),
		fmt.Sprintf("severity: %s (%d), risk_score=%d", item.Severity, item.SeverityID, item.RiskScore),
		fmt.Sprintf("category: %s / %s", item.CategoryName, item.TypeName),
		fmt.Sprintf("resource: %s (%s, %s, %s)",
			item.Resource.Name, item.Resource.UID, item.Resource.Type, item.Resource.Platform),
		"refs:     " + renderReferences(item.References),
	}
	return strings.Join(lines, "\n")
}

func renderReferences(references finding.FindingReferences) string {
	values := make([]string, 0, maxShownReferences)
	for _, refType := range finding.ReferenceTypes() {
		for _, value := range references.ByType(refType) {
			if len(values) >= maxShownReferences {
				return strings.Join(values, ", ") + ", ..."
			}
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func (m *consoleModel) loadFindingsCmd() tea.Cmd {
	return func() tea.Msg {
		items, err := m.service.List(m.ctx, m.limit)
		return findingsLoadedMsg{items: items, err: err}
	}
}

func (m *consoleModel) loadSummaryCmd() tea.Cmd {
	return func() tea.Msg {
		summary, err := m.service.Summary(m.ctx)
		return summaryLoadedMsg{summary: summary, err: err}
	}
}

func (m *consoleModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}
