package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"churn-ops-dashboard/internal/actions"
	"churn-ops-dashboard/internal/customer"
	"churn-ops-dashboard/internal/detail"
	"churn-ops-dashboard/internal/table"
)

var (
	colorTitle  = lipgloss.Color("#7aa2f7")
	colorDim    = lipgloss.Color("#565f89")
	colorOK     = lipgloss.Color("#9ece6a")
	colorWarn   = lipgloss.Color("#e0af68")
	colorBad    = lipgloss.Color("#f7768e")
	colorInfo   = lipgloss.Color("#7dcfff")
	colorSelBg  = lipgloss.Color("#283457")
	colorBorder = lipgloss.Color("#3b4261")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorDim)
	focusStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorTitle).Underline(true)
	cursorStyle  = lipgloss.NewStyle().Background(colorSelBg)
	errorStyle   = lipgloss.NewStyle().Foreground(colorBad)
	okStyle      = lipgloss.NewStyle().Foreground(colorOK)
	spinnerStyle = lipgloss.NewStyle().Foreground(colorTitle)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 1)
)

// sortMarkWidth is the room a header needs for " ▲" or " ▼".
const sortMarkWidth = 2

// columnWidths holds the cell content widths; a column is never narrower
// than its header plus a sort mark.
var columnWidths = func() map[table.ColumnID]int {
	content := map[table.ColumnID]int{
		table.ColCustomerID:       8,
		table.ColName:             22,
		table.ColContract:         15,
		table.ColMonthlyCharges:   10,
		table.ColChurnProbability: 9,
		table.ColStatus:           14,
		table.ColChurned:          6,
	}
	for id, w := range content {
		if c, ok := table.Lookup(id); ok {
			content[id] = max(w, lipgloss.Width(c.Header)+sortMarkWidth)
		}
	}
	return content
}()

func statusColor(s customer.Status) lipgloss.Color {
	switch s {
	case customer.StatusNotified:
		return colorOK
	case customer.StatusRespondedOK:
		return colorInfo
	case customer.StatusRespondedNo:
		return colorWarn
	default:
		return colorBad
	}
}

func bandColor(b detail.Band) lipgloss.Color {
	switch b {
	case detail.BandHigh:
		return colorBad
	case detail.BandMedium:
		return colorWarn
	default:
		return colorOK
	}
}

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Churn Ops · Customers"))
	if m.loading {
		sb.WriteString(" " + m.spinner.View())
	}
	sb.WriteString("\n\n")

	if m.detail != nil {
		sb.WriteString(renderDetail(*m.detail))
		if m.message != "" {
			sb.WriteString(m.renderMessage() + "\n")
		}
		sb.WriteString("\n" + dimStyle.Render("N: notify · P: predict · esc: back · q: quit"))
		return sb.String()
	}

	if m.store == nil {
		if m.message != "" {
			sb.WriteString(m.renderMessage() + "\n")
		} else {
			sb.WriteString(dimStyle.Render("Loading customers...") + "\n")
		}
		return sb.String()
	}

	sb.WriteString(m.renderTable())
	sb.WriteString("\n")
	sb.WriteString(m.renderFooter())
	sb.WriteString("\n")
	if m.filtering {
		sb.WriteString(m.input.View() + "\n")
	}
	if m.message != "" {
		sb.WriteString(m.renderMessage() + "\n")
	}
	sb.WriteString("\n" + m.help.View(keys))
	return sb.String()
}

func (m Model) renderMessage() string {
	if m.messageErr {
		return errorStyle.Render(m.message)
	}
	return okStyle.Render(m.message)
}

func (m Model) renderTable() string {
	var sb strings.Builder
	sortKeys := m.store.Sort()

	header := []string{"   "}
	for i, id := range displayColumns {
		c, _ := table.Lookup(id)
		label := c.Header
		for _, k := range sortKeys {
			if k.Column == id {
				if k.Desc {
					label += " ▼"
				} else {
					label += " ▲"
				}
			}
		}
		cell := pad(label, columnWidths[id])
		if i == m.sortCol {
			header = append(header, focusStyle.Render(cell))
		} else {
			header = append(header, headerStyle.Render(cell))
		}
	}
	sb.WriteString(strings.Join(header, " ") + "\n")

	page := m.store.Page()
	if len(page.Rows) == 0 {
		sb.WriteString(dimStyle.Render("   No customers match the current filters.") + "\n")
	}
	for i, r := range page.Rows {
		mark := "[ ]"
		if m.store.IsSelected(r.CustomerID) {
			mark = "[x]"
		}
		cells := []string{mark}
		for _, id := range displayColumns {
			cells = append(cells, renderCell(r, id))
		}
		line := strings.Join(cells, " ")
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func renderCell(r customer.Record, id table.ColumnID) string {
	w := columnWidths[id]
	switch id {
	case table.ColChurnProbability:
		ind := detail.NewIndicator(r.ChurnProbability)
		return lipgloss.NewStyle().Foreground(bandColor(ind.Band)).Render(pad(ind.Label, w))
	case table.ColStatus:
		s := r.Status()
		return lipgloss.NewStyle().Foreground(statusColor(s)).Render(pad(s.Label(), w))
	case table.ColMonthlyCharges:
		return pad(detail.Money(r.MonthlyCharges), w)
	}
	c, ok := table.Lookup(id)
	if !ok {
		return pad("", w)
	}
	return pad(c.Value(r), w)
}

func (m Model) renderFooter() string {
	page := m.store.Page()
	parts := []string{
		fmt.Sprintf("Page %d of %d", page.PageIndex+1, max(page.PageCount, 1)),
		fmt.Sprintf("%s of %s customers", humanize.Comma(int64(page.Filtered)), humanize.Comma(int64(page.Total))),
		fmt.Sprintf("%d per page", page.PageSize),
	}
	if n := len(m.store.SelectedTargets()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", n))
	}
	filters := m.store.Filters()
	if v := filters[table.ColName]; v != "" {
		parts = append(parts, fmt.Sprintf("name~%q", v))
	}
	if v := filters[table.ColStatus]; v != "" {
		parts = append(parts, "status="+v)
	}
	for _, kind := range []actions.Kind{actions.KindNotify, actions.KindPredict} {
		if m.busy[kind] {
			parts = append(parts, m.spinner.View()+" "+string(kind))
		}
	}
	return dimStyle.Render(strings.Join(parts, " · "))
}

func renderDetail(v detail.View) string {
	var sb strings.Builder
	head := fmt.Sprintf("%s  #%s  ", v.Name, v.CustomerID)
	prob := lipgloss.NewStyle().Bold(true).Foreground(bandColor(v.Probability.Band)).Render(v.Probability.Label)
	sb.WriteString(titleStyle.Render(head) + "churn " + prob + "\n")

	blocks := make([]string, 0, len(v.Sections))
	for _, s := range v.Sections {
		var b strings.Builder
		b.WriteString(headerStyle.Render(s.Title) + "\n")
		for _, f := range s.Fields {
			value := f.Value
			if f.Note != "" {
				value += dimStyle.Render(" (" + f.Note + ")")
			}
			b.WriteString(fmt.Sprintf("%-18s %s\n", f.Label, toneStyle(f.Tone).Render(value)))
		}
		blocks = append(blocks, panelStyle.Render(strings.TrimRight(b.String(), "\n")))
	}

	for i := 0; i < len(blocks); i += 2 {
		if i+1 < len(blocks) {
			sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, blocks[i], " ", blocks[i+1]) + "\n")
		} else {
			sb.WriteString(blocks[i] + "\n")
		}
	}
	return sb.String()
}

func toneStyle(t detail.Tone) lipgloss.Style {
	switch t {
	case detail.TonePositive:
		return okStyle
	case detail.ToneNegative:
		return errorStyle
	case detail.ToneWarning:
		return lipgloss.NewStyle().Foreground(colorWarn)
	case detail.ToneMuted:
		return dimStyle
	default:
		return lipgloss.NewStyle()
	}
}

// pad truncates or right-pads s to exactly w cells.
func pad(s string, w int) string {
	if lipgloss.Width(s) > w {
		r := []rune(s)
		for len(r) > 0 && lipgloss.Width(string(r))+1 > w {
			r = r[:len(r)-1]
		}
		return string(r) + "…"
	}
	return s + strings.Repeat(" ", w-lipgloss.Width(s))
}
