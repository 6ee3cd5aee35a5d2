package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zackbart/nova/internal/classify"
	"github.com/zackbart/nova/internal/remote"
	"github.com/zackbart/nova/internal/remotepath"
	"github.com/zackbart/nova/internal/transfer"
)

const (
	crumbSep  = " › "
	hintSep   = "  ·  "
	barWidth  = 20
	timeStamp = "Jan 02 15:04"
)

// ── View ───────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return lipgloss.NewStyle().Foreground(clrLoading).Render("loading…")
	}

	leftW, rightW, bodyH := m.layout()

	// Render each │ on its own so ANSI resets never span newlines.
	sepLine := lipgloss.NewStyle().Foreground(clrBorder).Render("│")
	sepLines := make([]string, bodyH)
	for i := range sepLines {
		sepLines[i] = sepLine
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderFileList(leftW, bodyH),
		strings.Join(sepLines, "\n"),
		m.renderPreviewPane(rightW, bodyH),
	)

	out := m.renderTopBar(m.width) + "\n" + body
	if m.showTransfers {
		out += "\n" + m.renderTransfers(m.width)
	}
	return out + "\n" + m.renderBottomBar(m.width)
}

// layout splits the terminal: list on the left, preview on the right, one
// column between them. Four rows go to the bars.
func (m *Model) layout() (leftW, rightW, bodyH int) {
	leftW = max(26, int(float64(m.width)*(1-m.st.PreviewRatio())))
	rightW = max(10, m.width-leftW-1)
	bodyH = max(4, m.height-4-m.transferRows())
	return leftW, rightW, bodyH
}

func (m *Model) transferRows() int {
	if !m.showTransfers {
		return 0
	}
	return 1 + max(1, min(maxTransferRows, len(m.transfers.Records())))
}

// previewSize is the area left for the preview body once the header,
// divider and footer rows are taken.
func (m *Model) previewSize() (int, int) {
	_, w, h := m.layout()
	return w, max(1, h-3)
}

func (m *Model) isInPreviewPane(x, y int) bool {
	leftW, _, bodyH := m.layout()
	startY := 3 // top bar, pane header, divider
	return x > leftW && y >= startY && y < 1+bodyH
}

// renderTopBar draws the breadcrumb trail with the connection on the right.
func (m *Model) renderTopBar(width int) string {
	sepStyle := lipgloss.NewStyle().Foreground(clrPathSep)
	segStyle := lipgloss.NewStyle().Foreground(clrBreadcrumb)
	infoStyle := lipgloss.NewStyle().Foreground(clrMuted)

	var info string
	switch {
	case m.nav.Connected():
		info = fmt.Sprintf("%d items", len(m.nav.Visible()))
		if m.nav.ShowHidden() {
			info += " (hidden shown)"
		}
		if host := m.endpoint.Host; host != "" {
			info = m.endpoint.Username + "@" + host + "  " + info
		}
	case m.nav.Connecting():
		info = "connecting…"
	default:
		info = "disconnected"
	}
	rawInfo := infoStyle.Render(info)
	infoW := lipgloss.Width(rawInfo)

	budget := max(4, width-2-infoW)
	crumbs := remotepath.Breadcrumbs(m.nav.Path())
	if m.nav.Path() == "" {
		crumbs = nil
	}

	render := func(cs []remotepath.Crumb) string {
		parts := make([]string, 0, len(cs))
		for _, c := range cs {
			parts = append(parts, segStyle.Render(classify.Printable(c.Label)))
		}
		return strings.Join(parts, sepStyle.Render(crumbSep))
	}

	trail := render(crumbs)
	// Too wide: keep the deepest crumbs that fit behind an ellipsis.
	if lipgloss.Width(trail) > budget && len(crumbs) > 1 {
		lead := sepStyle.Render("…" + crumbSep)
		kept := crumbs[len(crumbs)-1:]
		for i := len(crumbs) - 2; i > 0; i-- {
			if lipgloss.Width(lead+render(append([]remotepath.Crumb{crumbs[i]}, kept...))) > budget {
				break
			}
			kept = append([]remotepath.Crumb{crumbs[i]}, kept...)
		}
		trail = trimVisual(lead+render(kept), budget)
	}

	gap := max(1, width-1-lipgloss.Width(trail)-infoW)
	return lipgloss.NewStyle().
		Width(width).
		Background(clrDim).
		PaddingLeft(1).
		Render(trail + strings.Repeat(" ", gap) + rawInfo)
}

// renderFileList draws the left pane: icon, name and size per row.
func (m *Model) renderFileList(w, h int) string {
	sizeW := m.st.ColumnWidth("size", 9)
	nameW := max(8, w-sizeW)

	mutedStyle := lipgloss.NewStyle().Foreground(clrMuted)
	titleStyle := lipgloss.NewStyle().Foreground(clrTitle).Bold(true)

	title := titleStyle.Render("files")
	if q := m.nav.Filter(); q != "" {
		title += mutedStyle.Render("  filter: " + q)
	}
	if m.nav.Loading() {
		title += lipgloss.NewStyle().Foreground(clrLoading).Render("  loading…")
	}

	lines := make([]string, 0, h)
	lines = append(lines,
		lipgloss.NewStyle().Width(w).Background(clrDim).PaddingLeft(1).Render(trimVisual(title, w-1)),
		lipgloss.NewStyle().Foreground(clrDim).Render(strings.Repeat("─", max(1, w))),
	)

	vis := m.nav.Visible()
	switch {
	case !m.nav.Connected() && m.nav.Connecting():
		lines = append(lines, mutedStyle.Render("  connecting…"))
	case !m.nav.Connected():
		lines = append(lines, mutedStyle.Render("  (not connected, c to connect)"))
	case len(vis) == 0 && m.nav.Filter() != "":
		lines = append(lines, mutedStyle.Render("  (no matches)"))
	case len(vis) == 0:
		lines = append(lines, mutedStyle.Render("  (empty directory)"))
	default:
		lines = append(lines, m.fileRows(vis, w, nameW, sizeW, max(1, h-2))...)
	}

	return lipgloss.NewStyle().Width(w).Height(h).Render(strings.Join(lines, "\n"))
}

func (m *Model) fileRows(vis []remote.Entry, w, nameW, sizeW, listH int) []string {
	scrollStyle := lipgloss.NewStyle().Foreground(clrScrollbar)

	// Indicators take rows of their own; showing one can push the window far
	// enough that the other is needed too.
	start, end := visibleWindow(m.selected, len(vis), listH)
	needTop, needBot := start > 0, end < len(vis)
	for {
		capacity := listH
		if needTop {
			capacity--
		}
		if needBot {
			capacity--
		}
		start, end = visibleWindow(m.selected, len(vis), max(1, capacity))
		top, bot := start > 0, end < len(vis)
		if top == needTop && bot == needBot {
			break
		}
		needTop, needBot = top, bot
	}

	rows := make([]string, 0, listH)
	if needTop {
		rows = append(rows, scrollStyle.Render(fmt.Sprintf("  ↑ %d more", start)))
	}
	for i := start; i < end; i++ {
		e := vis[i]
		cat := categorise(e)
		name := fileIcon(cat) + classify.Printable(e.Name)
		size := ""
		if e.IsDir {
			name += "/"
		} else {
			size = remote.HumanSize(e.Size)
		}
		sizeField := fmt.Sprintf("%*s", sizeW, size)

		if i == m.selected {
			sel := lipgloss.NewStyle().Foreground(clrAccentFg).Background(clrAccent).Bold(true)
			rows = append(rows, sel.Render(padRight(name, w-sizeW)+sizeField))
			continue
		}
		rows = append(rows,
			fileColor(cat).Render(padRight(name, nameW))+
				lipgloss.NewStyle().Foreground(clrSize).Render(sizeField))
	}
	if needBot {
		rows = append(rows, scrollStyle.Render(fmt.Sprintf("  ↓ %d more", len(vis)-end)))
	}
	return rows
}

// renderPreviewPane draws the right pane: header, divider, body and a
// footer with the page position.
func (m *Model) renderPreviewPane(w, h int) string {
	mutedStyle := lipgloss.NewStyle().Foreground(clrMuted)
	loadingStyle := lipgloss.NewStyle().Foreground(clrLoading)

	var headerLeft, headerRight string
	if e, ok := m.current(); ok {
		cat := categorise(e)
		name := fileIcon(cat) + classify.Printable(e.Name)
		meta := e.ModTime.Format(timeStamp)
		if e.IsDir {
			name += "/"
		} else {
			meta = remote.HumanSize(e.Size) + "  " + meta
		}
		headerLeft = fileColor(cat).Bold(true).Render(trimVisual(name, w/2))
		headerRight = mutedStyle.Render(meta)
		if m.preview.Loading() {
			headerRight = loadingStyle.Render("loading…")
		}
	} else {
		headerLeft = mutedStyle.Render("no selection")
	}
	gap := max(1, w-lipgloss.Width(headerLeft)-lipgloss.Width(headerRight)-2)
	header := lipgloss.NewStyle().Width(w).Background(clrDim).PaddingLeft(1).
		Render(headerLeft + strings.Repeat(" ", gap) + headerRight)
	divider := lipgloss.NewStyle().Foreground(clrDim).Render(strings.Repeat("─", max(1, w)))

	_, contentH := m.previewSize()
	body := m.bodyText()
	switch {
	case body != "":
	case m.preview.Loading():
		body = loadingStyle.Render("  loading preview…")
	case m.preview.Err() != nil:
		body = lipgloss.NewStyle().Foreground(clrError).Render("  " + classify.Printable(m.preview.Err().Error()))
	default:
		body = mutedStyle.Render("  (no preview available)")
	}

	var indicator string
	if m.previewOffset > 0 {
		contentH--
		indicator = lipgloss.NewStyle().Foreground(clrScrollbar).
			Render(fmt.Sprintf("  ↑ line %d", m.previewOffset+1)) + "\n"
	}
	visible := sliceLines(body, m.previewOffset, max(1, contentH), w)

	return header + "\n" + divider + "\n" +
		lipgloss.NewStyle().Width(w).Height(h-3).Render(indicator+visible) + "\n" +
		m.renderPreviewFooter(w)
}

func (m *Model) renderPreviewFooter(w int) string {
	s, ok := m.preview.Visible()
	if !ok || s.IsDir {
		return strings.Repeat(" ", w)
	}
	var parts []string
	if pager, offset, ok := m.preview.Pager(); ok && pager.Pages() > 1 {
		label := pager.Label(offset)
		if pager.HasPrev(offset) {
			label = "p ‹ " + label
		}
		if pager.HasNext(offset) {
			label += " › n"
		}
		parts = append(parts, label)
	}
	switch s.Disposition {
	case classify.Text:
		parts = append(parts, s.Encoding)
	default:
		parts = append(parts, strings.ToLower(s.Disposition.String()))
	}
	return padRight(lipgloss.NewStyle().Foreground(clrScrollbar).Render("  "+strings.Join(parts, hintSep)), w)
}

// renderTransfers lists the most recent transfers with their progress.
func (m *Model) renderTransfers(width int) string {
	mutedStyle := lipgloss.NewStyle().Foreground(clrMuted)
	recs := m.transfers.Records()

	title := lipgloss.NewStyle().Foreground(clrTitle).Bold(true).Render("transfers")
	if n := m.transfers.Active(); n > 0 {
		title += mutedStyle.Render(fmt.Sprintf("  %d active", n))
	}
	lines := []string{lipgloss.NewStyle().Width(width).Background(clrDim).PaddingLeft(1).Render(title)}

	if len(recs) == 0 {
		lines = append(lines, mutedStyle.Render("  (no transfers)"))
		return strings.Join(lines, "\n")
	}
	if len(recs) > maxTransferRows {
		recs = recs[len(recs)-maxTransferRows:]
	}
	for _, r := range recs {
		arrow := "↑"
		if r.Direction == transfer.Download {
			arrow = "↓"
		}
		statusStyle := mutedStyle
		switch r.Status {
		case transfer.Done:
			statusStyle = lipgloss.NewStyle().Foreground(clrExec)
		case transfer.Failed:
			statusStyle = lipgloss.NewStyle().Foreground(clrError)
		case transfer.Running:
			statusStyle = lipgloss.NewStyle().Foreground(clrLoading)
		}
		row := fmt.Sprintf("  %s %-3d %s %3d%%  ", arrow, r.ID, progressBar(r.Percent, barWidth), r.Percent)
		label := padRight(classify.Printable(r.Label), max(8, width/3))
		lines = append(lines, trimVisual(row+label+"  "+statusStyle.Render(r.StatusText()), width))
	}
	return strings.Join(lines, "\n")
}

// renderBottomBar draws the status line and, below it, either the open
// prompt or the key hints.
func (m *Model) renderBottomBar(width int) string {
	icon := "●"
	style := lipgloss.NewStyle().Foreground(clrStatus)
	lower := strings.ToLower(m.status)
	switch {
	case strings.Contains(lower, "failed"):
		style = lipgloss.NewStyle().Foreground(clrError)
	case strings.HasPrefix(lower, "loaded"), strings.HasSuffix(lower, "ready"):
		icon = "◆"
		style = lipgloss.NewStyle().Foreground(clrExec)
	}
	statusLine := lipgloss.NewStyle().
		Width(width).
		Background(clrDim).
		PaddingLeft(1).
		Render(style.Render(icon + " " + trimVisual(classify.Printable(m.status), max(1, width-3))))

	var second string
	if m.prompt != promptNone {
		second = m.input.View()
	} else {
		second = m.renderHints(width - 2)
	}
	return statusLine + "\n" + lipgloss.NewStyle().Width(width).Background(clrDim).PaddingLeft(1).Render(second)
}

type hint struct{ key, desc string }

func (m *Model) hints() []hint {
	if !m.nav.Connected() {
		return []hint{{"c", "connect"}, {"q", "quit"}}
	}
	hs := []hint{
		{"j/k", "move"},
		{"enter", "open"},
		{"h", "up"},
		{"[/]", "back/fwd"},
	}
	if _, _, ok := m.preview.Pager(); ok {
		hs = append(hs, hint{"n/p", "page"})
	}
	return append(hs,
		hint{"/", "filter"},
		hint{":", "go to"},
		hint{"u/d", "up/download"},
		hint{"t", "transfers"},
		hint{".", "hidden"},
		hint{"m", "mark"},
		hint{"r", "reload"},
		hint{"x", "disconnect"},
		hint{"q", "quit"},
	)
}

// renderHints lays out key hints left to right, stopping before budget.
func (m *Model) renderHints(budget int) string {
	keyStyle := lipgloss.NewStyle().Foreground(clrHintKey).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(clrHintText)
	sep := lipgloss.NewStyle().Foreground(clrDim).Render(hintSep)
	sepW := lipgloss.Width(sep)

	var sb strings.Builder
	used := 0
	for i, h := range m.hints() {
		seg := keyStyle.Render(h.key) + descStyle.Render(" "+h.desc)
		segW := lipgloss.Width(seg)
		extra := 0
		if i > 0 {
			extra = sepW
		}
		if used+extra+segW > budget {
			break
		}
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(seg)
		used += extra + segW
	}
	return sb.String()
}

// ── helpers ────────────────────────────────────────────────────────────────────

// visibleWindow returns the [start, end) range of rows to show, keeping
// selected roughly centred.
func visibleWindow(selected, total, height int) (int, int) {
	if total <= height {
		return 0, total
	}
	start := max(0, selected-height/2)
	end := start + height
	if end > total {
		end = total
		start = max(0, end-height)
	}
	return start, end
}

// sliceLines returns at most h lines of s starting at line from, each cut
// to w columns so nothing wraps.
func sliceLines(s string, from, h, w int) string {
	lines := strings.Split(s, "\n")
	from = min(max(0, from), max(0, len(lines)-1))
	end := min(len(lines), from+h)
	out := make([]string, 0, end-from)
	for _, l := range lines[from:end] {
		out = append(out, ansi.Truncate(l, w, "…"))
	}
	return strings.Join(out, "\n")
}

// trimVisual truncates s to at most n terminal columns, ending in "…" when
// cut. Escape sequences do not count.
func trimVisual(s string, n int) string {
	if n <= 0 {
		return ""
	}
	return ansi.Truncate(s, n, "…")
}

// padRight pads or truncates s to exactly n terminal columns.
func padRight(s string, n int) string {
	w := lipgloss.Width(s)
	if w >= n {
		return trimVisual(s, n)
	}
	return s + strings.Repeat(" ", n-w)
}

func progressBar(percent, width int) string {
	filled := min(width, max(0, percent*width/100))
	return lipgloss.NewStyle().Foreground(clrAccent).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(clrDim).Render(strings.Repeat("░", width-filled))
}
