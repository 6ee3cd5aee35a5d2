package ui

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zackbart/nova/internal/classify"
	"github.com/zackbart/nova/internal/preview"
	"github.com/zackbart/nova/internal/remotepath"
)

// bodyKey identifies one rendering of a preview session. A different pane
// size needs a new rendering.
type bodyKey struct {
	token  uint64
	width  int
	height int
}

type renderedMsg struct {
	key  bodyKey
	text string
}

// renderCmd styles s off the UI loop. Markdown and highlighting of a full
// page are too slow to run inside View.
func renderCmd(s preview.Session, limits classify.Limits, key bodyKey) tea.Cmd {
	return func() tea.Msg {
		return renderedMsg{key: key, text: renderSession(s, limits, key.width, key.height, true)}
	}
}

// renderSession lays out a session as the preview body. With styled unset
// it skips markdown, highlighting and image art, which is what is shown
// until the styled rendering arrives.
func renderSession(s preview.Session, limits classify.Limits, width, height int, styled bool) string {
	mutedStyle := lipgloss.NewStyle().Foreground(clrMuted)

	var sb strings.Builder
	for _, l := range s.Meta.Lines() {
		sb.WriteString(mutedStyle.Render("  "+l) + "\n")
	}
	sb.WriteString(lipgloss.NewStyle().Foreground(clrDim).Render("  "+strings.Repeat("─", max(1, min(30, width-4)))) + "\n\n")
	metaH := len(s.Meta.Lines()) + 2

	switch {
	case s.IsDir:
		sb.WriteString(mutedStyle.Render("  enter to open"))

	case s.Disposition == classify.Image && s.Image != nil:
		b := s.Image.Bounds()
		sb.WriteString(lipgloss.NewStyle().Foreground(clrMedia).Render(
			fmt.Sprintf("  %s image, %d×%d", strings.ToUpper(s.ImageFormat), b.Dx(), b.Dy())) + "\n\n")
		if !styled {
			sb.WriteString(lipgloss.NewStyle().Foreground(clrLoading).Render("  rendering…"))
			break
		}
		sb.WriteString(renderImageASCII(s.Image, width, height-metaH-2))

	case s.Disposition == classify.Text:
		sb.WriteString(renderText(s, width, styled))

	default:
		sb.WriteString(s.Hex)
	}

	if note := s.Note(limits); note != "" {
		sb.WriteString("\n\n" + lipgloss.NewStyle().Foreground(clrScrollbar).Render(note))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderText(s preview.Session, width int, styled bool) string {
	text := strings.ReplaceAll(classify.Printable(s.Text), "\t", "    ")
	if !styled || strings.TrimSpace(text) == "" {
		return text
	}
	if remotepath.Ext(s.Path) == ".md" {
		return renderMarkdown(text, width)
	}
	if out := highlight(s.Path, text); out != "" {
		return out
	}
	return text
}

func renderMarkdown(markdown string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(24, width-3)),
		glamour.WithTableWrap(true),
		glamour.WithPreservedNewLines(),
		glamour.WithEmoji(),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.Trim(out, "\n")
}

// highlight returns text with terminal colour escapes, or "" when no lexer
// applies cleanly.
func highlight(path, text string) string {
	lexer := lexers.Match(remotepath.Base(path))
	if lexer == nil {
		lexer = lexers.Analyse(text)
	}
	if lexer == nil {
		return ""
	}

	style := styles.Get("nord")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return ""
	}
	return buf.String()
}

var asciiRamp = []rune(" .:-=+*#%@")

// renderImageASCII samples img onto a width×height character grid, picking
// a ramp character per cell by luminance.
func renderImageASCII(img image.Image, width, height int) string {
	if img == nil {
		return ""
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return ""
	}

	outW := max(16, width-2)
	outH := max(8, height)
	// Terminal cells are about twice as tall as wide.
	if fit := outW * b.Dy() / (2 * b.Dx()); fit > 0 && fit < outH {
		outH = fit
	}

	var sb strings.Builder
	for y := 0; y < outH; y++ {
		sy := b.Min.Y + (y*(b.Dy()-1))/max(1, outH-1)
		for x := 0; x < outW; x++ {
			sx := b.Min.X + (x*(b.Dx()-1))/max(1, outW-1)
			idx := int(luminance(img.At(sx, sy)) * float64(len(asciiRamp)-1) / 255.0)
			sb.WriteRune(asciiRamp[min(len(asciiRamp)-1, max(0, idx))])
		}
		if y < outH-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// luminance is the Rec. 601 luma of c in 0..255.
func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return float64(r>>8)*0.299 + float64(g>>8)*0.587 + float64(b>>8)*0.114
}
