package ui

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zackbart/nova/internal/classify"
	"github.com/zackbart/nova/internal/preview"
	"github.com/zackbart/nova/internal/remote"
)

func TestVisibleWindow(t *testing.T) {
	tests := []struct {
		selected, total, height int
		start, end              int
	}{
		{0, 5, 10, 0, 5},
		{0, 20, 10, 0, 10},
		{10, 20, 10, 5, 15},
		{19, 20, 10, 10, 20},
		{3, 20, 10, 0, 10},
	}
	for _, tt := range tests {
		start, end := visibleWindow(tt.selected, tt.total, tt.height)
		assert.Equal(t, tt.start, start, "start for %+v", tt)
		assert.Equal(t, tt.end, end, "end for %+v", tt)
	}
}

func TestSliceLines(t *testing.T) {
	body := "one\ntwo\nthree is a long line\nfour"
	assert.Equal(t, "two\nthre…", sliceLines(body, 1, 2, 5))
	assert.Equal(t, "four", sliceLines(body, 10, 3, 20), "offset past the end shows the last line")
	assert.Equal(t, "one", sliceLines(body, -4, 1, 20))
}

func TestPadRightAndTrim(t *testing.T) {
	assert.Equal(t, "ab  ", padRight("ab", 4))
	assert.Equal(t, "abc…", padRight("abcdef", 4))
	assert.Equal(t, "", trimVisual("abc", 0))
	assert.Equal(t, 6, lipgloss.Width(padRight("▸ x", 6)))
}

func TestCategorise(t *testing.T) {
	tests := []struct {
		entry remote.Entry
		want  fileCategory
	}{
		{remote.Entry{Name: "etc", IsDir: true}, catDir},
		{remote.Entry{Name: "current", Mode: os.ModeSymlink | 0o777}, catLink},
		{remote.Entry{Name: "logo.PNG"}, catImage},
		{remote.Entry{Name: "README.md"}, catDoc},
		{remote.Entry{Name: "app.yaml"}, catConfig},
		{remote.Entry{Name: "main.go"}, catCode},
		{remote.Entry{Name: "dump.tar"}, catBinary},
		{remote.Entry{Name: "deploy", Mode: 0o755}, catExec},
		{remote.Entry{Name: "blob", Mode: 0o644}, catOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categorise(tt.entry), tt.entry.Name)
	}
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, 10, lipgloss.Width(progressBar(45, 10)))
	assert.Equal(t, strings.Repeat("█", 4)+strings.Repeat("░", 6), progressBar(45, 10))
	assert.Equal(t, strings.Repeat("█", 10), progressBar(150, 10))
}

func TestRenderImageASCII(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for x := 20; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	out := renderImageASCII(img, 22, 40)
	lines := strings.Split(out, "\n")
	require.NotEmpty(t, lines)
	assert.Len(t, lines, 5, "cells are twice as tall as wide")
	assert.Len(t, lines[0], 20)
	assert.Equal(t, ' ', rune(lines[0][0]))
	assert.Equal(t, '@', rune(lines[0][19]))

	assert.Empty(t, renderImageASCII(image.NewGray(image.Rect(0, 0, 0, 0)), 20, 10))
	assert.Empty(t, renderImageASCII(nil, 20, 10))
}

func TestRenderSessionPlain(t *testing.T) {
	limits := classify.DefaultLimits()
	s := preview.Session{
		Path:        "/var/log/app.log",
		Disposition: classify.Text,
		Text:        "a\tb",
		Encoding:    "utf-8",
		Truncated:   true,
		Meta:        preview.Meta{Path: "/var/log/app.log", Kind: "File", Size: 3, Human: "3 B", Perm: "-rw-r--r--"},
	}
	out := renderSession(s, limits, 60, 20, false)
	assert.Contains(t, out, "Path: /var/log/app.log")
	assert.Contains(t, out, "Permissions: -rw-r--r--")
	assert.Contains(t, out, "a    b")
	assert.Contains(t, out, "[Page truncated. Use Next for more.]")

	hex := preview.Session{Disposition: classify.Binary, Hex: "00000000  00 01", Meta: preview.Meta{Kind: "File"}}
	assert.Contains(t, renderSession(hex, limits, 60, 20, true), "00000000  00 01")
}

func TestRemoteTextCannotEscape(t *testing.T) {
	limits := classify.DefaultLimits()
	s := preview.Session{
		Path:        "/tmp/x\x1b[2J.txt",
		Disposition: classify.Text,
		Text:        "hello\x1b]0;pwned\x07\x1b[2J world",
		Meta:        preview.Meta{Path: "/tmp/x\x1b[2J.txt", Kind: "File"},
	}
	for _, styled := range []bool{false, true} {
		out := renderSession(s, limits, 60, 20, styled)
		assert.NotContains(t, out, "pwned", "styled=%v", styled)
		assert.NotContains(t, out, "\x1b[2J", "styled=%v", styled)
		assert.NotContains(t, out, "\a", "styled=%v", styled)
	}
	assert.Contains(t, renderSession(s, limits, 60, 20, false), "hello world")

	f := newFixture(t)
	m := started(t, f)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "evil\x1b]0;pwned\x07.txt"), []byte("x"), 0o644))
	m = press(t, m, "r")
	view := m.View()
	assert.NotContains(t, view, "pwned")
	assert.NotContains(t, view, "\a")
}

func TestProgramQuitsAndPersists(t *testing.T) {
	f := newFixture(t)
	tm := teatest.NewTestModel(t, New(f.options()), teatest.WithInitialTermSize(100, 30))

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("notes.txt"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(".")})
	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))

	final, ok := tm.FinalModel(t).(Model)
	require.True(t, ok)
	assert.True(t, final.Persist().UI.ShowHidden)
}
