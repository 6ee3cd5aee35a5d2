package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/zackbart/nova/internal/classify"
	"github.com/zackbart/nova/internal/remote"
	"github.com/zackbart/nova/internal/remotepath"
)

// ── palette ────────────────────────────────────────────────────────────────────
var (
	clrAccent     = lipgloss.Color("105")
	clrAccentFg   = lipgloss.Color("231")
	clrDir        = lipgloss.Color("75")
	clrExec       = lipgloss.Color("114")
	clrMedia      = lipgloss.Color("215")
	clrDoc        = lipgloss.Color("189")
	clrConfig     = lipgloss.Color("222")
	clrBinary     = lipgloss.Color("203")
	clrLink       = lipgloss.Color("80")
	clrSize       = lipgloss.Color("244")
	clrMuted      = lipgloss.Color("240")
	clrDim        = lipgloss.Color("238")
	clrBreadcrumb = lipgloss.Color("147")
	clrPathSep    = lipgloss.Color("238")
	clrHintKey    = lipgloss.Color("105")
	clrHintText   = lipgloss.Color("244")
	clrStatus     = lipgloss.Color("189")
	clrError      = lipgloss.Color("203")
	clrBorder     = lipgloss.Color("237")
	clrTitle      = lipgloss.Color("147")
	clrLoading    = lipgloss.Color("214")
	clrScrollbar  = lipgloss.Color("99")
)

type fileCategory int

const (
	catDir fileCategory = iota
	catLink
	catImage
	catDoc
	catCode
	catConfig
	catExec
	catBinary
	catOther
)

var docExts = map[string]bool{".md": true, ".txt": true, ".log": true, ".csv": true, ".dat": true}

var configExts = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true, ".xml": true,
}

// binaryExts are names that are never worth sampling to guess.
var binaryExts = map[string]bool{
	".gz": true, ".tgz": true, ".zip": true, ".tar": true, ".xz": true,
	".bin": true, ".so": true, ".o": true, ".a": true, ".pdf": true,
}

// categorise picks colour and icon from the name and mode bits alone; it
// never looks at content.
func categorise(e remote.Entry) fileCategory {
	switch {
	case e.IsDir:
		return catDir
	case e.Mode&os.ModeSymlink != 0:
		return catLink
	}
	ext := remotepath.Ext(e.Name)
	switch {
	case classify.IsImageExt(ext):
		return catImage
	case docExts[ext]:
		return catDoc
	case configExts[ext]:
		return catConfig
	case classify.IsTextExt(ext):
		return catCode
	case binaryExts[ext]:
		return catBinary
	case e.Mode&0o111 != 0:
		return catExec
	}
	return catOther
}

func fileIcon(cat fileCategory) string {
	switch cat {
	case catDir:
		return "▸ "
	case catLink:
		return "↪ "
	case catImage:
		return "⬡ "
	case catDoc:
		return "≡ "
	case catCode:
		return "⟨⟩ "
	case catConfig:
		return "⚙ "
	case catExec:
		return "⚡ "
	case catBinary:
		return "⬟ "
	default:
		return "· "
	}
}

func fileColor(cat fileCategory) lipgloss.Style {
	s := lipgloss.NewStyle()
	switch cat {
	case catDir:
		return s.Foreground(clrDir).Bold(true)
	case catLink:
		return s.Foreground(clrLink).Italic(true)
	case catImage:
		return s.Foreground(clrMedia)
	case catDoc:
		return s.Foreground(clrDoc)
	case catCode:
		return s.Foreground(lipgloss.Color("231"))
	case catConfig:
		return s.Foreground(clrConfig)
	case catExec:
		return s.Foreground(clrExec)
	case catBinary:
		return s.Foreground(clrBinary)
	default:
		return s.Foreground(lipgloss.Color("252"))
	}
}
