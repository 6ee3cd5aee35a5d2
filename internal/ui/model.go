// Package ui is the Bubble Tea program that owns every piece of browser
// state. Controllers hand back tea.Cmd workers; their results come back
// through Update and are applied here, one at a time.
package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/zackbart/nova/internal/config"
	"github.com/zackbart/nova/internal/nav"
	"github.com/zackbart/nova/internal/preview"
	"github.com/zackbart/nova/internal/remote"
	"github.com/zackbart/nova/internal/remotepath"
	"github.com/zackbart/nova/internal/transfer"
)

const (
	ratioStep       = 0.05
	wheelStep       = 3
	maxTransferRows = 5
)

type Options struct {
	Store     remote.Store
	State     *config.State
	StatePath string // empty disables saving from inside the program
	Endpoint  remote.Endpoint
	Profile   string
	StartPath string
	Log       *zap.Logger
}

type promptKind int

const (
	promptNone promptKind = iota
	promptGoto
	promptFilter
	promptUpload
	promptProfile
)

type stateSavedMsg struct {
	profile string
	err     error
}

type Model struct {
	st        *config.State
	statePath string
	endpoint  remote.Endpoint
	profile   string
	startPath string
	log       *zap.Logger

	nav       *nav.Controller
	preview   *preview.Controller
	transfers *transfer.Tracker

	selected int
	selPath  string
	listRev  uint64
	lastDir  string

	previewOffset int
	body          renderedMsg
	rendering     bodyKey

	prompt promptKind
	input  textinput.Model

	showTransfers bool
	status        string
	width         int
	height        int
}

func New(opts Options) Model {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	st := opts.State
	if st == nil {
		st = &config.State{}
	}

	navCtl := nav.New(opts.Store, log.Named("nav"))
	navCtl.SetShowHidden(st.UI.ShowHidden)
	tracker := transfer.New(opts.Store, log.Named("transfer"))
	tracker.OnUploadDone(navCtl.Refresh)

	input := textinput.New()
	input.CharLimit = 4096
	input.Cursor.SetMode(cursor.CursorStatic)

	return Model{
		st:        st,
		statePath: opts.StatePath,
		endpoint:  opts.Endpoint,
		profile:   opts.Profile,
		startPath: opts.StartPath,
		log:       log,
		nav:       navCtl,
		preview:   preview.New(opts.Store, navCtl, st.Limits(), log.Named("preview")),
		transfers: tracker,
		input:     input,
		status:    navCtl.Status(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.nav.Connect(m.endpoint, m.startPath)
}

// Persist folds the session into the state for saving: the directory last
// shown under the active profile, the profile itself and the hidden toggle.
func (m Model) Persist() *config.State {
	if m.profile != "" {
		if m.lastDir != "" {
			m.st.RememberPath(m.profile, m.lastDir)
		}
		m.st.UI.LastProfile = m.profile
	}
	m.st.UI.ShowHidden = m.nav.ShowHidden()
	return m.st
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-14)
		m.clampPreviewOffset()

	case tea.KeyMsg:
		navBefore, previewBefore := m.nav.Status(), m.preview.Status()
		if m.prompt != promptNone {
			cmd = m.updatePrompt(msg)
		} else {
			cmd = m.handleKey(msg)
		}
		if st := m.preview.Status(); st != previewBefore && st != "" {
			m.status = st
		}
		if st := m.nav.Status(); st != navBefore {
			m.status = st
		}

	case tea.MouseMsg:
		m.handleMouse(tea.MouseEvent(msg))

	case nav.ConnectedMsg, nav.ConnectFailedMsg, nav.NavigatedMsg, nav.NavFailedMsg, nav.DisconnectedMsg:
		before := m.nav.Status()
		cmd = m.nav.Update(msg)
		if after := m.nav.Status(); after != before {
			m.status = after
		}
		cmd = tea.Batch(cmd, m.syncListing())

	case preview.LoadedMsg:
		m.preview.Update(msg)
		if msg.Session.Token == m.preview.Token() {
			m.status = m.preview.Status()
			m.previewOffset = 0
		}

	case preview.FailedMsg:
		m.preview.Update(msg)
		if msg.Token == m.preview.Token() {
			m.status = m.preview.Status()
		}

	case transfer.EventMsg:
		cmd = m.transfers.Update(msg)
		if r, ok := m.transfers.Record(msg.ID); ok && r.Status.Terminal() {
			if msg.Kind == transfer.EventDone || msg.Kind == transfer.EventFailed {
				m.status = fmt.Sprintf("%s %s: %s", r.Direction, r.Label, r.StatusText())
			}
		}

	case renderedMsg:
		if msg.key == m.wantBody() {
			m.body = msg
			m.clampPreviewOffset()
		}

	case stateSavedMsg:
		if msg.err != nil {
			m.log.Warn("save state", zap.Error(msg.err))
			m.status = fmt.Sprintf("Save failed: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("Profile %q saved", msg.profile)
		}
	}

	return m, tea.Batch(cmd, m.syncBody())
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		return tea.Quit

	case "j", "down":
		return m.moveTo(m.selected + 1)
	case "k", "up":
		return m.moveTo(m.selected - 1)
	case "g", "home":
		return m.moveTo(0)
	case "G", "end":
		return m.moveTo(len(m.nav.Visible()) - 1)

	case "l", "right", "enter":
		e, ok := m.current()
		if !ok {
			return nil
		}
		if e.IsDir {
			return m.nav.Navigate(e.Path, true)
		}
		m.previewOffset = 0
		return m.preview.Select(e)
	case "h", "left", "backspace":
		return m.nav.GoUp()
	case "[", "alt+left":
		return m.nav.GoBack()
	case "]", "alt+right":
		return m.nav.GoForward()
	case "r":
		m.preview.Forget()
		return m.nav.Refresh()

	case ".":
		m.nav.ToggleHidden()
		m.st.UI.ShowHidden = m.nav.ShowHidden()
		if m.nav.ShowHidden() {
			m.status = "Showing hidden files"
		} else {
			m.status = "Hiding hidden files"
		}
		return m.reselect()
	case "/":
		return m.openPrompt(promptFilter, "filter: ", m.nav.Filter())
	case "esc":
		if m.nav.Filter() != "" {
			m.nav.SetFilter("")
			return m.reselect()
		}
	case ":":
		return m.openPrompt(promptGoto, "go to: ", m.nav.Path())

	case "n":
		return m.turnPage(m.preview.NextPage)
	case "p":
		return m.turnPage(m.preview.PrevPage)
	case "ctrl+d", "pgdown":
		m.previewOffset += m.scrollStep()
		m.clampPreviewOffset()
	case "ctrl+u", "pgup":
		m.previewOffset -= m.scrollStep()
		m.clampPreviewOffset()
	case "<":
		m.st.SetPreviewRatio(m.st.PreviewRatio() - ratioStep)
	case ">":
		m.st.SetPreviewRatio(m.st.PreviewRatio() + ratioStep)

	case "u":
		if m.nav.Connected() {
			return m.openPrompt(promptUpload, "upload: ", "")
		}
	case "d":
		return m.download()
	case "t":
		m.showTransfers = !m.showTransfers

	case "c":
		if !m.nav.Connected() && !m.nav.Connecting() {
			m.preview.Forget()
			return m.nav.Connect(m.endpoint, m.reopenPath())
		}
	case "x":
		if m.nav.Connected() || m.nav.Connecting() {
			m.preview.Reset()
			cmd := m.nav.Disconnect()
			m.status = m.nav.Status()
			return tea.Batch(cmd, m.syncListing())
		}

	case "m":
		if p := m.nav.Path(); p != "" {
			if m.st.ToggleBookmark(p) {
				m.status = "Bookmarked " + p
			} else {
				m.status = "Removed bookmark " + p
			}
		}
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		n := int(key[0] - '0')
		p, ok := m.st.Bookmark(n)
		if !ok {
			m.status = fmt.Sprintf("No bookmark %d", n)
			return nil
		}
		return m.nav.Navigate(p, true)

	case "s":
		if m.nav.Connected() && m.endpoint.Host != "" {
			return m.openPrompt(promptProfile, "profile name: ", m.profile)
		}
	}
	return nil
}

func (m *Model) handleMouse(ev tea.MouseEvent) {
	if !m.isInPreviewPane(ev.X, ev.Y) {
		return
	}
	switch ev.Button {
	case tea.MouseButtonWheelDown:
		m.previewOffset += wheelStep
	case tea.MouseButtonWheelUp:
		m.previewOffset -= wheelStep
	}
	m.clampPreviewOffset()
}

func (m *Model) openPrompt(kind promptKind, label, value string) tea.Cmd {
	m.prompt = kind
	m.input.Prompt = label
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) closePrompt() {
	m.prompt = promptNone
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) updatePrompt(msg tea.KeyMsg) tea.Cmd {
	kind := m.prompt
	switch msg.Type {
	case tea.KeyEsc:
		m.closePrompt()
		if kind == promptFilter {
			m.nav.SetFilter("")
			return m.reselect()
		}
		return nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		m.closePrompt()
		return m.submit(kind, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if kind == promptFilter {
		m.nav.SetFilter(m.input.Value())
		return tea.Batch(cmd, m.reselect())
	}
	return cmd
}

func (m *Model) submit(kind promptKind, value string) tea.Cmd {
	switch kind {
	case promptGoto:
		if value == "" {
			return nil
		}
		return m.nav.Navigate(value, true)

	case promptFilter:
		m.nav.SetFilter(value)
		return m.reselect()

	case promptUpload:
		if value == "" || !m.nav.Connected() {
			return nil
		}
		local := config.ExpandHome(value)
		m.showTransfers = true
		return m.transfers.Upload(local, remotepath.Join(m.nav.Path(), filepath.Base(local)))

	case promptProfile:
		if value == "" {
			return nil
		}
		m.st.UpsertProfile(config.Profile{
			Name:     value,
			Host:     m.endpoint.Host,
			Port:     m.endpoint.Port,
			Username: m.endpoint.Username,
			KeyPath:  m.endpoint.KeyPath,
			LastPath: m.nav.Path(),
		})
		m.profile = value
		m.st.UI.LastProfile = value
		return m.saveState(value)
	}
	return nil
}

func (m *Model) saveState(profile string) tea.Cmd {
	if m.statePath == "" {
		return nil
	}
	snapshot, path := m.st.Clone(), m.statePath
	return func() tea.Msg {
		return stateSavedMsg{profile: profile, err: config.Save(path, snapshot)}
	}
}

func (m *Model) download() tea.Cmd {
	e, ok := m.current()
	if !ok || e.IsDir || !m.nav.Connected() {
		return nil
	}
	m.showTransfers = true
	return m.transfers.Download(e.Path, filepath.Join(m.st.DownloadDirPath(), e.Name))
}

// reopenPath is where a reconnect lands: the directory shown last, else the
// profile's last directory, else the one asked for at startup.
func (m *Model) reopenPath() string {
	if m.lastDir != "" {
		return m.lastDir
	}
	if p, ok := m.st.Profile(m.profile); ok && p.LastPath != "" {
		return p.LastPath
	}
	return m.startPath
}

func (m *Model) turnPage(page func() tea.Cmd) tea.Cmd {
	token := m.preview.Token()
	cmd := page()
	if m.preview.Token() != token {
		m.previewOffset = 0
	}
	return cmd
}

// ── selection ──────────────────────────────────────────────────────────────────

func (m *Model) current() (remote.Entry, bool) {
	vis := m.nav.Visible()
	if m.selected < 0 || m.selected >= len(vis) {
		return remote.Entry{}, false
	}
	return vis[m.selected], true
}

// moveTo selects row i of the visible listing and previews it.
func (m *Model) moveTo(i int) tea.Cmd {
	vis := m.nav.Visible()
	if len(vis) == 0 {
		return nil
	}
	i = min(len(vis)-1, max(0, i))
	if i == m.selected && vis[i].Path == m.selPath {
		return nil
	}
	m.selected = i
	return m.previewSelected(vis)
}

func (m *Model) previewSelected(vis []remote.Entry) tea.Cmd {
	if len(vis) == 0 {
		m.selected = 0
		m.selPath = ""
		m.preview.Reset()
		return nil
	}
	m.selected = min(len(vis)-1, max(0, m.selected))
	e := vis[m.selected]
	m.selPath = e.Path
	m.previewOffset = 0
	return m.preview.Select(e)
}

// reselect keeps the selected entry across a change of the visible rows,
// previewing a new one only when it dropped out.
func (m *Model) reselect() tea.Cmd {
	vis := m.nav.Visible()
	for i, e := range vis {
		if e.Path == m.selPath {
			m.selected = i
			return nil
		}
	}
	m.selected = 0
	return m.previewSelected(vis)
}

// syncListing reacts to a listing swapped in by the navigation controller.
// A refresh of the same directory keeps the selection when it can; a new
// directory starts at the top.
func (m *Model) syncListing() tea.Cmd {
	rev := m.nav.Revision()
	if rev == m.listRev {
		return nil
	}
	m.listRev = rev
	if p := m.nav.Path(); p != "" {
		m.lastDir = p
	}

	vis := m.nav.Visible()
	if m.selPath != "" && remotepath.Parent(m.selPath) == m.nav.Path() {
		for i, e := range vis {
			if e.Path == m.selPath {
				m.selected = i
				token := m.preview.Token()
				cmd := m.preview.Refresh(e)
				if m.preview.Token() != token {
					m.previewOffset = 0
				}
				return cmd
			}
		}
	}
	m.selected = 0
	return m.previewSelected(vis)
}

// ── preview body ───────────────────────────────────────────────────────────────

// wantBody is the rendering the preview pane needs right now.
func (m *Model) wantBody() bodyKey {
	s, ok := m.preview.Visible()
	if !ok {
		return bodyKey{}
	}
	w, h := m.previewSize()
	return bodyKey{token: s.Token, width: w, height: h}
}

// syncBody starts a styled rendering when the visible session or the pane
// size changed since the last one.
func (m *Model) syncBody() tea.Cmd {
	key := m.wantBody()
	if key == (bodyKey{}) || m.width == 0 || key == m.body.key || key == m.rendering {
		return nil
	}
	s, _ := m.preview.Visible()
	m.rendering = key
	return renderCmd(s, m.preview.Limits(), key)
}

// bodyText is the styled rendering when it is ready, else a plain one.
func (m *Model) bodyText() string {
	s, ok := m.preview.Visible()
	if !ok {
		return ""
	}
	key := m.wantBody()
	if m.body.key == key {
		return m.body.text
	}
	return renderSession(s, m.preview.Limits(), key.width, key.height, false)
}

func (m *Model) clampPreviewOffset() {
	if m.previewOffset < 0 {
		m.previewOffset = 0
	}
	body := m.bodyText()
	if body == "" {
		m.previewOffset = 0
		return
	}
	_, h := m.previewSize()
	maxStart := max(0, strings.Count(body, "\n")+1-h)
	if m.previewOffset > maxStart {
		m.previewOffset = maxStart
	}
}

func (m *Model) scrollStep() int {
	_, h := m.previewSize()
	return max(3, h/2)
}
