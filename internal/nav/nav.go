// Package nav owns the browsing session: which directory is shown, its
// listing, and back/forward history.
//
// A Controller is not safe for concurrent use. It is driven from the Bubble
// Tea update loop; every method that touches the store returns a tea.Cmd that
// does the remote work off the loop and reports back with a message, which
// must be fed to Update.
package nav

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/zackbart/nova/internal/remote"
	"github.com/zackbart/nova/internal/remotepath"
)

// State is the browsing position. Back and Forward hold the most recent
// entry last.
type State struct {
	Path    string
	Back    []string
	Forward []string
}

// Error is a failed navigation or refresh.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type move int

const (
	moveNone move = iota
	moveRecord
	moveBack
	moveForward
	moveRefresh
)

type (
	ConnectedMsg struct {
		epoch     uint64
		Cwd       string
		Home      string
		requested string
	}

	ConnectFailedMsg struct {
		epoch uint64
		Err   error
	}

	NavigatedMsg struct {
		epoch   uint64
		seq     uint64
		move    move
		target  string
		Path    string
		Listing remote.Listing
		Elapsed time.Duration
	}

	NavFailedMsg struct {
		epoch    uint64
		seq      uint64
		move     move
		Path     string
		fallback string
		Err      error
	}

	DisconnectedMsg struct {
		Err error
	}
)

type Controller struct {
	store remote.Store
	log   *zap.Logger

	// epoch changes on every connect and disconnect; seq on every
	// navigation that may change history. Results carrying old values are
	// dropped.
	epoch uint64
	seq   uint64

	connecting bool
	connected  bool
	loading    bool
	home       string

	state   State
	listing remote.Listing
	rev     uint64

	showHidden bool
	filter     string

	status string
	err    error
}

func New(store remote.Store, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{store: store, log: log, status: "Disconnected"}
}

func (c *Controller) Connected() bool  { return c.connected }
func (c *Controller) Connecting() bool { return c.connecting }
func (c *Controller) Loading() bool    { return c.loading }
func (c *Controller) Home() string     { return c.home }
func (c *Controller) Path() string     { return c.state.Path }
func (c *Controller) Status() string   { return c.status }

// Err is the most recent navigation or connection failure, cleared by the
// next successful listing.
func (c *Controller) Err() error { return c.err }

func (c *Controller) State() State {
	return State{
		Path:    c.state.Path,
		Back:    slices.Clone(c.state.Back),
		Forward: slices.Clone(c.state.Forward),
	}
}

func (c *Controller) CanGoBack() bool    { return c.connected && len(c.state.Back) > 0 }
func (c *Controller) CanGoForward() bool { return c.connected && len(c.state.Forward) > 0 }

// Connect opens the store and, once connected, lists requested (or the
// login directory when requested is empty or "."). It is a no-op while a
// connect is already in flight.
func (c *Controller) Connect(ep remote.Endpoint, requested string) tea.Cmd {
	if c.connecting {
		return nil
	}
	c.reset()
	c.epoch++
	c.connecting = true
	c.status = "Connecting..."

	epoch, store, log := c.epoch, c.store, c.log
	return func() tea.Msg {
		ctx := context.Background()
		cwd, err := store.Connect(ctx, ep)
		if err != nil {
			log.Warn("connect failed", zap.String("addr", ep.Addr()), zap.Error(err))
			return ConnectFailedMsg{epoch: epoch, Err: err}
		}
		home, err := store.Normalize(ctx, "~")
		if err != nil {
			log.Debug("home lookup failed, using cwd", zap.Error(err))
			home = cwd
		}
		return ConnectedMsg{epoch: epoch, Cwd: cwd, Home: home, requested: requested}
	}
}

// Disconnect drops all session state immediately. Results still in flight
// are discarded when they arrive. The returned command closes the store.
func (c *Controller) Disconnect() tea.Cmd {
	c.reset()
	c.epoch++
	c.status = "Disconnected"

	store := c.store
	return func() tea.Msg {
		return DisconnectedMsg{Err: store.Disconnect()}
	}
}

func (c *Controller) reset() {
	c.connecting = false
	c.connected = false
	c.loading = false
	c.home = ""
	c.state = State{}
	c.listing = nil
	c.rev++
	c.filter = ""
	c.err = nil
}

// Navigate resolves target against the current directory and home and lists
// it. With record set, a successful result pushes the previous directory on
// the back stack and clears forward history.
func (c *Controller) Navigate(target string, record bool) tea.Cmd {
	if !c.connected {
		return nil
	}
	resolved := remotepath.Resolve(strings.TrimSpace(target), c.state.Path, c.home)
	mv := moveNone
	if record {
		mv = moveRecord
	}
	return c.navigate(resolved, mv, "")
}

func (c *Controller) GoBack() tea.Cmd {
	if !c.CanGoBack() {
		return nil
	}
	return c.navigate(c.state.Back[len(c.state.Back)-1], moveBack, "")
}

func (c *Controller) GoForward() tea.Cmd {
	if !c.CanGoForward() {
		return nil
	}
	return c.navigate(c.state.Forward[len(c.state.Forward)-1], moveForward, "")
}

// GoUp lists the parent directory. It does nothing at the root.
func (c *Controller) GoUp() tea.Cmd {
	if !c.connected || c.state.Path == remotepath.Root {
		return nil
	}
	return c.navigate(remotepath.Parent(c.state.Path), moveRecord, "")
}

// Refresh re-lists the current directory. It leaves history alone and never
// supersedes a navigation in flight: its result is only applied when no newer
// navigation was issued and the directory is still the one shown.
func (c *Controller) Refresh() tea.Cmd {
	if !c.connected || c.state.Path == "" {
		return nil
	}
	epoch, seq, p := c.epoch, c.seq, c.state.Path
	store, log := c.store, c.log
	return func() tea.Msg {
		start := time.Now()
		listing, err := store.ListDir(context.Background(), p)
		if err != nil {
			log.Debug("refresh failed", zap.String("path", p), zap.Error(err))
			return NavFailedMsg{epoch: epoch, seq: seq, move: moveRefresh, Path: p, Err: err}
		}
		return NavigatedMsg{epoch: epoch, seq: seq, move: moveRefresh, Path: p, Listing: listing, Elapsed: time.Since(start)}
	}
}

func (c *Controller) navigate(target string, mv move, fallback string) tea.Cmd {
	c.seq++
	c.loading = true
	c.status = fmt.Sprintf("Navigating to %s ...", target)

	epoch, seq := c.epoch, c.seq
	store, log := c.store, c.log
	return func() tea.Msg {
		start := time.Now()
		ctx := context.Background()
		fail := func(p string, err error) tea.Msg {
			log.Debug("navigation failed", zap.String("path", p), zap.Error(err))
			return NavFailedMsg{epoch: epoch, seq: seq, move: mv, Path: p, fallback: fallback, Err: err}
		}

		p, err := store.Normalize(ctx, target)
		if err != nil {
			return fail(target, err)
		}
		attr, err := store.Stat(ctx, p)
		if err != nil {
			return fail(p, err)
		}
		if !attr.IsDir() {
			return fail(p, remote.ErrNotDirectory)
		}
		listing, err := store.ListDir(ctx, p)
		if err != nil {
			return fail(p, err)
		}
		return NavigatedMsg{epoch: epoch, seq: seq, move: mv, target: target, Path: p, Listing: listing, Elapsed: time.Since(start)}
	}
}

// Update applies a result produced by one of the controller's commands.
// Stale results are dropped. It may return a follow-up command.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case ConnectedMsg:
		if msg.epoch != c.epoch {
			// Disconnected while the connect was in flight: close the
			// session it opened unless a newer connect owns the store.
			if c.connecting || c.connected {
				return nil
			}
			store := c.store
			return func() tea.Msg {
				return DisconnectedMsg{Err: store.Disconnect()}
			}
		}
		c.connecting = false
		c.connected = true
		c.home = msg.Home
		c.state = State{Path: msg.Cwd}
		c.status = "Connected"
		if msg.requested != "" && msg.requested != "." {
			resolved := remotepath.Resolve(msg.requested, msg.Cwd, msg.Home)
			return c.navigate(resolved, moveNone, msg.Cwd)
		}
		return c.navigate(msg.Cwd, moveNone, "")

	case ConnectFailedMsg:
		if msg.epoch != c.epoch {
			return nil
		}
		c.reset()
		c.err = msg.Err
		c.status = fmt.Sprintf("Connection failed: %v", msg.Err)

	case NavigatedMsg:
		if !c.current(msg.epoch, msg.seq, msg.move, msg.Path) {
			c.log.Debug("dropping stale listing", zap.String("path", msg.Path))
			return nil
		}
		c.apply(msg)

	case NavFailedMsg:
		if !c.current(msg.epoch, msg.seq, msg.move, msg.Path) {
			return nil
		}
		if msg.move != moveRefresh {
			c.loading = false
		}
		c.err = &Error{Path: msg.Path, Err: msg.Err}
		c.status = fmt.Sprintf("Navigation failed: %v", c.err)
		if msg.fallback != "" {
			return c.navigate(msg.fallback, moveNone, "")
		}

	case DisconnectedMsg:
		if msg.Err != nil {
			c.log.Warn("disconnect", zap.Error(msg.Err))
		}
	}
	return nil
}

func (c *Controller) current(epoch, seq uint64, mv move, p string) bool {
	if !c.connected || epoch != c.epoch || seq != c.seq {
		return false
	}
	return mv != moveRefresh || p == c.state.Path
}

func (c *Controller) apply(msg NavigatedMsg) {
	prev := c.state.Path
	switch msg.move {
	case moveRecord:
		if prev != "" && prev != msg.Path {
			c.state.Back = pushDistinct(c.state.Back, prev)
			c.state.Forward = nil
		}
	case moveBack:
		c.state.Back = popIf(c.state.Back, msg.target)
		if prev != msg.Path {
			c.state.Forward = pushDistinct(c.state.Forward, prev)
		}
	case moveForward:
		c.state.Forward = popIf(c.state.Forward, msg.target)
		if prev != msg.Path {
			c.state.Back = pushDistinct(c.state.Back, prev)
		}
	}
	if msg.move != moveRefresh {
		c.loading = false
	}
	c.state.Path = msg.Path
	c.listing = msg.Listing
	c.rev++
	c.err = nil
	c.status = fmt.Sprintf("Loaded %d items in %s", len(msg.Listing), msg.Path)
}

func pushDistinct(stack []string, p string) []string {
	if len(stack) > 0 && stack[len(stack)-1] == p {
		return stack
	}
	return append(stack, p)
}

// popIf removes the top of stack when it is p.
func popIf(stack []string, p string) []string {
	if len(stack) > 0 && stack[len(stack)-1] == p {
		return stack[:len(stack)-1]
	}
	return stack
}

// Revision changes whenever the listing is replaced or cleared.
func (c *Controller) Revision() uint64 { return c.rev }

// Listing is the last listing fetched, unfiltered.
func (c *Controller) Listing() remote.Listing { return c.listing }

// Visible is the listing with hidden entries and the filter query applied.
func (c *Controller) Visible() []remote.Entry {
	query := strings.ToLower(strings.TrimSpace(c.filter))
	out := make([]remote.Entry, 0, len(c.listing))
	for _, e := range c.listing {
		if !c.showHidden && strings.HasPrefix(e.Name, ".") {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.Name), query) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Entry looks p up in the last listing.
func (c *Controller) Entry(p string) (remote.Entry, bool) {
	for _, e := range c.listing {
		if e.Path == p {
			return e, true
		}
	}
	return remote.Entry{}, false
}

func (c *Controller) Filter() string       { return c.filter }
func (c *Controller) SetFilter(q string)   { c.filter = q }
func (c *Controller) ShowHidden() bool     { return c.showHidden }
func (c *Controller) SetShowHidden(v bool) { c.showHidden = v }
func (c *Controller) ToggleHidden()        { c.showHidden = !c.showHidden }
