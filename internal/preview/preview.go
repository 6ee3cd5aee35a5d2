// Package preview loads previews of remote files in the background and makes
// sure only the newest request ever reaches the screen.
//
// Every request (select, page turn, reset) takes a new generation token.
// Results are applied only while their token is still the current one, so a
// slow load for an entry the operator has moved away from is silently
// dropped.
package preview

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/zackbart/nova/internal/classify"
	"github.com/zackbart/nova/internal/remote"
)

// EntryLookup finds an entry in the listing currently shown.
type EntryLookup interface {
	Entry(path string) (remote.Entry, bool)
}

// Error is a failed preview load.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type (
	LoadedMsg struct {
		key     string
		Session Session
	}

	FailedMsg struct {
		Token uint64
		Path  string
		Err   error
	}
)

type Controller struct {
	store   remote.Store
	entries EntryLookup
	limits  classify.Limits
	log     *zap.Logger
	cache   *cache

	token   uint64
	session Session
	visible bool
	loading bool
	pending string

	status string
	err    error
}

func New(store remote.Store, entries EntryLookup, limits classify.Limits, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store:   store,
		entries: entries,
		limits:  limits.Normalize(),
		log:     log,
		cache:   newCache(defaultCacheSize),
	}
}

func (c *Controller) Limits() classify.Limits { return c.limits }
func (c *Controller) Token() uint64           { return c.token }
func (c *Controller) Loading() bool           { return c.loading }
func (c *Controller) Pending() string         { return c.pending }
func (c *Controller) Status() string          { return c.status }
func (c *Controller) Err() error              { return c.err }

// Visible returns the session on screen, if any.
func (c *Controller) Visible() (Session, bool) { return c.session, c.visible }

// Pager returns the paging state of the visible text session.
func (c *Controller) Pager() (Pager, int64, bool) {
	if !c.visible || c.session.Disposition != classify.Text || c.session.IsDir {
		return Pager{}, 0, false
	}
	return Pager{Size: c.session.Size, PageSize: c.limits.PageSize}, c.session.Offset, true
}

// Select previews e from its first page. Directories get a metadata-only
// session right away.
func (c *Controller) Select(e remote.Entry) tea.Cmd {
	c.token++
	if e.IsDir {
		c.show(dirSession(e, c.token))
		c.status = ""
		return nil
	}
	return c.request(e, 0)
}

// Refresh revalidates the preview after e's listing was reloaded. An
// unchanged entry keeps the visible session and its page. A changed one is
// reloaded at the same page, clamped to the new size.
func (c *Controller) Refresh(e remote.Entry) tea.Cmd {
	if !c.visible || c.session.Path != e.Path || c.session.IsDir != e.IsDir {
		if c.loading && c.pending == e.Path {
			return nil
		}
		return c.Select(e)
	}
	if c.session.Size == e.Size && c.session.ModTime.Equal(e.ModTime) {
		return nil
	}

	c.token++
	if e.IsDir {
		c.show(dirSession(e, c.token))
		return nil
	}
	var offset int64
	if c.session.Disposition == classify.Text {
		offset = min(c.session.Offset, Pager{Size: e.Size, PageSize: c.limits.PageSize}.last())
	}
	return c.request(e, offset)
}

// NextPage moves a text preview one page forward. It does nothing when the
// previewed entry has left the listing or there is no next page.
func (c *Controller) NextPage() tea.Cmd {
	e, pager, offset, ok := c.paging()
	if !ok || !pager.HasNext(offset) {
		return nil
	}
	c.token++
	return c.request(e, pager.Next(offset))
}

func (c *Controller) PrevPage() tea.Cmd {
	e, pager, offset, ok := c.paging()
	if !ok || !pager.HasPrev(offset) {
		return nil
	}
	c.token++
	return c.request(e, pager.Prev(offset))
}

func (c *Controller) paging() (remote.Entry, Pager, int64, bool) {
	if !c.visible || c.session.Disposition != classify.Text || c.session.IsDir {
		return remote.Entry{}, Pager{}, 0, false
	}
	e, ok := c.entries.Entry(c.session.Path)
	if !ok {
		return remote.Entry{}, Pager{}, 0, false
	}
	return e, Pager{Size: e.Size, PageSize: c.limits.PageSize}, c.session.Offset, true
}

// Reset clears the preview and invalidates every load in flight.
func (c *Controller) Reset() {
	c.token++
	c.session = Session{}
	c.visible = false
	c.loading = false
	c.pending = ""
	c.err = nil
	c.status = ""
}

// Forget drops cached previews, e.g. after the connection changes.
func (c *Controller) Forget() { c.cache.clear() }

func (c *Controller) request(e remote.Entry, offset int64) tea.Cmd {
	token := c.token
	key := cacheKey(e.Path, e.ModTime, e.Size, offset)
	if s, ok := c.cache.get(key); ok {
		s.Token = token
		c.show(s)
		c.status = readyStatus(s)
		return nil
	}

	c.loading = true
	c.pending = e.Path
	c.status = fmt.Sprintf("Loading preview of %s ...", e.Name)

	store, limits, log := c.store, c.limits, c.log
	return func() tea.Msg {
		s, err := build(context.Background(), store, e, offset, limits)
		if err != nil {
			log.Debug("preview failed", zap.String("path", e.Path), zap.Uint64("token", token), zap.Error(err))
			return FailedMsg{Token: token, Path: e.Path, Err: err}
		}
		s.Token = token
		return LoadedMsg{key: key, Session: s}
	}
}

func (c *Controller) show(s Session) {
	c.session = s
	c.visible = true
	c.loading = false
	c.pending = ""
	c.err = nil
}

// Update applies a load result if it is still current.
func (c *Controller) Update(msg tea.Msg) {
	switch msg := msg.(type) {
	case LoadedMsg:
		if msg.key != "" {
			c.cache.put(msg.key, msg.Session)
		}
		if msg.Session.Token != c.token {
			c.log.Debug("dropping stale preview", zap.String("path", msg.Session.Path),
				zap.Uint64("token", msg.Session.Token), zap.Uint64("current", c.token))
			return
		}
		c.show(msg.Session)
		c.status = readyStatus(msg.Session)

	case FailedMsg:
		if msg.Token != c.token {
			return
		}
		c.loading = false
		c.pending = ""
		c.err = &Error{Path: msg.Path, Err: msg.Err}
		c.status = fmt.Sprintf("Preview failed: %v", msg.Err)
	}
}

func readyStatus(s Session) string {
	switch s.Disposition {
	case classify.Text:
		return "Text preview ready"
	case classify.Image:
		return "Image preview ready"
	default:
		return "Binary preview ready"
	}
}
