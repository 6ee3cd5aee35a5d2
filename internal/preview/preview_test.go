package preview

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zackbart/nova/internal/classify"
	"github.com/zackbart/nova/internal/remote"
)

type lookup map[string]remote.Entry

func (l lookup) Entry(p string) (remote.Entry, bool) {
	e, ok := l[p]
	return e, ok
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	store   *remote.DirStore
	root    string
	entries lookup
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	files := map[string][]byte{
		"a.txt":     []byte("alpha"),
		"b.txt":     []byte("bravo"),
		"c.txt":     []byte("charlie"),
		"pages.log": []byte("0123456789"),
		"blob.bin":  append([]byte{0, 159, 255, 13, 0, 0, 1, 2}, bytes.Repeat([]byte{0xAB}, 24)...),
		"pic.png":   pngBytes(t),
		"bad.png":   []byte("not an image"),
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), body, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	store := remote.NewDirStore(root, nil)
	_, err := store.Connect(context.Background(), remote.Endpoint{})
	require.NoError(t, err)

	listing, err := store.ListDir(context.Background(), "/")
	require.NoError(t, err)
	entries := lookup{}
	for _, e := range listing {
		entries[e.Path] = e
	}
	return &fixture{store: store, root: root, entries: entries}
}

func (f *fixture) controller(limits classify.Limits) *Controller {
	return New(f.store, f.entries, limits, nil)
}

func run(c *Controller, cmd tea.Cmd) {
	if cmd != nil {
		c.Update(cmd())
	}
}

func TestPager(t *testing.T) {
	tests := []struct {
		name              string
		size, page        int64
		offset            int64
		next, prev        int64
		pageNo, pages     int64
		hasNext, hasPrev  bool
	}{
		{name: "empty", size: 0, page: 4, offset: 0, next: 0, prev: 0, pageNo: 1, pages: 1},
		{name: "single page", size: 3, page: 4, offset: 0, next: 0, prev: 0, pageNo: 1, pages: 1},
		{name: "exact fit", size: 8, page: 4, offset: 0, next: 4, prev: 0, pageNo: 1, pages: 2, hasNext: true},
		{name: "middle", size: 10, page: 4, offset: 4, next: 8, prev: 0, pageNo: 2, pages: 3, hasNext: true, hasPrev: true},
		{name: "last", size: 10, page: 4, offset: 8, next: 8, prev: 4, pageNo: 3, pages: 3, hasPrev: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Pager{Size: tt.size, PageSize: tt.page}
			assert.Equal(t, tt.next, p.Next(tt.offset))
			assert.Equal(t, tt.prev, p.Prev(tt.offset))
			assert.Equal(t, tt.pageNo, p.Page(tt.offset))
			assert.Equal(t, tt.pages, p.Pages())
			assert.Equal(t, tt.hasNext, p.HasNext(tt.offset))
			assert.Equal(t, tt.hasPrev, p.HasPrev(tt.offset))
		})
	}
	assert.Equal(t, "Page 2/3", Pager{Size: 10, PageSize: 4}.Label(4))
}

func TestPagerWalk(t *testing.T) {
	for size := int64(0); size <= 40; size++ {
		for _, page := range []int64{1, 3, 4, 16} {
			p := Pager{Size: size, PageSize: page}
			offset, seen := int64(0), int64(1)
			for p.HasNext(offset) {
				next := p.Next(offset)
				require.Greater(t, next, offset)
				require.Zero(t, next%page, "offsets stay page aligned")
				require.Less(t, next, size, "offset stays inside the file")
				offset = next
				seen++
			}
			assert.Equal(t, p.Pages(), seen, "size=%d page=%d", size, page)
			assert.Equal(t, p.Pages(), p.Page(offset))
			for p.HasPrev(offset) {
				offset = p.Prev(offset)
			}
			assert.Zero(t, offset)
		}
	}
}

func TestSelectText(t *testing.T) {
	f := newFixture(t)
	c := f.controller(classify.DefaultLimits())

	cmd := c.Select(f.entries["/a.txt"])
	require.NotNil(t, cmd)
	assert.True(t, c.Loading())
	assert.Equal(t, "/a.txt", c.Pending())
	run(c, cmd)

	s, ok := c.Visible()
	require.True(t, ok)
	assert.Equal(t, classify.Text, s.Disposition)
	assert.Equal(t, "alpha", s.Text)
	assert.Equal(t, classify.EncodingUTF8, s.Encoding)
	assert.False(t, s.Truncated)
	assert.Equal(t, c.Token(), s.Token)
	assert.Equal(t, "Text preview ready", c.Status())
	assert.Contains(t, s.Meta.Lines(), "Size: 5 bytes (5 B)")
	assert.Contains(t, s.Meta.Lines(), "Encoding: utf-8")
	assert.False(t, c.Loading())
}

func TestLatestSelectionWins(t *testing.T) {
	f := newFixture(t)
	c := f.controller(classify.DefaultLimits())

	first := c.Select(f.entries["/a.txt"])
	second := c.Select(f.entries["/b.txt"])
	third := c.Select(f.entries["/c.txt"])
	require.Equal(t, uint64(3), c.Token())

	m1, m2, m3 := first(), second(), third()
	c.Update(m3)
	c.Update(m2)
	c.Update(m1)

	s, ok := c.Visible()
	require.True(t, ok)
	assert.Equal(t, "/c.txt", s.Path)
	assert.Equal(t, "charlie", s.Text)
	assert.Equal(t, uint64(3), s.Token)
}

func TestDirectorySelectionIsSynchronous(t *testing.T) {
	f := newFixture(t)
	c := f.controller(classify.DefaultLimits())

	pending := c.Select(f.entries["/a.txt"])
	assert.Nil(t, c.Select(f.entries["/sub"]))

	s, ok := c.Visible()
	require.True(t, ok)
	assert.True(t, s.IsDir)
	assert.Equal(t, "Directory", s.Meta.Kind)

	run(c, pending)
	s, _ = c.Visible()
	assert.Equal(t, "/sub", s.Path, "file load issued before the directory is stale")
}

func TestPaging(t *testing.T) {
	f := newFixture(t)
	limits := classify.DefaultLimits()
	limits.PageSize = 4
	c := f.controller(limits)

	run(c, c.Select(f.entries["/pages.log"]))
	s, _ := c.Visible()
	assert.Equal(t, "0123", s.Text)
	assert.True(t, s.Truncated)
	assert.Equal(t, "[Page truncated. Use Next for more.]", s.Note(limits))
	assert.Nil(t, c.PrevPage(), "no previous page at the start")

	run(c, c.NextPage())
	s, _ = c.Visible()
	assert.Equal(t, int64(4), s.Offset)
	assert.Equal(t, "4567", s.Text)

	run(c, c.NextPage())
	s, _ = c.Visible()
	assert.Equal(t, "89", s.Text)
	assert.False(t, s.Truncated)
	pager, offset, ok := c.Pager()
	require.True(t, ok)
	assert.Equal(t, "Page 3/3", pager.Label(offset))

	assert.Nil(t, c.NextPage(), "no page after the last")

	run(c, c.PrevPage())
	s, _ = c.Visible()
	assert.Equal(t, "4567", s.Text)
}

func TestRefreshKeepsPage(t *testing.T) {
	f := newFixture(t)
	limits := classify.DefaultLimits()
	limits.PageSize = 4
	c := f.controller(limits)

	run(c, c.Select(f.entries["/pages.log"]))
	run(c, c.NextPage())
	run(c, c.NextPage())
	token := c.Token()

	assert.Nil(t, c.Refresh(f.entries["/pages.log"]), "unchanged entry keeps its session")
	assert.Equal(t, token, c.Token())
	s, _ := c.Visible()
	assert.Equal(t, int64(8), s.Offset)

	require.NoError(t, os.WriteFile(filepath.Join(f.root, "pages.log"), []byte("abcdef"), 0o644))
	shrunk := f.entries["/pages.log"]
	shrunk.Size = 6
	f.entries["/pages.log"] = shrunk

	run(c, c.Refresh(shrunk))
	s, _ = c.Visible()
	assert.Equal(t, int64(4), s.Offset, "page clamped to the new last page")
	assert.Equal(t, "ef", s.Text)

	run(c, c.Refresh(f.entries["/a.txt"]))
	s, _ = c.Visible()
	assert.Equal(t, "/a.txt", s.Path)
	assert.Zero(t, s.Offset)
}

func TestPagingStopsWhenEntryLeavesListing(t *testing.T) {
	f := newFixture(t)
	limits := classify.DefaultLimits()
	limits.PageSize = 4
	c := f.controller(limits)

	run(c, c.Select(f.entries["/pages.log"]))
	delete(f.entries, "/pages.log")
	before := c.Token()
	assert.Nil(t, c.NextPage())
	assert.Equal(t, before, c.Token())
}

func TestBinaryPreview(t *testing.T) {
	f := newFixture(t)
	limits := classify.DefaultLimits()
	limits.HexMax = 16
	c := f.controller(limits)

	run(c, c.Select(f.entries["/blob.bin"]))
	s, ok := c.Visible()
	require.True(t, ok)
	assert.Equal(t, classify.Binary, s.Disposition)
	assert.Equal(t, "00000000  00 9f ff 0d 00 00 01 02 ab ab ab ab ab ab ab ab  ................", s.Hex)
	assert.True(t, s.Truncated)
	assert.Equal(t, "[Binary preview limited to first 0 KB.]", s.Note(limits))
	assert.Equal(t, "Binary preview ready", c.Status())
	assert.Nil(t, c.NextPage(), "binary previews do not page")
}

func TestImagePreview(t *testing.T) {
	f := newFixture(t)
	c := f.controller(classify.DefaultLimits())

	run(c, c.Select(f.entries["/pic.png"]))
	s, ok := c.Visible()
	require.True(t, ok)
	assert.Equal(t, classify.Image, s.Disposition)
	assert.Equal(t, "png", s.ImageFormat)
	require.NotNil(t, s.Image)
	assert.Equal(t, 4, s.Image.Bounds().Dx())
}

func TestFailureKeepsVisibleSession(t *testing.T) {
	f := newFixture(t)
	c := f.controller(classify.DefaultLimits())

	run(c, c.Select(f.entries["/a.txt"]))
	run(c, c.Select(f.entries["/bad.png"]))

	s, ok := c.Visible()
	require.True(t, ok)
	assert.Equal(t, "/a.txt", s.Path)
	assert.Contains(t, c.Status(), "Preview failed")
	var perr *Error
	require.ErrorAs(t, c.Err(), &perr)
	assert.Equal(t, "/bad.png", perr.Path)
	assert.False(t, c.Loading())
}

func TestStaleFailureSuppressed(t *testing.T) {
	f := newFixture(t)
	c := f.controller(classify.DefaultLimits())

	gone := f.entries["/a.txt"]
	gone.Path = "/missing.txt"
	bad := c.Select(gone)
	good := c.Select(f.entries["/b.txt"])

	run(c, good)
	run(c, bad)
	assert.NoError(t, c.Err())
	assert.Equal(t, "Text preview ready", c.Status())
}

func TestCacheHitTakesNewToken(t *testing.T) {
	f := newFixture(t)
	c := f.controller(classify.DefaultLimits())

	run(c, c.Select(f.entries["/a.txt"]))
	run(c, c.Select(f.entries["/b.txt"]))
	slow := c.Select(f.entries["/c.txt"])

	assert.Nil(t, c.Select(f.entries["/a.txt"]), "served from cache")
	s, _ := c.Visible()
	assert.Equal(t, "/a.txt", s.Path)
	assert.Equal(t, c.Token(), s.Token)

	run(c, slow)
	s, _ = c.Visible()
	assert.Equal(t, "/a.txt", s.Path, "older load must not replace the cached hit")
	assert.Equal(t, 3, c.cache.count())
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	c := f.controller(classify.DefaultLimits())

	run(c, c.Select(f.entries["/a.txt"]))
	pending := c.Select(f.entries["/b.txt"])
	c.Reset()

	_, ok := c.Visible()
	assert.False(t, ok)
	run(c, pending)
	_, ok = c.Visible()
	assert.False(t, ok)
}

func TestCacheEviction(t *testing.T) {
	cc := newCache(2)
	cc.put("a", Session{Path: "a"})
	cc.put("b", Session{Path: "b"})
	cc.put("c", Session{Path: "c"})
	_, ok := cc.get("a")
	assert.False(t, ok)
	_, ok = cc.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, cc.count())
	cc.clear()
	assert.Zero(t, cc.count())
}
