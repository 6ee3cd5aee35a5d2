package remote

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortListing(t *testing.T) {
	entries := []Entry{
		{Name: "b.txt"},
		{Name: "Zeta", IsDir: true},
		{Name: "A.txt"},
		{Name: "alpha", IsDir: true},
		{Name: "a.txt"},
	}
	SortListing(entries)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"alpha", "Zeta", "A.txt", "a.txt", "b.txt"}, names)

	listing := []Entry{{Name: "b", IsDir: true}, {Name: "A"}, {Name: "a", IsDir: true}}
	SortListing(listing)
	assert.Equal(t, []string{"a", "b", "A"}, []string{listing[0].Name, listing[1].Name, listing[2].Name})
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "0 B", HumanSize(0))
	assert.Equal(t, "1023 B", HumanSize(1023))
	assert.Equal(t, "1.0 KB", HumanSize(1024))
	assert.Equal(t, "1.5 MB", HumanSize(1536*1024))
}

func TestPermString(t *testing.T) {
	assert.Equal(t, "drwxr-xr-x", PermString(os.ModeDir|0o755))
	assert.Equal(t, "-rw-r--r--", PermString(0o644))
	assert.Equal(t, "lrwxrwxrwx", PermString(os.ModeSymlink|0o777))
}

func TestEndpointAddr(t *testing.T) {
	assert.Equal(t, "example.com:22", Endpoint{Host: "example.com"}.Addr())
	assert.Equal(t, "10.0.0.1:2222", Endpoint{Host: "10.0.0.1", Port: 2222}.Addr())
}

func newTestStore(t *testing.T) (*DirStore, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "logs", "app.log"), []byte("0123456789"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# hi\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), nil, 0o600))

	s := NewDirStore(root, nil)
	cwd, err := s.Connect(context.Background(), Endpoint{})
	require.NoError(t, err)
	require.Equal(t, "/", cwd)
	return s, root
}

func TestDirStoreListDir(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	listing, err := s.ListDir(ctx, "/")
	require.NoError(t, err)
	require.Len(t, listing, 3)
	assert.Equal(t, "logs", listing[0].Name)
	assert.True(t, listing[0].IsDir)
	assert.Equal(t, "/logs", listing[0].Path)
	assert.Equal(t, ".hidden", listing[1].Name)
	assert.Equal(t, "README.md", listing[2].Name)

	_, err = s.ListDir(ctx, "/README.md")
	assert.True(t, errors.Is(err, ErrNotDirectory))

	_, err = s.ListDir(ctx, "/missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDirStoreReadRange(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	got, err := s.ReadRange(ctx, "/logs/app.log", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(got))

	got, err = s.ReadRange(ctx, "/logs/app.log", 8, 100)
	require.NoError(t, err)
	assert.Equal(t, "89", string(got), "short read at end of file")

	got, err = s.ReadRange(ctx, "/logs/app.log", 50, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	head, err := s.ReadHead(ctx, "/README.md", 4096)
	require.NoError(t, err)
	assert.Equal(t, "# hi\n", string(head))
}

func TestDirStoreConfinedToRoot(t *testing.T) {
	s, root := newTestStore(t)
	lp, err := s.local("/../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(lp, root))

	p, err := s.Normalize(context.Background(), "/logs/../..")
	require.NoError(t, err)
	assert.Equal(t, "/", p)

	home, err := s.Normalize(context.Background(), "~")
	require.NoError(t, err)
	assert.Equal(t, "/", home)
}

func TestDirStoreDisconnected(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Disconnect())

	_, err := s.Stat(context.Background(), "/")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDirStoreConnectError(t *testing.T) {
	s := NewDirStore(filepath.Join(t.TempDir(), "nope"), nil)
	_, err := s.Connect(context.Background(), Endpoint{})
	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
}

func TestDirStoreTransfers(t *testing.T) {
	s, root := newTestStore(t)
	ctx := context.Background()
	scratch := t.TempDir()

	local := filepath.Join(scratch, "upload.bin")
	require.NoError(t, os.WriteFile(local, []byte(strings.Repeat("x", 5000)), 0o644))

	var last, total int64
	err := s.Put(ctx, local, "/logs/upload.bin", func(done, tot int64) { last, total = done, tot })
	require.NoError(t, err)
	assert.Equal(t, int64(5000), last)
	assert.Equal(t, int64(5000), total)
	data, err := os.ReadFile(filepath.Join(root, "logs", "upload.bin"))
	require.NoError(t, err)
	assert.Len(t, data, 5000)

	dest := filepath.Join(scratch, "out", "app.log")
	require.NoError(t, s.Get(ctx, "/logs/app.log", dest, nil))
	data, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	matches, err := filepath.Glob(filepath.Join(scratch, "out", "*.part-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "scratch file renamed into place")
}

func TestDirStoreGetCancelled(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "app.log")
	err := s.Get(ctx, "/logs/app.log", dest, nil)
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	matches, _ := filepath.Glob(dest + ".part-*")
	assert.Empty(t, matches)
}

func TestDialSSHHandshakeTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	accepted := make(chan net.Conn, 1)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			accepted <- conn
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	start := time.Now()
	_, err = dialSSH(context.Background(), Endpoint{Host: "127.0.0.1", Port: port, Username: "ops", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorContains(t, err, "ssh handshake")
	assert.Less(t, time.Since(start), 5*time.Second)
	select {
	case conn := <-accepted:
		_ = conn.Close()
	default:
	}
}
