// Package remote is the file store the browser talks to: an SFTP server in
// production or a local directory served as if it were one.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrNotFound     = errors.New("no such file or directory")
	ErrPermission   = errors.New("permission denied")
	ErrNotDirectory = errors.New("not a directory")
)

// ConnectError is returned when a store could not be opened.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Endpoint carries everything needed to open a session.
type Endpoint struct {
	Host       string
	Port       int
	Username   string
	Password   string
	KeyPath    string
	Passphrase string
	KnownHosts string // empty disables host key checking
	Timeout    time.Duration
}

func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// Attr is what Stat reports about a path.
type Attr struct {
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

func (a Attr) IsDir() bool { return a.Mode.IsDir() }

// Entry is one row of a directory listing.
type Entry struct {
	Name    string
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
	Mode    os.FileMode
}

// Listing is a directory's entries, directories first, then by name
// ignoring case.
type Listing []Entry

// SortListing orders entries in place. Equal keys keep their input order.
func SortListing(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}

// ProgressFunc receives cumulative bytes moved and the expected total.
type ProgressFunc func(done, total int64)

// Store is a remote file system session. Implementations are safe for
// concurrent use; every path argument is absolute and POSIX-style.
type Store interface {
	// Connect opens the session and returns the initial working directory.
	Connect(ctx context.Context, ep Endpoint) (string, error)
	Disconnect() error
	Normalize(ctx context.Context, p string) (string, error)
	Stat(ctx context.Context, p string) (Attr, error)
	ListDir(ctx context.Context, p string) (Listing, error)
	// ReadRange reads up to length bytes at offset. A short result at end of
	// file is not an error.
	ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error)
	ReadHead(ctx context.Context, p string, length int64) ([]byte, error)
	Put(ctx context.Context, localPath, remotePath string, progress ProgressFunc) error
	Get(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error
}

// mapError folds platform errors into the package sentinels.
func mapError(op, p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrNotDirectory),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrPermission):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s %s: %w", op, p, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s %s: %w", op, p, ErrPermission)
	default:
		return fmt.Errorf("%s %s: %w", op, p, err)
	}
}

// HumanSize formats a byte count with binary units.
func HumanSize(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	idx := 0
	for v >= 1024 && idx < len(units)-1 {
		v /= 1024
		idx++
	}
	if idx == 0 {
		return fmt.Sprintf("%d %s", n, units[idx])
	}
	return fmt.Sprintf("%.1f %s", v, units[idx])
}

// PermString renders mode the way ls -l does, e.g. drwxr-xr-x.
func PermString(mode os.FileMode) string {
	s := mode.String()
	// Go prints extra type letters for symlinks and devices before the
	// usual ten columns; keep only the last ten and mark links with l.
	if len(s) > 10 {
		s = s[len(s)-10:]
	}
	if mode&os.ModeSymlink != 0 {
		s = "l" + s[1:]
	}
	return s
}
