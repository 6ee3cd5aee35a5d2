package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zackbart/nova/internal/remotepath"
)

// DirStore serves a local directory as if it were a remote file system
// rooted at "/". Paths cannot escape the root.
type DirStore struct {
	root string
	log  *zap.Logger

	mu        sync.Mutex
	connected bool
}

func NewDirStore(root string, log *zap.Logger) *DirStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirStore{root: root, log: log}
}

// Connect ignores the endpoint and checks that the root is a directory.
func (d *DirStore) Connect(ctx context.Context, _ Endpoint) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(d.root)
	if err != nil {
		return "", &ConnectError{Addr: d.root, Err: err}
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", &ConnectError{Addr: d.root, Err: err}
	}
	if !fi.IsDir() {
		return "", &ConnectError{Addr: d.root, Err: ErrNotDirectory}
	}

	d.mu.Lock()
	d.root = abs
	d.connected = true
	d.mu.Unlock()
	d.log.Info("local store opened", zap.String("root", abs))
	return remotepath.Root, nil
}

func (d *DirStore) Disconnect() error {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	return nil
}

// local maps a remote path onto the host file system.
func (d *DirStore) local(p string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return "", ErrNotConnected
	}
	clean := path.Clean("/" + p)
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

func (d *DirStore) Normalize(ctx context.Context, p string) (string, error) {
	if _, err := d.local("/"); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case p == "~":
		return remotepath.Root, nil
	case strings.HasPrefix(p, "~/"):
		p = p[1:]
	}
	return path.Clean("/" + p), nil
}

func (d *DirStore) Stat(ctx context.Context, p string) (Attr, error) {
	lp, err := d.local(p)
	if err != nil {
		return Attr{}, err
	}
	if err := ctx.Err(); err != nil {
		return Attr{}, err
	}
	fi, err := os.Stat(lp)
	if err != nil {
		return Attr{}, mapError("stat", p, err)
	}
	return Attr{Size: fi.Size(), Mode: fi.Mode(), ModTime: fi.ModTime()}, nil
}

func (d *DirStore) ListDir(ctx context.Context, p string) (Listing, error) {
	lp, err := d.local(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(lp)
	if err != nil {
		return nil, mapError("stat", p, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("list %s: %w", p, ErrNotDirectory)
	}
	des, err := os.ReadDir(lp)
	if err != nil {
		return nil, mapError("list", p, err)
	}
	infos := make([]os.FileInfo, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return buildListing(path.Clean("/"+p), infos), nil
}

func (d *DirStore) ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	lp, err := d.local(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(lp)
	if err != nil {
		return nil, mapError("open", p, err)
	}
	defer f.Close()
	return readAt(f, p, offset, length)
}

func (d *DirStore) ReadHead(ctx context.Context, p string, length int64) ([]byte, error) {
	return d.ReadRange(ctx, p, 0, length)
}

func (d *DirStore) Put(ctx context.Context, localPath, remotePath string, progress ProgressFunc) error {
	lp, err := d.local(remotePath)
	if err != nil {
		return err
	}
	src, size, err := openLocal(localPath)
	if err != nil {
		return err
	}
	defer src.Close()
	return writeLocal(ctx, lp, src, size, progress)
}

func (d *DirStore) Get(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error {
	lp, err := d.local(remotePath)
	if err != nil {
		return err
	}
	src, size, err := openLocal(lp)
	if err != nil {
		return mapError("open", remotePath, err)
	}
	defer src.Close()
	return writeLocal(ctx, localPath, src, size, progress)
}

var _ Store = (*DirStore)(nil)
