package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/zackbart/nova/internal/remotepath"
)

const defaultConnectTimeout = 30 * time.Second

// SFTPStore is a Store backed by one SSH connection and its SFTP subsystem.
type SFTPStore struct {
	log *zap.Logger

	mu     sync.Mutex
	ssh    *ssh.Client
	client *sftp.Client
	home   string
}

func NewSFTPStore(log *zap.Logger) *SFTPStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SFTPStore{log: log}
}

func (s *SFTPStore) Connect(ctx context.Context, ep Endpoint) (string, error) {
	addr := ep.Addr()
	sshClient, err := dialSSH(ctx, ep)
	if err != nil {
		return "", &ConnectError{Addr: addr, Err: err}
	}
	cli, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return "", &ConnectError{Addr: addr, Err: fmt.Errorf("start sftp: %w", err)}
	}

	cwd, err := cli.Getwd()
	if err != nil || !strings.HasPrefix(cwd, "/") {
		cwd = remotepath.Root
	}

	s.mu.Lock()
	prevSFTP, prevSSH := s.client, s.ssh
	s.ssh, s.client, s.home = sshClient, cli, cwd
	s.mu.Unlock()

	if prevSFTP != nil {
		_ = prevSFTP.Close()
		_ = prevSSH.Close()
	}
	s.log.Info("sftp connected", zap.String("addr", addr), zap.String("user", ep.Username), zap.String("cwd", cwd))
	return cwd, nil
}

func (s *SFTPStore) Disconnect() error {
	s.mu.Lock()
	cli, conn := s.client, s.ssh
	s.client, s.ssh, s.home = nil, nil, ""
	s.mu.Unlock()

	if cli == nil {
		return nil
	}
	err := errors.Join(cli.Close(), conn.Close())
	s.log.Info("sftp disconnected", zap.Error(err))
	return err
}

func (s *SFTPStore) conn() (*sftp.Client, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, "", ErrNotConnected
	}
	return s.client, s.home, nil
}

// Normalize asks the server to canonicalise p. "~" is the login directory.
func (s *SFTPStore) Normalize(ctx context.Context, p string) (string, error) {
	cli, home, err := s.conn()
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case p == "~":
		return home, nil
	case strings.HasPrefix(p, "~/"):
		p = remotepath.Join(home, p[2:])
	}
	resolved, err := cli.RealPath(p)
	if err != nil {
		return "", mapError("realpath", p, err)
	}
	return resolved, nil
}

func (s *SFTPStore) Stat(ctx context.Context, p string) (Attr, error) {
	cli, _, err := s.conn()
	if err != nil {
		return Attr{}, err
	}
	if err := ctx.Err(); err != nil {
		return Attr{}, err
	}
	fi, err := cli.Stat(p)
	if err != nil {
		return Attr{}, mapError("stat", p, err)
	}
	return Attr{Size: fi.Size(), Mode: fi.Mode(), ModTime: fi.ModTime()}, nil
}

func (s *SFTPStore) ListDir(ctx context.Context, p string) (Listing, error) {
	cli, _, err := s.conn()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := cli.Stat(p)
	if err != nil {
		return nil, mapError("stat", p, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("list %s: %w", p, ErrNotDirectory)
	}
	infos, err := cli.ReadDir(p)
	if err != nil {
		return nil, mapError("list", p, err)
	}
	return buildListing(p, infos), nil
}

func (s *SFTPStore) ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	cli, _, err := s.conn()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := cli.Open(p)
	if err != nil {
		return nil, mapError("open", p, err)
	}
	defer f.Close()
	return readAt(f, p, offset, length)
}

func (s *SFTPStore) ReadHead(ctx context.Context, p string, length int64) ([]byte, error) {
	return s.ReadRange(ctx, p, 0, length)
}

func (s *SFTPStore) Put(ctx context.Context, localPath, remotePath string, progress ProgressFunc) error {
	cli, _, err := s.conn()
	if err != nil {
		return err
	}
	src, size, err := openLocal(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := cli.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return mapError("create", remotePath, err)
	}
	n, err := copyWithProgress(ctx, dst, src, size, progress)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return mapError("upload", remotePath, err)
	}
	s.log.Debug("upload finished", zap.String("local", localPath), zap.String("remote", remotePath), zap.Int64("bytes", n))
	return nil
}

func (s *SFTPStore) Get(ctx context.Context, remotePath, localPath string, progress ProgressFunc) error {
	cli, _, err := s.conn()
	if err != nil {
		return err
	}
	src, err := cli.Open(remotePath)
	if err != nil {
		return mapError("open", remotePath, err)
	}
	defer src.Close()
	fi, err := src.Stat()
	if err != nil {
		return mapError("stat", remotePath, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("download %s: is a directory", remotePath)
	}
	if err := writeLocal(ctx, localPath, src, fi.Size(), progress); err != nil {
		return err
	}
	s.log.Debug("download finished", zap.String("remote", remotePath), zap.String("local", localPath), zap.Int64("bytes", fi.Size()))
	return nil
}

func buildListing(dir string, infos []os.FileInfo) Listing {
	entries := make(Listing, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			Path:    remotepath.Join(dir, name),
			IsDir:   fi.IsDir(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			Mode:    fi.Mode(),
		})
	}
	SortListing(entries)
	return entries
}

func readAt(r io.ReaderAt, p string, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("read %s: invalid range %d+%d", p, offset, length)
	}
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, mapError("read", p, err)
	}
	return buf[:n], nil
}

func dialSSH(ctx context.Context, ep Endpoint) (*ssh.Client, error) {
	if ep.Host == "" {
		return nil, fmt.Errorf("ssh host not specified")
	}
	if ep.Username == "" {
		return nil, fmt.Errorf("ssh username not specified")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if ep.KnownHosts != "" {
		cb, err := knownhosts.New(ep.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	}

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	cfg := &ssh.ClientConfig{
		User:            ep.Username,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	if ep.KeyPath != "" {
		key, err := loadPrivateKey(ep.KeyPath, ep.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("load private key: %w", err)
		}
		cfg.Auth = append(cfg.Auth, ssh.PublicKeys(key))
	}
	if ep.Password != "" {
		cfg.Auth = append(cfg.Auth, ssh.Password(ep.Password))
	}
	if len(cfg.Auth) == 0 {
		cfg.Auth = append(cfg.Auth, ssh.Password(""))
	}

	addr := ep.Addr()
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh tcp: %w", err)
	}
	// The config timeout covers the TCP dial only; bound the handshake too.
	_ = conn.SetDeadline(time.Now().Add(timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

func loadPrivateKey(path, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}
	var missing *ssh.PassphraseMissingError
	if passphrase == "" || !errors.As(err, &missing) {
		return nil, err
	}
	return ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
}

// KeyNeedsPassphrase reports whether the private key at path is encrypted.
func KeyNeedsPassphrase(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	_, err = ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	return errors.As(err, &missing)
}

var _ Store = (*SFTPStore)(nil)
