package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zackbart/nova/internal/classify"
)

// State is everything nova remembers between runs. It lives in a YAML file
// under the user's home directory. All fields are optional; accessors apply
// defaults.
//
// Example (~/.nova/state.yaml):
//
//	profiles:
//	  - name: web
//	    host: web-1.internal
//	    port: 22
//	    username: deploy
//	    key_path: ~/.ssh/id_ed25519
//	    last_path: /var/log/nginx
//	bookmarks:
//	  - /etc
//	ui:
//	  last_profile: web
//	  show_hidden: false
//	  preview_ratio: 0.6
//	preview:
//	  page_size: 262144
//	log:
//	  level: info
type State struct {
	Profiles       []Profile     `yaml:"profiles,omitempty"`
	Bookmarks      []string      `yaml:"bookmarks,omitempty"`
	UI             UIConfig      `yaml:"ui"`
	Preview        PreviewConfig `yaml:"preview"`
	Log            LogConfig     `yaml:"log"`
	ConnectTimeout *int          `yaml:"connect_timeout,omitempty"` // seconds
	DownloadDir    *string       `yaml:"download_dir,omitempty"`
	KnownHosts     *string       `yaml:"known_hosts,omitempty"`
}

type Profile struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username"`
	KeyPath  string `yaml:"key_path,omitempty"`
	LastPath string `yaml:"last_path,omitempty"`
}

type UIConfig struct {
	Columns      map[string]int `yaml:"columns,omitempty"`
	LastProfile  string         `yaml:"last_profile,omitempty"`
	ShowHidden   bool           `yaml:"show_hidden"`
	PreviewRatio *float64       `yaml:"preview_ratio,omitempty"`
}

type PreviewConfig struct {
	PageSize   *int64 `yaml:"page_size,omitempty"`
	HexLimit   *int64 `yaml:"hex_limit,omitempty"`
	ImageLimit *int64 `yaml:"image_limit,omitempty"`
}

type LogConfig struct {
	Level *string `yaml:"level,omitempty"`
	File  *string `yaml:"file,omitempty"`
}

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultPreviewRatio   = 0.6
	DefaultLogLevel       = "info"
	maxBookmarks          = 9
)

// DefaultPaths returns the state dir and state file path.
func DefaultPaths() (dir string, file string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	dir = filepath.Join(home, ".nova")
	return dir, filepath.Join(dir, "state.yaml"), nil
}

// Load reads the state file at path, or the default location when path is
// empty. It always returns a usable State: a missing file yields defaults
// and no error, an unreadable or corrupt one yields defaults and the error.
func Load(path string) (*State, string, error) {
	if path == "" {
		_, file, err := DefaultPaths()
		if err != nil {
			return &State{}, "", err
		}
		path = file
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &State{}, path, nil
		}
		return &State{}, path, fmt.Errorf("read state file %s: %w", path, err)
	}

	st := &State{}
	if err := yaml.Unmarshal(b, st); err != nil {
		return &State{}, path, fmt.Errorf("parse yaml state %s: %w", path, err)
	}
	return st, path, nil
}

// Save writes s to path atomically with owner-only permissions.
func Save(path string, s *State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state file %s: %w", path, err)
	}
	return nil
}

// Clone copies s deeply enough that the copy can be saved off the UI loop
// while s keeps changing.
func (s *State) Clone() *State {
	c := *s
	c.Profiles = slices.Clone(s.Profiles)
	c.Bookmarks = slices.Clone(s.Bookmarks)
	c.UI.Columns = maps.Clone(s.UI.Columns)
	return &c
}

// Limits returns the preview limits with configured overrides applied.
func (s *State) Limits() classify.Limits {
	l := classify.DefaultLimits()
	if s == nil {
		return l
	}
	if v := s.Preview.PageSize; v != nil && *v > 0 {
		l.PageSize = *v
	}
	if v := s.Preview.HexLimit; v != nil && *v > 0 {
		l.HexMax = *v
	}
	if v := s.Preview.ImageLimit; v != nil && *v > 0 {
		l.ImageMax = *v
	}
	return l
}

func (s *State) Timeout() time.Duration {
	if s == nil || s.ConnectTimeout == nil || *s.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return time.Duration(*s.ConnectTimeout) * time.Second
}

func (s *State) PreviewRatio() float64 {
	if s == nil || s.UI.PreviewRatio == nil {
		return DefaultPreviewRatio
	}
	r := *s.UI.PreviewRatio
	if r < 0.2 || r > 0.8 {
		return DefaultPreviewRatio
	}
	return r
}

// SetPreviewRatio stores the share of the width given to the preview pane.
func (s *State) SetPreviewRatio(r float64) {
	s.UI.PreviewRatio = ptr(min(0.8, max(0.2, r)))
}

// ColumnWidth returns the saved width of a listing column, or def.
func (s *State) ColumnWidth(name string, def int) int {
	if s == nil {
		return def
	}
	if w, ok := s.UI.Columns[name]; ok && w > 0 {
		return w
	}
	return def
}

func (s *State) LogLevel() string {
	if s == nil || s.Log.Level == nil || strings.TrimSpace(*s.Log.Level) == "" {
		return DefaultLogLevel
	}
	return strings.TrimSpace(*s.Log.Level)
}

// LogFile is the configured log path, or the default next to the state file.
func (s *State) LogFile() string {
	if s != nil && s.Log.File != nil && strings.TrimSpace(*s.Log.File) != "" {
		return ExpandHome(strings.TrimSpace(*s.Log.File))
	}
	dir, _, err := DefaultPaths()
	if err != nil {
		return filepath.Join(os.TempDir(), "nova.log")
	}
	return filepath.Join(dir, "nova.log")
}

// DownloadDirPath is where downloads land: the configured directory, else
// ~/Downloads, else the working directory.
func (s *State) DownloadDirPath() string {
	if s != nil && s.DownloadDir != nil && strings.TrimSpace(*s.DownloadDir) != "" {
		return ExpandHome(strings.TrimSpace(*s.DownloadDir))
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads")
	}
	return "."
}

func (s *State) KnownHostsPath() string {
	if s == nil || s.KnownHosts == nil {
		return ""
	}
	return ExpandHome(strings.TrimSpace(*s.KnownHosts))
}

func (s *State) Profile(name string) (Profile, bool) {
	for _, p := range s.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// UpsertProfile replaces the profile with the same name or appends p.
func (s *State) UpsertProfile(p Profile) {
	for i := range s.Profiles {
		if s.Profiles[i].Name == p.Name {
			s.Profiles[i] = p
			return
		}
	}
	s.Profiles = append(s.Profiles, p)
}

// RememberPath records the last directory visited with a profile.
func (s *State) RememberPath(profile, path string) {
	for i := range s.Profiles {
		if s.Profiles[i].Name == profile {
			s.Profiles[i].LastPath = path
			return
		}
	}
}

// ToggleBookmark adds path to the bookmarks or removes it if present. It
// reports whether path is bookmarked afterwards. At most nine bookmarks are
// kept; adding a tenth drops the oldest.
func (s *State) ToggleBookmark(path string) bool {
	if i := slices.Index(s.Bookmarks, path); i >= 0 {
		s.Bookmarks = slices.Delete(s.Bookmarks, i, i+1)
		return false
	}
	s.Bookmarks = append(s.Bookmarks, path)
	if len(s.Bookmarks) > maxBookmarks {
		s.Bookmarks = s.Bookmarks[len(s.Bookmarks)-maxBookmarks:]
	}
	return true
}

// Bookmark returns the n-th bookmark, counting from 1.
func (s *State) Bookmark(n int) (string, bool) {
	if n < 1 || n > len(s.Bookmarks) {
		return "", false
	}
	return s.Bookmarks[n-1], true
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func ptr[T any](v T) *T { return &v }
