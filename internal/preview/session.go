package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/zackbart/nova/internal/classify"
	"github.com/zackbart/nova/internal/remote"
	"github.com/zackbart/nova/internal/remotepath"
)

const (
	truncatedTextNote = "[Page truncated. Use Next for more.]"
	modifiedLayout    = "2006-01-02 15:04"
)

// Session is one rendered preview. Exactly one of Text, Image or Hex is set
// according to Disposition; directories carry metadata only.
type Session struct {
	Token       uint64
	Path        string
	Size        int64
	ModTime     time.Time
	Offset      int64
	IsDir       bool
	Disposition classify.Disposition

	Text     string
	Encoding string

	Image       image.Image
	ImageFormat string

	Hex string

	Truncated bool
	Meta      Meta
}

// Note is the annotation shown under truncated content.
func (s Session) Note(limits classify.Limits) string {
	if !s.Truncated {
		return ""
	}
	if s.Disposition == classify.Binary {
		return fmt.Sprintf("[Binary preview limited to first %d KB.]", limits.Normalize().HexMax/1024)
	}
	return truncatedTextNote
}

// Meta describes the previewed entry.
type Meta struct {
	Path     string
	Kind     string
	Size     int64
	Human    string
	Perm     string
	Modified string
	Encoding string
}

func metaFor(e remote.Entry) Meta {
	kind := "File"
	if e.IsDir {
		kind = "Directory"
	}
	m := Meta{
		Path:  e.Path,
		Kind:  kind,
		Size:  e.Size,
		Human: remote.HumanSize(e.Size),
		Perm:  remote.PermString(e.Mode),
	}
	if !e.ModTime.IsZero() {
		m.Modified = e.ModTime.Format(modifiedLayout)
	}
	return m
}

func (m Meta) Lines() []string {
	lines := []string{
		"Path: " + m.Path,
		"Type: " + m.Kind,
		fmt.Sprintf("Size: %d bytes (%s)", m.Size, m.Human),
		"Permissions: " + m.Perm,
	}
	if m.Modified != "" {
		lines = append(lines, "Modified: "+m.Modified)
	}
	if m.Encoding != "" {
		lines = append(lines, "Encoding: "+m.Encoding)
	}
	for i, l := range lines {
		lines[i] = classify.Printable(l)
	}
	return lines
}

func dirSession(e remote.Entry, token uint64) Session {
	return Session{
		Token:   token,
		Path:    e.Path,
		Size:    e.Size,
		ModTime: e.ModTime,
		IsDir:   true,
		Meta:    metaFor(e),
	}
}

// build fetches and renders the preview of e at offset. Offset only matters
// for text.
func build(ctx context.Context, store remote.Store, e remote.Entry, offset int64, limits classify.Limits) (Session, error) {
	s := Session{
		Path:    e.Path,
		Size:    e.Size,
		ModTime: e.ModTime,
		Meta:    metaFor(e),
	}
	ext := remotepath.Ext(e.Path)

	if classify.IsImage(ext, e.Size, limits) {
		data, err := store.ReadHead(ctx, e.Path, limits.ImageMax)
		if err != nil {
			return Session{}, err
		}
		img, format, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return Session{}, fmt.Errorf("decode image: %w", err)
		}
		s.Disposition = classify.Image
		s.Image = img
		s.ImageFormat = format
		return s, nil
	}

	sample, err := store.ReadHead(ctx, e.Path, limits.SampleSize)
	if err != nil {
		return Session{}, err
	}

	switch classify.Classify(ext, sample, e.Size, limits) {
	case classify.Text:
		data, err := store.ReadRange(ctx, e.Path, offset, limits.PageSize)
		if err != nil {
			return Session{}, err
		}
		dec := classify.DecodeBytes(data)
		s.Disposition = classify.Text
		s.Offset = offset
		s.Text = dec.Text
		s.Encoding = dec.Encoding
		s.Meta.Encoding = dec.Encoding
		s.Truncated = offset+int64(len(data)) < e.Size
	default:
		data, err := store.ReadHead(ctx, e.Path, limits.HexMax)
		if err != nil {
			return Session{}, err
		}
		s.Disposition = classify.Binary
		s.Hex = classify.HexDump(data)
		s.Truncated = e.Size > limits.HexMax
	}
	return s, nil
}
