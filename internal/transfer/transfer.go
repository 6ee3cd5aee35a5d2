// Package transfer runs uploads and downloads in the background and keeps a
// record of each one for display.
//
// Each transfer reports through its own channel, drained by a listener
// command that re-arms itself after every event, so one transfer's events
// reach Update in the order they were produced. Separate transfers
// interleave freely.
package transfer

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/zackbart/nova/internal/remote"
)

type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Download {
		return "Download"
	}
	return "Upload"
}

type Status int

const (
	Queued Status = iota
	Running
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "Running"
	case Done:
		return "Done"
	case Failed:
		return "Error"
	default:
		return "Queued"
	}
}

// Terminal reports whether no further events can change the record.
func (s Status) Terminal() bool { return s == Done || s == Failed }

type Record struct {
	ID        int
	Direction Direction
	Label     string
	Percent   int
	Status    Status
	Message   string
}

// StatusText is the status as shown in the transfers pane.
func (r Record) StatusText() string {
	if r.Status == Failed {
		return "Error: " + r.Message
	}
	return r.Status.String()
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventDone
	EventFailed
)

// EventMsg is one step of a transfer.
type EventMsg struct {
	ID      int
	Kind    EventKind
	Percent int
	Err     error

	next <-chan EventMsg
}

const eventBuffer = 16

// Percent is done as a whole percentage of total, clamped to 0..100. An
// unknown or zero total reads as 0.
func Percent(done, total int64) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return int(done * 100 / total)
}

type Tracker struct {
	store remote.Store
	log   *zap.Logger

	lastID      int
	records     []Record
	index       map[int]int
	afterUpload func() tea.Cmd
}

func New(store remote.Store, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{store: store, log: log, index: make(map[int]int)}
}

// OnUploadDone sets a hook run after each successful upload. The command it
// returns is handed back from Update along with the Done event.
func (t *Tracker) OnUploadDone(fn func() tea.Cmd) { t.afterUpload = fn }

// Begin adds a queued record and returns its id.
func (t *Tracker) Begin(dir Direction, label string) int {
	t.lastID++
	t.index[t.lastID] = len(t.records)
	t.records = append(t.records, Record{ID: t.lastID, Direction: dir, Label: label, Status: Queued})
	return t.lastID
}

func (t *Tracker) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

func (t *Tracker) Record(id int) (Record, bool) {
	i, ok := t.index[id]
	if !ok {
		return Record{}, false
	}
	return t.records[i], true
}

// Active counts transfers that have not finished.
func (t *Tracker) Active() int {
	n := 0
	for _, r := range t.records {
		if !r.Status.Terminal() {
			n++
		}
	}
	return n
}

func (t *Tracker) Upload(localPath, remotePath string) tea.Cmd {
	id := t.Begin(Upload, filepath.Base(localPath))
	store := t.store
	t.log.Info("upload queued", zap.Int("id", id), zap.String("local", localPath), zap.String("remote", remotePath))
	return t.start(id, func(ctx context.Context, progress remote.ProgressFunc) error {
		return store.Put(ctx, localPath, remotePath, progress)
	})
}

func (t *Tracker) Download(remotePath, localPath string) tea.Cmd {
	id := t.Begin(Download, path.Base(remotePath))
	store := t.store
	t.log.Info("download queued", zap.Int("id", id), zap.String("remote", remotePath), zap.String("local", localPath))
	return t.start(id, func(ctx context.Context, progress remote.ProgressFunc) error {
		return store.Get(ctx, remotePath, localPath, progress)
	})
}

func (t *Tracker) start(id int, run func(context.Context, remote.ProgressFunc) error) tea.Cmd {
	ch := make(chan EventMsg, eventBuffer)
	log := t.log

	work := func() tea.Msg {
		defer close(ch)
		ch <- EventMsg{ID: id, Kind: EventStarted}
		last := -1
		err := run(context.Background(), func(done, total int64) {
			if p := Percent(done, total); p != last {
				last = p
				ch <- EventMsg{ID: id, Kind: EventProgress, Percent: p}
			}
		})
		if err != nil {
			log.Warn("transfer failed", zap.Int("id", id), zap.Error(err))
			ch <- EventMsg{ID: id, Kind: EventFailed, Err: err}
			return nil
		}
		ch <- EventMsg{ID: id, Kind: EventDone, Percent: 100}
		return nil
	}
	return tea.Batch(work, listen(ch))
}

func listen(ch <-chan EventMsg) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		ev.next = ch
		return ev
	}
}

// Update applies ev to its record and returns the command that waits for the
// transfer's next event, or the upload hook once an upload is done.
func (t *Tracker) Update(ev EventMsg) tea.Cmd {
	i, ok := t.index[ev.ID]
	if !ok {
		return nil
	}
	r := &t.records[i]
	if r.Status.Terminal() {
		return nil
	}

	switch ev.Kind {
	case EventStarted:
		r.Status = Running
	case EventProgress:
		r.Status = Running
		r.Percent = ev.Percent
	case EventDone:
		r.Status = Done
		r.Percent = 100
		t.log.Info("transfer done", zap.Int("id", r.ID), zap.Stringer("direction", r.Direction), zap.String("file", r.Label))
		if r.Direction == Upload && t.afterUpload != nil {
			return t.afterUpload()
		}
		return nil
	case EventFailed:
		r.Status = Failed
		r.Message = errText(ev.Err)
		return nil
	}

	if ev.next == nil {
		return nil
	}
	return listen(ev.next)
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return fmt.Sprint(err)
}
