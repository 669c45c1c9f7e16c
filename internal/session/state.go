package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/roman-kulish/unit-companion/internal/trip"
)

// Phase is the connection state of the session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseTransferring
	PhaseDownloading
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseTransferring:
		return "transferring"
	case PhaseDownloading:
		return "downloading"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

// TransferProgress is the progress of a trip and tile upload.
type TransferProgress struct {
	FileID     string
	Percentage int
	TilesSent  int
	TilesTotal int
}

// DownloadProgress is the progress of a recording download.
type DownloadProgress struct {
	ItemID     string
	Percentage int
	Message    string
}

// State is a snapshot of the session state. Transfer is set only in
// PhaseTransferring, Download only in PhaseDownloading and Err only in
// PhaseError.
type State struct {
	Phase    Phase
	Transfer *TransferProgress
	Download *DownloadProgress
	Err      string
}

// NoticeKind classifies a user visible notice.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeError
)

// Notice is a user visible message produced by the session.
type Notice struct {
	Kind    NoticeKind
	Op      string
	Message string
	Time    time.Time
}

// machine owns the session phase and everything derived from the link.
// Progress values are updated in place; observers receive copies.
type machine struct {
	mu       sync.Mutex
	phase    Phase
	transfer TransferProgress
	download DownloadProgress
	errMsg   string

	trips      map[string]struct{}
	recordings map[string]trip.RecordingInfo
	activeTrip string

	states *watch[State]
}

func newMachine() *machine {
	return &machine{
		trips:      make(map[string]struct{}),
		recordings: make(map[string]trip.RecordingInfo),
		states:     newWatch[State](1),
	}
}

func (m *machine) snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *machine) snapshotLocked() State {
	s := State{Phase: m.phase}
	switch m.phase {
	case PhaseTransferring:
		p := m.transfer
		s.Transfer = &p
	case PhaseDownloading:
		p := m.download
		s.Download = &p
	case PhaseError:
		s.Err = m.errMsg
	}
	return s
}

// publishLocked must be called with m.mu held so observers see transitions in order.
func (m *machine) publishLocked() {
	m.states.publish(m.snapshotLocked())
}

func (m *machine) subscribe(ctx context.Context) <-chan State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states.subscribe(ctx, m.snapshotLocked())
}

func (m *machine) current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// canCommand reports whether commands may be issued to the unit.
func (m *machine) canCommand() bool {
	switch m.current() {
	case PhaseConnected, PhaseTransferring, PhaseDownloading:
		return true
	default:
		return false
	}
}

func (m *machine) set(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == p {
		return
	}
	m.phase = p
	m.publishLocked()
}

func (m *machine) fail(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = PhaseError
	m.errMsg = msg
	m.publishLocked()
}

// reset returns to PhaseIdle and forgets everything learnt from the unit.
func (m *machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.trips)
	clear(m.recordings)
	m.activeTrip = ""

	if m.phase == PhaseIdle {
		return
	}
	m.phase = PhaseIdle
	m.publishLocked()
}

func (m *machine) beginTransfer(fileID string, tiles int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case PhaseConnected:
	case PhaseTransferring, PhaseDownloading:
		return ErrBusy
	default:
		return ErrLinkUnavailable
	}

	m.phase = PhaseTransferring
	m.transfer = TransferProgress{FileID: fileID, TilesTotal: tiles}
	if tiles == 0 {
		m.transfer.Percentage = 100
	}
	m.publishLocked()
	return nil
}

func (m *machine) progressTransfer(sent int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseTransferring {
		return
	}
	m.transfer.TilesSent = sent
	if m.transfer.TilesTotal > 0 {
		m.transfer.Percentage = sent * 100 / m.transfer.TilesTotal
	}
	m.publishLocked()
}

func (m *machine) beginDownload(itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case PhaseConnected:
	case PhaseDownloading:
		if m.download.ItemID == itemID {
			return ErrAlreadyInProgress
		}
		return ErrBusy
	case PhaseTransferring:
		return ErrBusy
	default:
		return ErrLinkUnavailable
	}

	m.phase = PhaseDownloading
	m.download = DownloadProgress{ItemID: itemID}
	m.publishLocked()
	return nil
}

func (m *machine) progressDownload(percentage int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseDownloading {
		return
	}
	m.download.Percentage = percentage
	m.download.Message = message
	m.publishLocked()
}

// finishJob returns from a busy phase to PhaseConnected. A job outliving the
// link leaves the phase untouched.
func (m *machine) finishJob(busy Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != busy {
		return
	}
	m.phase = PhaseConnected
	m.publishLocked()
}

func (m *machine) setTrips(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.trips)
	for _, name := range names {
		m.trips[name] = struct{}{}
	}
}

func (m *machine) addTrip(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[name] = struct{}{}
}

func (m *machine) hasTrip(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.trips[name]
	return ok
}

func (m *machine) knownTrips() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.trips))
	for name := range m.trips {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *machine) setRecordings(recordings []trip.RecordingInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.recordings)
	for _, r := range recordings {
		m.recordings[r.Name] = r
	}
}

func (m *machine) recording(name string) (trip.RecordingInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recordings[name]
	return r, ok
}

func (m *machine) setActiveTrip(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeTrip = name
}

func (m *machine) active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeTrip
}

// watch fans values out to subscribers. A subscriber that falls behind loses
// its oldest undelivered values.
type watch[T any] struct {
	mu     sync.Mutex
	size   int
	nextID int
	subs   map[int]chan T
}

func newWatch[T any](size int) *watch[T] {
	return &watch[T]{size: size, subs: make(map[int]chan T)}
}

func (w *watch[T]) publish(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ch := range w.subs {
		for {
			select {
			case ch <- v:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// subscribe returns a channel closed once ctx is done. The initial values are
// delivered first, up to the channel capacity.
func (w *watch[T]) subscribe(ctx context.Context, initial ...T) <-chan T {
	ch := make(chan T, w.size)
	for _, v := range initial {
		select {
		case ch <- v:
		default:
		}
	}

	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = ch
	w.mu.Unlock()

	go func() {
		<-ctx.Done()

		w.mu.Lock()
		delete(w.subs, id)
		close(ch)
		w.mu.Unlock()
	}()

	return ch
}
