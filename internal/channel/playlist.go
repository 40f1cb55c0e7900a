package channel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cynwrig/synctube/internal/media"
)

// PlaylistItem is one entry in the shared play queue. Identity is by UID
// alone; the remaining fields are display metadata.
type PlaylistItem struct {
	UID      int
	Temp     bool
	QueuedBy string
	Title    string
	// Duration is in seconds; zero for live or indeterminate media.
	Duration int
	Link     media.Link
}

func (it *PlaylistItem) String() string {
	return fmt.Sprintf("<playlist item #%d %q>", it.UID, it.Title)
}

// Playlist mirrors the server's play queue: an ordered sequence of items,
// the currently playing item, the playback clock, and lock state.
type Playlist struct {
	mu          sync.RWMutex
	queue       []*PlaylistItem
	current     *PlaylistItem
	time        int
	currentTime float64
	paused      bool
	locked      bool
}

// NewPlaylist creates an empty, paused playlist.
func NewPlaylist() *Playlist {
	return &Playlist{paused: true}
}

// Len returns the number of queued items.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.queue)
}

// Queue returns a copy of the queue in play order.
func (p *Playlist) Queue() []*PlaylistItem {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*PlaylistItem, len(p.queue))
	copy(out, p.queue)
	return out
}

// IndexOf returns the position of the item with the given uid.
func (p *Playlist) IndexOf(uid int) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.indexOf(uid)
}

func (p *Playlist) indexOf(uid int) (int, error) {
	for i, it := range p.queue {
		if it.UID == uid {
			return i, nil
		}
	}
	return 0, fmt.Errorf("playlist item #%d not found", uid)
}

// Get returns the item with the given uid.
func (p *Playlist) Get(uid int) (*PlaylistItem, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, err := p.indexOf(uid)
	if err != nil {
		return nil, err
	}
	return p.queue[i], nil
}

// Add inserts an item after the item with uid *after, or appends when
// after is nil. Inserting after an unknown uid fails.
func (p *Playlist) Add(after *int, item *PlaylistItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if after == nil {
		p.queue = append(p.queue, item)
		return nil
	}
	i, err := p.indexOf(*after)
	if err != nil {
		return err
	}
	p.queue = append(p.queue, nil)
	copy(p.queue[i+2:], p.queue[i+1:])
	p.queue[i+1] = item
	return nil
}

// Remove deletes the item with the given uid. Removing the currently
// playing item resets the current pointer and playback clock and pauses.
func (p *Playlist) Remove(uid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remove(uid)
}

func (p *Playlist) remove(uid int) error {
	i, err := p.indexOf(uid)
	if err != nil {
		return err
	}
	if p.current != nil && p.current.UID == uid {
		p.current = nil
		p.currentTime = 0
		p.paused = true
	}
	p.queue = append(p.queue[:i], p.queue[i+1:]...)
	return nil
}

// Move relocates the item with uid from to just after the item with uid
// after. It is remove-then-insert, so moving the currently playing item
// also resets the current pointer; callers relying on the historical
// behavior get exactly that.
func (p *Playlist) Move(from, after int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, err := p.indexOf(from)
	if err != nil {
		return err
	}
	if _, err := p.indexOf(after); err != nil {
		return err
	}
	item := p.queue[i]
	if err := p.remove(from); err != nil {
		return err
	}
	j, err := p.indexOf(after)
	if err != nil {
		return err
	}
	p.queue = append(p.queue, nil)
	copy(p.queue[j+2:], p.queue[j+1:])
	p.queue[j+1] = item
	return nil
}

// Clear empties the queue and resets playback state. The lock flag is a
// channel setting and survives.
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
	p.current = nil
	p.time = 0
	p.currentTime = 0
	p.paused = true
}

// Current returns the currently playing item, or nil.
func (p *Playlist) Current() *PlaylistItem {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// SetCurrent points playback at the item with the given uid, which must
// be present in the queue.
func (p *Playlist) SetCurrent(uid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, err := p.indexOf(uid)
	if err != nil {
		return err
	}
	p.current = p.queue[i]
	return nil
}

// ClearCurrent resets the current pointer.
func (p *Playlist) ClearCurrent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
}

// Time returns the queue's total raw time in seconds.
func (p *Playlist) Time() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.time
}

// SetTime records the queue's total raw time.
func (p *Playlist) SetTime(t int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.time = t
}

// CurrentTime returns the playback position in seconds.
func (p *Playlist) CurrentTime() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentTime
}

// Paused reports whether playback is paused.
func (p *Playlist) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// UpdatePlayback records the playback clock from a media update.
func (p *Playlist) UpdatePlayback(currentTime float64, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentTime = currentTime
	p.paused = paused
}

// Locked reports whether the playlist is locked.
func (p *Playlist) Locked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.locked
}

// SetLocked records the playlist lock flag.
func (p *Playlist) SetLocked(locked bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = locked
}

func (p *Playlist) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	titles := make([]string, len(p.queue))
	for i, it := range p.queue {
		titles[i] = fmt.Sprintf("#%d %q", it.UID, it.Title)
	}
	return fmt.Sprintf("<playlist [%s]>", strings.Join(titles, ", "))
}
