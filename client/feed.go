package client

import (
	"sort"
	"sync"
	"time"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/models"
)

// Feed is the client's local copy of its notifications and latest metrics.
// Applying the same event twice leaves it unchanged.
type Feed struct {
	mu      sync.RWMutex
	items   map[uint]models.Notification
	metrics *events.MetricsSnapshot
	notices []events.Envelope
}

const maxNotices = 50

func NewFeed() *Feed {
	return &Feed{items: make(map[uint]models.Notification)}
}

// Replace swaps the whole notification set for list, as fetched from the
// server after (re)connecting.
func (f *Feed) Replace(list []models.Notification) {
	items := make(map[uint]models.Notification, len(list))
	for _, n := range list {
		items[n.ID] = n
	}
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
}

// Apply folds one streamed envelope into the feed and reports whether
// anything changed.
func (f *Feed) Apply(env events.Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch p := env.Data.(type) {
	case events.NotificationCreated:
		if _, ok := f.items[p.ID]; ok {
			return false
		}
		f.items[p.ID] = p.Notification
		return true
	case events.NotificationMarkedRead:
		n, ok := f.items[p.ID]
		if !ok || n.Status == models.NotificationRead {
			return false
		}
		f.items[p.ID] = markRead(n, env.Ts)
		return true
	case events.NotificationsMarkedRead:
		changed := false
		for id, n := range f.items {
			if n.Status != models.NotificationRead {
				f.items[id] = markRead(n, env.Ts)
				changed = true
			}
		}
		return changed
	case events.MetricsSnapshot:
		if f.metrics != nil && !p.ComputedAt.After(f.metrics.ComputedAt) {
			return false
		}
		snap := p
		f.metrics = &snap
		return true
	case events.Announcement, events.Alert, events.TicketOpened, events.TicketReply:
		f.notices = append(f.notices, env)
		if len(f.notices) > maxNotices {
			f.notices = f.notices[len(f.notices)-maxNotices:]
		}
		return true
	}
	return false
}

func markRead(n models.Notification, at time.Time) models.Notification {
	n.Status = models.NotificationRead
	if at.IsZero() {
		at = time.Now().UTC()
	}
	n.ReadAt = &at
	return n
}

// List returns the notifications newest first.
func (f *Feed) List() []models.Notification {
	f.mu.RLock()
	out := make([]models.Notification, 0, len(f.items))
	for _, n := range f.items {
		out = append(out, n)
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (f *Feed) Get(id uint) (models.Notification, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.items[id]
	return n, ok
}

func (f *Feed) Unread() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	count := 0
	for _, n := range f.items {
		if n.Status != models.NotificationRead {
			count++
		}
	}
	return count
}

// Metrics returns the newest snapshot seen, if any.
func (f *Feed) Metrics() (events.MetricsSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.metrics == nil {
		return events.MetricsSnapshot{}, false
	}
	return *f.metrics, true
}

// SetMetrics installs a snapshot fetched from the server.
func (f *Feed) SetMetrics(snap events.MetricsSnapshot) {
	f.mu.Lock()
	f.metrics = &snap
	f.mu.Unlock()
}

// Notices returns the most recent transient events (announcements, alerts,
// ticket activity), oldest first.
func (f *Feed) Notices() []events.Envelope {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]events.Envelope(nil), f.notices...)
}

// update runs fn against the item set under the write lock. fn returns the
// prior value of every item it touched; nil means the item did not exist.
func (f *Feed) update(fn func(items map[uint]models.Notification) map[uint]*models.Notification) map[uint]*models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f.items)
}
