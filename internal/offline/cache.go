// Package offline implements the store-and-forward buffer that keeps
// measurements and alerts while the backend is unreachable.
package offline

import (
	"sort"
	"time"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/vitals"
)

// EventKind tags the payload carried by a cached event.
type EventKind string

const (
	EventMeasurement EventKind = "MEASUREMENT"
	EventAlert       EventKind = "ALERT"
)

// CachedEvent wraps one buffered measurement or alert. Timestamp is the
// payload's own event time, not the insertion time, so a flush replays
// events in the order they actually occurred.
type CachedEvent struct {
	Kind        EventKind           `json:"eventType"`
	Measurement *vitals.Measurement `json:"measurement,omitempty"`
	Alert       *alerting.Event     `json:"alert,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Synced      bool                `json:"synced"`
}

// Cache buffers events while offline and hands them back in chronological
// order once connectivity returns. It carries the connectivity flag itself;
// callers gate delivery on Online and drain via Flush. The cache is not
// internally synchronized: the pipeline serializes access.
type Cache struct {
	online  bool
	entries []CachedEvent
}

// NewCache starts online with an empty queue.
func NewCache() *Cache {
	return &Cache{online: true}
}

// Online reports the current connectivity flag.
func (c *Cache) Online() bool {
	return c.online
}

// SetOnline toggles connectivity. Buffered events stay put until an
// explicit Flush.
func (c *Cache) SetOnline(online bool) {
	c.online = online
}

// StoreMeasurement buffers a raw measurement keyed by its own timestamp.
func (c *Cache) StoreMeasurement(m vitals.Measurement) {
	c.entries = append(c.entries, CachedEvent{
		Kind:        EventMeasurement,
		Measurement: &m,
		Timestamp:   m.Timestamp,
	})
}

// StoreAlert buffers an alert keyed by its own timestamp.
func (c *Cache) StoreAlert(a alerting.Event) {
	c.entries = append(c.entries, CachedEvent{
		Kind:      EventAlert,
		Alert:     &a,
		Timestamp: a.Timestamp,
	})
}

// Flush drains the queue and returns every buffered event sorted ascending
// by event time. Ties keep insertion order. The queue is empty afterwards;
// no event is ever returned twice.
func (c *Cache) Flush() []CachedEvent {
	drained := c.entries
	c.entries = nil

	sort.SliceStable(drained, func(i, j int) bool {
		return drained[i].Timestamp.Before(drained[j].Timestamp)
	})
	return drained
}

// Len reports how many events are currently buffered.
func (c *Cache) Len() int {
	return len(c.entries)
}
