package autoscaler

import (
	"sync"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
)

// History is the capped, oldest-first record of executed scaling actions.
// The decision engine reads it back to adjust confidence from recent
// outcomes of the same action.
type History struct {
	mu       sync.RWMutex
	records  []model.ScalingRecord
	capacity int
}

// NewHistory creates a history ring with the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = constants.DefaultHistoryCapacity
	}
	return &History{capacity: capacity}
}

// Append records one executed action, evicting the oldest entry when the
// ring is full.
func (h *History) Append(rec model.ScalingRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	if len(h.records) > h.capacity {
		h.records = h.records[len(h.records)-h.capacity:]
	}
}

// Records returns a copy of all retained records, oldest first.
func (h *History) Records() []model.ScalingRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.ScalingRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Recent returns up to n of the newest records, oldest first.
func (h *History) Recent(n int) []model.ScalingRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.records) {
		n = len(h.records)
	}
	out := make([]model.ScalingRecord, n)
	copy(out, h.records[len(h.records)-n:])
	return out
}

// Len returns the number of retained records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// SuccessRate returns the success fraction of the given action within the
// window ending now, and whether any such records exist.
func (h *History) SuccessRate(action model.ScalingAction, window time.Duration) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cutoff := time.Now().Add(-window)
	total, succeeded := 0, 0
	for _, rec := range h.records {
		if rec.Action != action || rec.Timestamp.Before(cutoff) {
			continue
		}
		total++
		if rec.Success {
			succeeded++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(succeeded) / float64(total), true
}

// LastExecuted returns the timestamp of the newest record, if any.
func (h *History) LastExecuted() (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return time.Time{}, false
	}
	return h.records[len(h.records)-1].Timestamp, true
}
