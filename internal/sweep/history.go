package sweep

import "sync"

// History keeps the most recent run reports in memory, newest first. It is
// deliberately not persisted; a restart starts with an empty history.
type History struct {
	mu      sync.Mutex
	max     int
	reports []*Report
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 10
	}
	return &History{max: max}
}

func (h *History) Add(r *Report) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.reports = append([]*Report{r}, h.reports...)
	if len(h.reports) > h.max {
		h.reports = h.reports[:h.max]
	}
}

// Last returns the most recent report, or nil when no run has happened yet.
func (h *History) Last() *Report {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.reports) == 0 {
		return nil
	}
	return h.reports[0]
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reports)
}
