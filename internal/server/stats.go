package server

import (
	"sync"
	"sync/atomic"

	"github.com/akave-ai/logserver/internal/model"
)

// Stats counts connection outcomes for the ops API.
type Stats struct {
	accepted     atomic.Int64
	responded    atomic.Int64
	expired      atomic.Int64
	writeFailed  atomic.Int64
	readFailed   atomic.Int64
	mu           sync.Mutex
	statusCounts map[int]int64
}

func NewStats() *Stats {
	return &Stats{statusCounts: make(map[int]int64)}
}

func (s *Stats) status(code int) {
	s.mu.Lock()
	s.statusCounts[code]++
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of the per-status counts together
// with the connection counters.
func (s *Stats) Snapshot() model.ServerStats {
	s.mu.Lock()
	byStatus := make(map[int]int64, len(s.statusCounts))
	for code, n := range s.statusCounts {
		byStatus[code] = n
	}
	s.mu.Unlock()
	return model.ServerStats{
		Accepted:        s.accepted.Load(),
		Responded:       s.responded.Load(),
		DeadlineExpired: s.expired.Load(),
		ReadFailed:      s.readFailed.Load(),
		WriteFailed:     s.writeFailed.Load(),
		ByStatus:        byStatus,
	}
}
