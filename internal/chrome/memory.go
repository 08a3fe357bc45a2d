package chrome

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

const memoryInterval = 5 * time.Second

// memoryWatch samples the browser process RSS and warns when it crosses the
// configured limit. Only called on the engine goroutine.
type memoryWatch struct {
	pid    int32
	limit  uint64
	every  time.Duration
	logger *zap.Logger

	last time.Time
	rss  uint64
	over bool
}

func newMemoryWatch(pid int, limitMB uint64, logger *zap.Logger) *memoryWatch {
	return &memoryWatch{
		pid:    int32(pid),
		limit:  limitMB * 1024 * 1024,
		every:  memoryInterval,
		logger: logger,
	}
}

// check samples at most once per interval and returns the last RSS seen.
func (m *memoryWatch) check(now time.Time) uint64 {
	if m == nil || m.pid <= 0 {
		return 0
	}
	if !m.last.IsZero() && now.Sub(m.last) < m.every {
		return m.rss
	}
	m.last = now

	p, err := process.NewProcess(m.pid)
	if err != nil {
		m.logger.Debug("chrome: process gone", zap.Int32("pid", m.pid), zap.Error(err))
		return m.rss
	}
	info, err := p.MemoryInfo()
	if err != nil {
		m.logger.Debug("chrome: memory sample failed", zap.Int32("pid", m.pid), zap.Error(err))
		return m.rss
	}
	m.rss = info.RSS

	if m.limit == 0 {
		return m.rss
	}
	switch {
	case m.rss > m.limit && !m.over:
		m.over = true
		m.logger.Warn("chrome: memory limit exceeded",
			zap.Int32("pid", m.pid),
			zap.Uint64("rss", m.rss),
			zap.Uint64("limit", m.limit))
	case m.rss <= m.limit && m.over:
		m.over = false
		m.logger.Info("chrome: memory back under limit", zap.Uint64("rss", m.rss))
	}
	return m.rss
}
