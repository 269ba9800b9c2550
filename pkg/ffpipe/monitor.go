package ffpipe

import (
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is a point-in-time sample of the child's resource usage.
type ProcessStats struct {
	PID            int32         `json:"pid"`
	CPUPercent     float64       `json:"cpu_percent"`
	MemoryRSSBytes uint64        `json:"memory_rss_bytes"`
	MemoryVMSBytes uint64        `json:"memory_vms_bytes"`
	Uptime         time.Duration `json:"uptime"`
	SampledAt      time.Time     `json:"sampled_at"`
}

// ProcessMonitor periodically samples CPU and memory usage of a running
// FFmpeg child. It is optional; the event pipeline works without it.
type ProcessMonitor struct {
	proc      *process.Process
	interval  time.Duration
	startedAt time.Time

	mu    sync.RWMutex
	stats ProcessStats

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Monitor starts sampling the child's resource usage at the given
// interval. Stop the returned monitor before waiting on the child.
func (c *Child) Monitor(interval time.Duration) (*ProcessMonitor, error) {
	pid := c.Pid()
	if pid == 0 {
		return nil, fmt.Errorf("process not started")
	}
	return StartProcessMonitor(int32(pid), interval)
}

// StartProcessMonitor begins sampling an arbitrary pid.
func StartProcessMonitor(pid int32, interval time.Duration) (*ProcessMonitor, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("attaching to pid %d: %w", pid, err)
	}
	if interval <= 0 {
		interval = time.Second
	}

	m := &ProcessMonitor{
		proc:      proc,
		interval:  interval,
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func (m *ProcessMonitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *ProcessMonitor) sample() {
	stats := ProcessStats{
		PID:       m.proc.Pid,
		Uptime:    time.Since(m.startedAt),
		SampledAt: time.Now(),
	}

	if cpu, err := m.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := m.proc.MemoryInfo(); err == nil {
		stats.MemoryRSSBytes = mem.RSS
		stats.MemoryVMSBytes = mem.VMS
	}

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()
}

// Stats returns the most recent sample. The zero value is returned
// before the first tick.
func (m *ProcessMonitor) Stats() ProcessStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Stop ends sampling. Safe to call more than once.
func (m *ProcessMonitor) Stop() {
	m.once.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}
