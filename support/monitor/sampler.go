package monitor

import (
	"fmt"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// Resource thresholds over which the loop raises the synthetic "system"
// alert.
const (
	DefaultCPUThreshold    = 90.0
	DefaultMemoryThreshold = 90.0
	DefaultDiskThreshold   = 95.0
)

// ResourceSample is one point-in-time reading of the local machine.
type ResourceSample struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}

// Sampler produces resource samples. The monitor treats a nil Sampler as
// "no resource monitoring".
type Sampler interface {
	Sample() (*ResourceSample, error)
}

// SystemSampler reads CPU and memory from procfs and disk usage from the
// filesystem backing diskPath. CPU utilisation is computed between
// consecutive samples; the first call measures since boot.
type SystemSampler struct {
	fs       procfs.FS
	diskPath string

	prevBusy  float64
	prevTotal float64
}

// NewSystemSampler builds a SystemSampler over the default procfs mount.
func NewSystemSampler(diskPath string) (*SystemSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("cannot open procfs: %w", err)
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemSampler{fs: fs, diskPath: diskPath}, nil
}

func (s *SystemSampler) Sample() (*ResourceSample, error) {
	sample := &ResourceSample{SampledAt: time.Now().UTC()}

	stat, err := s.fs.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot read cpu stats: %w", err)
	}
	cpu := stat.CPUTotal
	busy := cpu.User + cpu.Nice + cpu.System + cpu.Iowait + cpu.IRQ + cpu.SoftIRQ + cpu.Steal
	total := busy + cpu.Idle
	if delta := total - s.prevTotal; delta > 0 {
		sample.CPUPercent = (busy - s.prevBusy) / delta * 100
	}
	s.prevBusy, s.prevTotal = busy, total

	mem, err := s.fs.Meminfo()
	if err != nil {
		return nil, fmt.Errorf("cannot read memory stats: %w", err)
	}
	if mem.MemTotal != nil && mem.MemAvailable != nil && *mem.MemTotal > 0 {
		sample.MemoryPercent = (1 - float64(*mem.MemAvailable)/float64(*mem.MemTotal)) * 100
	}

	var fsStat unix.Statfs_t
	if err := unix.Statfs(s.diskPath, &fsStat); err != nil {
		return nil, fmt.Errorf("cannot read disk stats for %s: %w", s.diskPath, err)
	}
	if fsStat.Blocks > 0 {
		sample.DiskPercent = (1 - float64(fsStat.Bavail)/float64(fsStat.Blocks)) * 100
	}
	return sample, nil
}
