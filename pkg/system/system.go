// Copyright 2022 The iqreplay Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"iqreplay/pkg/log"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status stores system status.
type Status struct {
	CPUUsage        int    `json:"cpuUsage"`
	RAMUsage        int    `json:"ramUsage"`
	DiskUsage       int    `json:"diskUsage"`
	AvailableMemory uint64 `json:"availableMemory"`
}

type (
	cpuFunc  func(context.Context, time.Duration, bool) ([]float64, error)
	ramFunc  func() (*mem.VirtualMemoryStat, error)
	diskFunc func(string) (*disk.UsageStat, error)
)

// System host status of the machine that serves recordings.
type System struct {
	cpu  cpuFunc
	ram  ramFunc
	disk diskFunc

	recordingsDir string

	status   Status
	duration time.Duration

	log *log.Logger
	mu  sync.Mutex
	o   sync.Once
}

// New returns new System.
func New(recordingsDir string, log *log.Logger) *System {
	return &System{
		cpu:  cpu.PercentWithContext,
		ram:  mem.VirtualMemory,
		disk: disk.Usage,

		recordingsDir: recordingsDir,
		duration:      10 * time.Second,

		log: log,
	}
}

func (s *System) update(ctx context.Context) error {
	cpuUsage, err := s.cpu(ctx, s.duration, false)
	if err != nil {
		return fmt.Errorf("cpu usage: %w", err)
	}
	ramUsage, err := s.ram()
	if err != nil {
		return fmt.Errorf("ram usage: %w", err)
	}
	diskUsage, err := s.disk(s.recordingsDir)
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}

	s.mu.Lock()
	s.status = Status{
		CPUUsage:        int(cpuUsage[0]),
		RAMUsage:        int(ramUsage.UsedPercent),
		DiskUsage:       int(diskUsage.UsedPercent),
		AvailableMemory: ramUsage.Available,
	}
	s.mu.Unlock()

	return nil
}

// StatusLoop updates system status until context is canceled.
func (s *System) StatusLoop(ctx context.Context) {
	s.o.Do(func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.update(ctx); err != nil {
				s.log.Error().Src("system").Msgf("could not update status: %v", err)
				select {
				case <-ctx.Done():
				case <-time.After(s.duration):
				}
			}
		}
	})
}

// Status returns cpu, ram and disk usage.
func (s *System) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AvailableMemory returns the memory available to new allocations.
func (s *System) AvailableMemory() (uint64, error) {
	return AvailableMemory(s.ram)
}

// AvailableMemory returns the available memory reported by ram.
func AvailableMemory(ram func() (*mem.VirtualMemoryStat, error)) (uint64, error) {
	stat, err := ram()
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return stat.Available, nil
}
