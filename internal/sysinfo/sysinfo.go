// Package sysinfo stamps run records with the machine they ran on.
package sysinfo

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

// SysInfo saves the basic system information
type SysInfo struct {
	Platform string `json:"platform"`
	CPU      string `json:"cpu"`
	RAM      string `json:"ram"`
}

// String joins the non-empty fields with "/".
func (s SysInfo) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Platform, s.CPU, s.RAM} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}

var (
	once   sync.Once
	cached SysInfo
)

// Collect reads the host once per process. Fields the platform cannot
// report stay empty.
func Collect() SysInfo {
	once.Do(func() {
		if h, err := host.Info(); err == nil {
			cached.Platform = h.Platform
		}
		if c, err := cpu.Info(); err == nil && len(c) > 0 {
			cached.CPU = c[0].ModelName
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			cached.RAM = fmt.Sprintf("%d GB", vm.Total/1024/1024/1024)
		}
	})
	return cached
}
