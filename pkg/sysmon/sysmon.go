// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package sysmon serves host and process statistics together with the
// results of registered health checks.
package sysmon

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"heatpilot/v2/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const checkTimeout = 3 * time.Second

// Check reports an unhealthy dependency by returning an error.
type Check func(ctx context.Context) error

type Service struct {
	mu      sync.RWMutex
	checks  map[string]Check
	started time.Time
	log     *logger.Logger
}

func New() *Service {
	return &Service{
		checks:  make(map[string]Check),
		started: time.Now(),
		log:     logger.New("System Monitor"),
	}
}

// WithCheck registers a named health check.
func (s *Service) WithCheck(name string, c Check) *Service {
	s.mu.Lock()
	s.checks[name] = c
	s.mu.Unlock()
	return s
}

// Status is the JSON form of the monitor page.
type Status struct {
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	Healthy   bool              `json:"healthy"`
	Checks    map[string]string `json:"checks"`
	CPU       CPUStats          `json:"cpu"`
	Memory    MemoryStats       `json:"memory"`
	Disk      DiskStats         `json:"disk"`
}

type CPUStats struct {
	SystemPercent  float64 `json:"system_percent"`
	ProcessPercent float64 `json:"process_percent"`
}

type MemoryStats struct {
	SystemTotal uint64 `json:"system_total"`
	SystemUsed  uint64 `json:"system_used"`
	SystemFree  uint64 `json:"system_free"`
	ProcessRSS  uint64 `json:"process_rss"`
}

type DiskStats struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

// RunChecks runs every check and returns "ok" or the error text per name.
func (s *Service) RunChecks(ctx context.Context) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(cctx)
		cancel()
		if err != nil {
			healthy = false
			results[name] = err.Error()
			s.log.Warn("check %s failed: %v", name, err)
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

func (s *Service) status(ctx context.Context) Status {
	st := Status{
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
	}
	st.Checks, st.Healthy = s.RunChecks(ctx)

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		st.CPU.SystemPercent = pct[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		st.Memory.SystemTotal = vmem.Total
		st.Memory.SystemUsed = vmem.Used
		st.Memory.SystemFree = vmem.Available
	}
	if total, free, used, err := DiskUsage("/"); err == nil {
		st.Disk = DiskStats{Total: total, Used: used, Free: free}
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			st.Memory.ProcessRSS = memInfo.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			st.CPU.ProcessPercent = pct
		}
	}
	return st
}

// ServeHTTP renders the monitor page, or JSON when asked for it. JSON
// requests get 503 while any check fails.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := s.status(r.Context())

	if r.Header.Get("Accept") == "application/json" || r.URL.Query().Has("json") {
		w.Header().Set("Content-Type", "application/json")
		if !st.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(st)
		return
	}

	names := make([]string, 0, len(st.Checks))
	for name := range st.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checkRows := ""
	for _, name := range names {
		checkRows += fmt.Sprintf("<tr><td>%s</td><td>%s</td></tr>", html.EscapeString(name), html.EscapeString(st.Checks[name]))
	}

	const gb = 1024 * 1024 * 1024
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		h1 { color: #333; }
		table { border-collapse: collapse; width: 60%%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>System Monitor</h1>
	<p>Go %s, up %s, healthy: %t</p>
	<h2>Checks</h2>
	<table>
		<tr><th>Check</th><th>Result</th></tr>
		%s
	</table>
	<h2>CPU</h2>
	<table>
		<tr><th>System %%</th><th>Process %%</th></tr>
		<tr><td>%.2f%%</td><td>%.2f%%</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>System Total</th><th>System Used</th><th>System Free</th><th>Process RSS</th></tr>
		<tr><td>%.2f GB</td><td>%.2f GB</td><td>%.2f GB</td><td>%.2f MB</td></tr>
	</table>
	<h2>Disk (/)</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th></tr>
		<tr><td>%.2f GB</td><td>%.2f GB</td><td>%.2f GB</td></tr>
	</table>
</body>
</html>
`,
		st.GoVersion, st.Uptime, st.Healthy,
		checkRows,
		st.CPU.SystemPercent, st.CPU.ProcessPercent,
		float64(st.Memory.SystemTotal)/gb,
		float64(st.Memory.SystemUsed)/gb,
		float64(st.Memory.SystemFree)/gb,
		float64(st.Memory.ProcessRSS)/(1024*1024),
		float64(st.Disk.Total)/gb,
		float64(st.Disk.Used)/gb,
		float64(st.Disk.Free)/gb,
	)
}
