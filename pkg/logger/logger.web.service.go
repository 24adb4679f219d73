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

package logger

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
)

const defaultTailLines = 250

// Service exposes the log tail and the debug switch over HTTP.
//
//	GET  /        -> {"debug": bool, "lines": [...]}   (?n= limits the tail)
//	POST /debug   -> toggles debug output
//	POST /clear   -> truncates the log file
type Service struct {
	mu sync.Mutex
}

func WebService() *Service {
	return &Service{}
}

type tailResponse struct {
	Debug bool     `json:"debug"`
	Lines []string `json:"lines"`
}

// ServeHTTP implements http.Handler
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/debug":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		EnableDebug(!IsDebug())
		s.writeTail(w, 0)

	case "/clear":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.clearLog(); err != nil {
			http.Error(w, "failed to clear log: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeTail(w, 0)

	default:
		n, err := strconv.Atoi(r.URL.Query().Get("n"))
		if err != nil || n <= 0 {
			n = defaultTailLines
		}
		s.writeTail(w, n)
	}
}

func (s *Service) writeTail(w http.ResponseWriter, n int) {
	resp := tailResponse{Debug: IsDebug(), Lines: []string{}}
	if n > 0 {
		lines, err := s.tail(n)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Lines = lines
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// clearLog truncates the log file and points the base logger at the fresh file
func (s *Service) clearLog() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	baseMu.RLock()
	f := logFile
	baseMu.RUnlock()
	if f == nil {
		return nil
	}

	name := f.Name()
	newf, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	baseMu.Lock()
	old := logFile
	logFile = newf
	baseMu.Unlock()
	setBase(io.MultiWriter(os.Stdout, newf))
	if old != nil {
		old.Close()
	}
	return nil
}

// tail reads the last n lines of the log file
func (s *Service) tail(n int) ([]string, error) {
	baseMu.RLock()
	f := logFile
	baseMu.RUnlock()
	if f == nil {
		return []string{}, nil
	}

	rf, err := os.Open(f.Name())
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	lines := make([]string, 0, n)
	sc := bufio.NewScanner(rf)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, sc.Err()
}
