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

package decision

import (
	"context"
	"time"

	"heatpilot/v2/pkg/service"
)

// Service runs the orchestrator on a fixed interval. Cycles never overlap.
type Service struct {
	o        *Orchestrator
	interval time.Duration
}

func NewService(o *Orchestrator, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Service{o: o, interval: interval}
}

func (s *Service) Run(ctx context.Context) {
	s.o.log.Info("Running every %v", s.interval)
	defer s.o.log.Info("Stopped")
	service.Tick(ctx, s.interval, func(ctx context.Context) {
		if _, err := s.o.RunCycle(ctx); err != nil {
			s.o.log.Error("cycle aborted: %v", err)
		}
	})
}
