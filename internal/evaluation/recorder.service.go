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

package evaluation

import (
	"context"
	"errors"
	"time"

	"heatpilot/v2/internal/events"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store"
	"heatpilot/v2/internal/telemetry"
	"heatpilot/v2/pkg/eventbus"
	"heatpilot/v2/pkg/logger"
	"heatpilot/v2/pkg/service"

	"gorm.io/gorm"
)

const batchSize = 100

// Ledger receives every stored evaluation.
type Ledger interface {
	PublishEvaluation(ctx context.Context, e model.Evaluation) error
}

// Service evaluates decisions once they are older than the delay.
type Service struct {
	db       *gorm.DB
	recorder *Recorder
	delay    time.Duration
	interval time.Duration
	eb       *eventbus.Bus
	metrics  *telemetry.Metrics
	ledger   Ledger
	now      func() time.Time
	log      *logger.Logger
}

func NewService(db *gorm.DB, recorder *Recorder, delay, interval time.Duration) *Service {
	if delay <= 0 {
		delay = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		db:       db,
		recorder: recorder,
		delay:    delay,
		interval: interval,
		now:      time.Now,
		log:      logger.New("Evaluation"),
	}
}

func (s *Service) WithEventBus(eb *eventbus.Bus) *Service {
	s.eb = eb
	return s
}

func (s *Service) WithMetrics(m *telemetry.Metrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithLedger(l Ledger) *Service {
	s.ledger = l
	return s
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Evaluating decisions older than %v every %v", s.delay, s.interval)
	defer s.log.Info("Stopped")
	service.Tick(ctx, s.interval, func(ctx context.Context) {
		if _, err := s.EvaluatePending(ctx); err != nil {
			s.log.Error("%v", err)
		}
	})
}

// EvaluatePending scores every decision older than the delay that has no
// evaluation yet and returns how many were stored. Decisions without outcome
// data stay pending and are paged past.
func (s *Service) EvaluatePending(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.delay)
	n, skipped := 0, 0
	for ctx.Err() == nil {
		pending, err := store.PendingEvaluation(ctx, s.db, cutoff, skipped, batchSize)
		if err != nil {
			return n, err
		}
		for _, d := range pending {
			e, err := s.recorder.Evaluate(ctx, s.db, d.ID)
			if errors.Is(err, ErrNoOutcomeData) {
				s.log.Debug("%v", err)
				skipped++
				continue
			}
			if err != nil {
				return n, err
			}
			n++
			s.stored(ctx, e)
		}
		if len(pending) < batchSize {
			break
		}
	}
	if skipped > 0 {
		s.log.Info("%d decisions still waiting for outcome data", skipped)
	}
	return n, nil
}

func (s *Service) stored(ctx context.Context, e *model.Evaluation) {
	s.log.Debug("decision %s: %s (score %.2f)", e.DecisionID, e.Verdict, e.OutcomeScore)
	if s.metrics != nil {
		s.metrics.Evaluations.WithLabelValues(e.Verdict).Inc()
	}
	if s.eb != nil {
		s.eb.Publish(events.TopicEvaluation, events.EvaluationUpdate{
			DecisionID: e.DecisionID,
			Score:      e.OutcomeScore,
			Verdict:    e.Verdict,
		})
	}
	if s.ledger != nil {
		if err := s.ledger.PublishEvaluation(ctx, *e); err != nil {
			s.log.Warn("ledger: %v", err)
		}
	}
}
