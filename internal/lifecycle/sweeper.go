package lifecycle

import (
	"context"
	"time"

	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/models"
)

// Sweeper periodically replays records left with pending side effects, for instance after a
// crash between a commit and its effects. Each sweep continues where the previous batch ended
// and wraps around once it reaches the newest record, so records that keep failing never starve
// the ones behind them.
type Sweeper struct {
	engine    *Engine
	interval  time.Duration
	batchSize int
	cursor    *models.Cursor
	logger    logger.Logger
}

func NewSweeper(engine *Engine, interval time.Duration, batchSize int, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
		logger:    log.WithFields(map[string]interface{}{"component": "effect-sweeper"}),
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("side effect sweeper started", map[string]interface{}{
		"interval": s.interval.String(),
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("side effect sweeper stopped", nil)
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one replay batch. It is not safe for concurrent use.
func (s *Sweeper) Sweep(ctx context.Context) ReplayReport {
	report, next, err := s.engine.ReplayBatch(ctx, s.cursor, s.batchSize)
	if err == nil && report.Scanned == 0 && s.cursor != nil {
		// past the newest record; wrap around
		s.cursor = nil
		report, next, err = s.engine.ReplayBatch(ctx, nil, s.batchSize)
	}
	if err != nil {
		s.logger.Error("side effect sweep failed", map[string]interface{}{"error": err.Error()})
		s.cursor = next
		return report
	}
	if s.batchSize <= 0 || report.Scanned < s.batchSize {
		s.cursor = nil
	} else {
		s.cursor = next
	}

	if report.Scanned > 0 {
		s.logger.Info("side effect sweep finished", map[string]interface{}{
			"scanned":   report.Scanned,
			"completed": report.Completed,
			"failed":    report.Failed,
			"parked":    report.Parked,
		})
	}
	if report.Parked > 0 {
		s.logger.Warn("records hold parked side effects", map[string]interface{}{
			"applicationIds": report.ParkedIDs,
		})
	}
	return report
}
