// README: Background sweep cancelling overdue NotStarted trips.
package trip

import (
	"context"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/observability"
)

// RunStatusSweep periodically cancels NotStarted trips whose departure time
// passed more than the grace window ago. The sweep only performs CAS flips,
// so it is safe to run concurrently with reads and live user actions; a trip
// that was started or cancelled between the list and the flip simply loses
// the precondition and is skipped.
func (s *Service) RunStatusSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOverdue(ctx)
		}
	}
}

// SweepOverdue runs one sweep pass. Per-item failures are logged and do not
// abort the pass for the remaining trips.
func (s *Service) SweepOverdue(ctx context.Context) {
	cutoff := s.clock().Add(-s.cfg.NotStartedGrace)
	overdue, err := s.store.ListNotStartedBefore(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		s.logger.Error("status sweep list failed", "error", err)
		return
	}
	for _, t := range overdue {
		if err := s.transition(ctx, t, StateCanceled, "system", nil); err != nil {
			// ErrConflict here just means a live actor won the race.
			if err != ErrConflict {
				s.logger.Warn("status sweep cancel failed", "trip", t.ID, "error", err)
			}
			continue
		}
		observability.SweepCancellations.Inc()
		s.logger.Info("trip auto-cancelled", "trip", t.ID, "departure", t.DepartureTime)
	}
}
