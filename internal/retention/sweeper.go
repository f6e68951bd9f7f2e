package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/convlog/internal/domain"
	"github.com/gosuda/convlog/internal/notify"
)

// Sweeper periodically purges messages older than the retention TTL and
// reports non-empty or failed sweeps through the notifier.
type Sweeper struct {
	conversations domain.ConversationRepository
	notifier      notify.Notifier
	ttl           time.Duration
	interval      time.Duration
}

// NewSweeper creates a Sweeper. ttl must be positive; interval controls how
// often the purge runs.
func NewSweeper(conversations domain.ConversationRepository, notifier notify.Notifier, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		conversations: conversations,
		notifier:      notifier,
		ttl:           ttl,
		interval:      interval,
	}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// SweepOnce purges messages older than now minus the TTL and returns the
// number of rows removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.ttl).Unix()

	removed, err := s.conversations.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention.Sweeper.SweepOnce: %w", err)
	}

	return removed, nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	runID := uuid.New()

	removed, err := s.SweepOnce(ctx)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID.String()).Msg("retention sweep failed")
		if notifyErr := s.notifier.Send(ctx, fmt.Sprintf("retention sweep %s failed: %v", runID, err)); notifyErr != nil {
			log.Warn().Err(notifyErr).Str("run_id", runID.String()).Msg("retention sweep report failed")
		}
		return
	}

	log.Info().Str("run_id", runID.String()).Int64("removed", removed).Msg("retention sweep complete")

	if removed == 0 {
		return
	}

	report := fmt.Sprintf("retention sweep %s removed %d messages older than %s", runID, removed, s.ttl)
	if notifyErr := s.notifier.Send(ctx, report); notifyErr != nil {
		log.Warn().Err(notifyErr).Str("run_id", runID.String()).Msg("retention sweep report failed")
	}
}
