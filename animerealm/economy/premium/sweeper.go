// Package premium runs the background job that expires lapsed subscriptions.
package premium

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

const sweepTimeout = 2 * time.Minute

// Sweeper periodically revokes premium from users whose expiry has passed,
// attributing the revocation to the system actor. One user's failure never
// stops the rest of the sweep; the repository isolates per-user revokes.
type Sweeper struct {
	users repositories.UserRepository
	cron  *cron.Cron
}

func NewSweeper(users repositories.UserRepository) *Sweeper {
	return &Sweeper{
		users: users,
		cron:  cron.New(),
	}
}

// Start schedules the hourly sweep and runs one immediately so a bot that was
// down past several expirations catches up on boot.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@hourly", func() { s.sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	go s.sweep(ctx)
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	revoked, err := s.users.SweepExpiredPremiums(sweepCtx)
	if err != nil {
		slog.Error("Premium sweep failed",
			slog.String("type", "error"),
			slog.Any("error", err))
		return
	}
	if revoked > 0 {
		slog.Info("Premium sweep revoked expired subscriptions",
			slog.String("type", "sys"),
			slog.Int("revoked", revoked))
	}
}
