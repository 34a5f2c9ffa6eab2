package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

const reapTimeout = 5 * time.Minute

// Janitor runs the catalog reconciliation sweep: seasons and episodes whose
// parent went missing (a crash mid-cascade) are deleted. Runs on boot and
// daily after that.
type Janitor struct {
	animes repositories.AnimeRepository
	cron   *cron.Cron
}

func NewJanitor(animes repositories.AnimeRepository) *Janitor {
	return &Janitor{animes: animes, cron: cron.New()}
}

func (j *Janitor) Start(ctx context.Context) error {
	if _, err := j.cron.AddFunc("@daily", func() { j.reap(ctx) }); err != nil {
		return err
	}
	j.cron.Start()
	go j.reap(ctx)
	return nil
}

func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) reap(ctx context.Context) {
	reapCtx, cancel := context.WithTimeout(ctx, reapTimeout)
	defer cancel()

	seasons, episodes, err := j.animes.ReapOrphans(reapCtx)
	if err != nil {
		slog.Error("Orphan reap failed",
			slog.String("type", "error"),
			slog.Any("error", err))
		return
	}
	if seasons > 0 || episodes > 0 {
		slog.Info("Orphan reap removed dangling catalog entries",
			slog.String("type", "db"),
			slog.Int64("seasons", seasons),
			slog.Int64("episodes", episodes))
	}
}
