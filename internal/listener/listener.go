package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"invsync/internal"
	"invsync/internal/config"
	"invsync/internal/pipeline"
	"invsync/internal/storage"
)

const retryTimer = "retry"

type runner interface {
	Run(ctx context.Context, force bool) (internal.RunResult, error)
}

// Service is the daemon loop. It wakes every minute, fires the pipeline when
// the clock enters an unserved check window, and arms a one-shot timer for
// bounded retries. Retry state lives in the database so a restart re-arms a
// pending retry instead of losing it.
type Service struct {
	cfg    config.Config
	runner runner
	db     *storage.DB
	sched  *Scheduler
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger

	mu sync.Mutex // one run at a time
}

func NewService(cfg config.Config, r runner, db *storage.DB, loc *time.Location, log zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		runner: r,
		db:     db,
		sched:  NewScheduler(),
		loc:    loc,
		now:    time.Now,
		log:    log.With().Str("component", "listener").Logger(),
	}
}

func (s *Service) Run(ctx context.Context) error {
	defer s.sched.Stop()

	s.rearmPersistedRetry(ctx)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.log.Info().Strs("checkTimes", s.cfg.CheckTimes).Msg("listener started")
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	now := s.now().In(s.loc)

	checkTime, ok := pipeline.MatchCheckTime(now, s.cfg.CheckTimes, s.cfg.CheckToleranceMin, s.cfg.SkipSunday)
	if !ok {
		return
	}

	window := fmt.Sprintf("%s %s", now.Format("2006-01-02"), checkTime)
	last, err := s.db.LastWindow()
	if err != nil {
		s.log.Error().Err(err).Msg("read last window failed")
		return
	}
	if last == window {
		return
	}

	if err := s.db.SetLastWindow(window); err != nil {
		s.log.Error().Err(err).Msg("persist last window failed")
	}
	s.log.Info().Str("window", window).Msg("check window entered")
	s.fire(ctx, false)
}

// rearmPersistedRetry restores a retry timer that was pending when the
// previous process stopped. An overdue deadline fires right away.
func (s *Service) rearmPersistedRetry(ctx context.Context) {
	retryAt, err := s.db.NextRetryAt()
	if err != nil {
		s.log.Error().Err(err).Msg("read retry schedule failed")
		return
	}
	if retryAt == nil {
		return
	}
	s.log.Info().Time("retryAt", *retryAt).Msg("re-arming persisted retry")
	s.armRetry(ctx, *retryAt)
}

func (s *Service) armRetry(ctx context.Context, at time.Time) {
	s.sched.At(retryTimer, at, func() {
		if ctx.Err() != nil {
			return
		}
		s.log.Info().Msg("retry timer fired")
		s.fire(ctx, true)
	})
}

func (s *Service) fire(ctx context.Context, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.runner.Run(ctx, force)
	if err != nil {
		s.log.Error().Err(err).Msg("run failed")
		return
	}

	s.log.Info().
		Str("outcome", string(result.Outcome)).
		Int("rows", result.RowsWritten).
		Msg("run finished")

	if result.RetryAt != nil {
		s.armRetry(ctx, *result.RetryAt)
	}
}
