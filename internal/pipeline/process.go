package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"invsync/internal"
	"invsync/internal/config"
	"invsync/internal/notify"
	"invsync/internal/sheets"
	"invsync/internal/storage"
)

type passExtractor interface {
	Extract(ctx context.Context, content []byte) ([]internal.ExtractionPass, error)
}

// Service runs one end-to-end inventory update: schedule gate, email
// selection, extraction, merge, sheet write, notifications. One Run call is
// one slot of the daily schedule.
type Service struct {
	cfg       *config.Config
	selector  *Selector
	extractor passExtractor
	store     sheets.Store
	notifier  notify.Notifier
	db        *storage.DB
	loc       *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(
	cfg *config.Config,
	selector *Selector,
	extractor passExtractor,
	store sheets.Store,
	notifier notify.Notifier,
	db *storage.DB,
	loc *time.Location,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		selector:  selector,
		extractor: extractor,
		store:     store,
		notifier:  notifier,
		db:        db,
		loc:       loc,
		now:       time.Now,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one inventory update. force bypasses the schedule gate, used
// for manual runs and scheduled retries.
func (s *Service) Run(ctx context.Context, force bool) (internal.RunResult, error) {
	started := time.Now()
	now := s.now().In(s.loc)

	checkTime, ok := MatchCheckTime(now, s.cfg.CheckTimes, s.cfg.CheckToleranceMin, s.cfg.SkipSunday)
	if !ok && !force {
		s.log.Info().Time("now", now).Msg("outside check windows, skipping")
		return internal.RunResult{Outcome: internal.OutcomeSkipped}, nil
	}
	if checkTime == "" {
		checkTime = now.Format("15:04")
	}

	window := WindowAround(now, checkTime, s.cfg.SearchWindowMin)
	s.log.Info().Str("checkTime", checkTime).Msg("run started")

	msg, err := s.selector.FindLatest(ctx, window)
	if errors.Is(err, ErrNoCandidate) {
		return s.handleNoMatch(ctx, now, checkTime, started)
	}
	if err != nil {
		return s.fatal(ctx, checkTime, started, fmt.Errorf("search mail: %w", err))
	}

	att := PickPDFAttachment(msg, s.cfg.AttachmentKeywords)
	if att == nil {
		s.log.Warn().Str("subject", msg.Subject).Msg("email has no matching PDF attachment")
		return s.finishWithoutData(ctx, internal.OutcomeNoInput, msg, started)
	}

	s.log.Info().
		Str("subject", msg.Subject).
		Str("attachment", att.Filename).
		Int("bytes", len(att.Content)).
		Msg("processing attachment")

	passes, err := s.extractor.Extract(ctx, att.Content)
	if err != nil && !errors.Is(err, ErrNoData) {
		return s.fatal(ctx, checkTime, started, fmt.Errorf("extract tables: %w", err))
	}

	rows := MergeTables(passes, s.cfg.DedupEnabled, s.log)
	if len(rows) == 0 {
		s.log.Warn().Str("subject", msg.Subject).Msg("no table rows extracted, keeping previous data")
		return s.finishWithoutData(ctx, internal.OutcomeDegraded, msg, started)
	}

	updatedAt := UpdateTimestamp(att.Content, msg.ReceivedAt, now, s.loc)
	rec := BuildOutputRecord(rows, updatedAt)

	if err := s.store.ReplaceSummary(ctx, rec); err != nil {
		return s.fatal(ctx, checkTime, started, fmt.Errorf("write summary: %w", err))
	}
	if err := s.store.SetStockFormulas(ctx); err != nil {
		s.log.Error().Err(err).Msg("set stock formulas failed")
	}
	if err := s.store.SetSummaryReference(ctx); err != nil {
		s.log.Error().Err(err).Msg("set summary reference failed")
	}

	s.clearRetryState()

	result := internal.RunResult{
		Outcome:     internal.OutcomeWritten,
		RowsWritten: len(rec.Rows),
		Email:       msg,
	}
	s.recordRun(result, started)
	subject, body := notify.CompletionMessage(result)
	s.notifySafe(ctx, subject, body)

	s.log.Info().Int("rows", len(rec.Rows)).Str("updatedAt", updatedAt).Msg("run completed")
	return result, nil
}

// handleNoMatch increments the retry counter and schedules a one-shot retry,
// or gives up once the retry budget is spent. The summary sheet is left
// untouched either way.
func (s *Service) handleNoMatch(ctx context.Context, now time.Time, checkTime string, started time.Time) (internal.RunResult, error) {
	count, err := s.db.RetryCount()
	if err != nil {
		s.log.Error().Err(err).Msg("read retry count failed")
	}

	if count >= s.cfg.MaxRetryAttempts {
		s.log.Warn().Int("attempts", count).Msg("retry limit reached, giving up")
		s.clearRetryState()
		result := internal.RunResult{Outcome: internal.OutcomeNoMatch}
		s.recordRun(result, started)
		subject, body := notify.RetryLimitMessage(checkTime, s.cfg.MaxRetryAttempts)
		s.notifySafe(ctx, subject, body)
		return result, nil
	}

	retryAt := now.Add(time.Duration(s.cfg.RetryDelayMin) * time.Minute)
	if err := s.db.SetRetryCount(count + 1); err != nil {
		s.log.Error().Err(err).Msg("persist retry count failed")
	}
	if err := s.db.SetNextRetryAt(retryAt); err != nil {
		s.log.Error().Err(err).Msg("persist retry schedule failed")
	}

	s.log.Info().Time("retryAt", retryAt).Int("attempt", count+1).Msg("no email found, retry scheduled")
	result := internal.RunResult{Outcome: internal.OutcomeNoMatch, RetryAt: &retryAt}
	s.recordRun(result, started)
	subject, body := notify.NoMailMessage(checkTime, s.cfg.SubjectKeywords, retryAt, count+1, s.cfg.MaxRetryAttempts)
	s.notifySafe(ctx, subject, body)
	return result, nil
}

// finishWithoutData closes out a run that found an email but produced no
// fresh rows. The reference cell is still refreshed so downstream formulas
// keep resolving.
func (s *Service) finishWithoutData(ctx context.Context, outcome internal.RunOutcome, msg *internal.MailMessage, started time.Time) (internal.RunResult, error) {
	if err := s.store.SetSummaryReference(ctx); err != nil {
		s.log.Error().Err(err).Msg("set summary reference failed")
	}

	s.clearRetryState()

	result := internal.RunResult{Outcome: outcome, Email: msg}
	s.recordRun(result, started)
	subject, body := notify.CompletionMessage(result)
	s.notifySafe(ctx, subject, body)
	return result, nil
}

func (s *Service) fatal(ctx context.Context, checkTime string, started time.Time, err error) (internal.RunResult, error) {
	s.log.Error().Err(err).Msg("run failed")
	result := internal.RunResult{Outcome: internal.OutcomeError}
	s.recordRun(result, started)
	subject, body := notify.ErrorMessage(checkTime, err)
	s.notifySafe(ctx, subject, body)
	return result, err
}

func (s *Service) clearRetryState() {
	if err := s.db.ResetRetryCount(); err != nil {
		s.log.Error().Err(err).Msg("reset retry count failed")
	}
	if err := s.db.ClearNextRetryAt(); err != nil {
		s.log.Error().Err(err).Msg("clear retry schedule failed")
	}
}

func (s *Service) recordRun(result internal.RunResult, started time.Time) {
	subject, messageID := "", ""
	if result.Email != nil {
		subject = result.Email.Subject
		messageID = result.Email.MessageID
	}
	if err := s.db.InsertRun(string(result.Outcome), subject, messageID, result.RowsWritten, time.Since(started)); err != nil {
		s.log.Error().Err(err).Msg("record run failed")
	}
}

func (s *Service) notifySafe(ctx context.Context, subject, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, subject, body); err != nil {
		s.log.Error().Err(err).Str("subject", subject).Msg("notification send failed")
	}
}
