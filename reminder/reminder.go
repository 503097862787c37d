/*
Package reminder runs the two daily benefit jobs.

PURPOSE:
  - CheckExpiring notifies users whose benefit cycle ends within its
    reminder window.
  - ArchiveExpired moves cycles whose period has ended into history,
    then opens the current cycle of every benefit a user holds.
  Every run is recorded in the job log, whether triggered by the scheduler,
  the admin endpoints or the CLI.

REMINDER WINDOW:
  All comparisons use calendar dates in the service's timezone. A cycle
  ending on periodEnd with R reminder days is due when

    periodEnd - R days  <=  today  <=  periodEnd

  R is the user's override if set, else the benefit's reminder days.
  Completed, muted and custom cycles are never candidates.

ARCHIVING:
  A cycle is expired once today is past its period end, completed or not.
  The archive copy and the delete happen in one store transaction. After
  archiving, missing current cycles are opened so tracking rolls over
  from Q2 to Q3, June to July, and so on.

SEE ALSO:
  - notify/: message delivery
  - store/sqlite/tracking.go: candidate queries and the archive transaction
  - api/scheduler.go: daily triggers
*/
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cardperks/benefit-engine/benefit"
	"github.com/cardperks/benefit-engine/cycle"
	"github.com/cardperks/benefit-engine/notify"
)

// Job names as recorded in the job log.
const (
	JobCheckExpiring  = "check-expiring-benefits"
	JobArchiveExpired = "archive-expired-benefits"
	JobStartup        = "system-startup"
)

// Store is the persistence the jobs need.
type Store interface {
	ListTracked(ctx context.Context) ([]benefit.Tracked, error)
	ListExpired(ctx context.Context, before time.Time) ([]benefit.UserBenefit, error)
	ArchiveUserBenefit(ctx context.Context, id string, at time.Time) (*benefit.History, error)
	OpenCurrentCycles(ctx context.Context, userID string, today time.Time) ([]benefit.UserBenefit, error)
	SaveJobLog(ctx context.Context, j benefit.JobLog) error
}

// Service runs the reminder and archive jobs.
type Service struct {
	store  Store
	sender notify.Sender
	logger *zap.Logger
	now    func() time.Time
	loc    *time.Location
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a reminder service.
func NewService(store Store, sender notify.Sender, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  store,
		sender: sender,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar date in the service's timezone.
func (s *Service) Today() time.Time {
	return cycle.DateOf(s.now().In(s.loc))
}

// =============================================================================
// EXPIRATION CHECK
// =============================================================================

// CheckResult summarizes a CheckExpiring run.
type CheckResult struct {
	Checked int `json:"checked"`
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Errors  int `json:"errors"`
}

// Due reports whether a cycle ending on periodEnd should be reminded about
// today, and how many days remain.
func Due(periodEnd, today time.Time, reminderDays int) (int, bool) {
	end := cycle.DateOf(periodEnd)
	if today.Before(end.AddDate(0, 0, -reminderDays)) || today.After(end) {
		return 0, false
	}
	return cycle.DaysBetween(today, end), true
}

// CheckExpiring sends one reminder per cycle inside its reminder window.
// Delivery failures are counted, not returned; the error is only set when
// the candidates could not be loaded.
func (s *Service) CheckExpiring(ctx context.Context) (CheckResult, error) {
	started := s.now()
	today := s.Today()
	var result CheckResult

	tracked, err := s.store.ListTracked(ctx)
	if err != nil {
		err = fmt.Errorf("list reminder candidates: %w", err)
		s.record(ctx, JobCheckExpiring, started, result, 0, 0, 0, err)
		return result, err
	}
	result.Checked = len(tracked)

	for _, t := range tracked {
		ub := t.UserBenefit
		if ub.PeriodEnd == nil || ub.IsCustom || ub.IsCompleted || !ub.NotificationEnabled {
			continue
		}

		days, due := Due(*ub.PeriodEnd, today, ub.EffectiveReminderDays(t.Benefit))
		if !due {
			continue
		}
		result.Due++

		msg := ExpiringMessage(t, days)
		if _, err := s.sender.Dispatch(ctx, recipientOf(t.User), msg); err != nil {
			result.Errors++
			s.logger.Error("failed to send expiration reminder",
				zap.String("user_id", ub.UserID),
				zap.String("user_benefit_id", ub.ID),
				zap.Error(err))
			continue
		}
		result.Sent++
		s.logger.Info("sent expiration reminder",
			zap.String("user_id", ub.UserID),
			zap.String("benefit", t.Benefit.Title),
			zap.Int("days_remaining", days))
	}

	s.logger.Info("benefit expiration check complete",
		zap.Int("checked", result.Checked),
		zap.Int("sent", result.Sent),
		zap.Int("errors", result.Errors))
	s.record(ctx, JobCheckExpiring, started, result, result.Due, result.Sent, result.Errors, nil)
	return result, nil
}

// =============================================================================
// ARCHIVE
// =============================================================================

// ArchiveResult summarizes an ArchiveExpired run.
type ArchiveResult struct {
	Expired  int `json:"expired"`
	Archived int `json:"archived"`
	Opened   int `json:"opened"`
	Errors   int `json:"errors"`
}

// ArchiveExpired moves every cycle that ended before today into history and
// opens the cycles that replace them.
func (s *Service) ArchiveExpired(ctx context.Context) (ArchiveResult, error) {
	started := s.now()
	today := s.Today()
	var result ArchiveResult

	expired, err := s.store.ListExpired(ctx, today)
	if err != nil {
		err = fmt.Errorf("list expired benefits: %w", err)
		s.record(ctx, JobArchiveExpired, started, result, 0, 0, 0, err)
		return result, err
	}
	result.Expired = len(expired)

	for _, ub := range expired {
		_, err := s.store.ArchiveUserBenefit(ctx, ub.ID, s.now())
		switch {
		case errors.Is(err, benefit.ErrAlreadyArchived):
			s.logger.Debug("user benefit already archived", zap.String("user_benefit_id", ub.ID))
		case err != nil:
			result.Errors++
			s.logger.Error("failed to archive user benefit",
				zap.String("user_benefit_id", ub.ID),
				zap.Error(err))
		default:
			result.Archived++
		}
	}

	opened, err := s.store.OpenCurrentCycles(ctx, "", today)
	if err != nil {
		result.Errors++
		s.logger.Error("failed to open current benefit cycles", zap.Error(err))
	}
	result.Opened = len(opened)

	s.logger.Info("benefit archiving complete",
		zap.Int("expired", result.Expired),
		zap.Int("archived", result.Archived),
		zap.Int("opened", result.Opened),
		zap.Int("errors", result.Errors))
	s.record(ctx, JobArchiveExpired, started, result, result.Expired, result.Archived, result.Errors, nil)
	return result, nil
}

// =============================================================================
// JOB LOG
// =============================================================================

// RecordStartup writes a job-log entry marking that the scheduler started.
func (s *Service) RecordStartup(ctx context.Context, details map[string]string) {
	now := s.now()
	s.record(ctx, JobStartup, now, details, 0, 0, 0, nil)
}

func (s *Service) record(ctx context.Context, job string, started time.Time, details any, processed, ok, failed int, runErr error) {
	entry := benefit.JobLog{
		ID:             benefit.NewID(),
		JobName:        job,
		Status:         jobStatus(ok, failed, runErr),
		StartedAt:      started,
		CompletedAt:    s.now(),
		ItemsProcessed: processed,
		SuccessCount:   ok,
		FailureCount:   failed,
	}
	if raw, err := json.Marshal(details); err == nil {
		entry.Details = string(raw)
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}

	if err := s.store.SaveJobLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write job log", zap.String("job", job), zap.Error(err))
	}
}

func jobStatus(ok, failed int, runErr error) benefit.JobStatus {
	switch {
	case runErr != nil:
		return benefit.JobFailed
	case failed == 0:
		return benefit.JobSuccess
	case ok > 0:
		return benefit.JobPartial
	default:
		return benefit.JobFailed
	}
}

func recipientOf(u benefit.User) notify.Recipient {
	return notify.Recipient{
		UserID:     u.ID,
		Name:       u.Name,
		Email:      u.Email,
		TelegramID: u.TelegramID,
		LineUserID: u.LineUserID,
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

// ExpiringMessage builds the reminder for a tracked cycle in the user's
// language.
func ExpiringMessage(t benefit.Tracked, daysRemaining int) notify.Message {
	lang := cycle.ParseLanguage(string(t.User.Language))
	card := t.Card.LocalizedName(lang)
	title := t.Benefit.LocalizedTitle(lang)
	date := cycle.FormatDate(t.UserBenefit.PeriodEnd, lang)

	msg := notify.Message{
		Data: map[string]string{
			"userBenefitId": t.UserBenefit.ID,
			"benefitId":     t.Benefit.ID,
			"daysRemaining": strconv.Itoa(daysRemaining),
		},
	}

	if lang == cycle.LangEn {
		msg.Title = "💳 Credit card benefit expiring soon"
		if daysRemaining == 0 {
			msg.Body = fmt.Sprintf("Your %s - %s expires today (%s)", card, title, date)
		} else {
			msg.Body = fmt.Sprintf("Your %s - %s expires in %d days (%s)", card, title, daysRemaining, date)
		}
		return msg
	}

	msg.Title = "💳 信用卡福利即將到期"
	if daysRemaining == 0 {
		msg.Body = fmt.Sprintf("您的 %s - %s 今天到期（%s）", card, title, date)
	} else {
		msg.Body = fmt.Sprintf("您的 %s - %s 還有 %d 天到期（%s）", card, title, daysRemaining, date)
	}
	return msg
}
