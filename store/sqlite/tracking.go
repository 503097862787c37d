package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cardperks/benefit-engine/benefit"
	"github.com/cardperks/benefit-engine/cycle"
)

// =============================================================================
// USER BENEFIT STORE
// =============================================================================

const userBenefitColumns = `ub.id, ub.user_id, ub.user_card_id, ub.benefit_id, ub.is_custom,
	ub.custom_title, ub.year, ub.cycle_number, ub.period_end, ub.is_completed, ub.completed_at,
	ub.notes, ub.reminder_days, ub.notification_enabled, ub.used_amount, ub.created_at, ub.updated_at`

// SaveUserBenefit inserts or updates a user benefit. Usages are not saved
// here; use RecordUsage. Opening a second row for the same user, benefit
// and cycle returns benefit.ErrDuplicate.
func (s *Store) SaveUserBenefit(ctx context.Context, ub benefit.UserBenefit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveUserBenefit(ctx, s.db, ub)
}

// SaveUserBenefits inserts several user benefits in one transaction.
func (s *Store) SaveUserBenefits(ctx context.Context, ubs []benefit.UserBenefit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, ub := range ubs {
			if err := s.saveUserBenefit(ctx, tx, ub); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) saveUserBenefit(ctx context.Context, q querier, ub benefit.UserBenefit) error {
	query := `
		INSERT INTO user_benefits (id, user_id, user_card_id, benefit_id, is_custom, custom_title,
			year, cycle_number, period_end, is_completed, completed_at, notes, reminder_days,
			notification_enabled, used_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			period_end = excluded.period_end,
			is_completed = excluded.is_completed,
			completed_at = excluded.completed_at,
			notes = excluded.notes,
			reminder_days = excluded.reminder_days,
			notification_enabled = excluded.notification_enabled,
			used_amount = excluded.used_amount,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	createdAt := ub.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := ub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err := q.ExecContext(ctx, query,
		ub.ID, ub.UserID, ub.UserCardID, nullString(ub.BenefitID), boolInt(ub.IsCustom), ub.CustomTitle,
		ub.Year, ub.CycleNumber, formatDate(ub.PeriodEnd), boolInt(ub.IsCompleted),
		formatTimePtr(ub.CompletedAt), ub.Notes, nullInt(ub.ReminderDays),
		boolInt(ub.NotificationEnabled), ub.UsedAmount.String(),
		formatTime(createdAt), formatTime(updatedAt),
	)
	switch {
	case isUniqueConstraintError(err):
		return fmt.Errorf("user benefit for %s/%s cycle %d-%d: %w",
			ub.UserID, ub.BenefitID, ub.Year, ub.CycleNumber, benefit.ErrDuplicate)
	case isForeignKeyError(err):
		return fmt.Errorf("save user benefit %s: %w", ub.ID, benefit.ErrNotFound)
	}
	return err
}

// GetUserBenefit retrieves a user benefit with its usages.
func (s *Store) GetUserBenefit(ctx context.Context, id string) (*benefit.UserBenefit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUserBenefit(ctx, s.db, id)
}

func (s *Store) getUserBenefit(ctx context.Context, q querier, id string) (*benefit.UserBenefit, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userBenefitColumns+" FROM user_benefits ub WHERE ub.id = ?", id)
	ub, err := scanUserBenefit(row)
	if err == sql.ErrNoRows {
		return nil, benefit.NotFound("user benefit", id)
	}
	if err != nil {
		return nil, err
	}

	ub.Usages, err = s.usages(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &ub, nil
}

// ListUserBenefits returns a user's open benefit cycles, soonest period end
// first; non-expiring ones come last. Usages are not loaded.
func (s *Store) ListUserBenefits(ctx context.Context, userID string) ([]benefit.UserBenefit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryUserBenefits(ctx, `
		SELECT `+userBenefitColumns+` FROM user_benefits ub
		WHERE ub.user_id = ?
		ORDER BY ub.period_end IS NULL, ub.period_end, ub.created_at`, userID)
}

// ListExpired returns the catalog user benefits whose period ended before
// the given date, completed or not. Usages are not loaded;
// ArchiveUserBenefit reads them itself.
func (s *Store) ListExpired(ctx context.Context, before time.Time) ([]benefit.UserBenefit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryUserBenefits(ctx, `
		SELECT `+userBenefitColumns+` FROM user_benefits ub
		WHERE ub.period_end IS NOT NULL AND ub.period_end < ?
			AND ub.is_custom = 0
		ORDER BY ub.period_end, ub.id`, before.Format(dateLayout))
}

// heldBenefit is an active benefit of a card a user holds.
type heldBenefit struct {
	userID, userCardID string
	benefit            benefit.Benefit
}

// OpenCurrentCycles opens the cycle containing today for every active
// benefit on every card a user holds, skipping cycles that are already
// open or archived. Recurring benefits are matched on year and cycle
// number; ONE_TIME and unscheduled benefits are opened at most once per
// user. Cycles that have already ended are not opened. An empty userID
// covers every user. Returns the cycles it opened.
func (s *Store) OpenCurrentCycles(ctx context.Context, userID string, today time.Time) ([]benefit.UserBenefit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var opened []benefit.UserBenefit
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		held, err := s.heldBenefits(ctx, tx, userID)
		if err != nil {
			return err
		}

		for _, hb := range held {
			ub := benefit.NewUserBenefit(hb.userID, hb.userCardID, hb.benefit, today)
			if ub.PeriodEnd != nil && ub.PeriodEnd.Before(cycle.DateOf(today)) {
				continue
			}

			seen, err := cycleSeen(ctx, tx, ub, !hb.benefit.Schedule.Frequency.IsRecurring())
			if err != nil {
				return err
			}
			if seen {
				continue
			}

			if err := s.saveUserBenefit(ctx, tx, ub); err != nil {
				return err
			}
			opened = append(opened, ub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

func (s *Store) heldBenefits(ctx context.Context, q querier, userID string) ([]heldBenefit, error) {
	query := `
		SELECT uc.user_id, uc.id, ` + benefitColumns + `
		FROM user_cards uc
		JOIN benefits b ON b.card_id = uc.card_id
		WHERE b.is_active = 1`
	var args []any
	if userID != "" {
		query += " AND uc.user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY uc.user_id, uc.created_at, b.created_at, b.id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var held []heldBenefit
	for rows.Next() {
		var hb heldBenefit
		b, err := scanBenefit(prefixScanner{row: rows, prefix: []any{&hb.userID, &hb.userCardID}})
		if err != nil {
			return nil, err
		}
		hb.benefit = b
		held = append(held, hb)
	}
	return held, rows.Err()
}

// prefixScanner scans leading columns into prefix before handing the rest
// to the wrapped scan.
type prefixScanner struct {
	row    rowScanner
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.row.Scan(append(p.prefix, dest...)...)
}

// cycleSeen reports whether ub's cycle already has a live or archived row.
// With anyCycle set, any row for the same user and benefit counts.
func cycleSeen(ctx context.Context, q querier, ub benefit.UserBenefit, anyCycle bool) (bool, error) {
	match := "user_id = ? AND benefit_id = ? AND (? OR (year = ? AND cycle_number = ?))"
	args := []any{ub.UserID, ub.BenefitID, boolInt(anyCycle), ub.Year, ub.CycleNumber}

	var seen int
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_benefits WHERE `+match+`)
			OR EXISTS(SELECT 1 FROM user_benefit_history WHERE `+match+`)`,
		append(args, args...)...,
	).Scan(&seen)
	return seen == 1, err
}

// ListTracked returns every incomplete, notification-enabled catalog
// benefit cycle that has a period end, joined with its benefit, card and
// user. Custom benefits are excluded.
func (s *Store) ListTracked(ctx context.Context) ([]benefit.Tracked, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + userBenefitColumns + `, ` + benefitColumns + `,
			c.id, c.name, c.name_en, c.bank, c.bank_en, c.description, c.description_en, c.is_active, c.created_at,
			u.id, u.name, u.email, u.telegram_id, u.line_user_id, u.language, u.created_at
		FROM user_benefits ub
		JOIN benefits b ON b.id = ub.benefit_id
		JOIN cards c ON c.id = b.card_id
		JOIN users u ON u.id = ub.user_id
		WHERE ub.notification_enabled = 1
			AND ub.is_completed = 0
			AND ub.is_custom = 0
			AND ub.period_end IS NOT NULL
		ORDER BY ub.period_end, ub.id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracked []benefit.Tracked
	for rows.Next() {
		t, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		tracked = append(tracked, t)
	}
	return tracked, rows.Err()
}

func (s *Store) queryUserBenefits(ctx context.Context, query string, args ...any) ([]benefit.UserBenefit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ubs []benefit.UserBenefit
	for rows.Next() {
		ub, err := scanUserBenefit(rows)
		if err != nil {
			return nil, err
		}
		ubs = append(ubs, ub)
	}
	return ubs, rows.Err()
}

// userBenefitDest holds the nullable scan targets of a user benefit row.
type userBenefitDest struct {
	ub                        benefit.UserBenefit
	benefitID                 sql.NullString
	periodEnd, completedAt    sql.NullString
	reminderDays              sql.NullInt64
	custom, completed, notify int
	used, created, updated    string
}

func (d *userBenefitDest) targets() []any {
	ub := &d.ub
	return []any{&ub.ID, &ub.UserID, &ub.UserCardID, &d.benefitID, &d.custom,
		&ub.CustomTitle, &ub.Year, &ub.CycleNumber, &d.periodEnd, &d.completed, &d.completedAt,
		&ub.Notes, &d.reminderDays, &d.notify, &d.used, &d.created, &d.updated}
}

func (d *userBenefitDest) result() benefit.UserBenefit {
	ub := d.ub
	ub.BenefitID = d.benefitID.String
	ub.IsCustom = d.custom == 1
	ub.PeriodEnd = parseDate(d.periodEnd)
	ub.IsCompleted = d.completed == 1
	ub.CompletedAt = parseTimePtr(d.completedAt)
	ub.ReminderDays = intPtr(d.reminderDays)
	ub.NotificationEnabled = d.notify == 1
	ub.UsedAmount = parseDecimal(d.used)
	ub.CreatedAt = parseTime(d.created)
	ub.UpdatedAt = parseTime(d.updated)
	return ub
}

func scanUserBenefit(row rowScanner) (benefit.UserBenefit, error) {
	var d userBenefitDest
	if err := row.Scan(d.targets()...); err != nil {
		return benefit.UserBenefit{}, err
	}
	return d.result(), nil
}

func scanTracked(row rowScanner) (benefit.Tracked, error) {
	var d userBenefitDest
	var t benefit.Tracked

	var amount, currency, bCreated string
	var frequency sql.NullString
	var endMonth, endDay sql.NullInt64
	var notifiable, bActive int

	var cActive int
	var cCreated string

	var lang, uCreated string

	b, c, u := &t.Benefit, &t.Card, &t.User
	dest := append(d.targets(),
		&b.ID, &b.CardID, &b.Category, &b.CategoryEn, &b.Title, &b.TitleEn,
		&b.Description, &b.DescriptionEn, &amount, &currency, &frequency,
		&endMonth, &endDay, &b.ReminderDays, &notifiable, &bActive, &bCreated,
		&c.ID, &c.Name, &c.NameEn, &c.Bank, &c.BankEn, &c.Description, &c.DescriptionEn, &cActive, &cCreated,
		&u.ID, &u.Name, &u.Email, &u.TelegramID, &u.LineUserID, &lang, &uCreated,
	)
	if err := row.Scan(dest...); err != nil {
		return t, err
	}

	t.UserBenefit = d.result()
	b.Amount = benefit.Money{Value: parseDecimal(amount), Currency: currency}
	b.Schedule = cycle.Schedule{
		Frequency: cycle.Frequency(frequency.String).Normalize(),
		EndMonth:  int(endMonth.Int64),
		EndDay:    int(endDay.Int64),
	}
	b.Notifiable = notifiable == 1
	b.IsActive = bActive == 1
	b.CreatedAt = parseTime(bCreated)
	c.IsActive = cActive == 1
	c.CreatedAt = parseTime(cCreated)
	u.Language = cycle.Language(lang)
	u.CreatedAt = parseTime(uCreated)
	return t, nil
}

// =============================================================================
// USAGE STORE
// =============================================================================

// RecordUsage appends a usage and adds its amount to the user benefit's
// used total. Returns the updated user benefit.
func (s *Store) RecordUsage(ctx context.Context, u benefit.Usage) (*benefit.UserBenefit, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *benefit.UserBenefit
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var used string
		err := tx.QueryRowContext(ctx,
			"SELECT used_amount FROM user_benefits WHERE id = ?", u.UserBenefitID,
		).Scan(&used)
		if err == sql.ErrNoRows {
			return benefit.NotFound("user benefit", u.UserBenefitID)
		}
		if err != nil {
			return err
		}

		now := time.Now()
		if u.ID == "" {
			u.ID = benefit.NewID()
		}
		if u.UsedAt.IsZero() {
			u.UsedAt = now
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO benefit_usages (id, user_benefit_id, amount, used_at, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			u.ID, u.UserBenefitID, u.Amount.String(), formatTime(u.UsedAt), u.Note, formatTime(u.CreatedAt),
		); err != nil {
			return err
		}

		total := parseDecimal(used).Add(u.Amount)
		if _, err := tx.ExecContext(ctx,
			"UPDATE user_benefits SET used_amount = ?, updated_at = ? WHERE id = ?",
			total.String(), formatTime(now), u.UserBenefitID,
		); err != nil {
			return err
		}

		updated, err = s.getUserBenefit(ctx, tx, u.UserBenefitID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) usages(ctx context.Context, q querier, userBenefitID string) ([]benefit.Usage, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_benefit_id, amount, used_at, note, created_at
		FROM benefit_usages WHERE user_benefit_id = ? ORDER BY used_at, id`, userBenefitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []benefit.Usage
	for rows.Next() {
		var u benefit.Usage
		var amount, usedAt, createdAt string
		if err := rows.Scan(&u.ID, &u.UserBenefitID, &amount, &usedAt, &u.Note, &createdAt); err != nil {
			return nil, err
		}
		u.Amount = parseDecimal(amount)
		u.UsedAt = parseTime(usedAt)
		u.CreatedAt = parseTime(createdAt)
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

// =============================================================================
// ARCHIVE
// =============================================================================

// usageJSON is the archived shape of a usage.
type usageJSON struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	UsedAt    time.Time       `json:"used_at"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ArchiveUserBenefit moves a user benefit and its usages into history in
// one transaction. The row is re-read inside the transaction, so usages
// and completion recorded after it was listed are archived too. Archiving
// a row that is already gone returns benefit.ErrAlreadyArchived.
func (s *Store) ArchiveUserBenefit(ctx context.Context, id string, at time.Time) (*benefit.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var h benefit.History
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ub, err := s.getUserBenefit(ctx, tx, id)
		if benefit.IsNotFound(err) {
			return fmt.Errorf("archive %s: %w", id, benefit.ErrAlreadyArchived)
		}
		if err != nil {
			return err
		}
		h = ub.Archive(at)

		usages := make([]usageJSON, 0, len(h.Usages))
		for _, u := range h.Usages {
			usages = append(usages, usageJSON{ID: u.ID, Amount: u.Amount, UsedAt: u.UsedAt, Note: u.Note, CreatedAt: u.CreatedAt})
		}
		usagesJSON, err := json.Marshal(usages)
		if err != nil {
			return fmt.Errorf("marshal usages: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM user_benefits WHERE id = ?", id); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_benefit_history (id, user_id, user_card_id, benefit_id, year, cycle_number,
				period_end, is_completed, completed_at, notes, reminder_days, notification_enabled,
				used_amount, usages_json, created_at, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.UserID, h.UserCardID, h.BenefitID, h.Year, h.CycleNumber,
			formatDate(h.PeriodEnd), boolInt(h.IsCompleted), formatTimePtr(h.CompletedAt), h.Notes,
			nullInt(h.ReminderDays), boolInt(h.NotificationEnabled), h.UsedAmount.String(),
			string(usagesJSON), formatTime(h.CreatedAt), formatTime(h.ArchivedAt),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHistory returns a user's archived cycles, most recent first.
func (s *Store) ListHistory(ctx context.Context, userID string) ([]benefit.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, user_card_id, benefit_id, year, cycle_number, period_end, is_completed,
			completed_at, notes, reminder_days, notification_enabled, used_amount, usages_json,
			created_at, archived_at
		FROM user_benefit_history WHERE user_id = ?
		ORDER BY archived_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []benefit.History
	for rows.Next() {
		var h benefit.History
		var periodEnd, completedAt sql.NullString
		var reminderDays sql.NullInt64
		var completed, notify int
		var used, usagesRaw, createdAt, archivedAt string

		if err := rows.Scan(&h.ID, &h.UserID, &h.UserCardID, &h.BenefitID, &h.Year, &h.CycleNumber,
			&periodEnd, &completed, &completedAt, &h.Notes, &reminderDays, &notify, &used,
			&usagesRaw, &createdAt, &archivedAt); err != nil {
			return nil, err
		}

		var usages []usageJSON
		if err := json.Unmarshal([]byte(usagesRaw), &usages); err != nil {
			return nil, fmt.Errorf("history %s: decode usages: %w", h.ID, err)
		}
		for _, u := range usages {
			h.Usages = append(h.Usages, benefit.Usage{
				ID: u.ID, Amount: u.Amount, UsedAt: u.UsedAt, Note: u.Note, CreatedAt: u.CreatedAt,
			})
		}

		h.PeriodEnd = parseDate(periodEnd)
		h.IsCompleted = completed == 1
		h.CompletedAt = parseTimePtr(completedAt)
		h.ReminderDays = intPtr(reminderDays)
		h.NotificationEnabled = notify == 1
		h.UsedAmount = parseDecimal(used)
		h.CreatedAt = parseTime(createdAt)
		h.ArchivedAt = parseTime(archivedAt)
		history = append(history, h)
	}
	return history, rows.Err()
}

// =============================================================================
// JOB LOG
// =============================================================================

// SaveJobLog records a job run.
func (s *Store) SaveJobLog(ctx context.Context, j benefit.JobLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = benefit.NewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_job_logs (id, job_name, status, started_at, completed_at, duration_ms,
			items_processed, success_count, failure_count, details, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.JobName, string(j.Status), formatTime(j.StartedAt), formatTime(j.CompletedAt),
		j.Duration().Milliseconds(), j.ItemsProcessed, j.SuccessCount, j.FailureCount, j.Details, j.Error,
	)
	return err
}

// ListJobLogs returns the most recent job runs, optionally filtered by job
// name. limit <= 0 means 50.
func (s *Store) ListJobLogs(ctx context.Context, jobName string, limit int) ([]benefit.JobLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, job_name, status, started_at, completed_at, items_processed,
			success_count, failure_count, details, error
		FROM cron_job_logs`
	args := []any{}
	if jobName != "" {
		query += " WHERE job_name = ?"
		args = append(args, jobName)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []benefit.JobLog
	for rows.Next() {
		var j benefit.JobLog
		var status, startedAt, completedAt string
		if err := rows.Scan(&j.ID, &j.JobName, &status, &startedAt, &completedAt, &j.ItemsProcessed,
			&j.SuccessCount, &j.FailureCount, &j.Details, &j.Error); err != nil {
			return nil, err
		}
		j.Status = benefit.JobStatus(status)
		j.StartedAt = parseTime(startedAt)
		j.CompletedAt = parseTime(completedAt)
		logs = append(logs, j)
	}
	return logs, rows.Err()
}
