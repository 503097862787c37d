/*
Package benefit defines the domain model of the credit-card benefit tracker.

PURPOSE:
  A catalog of cards, each carrying benefits that renew on a schedule, and
  the per-user records tracking how much of each benefit's current cycle has
  been used.

KEY CONCEPTS:
  - Card:        a credit card product (catalog entry)
  - Benefit:     a reward attached to a card with a cycle.Schedule
  - User:        a person and the channels they can be notified on
  - UserCard:    a card a user holds
  - UserBenefit: one cycle instance of a benefit for one user; it has a
                 period end, completion state and recorded usage
  - History:     an archived UserBenefit whose cycle ended unfinished
  - JobLog:      audit record of a scheduled job run

LOCALIZATION:
  Catalog text is stored in zh-TW with optional English variants. The
  Localized* helpers pick the English text when asked and available.

SEE ALSO:
  - cycle/: period end and label computation
  - store/sqlite/: persistence
  - reminder/: expiration check and archiving
*/
package benefit

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cardperks/benefit-engine/cycle"
)

// DefaultReminderDays is used when a benefit doesn't specify its own.
const DefaultReminderDays = 7

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// CATALOG
// =============================================================================

// Card is a credit card product.
type Card struct {
	ID            string
	Name          string
	NameEn        string
	Bank          string
	BankEn        string
	Description   string
	DescriptionEn string
	IsActive      bool
	CreatedAt     time.Time

	// Benefits is populated by store reads that include them.
	Benefits []Benefit
}

// LocalizedName returns the card name for lang.
func (c Card) LocalizedName(lang cycle.Language) string {
	return localized(c.Name, c.NameEn, lang)
}

// Validate checks the fields required to persist a card.
func (c Card) Validate() error {
	if c.Name == "" {
		return invalid("name", "is required")
	}
	return nil
}

// Benefit is a reward attached to a card.
type Benefit struct {
	ID            string
	CardID        string
	Category      string
	CategoryEn    string
	Title         string
	TitleEn       string
	Description   string
	DescriptionEn string
	Amount        Money
	Schedule      cycle.Schedule
	ReminderDays  int
	Notifiable    bool
	IsActive      bool
	CreatedAt     time.Time
}

// LocalizedTitle returns the benefit title for lang.
func (b Benefit) LocalizedTitle(lang cycle.Language) string {
	return localized(b.Title, b.TitleEn, lang)
}

// PeriodEnd returns the end of the benefit's cycle containing now.
func (b Benefit) PeriodEnd(now time.Time) (time.Time, bool) {
	return b.Schedule.PeriodEnd(now)
}

// Validate checks the schedule and amount. End day is deliberately not
// checked against the month's length; see cycle.PeriodEnd.
func (b Benefit) Validate() error {
	var errs []error
	if b.CardID == "" {
		errs = append(errs, invalid("card_id", "is required"))
	}
	if b.Title == "" {
		errs = append(errs, invalid("title", "is required"))
	}
	if f := b.Schedule.Frequency; f != cycle.FrequencyNone && !f.Valid() {
		errs = append(errs, invalid("frequency", "unknown frequency %q", f))
	}
	if m := b.Schedule.EndMonth; m < 0 || m > 12 {
		errs = append(errs, invalid("end_month", "must be between 1 and 12, got %d", m))
	}
	if d := b.Schedule.EndDay; d < 0 || d > 31 {
		errs = append(errs, invalid("end_day", "must be between 1 and 31, got %d", d))
	}
	if b.ReminderDays < 0 {
		errs = append(errs, invalid("reminder_days", "must not be negative"))
	}
	if b.Amount.Value.IsNegative() {
		errs = append(errs, invalid("amount", "must not be negative"))
	}
	return errors.Join(errs...)
}

// =============================================================================
// USERS
// =============================================================================

// User is a person tracking benefits.
type User struct {
	ID         string
	Name       string
	Email      string
	TelegramID string
	LineUserID string
	Language   cycle.Language
	CreatedAt  time.Time
}

// UserCard links a user to a card they hold.
type UserCard struct {
	ID        string
	UserID    string
	CardID    string
	Nickname  string
	CreatedAt time.Time
}

// =============================================================================
// TRACKED BENEFITS
// =============================================================================

// UserBenefit is one cycle instance of a benefit for one user. Custom
// benefits are user-defined and have no BenefitID.
type UserBenefit struct {
	ID                  string
	UserID              string
	UserCardID          string
	BenefitID           string
	IsCustom            bool
	CustomTitle         string
	Year                int
	CycleNumber         int
	PeriodEnd           *time.Time
	IsCompleted         bool
	CompletedAt         *time.Time
	Notes               string
	ReminderDays        *int // overrides Benefit.ReminderDays when set
	NotificationEnabled bool
	UsedAmount          decimal.Decimal
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Usages []Usage
}

// NewUserBenefit opens the cycle of b that contains now for a user.
func NewUserBenefit(userID, userCardID string, b Benefit, now time.Time) UserBenefit {
	ub := UserBenefit{
		ID:                  NewID(),
		UserID:              userID,
		UserCardID:          userCardID,
		BenefitID:           b.ID,
		Year:                now.Year(),
		CycleNumber:         cycle.CycleNumber(b.Schedule.Frequency, now),
		NotificationEnabled: true,
		UsedAmount:          decimal.Zero,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if end, ok := b.PeriodEnd(now); ok {
		ub.PeriodEnd = &end
	}
	return ub
}

// EffectiveReminderDays returns the user's override or the benefit default.
func (ub UserBenefit) EffectiveReminderDays(b Benefit) int {
	if ub.ReminderDays != nil {
		return *ub.ReminderDays
	}
	if b.ReminderDays > 0 {
		return b.ReminderDays
	}
	return DefaultReminderDays
}

// Remaining returns how much of the benefit amount is left this cycle.
func (ub UserBenefit) Remaining(b Benefit) decimal.Decimal {
	left := b.Amount.Value.Sub(ub.UsedAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// Usage records spending against a user benefit.
type Usage struct {
	ID            string
	UserBenefitID string
	Amount        decimal.Decimal
	UsedAt        time.Time
	Note          string
	CreatedAt     time.Time
}

// Validate checks a usage before it is recorded.
func (u Usage) Validate() error {
	if u.UserBenefitID == "" {
		return invalid("user_benefit_id", "is required")
	}
	if !u.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	return nil
}

// Tracked joins a user benefit with the catalog data and user it belongs to.
// It is what the reminder job iterates over.
type Tracked struct {
	UserBenefit UserBenefit
	Benefit     Benefit
	Card        Card
	User        User
}

// History is an archived user benefit.
type History struct {
	ID                  string
	UserID              string
	UserCardID          string
	BenefitID           string
	Year                int
	CycleNumber         int
	PeriodEnd           *time.Time
	IsCompleted         bool
	CompletedAt         *time.Time
	Notes               string
	ReminderDays        *int
	NotificationEnabled bool
	UsedAmount          decimal.Decimal
	Usages              []Usage
	CreatedAt           time.Time
	ArchivedAt          time.Time
}

// Archive snapshots ub into a History record.
func (ub UserBenefit) Archive(at time.Time) History {
	return History{
		ID:                  NewID(),
		UserID:              ub.UserID,
		UserCardID:          ub.UserCardID,
		BenefitID:           ub.BenefitID,
		Year:                ub.Year,
		CycleNumber:         ub.CycleNumber,
		PeriodEnd:           ub.PeriodEnd,
		IsCompleted:         ub.IsCompleted,
		CompletedAt:         ub.CompletedAt,
		Notes:               ub.Notes,
		ReminderDays:        ub.ReminderDays,
		NotificationEnabled: ub.NotificationEnabled,
		UsedAmount:          ub.UsedAmount,
		Usages:              ub.Usages,
		CreatedAt:           ub.CreatedAt,
		ArchivedAt:          at,
	}
}

// =============================================================================
// JOB LOG
// =============================================================================

// JobStatus is the outcome of a job run.
type JobStatus string

const (
	JobSuccess JobStatus = "SUCCESS"
	JobPartial JobStatus = "PARTIAL"
	JobFailed  JobStatus = "FAILED"
)

// JobLog records one run of a scheduled job.
type JobLog struct {
	ID             string
	JobName        string
	Status         JobStatus
	StartedAt      time.Time
	CompletedAt    time.Time
	ItemsProcessed int
	SuccessCount   int
	FailureCount   int
	Details        string
	Error          string
}

// Duration returns how long the run took.
func (j JobLog) Duration() time.Duration {
	return j.CompletedAt.Sub(j.StartedAt)
}

func localized(zh, en string, lang cycle.Language) string {
	if cycle.ParseLanguage(string(lang)) == cycle.LangEn && en != "" {
		return en
	}
	return zh
}
