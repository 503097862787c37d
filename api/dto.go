/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in benefit/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Cycle:
    CycleDTO (period end and labels for a schedule)
    DeadlineDTO (numbered or personal cycle deadline)

  Catalog:
    CardDTO, BenefitDTO, CreateCardRequest, CreateBenefitRequest

  Users:
    UserDTO, CreateUserRequest, AddUserCardRequest, UserCardDTO

  Tracking:
    UserBenefitDTO, UsageDTO, HistoryDTO, CompleteRequest,
    RecordUsageRequest, UpdateSettingsRequest

  Jobs:
    JobLogDTO

DATES:
  Calendar dates (period ends) are "YYYY-MM-DD"; timestamps are RFC 3339.
  The *_display fields are localized with cycle.FormatDate.

VALIDATION:
  Validation is done in handlers and benefit.*.Validate, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/cardperks/benefit-engine/benefit"
	"github.com/cardperks/benefit-engine/cycle"
)

// =============================================================================
// CYCLE
// =============================================================================

// CycleDTO describes the current cycle of a schedule on a given date.
type CycleDTO struct {
	Frequency         cycle.Frequency `json:"frequency"`
	EndMonth          int             `json:"end_month,omitempty"`
	EndDay            int             `json:"end_day,omitempty"`
	Date              string          `json:"date"`
	Language          cycle.Language  `json:"language"`
	Quarter           int             `json:"quarter"`
	PeriodEnd         *string         `json:"period_end"`
	PeriodEndDisplay  string          `json:"period_end_display"`
	CycleLabel        string          `json:"cycle_label"`
	CurrentCycleLabel *string         `json:"current_cycle_label"`
}

// DeadlineDTO is the deadline of a numbered or personal cycle.
type DeadlineDTO struct {
	CycleType       cycle.CycleType `json:"cycle_type"`
	Deadline        *string         `json:"deadline"`
	DeadlineDisplay string          `json:"deadline_display"`
	DaysRemaining   *int            `json:"days_remaining"`
	WithinDays      int             `json:"within_days"`
	Expiring        bool            `json:"expiring"`
}

// =============================================================================
// CATALOG
// =============================================================================

// CardDTO represents a card in API responses.
type CardDTO struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	NameEn        string       `json:"name_en,omitempty"`
	Bank          string       `json:"bank"`
	BankEn        string       `json:"bank_en,omitempty"`
	Description   string       `json:"description,omitempty"`
	DescriptionEn string       `json:"description_en,omitempty"`
	DisplayName   string       `json:"display_name"`
	IsActive      bool         `json:"is_active"`
	Benefits      []BenefitDTO `json:"benefits"`
}

// BenefitDTO represents a catalog benefit with its current cycle.
type BenefitDTO struct {
	ID                string          `json:"id"`
	CardID            string          `json:"card_id"`
	Category          string          `json:"category,omitempty"`
	CategoryEn        string          `json:"category_en,omitempty"`
	Title             string          `json:"title"`
	TitleEn           string          `json:"title_en,omitempty"`
	DisplayTitle      string          `json:"display_title"`
	Description       string          `json:"description,omitempty"`
	DescriptionEn     string          `json:"description_en,omitempty"`
	Amount            string          `json:"amount"`
	Currency          string          `json:"currency"`
	Frequency         cycle.Frequency `json:"frequency,omitempty"`
	EndMonth          int             `json:"end_month,omitempty"`
	EndDay            int             `json:"end_day,omitempty"`
	ReminderDays      int             `json:"reminder_days"`
	Notifiable        bool            `json:"notifiable"`
	IsActive          bool            `json:"is_active"`
	PeriodEnd         *string         `json:"period_end"`
	PeriodEndDisplay  string          `json:"period_end_display"`
	CycleLabel        string          `json:"cycle_label"`
	CurrentCycleLabel *string         `json:"current_cycle_label"`
}

// CreateCardRequest is the body for POST /api/cards.
type CreateCardRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	NameEn        string `json:"name_en"`
	Bank          string `json:"bank"`
	BankEn        string `json:"bank_en"`
	Description   string `json:"description"`
	DescriptionEn string `json:"description_en"`
	IsActive      *bool  `json:"is_active"`
}

// CreateBenefitRequest is the body for POST /api/cards/{id}/benefits.
type CreateBenefitRequest struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	CategoryEn    string `json:"category_en"`
	Title         string `json:"title"`
	TitleEn       string `json:"title_en"`
	Description   string `json:"description"`
	DescriptionEn string `json:"description_en"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Frequency     string `json:"frequency"`
	EndMonth      int    `json:"end_month"`
	EndDay        int    `json:"end_day"`
	ReminderDays  *int   `json:"reminder_days"`
	Notifiable    *bool  `json:"notifiable"`
	IsActive      *bool  `json:"is_active"`
}

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Email      string         `json:"email,omitempty"`
	TelegramID string         `json:"telegram_id,omitempty"`
	LineUserID string         `json:"line_user_id,omitempty"`
	Language   cycle.Language `json:"language"`
	CreatedAt  string         `json:"created_at"`
}

// CreateUserRequest is the body for POST /api/users.
type CreateUserRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	TelegramID string `json:"telegram_id"`
	LineUserID string `json:"line_user_id"`
	Language   string `json:"language"`
}

// AddUserCardRequest is the body for POST /api/users/{id}/cards.
type AddUserCardRequest struct {
	CardID   string `json:"card_id"`
	Nickname string `json:"nickname"`
}

// UserCardDTO is the response to adding a card: the link and the benefit
// cycles opened for it.
type UserCardDTO struct {
	ID       string           `json:"id"`
	UserID   string           `json:"user_id"`
	CardID   string           `json:"card_id"`
	Nickname string           `json:"nickname,omitempty"`
	Benefits []UserBenefitDTO `json:"benefits"`
}

// =============================================================================
// TRACKING
// =============================================================================

// UserBenefitDTO is one tracked benefit cycle.
type UserBenefitDTO struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	UserCardID          string     `json:"user_card_id"`
	BenefitID           string     `json:"benefit_id,omitempty"`
	CardID              string     `json:"card_id,omitempty"`
	CardName            string     `json:"card_name,omitempty"`
	Title               string     `json:"title"`
	IsCustom            bool       `json:"is_custom"`
	Year                int        `json:"year"`
	CycleNumber         int        `json:"cycle_number,omitempty"`
	PeriodEnd           *string    `json:"period_end"`
	PeriodEndDisplay    string     `json:"period_end_display"`
	DaysRemaining       *int       `json:"days_remaining"`
	CycleLabel          string     `json:"cycle_label"`
	CurrentCycleLabel   *string    `json:"current_cycle_label"`
	Amount              string     `json:"amount"`
	Currency            string     `json:"currency"`
	UsedAmount          string     `json:"used_amount"`
	RemainingAmount     string     `json:"remaining_amount"`
	IsCompleted         bool       `json:"is_completed"`
	CompletedAt         *string    `json:"completed_at"`
	Notes               string     `json:"notes,omitempty"`
	ReminderDays        int        `json:"reminder_days"`
	NotificationEnabled bool       `json:"notification_enabled"`
	Usages              []UsageDTO `json:"usages,omitempty"`
}

// UsageDTO is one recorded spend.
type UsageDTO struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
	UsedAt string `json:"used_at"`
	Note   string `json:"note,omitempty"`
}

// HistoryDTO is an archived benefit cycle.
type HistoryDTO struct {
	ID               string     `json:"id"`
	BenefitID        string     `json:"benefit_id"`
	Year             int        `json:"year"`
	CycleNumber      int        `json:"cycle_number,omitempty"`
	PeriodEnd        *string    `json:"period_end"`
	PeriodEndDisplay string     `json:"period_end_display"`
	IsCompleted      bool       `json:"is_completed"`
	UsedAmount       string     `json:"used_amount"`
	Usages           []UsageDTO `json:"usages"`
	ArchivedAt       string     `json:"archived_at"`
}

// CompleteRequest is the optional body for POST .../complete. Without it
// the completion flag is toggled.
type CompleteRequest struct {
	Completed *bool `json:"completed"`
}

// RecordUsageRequest is the body for POST .../usages.
type RecordUsageRequest struct {
	Amount string `json:"amount"`
	UsedAt string `json:"used_at"` // RFC 3339 or YYYY-MM-DD; defaults to now
	Note   string `json:"note"`
}

// UpdateSettingsRequest is the body for PUT .../settings. Absent fields are
// left unchanged.
type UpdateSettingsRequest struct {
	ReminderDays        *int    `json:"reminder_days"`
	NotificationEnabled *bool   `json:"notification_enabled"`
	Notes               *string `json:"notes"`
}

// =============================================================================
// JOBS
// =============================================================================

// JobLogDTO is one scheduled or manual job run.
type JobLogDTO struct {
	ID             string `json:"id"`
	JobName        string `json:"job_name"`
	Status         string `json:"status"`
	StartedAt      string `json:"started_at"`
	CompletedAt    string `json:"completed_at"`
	DurationMs     int64  `json:"duration_ms"`
	ItemsProcessed int    `json:"items_processed"`
	SuccessCount   int    `json:"success_count"`
	FailureCount   int    `json:"failure_count"`
	Details        string `json:"details,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toUserDTO(u benefit.User) UserDTO {
	return UserDTO{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		TelegramID: u.TelegramID,
		LineUserID: u.LineUserID,
		Language:   u.Language,
		CreatedAt:  u.CreatedAt.Format(time.RFC3339),
	}
}

func toUsageDTOs(usages []benefit.Usage) []UsageDTO {
	dtos := make([]UsageDTO, len(usages))
	for i, u := range usages {
		dtos[i] = UsageDTO{
			ID:     u.ID,
			Amount: u.Amount.String(),
			UsedAt: u.UsedAt.Format(time.RFC3339),
			Note:   u.Note,
		}
	}
	return dtos
}

func toJobLogDTO(j benefit.JobLog) JobLogDTO {
	return JobLogDTO{
		ID:             j.ID,
		JobName:        j.JobName,
		Status:         string(j.Status),
		StartedAt:      j.StartedAt.Format(time.RFC3339),
		CompletedAt:    j.CompletedAt.Format(time.RFC3339),
		DurationMs:     j.Duration().Milliseconds(),
		ItemsProcessed: j.ItemsProcessed,
		SuccessCount:   j.SuccessCount,
		FailureCount:   j.FailureCount,
		Details:        j.Details,
		Error:          j.Error,
	}
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

