/*
handlers.go - HTTP API handlers for the benefit tracker

PURPOSE:
  Exposes the cycle calculator, the card catalog and per-user benefit
  tracking via REST API. Handles HTTP request/response, JSON serialization,
  and delegates to cycle/, store/sqlite/ and reminder/.

ENDPOINTS:
  Cycle:
    GET    /api/cycle                           Period end + labels for a schedule
    GET    /api/cycle/deadline                  Deadline of a numbered or personal cycle

  Cards:
    GET    /api/cards                           List cards with benefits
    POST   /api/cards                           Create card
    GET    /api/cards/{id}                      Card with benefits
    POST   /api/cards/{id}/benefits             Add benefit to card

  Users:
    POST   /api/users                           Create user
    GET    /api/users/{id}                      Get user
    POST   /api/users/{id}/cards                Add card, opening its benefit cycles
    GET    /api/users/{id}/benefits             Tracked benefits with labels
    GET    /api/users/{id}/history              Archived cycles

  Tracking:
    POST   /api/user-benefits/{id}/complete     Set or toggle completion
    POST   /api/user-benefits/{id}/usages       Record spending
    PUT    /api/user-benefits/{id}/settings     Reminder days, notifications, notes

  Admin:
    POST   /api/admin/manual/check-expiring-benefits
    POST   /api/admin/manual/archive-expired-benefits
    GET    /api/admin/cron-logs
    POST   /api/admin/reset                     Clear data (?seed=true reloads catalog)

LANGUAGE:
  Labels and display dates follow the "lang" query parameter, then the
  user's language for user-scoped routes, then the configured default.

"TODAY":
  All period ends are computed from the current date in the configured
  timezone, not the server's.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Duplicate (card already held, cycle already open)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cardperks/benefit-engine/benefit"
	"github.com/cardperks/benefit-engine/catalog"
	"github.com/cardperks/benefit-engine/cycle"
	"github.com/cardperks/benefit-engine/reminder"
	"github.com/cardperks/benefit-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Reminders *reminder.Service
	Logger    *zap.Logger

	// DefaultLanguage applies when neither the request nor the user names one.
	DefaultLanguage cycle.Language
	// Location decides the current date.
	Location *time.Location

	now func() time.Time
}

// NewHandler creates a new handler with the given store and reminder service.
func NewHandler(store *sqlite.Store, reminders *reminder.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:           store,
		Reminders:       reminders,
		Logger:          logger,
		DefaultLanguage: cycle.DefaultLanguage,
		Location:        time.Local,
		now:             time.Now,
	}
}

// today returns the current wall-clock time in the handler's timezone.
// cycle functions take the calendar date from it.
func (h *Handler) today() time.Time {
	return h.now().In(h.Location)
}

// lang picks the response language: query parameter, then fallback, then
// the handler default.
func (h *Handler) lang(r *http.Request, fallback cycle.Language) cycle.Language {
	if q := r.URL.Query().Get("lang"); q != "" {
		return cycle.ParseLanguage(q)
	}
	if fallback != "" {
		return cycle.ParseLanguage(string(fallback))
	}
	return cycle.ParseLanguage(string(h.DefaultLanguage))
}

// =============================================================================
// SYSTEM
// =============================================================================

// Health reports whether the database is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   h.today().Format(time.RFC3339),
	})
}

// =============================================================================
// CYCLE
// =============================================================================

// GetCycle computes the period end and labels for an ad-hoc schedule.
//
// Query: frequency, endMonth, endDay, lang, date (YYYY-MM-DD, default today).
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	freq, err := cycle.ParseFrequency(q.Get("frequency"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid frequency", err)
		return
	}
	endMonth, err := optionalInt(q.Get("endMonth"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid endMonth", err)
		return
	}
	endDay, err := optionalInt(q.Get("endDay"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid endDay", err)
		return
	}

	now := h.today()
	if d := q.Get("date"); d != "" {
		now, err = time.Parse("2006-01-02", d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}
	lang := h.lang(r, "")

	dto := CycleDTO{
		Frequency:  freq,
		EndMonth:   endMonth,
		EndDay:     endDay,
		Date:       now.Format("2006-01-02"),
		Language:   lang,
		Quarter:    cycle.Quarter(int(now.Month())),
		CycleLabel: cycle.CycleLabel(freq, lang),
	}
	if end, ok := cycle.PeriodEnd(freq, endMonth, endDay, now); ok {
		dto.PeriodEnd = dateString(&end)
		dto.PeriodEndDisplay = cycle.FormatDate(end, lang)
	} else {
		dto.PeriodEndDisplay = cycle.FormatDate(nil, lang)
	}
	if label, ok := cycle.CurrentCycleLabel(freq, lang, now); ok {
		dto.CurrentCycleLabel = &label
	}

	writeJSON(w, http.StatusOK, dto)
}

// GetDeadline returns the deadline of a numbered or personal cycle and
// whether it falls inside a reminder window.
//
// Query: cycleType, start (YYYY-MM-DD, makes the cycle personal), year,
// cycle, days (window, default 7), lang.
func (h *Handler) GetDeadline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := h.today()

	params := cycle.DeadlineParams{CycleType: cycle.CycleType(strings.ToUpper(q.Get("cycleType")))}
	if s := q.Get("start"); s != "" {
		start, err := time.ParseInLocation("2006-01-02", s, h.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start (use YYYY-MM-DD)", err)
			return
		}
		params.IsPersonal = true
		params.CustomStart = &start
	}

	var err error
	if params.Year, err = optionalInt(q.Get("year")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	if params.Year == 0 {
		params.Year = now.Year()
	}
	if params.CycleNumber, err = optionalInt(q.Get("cycle")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cycle", err)
		return
	}
	days := benefit.DefaultReminderDays
	if s := q.Get("days"); s != "" {
		if days, err = strconv.Atoi(s); err != nil || days < 0 {
			writeError(w, http.StatusBadRequest, "days must be a non-negative integer", err)
			return
		}
	}

	deadline, ok := cycle.Deadline(params, now)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown cycle type", fmt.Errorf("%q", params.CycleType))
		return
	}

	lang := h.lang(r, "")
	remaining, _ := cycle.DaysRemaining(deadline, now)
	writeJSON(w, http.StatusOK, DeadlineDTO{
		CycleType:       params.CycleType,
		Deadline:        timeString(&deadline),
		DeadlineDisplay: cycle.FormatDate(deadline, lang),
		DaysRemaining:   &remaining,
		WithinDays:      days,
		Expiring:        cycle.ExpiringWithin(deadline, days, now),
	})
}

// =============================================================================
// CARD HANDLERS
// =============================================================================

// ListCards returns active cards with their active benefits; ?all=true
// includes inactive ones.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	cards, err := h.Store.ListCards(r.Context(), !all)
	if err != nil {
		h.fail(w, "Failed to list cards", err)
		return
	}

	lang := h.lang(r, "")
	now := h.today()
	dtos := make([]CardDTO, len(cards))
	for i, c := range cards {
		dtos[i] = toCardDTO(c, lang, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCard returns a card with all of its benefits.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.Store.GetCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get card", err)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTO(*card, h.lang(r, ""), h.today()))
}

// CreateCard adds a card to the catalog.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if !decodeBody(w, r, &req) {
		return
	}

	card := benefit.Card{
		ID:            req.ID,
		Name:          req.Name,
		NameEn:        req.NameEn,
		Bank:          req.Bank,
		BankEn:        req.BankEn,
		Description:   req.Description,
		DescriptionEn: req.DescriptionEn,
		IsActive:      boolOr(req.IsActive, true),
		CreatedAt:     h.now(),
	}
	if card.ID == "" {
		card.ID = benefit.NewID()
	}
	if err := card.Validate(); err != nil {
		h.fail(w, "Invalid card", err)
		return
	}

	if err := h.Store.SaveCard(r.Context(), card); err != nil {
		h.fail(w, "Failed to create card", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCardDTO(card, h.lang(r, ""), h.today()))
}

// CreateBenefit adds a benefit to an existing card.
func (h *Handler) CreateBenefit(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "id")

	var req CreateBenefitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if _, err := h.Store.GetCard(r.Context(), cardID); err != nil {
		h.fail(w, "Failed to get card", err)
		return
	}

	b, err := req.toBenefit(cardID, h.now())
	if err != nil {
		h.fail(w, "Invalid benefit", err)
		return
	}

	if err := h.Store.SaveBenefit(r.Context(), b); err != nil {
		h.fail(w, "Failed to create benefit", err)
		return
	}

	writeJSON(w, http.StatusCreated, toBenefitDTO(b, h.lang(r, ""), h.today()))
}

func (req CreateBenefitRequest) toBenefit(cardID string, now time.Time) (benefit.Benefit, error) {
	freq, err := cycle.ParseFrequency(req.Frequency)
	if err != nil {
		return benefit.Benefit{}, fmt.Errorf("%w: %w", benefit.ErrInvalidInput, err)
	}
	amount, err := benefit.ParseMoney(req.Amount, req.Currency)
	if err != nil {
		return benefit.Benefit{}, err
	}

	b := benefit.Benefit{
		ID:            req.ID,
		CardID:        cardID,
		Category:      req.Category,
		CategoryEn:    req.CategoryEn,
		Title:         req.Title,
		TitleEn:       req.TitleEn,
		Description:   req.Description,
		DescriptionEn: req.DescriptionEn,
		Amount:        amount,
		Schedule:      cycle.Schedule{Frequency: freq, EndMonth: req.EndMonth, EndDay: req.EndDay},
		ReminderDays:  benefit.DefaultReminderDays,
		Notifiable:    boolOr(req.Notifiable, true),
		IsActive:      boolOr(req.IsActive, true),
		CreatedAt:     now,
	}
	if req.ReminderDays != nil {
		b.ReminderDays = *req.ReminderDays
	}
	if b.ID == "" {
		b.ID = benefit.NewID()
	}
	return b, b.Validate()
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// CreateUser registers a user and their notification addresses.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	lang := cycle.ParseLanguage(req.Language)
	if req.Language == "" {
		lang = cycle.ParseLanguage(string(h.DefaultLanguage))
	}
	user := benefit.User{
		ID:         req.ID,
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		TelegramID: req.TelegramID,
		LineUserID: req.LineUserID,
		Language:   lang,
		CreatedAt:  h.now(),
	}
	if user.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if user.ID == "" {
		user.ID = benefit.NewID()
	}

	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		h.fail(w, "Failed to create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// AddUserCard records that the user holds a card and opens the current
// cycle of each of the card's active benefits.
func (h *Handler) AddUserCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	var req AddUserCardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CardID == "" {
		writeError(w, http.StatusBadRequest, "card_id is required", nil)
		return
	}

	user, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		h.fail(w, "Failed to get user", err)
		return
	}
	card, err := h.Store.GetCard(ctx, req.CardID)
	if err != nil {
		h.fail(w, "Failed to get card", err)
		return
	}

	now := h.today()
	uc := benefit.UserCard{
		ID:        benefit.NewID(),
		UserID:    user.ID,
		CardID:    card.ID,
		Nickname:  req.Nickname,
		CreatedAt: now,
	}
	if err := h.Store.AddUserCard(ctx, uc); err != nil {
		h.fail(w, "Failed to add card", err)
		return
	}

	var opened []benefit.UserBenefit
	for _, b := range card.Benefits {
		if b.IsActive {
			opened = append(opened, benefit.NewUserBenefit(user.ID, uc.ID, b, now))
		}
	}
	if err := h.Store.SaveUserBenefits(ctx, opened); err != nil {
		h.fail(w, "Failed to open benefit cycles", err)
		return
	}

	lang := h.lang(r, user.Language)
	benefits := make(map[string]benefit.Benefit, len(card.Benefits))
	for _, b := range card.Benefits {
		benefits[b.ID] = b
	}
	dtos := make([]UserBenefitDTO, len(opened))
	for i, ub := range opened {
		dtos[i] = toUserBenefitDTO(ub, benefits[ub.BenefitID], card, lang, now)
	}

	h.Logger.Info("user added card",
		zap.String("user_id", user.ID),
		zap.String("card_id", card.ID),
		zap.Int("benefits_opened", len(opened)))

	writeJSON(w, http.StatusCreated, UserCardDTO{
		ID:       uc.ID,
		UserID:   uc.UserID,
		CardID:   uc.CardID,
		Nickname: uc.Nickname,
		Benefits: dtos,
	})
}

// ListUserBenefits returns the user's tracked cycles with localized labels.
// The current cycle of each held benefit is opened first if it is missing.
func (h *Handler) ListUserBenefits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.Store.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get user", err)
		return
	}
	now := h.today()
	opened, err := h.Store.OpenCurrentCycles(ctx, user.ID, now)
	if err != nil {
		h.fail(w, "Failed to open benefit cycles", err)
		return
	}
	if len(opened) > 0 {
		h.Logger.Info("opened current benefit cycles",
			zap.String("user_id", user.ID),
			zap.Int("opened", len(opened)))
	}

	ubs, err := h.Store.ListUserBenefits(ctx, user.ID)
	if err != nil {
		h.fail(w, "Failed to list benefits", err)
		return
	}

	lang := h.lang(r, user.Language)
	cat := newCatalogCache(h.Store)
	dtos := make([]UserBenefitDTO, 0, len(ubs))
	for _, ub := range ubs {
		b, card, err := cat.lookup(ctx, ub)
		if err != nil {
			h.fail(w, "Failed to load benefit", err)
			return
		}
		dtos = append(dtos, toUserBenefitDTO(ub, b, card, lang, now))
	}

	writeJSON(w, http.StatusOK, dtos)
}

// ListHistory returns the user's archived cycles.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.Store.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get user", err)
		return
	}
	history, err := h.Store.ListHistory(ctx, user.ID)
	if err != nil {
		h.fail(w, "Failed to list history", err)
		return
	}

	lang := h.lang(r, user.Language)
	dtos := make([]HistoryDTO, len(history))
	for i, hs := range history {
		dtos[i] = HistoryDTO{
			ID:               hs.ID,
			BenefitID:        hs.BenefitID,
			Year:             hs.Year,
			CycleNumber:      hs.CycleNumber,
			PeriodEnd:        dateString(hs.PeriodEnd),
			PeriodEndDisplay: cycle.FormatDate(hs.PeriodEnd, lang),
			IsCompleted:      hs.IsCompleted,
			UsedAmount:       hs.UsedAmount.String(),
			Usages:           toUsageDTOs(hs.Usages),
			ArchivedAt:       hs.ArchivedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TRACKING HANDLERS
// =============================================================================

// CompleteUserBenefit sets the completion flag, or toggles it when the
// body is empty.
func (h *Handler) CompleteUserBenefit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ub, err := h.Store.GetUserBenefit(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get user benefit", err)
		return
	}

	completed := !ub.IsCompleted
	if req.Completed != nil {
		completed = *req.Completed
	}
	now := h.now()
	ub.IsCompleted = completed
	ub.CompletedAt = nil
	if completed {
		ub.CompletedAt = &now
	}
	ub.UpdatedAt = now

	if err := h.Store.SaveUserBenefit(ctx, *ub); err != nil {
		h.fail(w, "Failed to update user benefit", err)
		return
	}
	h.respondUserBenefit(w, r, http.StatusOK, *ub)
}

// RecordUsage adds a spend against a tracked cycle.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req RecordUsageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	money, err := benefit.ParseMoney(req.Amount, "")
	if err != nil {
		h.fail(w, "Invalid amount", err)
		return
	}
	usedAt := h.now()
	if req.UsedAt != "" {
		usedAt, err = parseTimestamp(req.UsedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid used_at (use RFC 3339 or YYYY-MM-DD)", err)
			return
		}
	}

	ub, err := h.Store.RecordUsage(r.Context(), benefit.Usage{
		ID:            benefit.NewID(),
		UserBenefitID: chi.URLParam(r, "id"),
		Amount:        money.Value,
		UsedAt:        usedAt,
		Note:          req.Note,
		CreatedAt:     h.now(),
	})
	if err != nil {
		h.fail(w, "Failed to record usage", err)
		return
	}
	h.respondUserBenefit(w, r, http.StatusCreated, *ub)
}

// UpdateSettings changes reminder days, notifications or notes.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ReminderDays != nil && (*req.ReminderDays < 0 || *req.ReminderDays > 365) {
		writeError(w, http.StatusBadRequest, "reminder_days must be between 0 and 365", nil)
		return
	}

	ub, err := h.Store.GetUserBenefit(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get user benefit", err)
		return
	}

	if req.ReminderDays != nil {
		days := *req.ReminderDays
		ub.ReminderDays = &days
	}
	if req.NotificationEnabled != nil {
		ub.NotificationEnabled = *req.NotificationEnabled
	}
	if req.Notes != nil {
		ub.Notes = *req.Notes
	}
	ub.UpdatedAt = h.now()

	if err := h.Store.SaveUserBenefit(ctx, *ub); err != nil {
		h.fail(w, "Failed to update settings", err)
		return
	}
	h.respondUserBenefit(w, r, http.StatusOK, *ub)
}

func (h *Handler) respondUserBenefit(w http.ResponseWriter, r *http.Request, status int, ub benefit.UserBenefit) {
	ctx := r.Context()

	b, card, err := newCatalogCache(h.Store).lookup(ctx, ub)
	if err != nil {
		h.fail(w, "Failed to load benefit", err)
		return
	}
	var userLang cycle.Language
	if user, err := h.Store.GetUser(ctx, ub.UserID); err == nil {
		userLang = user.Language
	}

	writeJSON(w, status, toUserBenefitDTO(ub, b, card, h.lang(r, userLang), h.today()))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerExpirationCheck runs the reminder job now.
func (h *Handler) TriggerExpirationCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.Reminders.CheckExpiring(r.Context())
	if err != nil {
		h.fail(w, "Expiration check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Benefit expiration check triggered successfully",
		"result":  result,
	})
}

// TriggerArchive runs the archive job now.
func (h *Handler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	result, err := h.Reminders.ArchiveExpired(r.Context())
	if err != nil {
		h.fail(w, "Archive failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Benefit archiving triggered successfully",
		"result":  result,
	})
}

// ListJobLogs returns recent job runs. Query: job, limit.
func (h *Handler) ListJobLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := optionalInt(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 || limit > 500 {
		writeError(w, http.StatusBadRequest, "limit must be between 0 and 500 (0 = default)", err)
		return
	}

	logs, err := h.Store.ListJobLogs(r.Context(), r.URL.Query().Get("job"), limit)
	if err != nil {
		h.fail(w, "Failed to list job logs", err)
		return
	}

	dtos := make([]JobLogDTO, len(logs))
	for i, l := range logs {
		dtos[i] = toJobLogDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetDatabase clears all data. With ?seed=true the built-in catalog is
// loaded back in.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	resp := map[string]any{"status": "ok"}
	if seed, _ := strconv.ParseBool(r.URL.Query().Get("seed")); seed {
		stats, err := catalog.Seed(ctx, h.Store, catalog.Default())
		if err != nil {
			h.fail(w, "Failed to seed catalog", err)
			return
		}
		resp["cards"] = stats.Cards
		resp["benefits"] = stats.Benefits
	}

	h.Logger.Warn("database reset", zap.Any("result", resp))
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps domain errors onto status codes; anything unrecognized is a
// logged 500.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	switch {
	case benefit.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case benefit.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case benefit.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// decodeBody decodes a JSON body into dst, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// catalogCache resolves the benefit and card of user benefits, loading
// each card once per request.
type catalogCache struct {
	store *sqlite.Store
	cards map[string]*benefit.Card
	byID  map[string]benefit.Benefit
}

func newCatalogCache(store *sqlite.Store) *catalogCache {
	return &catalogCache{
		store: store,
		cards: map[string]*benefit.Card{},
		byID:  map[string]benefit.Benefit{},
	}
}

func (c *catalogCache) lookup(ctx context.Context, ub benefit.UserBenefit) (benefit.Benefit, benefit.Card, error) {
	if ub.IsCustom || ub.BenefitID == "" {
		return benefit.Benefit{}, benefit.Card{}, nil
	}

	b, ok := c.byID[ub.BenefitID]
	if !ok {
		found, err := c.store.GetBenefit(ctx, ub.BenefitID)
		if err != nil {
			return benefit.Benefit{}, benefit.Card{}, err
		}
		b = *found
		c.byID[b.ID] = b
	}

	card, ok := c.cards[b.CardID]
	if !ok {
		found, err := c.store.GetCard(ctx, b.CardID)
		if err != nil {
			return benefit.Benefit{}, benefit.Card{}, err
		}
		card = found
		c.cards[b.CardID] = card
	}
	return b, *card, nil
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toCardDTO(c benefit.Card, lang cycle.Language, now time.Time) CardDTO {
	dto := CardDTO{
		ID:            c.ID,
		Name:          c.Name,
		NameEn:        c.NameEn,
		Bank:          c.Bank,
		BankEn:        c.BankEn,
		Description:   c.Description,
		DescriptionEn: c.DescriptionEn,
		DisplayName:   c.LocalizedName(lang),
		IsActive:      c.IsActive,
		Benefits:      make([]BenefitDTO, len(c.Benefits)),
	}
	for i, b := range c.Benefits {
		dto.Benefits[i] = toBenefitDTO(b, lang, now)
	}
	return dto
}

func toBenefitDTO(b benefit.Benefit, lang cycle.Language, now time.Time) BenefitDTO {
	dto := BenefitDTO{
		ID:            b.ID,
		CardID:        b.CardID,
		Category:      b.Category,
		CategoryEn:    b.CategoryEn,
		Title:         b.Title,
		TitleEn:       b.TitleEn,
		DisplayTitle:  b.LocalizedTitle(lang),
		Description:   b.Description,
		DescriptionEn: b.DescriptionEn,
		Amount:        b.Amount.Value.String(),
		Currency:      b.Amount.Currency,
		Frequency:     b.Schedule.Frequency,
		EndMonth:      b.Schedule.EndMonth,
		EndDay:        b.Schedule.EndDay,
		ReminderDays:  b.ReminderDays,
		Notifiable:    b.Notifiable,
		IsActive:      b.IsActive,
		CycleLabel:    cycle.CycleLabel(b.Schedule.Frequency, lang),
	}
	if end, ok := b.PeriodEnd(now); ok {
		dto.PeriodEnd = dateString(&end)
		dto.PeriodEndDisplay = cycle.FormatDate(end, lang)
	} else {
		dto.PeriodEndDisplay = cycle.FormatDate(nil, lang)
	}
	if label, ok := cycle.CurrentCycleLabel(b.Schedule.Frequency, lang, now); ok {
		dto.CurrentCycleLabel = &label
	}
	return dto
}

func toUserBenefitDTO(ub benefit.UserBenefit, b benefit.Benefit, card benefit.Card, lang cycle.Language, now time.Time) UserBenefitDTO {
	dto := UserBenefitDTO{
		ID:                  ub.ID,
		UserID:              ub.UserID,
		UserCardID:          ub.UserCardID,
		BenefitID:           ub.BenefitID,
		CardID:              card.ID,
		CardName:            card.LocalizedName(lang),
		Title:               b.LocalizedTitle(lang),
		IsCustom:            ub.IsCustom,
		Year:                ub.Year,
		CycleNumber:         ub.CycleNumber,
		PeriodEnd:           dateString(ub.PeriodEnd),
		PeriodEndDisplay:    cycle.FormatDate(ub.PeriodEnd, lang),
		CycleLabel:          cycle.CycleLabel(b.Schedule.Frequency, lang),
		Amount:              b.Amount.Value.String(),
		Currency:            b.Amount.Currency,
		UsedAmount:          ub.UsedAmount.String(),
		RemainingAmount:     ub.Remaining(b).String(),
		IsCompleted:         ub.IsCompleted,
		CompletedAt:         timeString(ub.CompletedAt),
		Notes:               ub.Notes,
		ReminderDays:        ub.EffectiveReminderDays(b),
		NotificationEnabled: ub.NotificationEnabled,
		Usages:              toUsageDTOs(ub.Usages),
	}
	if ub.IsCustom {
		dto.Title = ub.CustomTitle
	}
	if ub.PeriodEnd != nil {
		days := cycle.DaysBetween(now, *ub.PeriodEnd)
		dto.DaysRemaining = &days
	}
	if label, ok := cycle.CurrentCycleLabel(b.Schedule.Frequency, lang, now); ok {
		dto.CurrentCycleLabel = &label
	}
	return dto
}
