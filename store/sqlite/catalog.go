package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cardperks/benefit-engine/benefit"
	"github.com/cardperks/benefit-engine/cycle"
)

// =============================================================================
// CARD STORE
// =============================================================================

// SaveCard inserts or updates a card. Benefits on the card are not touched;
// save them with SaveBenefit.
func (s *Store) SaveCard(ctx context.Context, c benefit.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO cards (id, name, name_en, bank, bank_en, description, description_en, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_en = excluded.name_en,
			bank = excluded.bank,
			bank_en = excluded.bank_en,
			description = excluded.description,
			description_en = excluded.description_en,
			is_active = excluded.is_active
	`

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.NameEn, c.Bank, c.BankEn, c.Description, c.DescriptionEn,
		boolInt(c.IsActive), formatTime(createdAt),
	)
	return err
}

// GetCard retrieves a card with all of its benefits.
func (s *Store) GetCard(ctx context.Context, id string) (*benefit.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, name_en, bank, bank_en, description, description_en, is_active, created_at
		FROM cards WHERE id = ?`, id)

	c, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, benefit.NotFound("card", id)
	}
	if err != nil {
		return nil, err
	}

	c.Benefits, err = s.benefitsByCard(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCards returns cards with their benefits, ordered by bank and name.
// When activeOnly is set, inactive cards and inactive benefits are skipped.
func (s *Store) ListCards(ctx context.Context, activeOnly bool) ([]benefit.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, name_en, bank, bank_en, description, description_en, is_active, created_at
		FROM cards`
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY bank, name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	var cards []benefit.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		cards = append(cards, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cards {
		cards[i].Benefits, err = s.benefitsByCard(ctx, cards[i].ID, activeOnly)
		if err != nil {
			return nil, err
		}
	}
	return cards, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (benefit.Card, error) {
	var c benefit.Card
	var active int
	var createdAt string
	err := row.Scan(&c.ID, &c.Name, &c.NameEn, &c.Bank, &c.BankEn,
		&c.Description, &c.DescriptionEn, &active, &createdAt)
	c.IsActive = active == 1
	c.CreatedAt = parseTime(createdAt)
	return c, err
}

// =============================================================================
// BENEFIT STORE
// =============================================================================

const benefitColumns = `b.id, b.card_id, b.category, b.category_en, b.title, b.title_en,
	b.description, b.description_en, b.amount, b.currency, b.frequency,
	b.end_month, b.end_day, b.reminder_days, b.notifiable, b.is_active, b.created_at`

// SaveBenefit inserts or updates a benefit. The card must exist.
func (s *Store) SaveBenefit(ctx context.Context, b benefit.Benefit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO benefits (id, card_id, category, category_en, title, title_en,
			description, description_en, amount, currency, frequency, end_month, end_day,
			reminder_days, notifiable, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			card_id = excluded.card_id,
			category = excluded.category,
			category_en = excluded.category_en,
			title = excluded.title,
			title_en = excluded.title_en,
			description = excluded.description,
			description_en = excluded.description_en,
			amount = excluded.amount,
			currency = excluded.currency,
			frequency = excluded.frequency,
			end_month = excluded.end_month,
			end_day = excluded.end_day,
			reminder_days = excluded.reminder_days,
			notifiable = excluded.notifiable,
			is_active = excluded.is_active
	`

	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	currency := b.Amount.Currency
	if currency == "" {
		currency = benefit.DefaultCurrency
	}

	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.CardID, b.Category, b.CategoryEn, b.Title, b.TitleEn,
		b.Description, b.DescriptionEn, b.Amount.Value.String(), currency,
		nullString(string(b.Schedule.Frequency)),
		zeroAsNull(b.Schedule.EndMonth), zeroAsNull(b.Schedule.EndDay),
		b.ReminderDays, boolInt(b.Notifiable), boolInt(b.IsActive), formatTime(createdAt),
	)
	if isForeignKeyError(err) {
		return fmt.Errorf("save benefit %s: %w", b.ID, benefit.NotFound("card", b.CardID))
	}
	return err
}

// GetBenefit retrieves a benefit by ID.
func (s *Store) GetBenefit(ctx context.Context, id string) (*benefit.Benefit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+benefitColumns+" FROM benefits b WHERE b.id = ?", id)
	b, err := scanBenefit(row)
	if err == sql.ErrNoRows {
		return nil, benefit.NotFound("benefit", id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBenefitsByCard returns the benefits of one card.
func (s *Store) ListBenefitsByCard(ctx context.Context, cardID string) ([]benefit.Benefit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.benefitsByCard(ctx, cardID, false)
}

func (s *Store) benefitsByCard(ctx context.Context, cardID string, activeOnly bool) ([]benefit.Benefit, error) {
	query := "SELECT " + benefitColumns + " FROM benefits b WHERE b.card_id = ?"
	if activeOnly {
		query += " AND b.is_active = 1"
	}
	query += " ORDER BY b.created_at, b.id"

	rows, err := s.db.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var benefits []benefit.Benefit
	for rows.Next() {
		b, err := scanBenefit(rows)
		if err != nil {
			return nil, err
		}
		benefits = append(benefits, b)
	}
	return benefits, rows.Err()
}

func scanBenefit(row rowScanner) (benefit.Benefit, error) {
	var b benefit.Benefit
	var amount, currency, createdAt string
	var frequency sql.NullString
	var endMonth, endDay sql.NullInt64
	var notifiable, active int

	err := row.Scan(&b.ID, &b.CardID, &b.Category, &b.CategoryEn, &b.Title, &b.TitleEn,
		&b.Description, &b.DescriptionEn, &amount, &currency, &frequency,
		&endMonth, &endDay, &b.ReminderDays, &notifiable, &active, &createdAt)
	if err != nil {
		return b, err
	}

	b.Amount = benefit.Money{Value: parseDecimal(amount), Currency: currency}
	b.Schedule = cycle.Schedule{
		Frequency: cycle.Frequency(frequency.String).Normalize(),
		EndMonth:  int(endMonth.Int64),
		EndDay:    int(endDay.Int64),
	}
	b.Notifiable = notifiable == 1
	b.IsActive = active == 1
	b.CreatedAt = parseTime(createdAt)
	return b, nil
}
