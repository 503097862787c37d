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
// USER STORE
// =============================================================================

// SaveUser inserts or updates a user.
func (s *Store) SaveUser(ctx context.Context, u benefit.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, email, telegram_id, line_user_id, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			telegram_id = excluded.telegram_id,
			line_user_id = excluded.line_user_id,
			language = excluded.language
	`

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.TelegramID, u.LineUserID,
		string(cycle.ParseLanguage(string(u.Language))), formatTime(createdAt),
	)
	return err
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*benefit.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, telegram_id, line_user_id, language, created_at
		FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, benefit.NotFound("user", id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]benefit.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, telegram_id, line_user_id, language, created_at
		FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []benefit.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (benefit.User, error) {
	var u benefit.User
	var lang, createdAt string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.TelegramID, &u.LineUserID, &lang, &createdAt)
	u.Language = cycle.Language(lang)
	u.CreatedAt = parseTime(createdAt)
	return u, err
}

// =============================================================================
// USER CARD STORE
// =============================================================================

// AddUserCard records that a user holds a card. Adding the same card twice
// returns benefit.ErrDuplicate.
func (s *Store) AddUserCard(ctx context.Context, uc benefit.UserCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := uc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_cards (id, user_id, card_id, nickname, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uc.ID, uc.UserID, uc.CardID, uc.Nickname, formatTime(createdAt),
	)
	switch {
	case isUniqueConstraintError(err):
		return fmt.Errorf("user %s already holds card %s: %w", uc.UserID, uc.CardID, benefit.ErrDuplicate)
	case isForeignKeyError(err):
		return fmt.Errorf("add user card: %w", benefit.ErrNotFound)
	}
	return err
}

// ListUserCards returns the cards a user holds.
func (s *Store) ListUserCards(ctx context.Context, userID string) ([]benefit.UserCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, card_id, nickname, created_at
		FROM user_cards WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []benefit.UserCard
	for rows.Next() {
		var uc benefit.UserCard
		var createdAt string
		if err := rows.Scan(&uc.ID, &uc.UserID, &uc.CardID, &uc.Nickname, &createdAt); err != nil {
			return nil, err
		}
		uc.CreatedAt = parseTime(createdAt)
		cards = append(cards, uc)
	}
	return cards, rows.Err()
}
