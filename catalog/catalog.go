/*
Package catalog loads card catalogs from YAML and seeds them into the store.

FILE FORMAT:
  cards:
    - id: cathay-cube
      name: 國泰世華 CUBE 卡
      name_en: Cathay CUBE Card
      benefits:
        - id: cathay-cube-category
          title: 自選通路 3% 回饋
          amount: "2000"
          frequency: QUARTERLY
          reminder_days: 14

  "active" and "notifiable" default to true; "currency" defaults to TWD and
  "reminder_days" to 7. Ids are kept as given, so re-seeding a file updates
  the same rows.

SEE ALSO:
  - default.yaml: built-in catalog
  - cmd/benefitctl: "seed" command
*/
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cardperks/benefit-engine/benefit"
	"github.com/cardperks/benefit-engine/cycle"
)

//go:embed default.yaml
var defaultCatalog []byte

// File is the top-level YAML document.
type File struct {
	Cards []CardSpec `yaml:"cards"`
}

// CardSpec is one card entry in a catalog file.
type CardSpec struct {
	ID            string        `yaml:"id"`
	Name          string        `yaml:"name"`
	NameEn        string        `yaml:"name_en"`
	Bank          string        `yaml:"bank"`
	BankEn        string        `yaml:"bank_en"`
	Description   string        `yaml:"description"`
	DescriptionEn string        `yaml:"description_en"`
	Active        *bool         `yaml:"active"`
	Benefits      []BenefitSpec `yaml:"benefits"`
}

// BenefitSpec is one benefit entry under a card.
type BenefitSpec struct {
	ID            string `yaml:"id"`
	Category      string `yaml:"category"`
	CategoryEn    string `yaml:"category_en"`
	Title         string `yaml:"title"`
	TitleEn       string `yaml:"title_en"`
	Description   string `yaml:"description"`
	DescriptionEn string `yaml:"description_en"`
	Amount        string `yaml:"amount"`
	Currency      string `yaml:"currency"`
	Frequency     string `yaml:"frequency"`
	EndMonth      int    `yaml:"end_month"`
	EndDay        int    `yaml:"end_day"`
	ReminderDays  *int   `yaml:"reminder_days"`
	Notifiable    *bool  `yaml:"notifiable"`
	Active        *bool  `yaml:"active"`
}

// Load parses and validates a catalog. All problems are reported together.
func Load(r io.Reader) ([]benefit.Card, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return cardSpecs(f.Cards).toDomain()
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) ([]benefit.Card, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Load(fh)
}

// Default returns the built-in catalog.
func Default() []benefit.Card {
	cards, err := Load(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return cards
}

type cardSpecs []CardSpec

func (specs cardSpecs) toDomain() ([]benefit.Card, error) {
	var errs []error
	seen := map[string]bool{}
	cards := make([]benefit.Card, 0, len(specs))

	for i, cs := range specs {
		card := benefit.Card{
			ID:            cs.ID,
			Name:          cs.Name,
			NameEn:        cs.NameEn,
			Bank:          cs.Bank,
			BankEn:        cs.BankEn,
			Description:   cs.Description,
			DescriptionEn: cs.DescriptionEn,
			IsActive:      boolOr(cs.Active, true),
		}
		if card.ID == "" {
			errs = append(errs, fmt.Errorf("cards[%d]: id is required", i))
		}
		if err := card.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("card %q: %w", cs.ID, err))
		}

		for j, bs := range cs.Benefits {
			b, err := bs.toDomain(card.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("card %q benefits[%d]: %w", cs.ID, j, err))
				continue
			}
			if seen[b.ID] {
				errs = append(errs, fmt.Errorf("card %q: duplicate benefit id %q", cs.ID, b.ID))
			}
			seen[b.ID] = true
			card.Benefits = append(card.Benefits, b)
		}
		cards = append(cards, card)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cards, nil
}

func (bs BenefitSpec) toDomain(cardID string) (benefit.Benefit, error) {
	if bs.ID == "" {
		return benefit.Benefit{}, errors.New("id is required")
	}
	freq, err := cycle.ParseFrequency(bs.Frequency)
	if err != nil {
		return benefit.Benefit{}, err
	}
	amount, err := benefit.ParseMoney(bs.Amount, bs.Currency)
	if err != nil {
		return benefit.Benefit{}, err
	}

	reminderDays := benefit.DefaultReminderDays
	if bs.ReminderDays != nil {
		reminderDays = *bs.ReminderDays
	}

	b := benefit.Benefit{
		ID:            bs.ID,
		CardID:        cardID,
		Category:      bs.Category,
		CategoryEn:    bs.CategoryEn,
		Title:         bs.Title,
		TitleEn:       bs.TitleEn,
		Description:   bs.Description,
		DescriptionEn: bs.DescriptionEn,
		Amount:        amount,
		Schedule:      cycle.Schedule{Frequency: freq, EndMonth: bs.EndMonth, EndDay: bs.EndDay},
		ReminderDays:  reminderDays,
		Notifiable:    boolOr(bs.Notifiable, true),
		IsActive:      boolOr(bs.Active, true),
	}
	return b, b.Validate()
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// =============================================================================
// SEEDING
// =============================================================================

// Store is the persistence Seed writes to.
type Store interface {
	SaveCard(ctx context.Context, c benefit.Card) error
	SaveBenefit(ctx context.Context, b benefit.Benefit) error
}

// Stats counts what Seed wrote.
type Stats struct {
	Cards    int
	Benefits int
}

// Seed upserts every card and benefit.
func Seed(ctx context.Context, store Store, cards []benefit.Card) (Stats, error) {
	var stats Stats
	for _, c := range cards {
		if err := store.SaveCard(ctx, c); err != nil {
			return stats, fmt.Errorf("save card %s: %w", c.ID, err)
		}
		stats.Cards++
		for _, b := range c.Benefits {
			if err := store.SaveBenefit(ctx, b); err != nil {
				return stats, fmt.Errorf("save benefit %s: %w", b.ID, err)
			}
			stats.Benefits++
		}
	}
	return stats, nil
}
