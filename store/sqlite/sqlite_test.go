/*
sqlite_test.go - Tests for the SQLite store

Tests for:
- Catalog round trips (cards, benefits, schedules, money)
- User card uniqueness and foreign keys
- User benefit cycles, usages and the one-open-cycle rule
- Reminder candidate selection
- Archiving into history from a fresh read of the row
- Opening current cycles for held benefits
- Job log ordering
*/
package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardperks/benefit-engine/benefit"
	"github.com/cardperks/benefit-engine/cycle"
	"github.com/cardperks/benefit-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seed creates one card with a monthly and a one-time benefit and a user
// holding the card.
func seed(t *testing.T, store *sqlite.Store) (benefit.Card, benefit.User, benefit.UserCard) {
	t.Helper()
	ctx := context.Background()

	card := benefit.Card{
		ID: "card-gogo", Name: "台新 @GoGo 卡", NameEn: "Taishin @GoGo",
		Bank: "台新銀行", BankEn: "Taishin Bank", IsActive: true,
	}
	require.NoError(t, store.SaveCard(ctx, card))

	for _, b := range []benefit.Benefit{
		{
			ID: "b-monthly", CardID: card.ID, Title: "指定通路 3.8% 回饋", TitleEn: "3.8% cashback",
			Amount: benefit.NewMoney(800, "TWD"), Schedule: cycle.Schedule{Frequency: cycle.Monthly},
			ReminderDays: 7, Notifiable: true, IsActive: true,
		},
		{
			ID: "b-welcome", CardID: card.ID, Title: "首刷禮", Amount: benefit.NewMoney(500, "TWD"),
			Schedule: cycle.Schedule{Frequency: cycle.OneTime}, ReminderDays: 7, IsActive: false,
		},
	} {
		require.NoError(t, store.SaveBenefit(ctx, b))
	}

	user := benefit.User{ID: "u1", Name: "Mei", TelegramID: "12345", Language: "en-US"}
	require.NoError(t, store.SaveUser(ctx, user))

	uc := benefit.UserCard{ID: "uc1", UserID: user.ID, CardID: card.ID}
	require.NoError(t, store.AddUserCard(ctx, uc))

	return card, user, uc
}

func TestCatalog_RoundTrip(t *testing.T) {
	// GIVEN: a card with two benefits
	store := newStore(t)
	ctx := context.Background()
	seed(t, store)

	// WHEN: reading the card back
	card, err := store.GetCard(ctx, "card-gogo")
	require.NoError(t, err)

	// THEN: benefits, schedules and money survive
	require.Len(t, card.Benefits, 2)
	monthly := card.Benefits[0]
	assert.Equal(t, "b-monthly", monthly.ID)
	assert.Equal(t, cycle.Monthly, monthly.Schedule.Frequency)
	assert.Equal(t, "800.00 TWD", monthly.Amount.String())
	assert.True(t, monthly.Notifiable)

	welcome := card.Benefits[1]
	assert.Equal(t, cycle.OneTime, welcome.Schedule.Frequency)
	assert.Zero(t, welcome.Schedule.EndMonth)

	// Active listing hides the inactive welcome benefit.
	cards, err := store.ListCards(ctx, true)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Len(t, cards[0].Benefits, 1)
}

func TestCatalog_NotFound(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.GetCard(ctx, "missing")
	assert.True(t, benefit.IsNotFound(err))

	_, err = store.GetBenefit(ctx, "missing")
	assert.True(t, benefit.IsNotFound(err))

	err = store.SaveBenefit(ctx, benefit.Benefit{ID: "b", CardID: "missing", Title: "x"})
	assert.True(t, benefit.IsNotFound(err), "benefit on an unknown card")
}

func TestUsers_LanguageNormalized(t *testing.T) {
	store := newStore(t)
	seed(t, store)

	u, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, cycle.LangEn, u.Language)
}

func TestUserCard_Duplicate(t *testing.T) {
	// GIVEN: a user already holding a card
	store := newStore(t)
	ctx := context.Background()
	seed(t, store)

	// WHEN: adding the same card again
	err := store.AddUserCard(ctx, benefit.UserCard{ID: "uc2", UserID: "u1", CardID: "card-gogo"})

	// THEN: it is rejected as a conflict
	assert.ErrorIs(t, err, benefit.ErrDuplicate)
	assert.True(t, benefit.IsConflict(err))

	err = store.AddUserCard(ctx, benefit.UserCard{ID: "uc3", UserID: "nobody", CardID: "card-gogo"})
	assert.ErrorIs(t, err, benefit.ErrNotFound)

	cards, err := store.ListUserCards(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestUserBenefit_OneOpenCyclePerBenefit(t *testing.T) {
	// GIVEN: a user tracking the May cycle of a monthly benefit
	store := newStore(t)
	ctx := context.Background()
	_, _, uc := seed(t, store)
	b, err := store.GetBenefit(ctx, "b-monthly")
	require.NoError(t, err)

	now := time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)
	ub := benefit.NewUserBenefit("u1", uc.ID, *b, now)
	require.NoError(t, store.SaveUserBenefit(ctx, ub))

	// WHEN: opening the same cycle again
	dup := benefit.NewUserBenefit("u1", uc.ID, *b, now.AddDate(0, 0, 3))
	err = store.SaveUserBenefit(ctx, dup)

	// THEN: the second row is a duplicate; the June cycle is allowed
	assert.ErrorIs(t, err, benefit.ErrDuplicate)

	june := benefit.NewUserBenefit("u1", uc.ID, *b, now.AddDate(0, 1, 0))
	require.NoError(t, store.SaveUserBenefit(ctx, june))

	list, err := store.ListUserBenefits(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, cycle.NewDate(2024, time.May, 31), *list[0].PeriodEnd)
	assert.Equal(t, cycle.NewDate(2024, time.June, 30), *list[1].PeriodEnd)
}

func TestRecordUsage_AccumulatesUsedAmount(t *testing.T) {
	// GIVEN: an open cycle
	store := newStore(t)
	ctx := context.Background()
	_, _, uc := seed(t, store)
	b, err := store.GetBenefit(ctx, "b-monthly")
	require.NoError(t, err)
	ub := benefit.NewUserBenefit("u1", uc.ID, *b, time.Now())
	require.NoError(t, store.SaveUserBenefit(ctx, ub))

	// WHEN: two usages are recorded
	_, err = store.RecordUsage(ctx, benefit.Usage{UserBenefitID: ub.ID, Amount: decimal.RequireFromString("120.5")})
	require.NoError(t, err)
	updated, err := store.RecordUsage(ctx, benefit.Usage{UserBenefitID: ub.ID, Amount: decimal.NewFromInt(300), Note: "超商"})
	require.NoError(t, err)

	// THEN: the total and both usages are stored
	assert.Equal(t, "420.5", updated.UsedAmount.String())
	require.Len(t, updated.Usages, 2)
	assert.Equal(t, "超商", updated.Usages[1].Note)
	assert.Equal(t, "379.5", updated.Remaining(*b).String())

	// Invalid and orphan usages are rejected without touching the total.
	_, err = store.RecordUsage(ctx, benefit.Usage{UserBenefitID: ub.ID, Amount: decimal.Zero})
	assert.ErrorIs(t, err, benefit.ErrInvalidInput)
	_, err = store.RecordUsage(ctx, benefit.Usage{UserBenefitID: "missing", Amount: decimal.NewFromInt(1)})
	assert.True(t, benefit.IsNotFound(err))

	got, err := store.GetUserBenefit(ctx, ub.ID)
	require.NoError(t, err)
	assert.Equal(t, "420.5", got.UsedAmount.String())
}

func TestListTracked_FiltersCandidates(t *testing.T) {
	// GIVEN: three cycles, one completed and one with notifications off
	store := newStore(t)
	ctx := context.Background()
	_, _, uc := seed(t, store)
	b, err := store.GetBenefit(ctx, "b-monthly")
	require.NoError(t, err)

	may := time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC)
	open := benefit.NewUserBenefit("u1", uc.ID, *b, may)

	done := benefit.NewUserBenefit("u1", uc.ID, *b, may.AddDate(0, 1, 0))
	done.IsCompleted = true

	muted := benefit.NewUserBenefit("u1", uc.ID, *b, may.AddDate(0, 2, 0))
	muted.NotificationEnabled = false

	require.NoError(t, store.SaveUserBenefits(ctx, []benefit.UserBenefit{open, done, muted}))

	// WHEN: listing reminder candidates
	tracked, err := store.ListTracked(ctx)
	require.NoError(t, err)

	// THEN: only the open cycle is returned, joined with its catalog data
	require.Len(t, tracked, 1)
	got := tracked[0]
	assert.Equal(t, open.ID, got.UserBenefit.ID)
	assert.Equal(t, "3.8% cashback", got.Benefit.TitleEn)
	assert.Equal(t, "Taishin @GoGo", got.Card.NameEn)
	assert.Equal(t, "12345", got.User.TelegramID)
	assert.Equal(t, cycle.LangEn, got.User.Language)
}

func TestArchiveUserBenefit(t *testing.T) {
	// GIVEN: an expired cycle with one usage
	store := newStore(t)
	ctx := context.Background()
	_, _, uc := seed(t, store)
	b, err := store.GetBenefit(ctx, "b-monthly")
	require.NoError(t, err)

	ub := benefit.NewUserBenefit("u1", uc.ID, *b, time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveUserBenefit(ctx, ub))
	_, err = store.RecordUsage(ctx, benefit.Usage{UserBenefitID: ub.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	expired, err := store.ListExpired(ctx, cycle.NewDate(2024, time.April, 1))
	require.NoError(t, err)
	require.Len(t, expired, 1)

	notYet, err := store.ListExpired(ctx, cycle.NewDate(2024, time.March, 31))
	require.NoError(t, err)
	assert.Empty(t, notYet, "period ending today is not expired")

	// WHEN: archiving it
	at := time.Date(2024, time.April, 1, 2, 0, 0, 0, time.UTC)
	h, err := store.ArchiveUserBenefit(ctx, expired[0].ID, at)
	require.NoError(t, err)

	// THEN: the live row is gone and history holds the usage
	_, err = store.GetUserBenefit(ctx, ub.ID)
	assert.True(t, benefit.IsNotFound(err))

	history, err := store.ListHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, h.ID, history[0].ID)
	assert.Equal(t, "200", history[0].UsedAmount.String())
	require.Len(t, history[0].Usages, 1)
	assert.Equal(t, cycle.NewDate(2024, time.March, 31), *history[0].PeriodEnd)

	// Archiving twice fails.
	_, err = store.ArchiveUserBenefit(ctx, expired[0].ID, at)
	assert.ErrorIs(t, err, benefit.ErrAlreadyArchived)
}

func TestArchiveUserBenefit_ReadsLatestRow(t *testing.T) {
	// GIVEN: an expired cycle listed before a usage and completion land
	store := newStore(t)
	ctx := context.Background()
	_, _, uc := seed(t, store)
	b, err := store.GetBenefit(ctx, "b-monthly")
	require.NoError(t, err)

	ub := benefit.NewUserBenefit("u1", uc.ID, *b, time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveUserBenefit(ctx, ub))
	_, err = store.RecordUsage(ctx, benefit.Usage{UserBenefitID: ub.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	expired, err := store.ListExpired(ctx, cycle.NewDate(2024, time.April, 1))
	require.NoError(t, err)
	require.Len(t, expired, 1)

	_, err = store.RecordUsage(ctx, benefit.Usage{UserBenefitID: ub.ID, Amount: decimal.NewFromInt(100), Note: "late"})
	require.NoError(t, err)
	latest, err := store.GetUserBenefit(ctx, ub.ID)
	require.NoError(t, err)
	latest.IsCompleted = true
	require.NoError(t, store.SaveUserBenefit(ctx, *latest))

	// WHEN: archiving the listed row
	_, err = store.ArchiveUserBenefit(ctx, expired[0].ID, time.Date(2024, time.April, 1, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// THEN: history holds both usages and the completion
	history, err := store.ListHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "300", history[0].UsedAmount.String())
	assert.True(t, history[0].IsCompleted)
	require.Len(t, history[0].Usages, 2)
	assert.Equal(t, "late", history[0].Usages[1].Note)
}

func TestListExpired_IncludesCompleted(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, _, uc := seed(t, store)
	b, err := store.GetBenefit(ctx, "b-monthly")
	require.NoError(t, err)

	ub := benefit.NewUserBenefit("u1", uc.ID, *b, time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC))
	ub.IsCompleted = true
	require.NoError(t, store.SaveUserBenefit(ctx, ub))

	expired, err := store.ListExpired(ctx, cycle.NewDate(2024, time.April, 1))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.True(t, expired[0].IsCompleted)
}

func TestOpenCurrentCycles(t *testing.T) {
	// GIVEN: a held card with a monthly benefit, an inactive welcome gift,
	// a one-time benefit ending Dec 31 and one that ended Mar 1
	store := newStore(t)
	ctx := context.Background()
	seed(t, store)
	for _, b := range []benefit.Benefit{
		{
			ID: "b-annual", CardID: "card-gogo", Title: "年度機場接送", Amount: benefit.NewMoney(1, "TWD"),
			Schedule: cycle.Schedule{Frequency: cycle.OneTime, EndMonth: 12, EndDay: 31}, IsActive: true,
		},
		{
			ID: "b-spring", CardID: "card-gogo", Title: "春季活動", Amount: benefit.NewMoney(1, "TWD"),
			Schedule: cycle.Schedule{Frequency: cycle.OneTime, EndMonth: 3, EndDay: 1}, IsActive: true,
		},
	} {
		require.NoError(t, store.SaveBenefit(ctx, b))
	}
	may := time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)

	// WHEN: opening cycles on May 10
	opened, err := store.OpenCurrentCycles(ctx, "u1", may)
	require.NoError(t, err)

	// THEN: the May cycle and the one-time benefit are opened
	ids := func(ubs []benefit.UserBenefit) []string {
		var out []string
		for _, ub := range ubs {
			out = append(out, ub.BenefitID)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"b-monthly", "b-annual"}, ids(opened))

	opened, err = store.OpenCurrentCycles(ctx, "", may)
	require.NoError(t, err)
	assert.Empty(t, opened, "already open")

	// WHEN: both are archived and cycles are opened in January
	live, err := store.ListUserBenefits(ctx, "u1")
	require.NoError(t, err)
	for _, ub := range live {
		_, err := store.ArchiveUserBenefit(ctx, ub.ID, may)
		require.NoError(t, err)
	}
	opened, err = store.OpenCurrentCycles(ctx, "", time.Date(2025, time.January, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// THEN: the monthly benefit renews and the archived one-time benefit
	// stays closed; the spring one is now ahead of its end date
	assert.ElementsMatch(t, []string{"b-monthly", "b-spring"}, ids(opened))
	for _, ub := range opened {
		if ub.BenefitID == "b-monthly" {
			assert.Equal(t, 2025, ub.Year)
			assert.Equal(t, 1, ub.CycleNumber)
			assert.Equal(t, cycle.NewDate(2025, time.January, 31), *ub.PeriodEnd)
		}
	}
}

func TestJobLogs_NewestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	start := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"check-expiring-benefits", "archive-expired-benefits", "check-expiring-benefits"} {
		at := start.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.SaveJobLog(ctx, benefit.JobLog{
			JobName: name, Status: benefit.JobSuccess, StartedAt: at, CompletedAt: at.Add(time.Second),
			ItemsProcessed: i,
		}))
	}

	logs, err := store.ListJobLogs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, 2, logs[0].ItemsProcessed)
	assert.Equal(t, time.Second, logs[0].Duration())

	logs, err = store.ListJobLogs(ctx, "check-expiring-benefits", 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].ItemsProcessed)
}

func TestReset(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seed(t, store)

	require.NoError(t, store.Reset(ctx))

	cards, err := store.ListCards(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, cards)
	require.NoError(t, store.Ping(ctx))
}
