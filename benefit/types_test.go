package benefit_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardperks/benefit-engine/benefit"
	"github.com/cardperks/benefit-engine/cycle"
)

func quarterlyCashback() benefit.Benefit {
	return benefit.Benefit{
		ID:           "b-cube",
		CardID:       "card-cube",
		Title:        "自選通路 3% 回饋",
		TitleEn:      "3% cashback on selected category",
		Amount:       benefit.NewMoney(2000, "TWD"),
		Schedule:     cycle.Schedule{Frequency: cycle.Quarterly},
		ReminderDays: 14,
		Notifiable:   true,
		IsActive:     true,
	}
}

func TestNewUserBenefit_OpensCurrentCycle(t *testing.T) {
	// GIVEN: a quarterly benefit
	// WHEN: a user starts tracking it in May
	// THEN: the cycle is Q2 and ends June 30
	now := time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)
	ub := benefit.NewUserBenefit("u1", "uc1", quarterlyCashback(), now)

	require.NotNil(t, ub.PeriodEnd)
	assert.Equal(t, cycle.NewDate(2024, time.June, 30), *ub.PeriodEnd)
	assert.Equal(t, 2024, ub.Year)
	assert.Equal(t, 2, ub.CycleNumber)
	assert.True(t, ub.NotificationEnabled)
	assert.True(t, ub.UsedAmount.IsZero())
	assert.NotEmpty(t, ub.ID)
	assert.Equal(t, "b-cube", ub.BenefitID)
}

func TestNewUserBenefit_NonExpiring(t *testing.T) {
	b := quarterlyCashback()
	b.Schedule = cycle.Schedule{Frequency: cycle.OneTime}

	ub := benefit.NewUserBenefit("u1", "uc1", b, time.Now())
	assert.Nil(t, ub.PeriodEnd)
	assert.Equal(t, 0, ub.CycleNumber)
}

func TestEffectiveReminderDays(t *testing.T) {
	b := quarterlyCashback()
	ub := benefit.UserBenefit{}
	assert.Equal(t, 14, ub.EffectiveReminderDays(b))

	three := 3
	ub.ReminderDays = &three
	assert.Equal(t, 3, ub.EffectiveReminderDays(b))

	b.ReminderDays = 0
	ub.ReminderDays = nil
	assert.Equal(t, benefit.DefaultReminderDays, ub.EffectiveReminderDays(b))
}

func TestRemaining(t *testing.T) {
	b := quarterlyCashback()
	ub := benefit.UserBenefit{UsedAmount: decimal.RequireFromString("1500.5")}
	assert.Equal(t, "499.5", ub.Remaining(b).String())

	ub.UsedAmount = decimal.NewFromInt(2500)
	assert.True(t, ub.Remaining(b).IsZero())
}

func TestBenefitValidate(t *testing.T) {
	valid := quarterlyCashback()
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Title = ""
	bad.Schedule = cycle.Schedule{Frequency: "WEEKLY", EndMonth: 13, EndDay: 32}
	bad.ReminderDays = -1

	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, benefit.ErrInvalidInput)
	assert.True(t, benefit.IsClientError(err))
	for _, field := range []string{"title", "frequency", "end_month", "end_day", "reminder_days"} {
		assert.Contains(t, err.Error(), field)
	}

	// February 31 is accepted; it rolls forward when the period is computed.
	overflow := valid
	overflow.Schedule = cycle.Schedule{Frequency: cycle.Yearly, EndMonth: 2, EndDay: 31}
	assert.NoError(t, overflow.Validate())
}

func TestLocalizedText(t *testing.T) {
	b := quarterlyCashback()
	assert.Equal(t, "3% cashback on selected category", b.LocalizedTitle(cycle.LangEn))
	assert.Equal(t, "自選通路 3% 回饋", b.LocalizedTitle(cycle.LangZhTW))

	c := benefit.Card{Name: "國泰世華 CUBE 卡"}
	assert.Equal(t, "國泰世華 CUBE 卡", c.LocalizedName(cycle.LangEn), "falls back without English name")
}

func TestArchiveKeepsUsages(t *testing.T) {
	end := cycle.NewDate(2024, time.March, 31)
	ub := benefit.UserBenefit{
		ID:         "ub1",
		UserID:     "u1",
		BenefitID:  "b1",
		PeriodEnd:  &end,
		UsedAmount: decimal.NewFromInt(100),
		Usages:     []benefit.Usage{{ID: "use1", Amount: decimal.NewFromInt(100)}},
	}
	at := time.Date(2024, time.April, 1, 2, 0, 0, 0, time.UTC)

	h := ub.Archive(at)
	assert.NotEqual(t, ub.ID, h.ID)
	assert.Equal(t, "b1", h.BenefitID)
	assert.Equal(t, at, h.ArchivedAt)
	assert.Len(t, h.Usages, 1)
	assert.Equal(t, &end, h.PeriodEnd)
}

func TestParseMoney(t *testing.T) {
	m, err := benefit.ParseMoney("800", "")
	require.NoError(t, err)
	assert.Equal(t, "800.00 TWD", m.String())

	m, err = benefit.ParseMoney("", "USD")
	require.NoError(t, err)
	assert.True(t, m.IsZero())

	_, err = benefit.ParseMoney("lots", "TWD")
	assert.ErrorIs(t, err, benefit.ErrInvalidInput)
}
