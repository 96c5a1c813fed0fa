package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanValidation(t *testing.T) {
	env := newTestEnv(t)
	valid := PlanInput{Name: "Gold", MinAmount: dec("100"), MaxAmount: dec("1000"), Multiplier: dec("2"), DurationDays: 7}

	tests := []struct {
		name   string
		mutate func(in *PlanInput)
	}{
		{"blank name", func(in *PlanInput) { in.Name = "  " }},
		{"zero minimum", func(in *PlanInput) { in.MinAmount = dec("0") }},
		{"max below min", func(in *PlanInput) { in.MaxAmount = dec("50") }},
		{"zero multiplier", func(in *PlanInput) { in.Multiplier = dec("0") }},
		{"zero duration", func(in *PlanInput) { in.DurationDays = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := env.plans.Create(context.Background(), in, nil)
			assert.ErrorIs(t, err, domain.ErrInvalidPlan)
		})
	}

	plans, err := env.plans.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestPlanLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := uuid.New()

	silver := env.createPlan(t, "100", "1000", "1.5", 14)
	gold := env.createPlan(t, "1000", "10000", "2", 30)

	_, err := env.plans.SetActive(ctx, silver.ID, false, &admin)
	require.NoError(t, err)

	active, err := env.plans.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, gold.ID, active[0].ID)

	all, err := env.plans.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	updated, err := env.plans.Update(ctx, gold.ID, PlanInput{
		Name: " Gold ", MinAmount: dec("500"), MaxAmount: dec("5000"), Multiplier: dec("3"), DurationDays: 10, IsActive: true,
	}, &admin)
	require.NoError(t, err)
	assert.Equal(t, "Gold", updated.Name)

	got, err := env.plans.Get(ctx, gold.ID)
	require.NoError(t, err)
	requireDecimal(t, "3", got.Multiplier)
	assert.Equal(t, int32(10), got.DurationDays)

	_, err = env.plans.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.plans.SetActive(ctx, uuid.New(), true, &admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListPlansForDisplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createPlan(t, "100", "1000", "2", 7)

	views, err := env.plans.ListForDisplay(ctx, "eur")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "EUR", views[0].Fiat)
	requireDecimal(t, "50", views[0].MinAmountFiat)
	requireDecimal(t, "500", views[0].MaxAmountFiat)

	views, err = env.plans.ListForDisplay(ctx, "")
	require.NoError(t, err)
	requireDecimal(t, "100", views[0].MinAmountFiat)

	_, err = env.plans.ListForDisplay(ctx, "XYZ")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestPlanDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := uuid.New()

	unused := env.createPlan(t, "100", "1000", "1.5", 14)
	used := env.createPlan(t, "10", "1000", "2", 1)

	account := env.openAccount(t)
	env.fund(t, account, "USDT", "100")
	_, err := env.investments.Open(ctx, account, used.ID, dec("50"))
	require.NoError(t, err)

	require.NoError(t, env.plans.Delete(ctx, unused.ID, &admin))
	_, err = env.plans.Get(ctx, unused.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = env.plans.Delete(ctx, unused.ID, &admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = env.plans.Delete(ctx, used.ID, &admin)
	assert.ErrorIs(t, err, domain.ErrPlanInUse)
	_, err = env.plans.Get(ctx, used.ID)
	require.NoError(t, err)

	// settled investments still pin the plan
	env.clock.Advance(48 * time.Hour)
	_, err = env.payouts.ProcessDue(ctx)
	require.NoError(t, err)
	err = env.plans.Delete(ctx, used.ID, &admin)
	assert.ErrorIs(t, err, domain.ErrPlanInUse)
}
