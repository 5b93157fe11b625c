package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func standingsN(n int) []Standing {
	out := make([]Standing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Standing{
			ParticipantID: string(rune('a' + i)),
			DisplayName:   string(rune('A' + i)),
			PayoutEmail:   "winner@example.com",
			BestScore:     int64(1000 - i),
			Rank:          i + 1,
		})
	}
	return out
}

func TestComputePlanPercentSplit(t *testing.T) {
	cfg := PrizeConfig{Mode: PrizeSplitPercent, Schedule: []int64{50, 30, 20}, Currency: "CHF"}

	plan := ComputePlan(standingsN(3), 300, cfg)
	require.Len(t, plan, 3)
	require.Equal(t, int64(150), plan[0].AmountCentimes)
	require.Equal(t, int64(90), plan[1].AmountCentimes)
	require.Equal(t, int64(60), plan[2].AmountCentimes)
	require.Equal(t, int64(300), PlanTotal(plan))

	for i, award := range plan {
		require.Equal(t, i+1, award.Rank)
	}
}

func TestComputePlanDefaultSplit(t *testing.T) {
	// 40/15/5 of an 11000-centime pool
	plan := ComputePlan(standingsN(5), 11000, DefaultPrizeConfig())
	require.Len(t, plan, 3)
	require.Equal(t, int64(4400), plan[0].AmountCentimes)
	require.Equal(t, int64(1650), plan[1].AmountCentimes)
	require.Equal(t, int64(550), plan[2].AmountCentimes)
}

func TestComputePlanFewerWinnersThanSlots(t *testing.T) {
	cfg := PrizeConfig{Mode: PrizeSplitPercent, Schedule: []int64{50, 30, 20}, Currency: "CHF"}

	plan := ComputePlan(standingsN(2), 300, cfg)
	require.Len(t, plan, 2)
	require.Equal(t, int64(150), plan[0].AmountCentimes)
	require.Equal(t, int64(90), plan[1].AmountCentimes)
	require.Equal(t, int64(240), PlanTotal(plan))
}

func TestComputePlanRedistribute(t *testing.T) {
	cfg := PrizeConfig{Mode: PrizeSplitPercent, Schedule: []int64{50, 30, 20}, Redistribute: true, Currency: "CHF"}

	plan := ComputePlan(standingsN(2), 300, cfg)
	require.Len(t, plan, 2)
	// Rank 3's 60 centimes fold into ranks 1 and 2 by weight (50:30),
	// remainder to rank 1: 150+37+1, 90+22.
	require.Equal(t, int64(300), PlanTotal(plan))
	require.Equal(t, int64(188), plan[0].AmountCentimes)
	require.Equal(t, int64(112), plan[1].AmountCentimes)
}

func TestComputePlanFixedMode(t *testing.T) {
	cfg := PrizeConfig{Mode: PrizeSplitFixed, Schedule: []int64{2000, 1000, 500}, Currency: "CHF"}

	plan := ComputePlan(standingsN(3), 0, cfg)
	require.Len(t, plan, 3)
	require.Equal(t, int64(2000), plan[0].AmountCentimes)
	require.Equal(t, int64(1000), plan[1].AmountCentimes)
	require.Equal(t, int64(500), plan[2].AmountCentimes)
}

func TestComputePlanNoParticipants(t *testing.T) {
	require.Nil(t, ComputePlan(nil, 10000, DefaultPrizeConfig()))
}

func TestComputePlanIntegerExact(t *testing.T) {
	// An odd pool must not produce drift: 10001 * 40 / 100 = 4000 exactly
	// (truncation, never fractional centimes).
	plan := ComputePlan(standingsN(3), 10001, DefaultPrizeConfig())
	require.Equal(t, int64(4000), plan[0].AmountCentimes)
	require.Equal(t, int64(1500), plan[1].AmountCentimes)
	require.Equal(t, int64(500), plan[2].AmountCentimes)
}

func TestPrizeConfigFromEnv(t *testing.T) {
	t.Setenv("PRIZE_SPLIT_MODE", "percent")
	t.Setenv("PRIZE_SPLIT", "50, 30, 20")
	t.Setenv("PRIZE_REDISTRIBUTE", "true")
	t.Setenv("CURRENCY", "EUR")

	cfg, err := PrizeConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, PrizeSplitPercent, cfg.Mode)
	require.Equal(t, []int64{50, 30, 20}, cfg.Schedule)
	require.True(t, cfg.Redistribute)
	require.Equal(t, "EUR", cfg.Currency)
}

func TestPrizeConfigFromEnvRejectsOversplit(t *testing.T) {
	t.Setenv("PRIZE_SPLIT_MODE", "percent")
	t.Setenv("PRIZE_SPLIT", "60,50")

	_, err := PrizeConfigFromEnv()
	require.Error(t, err)
}
