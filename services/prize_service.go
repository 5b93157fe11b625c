// services/prize_service.go
package services

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PrizeSplitMode selects how the split schedule is interpreted.
type PrizeSplitMode string

const (
	// PrizeSplitPercent: schedule entries are whole percents of the pool.
	PrizeSplitPercent PrizeSplitMode = "percent"
	// PrizeSplitFixed: schedule entries are fixed amounts in centimes.
	PrizeSplitFixed PrizeSplitMode = "fixed"
)

// PrizeConfig drives the prize calculator. The number of schedule entries is
// the number of paid ranks. All arithmetic is in integer minor units.
type PrizeConfig struct {
	Mode     PrizeSplitMode
	Schedule []int64 // percents (percent mode) or centimes (fixed mode), rank 1 first
	// Redistribute: when fewer qualifying participants exist than slots,
	// spread the unused slot amounts over the remaining winners instead of
	// dropping them.
	Redistribute bool
	Currency     string
}

// DefaultPrizeConfig is the split the contest has always run with:
// 40% / 15% / 5% of the pool for ranks 1-3, unused slots dropped.
func DefaultPrizeConfig() PrizeConfig {
	return PrizeConfig{
		Mode:     PrizeSplitPercent,
		Schedule: []int64{40, 15, 5},
		Currency: "CHF",
	}
}

// PrizeConfigFromEnv reads PRIZE_SPLIT_MODE, PRIZE_SPLIT, PRIZE_REDISTRIBUTE
// and CURRENCY, falling back to the defaults for anything unset.
func PrizeConfigFromEnv() (PrizeConfig, error) {
	cfg := DefaultPrizeConfig()

	if mode := os.Getenv("PRIZE_SPLIT_MODE"); mode != "" {
		switch PrizeSplitMode(mode) {
		case PrizeSplitPercent, PrizeSplitFixed:
			cfg.Mode = PrizeSplitMode(mode)
		default:
			return cfg, fmt.Errorf("invalid PRIZE_SPLIT_MODE %q (use percent or fixed)", mode)
		}
	}

	if raw := os.Getenv("PRIZE_SPLIT"); raw != "" {
		parts := strings.Split(raw, ",")
		schedule := make([]int64, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
			if err != nil || n < 0 {
				return cfg, fmt.Errorf("invalid PRIZE_SPLIT entry %q", p)
			}
			schedule = append(schedule, n)
		}
		if len(schedule) == 0 {
			return cfg, fmt.Errorf("PRIZE_SPLIT must list at least one slot")
		}
		cfg.Schedule = schedule
	}

	if cfg.Mode == PrizeSplitPercent {
		var total int64
		for _, s := range cfg.Schedule {
			total += s
		}
		if total > 100 {
			return cfg, fmt.Errorf("PRIZE_SPLIT percents sum to %d (max 100)", total)
		}
	}

	cfg.Redistribute = strings.EqualFold(os.Getenv("PRIZE_REDISTRIBUTE"), "true")

	if cur := os.Getenv("CURRENCY"); cur != "" {
		cfg.Currency = cur
	}

	return cfg, nil
}

// PrizeAward is one line of a payout plan.
type PrizeAward struct {
	ParticipantID  string `json:"participant_id"`
	DisplayName    string `json:"display_name"`
	PayoutEmail    string `json:"payout_email"`
	Rank           int    `json:"rank"`
	BestScore      int64  `json:"best_score"`
	AmountCentimes int64  `json:"amount_centimes"`
}

// ComputePlan maps standings and a pool to an ordered payout plan. Pure
// function: no rounding drift (integer centimes throughout), no side effects.
// Slots beyond the number of qualifying participants are dropped, or, with
// cfg.Redistribute, folded into the amounts of the remaining winners
// proportionally to their schedule weights.
func ComputePlan(standings []Standing, poolCentimes int64, cfg PrizeConfig) []PrizeAward {
	slots := len(cfg.Schedule)
	if len(standings) < slots {
		slots = len(standings)
	}
	if slots == 0 || poolCentimes < 0 {
		return nil
	}

	amounts := make([]int64, slots)
	var usedWeight, totalWeight int64
	for i, share := range cfg.Schedule {
		totalWeight += share
		if i < slots {
			usedWeight += share
		}
	}

	for i := 0; i < slots; i++ {
		switch cfg.Mode {
		case PrizeSplitFixed:
			amounts[i] = cfg.Schedule[i]
		default:
			amounts[i] = poolCentimes * cfg.Schedule[i] / 100
		}
	}

	if cfg.Redistribute && slots < len(cfg.Schedule) && usedWeight > 0 {
		// Unused slot amounts are re-split over the paid slots by weight.
		var unused int64
		if cfg.Mode == PrizeSplitFixed {
			for i := slots; i < len(cfg.Schedule); i++ {
				unused += cfg.Schedule[i]
			}
		} else {
			unused = poolCentimes * (totalWeight - usedWeight) / 100
		}
		var distributed int64
		for i := 0; i < slots; i++ {
			extra := unused * cfg.Schedule[i] / usedWeight
			amounts[i] += extra
			distributed += extra
		}
		// Integer-division remainder goes to rank 1.
		amounts[0] += unused - distributed
	}

	plan := make([]PrizeAward, 0, slots)
	for i := 0; i < slots; i++ {
		st := standings[i]
		plan = append(plan, PrizeAward{
			ParticipantID:  st.ParticipantID,
			DisplayName:    st.DisplayName,
			PayoutEmail:    st.PayoutEmail,
			Rank:           i + 1,
			BestScore:      st.BestScore,
			AmountCentimes: amounts[i],
		})
	}
	return plan
}

// PlanTotal sums a plan's amounts; the operator summary reports the pool
// remainder (house share) as poolCentimes - PlanTotal(plan).
func PlanTotal(plan []PrizeAward) int64 {
	var total int64
	for _, a := range plan {
		total += a.AmountCentimes
	}
	return total
}
