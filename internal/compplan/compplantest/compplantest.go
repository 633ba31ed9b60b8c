// Package compplantest builds compensation plans for tests.
package compplantest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mmn-engine/internal/compplan"
	"github.com/angelmondragon/mmn-engine/pkg/config"
)

// Config mirrors the environment defaults of the compensation section.
func Config() config.CompensationConfig {
	return config.CompensationConfig{
		Currency:              "USD",
		BinaryCommissionRate:  "10",
		MaxPayoutPercentage:   "50",
		WeakerLegPercentage:   "100",
		UnilevelLevels:        10,
		UnilevelRates:         []string{"5", "4", "3", "2", "2", "1", "1", "1", "1", "1"},
		MatchingBonusRate:     "10",
		MinimumPayout:         "50",
		PaymentFrequency:      "monthly",
		SpilloverStrategy:     compplan.SpilloverBreadthFirst,
		PersonalSalesRequired: "100",
		MinimumActiveDownline: 2,
		MaxPlacementDepth:     64,
	}
}

// Plan returns the default plan, optionally adjusted by mutate.
func Plan(t *testing.T, mutate ...func(*compplan.Plan)) *compplan.Plan {
	t.Helper()
	plan, err := compplan.FromConfig(Config())
	require.NoError(t, err)
	for _, fn := range mutate {
		fn(plan)
	}
	return plan
}

// Provider serves Plan to every tenant.
func Provider(t *testing.T, mutate ...func(*compplan.Plan)) compplan.Provider {
	t.Helper()
	return compplan.Static{Plan: Plan(t, mutate...)}
}
