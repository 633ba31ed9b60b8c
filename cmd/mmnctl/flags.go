package main

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
	"github.com/angelmondragon/mmn-engine/pkg/types"
)

const dateLayout = "2006-01-02"

// periodFlags select the calendar period containing a date.
type periodFlags struct {
	Type string
	Date string
}

func (p *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.Type, "period-type", string(enums.PeriodTypeMonthly), "period type (daily|weekly|monthly)")
	cmd.Flags().StringVar(&p.Date, "date", "", "any date inside the period, YYYY-MM-DD (defaults to today)")
}

func (p periodFlags) resolve(now time.Time) (types.Period, error) {
	periodType := enums.PeriodType(strings.ToLower(strings.TrimSpace(p.Type)))
	if !periodType.IsValid() {
		return types.Period{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid period type %q", p.Type)
	}
	at := now.UTC()
	if raw := strings.TrimSpace(p.Date); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return types.Period{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "date must be YYYY-MM-DD")
		}
		at = parsed
	}
	period, err := types.PeriodContaining(periodType, at)
	if err != nil {
		return types.Period{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolve period")
	}
	return period, nil
}

func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a uuid", name)
	}
	return id, nil
}

func parseAmount(name, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a decimal", name)
	}
	return amount, nil
}
