package payouts

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// FeeSchedule is the percentage withheld per payout method.
type FeeSchedule map[enums.PayoutMethod]decimal.Decimal

// DefaultFeeSchedule mirrors the environment defaults.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		enums.PayoutMethodBankTransfer: decimal.NewFromInt(2),
		enums.PayoutMethodPaypal:       decimal.NewFromInt(3),
		enums.PayoutMethodCrypto:       decimal.NewFromInt(1),
		enums.PayoutMethodWallet:       decimal.Zero,
	}
}

// NewFeeSchedule parses the configured percentages.
func NewFeeSchedule(cfg config.PayoutsConfig) (FeeSchedule, error) {
	raw := map[enums.PayoutMethod]string{
		enums.PayoutMethodBankTransfer: cfg.BankTransferFeePercent,
		enums.PayoutMethodPaypal:       cfg.PayPalFeePercent,
		enums.PayoutMethodCrypto:       cfg.CryptoFeePercent,
		enums.PayoutMethodWallet:       cfg.WalletFeePercent,
	}
	out := FeeSchedule{}
	for method, value := range raw {
		pct, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parse %s fee %q: %w", method, value, err)
		}
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return nil, fmt.Errorf("%s fee must be between 0 and 100, got %s", method, value)
		}
		out[method] = pct
	}
	return out, nil
}

// Fee returns the fee for total under method, rounded to cents.
func (f FeeSchedule) Fee(method enums.PayoutMethod, total decimal.Decimal) (decimal.Decimal, error) {
	pct, ok := f[method]
	if !ok {
		return decimal.Zero, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payout method %q", method)
	}
	return total.Mul(pct).Div(hundred).Round(2), nil
}
