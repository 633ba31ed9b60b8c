package enums

import "slices"

// PayoutMethod selects the rail a payout is settled on.
type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
	PayoutMethodPaypal       PayoutMethod = "paypal"
	PayoutMethodCrypto       PayoutMethod = "crypto"
	PayoutMethodWallet       PayoutMethod = "wallet"
)

var validPayoutMethods = []PayoutMethod{
	PayoutMethodBankTransfer,
	PayoutMethodPaypal,
	PayoutMethodCrypto,
	PayoutMethodWallet,
}

// PayoutMethods lists every supported method.
func PayoutMethods() []PayoutMethod {
	out := make([]PayoutMethod, len(validPayoutMethods))
	copy(out, validPayoutMethods)
	return out
}

// String implements fmt.Stringer.
func (p PayoutMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutMethod.
func (p PayoutMethod) IsValid() bool {
	return slices.Contains(validPayoutMethods, p)
}

// ParsePayoutMethod converts raw input into a PayoutMethod.
func ParsePayoutMethod(value string) (PayoutMethod, error) {
	return parse(validPayoutMethods, value, "payout method")
}
