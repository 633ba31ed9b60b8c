package payouts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

func bankDestination() Destination {
	return Destination{Bank: &BankDetails{
		AccountHolder: "Ada Lovelace",
		AccountNumber: "000123456789",
		RoutingNumber: "021000021",
	}}
}

func TestDestinationForMethodKeepsOnlyThatRail(t *testing.T) {
	dest := bankDestination()
	dest.PayPal = &PayPalDetails{Email: "ada@example.com"}

	got, err := dest.ForMethod(enums.PayoutMethodBankTransfer)
	require.NoError(t, err)
	require.NotNil(t, got.Bank)
	assert.Nil(t, got.PayPal)

	got, err = dest.ForMethod(enums.PayoutMethodPaypal)
	require.NoError(t, err)
	assert.Nil(t, got.Bank)
	require.NotNil(t, got.PayPal)
}

func TestDestinationRequiresDetailsForMethod(t *testing.T) {
	_, err := bankDestination().ForMethod(enums.PayoutMethodCrypto)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = bankDestination().ForMethod(enums.PayoutMethod("cheque"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDestinationReportsInvalidFields(t *testing.T) {
	dest := Destination{Bank: &BankDetails{AccountHolder: "Ada", AccountNumber: "12ab", RoutingNumber: "123"}}
	_, err := dest.ForMethod(enums.PayoutMethodBankTransfer)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must contain only digits", details["account_number"])
	assert.Equal(t, "must be exactly 9 characters", details["routing_number"])

	_, err = Destination{PayPal: &PayPalDetails{Email: "not-an-email"}}.ForMethod(enums.PayoutMethodPaypal)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Destination{Crypto: &CryptoDetails{Address: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", Network: "dogecoin"}}.ForMethod(enums.PayoutMethodCrypto)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestFeeSchedule(t *testing.T) {
	fees := DefaultFeeSchedule()
	fee, err := fees.Fee(enums.PayoutMethodBankTransfer, dec(140))
	require.NoError(t, err)
	assert.Equal(t, "2.80", fee.StringFixed(2))

	fee, err = fees.Fee(enums.PayoutMethodWallet, dec(140))
	require.NoError(t, err)
	assert.True(t, fee.IsZero())

	parsed, err := NewFeeSchedule(config.PayoutsConfig{
		BankTransferFeePercent: "2",
		PayPalFeePercent:       "3.5",
		CryptoFeePercent:       "1",
		WalletFeePercent:       "0",
	})
	require.NoError(t, err)
	fee, err = parsed.Fee(enums.PayoutMethodPaypal, dec(200))
	require.NoError(t, err)
	assert.True(t, fee.Equal(dec(7)))

	_, err = NewFeeSchedule(config.PayoutsConfig{
		BankTransferFeePercent: "120",
		PayPalFeePercent:       "3",
		CryptoFeePercent:       "1",
		WalletFeePercent:       "0",
	})
	assert.Error(t, err)
}

func TestExecutorRegistryNeedsCredentials(t *testing.T) {
	registry := NewExecutorRegistry(ExecutorConfig{}, nil)
	for _, method := range enums.PayoutMethods() {
		exec, ok := registry.For(method)
		require.True(t, ok)
		assert.IsType(t, &ManualExecutor{}, exec)
	}

	assert.Error(t, registry.Register(enums.PayoutMethodPaypal, &failingExecutor{}))
	assert.NoError(t, registry.Register(enums.PayoutMethodWallet, &failingExecutor{}))

	withKeys := NewExecutorRegistry(ExecutorConfigFrom(config.PayoutsConfig{PayPalClientID: "id", PayPalSecret: "secret"}), nil)
	assert.NoError(t, withKeys.Register(enums.PayoutMethodPaypal, &failingExecutor{}))
}
