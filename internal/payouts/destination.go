package payouts

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Destination carries the recipient details of exactly one rail.
type Destination struct {
	Bank   *BankDetails   `json:"bank,omitempty"`
	PayPal *PayPalDetails `json:"paypal,omitempty"`
	Crypto *CryptoDetails `json:"crypto,omitempty"`
	Wallet *WalletDetails `json:"wallet,omitempty"`
}

type BankDetails struct {
	AccountHolder string `json:"account_holder" validate:"required,max=140"`
	AccountNumber string `json:"account_number" validate:"required,numeric,min=4,max=34"`
	RoutingNumber string `json:"routing_number" validate:"required,numeric,len=9"`
	BankName      string `json:"bank_name,omitempty" validate:"omitempty,max=140"`
}

type PayPalDetails struct {
	Email string `json:"email" validate:"required,email"`
}

type CryptoDetails struct {
	Address string `json:"address" validate:"required,alphanum,min=26,max=128"`
	Network string `json:"network" validate:"required,oneof=bitcoin ethereum polygon solana tron"`
}

type WalletDetails struct {
	WalletID string `json:"wallet_id" validate:"required,uuid"`
}

// ForMethod validates the details the method needs and returns a copy holding
// only those.
func (d Destination) ForMethod(method enums.PayoutMethod) (Destination, error) {
	var details any
	var out Destination
	switch method {
	case enums.PayoutMethodBankTransfer:
		if d.Bank != nil {
			details, out.Bank = d.Bank, d.Bank
		}
	case enums.PayoutMethodPaypal:
		if d.PayPal != nil {
			details, out.PayPal = d.PayPal, d.PayPal
		}
	case enums.PayoutMethodCrypto:
		if d.Crypto != nil {
			details, out.Crypto = d.Crypto, d.Crypto
		}
	case enums.PayoutMethodWallet:
		if d.Wallet != nil {
			details, out.Wallet = d.Wallet, d.Wallet
		}
	default:
		return Destination{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payout method %q", method)
	}
	if details == nil {
		return Destination{}, pkgerrors.Newf(pkgerrors.CodeValidation, "%s details are required", method)
	}
	if err := validate.Struct(details); err != nil {
		return Destination{}, formatValidationErrors(err)
	}
	return out, nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payout destination").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout destination")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "numeric":
		return "must contain only digits"
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}
