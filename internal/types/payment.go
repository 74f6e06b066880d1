package types

import (
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/samber/lo"
)

// PaymentStatus is the canonical, provider agnostic status of a payment transaction
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusInitiated  PaymentStatus = "initiated"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCanceled   PaymentStatus = "canceled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// TerminalPaymentStatuses are write-once: a transaction that reached one never changes again
var TerminalPaymentStatuses = []PaymentStatus{
	PaymentStatusSuccess,
	PaymentStatusCanceled,
	PaymentStatusRefunded,
}

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) IsTerminal() bool {
	return lo.Contains(TerminalPaymentStatuses, s)
}

// IsOpen reports whether the provider has not reported an outcome yet
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusInitiated || s == PaymentStatusProcessing
}

func (s PaymentStatus) Validate() error {
	allowed := []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusInitiated,
		PaymentStatusProcessing,
		PaymentStatusSuccess,
		PaymentStatusFailed,
		PaymentStatusCanceled,
		PaymentStatusRefunded,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid payment status").
			WithHint("Invalid payment status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PaymentProvider names a payment adapter; inbound payloads are tagged with it
type PaymentProvider string

const (
	PaymentProviderStripe   PaymentProvider = "stripe"
	PaymentProviderRazorpay PaymentProvider = "razorpay"
	PaymentProviderNomod    PaymentProvider = "nomod"
)

func (p PaymentProvider) String() string {
	return string(p)
}

func (p PaymentProvider) Validate() error {
	allowed := []PaymentProvider{
		PaymentProviderStripe,
		PaymentProviderRazorpay,
		PaymentProviderNomod,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid payment provider").
			WithHint("Unsupported payment provider").
			WithReportableDetails(map[string]any{
				"provider": p,
				"allowed":  allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodUPI          PaymentMethod = "upi"
	PaymentMethodNetBanking   PaymentMethod = "netbanking"
	PaymentMethodWallet       PaymentMethod = "wallet"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodPaymentLink  PaymentMethod = "payment_link"
)

// TransactionKind separates collection attempts from refunds
type TransactionKind string

const (
	TransactionKindCharge TransactionKind = "charge"
	TransactionKindRefund TransactionKind = "refund"
)
