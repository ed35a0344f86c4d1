package settlement

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/pkg/stripeconnect"
)

const NoteNoPayoutAccount = "business has no payout account; wallet charged, transfer skipped"

type WalletState struct {
	AvailableBalanceBefore decimal.Decimal `json:"available_balance_before"`
	AvailableBalanceAfter  decimal.Decimal `json:"available_balance_after"`
}

// Result is returned for every successful settlement call, including no-ops.
type Result struct {
	LiveAdID       uuid.UUID               `json:"live_ad_id"`
	Success        bool                    `json:"success"`
	ChargedAmount  decimal.Decimal         `json:"charged_amount"`
	UnpaidBefore   decimal.Decimal         `json:"unpaid_before"`
	UnpaidAfter    decimal.Decimal         `json:"unpaid_after"`
	AlreadySettled bool                    `json:"already_settled,omitempty"`
	Wallet         *WalletState            `json:"wallet,omitempty"`
	DeductionID    *uuid.UUID              `json:"deduction_id,omitempty"`
	Transfer       *stripeconnect.Transfer `json:"transfer"`
	TransferError  string                  `json:"stripe_transfer_error,omitempty"`
	Note           string                  `json:"note,omitempty"`
}
