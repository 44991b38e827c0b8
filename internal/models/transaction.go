package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Transaction type enums. These are persisted and appear in audit exports.
const (
	TxEscrowDeposit      = "ESCROW_DEPOSIT"
	TxPayoutCredit       = "PAYOUT_CREDIT"
	TxRefundCredit       = "REFUND_CREDIT"
	TxPlatformFee        = "PLATFORM_FEE"
	TxEscrowAutoRelease  = "ESCROW_AUTO_RELEASE"
	TxWithdrawalApproved = "WITHDRAWAL_APPROVED"
	TxWithdrawalRejected = "WITHDRAWAL_REJECTED"
	TxWalletTopup        = "WALLET_TOPUP"
)

// Transaction statuses. The only permitted mutation is PENDING -> COMPLETED/FAILED.
const (
	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"
)

// Transaction is one immutable journal row per money movement.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	GigID          *uuid.UUID      `json:"gig_id,omitempty"`
	UserID         uuid.UUID       `json:"user_id"`
	Amount         int64           `json:"amount"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	GatewayOrderID *string         `json:"gateway_order_id,omitempty"`
	ProviderData   json.RawMessage `json:"provider_data,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
