package models

import (
	"errors"
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TxPurchase           TransactionType = "purchase"
	TxAppointmentDebit   TransactionType = "appointment_debit"
	TxCancellationRefund TransactionType = "cancellation_refund"
	TxAdminAdjustment    TransactionType = "admin_adjustment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxPurchase, TxAppointmentDebit, TxCancellationRefund, TxAdminAdjustment:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

var ErrLedgerImmutable = errors.New("credit transactions are append-only")

// CreditBalance is the running credit total of one user in one organization.
// It always equals the sum of its completed transactions.
type CreditBalance struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	OrganizationID    uint      `json:"organization_id" gorm:"not null;uniqueIndex:idx_credit_balances_owner"`
	UserID            uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_credit_balances_owner"`
	Balance           int       `json:"balance" gorm:"not null;default:0;check:chk_credit_balances_non_negative,balance >= 0"`
	LifetimePurchased int       `json:"lifetime_purchased" gorm:"not null;default:0"`
	LifetimeUsed      int       `json:"lifetime_used" gorm:"not null;default:0"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (CreditBalance) ResourceType() string { return ResourceBilling }

func (b CreditBalance) TenantID() uint { return b.OrganizationID }

func (b *CreditBalance) BeforeCreate(tx *gorm.DB) error {
	if b.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	return nil
}

type CreditTransaction struct {
	ID              uint              `json:"id" gorm:"primaryKey"`
	OrganizationID  uint              `json:"organization_id" gorm:"not null;index"`
	CreditBalanceID uint              `json:"credit_balance_id" gorm:"not null;index"`
	AppointmentID   *uint             `json:"appointment_id" gorm:"index"`
	Amount          int               `json:"amount" gorm:"not null"`
	TransactionType TransactionType   `json:"transaction_type" gorm:"type:varchar(32);not null"`
	Status          TransactionStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	Reference       string            `json:"reference" gorm:"type:varchar(128);uniqueIndex;not null"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at"`
}

func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	if t.Amount == 0 {
		return apperrors.Invalid("amount", "must not be zero")
	}
	if !t.TransactionType.Valid() {
		return apperrors.Invalid("transaction_type", "is not a known transaction type")
	}
	return nil
}

func (t *CreditTransaction) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}
