// Package credits keeps the per-user credit balances of an organization and
// the append-only transaction log behind them.
package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLedgerDrift means a balance no longer equals the sum of its completed
// transactions.
var ErrLedgerDrift = errors.New("credit balance does not match its ledger")

// Ledger applies balance changes. Each change writes exactly one completed
// transaction in the same database transaction as the balance update.
type Ledger struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewLedger(db *gorm.DB, log *zap.Logger) *Ledger {
	return &Ledger{db: db, log: log, now: time.Now}
}

// WithTx returns a copy of the ledger that writes through tx. Changes then
// commit or roll back with the caller's transaction.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	c := *l
	c.db = tx
	return &c
}

// Balance returns the user's balance, creating an empty one on first use.
func (l *Ledger) Balance(ctx context.Context, tc tenant.Context, userID uint) (*models.CreditBalance, error) {
	b := models.CreditBalance{OrganizationID: tc.OrganizationID, UserID: userID}
	err := tc.Scope(l.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Attrs(models.CreditBalance{OrganizationID: tc.OrganizationID, UserID: userID}).
		FirstOrCreate(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Add moves credits by a signed amount. Positive amounts count as purchased,
// negative ones as used and may not take the balance below zero.
func (l *Ledger) Add(ctx context.Context, tc tenant.Context, balance *models.CreditBalance, amount int, txType models.TransactionType, metadata map[string]interface{}) (*models.CreditTransaction, error) {
	if amount == 0 {
		return nil, apperrors.Invalid("amount", "must not be zero")
	}
	entry := &models.CreditTransaction{
		Amount:          amount,
		TransactionType: txType,
		Reference:       "purchase:" + uuid.NewString(),
		Metadata:        datatypes.JSONMap(metadata),
	}
	if txType != models.TxPurchase {
		entry.Reference = string(txType) + ":" + uuid.NewString()
	}
	if amount > 0 {
		return l.apply(ctx, tc, balance, entry, map[string]interface{}{
			"balance":            gorm.Expr("balance + ?", amount),
			"lifetime_purchased": gorm.Expr("lifetime_purchased + ?", amount),
		})
	}
	return l.apply(ctx, tc, balance, entry, map[string]interface{}{
		"balance":       gorm.Expr("balance - ?", -amount),
		"lifetime_used": gorm.Expr("lifetime_used + ?", -amount),
	})
}

// Debit charges an appointment. It fails with InsufficientCredits when the
// balance cannot cover amount.
func (l *Ledger) Debit(ctx context.Context, tc tenant.Context, balance *models.CreditBalance, amount int, appointmentID uint) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, apperrors.Invalid("amount", "must be positive")
	}
	entry := &models.CreditTransaction{
		AppointmentID:   &appointmentID,
		Amount:          -amount,
		TransactionType: models.TxAppointmentDebit,
		Reference:       AppointmentReference(tc.OrganizationID, appointmentID, models.TxAppointmentDebit),
	}
	return l.apply(ctx, tc, balance, entry, map[string]interface{}{
		"balance":       gorm.Expr("balance - ?", amount),
		"lifetime_used": gorm.Expr("lifetime_used + ?", amount),
	})
}

// Refund returns credits charged for an appointment. It reverses usage, so
// lifetime_used goes down rather than lifetime_purchased up.
func (l *Ledger) Refund(ctx context.Context, tc tenant.Context, balance *models.CreditBalance, amount int, appointmentID uint) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, apperrors.Invalid("amount", "must be positive")
	}
	entry := &models.CreditTransaction{
		AppointmentID:   &appointmentID,
		Amount:          amount,
		TransactionType: models.TxCancellationRefund,
		Reference:       AppointmentReference(tc.OrganizationID, appointmentID, models.TxCancellationRefund),
	}
	return l.apply(ctx, tc, balance, entry, map[string]interface{}{
		"balance":       gorm.Expr("balance + ?", amount),
		"lifetime_used": gorm.Expr("lifetime_used - ?", amount),
	})
}

// AppointmentReference is the idempotency key of an appointment's debit or
// refund. There is at most one of each per appointment.
func AppointmentReference(organizationID, appointmentID uint, txType models.TransactionType) string {
	return fmt.Sprintf("org:%d:appointment:%d:%s", organizationID, appointmentID, txType)
}

func (l *Ledger) apply(ctx context.Context, tc tenant.Context, balance *models.CreditBalance, entry *models.CreditTransaction, changes map[string]interface{}) (*models.CreditTransaction, error) {
	if balance == nil || balance.OrganizationID != tc.OrganizationID {
		return nil, apperrors.ErrNotFound
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior models.CreditTransaction
		err := tc.Scope(tx).Where("reference = ?", entry.Reference).First(&prior).Error
		if err == nil {
			// Replayed request: the change already happened.
			*entry = prior
			return l.reload(tx, tc, balance)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		q := tc.Scope(tx).Model(&models.CreditBalance{}).Where("id = ?", balance.ID)
		if entry.Amount < 0 {
			q = q.Where("balance >= ?", -entry.Amount)
		}
		res := q.UpdateColumns(withTimestamp(changes, l.now()))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := l.reload(tx, tc, balance); err != nil {
				return err
			}
			return apperrors.InsufficientCredits{Available: balance.Balance, Requested: -entry.Amount}
		}

		completed := l.now().UTC()
		entry.OrganizationID = tc.OrganizationID
		entry.CreditBalanceID = balance.ID
		entry.Status = models.TxCompleted
		entry.CompletedAt = &completed
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return l.reload(tx, tc, balance)
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("credits moved",
		zap.Uint("organization_id", tc.OrganizationID),
		zap.Uint("credit_balance_id", balance.ID),
		zap.Int("amount", entry.Amount),
		zap.String("type", string(entry.TransactionType)),
		zap.String("reference", entry.Reference),
		zap.Int("balance", balance.Balance),
	)
	return entry, nil
}

func withTimestamp(changes map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(changes)+1)
	for k, v := range changes {
		out[k] = v
	}
	out["updated_at"] = now.UTC()
	return out
}

func (l *Ledger) reload(tx *gorm.DB, tc tenant.Context, balance *models.CreditBalance) error {
	return tc.Scope(tx).First(balance, balance.ID).Error
}

// Lock re-reads the balance holding its row lock until the surrounding
// transaction ends.
func (l *Ledger) Lock(ctx context.Context, tc tenant.Context, balance *models.CreditBalance) error {
	return tc.Scope(l.db.WithContext(ctx)).Clauses(clause.Locking{Strength: "UPDATE"}).First(balance, balance.ID).Error
}

// PurchasePending records a purchase that is waiting for payment. The
// balance does not change until CompletePending.
func (l *Ledger) PurchasePending(ctx context.Context, tc tenant.Context, balance *models.CreditBalance, amount int, metadata map[string]interface{}) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, apperrors.Invalid("amount", "must be positive")
	}
	if balance == nil || balance.OrganizationID != tc.OrganizationID {
		return nil, apperrors.ErrNotFound
	}
	entry := &models.CreditTransaction{
		OrganizationID:  tc.OrganizationID,
		CreditBalanceID: balance.ID,
		Amount:          amount,
		TransactionType: models.TxPurchase,
		Status:          models.TxPending,
		Reference:       "purchase:" + uuid.NewString(),
		Metadata:        datatypes.JSONMap(metadata),
	}
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// CompletePending settles a pending purchase and credits the balance.
func (l *Ledger) CompletePending(ctx context.Context, tc tenant.Context, transactionID uint) (*models.CreditTransaction, error) {
	var entry models.CreditTransaction
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.settle(tx, tc, transactionID, models.TxCompleted, &entry); err != nil {
			return err
		}
		res := tc.Scope(tx).Model(&models.CreditBalance{}).Where("id = ?", entry.CreditBalanceID).
			UpdateColumns(withTimestamp(map[string]interface{}{
				"balance":            gorm.Expr("balance + ?", entry.Amount),
				"lifetime_purchased": gorm.Expr("lifetime_purchased + ?", entry.Amount),
			}, l.now()))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("pending purchase completed",
		zap.Uint("organization_id", tc.OrganizationID),
		zap.Uint("credit_transaction_id", entry.ID),
		zap.Int("amount", entry.Amount),
	)
	return &entry, nil
}

// FailPending marks a pending purchase as failed. The balance is untouched.
func (l *Ledger) FailPending(ctx context.Context, tc tenant.Context, transactionID uint) error {
	var entry models.CreditTransaction
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.settle(tx, tc, transactionID, models.TxFailed, &entry)
	})
}

// settle moves a pending row to its final status. Only pending rows move, so
// a completed row is never edited.
func (l *Ledger) settle(tx *gorm.DB, tc tenant.Context, transactionID uint, status models.TransactionStatus, entry *models.CreditTransaction) error {
	err := tc.Scope(tx).First(entry, transactionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return err
	}
	if entry.Status != models.TxPending {
		return apperrors.Invalid("status", "transaction is already "+string(entry.Status))
	}

	changes := map[string]interface{}{"status": status}
	if status == models.TxCompleted {
		completed := l.now().UTC()
		changes["completed_at"] = completed
		entry.CompletedAt = &completed
	}
	res := tc.Scope(tx).Model(&models.CreditTransaction{}).
		Where("id = ? AND status = ?", entry.ID, models.TxPending).
		UpdateColumns(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Invalid("status", "transaction was settled concurrently")
	}
	entry.Status = status
	return nil
}

// History lists the transactions of a balance, newest first.
func (l *Ledger) History(ctx context.Context, tc tenant.Context, balanceID uint) ([]models.CreditTransaction, error) {
	var entries []models.CreditTransaction
	err := tc.Scope(l.db.WithContext(ctx)).
		Where("credit_balance_id = ?", balanceID).
		Order("id DESC").
		Find(&entries).Error
	return entries, err
}

// Reconcile checks that the balance equals the sum of its completed
// transactions.
func (l *Ledger) Reconcile(ctx context.Context, tc tenant.Context, balanceID uint) error {
	var b models.CreditBalance
	if err := tc.Scope(l.db.WithContext(ctx)).First(&b, balanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return err
	}

	var sum int
	err := tc.Scope(l.db.WithContext(ctx)).Model(&models.CreditTransaction{}).
		Where("credit_balance_id = ? AND status = ?", balanceID, models.TxCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return err
	}
	if sum != b.Balance {
		return fmt.Errorf("%w: balance %d, ledger %d", ErrLedgerDrift, b.Balance, sum)
	}
	return nil
}

// ChargedFor is the net amount an appointment currently holds: its debit
// minus any refund.
func (l *Ledger) ChargedFor(ctx context.Context, tc tenant.Context, appointmentID uint) (int, error) {
	var sum int
	err := tc.Scope(l.db.WithContext(ctx)).Model(&models.CreditTransaction{}).
		Where("appointment_id = ? AND status = ?", appointmentID, models.TxCompleted).
		Where("transaction_type IN ?", []models.TransactionType{models.TxAppointmentDebit, models.TxCancellationRefund}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return -sum, err
}
