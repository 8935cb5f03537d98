package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the billing surface: every call is authorized against the
// user's balance before the ledger moves.
type Service struct {
	db     *gorm.DB
	ledger *Ledger
	authz  *authz.Engine
	log    *zap.Logger
}

func NewService(db *gorm.DB, ledger *Ledger, engine *authz.Engine, log *zap.Logger) *Service {
	return &Service{db: db, ledger: ledger, authz: engine, log: log}
}

// Ledger exposes the underlying ledger for callers that already hold a
// transaction, such as the appointment state machine.
func (s *Service) Ledger() *Ledger { return s.ledger }

// balanceFor resolves the user inside the tenant and returns its balance
// after checking action against it.
func (s *Service) balanceFor(ctx context.Context, tc tenant.Context, userID uint, action string) (*models.CreditBalance, error) {
	var user models.User
	err := tc.Scope(s.db.WithContext(ctx)).Select("id").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.authz.Check(tc.Actor, action, &models.CreditBalance{OrganizationID: tc.OrganizationID, UserID: userID}); err != nil {
		return nil, err
	}
	return s.ledger.Balance(ctx, tc, userID)
}

// DebitCredits charges userID for one of their appointments.
func (s *Service) DebitCredits(ctx context.Context, tc tenant.Context, userID uint, amount int, appointmentID uint) (*models.CreditTransaction, error) {
	balance, err := s.balanceFor(ctx, tc, userID, "debit")
	if err != nil {
		return nil, err
	}

	var entry *models.CreditTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := clientAppointment(tx, tc, userID, appointmentID); err != nil {
			return err
		}
		entry, err = s.ledger.WithTx(tx).Debit(ctx, tc, balance, amount, appointmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RefundCredits returns credits charged for an appointment. The refund may
// not exceed what the appointment currently holds.
func (s *Service) RefundCredits(ctx context.Context, tc tenant.Context, userID uint, amount int, appointmentID uint) (*models.CreditTransaction, error) {
	balance, err := s.balanceFor(ctx, tc, userID, "refund")
	if err != nil {
		return nil, err
	}

	var entry *models.CreditTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := clientAppointment(tx, tc, userID, appointmentID); err != nil {
			return err
		}
		ledger := s.ledger.WithTx(tx)

		var replayed int64
		ref := AppointmentReference(tc.OrganizationID, appointmentID, models.TxCancellationRefund)
		if err := tc.Scope(tx).Model(&models.CreditTransaction{}).Where("reference = ?", ref).Count(&replayed).Error; err != nil {
			return err
		}
		if replayed == 0 {
			charged, err := ledger.ChargedFor(ctx, tc, appointmentID)
			if err != nil {
				return err
			}
			if amount > charged {
				return apperrors.Invalid("amount", fmt.Sprintf("exceeds the %d credits charged for the appointment", charged))
			}
		}

		entry, err = ledger.Refund(ctx, tc, balance, amount, appointmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// clientAppointment locks the appointment a debit or refund is booked
// against. It must belong to the tenant and have userID as its client.
func clientAppointment(tx *gorm.DB, tc tenant.Context, userID, appointmentID uint) (*models.Appointment, error) {
	var a models.Appointment
	err := tc.Scope(tx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, appointmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.ClientID != userID {
		return nil, apperrors.Invalid("appointment_id", "belongs to another client")
	}
	return &a, nil
}

// Purchase credits the user immediately. With pending set the purchase waits
// for CompletePurchase instead.
func (s *Service) Purchase(ctx context.Context, tc tenant.Context, userID uint, amount int, pending bool, metadata map[string]interface{}) (*models.CreditTransaction, error) {
	balance, err := s.balanceFor(ctx, tc, userID, "purchase")
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperrors.Invalid("amount", "must be positive")
	}
	if pending {
		return s.ledger.PurchasePending(ctx, tc, balance, amount, metadata)
	}
	return s.ledger.Add(ctx, tc, balance, amount, models.TxPurchase, metadata)
}

// CompletePurchase settles a pending purchase. Only staff with the purchase
// permission on the balance may settle it.
func (s *Service) CompletePurchase(ctx context.Context, tc tenant.Context, transactionID uint) (*models.CreditTransaction, error) {
	if err := s.checkPending(ctx, tc, transactionID); err != nil {
		return nil, err
	}
	return s.ledger.CompletePending(ctx, tc, transactionID)
}

func (s *Service) FailPurchase(ctx context.Context, tc tenant.Context, transactionID uint) error {
	if err := s.checkPending(ctx, tc, transactionID); err != nil {
		return err
	}
	return s.ledger.FailPending(ctx, tc, transactionID)
}

func (s *Service) checkPending(ctx context.Context, tc tenant.Context, transactionID uint) error {
	var entry models.CreditTransaction
	err := tc.Scope(s.db.WithContext(ctx)).First(&entry, transactionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return err
	}
	var balance models.CreditBalance
	if err := tc.Scope(s.db.WithContext(ctx)).First(&balance, entry.CreditBalanceID).Error; err != nil {
		return err
	}
	// Settling is a staff action, so the client's own purchase_own grant
	// does not count here.
	return s.authz.Check(tc.Actor, "purchase", authz.Collection{Type: models.ResourceBilling, OrganizationID: balance.OrganizationID})
}

// Adjust applies a signed manual correction.
func (s *Service) Adjust(ctx context.Context, tc tenant.Context, userID uint, amount int, reason string) (*models.CreditTransaction, error) {
	balance, err := s.balanceFor(ctx, tc, userID, "adjust")
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperrors.Invalid("reason", "is required")
	}
	return s.ledger.Add(ctx, tc, balance, amount, models.TxAdminAdjustment, map[string]interface{}{
		"reason":      reason,
		"adjusted_by": tc.Actor.UserID,
	})
}

// BalanceOf returns the user's balance and its transactions.
func (s *Service) BalanceOf(ctx context.Context, tc tenant.Context, userID uint) (*models.CreditBalance, []models.CreditTransaction, error) {
	balance, err := s.balanceFor(ctx, tc, userID, "show")
	if err != nil {
		return nil, nil, err
	}
	history, err := s.ledger.History(ctx, tc, balance.ID)
	if err != nil {
		return nil, nil, err
	}
	return balance, history, nil
}

// Balances lists the balances the actor may see.
func (s *Service) Balances(ctx context.Context, tc tenant.Context) ([]models.CreditBalance, error) {
	if err := s.authz.Check(tc.Actor, "index", authz.Collection{Type: models.ResourceBilling, OrganizationID: tc.OrganizationID}); err != nil {
		return nil, err
	}
	var balances []models.CreditBalance
	err := tc.Scope(s.db.WithContext(ctx)).
		Scopes(s.authz.Scope(tc.Actor, models.ResourceBilling)).
		Order("user_id").
		Find(&balances).Error
	return balances, err
}
