package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/config"
	"github.com/meinhoongagan/clinic-booking/credits"
	"github.com/meinhoongagan/clinic-booking/jobs"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/scheduling"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const expiredReason = "pre-confirmation expired"

type Service struct {
	db       *gorm.DB
	cfg      *config.Config
	authz    *authz.Engine
	resolver *scheduling.Resolver
	slots    *scheduling.Slots
	ledger   *credits.Ledger
	queue    jobs.Queue
	log      *zap.Logger
	now      func() time.Time
}

func NewService(
	db *gorm.DB,
	cfg *config.Config,
	engine *authz.Engine,
	resolver *scheduling.Resolver,
	slots *scheduling.Slots,
	ledger *credits.Ledger,
	queue jobs.Queue,
	log *zap.Logger,
) *Service {
	return &Service{
		db:       db,
		cfg:      cfg,
		authz:    engine,
		resolver: resolver,
		slots:    slots,
		ledger:   ledger,
		queue:    queue,
		log:      log,
		now:      time.Now,
	}
}

// WithClock returns a copy of the service, and of its resolver, that read
// the time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	c.resolver = s.resolver.WithClock(now)
	c.slots = scheduling.NewSlots(s.db, c.resolver)
	return &c
}

type CreateInput struct {
	ProfessionalID  uint      `json:"professional_id"`
	ClientID        uint      `json:"client_id"`
	StudentID       *uint     `json:"student_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           *float64  `json:"price"`
	UsesCredits     bool      `json:"uses_credits"`
	CreditsUsed     int       `json:"credits_used"`
	Notes           string    `json:"notes"`
}

// Create books a draft appointment. The professional's row lock is held
// from the conflict search until the insert commits.
func (s *Service) Create(ctx context.Context, tc tenant.Context, in CreateInput) (*models.Appointment, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if in.DurationMinutes <= 0 {
		return nil, apperrors.Invalid("duration_minutes", "must be positive")
	}
	if in.CreditsUsed < 0 {
		return nil, apperrors.Invalid("credits_used", "must not be negative")
	}
	if in.UsesCredits && in.CreditsUsed == 0 {
		in.CreditsUsed = 1
	}
	if !in.UsesCredits {
		in.CreditsUsed = 0
	}

	a := &models.Appointment{
		OrganizationID:  tc.OrganizationID,
		ProfessionalID:  in.ProfessionalID,
		ClientID:        in.ClientID,
		StudentID:       in.StudentID,
		State:           models.StateDraft,
		ScheduledAt:     in.ScheduledAt.UTC().Truncate(time.Second),
		DurationMinutes: in.DurationMinutes,
		Price:           in.Price,
		UsesCredits:     in.UsesCredits,
		CreditsUsed:     in.CreditsUsed,
		Notes:           in.Notes,
	}
	if err := s.authz.Check(tc.Actor, "create", a); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkParties(tx, tc, a); err != nil {
			return err
		}
		resolver := s.resolver.WithTx(tx)
		if _, err := resolver.LockProfessional(ctx, tc, a.ProfessionalID); err != nil {
			return err
		}
		start, end := a.Window()
		if err := resolver.ValidateCreation(ctx, tc, a.ProfessionalID, start, end); err != nil {
			return err
		}
		return tx.Create(a).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment created",
		zap.Uint("organization_id", tc.OrganizationID),
		zap.Uint("appointment_id", a.ID),
		zap.Uint("professional_id", a.ProfessionalID),
		zap.Time("scheduled_at", a.ScheduledAt),
	)
	return a, nil
}

// checkParties makes sure the client and student belong to the tenant and
// that the student is the client's dependent.
func (s *Service) checkParties(tx *gorm.DB, tc tenant.Context, a *models.Appointment) error {
	var client models.User
	if err := tc.Scope(tx).Select("id").First(&client, a.ClientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Invalid("client_id", "is not a user of this organization")
		}
		return err
	}
	if a.StudentID == nil {
		return nil
	}
	var student models.Student
	if err := tc.Scope(tx).First(&student, *a.StudentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Invalid("student_id", "is not a student of this organization")
		}
		return err
	}
	if student.GuardianID != a.ClientID {
		return apperrors.Invalid("student_id", "is not a dependent of the client")
	}
	return nil
}

// Get returns one appointment. Rows of other organizations read as missing.
func (s *Service) Get(ctx context.Context, tc tenant.Context, id uint) (*models.Appointment, error) {
	a, err := s.find(s.db.WithContext(ctx), tc, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(tc.Actor, "show", a); err != nil {
		return nil, err
	}
	return a, nil
}

type ListFilter struct {
	State          models.AppointmentState
	ProfessionalID uint
	From, To       time.Time
}

// List returns the appointments the actor may see, ordered by start.
func (s *Service) List(ctx context.Context, tc tenant.Context, f ListFilter) ([]models.Appointment, error) {
	if err := s.authz.Check(tc.Actor, "index", authz.Collection{Type: models.ResourceAppointments, OrganizationID: tc.OrganizationID}); err != nil {
		return nil, err
	}

	q := tc.Scope(s.db.WithContext(ctx)).Scopes(s.authz.Scope(tc.Actor, models.ResourceAppointments))
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.ProfessionalID != 0 {
		q = q.Where("professional_id = ?", f.ProfessionalID)
	}
	if !f.From.IsZero() {
		q = q.Where("scheduled_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("scheduled_at < ?", f.To.UTC())
	}

	var out []models.Appointment
	err := q.Order("scheduled_at").Find(&out).Error
	return out, err
}

func (s *Service) find(db *gorm.DB, tc tenant.Context, id uint, lock bool) (*models.Appointment, error) {
	q := tc.Scope(db)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var a models.Appointment
	if err := q.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Transition applies event to the appointment. Authorization, the guard,
// the state compare-and-set and any ledger movement share one transaction;
// queued jobs are handed off only after it commits.
func (s *Service) Transition(ctx context.Context, tc tenant.Context, id uint, event Event, metadata map[string]interface{}) (*models.Appointment, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	var (
		a    *models.Appointment
		step *Step
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		a, err = s.find(tx, tc, id, true)
		if err != nil {
			return err
		}
		// Whoever may see the appointment is told the event does not apply in
		// its state; anyone else only learns they are not allowed.
		if !CanTransition(a.State, event) && s.authz.Permits(tc.Actor, "show", a) {
			return apperrors.InvalidStateTransition{From: string(a.State), Event: string(event)}
		}
		if err := s.authz.Check(tc.Actor, string(event), a); err != nil {
			return err
		}
		if !CanTransition(a.State, event) {
			return apperrors.InvalidStateTransition{From: string(a.State), Event: string(event)}
		}

		env, err := s.env(ctx, tx, tc, a, event, metadata)
		if err != nil {
			return err
		}
		step, err = Plan(*a, event, env)
		if err != nil {
			return err
		}

		if step.Revalidate {
			resolver := s.resolver.WithTx(tx)
			if _, err := resolver.LockProfessional(ctx, tc, a.ProfessionalID); err != nil {
				return err
			}
			if err := resolver.Revalidate(ctx, tc, a); err != nil {
				return err
			}
		}

		changes := step.Changes
		changes["updated_at"] = env.Now.UTC()
		res := tc.Scope(tx).Model(&models.Appointment{}).
			Where("id = ? AND state = ?", a.ID, step.From).
			UpdateColumns(changes)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			current, err := s.find(tx, tc, id, false)
			if err != nil {
				return err
			}
			return apperrors.InvalidStateTransition{From: string(current.State), Event: string(event)}
		}

		if err := s.apply(ctx, tx, tc, a, step); err != nil {
			return err
		}

		a, err = s.find(tx, tc, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment transitioned",
		zap.Uint("organization_id", tc.OrganizationID),
		zap.Uint("appointment_id", a.ID),
		zap.String("event", string(event)),
		zap.String("from", string(step.From)),
		zap.String("to", string(step.To)),
		zap.Uint("actor_id", tc.Actor.UserID),
	)
	s.dispatch(ctx, step)
	return a, nil
}

func (s *Service) env(ctx context.Context, tx *gorm.DB, tc tenant.Context, a *models.Appointment, event Event, metadata map[string]interface{}) (Env, error) {
	env := Env{
		Now:           s.now(),
		Actor:         tc.Actor,
		PreConfirmTTL: s.cfg.PreConfirmTTL,
		RefundWindow:  s.cfg.RefundWindow,
		ReminderLead:  s.cfg.ReminderLead,
		Metadata:      metadata,
	}
	if event != EventCancel {
		return env, nil
	}

	org, err := s.resolver.WithTx(tx).Organization(ctx, tc)
	if err != nil {
		return env, err
	}
	if hours := org.SettingInt(models.SettingRefundWindowHours, -1); hours >= 0 {
		env.RefundWindow = time.Duration(hours) * time.Hour
	}
	env.Charged, err = s.ledger.WithTx(tx).ChargedFor(ctx, tc, a.ID)
	return env, err
}

// apply carries out the in-transaction effects of a step.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, tc tenant.Context, a *models.Appointment, step *Step) error {
	ledger := s.ledger.WithTx(tx)
	slots := s.slots.WithTx(tx)

	for _, e := range step.Effects {
		switch e := e.(type) {
		case DebitCredits:
			balance, err := ledger.Balance(ctx, tc, e.UserID)
			if err != nil {
				return err
			}
			if err := ledger.Lock(ctx, tc, balance); err != nil {
				return err
			}
			if _, err := ledger.Debit(ctx, tc, balance, e.Amount, a.ID); err != nil {
				return err
			}
		case RefundCredits:
			balance, err := ledger.Balance(ctx, tc, e.UserID)
			if err != nil {
				return err
			}
			if _, err := ledger.Refund(ctx, tc, balance, e.Amount, a.ID); err != nil {
				return err
			}
		case ClaimSlot:
			if err := slots.Claim(ctx, tc, a); err != nil {
				return err
			}
		case ReleaseSlot:
			if err := slots.Release(ctx, tc, a.ID); err != nil {
				return err
			}
		case EnqueueJob:
			// after commit
		default:
			return fmt.Errorf("unknown effect %T", e)
		}
	}
	return nil
}

// dispatch hands the step's jobs to the queue. Failures are logged and never
// undo the committed transition.
func (s *Service) dispatch(ctx context.Context, step *Step) {
	for _, e := range step.Effects {
		job, ok := e.(EnqueueJob)
		if !ok {
			continue
		}
		if err := s.queue.Enqueue(ctx, job.Name, job.Payload, job.Delay); err != nil {
			s.log.Warn("failed to enqueue job",
				zap.String("job", job.Name),
				zap.Any("payload", job.Payload),
				zap.Error(err),
			)
		}
	}
}

// Destroy soft-deletes an appointment. Only admins hold the permission.
func (s *Service) Destroy(ctx context.Context, tc tenant.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.find(tx, tc, id, true)
		if err != nil {
			return err
		}
		if err := s.authz.Check(tc.Actor, "destroy", a); err != nil {
			return err
		}
		if err := s.slots.WithTx(tx).Release(ctx, tc, a.ID); err != nil {
			return err
		}
		return tc.Scope(tx).Delete(&models.Appointment{}, a.ID).Error
	})
}

// SweepExpired cancels every pre-confirmed appointment past its expiration,
// across organizations, through the normal cancel path with a system actor.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	var expired []models.Appointment
	err := tenant.WithoutTenant(s.db.WithContext(ctx), "expire pre-confirmations").
		Select("id", "organization_id").
		Where("state = ? AND expires_at < ?", models.StatePreConfirmed, s.now().UTC()).
		Order("id").
		Find(&expired).Error
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, a := range expired {
		tc, err := tenant.New(a.OrganizationID, tenant.SystemActor(a.OrganizationID))
		if err != nil {
			return cancelled, err
		}
		_, err = s.Transition(ctx, tc, a.ID, EventCancel, map[string]interface{}{"reason": expiredReason})
		if err != nil {
			s.log.Warn("failed to expire appointment", zap.Uint("appointment_id", a.ID), zap.Error(err))
			continue
		}
		cancelled++
	}
	if cancelled > 0 {
		s.log.Info("expired pre-confirmations cancelled", zap.Int("count", cancelled))
	}
	return cancelled, nil
}
