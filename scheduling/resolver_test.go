package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestWithinRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside", monday(10, 0), monday(11, 0), true},
		{"touches both edges", monday(9, 0), monday(17, 0), true},
		{"ends at close", monday(16, 0), monday(17, 0), true},
		{"runs past close", monday(16, 30), monday(17, 30), false},
		{"starts before open", monday(8, 30), monday(9, 30), false},
		{"other weekday", monday(10, 0).Add(24 * time.Hour), monday(11, 0).Add(24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.resolver.WithinRules(ctx, f.tc, professionalID, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestWithinRulesUsesOrganizationTimeZone(t *testing.T) {
	f := newFixture(t, datatypes.JSONMap{models.SettingTimeZone: "America/Sao_Paulo"})
	ctx := context.Background()

	// 10:00 in Sao Paulo is 13:00 UTC.
	ok, err := f.resolver.WithinRules(ctx, f.tc, professionalID, monday(13, 0), monday(14, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.resolver.WithinRules(ctx, f.tc, professionalID, monday(10, 0), monday(11, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithinRulesSkipsInactiveRules(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.tc.Scope(f.db).Model(&models.AvailabilityRule{}).Where("professional_id = ?", professionalID).
		UpdateColumn("active", false).Error)

	ok, err := f.resolver.WithinRules(context.Background(), f.tc, professionalID, monday(10, 0), monday(11, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindConflictsMatchesHalfOpenOverlap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	existing := f.book(t, monday(10, 0), 60, models.StateConfirmed)
	b1, b2 := existing.Window()

	windows := [][2]time.Time{
		{monday(9, 0), monday(10, 0)},
		{monday(11, 0), monday(12, 0)},
		{monday(10, 30), monday(11, 30)},
		{monday(9, 30), monday(10, 30)},
		{monday(9, 0), monday(12, 0)},
		{monday(10, 15), monday(10, 45)},
		{monday(10, 0), monday(11, 0)},
		{monday(10, 59), monday(11, 0)},
	}
	for _, w := range windows {
		a1, a2 := w[0], w[1]
		conflicts, err := f.resolver.FindConflicts(ctx, f.tc, professionalID, a1, a2, 0)
		require.NoError(t, err)

		want := a1.Before(b2) && b1.Before(a2)
		assert.Equal(t, want, len(conflicts) == 1, "window %s-%s", a1.Format("15:04"), a2.Format("15:04"))
		if want {
			assert.Equal(t, existing.ID, conflicts[0].ID)
		}
	}
}

func TestFindConflictsIgnoresNonBlockingAndForeignRows(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.book(t, monday(10, 0), 60, models.StateDraft)
	f.book(t, monday(10, 0), 60, models.StateCancelled)
	require.NoError(t, f.db.Create(&models.Appointment{
		OrganizationID: f.tc.OrganizationID + 1, ProfessionalID: professionalID, ClientID: 4,
		State: models.StateConfirmed, ScheduledAt: monday(10, 0), DurationMinutes: 60,
	}).Error)

	conflicts, err := f.resolver.FindConflicts(ctx, f.tc, professionalID, monday(10, 0), monday(11, 0), 0)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	held := f.book(t, monday(10, 0), 60, models.StatePreConfirmed)
	conflicts, err = f.resolver.FindConflicts(ctx, f.tc, professionalID, monday(10, 0), monday(11, 0), held.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestFindConflictsRejectsEmptyWindow(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.resolver.FindConflicts(context.Background(), f.tc, professionalID, monday(10, 0), monday(10, 0), 0)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.resolver.FindConflicts(context.Background(), f.tc, professionalID, monday(10, 0), monday(9, 0), 0)
	assert.True(t, apperrors.IsValidation(err))
}

func TestValidateCreation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	existing := f.book(t, monday(10, 0), 60, models.StateConfirmed)

	err := f.resolver.ValidateCreation(ctx, f.tc, professionalID, now.Add(-time.Hour), now)
	assert.True(t, apperrors.IsValidation(err), "past")

	err = f.resolver.ValidateCreation(ctx, f.tc, professionalID, now.Add(time.Hour), now.Add(2*time.Hour))
	assert.True(t, apperrors.IsValidation(err), "inside minimum advance")

	err = f.resolver.ValidateCreation(ctx, f.tc, professionalID, monday(11, 0), monday(11, 0))
	assert.True(t, apperrors.IsValidation(err), "empty window")

	err = f.resolver.ValidateCreation(ctx, f.tc, professionalID, monday(18, 0), monday(19, 0))
	var conflict apperrors.SchedulingConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "professional unavailable", conflict.Reason)

	err = f.resolver.ValidateCreation(ctx, f.tc, professionalID, monday(10, 30), monday(11, 30))
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []uint{existing.ID}, conflict.ConflictingIDs)

	assert.NoError(t, f.resolver.ValidateCreation(ctx, f.tc, professionalID, monday(11, 0), monday(12, 0)))
}

func TestValidateCreationHonoursOrganizationAdvance(t *testing.T) {
	f := newFixture(t, datatypes.JSONMap{models.SettingMinAdvanceHours: 0})
	ctx := context.Background()

	// Shift the clock to Monday morning so a booking one hour out is inside
	// the rules.
	r := f.resolver.WithClock(func() time.Time { return monday(9, 0) })
	assert.NoError(t, r.ValidateCreation(ctx, f.tc, professionalID, monday(10, 0), monday(11, 0)))

	f2 := newFixture(t, datatypes.JSONMap{models.SettingMinAdvanceHours: 48})
	err := f2.resolver.ValidateCreation(ctx, f2.tc, professionalID, monday(10, 0), monday(11, 0))
	assert.True(t, apperrors.IsValidation(err))
}

func TestRevalidateSkipsCreationRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Already in the past relative to the clock, still valid to re-check.
	a := f.book(t, monday(10, 0), 60, models.StatePreConfirmed)
	r := f.resolver.WithClock(func() time.Time { return monday(12, 0) })
	assert.NoError(t, r.Revalidate(ctx, f.tc, &a))

	f.book(t, monday(10, 30), 60, models.StateConfirmed)
	assert.True(t, apperrors.IsConflict(r.Revalidate(ctx, f.tc, &a)))
}

func TestIsAvailable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.book(t, monday(10, 0), 60, models.StateConfirmed)

	ok, err := f.resolver.IsAvailable(ctx, f.tc, professionalID, monday(11, 0), monday(12, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.resolver.IsAvailable(ctx, f.tc, professionalID, monday(10, 30), monday(11, 30))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.resolver.IsAvailable(ctx, f.tc, professionalID, monday(17, 0), monday(18, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockProfessional(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.resolver.LockProfessional(ctx, f.tc, professionalID)
	require.NoError(t, err)
	assert.Equal(t, professionalID, p.UserID)

	_, err = f.resolver.LockProfessional(ctx, f.tc, 999)
	assert.True(t, apperrors.IsValidation(err))

	other, err := tenant.New(f.tc.OrganizationID+1, tenant.Actor{UserID: 1, OrganizationID: f.tc.OrganizationID + 1})
	require.NoError(t, err)
	_, err = f.resolver.LockProfessional(ctx, other, professionalID)
	assert.True(t, apperrors.IsValidation(err))
}
