package db

import (
	"fmt"

	"github.com/meinhoongagan/clinic-booking/models"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the booking core owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.Role{},
		&models.UserRole{},
		&models.Student{},
		&models.Professional{},
		&models.AvailabilityRule{},
		&models.TimeSlot{},
		&models.Appointment{},
		&models.CreditBalance{},
		&models.CreditTransaction{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
