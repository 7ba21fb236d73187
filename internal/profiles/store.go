// Package profiles remembers the delay and volume last used on each output
// device in a small sqlite database.
package profiles

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
)

// Profile is the stored state of one output device.
type Profile struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	DeviceName string    `gorm:"uniqueIndex;size:255;not null" json:"device"`
	DelayMs    int       `json:"delay_ms"`
	Volume     float64   `json:"volume"`
	Sessions   int       `json:"sessions"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName pins the table name.
func (Profile) TableName() string { return "device_profiles" }

// Store persists profiles.
type Store struct {
	db *gorm.DB
}

// GetLogger returns the profiles module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("profiles")
}

// Open opens or creates the database at path.
func Open(path string, debug bool) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("profiles").
				Category(errors.CategoryFileIO).
				FileContext(path).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger(GetLogger(), debug)})
	if err != nil {
		return nil, errors.New(err).
			Component("profiles").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			FileContext(path).
			Build()
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		_ = closeDB(db)
		return nil, errors.New(err).
			Component("profiles").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}
	return &Store{db: db}, nil
}

// Lookup returns the profile of device. ok is false when none is stored.
func (s *Store) Lookup(device string) (Profile, bool, error) {
	var p Profile
	err := s.db.Where("device_name = ?", device).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, errors.New(err).
			Component("profiles").
			Category(errors.CategoryDatabase).
			Context("operation", "lookup").
			DeviceContext("playback", device).
			Build()
	}
	return p, true, nil
}

// Save stores the delay and volume used on device and counts the session.
func (s *Store) Save(device string, delayMs int, volume float64) error {
	p := &Profile{
		DeviceName: device,
		DelayMs:    delayMs,
		Volume:     volume,
		Sessions:   1,
		UpdatedAt:  time.Now(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"delay_ms":   delayMs,
			"volume":     volume,
			"sessions":   gorm.Expr("sessions + 1"),
			"updated_at": p.UpdatedAt,
		}),
	}).Create(p).Error
	if err != nil {
		return errors.New(err).
			Component("profiles").
			Category(errors.CategoryDatabase).
			Context("operation", "save").
			DeviceContext("playback", device).
			Build()
	}
	return nil
}

// List returns every profile, most recently used first.
func (s *Store) List() ([]Profile, error) {
	var out []Profile
	if err := s.db.Order("updated_at DESC").Find(&out).Error; err != nil {
		return nil, errors.New(err).
			Component("profiles").
			Category(errors.CategoryDatabase).
			Context("operation", "list").
			Build()
	}
	return out, nil
}

// Delete removes the profile of device.
func (s *Store) Delete(device string) error {
	res := s.db.Where("device_name = ?", device).Delete(&Profile{})
	if res.Error != nil {
		return errors.New(res.Error).
			Component("profiles").
			Category(errors.CategoryDatabase).
			Context("operation", "delete").
			Build()
	}
	if res.RowsAffected == 0 {
		return errors.Newf("no profile for device %q", device).
			Component("profiles").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return closeDB(s.db)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
