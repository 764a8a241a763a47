// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users and their
// notification preferences.
//
// All functions accept a *gorm.DB handle so they compose inside transactions.
// Lookups that find nothing return ErrNotFound; updates that match no row
// return ErrNotFound; unique-email violations return ErrDuplicate.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-user-service/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique constraint violation (email, preference
// owner, or idempotency key).
var ErrDuplicate = errors.New("duplicate")

// CreateUserWithPreference inserts u and u.Preference in one transaction.
// IDs and timestamps must already be set by the caller.
func CreateUserWithPreference(ctx context.Context, db *gorm.DB, u *domain.User) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Preference").Create(u).Error; err != nil {
			return err
		}
		u.Preference.UserID = u.ID
		return tx.Create(&u.Preference).Error
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetUserByID loads a user (active or not) with its preference.
func GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Preload("Preference").
		Where("id = ?", id).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetActiveUserByID loads an active user with its preference.
func GetActiveUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Preload("Preference").
		Where("id = ? AND is_active = ?", id, true).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail loads a user by normalized email.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Preload("Preference").
		Where("email = ?", email).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListActiveUsers returns every active user, newest first.
func ListActiveUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Preload("Preference").
		Where("is_active = ?", true).
		Order("created_at desc").
		Order("id desc").
		Find(&out).Error
	return out, err
}

// UpdateUserColumns applies cols to an active user and bumps updated_at.
func UpdateUserColumns(ctx context.Context, db *gorm.DB, id string, cols map[string]any, now time.Time) error {
	if cols == nil {
		cols = map[string]any{}
	}
	cols["updated_at"] = now
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePreferenceColumns applies cols (email/push) to the user's preference.
func UpdatePreferenceColumns(ctx context.Context, db *gorm.DB, userID string, cols map[string]any, now time.Time) error {
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = now
	res := db.WithContext(ctx).
		Model(&domain.Preference{}).
		Where("user_id = ?", userID).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastLogin records a successful login.
func TouchLastLogin(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return UpdateUserColumns(ctx, db, id, map[string]any{"last_login": at}, at)
}

// DeactivateUser marks an active user inactive. Deactivating an already
// inactive or missing user returns ErrNotFound.
func DeactivateUser(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return UpdateUserColumns(ctx, db, id, map[string]any{"is_active": false}, now)
}

// isUniqueViolation recognizes unique-constraint errors across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
