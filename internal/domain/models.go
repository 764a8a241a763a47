// Package domain defines the persistence models for users, their notification
// preferences, and the notification delivery-status ledger. These types are
// mapped with GORM and form the core data layer of the user service.
package domain

import (
	"time"
)

// User is an account holder. Email is stored case-normalized and is unique
// across active and inactive users. The ID never changes once assigned.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: normalized login identifier (unique index).
//   - Name: display name.
//   - PasswordHash: bcrypt hash; never serialized.
//   - PushToken: optional device token for push delivery.
//   - IsActive: deactivated users cannot log in or authenticate tokens.
//   - LastLogin: set on each successful login.
//   - Preference: the one-to-one notification preference row.
type User struct {
	ID           string     `json:"id"         gorm:"type:char(36);primaryKey"`
	Email        string     `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	Name         string     `json:"name"       gorm:"type:varchar(255);not null"`
	PasswordHash string     `json:"-"          gorm:"type:varchar(255);not null"`
	PushToken    *string    `json:"push_token" gorm:"type:text"`
	IsActive     bool       `json:"is_active"  gorm:"not null;index"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`

	// Preference is created in the same transaction as the user and removed
	// with it.
	Preference Preference `json:"preferences" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Preference holds per-channel notification opt-ins. It is the single source
// of truth for preferences; User carries no copies of these flags.
type Preference struct {
	ID        string    `json:"-"     gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"-"     gorm:"type:char(36);not null;uniqueIndex:ux_preferences_user"`
	Email     bool      `json:"email" gorm:"not null"`
	Push      bool      `json:"push"  gorm:"not null"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the database table name for Preference.
func (Preference) TableName() string { return "user_preferences" }

// NotificationStatusEvent is one immutable entry of the delivery-status
// ledger. The same external NotificationID may appear many times, one row
// per reported transition (e.g. pending then delivered).
//
// Fields:
//   - ID: UUIDv7 (time-ordered) primary key; breaks timestamp ties.
//   - NotificationID: identifier assigned by the external sender.
//   - UserID: owner of the event (the authenticated reporter).
//   - Channel: "email" or "push".
//   - Status: "pending", "delivered" or "failed".
//   - Error: failure detail; present only when Status is "failed".
//   - Timestamp: assigned by the server at insert.
type NotificationStatusEvent struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	NotificationID string    `json:"notification_id" gorm:"type:varchar(255);not null;index:idx_status_notification"`
	UserID         string    `json:"user_id"         gorm:"type:char(36);not null;index:idx_status_user_time,priority:1"`
	Channel        string    `json:"channel"         gorm:"type:varchar(20);not null;check:channel IN ('email','push')"`
	Status         string    `json:"status"          gorm:"type:varchar(20);not null;check:status IN ('pending','delivered','failed')"`
	Error          *string   `json:"error"           gorm:"type:text"`
	Timestamp      time.Time `json:"timestamp"       gorm:"not null;index:idx_status_user_time,priority:2"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for NotificationStatusEvent.
func (NotificationStatusEvent) TableName() string { return "notification_status_logs" }
