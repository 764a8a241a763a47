// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only notification status
// ledger. Rows are only ever inserted; there is no update or delete path.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-user-service/internal/domain"
)

// CreateStatusEvent appends ev to the ledger.
func CreateStatusEvent(ctx context.Context, db *gorm.DB, ev *domain.NotificationStatusEvent) error {
	return db.WithContext(ctx).Omit("User").Create(ev).Error
}

// GetStatusEvent loads one event owned by userID.
func GetStatusEvent(ctx context.Context, db *gorm.DB, id, userID string) (*domain.NotificationStatusEvent, error) {
	var ev domain.NotificationStatusEvent
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// statusScope filters by owner and, when channel is non-empty, by channel.
func statusScope(db *gorm.DB, userID, channel string) *gorm.DB {
	q := db.Model(&domain.NotificationStatusEvent{}).Where("user_id = ?", userID)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	return q
}

// CountStatusEvents returns the number of events for userID (and channel).
func CountStatusEvents(ctx context.Context, db *gorm.DB, userID, channel string) (int64, error) {
	var total int64
	err := statusScope(db.WithContext(ctx), userID, channel).Count(&total).Error
	return total, err
}

// ListStatusEventsPage returns a page of events, newest first. Events sharing
// a timestamp are ordered by id, which is time-ordered.
func ListStatusEventsPage(ctx context.Context, db *gorm.DB, userID, channel string, offset, limit int) ([]domain.NotificationStatusEvent, error) {
	var out []domain.NotificationStatusEvent
	err := statusScope(db.WithContext(ctx), userID, channel).
		Order("timestamp desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
