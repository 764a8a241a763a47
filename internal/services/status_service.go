// Package services – StatusService
//
// StatusService records delivery-status reports from the external
// notification sender into an append-only ledger and serves each user's
// history newest first. Reports carrying an Idempotency-Key are recorded at
// most once per (user, channel, key) within the configured window; a retry
// gets the original event back.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-user-service/internal/domain"
	"github.com/tbourn/go-user-service/internal/repo"
	"github.com/tbourn/go-user-service/internal/utils"
)

const maxNotificationIDLen = 255

// StatusReport is one delivery-status report.
type StatusReport struct {
	Channel        string
	NotificationID string
	Status         string
	Error          *string
	// IdempotencyKey is optional.
	IdempotencyKey string
}

// StatusService manages the notification status ledger.
type StatusService struct {
	DB *gorm.DB

	// IdempotencyTTL bounds how long a key deduplicates retries.
	IdempotencyTTL time.Duration
	// Now is the clock for event timestamps. Tests may replace it.
	Now func() time.Time
}

// NewStatusService constructs a StatusService.
func NewStatusService(db *gorm.DB, idemTTL time.Duration) *StatusService {
	return &StatusService{DB: db, IdempotencyTTL: idemTTL, Now: time.Now}
}

// Record validates r and appends it for userID. replayed reports whether the
// event was returned from an earlier request with the same idempotency key.
func (s *StatusService) Record(ctx context.Context, userID string, r StatusReport) (ev *domain.NotificationStatusEvent, replayed bool, err error) {
	ctx, span := otel.Tracer("services/StatusService").Start(ctx, "Record",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("notification.channel", r.Channel),
			attribute.String("notification.status", r.Status),
		),
	)
	defer span.End()

	ev, err = s.buildEvent(userID, r)
	if err != nil {
		return nil, false, err
	}

	key := strings.TrimSpace(r.IdempotencyKey)
	if key == "" {
		if err := repo.CreateStatusEvent(ctx, s.DB, ev); err != nil {
			return nil, false, err
		}
		return ev, false, nil
	}

	var prior *domain.NotificationStatusEvent
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := repo.GetIdempotency(ctx, tx, userID, r.Channel, key, ev.Timestamp)
		if err == nil {
			prior, err = repo.GetStatusEvent(ctx, tx, rec.EventID, userID)
			return err
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := repo.DeleteExpiredIdempotency(ctx, tx, userID, r.Channel, key, ev.Timestamp); err != nil {
			return err
		}
		if err := repo.CreateStatusEvent(ctx, tx, ev); err != nil {
			return err
		}
		_, err = repo.CreateIdempotency(ctx, tx, userID, r.Channel, key, ev.ID, http.StatusCreated, s.IdempotencyTTL, ev.Timestamp)
		return err
	})
	switch {
	case err == nil && prior != nil:
		span.SetAttributes(attribute.Bool("idempotency.replay", true))
		return prior, true, nil
	case err == nil:
		return ev, false, nil
	case errors.Is(err, repo.ErrDuplicate):
		// A concurrent request won the key; its event is the answer.
		rec, gerr := repo.GetIdempotency(ctx, s.DB, userID, r.Channel, key, ev.Timestamp)
		if gerr != nil {
			return nil, false, gerr
		}
		prior, gerr = repo.GetStatusEvent(ctx, s.DB, rec.EventID, userID)
		if gerr != nil {
			return nil, false, gerr
		}
		return prior, true, nil
	default:
		return nil, false, err
	}
}

// buildEvent validates r and fills server-assigned fields.
func (s *StatusService) buildEvent(userID string, r StatusReport) (*domain.NotificationStatusEvent, error) {
	if !domain.ValidChannel(r.Channel) {
		return nil, ErrInvalidChannel
	}
	nid := strings.TrimSpace(r.NotificationID)
	if nid == "" {
		return nil, invalid("notification_id is required")
	}
	if len(nid) > maxNotificationIDLen {
		return nil, invalid("notification_id is too long")
	}
	if !domain.ValidStatus(r.Status) {
		return nil, ErrInvalidStatus
	}

	var errText *string
	if r.Status == domain.StatusFailed {
		if r.Error == nil || strings.TrimSpace(*r.Error) == "" {
			return nil, ErrMissingErrorForFailed
		}
		e := strings.TrimSpace(*r.Error)
		errText = &e
	}
	// error text on pending/delivered is dropped

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &domain.NotificationStatusEvent{
		ID:             id.String(),
		NotificationID: nid,
		UserID:         userID,
		Channel:        r.Channel,
		Status:         r.Status,
		Error:          errText,
		Timestamp:      s.Now().UTC(),
	}, nil
}

// History returns a page of userID's events, newest first, and the total.
// An empty or unrecognized channel means all channels.
func (s *StatusService) History(ctx context.Context, userID, channel string, page, pageSize int) ([]domain.NotificationStatusEvent, int64, error) {
	ctx, span := otel.Tracer("services/StatusService").Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = utils.ClampPage(page, pageSize)
	if !domain.ValidChannel(channel) {
		channel = ""
	}
	offset := utils.Offset(page, pageSize)

	total, err := repo.CountStatusEvents(ctx, s.DB, userID, channel)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.NotificationStatusEvent{}, 0, nil
	}

	items, err := repo.ListStatusEventsPage(ctx, s.DB, userID, channel, offset, pageSize)
	return items, total, err
}
