// Notification status HTTP handlers.
//
// This file exposes the delivery-status ledger:
//   - POST /{channel}/status   (record a report; optional Idempotency-Key)
//   - GET  /status/history     (paginated, newest first)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-user-service/internal/domain"
	"github.com/tbourn/go-user-service/internal/http/middleware"
	"github.com/tbourn/go-user-service/internal/services"
)

// StatusReportRequest is the JSON payload for a status report.
type StatusReportRequest struct {
	// NotificationID is assigned by the sender (1–255 chars).
	NotificationID string `json:"notification_id" example:"notif-42"`
	// Status is one of pending, delivered, failed.
	Status string `json:"status"          example:"delivered"`
	// Error is required when Status is failed and ignored otherwise.
	Error *string `json:"error" example:"mailbox full"`
}

// StatusEventResponse is the public view of a ledger entry.
type StatusEventResponse struct {
	ID             string    `json:"id"              example:"01928c4e-8f2a-7b3c-9d4e-5f6a7b8c9d0e"`
	NotificationID string    `json:"notification_id" example:"notif-42"`
	Channel        string    `json:"notification_type" example:"email"`
	Status         string    `json:"status"          example:"delivered"`
	Error          *string   `json:"error"`
	Timestamp      time.Time `json:"timestamp"`
}

func newStatusEventResponse(ev *domain.NotificationStatusEvent) StatusEventResponse {
	return StatusEventResponse{
		ID:             ev.ID,
		NotificationID: ev.NotificationID,
		Channel:        ev.Channel,
		Status:         ev.Status,
		Error:          ev.Error,
		Timestamp:      ev.Timestamp,
	}
}

// RecordStatus godoc
// @ID          recordStatus
// @Summary     Record a delivery status
// @Description Appends a status report for the caller. A repeated Idempotency-Key on the same channel returns the original event.
// @Tags        Status
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       channel          path    string  true   "Notification channel"  Enums(email, push)
// @Param       Idempotency-Key  header  string  false  "Deduplicates retries"  example(report-7f3a)
// @Param       body             body    handlers.StatusReportRequest  true  "Report"
//
// @Success     201  {object} handlers.Envelope{data=handlers.StatusEventResponse}
// @Header      201  {string} Idempotent-Replayed  "true when an earlier result was returned"
// @Failure     400  {object} handlers.ErrorResponse "invalid_notification_type, invalid_status, missing_error or validation_failed"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /{channel}/status [post]
func (h *Handlers) RecordStatus(c *gin.Context) {
	channel := c.Param("channel")
	if !domain.ValidChannel(channel) {
		failService(c, services.ErrInvalidChannel)
		return
	}
	var req StatusReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "Please check your input")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	ev, replayed, err := h.statuses.Record(c.Request.Context(), middleware.UserID(c), services.StatusReport{
		Channel:        channel,
		NotificationID: req.NotificationID,
		Status:         req.Status,
		Error:          req.Error,
		IdempotencyKey: key,
	})
	if err != nil {
		failService(c, err)
		return
	}
	if replayed {
		middleware.MarkReplay(c)
	}
	ok(c, http.StatusCreated, "Notification status logged successfully", newStatusEventResponse(ev))
}

// StatusHistory godoc
// @ID          statusHistory
// @Summary     Delivery status history
// @Description Returns the caller's status events newest first. Unknown type values are ignored.
// @Tags        Status
// @Produce     json
// @Security    BearerAuth
//
// @Param       type       query  string  false  "Filter by channel"  Enums(email, push)
// @Param       page       query  int     false  "Page number"        minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"     minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.Envelope{data=[]handlers.StatusEventResponse}
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Router      /status/history [get]
func (h *Handlers) StatusHistory(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.statuses.History(c.Request.Context(), middleware.UserID(c), c.Query("type"), page, pageSize)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("store read failed, answering empty page")
		items, total = nil, 0
	}
	out := make([]StatusEventResponse, 0, len(items))
	for i := range items {
		out = append(out, newStatusEventResponse(&items[i]))
	}
	okPage(c, "Notification history retrieved successfully", out, newPaginationMeta(total, page, pageSize))
}
