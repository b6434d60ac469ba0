package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/notistore/internal/models"
	"github.com/charlesng35/notistore/internal/policy"
	"github.com/charlesng35/notistore/internal/services"
	"github.com/charlesng35/notistore/pkg/logger"
	"github.com/charlesng35/notistore/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
	log     *zap.Logger
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("notification handler: service is required")
	}
	return &NotificationHandler{
		service: service,
		log:     logger.WithModule("notifications"),
	}, nil
}

// List returns the caller's notifications, most recent first, with the unread count in meta.
func (h *NotificationHandler) List(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	input := services.ListNotificationsInput{
		UnreadOnly:     parseBoolQuery(c, "unread_only"),
		IncludeDeleted: parseBoolQuery(c, "include_deleted"),
		Limit:          parseIntQuery(c, "limit", 0),
		Offset:         parseIntQuery(c, "offset", 0),
	}

	items, err := h.service.List(requestContext(c), caller, input)
	if err != nil {
		h.fail(c, caller, "", err)
		return
	}
	unread, err := h.service.UnreadCount(requestContext(c), caller)
	if err != nil {
		h.fail(c, caller, "", err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Limit:  h.service.PageSize(input.Limit),
		Offset: max(0, input.Offset),
		Count:  len(items),
		Unread: unread,
	})
}

// UnreadCount returns the number of active unread notifications.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(requestContext(c), caller)
	if err != nil {
		h.fail(c, caller, "", err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": count})
}

// Get returns a single notification.
func (h *NotificationHandler) Get(c *gin.Context) {
	h.respond(c, func(caller policy.Caller, id string) (*models.Notification, error) {
		return h.service.Get(requestContext(c), caller, id)
	})
}

// Create stores a notification addressed to the user named in the payload.
func (h *NotificationHandler) Create(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var body services.CreateNotificationInput
	if !bindAndValidateAs(c, &body, services.ErrNotificationConstraint) {
		return
	}

	notification, err := h.service.Create(requestContext(c), caller, body)
	if err != nil {
		h.fail(c, caller, "", err)
		return
	}
	response.Success(c, http.StatusCreated, notification)
}

// Update edits the mutable fields of a notification.
func (h *NotificationHandler) Update(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var body services.UpdateNotificationInput
	if !bindAndValidateAs(c, &body, services.ErrNotificationConstraint) {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	notification, err := h.service.Update(requestContext(c), caller, id, body)
	if err != nil {
		h.fail(c, caller, id, err)
		return
	}
	response.Success(c, http.StatusOK, notification)
}

// MarkRead toggles a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.respond(c, func(caller policy.Caller, id string) (*models.Notification, error) {
		return h.service.MarkRead(requestContext(c), caller, id)
	})
}

// MarkUnread toggles a notification to unread.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.respond(c, func(caller policy.Caller, id string) (*models.Notification, error) {
		return h.service.MarkUnread(requestContext(c), caller, id)
	})
}

// MarkAllRead marks all active notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), caller)
	if err != nil {
		h.fail(c, caller, "", err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// SoftDelete hides a notification from default listings.
func (h *NotificationHandler) SoftDelete(c *gin.Context) {
	h.respond(c, func(caller policy.Caller, id string) (*models.Notification, error) {
		return h.service.SoftDelete(requestContext(c), caller, id)
	})
}

// Delete handles DELETE requests, which soft delete the notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	h.respond(c, func(caller policy.Caller, id string) (*models.Notification, error) {
		return h.service.Delete(requestContext(c), caller, id)
	})
}

func (h *NotificationHandler) respond(c *gin.Context, op func(policy.Caller, string) (*models.Notification, error)) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	notification, err := op(caller, id)
	if err != nil {
		h.fail(c, caller, id, err)
		return
	}
	response.Success(c, http.StatusOK, notification)
}

// fail renders err. A policy denial on an existing row is reported as not found so callers
// cannot probe for other users' notifications; the log keeps the two apart.
func (h *NotificationHandler) fail(c *gin.Context, caller policy.Caller, id string, err error) {
	switch {
	case id != "" && errors.Is(err, services.ErrNotificationAccessDenied):
		h.log.Warn("notification access denied",
			zap.String("notification_id", id),
			zap.String("caller_id", caller.ID),
			zap.String("path", c.FullPath()),
		)
		response.Error(c, services.ErrNotificationNotFound)
		return
	case errors.Is(err, services.ErrNotificationNotFound):
		h.log.Debug("notification not found",
			zap.String("notification_id", id),
			zap.String("caller_id", caller.ID),
		)
	case errors.Is(err, services.ErrNotificationConstraint),
		errors.Is(err, services.ErrNotificationAccessDenied),
		errors.Is(err, services.ErrDeliveryRateLimited):
	default:
		h.log.Error("notification request failed",
			zap.String("caller_id", caller.ID),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Error(c, err)
}
