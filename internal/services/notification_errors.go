package services

import (
	"net/http"

	apperrors "github.com/charlesng35/notistore/pkg/errors"
)

var (
	// ErrNotificationConstraint reports a missing required field or an unknown owner profile.
	ErrNotificationConstraint = apperrors.New("NOTIFICATION_CONSTRAINT_VIOLATION", "Notification violates a data constraint", http.StatusUnprocessableEntity)
	// ErrNotificationAccessDenied reports that no policy rule granted the operation.
	ErrNotificationAccessDenied = apperrors.New("NOTIFICATION_ACCESS_DENIED", "Access to notification denied", http.StatusForbidden)
	// ErrNotificationNotFound reports that the targeted notification does not exist.
	ErrNotificationNotFound = apperrors.New("NOTIFICATION_NOT_FOUND", "Notification not found", http.StatusNotFound)
	// ErrDeliveryRateLimited reports that a sender exceeded its cross-user delivery budget.
	ErrDeliveryRateLimited = apperrors.ErrRateLimit.WithMessage("Too many notifications delivered to other users, please slow down")

	// ErrProfileNotFound reports that the targeted profile does not exist or is not the caller's.
	ErrProfileNotFound = apperrors.New("PROFILE_NOT_FOUND", "Profile not found", http.StatusNotFound)
	// ErrProfileInvalid reports invalid profile input.
	ErrProfileInvalid = apperrors.New("PROFILE_INVALID", "Profile input is invalid", http.StatusUnprocessableEntity)
	// ErrProfileConflict reports that a profile with the requested id already exists.
	ErrProfileConflict = apperrors.New("PROFILE_CONFLICT", "Profile already exists", http.StatusConflict)
)

func constraintViolation(message string) error {
	return ErrNotificationConstraint.WithMessage(message)
}
