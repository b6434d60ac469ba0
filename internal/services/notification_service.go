package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/notistore/internal/changefeed"
	"github.com/charlesng35/notistore/internal/database"
	"github.com/charlesng35/notistore/internal/models"
	"github.com/charlesng35/notistore/internal/policy"
	"github.com/charlesng35/notistore/pkg/logger"
	"github.com/charlesng35/notistore/pkg/metrics"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100

	// RetentionActor attributes purge events to the retention job.
	RetentionActor = "system:retention"
)

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID      string  `json:"user_id" validate:"required,notblank"`
	Type        string  `json:"type" validate:"required,notblank,max=255"`
	Content     string  `json:"content" validate:"required,notblank"`
	ReferenceID *string `json:"reference_id" validate:"omitempty,uuid"`
	Read        *bool   `json:"read"`
}

// UpdateNotificationInput carries the mutable fields of a notification. Nil fields are left as is.
type UpdateNotificationInput struct {
	Type           *string `json:"type" validate:"omitempty,notblank,max=255"`
	Content        *string `json:"content" validate:"omitempty,notblank"`
	ReferenceID    *string `json:"reference_id" validate:"omitempty,uuid"`
	ClearReference bool    `json:"clear_reference"`
	Read           *bool   `json:"read"`
}

// ListNotificationsInput defines filters for querying the caller's notifications.
type ListNotificationsInput struct {
	UnreadOnly     bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// NotificationServiceOption customises a NotificationService.
type NotificationServiceOption func(*NotificationService)

// WithRules replaces the default policy rule set.
func WithRules(rules *policy.RuleSet) NotificationServiceOption {
	return func(s *NotificationService) {
		if rules != nil {
			s.rules = rules
		}
	}
}

// WithPublisher sets the sink for committed change events.
func WithPublisher(publisher changefeed.Publisher) NotificationServiceOption {
	return func(s *NotificationService) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithDeliveryLimiter scopes cross-user deliveries per sender. System callers are exempt.
func WithDeliveryLimiter(limiter *DeliveryLimiter) NotificationServiceOption {
	return func(s *NotificationService) {
		s.limiter = limiter
	}
}

// WithClock overrides the time source used for created_at and deleted_at.
func WithClock(now func() time.Time) NotificationServiceOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithListLimits overrides the default and maximum page sizes.
func WithListLimits(defaultLimit, maxLimit int) NotificationServiceOption {
	return func(s *NotificationService) {
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
		if defaultLimit > 0 {
			s.defaultLimit = min(defaultLimit, s.maxLimit)
		}
	}
}

// NotificationService stores per-user notifications behind the row-level policy gate.
// Every operation evaluates the gate inside the transaction that reads or writes the row.
type NotificationService struct {
	db           *gorm.DB
	rules        *policy.RuleSet
	publisher    changefeed.Publisher
	limiter      *DeliveryLimiter
	now          func() time.Time
	defaultLimit int
	maxLimit     int
	log          *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB, opts ...NotificationServiceOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}

	svc := &NotificationService{
		db:           db,
		rules:        policy.DefaultRules(),
		publisher:    changefeed.Discard,
		now:          time.Now,
		defaultLimit: defaultListLimit,
		maxLimit:     maxListLimit,
		log:          logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create stores a notification addressed to input.UserID on behalf of caller.
func (s *NotificationService) Create(ctx context.Context, caller policy.Caller, input CreateNotificationInput) (notification *models.Notification, err error) {
	defer s.observe("create", &err)
	ctx = ensureContext(ctx)

	if !caller.Authenticated() {
		return nil, ErrNotificationAccessDenied
	}

	row, err := s.buildNotification(input)
	if err != nil {
		return nil, err
	}

	crossUser := row.UserID != caller.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BindCaller(tx, caller.ID); err != nil {
			return fmt.Errorf("bind caller: %w", err)
		}
		if err := s.authorize(policy.OperationInsert, caller, policy.Row{UserID: row.UserID}); err != nil {
			return err
		}

		var owners int64
		if err := tx.Model(&models.Profile{}).Where("id = ?", row.UserID).Count(&owners).Error; err != nil {
			return fmt.Errorf("check owner: %w", err)
		}
		if owners == 0 {
			return constraintViolation("user_id does not reference an existing profile")
		}

		// Only deliveries that would otherwise succeed spend the sender's budget.
		if crossUser && !caller.System && !s.limiter.Allow(caller.ID) {
			metrics.DeliveryThrottled.Inc()
			s.log.Warn("cross-user delivery throttled",
				zap.String("sender_id", caller.ID),
				zap.String("recipient_id", row.UserID),
			)
			return ErrDeliveryRateLimited
		}

		if err := tx.Create(row).Error; err != nil {
			if isConstraintError(err) {
				return ErrNotificationConstraint.WithInternal(err)
			}
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap("create notification", err)
	}

	if crossUser {
		s.log.Info("cross-user notification delivered",
			zap.String("notification_id", row.ID),
			zap.String("sender_id", caller.ID),
			zap.String("recipient_id", row.UserID),
			zap.Bool("system", caller.System),
		)
	}
	changefeed.Emit(ctx, s.publisher, changefeed.Inserted(row, caller.ID))
	return row, nil
}

// Get returns one notification readable by caller, including soft-deleted rows.
func (s *NotificationService) Get(ctx context.Context, caller policy.Caller, id string) (notification *models.Notification, err error) {
	defer s.observe("get", &err)
	ctx = ensureContext(ctx)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BindCaller(tx, caller.ID); err != nil {
			return fmt.Errorf("bind caller: %w", err)
		}
		row, err := s.load(tx, id, false)
		if err != nil {
			return err
		}
		if err := s.authorize(policy.OperationRead, caller, policy.Row{UserID: row.UserID}); err != nil {
			return err
		}
		notification = row
		return nil
	})
	if err != nil {
		return nil, s.wrap("get notification", err)
	}
	return notification, nil
}

// PageSize returns the number of rows List applies for a requested limit.
func (s *NotificationService) PageSize(limit int) int {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	return min(limit, s.maxLimit)
}

// List returns the caller's notifications, most recent first.
func (s *NotificationService) List(ctx context.Context, caller policy.Caller, input ListNotificationsInput) (items []models.Notification, err error) {
	defer s.observe("list", &err)
	ctx = ensureContext(ctx)

	if !caller.Authenticated() {
		return nil, ErrNotificationAccessDenied
	}

	limit := s.PageSize(input.Limit)

	var rows []models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BindCaller(tx, caller.ID); err != nil {
			return fmt.Errorf("bind caller: %w", err)
		}

		query := tx.Model(&models.Notification{}).Where("user_id = ?", caller.ID)
		if input.UnreadOnly {
			query = query.Where(map[string]any{"read": false})
		}
		if !input.IncludeDeleted {
			query = query.Where("deleted_at IS NULL")
		}
		return query.
			Order("created_at DESC").
			Order("id DESC").
			Limit(limit).
			Offset(max(0, input.Offset)).
			Find(&rows).Error
	})
	if err != nil {
		return nil, s.wrap("list notifications", err)
	}

	// The owner filter mirrors the read rule; evaluate it per row so custom rule sets still apply.
	items = rows[:0]
	for _, row := range rows {
		if s.rules.Evaluate(policy.OperationRead, caller, policy.Row{UserID: row.UserID}).Allowed {
			items = append(items, row)
		}
	}
	return items, nil
}

// UnreadCount counts the caller's active unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, caller policy.Caller) (count int64, err error) {
	defer s.observe("unread_count", &err)
	ctx = ensureContext(ctx)

	if !caller.Authenticated() {
		return 0, ErrNotificationAccessDenied
	}
	if err := s.authorize(policy.OperationRead, caller, policy.Row{UserID: caller.ID}); err != nil {
		return 0, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BindCaller(tx, caller.ID); err != nil {
			return fmt.Errorf("bind caller: %w", err)
		}
		return tx.Model(&models.Notification{}).
			Where("user_id = ?", caller.ID).
			Where(map[string]any{"read": false}).
			Where("deleted_at IS NULL").
			Count(&count).Error
	})
	if err != nil {
		return 0, s.wrap("count unread", err)
	}
	return count, nil
}

// Update edits the mutable fields of a notification owned by caller.
func (s *NotificationService) Update(ctx context.Context, caller policy.Caller, id string, input UpdateNotificationInput) (*models.Notification, error) {
	updates := map[string]any{}

	if input.Type != nil {
		value := strings.TrimSpace(*input.Type)
		if value == "" {
			return nil, constraintViolation("type must not be empty")
		}
		updates["type"] = value
	}
	if input.Content != nil {
		if strings.TrimSpace(*input.Content) == "" {
			return nil, constraintViolation("content must not be empty")
		}
		updates["content"] = *input.Content
	}
	switch {
	case input.ClearReference:
		updates["reference_id"] = nil
	case input.ReferenceID != nil:
		ref := strings.TrimSpace(*input.ReferenceID)
		if !isUUID(ref) {
			return nil, constraintViolation("reference_id must be a UUID")
		}
		updates["reference_id"] = ref
	}
	if input.Read != nil {
		updates["read"] = *input.Read
	}

	return s.mutate(ctx, "update", caller, id, policy.OperationUpdate, func(row *models.Notification) map[string]any {
		changed := map[string]any{}
		for column, value := range updates {
			if applyColumn(row, column, value) {
				changed[column] = value
			}
		}
		return changed
	})
}

// MarkRead sets the read flag on a notification owned by caller.
func (s *NotificationService) MarkRead(ctx context.Context, caller policy.Caller, id string) (*models.Notification, error) {
	return s.setRead(ctx, "mark_read", caller, id, true)
}

// MarkUnread clears the read flag on a notification owned by caller.
func (s *NotificationService) MarkUnread(ctx context.Context, caller policy.Caller, id string) (*models.Notification, error) {
	return s.setRead(ctx, "mark_unread", caller, id, false)
}

func (s *NotificationService) setRead(ctx context.Context, operation string, caller policy.Caller, id string, read bool) (*models.Notification, error) {
	return s.mutate(ctx, operation, caller, id, policy.OperationUpdate, func(row *models.Notification) map[string]any {
		if row.Read == read {
			return nil
		}
		row.Read = read
		return map[string]any{"read": read}
	})
}

// MarkAllRead marks every active unread notification of caller as read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, caller policy.Caller) (updated int64, err error) {
	defer s.observe("mark_all_read", &err)
	ctx = ensureContext(ctx)

	if !caller.Authenticated() {
		return 0, ErrNotificationAccessDenied
	}

	var events []changefeed.Event
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BindCaller(tx, caller.ID); err != nil {
			return fmt.Errorf("bind caller: %w", err)
		}

		var rows []models.Notification
		if err := lockForUpdate(tx).
			Where("user_id = ?", caller.ID).
			Where(map[string]any{"read": false}).
			Where("deleted_at IS NULL").
			Order("created_at DESC").
			Find(&rows).Error; err != nil {
			return fmt.Errorf("load unread: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, 0, len(rows))
		for i := range rows {
			if err := s.authorize(policy.OperationUpdate, caller, policy.Row{UserID: rows[i].UserID}); err != nil {
				return err
			}
			ids = append(ids, rows[i].ID)
		}

		result := tx.Model(&models.Notification{}).Where("id IN ?", ids).Updates(map[string]any{"read": true})
		if result.Error != nil {
			return fmt.Errorf("mark all read: %w", result.Error)
		}
		updated = result.RowsAffected

		for i := range rows {
			before := rows[i]
			after := rows[i]
			after.Read = true
			events = append(events, changefeed.Updated(&before, &after, caller.ID))
		}
		return nil
	})
	if err != nil {
		return 0, s.wrap("mark all read", err)
	}

	changefeed.Emit(ctx, s.publisher, events...)
	return updated, nil
}

// SoftDelete marks a notification owned by caller as deleted. Repeating it leaves the row unchanged.
func (s *NotificationService) SoftDelete(ctx context.Context, caller policy.Caller, id string) (*models.Notification, error) {
	return s.mutate(ctx, "soft_delete", caller, id, policy.OperationUpdate, s.markDeleted)
}

// Delete handles a delete request. It is gated by the delete rule but, as rows are only
// hard-destroyed by profile cascade or retention, it performs a soft delete.
func (s *NotificationService) Delete(ctx context.Context, caller policy.Caller, id string) (*models.Notification, error) {
	return s.mutate(ctx, "delete", caller, id, policy.OperationDelete, s.markDeleted)
}

func (s *NotificationService) markDeleted(row *models.Notification) map[string]any {
	if row.DeletedAt != nil {
		return nil
	}
	now := s.timestamp()
	row.DeletedAt = &now
	return map[string]any{"deleted_at": now}
}

// PurgeSoftDeleted hard-deletes rows soft-deleted before cutoff, at most batch rows per call.
// It runs on the retention path, outside caller policy, and never touches active rows.
func (s *NotificationService) PurgeSoftDeleted(ctx context.Context, cutoff time.Time, batch int) (purged int64, err error) {
	defer s.observe("purge", &err)
	ctx = ensureContext(ctx)
	if batch <= 0 {
		batch = 500
	}

	var events []changefeed.Event
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.Notification
		if err := lockForUpdate(tx).
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff.UTC()).
			Order("deleted_at ASC").
			Limit(batch).
			Find(&rows).Error; err != nil {
			return fmt.Errorf("load expired: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, 0, len(rows))
		for i := range rows {
			ids = append(ids, rows[i].ID)
		}
		result := tx.Where("id IN ?", ids).Where("deleted_at IS NOT NULL").Delete(&models.Notification{})
		if result.Error != nil {
			return fmt.Errorf("purge: %w", result.Error)
		}
		purged = result.RowsAffected

		for i := range rows {
			events = append(events, changefeed.Deleted(&rows[i], RetentionActor))
		}
		return nil
	})
	if err != nil {
		return 0, s.wrap("purge soft-deleted", err)
	}

	if purged > 0 {
		metrics.PurgedNotifications.Add(float64(purged))
		s.log.Info("purged soft-deleted notifications", zap.Int64("count", purged), zap.Time("cutoff", cutoff))
	}
	changefeed.Emit(ctx, s.publisher, events...)
	return purged, nil
}

// mutate loads the row for update, evaluates op for caller, applies the change and publishes
// an UPDATE event after commit. apply returns the changed columns; an empty result is a no-op.
func (s *NotificationService) mutate(
	ctx context.Context,
	operation string,
	caller policy.Caller,
	id string,
	op policy.Operation,
	apply func(row *models.Notification) map[string]any,
) (notification *models.Notification, err error) {
	defer s.observe(operation, &err)
	ctx = ensureContext(ctx)

	var event *changefeed.Event
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BindCaller(tx, caller.ID); err != nil {
			return fmt.Errorf("bind caller: %w", err)
		}

		row, err := s.load(tx, id, true)
		if err != nil {
			return err
		}
		if err := s.authorize(op, caller, policy.Row{UserID: row.UserID}); err != nil {
			return err
		}

		before := *row
		changes := apply(row)
		notification = row
		if len(changes) == 0 {
			return nil
		}

		if err := tx.Model(&models.Notification{}).Where("id = ?", row.ID).Updates(changes).Error; err != nil {
			if isConstraintError(err) {
				return ErrNotificationConstraint.WithInternal(err)
			}
			return fmt.Errorf("update: %w", err)
		}

		ev := changefeed.Updated(&before, row, caller.ID)
		event = &ev
		return nil
	})
	if err != nil {
		return nil, s.wrap(strings.ReplaceAll(operation, "_", " "), err)
	}

	if event != nil {
		changefeed.Emit(ctx, s.publisher, *event)
	}
	return notification, nil
}

func (s *NotificationService) load(tx *gorm.DB, id string, forUpdate bool) (*models.Notification, error) {
	id = strings.TrimSpace(id)
	if !isUUID(id) {
		return nil, ErrNotificationNotFound
	}

	query := tx
	if forUpdate {
		query = lockForUpdate(tx)
	}

	var row models.Notification
	if err := query.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("load: %w", err)
	}
	return &row, nil
}

// lockForUpdate adds FOR UPDATE on dialects that support it. SQLite serialises writers instead.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if database.SupportsRowLocking(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (s *NotificationService) authorize(op policy.Operation, caller policy.Caller, row policy.Row) error {
	decision := s.rules.Evaluate(op, caller, row)
	if decision.Allowed {
		metrics.PolicyDecisions.WithLabelValues(string(op), "allow").Inc()
		return nil
	}

	metrics.PolicyDecisions.WithLabelValues(string(op), "deny").Inc()
	s.log.Debug("policy denied operation",
		zap.String("operation", string(op)),
		zap.String("caller_id", caller.ID),
		zap.String("owner_id", row.UserID),
	)
	return ErrNotificationAccessDenied
}

func (s *NotificationService) buildNotification(input CreateNotificationInput) (*models.Notification, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, constraintViolation("user_id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, constraintViolation("type is required")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, constraintViolation("content is required")
	}

	row := &models.Notification{
		UserID:    userID,
		Type:      notificationType,
		Content:   input.Content,
		CreatedAt: s.timestamp(),
	}
	if ref := trimmedPtr(input.ReferenceID); ref != nil && *ref != "" {
		if !isUUID(*ref) {
			return nil, constraintViolation("reference_id must be a UUID")
		}
		row.ReferenceID = ref
	}
	if input.Read != nil {
		row.Read = *input.Read
	}
	return row, nil
}

// timestamp truncates to microseconds, the finest precision every supported dialect stores.
func (s *NotificationService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// wrap keeps service sentinels intact and annotates infrastructure failures.
func (s *NotificationService) wrap(action string, err error) error {
	switch {
	case errors.Is(err, ErrNotificationConstraint),
		errors.Is(err, ErrNotificationAccessDenied),
		errors.Is(err, ErrNotificationNotFound),
		errors.Is(err, ErrDeliveryRateLimited):
		return err
	default:
		return fmt.Errorf("notification service: %s: %w", action, err)
	}
}

func (s *NotificationService) observe(operation string, err *error) {
	metrics.NotificationOperations.WithLabelValues(operation, metrics.Result(*err)).Inc()
}

func applyColumn(row *models.Notification, column string, value any) bool {
	switch column {
	case "type":
		v := value.(string)
		if row.Type == v {
			return false
		}
		row.Type = v
	case "content":
		v := value.(string)
		if row.Content == v {
			return false
		}
		row.Content = v
	case "reference_id":
		if value == nil {
			if row.ReferenceID == nil {
				return false
			}
			row.ReferenceID = nil
			return true
		}
		v := value.(string)
		if row.ReferenceID != nil && *row.ReferenceID == v {
			return false
		}
		row.ReferenceID = &v
	case "read":
		v := value.(bool)
		if row.Read == v {
			return false
		}
		row.Read = v
	default:
		return false
	}
	return true
}
