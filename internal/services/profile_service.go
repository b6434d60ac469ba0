package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/changefeed"
	"github.com/charlesng35/notistore/internal/database"
	"github.com/charlesng35/notistore/internal/models"
	"github.com/charlesng35/notistore/internal/policy"
	"github.com/charlesng35/notistore/pkg/logger"
)

const maxPreferenceLength = 64

// CreateProfileInput describes a profile provisioned by the identity provider.
type CreateProfileInput struct {
	ID              string `json:"id" validate:"omitempty,uuid"`
	DisplayName     string `json:"display_name" validate:"max=255"`
	Email           string `json:"email" validate:"omitempty,email,max=255"`
	ThemePreference string `json:"theme_preference" validate:"omitempty,notblank,max=64"`
	ColorTheme      string `json:"color_theme" validate:"omitempty,notblank,max=64"`
}

// UpdatePreferencesInput carries presentation preferences. Nil fields are left as is.
type UpdatePreferencesInput struct {
	ThemePreference *string `json:"theme_preference" validate:"omitempty,notblank,max=64"`
	ColorTheme      *string `json:"color_theme" validate:"omitempty,notblank,max=64"`
}

// ProfileService hosts the profile records notifications reference. Destroying a profile
// cascades to every notification addressed to it.
type ProfileService struct {
	db        *gorm.DB
	publisher changefeed.Publisher
	log       *zap.Logger
}

// NewProfileService constructs a ProfileService. A nil publisher discards change events.
func NewProfileService(db *gorm.DB, publisher changefeed.Publisher) (*ProfileService, error) {
	if db == nil {
		return nil, errors.New("profile service: db is required")
	}
	if publisher == nil {
		publisher = changefeed.Discard
	}
	return &ProfileService{
		db:        db,
		publisher: publisher,
		log:       logger.WithModule("profiles"),
	}, nil
}

// Create provisions a profile, applying preference defaults.
func (s *ProfileService) Create(ctx context.Context, input CreateProfileInput) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	id := strings.TrimSpace(input.ID)
	if id != "" && !isUUID(id) {
		return nil, ErrProfileInvalid.WithMessage("profile id must be a UUID")
	}

	profile := &models.Profile{
		BaseModel:       models.BaseModel{ID: id},
		DisplayName:     strings.TrimSpace(input.DisplayName),
		Email:           strings.ToLower(strings.TrimSpace(input.Email)),
		ThemePreference: strings.TrimSpace(input.ThemePreference),
		ColorTheme:      strings.TrimSpace(input.ColorTheme),
	}
	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrProfileConflict.WithInternal(err)
		}
		return nil, fmt.Errorf("profile service: create profile: %w", err)
	}
	return profile, nil
}

// Get returns the caller's own profile.
func (s *ProfileService) Get(ctx context.Context, caller policy.Caller) (*models.Profile, error) {
	ctx = ensureContext(ctx)
	if !caller.Authenticated() {
		return nil, ErrProfileNotFound
	}

	var profile models.Profile
	if err := s.db.WithContext(ctx).Where("id = ?", caller.ID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profile service: load profile: %w", err)
	}
	return &profile, nil
}

// UpdatePreferences changes the caller's theme and colour preferences.
func (s *ProfileService) UpdatePreferences(ctx context.Context, caller policy.Caller, input UpdatePreferencesInput) (*models.Profile, error) {
	ctx = ensureContext(ctx)
	if !caller.Authenticated() {
		return nil, ErrProfileNotFound
	}

	updates := map[string]any{}
	for column, value := range map[string]*string{
		"theme_preference": input.ThemePreference,
		"color_theme":      input.ColorTheme,
	} {
		if value == nil {
			continue
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" || len(trimmed) > maxPreferenceLength {
			return nil, ErrProfileInvalid.WithMessage(column + " must be non-empty text of at most 64 characters")
		}
		updates[column] = trimmed
	}

	var profile models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", caller.ID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return fmt.Errorf("load profile: %w", err)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&profile).Updates(updates).Error; err != nil {
			return fmt.Errorf("update preferences: %w", err)
		}
		return tx.Where("id = ?", caller.ID).First(&profile).Error
	})
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("profile service: %w", err)
	}
	return &profile, nil
}

// Destroy removes a profile and, atomically, every notification addressed to it including
// soft-deleted ones. Only the profile owner or a system caller may destroy it. A DELETE change
// event is published for each cascaded notification after commit.
func (s *ProfileService) Destroy(ctx context.Context, caller policy.Caller, profileID string) (int64, error) {
	ctx = ensureContext(ctx)

	profileID = strings.TrimSpace(profileID)
	if !caller.System && !policy.IsOwner(caller, policy.Row{UserID: profileID}) {
		return 0, ErrProfileNotFound
	}

	var (
		cascaded []models.Notification
		removed  int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BindCaller(tx, caller.ID); err != nil {
			return fmt.Errorf("bind caller: %w", err)
		}

		// The row lock makes concurrent inserts for this owner wait on the foreign key until commit.
		var profile models.Profile
		if err := lockForUpdate(tx).Where("id = ?", profileID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return fmt.Errorf("load profile: %w", err)
		}

		if err := tx.Where("user_id = ?", profileID).Find(&cascaded).Error; err != nil {
			return fmt.Errorf("load notifications: %w", err)
		}

		// The foreign key cascades as well; deleting explicitly keeps the count exact.
		result := tx.Where("user_id = ?", profileID).Delete(&models.Notification{})
		if result.Error != nil {
			return fmt.Errorf("delete notifications: %w", result.Error)
		}
		removed = result.RowsAffected

		if err := tx.Delete(&profile).Error; err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("profile service: destroy profile: %w", err)
	}

	s.log.Info("profile destroyed",
		zap.String("profile_id", profileID),
		zap.String("actor_id", caller.ID),
		zap.Int64("notifications", removed),
	)

	events := make([]changefeed.Event, 0, len(cascaded))
	for i := range cascaded {
		events = append(events, changefeed.Deleted(&cascaded[i], caller.ID))
	}
	changefeed.Emit(ctx, s.publisher, events...)
	return removed, nil
}
