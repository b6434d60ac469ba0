package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/notistore/internal/models"
)

// DatabaseStore keeps fixed-window counters in the primary SQL database so that rate limits hold
// across every instance sharing it.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed counter store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: time.Now}
}

// Increment bumps the counter for key, opening a new window when the previous one has elapsed.
// It returns the hits within the current window and the time until the window closes.
func (s *DatabaseStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if s == nil {
		return 0, 0, errors.New("cache: database store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now().UTC()
	var counter models.RateCounter

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RateCounter{}).
			Where("bucket = ? AND window_ends_at > ?", key, now).
			UpdateColumn("hits", gorm.Expr("hits + 1"))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			fresh := models.RateCounter{Bucket: key, Hits: 1, WindowEndsAt: now.Add(window)}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "bucket"}},
				DoUpdates: clause.AssignmentColumns([]string{"hits", "window_ends_at", "updated_at"}),
			}).Create(&fresh).Error; err != nil {
				return err
			}
		}

		return tx.Take(&counter, "bucket = ?", key).Error
	})
	if err != nil {
		return 0, 0, err
	}

	ttl := counter.WindowEndsAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	return counter.Hits, ttl, nil
}

// Sweep removes counters whose window closed before now.
func (s *DatabaseStore) Sweep(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errors.New("cache: database store not initialised")
	}
	res := s.db.WithContext(ctx).
		Where("window_ends_at <= ?", s.now().UTC()).
		Delete(&models.RateCounter{})
	return res.RowsAffected, res.Error
}
