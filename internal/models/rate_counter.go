package models

import "time"

// RateCounter is a fixed-window request counter shared by every API instance using the same database.
type RateCounter struct {
	Bucket       string    `gorm:"primaryKey;size:255"`
	Hits         int       `gorm:"not null;default:0"`
	WindowEndsAt time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time
}
