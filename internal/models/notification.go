package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification is a message addressed to a single profile. Ownership is fixed at creation.
// DeletedAt is a plain nullable timestamp rather than gorm.DeletedAt so soft-deleted rows
// stay visible to their owner unless a query filters them out.
type Notification struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	UserID      string     `gorm:"<-:create;size:36;not null;index:idx_notifications_user_id" json:"user_id"`
	Profile     *Profile   `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Type        string     `gorm:"type:text;not null" json:"type"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	ReferenceID *string    `gorm:"size:36" json:"reference_id"`
	Read        bool       `gorm:"not null;default:false;index:idx_notifications_read" json:"read"`
	DeletedAt   *time.Time `gorm:"index:idx_notifications_deleted_at" json:"deleted_at"`
	CreatedAt   time.Time  `gorm:"<-:create;not null;index:idx_notifications_created_at,sort:desc" json:"created_at"`
}

// TableName pins the table name shared with policies and migrations.
func (Notification) TableName() string {
	return "notifications"
}

// BeforeCreate ensures a UUID is present before persisting.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// IsDeleted reports whether the notification has been soft-deleted.
func (n *Notification) IsDeleted() bool {
	return n != nil && n.DeletedAt != nil
}
