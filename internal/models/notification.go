package models

import "time"

type NotificationStatus string

const (
	NotificationQueued    NotificationStatus = "queued"
	NotificationRunning   NotificationStatus = "running"
	NotificationSucceeded NotificationStatus = "succeeded"
	NotificationFailed    NotificationStatus = "failed"
)

// Notification is a durable email-delivery job consumed by cmd/worker.
// The row is the source of truth; the queue message only carries the id.
type Notification struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID  uint64 `gorm:"index;not null"`
	Email   string `gorm:"type:varchar(255);not null"`
	Subject string `gorm:"type:varchar(255);not null"`
	Body    string `gorm:"type:text;not null"`

	Status NotificationStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Notification) TableName() string { return "notifications" }
