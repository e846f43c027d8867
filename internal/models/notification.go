package models

import (
	"time"

	"buildex/backoffice/internal/utils"
)

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// EntityRef points a notification at the document it is about.
type EntityRef struct {
	Kind string      `bson:"kind" json:"kind"`
	ID   utils.SixID `bson:"id" json:"id"`
}

// Notification is a dashboard event. The quotation engine only ever writes them.
type Notification struct {
	Base      `bson:",inline"`
	Type      NotificationType `bson:"type" json:"type"`
	Title     string           `bson:"title" json:"title"`
	Message   string           `bson:"message" json:"message"`
	Entity    *EntityRef       `bson:"entity,omitempty" json:"entity,omitempty"`
	Read      bool             `bson:"read" json:"read"`
	CreatedAt time.Time        `bson:"created_at" json:"createdAt"`
}
