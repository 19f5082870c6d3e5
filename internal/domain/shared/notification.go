package shared

import (
	"context"
	"time"
)

// NotificationLevel is the severity of an operator notification
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// Notification is a toast shown to the operator
type Notification struct {
	Level      NotificationLevel `json:"level"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Collection Collection        `json:"collection,omitempty"`
	RecordID   string            `json:"recordId,omitempty"`
	TenantID   string            `json:"tenantId,omitempty"`
	Time       time.Time         `json:"time"`
}

// Notifier delivers notifications. Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Notification codes
const (
	NoticePushFailed     = "PUSH_FAILED"
	NoticeDeleteFailed   = "DELETE_FAILED"
	NoticePullFailed     = "PULL_FAILED"
	NoticeCompacted      = "IMAGES_COMPRESSED"
	NoticeImagesRemoved  = "IMAGES_REMOVED"
	NoticeStorageFull    = "STORAGE_FULL"
	NoticeRemoteSeeded   = "REMOTE_SEEDED"
	NoticeTenantSwitched = "TENANT_SWITCHED"
)
