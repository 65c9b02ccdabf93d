package domain

import "time"

type NotificationKind string

const (
	NotifyTransferReceived NotificationKind = "transfer_received"
	NotifySavingsRate      NotificationKind = "savings_rate"
	NotifyOrderExecuted    NotificationKind = "order_executed"
	NotifyOrderCancelled   NotificationKind = "order_cancelled"
	NotifyCreditGranted    NotificationKind = "credit_granted"
	NotifyCreditOverdue    NotificationKind = "credit_overdue"
	NotifyMessage          NotificationKind = "message"
	NotifyAccountBanned    NotificationKind = "account_banned"
)

type Notification struct {
	ID        string
	UserID    string
	Kind      NotificationKind
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}
